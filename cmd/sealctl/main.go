package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/sealflow/sealflow/api/keyserver"
	"github.com/sealflow/sealflow/attestation"
	"github.com/sealflow/sealflow/blobstore"
	"github.com/sealflow/sealflow/chain"
	"github.com/sealflow/sealflow/cipher"
	"github.com/sealflow/sealflow/cmd/flags"
	"github.com/sealflow/sealflow/interfaces"
	"github.com/sealflow/sealflow/wallet"
	"github.com/sealflow/sealflow/workflow"
)

var attestationProviderFlag = &cli.StringFlag{
	Name:  "attestation-provider",
	Value: "dummy",
	Usage: "attestation quote provider: 'dcap', 'dummy', or a remote provider URL",
}

var outFlag = &cli.StringFlag{
	Name:  "out",
	Usage: "write the decrypted result to this file instead of stdout",
}

var blobIDFlag = &cli.StringFlag{
	Name:  "blob-id",
	Usage: "blob ID of the sealed ciphertext",
}
var fileIDFlag = &cli.StringFlag{
	Name:  "file-id",
	Usage: "object ID of the on-chain encrypted file record",
}
var policyIDFlag = &cli.StringFlag{
	Name:  "policy-id",
	Usage: "object ID of the access policy",
}
var attestationIDFlag = &cli.StringFlag{
	Name:  "attestation-id",
	Usage: "object ID of an existing attestation record to reuse",
}

var workflowFlags = append([]cli.Flag{
	flags.RPCAddrFlag,
	flags.PackageIDFlag,
	flags.PrivateKeyFlag,
	flags.ChainIDFlag,
	flags.WalrusPublisherFlag,
	flags.WalrusAggregatorFlag,
	flags.WalrusEpochsFlag,
	flags.KeyServersFlag,
	flags.ThresholdFlag,
	flags.ProcessingURLFlag,
	flags.ExplorerURLFlag,
	attestationProviderFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "sealctl",
		Usage: "Seal, process, and unseal files with threshold encryption",
		Commands: []*cli.Command{
			{
				Name:      "encrypt",
				Usage:     "Seal a file: create the access policy, encrypt, publish, and register on-chain",
				ArgsUsage: "<file>",
				Flags:     workflowFlags,
				Action:    runEncrypt,
			},
			{
				Name:   "process",
				Usage:  "Run the enclave processing service over a sealed file",
				Flags:  append([]cli.Flag{blobIDFlag, fileIDFlag, policyIDFlag}, workflowFlags...),
				Action: runProcess,
			},
			{
				Name:   "decrypt",
				Usage:  "Unseal a file: register or reuse an attestation, prove authorization, and decrypt",
				Flags:  append([]cli.Flag{blobIDFlag, fileIDFlag, policyIDFlag, attestationIDFlag, outFlag}, workflowFlags...),
				Action: runDecrypt,
			},
			{
				Name:   "status",
				Usage:  "Show storage network metadata for a sealed blob",
				Flags:  append([]cli.Flag{blobIDFlag, flags.WalrusPublisherFlag, flags.WalrusAggregatorFlag, flags.WalrusEpochsFlag}, flags.CommonFlags...),
				Action: runStatus,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// buildWorkflow wires the full collaborator stack from CLI flags.
func buildWorkflow(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (*workflow.SealWorkflow, *chain.RPCClient, error) {
	packageID, err := interfaces.NewObjectIDFromHex(cCtx.String(flags.PackageIDFlag.Name))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid package ID: %w", err)
	}

	privHex := cCtx.String(flags.PrivateKeyFlag.Name)
	if privHex == "" {
		return nil, nil, errors.New("private-key is required")
	}
	signer, err := wallet.NewLocalWalletFromHex(privHex)
	if err != nil {
		return nil, nil, err
	}

	client, err := chain.Dial(ctx, cCtx.String(flags.RPCAddrFlag.Name), logger)
	if err != nil {
		return nil, nil, err
	}

	blobs := blobstore.NewClient(blobstore.Config{
		PublisherURL:  cCtx.String(flags.WalrusPublisherFlag.Name),
		AggregatorURL: cCtx.String(flags.WalrusAggregatorFlag.Name),
		Epochs:        cCtx.Int(flags.WalrusEpochsFlag.Name),
	}, nil, logger)

	serverURLs := cCtx.StringSlice(flags.KeyServersFlag.Name)
	servers := make([]cipher.ShareServer, 0, len(serverURLs))
	for _, addr := range serverURLs {
		servers = append(servers, &keyserver.Client{ServerAddr: addr})
	}
	thresholdCipher, err := cipher.NewThresholdClient(servers, logger)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	chainID := cCtx.String(flags.ChainIDFlag.Name)
	provider, err := quoteProvider(cCtx.String(attestationProviderFlag.Name))
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	registrar := attestation.NewRegistrar(chain.NewExecutor(client, logger), signer, provider, packageID, chainID, logger)

	var processor interfaces.EnclaveProcessor
	if processingURL := cCtx.String(flags.ProcessingURLFlag.Name); processingURL != "" {
		processor = &attestation.ProcessingClient{BaseURL: processingURL, Log: logger}
	}

	wf := workflow.New(workflow.Config{
		PackageID:   packageID,
		ChainID:     chainID,
		Threshold:   cCtx.Int(flags.ThresholdFlag.Name),
		ExplorerURL: cCtx.String(flags.ExplorerURLFlag.Name),
	}, client, signer, blobs, thresholdCipher, registrar, processor, nil, logger)

	return wf, client, nil
}

func quoteProvider(kind string) (attestation.Provider, error) {
	switch kind {
	case "dcap":
		return attestation.DCAPProvider{}, nil
	case "dummy":
		return attestation.DummyProvider{}, nil
	default:
		if kind == "" {
			return nil, errors.New("attestation-provider is required")
		}
		return &attestation.RemoteProvider{Address: kind}, nil
	}
}

// seedSession restores sealed-file identifiers from flags into the session,
// so decrypt and process can run in a fresh invocation.
func seedSession(cCtx *cli.Context, wf *workflow.SealWorkflow) error {
	session := wf.Session()

	if blobID := cCtx.String(blobIDFlag.Name); blobID != "" {
		session.SetBlobID(interfaces.BlobID(blobID))
	}
	if fileIDHex := cCtx.String(fileIDFlag.Name); fileIDHex != "" {
		fileID, err := interfaces.NewObjectIDFromHex(fileIDHex)
		if err != nil {
			return fmt.Errorf("invalid file ID: %w", err)
		}
		session.SetOnChainFileID(fileID)
	}
	if policyIDHex := cCtx.String(policyIDFlag.Name); policyIDHex != "" {
		policyID, err := interfaces.NewObjectIDFromHex(policyIDHex)
		if err != nil {
			return fmt.Errorf("invalid policy ID: %w", err)
		}
		session.SetPolicyID(policyID)
	}
	if attestationIDHex := cCtx.String(attestationIDFlag.Name); attestationIDHex != "" {
		attestationID, err := interfaces.NewObjectIDFromHex(attestationIDHex)
		if err != nil {
			return fmt.Errorf("invalid attestation ID: %w", err)
		}
		session.SetAttestationID(attestationID)
	}

	return nil
}

func runEncrypt(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	path := cCtx.Args().First()
	if path == "" {
		return errors.New("usage: sealctl encrypt <file>")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	wf, client, err := buildWorkflow(cCtx.Context, cCtx, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	wf.SelectFile(filepath.Base(path), data)

	fileID, err := wf.Encrypt(cCtx.Context)
	if err != nil {
		return err
	}

	info := wf.Session().Snapshot()
	fmt.Printf("policy:      %s\n", wf.ExplorerLink(info.PolicyID))
	fmt.Printf("blob:        %s\n", info.BlobID)
	fmt.Printf("file record: %s\n", wf.ExplorerLink(fileID))
	return nil
}

func runProcess(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	wf, client, err := buildWorkflow(cCtx.Context, cCtx, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := seedSession(cCtx, wf); err != nil {
		return err
	}

	result, err := wf.Process(cCtx.Context)
	if err != nil {
		return err
	}

	fmt.Printf("attestation:  %s\n", wf.ExplorerLink(result.AttestationID))
	fmt.Printf("derived blob: %s\n", result.DerivedBlobID)
	fmt.Printf("derived file: %s\n", wf.ExplorerLink(result.DerivedOnChainFileID))
	return nil
}

func runDecrypt(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	wf, client, err := buildWorkflow(cCtx.Context, cCtx, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := seedSession(cCtx, wf); err != nil {
		return err
	}

	plaintext, err := wf.Decrypt(cCtx.Context)
	if err != nil {
		return err
	}

	if out := cCtx.String(outFlag.Name); out != "" {
		if err := os.WriteFile(out, plaintext, 0o600); err != nil {
			return err
		}
		logger.Info("Wrote decrypted result", "path", out, "size", len(plaintext))
		return nil
	}

	os.Stdout.Write(plaintext)
	fmt.Println()
	return nil
}

func runStatus(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	blobID := cCtx.String(blobIDFlag.Name)
	if blobID == "" {
		return errors.New("blob-id is required")
	}

	blobs := blobstore.NewClient(blobstore.Config{
		PublisherURL:  cCtx.String(flags.WalrusPublisherFlag.Name),
		AggregatorURL: cCtx.String(flags.WalrusAggregatorFlag.Name),
		Epochs:        cCtx.Int(flags.WalrusEpochsFlag.Name),
	}, nil, logger)

	info, err := blobs.Info(cCtx.Context, interfaces.BlobID(blobID))
	if err != nil {
		return err
	}

	encoded, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
