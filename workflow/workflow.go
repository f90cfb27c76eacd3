package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/atomic"

	"github.com/sealflow/sealflow/chain"
	"github.com/sealflow/sealflow/cipher"
	"github.com/sealflow/sealflow/interfaces"
	"github.com/sealflow/sealflow/session"
)

// DefaultThreshold is the fixed k of the k-of-n threshold scheme. It is a
// system parameter, independent of any individual access policy.
const DefaultThreshold = 2

// Config is the workflow's deployment configuration.
type Config struct {
	// PackageID is the on-chain seal manager package.
	PackageID interfaces.ObjectID

	// ChainID names the target ledger network, e.g. "sui:testnet".
	ChainID string

	// Threshold is the k of the k-of-n scheme; zero falls back to
	// DefaultThreshold.
	Threshold int

	// ExplorerURL is the block explorer base for rendering object links.
	// Optional.
	ExplorerURL string

	// CredentialTTL bounds session credentials; zero falls back to
	// session.DefaultTTL.
	CredentialTTL time.Duration
}

// SealWorkflow composes the ledger, blob store, threshold cipher, wallet,
// and attestation collaborators into the encrypt, process, and decrypt
// pipelines. It owns the SealSession and serializes pipeline invocations
// with a busy flag: at most one pipeline is active per session, regardless
// of what the calling surface does.
type SealWorkflow struct {
	cfg       Config
	executor  *chain.Executor
	wallet    interfaces.Wallet
	blobs     interfaces.BlobStore
	cipher    interfaces.ThresholdCipher
	registrar interfaces.AttestationRegistrar
	processor interfaces.EnclaveProcessor
	notifier  interfaces.Notifier
	log       *slog.Logger

	session      *SealSession
	busy         atomic.Bool
	decryptState atomic.Int32
}

// New creates a workflow. The registrar and processor are each optional, but
// decrypt requires a registrar (or a prior Process run) and Process requires
// a processor.
func New(cfg Config, client interfaces.ChainClient, wallet interfaces.Wallet, blobs interfaces.BlobStore, cipher interfaces.ThresholdCipher, registrar interfaces.AttestationRegistrar, processor interfaces.EnclaveProcessor, notifier interfaces.Notifier, log *slog.Logger) *SealWorkflow {
	if cfg.Threshold == 0 {
		cfg.Threshold = DefaultThreshold
	}
	if notifier == nil {
		notifier = &interfaces.LogNotifier{Log: log}
	}

	return &SealWorkflow{
		cfg:       cfg,
		executor:  chain.NewExecutor(client, log),
		wallet:    wallet,
		blobs:     blobs,
		cipher:    cipher,
		registrar: registrar,
		processor: processor,
		notifier:  notifier,
		log:       log,
		session:   NewSession(),
	}
}

// Session returns the workflow's session for inspection. Mutation stays with
// the orchestrator.
func (w *SealWorkflow) Session() *SealSession {
	return w.session
}

// DecryptState returns the decrypt pipeline's current state.
func (w *SealWorkflow) DecryptState() DecryptState {
	return DecryptState(w.decryptState.Load())
}

func (w *SealWorkflow) setDecryptState(s DecryptState) {
	w.decryptState.Store(int32(s))
	w.log.Debug("Decrypt state transition", slog.String("state", s.String()))
}

// SelectFile records the source file for the next encrypt cycle.
func (w *SealWorkflow) SelectFile(name string, data []byte) {
	w.session.SetSourceFile(&SourceFile{Name: name, Data: data})
}

// ExplorerLink renders a block explorer URL for an object ID, or the plain
// ID when no explorer is configured.
func (w *SealWorkflow) ExplorerLink(id interfaces.ObjectID) string {
	if w.cfg.ExplorerURL == "" {
		return id.String()
	}
	return fmt.Sprintf("%s/%s", w.cfg.ExplorerURL, id)
}

// acquire takes the busy flag, rejecting concurrent pipeline invocations.
func (w *SealWorkflow) acquire() error {
	if !w.busy.CompareAndSwap(false, true) {
		return interfaces.ErrPipelineBusy
	}
	return nil
}

func (w *SealWorkflow) release() {
	w.busy.Store(false)
}

func (w *SealWorkflow) account() (interfaces.AccountAddress, error) {
	if w.wallet == nil {
		return interfaces.AccountAddress{}, interfaces.ErrNoAccount
	}
	addr := w.wallet.Address()
	if addr.IsZero() {
		return interfaces.AccountAddress{}, interfaces.ErrNoAccount
	}
	return addr, nil
}

func (w *SealWorkflow) fail(err error) error {
	w.notifier.Error(err.Error())
	return err
}

// Encrypt runs the encrypt pipeline: create the access policy, derive the
// envelope ID, canonicalize and threshold-encrypt the source file, publish
// the ciphertext, and register the encrypted file on-chain. Returns the
// created file record's object ID. Partial on-chain state left behind by an
// aborted run is not rolled back; such orphaned artifacts are inert.
func (w *SealWorkflow) Encrypt(ctx context.Context) (interfaces.ObjectID, error) {
	account, err := w.account()
	if err != nil {
		return interfaces.ObjectID{}, w.fail(err)
	}
	source := w.session.SourceFile()
	if source == nil {
		return interfaces.ObjectID{}, w.fail(interfaces.ErrNoSourceFile)
	}

	if err := w.acquire(); err != nil {
		return interfaces.ObjectID{}, err
	}
	defer w.release()

	start := time.Now()
	w.session.Reset()

	// Step 1: access policy naming the caller as sole authorized address.
	policyID, err := w.createPolicy(ctx, account)
	if err != nil {
		return interfaces.ObjectID{}, w.fail(fmt.Errorf("could not create access policy: %w", err))
	}
	w.session.SetPolicyID(policyID)

	// Step 2: envelope ID binds the ciphertext to the policy.
	envelopeID, err := interfaces.NewEnvelopeID(policyID)
	if err != nil {
		return interfaces.ObjectID{}, w.fail(err)
	}

	// Step 3: canonical plaintext.
	plaintext, err := Canonicalize(source)
	if err != nil {
		return interfaces.ObjectID{}, w.fail(err)
	}

	// Step 4: threshold encryption.
	envelope, err := w.cipher.Encrypt(ctx, envelopeID, w.cfg.Threshold, []interfaces.AccountAddress{account}, plaintext)
	if err != nil {
		return interfaces.ObjectID{}, w.fail(interfaces.NewUpstreamError("threshold encryption", err))
	}

	// Step 5: publish ciphertext.
	stored, err := w.blobs.Store(ctx, envelope)
	if err != nil {
		return interfaces.ObjectID{}, w.fail(interfaces.NewUpstreamError("ciphertext upload", err))
	}
	w.session.SetBlobID(stored.BlobID)

	// Step 6: register on-chain, cross-checking the stored envelope.
	fileID, err := w.saveEncryptedFileOnChain(ctx, account, stored, envelopeID, policyID)
	if err != nil {
		return interfaces.ObjectID{}, w.fail(err)
	}
	w.session.SetOnChainFileID(fileID)
	w.session.SetResult(nil)

	w.log.Info("Encrypt pipeline complete",
		slog.String("policy_id", policyID.String()),
		slog.String("blob_id", stored.BlobID.String()),
		slog.String("file_id", fileID.String()),
		slog.Duration("duration", time.Since(start)))
	w.notifier.Info(fmt.Sprintf("File sealed: %s", fileID))

	return fileID, nil
}

// createPolicy submits the policy-creation transaction and awaits the
// created policy object. Failure to resolve within the polling loop is a
// pending condition, not fatal; polling continues until the context is
// cancelled.
func (w *SealWorkflow) createPolicy(ctx context.Context, account interfaces.AccountAddress) (interfaces.ObjectID, error) {
	tx := chain.NewTransaction(account, w.cfg.ChainID).
		MoveCall(w.cfg.PackageID.String()+"::seal_manager::create_access_policy",
			chain.PureAddresses(account),
		)

	policyID, digest, err := w.executor.ExecuteAndAwaitCreated(ctx, w.wallet, tx)
	if err != nil {
		return interfaces.ObjectID{}, err
	}

	w.log.Debug("Access policy created",
		slog.String("policy_id", policyID.String()),
		slog.String("digest", digest.String()))
	return policyID, nil
}

// saveEncryptedFileOnChain re-fetches the stored ciphertext, parses its
// embedded envelope ID as a defensive cross-check against the derived ID,
// and registers the encrypted file reference on the ledger.
func (w *SealWorkflow) saveEncryptedFileOnChain(ctx context.Context, account interfaces.AccountAddress, stored *interfaces.StoredBlob, derivedID interfaces.EnvelopeID, policyID interfaces.ObjectID) (interfaces.ObjectID, error) {
	envelope, err := w.blobs.Fetch(ctx, stored.BlobID)
	if err != nil {
		return interfaces.ObjectID{}, interfaces.NewUpstreamError("ciphertext readback", err)
	}

	parsedID, err := cipher.ParseEnvelopeID(envelope)
	if err != nil {
		return interfaces.ObjectID{}, interfaces.NewUpstreamError("ciphertext readback", err)
	}
	if !parsedID.Equal(derivedID) {
		return interfaces.ObjectID{}, interfaces.NewUpstreamError("ciphertext readback", interfaces.ErrEnvelopeMismatch)
	}

	metadata := interfaces.FileMetadata{
		AccessURL:   stored.AccessURL,
		Size:        stored.Size,
		StorageSize: stored.StorageSize,
	}
	metadataBytes, err := metadata.Marshal()
	if err != nil {
		return interfaces.ObjectID{}, err
	}

	tx := chain.NewTransaction(account, w.cfg.ChainID).
		MoveCall(w.cfg.PackageID.String()+"::seal_manager::save_encrypted_file",
			chain.PureBytes(parsedID.Bytes()),
			chain.Object(policyID),
			chain.PureBytes(metadataBytes),
		)

	fileID, digest, err := w.executor.ExecuteAndAwaitCreated(ctx, w.wallet, tx)
	if err != nil {
		return interfaces.ObjectID{}, err
	}

	w.log.Debug("Encrypted file registered",
		slog.String("file_id", fileID.String()),
		slog.String("digest", digest.String()))
	return fileID, nil
}

// Process delegates computation over the sealed file to the external
// enclave processing service and records the attestation and derived
// artifact identifiers.
func (w *SealWorkflow) Process(ctx context.Context) (*interfaces.ProcessResult, error) {
	account, err := w.account()
	if err != nil {
		return nil, w.fail(err)
	}
	if w.processor == nil {
		return nil, w.fail(fmt.Errorf("no processing service configured"))
	}

	info := w.session.Snapshot()
	if info.BlobID == "" || info.OnChainFileID.IsZero() || info.PolicyID.IsZero() {
		return nil, w.fail(fmt.Errorf("no sealed file in session: run encrypt first"))
	}

	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	result, err := w.processor.Process(ctx, interfaces.ProcessRequest{
		Account:       account,
		BlobID:        info.BlobID,
		OnChainFileID: info.OnChainFileID,
		PolicyID:      info.PolicyID,
		Threshold:     w.cfg.Threshold,
	})
	if err != nil {
		return nil, w.fail(interfaces.NewUpstreamError("enclave processing", err))
	}

	w.session.SetAttestationID(result.AttestationID)
	w.session.SetDerivedArtifacts(result.DerivedBlobID, result.DerivedOnChainFileID)
	w.notifier.Info(fmt.Sprintf("Processing complete, attestation %s", result.AttestationID))

	return result, nil
}

// Decrypt runs the decrypt pipeline: confirm an attestation record, build a
// session credential, have the wallet sign its challenge, re-fetch the
// ciphertext, build the unsigned authorization transaction, fetch key
// shares, and open the envelope. Returns the canonical plaintext.
func (w *SealWorkflow) Decrypt(ctx context.Context) ([]byte, error) {
	account, err := w.account()
	if err != nil {
		return nil, w.fail(err)
	}

	if err := w.acquire(); err != nil {
		return nil, err
	}
	defer w.release()

	plaintext, err := w.decrypt(ctx, account)
	if err != nil {
		w.setDecryptState(StateFailed)
		return nil, w.fail(err)
	}

	w.setDecryptState(StateDecrypted)
	w.notifier.Info("File decrypted")
	return plaintext, nil
}

func (w *SealWorkflow) decrypt(ctx context.Context, account interfaces.AccountAddress) ([]byte, error) {
	info := w.session.Snapshot()
	if info.BlobID == "" || info.OnChainFileID.IsZero() || info.PolicyID.IsZero() {
		return nil, fmt.Errorf("no sealed file in session: run encrypt first")
	}

	start := time.Now()

	// Attestation must exist before key holders will release shares. A
	// record from a prior Process run is reused; otherwise one is
	// registered in-band.
	attestationID := info.AttestationID
	if attestationID.IsZero() {
		if w.registrar == nil {
			return nil, fmt.Errorf("no attestation record and no registrar configured")
		}

		w.setDecryptState(StateAttestationPending)
		envelope, err := w.blobs.Fetch(ctx, info.BlobID)
		if err != nil {
			return nil, interfaces.NewUpstreamError("ciphertext download", err)
		}
		envelopeID, err := cipher.ParseEnvelopeID(envelope)
		if err != nil {
			return nil, interfaces.NewUpstreamError("ciphertext download", err)
		}

		attestationID, err = w.registrar.RegisterAttestation(ctx, envelopeID)
		if err != nil {
			return nil, interfaces.NewUpstreamError("attestation registration", err)
		}
		w.session.SetAttestationID(attestationID)
	}
	w.setDecryptState(StateAttestationReady)

	// Session credential, signed by the wallet. The signing call is the
	// pipeline's externally driven suspension point.
	cred, err := session.New(account, w.cfg.PackageID, w.cfg.CredentialTTL)
	if err != nil {
		return nil, err
	}

	w.setDecryptState(StateCredentialChallengeSent)
	signature, err := w.wallet.SignPersonalMessage(ctx, cred.ChallengeMessage())
	if err != nil {
		return nil, interfaces.NewUpstreamError("credential signing", fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err))
	}
	if err := cred.BindSignature(signature); err != nil {
		return nil, interfaces.NewUpstreamError("credential signing", err)
	}
	w.setDecryptState(StateCredentialSigned)

	// Re-fetch the ciphertext and re-parse its embedded ID.
	envelope, err := w.blobs.Fetch(ctx, info.BlobID)
	if err != nil {
		return nil, interfaces.NewUpstreamError("ciphertext download", err)
	}
	envelopeID, err := cipher.ParseEnvelopeID(envelope)
	if err != nil {
		return nil, interfaces.NewUpstreamError("ciphertext download", err)
	}

	// The authorization transaction is serialized but never submitted;
	// it is the proof-of-authorization the key holders check.
	proofTx := chain.NewTransaction(account, w.cfg.ChainID).
		MoveCall(w.cfg.PackageID.String()+"::seal_manager::seal_approve",
			chain.PureBytes(envelopeID.Bytes()),
			chain.Object(info.OnChainFileID),
			chain.Object(info.PolicyID),
			chain.Object(attestationID),
		)
	txProof, err := proofTx.Serialize()
	if err != nil {
		return nil, err
	}

	w.setDecryptState(StateKeysFetching)
	plaintext, err := w.cipher.Decrypt(ctx, envelope, cred, txProof)
	if err != nil {
		return nil, interfaces.NewUpstreamError("threshold decryption", err)
	}

	w.session.SetResult(plaintext)
	w.log.Info("Decrypt pipeline complete",
		slog.String("blob_id", info.BlobID.String()),
		slog.Int("plaintext_size", len(plaintext)),
		slog.Duration("duration", time.Since(start)))

	return plaintext, nil
}
