package attestation

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/sealflow/sealflow/chain"
	"github.com/sealflow/sealflow/interfaces"
)

// Registrar records a TEE-origin claim bound to a ciphertext identifier on
// the ledger. It implements interfaces.AttestationRegistrar using the same
// submit-then-poll-effects pattern as policy and file registration.
type Registrar struct {
	executor  *chain.Executor
	wallet    interfaces.Wallet
	provider  Provider
	packageID interfaces.ObjectID
	chainID   string
	log       *slog.Logger
}

// NewRegistrar creates a registrar submitting through the given executor and
// wallet, with attestation evidence from the given provider.
func NewRegistrar(executor *chain.Executor, wallet interfaces.Wallet, provider Provider, packageID interfaces.ObjectID, chainID string, log *slog.Logger) *Registrar {
	return &Registrar{
		executor:  executor,
		wallet:    wallet,
		provider:  provider,
		packageID: packageID,
		chainID:   chainID,
		log:       log,
	}
}

// reportData binds the envelope and the registering account into the quote.
func reportData(id interfaces.EnvelopeID, account interfaces.AccountAddress) [64]byte {
	var data [64]byte
	idHash := sha256.Sum256(id.Bytes())
	copy(data[:32], idHash[:])
	copy(data[32:], account.Bytes())
	return data
}

// RegisterAttestation obtains a quote over the envelope ID, submits a
// registration transaction binding the enclave identity and the envelope,
// and awaits the created attestation record's object ID.
func (r *Registrar) RegisterAttestation(ctx context.Context, id interfaces.EnvelopeID) (interfaces.ObjectID, error) {
	start := time.Now()

	quote, err := r.provider.Attest(reportData(id, r.wallet.Address()))
	if err != nil {
		return interfaces.ObjectID{}, fmt.Errorf("could not obtain attestation quote: %w", err)
	}
	quoteHash := sha256.Sum256(quote)

	tx := chain.NewTransaction(r.wallet.Address(), r.chainID).
		MoveCall(r.packageID.String()+"::seal_manager::register_attestation",
			chain.PureString(r.provider.EnclaveIdentity()),
			chain.PureBytes(id.Bytes()),
			chain.PureBytes(quoteHash[:]),
		)

	attestationID, digest, err := r.executor.ExecuteAndAwaitCreated(ctx, r.wallet, tx)
	if err != nil {
		return interfaces.ObjectID{}, err
	}

	r.log.Info("Registered attestation",
		slog.String("attestation_id", attestationID.String()),
		slog.String("digest", digest.String()),
		slog.String("enclave", r.provider.EnclaveIdentity()),
		slog.Duration("duration", time.Since(start)))

	return attestationID, nil
}
