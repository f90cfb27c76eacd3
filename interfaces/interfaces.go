package interfaces

import (
	"context"
	"log/slog"
	"time"
)

// ChainClient submits signed transactions to the ledger and reads back their
// effects. Submission returns only a digest; created-object identifiers are
// discovered later via TransactionEffects.
type ChainClient interface {
	// SubmitTransaction submits serialized transaction bytes with the
	// given signature and returns the transaction digest.
	SubmitTransaction(ctx context.Context, txBytes []byte, signature []byte) (TxDigest, error)

	// TransactionEffects fetches the effects of a previously submitted
	// transaction. Returns an error while the ledger has not yet
	// finalized the transaction; such errors are transient.
	TransactionEffects(ctx context.Context, digest TxDigest) (*TransactionEffects, error)
}

// Wallet signs transactions and personal messages on behalf of one account.
// SignPersonalMessage may be user-mediated and suspend until the holder
// approves or rejects; implementations must honor context cancellation.
type Wallet interface {
	Address() AccountAddress
	SignTransaction(ctx context.Context, txBytes []byte) ([]byte, error)
	SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error)
}

// BlobStore is content-addressed put/get of opaque byte blobs.
type BlobStore interface {
	// Store uploads data and returns the storage record. Uploading bytes
	// already held by the network returns the existing blob ID.
	Store(ctx context.Context, data []byte) (*StoredBlob, error)

	// Fetch retrieves blob content by its identifier. Returns
	// ErrBlobNotFound if the network holds no such blob.
	Fetch(ctx context.Context, id BlobID) ([]byte, error)
}

// Credential is a short-lived, wallet-signed authorization token scoped to
// one account and one package. It becomes usable only after the holder's
// signature over the challenge message has been bound to it.
type Credential interface {
	Account() AccountAddress
	PackageID() ObjectID

	// ChallengeMessage returns the canonical bytes the wallet signs.
	ChallengeMessage() []byte

	// Signature returns the bound signature, or nil if not yet signed.
	Signature() []byte

	// Verify checks that the credential is signed, unexpired, and that
	// the signature matches the credential's account.
	Verify(now time.Time) error
}

// ThresholdCipher encrypts plaintext into a self-describing envelope
// recoverable by any threshold-of-n authorized key holders, and decrypts
// given a valid session credential and a serialized authorization
// transaction as proof.
type ThresholdCipher interface {
	// Encrypt seals plaintext under the envelope ID with the given
	// threshold and returns the envelope bytes. The authorized set is the
	// access policy's address list, propagated to the key holders so they
	// can gate later share fetches. The envelope ID is parseable back out
	// of the returned bytes.
	Encrypt(ctx context.Context, id EnvelopeID, threshold int, authorized []AccountAddress, plaintext []byte) ([]byte, error)

	// Decrypt recovers the plaintext from envelope bytes. The credential
	// and txProof authorize the key-share fetch; fewer than threshold
	// successful shares is a hard failure (ErrThresholdNotReached).
	Decrypt(ctx context.Context, envelope []byte, cred Credential, txProof []byte) ([]byte, error)
}

// AttestationRegistrar records a TEE-origin claim bound to a ciphertext
// identifier on the ledger and returns the created record's object ID.
type AttestationRegistrar interface {
	RegisterAttestation(ctx context.Context, id EnvelopeID) (ObjectID, error)
}

// ProcessRequest carries the identifiers handed to the external enclave
// processing service.
type ProcessRequest struct {
	Account       AccountAddress
	BlobID        BlobID
	OnChainFileID ObjectID
	PolicyID      ObjectID
	Threshold     int
}

// ProcessResult is the enclave processing outcome: the attestation record and
// the derived ("refined") artifact's identifiers.
type ProcessResult struct {
	AttestationID        ObjectID
	DerivedBlobID        BlobID
	DerivedOnChainFileID ObjectID
}

// EnclaveProcessor delegates computation over a sealed file to an external
// TEE execution service. The call is synchronous with a bounded timeout; no
// effects polling is needed.
type EnclaveProcessor interface {
	Process(ctx context.Context, req ProcessRequest) (*ProcessResult, error)
}

// Notifier reports pipeline outcomes to the user-facing surface.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// LogNotifier reports notifications through a structured logger. It is the
// default Notifier for headless runs.
type LogNotifier struct {
	Log *slog.Logger
}

func (n *LogNotifier) Info(msg string)  { n.Log.Info(msg) }
func (n *LogNotifier) Error(msg string) { n.Log.Error(msg) }
