package cipher

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"

	"github.com/hashicorp/vault/shamir"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sealflow/sealflow/interfaces"
)

const (
	dataKeySize   = chacha20poly1305.KeySize
	aeadNonceSize = chacha20poly1305.NonceSizeX
)

// ShareServer is one key holder. Shares are registered at encrypt time and
// released at decrypt time only against a valid session credential and an
// authorization transaction referencing the envelope.
type ShareServer interface {
	// Name identifies the server for logging.
	Name() string

	// RegisterShare stores one key share for the envelope, together with
	// the policy's authorized address set.
	RegisterShare(ctx context.Context, id interfaces.EnvelopeID, share []byte, threshold int, authorized []interfaces.AccountAddress) error

	// FetchShare releases the stored share if the credential and
	// transaction proof authorize it.
	FetchShare(ctx context.Context, id interfaces.EnvelopeID, cred interfaces.Credential, txProof []byte) ([]byte, error)
}

// ThresholdClient implements interfaces.ThresholdCipher across a set of key
// servers.
type ThresholdClient struct {
	servers []ShareServer
	log     *slog.Logger
}

// NewThresholdClient creates a client over the given key servers. At least
// two servers are required for any meaningful threshold.
func NewThresholdClient(servers []ShareServer, log *slog.Logger) (*ThresholdClient, error) {
	if len(servers) < 2 {
		return nil, fmt.Errorf("at least 2 key servers required, got %d", len(servers))
	}
	return &ThresholdClient{servers: servers, log: log}, nil
}

// Encrypt seals plaintext under a fresh data key, splits the key across the
// client's key servers with the given threshold, and returns the serialized
// self-describing envelope. Every key server must accept its share; a failed
// registration would otherwise silently lower the effective redundancy.
func (c *ThresholdClient) Encrypt(ctx context.Context, id interfaces.EnvelopeID, threshold int, authorized []interfaces.AccountAddress, plaintext []byte) ([]byte, error) {
	if threshold < 2 || threshold > len(c.servers) {
		return nil, fmt.Errorf("threshold %d out of range for %d key servers", threshold, len(c.servers))
	}

	dataKey := make([]byte, dataKeySize)
	if _, err := rand.Read(dataKey); err != nil {
		return nil, fmt.Errorf("could not generate data key: %w", err)
	}

	nonce := make([]byte, aeadNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("could not generate nonce: %w", err)
	}

	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, id.Bytes())

	shares, err := shamir.Split(dataKey, len(c.servers), threshold)
	if err != nil {
		return nil, fmt.Errorf("could not split data key: %w", err)
	}

	for i, server := range c.servers {
		if err := server.RegisterShare(ctx, id, shares[i], threshold, authorized); err != nil {
			return nil, fmt.Errorf("could not register share with %s: %w", server.Name(), err)
		}
	}

	c.log.Debug("Encrypted envelope",
		slog.String("envelope_id", id.Hex()),
		slog.Int("threshold", threshold),
		slog.Int("servers", len(c.servers)),
		slog.Int("plaintext_size", len(plaintext)))

	envelope := &Envelope{
		ID:         id,
		Threshold:  threshold,
		TotalShare: len(c.servers),
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}
	return envelope.Serialize()
}

// Decrypt parses the envelope, fetches key shares until the embedded
// threshold is met, recombines the data key, and opens the payload. Fewer
// than threshold successful shares is a hard failure.
func (c *ThresholdClient) Decrypt(ctx context.Context, envelopeBytes []byte, cred interfaces.Credential, txProof []byte) ([]byte, error) {
	envelope, err := ParseEnvelope(envelopeBytes)
	if err != nil {
		return nil, err
	}

	shares := make([][]byte, 0, envelope.Threshold)
	for _, server := range c.servers {
		share, err := server.FetchShare(ctx, envelope.ID, cred, txProof)
		if err != nil {
			c.log.Warn("Key server refused share",
				slog.String("server", server.Name()),
				slog.String("envelope_id", envelope.ID.Hex()),
				"err", err)
			continue
		}
		shares = append(shares, share)
		if len(shares) == envelope.Threshold {
			break
		}
	}

	if len(shares) < envelope.Threshold {
		return nil, fmt.Errorf("%w: got %d of %d", interfaces.ErrThresholdNotReached, len(shares), envelope.Threshold)
	}

	dataKey, err := shamir.Combine(shares)
	if err != nil {
		return nil, fmt.Errorf("could not recombine data key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, envelope.Nonce, envelope.Ciphertext, envelope.ID.Bytes())
	if err != nil {
		return nil, fmt.Errorf("could not open envelope: %w", err)
	}

	return plaintext, nil
}
