package cipher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow/interfaces"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memShareServer holds shares in memory and optionally refuses fetches.
type memShareServer struct {
	name    string
	refuse  bool
	mu      sync.Mutex
	shares  map[string][]byte
	regErrs bool
}

func newMemShareServer(name string) *memShareServer {
	return &memShareServer{name: name, shares: map[string][]byte{}}
}

func (s *memShareServer) Name() string { return s.name }

func (s *memShareServer) RegisterShare(ctx context.Context, id interfaces.EnvelopeID, share []byte, threshold int, authorized []interfaces.AccountAddress) error {
	if s.regErrs {
		return errors.New("registration refused")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[id.Hex()] = share
	return nil
}

func (s *memShareServer) FetchShare(ctx context.Context, id interfaces.EnvelopeID, cred interfaces.Credential, txProof []byte) ([]byte, error) {
	if s.refuse {
		return nil, errors.New("not authorized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	share, ok := s.shares[id.Hex()]
	if !ok {
		return nil, errors.New("no such share")
	}
	return share, nil
}

func testServers(n int) ([]ShareServer, []*memShareServer) {
	mems := make([]*memShareServer, n)
	servers := make([]ShareServer, n)
	for i := range mems {
		mems[i] = newMemShareServer(string(rune('a' + i)))
		servers[i] = mems[i]
	}
	return servers, mems
}

func TestThresholdRoundTrip(t *testing.T) {
	servers, _ := testServers(3)
	client, err := NewThresholdClient(servers, testLogger())
	require.NoError(t, err)

	id := testEnvelopeID(t)
	plaintext := []byte(`{"hello":"world"}`)

	envelope, err := client.Encrypt(t.Context(), id, 2, nil, plaintext)
	require.NoError(t, err)

	recovered, err := client.Decrypt(t.Context(), envelope, nil, nil)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

func TestDecryptToleratesMinorityRefusal(t *testing.T) {
	servers, mems := testServers(3)
	client, err := NewThresholdClient(servers, testLogger())
	require.NoError(t, err)

	id := testEnvelopeID(t)
	envelope, err := client.Encrypt(t.Context(), id, 2, nil, []byte("payload"))
	require.NoError(t, err)

	mems[0].refuse = true

	recovered, err := client.Decrypt(t.Context(), envelope, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []byte("payload"), recovered)
}

func TestDecryptBelowThreshold(t *testing.T) {
	servers, mems := testServers(3)
	client, err := NewThresholdClient(servers, testLogger())
	require.NoError(t, err)

	id := testEnvelopeID(t)
	envelope, err := client.Encrypt(t.Context(), id, 2, nil, []byte("payload"))
	require.NoError(t, err)

	mems[0].refuse = true
	mems[1].refuse = true

	_, err = client.Decrypt(t.Context(), envelope, nil, nil)
	require.ErrorIs(t, err, interfaces.ErrThresholdNotReached)
}

func TestEncryptAbortsOnRegistrationFailure(t *testing.T) {
	servers, mems := testServers(3)
	client, err := NewThresholdClient(servers, testLogger())
	require.NoError(t, err)

	mems[2].regErrs = true

	_, err = client.Encrypt(t.Context(), testEnvelopeID(t), 2, nil, []byte("payload"))
	require.ErrorContains(t, err, "could not register share")
}

func TestEncryptValidatesThreshold(t *testing.T) {
	servers, _ := testServers(3)
	client, err := NewThresholdClient(servers, testLogger())
	require.NoError(t, err)

	_, err = client.Encrypt(t.Context(), testEnvelopeID(t), 1, nil, []byte("p"))
	require.ErrorContains(t, err, "out of range")
	_, err = client.Encrypt(t.Context(), testEnvelopeID(t), 4, nil, []byte("p"))
	require.ErrorContains(t, err, "out of range")
}

func TestNewThresholdClientRequiresTwoServers(t *testing.T) {
	servers, _ := testServers(1)
	_, err := NewThresholdClient(servers, testLogger())
	require.ErrorContains(t, err, "at least 2")
}

func TestCiphertextBoundToEnvelopeID(t *testing.T) {
	servers, _ := testServers(3)
	client, err := NewThresholdClient(servers, testLogger())
	require.NoError(t, err)

	id := testEnvelopeID(t)
	envelope, err := client.Encrypt(t.Context(), id, 2, nil, []byte("payload"))
	require.NoError(t, err)

	// Swapping the embedded ID for another one breaks AEAD authentication
	// even when key servers release shares for it.
	otherID := testEnvelopeID(t)
	_, err = client.Encrypt(t.Context(), otherID, 2, nil, []byte("other payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), envelope...)
	copy(tampered[len(envelopeMagic)+3:], otherID.Bytes())

	_, err = client.Decrypt(t.Context(), tampered, nil, nil)
	require.Error(t, err)
}
