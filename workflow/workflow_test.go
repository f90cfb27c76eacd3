package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow/api/keyserver"
	"github.com/sealflow/sealflow/attestation"
	"github.com/sealflow/sealflow/chain"
	"github.com/sealflow/sealflow/cipher"
	"github.com/sealflow/sealflow/interfaces"
	"github.com/sealflow/sealflow/wallet"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChain accepts every transaction and reports one created object per
// digest in its effects.
type fakeChain struct {
	mu      sync.Mutex
	next    byte
	created map[interfaces.TxDigest]interfaces.ObjectID
}

func newFakeChain() *fakeChain {
	return &fakeChain{created: map[interfaces.TxDigest]interfaces.ObjectID{}}
}

func (f *fakeChain) SubmitTransaction(ctx context.Context, txBytes []byte, signature []byte) (interfaces.TxDigest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	digest := interfaces.TxDigest(fmt.Sprintf("tx-%d", f.next))
	var id interfaces.ObjectID
	id[31] = f.next
	f.created[digest] = id
	return digest, nil
}

func (f *fakeChain) TransactionEffects(ctx context.Context, digest interfaces.TxDigest) (*interfaces.TransactionEffects, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.created[digest]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", digest)
	}
	return &interfaces.TransactionEffects{
		Digest:           digest,
		Status:           "success",
		CreatedObjectIDs: []interfaces.ObjectID{id},
	}, nil
}

// memBlobStore is an in-memory interfaces.BlobStore.
type memBlobStore struct {
	mu    sync.Mutex
	next  int
	blobs map[interfaces.BlobID][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{blobs: map[interfaces.BlobID][]byte{}}
}

func (s *memBlobStore) Store(ctx context.Context, data []byte) (*interfaces.StoredBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	id := interfaces.BlobID(fmt.Sprintf("blob-%d", s.next))
	s.blobs[id] = data
	return &interfaces.StoredBlob{
		BlobID:    id,
		Size:      uint64(len(data)),
		AccessURL: "mem://" + string(id),
	}, nil
}

func (s *memBlobStore) Fetch(ctx context.Context, id interfaces.BlobID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blobs[id]
	if !ok {
		return nil, interfaces.ErrBlobNotFound
	}
	return data, nil
}

type testEnv struct {
	packageID interfaces.ObjectID
	chain     *fakeChain
	blobs     *memBlobStore
	servers   []cipher.ShareServer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	var packageID interfaces.ObjectID
	packageID[0] = 0xac

	env := &testEnv{
		packageID: packageID,
		chain:     newFakeChain(),
		blobs:     newMemBlobStore(),
	}

	for i := 0; i < 3; i++ {
		handler, err := keyserver.NewHandler(keyserver.Config{
			PackageID: packageID,
			MasterKey: []byte(fmt.Sprintf("%032d", i)),
		}, testLogger())
		require.NoError(t, err)

		router := chi.NewRouter()
		handler.RegisterRoutes(router)
		srv := httptest.NewServer(router)
		t.Cleanup(srv.Close)

		env.servers = append(env.servers, &keyserver.Client{ServerAddr: srv.URL})
	}

	return env
}

// newWorkflow wires a workflow over the shared test environment for one
// wallet.
func (env *testEnv) newWorkflow(t *testing.T, signer interfaces.Wallet) *SealWorkflow {
	t.Helper()
	log := testLogger()

	thresholdCipher, err := cipher.NewThresholdClient(env.servers, log)
	require.NoError(t, err)

	var registrar interfaces.AttestationRegistrar
	if signer != nil {
		executor := chain.NewExecutor(env.chain, log)
		executor.Poller.WithBackoff(chain.FixedBackoff{Interval: time.Millisecond})
		registrar = attestation.NewRegistrar(executor, signer, attestation.DummyProvider{}, env.packageID, "testnet", log)
	}

	wf := New(Config{
		PackageID: env.packageID,
		ChainID:   "testnet",
		Threshold: 2,
	}, env.chain, signer, env.blobs, thresholdCipher, registrar, nil, nil, log)

	wf.executor.Poller.WithBackoff(chain.FixedBackoff{Interval: time.Millisecond})
	return wf
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	wf.SelectFile("data.json", []byte(`{"hello": "world"}`))

	fileID, err := wf.Encrypt(t.Context())
	require.NoError(t, err)
	require.False(t, fileID.IsZero())

	info := wf.Session().Snapshot()
	require.False(t, info.PolicyID.IsZero())
	require.Equal(t, fileID, info.OnChainFileID)
	require.NotEmpty(t, info.BlobID)
	require.False(t, info.HasResult)

	plaintext, err := wf.Decrypt(t.Context())
	require.NoError(t, err)
	require.Equal(t, []byte(`{"hello":"world"}`), plaintext)
	require.Equal(t, StateDecrypted, wf.DecryptState())
	require.Equal(t, plaintext, wf.Session().Result())

	// The in-band attestation record is retained for later runs.
	require.False(t, wf.Session().AttestationID().IsZero())
}

func TestEncryptDecryptBinaryFile(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	raw := []byte{0x00, 0x01, 0xfe, 0xff}
	wf.SelectFile("image.bin", raw)

	_, err = wf.Encrypt(t.Context())
	require.NoError(t, err)

	plaintext, err := wf.Decrypt(t.Context())
	require.NoError(t, err)

	var wrapped map[string]string
	require.NoError(t, json.Unmarshal(plaintext, &wrapped))
	require.Equal(t, "image.bin", wrapped["name"])
	require.Equal(t, "AAH+/w==", wrapped["content"])
}

func TestEncryptRequiresSourceFile(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	_, err = wf.Encrypt(t.Context())
	require.ErrorIs(t, err, interfaces.ErrNoSourceFile)
}

func TestEncryptRequiresWallet(t *testing.T) {
	env := newTestEnv(t)
	wf := env.newWorkflow(t, nil)
	wf.SelectFile("data.json", []byte(`{}`))

	_, err := wf.Encrypt(t.Context())
	require.ErrorIs(t, err, interfaces.ErrNoAccount)

	_, err = wf.Decrypt(t.Context())
	require.ErrorIs(t, err, interfaces.ErrNoAccount)
}

func TestDecryptRequiresSealedFile(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	_, err = wf.Decrypt(t.Context())
	require.ErrorContains(t, err, "run encrypt first")
	require.Equal(t, StateFailed, wf.DecryptState())
}

func TestDecryptRefusedForUnauthorizedAccount(t *testing.T) {
	env := newTestEnv(t)
	owner, err := wallet.Generate()
	require.NoError(t, err)
	intruder, err := wallet.Generate()
	require.NoError(t, err)

	ownerWf := env.newWorkflow(t, owner)
	ownerWf.SelectFile("data.json", []byte(`{"secret":1}`))
	_, err = ownerWf.Encrypt(t.Context())
	require.NoError(t, err)
	info := ownerWf.Session().Snapshot()

	// The intruder learns every public identifier but is not in the
	// policy's address set; the key servers refuse and the threshold is
	// never met.
	intruderWf := env.newWorkflow(t, intruder)
	intruderWf.Session().SetBlobID(info.BlobID)
	intruderWf.Session().SetOnChainFileID(info.OnChainFileID)
	intruderWf.Session().SetPolicyID(info.PolicyID)

	_, err = intruderWf.Decrypt(t.Context())
	require.ErrorIs(t, err, interfaces.ErrThresholdNotReached)
	require.Equal(t, StateFailed, intruderWf.DecryptState())
	require.Nil(t, intruderWf.Session().Result())
}

func TestEncryptResetsPreviousCycle(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	wf.SelectFile("data.json", []byte(`{"v":1}`))
	firstFile, err := wf.Encrypt(t.Context())
	require.NoError(t, err)
	_, err = wf.Decrypt(t.Context())
	require.NoError(t, err)

	secondFile, err := wf.Encrypt(t.Context())
	require.NoError(t, err)
	require.NotEqual(t, firstFile, secondFile)

	info := wf.Session().Snapshot()
	require.True(t, info.AttestationID.IsZero())
	require.False(t, info.HasResult)
	require.Equal(t, "data.json", info.SourceFileName)
}

// fakeProcessor returns a canned processing result.
type fakeProcessor struct {
	result *interfaces.ProcessResult
	got    interfaces.ProcessRequest
}

func (p *fakeProcessor) Process(ctx context.Context, req interfaces.ProcessRequest) (*interfaces.ProcessResult, error) {
	p.got = req
	return p.result, nil
}

func TestProcessRecordsAttestationAndDerivedArtifacts(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	var attestationID, derivedFileID interfaces.ObjectID
	attestationID[31] = 0xaa
	derivedFileID[31] = 0xbb
	processor := &fakeProcessor{result: &interfaces.ProcessResult{
		AttestationID:        attestationID,
		DerivedBlobID:        "blob-derived",
		DerivedOnChainFileID: derivedFileID,
	}}
	wf.processor = processor

	wf.SelectFile("data.json", []byte(`{"v":1}`))
	_, err = wf.Encrypt(t.Context())
	require.NoError(t, err)

	result, err := wf.Process(t.Context())
	require.NoError(t, err)
	require.Equal(t, attestationID, result.AttestationID)
	require.Equal(t, wf.Session().BlobID(), processor.got.BlobID)
	require.Equal(t, 2, processor.got.Threshold)

	info := wf.Session().Snapshot()
	require.Equal(t, attestationID, info.AttestationID)
	require.Equal(t, interfaces.BlobID("blob-derived"), info.DerivedBlobID)
	require.Equal(t, derivedFileID, info.DerivedOnChainFileID)
}

func TestProcessRequiresProcessorAndSealedFile(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	_, err = wf.Process(t.Context())
	require.ErrorContains(t, err, "no processing service")

	wf.processor = &fakeProcessor{}
	_, err = wf.Process(t.Context())
	require.ErrorContains(t, err, "run encrypt first")
}

func TestExplorerLink(t *testing.T) {
	env := newTestEnv(t)
	signer, err := wallet.Generate()
	require.NoError(t, err)
	wf := env.newWorkflow(t, signer)

	var id interfaces.ObjectID
	id[31] = 5
	require.Equal(t, id.String(), wf.ExplorerLink(id))

	wf.cfg.ExplorerURL = "https://explorer.example.net"
	require.Equal(t, "https://explorer.example.net/"+id.String(), wf.ExplorerLink(id))
}
