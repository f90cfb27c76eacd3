// Package workflow implements the sealed-file workflow orchestrator. The
// SealWorkflow drives the encrypt, process, and decrypt pipelines over the
// ledger, blob store, threshold cipher, and attestation collaborators; it
// exclusively owns the per-user SealSession and enforces at most one active
// pipeline per session.
package workflow

import (
	"sync"

	"github.com/sealflow/sealflow/interfaces"
)

// SourceFile is the user-selected input of the encrypt pipeline.
type SourceFile struct {
	Name string
	Data []byte
}

// SealSession holds the identifiers accumulated across pipeline runs for one
// user session. It is mutated exclusively through its setters, all of which
// are called by the orchestrator only.
type SealSession struct {
	mu sync.RWMutex

	policyID             interfaces.ObjectID
	onChainFileID        interfaces.ObjectID
	attestationID        interfaces.ObjectID
	blobID               interfaces.BlobID
	derivedBlobID        interfaces.BlobID
	derivedOnChainFileID interfaces.ObjectID

	sourceFile *SourceFile
	result     []byte
}

// NewSession creates an empty session.
func NewSession() *SealSession {
	return &SealSession{}
}

// Reset clears every identifier and the decrypted result at the start of a
// new encrypt cycle. The selected source file is preserved so the user does
// not have to re-select it.
func (s *SealSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policyID = interfaces.ObjectID{}
	s.onChainFileID = interfaces.ObjectID{}
	s.attestationID = interfaces.ObjectID{}
	s.blobID = ""
	s.derivedBlobID = ""
	s.derivedOnChainFileID = interfaces.ObjectID{}
	s.result = nil
}

func (s *SealSession) SetSourceFile(file *SourceFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceFile = file
}

func (s *SealSession) SourceFile() *SourceFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sourceFile
}

func (s *SealSession) SetPolicyID(id interfaces.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policyID = id
}

func (s *SealSession) PolicyID() interfaces.ObjectID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policyID
}

func (s *SealSession) SetOnChainFileID(id interfaces.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChainFileID = id
}

func (s *SealSession) OnChainFileID() interfaces.ObjectID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onChainFileID
}

func (s *SealSession) SetAttestationID(id interfaces.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attestationID = id
}

func (s *SealSession) AttestationID() interfaces.ObjectID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attestationID
}

func (s *SealSession) SetBlobID(id interfaces.BlobID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobID = id
}

func (s *SealSession) BlobID() interfaces.BlobID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.blobID
}

// SetDerivedArtifacts records the identifiers of the refined artifact the
// processing service produced.
func (s *SealSession) SetDerivedArtifacts(blobID interfaces.BlobID, fileID interfaces.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.derivedBlobID = blobID
	s.derivedOnChainFileID = fileID
}

func (s *SealSession) SetResult(plaintext []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.result = plaintext
}

// Result returns the decrypted plaintext, or nil if no decrypt pipeline has
// completed since the last reset.
func (s *SealSession) Result() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.result
}

// Info is a point-in-time copy of the session's identifiers for display.
type Info struct {
	PolicyID             interfaces.ObjectID
	OnChainFileID        interfaces.ObjectID
	AttestationID        interfaces.ObjectID
	BlobID               interfaces.BlobID
	DerivedBlobID        interfaces.BlobID
	DerivedOnChainFileID interfaces.ObjectID
	SourceFileName       string
	HasResult            bool
}

// Snapshot returns a consistent copy of the session state.
func (s *SealSession) Snapshot() Info {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := Info{
		PolicyID:             s.policyID,
		OnChainFileID:        s.onChainFileID,
		AttestationID:        s.attestationID,
		BlobID:               s.blobID,
		DerivedBlobID:        s.derivedBlobID,
		DerivedOnChainFileID: s.derivedOnChainFileID,
		HasResult:            s.result != nil,
	}
	if s.sourceFile != nil {
		info.SourceFileName = s.sourceFile.Name
	}
	return info
}
