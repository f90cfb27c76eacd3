// Package interfaces defines the core interfaces and types for the sealed-file
// workflow. It provides the contract between the orchestrator and its
// collaborators (ledger, blob store, threshold cipher, wallet, attestation)
// without implementation details.
package interfaces

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ObjectID is a 32-byte identifier of an on-chain object (policy, file
// record, attestation record).
type ObjectID [32]byte

// NewObjectIDFromBytes creates an object ID from raw bytes.
func NewObjectIDFromBytes(source []byte) (ObjectID, error) {
	if len(source) != 32 {
		return ObjectID{}, errors.New("invalid object ID length: must be 32 bytes")
	}

	var id ObjectID
	copy(id[:], source)
	return id, nil
}

// NewObjectIDFromHex creates an object ID from a hex string, with or without
// a 0x prefix.
func NewObjectIDFromHex(source string) (ObjectID, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return ObjectID{}, errors.New("invalid object ID length: hex string must be 64 characters")
	}

	idBytes, err := hex.DecodeString(clean)
	if err != nil {
		return ObjectID{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewObjectIDFromBytes(idBytes)
}

// String returns the 0x-prefixed hex representation.
func (id ObjectID) String() string {
	return "0x" + hex.EncodeToString(id[:])
}

// Bytes returns the raw 32-byte identifier.
func (id ObjectID) Bytes() []byte {
	return id[:]
}

// Equal compares two object IDs.
func (id ObjectID) Equal(other ObjectID) bool {
	return id == other
}

// IsZero reports whether the ID is unset.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}

// AccountAddress is a 32-byte ledger account address.
type AccountAddress [32]byte

// NewAccountAddressFromHex creates an account address from a hex string, with
// or without a 0x prefix.
func NewAccountAddressFromHex(source string) (AccountAddress, error) {
	clean := strings.TrimPrefix(source, "0x")
	if len(clean) != 64 {
		return AccountAddress{}, errors.New("invalid account address length: hex string must be 64 characters")
	}

	addrBytes, err := hex.DecodeString(clean)
	if err != nil {
		return AccountAddress{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var addr AccountAddress
	copy(addr[:], addrBytes)
	return addr, nil
}

// String returns the 0x-prefixed hex representation.
func (addr AccountAddress) String() string {
	return "0x" + hex.EncodeToString(addr[:])
}

// Bytes returns the raw 32-byte address.
func (addr AccountAddress) Bytes() []byte {
	return addr[:]
}

// IsZero reports whether the address is unset.
func (addr AccountAddress) IsZero() bool {
	return addr == AccountAddress{}
}

// TxDigest identifies a submitted ledger transaction. It is returned
// synchronously by transaction submission and used to look up effects.
type TxDigest string

// String returns the digest as a string.
func (d TxDigest) String() string {
	return string(d)
}

// EnvelopeNonceSize is the number of random bytes appended to the policy
// object ID when deriving an envelope identifier.
const EnvelopeNonceSize = 5

// EnvelopeID identifies an encrypted envelope. It is derived from the access
// policy object ID concatenated with a fresh random nonce, binding every
// ciphertext to exactly one policy while keeping repeated encryptions of the
// same policy distinct.
type EnvelopeID []byte

// NewEnvelopeID derives a fresh envelope ID for the given policy.
func NewEnvelopeID(policy ObjectID) (EnvelopeID, error) {
	nonce := make([]byte, EnvelopeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("could not generate envelope nonce: %w", err)
	}

	return EnvelopeID(append(policy.Bytes(), nonce...)), nil
}

// NewEnvelopeIDFromHex parses an envelope ID from its hex representation.
func NewEnvelopeIDFromHex(source string) (EnvelopeID, error) {
	clean := strings.TrimPrefix(source, "0x")
	idBytes, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid envelope ID hex: %w", err)
	}
	if len(idBytes) != 32+EnvelopeNonceSize {
		return nil, fmt.Errorf("invalid envelope ID length %d", len(idBytes))
	}

	return EnvelopeID(idBytes), nil
}

// Hex returns the hex representation without a prefix. This is the canonical
// form passed to key servers and embedded in the envelope.
func (id EnvelopeID) Hex() string {
	return hex.EncodeToString(id)
}

// Bytes returns the raw identifier bytes.
func (id EnvelopeID) Bytes() []byte {
	return []byte(id)
}

// PolicyID extracts the access policy object ID the envelope is bound to.
func (id EnvelopeID) PolicyID() (ObjectID, error) {
	if len(id) != 32+EnvelopeNonceSize {
		return ObjectID{}, fmt.Errorf("invalid envelope ID length %d", len(id))
	}
	return NewObjectIDFromBytes(id[:32])
}

// Equal compares two envelope IDs.
func (id EnvelopeID) Equal(other EnvelopeID) bool {
	return bytes.Equal(id, other)
}

// BlobID is the content-derived identifier of a stored blob.
type BlobID string

// String returns the blob ID as a string.
func (id BlobID) String() string {
	return string(id)
}

// StoredBlob describes a blob persisted in content-addressed storage.
type StoredBlob struct {
	BlobID      BlobID `json:"blobId"`
	Size        uint64 `json:"size"`
	StorageSize uint64 `json:"storageSize"`
	AccessURL   string `json:"accessUrl"`
}

// FileMetadata is the metadata recorded on-chain alongside an encrypted file
// reference. Field names follow the storage network's conventions.
type FileMetadata struct {
	AccessURL   string `json:"walrusUrl"`
	Size        uint64 `json:"size"`
	StorageSize uint64 `json:"storageSize"`
}

// Marshal returns the metadata's canonical JSON bytes as recorded on-chain.
func (m FileMetadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEffects is the queryable outcome of a ledger transaction. The
// ledger does not return created objects synchronously on submission; they
// become visible here once the transaction is final.
type TransactionEffects struct {
	Digest           TxDigest
	Status           string
	CreatedObjectIDs []ObjectID
}

// FirstCreatedObject returns the first created object ID, if any.
func (e *TransactionEffects) FirstCreatedObject() (ObjectID, bool) {
	if e == nil || len(e.CreatedObjectIDs) == 0 {
		return ObjectID{}, false
	}
	return e.CreatedObjectIDs[0], true
}
