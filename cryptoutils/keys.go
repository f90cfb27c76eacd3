// Package cryptoutils provides the signing primitives shared by the wallet
// and the session credential: personal-message hashing, secp256k1 signing,
// and account recovery from signatures.
package cryptoutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sealflow/sealflow/interfaces"
)

// personalMessagePrefix domain-separates off-chain personal-message
// signatures from transaction signatures.
const personalMessagePrefix = "\x19Sealflow Signed Message:\n"

// PersonalMessageDigest returns the digest a wallet signs for an off-chain
// personal message. The length prefix prevents a signed message from being
// a valid prefix of another.
func PersonalMessageDigest(message []byte) []byte {
	msg := append([]byte(personalMessagePrefix+strconv.Itoa(len(message))), message...)
	return crypto.Keccak256(msg)
}

// TransactionSigningDigest returns the digest a wallet signs for serialized
// transaction bytes.
func TransactionSigningDigest(txBytes []byte) []byte {
	return crypto.Keccak256(txBytes)
}

// AccountFromPubkey derives the 32-byte ledger account address from a
// secp256k1 public key.
func AccountFromPubkey(pub *ecdsa.PublicKey) interfaces.AccountAddress {
	pubBytes := crypto.FromECDSAPub(pub)

	var addr interfaces.AccountAddress
	copy(addr[:], crypto.Keccak256(pubBytes[1:]))
	return addr
}

// SignDigest produces a 65-byte recoverable signature over a 32-byte digest.
func SignDigest(digest []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	if len(digest) != 32 {
		return nil, errors.New("digest must be 32 bytes")
	}
	return crypto.Sign(digest, priv)
}

// SignPersonalMessage signs an off-chain personal message.
func SignPersonalMessage(message []byte, priv *ecdsa.PrivateKey) ([]byte, error) {
	return SignDigest(PersonalMessageDigest(message), priv)
}

// RecoverAccount recovers the signing account from a personal-message
// signature.
func RecoverAccount(message []byte, signature []byte) (interfaces.AccountAddress, error) {
	if len(signature) != 65 {
		return interfaces.AccountAddress{}, fmt.Errorf("invalid signature length %d", len(signature))
	}

	pub, err := crypto.SigToPub(PersonalMessageDigest(message), signature)
	if err != nil {
		return interfaces.AccountAddress{}, fmt.Errorf("could not recover public key: %w", err)
	}

	return AccountFromPubkey(pub), nil
}
