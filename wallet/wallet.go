// Package wallet provides interfaces.Wallet implementations. LocalWallet
// signs with an in-process secp256k1 key. ApprovalWallet wraps another
// wallet behind an approval callback, modeling a user-mediated signing
// surface: the call suspends until the approver resolves or the context is
// cancelled.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/sealflow/sealflow/cryptoutils"
	"github.com/sealflow/sealflow/interfaces"
)

// LocalWallet holds a secp256k1 private key and signs immediately.
type LocalWallet struct {
	priv    *ecdsa.PrivateKey
	address interfaces.AccountAddress
}

// NewLocalWallet creates a wallet around an existing private key.
func NewLocalWallet(priv *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{
		priv:    priv,
		address: cryptoutils.AccountFromPubkey(&priv.PublicKey),
	}
}

// NewLocalWalletFromHex creates a wallet from a hex-encoded private key,
// with or without a 0x prefix.
func NewLocalWalletFromHex(privHex string) (*LocalWallet, error) {
	priv, err := crypto.HexToECDSA(strings.TrimPrefix(privHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewLocalWallet(priv), nil
}

// Generate creates a wallet with a fresh random key.
func Generate() (*LocalWallet, error) {
	priv, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}
	return NewLocalWallet(priv), nil
}

// Address returns the wallet's account address.
func (w *LocalWallet) Address() interfaces.AccountAddress {
	return w.address
}

// SignTransaction signs serialized transaction bytes.
func (w *LocalWallet) SignTransaction(ctx context.Context, txBytes []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cryptoutils.SignDigest(cryptoutils.TransactionSigningDigest(txBytes), w.priv)
}

// SignPersonalMessage signs an off-chain personal message.
func (w *LocalWallet) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cryptoutils.SignPersonalMessage(message, w.priv)
}

// ApprovalFunc decides whether a signing request proceeds. It may block
// until the user resolves the request; returning an error rejects the
// signature. Implementations must honor context cancellation.
type ApprovalFunc func(ctx context.Context, message []byte) error

// ApprovalWallet gates every signing operation of the wrapped wallet behind
// an approval callback.
type ApprovalWallet struct {
	Inner   interfaces.Wallet
	Approve ApprovalFunc
}

// Address returns the wrapped wallet's account address.
func (w *ApprovalWallet) Address() interfaces.AccountAddress {
	return w.Inner.Address()
}

// SignTransaction requests approval and then delegates to the wrapped
// wallet. A rejected approval surfaces as ErrSignatureRejected.
func (w *ApprovalWallet) SignTransaction(ctx context.Context, txBytes []byte) ([]byte, error) {
	if err := w.Approve(ctx, txBytes); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
	}
	return w.Inner.SignTransaction(ctx, txBytes)
}

// SignPersonalMessage requests approval and then delegates to the wrapped
// wallet. A rejected approval surfaces as ErrSignatureRejected.
func (w *ApprovalWallet) SignPersonalMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := w.Approve(ctx, message); err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignatureRejected, err)
	}
	return w.Inner.SignPersonalMessage(ctx, message)
}
