package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow/cryptoutils"
	"github.com/sealflow/sealflow/interfaces"
)

func TestLocalWalletSignAndRecover(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)
	require.False(t, w.Address().IsZero())

	message := []byte("challenge")
	signature, err := w.SignPersonalMessage(t.Context(), message)
	require.NoError(t, err)

	signer, err := cryptoutils.RecoverAccount(message, signature)
	require.NoError(t, err)
	require.Equal(t, w.Address(), signer)
}

func TestLocalWalletFromHex(t *testing.T) {
	w, err := NewLocalWalletFromHex("0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	require.NoError(t, err)
	require.False(t, w.Address().IsZero())

	_, err = NewLocalWalletFromHex("not-a-key")
	require.Error(t, err)
}

func TestLocalWalletHonorsCancellation(t *testing.T) {
	w, err := Generate()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = w.SignPersonalMessage(ctx, []byte("m"))
	require.ErrorIs(t, err, context.Canceled)
	_, err = w.SignTransaction(ctx, []byte("tx"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestApprovalWalletRejection(t *testing.T) {
	inner, err := Generate()
	require.NoError(t, err)

	w := &ApprovalWallet{
		Inner: inner,
		Approve: func(ctx context.Context, message []byte) error {
			return errors.New("user declined")
		},
	}

	_, err = w.SignPersonalMessage(t.Context(), []byte("m"))
	require.ErrorIs(t, err, interfaces.ErrSignatureRejected)
	_, err = w.SignTransaction(t.Context(), []byte("tx"))
	require.ErrorIs(t, err, interfaces.ErrSignatureRejected)
}

func TestApprovalWalletApproval(t *testing.T) {
	inner, err := Generate()
	require.NoError(t, err)

	var seen []byte
	w := &ApprovalWallet{
		Inner: inner,
		Approve: func(ctx context.Context, message []byte) error {
			seen = message
			return nil
		},
	}
	require.Equal(t, inner.Address(), w.Address())

	message := []byte("challenge")
	signature, err := w.SignPersonalMessage(t.Context(), message)
	require.NoError(t, err)
	require.Equal(t, message, seen)

	signer, err := cryptoutils.RecoverAccount(message, signature)
	require.NoError(t, err)
	require.Equal(t, inner.Address(), signer)
}
