package cryptoutils

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestSignPersonalMessageRoundTrip(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := AccountFromPubkey(&priv.PublicKey)

	message := []byte("hello")
	signature, err := SignPersonalMessage(message, priv)
	require.NoError(t, err)
	require.Len(t, signature, 65)

	recovered, err := RecoverAccount(message, signature)
	require.NoError(t, err)
	require.Equal(t, account, recovered)
}

func TestRecoverAccountRejectsTamperedMessage(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)
	account := AccountFromPubkey(&priv.PublicKey)

	signature, err := SignPersonalMessage([]byte("original"), priv)
	require.NoError(t, err)

	recovered, err := RecoverAccount([]byte("tampered"), signature)
	if err == nil {
		require.NotEqual(t, account, recovered)
	}
}

func TestRecoverAccountRejectsBadSignatureLength(t *testing.T) {
	_, err := RecoverAccount([]byte("m"), []byte{1, 2, 3})
	require.ErrorContains(t, err, "signature length")
}

func TestPersonalMessageDigestLengthPrefixed(t *testing.T) {
	// "ab" signed as a whole must not collide with "a" followed by "b"
	// in another message's prefix position.
	require.NotEqual(t, PersonalMessageDigest([]byte("ab")), PersonalMessageDigest([]byte("a")))
	require.Len(t, PersonalMessageDigest([]byte("x")), 32)
	require.Len(t, TransactionSigningDigest([]byte("tx")), 32)
}

func TestSignDigestValidatesLength(t *testing.T) {
	priv, err := crypto.GenerateKey()
	require.NoError(t, err)

	_, err = SignDigest([]byte("short"), priv)
	require.ErrorContains(t, err, "32 bytes")
}
