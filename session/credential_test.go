package session

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sealflow/sealflow/interfaces"
	"github.com/sealflow/sealflow/wallet"
)

func testPackageID(t *testing.T) interfaces.ObjectID {
	t.Helper()
	var id interfaces.ObjectID
	id[0] = 0xab
	return id
}

func TestCredentialSignAndVerify(t *testing.T) {
	signer, err := wallet.Generate()
	require.NoError(t, err)
	packageID := testPackageID(t)

	cred, err := New(signer.Address(), packageID, 0)
	require.NoError(t, err)
	require.Equal(t, signer.Address(), cred.Account())
	require.Equal(t, packageID, cred.PackageID())

	// Unsigned credentials are not usable.
	require.ErrorIs(t, cred.Verify(time.Now()), interfaces.ErrCredentialNotSigned)

	signature, err := signer.SignPersonalMessage(t.Context(), cred.ChallengeMessage())
	require.NoError(t, err)
	require.NoError(t, cred.BindSignature(signature))
	require.Equal(t, signature, cred.Signature())

	require.NoError(t, cred.Verify(time.Now()))
	require.ErrorIs(t, cred.Verify(cred.ExpiresAt().Add(time.Second)), interfaces.ErrCredentialExpired)
}

func TestCredentialRejectsForeignSignature(t *testing.T) {
	signer, err := wallet.Generate()
	require.NoError(t, err)
	other, err := wallet.Generate()
	require.NoError(t, err)

	cred, err := New(signer.Address(), testPackageID(t), 0)
	require.NoError(t, err)

	signature, err := other.SignPersonalMessage(t.Context(), cred.ChallengeMessage())
	require.NoError(t, err)

	require.ErrorContains(t, cred.BindSignature(signature), "scoped to")
	require.Nil(t, cred.Signature())
}

func TestCredentialRequiresAccount(t *testing.T) {
	_, err := New(interfaces.AccountAddress{}, testPackageID(t), 0)
	require.ErrorIs(t, err, interfaces.ErrNoAccount)
}

func TestChallengeMessageRoundTrip(t *testing.T) {
	signer, err := wallet.Generate()
	require.NoError(t, err)
	packageID := testPackageID(t)

	cred, err := New(signer.Address(), packageID, 3*time.Minute)
	require.NoError(t, err)

	claims, err := ParseChallengeMessage(cred.ChallengeMessage())
	require.NoError(t, err)
	require.Equal(t, signer.Address(), claims.Account)
	require.Equal(t, packageID, claims.PackageID)
	require.Equal(t, 3*time.Minute, claims.TTL)
	require.Equal(t, cred.ExpiresAt(), claims.ExpiresAt())
}

func TestParseChallengeMessageRejectsGarbage(t *testing.T) {
	_, err := ParseChallengeMessage([]byte("not a challenge"))
	require.ErrorContains(t, err, "header")

	_, err = ParseChallengeMessage([]byte("Sealflow session credential\npackage: 0xzz\n"))
	require.Error(t, err)
}

func TestVerifyPresented(t *testing.T) {
	signer, err := wallet.Generate()
	require.NoError(t, err)
	packageID := testPackageID(t)

	cred, err := New(signer.Address(), packageID, 0)
	require.NoError(t, err)
	message := cred.ChallengeMessage()
	signature, err := signer.SignPersonalMessage(t.Context(), message)
	require.NoError(t, err)

	claims, err := VerifyPresented(message, signature, packageID, time.Now())
	require.NoError(t, err)
	require.Equal(t, signer.Address(), claims.Account)

	// Wrong package scope.
	var otherPackage interfaces.ObjectID
	otherPackage[0] = 9
	_, err = VerifyPresented(message, signature, otherPackage, time.Now())
	require.ErrorContains(t, err, "scoped to package")

	// Expired at presentation time.
	_, err = VerifyPresented(message, signature, packageID, cred.ExpiresAt().Add(time.Second))
	require.ErrorIs(t, err, interfaces.ErrCredentialExpired)
}

func TestVerifyPresentedRejectsTamperedMessage(t *testing.T) {
	signer, err := wallet.Generate()
	require.NoError(t, err)
	other, err := wallet.Generate()
	require.NoError(t, err)
	packageID := testPackageID(t)

	// A message claiming another account with our signature must not verify.
	created := time.Now().UTC().Truncate(time.Second)
	message := []byte(fmt.Sprintf("Sealflow session credential\npackage: %s\naccount: %s\nnonce: n\ncreated: %s\nttl: %s\n",
		packageID, other.Address(), created.Format(time.RFC3339), 10*time.Minute))
	signature, err := signer.SignPersonalMessage(t.Context(), message)
	require.NoError(t, err)

	_, err = VerifyPresented(message, signature, packageID, time.Now())
	require.ErrorContains(t, err, "claims account")
}
