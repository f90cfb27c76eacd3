// Package session implements the short-lived, wallet-signed session
// credential that authorizes key-share fetches. A credential is scoped to
// one account and one package, carries a fixed time-to-live, and becomes
// usable only after the holder's signature over its canonical challenge
// message has been bound to it. Credentials are never persisted.
package session

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sealflow/sealflow/cryptoutils"
	"github.com/sealflow/sealflow/interfaces"
)

// DefaultTTL is the credential lifetime.
const DefaultTTL = 10 * time.Minute

const messageHeader = "Sealflow session credential"

// Credential is a session credential. It implements interfaces.Credential.
type Credential struct {
	account   interfaces.AccountAddress
	packageID interfaces.ObjectID
	nonce     string
	createdAt time.Time
	ttl       time.Duration
	signature []byte
}

// New creates an unsigned credential for the given account and package
// scope. A non-positive ttl falls back to DefaultTTL.
func New(account interfaces.AccountAddress, packageID interfaces.ObjectID, ttl time.Duration) (*Credential, error) {
	if account.IsZero() {
		return nil, interfaces.ErrNoAccount
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Credential{
		account:   account,
		packageID: packageID,
		nonce:     uuid.NewString(),
		createdAt: time.Now().UTC().Truncate(time.Second),
		ttl:       ttl,
	}, nil
}

// Account returns the account the credential is scoped to.
func (c *Credential) Account() interfaces.AccountAddress {
	return c.account
}

// PackageID returns the package scope.
func (c *Credential) PackageID() interfaces.ObjectID {
	return c.packageID
}

// ChallengeMessage returns the canonical bytes the wallet signs. The format
// is line-oriented and self-describing so key servers can validate a
// credential from the message alone.
func (c *Credential) ChallengeMessage() []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", messageHeader)
	fmt.Fprintf(&b, "package: %s\n", c.packageID)
	fmt.Fprintf(&b, "account: %s\n", c.account)
	fmt.Fprintf(&b, "nonce: %s\n", c.nonce)
	fmt.Fprintf(&b, "created: %s\n", c.createdAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "ttl: %s\n", c.ttl)
	return []byte(b.String())
}

// Signature returns the bound signature, or nil if the credential has not
// been signed yet.
func (c *Credential) Signature() []byte {
	return c.signature
}

// BindSignature verifies that the signature matches the credential's account
// and binds it, making the credential usable.
func (c *Credential) BindSignature(signature []byte) error {
	signer, err := cryptoutils.RecoverAccount(c.ChallengeMessage(), signature)
	if err != nil {
		return fmt.Errorf("could not verify challenge signature: %w", err)
	}
	if signer != c.account {
		return fmt.Errorf("challenge signed by %s, credential scoped to %s", signer, c.account)
	}

	c.signature = signature
	return nil
}

// ExpiresAt returns the credential's expiry time.
func (c *Credential) ExpiresAt() time.Time {
	return c.createdAt.Add(c.ttl)
}

// Verify checks that the credential is signed, unexpired at now, and that
// the bound signature matches the credential's account.
func (c *Credential) Verify(now time.Time) error {
	if len(c.signature) == 0 {
		return interfaces.ErrCredentialNotSigned
	}
	if now.After(c.ExpiresAt()) {
		return interfaces.ErrCredentialExpired
	}

	signer, err := cryptoutils.RecoverAccount(c.ChallengeMessage(), c.signature)
	if err != nil {
		return fmt.Errorf("could not verify challenge signature: %w", err)
	}
	if signer != c.account {
		return fmt.Errorf("challenge signed by %s, credential scoped to %s", signer, c.account)
	}

	return nil
}

// Claims are the fields parsed back out of a challenge message.
type Claims struct {
	Account   interfaces.AccountAddress
	PackageID interfaces.ObjectID
	Nonce     string
	CreatedAt time.Time
	TTL       time.Duration
}

// ExpiresAt returns the claimed expiry time.
func (cl *Claims) ExpiresAt() time.Time {
	return cl.CreatedAt.Add(cl.TTL)
}

// ParseChallengeMessage parses a canonical challenge message. Key servers
// use this to validate a presented credential without any shared state.
func ParseChallengeMessage(message []byte) (*Claims, error) {
	scanner := bufio.NewScanner(bytes.NewReader(message))

	if !scanner.Scan() || scanner.Text() != messageHeader {
		return nil, fmt.Errorf("invalid challenge message header")
	}

	fields := map[string]string{}
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, value, found := strings.Cut(line, ": ")
		if !found {
			return nil, fmt.Errorf("malformed challenge message line %q", line)
		}
		fields[key] = value
	}

	for _, required := range []string{"package", "account", "nonce", "created", "ttl"} {
		if _, ok := fields[required]; !ok {
			return nil, fmt.Errorf("challenge message missing %q field", required)
		}
	}

	packageID, err := interfaces.NewObjectIDFromHex(fields["package"])
	if err != nil {
		return nil, fmt.Errorf("invalid package field: %w", err)
	}
	account, err := interfaces.NewAccountAddressFromHex(fields["account"])
	if err != nil {
		return nil, fmt.Errorf("invalid account field: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339, fields["created"])
	if err != nil {
		return nil, fmt.Errorf("invalid created field: %w", err)
	}
	ttl, err := time.ParseDuration(fields["ttl"])
	if err != nil {
		return nil, fmt.Errorf("invalid ttl field: %w", err)
	}

	return &Claims{
		Account:   account,
		PackageID: packageID,
		Nonce:     fields["nonce"],
		CreatedAt: createdAt,
		TTL:       ttl,
	}, nil
}

// VerifyPresented validates a challenge message and signature as presented
// to a key server: the message must parse, be unexpired at now, be scoped to
// packageID, and carry a signature by the claimed account.
func VerifyPresented(message, signature []byte, packageID interfaces.ObjectID, now time.Time) (*Claims, error) {
	claims, err := ParseChallengeMessage(message)
	if err != nil {
		return nil, err
	}

	if claims.PackageID != packageID {
		return nil, fmt.Errorf("credential scoped to package %s, expected %s", claims.PackageID, packageID)
	}
	if now.After(claims.ExpiresAt()) {
		return nil, interfaces.ErrCredentialExpired
	}

	signer, err := cryptoutils.RecoverAccount(message, signature)
	if err != nil {
		return nil, fmt.Errorf("could not verify credential signature: %w", err)
	}
	if signer != claims.Account {
		return nil, fmt.Errorf("credential signed by %s, claims account %s", signer, claims.Account)
	}

	return claims, nil
}
