// Package cipher implements the threshold encryption scheme: plaintext is
// sealed under a fresh data key, the data key is split k-of-n with Shamir
// secret sharing, and the shares are held by independent key servers that
// gate their release on a valid session credential and an authorization
// transaction. The envelope wire format is self-describing: the envelope ID,
// threshold, and share-holder count are all parseable back out of the
// stored bytes.
package cipher

import (
	"bytes"
	"fmt"

	"github.com/sealflow/sealflow/interfaces"
)

// envelopeMagic prefixes every serialized envelope. The trailing byte is the
// format version.
var envelopeMagic = []byte{'S', 'F', 'E', 1}

// Envelope is the parsed form of an encrypted payload.
type Envelope struct {
	ID         interfaces.EnvelopeID
	Threshold  int
	TotalShare int
	Nonce      []byte
	Ciphertext []byte
}

// Serialize encodes the envelope into its wire format.
func (e *Envelope) Serialize() ([]byte, error) {
	if len(e.ID) == 0 || len(e.ID) > 255 {
		return nil, fmt.Errorf("invalid envelope ID length %d", len(e.ID))
	}
	if e.Threshold < 1 || e.Threshold > 255 || e.TotalShare < e.Threshold || e.TotalShare > 255 {
		return nil, fmt.Errorf("invalid threshold %d of %d", e.Threshold, e.TotalShare)
	}
	if len(e.Nonce) != aeadNonceSize {
		return nil, fmt.Errorf("invalid nonce length %d", len(e.Nonce))
	}

	var buf bytes.Buffer
	buf.Write(envelopeMagic)
	buf.WriteByte(byte(e.Threshold))
	buf.WriteByte(byte(e.TotalShare))
	buf.WriteByte(byte(len(e.ID)))
	buf.Write(e.ID.Bytes())
	buf.Write(e.Nonce)
	buf.Write(e.Ciphertext)
	return buf.Bytes(), nil
}

// ParseEnvelopeID extracts the envelope ID embedded in serialized envelope
// bytes.
func ParseEnvelopeID(data []byte) (interfaces.EnvelopeID, error) {
	envelope, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	return envelope.ID, nil
}

// ParseEnvelope decodes envelope bytes. It is the defensive cross-check used
// by the workflow: the ID embedded in stored ciphertext must match the ID
// derived before encryption.
func ParseEnvelope(data []byte) (*Envelope, error) {
	if len(data) < len(envelopeMagic)+3 {
		return nil, fmt.Errorf("envelope too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:len(envelopeMagic)], envelopeMagic) {
		return nil, fmt.Errorf("invalid envelope magic")
	}

	rest := data[len(envelopeMagic):]
	threshold := int(rest[0])
	total := int(rest[1])
	idLen := int(rest[2])
	rest = rest[3:]

	if threshold < 1 || total < threshold {
		return nil, fmt.Errorf("invalid threshold %d of %d", threshold, total)
	}
	if len(rest) < idLen+aeadNonceSize {
		return nil, fmt.Errorf("envelope truncated")
	}

	id := interfaces.EnvelopeID(bytes.Clone(rest[:idLen]))
	nonce := bytes.Clone(rest[idLen : idLen+aeadNonceSize])
	ciphertext := bytes.Clone(rest[idLen+aeadNonceSize:])

	return &Envelope{
		ID:         id,
		Threshold:  threshold,
		TotalShare: total,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}
