// Package chain provides ledger access for the sealed-file workflow: a
// JSON-RPC client for transaction submission and effects lookup, a call
// builder for the seal manager package, and the shared polling primitive
// that discovers created-object identifiers after submission.
package chain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/sealflow/sealflow/interfaces"
)

// DefaultGasBudget is the fixed gas budget set on every workflow transaction.
const DefaultGasBudget = 10_000_000

// CallArg is a single argument of a move call. Pure values are serialized
// inline; object arguments reference an on-chain object by ID.
type CallArg struct {
	Kind  string `json:"kind"` // "pure" or "object"
	Value string `json:"value"`
}

// PureBytes creates a pure argument carrying raw bytes, hex-encoded.
func PureBytes(b []byte) CallArg {
	return CallArg{Kind: "pure", Value: hex.EncodeToString(b)}
}

// PureString creates a pure argument carrying a string value.
func PureString(s string) CallArg {
	return CallArg{Kind: "pure", Value: s}
}

// PureAddresses creates a pure argument carrying a vector of addresses.
func PureAddresses(addrs ...interfaces.AccountAddress) CallArg {
	var joined string
	for i, a := range addrs {
		if i > 0 {
			joined += ","
		}
		joined += a.String()
	}
	return CallArg{Kind: "pure", Value: joined}
}

// Object creates an argument referencing an on-chain object.
func Object(id interfaces.ObjectID) CallArg {
	return CallArg{Kind: "object", Value: id.String()}
}

// MoveCall is one call of a transaction. Target is the fully qualified
// function name, e.g. "0xabc::seal_manager::create_access_policy".
type MoveCall struct {
	Target string    `json:"target"`
	Args   []CallArg `json:"args"`
}

// Transaction is an unsigned ledger transaction under construction. Its
// serialized form doubles as the proof-of-authorization handed to key
// servers, so serialization must be deterministic.
type Transaction struct {
	Sender    string     `json:"sender"`
	ChainID   string     `json:"chainId"`
	GasBudget uint64     `json:"gasBudget"`
	Calls     []MoveCall `json:"calls"`
}

// NewTransaction creates an empty transaction for the given sender with the
// default gas budget.
func NewTransaction(sender interfaces.AccountAddress, chainID string) *Transaction {
	return &Transaction{
		Sender:    sender.String(),
		ChainID:   chainID,
		GasBudget: DefaultGasBudget,
	}
}

// MoveCall appends a call to the transaction and returns the transaction for
// chaining.
func (t *Transaction) MoveCall(target string, args ...CallArg) *Transaction {
	t.Calls = append(t.Calls, MoveCall{Target: target, Args: args})
	return t
}

// Serialize returns the canonical byte representation of the unsigned
// transaction.
func (t *Transaction) Serialize() ([]byte, error) {
	txBytes, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("could not serialize transaction: %w", err)
	}
	return txBytes, nil
}
