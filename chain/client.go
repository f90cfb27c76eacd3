package chain

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/sealflow/sealflow/interfaces"
)

// RPCClient implements interfaces.ChainClient against a ledger fullnode's
// JSON-RPC endpoint.
type RPCClient struct {
	rpc *rpc.Client
	log *slog.Logger
}

// Dial connects to the ledger RPC endpoint at rpcURL.
func Dial(ctx context.Context, rpcURL string, log *slog.Logger) (*RPCClient, error) {
	client, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("could not dial ledger RPC: %w", err)
	}

	return &RPCClient{rpc: client, log: log}, nil
}

// NewRPCClient wraps an existing JSON-RPC client.
func NewRPCClient(client *rpc.Client, log *slog.Logger) *RPCClient {
	return &RPCClient{rpc: client, log: log}
}

// Close releases the underlying RPC connection.
func (c *RPCClient) Close() {
	c.rpc.Close()
}

type executeTransactionResult struct {
	Digest string `json:"digest"`
}

type transactionBlockOptions struct {
	ShowEffects       bool `json:"showEffects"`
	ShowObjectChanges bool `json:"showObjectChanges"`
}

type transactionBlockResult struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
		} `json:"status"`
		Created []struct {
			Reference struct {
				ObjectID string `json:"objectId"`
			} `json:"reference"`
		} `json:"created"`
	} `json:"effects"`
}

// SubmitTransaction submits serialized transaction bytes with the given
// signature and returns the transaction digest. Created objects are not
// reported here; they must be discovered via TransactionEffects.
func (c *RPCClient) SubmitTransaction(ctx context.Context, txBytes []byte, signature []byte) (interfaces.TxDigest, error) {
	var result executeTransactionResult
	err := c.rpc.CallContext(ctx, &result, "sui_executeTransactionBlock",
		base64.StdEncoding.EncodeToString(txBytes),
		[]string{base64.StdEncoding.EncodeToString(signature)},
	)
	if err != nil {
		return "", fmt.Errorf("could not execute transaction: %w", err)
	}
	if result.Digest == "" {
		return "", fmt.Errorf("ledger returned no transaction digest")
	}

	c.log.Debug("Submitted transaction", slog.String("digest", result.Digest))

	return interfaces.TxDigest(result.Digest), nil
}

// TransactionEffects fetches the effects of a previously submitted
// transaction. Errors are transient until the ledger has finalized the
// transaction; callers poll.
func (c *RPCClient) TransactionEffects(ctx context.Context, digest interfaces.TxDigest) (*interfaces.TransactionEffects, error) {
	var result transactionBlockResult
	err := c.rpc.CallContext(ctx, &result, "sui_getTransactionBlock",
		digest.String(),
		transactionBlockOptions{ShowEffects: true, ShowObjectChanges: true},
	)
	if err != nil {
		return nil, fmt.Errorf("could not fetch transaction block: %w", err)
	}

	effects := &interfaces.TransactionEffects{Digest: digest}
	if result.Effects == nil {
		return effects, nil
	}

	effects.Status = result.Effects.Status.Status
	for _, created := range result.Effects.Created {
		id, err := interfaces.NewObjectIDFromHex(created.Reference.ObjectID)
		if err != nil {
			return nil, fmt.Errorf("ledger returned malformed object ID %q: %w", created.Reference.ObjectID, err)
		}
		effects.CreatedObjectIDs = append(effects.CreatedObjectIDs, id)
	}

	return effects, nil
}
