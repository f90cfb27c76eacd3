package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sealflow/sealflow/interfaces"
)

// DefaultPollInterval is the fixed delay between effects lookups.
const DefaultPollInterval = 500 * time.Millisecond

// ErrPollingCancelled is returned when the caller's context is cancelled
// while awaiting transaction effects. It is the only way a poll terminates
// without resolving.
var ErrPollingCancelled = errors.New("effects polling cancelled")

// BackoffPolicy determines the delay before each effects lookup attempt.
type BackoffPolicy interface {
	Next(attempt int) time.Duration
}

// FixedBackoff waits the same interval before every attempt.
type FixedBackoff struct {
	Interval time.Duration
}

func (b FixedBackoff) Next(int) time.Duration {
	return b.Interval
}

// EffectsPoller resolves the request/completion gap of ledger submission:
// the submission call returns only a digest, and created-object identifiers
// become visible in transaction effects at some later point. The poller
// repeatedly fetches effects until a created object appears. RPC errors
// during polling are transient and retried on the next tick; only context
// cancellation terminates the loop early.
type EffectsPoller struct {
	client  interfaces.ChainClient
	backoff BackoffPolicy
	log     *slog.Logger
}

// NewEffectsPoller creates a poller with the default fixed 500 ms backoff.
func NewEffectsPoller(client interfaces.ChainClient, log *slog.Logger) *EffectsPoller {
	return &EffectsPoller{
		client:  client,
		backoff: FixedBackoff{Interval: DefaultPollInterval},
		log:     log,
	}
}

// WithBackoff replaces the poller's backoff policy.
func (p *EffectsPoller) WithBackoff(backoff BackoffPolicy) *EffectsPoller {
	p.backoff = backoff
	return p
}

// AwaitCreatedObject polls the transaction's effects until a created-object
// ID is present and returns the first one. The poller always waits one
// backoff interval before the first lookup; a transaction whose effects are
// not yet visible is a pending condition, not an error.
func (p *EffectsPoller) AwaitCreatedObject(ctx context.Context, digest interfaces.TxDigest) (interfaces.ObjectID, error) {
	start := time.Now()

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return interfaces.ObjectID{}, fmt.Errorf("%w: %v", ErrPollingCancelled, ctx.Err())
		case <-time.After(p.backoff.Next(attempt)):
		}

		effects, err := p.client.TransactionEffects(ctx, digest)
		if err != nil {
			// Transient: the ledger may not have finalized the
			// transaction yet.
			p.log.Debug("Effects lookup failed, retrying",
				slog.String("digest", digest.String()),
				slog.Int("attempt", attempt),
				"err", err)
			continue
		}

		if id, ok := effects.FirstCreatedObject(); ok {
			p.log.Debug("Created object resolved",
				slog.String("digest", digest.String()),
				slog.String("object_id", id.String()),
				slog.Int("attempts", attempt+1),
				slog.Duration("duration", time.Since(start)))
			return id, nil
		}
	}
}

// Executor bundles transaction signing, submission, and effects polling into
// the submit-then-await pattern shared by policy creation, file registration,
// and attestation registration.
type Executor struct {
	Client interfaces.ChainClient
	Poller *EffectsPoller
}

// NewExecutor creates an executor over the given chain client.
func NewExecutor(client interfaces.ChainClient, log *slog.Logger) *Executor {
	return &Executor{
		Client: client,
		Poller: NewEffectsPoller(client, log),
	}
}

// ExecuteAndAwaitCreated signs and submits the transaction, then polls its
// effects until the created object ID appears.
func (e *Executor) ExecuteAndAwaitCreated(ctx context.Context, wallet interfaces.Wallet, tx *Transaction) (interfaces.ObjectID, interfaces.TxDigest, error) {
	txBytes, err := tx.Serialize()
	if err != nil {
		return interfaces.ObjectID{}, "", err
	}

	signature, err := wallet.SignTransaction(ctx, txBytes)
	if err != nil {
		return interfaces.ObjectID{}, "", fmt.Errorf("could not sign transaction: %w", err)
	}

	digest, err := e.Client.SubmitTransaction(ctx, txBytes, signature)
	if err != nil {
		return interfaces.ObjectID{}, "", err
	}

	objectID, err := e.Poller.AwaitCreatedObject(ctx, digest)
	if err != nil {
		return interfaces.ObjectID{}, digest, err
	}

	return objectID, digest, nil
}
