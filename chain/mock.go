package chain

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sealflow/sealflow/interfaces"
)

// MockChainClient implements interfaces.ChainClient for testing. The behavior
// is determined by how the mock is configured in tests.
type MockChainClient struct {
	mock.Mock
}

func (m *MockChainClient) SubmitTransaction(ctx context.Context, txBytes []byte, signature []byte) (interfaces.TxDigest, error) {
	args := m.Called(ctx, txBytes, signature)
	return args.Get(0).(interfaces.TxDigest), args.Error(1)
}

func (m *MockChainClient) TransactionEffects(ctx context.Context, digest interfaces.TxDigest) (*interfaces.TransactionEffects, error) {
	args := m.Called(ctx, digest)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.TransactionEffects), args.Error(1)
}
