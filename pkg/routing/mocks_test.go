package routing

import (
	"context"
	"math/big"
	"sync"

	"github.com/chainsafe/swap-coordinator/pkg/chain"
)

// mockAccount implements chain.Account for testing
type mockAccount struct {
	mu sync.Mutex

	address string
	chainID int64

	GetTransactionByHashFunc func(ctx context.Context, hash string) (*chain.Transaction, error)
	BalanceOfFunc            func(ctx context.Context, owner, token string) (*big.Int, error)
	SendTransactionFunc      func(ctx context.Context, req chain.TxRequest) (string, error)
	AllowanceFunc            func(ctx context.Context, token, spender string) (*big.Int, error)
	ApproveFunc              func(ctx context.Context, token, spender string, amount *big.Int) (string, error)

	sent      []chain.TxRequest
	approvals int
}

func (m *mockAccount) Address() string { return m.address }
func (m *mockAccount) ChainID() int64  { return m.chainID }

func (m *mockAccount) GetTransactionByHash(ctx context.Context, hash string) (*chain.Transaction, error) {
	if m.GetTransactionByHashFunc != nil {
		return m.GetTransactionByHashFunc(ctx, hash)
	}
	return &chain.Transaction{Hash: hash, Confirmations: 1}, nil
}

func (m *mockAccount) BalanceOf(ctx context.Context, owner, token string) (*big.Int, error) {
	if m.BalanceOfFunc != nil {
		return m.BalanceOfFunc(ctx, owner, token)
	}
	return big.NewInt(0), nil
}

func (m *mockAccount) SendTransaction(ctx context.Context, req chain.TxRequest) (string, error) {
	m.mu.Lock()
	m.sent = append(m.sent, req)
	m.mu.Unlock()
	if m.SendTransactionFunc != nil {
		return m.SendTransactionFunc(ctx, req)
	}
	return "0xsent", nil
}

func (m *mockAccount) Allowance(ctx context.Context, token, spender string) (*big.Int, error) {
	if m.AllowanceFunc != nil {
		return m.AllowanceFunc(ctx, token, spender)
	}
	return new(big.Int), nil
}

func (m *mockAccount) Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error) {
	m.mu.Lock()
	m.approvals++
	m.mu.Unlock()
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, token, spender, amount)
	}
	return "0xapprove", nil
}
