package executor

import (
	"context"
	"math/big"
	"sync"

	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
)

// mockRouter implements Router for testing
type mockRouter struct {
	GetRoutesFunc    func(ctx context.Context, req routing.RoutesRequest) ([]routing.Route, error)
	ExecuteRouteFunc func(ctx context.Context, handle chain.Account, route routing.Route, opts ...routing.ExecuteOption) (*routing.Route, error)

	mu       sync.Mutex
	requests []routing.RoutesRequest
	executed []routing.Route
}

func (m *mockRouter) GetRoutes(ctx context.Context, req routing.RoutesRequest) ([]routing.Route, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.GetRoutesFunc != nil {
		return m.GetRoutesFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockRouter) ExecuteRoute(ctx context.Context, handle chain.Account, route routing.Route, opts ...routing.ExecuteOption) (*routing.Route, error) {
	m.mu.Lock()
	m.executed = append(m.executed, route)
	m.mu.Unlock()
	if m.ExecuteRouteFunc != nil {
		return m.ExecuteRouteFunc(ctx, handle, route, opts...)
	}
	out := route
	out.Steps = append([]routing.Step(nil), route.Steps...)
	out.Steps[len(out.Steps)-1].Execution = &routing.Execution{Status: routing.ExecutionPending, TxHash: "0xswap"}
	return &out, nil
}

// mockWallets implements Wallets for testing
type mockWallets struct {
	address string
	account *mockAccount
	err     error
}

func (m *mockWallets) Address(string, string) (string, error) {
	return m.address, m.err
}

func (m *mockWallets) Account(context.Context, string, string, int64) (chain.Account, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.account, nil
}

// mockAccount implements chain.Account for testing
type mockAccount struct {
	chainID   int64
	allowance *big.Int

	ApproveFunc func(ctx context.Context, token, spender string, amount *big.Int) (string, error)

	approvals int
}

func (m *mockAccount) Address() string { return "0xabc" }
func (m *mockAccount) ChainID() int64  { return m.chainID }

func (m *mockAccount) GetTransactionByHash(_ context.Context, hash string) (*chain.Transaction, error) {
	return &chain.Transaction{Hash: hash, Confirmations: 1}, nil
}

func (m *mockAccount) BalanceOf(context.Context, string, string) (*big.Int, error) {
	return new(big.Int), nil
}

func (m *mockAccount) SendTransaction(context.Context, chain.TxRequest) (string, error) {
	return "0xsent", nil
}

func (m *mockAccount) Allowance(context.Context, string, string) (*big.Int, error) {
	if m.allowance == nil {
		return new(big.Int), nil
	}
	return m.allowance, nil
}

func (m *mockAccount) Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error) {
	m.approvals++
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, token, spender, amount)
	}
	return "0xapprove", nil
}
