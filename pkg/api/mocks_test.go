package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/swap-coordinator/pkg/coordinator"
	"github.com/chainsafe/swap-coordinator/pkg/quote"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
	"github.com/chainsafe/swap-coordinator/pkg/swapstore"
)

type mockQuoter struct {
	GetQuoteFunc func(ctx context.Context, req quote.Request) (*swap.Quote, error)

	mu       sync.Mutex
	requests []quote.Request
}

func (m *mockQuoter) GetQuote(ctx context.Context, req quote.Request) (*swap.Quote, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.GetQuoteFunc != nil {
		return m.GetQuoteFunc(ctx, req)
	}
	return nil, fmt.Errorf("GetQuote not mocked")
}

func (m *mockQuoter) MinAmount(context.Context, quote.Request) decimal.Decimal {
	return decimal.Zero
}

type mockService struct {
	NewSwapFunc func(ctx context.Context, req coordinator.NewSwapRequest) (*swap.Record, error)
}

func (m *mockService) NewSwap(ctx context.Context, req coordinator.NewSwapRequest) (*swap.Record, error) {
	if m.NewSwapFunc != nil {
		return m.NewSwapFunc(ctx, req)
	}
	return nil, fmt.Errorf("NewSwap not mocked")
}

func (m *mockService) Advance(_ context.Context, rec *swap.Record) (*swap.Record, error) {
	return rec, nil
}

type mockStore struct {
	GetSwapFunc   func(ctx context.Context, id string) (*swap.Record, error)
	ListSwapsFunc func(ctx context.Context, opts ...swapstore.ListOption) ([]*swap.Record, error)
}

func (m *mockStore) GetSwap(ctx context.Context, id string) (*swap.Record, error) {
	if m.GetSwapFunc != nil {
		return m.GetSwapFunc(ctx, id)
	}
	return nil, swap.ErrSwapNotFound
}

func (m *mockStore) ListSwaps(ctx context.Context, opts ...swapstore.ListOption) ([]*swap.Record, error) {
	if m.ListSwapsFunc != nil {
		return m.ListSwapsFunc(ctx, opts...)
	}
	return nil, nil
}

type mockTracker struct {
	mu      sync.Mutex
	tracked []string
	aborted []string
	running map[string]bool
}

func (m *mockTracker) Track(rec *swap.Record) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append(m.tracked, rec.ID)
	return true
}

func (m *mockTracker) Abort(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.aborted = append(m.aborted, id)
	return m.running[id]
}

type mockWallets struct {
	addresses map[string]string
}

func (m *mockWallets) Address(walletID, network string) (string, error) {
	addr, ok := m.addresses[walletID+"/"+network]
	if !ok {
		return "", fmt.Errorf("wallet %s has no %s key", walletID, network)
	}
	return addr, nil
}

type stubHandler struct {
	rawQuery string
}

func (s *stubHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.rawQuery = r.URL.RawQuery
	w.WriteHeader(http.StatusNoContent)
}
