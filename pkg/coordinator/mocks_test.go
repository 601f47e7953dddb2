package coordinator

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/chainsafe/swap-coordinator/pkg/balance"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/executor"
	"github.com/chainsafe/swap-coordinator/pkg/notify"
	"github.com/chainsafe/swap-coordinator/pkg/poller"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// memStore is an in-memory Store with the same compare-and-set semantics as
// the postgres store.
type memStore struct {
	mu      sync.Mutex
	records map[string]*swap.Record
	updates int

	CreateSwapFunc func(ctx context.Context, rec *swap.Record) error
	UpdateSwapFunc func(ctx context.Context, id string, from swap.Status, u swap.Update) (*swap.Record, error)
}

func newMemStore(recs ...*swap.Record) *memStore {
	s := &memStore{records: make(map[string]*swap.Record)}
	for _, rec := range recs {
		s.records[rec.ID] = rec.Clone()
	}
	return s
}

func (s *memStore) CreateSwap(ctx context.Context, rec *swap.Record) error {
	if s.CreateSwapFunc != nil {
		return s.CreateSwapFunc(ctx, rec)
	}
	return s.create(rec)
}

func (s *memStore) create(rec *swap.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("duplicate swap %s", rec.ID)
	}
	s.records[rec.ID] = rec.Clone()
	return nil
}

func (s *memStore) GetSwap(_ context.Context, id string) (*swap.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, swap.ErrSwapNotFound
	}
	return rec.Clone(), nil
}

func (s *memStore) UpdateSwap(ctx context.Context, id string, from swap.Status, u swap.Update) (*swap.Record, error) {
	if s.UpdateSwapFunc != nil {
		return s.UpdateSwapFunc(ctx, id, from, u)
	}
	return s.update(id, from, u)
}

func (s *memStore) update(id string, from swap.Status, u swap.Update) (*swap.Record, error) {
	if !from.CanAdvanceTo(u.Status) {
		return nil, swap.ErrInvalidTransition
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, swap.ErrSwapNotFound
	}
	if rec.Status != from {
		return nil, swap.ErrStatusConflict
	}
	next := rec.Apply(u)
	s.records[id] = next
	s.updates++
	return next.Clone(), nil
}

func (s *memStore) ListPendingSwaps(context.Context) ([]*swap.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*swap.Record
	for _, rec := range s.records {
		if !rec.Status.IsTerminal() {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (s *memStore) RecordError(_ context.Context, id string, msg string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return 0, swap.ErrSwapNotFound
	}
	rec.LastError = msg
	rec.RetryCount++
	return rec.RetryCount, nil
}

func (s *memStore) HaltSwap(_ context.Context, id string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok || rec.Status.IsTerminal() {
		return swap.ErrSwapNotFound
	}
	rec.Halted = true
	rec.LastError = reason
	return nil
}

func (s *memStore) halted(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	return ok && rec.Halted
}

func (s *memStore) status(id string) swap.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id].Status
}

func (s *memStore) updateCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

// mockExecutor is a mock implementation of Executor
type mockExecutor struct {
	SubmitFunc  func(ctx context.Context, q *swap.Quote, network, walletID string) (*executor.Submission, error)
	ApproveFunc func(ctx context.Context, q *swap.Quote, network, walletID, spender string) (string, error)

	mu       sync.Mutex
	submits  int
	approves []string
}

func (m *mockExecutor) Submit(ctx context.Context, q *swap.Quote, network, walletID string) (*executor.Submission, error) {
	m.mu.Lock()
	m.submits++
	m.mu.Unlock()
	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, q, network, walletID)
	}
	return testSubmission("0xswap"), nil
}

func (m *mockExecutor) Approve(ctx context.Context, q *swap.Quote, network, walletID, spender string) (string, error) {
	m.mu.Lock()
	m.approves = append(m.approves, spender)
	m.mu.Unlock()
	if m.ApproveFunc != nil {
		return m.ApproveFunc(ctx, q, network, walletID, spender)
	}
	return "", nil
}

func (m *mockExecutor) submitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.submits
}

// mockReader is a mock implementation of chain.Reader
type mockReader struct {
	GetTransactionByHashFunc func(ctx context.Context, hash string) (*chain.Transaction, error)
}

func (m *mockReader) GetTransactionByHash(ctx context.Context, hash string) (*chain.Transaction, error) {
	if m.GetTransactionByHashFunc != nil {
		return m.GetTransactionByHashFunc(ctx, hash)
	}
	return nil, chain.ErrTxNotFound
}

func (m *mockReader) BalanceOf(context.Context, string, string) (*big.Int, error) {
	return nil, nil
}

type mockChains struct {
	reader  chain.Reader
	chainID int64
}

func (m *mockChains) Reader(_ context.Context, _ string, chainID int64) (chain.Reader, error) {
	m.chainID = chainID
	return m.reader, nil
}

// mockSettlement serves settlement probes from ProbeFunc
type mockSettlement struct {
	ProbeFunc func(ctx context.Context, req routing.StatusRequest) poller.Outcome[*routing.StatusResponse]

	mu       sync.Mutex
	requests []routing.StatusRequest
}

func (m *mockSettlement) StatusProbe(req routing.StatusRequest) poller.Probe[*routing.StatusResponse] {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return func(ctx context.Context) poller.Outcome[*routing.StatusResponse] {
		if m.ProbeFunc != nil {
			return m.ProbeFunc(ctx, req)
		}
		return poller.Pending[*routing.StatusResponse]()
	}
}

type mockBalances struct {
	mu    sync.Mutex
	calls []balance.Account
	err   error
}

func (m *mockBalances) Refresh(_ context.Context, acc balance.Account) (*balance.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, acc)
	if m.err != nil {
		return nil, m.err
	}
	return &balance.Balance{AccountID: acc.AccountID, Asset: acc.Asset}, nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (m *mockNotifier) Notify(_ context.Context, n notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) last() notify.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return notify.Notification{}
	}
	return m.sent[len(m.sent)-1]
}

// mockService is a mock implementation of Service
type mockService struct {
	NewSwapFunc func(ctx context.Context, req NewSwapRequest) (*swap.Record, error)
	AdvanceFunc func(ctx context.Context, rec *swap.Record) (*swap.Record, error)
}

func (m *mockService) NewSwap(ctx context.Context, req NewSwapRequest) (*swap.Record, error) {
	if m.NewSwapFunc != nil {
		return m.NewSwapFunc(ctx, req)
	}
	return nil, nil
}

func (m *mockService) Advance(ctx context.Context, rec *swap.Record) (*swap.Record, error) {
	if m.AdvanceFunc != nil {
		return m.AdvanceFunc(ctx, rec)
	}
	return rec, nil
}
