package coordinator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/executor"
	"github.com/chainsafe/swap-coordinator/pkg/poller"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

func testConfig() config.CoordinatorConfig {
	return config.CoordinatorConfig{
		ApprovalPollInterval:   5 * time.Millisecond,
		SettlementPollInterval: 5 * time.Millisecond,
		RetryDelay:             5 * time.Millisecond,
		MaxRetries:             3,
		ReconcileInterval:      time.Hour,
	}
}

func testRoute(tool string) *routing.Route {
	return &routing.Route{
		ID:          "route-1",
		FromChainID: 1,
		ToChainID:   137,
		Steps: []routing.Step{{
			Tool:      tool,
			Execution: &routing.Execution{Status: routing.ExecutionDone, TxHash: "0xswap"},
		}},
	}
}

func testSubmission(hash string) *executor.Submission {
	return &executor.Submission{Route: testRoute("hop"), TxHash: hash}
}

func testRecord(id string, status swap.Status) *swap.Record {
	rec := &swap.Record{
		ID:            id,
		WalletID:      "w1",
		Network:       "mainnet",
		From:          "ETH",
		To:            "PUSDC",
		FromAccountID: "w1/ETH",
		ToAccountID:   "w1/PUSDC",
		FromAmount:    big.NewInt(1_000_000_000_000_000_000),
		ToAmount:      big.NewInt(1_850_500_000),
		FromChainID:   1,
		ToChainID:     137,
		Status:        status,
		StartTime:     time.Now().UTC(),
	}
	switch status {
	case swap.StatusAwaitingApprovalConfirmation, swap.StatusApprovalConfirmed:
		rec.ApproveTxHash = "0xapprove"
	default:
		rec.SwapTxHash = "0xswap"
		rec.Route = testRoute("hop")
	}
	return rec
}

type fixture struct {
	store      *memStore
	exec       *mockExecutor
	reader     *mockReader
	chains     *mockChains
	settlement *mockSettlement
	balances   *mockBalances
	notifier   *mockNotifier
	coord      *Coordinator
}

func newFixture(cfg config.CoordinatorConfig, recs ...*swap.Record) *fixture {
	f := &fixture{
		store:      newMemStore(recs...),
		exec:       &mockExecutor{},
		reader:     &mockReader{},
		settlement: &mockSettlement{},
		balances:   &mockBalances{},
		notifier:   &mockNotifier{},
	}
	f.chains = &mockChains{reader: f.reader}
	f.coord = New(Deps{
		Registry:   asset.DefaultRegistry(),
		Store:      f.store,
		Executor:   f.exec,
		Chains:     f.chains,
		Settlement: f.settlement,
		Balances:   f.balances,
		Notifier:   f.notifier,
	}, cfg, zap.NewNop())
	f.coord.persistBackoff = time.Millisecond
	return f
}

func TestAdvance_ApprovalNotFoundStaysPending(t *testing.T) {
	cfg := testConfig()
	cfg.PollTimeout = 40 * time.Millisecond
	rec := testRecord("s1", swap.StatusAwaitingApprovalConfirmation)
	f := newFixture(cfg, rec)

	var probes atomic.Int32
	f.reader.GetTransactionByHashFunc = func(_ context.Context, hash string) (*chain.Transaction, error) {
		probes.Add(1)
		assert.Equal(t, "0xapprove", hash)
		return nil, chain.ErrTxNotFound
	}

	got, err := f.coord.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusAwaitingApprovalConfirmation, got.Status)
	assert.Equal(t, swap.StatusAwaitingApprovalConfirmation, f.store.status("s1"))
	assert.Zero(t, f.store.updateCount())
	assert.Greater(t, probes.Load(), int32(1))
	assert.Equal(t, int64(1), f.chains.chainID)
}

func TestAdvance_ApprovalConfirmed(t *testing.T) {
	rec := testRecord("s1", swap.StatusAwaitingApprovalConfirmation)
	f := newFixture(testConfig(), rec)

	var calls atomic.Int32
	f.reader.GetTransactionByHashFunc = func(context.Context, string) (*chain.Transaction, error) {
		if calls.Add(1) == 1 {
			return &chain.Transaction{Hash: "0xapprove"}, nil
		}
		return &chain.Transaction{Hash: "0xapprove", Confirmations: 1}, nil
	}

	got, err := f.coord.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusApprovalConfirmed, got.Status)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, swap.StatusApprovalConfirmed, f.store.status("s1"))
	assert.Equal(t, 2, f.notifier.last().Step)
	assert.Equal(t, "Swapping PUSDC", f.notifier.last().Label)
	assert.Zero(t, f.exec.submitCount())
}

func TestAdvance_ApprovalErrors(t *testing.T) {
	tests := []struct {
		name string
		tx   *chain.Transaction
		err  error
	}{
		{name: "rpc failure", err: errors.New("connection refused")},
		{name: "reverted", tx: &chain.Transaction{Confirmations: 3, Failed: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord("s1", swap.StatusAwaitingApprovalConfirmation)
			f := newFixture(testConfig(), rec)
			f.reader.GetTransactionByHashFunc = func(context.Context, string) (*chain.Transaction, error) {
				return tt.tx, tt.err
			}

			_, err := f.coord.Advance(context.Background(), rec)
			var fatal *swap.FatalProbeError
			require.ErrorAs(t, err, &fatal)
			assert.Equal(t, "approval", fatal.Probe)
			assert.Equal(t, swap.StatusAwaitingApprovalConfirmation, f.store.status("s1"))
		})
	}
}

func TestAdvance_CancelledWhilePolling(t *testing.T) {
	rec := testRecord("s1", swap.StatusAwaitingSettlementConfirmation)
	f := newFixture(testConfig(), rec)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := f.coord.Advance(ctx, rec)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, f.store.status("s1"))
	assert.Empty(t, f.balances.calls)
}

func TestAdvance_SubmitsConfirmedApproval(t *testing.T) {
	rec := testRecord("s1", swap.StatusApprovalConfirmed)
	f := newFixture(testConfig(), rec)

	var submitted *swap.Quote
	f.exec.SubmitFunc = func(_ context.Context, q *swap.Quote, network, walletID string) (*executor.Submission, error) {
		submitted = q
		assert.Equal(t, "mainnet", network)
		assert.Equal(t, "w1", walletID)
		return testSubmission("0xsubmitted"), nil
	}

	got, err := f.coord.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, got.Status)
	assert.Equal(t, "0xsubmitted", got.SwapTxHash)
	assert.Equal(t, "hop", got.Route.Bridge())

	require.NotNil(t, submitted)
	assert.Equal(t, "ETH", submitted.From)
	assert.Equal(t, "PUSDC", submitted.To)
	assert.Equal(t, rec.FromAmount.String(), submitted.FromAmount.String())
	assert.Equal(t, int64(137), submitted.ToChainID)
}

func TestAdvance_SubmissionFailureLeavesRecord(t *testing.T) {
	rec := testRecord("s1", swap.StatusApprovalConfirmed)
	f := newFixture(testConfig(), rec)
	f.exec.SubmitFunc = func(context.Context, *swap.Quote, string, string) (*executor.Submission, error) {
		return nil, &swap.SubmissionError{Stage: "swap", Err: errors.New("nonce too low")}
	}

	_, err := f.coord.Advance(context.Background(), rec)
	var se *swap.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "s1", se.SwapID)
	assert.Equal(t, swap.StatusApprovalConfirmed, f.store.status("s1"))
	assert.Zero(t, f.store.updateCount())
}

func TestAdvance_RetriesPersistNotSubmit(t *testing.T) {
	rec := testRecord("s1", swap.StatusApprovalConfirmed)
	f := newFixture(testConfig(), rec)

	var writes atomic.Int32
	f.store.UpdateSwapFunc = func(_ context.Context, id string, from swap.Status, u swap.Update) (*swap.Record, error) {
		if writes.Add(1) <= 2 {
			return nil, errors.New("connection reset by peer")
		}
		return f.store.update(id, from, u)
	}

	got, err := f.coord.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, got.Status)
	assert.Equal(t, "0xswap", got.SwapTxHash)
	assert.Equal(t, 1, f.exec.submitCount())
	assert.Equal(t, int32(3), writes.Load())
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, f.store.status("s1"))
}

func TestAdvance_UnrecordedSubmissionIsNotRetryable(t *testing.T) {
	rec := testRecord("s1", swap.StatusApprovalConfirmed)
	f := newFixture(testConfig(), rec)
	f.coord.persistAttempts = 3

	var writes atomic.Int32
	f.store.UpdateSwapFunc = func(context.Context, string, swap.Status, swap.Update) (*swap.Record, error) {
		writes.Add(1)
		return nil, errors.New("database is down")
	}

	_, err := f.coord.Advance(context.Background(), rec)
	require.ErrorIs(t, err, swap.ErrSubmissionUnrecorded)
	assert.ErrorContains(t, err, "0xswap")
	assert.ErrorContains(t, err, "database is down")
	assert.False(t, swap.IsRetryable(err))
	assert.Equal(t, 1, f.exec.submitCount())
	assert.Equal(t, int32(3), writes.Load())
}

func TestAdvance_PersistConflictReturnsStoredRecord(t *testing.T) {
	rec := testRecord("s1", swap.StatusApprovalConfirmed)
	f := newFixture(testConfig(), rec)

	f.store.UpdateSwapFunc = func(context.Context, string, swap.Status, swap.Update) (*swap.Record, error) {
		// Another process recorded the submission first
		_, err := f.store.update("s1", swap.StatusApprovalConfirmed, swap.Update{Status: swap.StatusAwaitingSettlementConfirmation})
		require.NoError(t, err)
		return nil, swap.ErrStatusConflict
	}

	got, err := f.coord.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, got.Status)
	assert.Equal(t, 1, f.exec.submitCount())
}

func TestAdvance_ConcurrentDispatchSubmitsOnce(t *testing.T) {
	rec := testRecord("s1", swap.StatusApprovalConfirmed)
	f := newFixture(testConfig(), rec)
	f.exec.SubmitFunc = func(context.Context, *swap.Quote, string, string) (*executor.Submission, error) {
		time.Sleep(20 * time.Millisecond)
		return testSubmission("0xswap"), nil
	}

	var wg sync.WaitGroup
	results := make([]*swap.Record, 4)
	errs := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.coord.Advance(context.Background(), rec.Clone())
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, results[i].Status)
	}
	assert.Equal(t, 1, f.exec.submitCount())
	assert.Equal(t, 1, f.store.updateCount())
}

func TestAdvance_SubmissionsPerAccountNeverOverlap(t *testing.T) {
	var recs []*swap.Record
	for _, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		recs = append(recs, testRecord(id, swap.StatusApprovalConfirmed))
	}
	other := testRecord("s6", swap.StatusApprovalConfirmed)
	other.WalletID = "w2"
	recs = append(recs, other)
	f := newFixture(testConfig(), recs...)

	var inFlight, maxInFlight atomic.Int32
	f.exec.SubmitFunc = func(_ context.Context, _ *swap.Quote, _ string, walletID string) (*executor.Submission, error) {
		if walletID == "w1" {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
		}
		time.Sleep(5 * time.Millisecond)
		return testSubmission("0xswap"), nil
	}

	var wg sync.WaitGroup
	for _, rec := range recs {
		wg.Add(1)
		go func(rec *swap.Record) {
			defer wg.Done()
			_, err := f.coord.Advance(context.Background(), rec)
			assert.NoError(t, err)
		}(rec)
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
	assert.Equal(t, 6, f.exec.submitCount())
	assert.Zero(t, f.coord.gate.Len())
}

func TestAdvance_SettlementDone(t *testing.T) {
	rec := testRecord("s1", swap.StatusAwaitingSettlementConfirmation)
	f := newFixture(testConfig(), rec)

	var calls atomic.Int32
	f.settlement.ProbeFunc = func(context.Context, routing.StatusRequest) poller.Outcome[*routing.StatusResponse] {
		switch calls.Add(1) {
		case 1:
			return poller.Retry[*routing.StatusResponse](errors.New("502 bad gateway"))
		case 2:
			return poller.Pending[*routing.StatusResponse]()
		default:
			return poller.Succeeded(&routing.StatusResponse{Status: routing.StatusDone})
		}
	}

	got, err := f.coord.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusSuccess, got.Status)
	require.NotNil(t, got.EndTime)
	assert.Equal(t, swap.StatusSuccess, f.store.status("s1"))

	require.Len(t, f.settlement.requests, 1)
	assert.Equal(t, routing.StatusRequest{Bridge: "hop", FromChain: 1, ToChain: 137, TxHash: "0xswap"}, f.settlement.requests[0])

	require.Len(t, f.balances.calls, 1)
	assert.Equal(t, "w1/PUSDC", f.balances.calls[0].AccountID)
	assert.Equal(t, "PUSDC", f.balances.calls[0].Asset)

	n := f.notifier.last()
	assert.Equal(t, 3, n.Step)
	assert.Equal(t, "Swap completed, 1850.5 PUSDC ready to use", n.Message)
}

func TestAdvance_SettlementFailed(t *testing.T) {
	rec := testRecord("s1", swap.StatusAwaitingSettlementConfirmation)
	f := newFixture(testConfig(), rec)
	f.balances.err = errors.New("rpc down")
	f.settlement.ProbeFunc = func(context.Context, routing.StatusRequest) poller.Outcome[*routing.StatusResponse] {
		return poller.Failed(&routing.StatusResponse{Status: routing.StatusFailed})
	}

	got, err := f.coord.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, swap.StatusFailed, got.Status)
	assert.Len(t, f.balances.calls, 1)
	assert.Equal(t, "Swap failed", f.notifier.last().Message)
}

func TestAdvance_SettlementWithoutRouteIsFatal(t *testing.T) {
	rec := testRecord("s1", swap.StatusAwaitingSettlementConfirmation)
	rec.Route = nil
	f := newFixture(testConfig(), rec)

	_, err := f.coord.Advance(context.Background(), rec)
	var fatal *swap.FatalProbeError
	require.ErrorAs(t, err, &fatal)
	assert.Empty(t, f.settlement.requests)
}

func TestAdvance_TerminalIsNoop(t *testing.T) {
	for _, status := range []swap.Status{swap.StatusSuccess, swap.StatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			rec := testRecord("s1", status)
			f := newFixture(testConfig(), rec)

			got, err := f.coord.Advance(context.Background(), rec)
			require.NoError(t, err)
			assert.Same(t, rec, got)
			assert.Zero(t, f.store.updateCount())
			assert.Zero(t, f.exec.submitCount())
			assert.Empty(t, f.settlement.requests)
			assert.Empty(t, f.balances.calls)
			assert.Empty(t, f.notifier.sent)
		})
	}
}

func TestAdvance_UnknownStatus(t *testing.T) {
	rec := testRecord("s1", swap.StatusSuccess)
	rec.Status = "PENDING"
	f := newFixture(testConfig())

	_, err := f.coord.Advance(context.Background(), rec)
	require.ErrorIs(t, err, swap.ErrUnknownStatus)
}

func testQuote() *swap.Quote {
	return &swap.Quote{
		From:        "PUSDC",
		To:          "ETH",
		Network:     "mainnet",
		FromAmount:  big.NewInt(2_000_000),
		ToAmount:    big.NewInt(1_000),
		FromChainID: 137,
		ToChainID:   1,
		Tool:        "hop",
		Estimate:    routing.Estimate{ApprovalAddress: "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"},
	}
}

func TestNewSwap_WithApproval(t *testing.T) {
	f := newFixture(testConfig())
	f.exec.ApproveFunc = func(context.Context, *swap.Quote, string, string, string) (string, error) {
		return "0xapprove", nil
	}

	rec, err := f.coord.NewSwap(context.Background(), NewSwapRequest{
		WalletID: "w1",
		Quote:    testQuote(),
		Fee:      decimal.RequireFromString("0.1"),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, swap.StatusAwaitingApprovalConfirmation, rec.Status)
	assert.Equal(t, "0xapprove", rec.ApproveTxHash)
	assert.Equal(t, "w1/PUSDC", rec.FromAccountID)
	assert.Equal(t, "w1/ETH", rec.ToAccountID)
	assert.Equal(t, []string{"0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"}, f.exec.approves)
	assert.Zero(t, f.exec.submitCount())

	stored, err := f.store.GetSwap(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "2000000", stored.FromAmount.String())
	assert.True(t, stored.Fee.Equal(decimal.RequireFromString("0.1")))
	assert.Equal(t, 1, f.notifier.last().Step)
}

func TestNewSwap_SubmitsWhenNoApprovalNeeded(t *testing.T) {
	f := newFixture(testConfig())

	rec, err := f.coord.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1", Quote: testQuote()})
	require.NoError(t, err)
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, rec.Status)
	assert.Equal(t, "0xswap", rec.SwapTxHash)
	assert.Equal(t, 1, f.exec.submitCount())
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, f.store.status(rec.ID))
}

func TestNewSwap_RetriesCreateAfterSubmit(t *testing.T) {
	f := newFixture(testConfig())

	var creates atomic.Int32
	f.store.CreateSwapFunc = func(_ context.Context, rec *swap.Record) error {
		if creates.Add(1) == 1 {
			return errors.New("connection reset by peer")
		}
		return f.store.create(rec)
	}

	rec, err := f.coord.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1", Quote: testQuote()})
	require.NoError(t, err)
	assert.Equal(t, 1, f.exec.submitCount())
	assert.Equal(t, int32(2), creates.Load())
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, f.store.status(rec.ID))
}

func TestNewSwap_CreateWithLostReply(t *testing.T) {
	f := newFixture(testConfig())

	var creates atomic.Int32
	f.store.CreateSwapFunc = func(_ context.Context, rec *swap.Record) error {
		creates.Add(1)
		require.NoError(t, f.store.create(rec))
		return errors.New("read: connection reset by peer")
	}

	rec, err := f.coord.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1", Quote: testQuote()})
	require.NoError(t, err)
	assert.Equal(t, int32(1), creates.Load())
	assert.Equal(t, swap.StatusAwaitingSettlementConfirmation, f.store.status(rec.ID))
}

func TestNewSwap_UnrecordedSubmission(t *testing.T) {
	f := newFixture(testConfig())
	f.coord.persistAttempts = 2
	f.store.CreateSwapFunc = func(context.Context, *swap.Record) error {
		return errors.New("database is down")
	}

	_, err := f.coord.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1", Quote: testQuote()})
	require.ErrorIs(t, err, swap.ErrSubmissionUnrecorded)
	assert.Equal(t, 1, f.exec.submitCount())
	assert.Zero(t, f.notifier.last().Step)
}

func TestNewSwap_PartialRouteIsRecordedHalted(t *testing.T) {
	f := newFixture(testConfig())
	f.exec.SubmitFunc = func(context.Context, *swap.Quote, string, string) (*executor.Submission, error) {
		return nil, &swap.SubmissionError{Stage: "swap", Sent: true, TxHash: "0xstep0", Err: errors.New("step 1 reverted")}
	}

	_, err := f.coord.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1", Quote: testQuote()})
	var se *swap.SubmissionError
	require.ErrorAs(t, err, &se)
	require.NotEmpty(t, se.SwapID)
	assert.False(t, swap.IsRetryable(err))

	stored, err := f.store.GetSwap(context.Background(), se.SwapID)
	require.NoError(t, err)
	assert.True(t, stored.Halted)
	assert.Equal(t, "0xstep0", stored.SwapTxHash)
	assert.Contains(t, stored.LastError, "step 1 reverted")
	assert.Equal(t, 1, f.exec.submitCount())
}

func TestNewSwap_Errors(t *testing.T) {
	f := newFixture(testConfig())

	_, err := f.coord.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1"})
	require.ErrorIs(t, err, swap.ErrInvalidAmount)

	f.exec.SubmitFunc = func(context.Context, *swap.Quote, string, string) (*executor.Submission, error) {
		return nil, &swap.NoRouteError{From: "PUSDC", To: "ETH"}
	}
	_, err = f.coord.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1", Quote: testQuote()})
	var noRoute *swap.NoRouteError
	require.ErrorAs(t, err, &noRoute)

	pending, err := f.store.ListPendingSwaps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestNewLog_PassesThrough(t *testing.T) {
	rec := testRecord("s1", swap.StatusSuccess)
	svc := NewLog(&mockService{
		AdvanceFunc: func(_ context.Context, in *swap.Record) (*swap.Record, error) {
			return in, nil
		},
		NewSwapFunc: func(context.Context, NewSwapRequest) (*swap.Record, error) {
			return nil, swap.ErrInvalidAmount
		},
	}, zap.NewNop())

	got, err := svc.Advance(context.Background(), rec)
	require.NoError(t, err)
	assert.Same(t, rec, got)

	_, err = svc.NewSwap(context.Background(), NewSwapRequest{WalletID: "w1", Quote: testQuote()})
	require.ErrorIs(t, err, swap.ErrInvalidAmount)
}
