package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

func testRoute(id, tool string) routing.Route {
	return routing.Route{
		ID:          id,
		FromChainID: 1,
		ToChainID:   137,
		Steps:       []routing.Step{{ID: id + "-0", Tool: tool, Action: routing.Action{FromChainID: 1, ToChainID: 137}}},
	}
}

func testQuote() *swap.Quote {
	return &swap.Quote{
		From:        "ETH",
		To:          "PUSDC",
		Network:     "mainnet",
		FromAmount:  big.NewInt(1_000_000_000_000_000_000),
		ToAmount:    big.NewInt(1850),
		FromChainID: 1,
		ToChainID:   137,
	}
}

func newExecutor(router Router, wallets Wallets) *Executor {
	return New(asset.DefaultRegistry(), router, wallets, config.CoordinatorConfig{SettlementPollInterval: time.Millisecond}, zap.NewNop())
}

func TestSubmit_SelectsFirstRoute(t *testing.T) {
	router := &mockRouter{GetRoutesFunc: func(context.Context, routing.RoutesRequest) ([]routing.Route, error) {
		return []routing.Route{testRoute("first", "hop"), testRoute("cheaper", "cbridge")}, nil
	}}
	wallets := &mockWallets{address: "0x8ba1f109551bd432803012645ac136ddd64dba72", account: &mockAccount{chainID: 1}}

	sub, err := newExecutor(router, wallets).Submit(context.Background(), testQuote(), "mainnet", "w1")
	require.NoError(t, err)

	assert.Equal(t, "0xswap", sub.TxHash)
	assert.Equal(t, "first", sub.Route.ID)
	assert.Equal(t, "hop", sub.Route.Bridge())
	require.Len(t, router.executed, 1)
	assert.Equal(t, "first", router.executed[0].ID)

	require.Len(t, router.requests, 1)
	req := router.requests[0]
	assert.Equal(t, int64(1), req.FromChainID)
	assert.Equal(t, int64(137), req.ToChainID)
	assert.Equal(t, "1000000000000000000", req.FromAmount)
	assert.Equal(t, asset.NativeAssetAddress, req.FromTokenAddress)
	assert.Equal(t, "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", req.ToTokenAddress)
	assert.Equal(t, "0x8ba1f109551bD432803012645Ac136ddd64DBA72", req.FromAddress, "address is checksummed")
}

func TestSubmit_ReturnsExecutedTxHash(t *testing.T) {
	polygon := &mockAccount{chainID: 137}
	wallets := &mockWallets{address: "0x8ba1f109551bd432803012645ac136ddd64dba72", account: polygon}
	router := &mockRouter{
		GetRoutesFunc: func(context.Context, routing.RoutesRequest) ([]routing.Route, error) {
			return []routing.Route{testRoute("r", "hop")}, nil
		},
		ExecuteRouteFunc: func(ctx context.Context, _ chain.Account, route routing.Route, _ ...routing.ExecuteOption) (*routing.Route, error) {
			out := route
			out.Steps = []routing.Step{route.Steps[0]}
			out.Steps[0].Execution = &routing.Execution{TxHash: "0xabc"}
			return &out, nil
		},
	}

	sub, err := newExecutor(router, wallets).Submit(context.Background(), testQuote(), "mainnet", "w1")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", sub.TxHash)
}

func TestSubmit_NoRoute(t *testing.T) {
	router := &mockRouter{}
	wallets := &mockWallets{address: "0x8ba1f109551bd432803012645ac136ddd64dba72", account: &mockAccount{chainID: 1}}

	_, err := newExecutor(router, wallets).Submit(context.Background(), testQuote(), "mainnet", "w1")
	var noRoute *swap.NoRouteError
	require.ErrorAs(t, err, &noRoute)
	assert.Equal(t, int64(137), noRoute.ToChainID)
	assert.Empty(t, router.executed)
}

func TestSubmit_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name    string
		router  *mockRouter
		wallets *mockWallets
		stage   string
	}{
		{
			name:    "routes request",
			router:  &mockRouter{GetRoutesFunc: func(context.Context, routing.RoutesRequest) ([]routing.Route, error) { return nil, boom }},
			wallets: &mockWallets{address: "0x8ba1f109551bd432803012645ac136ddd64dba72", account: &mockAccount{chainID: 1}},
			stage:   "routes",
		},
		{
			name: "execution",
			router: &mockRouter{
				GetRoutesFunc: func(context.Context, routing.RoutesRequest) ([]routing.Route, error) {
					return []routing.Route{testRoute("r", "hop")}, nil
				},
				ExecuteRouteFunc: func(context.Context, chain.Account, routing.Route, ...routing.ExecuteOption) (*routing.Route, error) {
					return nil, boom
				},
			},
			wallets: &mockWallets{address: "0x8ba1f109551bd432803012645ac136ddd64dba72", account: &mockAccount{chainID: 1}},
			stage:   "swap",
		},
		{
			name:    "wallet",
			router:  &mockRouter{},
			wallets: &mockWallets{err: boom},
			stage:   "routes",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newExecutor(tt.router, tt.wallets).Submit(context.Background(), testQuote(), "mainnet", "w1")
			var subErr *swap.SubmissionError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, tt.stage, subErr.Stage)
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestSubmit_FailureAfterFirstStepIsNotRetryable(t *testing.T) {
	boom := errors.New("step 1 reverted")
	wallets := &mockWallets{address: "0x8ba1f109551bd432803012645ac136ddd64dba72", account: &mockAccount{chainID: 1}}
	router := &mockRouter{
		GetRoutesFunc: func(context.Context, routing.RoutesRequest) ([]routing.Route, error) {
			r := testRoute("r", "hop")
			r.Steps = append(r.Steps, routing.Step{ID: "r-1", Tool: "uniswap", Action: routing.Action{FromChainID: 137, ToChainID: 137}})
			return []routing.Route{r}, nil
		},
		ExecuteRouteFunc: func(_ context.Context, _ chain.Account, route routing.Route, _ ...routing.ExecuteOption) (*routing.Route, error) {
			out := route
			out.Steps = append([]routing.Step(nil), route.Steps...)
			out.Steps[0].Execution = &routing.Execution{TxHash: "0xstep0"}
			return &out, boom
		},
	}

	_, err := newExecutor(router, wallets).Submit(context.Background(), testQuote(), "mainnet", "w1")
	var subErr *swap.SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.True(t, subErr.Sent)
	assert.Equal(t, "0xstep0", subErr.TxHash)
	assert.ErrorIs(t, err, boom)
	assert.False(t, swap.IsRetryable(err))
}

func TestSubmit_InvalidAddress(t *testing.T) {
	wallets := &mockWallets{address: "not-an-address", account: &mockAccount{chainID: 1}}
	_, err := newExecutor(&mockRouter{}, wallets).Submit(context.Background(), testQuote(), "mainnet", "w1")

	var addrErr *asset.InvalidAddressError
	require.ErrorAs(t, err, &addrErr)
}

func TestApprove(t *testing.T) {
	usdc := testQuote()
	usdc.From = "USDC"
	usdc.FromAmount = big.NewInt(5_000_000)
	spender := "0x1231DEB6f5749EF6cE6943a275A1D3E7486F4EaE"

	t.Run("native asset", func(t *testing.T) {
		account := &mockAccount{chainID: 1}
		hash, err := newExecutor(&mockRouter{}, &mockWallets{account: account}).Approve(context.Background(), testQuote(), "mainnet", "w1", spender)
		require.NoError(t, err)
		assert.Empty(t, hash)
		assert.Zero(t, account.approvals)
	})

	t.Run("allowance sufficient", func(t *testing.T) {
		account := &mockAccount{chainID: 1, allowance: big.NewInt(5_000_000)}
		hash, err := newExecutor(&mockRouter{}, &mockWallets{account: account}).Approve(context.Background(), usdc, "mainnet", "w1", spender)
		require.NoError(t, err)
		assert.Empty(t, hash)
		assert.Zero(t, account.approvals)
	})

	t.Run("allowance short", func(t *testing.T) {
		account := &mockAccount{chainID: 1, allowance: big.NewInt(1)}
		hash, err := newExecutor(&mockRouter{}, &mockWallets{account: account}).Approve(context.Background(), usdc, "mainnet", "w1", spender)
		require.NoError(t, err)
		assert.Equal(t, "0xapprove", hash)
		assert.Equal(t, 1, account.approvals)
	})

	t.Run("approve fails", func(t *testing.T) {
		account := &mockAccount{chainID: 1, ApproveFunc: func(context.Context, string, string, *big.Int) (string, error) {
			return "", errors.New("nonce too low")
		}}
		_, err := newExecutor(&mockRouter{}, &mockWallets{account: account}).Approve(context.Background(), usdc, "mainnet", "w1", spender)
		var subErr *swap.SubmissionError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, "approve", subErr.Stage)
	})
}
