// Package executor submits accepted quotes to chain through the routing service.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// Router is the routing service surface used for submission.
type Router interface {
	GetRoutes(ctx context.Context, req routing.RoutesRequest) ([]routing.Route, error)
	ExecuteRoute(ctx context.Context, handle chain.Account, route routing.Route, opts ...routing.ExecuteOption) (*routing.Route, error)
}

// Wallets resolves wallet ids to addresses and signing handles.
type Wallets interface {
	Address(walletID, network string) (string, error)
	Account(ctx context.Context, walletID, network string, chainID int64) (chain.Account, error)
}

// Submission is the result of executing a route.
type Submission struct {
	Route  *routing.Route
	TxHash string
}

// Executor selects and executes routes for accepted quotes.
type Executor struct {
	registry     *asset.Registry
	router       Router
	wallets      Wallets
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *zap.Logger
}

// New creates an executor
func New(registry *asset.Registry, router Router, wallets Wallets, cfg config.CoordinatorConfig, logger *zap.Logger) *Executor {
	return &Executor{
		registry:     registry,
		router:       router,
		wallets:      wallets,
		pollInterval: cfg.SettlementPollInterval,
		pollTimeout:  cfg.PollTimeout,
		logger:       logger,
	}
}

// Submit requests candidate routes for q and executes the first one.
// On error no status change may be derived from the result.
func (e *Executor) Submit(ctx context.Context, q *swap.Quote, network, walletID string) (*Submission, error) {
	start := time.Now()
	sub, err := e.submit(ctx, q, network, walletID)
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.SubmissionDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return sub, err
}

func (e *Executor) submit(ctx context.Context, q *swap.Quote, network, walletID string) (*Submission, error) {
	from, err := e.registry.Asset(q.From)
	if err != nil {
		return nil, &swap.UnsupportedAssetError{Asset: q.From, Network: network, Err: err}
	}
	to, err := e.registry.Asset(q.To)
	if err != nil {
		return nil, &swap.UnsupportedAssetError{Asset: q.To, Network: network, Err: err}
	}

	raw, err := e.wallets.Address(walletID, network)
	if err != nil {
		return nil, &swap.SubmissionError{Stage: "routes", Err: err}
	}
	fromAddress, err := asset.FormatAddress(to.Chain, raw)
	if err != nil {
		return nil, &swap.SubmissionError{Stage: "routes", Err: err}
	}

	routes, err := e.router.GetRoutes(ctx, routing.RoutesRequest{
		FromChainID:      q.FromChainID,
		FromAmount:       q.FromAmount.String(),
		FromTokenAddress: from.TokenAddress(),
		FromAddress:      fromAddress,
		ToChainID:        q.ToChainID,
		ToTokenAddress:   to.TokenAddress(),
	})
	if err != nil {
		return nil, &swap.SubmissionError{Stage: "routes", Err: err}
	}
	if len(routes) == 0 {
		return nil, &swap.NoRouteError{FromChainID: q.FromChainID, ToChainID: q.ToChainID, From: q.From, To: q.To}
	}
	selected := routes[0]

	handle, err := e.wallets.Account(ctx, walletID, network, q.FromChainID)
	if err != nil {
		return nil, &swap.SubmissionError{Stage: "swap", Err: err}
	}

	log := e.logger.With(
		zap.String("wallet_id", walletID),
		zap.String("route_id", selected.ID),
		zap.String("bridge", selected.Bridge()),
		zap.Int("steps", len(selected.Steps)))
	log.Info("Executing route", zap.Int("candidates", len(routes)))

	// sent is the last step transaction known to be on chain.
	var sent string
	executed, err := e.router.ExecuteRoute(ctx, handle, selected,
		routing.WithSwitchChain(func(ctx context.Context, chainID int64) (chain.Account, error) {
			return e.wallets.Account(ctx, walletID, network, chainID)
		}),
		routing.WithPollInterval(e.pollInterval),
		routing.WithPollTimeout(e.pollTimeout),
		routing.WithUpdateHook(func(r routing.Route) {
			if hash := r.LastTxHash(); hash != "" && hash != sent {
				sent = hash
				log.Info("Route step sent", zap.String("tx_hash", hash))
			}
		}),
	)
	if err != nil {
		if executed != nil && executed.LastTxHash() != "" {
			sent = executed.LastTxHash()
		}
		if sent != "" {
			// Resubmitting would replay the steps already on chain.
			log.Error("Route execution failed after sending", zap.String("tx_hash", sent), zap.Error(err))
			return nil, &swap.SubmissionError{Stage: "swap", Sent: true, TxHash: sent, Err: err}
		}
		log.Error("Route execution failed", zap.Error(err))
		return nil, &swap.SubmissionError{Stage: "swap", Err: err}
	}

	hash := executed.LastTxHash()
	if hash == "" {
		return nil, &swap.SubmissionError{Stage: "swap", Err: fmt.Errorf("route %s returned no transaction hash", selected.ID)}
	}
	log.Info("Route submitted", zap.String("tx_hash", hash))

	return &Submission{Route: executed, TxHash: hash}, nil
}

// Approve submits an ERC-20 approval of q.FromAmount to spender when the current
// allowance is short. It returns "" when no approval was needed.
func (e *Executor) Approve(ctx context.Context, q *swap.Quote, network, walletID, spender string) (string, error) {
	from, err := e.registry.Asset(q.From)
	if err != nil {
		return "", &swap.UnsupportedAssetError{Asset: q.From, Network: network, Err: err}
	}
	if from.IsNative() || spender == "" {
		return "", nil
	}

	account, err := e.wallets.Account(ctx, walletID, network, q.FromChainID)
	if err != nil {
		return "", &swap.SubmissionError{Stage: "approve", Err: err}
	}

	allowance, err := account.Allowance(ctx, from.ContractAddress, spender)
	if err != nil {
		return "", &swap.SubmissionError{Stage: "approve", Err: err}
	}
	if allowance.Cmp(q.FromAmount) >= 0 {
		return "", nil
	}

	hash, err := account.Approve(ctx, from.ContractAddress, spender, q.FromAmount)
	if err != nil {
		return "", &swap.SubmissionError{Stage: "approve", Err: err}
	}
	e.logger.Info("Approval submitted",
		zap.String("wallet_id", walletID),
		zap.String("asset", q.From),
		zap.String("spender", spender),
		zap.String("tx_hash", hash))
	return hash, nil
}
