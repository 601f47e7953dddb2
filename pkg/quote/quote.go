// Package quote resolves cross-chain conversion quotes from the routing service.
package quote

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// Router is the part of the routing service the resolver needs.
type Router interface {
	GetQuote(ctx context.Context, req routing.QuoteRequest) (*routing.Step, error)
}

// Request asks for a quote of Amount (display units of From) into To.
type Request struct {
	From        string          `json:"from" validate:"required"`
	To          string          `json:"to" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Network     string          `json:"network" validate:"required,oneof=mainnet testnet"`
	FromAddress string          `json:"from_address,omitempty"`
}

// Resolver produces quotes.
type Resolver struct {
	registry *asset.Registry
	router   Router
	logger   *zap.Logger
}

// NewResolver creates a new quote resolver
func NewResolver(registry *asset.Registry, router Router, logger *zap.Logger) *Resolver {
	return &Resolver{
		registry: registry,
		router:   router,
		logger:   logger,
	}
}

// GetQuote resolves both chains from the registry and asks the routing service
// for an estimate. Registry failures return before any network call.
func (r *Resolver) GetQuote(ctx context.Context, req Request) (*swap.Quote, error) {
	if !req.Amount.IsPositive() {
		metrics.QuoteRequests.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %s", swap.ErrInvalidAmount, req.Amount)
	}

	from, fromChainID, err := r.resolve(req.From, req.Network)
	if err != nil {
		metrics.QuoteRequests.WithLabelValues("unsupported").Inc()
		return nil, err
	}
	_, toChainID, err := r.resolve(req.To, req.Network)
	if err != nil {
		metrics.QuoteRequests.WithLabelValues("unsupported").Inc()
		return nil, err
	}

	fromAmount := asset.ToBaseUnits(req.Amount, from.Decimals)
	step, err := r.router.GetQuote(ctx, routing.QuoteRequest{
		FromChain:   fromChainID,
		ToChain:     toChainID,
		FromToken:   req.From,
		ToToken:     req.To,
		FromAmount:  fromAmount,
		FromAddress: req.FromAddress,
	})
	if err != nil {
		metrics.QuoteRequests.WithLabelValues("unavailable").Inc()
		r.logger.Warn("quote unavailable",
			zap.String("from", req.From),
			zap.String("to", req.To),
			zap.Error(err))
		return nil, &swap.QuoteUnavailableError{From: req.From, To: req.To, Err: err}
	}

	estimated, err := step.Estimate.ToAmountDecimal()
	if err != nil {
		metrics.QuoteRequests.WithLabelValues("malformed").Inc()
		return nil, &swap.QuoteUnavailableError{From: req.From, To: req.To, Err: err}
	}

	// Destination amount is scaled with the source asset's decimals. Consumers
	// format it with the same convention, so it is kept as is.
	toAmount := asset.ToBaseUnits(estimated, from.Decimals)

	metrics.QuoteRequests.WithLabelValues("ok").Inc()
	r.logger.Debug("quote resolved",
		zap.String("from", req.From),
		zap.String("to", req.To),
		zap.String("from_amount", fromAmount.String()),
		zap.String("to_amount", toAmount.String()),
		zap.String("tool", step.Tool))

	return &swap.Quote{
		From:        req.From,
		To:          req.To,
		Network:     req.Network,
		FromAmount:  fromAmount,
		ToAmount:    toAmount,
		FromChainID: fromChainID,
		ToChainID:   toChainID,
		Tool:        step.Tool,
		Estimate:    step.Estimate,
	}, nil
}

// MinAmount returns the smallest accepted source amount. There is no minimum.
func (r *Resolver) MinAmount(_ context.Context, _ Request) decimal.Decimal {
	return decimal.Zero
}

func (r *Resolver) resolve(symbol, network string) (asset.Asset, int64, error) {
	a, err := r.registry.Asset(symbol)
	if err != nil {
		return asset.Asset{}, 0, &swap.UnsupportedAssetError{Asset: symbol, Network: network, Err: err}
	}
	id, err := r.registry.ChainID(symbol, asset.Network(network))
	if err != nil {
		return asset.Asset{}, 0, &swap.UnsupportedAssetError{Asset: symbol, Network: network, Err: err}
	}
	return a, id, nil
}

