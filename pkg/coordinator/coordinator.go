// Package coordinator advances swap records through their lifecycle. Every
// transition is persisted before the next action runs.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/balance"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/executor"
	"github.com/chainsafe/swap-coordinator/pkg/gate"
	"github.com/chainsafe/swap-coordinator/pkg/notify"
	"github.com/chainsafe/swap-coordinator/pkg/poller"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
	"github.com/chainsafe/swap-coordinator/pkg/wallet"
)

// Store is the persistence the coordinator needs.
type Store interface {
	CreateSwap(ctx context.Context, rec *swap.Record) error
	GetSwap(ctx context.Context, id string) (*swap.Record, error)
	UpdateSwap(ctx context.Context, id string, from swap.Status, u swap.Update) (*swap.Record, error)
}

// Executor submits approvals and routes.
type Executor interface {
	Submit(ctx context.Context, q *swap.Quote, network, walletID string) (*executor.Submission, error)
	Approve(ctx context.Context, q *swap.Quote, network, walletID, spender string) (string, error)
}

// Chains hands out read-only chain handles.
type Chains interface {
	Reader(ctx context.Context, network string, chainID int64) (chain.Reader, error)
}

// Settlement builds probes of the routing service's transfer status.
type Settlement interface {
	StatusProbe(req routing.StatusRequest) poller.Probe[*routing.StatusResponse]
}

// Balances refreshes destination balances.
type Balances interface {
	Refresh(ctx context.Context, acc balance.Account) (*balance.Balance, error)
}

// NewSwapRequest accepts a quote on behalf of a wallet.
type NewSwapRequest struct {
	WalletID string
	Quote    *swap.Quote
	Fee      decimal.Decimal
}

// Service creates and advances swaps.
type Service interface {
	NewSwap(ctx context.Context, req NewSwapRequest) (*swap.Record, error)
	// Advance performs the action owed by the record's status and returns the
	// persisted result. A poll that times out returns the record unchanged.
	Advance(ctx context.Context, rec *swap.Record) (*swap.Record, error)
}

// Coordinator is the swap state machine.
type Coordinator struct {
	registry   *asset.Registry
	store      Store
	exec       Executor
	chains     Chains
	settlement Settlement
	balances   Balances
	notifier   notify.Notifier
	gate       *gate.Gate
	cfg        config.CoordinatorConfig
	logger     *zap.Logger

	// persistAttempts and persistBackoff bound how long a write that follows a
	// sent transaction is retried before the swap is given up as unrecorded.
	persistAttempts int
	persistBackoff  time.Duration
}

// Deps groups the coordinator's collaborators.
type Deps struct {
	Registry   *asset.Registry
	Store      Store
	Executor   Executor
	Chains     Chains
	Settlement Settlement
	Balances   Balances
	Notifier   notify.Notifier
	Gate       *gate.Gate
}

// New creates a swap coordinator
func New(deps Deps, cfg config.CoordinatorConfig, logger *zap.Logger) *Coordinator {
	g := deps.Gate
	if g == nil {
		g = gate.New()
	}
	return &Coordinator{
		registry:   deps.Registry,
		store:      deps.Store,
		exec:       deps.Executor,
		chains:     deps.Chains,
		settlement: deps.Settlement,
		balances:   deps.Balances,
		notifier:   deps.Notifier,
		gate:       g,
		cfg:        cfg,
		logger:     logger,

		persistAttempts: 6,
		persistBackoff:  100 * time.Millisecond,
	}
}

// NewSwap accepts a quote. Under the wallet's gate it submits an approval when
// the source token needs one, otherwise it submits the route directly. The
// record is persisted before return. Once a transaction has been sent the
// record is written on a context the caller cannot cancel.
func (c *Coordinator) NewSwap(ctx context.Context, req NewSwapRequest) (*swap.Record, error) {
	q := req.Quote
	if q == nil || q.FromAmount == nil || q.FromAmount.Sign() <= 0 {
		return nil, swap.ErrInvalidAmount
	}

	key := gate.Key{WalletID: req.WalletID, Network: q.Network, Asset: q.From}
	return gate.Do(ctx, c.gate, key, func(ctx context.Context) (*swap.Record, error) {
		rec := &swap.Record{
			ID:            uuid.NewString(),
			WalletID:      req.WalletID,
			Network:       q.Network,
			From:          q.From,
			To:            q.To,
			FromAccountID: wallet.AccountID(req.WalletID, q.From),
			ToAccountID:   wallet.AccountID(req.WalletID, q.To),
			FromAmount:    new(big.Int).Set(q.FromAmount),
			ToAmount:      new(big.Int),
			FromChainID:   q.FromChainID,
			ToChainID:     q.ToChainID,
			Fee:           req.Fee,
			StartTime:     time.Now().UTC(),
		}
		if q.ToAmount != nil {
			rec.ToAmount.Set(q.ToAmount)
		}

		approveHash, err := c.exec.Approve(ctx, q, q.Network, req.WalletID, q.Estimate.ApprovalAddress)
		if err != nil {
			return nil, err
		}
		if approveHash != "" {
			rec.ApproveTxHash = approveHash
			rec.Status = swap.StatusAwaitingApprovalConfirmation
		} else {
			sub, err := c.exec.Submit(ctx, q, q.Network, req.WalletID)
			var se *swap.SubmissionError
			if errors.As(err, &se) && se.Sent {
				se.SwapID = rec.ID
				return nil, c.recordPartial(ctx, rec, se)
			}
			if err != nil {
				return nil, err
			}
			rec.SwapTxHash = sub.TxHash
			rec.Route = sub.Route
			rec.Status = swap.StatusAwaitingSettlementConfirmation
		}

		err = c.persist(ctx, rec.ID, func(ctx context.Context) error {
			err := c.store.CreateSwap(ctx, rec)
			if err != nil {
				// An earlier attempt may have landed without its reply.
				if _, gerr := c.store.GetSwap(ctx, rec.ID); gerr == nil {
					return nil
				}
			}
			return err
		})
		if err != nil {
			c.logger.Error("Swap sent but not recorded",
				zap.String("swap_id", rec.ID),
				zap.String("wallet_id", rec.WalletID),
				zap.String("approve_tx_hash", rec.ApproveTxHash),
				zap.String("swap_tx_hash", rec.SwapTxHash),
				zap.Error(err))
			return nil, fmt.Errorf("failed to create swap %s: %w: %w", rec.ID, swap.ErrSubmissionUnrecorded, err)
		}
		metrics.SwapsCreated.WithLabelValues(rec.From, rec.To).Inc()
		c.logger.Info("Swap created",
			zap.String("swap_id", rec.ID),
			zap.String("wallet_id", rec.WalletID),
			zap.String("status", rec.Status.String()))
		c.notify(ctx, rec)
		return rec, nil
	})
}

// recordPartial keeps a halted record of a route that failed after some of its
// transactions were sent, so the funds in flight can be traced. It returns se
// unless the record could not be written either.
func (c *Coordinator) recordPartial(ctx context.Context, rec *swap.Record, se *swap.SubmissionError) error {
	rec.SwapTxHash = se.TxHash
	rec.Status = swap.StatusAwaitingSettlementConfirmation
	rec.Halted = true
	rec.LastError = se.Error()
	c.logger.Error("Route failed after sending, swap halted",
		zap.String("swap_id", rec.ID),
		zap.String("wallet_id", rec.WalletID),
		zap.String("swap_tx_hash", se.TxHash),
		zap.Error(se.Err))
	err := c.persist(ctx, rec.ID, func(ctx context.Context) error {
		return c.store.CreateSwap(ctx, rec)
	})
	if err != nil {
		return fmt.Errorf("failed to create swap %s: %w: %w", rec.ID, swap.ErrSubmissionUnrecorded, se)
	}
	return se
}

// Advance dispatches on the record's status.
func (c *Coordinator) Advance(ctx context.Context, rec *swap.Record) (*swap.Record, error) {
	switch rec.Status {
	case swap.StatusAwaitingApprovalConfirmation:
		return c.awaitApproval(ctx, rec)
	case swap.StatusApprovalConfirmed:
		return c.submit(ctx, rec)
	case swap.StatusAwaitingSettlementConfirmation:
		return c.awaitSettlement(ctx, rec)
	case swap.StatusSuccess, swap.StatusFailed:
		return rec, nil
	}
	return nil, fmt.Errorf("%w: %q", swap.ErrUnknownStatus, rec.Status)
}

func (c *Coordinator) awaitApproval(ctx context.Context, rec *swap.Record) (*swap.Record, error) {
	if rec.ApproveTxHash == "" {
		return nil, &swap.FatalProbeError{Probe: "approval", Err: fmt.Errorf("swap %s has no approval transaction", rec.ID)}
	}
	reader, err := c.chains.Reader(ctx, rec.Network, rec.FromChainID)
	if err != nil {
		return nil, err
	}

	out, err := poller.Until(ctx, routing.ConfirmationProbe(reader, rec.ApproveTxHash), c.cfg.ApprovalPollInterval,
		poller.WithTimeout(c.cfg.PollTimeout),
		poller.WithName("approval"),
		poller.WithLogger(c.logger.With(zap.String("swap_id", rec.ID))))
	if stop, perr := c.pollResult(ctx, "approval", err); stop {
		if perr != nil {
			return nil, perr
		}
		return rec, nil
	}
	if out.Kind == poller.Failure {
		return nil, &swap.FatalProbeError{Probe: "approval", Err: fmt.Errorf("approval %s reverted", rec.ApproveTxHash)}
	}

	now := time.Now().UTC()
	return c.transition(ctx, rec, swap.Update{Status: swap.StatusApprovalConfirmed, EndTime: &now})
}

// submit holds the source account's gate while the route is submitted. A
// dispatch that waited behind another finds the record already advanced and
// returns it.
func (c *Coordinator) submit(ctx context.Context, rec *swap.Record) (*swap.Record, error) {
	key := gate.Key{WalletID: rec.WalletID, Network: rec.Network, Asset: rec.From}
	return gate.Do(ctx, c.gate, key, func(ctx context.Context) (*swap.Record, error) {
		current, err := c.store.GetSwap(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		if current.Status != swap.StatusApprovalConfirmed {
			c.logger.Debug("Swap already submitted",
				zap.String("swap_id", rec.ID),
				zap.String("status", current.Status.String()))
			return current, nil
		}

		sub, err := c.exec.Submit(ctx, current.Quote(), current.Network, current.WalletID)
		if err != nil {
			var se *swap.SubmissionError
			if errors.As(err, &se) && se.SwapID == "" {
				se.SwapID = rec.ID
			}
			return nil, err
		}

		hash := sub.TxHash
		u := swap.Update{
			Status:     swap.StatusAwaitingSettlementConfirmation,
			SwapTxHash: &hash,
			Route:      sub.Route,
		}
		var next *swap.Record
		err = c.persist(ctx, rec.ID, func(ctx context.Context) error {
			var err error
			next, err = c.store.UpdateSwap(ctx, current.ID, current.Status, u)
			return err
		})
		if errors.Is(err, swap.ErrStatusConflict) {
			// Someone else moved the record; the tx hash is theirs to keep.
			return c.store.GetSwap(context.WithoutCancel(ctx), rec.ID)
		}
		if err != nil {
			c.logger.Error("Swap sent but not recorded",
				zap.String("swap_id", rec.ID),
				zap.String("swap_tx_hash", hash),
				zap.Error(err))
			return nil, fmt.Errorf("swap %s tx %s: %w: %w", rec.ID, hash, swap.ErrSubmissionUnrecorded, err)
		}
		c.announce(ctx, current, next)
		return next, nil
	})
}

// persist runs write until it succeeds, the record turns out to have moved,
// or the attempts run out. It is used after a transaction was sent, so it
// ignores the caller's cancellation and never resends anything itself.
func (c *Coordinator) persist(ctx context.Context, id string, write func(context.Context) error) error {
	ctx = context.WithoutCancel(ctx)
	attempts := max(c.persistAttempts, 1)
	backoff := c.persistBackoff
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = write(ctx); err == nil || errors.Is(err, swap.ErrStatusConflict) {
			return err
		}
		if attempt == attempts {
			break
		}
		c.logger.Warn("Failed to persist sent swap, will retry",
			zap.String("swap_id", id),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		time.Sleep(backoff)
		backoff *= 2
	}
	return err
}

func (c *Coordinator) awaitSettlement(ctx context.Context, rec *swap.Record) (*swap.Record, error) {
	if rec.Route == nil || rec.SwapTxHash == "" {
		return nil, &swap.FatalProbeError{Probe: "settlement", Err: fmt.Errorf("swap %s has no submitted route", rec.ID)}
	}
	req := routing.StatusRequest{
		Bridge:    rec.Route.Bridge(),
		FromChain: rec.FromChainID,
		ToChain:   rec.ToChainID,
		TxHash:    rec.SwapTxHash,
	}
	if step := rec.Route.SettlingStep(); step != nil && step.Action.FromChainID != 0 {
		req.FromChain = step.Action.FromChainID
	}

	out, err := poller.Until(ctx, c.settlement.StatusProbe(req), c.cfg.SettlementPollInterval,
		poller.WithTimeout(c.cfg.PollTimeout),
		poller.WithName("settlement"),
		poller.WithLogger(c.logger.With(zap.String("swap_id", rec.ID))))
	if stop, perr := c.pollResult(ctx, "settlement", err); stop {
		if perr != nil {
			return nil, perr
		}
		return rec, nil
	}

	status := swap.StatusSuccess
	if out.Kind == poller.Failure {
		status = swap.StatusFailed
	}
	now := time.Now().UTC()
	next, err := c.transition(ctx, rec, swap.Update{Status: status, EndTime: &now})
	if err != nil {
		return nil, err
	}
	c.refreshBalance(ctx, next)
	return next, nil
}

// pollResult reports whether the caller must stop with the given record and
// error. A timeout stops without an error; cancellation returns ctx.Err().
func (c *Coordinator) pollResult(ctx context.Context, probe string, err error) (bool, error) {
	switch {
	case err == nil:
		return false, nil
	case ctx.Err() != nil:
		return true, ctx.Err()
	case errors.Is(err, poller.ErrTimeout):
		c.logger.Info("Poll timed out, swap left unchanged", zap.String("probe", probe))
		return true, nil
	}
	var fatal *swap.FatalProbeError
	if errors.As(err, &fatal) {
		return true, err
	}
	return true, &swap.FatalProbeError{Probe: probe, Err: err}
}

// transition persists u against rec's status, then records and announces it.
func (c *Coordinator) transition(ctx context.Context, rec *swap.Record, u swap.Update) (*swap.Record, error) {
	next, err := c.store.UpdateSwap(ctx, rec.ID, rec.Status, u)
	if err != nil {
		return nil, fmt.Errorf("failed to persist %s -> %s: %w", rec.Status, u.Status, err)
	}
	c.announce(ctx, rec, next)
	return next, nil
}

// announce records and publishes a persisted transition.
func (c *Coordinator) announce(ctx context.Context, rec, next *swap.Record) {
	metrics.SwapTransitions.WithLabelValues(rec.Status.String(), next.Status.String()).Inc()
	if next.Status.IsTerminal() {
		metrics.SwapDuration.WithLabelValues(next.Status.String()).Observe(time.Since(next.StartTime).Seconds())
	}
	c.logger.Info("Swap advanced",
		zap.String("swap_id", rec.ID),
		zap.String("from_status", rec.Status.String()),
		zap.String("to_status", next.Status.String()))

	c.notify(ctx, next)
}

func (c *Coordinator) refreshBalance(ctx context.Context, rec *swap.Record) {
	_, err := c.balances.Refresh(ctx, balance.Account{
		WalletID:  rec.WalletID,
		Network:   rec.Network,
		AccountID: rec.ToAccountID,
		Asset:     rec.To,
	})
	if err != nil {
		c.logger.Warn("Failed to refresh destination balance",
			zap.String("swap_id", rec.ID),
			zap.String("account_id", rec.ToAccountID),
			zap.Error(err))
	}
}

func (c *Coordinator) notify(ctx context.Context, rec *swap.Record) {
	n, err := notify.FromRecord(c.registry, rec)
	if err == nil {
		err = c.notifier.Notify(ctx, n)
	}
	if err != nil {
		c.logger.Warn("Failed to send notification", zap.String("swap_id", rec.ID), zap.Error(err))
	}
}
