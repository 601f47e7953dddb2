package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// EngineStore is the persistence the engine needs.
type EngineStore interface {
	GetSwap(ctx context.Context, id string) (*swap.Record, error)
	ListPendingSwaps(ctx context.Context) ([]*swap.Record, error)
	RecordError(ctx context.Context, id string, msg string) (int, error)
	// HaltSwap marks a swap as no longer driven. Its status is kept.
	HaltSwap(ctx context.Context, id string, reason string) error
}

const haltTimeout = 10 * time.Second

type driver struct {
	cancel context.CancelFunc
}

// Engine drives every pending swap in its own goroutine until it is terminal.
type Engine struct {
	svc    Service
	store  EngineStore
	cfg    config.CoordinatorConfig
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	drivers map[string]*driver
	// halted holds swaps stopped in this process, whether or not the halt
	// reached the store.
	halted map[string]struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEngine creates a new swap engine
func NewEngine(svc Service, store EngineStore, cfg config.CoordinatorConfig, logger *zap.Logger) *Engine {
	return &Engine{
		svc:     svc,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		drivers: make(map[string]*driver),
		halted:  make(map[string]struct{}),
		stopCh:  make(chan struct{}),
	}
}

// Start resumes every pending swap and starts periodic reconciliation.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting swap engine")

	e.mu.Lock()
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	if err := e.runReconciliation(ctx); err != nil {
		return fmt.Errorf("failed to resume pending swaps: %w", err)
	}

	if e.cfg.ReconcileInterval > 0 {
		e.wg.Add(1)
		go e.reconcile()
	}

	e.logger.Info("Swap engine started", zap.Int("drivers", e.Active()))
	return nil
}

// Stop cancels every driver and waits for them to exit. It is safe to call
// more than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.logger.Info("Stopping swap engine")
		close(e.stopCh)
		e.mu.Lock()
		if e.cancel != nil {
			e.cancel()
		}
		e.mu.Unlock()
		e.wg.Wait()
		e.logger.Info("Swap engine stopped")
	})
}

// Track starts driving rec. It returns false when rec is terminal or halted,
// already driven, or the engine is not running.
func (e *Engine) Track(rec *swap.Record) bool {
	if rec.Status.IsTerminal() || rec.Halted {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ctx == nil || e.ctx.Err() != nil {
		return false
	}
	if _, ok := e.drivers[rec.ID]; ok {
		return false
	}
	if _, ok := e.halted[rec.ID]; ok {
		return false
	}

	ctx, cancel := context.WithCancel(e.ctx)
	d := &driver{cancel: cancel}
	e.drivers[rec.ID] = d
	metrics.ActiveDrivers.Set(float64(len(e.drivers)))

	e.wg.Add(1)
	go e.drive(ctx, rec.Clone(), d)
	return true
}

// Abort stops driving one swap and halts it so reconciliation leaves it
// alone. The record keeps its status. It reports whether a driver was running.
func (e *Engine) Abort(id string) bool {
	e.mu.Lock()
	e.halted[id] = struct{}{}
	d, ok := e.drivers[id]
	if ok {
		d.cancel()
	}
	e.mu.Unlock()

	e.persistHalt(id, "aborted")
	if ok {
		e.logger.Info("Swap driver aborted", zap.String("swap_id", id))
	}
	return ok
}

// halt keeps id from being tracked again and records why.
func (e *Engine) halt(id, reason string) {
	e.mu.Lock()
	e.halted[id] = struct{}{}
	e.mu.Unlock()
	e.persistHalt(id, reason)
}

func (e *Engine) persistHalt(id, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), haltTimeout)
	defer cancel()
	if err := e.store.HaltSwap(ctx, id, reason); err != nil {
		if errors.Is(err, swap.ErrSwapNotFound) {
			return
		}
		metrics.ErrorsTotal.WithLabelValues("engine", "halt").Inc()
		e.logger.Error("Failed to persist swap halt, held in memory only",
			zap.String("swap_id", id),
			zap.Error(err))
	}
}

func (e *Engine) isHalted(rec *swap.Record) bool {
	if rec.Halted {
		return true
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.halted[rec.ID]
	return ok
}

// Active returns the number of swaps being driven.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.drivers)
}

func (e *Engine) release(id string, d *driver) {
	e.mu.Lock()
	defer e.mu.Unlock()

	d.cancel()
	if e.drivers[id] == d {
		delete(e.drivers, id)
	}
	metrics.ActiveDrivers.Set(float64(len(e.drivers)))
}

// drive advances rec until it is terminal, parked or cancelled.
func (e *Engine) drive(ctx context.Context, rec *swap.Record, d *driver) {
	defer e.wg.Done()
	defer e.release(rec.ID, d)

	log := e.logger.With(zap.String("swap_id", rec.ID))

	for !rec.Status.IsTerminal() {
		next, err := e.svc.Advance(ctx, rec)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			rec = next
			continue
		}

		if errors.Is(err, swap.ErrStatusConflict) {
			if rec, err = e.store.GetSwap(ctx, rec.ID); err != nil {
				log.Error("Failed to reload swap", zap.Error(err))
				return
			}
			continue
		}

		metrics.ErrorsTotal.WithLabelValues("engine", "advance").Inc()
		count, rerr := e.store.RecordError(ctx, rec.ID, err.Error())
		if rerr != nil {
			log.Error("Failed to record swap error", zap.Error(rerr))
		}
		if !swap.IsRetryable(err) {
			log.Error("Swap cannot be advanced, halting", zap.String("status", rec.Status.String()), zap.Error(err))
			e.halt(rec.ID, err.Error())
			return
		}
		if e.parked(count) {
			log.Warn("Swap parked after repeated failures",
				zap.String("status", rec.Status.String()),
				zap.Int("retries", count),
				zap.Error(err))
			return
		}

		log.Warn("Swap advance failed, will retry",
			zap.String("status", rec.Status.String()),
			zap.Int("retries", count),
			zap.Duration("delay", e.cfg.RetryDelay),
			zap.Error(err))

		timer := time.NewTimer(e.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if fresh, err := e.store.GetSwap(ctx, rec.ID); err == nil {
			rec = fresh
		}
	}
	log.Info("Swap finished", zap.String("status", rec.Status.String()))
}

// parked reports whether a swap with count recorded errors is left alone.
// Zero max retries means retry forever.
func (e *Engine) parked(count int) bool {
	return e.cfg.MaxRetries > 0 && count >= e.cfg.MaxRetries
}

// reconcile periodically picks up pending swaps no driver is tracking
func (e *Engine) reconcile() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.runReconciliation(e.ctx); err != nil {
				e.logger.Error("Reconciliation failed", zap.Error(err))
			}
		}
	}
}

// runReconciliation refreshes the pending gauge and tracks untracked pending swaps
func (e *Engine) runReconciliation(ctx context.Context) error {
	pending, err := e.store.ListPendingSwaps(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pending swaps: %w", err)
	}

	counts := make(map[swap.Status]int)
	started, parked, halted := 0, 0, 0
	for _, rec := range pending {
		counts[rec.Status]++
		if e.isHalted(rec) {
			halted++
			continue
		}
		if e.parked(rec.RetryCount) {
			parked++
			continue
		}
		if e.Track(rec) {
			started++
		}
	}
	for _, status := range swap.PendingStatuses() {
		metrics.PendingSwaps.WithLabelValues(status.String()).Set(float64(counts[status]))
	}

	e.logger.Info("Reconciliation summary",
		zap.Int("pending", len(pending)),
		zap.Int("started", started),
		zap.Int("parked", parked),
		zap.Int("halted", halted))
	return nil
}
