// Package poller runs a probe on a fixed interval and exposes its outcomes as a
// lazy, cancellable sequence.
package poller

import (
	"context"
	"errors"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
)

// ErrTimeout is returned by Until when the optional timeout elapses first.
var ErrTimeout = errors.New("poll timed out")

// Kind classifies a probe outcome.
type Kind int

const (
	// NotYet means keep polling.
	NotYet Kind = iota
	// Success is a terminal success carrying a payload.
	Success
	// Failure is a terminal failure carrying a payload.
	Failure
	// Transient is a probe error that polling absorbs.
	Transient
	// Fatal is a probe error that ends polling and surfaces.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case NotYet:
		return "not_yet"
	case Success:
		return "success"
	case Failure:
		return "failure"
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Terminal reports whether the sequence ends after an outcome of this kind.
func (k Kind) Terminal() bool {
	return k == Success || k == Failure || k == Fatal
}

// Outcome is the result of one probe invocation.
type Outcome[T any] struct {
	Kind  Kind
	Value T
	Err   error
}

// Probe checks external state once.
type Probe[T any] func(ctx context.Context) Outcome[T]

func Pending[T any]() Outcome[T] { return Outcome[T]{Kind: NotYet} }
func Succeeded[T any](v T) Outcome[T] { return Outcome[T]{Kind: Success, Value: v} }
func Failed[T any](v T) Outcome[T] { return Outcome[T]{Kind: Failure, Value: v} }
func Retry[T any](err error) Outcome[T] { return Outcome[T]{Kind: Transient, Err: err} }
func Abort[T any](err error) Outcome[T] { return Outcome[T]{Kind: Fatal, Err: err} }

type options struct {
	timeout time.Duration
	name    string
	logger  *zap.Logger
}

// Option configures a poll.
type Option func(*options)

// WithTimeout ends the sequence after d. Zero means no timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithName labels log lines and metrics.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger logs transient errors.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Poll returns the outcomes of probe invoked every interval, starting immediately.
// The sequence ends after a terminal outcome, when ctx is done, when the timeout
// elapses, or when the consumer stops iterating. No probe runs after any of these,
// and an outcome observed after cancellation is dropped.
func Poll[T any](ctx context.Context, probe Probe[T], interval time.Duration, opts ...Option) iter.Seq[Outcome[T]] {
	o := options{name: "probe", logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(yield func(Outcome[T]) bool) {
		ctx := ctx
		if o.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, o.timeout)
			defer cancel()
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if ctx.Err() != nil {
				return
			}

			out := probe(ctx)
			if ctx.Err() != nil {
				return
			}

			metrics.PollOutcomes.WithLabelValues(o.name, out.Kind.String()).Inc()
			if out.Kind == Transient {
				o.logger.Warn("Probe failed, will retry",
					zap.String("probe", o.name),
					zap.Duration("interval", interval),
					zap.Error(out.Err))
			}

			if !yield(out) || out.Kind.Terminal() {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}
}

// Until polls until a terminal outcome. Success and Failure return a nil error;
// Fatal returns the probe's error. Cancellation returns ctx.Err() and an elapsed
// timeout returns ErrTimeout.
func Until[T any](ctx context.Context, probe Probe[T], interval time.Duration, opts ...Option) (Outcome[T], error) {
	for out := range Poll(ctx, probe, interval, opts...) {
		switch out.Kind {
		case Success, Failure:
			return out, nil
		case Fatal:
			return out, out.Err
		}
	}
	if err := ctx.Err(); err != nil {
		return Outcome[T]{}, err
	}
	return Outcome[T]{}, ErrTimeout
}
