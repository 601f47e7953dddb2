// Package gate serialises state-advancing actions per (wallet, network, asset).
package gate

import (
	"context"
	"sync"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
)

// Key identifies the account whose submissions must not overlap.
type Key struct {
	WalletID string
	Network  string
	Asset    string
}

func (k Key) String() string {
	return k.WalletID + "/" + k.Network + "/" + k.Asset
}

type entry struct {
	sem  chan struct{}
	refs int
}

// Gate is a registry of per-key locks. Entries exist only while a holder or
// waiter references them.
type Gate struct {
	mu      sync.Mutex
	entries map[Key]*entry
}

// New creates an empty gate
func New() *Gate {
	return &Gate{entries: make(map[Key]*entry)}
}

// WithExclusiveAccess runs fn while holding key. Callers for the same key wait
// in turn; waiting stops when ctx is done. fn's error is returned unchanged and
// the key is released on every path.
func (g *Gate) WithExclusiveAccess(ctx context.Context, key Key, fn func(ctx context.Context) error) error {
	e := g.ref(key)
	defer g.unref(key, e)

	metrics.GateWaiters.Inc()
	select {
	case e.sem <- struct{}{}:
		metrics.GateWaiters.Dec()
	case <-ctx.Done():
		metrics.GateWaiters.Dec()
		return ctx.Err()
	}
	defer func() { <-e.sem }()

	return fn(ctx)
}

// Do is WithExclusiveAccess for actions that produce a value.
func Do[T any](ctx context.Context, g *Gate, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.WithExclusiveAccess(ctx, key, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// Len returns the number of live keys.
func (g *Gate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

func (g *Gate) ref(key Key) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		g.entries[key] = e
	}
	e.refs++
	return e
}

func (g *Gate) unref(key Key, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(g.entries, key)
	}
}
