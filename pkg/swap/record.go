// Package swap holds the swap record model, its status machine table and the
// error taxonomy shared by the coordinator components.
package swap

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/swap-coordinator/pkg/routing"
)

// Quote is a priced, not yet accepted swap.
type Quote struct {
	From        string
	To          string
	Network     string
	FromAmount  *big.Int
	ToAmount    *big.Int
	FromChainID int64
	ToChainID   int64
	Tool        string
	Estimate    routing.Estimate
}

// Record is the persistent state of one swap.
type Record struct {
	ID            string
	WalletID      string
	Network       string
	From          string
	To            string
	FromAccountID string
	ToAccountID   string
	FromAmount    *big.Int
	ToAmount      *big.Int
	FromChainID   int64
	ToChainID     int64
	Fee           decimal.Decimal

	ApproveTxHash string
	SwapTxHash    string
	Route         *routing.Route

	Status    Status
	StartTime time.Time
	EndTime   *time.Time

	LastError  string
	RetryCount int
	// Halted swaps keep their status but are no longer driven: they were
	// aborted by the user or stopped on an error a retry could make worse.
	Halted    bool
	CreatedAt time.Time
	UpdatedAt  time.Time
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.FromAmount != nil {
		c.FromAmount = new(big.Int).Set(r.FromAmount)
	}
	if r.ToAmount != nil {
		c.ToAmount = new(big.Int).Set(r.ToAmount)
	}
	if r.EndTime != nil {
		t := *r.EndTime
		c.EndTime = &t
	}
	if r.Route != nil {
		route := *r.Route
		route.Steps = append([]routing.Step(nil), r.Route.Steps...)
		c.Route = &route
	}
	return &c
}

// Update is the set of fields a transition writes. Nil fields are left unchanged.
// Amounts are not part of an update.
type Update struct {
	Status        Status
	ApproveTxHash *string
	SwapTxHash    *string
	Route         *routing.Route
	EndTime       *time.Time
}

// Apply returns a copy of r with u applied.
func (r *Record) Apply(u Update) *Record {
	c := r.Clone()
	c.Status = u.Status
	if u.ApproveTxHash != nil {
		c.ApproveTxHash = *u.ApproveTxHash
	}
	if u.SwapTxHash != nil {
		c.SwapTxHash = *u.SwapTxHash
	}
	if u.Route != nil {
		c.Route = u.Route
	}
	if u.EndTime != nil {
		t := *u.EndTime
		c.EndTime = &t
	}
	c.LastError = ""
	c.RetryCount = 0
	return c
}

// Quote returns the accepted quote the record was created from.
func (r *Record) Quote() *Quote {
	q := &Quote{
		From:        r.From,
		To:          r.To,
		Network:     r.Network,
		FromChainID: r.FromChainID,
		ToChainID:   r.ToChainID,
	}
	if r.FromAmount != nil {
		q.FromAmount = new(big.Int).Set(r.FromAmount)
	}
	if r.ToAmount != nil {
		q.ToAmount = new(big.Int).Set(r.ToAmount)
	}
	if r.Route != nil {
		q.Tool = r.Route.Bridge()
	}
	return q
}
