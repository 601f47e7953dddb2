package swap

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrSwapNotFound      = errors.New("swap not found")
	ErrUnknownStatus     = errors.New("unknown swap status")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusConflict is returned when a record's stored status no longer
	// matches the status a transition was computed from.
	ErrStatusConflict = errors.New("swap status changed concurrently")
	// ErrSubmissionUnrecorded is returned when a transaction was sent but the
	// record could not be updated to reflect it.
	ErrSubmissionUnrecorded = errors.New("submission sent but not recorded")
)

// UnsupportedAssetError is returned when an asset or asset/network pair is not registered.
type UnsupportedAssetError struct {
	Asset   string
	Network string
	Err     error
}

func (e *UnsupportedAssetError) Error() string {
	return fmt.Sprintf("unsupported asset %s on %s: %v", e.Asset, e.Network, e.Err)
}

func (e *UnsupportedAssetError) Unwrap() error { return e.Err }

// QuoteUnavailableError is returned when the routing service cannot produce a usable quote.
type QuoteUnavailableError struct {
	From string
	To   string
	Err  error
}

func (e *QuoteUnavailableError) Error() string {
	return fmt.Sprintf("quote %s->%s unavailable: %v", e.From, e.To, e.Err)
}

func (e *QuoteUnavailableError) Unwrap() error { return e.Err }

// NoRouteError is returned when the routing service offers no execution route.
type NoRouteError struct {
	FromChainID int64
	ToChainID   int64
	From        string
	To          string
}

func (e *NoRouteError) Error() string {
	return fmt.Sprintf("no route for %s (chain %d) -> %s (chain %d)", e.From, e.FromChainID, e.To, e.ToChainID)
}

// SubmissionError is returned when an on-chain submission fails. The record is left unchanged.
// Sent is set when part of the submission already reached the chain; TxHash is
// then the last transaction sent.
type SubmissionError struct {
	SwapID string
	Stage  string
	Sent   bool
	TxHash string
	Err    error
}

func (e *SubmissionError) Error() string {
	msg := fmt.Sprintf("%s submission failed: %v", e.Stage, e.Err)
	if e.Sent {
		msg = fmt.Sprintf("%s submission failed after sending %s: %v", e.Stage, e.TxHash, e.Err)
	}
	if e.SwapID == "" {
		return msg
	}
	return fmt.Sprintf("swap %s: %s", e.SwapID, msg)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// TransientProbeError marks a probe failure that polling absorbs.
type TransientProbeError struct {
	Probe string
	Err   error
}

func (e *TransientProbeError) Error() string {
	return fmt.Sprintf("%s probe: transient: %v", e.Probe, e.Err)
}

func (e *TransientProbeError) Unwrap() error { return e.Err }

// FatalProbeError halts polling for a record and surfaces to the caller.
type FatalProbeError struct {
	Probe string
	Err   error
}

func (e *FatalProbeError) Error() string {
	return fmt.Sprintf("%s probe failed: %v", e.Probe, e.Err)
}

func (e *FatalProbeError) Unwrap() error { return e.Err }

// IsRetryable reports whether a dispatch error leaves the record safe to dispatch again.
// Submissions that already put a transaction on chain are never retried.
func IsRetryable(err error) bool {
	var (
		unsupported *UnsupportedAssetError
		submission  *SubmissionError
	)
	switch {
	case err == nil:
		return false
	case errors.As(err, &unsupported),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrUnknownStatus),
		errors.Is(err, ErrSubmissionUnrecorded):
		return false
	case errors.As(err, &submission) && submission.Sent:
		return false
	}
	return true
}
