package swap

import "fmt"

// Status is the lifecycle state of a swap record.
type Status string

const (
	StatusAwaitingApprovalConfirmation   Status = "AWAITING_APPROVAL_CONFIRMATION"
	StatusApprovalConfirmed              Status = "APPROVAL_CONFIRMED"
	StatusAwaitingSettlementConfirmation Status = "AWAITING_SETTLEMENT_CONFIRMATION"
	StatusSuccess                        Status = "SUCCESS"
	StatusFailed                         Status = "FAILED"
)

// transitions is the complete forward transition table.
var transitions = map[Status][]Status{
	StatusAwaitingApprovalConfirmation:   {StatusApprovalConfirmed},
	StatusApprovalConfirmed:              {StatusAwaitingSettlementConfirmation},
	StatusAwaitingSettlementConfirmation: {StatusSuccess, StatusFailed},
	StatusSuccess:                        nil,
	StatusFailed:                         nil,
}

// Statuses returns every status in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusAwaitingApprovalConfirmation,
		StatusApprovalConfirmed,
		StatusAwaitingSettlementConfirmation,
		StatusSuccess,
		StatusFailed,
	}
}

// PendingStatuses returns the non-terminal statuses.
func PendingStatuses() []Status {
	return []Status{
		StatusAwaitingApprovalConfirmation,
		StatusApprovalConfirmed,
		StatusAwaitingSettlementConfirmation,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no further transitions leave s.
func (s Status) IsTerminal() bool {
	next, ok := transitions[s]
	return ok && len(next) == 0
}

// CanAdvanceTo reports whether next is a legal successor of s.
func (s Status) CanAdvanceTo(next Status) bool {
	for _, n := range transitions[s] {
		if n == next {
			return true
		}
	}
	return false
}

// ParseStatus parses a persisted status string.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
	}
	return s, nil
}

func (s Status) String() string {
	return string(s)
}
