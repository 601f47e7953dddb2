package swap

import "strings"

// TotalSteps is the number of user-visible steps of a swap.
const TotalSteps = 3

// TxTypeSwap is the only transaction type a swap produces.
const TxTypeSwap = "SWAP"

// Transaction types recorded per side. The destination side has none: the
// bridge delivers funds without a transaction of the wallet's own.
const (
	FromTxType = TxTypeSwap
	ToTxType   = ""
)

// TxTypes lists the transaction types a swap can produce.
var TxTypes = []string{TxTypeSwap}

// TimelineSteps are the timeline diagram entries, in order.
var TimelineSteps = []string{"APPROVE", "SWAP"}

// Filter statuses group records for list views.
const (
	FilterPending   = "PENDING"
	FilterCompleted = "COMPLETED"
	FilterRefunded  = "REFUNDED"
)

// Display is the presentation entry for a status.
type Display struct {
	Step         int    `json:"step"`
	Label        string `json:"label"`
	FilterStatus string `json:"filter_status"`
	message      func(r *Record, prettyToAmount string) string
}

// DisplayFor returns the presentation entry of s.
func DisplayFor(s Status) (Display, bool) {
	engaging := func(*Record, string) string { return "Engaging LiFi" }

	switch s {
	case StatusAwaitingApprovalConfirmation:
		return Display{Step: 1, Label: "Swapping {from}", FilterStatus: FilterPending, message: engaging}, true
	case StatusApprovalConfirmed:
		return Display{Step: 2, Label: "Swapping {to}", FilterStatus: FilterPending, message: engaging}, true
	case StatusAwaitingSettlementConfirmation:
		return Display{Step: 2, Label: "Swapping {to}", FilterStatus: FilterPending, message: engaging}, true
	case StatusSuccess:
		return Display{Step: 3, Label: "Completed", FilterStatus: FilterCompleted,
			message: func(r *Record, amount string) string {
				return "Swap completed, " + amount + " " + r.To + " ready to use"
			}}, true
	case StatusFailed:
		return Display{Step: 3, Label: "Swap Failed", FilterStatus: FilterRefunded,
			message: func(*Record, string) string { return "Swap failed" }}, true
	}
	return Display{}, false
}

// RenderLabel substitutes the record's assets into the label.
func (d Display) RenderLabel(r *Record) string {
	return strings.NewReplacer("{from}", r.From, "{to}", r.To).Replace(d.Label)
}

// Message renders the notification text. prettyToAmount is the destination
// amount formatted for display.
func (d Display) Message(r *Record, prettyToAmount string) string {
	if d.message == nil {
		return ""
	}
	return d.message(r, prettyToAmount)
}
