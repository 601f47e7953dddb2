// Package api exposes quotes and swaps over HTTP.
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// WalletHeader identifies the caller when bearer authentication is disabled.
const WalletHeader = "X-Wallet-ID"

// QuoteRequest asks for a quote of Amount, in display units of From.
type QuoteRequest struct {
	From    string          `json:"from" validate:"required"`
	To      string          `json:"to" validate:"required,nefield=From"`
	Amount  decimal.Decimal `json:"amount"`
	Network string          `json:"network" validate:"required,oneof=mainnet testnet"`
}

// QuoteResponse is a priced quote. Amounts are base-unit integers.
type QuoteResponse struct {
	From            string `json:"from"`
	To              string `json:"to"`
	Network         string `json:"network"`
	FromAmount      string `json:"from_amount"`
	ToAmount        string `json:"to_amount"`
	FromChainID     int64  `json:"from_chain_id"`
	ToChainID       int64  `json:"to_chain_id"`
	Tool            string `json:"tool"`
	ApprovalAddress string `json:"approval_address,omitempty"`
	MinAmount       string `json:"min_amount"`
}

// SwapRequest accepts a fresh quote for the request's parameters.
type SwapRequest struct {
	QuoteRequest
	Fee decimal.Decimal `json:"fee"`
}

// SwapResponse is a swap record.
type SwapResponse struct {
	ID            string      `json:"id"`
	WalletID      string      `json:"wallet_id"`
	Network       string      `json:"network"`
	From          string      `json:"from"`
	To            string      `json:"to"`
	FromAccountID string      `json:"from_account_id"`
	ToAccountID   string      `json:"to_account_id"`
	FromAmount    string      `json:"from_amount"`
	ToAmount      string      `json:"to_amount"`
	FromChainID   int64       `json:"from_chain_id"`
	ToChainID     int64       `json:"to_chain_id"`
	Fee           string      `json:"fee"`
	ApproveTxHash string      `json:"approve_tx_hash,omitempty"`
	SwapTxHash    string      `json:"swap_tx_hash,omitempty"`
	Bridge        string      `json:"bridge,omitempty"`
	Status        swap.Status `json:"status"`
	StartTime     time.Time   `json:"start_time"`
	EndTime       *time.Time  `json:"end_time,omitempty"`
	LastError     string      `json:"last_error,omitempty"`
	RetryCount    int         `json:"retry_count"`
	Halted        bool        `json:"halted"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// SwapStatusResponse is the display state of one swap.
type SwapStatusResponse struct {
	ID           string      `json:"id"`
	Status       swap.Status `json:"status"`
	Step         int         `json:"step"`
	TotalSteps   int         `json:"total_steps"`
	Label        string      `json:"label"`
	Message      string      `json:"message"`
	FilterStatus string      `json:"filter_status"`
	Timeline     []string    `json:"timeline"`
	TxTypes      []string    `json:"tx_types"`
	FromTxType   string      `json:"from_tx_type"`
	// ToTxType is null: the destination side has no transaction.
	ToTxType     *string     `json:"to_tx_type"`
	Terminal     bool        `json:"terminal"`
}

// StatusInfo describes one lifecycle status.
type StatusInfo struct {
	Status       swap.Status `json:"status"`
	Step         int         `json:"step"`
	Label        string      `json:"label"`
	FilterStatus string      `json:"filter_status"`
	Terminal     bool        `json:"terminal"`
}

// AbortResponse reports whether a running driver was stopped.
type AbortResponse struct {
	ID      string `json:"id"`
	Aborted bool   `json:"aborted"`
}

func toSwapResponse(rec *swap.Record) SwapResponse {
	resp := SwapResponse{
		ID:            rec.ID,
		WalletID:      rec.WalletID,
		Network:       rec.Network,
		From:          rec.From,
		To:            rec.To,
		FromAccountID: rec.FromAccountID,
		ToAccountID:   rec.ToAccountID,
		FromChainID:   rec.FromChainID,
		ToChainID:     rec.ToChainID,
		Fee:           rec.Fee.String(),
		ApproveTxHash: rec.ApproveTxHash,
		SwapTxHash:    rec.SwapTxHash,
		Status:        rec.Status,
		StartTime:     rec.StartTime,
		EndTime:       rec.EndTime,
		LastError:     rec.LastError,
		RetryCount:    rec.RetryCount,
		Halted:        rec.Halted,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.FromAmount != nil {
		resp.FromAmount = rec.FromAmount.String()
	}
	if rec.ToAmount != nil {
		resp.ToAmount = rec.ToAmount.String()
	}
	if rec.Route != nil {
		resp.Bridge = rec.Route.Bridge()
	}
	return resp
}
