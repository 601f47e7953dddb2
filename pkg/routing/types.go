package routing

import (
	"fmt"
	"math/big"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Settlement statuses reported by GET /status.
const (
	StatusNotFound = "NOT_FOUND"
	StatusInvalid  = "INVALID"
	StatusPending  = "PENDING"
	StatusDone     = "DONE"
	StatusFailed   = "FAILED"
)

// Execution statuses tracked on route steps.
const (
	ExecutionPending = "PENDING"
	ExecutionDone    = "DONE"
	ExecutionFailed  = "FAILED"
)

// Token is a routing-service token descriptor.
type Token struct {
	Address  string `json:"address"`
	ChainID  int64  `json:"chainId"`
	Symbol   string `json:"symbol"`
	Decimals int32  `json:"decimals"`
	Name     string `json:"name,omitempty"`
	PriceUSD string `json:"priceUSD,omitempty"`
}

// FeeCost is a fee charged by a step.
type FeeCost struct {
	Name       string `json:"name"`
	Percentage string `json:"percentage,omitempty"`
	Token      Token  `json:"token"`
	Amount     string `json:"amount"`
	AmountUSD  string `json:"amountUSD,omitempty"`
	Included   bool   `json:"included"`
}

// GasCost is an estimated gas expense of a step.
type GasCost struct {
	Type      string `json:"type"`
	Estimate  string `json:"estimate,omitempty"`
	Limit     string `json:"limit,omitempty"`
	Amount    string `json:"amount"`
	AmountUSD string `json:"amountUSD,omitempty"`
	Token     Token  `json:"token"`
}

// Estimate is the routing service's execution estimate for a step.
type Estimate struct {
	Tool              string    `json:"tool,omitempty"`
	FromAmount        string    `json:"fromAmount"`
	ToAmount          string    `json:"toAmount" validate:"required"`
	ToAmountMin       string    `json:"toAmountMin,omitempty"`
	ApprovalAddress   string    `json:"approvalAddress,omitempty"`
	ExecutionDuration float64   `json:"executionDuration,omitempty"`
	FeeCosts          []FeeCost `json:"feeCosts,omitempty"`
	GasCosts          []GasCost `json:"gasCosts,omitempty"`
}

// ToAmountDecimal parses estimate.toAmount. It must be a non-negative number.
func (e Estimate) ToAmountDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(e.ToAmount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: estimate.toAmount %q: %v", ErrMalformedResponse, e.ToAmount, err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: negative estimate.toAmount %q", ErrMalformedResponse, e.ToAmount)
	}
	return d, nil
}

// Action describes what a step moves.
type Action struct {
	FromChainID int64   `json:"fromChainId" validate:"required"`
	ToChainID   int64   `json:"toChainId" validate:"required"`
	FromToken   Token   `json:"fromToken"`
	ToToken     Token   `json:"toToken"`
	FromAmount  string  `json:"fromAmount"`
	FromAddress string  `json:"fromAddress,omitempty"`
	ToAddress   string  `json:"toAddress,omitempty"`
	Slippage    float64 `json:"slippage,omitempty"`
}

// TransactionRequest is the unsigned transaction the routing service prepared for a step.
type TransactionRequest struct {
	From     string `json:"from,omitempty"`
	To       string `json:"to" validate:"required"`
	ChainID  int64  `json:"chainId,omitempty"`
	Data     string `json:"data"`
	Value    string `json:"value,omitempty"`
	GasPrice string `json:"gasPrice,omitempty"`
	GasLimit string `json:"gasLimit,omitempty"`
}

// Execution records local progress of a step.
type Execution struct {
	Status  string `json:"status"`
	TxHash  string `json:"txHash,omitempty"`
	ChainID int64  `json:"chainId,omitempty"`
}

// Step is one executable unit of a route, and also the shape of a quote.
type Step struct {
	ID                 string              `json:"id"`
	Type               string              `json:"type"`
	Tool               string              `json:"tool" validate:"required"`
	Action             Action              `json:"action"`
	Estimate           Estimate            `json:"estimate"`
	IncludedSteps      []Step              `json:"includedSteps,omitempty"`
	TransactionRequest *TransactionRequest `json:"transactionRequest,omitempty"`
	Execution          *Execution          `json:"execution,omitempty"`
}

// Route is a candidate execution path.
type Route struct {
	ID          string `json:"id" validate:"required"`
	FromChainID int64  `json:"fromChainId" validate:"required"`
	FromAmount  string `json:"fromAmount"`
	FromToken   Token  `json:"fromToken"`
	FromAddress string `json:"fromAddress,omitempty"`
	ToChainID   int64  `json:"toChainId" validate:"required"`
	ToAmount    string `json:"toAmount"`
	ToAmountMin string `json:"toAmountMin,omitempty"`
	ToToken     Token  `json:"toToken"`
	ToAddress   string `json:"toAddress,omitempty"`
	Steps       []Step `json:"steps" validate:"required,min=1,dive"`
}

// Bridge returns the tool that settles LastTxHash, used to query settlement
// status. Before any step is sent it is the first step's tool.
func (r *Route) Bridge() string {
	if step := r.SettlingStep(); step != nil {
		return step.Tool
	}
	if r == nil || len(r.Steps) == 0 {
		return ""
	}
	return r.Steps[0].Tool
}

// LastTxHash returns the hash of the last submitted step transaction.
func (r *Route) LastTxHash() string {
	if step := r.SettlingStep(); step != nil {
		return step.Execution.TxHash
	}
	return ""
}

// SettlingStep returns the last step whose transaction was sent, or nil.
func (r *Route) SettlingStep() *Step {
	if r == nil {
		return nil
	}
	for i := len(r.Steps) - 1; i >= 0; i-- {
		if ex := r.Steps[i].Execution; ex != nil && ex.TxHash != "" {
			return &r.Steps[i]
		}
	}
	return nil
}

// QuoteRequest are the GET /quote parameters.
type QuoteRequest struct {
	FromChain   int64
	ToChain     int64
	FromToken   string
	ToToken     string
	FromAmount  *big.Int
	FromAddress string
}

// RouteOptions tune route search.
type RouteOptions struct {
	Integrator string  `json:"integrator,omitempty"`
	Slippage   float64 `json:"slippage,omitempty"`
	Order      string  `json:"order,omitempty"`
	Referrer   string  `json:"referrer,omitempty"`
	Fee        float64 `json:"fee,omitempty"`
}

// RoutesRequest is the POST /advanced/routes body.
type RoutesRequest struct {
	FromChainID      int64         `json:"fromChainId"`
	FromAmount       string        `json:"fromAmount"`
	FromTokenAddress string        `json:"fromTokenAddress"`
	FromAddress      string        `json:"fromAddress,omitempty"`
	ToChainID        int64         `json:"toChainId"`
	ToTokenAddress   string        `json:"toTokenAddress"`
	ToAddress        string        `json:"toAddress,omitempty"`
	Options          *RouteOptions `json:"options,omitempty"`
}

type routesResponse struct {
	Routes []Route `json:"routes" validate:"dive"`
}

// StatusRequest are the GET /status parameters.
type StatusRequest struct {
	Bridge    string
	FromChain int64
	ToChain   int64
	TxHash    string
}

// TransferInfo describes one side of a bridge transfer.
type TransferInfo struct {
	TxHash  string `json:"txHash,omitempty"`
	ChainID int64  `json:"chainId,omitempty"`
	Amount  string `json:"amount,omitempty"`
	TxLink  string `json:"txLink,omitempty"`
}

// StatusResponse is the GET /status result.
type StatusResponse struct {
	Status           string       `json:"status" validate:"required"`
	Substatus        string       `json:"substatus,omitempty"`
	SubstatusMessage string       `json:"substatusMessage,omitempty"`
	Tool             string       `json:"tool,omitempty"`
	Sending          TransferInfo `json:"sending"`
	Receiving        TransferInfo `json:"receiving"`
}

// IsTerminal reports whether the transfer reached DONE or FAILED.
func (s *StatusResponse) IsTerminal() bool {
	return s.Status == StatusDone || s.Status == StatusFailed
}

var validate = validator.New()
