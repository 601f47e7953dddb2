package routing

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/poller"
)

// StepError reports which route step failed.
type StepError struct {
	Index int
	Tool  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Tool, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// ErrStepFailed is reported when the routing service marks an intermediate step FAILED.
var ErrStepFailed = errors.New("step failed")

// AccountResolver returns a sender handle for a chain other than the initial handle's.
type AccountResolver func(ctx context.Context, chainID int64) (chain.Account, error)

type executeOptions struct {
	switchChain  AccountResolver
	pollInterval time.Duration
	pollTimeout  time.Duration
	update       func(Route)
}

// ExecuteOption configures ExecuteRoute
type ExecuteOption func(*executeOptions)

// WithSwitchChain resolves handles for steps that start on another chain.
func WithSwitchChain(r AccountResolver) ExecuteOption {
	return func(o *executeOptions) { o.switchChain = r }
}

// WithPollInterval sets how often intermediate steps and approvals are checked.
func WithPollInterval(d time.Duration) ExecuteOption {
	return func(o *executeOptions) { o.pollInterval = d }
}

// WithPollTimeout bounds each intermediate wait.
func WithPollTimeout(d time.Duration) ExecuteOption {
	return func(o *executeOptions) { o.pollTimeout = d }
}

// WithUpdateHook is called with the route after every step transaction is sent or settles.
func WithUpdateHook(fn func(Route)) ExecuteOption {
	return func(o *executeOptions) { o.update = fn }
}

// ExecuteRoute submits every step of route through handle. Token approvals a step
// needs are sent and confirmed first. For multi-step routes each intermediate step
// must settle before the next is submitted. The returned route carries the
// execution state of every step; settlement of the last step is left to the caller.
func (c *Client) ExecuteRoute(ctx context.Context, handle chain.Account, route Route, opts ...ExecuteOption) (*Route, error) {
	o := executeOptions{pollInterval: 10 * time.Second, update: func(Route) {}}
	for _, opt := range opts {
		opt(&o)
	}

	exec := route
	exec.Steps = append([]Step(nil), route.Steps...)
	if len(exec.Steps) == 0 {
		return nil, fmt.Errorf("route %s has no steps", route.ID)
	}

	for i := range exec.Steps {
		step := &exec.Steps[i]
		log := c.logger.With(zap.String("route_id", exec.ID), zap.Int("step", i), zap.String("tool", step.Tool))

		account, err := c.accountFor(ctx, handle, step, o)
		if err != nil {
			return &exec, &StepError{Index: i, Tool: step.Tool, Err: err}
		}

		if err := c.ensureAllowance(ctx, account, step, o, log); err != nil {
			return &exec, &StepError{Index: i, Tool: step.Tool, Err: err}
		}

		populated, err := c.GetStepTransaction(ctx, *step)
		if err != nil {
			return &exec, &StepError{Index: i, Tool: step.Tool, Err: err}
		}

		txReq, err := populated.TransactionRequest.toTxRequest(account.ChainID())
		if err != nil {
			return &exec, &StepError{Index: i, Tool: step.Tool, Err: err}
		}

		hash, err := account.SendTransaction(ctx, txReq)
		if err != nil {
			return &exec, &StepError{Index: i, Tool: step.Tool, Err: err}
		}
		log.Info("Step transaction sent", zap.String("tx_hash", hash))

		step.TransactionRequest = populated.TransactionRequest
		step.Execution = &Execution{Status: ExecutionPending, TxHash: hash, ChainID: account.ChainID()}
		o.update(exec)

		if i == len(exec.Steps)-1 {
			break
		}

		if err := c.waitStep(ctx, step, o); err != nil {
			if errors.Is(err, ErrStepFailed) {
				step.Execution.Status = ExecutionFailed
				o.update(exec)
			}
			return &exec, &StepError{Index: i, Tool: step.Tool, Err: err}
		}
		step.Execution.Status = ExecutionDone
		o.update(exec)
	}

	return &exec, nil
}

func (c *Client) accountFor(ctx context.Context, handle chain.Account, step *Step, o executeOptions) (chain.Account, error) {
	if step.Action.FromChainID == 0 || step.Action.FromChainID == handle.ChainID() {
		return handle, nil
	}
	if o.switchChain == nil {
		return nil, fmt.Errorf("step starts on chain %d but handle is bound to chain %d", step.Action.FromChainID, handle.ChainID())
	}
	return o.switchChain(ctx, step.Action.FromChainID)
}

func (c *Client) ensureAllowance(ctx context.Context, account chain.Account, step *Step, o executeOptions, log *zap.Logger) error {
	token := step.Action.FromToken.Address
	spender := step.Estimate.ApprovalAddress
	if spender == "" || isNativeToken(token) {
		return nil
	}

	amount, ok := new(big.Int).SetString(step.Action.FromAmount, 10)
	if !ok {
		return fmt.Errorf("%w: step fromAmount %q", ErrMalformedResponse, step.Action.FromAmount)
	}

	allowance, err := account.Allowance(ctx, token, spender)
	if err != nil {
		return err
	}
	if allowance.Cmp(amount) >= 0 {
		return nil
	}

	hash, err := account.Approve(ctx, token, spender, amount)
	if err != nil {
		return err
	}
	log.Info("Waiting for step approval", zap.String("tx_hash", hash))

	out, err := poller.Until(ctx, ConfirmationProbe(account, hash), o.pollInterval,
		poller.WithName("step_approval"), poller.WithLogger(log), poller.WithTimeout(o.pollTimeout))
	if err != nil {
		return fmt.Errorf("approval %s: %w", hash, err)
	}
	if out.Kind == poller.Failure {
		return fmt.Errorf("approval %s reverted", hash)
	}
	return nil
}

func (c *Client) waitStep(ctx context.Context, step *Step, o executeOptions) error {
	req := StatusRequest{
		Bridge:    step.Tool,
		FromChain: step.Action.FromChainID,
		ToChain:   step.Action.ToChainID,
		TxHash:    step.Execution.TxHash,
	}
	out, err := poller.Until(ctx, c.StatusProbe(req), o.pollInterval,
		poller.WithName("step_status"), poller.WithLogger(c.logger), poller.WithTimeout(o.pollTimeout))
	if err != nil {
		return err
	}
	if out.Kind == poller.Failure {
		return fmt.Errorf("%w: %s", ErrStepFailed, out.Value.SubstatusMessage)
	}
	return nil
}

// StatusProbe checks settlement status once. DONE and FAILED are terminal; any
// other status is not yet; request errors are transient.
func (c *Client) StatusProbe(req StatusRequest) poller.Probe[*StatusResponse] {
	return func(ctx context.Context) poller.Outcome[*StatusResponse] {
		resp, err := c.GetStatus(ctx, req)
		if err != nil {
			return poller.Retry[*StatusResponse](err)
		}
		switch resp.Status {
		case StatusDone:
			return poller.Succeeded(resp)
		case StatusFailed:
			return poller.Failed(resp)
		default:
			return poller.Pending[*StatusResponse]()
		}
	}
}

// ConfirmationProbe checks once whether hash has at least one confirmation.
// Unknown transactions are not yet visible and count as transient.
func ConfirmationProbe(reader chain.Reader, hash string) poller.Probe[*chain.Transaction] {
	return func(ctx context.Context) poller.Outcome[*chain.Transaction] {
		tx, err := reader.GetTransactionByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, chain.ErrTxNotFound) {
				return poller.Retry[*chain.Transaction](err)
			}
			return poller.Abort[*chain.Transaction](err)
		}
		if tx == nil || tx.Confirmations < 1 {
			return poller.Pending[*chain.Transaction]()
		}
		if tx.Failed {
			return poller.Failed(tx)
		}
		return poller.Succeeded(tx)
	}
}

func isNativeToken(address string) bool {
	return address == "" ||
		strings.EqualFold(address, asset.NativeAssetAddress) ||
		common.HexToAddress(address) == (common.Address{})
}

func (tr *TransactionRequest) toTxRequest(chainID int64) (chain.TxRequest, error) {
	if tr.ChainID != 0 && tr.ChainID != chainID {
		return chain.TxRequest{}, fmt.Errorf("transaction request for chain %d, account on chain %d", tr.ChainID, chainID)
	}

	data, err := hexutil.Decode(orEmptyHex(tr.Data))
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("%w: transaction data: %v", ErrMalformedResponse, err)
	}
	value, err := parseBig(tr.Value)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("%w: transaction value: %v", ErrMalformedResponse, err)
	}
	gasPrice, err := parseBig(tr.GasPrice)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("%w: transaction gasPrice: %v", ErrMalformedResponse, err)
	}
	gasLimit, err := parseBig(tr.GasLimit)
	if err != nil {
		return chain.TxRequest{}, fmt.Errorf("%w: transaction gasLimit: %v", ErrMalformedResponse, err)
	}

	req := chain.TxRequest{
		ChainID:  chainID,
		To:       tr.To,
		Data:     data,
		Value:    value,
		GasPrice: gasPrice,
	}
	if gasLimit != nil {
		req.GasLimit = gasLimit.Uint64()
	}
	return req, nil
}

func orEmptyHex(s string) string {
	if s == "" {
		return "0x"
	}
	return s
}

// parseBig accepts 0x-prefixed hex or decimal. Empty yields nil.
func parseBig(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}
	v, ok := new(big.Int).SetString(digits, base)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
