package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
)

// Account is a Client bound to a signing key. Sends are serialised per account
// so nonces are not reused.
type Account struct {
	*Client
	privateKey *ecdsa.PrivateKey
	address    common.Address

	mu sync.Mutex
}

// Bind returns an account handle for privateKey on this chain
func (c *Client) Bind(privateKey *ecdsa.PrivateKey) *Account {
	return &Account{
		Client:     c,
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}
}

// Address returns the checksummed sender address
func (a *Account) Address() string {
	return a.address.Hex()
}

// GetTransactor returns a transaction signer
func (a *Account) GetTransactor(ctx context.Context) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(a.privateKey, big.NewInt(a.config.ChainID))
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	auth.Context = ctx
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = a.config.GasLimit

	if a.config.MaxGasPrice != "" {
		gasPrice, err := a.gasPrice(ctx)
		if err != nil {
			return nil, err
		}
		auth.GasPrice = gasPrice
	}

	return auth, nil
}

// gasPrice returns the suggested gas price capped at the configured maximum
func (a *Account) gasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := a.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	if a.config.MaxGasPrice == "" {
		return gasPrice, nil
	}

	maxGasPrice, ok := new(big.Int).SetString(a.config.MaxGasPrice, 10)
	if !ok {
		return nil, fmt.Errorf("invalid max_gas_price %q", a.config.MaxGasPrice)
	}
	if gasPrice.Cmp(maxGasPrice) > 0 {
		a.logger.Warn("Suggested gas price exceeds maximum",
			zap.String("suggested", gasPrice.String()),
			zap.String("max", maxGasPrice.String()))
		return maxGasPrice, nil
	}
	return gasPrice, nil
}

// SendTransaction signs and broadcasts req, returning the transaction hash
func (a *Account) SendTransaction(ctx context.Context, req chain.TxRequest) (string, error) {
	if req.ChainID != 0 && req.ChainID != a.config.ChainID {
		return "", fmt.Errorf("transaction for chain %d sent to chain %d", req.ChainID, a.config.ChainID)
	}
	if !common.IsHexAddress(req.To) {
		return "", fmt.Errorf("invalid recipient %q", req.To)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	to := common.HexToAddress(req.To)
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := a.backend.PendingNonceAt(ctx, a.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice := req.GasPrice
	if gasPrice == nil {
		if gasPrice, err = a.gasPrice(ctx); err != nil {
			return "", err
		}
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = a.backend.EstimateGas(ctx, geth.CallMsg{
			From:     a.address,
			To:       &to,
			GasPrice: gasPrice,
			Value:    value,
			Data:     req.Data,
		})
		if err != nil {
			return "", fmt.Errorf("failed to estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(a.config.ChainID)), a.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := a.backend.SendTransaction(ctx, signed); err != nil {
		metrics.TransactionsSent.WithLabelValues(a.config.Name, "route", "failed").Inc()
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}
	metrics.TransactionsSent.WithLabelValues(a.config.Name, "route", "sent").Inc()

	a.logger.Info("Transaction submitted",
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce))

	return signed.Hash().Hex(), nil
}

// Allowance returns the token allowance the account granted to spender
func (a *Account) Allowance(ctx context.Context, token, spender string) (*big.Int, error) {
	erc20, err := NewERC20(common.HexToAddress(token), a.backend)
	if err != nil {
		return nil, err
	}
	allowance, err := erc20.Allowance(&bind.CallOpts{Context: ctx}, a.address, common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("failed to get allowance: %w", err)
	}
	return allowance, nil
}

// Approve submits an ERC-20 approval for spender and returns the transaction hash
func (a *Account) Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	erc20, err := NewERC20(common.HexToAddress(token), a.backend)
	if err != nil {
		return "", err
	}

	auth, err := a.GetTransactor(ctx)
	if err != nil {
		return "", err
	}

	tx, err := erc20.Approve(auth, common.HexToAddress(spender), amount)
	if err != nil {
		metrics.TransactionsSent.WithLabelValues(a.config.Name, "approve", "failed").Inc()
		return "", fmt.Errorf("failed to submit approve transaction: %w", err)
	}
	metrics.TransactionsSent.WithLabelValues(a.config.Name, "approve", "sent").Inc()

	a.logger.Info("Approve transaction submitted",
		zap.String("tx_hash", tx.Hash().Hex()),
		zap.String("token", token),
		zap.String("spender", spender),
		zap.String("amount", amount.String()))

	return tx.Hash().Hex(), nil
}

var _ chain.Account = (*Account)(nil)
var _ chain.Reader = (*Client)(nil)
