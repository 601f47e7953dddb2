package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/config"
)

// Backend is the subset of the node API used by Client. It is satisfied by
// *ethclient.Client and by the simulated backend client.
type Backend interface {
	bind.ContractBackend
	geth.BlockNumberReader
	geth.ChainStateReader
	geth.TransactionReader
}

// Client is a read connection to one EVM chain
type Client struct {
	config  *config.ChainConfig
	backend Backend
	closer  func()
	logger  *zap.Logger
}

// Dial connects to the chain's RPC endpoint
func Dial(cfg *config.ChainConfig, logger *zap.Logger) (*Client, error) {
	ec, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s RPC: %w", cfg.Name, err)
	}

	logger.Info("Connected to chain",
		zap.String("chain", cfg.Name),
		zap.Int64("chain_id", cfg.ChainID),
		zap.String("rpc_url", cfg.RPCURL))

	c := NewClient(cfg, ec, logger)
	c.closer = ec.Close
	return c, nil
}

// NewClient wraps an existing backend
func NewClient(cfg *config.ChainConfig, backend Backend, logger *zap.Logger) *Client {
	return &Client{
		config:  cfg,
		backend: backend,
		logger:  logger.With(zap.String("chain", cfg.Name)),
	}
}

// Close closes the underlying connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// ChainID returns the configured chain id
func (c *Client) ChainID() int64 {
	return c.config.ChainID
}

// GetLatestBlockNumber gets the latest block number
func (c *Client) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	n, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	return n, nil
}

// GetTransactionByHash returns the confirmation view of a transaction.
// A transaction the node does not know yields chain.ErrTxNotFound; a pending one has zero confirmations.
func (c *Client) GetTransactionByHash(ctx context.Context, hash string) (*chain.Transaction, error) {
	txHash := common.HexToHash(hash)

	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		if !errors.Is(err, geth.NotFound) {
			return nil, fmt.Errorf("failed to get receipt for %s: %w", hash, err)
		}
		_, pending, txErr := c.backend.TransactionByHash(ctx, txHash)
		if txErr != nil {
			if errors.Is(txErr, geth.NotFound) {
				return nil, fmt.Errorf("%w: %s", chain.ErrTxNotFound, hash)
			}
			return nil, fmt.Errorf("failed to get transaction %s: %w", hash, txErr)
		}
		if !pending {
			c.logger.Debug("Transaction mined but receipt not yet indexed", zap.String("tx_hash", hash))
		}
		return &chain.Transaction{Hash: txHash.Hex()}, nil
	}

	latest, err := c.GetLatestBlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	tx := &chain.Transaction{
		Hash:        txHash.Hex(),
		BlockNumber: receipt.BlockNumber.Uint64(),
		Failed:      receipt.Status != types.ReceiptStatusSuccessful,
	}
	if latest >= tx.BlockNumber {
		tx.Confirmations = latest - tx.BlockNumber + 1
	}
	return tx, nil
}

// BalanceOf returns owner's balance of token. An empty token or the native
// placeholder address reads the native balance.
func (c *Client) BalanceOf(ctx context.Context, owner, token string) (*big.Int, error) {
	ownerAddr := common.HexToAddress(owner)
	if token == "" || strings.EqualFold(token, asset.NativeAssetAddress) {
		bal, err := c.backend.BalanceAt(ctx, ownerAddr, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to get native balance: %w", err)
		}
		return bal, nil
	}

	erc20, err := NewERC20(common.HexToAddress(token), c.backend)
	if err != nil {
		return nil, err
	}
	bal, err := erc20.BalanceOf(&bind.CallOpts{Context: ctx}, ownerAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to get token balance: %w", err)
	}
	return bal, nil
}
