// Package balance refreshes and caches account balances after swaps settle.
package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/internal/metrics"
	"github.com/chainsafe/swap-coordinator/pkg/asset"
	"github.com/chainsafe/swap-coordinator/pkg/chain"
)

// ErrBalanceNotFound is returned when no balance has been cached for an account.
var ErrBalanceNotFound = errors.New("balance not found")

// Balance is the last observed on-chain balance of an account.
type Balance struct {
	AccountID string
	Asset     string
	Network   string
	Address   string
	ChainID   int64
	Amount    *big.Int
	UpdatedAt time.Time
}

// Display returns the amount in display units of the asset.
func (b *Balance) Display(decimals int32) string {
	return asset.FromBaseUnits(b.Amount, decimals).String()
}

// Account identifies the account to refresh.
type Account struct {
	WalletID  string
	Network   string
	AccountID string
	Asset     string
}

// Store persists refreshed balances.
type Store interface {
	UpsertBalance(ctx context.Context, b *Balance) error
}

// Wallets resolves addresses and read handles.
type Wallets interface {
	Address(walletID, network string) (string, error)
	Reader(ctx context.Context, network string, chainID int64) (chain.Reader, error)
}

// Refresher reads balances from chain and stores them.
type Refresher struct {
	registry *asset.Registry
	wallets  Wallets
	store    Store
	logger   *zap.Logger
}

// NewRefresher creates a balance refresher
func NewRefresher(registry *asset.Registry, wallets Wallets, store Store, logger *zap.Logger) *Refresher {
	return &Refresher{
		registry: registry,
		wallets:  wallets,
		store:    store,
		logger:   logger,
	}
}

// Refresh reads the current balance of acc and persists it.
func (r *Refresher) Refresh(ctx context.Context, acc Account) (*Balance, error) {
	a, err := r.registry.Asset(acc.Asset)
	if err != nil {
		return nil, err
	}
	chainID, err := r.registry.ChainID(acc.Asset, asset.Network(acc.Network))
	if err != nil {
		return nil, err
	}
	address, err := r.wallets.Address(acc.WalletID, acc.Network)
	if err != nil {
		return nil, err
	}
	reader, err := r.wallets.Reader(ctx, acc.Network, chainID)
	if err != nil {
		return nil, err
	}

	amount, err := reader.BalanceOf(ctx, address, a.ContractAddress)
	if err != nil {
		metrics.ErrorsTotal.WithLabelValues("balance", "read").Inc()
		return nil, fmt.Errorf("failed to read %s balance of %s: %w", acc.Asset, address, err)
	}

	b := &Balance{
		AccountID: acc.AccountID,
		Asset:     acc.Asset,
		Network:   acc.Network,
		Address:   address,
		ChainID:   chainID,
		Amount:    amount,
		UpdatedAt: time.Now().UTC(),
	}
	if err := r.store.UpsertBalance(ctx, b); err != nil {
		return nil, fmt.Errorf("failed to store balance: %w", err)
	}

	display, _ := asset.FromBaseUnits(amount, a.Decimals).Float64()
	metrics.AccountBalance.WithLabelValues(acc.AccountID, acc.Asset).Set(display)

	r.logger.Info("Balance refreshed",
		zap.String("account_id", acc.AccountID),
		zap.String("asset", acc.Asset),
		zap.String("balance", amount.String()))
	return b, nil
}
