// Package swapstore persists swap records and account balances in PostgreSQL.
package swapstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/swap-coordinator/pkg/balance"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// Store defines swap persistence
type Store interface {
	CreateSwap(ctx context.Context, rec *swap.Record) error
	GetSwap(ctx context.Context, id string) (*swap.Record, error)
	// UpdateSwap applies u to the swap if its stored status is still from.
	UpdateSwap(ctx context.Context, id string, from swap.Status, u swap.Update) (*swap.Record, error)
	ListPendingSwaps(ctx context.Context) ([]*swap.Record, error)
	ListSwaps(ctx context.Context, opts ...ListOption) ([]*swap.Record, error)
	// RecordError stores the last dispatch error and returns the new retry count.
	RecordError(ctx context.Context, id string, msg string) (int, error)
	// HaltSwap stops a pending swap from being driven again. Terminal and
	// unknown swaps return swap.ErrSwapNotFound.
	HaltSwap(ctx context.Context, id string, reason string) error
	UpsertBalance(ctx context.Context, b *balance.Balance) error
	GetBalance(ctx context.Context, accountID, asset string) (*balance.Balance, error)
}

// ListOptions filter ListSwaps
type ListOptions struct {
	WalletID *string
	Status   *swap.Status
	Limit    int
}

// ListOption is a functional option for listing swaps
type ListOption func(*ListOptions)

// WithWalletID filters by wallet
func WithWalletID(walletID string) ListOption {
	return func(o *ListOptions) { o.WalletID = &walletID }
}

// WithStatus filters by status
func WithStatus(status swap.Status) ListOption {
	return func(o *ListOptions) { o.Status = &status }
}

// WithLimit caps the number of returned swaps
func WithLimit(limit int) ListOption {
	return func(o *ListOptions) { o.Limit = limit }
}

const defaultListLimit = 100

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the swap store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) CreateSwap(ctx context.Context, rec *swap.Record) error {
	dao := toSwapDao(rec)
	if _, err := s.db.NewInsert().Model(dao).Returning("created_at, updated_at").Exec(ctx); err != nil {
		return fmt.Errorf("failed to create swap: %w", err)
	}
	rec.CreatedAt = dao.CreatedAt
	rec.UpdatedAt = dao.UpdatedAt
	return nil
}

func (s *pgStore) GetSwap(ctx context.Context, id string) (*swap.Record, error) {
	dao := new(SwapDao)
	err := s.db.NewSelect().Model(dao).Where("id = ?", id).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", swap.ErrSwapNotFound, id)
		}
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}
	return toRecord(dao)
}

func (s *pgStore) UpdateSwap(ctx context.Context, id string, from swap.Status, u swap.Update) (*swap.Record, error) {
	if !from.CanAdvanceTo(u.Status) {
		return nil, fmt.Errorf("%w: %s -> %s", swap.ErrInvalidTransition, from, u.Status)
	}

	var updated *swap.Record
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		dao := new(SwapDao)
		err := tx.NewSelect().Model(dao).Where("id = ?", id).For("UPDATE").Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", swap.ErrSwapNotFound, id)
			}
			return fmt.Errorf("failed to lock swap: %w", err)
		}
		if dao.Status != string(from) {
			return fmt.Errorf("%w: swap %s is %s, expected %s", swap.ErrStatusConflict, id, dao.Status, from)
		}

		current, err := toRecord(dao)
		if err != nil {
			return err
		}
		next := current.Apply(u)
		next.UpdatedAt = time.Now().UTC()

		_, err = tx.NewUpdate().
			Model(toSwapDao(next)).
			Column("status", "approve_tx_hash", "swap_tx_hash", "route", "end_time", "last_error", "retry_count", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update swap: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *pgStore) ListPendingSwaps(ctx context.Context) ([]*swap.Record, error) {
	var daos []SwapDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("status IN (?)", bun.In(swap.PendingStatuses())).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending swaps: %w", err)
	}
	return toRecords(daos)
}

func (s *pgStore) ListSwaps(ctx context.Context, opts ...ListOption) ([]*swap.Record, error) {
	options := &ListOptions{Limit: defaultListLimit}
	for _, opt := range opts {
		opt(options)
	}

	var daos []SwapDao
	query := s.db.NewSelect().Model(&daos)
	if options.WalletID != nil {
		query = query.Where("wallet_id = ?", *options.WalletID)
	}
	if options.Status != nil {
		query = query.Where("status = ?", string(*options.Status))
	}
	if options.Limit > 0 {
		query = query.Limit(options.Limit)
	}

	if err := query.Order("created_at DESC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}
	return toRecords(daos)
}

func (s *pgStore) RecordError(ctx context.Context, id string, msg string) (int, error) {
	var count int
	err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("last_error = ?", msg).
		Set("retry_count = retry_count + 1").
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Returning("retry_count").
		Scan(ctx, &count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("%w: %s", swap.ErrSwapNotFound, id)
		}
		return 0, fmt.Errorf("failed to record swap error: %w", err)
	}
	return count, nil
}

func (s *pgStore) HaltSwap(ctx context.Context, id string, reason string) error {
	res, err := s.db.NewUpdate().
		Model((*SwapDao)(nil)).
		Set("halted = TRUE").
		Set("last_error = ?", reason).
		Set("updated_at = NOW()").
		Where("id = ?", id).
		Where("status IN (?)", bun.In(swap.PendingStatuses())).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to halt swap: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", swap.ErrSwapNotFound, id)
	}
	return nil
}

func (s *pgStore) UpsertBalance(ctx context.Context, b *balance.Balance) error {
	_, err := s.db.NewInsert().
		Model(toBalanceDao(b)).
		On("CONFLICT (account_id, asset) DO UPDATE").
		Set("network = EXCLUDED.network").
		Set("address = EXCLUDED.address").
		Set("chain_id = EXCLUDED.chain_id").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert balance: %w", err)
	}
	return nil
}

func (s *pgStore) GetBalance(ctx context.Context, accountID, asset string) (*balance.Balance, error) {
	dao := new(AccountBalanceDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("account_id = ?", accountID).
		Where("asset = ?", asset).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, balance.ErrBalanceNotFound
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return toBalance(dao)
}

func toRecords(daos []SwapDao) ([]*swap.Record, error) {
	out := make([]*swap.Record, 0, len(daos))
	for i := range daos {
		rec, err := toRecord(&daos[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
