package swapstore

import (
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"github.com/chainsafe/swap-coordinator/pkg/balance"
	"github.com/chainsafe/swap-coordinator/pkg/routing"
	"github.com/chainsafe/swap-coordinator/pkg/swap"
)

// SwapDao is a data access object that maps directly to the 'swaps' table in PostgreSQL.
type SwapDao struct {
	bun.BaseModel `bun:"table:swaps,alias:s"`
	ID            string         `bun:"id,pk,type:varchar(36)"`
	WalletID      string         `bun:"wallet_id,notnull,type:varchar(128)"`
	Network       string         `bun:"network,notnull,type:varchar(32)"`
	FromAsset     string         `bun:"from_asset,notnull,type:varchar(32)"`
	ToAsset       string         `bun:"to_asset,notnull,type:varchar(32)"`
	FromAccountID string         `bun:"from_account_id,notnull,type:varchar(192)"`
	ToAccountID   string         `bun:"to_account_id,notnull,type:varchar(192)"`
	FromAmount    string         `bun:"from_amount,notnull,type:numeric(78,0)"`
	ToAmount      string         `bun:"to_amount,notnull,type:numeric(78,0)"`
	FromChainID   int64          `bun:"from_chain_id,notnull"`
	ToChainID     int64          `bun:"to_chain_id,notnull"`
	Fee           string         `bun:"fee,notnull,type:numeric(38,18),default:0"`
	ApproveTxHash *string        `bun:"approve_tx_hash,type:varchar(66)"`
	SwapTxHash    *string        `bun:"swap_tx_hash,type:varchar(66)"`
	Route         *routing.Route `bun:"route,type:jsonb"`
	Status        string         `bun:"status,notnull,type:varchar(40)"`
	StartTime     time.Time      `bun:"start_time,notnull"`
	EndTime       *time.Time     `bun:"end_time"`
	LastError     *string        `bun:"last_error,type:text"`
	RetryCount    int            `bun:"retry_count,notnull,default:0"`
	Halted        bool           `bun:"halted,notnull,default:false"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// toSwapDao converts a swap.Record to SwapDao.
func toSwapDao(rec *swap.Record) *SwapDao {
	dao := &SwapDao{
		ID:            rec.ID,
		WalletID:      rec.WalletID,
		Network:       rec.Network,
		FromAsset:     rec.From,
		ToAsset:       rec.To,
		FromAccountID: rec.FromAccountID,
		ToAccountID:   rec.ToAccountID,
		FromAmount:    bigString(rec.FromAmount),
		ToAmount:      bigString(rec.ToAmount),
		FromChainID:   rec.FromChainID,
		ToChainID:     rec.ToChainID,
		Fee:           rec.Fee.String(),
		Route:         rec.Route,
		Status:        string(rec.Status),
		StartTime:     rec.StartTime,
		EndTime:       rec.EndTime,
		RetryCount:    rec.RetryCount,
		Halted:        rec.Halted,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
	if rec.ApproveTxHash != "" {
		dao.ApproveTxHash = &rec.ApproveTxHash
	}
	if rec.SwapTxHash != "" {
		dao.SwapTxHash = &rec.SwapTxHash
	}
	if rec.LastError != "" {
		dao.LastError = &rec.LastError
	}
	return dao
}

// toRecord converts a SwapDao to swap.Record.
func toRecord(dao *SwapDao) (*swap.Record, error) {
	status, err := swap.ParseStatus(dao.Status)
	if err != nil {
		return nil, err
	}
	fromAmount, ok := new(big.Int).SetString(dao.FromAmount, 10)
	if !ok {
		return nil, fmt.Errorf("swap %s: invalid from_amount %q", dao.ID, dao.FromAmount)
	}
	toAmount, ok := new(big.Int).SetString(dao.ToAmount, 10)
	if !ok {
		return nil, fmt.Errorf("swap %s: invalid to_amount %q", dao.ID, dao.ToAmount)
	}
	fee, err := decimal.NewFromString(dao.Fee)
	if err != nil {
		return nil, fmt.Errorf("swap %s: invalid fee %q: %w", dao.ID, dao.Fee, err)
	}

	rec := &swap.Record{
		ID:            dao.ID,
		WalletID:      dao.WalletID,
		Network:       dao.Network,
		From:          dao.FromAsset,
		To:            dao.ToAsset,
		FromAccountID: dao.FromAccountID,
		ToAccountID:   dao.ToAccountID,
		FromAmount:    fromAmount,
		ToAmount:      toAmount,
		FromChainID:   dao.FromChainID,
		ToChainID:     dao.ToChainID,
		Fee:           fee,
		Route:         dao.Route,
		Status:        status,
		StartTime:     dao.StartTime,
		EndTime:       dao.EndTime,
		RetryCount:    dao.RetryCount,
		Halted:        dao.Halted,
		CreatedAt:     dao.CreatedAt,
		UpdatedAt:     dao.UpdatedAt,
	}
	if dao.ApproveTxHash != nil {
		rec.ApproveTxHash = *dao.ApproveTxHash
	}
	if dao.SwapTxHash != nil {
		rec.SwapTxHash = *dao.SwapTxHash
	}
	if dao.LastError != nil {
		rec.LastError = *dao.LastError
	}
	return rec, nil
}

// AccountBalanceDao is a data access object that maps directly to the 'account_balances' table in PostgreSQL.
type AccountBalanceDao struct {
	bun.BaseModel `bun:"table:account_balances,alias:ab"`
	AccountID     string    `bun:"account_id,pk,type:varchar(192)"`
	Asset         string    `bun:"asset,pk,type:varchar(32)"`
	Network       string    `bun:"network,notnull,type:varchar(32)"`
	Address       string    `bun:"address,notnull,type:varchar(128)"`
	ChainID       int64     `bun:"chain_id,notnull"`
	Balance       string    `bun:"balance,notnull,type:numeric(78,0)"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func toBalanceDao(b *balance.Balance) *AccountBalanceDao {
	return &AccountBalanceDao{
		AccountID: b.AccountID,
		Asset:     b.Asset,
		Network:   b.Network,
		Address:   b.Address,
		ChainID:   b.ChainID,
		Balance:   bigString(b.Amount),
		UpdatedAt: b.UpdatedAt,
	}
}

func toBalance(dao *AccountBalanceDao) (*balance.Balance, error) {
	amount, ok := new(big.Int).SetString(dao.Balance, 10)
	if !ok {
		return nil, fmt.Errorf("account %s: invalid balance %q", dao.AccountID, dao.Balance)
	}
	return &balance.Balance{
		AccountID: dao.AccountID,
		Asset:     dao.Asset,
		Network:   dao.Network,
		Address:   dao.Address,
		ChainID:   dao.ChainID,
		Amount:    amount,
		UpdatedAt: dao.UpdatedAt,
	}, nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
