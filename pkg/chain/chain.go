// Package chain defines the chain-client contracts the coordinator depends on.
package chain

import (
	"context"
	"errors"
	"math/big"
)

// ErrTxNotFound is returned when a transaction is unknown to the node, typically
// because it has not propagated yet.
var ErrTxNotFound = errors.New("transaction not found")

// Transaction is the confirmation view of a transaction.
type Transaction struct {
	Hash          string
	BlockNumber   uint64
	Confirmations uint64
	// Failed is set for mined transactions whose receipt status is not successful.
	Failed bool
}

// TxRequest is an unsigned transaction to be sent from a bound account.
type TxRequest struct {
	ChainID  int64
	To       string
	Data     []byte
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
}

// Reader reads transaction and balance state from a chain.
type Reader interface {
	GetTransactionByHash(ctx context.Context, hash string) (*Transaction, error)
	BalanceOf(ctx context.Context, owner, token string) (*big.Int, error)
}

// Account is a chain handle bound to a sender account. It signs and broadcasts.
type Account interface {
	Reader
	Address() string
	ChainID() int64
	SendTransaction(ctx context.Context, req TxRequest) (string, error)
	Allowance(ctx context.Context, token, spender string) (*big.Int, error)
	Approve(ctx context.Context, token, spender string, amount *big.Int) (string, error)
}
