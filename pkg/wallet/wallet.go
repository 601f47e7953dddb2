// Package wallet resolves wallet ids to addresses and account-bound chain handles.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/chainsafe/swap-coordinator/pkg/chain"
	"github.com/chainsafe/swap-coordinator/pkg/config"
	"github.com/chainsafe/swap-coordinator/pkg/ethereum"
)

var (
	ErrWalletNotFound     = errors.New("wallet not found")
	ErrNetworkNotFound    = errors.New("network not configured")
	ErrChainNotConfigured = errors.New("chain not configured on network")
	ErrInvalidAccountID   = errors.New("invalid account id")
)

// Dialer opens a chain client for a configured chain.
type Dialer func(cfg *config.ChainConfig, logger *zap.Logger) (*ethereum.Client, error)

type walletKey struct {
	id      string
	network string
}

type clientKey struct {
	network string
	chainID int64
}

type wallet struct {
	key     *ecdsa.PrivateKey
	address string
}

// Book holds the configured wallets and lazily dialed chain clients.
type Book struct {
	mu       sync.Mutex
	wallets  map[walletKey]wallet
	networks map[string]*config.NetworkConfig
	clients  map[clientKey]*ethereum.Client
	dial     Dialer
	logger   *zap.Logger
}

// Option configures a Book
type Option func(*Book)

// WithDialer replaces ethereum.Dial
func WithDialer(d Dialer) Option {
	return func(b *Book) { b.dial = d }
}

// NewBook loads wallet keys from the environment variables named in the config.
func NewBook(cfg *config.Config, logger *zap.Logger, opts ...Option) (*Book, error) {
	b := &Book{
		wallets:  make(map[walletKey]wallet, len(cfg.Wallets)),
		networks: make(map[string]*config.NetworkConfig, len(cfg.Networks)),
		clients:  make(map[clientKey]*ethereum.Client),
		dial:     ethereum.Dial,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	for i := range cfg.Networks {
		b.networks[cfg.Networks[i].Name] = &cfg.Networks[i]
	}

	for _, w := range cfg.Wallets {
		if _, ok := b.networks[w.Network]; !ok {
			return nil, fmt.Errorf("wallet %s: %w: %s", w.ID, ErrNetworkNotFound, w.Network)
		}
		raw := os.Getenv(w.PrivateKeyEnv)
		if raw == "" {
			return nil, fmt.Errorf("wallet %s: environment variable %s is not set", w.ID, w.PrivateKeyEnv)
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("wallet %s: invalid private key: %w", w.ID, err)
		}
		address := crypto.PubkeyToAddress(key.PublicKey).Hex()
		b.wallets[walletKey{id: w.ID, network: w.Network}] = wallet{key: key, address: address}

		logger.Info("Loaded wallet",
			zap.String("wallet_id", w.ID),
			zap.String("network", w.Network),
			zap.String("address", address))
	}
	return b, nil
}

// Address returns the wallet's address on network.
func (b *Book) Address(walletID, network string) (string, error) {
	w, err := b.wallet(walletID, network)
	if err != nil {
		return "", err
	}
	return w.address, nil
}

// Account returns a handle bound to the wallet's key on chainID.
func (b *Book) Account(ctx context.Context, walletID, network string, chainID int64) (chain.Account, error) {
	w, err := b.wallet(walletID, network)
	if err != nil {
		return nil, err
	}
	client, err := b.client(network, chainID)
	if err != nil {
		return nil, err
	}
	return client.Bind(w.key), nil
}

// Reader returns a read-only handle for chainID on network.
func (b *Book) Reader(_ context.Context, network string, chainID int64) (chain.Reader, error) {
	c, err := b.client(network, chainID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Close closes every dialed client.
func (b *Book) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, c := range b.clients {
		c.Close()
		delete(b.clients, k)
	}
}

func (b *Book) wallet(walletID, network string) (wallet, error) {
	w, ok := b.wallets[walletKey{id: walletID, network: network}]
	if !ok {
		return wallet{}, fmt.Errorf("%w: %s on %s", ErrWalletNotFound, walletID, network)
	}
	return w, nil
}

func (b *Book) client(network string, chainID int64) (*ethereum.Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	k := clientKey{network: network, chainID: chainID}
	if c, ok := b.clients[k]; ok {
		return c, nil
	}

	n, ok := b.networks[network]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNetworkNotFound, network)
	}
	cfg := n.Chain(chainID)
	if cfg == nil {
		return nil, fmt.Errorf("%w: chain %d on %s", ErrChainNotConfigured, chainID, network)
	}

	c, err := b.dial(cfg, b.logger)
	if err != nil {
		return nil, err
	}
	b.clients[k] = c
	return c, nil
}

// AccountID names the account holding asset in a wallet.
func AccountID(walletID, asset string) string {
	return walletID + "/" + asset
}

// ParseAccountID splits an account id built by AccountID.
func ParseAccountID(id string) (walletID, asset string, err error) {
	i := strings.LastIndex(id, "/")
	if i <= 0 || i == len(id)-1 {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidAccountID, id)
	}
	return id[:i], id[i+1:], nil
}
