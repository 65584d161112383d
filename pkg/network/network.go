// Package network holds the per-chain RPC connections plugins use to read
// on-chain state. The composer itself never touches it.
package network

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
)

const (
	initialDialDelay    = 500 * time.Millisecond
	maxDialDelay        = 5 * time.Second
	defaultDialAttempts = 3
)

var (
	ErrNetworkNotSet   = errors.New("network: not configured")
	ErrChainIDMismatch = errors.New("network: chain id mismatch")
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Client is the subset of *ethclient.Client the plugins depend on.
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// DialFunc opens a Client for an RPC url.
type DialFunc func(ctx context.Context, rpcURL string) (Client, error)

// DialEthClient dials with go-ethereum's ethclient.
func DialEthClient(ctx context.Context, rpcURL string) (Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Config holds the configuration for the network registry.
type Config struct {
	Logger       Logger
	Dial         DialFunc
	DialAttempts int
}

func (c *Config) validate() error {
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.Dial == nil {
		return errors.New("config: Dial is required")
	}
	if c.DialAttempts < 0 {
		return errors.New("config: DialAttempts must not be negative")
	}
	return nil
}

// NetworkConfig describes how to reach one chain.
type NetworkConfig struct {
	RPCURL string
}

// Registry maps chain ids to live connections.
type Registry struct {
	mu       sync.RWMutex
	clients  map[uint64]Client
	logger   Logger
	dial     DialFunc
	attempts int
}

// New creates an empty network registry.
func New(cfg Config) (*Registry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	attempts := cfg.DialAttempts
	if attempts == 0 {
		attempts = defaultDialAttempts
	}
	return &Registry{
		clients:  make(map[uint64]Client),
		logger:   cfg.Logger,
		dial:     cfg.Dial,
		attempts: attempts,
	}, nil
}

// SetNetwork connects to chainID and verifies the endpoint serves that
// chain. An existing connection for the chain is replaced and closed.
func (r *Registry) SetNetwork(ctx context.Context, chainID uint64, cfg NetworkConfig) error {
	if cfg.RPCURL == "" {
		return errors.New("network: rpc url is required")
	}

	client, err := r.dialWithRetry(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("network: dial chain %d: %w", chainID, err)
	}

	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("network: read chain id for %d: %w", chainID, err)
	}
	if !remote.IsUint64() || remote.Uint64() != chainID {
		client.Close()
		return fmt.Errorf("%w: configured %d, endpoint serves %s", ErrChainIDMismatch, chainID, remote)
	}

	r.mu.Lock()
	prev := r.clients[chainID]
	r.clients[chainID] = client
	r.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
	r.logger.Info("Network configured", "chain_id", chainID)
	return nil
}

func (r *Registry) dialWithRetry(ctx context.Context, url string) (Client, error) {
	delay := initialDialDelay
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		client, err := r.dial(ctx, url)
		if err == nil {
			return client, nil
		}
		lastErr = err
		if attempt == r.attempts {
			break
		}
		r.logger.Warn("Failed to connect to RPC server, will retry...", "error", err, "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxDialDelay)
	}
	return nil, lastErr
}

// Client returns the connection for chainID.
func (r *Registry) Client(chainID uint64) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", ErrNetworkNotSet, chainID)
	}
	return c, nil
}

// ChainID reports the chain id the connection configured for chainID serves.
func (r *Registry) ChainID(ctx context.Context, chainID uint64) (uint64, error) {
	c, err := r.Client(chainID)
	if err != nil {
		return 0, err
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// Chains lists configured chain ids.
func (r *Registry) Chains() []uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]uint64, 0, len(r.clients))
	for id := range r.clients {
		out = append(out, id)
	}
	return out
}

// Close closes every connection.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
