package uniswapv2

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/Iwinswap/defi-logic-composer-go/pkg/network"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrUnknownChain = errors.New("uniswapv2: no pools for chain")

// PoolView is a snapshot of one constant-product pair.
type PoolView struct {
	ID       uint64
	Address  common.Address
	Token0   token.Ref
	Token1   token.Ref
	Reserve0 *uint256.Int
	Reserve1 *uint256.Int
	FeeBps   uint64
}

// Reserves returns the reserves ordered as (in, out) for selling tokenIn.
func (p PoolView) Reserves(tokenIn token.Ref) (reserveIn, reserveOut *uint256.Int, ok bool) {
	switch {
	case p.Token0.Equal(tokenIn):
		return p.Reserve0, p.Reserve1, true
	case p.Token1.Equal(tokenIn):
		return p.Reserve1, p.Reserve0, true
	default:
		return nil, nil, false
	}
}

// AmountOut applies the constant-product formula with the pool fee taken
// from the input: out = in' * rOut / (rIn + in'), in' = in * (1 - fee).
func (p PoolView) AmountOut(tokenIn token.Ref, amountIn *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, ok := p.Reserves(tokenIn)
	if !ok || p.FeeBps >= numeric.BPSBase || reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return new(uint256.Int), nil
	}
	feeFactor := uint256.NewInt(numeric.BPSBase - p.FeeBps)
	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, feeFactor)
	if overflow {
		return nil, numeric.ErrOverflow
	}
	scaledIn, overflow := new(uint256.Int).MulOverflow(reserveIn, uint256.NewInt(numeric.BPSBase))
	if overflow {
		return nil, numeric.ErrOverflow
	}
	denominator, err := numeric.Add(scaledIn, inWithFee)
	if err != nil {
		return nil, err
	}
	return numeric.MulDiv(inWithFee, reserveOut, denominator)
}

// PoolSource lists the pools of a chain.
type PoolSource interface {
	Pools(ctx context.Context, chainID uint64) ([]PoolView, error)
}

// StaticSource serves pools from memory.
type StaticSource struct {
	mu    sync.RWMutex
	pools map[uint64][]PoolView
}

func NewStaticSource() *StaticSource {
	return &StaticSource{pools: make(map[uint64][]PoolView)}
}

// SetPools replaces a chain's pools.
func (s *StaticSource) SetPools(chainID uint64, pools []PoolView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[chainID] = append([]PoolView(nil), pools...)
}

func (s *StaticSource) Pools(_ context.Context, chainID uint64) ([]PoolView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pools, ok := s.pools[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	return append([]PoolView(nil), pools...), nil
}

const pairABI = `[
	{"inputs":[],"name":"getReserves","outputs":[
		{"name":"reserve0","type":"uint112"},
		{"name":"reserve1","type":"uint112"},
		{"name":"blockTimestampLast","type":"uint32"}
	],"stateMutability":"view","type":"function"}
]`

// Clients resolves the RPC connection of a chain; *network.Registry satisfies it.
type Clients interface {
	Client(chainID uint64) (network.Client, error)
}

// OnChainSource refreshes the reserves of a fixed pool list with
// getReserves calls on every read.
type OnChainSource struct {
	clients Clients
	pools   map[uint64][]PoolView
	abi     abi.ABI
}

// NewOnChainSource creates a source reading the given pools' reserves.
func NewOnChainSource(clients Clients, pools map[uint64][]PoolView) (*OnChainSource, error) {
	if clients == nil {
		return nil, errors.New("config: Clients is required")
	}
	parsed, err := abi.JSON(strings.NewReader(pairABI))
	if err != nil {
		return nil, fmt.Errorf("uniswapv2: parse pair abi: %w", err)
	}
	copied := make(map[uint64][]PoolView, len(pools))
	for id, p := range pools {
		copied[id] = append([]PoolView(nil), p...)
	}
	return &OnChainSource{clients: clients, pools: copied, abi: parsed}, nil
}

func (s *OnChainSource) Pools(ctx context.Context, chainID uint64) ([]PoolView, error) {
	configured, ok := s.pools[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, chainID)
	}
	client, err := s.clients.Client(chainID)
	if err != nil {
		return nil, err
	}
	data, err := s.abi.Pack("getReserves")
	if err != nil {
		return nil, err
	}

	out := make([]PoolView, 0, len(configured))
	for _, p := range configured {
		addr := p.Address
		raw, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("uniswapv2: getReserves %s: %w", addr, err)
		}
		values, err := s.abi.Unpack("getReserves", raw)
		if err != nil || len(values) != 3 {
			return nil, fmt.Errorf("uniswapv2: decode getReserves %s: %v", addr, err)
		}
		r0, ok0 := values[0].(*big.Int)
		r1, ok1 := values[1].(*big.Int)
		if !ok0 || !ok1 {
			return nil, fmt.Errorf("uniswapv2: unexpected getReserves types for %s", addr)
		}
		p.Reserve0, _ = uint256.FromBig(r0)
		p.Reserve1, _ = uint256.FromBig(r1)
		out = append(out, p)
	}
	return out, nil
}
