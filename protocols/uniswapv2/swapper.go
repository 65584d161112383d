// Package uniswapv2 quotes swaps against constant-product pools.
package uniswapv2

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// SwapperID is the default registry key.
const SwapperID adapter.SwapperID = "uniswap-v2"

// Config holds the configuration for the swapper.
type Config struct {
	// ID overrides SwapperID, for forks such as SushiSwap.
	ID       adapter.SwapperID
	ChainIDs []uint64
	Pools    PoolSource
}

func (c *Config) validate() error {
	if len(c.ChainIDs) == 0 {
		return errors.New("config: ChainIDs must not be empty")
	}
	if c.Pools == nil {
		return errors.New("config: Pools is required")
	}
	return nil
}

// Swapper implements adapter.Swapper over a PoolSource.
type Swapper struct {
	id       adapter.SwapperID
	chainIDs mapset.Set[uint64]
	pools    PoolSource
	indexer  *Indexer
}

var _ adapter.Swapper = (*Swapper)(nil)

// NewSwapper creates the swapper.
func NewSwapper(cfg Config) (*Swapper, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	id := cfg.ID
	if id == "" {
		id = SwapperID
	}
	return &Swapper{
		id:       id,
		chainIDs: mapset.NewSet(cfg.ChainIDs...),
		pools:    cfg.Pools,
		indexer:  New(),
	}, nil
}

func (s *Swapper) ID() adapter.SwapperID { return s.id }

func (s *Swapper) SupportedChainIDs() mapset.Set[uint64] { return s.chainIDs.Clone() }

type route struct {
	Pool   common.Address `json:"pool"`
	PoolID uint64         `json:"poolId"`
}

// QuoteSwap picks the pool with the largest output for the pair. Ties keep
// the pool listed first.
func (s *Swapper) QuoteSwap(ctx context.Context, chainID uint64, tokenIn, tokenOut token.Ref, amountIn *uint256.Int, slippageBps uint64) (adapter.Quote, error) {
	op := string(s.id) + ".quote_swap"
	fail := func(kind error) *adapter.Error {
		return adapter.NewError(kind, op).WithChain(chainID).WithAdapter(string(s.id)).WithToken(tokenIn).WithAmount(amountIn)
	}
	if err := adapter.RequireChain(op, string(s.id), s.chainIDs, chainID); err != nil {
		return adapter.Quote{}, err
	}
	if err := adapter.ValidateAmount(op, string(s.id), chainID, tokenIn, amountIn); err != nil {
		return adapter.Quote{}, err
	}
	if slippageBps > numeric.BPSBase {
		return adapter.Quote{}, fail(adapter.ErrInvalidAmount).WithDetail("slippage %d bps", slippageBps)
	}
	if tokenIn.Equal(tokenOut) {
		return adapter.Quote{}, fail(adapter.ErrNoRoute).WithDetail("input and output token are the same")
	}

	pools, err := s.pools.Pools(ctx, chainID)
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).Wrap(err)
	}

	var (
		best    PoolView
		bestOut = new(uint256.Int)
	)
	for _, p := range s.indexer.Index(pools).GetByPair(tokenIn, tokenOut) {
		out, err := p.AmountOut(tokenIn, amountIn)
		if err != nil {
			return adapter.Quote{}, fail(adapter.ErrInvalidAmount).Wrap(err)
		}
		if out.Gt(bestOut) {
			best, bestOut = p, out
		}
	}
	if bestOut.IsZero() {
		return adapter.Quote{}, fail(adapter.ErrNoRoute).WithDetail("no pool with liquidity for %s", tokenOut)
	}

	minOut, err := numeric.ApplySlippage(bestOut, slippageBps)
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrInvalidAmount).Wrap(err)
	}
	encoded, err := json.Marshal(route{Pool: best.Address, PoolID: best.ID})
	if err != nil {
		return adapter.Quote{}, err
	}
	return adapter.Quote{
		ChainID:      chainID,
		Source:       string(s.id),
		Action:       adapter.ActionSwap,
		TokenIn:      tokenIn,
		AmountIn:     amountIn.Clone(),
		TokenOut:     tokenOut,
		AmountOut:    bestOut,
		MinAmountOut: minOut,
		SlippageBps:  slippageBps,
		Route:        encoded,
	}, nil
}

func (s *Swapper) BuildLogic(q adapter.Quote) (logic.Descriptor, error) {
	return adapter.SwapLogic(s.id, q)
}
