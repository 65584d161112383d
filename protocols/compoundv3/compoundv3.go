// Package compoundv3 is the Compound III (Comet) lending plugin. Each chain
// has one market with a single borrowable base asset; every other listed
// token is collateral only.
package compoundv3

import (
	"context"
	"errors"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/market"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	"github.com/holiman/uint256"
)

// ProtocolID is the registry key of this plugin.
const ProtocolID adapter.ProtocolID = "compoundv3"

// Config holds the configuration for the Compound v3 plugin.
type Config struct {
	// BaseTokens is the borrowable base asset of the market on each chain.
	BaseTokens map[uint64]token.Ref
	Markets    market.Source
	Prices     pricefeed.Source
	Tokens     tokenlist.Provider
}

func (c *Config) validate() error {
	if len(c.BaseTokens) == 0 {
		return errors.New("config: BaseTokens must not be empty")
	}
	return nil
}

// Adapter implements adapter.Lender for Compound v3.
type Adapter struct {
	*market.Pool
	baseTokens map[uint64]token.Ref
}

var _ adapter.Lender = (*Adapter)(nil)

// New creates the plugin.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	chainIDs := make([]uint64, 0, len(cfg.BaseTokens))
	base := make(map[uint64]token.Ref, len(cfg.BaseTokens))
	for id, tok := range cfg.BaseTokens {
		chainIDs = append(chainIDs, id)
		base[id] = tok
	}
	pool, err := market.NewPool(market.PoolConfig{
		ID:       ProtocolID,
		ChainIDs: chainIDs,
		Markets:  cfg.Markets,
		Prices:   cfg.Prices,
		Tokens:   cfg.Tokens,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{Pool: pool, baseTokens: base}, nil
}

func (a *Adapter) isBase(chainID uint64, tok token.Ref) bool {
	base, ok := a.baseTokens[chainID]
	return ok && base.Equal(tok)
}

// QuoteSupply prices supplying the base asset or a collateral asset.
// Supply beyond the reserve's cap fails with ErrInsufficientLiquidity.
func (a *Adapter) QuoteSupply(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "compoundv3.quote_supply"
	r, err := a.Prepare(ctx, "quote_supply", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
	}
	if !a.isBase(chainID, tok) && !r.CollateralEnabled {
		return adapter.Quote{}, a.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("not a collateral asset")
	}
	if r.SupplyCap != nil {
		total := r.TotalSupplied
		if total == nil {
			total = new(uint256.Int)
		}
		next, err := numeric.Add(total, amount)
		if err != nil {
			return adapter.Quote{}, a.Fail(adapter.ErrInvalidAmount, op, chainID, tok, amount).Wrap(err)
		}
		if next.Gt(r.SupplyCap) {
			return adapter.Quote{}, a.Fail(adapter.ErrInsufficientLiquidity, op, chainID, tok, amount).
				WithDetail("supply cap %s reached", r.SupplyCap.Dec())
		}
	}
	return a.Quote(chainID, adapter.ActionSupply, tok, amount), nil
}

// QuoteWithdraw prices withdrawing a supplied asset.
func (a *Adapter) QuoteWithdraw(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "compoundv3.quote_withdraw"
	r, err := a.Prepare(ctx, "quote_withdraw", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
	}
	if r.AvailableLiquidity != nil && amount.Gt(r.AvailableLiquidity) {
		return adapter.Quote{}, a.Fail(adapter.ErrInsufficientLiquidity, op, chainID, tok, amount).
			WithDetail("available %s", r.AvailableLiquidity.Dec())
	}
	return a.Quote(chainID, adapter.ActionWithdraw, tok, amount), nil
}

// QuoteBorrow prices borrowing the base asset.
func (a *Adapter) QuoteBorrow(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "compoundv3.quote_borrow"
	r, err := a.Prepare(ctx, "quote_borrow", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
	}
	if !a.isBase(chainID, tok) {
		return adapter.Quote{}, a.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("only the base asset is borrowable")
	}
	if r.AvailableLiquidity != nil && amount.Gt(r.AvailableLiquidity) {
		return adapter.Quote{}, a.Fail(adapter.ErrInsufficientLiquidity, op, chainID, tok, amount).
			WithDetail("available %s", r.AvailableLiquidity.Dec())
	}
	return a.Quote(chainID, adapter.ActionBorrow, tok, amount), nil
}

// QuoteRepay prices repaying base-asset debt.
func (a *Adapter) QuoteRepay(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "compoundv3.quote_repay"
	if _, err := a.Prepare(ctx, "quote_repay", chainID, tok, amount); err != nil {
		return adapter.Quote{}, err
	}
	if !a.isBase(chainID, tok) {
		return adapter.Quote{}, a.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("only base asset debt exists")
	}
	return a.Quote(chainID, adapter.ActionRepay, tok, amount), nil
}

// CheckSafety requires the borrow capacity (collateral value times each
// asset's borrow collateral factor) to cover the base-asset debt.
// Supplied base asset earns interest but is not collateral.
func (a *Adapter) CheckSafety(ctx context.Context, chainID uint64, pos adapter.Position) error {
	const op = "compoundv3.check_safety"
	book, err := a.Book(ctx, chainID)
	if err != nil {
		return err
	}
	capacity, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Collateral, func(r market.Reserve) (uint64, bool) {
		if a.isBase(chainID, r.Token) || !r.CollateralEnabled {
			return 0, false
		}
		return r.CollateralFactorBps, true
	})
	if err != nil {
		return err
	}
	debt, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Debt, market.Full)
	if err != nil {
		return err
	}
	if debt.Gt(capacity) {
		return adapter.NewError(adapter.ErrSafetyBoundViolation, op).WithChain(chainID).WithAdapter(string(ProtocolID)).
			WithDetail("debt value %s exceeds borrow capacity %s", debt.Dec(), capacity.Dec())
	}
	return nil
}
