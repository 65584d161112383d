// Package sonne is the Sonne Finance lending plugin, a Compound v2 fork on
// Optimism and Base. Every listed market accepts deposits; only markets
// entered as collateral back borrows, and any market with borrowing
// enabled can be borrowed from.
package sonne

import (
	"context"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/chains"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/market"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	"github.com/holiman/uint256"
)

// ProtocolID is the registry key of this plugin.
const ProtocolID adapter.ProtocolID = "sonne"

// DefaultChainIDs are the chains Sonne is deployed on.
var DefaultChainIDs = []uint64{chains.Optimism, chains.Base}

type Config struct {
	// ChainIDs defaults to DefaultChainIDs.
	ChainIDs []uint64
	Markets  market.Source
	Prices   pricefeed.Source
	Tokens   tokenlist.Provider
}

// Adapter implements adapter.Lender for Sonne.
type Adapter struct {
	*market.Pool
}

var _ adapter.Lender = (*Adapter)(nil)

// New creates the plugin.
func New(cfg Config) (*Adapter, error) {
	chainIDs := cfg.ChainIDs
	if len(chainIDs) == 0 {
		chainIDs = DefaultChainIDs
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
	return &Adapter{Pool: pool}, nil
}

// QuoteSupply prices minting into a market.
func (a *Adapter) QuoteSupply(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "sonne.quote_supply"
	r, err := a.Prepare(ctx, "quote_supply", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
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

// QuoteWithdraw prices redeeming underlying, bounded by the market's cash.
func (a *Adapter) QuoteWithdraw(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "sonne.quote_withdraw"
	r, err := a.Prepare(ctx, "quote_withdraw", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
	}
	if r.AvailableLiquidity != nil && amount.Gt(r.AvailableLiquidity) {
		return adapter.Quote{}, a.Fail(adapter.ErrInsufficientLiquidity, op, chainID, tok, amount).
			WithDetail("market cash %s", r.AvailableLiquidity.Dec())
	}
	return a.Quote(chainID, adapter.ActionWithdraw, tok, amount), nil
}

func (a *Adapter) QuoteBorrow(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "sonne.quote_borrow"
	r, err := a.Prepare(ctx, "quote_borrow", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
	}
	if !r.BorrowEnabled {
		return adapter.Quote{}, a.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("borrowing paused")
	}
	if r.AvailableLiquidity != nil && amount.Gt(r.AvailableLiquidity) {
		return adapter.Quote{}, a.Fail(adapter.ErrInsufficientLiquidity, op, chainID, tok, amount).
			WithDetail("market cash %s", r.AvailableLiquidity.Dec())
	}
	return a.Quote(chainID, adapter.ActionBorrow, tok, amount), nil
}

// QuoteRepay accepts repayment into any listed market; debt in a market
// whose borrowing was paused can still be repaid.
func (a *Adapter) QuoteRepay(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	if _, err := a.Prepare(ctx, "quote_repay", chainID, tok, amount); err != nil {
		return adapter.Quote{}, err
	}
	return a.Quote(chainID, adapter.ActionRepay, tok, amount), nil
}

// Liquidity returns the account's borrow capacity minus its debt value,
// in price units. A negative balance is reported as shortfall instead.
func (a *Adapter) Liquidity(ctx context.Context, chainID uint64, pos adapter.Position) (liquidity, shortfall *uint256.Int, err error) {
	book, err := a.Book(ctx, chainID)
	if err != nil {
		return nil, nil, err
	}
	capacity, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Collateral, func(r market.Reserve) (uint64, bool) {
		return r.CollateralFactorBps, r.CollateralEnabled
	})
	if err != nil {
		return nil, nil, err
	}
	debt, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Debt, market.Full)
	if err != nil {
		return nil, nil, err
	}
	if debt.Gt(capacity) {
		return new(uint256.Int), new(uint256.Int).Sub(debt, capacity), nil
	}
	return new(uint256.Int).Sub(capacity, debt), new(uint256.Int), nil
}

// CheckSafety fails when the position would be in shortfall.
func (a *Adapter) CheckSafety(ctx context.Context, chainID uint64, pos adapter.Position) error {
	_, shortfall, err := a.Liquidity(ctx, chainID, pos)
	if err != nil {
		return err
	}
	if !shortfall.IsZero() {
		return adapter.NewError(adapter.ErrSafetyBoundViolation, "sonne.check_safety").WithChain(chainID).
			WithAdapter(string(ProtocolID)).WithDetail("shortfall %s", shortfall.Dec())
	}
	return nil
}
