// Package aave implements the lending plugin shared by the Aave family:
// Aave v2, Aave v3 and Radiant v2 expose the same pool semantics and
// differ only in deployment and router id.
package aave

import (
	"context"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/market"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	"github.com/holiman/uint256"
)

const (
	AaveV2    adapter.ProtocolID = "aave-v2"
	AaveV3    adapter.ProtocolID = "aave-v3"
	RadiantV2 adapter.ProtocolID = "radiant-v2"
)

// Config holds the configuration for one Aave-family deployment.
type Config struct {
	ID       adapter.ProtocolID
	ChainIDs []uint64
	Markets  market.Source
	Prices   pricefeed.Source
	Tokens   tokenlist.Provider
}

// Adapter implements adapter.Lender for an Aave-family pool.
type Adapter struct {
	*market.Pool
}

var _ adapter.Lender = (*Adapter)(nil)

// New creates the plugin.
func New(cfg Config) (*Adapter, error) {
	pool, err := market.NewPool(market.PoolConfig{
		ID:       cfg.ID,
		ChainIDs: cfg.ChainIDs,
		Markets:  cfg.Markets,
		Prices:   cfg.Prices,
		Tokens:   cfg.Tokens,
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{Pool: pool}, nil
}

func (a *Adapter) QuoteSupply(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	op := string(a.ID()) + ".quote_supply"
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

func (a *Adapter) QuoteWithdraw(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	op := string(a.ID()) + ".quote_withdraw"
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

func (a *Adapter) QuoteBorrow(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	op := string(a.ID()) + ".quote_borrow"
	r, err := a.Prepare(ctx, "quote_borrow", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
	}
	if !r.BorrowEnabled {
		return adapter.Quote{}, a.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("borrowing disabled")
	}
	if r.AvailableLiquidity != nil && amount.Gt(r.AvailableLiquidity) {
		return adapter.Quote{}, a.Fail(adapter.ErrInsufficientLiquidity, op, chainID, tok, amount).
			WithDetail("available %s", r.AvailableLiquidity.Dec())
	}
	return a.Quote(chainID, adapter.ActionBorrow, tok, amount), nil
}

func (a *Adapter) QuoteRepay(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	op := string(a.ID()) + ".quote_repay"
	r, err := a.Prepare(ctx, "quote_repay", chainID, tok, amount)
	if err != nil {
		return adapter.Quote{}, err
	}
	if !r.BorrowEnabled {
		return adapter.Quote{}, a.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("borrowing disabled")
	}
	return a.Quote(chainID, adapter.ActionRepay, tok, amount), nil
}

// HealthFactor returns the risk-adjusted collateral over debt in bps
// (10000 = 1.0). An account without debt reports ok=false.
func (a *Adapter) HealthFactor(ctx context.Context, chainID uint64, pos adapter.Position) (hf *uint256.Int, ok bool, err error) {
	book, err := a.Book(ctx, chainID)
	if err != nil {
		return nil, false, err
	}
	adjusted, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Collateral, func(r market.Reserve) (uint64, bool) {
		return r.LiquidationThresholdBps, r.CollateralEnabled
	})
	if err != nil {
		return nil, false, err
	}
	debt, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Debt, market.Full)
	if err != nil {
		return nil, false, err
	}
	if debt.IsZero() {
		return nil, false, nil
	}
	hf, err = numeric.MulDiv(adjusted, uint256.NewInt(numeric.BPSBase), debt)
	if err != nil {
		return nil, false, err
	}
	return hf, true, nil
}

// CheckSafety requires debt within the LTV borrow capacity and a health
// factor of at least 1.
func (a *Adapter) CheckSafety(ctx context.Context, chainID uint64, pos adapter.Position) error {
	op := string(a.ID()) + ".check_safety"
	book, err := a.Book(ctx, chainID)
	if err != nil {
		return err
	}
	capacity, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Collateral, func(r market.Reserve) (uint64, bool) {
		return r.CollateralFactorBps, r.CollateralEnabled
	})
	if err != nil {
		return err
	}
	debt, err := book.WeightedValue(ctx, a.Prices(), chainID, pos.Debt, market.Full)
	if err != nil {
		return err
	}
	if debt.Gt(capacity) {
		return adapter.NewError(adapter.ErrSafetyBoundViolation, op).WithChain(chainID).WithAdapter(string(a.ID())).
			WithDetail("debt value %s exceeds LTV capacity %s", debt.Dec(), capacity.Dec())
	}
	hf, ok, err := a.HealthFactor(ctx, chainID, pos)
	if err != nil {
		return err
	}
	if ok && hf.Lt(uint256.NewInt(numeric.BPSBase)) {
		return adapter.NewError(adapter.ErrSafetyBoundViolation, op).WithChain(chainID).WithAdapter(string(a.ID())).
			WithDetail("health factor %s bps below 10000", hf.Dec())
	}
	return nil
}
