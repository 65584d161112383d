package composer

import (
	"context"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/holiman/uint256"
)

// withdrawalAttempts bounds the re-quotes spent sizing a close withdrawal.
const withdrawalAttempts = 2

// MaxLeverageBps is the leverage at which the whole borrow capacity of a
// collateral with the given factor is used: 1 / (1 - cf), in bps. It
// reports false when cf leaves leverage unbounded.
func MaxLeverageBps(collateralFactorBps uint64) (uint64, bool) {
	return EffectiveMaxLeverageBps(collateralFactorBps, 0, 0)
}

// EffectiveMaxLeverageBps is MaxLeverageBps for a position opened from no
// debt when the flash loan charges feeBps and the swap guarantees only
// (1 - slippage) of the oracle value:
//
//	1 + cf / ((1 + fee) - cf * (1 - slippage))
//
// Each borrowed unit costs 1+fee of debt and adds cf*(1-slippage) of
// capacity. It reports false when the position never runs out of capacity.
func EffectiveMaxLeverageBps(collateralFactorBps, feeBps, slippageBps uint64) (uint64, bool) {
	base := numeric.BPSBase
	if collateralFactorBps > base || slippageBps > base {
		return 0, false
	}
	cost := base * (base + feeBps)
	gain := collateralFactorBps * (base - slippageBps)
	if gain >= cost {
		return 0, false
	}
	return base + base*base*collateralFactorBps/(cost-gain), true
}

// open composes
//
//	[supply deposit] -> flash-loan -> [swap] -> supply -> borrow -> flash-loan-repay
//
// so that collateral value / equity reaches the target leverage.
func (b *build) open(ctx context.Context) error {
	const op = "composer.open_leveraged_position"
	r := b.req
	if err := requirePair(op, r); err != nil {
		return err
	}
	fl, err := b.c.flashLoaner(op, r.ChainID)
	if err != nil {
		return err
	}
	unreachable := func(format string, args ...any) error {
		return adapter.NewError(adapter.ErrLeverageUnreachable, op).WithChain(r.ChainID).
			WithAdapter(string(r.ProtocolID)).WithToken(r.CollateralToken).WithDetail(format, args...)
	}

	cf, err := b.lender.CollateralFactorBps(ctx, r.ChainID, r.CollateralToken)
	if err != nil {
		return err
	}
	feeBps, err := fl.FeeBps(ctx, r.ChainID, r.DebtToken)
	if err != nil {
		return err
	}
	slippage := b.slippage
	if r.CollateralToken.Equal(r.DebtToken) {
		slippage = 0
	}
	if maxBps, bounded := EffectiveMaxLeverageBps(cf, feeBps, slippage); bounded && r.TargetLeverageBps > maxBps {
		return unreachable("target %d bps exceeds maximum %d bps at %d bps fee and %d bps slippage", r.TargetLeverageBps, maxBps, feeBps, slippage)
	}

	collateralPrice, err := b.lender.Price(ctx, r.ChainID, r.CollateralToken)
	if err != nil {
		return err
	}
	debtPrice, err := b.lender.Price(ctx, r.ChainID, r.DebtToken)
	if err != nil {
		return err
	}
	collateralValue, err := b.value(ctx, b.before.Collateral)
	if err != nil {
		return err
	}
	debtValue, err := b.value(ctx, b.before.Debt)
	if err != nil {
		return err
	}
	hasDeposit := r.Amount != nil && !r.Amount.IsZero()
	if hasDeposit {
		deposit, err := numeric.Value(r.Amount, collateralPrice, r.CollateralToken.Decimals)
		if err != nil {
			return adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).WithToken(r.CollateralToken).WithAmount(r.Amount).Wrap(err)
		}
		if collateralValue, err = numeric.Add(collateralValue, deposit); err != nil {
			return adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).WithToken(r.CollateralToken).WithAmount(r.Amount).Wrap(err)
		}
	}
	if !collateralValue.Gt(debtValue) {
		return unreachable("position has no equity")
	}
	equity := new(uint256.Int).Sub(collateralValue, debtValue)
	current, err := numeric.MulDiv(collateralValue, uint256.NewInt(numeric.BPSBase), equity)
	if err != nil {
		return adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).Wrap(err)
	}
	if !current.IsUint64() || r.TargetLeverageBps <= current.Uint64() {
		return unreachable("target %d bps does not exceed current %s bps", r.TargetLeverageBps, current.Dec())
	}

	targetValue, err := numeric.ApplyBps(equity, r.TargetLeverageBps)
	if err != nil {
		return adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).Wrap(err)
	}
	flashAmount, err := numeric.AmountForValue(numeric.SubFloor(targetValue, collateralValue), debtPrice, r.DebtToken.Decimals)
	if err != nil {
		return adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).WithToken(r.DebtToken).Wrap(err)
	}
	if flashAmount.IsZero() {
		return adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).WithToken(r.DebtToken).
			WithDetail("flash-loan amount for %d bps rounds to zero", r.TargetLeverageBps)
	}
	b.c.logger.Debug("Sized leverage flash loan",
		"chain_id", r.ChainID,
		"protocol", r.ProtocolID,
		"current_bps", current.Dec(),
		"target_bps", r.TargetLeverageBps,
		"flash_amount", flashAmount.Dec(),
	)

	if hasDeposit {
		q, err := b.lender.QuoteSupply(ctx, r.ChainID, r.CollateralToken, r.Amount)
		if err != nil {
			return err
		}
		if _, err := b.add(b.lender, q, false); err != nil {
			return err
		}
	}

	loan, err := b.flashLoan(ctx, op, fl, r.DebtToken, flashAmount)
	if err != nil {
		return err
	}

	supplyAmount := loan.Amount
	if !r.CollateralToken.Equal(r.DebtToken) {
		s, q, err := b.c.bestSwap(ctx, r.ChainID, r.DebtToken, r.CollateralToken, loan.Amount, b.slippage)
		if err != nil {
			return err
		}
		if _, err := b.add(s, q, true); err != nil {
			return err
		}
		b.swapper = s.ID()
		supplyAmount = q.MinAmountOut
	}

	supply, err := b.lender.QuoteSupply(ctx, r.ChainID, r.CollateralToken, supplyAmount)
	if err != nil {
		return err
	}
	if _, err := b.add(b.lender, supply, true); err != nil {
		return err
	}

	repay, err := adapter.FlashLoanRepayQuote(fl.ID(), r.ChainID, loan)
	if err != nil {
		return err
	}
	borrow, err := b.lender.QuoteBorrow(ctx, r.ChainID, r.DebtToken, repay.AmountIn)
	if err != nil {
		return err
	}
	if _, err := b.add(b.lender, borrow, false); err != nil {
		return err
	}
	_, err = b.add(fl, repay, true)
	return err
}

// close composes
//
//	flash-loan -> repay -> withdraw -> [swap] -> flash-loan-repay
//
// withdrawing only as much collateral as the swap needs to guarantee the
// flash-loan repayment.
func (b *build) close(ctx context.Context) error {
	const op = "composer.close_leveraged_position"
	r := b.req
	if err := requirePair(op, r); err != nil {
		return err
	}
	fl, err := b.c.flashLoaner(op, r.ChainID)
	if err != nil {
		return err
	}
	invalid := func(format string, args ...any) error {
		return adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).
			WithAdapter(string(r.ProtocolID)).WithToken(r.DebtToken).WithAmount(r.Amount).WithDetail(format, args...)
	}

	debt := b.before.DebtOf(r.DebtToken)
	if debt.IsZero() {
		return invalid("no %s debt to repay", r.DebtToken)
	}
	repayAmount := debt
	if r.Amount != nil {
		if r.Amount.IsZero() {
			return invalid("amount must be positive")
		}
		if r.Amount.Gt(debt) {
			return invalid("amount exceeds debt %s", debt.Dec())
		}
		repayAmount = r.Amount
	}

	loan, err := b.flashLoan(ctx, op, fl, r.DebtToken, repayAmount)
	if err != nil {
		return err
	}
	repayDebt, err := b.lender.QuoteRepay(ctx, r.ChainID, r.DebtToken, loan.Amount)
	if err != nil {
		return err
	}
	if _, err := b.add(b.lender, repayDebt, true); err != nil {
		return err
	}

	repayLoan, err := adapter.FlashLoanRepayQuote(fl.ID(), r.ChainID, loan)
	if err != nil {
		return err
	}
	need := repayLoan.AmountIn
	held := b.before.CollateralOf(r.CollateralToken)

	if r.CollateralToken.Equal(r.DebtToken) {
		if need.Gt(held) {
			return adapter.NewError(adapter.ErrInsufficientLiquidity, op).WithChain(r.ChainID).WithAdapter(string(r.ProtocolID)).
				WithToken(r.CollateralToken).WithAmount(need).WithDetail("collateral %s cannot repay the flash loan", held.Dec())
		}
		withdraw, err := b.lender.QuoteWithdraw(ctx, r.ChainID, r.CollateralToken, need)
		if err != nil {
			return err
		}
		if _, err := b.add(b.lender, withdraw, false); err != nil {
			return err
		}
	} else {
		amount, s, q, err := b.sizeWithdrawal(ctx, op, need, held)
		if err != nil {
			return err
		}
		withdraw, err := b.lender.QuoteWithdraw(ctx, r.ChainID, r.CollateralToken, amount)
		if err != nil {
			return err
		}
		if _, err := b.add(b.lender, withdraw, false); err != nil {
			return err
		}
		if _, err := b.add(s, q, true); err != nil {
			return err
		}
		b.swapper = s.ID()
	}

	_, err = b.add(fl, repayLoan, true)
	return err
}

// sizeWithdrawal finds the collateral amount whose best swap guarantees at
// least need of the debt token. A probe quote of the whole balance gives
// the rate; the amount derived from it is re-quoted and, if short, scaled
// up by the observed shortfall.
func (b *build) sizeWithdrawal(ctx context.Context, op string, need, held *uint256.Int) (*uint256.Int, adapter.Swapper, adapter.Quote, error) {
	r := b.req
	short := func(format string, args ...any) error {
		return adapter.NewError(adapter.ErrInsufficientLiquidity, op).WithChain(r.ChainID).WithAdapter(string(r.ProtocolID)).
			WithToken(r.CollateralToken).WithAmount(need).WithDetail(format, args...)
	}
	if held.IsZero() {
		return nil, nil, adapter.Quote{}, short("no %s collateral to withdraw", r.CollateralToken)
	}

	probeSwapper, probe, err := b.c.bestSwap(ctx, r.ChainID, r.CollateralToken, r.DebtToken, held, b.slippage)
	if err != nil {
		return nil, nil, adapter.Quote{}, err
	}
	if probe.MinAmountOut.Lt(need) {
		return nil, nil, adapter.Quote{}, short("swapping all collateral guarantees %s, need %s", probe.MinAmountOut.Dec(), need.Dec())
	}
	amount, err := numeric.MulDivUp(need, held, probe.MinAmountOut)
	if err != nil {
		return nil, nil, adapter.Quote{}, adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).Wrap(err)
	}
	amount = numeric.Min(amount, held)

	for range withdrawalAttempts {
		if amount.Eq(held) {
			return amount, probeSwapper, probe, nil
		}
		s, q, err := b.c.bestSwap(ctx, r.ChainID, r.CollateralToken, r.DebtToken, amount, b.slippage)
		if err != nil {
			return nil, nil, adapter.Quote{}, err
		}
		if !q.MinAmountOut.Lt(need) {
			return amount, s, q, nil
		}
		next, err := numeric.MulDivUp(amount, need, q.MinAmountOut)
		if err != nil {
			return nil, nil, adapter.Quote{}, adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(r.ChainID).Wrap(err)
		}
		if !next.Gt(amount) {
			next = new(uint256.Int).AddUint64(amount, 1)
		}
		amount = numeric.Min(next, held)
	}
	return nil, nil, adapter.Quote{}, short("guaranteed swap output stays below %s", need.Dec())
}

// flashLoan quotes and appends the flash-loan step and returns its fields.
func (b *build) flashLoan(ctx context.Context, op string, fl adapter.FlashLoaner, tok token.Ref, amount *uint256.Int) (logic.FlashLoanFields, error) {
	q, err := fl.QuoteFlashLoan(ctx, b.req.ChainID, tok, amount)
	if err != nil {
		return logic.FlashLoanFields{}, err
	}
	d, err := b.add(fl, q, false)
	if err != nil {
		return logic.FlashLoanFields{}, err
	}
	loan, ok := d.Fields.(logic.FlashLoanFields)
	if !ok {
		return logic.FlashLoanFields{}, adapter.NewError(adapter.ErrBrokenChain, op).WithChain(b.req.ChainID).
			WithAdapter(string(fl.ID())).WithDetail("flash-loan step carries %T", d.Fields)
	}
	return loan, nil
}

// value prices balances with the lender's oracle.
func (b *build) value(ctx context.Context, balances []logic.TokenAmount) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, bal := range balances {
		if bal.Amount == nil || bal.Amount.IsZero() {
			continue
		}
		price, err := b.lender.Price(ctx, b.req.ChainID, bal.Token)
		if err != nil {
			return nil, err
		}
		v, err := numeric.Value(bal.Amount, price, bal.Token.Decimals)
		if err != nil {
			return nil, adapter.NewError(adapter.ErrInvalidAmount, "composer.value").WithChain(b.req.ChainID).WithToken(bal.Token).Wrap(err)
		}
		if total, err = numeric.Add(total, v); err != nil {
			return nil, adapter.NewError(adapter.ErrInvalidAmount, "composer.value").WithChain(b.req.ChainID).Wrap(err)
		}
	}
	return total, nil
}

func requirePair(op string, r Request) error {
	if r.CollateralToken.IsZero() || r.DebtToken.IsZero() {
		return adapter.NewError(adapter.ErrUnsupportedToken, op).WithChain(r.ChainID).
			WithAdapter(string(r.ProtocolID)).WithDetail("collateral and debt tokens are required")
	}
	return nil
}
