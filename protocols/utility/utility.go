// Package utility is the flash-loan provider registered under the reserved
// "utility" protocol id.
package utility

import (
	"context"
	"errors"
	"fmt"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

const ProtocolID = adapter.UtilityProtocolID

var (
	FlashLoanRID      = logic.NewRID(string(ProtocolID), "flash-loan")
	FlashLoanRepayRID = logic.NewRID(string(ProtocolID), "flash-loan-repay")
)

// Config holds the configuration for the flash-loan provider.
type Config struct {
	ChainIDs []uint64
	Tokens   tokenlist.Provider
	// FeeBps is charged on the loaned amount, rounded up.
	FeeBps uint64
	// Liquidity caps the loanable amount per token; absent tokens are uncapped.
	Liquidity map[token.Key]*uint256.Int
}

func (c *Config) validate() error {
	if len(c.ChainIDs) == 0 {
		return errors.New("config: ChainIDs must not be empty")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	if c.FeeBps > numeric.BPSBase {
		return errors.New("config: FeeBps must not exceed 10000")
	}
	return nil
}

// Adapter implements adapter.FlashLoaner.
type Adapter struct {
	chainIDs  mapset.Set[uint64]
	tokens    tokenlist.Provider
	feeBps    uint64
	liquidity map[token.Key]*uint256.Int
}

var _ adapter.FlashLoaner = (*Adapter)(nil)

// New creates the plugin.
func New(cfg Config) (*Adapter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	liquidity := make(map[token.Key]*uint256.Int, len(cfg.Liquidity))
	for k, v := range cfg.Liquidity {
		liquidity[k] = v.Clone()
	}
	return &Adapter{
		chainIDs:  mapset.NewSet(cfg.ChainIDs...),
		tokens:    cfg.Tokens,
		feeBps:    cfg.FeeBps,
		liquidity: liquidity,
	}, nil
}

func (a *Adapter) ID() adapter.ProtocolID { return ProtocolID }

func (a *Adapter) SupportedChainIDs() mapset.Set[uint64] { return a.chainIDs.Clone() }

// TokenList returns the flash-loanable tokens.
func (a *Adapter) TokenList(ctx context.Context, chainID uint64) ([]token.Ref, error) {
	if err := adapter.RequireChain("utility.token_list", string(ProtocolID), a.chainIDs, chainID); err != nil {
		return nil, err
	}
	tokens, err := a.tokens.FlashLoanTokenList(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("utility.token_list: %w", err)
	}
	return tokens, nil
}

// QuoteFlashLoan prices borrowing amount of tok within the transaction.
func (a *Adapter) QuoteFlashLoan(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (adapter.Quote, error) {
	const op = "utility.quote_flash_loan"
	fail := func(kind error) *adapter.Error {
		return adapter.NewError(kind, op).WithChain(chainID).WithAdapter(string(ProtocolID)).WithToken(tok).WithAmount(amount)
	}
	if err := adapter.RequireChain(op, string(ProtocolID), a.chainIDs, chainID); err != nil {
		return adapter.Quote{}, err
	}
	if err := adapter.ValidateAmount(op, string(ProtocolID), chainID, tok, amount); err != nil {
		return adapter.Quote{}, err
	}
	tokens, err := a.TokenList(ctx, chainID)
	if err != nil {
		return adapter.Quote{}, err
	}
	if !token.NewIndex(tokens).Contains(tok) {
		return adapter.Quote{}, fail(adapter.ErrUnsupportedToken).WithDetail("not flash-loanable")
	}
	if limit, ok := a.liquidity[tok.Key()]; ok && amount.Gt(limit) {
		return adapter.Quote{}, fail(adapter.ErrInsufficientLiquidity).WithDetail("available %s", limit.Dec())
	}
	fee, err := numeric.MulDivUp(amount, uint256.NewInt(a.feeBps), uint256.NewInt(numeric.BPSBase))
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrInvalidAmount).Wrap(err)
	}
	return adapter.Quote{
		ChainID:      chainID,
		Source:       string(ProtocolID),
		Action:       adapter.ActionFlashLoan,
		TokenOut:     tok,
		AmountOut:    amount.Clone(),
		MinAmountOut: amount.Clone(),
		Fee:          fee,
	}, nil
}

// FeeBps reports the configured fee. It is the same for every token.
func (a *Adapter) FeeBps(_ context.Context, chainID uint64, _ token.Ref) (uint64, error) {
	if err := adapter.RequireChain("utility.fee_bps", string(ProtocolID), a.chainIDs, chainID); err != nil {
		return 0, err
	}
	return a.feeBps, nil
}

// BuildLogic maps flash-loan and flash-loan-repay quotes.
func (a *Adapter) BuildLogic(q adapter.Quote) (logic.Descriptor, error) {
	if q.Source != string(ProtocolID) {
		return logic.Descriptor{}, adapter.NewError(adapter.ErrUnknownAdapter, "utility.build_logic").WithDetail("quote produced by %q", q.Source)
	}
	switch q.Action {
	case adapter.ActionFlashLoan:
		fee := q.Fee
		if fee == nil {
			fee = new(uint256.Int)
		}
		return logic.Descriptor{RID: FlashLoanRID, Fields: logic.FlashLoanFields{Token: q.TokenOut, Amount: q.AmountOut.Clone(), Fee: fee.Clone()}}, nil
	case adapter.ActionFlashLoanRepay:
		return logic.Descriptor{RID: FlashLoanRepayRID, Fields: logic.FlashLoanRepayFields{Token: q.TokenIn, Amount: q.AmountIn.Clone()}}, nil
	default:
		return logic.Descriptor{}, adapter.NewError(adapter.ErrUnsupportedAction, "utility.build_logic").WithChain(q.ChainID).WithDetail("action %q", q.Action)
	}
}
