// Package adapter defines the capability interfaces protocol and swapper
// plugins implement, the quote and position values they exchange with the
// composer, and the Registry that holds them.
package adapter

import (
	"context"

	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ProtocolID names a registered protocol plugin, e.g. "compoundv3".
type ProtocolID string

// SwapperID names a registered swapper plugin, e.g. "paraswap-v5".
type SwapperID string

// UtilityProtocolID is reserved for the flash-loan provider.
const UtilityProtocolID ProtocolID = "utility"

// Protocol is the capability every protocol plugin exposes.
type Protocol interface {
	ID() ProtocolID
	SupportedChainIDs() mapset.Set[uint64]
	// TokenList fails with ErrUnsupportedChain for chains outside SupportedChainIDs.
	TokenList(ctx context.Context, chainID uint64) ([]token.Ref, error)
	// BuildLogic maps a quote produced by this plugin to its descriptor. It
	// must not re-price: everything it needs is frozen in the quote.
	BuildLogic(q Quote) (logic.Descriptor, error)
}

// Lender is a Protocol that prices supply/borrow/repay/withdraw and
// exposes the risk surface the composer needs for leverage maths.
type Lender interface {
	Protocol
	QuoteSupply(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (Quote, error)
	QuoteWithdraw(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (Quote, error)
	QuoteBorrow(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (Quote, error)
	QuoteRepay(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (Quote, error)

	// Position reads the account's current balances in this protocol.
	Position(ctx context.Context, chainID uint64, account common.Address) (Position, error)
	// Price returns the protocol's oracle price with numeric.PriceDecimals precision.
	Price(ctx context.Context, chainID uint64, tok token.Ref) (*uint256.Int, error)
	// CollateralFactorBps is the share of collateral value that may be borrowed against.
	CollateralFactorBps(ctx context.Context, chainID uint64, tok token.Ref) (uint64, error)
	// CheckSafety fails with ErrSafetyBoundViolation if pos breaches the
	// protocol's limits.
	CheckSafety(ctx context.Context, chainID uint64, pos Position) error
}

// FlashLoaner is a Protocol that lends within a single transaction. Its
// BuildLogic accepts both ActionFlashLoan and ActionFlashLoanRepay quotes.
type FlashLoaner interface {
	Protocol
	QuoteFlashLoan(ctx context.Context, chainID uint64, tok token.Ref, amount *uint256.Int) (Quote, error)
	// FeeBps is the fee charged on a loan of tok, in bps of the amount.
	FeeBps(ctx context.Context, chainID uint64, tok token.Ref) (uint64, error)
}

// Swapper quotes token-to-token swaps on one venue.
type Swapper interface {
	ID() SwapperID
	SupportedChainIDs() mapset.Set[uint64]
	// QuoteSwap prices selling amountIn of tokenIn. MinAmountOut must equal
	// AmountOut * (10000 - slippageBps) / 10000.
	QuoteSwap(ctx context.Context, chainID uint64, tokenIn, tokenOut token.Ref, amountIn *uint256.Int, slippageBps uint64) (Quote, error)
	BuildLogic(q Quote) (logic.Descriptor, error)
}
