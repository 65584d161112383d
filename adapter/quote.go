package adapter

import (
	"encoding/json"

	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/holiman/uint256"
)

// Action is the operation a quote prices.
type Action string

const (
	ActionSupply         Action = "supply"
	ActionWithdraw       Action = "withdraw"
	ActionBorrow         Action = "borrow"
	ActionRepay          Action = "repay"
	ActionFlashLoan      Action = "flash-loan"
	ActionFlashLoanRepay Action = "flash-loan-repay"
	ActionSwap           Action = "swap"
)

// Quote is a frozen pricing result. Quotes are produced per request and
// never cached beyond one composition.
//
// Supply and repay fill the In side, withdraw and borrow the Out side,
// flash loans the Out side plus Fee, and swaps both sides.
type Quote struct {
	ChainID      uint64
	Source       string
	Action       Action
	TokenIn      token.Ref
	AmountIn     *uint256.Int
	TokenOut     token.Ref
	AmountOut    *uint256.Int
	MinAmountOut *uint256.Int
	Fee          *uint256.Int
	SlippageBps  uint64
	Route        json.RawMessage
}

// FlashLoanRepayQuote derives the repayment of a flash-loan step from its
// fields: exactly the loan plus its fee, owed to the lender that made it.
func FlashLoanRepayQuote(lender ProtocolID, chainID uint64, loan logic.FlashLoanFields) (Quote, error) {
	amount, err := loan.RepayAmount()
	if err != nil {
		return Quote{}, NewError(ErrInvalidAmount, "adapter.flash_loan_repay_quote").
			WithChain(chainID).WithAdapter(string(lender)).WithToken(loan.Token).Wrap(err)
	}
	return Quote{
		ChainID:  chainID,
		Source:   string(lender),
		Action:   ActionFlashLoanRepay,
		TokenIn:  loan.Token,
		AmountIn: amount,
	}, nil
}
