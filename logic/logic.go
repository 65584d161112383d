// Package logic defines the protocol-agnostic call descriptors the composer
// emits. A Descriptor pairs a router id with one of a closed set of field
// variants; the downstream execution layer turns them into transactions.
package logic

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/holiman/uint256"
)

// RID selects the on-chain call template a descriptor's fields populate,
// e.g. "compoundv3:borrow".
type RID string

// NewRID joins a plugin id and a logic kind.
func NewRID(pluginID, kind string) RID {
	return RID(pluginID + ":" + kind)
}

// TokenAmount is an amount of a token in base units.
type TokenAmount struct {
	Token  token.Ref    `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

// NewTokenAmount copies amount so later mutations of the argument do not leak in.
func NewTokenAmount(tok token.Ref, amount *uint256.Int) TokenAmount {
	ta := TokenAmount{Token: tok}
	if amount != nil {
		ta.Amount = amount.Clone()
	} else {
		ta.Amount = new(uint256.Int)
	}
	return ta
}

func (ta TokenAmount) String() string {
	amt := "0"
	if ta.Amount != nil {
		amt = ta.Amount.Dec()
	}
	return fmt.Sprintf("%s %s", amt, ta.Token)
}

// Fields is the sealed set of per-action field bundles.
type Fields interface {
	// Consumes is the token and amount the step takes from the router balance.
	Consumes() (TokenAmount, bool)
	// Produces is the token and amount the step leaves in the router balance.
	Produces() (TokenAmount, bool)
	kind() string
}

// SupplyFields deposits Amount of Token into a lending protocol.
type SupplyFields struct {
	Token  token.Ref    `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

func (f SupplyFields) Consumes() (TokenAmount, bool) { return NewTokenAmount(f.Token, f.Amount), true }
func (f SupplyFields) Produces() (TokenAmount, bool) { return TokenAmount{}, false }
func (SupplyFields) kind() string                    { return "supply" }

// WithdrawFields redeems Amount of Token from a lending protocol.
type WithdrawFields struct {
	Token  token.Ref    `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

func (f WithdrawFields) Consumes() (TokenAmount, bool) { return TokenAmount{}, false }
func (f WithdrawFields) Produces() (TokenAmount, bool) { return NewTokenAmount(f.Token, f.Amount), true }
func (WithdrawFields) kind() string                    { return "withdraw" }

// BorrowFields draws Amount of Token as new debt.
type BorrowFields struct {
	Token  token.Ref    `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

func (f BorrowFields) Consumes() (TokenAmount, bool) { return TokenAmount{}, false }
func (f BorrowFields) Produces() (TokenAmount, bool) { return NewTokenAmount(f.Token, f.Amount), true }
func (BorrowFields) kind() string                    { return "borrow" }

// RepayFields pays back Amount of Token of outstanding debt.
type RepayFields struct {
	Token  token.Ref    `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

func (f RepayFields) Consumes() (TokenAmount, bool) { return NewTokenAmount(f.Token, f.Amount), true }
func (f RepayFields) Produces() (TokenAmount, bool) { return TokenAmount{}, false }
func (RepayFields) kind() string                    { return "repay" }

// FlashLoanFields borrows Amount of Token for the duration of the
// transaction. Fee is owed on top when the repay step runs.
type FlashLoanFields struct {
	Token  token.Ref    `json:"token"`
	Amount *uint256.Int `json:"amount"`
	Fee    *uint256.Int `json:"fee"`
}

func (f FlashLoanFields) Consumes() (TokenAmount, bool) { return TokenAmount{}, false }
func (f FlashLoanFields) Produces() (TokenAmount, bool) {
	return NewTokenAmount(f.Token, f.Amount), true
}
func (FlashLoanFields) kind() string { return "flash-loan" }

// RepayAmount is the loan plus its fee.
func (f FlashLoanFields) RepayAmount() (*uint256.Int, error) {
	fee := f.Fee
	if fee == nil {
		fee = new(uint256.Int)
	}
	z, overflow := new(uint256.Int).AddOverflow(f.Amount, fee)
	if overflow {
		return nil, errors.New("logic: flash loan repay amount overflows")
	}
	return z, nil
}

// FlashLoanRepayFields returns Amount (loan plus fee) of Token to the lender.
type FlashLoanRepayFields struct {
	Token  token.Ref    `json:"token"`
	Amount *uint256.Int `json:"amount"`
}

func (f FlashLoanRepayFields) Consumes() (TokenAmount, bool) {
	return NewTokenAmount(f.Token, f.Amount), true
}
func (f FlashLoanRepayFields) Produces() (TokenAmount, bool) { return TokenAmount{}, false }
func (FlashLoanRepayFields) kind() string                    { return "flash-loan-repay" }

// SwapFields sells Input for at least Output. Estimate is the venue's
// expected output amount; linkage always uses the guaranteed Output.
type SwapFields struct {
	Input       TokenAmount     `json:"input"`
	Output      TokenAmount     `json:"output"`
	Estimate    *uint256.Int    `json:"estimate"`
	SlippageBps uint64          `json:"slippage"`
	Route       json.RawMessage `json:"route,omitempty"`
}

func (f SwapFields) Consumes() (TokenAmount, bool) { return f.Input, true }
func (f SwapFields) Produces() (TokenAmount, bool) { return f.Output, true }
func (SwapFields) kind() string                    { return "swap-token" }

// Kind returns the logic kind of a field bundle ("supply", "swap-token", ...).
func Kind(f Fields) string {
	if f == nil {
		return ""
	}
	return f.kind()
}

// Descriptor is one atomic call. DependsOnPrevious marks that what the
// step consumes is funded by what the previous step produced.
type Descriptor struct {
	RID               RID
	Fields            Fields
	DependsOnPrevious bool
}

type wireDescriptor struct {
	RID    RID    `json:"rid"`
	Fields Fields `json:"fields"`
}

// MarshalJSON emits the {rid, fields} wire shape.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireDescriptor{RID: d.RID, Fields: d.Fields})
}
