package adapter

import (
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Position is an account's collateral and debt in one protocol. It is
// derived from reads and deltas, never persisted.
type Position struct {
	Protocol   ProtocolID          `json:"protocol"`
	ChainID    uint64              `json:"chainId"`
	Account    common.Address      `json:"account"`
	Collateral []logic.TokenAmount `json:"collateral"`
	Debt       []logic.TokenAmount `json:"debt"`
}

// Clone deep-copies the position.
func (p Position) Clone() Position {
	c := p
	c.Collateral = cloneBalances(p.Collateral)
	c.Debt = cloneBalances(p.Debt)
	return c
}

// CollateralOf returns the collateral balance of tok (zero when absent).
func (p Position) CollateralOf(tok token.Ref) *uint256.Int {
	return balanceOf(p.Collateral, tok)
}

// DebtOf returns the debt balance of tok (zero when absent).
func (p Position) DebtOf(tok token.Ref) *uint256.Int {
	return balanceOf(p.Debt, tok)
}

// Apply returns the position after a protocol step. Non-lending fields
// (flash loans, swaps) leave it unchanged. Withdrawing more than the
// collateral balance is a safety violation; over-repaying clears the debt.
func (p Position) Apply(f logic.Fields) (Position, error) {
	next := p.Clone()
	switch v := f.(type) {
	case logic.SupplyFields:
		bal, err := add(next.CollateralOf(v.Token), v.Amount)
		if err != nil {
			return p, NewError(ErrInvalidAmount, "position.apply").WithToken(v.Token).WithAmount(v.Amount)
		}
		next.Collateral = setBalance(next.Collateral, v.Token, bal)
	case logic.WithdrawFields:
		cur := next.CollateralOf(v.Token)
		if cur.Lt(v.Amount) {
			return p, NewError(ErrSafetyBoundViolation, "position.apply").
				WithChain(p.ChainID).WithAdapter(string(p.Protocol)).WithToken(v.Token).WithAmount(v.Amount).
				WithDetail("withdraw exceeds collateral balance %s", cur.Dec())
		}
		next.Collateral = setBalance(next.Collateral, v.Token, new(uint256.Int).Sub(cur, v.Amount))
	case logic.BorrowFields:
		bal, err := add(next.DebtOf(v.Token), v.Amount)
		if err != nil {
			return p, NewError(ErrInvalidAmount, "position.apply").WithToken(v.Token).WithAmount(v.Amount)
		}
		next.Debt = setBalance(next.Debt, v.Token, bal)
	case logic.RepayFields:
		cur := next.DebtOf(v.Token)
		if cur.Lt(v.Amount) {
			next.Debt = setBalance(next.Debt, v.Token, new(uint256.Int))
		} else {
			next.Debt = setBalance(next.Debt, v.Token, new(uint256.Int).Sub(cur, v.Amount))
		}
	}
	return next, nil
}

// ApplyAll folds Apply over a sequence.
func (p Position) ApplyAll(seq logic.Sequence) (Position, error) {
	cur := p
	for _, d := range seq {
		next, err := cur.Apply(d.Fields)
		if err != nil {
			return p, err
		}
		cur = next
	}
	return cur, nil
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrInvalidAmount
	}
	return z, nil
}

func balanceOf(balances []logic.TokenAmount, tok token.Ref) *uint256.Int {
	for _, b := range balances {
		if b.Token.Equal(tok) && b.Amount != nil {
			return b.Amount.Clone()
		}
	}
	return new(uint256.Int)
}

// setBalance replaces or appends; zero balances are dropped.
func setBalance(balances []logic.TokenAmount, tok token.Ref, amount *uint256.Int) []logic.TokenAmount {
	out := balances[:0:0]
	found := false
	for _, b := range balances {
		if b.Token.Equal(tok) {
			found = true
			if !amount.IsZero() {
				out = append(out, logic.NewTokenAmount(b.Token, amount))
			}
			continue
		}
		out = append(out, b)
	}
	if !found && !amount.IsZero() {
		out = append(out, logic.NewTokenAmount(tok, amount))
	}
	return out
}

func cloneBalances(in []logic.TokenAmount) []logic.TokenAmount {
	if in == nil {
		return nil
	}
	out := make([]logic.TokenAmount, len(in))
	for i, b := range in {
		out[i] = logic.NewTokenAmount(b.Token, b.Amount)
	}
	return out
}
