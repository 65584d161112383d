package adapter

import (
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
)

// RequireChain fails with ErrUnsupportedChain when chainID is not in supported.
func RequireChain(op, adapterID string, supported mapset.Set[uint64], chainID uint64) error {
	if supported == nil || !supported.Contains(chainID) {
		return NewError(ErrUnsupportedChain, op).WithChain(chainID).WithAdapter(adapterID)
	}
	return nil
}

// ValidateAmount fails with ErrInvalidAmount for nil or zero amounts.
// uint256 cannot hold negative or overflowing values, so parsing is where
// those are rejected.
func ValidateAmount(op, adapterID string, chainID uint64, tok token.Ref, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return NewError(ErrInvalidAmount, op).WithChain(chainID).WithAdapter(adapterID).WithToken(tok).WithDetail("amount must be positive")
	}
	return nil
}
