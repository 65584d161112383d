// Package numeric holds the fixed-point helpers shared by the composer and
// its plugins. Every amount is a base-unit *uint256.Int; helpers never
// mutate their arguments.
package numeric

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// BPSBase is the denominator of every basis-point value.
const BPSBase uint64 = 10_000

// PriceDecimals is the precision of prices handled by plugins (1e8 per whole token).
const PriceDecimals = 8

var (
	ErrOverflow   = errors.New("numeric: overflow")
	ErrDivByZero  = errors.New("numeric: division by zero")
	ErrInvalidBps = errors.New("numeric: bps out of range")
	ErrParse      = errors.New("numeric: invalid decimal amount")
)

var bpsBase = uint256.NewInt(BPSBase)

// MulDiv returns x*y/d rounded down.
func MulDiv(x, y, d *uint256.Int) (*uint256.Int, error) {
	if d.IsZero() {
		return nil, ErrDivByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(x, y, d)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// MulDivUp returns x*y/d rounded up.
func MulDivUp(x, y, d *uint256.Int) (*uint256.Int, error) {
	z, err := MulDiv(x, y, d)
	if err != nil {
		return nil, err
	}
	if rem := new(uint256.Int).MulMod(x, y, d); !rem.IsZero() {
		return Add(z, uint256.NewInt(1))
	}
	return z, nil
}

// Add returns x+y.
func Add(x, y *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(x, y)
	if overflow {
		return nil, ErrOverflow
	}
	return z, nil
}

// SubFloor returns x-y, or zero when y > x.
func SubFloor(x, y *uint256.Int) *uint256.Int {
	if y.Cmp(x) >= 0 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(x, y)
}

// Min returns a copy of the smaller value.
func Min(x, y *uint256.Int) *uint256.Int {
	if x.Cmp(y) <= 0 {
		return x.Clone()
	}
	return y.Clone()
}

// ApplyBps returns amount*bps/10000 rounded down.
func ApplyBps(amount *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(amount, uint256.NewInt(bps), bpsBase)
}

// ApplySlippage returns the guaranteed minimum of amount under a bps
// tolerance: amount * (10000 - bps) / 10000, rounded down.
func ApplySlippage(amount *uint256.Int, slippageBps uint64) (*uint256.Int, error) {
	if slippageBps > BPSBase {
		return nil, fmt.Errorf("%w: slippage %d", ErrInvalidBps, slippageBps)
	}
	return ApplyBps(amount, BPSBase-slippageBps)
}

// Pow10 returns 10^n.
func Pow10(n uint8) *uint256.Int {
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n)))
}

// Value converts a token amount into price units: amount * price / 10^decimals.
func Value(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	return MulDiv(amount, price, Pow10(decimals))
}

// AmountForValue is the inverse of Value, rounded down.
func AmountForValue(value, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	return MulDiv(value, Pow10(decimals), price)
}

// WithinBps reports whether a and b differ by at most bps of b.
func WithinBps(a, b *uint256.Int, bps uint64) bool {
	var diff uint256.Int
	if a.Cmp(b) >= 0 {
		diff.Sub(a, b)
	} else {
		diff.Sub(b, a)
	}
	tolerance, err := ApplyBps(b, bps)
	if err != nil {
		return false
	}
	return diff.Cmp(tolerance) <= 0
}

// ParseAmount parses a base-10 integer amount. Values beyond 2^256-1 fail
// with ErrOverflow.
func ParseAmount(s string) (*uint256.Int, error) {
	s = strings.TrimSpace(s)
	b, ok := new(big.Int).SetString(s, 10)
	if !ok || b.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrParse, s)
	}
	z, overflow := uint256.FromBig(b)
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, s)
	}
	return z, nil
}

// MustParse is ParseAmount for constants and tests.
func MustParse(s string) *uint256.Int {
	z, err := ParseAmount(s)
	if err != nil {
		panic(err)
	}
	return z
}

// ParseUnits parses a decimal amount in whole tokens ("1.5") into base units.
// More fractional digits than decimals allows is an error, not a rounding.
func ParseUnits(s string, decimals uint8) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || d.Sign() < 0 {
		return nil, fmt.Errorf("%w: %q", ErrParse, s)
	}
	d = d.Shift(int32(decimals))
	if !d.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimals", ErrParse, s, decimals)
	}
	z, overflow := uint256.FromBig(d.BigInt())
	if overflow {
		return nil, fmt.Errorf("%w: %s", ErrOverflow, s)
	}
	return z, nil
}

// FormatUnits renders a base-unit amount in whole tokens, trimming trailing zeros.
func FormatUnits(amount *uint256.Int, decimals uint8) string {
	return decimal.NewFromBigInt(amount.ToBig(), -int32(decimals)).String()
}
