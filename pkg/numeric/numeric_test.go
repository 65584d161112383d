package numeric

import (
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplySlippage(t *testing.T) {
	tests := []struct {
		name   string
		amount uint64
		bps    uint64
		want   uint64
	}{
		{"zero slippage", 1000, 0, 1000},
		{"fifty bps", 1000, 50, 995},
		{"rounds down", 999, 1, 998},
		{"full slippage", 1000, 10_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplySlippage(uint256.NewInt(tt.amount), tt.bps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Uint64())
		})
	}

	_, err := ApplySlippage(uint256.NewInt(1), 10_001)
	assert.ErrorIs(t, err, ErrInvalidBps)
}

func TestMulDiv(t *testing.T) {
	got, err := MulDiv(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Uint64())

	up, err := MulDivUp(uint256.NewInt(10), uint256.NewInt(3), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(8), up.Uint64())

	exact, err := MulDivUp(uint256.NewInt(10), uint256.NewInt(4), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(10), exact.Uint64())

	_, err = MulDiv(uint256.NewInt(1), uint256.NewInt(1), new(uint256.Int))
	assert.ErrorIs(t, err, ErrDivByZero)

	max := new(uint256.Int).SetAllOne()
	_, err = MulDiv(max, uint256.NewInt(2), uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	// the intermediate product may exceed 256 bits as long as the result fits
	half, err := MulDiv(max, uint256.NewInt(2), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, new(uint256.Int).Rsh(max, 1), half)
}

func TestValue(t *testing.T) {
	// 2 WETH at $2000 (1e8 precision) is $4000.
	v, err := Value(MustParse("2000000000000000000"), uint256.NewInt(2000_00000000), 18)
	require.NoError(t, err)
	assert.Equal(t, uint64(4000_00000000), v.Uint64())

	back, err := AmountForValue(v, uint256.NewInt(2000_00000000), 18)
	require.NoError(t, err)
	assert.Equal(t, "2000000000000000000", back.Dec())
}

func TestWithinBps(t *testing.T) {
	assert.True(t, WithinBps(uint256.NewInt(10_001), uint256.NewInt(10_000), 1))
	assert.True(t, WithinBps(uint256.NewInt(9_999), uint256.NewInt(10_000), 1))
	assert.False(t, WithinBps(uint256.NewInt(10_002), uint256.NewInt(10_000), 1))
	assert.True(t, WithinBps(uint256.NewInt(0), uint256.NewInt(0), 1))
}

func TestParseAmount(t *testing.T) {
	got, err := ParseAmount(" 1000 ")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got.Uint64())

	_, err = ParseAmount("-1")
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseAmount("1.5")
	assert.ErrorIs(t, err, ErrParse)

	_, err = ParseAmount("1" + strings.Repeat("0", 80))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestSubFloorAndMin(t *testing.T) {
	assert.True(t, SubFloor(uint256.NewInt(1), uint256.NewInt(2)).IsZero())
	assert.Equal(t, uint64(3), SubFloor(uint256.NewInt(5), uint256.NewInt(2)).Uint64())
	assert.Equal(t, uint64(2), Min(uint256.NewInt(5), uint256.NewInt(2)).Uint64())
}

func TestUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"1.5", 18, "1500000000000000000"},
		{"2000", 6, "2000000000"},
		{"0.000001", 6, "1"},
		{"1.50", 1, "15"},
		{"0", 18, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Dec())
		})
	}

	_, err := ParseUnits("0.0000001", 6)
	assert.ErrorIs(t, err, ErrParse)
	_, err = ParseUnits("-1", 6)
	assert.ErrorIs(t, err, ErrParse)
	_, err = ParseUnits("abc", 6)
	assert.ErrorIs(t, err, ErrParse)
	_, err = ParseUnits("1"+strings.Repeat("0", 70), 18)
	assert.ErrorIs(t, err, ErrOverflow)

	assert.Equal(t, "1.5", FormatUnits(MustParse("1500000000000000000"), 18))
	assert.Equal(t, "2000", FormatUnits(uint256.NewInt(2_000_000_000), 6))
	assert.Equal(t, "0", FormatUnits(new(uint256.Int), 6))
}
