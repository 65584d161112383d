package logic

import (
	"encoding/json"
	"testing"

	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	usdc = token.Ref{ChainID: 42161, Address: common.HexToAddress("0xaf88d065e77c8cC2239327C5EDb3A432268e5831"), Symbol: "USDC", Decimals: 6}
	weth = token.Ref{ChainID: 42161, Address: common.HexToAddress("0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"), Symbol: "WETH", Decimals: 18}
)

func leveragedOpen(swapOut, supplyIn uint64) Sequence {
	return Sequence{
		{RID: "utility:flash-loan", Fields: FlashLoanFields{Token: usdc, Amount: uint256.NewInt(1000), Fee: uint256.NewInt(1)}},
		{RID: "paraswap-v5:swap-token", DependsOnPrevious: true, Fields: SwapFields{
			Input:  NewTokenAmount(usdc, uint256.NewInt(1000)),
			Output: NewTokenAmount(weth, uint256.NewInt(swapOut)),
		}},
		{RID: "compoundv3:supply", DependsOnPrevious: true, Fields: SupplyFields{Token: weth, Amount: uint256.NewInt(supplyIn)}},
		{RID: "compoundv3:borrow", Fields: BorrowFields{Token: usdc, Amount: uint256.NewInt(1001)}},
		{RID: "utility:flash-loan-repay", DependsOnPrevious: true, Fields: FlashLoanRepayFields{Token: usdc, Amount: uint256.NewInt(1001)}},
	}
}

func TestValidateChain(t *testing.T) {
	t.Run("ValidSequence", func(t *testing.T) {
		require.NoError(t, leveragedOpen(500, 500).ValidateChain())
	})

	t.Run("SurplusIsAllowed", func(t *testing.T) {
		require.NoError(t, leveragedOpen(501, 500).ValidateChain())
	})

	t.Run("ShortfallBreaksChain", func(t *testing.T) {
		err := leveragedOpen(499, 500).ValidateChain()
		require.ErrorIs(t, err, ErrBrokenChain)

		var linkErr *LinkError
		require.ErrorAs(t, err, &linkErr)
		assert.Equal(t, 2, linkErr.Index)
	})

	t.Run("TokenMismatchBreaksChain", func(t *testing.T) {
		seq := leveragedOpen(500, 500)
		seq[2].Fields = SupplyFields{Token: usdc, Amount: uint256.NewInt(500)}
		assert.ErrorIs(t, seq.ValidateChain(), ErrBrokenChain)
	})

	t.Run("DependentOnStepWithoutOutput", func(t *testing.T) {
		seq := Sequence{
			{RID: "compoundv3:supply", Fields: SupplyFields{Token: weth, Amount: uint256.NewInt(1)}},
			{RID: "compoundv3:repay", DependsOnPrevious: true, Fields: RepayFields{Token: weth, Amount: uint256.NewInt(1)}},
		}
		assert.ErrorIs(t, seq.ValidateChain(), ErrBrokenChain)
	})

	t.Run("FirstStepCannotDepend", func(t *testing.T) {
		seq := Sequence{{RID: "compoundv3:supply", DependsOnPrevious: true, Fields: SupplyFields{Token: weth, Amount: uint256.NewInt(1)}}}
		assert.ErrorIs(t, seq.ValidateChain(), ErrBrokenChain)
	})
}

func TestRIDs(t *testing.T) {
	assert.Equal(t, []RID{
		"utility:flash-loan",
		"paraswap-v5:swap-token",
		"compoundv3:supply",
		"compoundv3:borrow",
		"utility:flash-loan-repay",
	}, leveragedOpen(1, 1).RIDs())
	assert.Equal(t, RID("aave-v3:borrow"), NewRID("aave-v3", "borrow"))
}

func TestFlashLoanRepayAmount(t *testing.T) {
	f := FlashLoanFields{Token: usdc, Amount: uint256.NewInt(1000), Fee: uint256.NewInt(9)}
	got, err := f.RepayAmount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1009), got.Uint64())

	noFee := FlashLoanFields{Token: usdc, Amount: uint256.NewInt(1000)}
	got, err = noFee.RepayAmount()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), got.Uint64())
}

func TestDescriptorWireShape(t *testing.T) {
	d := Descriptor{RID: "compoundv3:borrow", Fields: BorrowFields{Token: usdc, Amount: uint256.NewInt(1000)}}

	raw, err := json.Marshal(d)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Len(t, decoded, 2, "wire shape is exactly {rid, fields}")
	assert.JSONEq(t, `"compoundv3:borrow"`, string(decoded["rid"]))

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(decoded["fields"], &fields))
	assert.Contains(t, fields, "token")
	assert.Contains(t, fields, "amount")
}

func TestKind(t *testing.T) {
	assert.Equal(t, "borrow", Kind(BorrowFields{}))
	assert.Equal(t, "swap-token", Kind(SwapFields{}))
	assert.Equal(t, "", Kind(nil))
}
