package aave

import (
	"context"
	"testing"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/chains"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/market"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	weth = token.Ref{ChainID: chains.Optimism, Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18}
	usdc = token.Ref{ChainID: chains.Optimism, Address: common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"), Symbol: "USDC", Decimals: 6}
	gho  = token.Ref{ChainID: chains.Optimism, Address: common.HexToAddress("0x0000000000000000000000000000000000000011"), Symbol: "GHO", Decimals: 18}
)

func newTestAdapter(t *testing.T, id adapter.ProtocolID) *Adapter {
	t.Helper()
	markets := market.NewStatic()
	markets.SetReserves(chains.Optimism, []market.Reserve{
		{Token: weth, CollateralFactorBps: 8000, LiquidationThresholdBps: 8250, CollateralEnabled: true, BorrowEnabled: true},
		{Token: usdc, CollateralFactorBps: 7500, LiquidationThresholdBps: 7800, CollateralEnabled: true, BorrowEnabled: true,
			AvailableLiquidity: uint256.NewInt(5_000_000000)},
		{Token: gho},
	})
	prices := pricefeed.NewStatic()
	prices.Set(weth, uint256.NewInt(2000_00000000))
	prices.Set(usdc, uint256.NewInt(1_00000000))
	prices.Set(gho, uint256.NewInt(1_00000000))

	tokens := tokenlist.NewStatic()
	tokens.SetProtocolTokens(chains.Optimism, string(id), []token.Ref{weth, usdc, gho})

	a, err := New(Config{ID: id, ChainIDs: []uint64{chains.Optimism}, Markets: markets, Prices: prices, Tokens: tokens})
	require.NoError(t, err)
	return a
}

func TestFamilyIDs(t *testing.T) {
	for _, id := range []adapter.ProtocolID{AaveV2, AaveV3, RadiantV2} {
		t.Run(string(id), func(t *testing.T) {
			a := newTestAdapter(t, id)
			assert.Equal(t, id, a.ID())

			q, err := a.QuoteSupply(context.Background(), chains.Optimism, weth, numeric.MustParse("1000000000000000000"))
			require.NoError(t, err)
			d, err := a.BuildLogic(q)
			require.NoError(t, err)
			assert.Equal(t, logic.NewRID(string(id), "supply"), d.RID)
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{ID: AaveV3})
	assert.Error(t, err)
}

func TestQuotes(t *testing.T) {
	a := newTestAdapter(t, AaveV3)
	ctx := context.Background()

	_, err := a.QuoteBorrow(ctx, chains.Optimism, usdc, uint256.NewInt(6_000_000000))
	assert.ErrorIs(t, err, adapter.ErrInsufficientLiquidity)

	_, err = a.QuoteBorrow(ctx, chains.Optimism, gho, uint256.NewInt(1))
	assert.ErrorIs(t, err, adapter.ErrUnsupportedToken)

	_, err = a.QuoteRepay(ctx, chains.Optimism, gho, uint256.NewInt(1))
	assert.ErrorIs(t, err, adapter.ErrUnsupportedToken)

	q, err := a.QuoteWithdraw(ctx, chains.Optimism, usdc, uint256.NewInt(1_000000))
	require.NoError(t, err)
	d, err := a.BuildLogic(q)
	require.NoError(t, err)
	assert.Equal(t, logic.RID("aave-v3:withdraw"), d.RID)

	q, err = a.QuoteRepay(ctx, chains.Optimism, usdc, uint256.NewInt(1_000000))
	require.NoError(t, err)
	d, err = a.BuildLogic(q)
	require.NoError(t, err)
	assert.Equal(t, logic.RID("aave-v3:repay"), d.RID)

	cf, err := a.CollateralFactorBps(ctx, chains.Optimism, weth)
	require.NoError(t, err)
	assert.Equal(t, uint64(8000), cf)

	_, err = a.CollateralFactorBps(ctx, chains.Optimism, gho)
	assert.ErrorIs(t, err, adapter.ErrUnsupportedToken)
}

func TestHealthFactorAndSafety(t *testing.T) {
	a := newTestAdapter(t, AaveV3)
	ctx := context.Background()
	pos := adapter.Position{
		Protocol:   AaveV3,
		ChainID:    chains.Optimism,
		Collateral: []logic.TokenAmount{logic.NewTokenAmount(weth, numeric.MustParse("1000000000000000000"))},
	}

	_, ok, err := a.HealthFactor(ctx, chains.Optimism, pos)
	require.NoError(t, err)
	assert.False(t, ok, "no debt, no health factor")

	pos.Debt = []logic.TokenAmount{logic.NewTokenAmount(usdc, uint256.NewInt(1000_000000))}
	hf, ok, err := a.HealthFactor(ctx, chains.Optimism, pos)
	require.NoError(t, err)
	require.True(t, ok)
	// 2000 * 0.825 / 1000
	assert.Equal(t, uint64(16500), hf.Uint64())
	assert.NoError(t, a.CheckSafety(ctx, chains.Optimism, pos))

	pos.Debt = []logic.TokenAmount{logic.NewTokenAmount(usdc, uint256.NewInt(1700_000000))}
	err = a.CheckSafety(ctx, chains.Optimism, pos)
	assert.ErrorIs(t, err, adapter.ErrSafetyBoundViolation)
}
