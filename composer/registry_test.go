package composer

import (
	"context"
	"testing"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/chains"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/aave"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/compoundv3"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/market"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/sonne"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/utility"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFullRegistry registers every lending plugin and the flash-loan
// provider, each with a token list on every chain it serves.
func newFullRegistry(t *testing.T) *adapter.Registry {
	t.Helper()
	markets := market.NewStatic()
	prices := pricefeed.NewStatic()
	tokens := tokenlist.NewStatic()

	usdcOn := func(chainID uint64) token.Ref {
		return token.Ref{ChainID: chainID, Address: common.HexToAddress("0x0b2C639c533813f4Aa9D7837CAf62653d097Ff85"), Symbol: "USDC", Decimals: 6}
	}
	wethOn := func(chainID uint64) token.Ref {
		return token.Ref{ChainID: chainID, Address: common.HexToAddress("0x4200000000000000000000000000000000000006"), Symbol: "WETH", Decimals: 18}
	}

	aaveIDs := []adapter.ProtocolID{aave.AaveV2, aave.AaveV3, aave.RadiantV2}
	for _, id := range aaveIDs {
		tokens.SetProtocolTokens(chains.Arbitrum, string(id), []token.Ref{usdc, weth})
	}
	tokens.SetProtocolTokens(chains.Arbitrum, string(compoundv3.ProtocolID), []token.Ref{usdc, weth})
	for _, chainID := range sonne.DefaultChainIDs {
		tokens.SetProtocolTokens(chainID, string(sonne.ProtocolID), []token.Ref{usdcOn(chainID), wethOn(chainID)})
	}
	tokens.SetFlashLoanTokens(chains.Arbitrum, []token.Ref{usdc})

	registry := adapter.NewRegistry()
	comet, err := compoundv3.New(compoundv3.Config{
		BaseTokens: map[uint64]token.Ref{chains.Arbitrum: usdc},
		Markets:    markets,
		Prices:     prices,
		Tokens:     tokens,
	})
	require.NoError(t, err)
	registry.MustRegisterProtocol(comet)
	for _, id := range aaveIDs {
		pool, err := aave.New(aave.Config{ID: id, ChainIDs: []uint64{chains.Arbitrum}, Markets: markets, Prices: prices, Tokens: tokens})
		require.NoError(t, err)
		registry.MustRegisterProtocol(pool)
	}
	s, err := sonne.New(sonne.Config{Markets: markets, Prices: prices, Tokens: tokens})
	require.NoError(t, err)
	registry.MustRegisterProtocol(s)
	flash, err := utility.New(utility.Config{ChainIDs: []uint64{chains.Arbitrum}, Tokens: tokens})
	require.NoError(t, err)
	registry.MustRegisterProtocol(flash)
	return registry
}

func TestRegisteredProtocolsListTokens(t *testing.T) {
	registry := newFullRegistry(t)
	ctx := context.Background()

	protocols := registry.Protocols()
	require.Len(t, protocols, 6)
	for _, p := range protocols {
		for _, chainID := range p.SupportedChainIDs().ToSlice() {
			t.Run(string(p.ID())+"/"+chains.Name(chainID), func(t *testing.T) {
				tokens, err := p.TokenList(ctx, chainID)
				require.NoError(t, err)
				assert.NotEmpty(t, tokens)
				for _, tok := range tokens {
					assert.Equal(t, chainID, tok.ChainID, "%s listed on the wrong chain", tok)
				}
			})
		}
		t.Run(string(p.ID())+"/unsupported", func(t *testing.T) {
			_, err := p.TokenList(ctx, chains.Gnosis)
			assert.ErrorIs(t, err, adapter.ErrUnsupportedChain)
		})
	}
}
