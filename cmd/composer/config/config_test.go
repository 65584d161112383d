package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
token_list: tokens.yaml
log_level: debug
networks:
  - chain_id: 42161
    rpc_url: https://arb1.arbitrum.io/rpc
composer:
  max_concurrent_quotes: 2
  quote_timeout: 3s
  default_slippage_bps: 50
flash_loan:
  chain_ids: [42161]
  fee_bps: 9
  liquidity:
    USDC: "5000000000000"
prices:
  - chain_id: 42161
    token: WETH
    price: "200000000000"
    feed: "0x639Fe6ab55C921f74e7fac1ee960C0B6293ba612"
    feed_decimals: 8
markets:
  - protocol: compoundv3
    chain_id: 42161
    base_token: USDC
    reserves:
      - token: WETH
        collateral_factor_bps: 8000
        collateral_enabled: true
    accounts:
      - address: "0x00000000000000000000000000000000000000aa"
        collateral:
          WETH: "1000000000000000000"
swappers:
  paraswap:
    partner: composer
    requests_per_second: 5
  uniswap_v2:
    pools:
      - chain_id: 42161
        id: 1
        address: "0x905dfCD5649217c42684f23958568e533C711Aa3"
        token0: WETH
        token1: USDC
        reserve0: "1000000000000000000000"
        reserve1: "2000000000000"
        fee_bps: 30
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "composer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "tokens.yaml", cfg.TokenList)
	require.Len(t, cfg.Networks, 1)
	assert.Equal(t, uint64(42161), cfg.Networks[0].ChainID)
	assert.Equal(t, 3*time.Second, cfg.Composer.QuoteTimeout)
	assert.Equal(t, uint64(50), cfg.Composer.DefaultSlippageBps)
	assert.Equal(t, "5000000000000", cfg.FlashLoan.Liquidity["USDC"])

	require.Len(t, cfg.Markets, 1)
	m := cfg.Markets[0]
	assert.Equal(t, "USDC", m.BaseToken)
	require.Len(t, m.Reserves, 1)
	assert.True(t, m.Reserves[0].CollateralEnabled)
	assert.Equal(t, "1000000000000000000", m.Accounts[0].Collateral["WETH"])

	require.NotNil(t, cfg.Swappers.Paraswap)
	assert.Equal(t, "composer", cfg.Swappers.Paraswap.Partner)
	assert.Equal(t, 5.0, cfg.Swappers.Paraswap.RequestsPerSecond)
	require.NotNil(t, cfg.Swappers.UniswapV2)
	assert.Equal(t, uint64(30), cfg.Swappers.UniswapV2.Pools[0].FeeBps)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing token list", body: "log_level: info\n"},
		{name: "network without url", body: "token_list: t.yaml\nnetworks:\n  - chain_id: 1\n"},
		{name: "market without protocol", body: "token_list: t.yaml\nmarkets:\n  - chain_id: 1\n"},
		{name: "empty price", body: "token_list: t.yaml\nprices:\n  - chain_id: 1\n    token: WETH\n"},
		{name: "slippage above 100%", body: "token_list: t.yaml\ncomposer:\n  default_slippage_bps: 10001\n"},
		{name: "malformed yaml", body: "token_list: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
