package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTokens = `
protocols:
  42161:
    compoundv3:
      - address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
        symbol: USDC
        decimals: 6
      - address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1"
        symbol: WETH
        decimals: 18
flash_loans:
  42161:
    - address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831"
      symbol: USDC
      decimals: 6
`

const testConfig = `
token_list: %TOKENS%
log_level: error
composer:
  default_slippage_bps: 50
flash_loan:
  fee_bps: 0
prices:
  - chain_id: 42161
    token: WETH
    price: "200000000000"
  - chain_id: 42161
    token: USDC
    price: "100000000"
markets:
  - protocol: compoundv3
    chain_id: 42161
    base_token: USDC
    reserves:
      - token: USDC
        borrow_enabled: true
        available_liquidity: "10000000000000"
      - token: WETH
        collateral_factor_bps: 8000
        liquidation_threshold_bps: 8500
        collateral_enabled: true
    accounts:
      - address: "0x00000000000000000000000000000000000000aa"
        collateral:
          WETH: "1000000000000000000"
swappers:
  uniswap_v2:
    pools:
      - chain_id: 42161
        id: 1
        address: "0x905dfCD5649217c42684f23958568e533C711Aa3"
        token0: WETH
        token1: USDC
        reserve0: "10000000000000000000000"
        reserve1: "20000000000000"
        fee_bps: 30
`

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	tokens := filepath.Join(dir, "tokens.yaml")
	require.NoError(t, os.WriteFile(tokens, []byte(testTokens), 0o600))
	cfg := bytes.ReplaceAll([]byte(testConfig), []byte("%TOKENS%"), []byte(tokens))
	path := filepath.Join(dir, "composer.yaml")
	require.NoError(t, os.WriteFile(path, cfg, 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestComposeBorrow(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := run(t, "--config", cfg, "compose",
		"--chain", "42161", "--protocol", "compoundv3", "--action", "borrow",
		"--account", "0x00000000000000000000000000000000000000aa",
		"--token", "USDC", "--amount", "1000000000", "-o", "table")
	require.NoError(t, err)
	assert.Contains(t, out, "compoundv3:borrow")
	assert.Contains(t, out, "RID")
}

func TestComposeWritesMetrics(t *testing.T) {
	cfg := writeTestConfig(t)
	args := []string{"--config", cfg, "compose",
		"--chain", "42161", "--protocol", "compoundv3", "--action", "borrow",
		"--account", "0x00000000000000000000000000000000000000aa",
		"--token", "USDC", "--amount", "1000000000"}

	out, err := run(t, append(args, "--metrics")...)
	require.NoError(t, err)
	assert.Contains(t, out, `composer_compositions_total{action="borrow",result="ok"} 1`)

	out, err = run(t, args...)
	require.NoError(t, err)
	assert.NotContains(t, out, "composer_compositions_total")

	// A failed composition is still counted.
	out, err = run(t, "--config", cfg, "--metrics", "compose",
		"--chain", "42161", "--protocol", "compoundv3", "--action", "borrow",
		"--account", "0x00000000000000000000000000000000000000aa",
		"--token", "USDC", "--amount", "99000000000000")
	require.Error(t, err)
	assert.Contains(t, out, `composer_compositions_total{action="borrow",result="error"} 1`)
}

func TestComposeAmountInUnits(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := run(t, "--config", cfg, "compose",
		"--chain", "42161", "--protocol", "compoundv3", "--action", "borrow",
		"--account", "0x00000000000000000000000000000000000000aa",
		"--token", "USDC", "--amount", "1000.5", "--units")
	require.NoError(t, err)
	assert.Contains(t, out, "compoundv3:borrow")

	_, err = run(t, "--config", cfg, "compose",
		"--chain", "42161", "--protocol", "compoundv3", "--action", "borrow",
		"--token", "USDC", "--amount", "0.0000001", "--units")
	assert.ErrorContains(t, err, "more than 6 decimals")
}

func TestComposeOpenLeveragedPosition(t *testing.T) {
	cfg := writeTestConfig(t)
	out, err := run(t, "--config", cfg, "compose",
		"--chain", "42161", "--protocol", "compoundv3", "--action", "open-leveraged-position",
		"--account", "0x00000000000000000000000000000000000000aa",
		"--collateral", "WETH", "--debt", "usdc", "--leverage-bps", "20000")
	require.NoError(t, err)
	assert.Contains(t, out, "utility:flash-loan")
	assert.Contains(t, out, "uniswap-v2:swap-token")
	assert.Contains(t, out, "utility:flash-loan-repay")
	assert.Contains(t, out, `"swapper": "uniswap-v2"`)
}

func TestComposeErrors(t *testing.T) {
	cfg := writeTestConfig(t)

	_, err := run(t, "--config", cfg, "compose", "--chain", "42161", "--protocol", "compoundv3", "--action", "borrow", "--token", "DAI", "--amount", "1")
	assert.ErrorContains(t, err, "not listed")

	_, err = run(t, "--config", cfg, "compose", "--chain", "42161", "--protocol", "compoundv3", "--action", "borrow", "--token", "USDC", "--amount", "-1")
	assert.Error(t, err)

	_, err = run(t, "--config", cfg, "compose", "--chain", "42161", "--protocol", "compoundv3")
	assert.Error(t, err, "action is required")

	_, err = run(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "compose", "--chain", "1", "--protocol", "x", "--action", "supply")
	assert.ErrorContains(t, err, "load config")
}

func TestTokens(t *testing.T) {
	cfg := writeTestConfig(t)

	out, err := run(t, "--config", cfg, "tokens", "--chain", "42161", "--protocol", "utility")
	require.NoError(t, err)
	assert.Contains(t, out, "USDC")
	assert.NotContains(t, out, "WETH")

	out, err = run(t, "--config", cfg, "tokens", "--chain", "42161", "--protocol", "compoundv3")
	require.NoError(t, err)
	assert.Contains(t, out, "WETH")
}
