package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the composer CLI configuration. Amounts and prices are decimal
// strings in base units; prices use 8 decimals.
type Config struct {
	TokenList string    `yaml:"token_list"`
	LogLevel  string    `yaml:"log_level"`
	Networks  []Network `yaml:"networks"`
	Composer  Composer  `yaml:"composer"`
	FlashLoan FlashLoan `yaml:"flash_loan"`
	Prices    []Price   `yaml:"prices"`
	Markets   []Market  `yaml:"markets"`
	Swappers  Swappers  `yaml:"swappers"`
}

type Network struct {
	ChainID uint64 `yaml:"chain_id"`
	RPCURL  string `yaml:"rpc_url"`
}

type Composer struct {
	MaxConcurrentQuotes int           `yaml:"max_concurrent_quotes"`
	QuoteTimeout        time.Duration `yaml:"quote_timeout"`
	DefaultSlippageBps  uint64        `yaml:"default_slippage_bps"`
}

type FlashLoan struct {
	ChainIDs []uint64 `yaml:"chain_ids"`
	FeeBps   uint64   `yaml:"fee_bps"`
	// Liquidity caps the loanable amount per token symbol.
	Liquidity map[string]string `yaml:"liquidity"`
}

// Price is a fixed price, a Chainlink feed, or both; the feed is read
// first when a network for the chain is configured.
type Price struct {
	ChainID      uint64 `yaml:"chain_id"`
	Token        string `yaml:"token"`
	Price        string `yaml:"price"`
	Feed         string `yaml:"feed"`
	FeedDecimals uint8  `yaml:"feed_decimals"`
}

// Market is one lending protocol deployment with its reserve snapshot.
type Market struct {
	Protocol string `yaml:"protocol"`
	ChainID  uint64 `yaml:"chain_id"`
	// BaseToken is the borrowable asset of a Compound v3 market.
	BaseToken string    `yaml:"base_token"`
	Reserves  []Reserve `yaml:"reserves"`
	Accounts  []Account `yaml:"accounts"`
}

type Reserve struct {
	Token                   string `yaml:"token"`
	CollateralFactorBps     uint64 `yaml:"collateral_factor_bps"`
	LiquidationThresholdBps uint64 `yaml:"liquidation_threshold_bps"`
	AvailableLiquidity      string `yaml:"available_liquidity"`
	TotalSupplied           string `yaml:"total_supplied"`
	SupplyCap               string `yaml:"supply_cap"`
	BorrowEnabled           bool   `yaml:"borrow_enabled"`
	CollateralEnabled       bool   `yaml:"collateral_enabled"`
}

// Account balances are keyed by token symbol.
type Account struct {
	Address    string            `yaml:"address"`
	Collateral map[string]string `yaml:"collateral"`
	Debt       map[string]string `yaml:"debt"`
}

type Swappers struct {
	Paraswap  *Paraswap  `yaml:"paraswap"`
	UniswapV2 *UniswapV2 `yaml:"uniswap_v2"`
}

type Paraswap struct {
	Endpoint          string   `yaml:"endpoint"`
	Partner           string   `yaml:"partner"`
	ChainIDs          []uint64 `yaml:"chain_ids"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
	Burst             int      `yaml:"burst"`
}

type UniswapV2 struct {
	// OnChain reads reserves through the configured networks instead of
	// using the reserves below.
	OnChain bool   `yaml:"on_chain"`
	Pools   []Pool `yaml:"pools"`
}

type Pool struct {
	ChainID  uint64 `yaml:"chain_id"`
	ID       uint64 `yaml:"id"`
	Address  string `yaml:"address"`
	Token0   string `yaml:"token0"`
	Token1   string `yaml:"token1"`
	Reserve0 string `yaml:"reserve0"`
	Reserve1 string `yaml:"reserve1"`
	FeeBps   uint64 `yaml:"fee_bps"`
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into a Config struct.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.TokenList == "" {
		return errors.New("config: token_list is required")
	}
	for i, n := range c.Networks {
		if n.ChainID == 0 || n.RPCURL == "" {
			return fmt.Errorf("config: networks[%d] needs chain_id and rpc_url", i)
		}
	}
	for i, m := range c.Markets {
		if m.Protocol == "" || m.ChainID == 0 {
			return fmt.Errorf("config: markets[%d] needs protocol and chain_id", i)
		}
	}
	for i, p := range c.Prices {
		if p.Price == "" && p.Feed == "" {
			return fmt.Errorf("config: prices[%d] needs price or feed", i)
		}
	}
	if c.Composer.DefaultSlippageBps > 10000 {
		return errors.New("config: composer.default_slippage_bps must not exceed 10000")
	}
	return nil
}
