package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/network"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const aggregatorV3ABI = `[
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

// Clients resolves the RPC connection of a chain; *network.Registry satisfies it.
type Clients interface {
	Client(chainID uint64) (network.Client, error)
}

// Feed is one AggregatorV3 contract.
type Feed struct {
	Aggregator common.Address
	Decimals   uint8
}

// ChainlinkConfig holds the configuration for a Chainlink price source.
type ChainlinkConfig struct {
	Clients Clients
	Feeds   map[token.Key]Feed
	MaxAge  time.Duration
	Now     func() time.Time
}

func (c *ChainlinkConfig) validate() error {
	if c.Clients == nil {
		return errors.New("config: Clients is required")
	}
	if len(c.Feeds) == 0 {
		return errors.New("config: Feeds must not be empty")
	}
	if c.MaxAge <= 0 {
		return errors.New("config: MaxAge must be positive")
	}
	return nil
}

// Chainlink reads latestRoundData from AggregatorV3 feeds.
type Chainlink struct {
	clients Clients
	feeds   map[token.Key]Feed
	maxAge  time.Duration
	now     func() time.Time
	abi     abi.ABI
}

// NewChainlink creates a Chainlink source.
func NewChainlink(cfg ChainlinkConfig) (*Chainlink, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	parsed, err := abi.JSON(strings.NewReader(aggregatorV3ABI))
	if err != nil {
		return nil, fmt.Errorf("pricefeed: parse aggregator abi: %w", err)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	feeds := make(map[token.Key]Feed, len(cfg.Feeds))
	for k, v := range cfg.Feeds {
		feeds[k] = v
	}
	return &Chainlink{clients: cfg.Clients, feeds: feeds, maxAge: cfg.MaxAge, now: now, abi: parsed}, nil
}

// Price implements Source. Unreadable, non-positive, or outdated answers
// fail with adapter.ErrStaleQuote.
func (c *Chainlink) Price(ctx context.Context, chainID uint64, tok token.Ref) (*uint256.Int, error) {
	stale := func(format string, args ...any) error {
		return adapter.NewError(adapter.ErrStaleQuote, "pricefeed.chainlink").WithChain(chainID).WithToken(tok).WithDetail(format, args...)
	}

	feed, ok := c.feeds[tok.Key()]
	if !ok {
		return nil, stale("no feed configured")
	}
	client, err := c.clients.Client(chainID)
	if err != nil {
		return nil, stale("%v", err)
	}

	data, err := c.abi.Pack("latestRoundData")
	if err != nil {
		return nil, err
	}
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &feed.Aggregator, Data: data}, nil)
	if err != nil {
		return nil, stale("call aggregator: %v", err)
	}
	values, err := c.abi.Unpack("latestRoundData", out)
	if err != nil || len(values) != 5 {
		return nil, stale("decode latestRoundData: %v", err)
	}
	answer, ok1 := values[1].(*big.Int)
	updatedAt, ok2 := values[3].(*big.Int)
	if !ok1 || !ok2 {
		return nil, stale("unexpected latestRoundData types")
	}
	if answer.Sign() <= 0 {
		return nil, stale("non-positive answer %s", answer)
	}
	age := c.now().Sub(time.Unix(updatedAt.Int64(), 0))
	if age > c.maxAge {
		return nil, stale("answer is %s old", age.Round(time.Second))
	}

	price, overflow := uint256.FromBig(answer)
	if overflow {
		return nil, stale("answer overflows")
	}
	return rescale(price, feed.Decimals, numeric.PriceDecimals)
}

func rescale(v *uint256.Int, from, to uint8) (*uint256.Int, error) {
	switch {
	case from == to:
		return v, nil
	case from > to:
		return numeric.MulDiv(v, uint256.NewInt(1), numeric.Pow10(from-to))
	default:
		return numeric.MulDiv(v, numeric.Pow10(to-from), uint256.NewInt(1))
	}
}
