// Package paraswapv5 quotes swaps through the ParaSwap v5 aggregator API.
package paraswapv5

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/chains"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"
	"golang.org/x/time/rate"
)

// SwapperID is the registry key of this swapper.
const SwapperID adapter.SwapperID = "paraswap-v5"

const (
	DefaultEndpoint = "https://apiv5.paraswap.io"
	defaultTimeout  = 10 * time.Second
)

// DefaultChainIDs are the networks the v5 API serves.
var DefaultChainIDs = []uint64{chains.Mainnet, chains.Optimism, chains.Polygon, chains.Base, chains.Arbitrum, chains.Avalanche}

// HTTPDoer abstracts http.Client for ease of testing.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the configuration for the ParaSwap swapper.
type Config struct {
	// Endpoint defaults to DefaultEndpoint.
	Endpoint string
	// Client defaults to an http.Client with a 10s timeout.
	Client HTTPDoer
	// ChainIDs defaults to DefaultChainIDs.
	ChainIDs []uint64
	// Partner is sent as the partner query parameter when set.
	Partner string
	// RequestsPerSecond paces calls to the API when positive.
	RequestsPerSecond float64
	Burst             int
}

func (c *Config) validate() error {
	if c.Endpoint != "" {
		u, err := url.Parse(c.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid Endpoint %q", c.Endpoint)
		}
	}
	if c.RequestsPerSecond < 0 || c.Burst < 0 {
		return fmt.Errorf("config: rate limit must not be negative")
	}
	return nil
}

// Swapper implements adapter.Swapper over the ParaSwap price API.
type Swapper struct {
	endpoint string
	client   HTTPDoer
	chainIDs mapset.Set[uint64]
	partner  string
	limiter  *rate.Limiter
}

var _ adapter.Swapper = (*Swapper)(nil)

// New creates the swapper.
func New(cfg Config) (*Swapper, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	chainIDs := cfg.ChainIDs
	if len(chainIDs) == 0 {
		chainIDs = DefaultChainIDs
	}
	s := &Swapper{
		endpoint: endpoint,
		client:   client,
		chainIDs: mapset.NewSet(chainIDs...),
		partner:  strings.TrimSpace(cfg.Partner),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst == 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return s, nil
}

func (s *Swapper) ID() adapter.SwapperID { return SwapperID }

func (s *Swapper) SupportedChainIDs() mapset.Set[uint64] { return s.chainIDs.Clone() }

type pricesResponse struct {
	PriceRoute json.RawMessage `json:"priceRoute"`
	Error      string          `json:"error"`
}

type priceRoute struct {
	DestAmount string `json:"destAmount"`
}

// QuoteSwap asks the aggregator for the best SELL route. 4xx answers mean
// the aggregator found no route; everything else that prevents a usable
// answer is a stale quote.
func (s *Swapper) QuoteSwap(ctx context.Context, chainID uint64, tokenIn, tokenOut token.Ref, amountIn *uint256.Int, slippageBps uint64) (adapter.Quote, error) {
	const op = "paraswap-v5.quote_swap"
	fail := func(kind error) *adapter.Error {
		return adapter.NewError(kind, op).WithChain(chainID).WithAdapter(string(SwapperID)).WithToken(tokenIn).WithAmount(amountIn)
	}
	if err := adapter.RequireChain(op, string(SwapperID), s.chainIDs, chainID); err != nil {
		return adapter.Quote{}, err
	}
	if err := adapter.ValidateAmount(op, string(SwapperID), chainID, tokenIn, amountIn); err != nil {
		return adapter.Quote{}, err
	}
	if slippageBps > numeric.BPSBase {
		return adapter.Quote{}, fail(adapter.ErrInvalidAmount).WithDetail("slippage %d bps", slippageBps)
	}
	if tokenIn.Equal(tokenOut) {
		return adapter.Quote{}, fail(adapter.ErrNoRoute).WithDetail("input and output token are the same")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return adapter.Quote{}, fail(adapter.ErrStaleQuote).WithDetail("rate limited").Wrap(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"/prices", nil)
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).Wrap(err)
	}
	values := url.Values{}
	values.Set("srcToken", tokenIn.Address.Hex())
	values.Set("srcDecimals", strconv.Itoa(int(tokenIn.Decimals)))
	values.Set("destToken", tokenOut.Address.Hex())
	values.Set("destDecimals", strconv.Itoa(int(tokenOut.Decimals)))
	values.Set("amount", amountIn.Dec())
	values.Set("side", "SELL")
	values.Set("network", strconv.FormatUint(chainID, 10))
	if s.partner != "" {
		values.Set("partner", s.partner)
	}
	req.URL.RawQuery = values.Encode()
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).Wrap(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).Wrap(err)
	}
	var payload pricesResponse
	decodeErr := json.Unmarshal(body, &payload)

	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		detail := payload.Error
		if decodeErr != nil || detail == "" {
			detail = strings.TrimSpace(string(truncate(body, 256)))
		}
		return adapter.Quote{}, fail(adapter.ErrNoRoute).WithDetail("status %d: %s", resp.StatusCode, detail)
	case resp.StatusCode != http.StatusOK:
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).WithDetail("status %d: %s", resp.StatusCode, strings.TrimSpace(string(truncate(body, 256))))
	case decodeErr != nil:
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).WithDetail("decode prices").Wrap(decodeErr)
	case len(payload.PriceRoute) == 0:
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).WithDetail("response has no priceRoute")
	}

	var pr priceRoute
	if err := json.Unmarshal(payload.PriceRoute, &pr); err != nil {
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).WithDetail("decode priceRoute").Wrap(err)
	}
	amountOut, err := numeric.ParseAmount(pr.DestAmount)
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrStaleQuote).WithDetail("destAmount %q", pr.DestAmount).Wrap(err)
	}
	if amountOut.IsZero() {
		return adapter.Quote{}, fail(adapter.ErrNoRoute).WithDetail("zero destAmount")
	}
	minOut, err := numeric.ApplySlippage(amountOut, slippageBps)
	if err != nil {
		return adapter.Quote{}, fail(adapter.ErrInvalidAmount).Wrap(err)
	}

	return adapter.Quote{
		ChainID:      chainID,
		Source:       string(SwapperID),
		Action:       adapter.ActionSwap,
		TokenIn:      tokenIn,
		AmountIn:     amountIn.Clone(),
		TokenOut:     tokenOut,
		AmountOut:    amountOut,
		MinAmountOut: minOut,
		SlippageBps:  slippageBps,
		Route:        append(json.RawMessage(nil), payload.PriceRoute...),
	}, nil
}

func (s *Swapper) BuildLogic(q adapter.Quote) (logic.Descriptor, error) {
	return adapter.SwapLogic(SwapperID, q)
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
