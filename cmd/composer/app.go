package main

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/cmd/composer/config"
	"github.com/Iwinswap/defi-logic-composer-go/composer"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/network"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/aave"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/compoundv3"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/market"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/paraswapv5"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/sonne"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/uniswapv2"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/utility"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
)

const chainlinkMaxAge = time.Hour

// app is everything one command run needs.
type app struct {
	logger   *slog.Logger
	tokens   *tokenlist.Static
	networks *network.Registry
	registry *adapter.Registry
	composer *composer.Composer
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*app, error) {
	tokens, err := tokenlist.Load(cfg.TokenList)
	if err != nil {
		return nil, fmt.Errorf("load token list: %w", err)
	}
	networks, err := network.New(network.Config{
		Logger: logger.With("component", "network"),
		Dial:   network.DialEthClient,
	})
	if err != nil {
		return nil, err
	}
	a := &app{
		logger:   logger,
		tokens:   tokens,
		networks: networks,
		registry: adapter.NewRegistry(),
	}
	if err := a.wire(ctx, cfg, reg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) error {
	for _, n := range cfg.Networks {
		if err := a.networks.SetNetwork(ctx, n.ChainID, network.NetworkConfig{RPCURL: n.RPCURL}); err != nil {
			return err
		}
	}

	prices, err := a.prices(cfg)
	if err != nil {
		return err
	}
	marketChains, err := a.lenders(cfg, prices)
	if err != nil {
		return err
	}
	if err := a.flashLoans(cfg.FlashLoan, marketChains); err != nil {
		return err
	}
	if err := a.swappers(cfg.Swappers); err != nil {
		return err
	}

	a.composer, err = composer.New(composer.Config{
		Registry:            a.registry,
		Logger:              a.logger.With("component", "composer"),
		Metrics:             composer.NewMetrics(reg),
		MaxConcurrentQuotes: cfg.Composer.MaxConcurrentQuotes,
		QuoteTimeout:        cfg.Composer.QuoteTimeout,
		DefaultSlippageBps:  cfg.Composer.DefaultSlippageBps,
	})
	return err
}

// lookup resolves a token symbol or address against the chain's token list.
func (a *app) lookup(chainID uint64, s string) (token.Ref, error) {
	idx := a.tokens.Tokens(chainID)
	if common.IsHexAddress(s) {
		if t, ok := idx.GetByAddress(common.HexToAddress(s)); ok {
			return t, nil
		}
	} else if t, ok := idx.GetBySymbol(s); ok {
		return t, nil
	}
	return token.Ref{}, fmt.Errorf("token %q is not listed on chain %d", s, chainID)
}

func (a *app) amount(field, s string) (*uint256.Int, error) {
	v, err := numeric.ParseAmount(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return v, nil
}

// prices serves configured fixed prices, behind Chainlink feeds when any
// feed is configured and a network is available to read it.
func (a *app) prices(cfg *config.Config) (pricefeed.Source, error) {
	static := pricefeed.NewStatic()
	feeds := make(map[token.Key]pricefeed.Feed)
	for _, p := range cfg.Prices {
		tok, err := a.lookup(p.ChainID, p.Token)
		if err != nil {
			return nil, fmt.Errorf("prices: %w", err)
		}
		if p.Price != "" {
			v, err := a.amount("prices."+p.Token, p.Price)
			if err != nil {
				return nil, err
			}
			static.Set(tok, v)
		}
		if p.Feed != "" {
			if !common.IsHexAddress(p.Feed) {
				return nil, fmt.Errorf("prices.%s: invalid feed address %q", p.Token, p.Feed)
			}
			feeds[tok.Key()] = pricefeed.Feed{Aggregator: common.HexToAddress(p.Feed), Decimals: p.FeedDecimals}
		}
	}
	if len(feeds) == 0 || len(a.networks.Chains()) == 0 {
		return static, nil
	}
	chainlink, err := pricefeed.NewChainlink(pricefeed.ChainlinkConfig{
		Clients: a.networks,
		Feeds:   feeds,
		MaxAge:  chainlinkMaxAge,
	})
	if err != nil {
		return nil, err
	}
	a.logger.Info("Reading prices from Chainlink feeds", "feeds", len(feeds))
	return pricefeed.Fallback{chainlink, static}, nil
}

// lenders registers one lending plugin per configured protocol and returns
// the chains that have a market.
func (a *app) lenders(cfg *config.Config, prices pricefeed.Source) ([]uint64, error) {
	type deployment struct {
		markets *market.Static
		chains  []uint64
		base    map[uint64]token.Ref
	}
	var order []string
	byProtocol := make(map[string]*deployment)
	var allChains []uint64

	for _, m := range cfg.Markets {
		d, ok := byProtocol[m.Protocol]
		if !ok {
			d = &deployment{markets: market.NewStatic(), base: make(map[uint64]token.Ref)}
			byProtocol[m.Protocol] = d
			order = append(order, m.Protocol)
		}
		d.chains = append(d.chains, m.ChainID)
		if !slices.Contains(allChains, m.ChainID) {
			allChains = append(allChains, m.ChainID)
		}

		reserves, err := a.reserves(m)
		if err != nil {
			return nil, err
		}
		d.markets.SetReserves(m.ChainID, reserves)
		for _, acct := range m.Accounts {
			if !common.IsHexAddress(acct.Address) {
				return nil, fmt.Errorf("markets.%s: invalid account %q", m.Protocol, acct.Address)
			}
			collateral, err := a.balances(m.ChainID, acct.Collateral)
			if err != nil {
				return nil, fmt.Errorf("markets.%s: %w", m.Protocol, err)
			}
			debt, err := a.balances(m.ChainID, acct.Debt)
			if err != nil {
				return nil, fmt.Errorf("markets.%s: %w", m.Protocol, err)
			}
			d.markets.SetAccount(m.ChainID, common.HexToAddress(acct.Address), market.Balances{Collateral: collateral, Debt: debt})
		}
		if m.BaseToken != "" {
			base, err := a.lookup(m.ChainID, m.BaseToken)
			if err != nil {
				return nil, fmt.Errorf("markets.%s: %w", m.Protocol, err)
			}
			d.base[m.ChainID] = base
		}
	}

	for _, id := range order {
		d := byProtocol[id]
		var (
			p   adapter.Protocol
			err error
		)
		switch adapter.ProtocolID(id) {
		case compoundv3.ProtocolID:
			p, err = compoundv3.New(compoundv3.Config{BaseTokens: d.base, Markets: d.markets, Prices: prices, Tokens: a.tokens})
		case aave.AaveV2, aave.AaveV3, aave.RadiantV2:
			p, err = aave.New(aave.Config{ID: adapter.ProtocolID(id), ChainIDs: d.chains, Markets: d.markets, Prices: prices, Tokens: a.tokens})
		case sonne.ProtocolID:
			p, err = sonne.New(sonne.Config{ChainIDs: d.chains, Markets: d.markets, Prices: prices, Tokens: a.tokens})
		default:
			return nil, fmt.Errorf("markets: unknown protocol %q", id)
		}
		if err != nil {
			return nil, fmt.Errorf("markets.%s: %w", id, err)
		}
		if err := a.registry.RegisterProtocol(p); err != nil {
			return nil, err
		}
		a.logger.Debug("Registered lending protocol", "protocol", id, "chains", d.chains)
	}
	return allChains, nil
}

func (a *app) reserves(m config.Market) ([]market.Reserve, error) {
	out := make([]market.Reserve, 0, len(m.Reserves))
	for _, r := range m.Reserves {
		tok, err := a.lookup(m.ChainID, r.Token)
		if err != nil {
			return nil, fmt.Errorf("markets.%s: %w", m.Protocol, err)
		}
		reserve := market.Reserve{
			Token:                   tok,
			CollateralFactorBps:     r.CollateralFactorBps,
			LiquidationThresholdBps: r.LiquidationThresholdBps,
			BorrowEnabled:           r.BorrowEnabled,
			CollateralEnabled:       r.CollateralEnabled,
		}
		for _, f := range []struct {
			name string
			raw  string
			dst  **uint256.Int
		}{
			{"available_liquidity", r.AvailableLiquidity, &reserve.AvailableLiquidity},
			{"total_supplied", r.TotalSupplied, &reserve.TotalSupplied},
			{"supply_cap", r.SupplyCap, &reserve.SupplyCap},
		} {
			if f.raw == "" {
				continue
			}
			v, err := a.amount(f.name, f.raw)
			if err != nil {
				return nil, fmt.Errorf("markets.%s.%s: %w", m.Protocol, r.Token, err)
			}
			*f.dst = v
		}
		out = append(out, reserve)
	}
	return out, nil
}

func (a *app) balances(chainID uint64, raw map[string]string) ([]logic.TokenAmount, error) {
	out := make([]logic.TokenAmount, 0, len(raw))
	for sym, s := range raw {
		tok, err := a.lookup(chainID, sym)
		if err != nil {
			return nil, err
		}
		v, err := a.amount(sym, s)
		if err != nil {
			return nil, err
		}
		out = append(out, logic.NewTokenAmount(tok, v))
	}
	return out, nil
}

// flashLoans registers the utility plugin on the configured chains, or on
// every chain with a market.
func (a *app) flashLoans(cfg config.FlashLoan, marketChains []uint64) error {
	chainIDs := cfg.ChainIDs
	if len(chainIDs) == 0 {
		chainIDs = marketChains
	}
	if len(chainIDs) == 0 {
		return nil
	}
	liquidity := make(map[token.Key]*uint256.Int)
	for sym, s := range cfg.Liquidity {
		v, err := a.amount("flash_loan.liquidity."+sym, s)
		if err != nil {
			return err
		}
		for _, chainID := range chainIDs {
			if tok, err := a.lookup(chainID, sym); err == nil {
				liquidity[tok.Key()] = v
			}
		}
	}
	flash, err := utility.New(utility.Config{ChainIDs: chainIDs, Tokens: a.tokens, FeeBps: cfg.FeeBps, Liquidity: liquidity})
	if err != nil {
		return fmt.Errorf("flash_loan: %w", err)
	}
	return a.registry.RegisterProtocol(flash)
}

// swappers registers the configured venues. Registration order breaks
// ties between equal quotes: Paraswap first, then Uniswap v2.
func (a *app) swappers(cfg config.Swappers) error {
	if p := cfg.Paraswap; p != nil {
		s, err := paraswapv5.New(paraswapv5.Config{
			Endpoint:          p.Endpoint,
			Partner:           p.Partner,
			ChainIDs:          p.ChainIDs,
			RequestsPerSecond: p.RequestsPerSecond,
			Burst:             p.Burst,
		})
		if err != nil {
			return fmt.Errorf("swappers.paraswap: %w", err)
		}
		if err := a.registry.RegisterSwapper(s); err != nil {
			return err
		}
	}

	u := cfg.UniswapV2
	if u == nil || len(u.Pools) == 0 {
		return nil
	}
	byChain := make(map[uint64][]uniswapv2.PoolView)
	var chainIDs []uint64
	for _, p := range u.Pools {
		view, err := a.pool(p, !u.OnChain)
		if err != nil {
			return fmt.Errorf("swappers.uniswap_v2: %w", err)
		}
		if _, ok := byChain[p.ChainID]; !ok {
			chainIDs = append(chainIDs, p.ChainID)
		}
		byChain[p.ChainID] = append(byChain[p.ChainID], view)
	}

	var source uniswapv2.PoolSource
	if u.OnChain {
		onChain, err := uniswapv2.NewOnChainSource(a.networks, byChain)
		if err != nil {
			return fmt.Errorf("swappers.uniswap_v2: %w", err)
		}
		source = onChain
	} else {
		static := uniswapv2.NewStaticSource()
		for chainID, pools := range byChain {
			static.SetPools(chainID, pools)
		}
		source = static
	}
	s, err := uniswapv2.NewSwapper(uniswapv2.Config{ChainIDs: chainIDs, Pools: source})
	if err != nil {
		return fmt.Errorf("swappers.uniswap_v2: %w", err)
	}
	return a.registry.RegisterSwapper(s)
}

func (a *app) pool(p config.Pool, withReserves bool) (uniswapv2.PoolView, error) {
	if !common.IsHexAddress(p.Address) {
		return uniswapv2.PoolView{}, fmt.Errorf("invalid pool address %q", p.Address)
	}
	token0, err := a.lookup(p.ChainID, p.Token0)
	if err != nil {
		return uniswapv2.PoolView{}, err
	}
	token1, err := a.lookup(p.ChainID, p.Token1)
	if err != nil {
		return uniswapv2.PoolView{}, err
	}
	view := uniswapv2.PoolView{ID: p.ID, Address: common.HexToAddress(p.Address), Token0: token0, Token1: token1, FeeBps: p.FeeBps}
	if withReserves {
		if view.Reserve0, err = a.amount("reserve0", p.Reserve0); err != nil {
			return uniswapv2.PoolView{}, err
		}
		if view.Reserve1, err = a.amount("reserve1", p.Reserve1); err != nil {
			return uniswapv2.PoolView{}, err
		}
	}
	return view, nil
}

// Close releases the network connections.
func (a *app) Close() {
	a.networks.Close()
}
