// Package market models the reserve and account snapshot lending plugins
// price against. Reading it from chain is the job of a Source
// implementation; Static serves it from memory.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var ErrUnknownMarket = errors.New("market: unknown market")

// Reserve is one asset's configuration and liquidity in a lending market.
// Nil AvailableLiquidity or SupplyCap means unbounded.
type Reserve struct {
	Token                   token.Ref
	CollateralFactorBps     uint64
	LiquidationThresholdBps uint64
	AvailableLiquidity      *uint256.Int
	TotalSupplied           *uint256.Int
	SupplyCap               *uint256.Int
	BorrowEnabled           bool
	CollateralEnabled       bool
}

// Balances is an account's raw collateral and debt.
type Balances struct {
	Collateral []logic.TokenAmount
	Debt       []logic.TokenAmount
}

// Source reads market state for a chain.
type Source interface {
	Reserves(ctx context.Context, chainID uint64) ([]Reserve, error)
	Account(ctx context.Context, chainID uint64, account common.Address) (Balances, error)
}

// Book indexes reserves by token.
type Book struct {
	byToken map[token.Key]Reserve
}

// NewBook indexes reserves.
func NewBook(reserves []Reserve) *Book {
	byToken := make(map[token.Key]Reserve, len(reserves))
	for _, r := range reserves {
		byToken[r.Token.Key()] = r
	}
	return &Book{byToken: byToken}
}

// Get returns the reserve of tok.
func (b *Book) Get(tok token.Ref) (Reserve, bool) {
	r, ok := b.byToken[tok.Key()]
	return r, ok
}

// Weight selects the bps weight a reserve contributes; false skips it.
type Weight func(Reserve) (uint64, bool)

// Full weighs every balance at 100%.
func Full(Reserve) (uint64, bool) { return numeric.BPSBase, true }

// WeightedValue sums value(balance) * weight / 10000 over balances.
// Balances whose token has no reserve fail, as the account cannot be priced.
func (b *Book) WeightedValue(ctx context.Context, prices pricefeed.Source, chainID uint64, balances []logic.TokenAmount, weight Weight) (*uint256.Int, error) {
	total := new(uint256.Int)
	for _, bal := range balances {
		if bal.Amount == nil || bal.Amount.IsZero() {
			continue
		}
		r, ok := b.Get(bal.Token)
		if !ok {
			return nil, fmt.Errorf("%w: no reserve for %s", ErrUnknownMarket, bal.Token)
		}
		w, ok := weight(r)
		if !ok {
			continue
		}
		price, err := prices.Price(ctx, chainID, bal.Token)
		if err != nil {
			return nil, err
		}
		v, err := numeric.Value(bal.Amount, price, bal.Token.Decimals)
		if err != nil {
			return nil, err
		}
		if v, err = numeric.ApplyBps(v, w); err != nil {
			return nil, err
		}
		if total, err = numeric.Add(total, v); err != nil {
			return nil, err
		}
	}
	return total, nil
}

// Static is an in-memory Source, safe for concurrent use.
type Static struct {
	mu       sync.RWMutex
	reserves map[uint64][]Reserve
	accounts map[uint64]map[common.Address]Balances
}

// NewStatic creates an empty static market.
func NewStatic() *Static {
	return &Static{
		reserves: make(map[uint64][]Reserve),
		accounts: make(map[uint64]map[common.Address]Balances),
	}
}

// SetReserves replaces a chain's reserves.
func (s *Static) SetReserves(chainID uint64, reserves []Reserve) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves[chainID] = append([]Reserve(nil), reserves...)
}

// SetAccount replaces an account's balances.
func (s *Static) SetAccount(chainID uint64, account common.Address, b Balances) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accounts[chainID] == nil {
		s.accounts[chainID] = make(map[common.Address]Balances)
	}
	s.accounts[chainID][account] = cloneBalances(b)
}

// SetPosition stores a composed position as the account's balances, so a
// follow-up composition sees the state the previous one leaves behind.
func (s *Static) SetPosition(pos adapter.Position) {
	s.SetAccount(pos.ChainID, pos.Account, Balances{Collateral: pos.Collateral, Debt: pos.Debt})
}

// Reserves implements Source.
func (s *Static) Reserves(_ context.Context, chainID uint64) ([]Reserve, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reserves[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain %d", ErrUnknownMarket, chainID)
	}
	return append([]Reserve(nil), r...), nil
}

// Account implements Source. Unknown accounts have empty balances.
func (s *Static) Account(_ context.Context, chainID uint64, account common.Address) (Balances, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBalances(s.accounts[chainID][account]), nil
}

func cloneBalances(b Balances) Balances {
	out := Balances{}
	for _, c := range b.Collateral {
		out.Collateral = append(out.Collateral, logic.NewTokenAmount(c.Token, c.Amount))
	}
	for _, d := range b.Debt {
		out.Debt = append(out.Debt, logic.NewTokenAmount(d.Token, d.Amount))
	}
	return out
}
