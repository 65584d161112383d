// Package pricefeed supplies token prices to lending plugins, scaled to
// numeric.PriceDecimals.
package pricefeed

import (
	"context"
	"errors"
	"sync"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/holiman/uint256"
)

// Source returns the price of one whole token in 1e8 units.
type Source interface {
	Price(ctx context.Context, chainID uint64, tok token.Ref) (*uint256.Int, error)
}

// Static serves fixed prices.
type Static struct {
	mu     sync.RWMutex
	prices map[token.Key]*uint256.Int
}

// NewStatic creates an empty static price source.
func NewStatic() *Static {
	return &Static{prices: make(map[token.Key]*uint256.Int)}
}

// Set stores the price of tok.
func (s *Static) Set(tok token.Ref, price *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[tok.Key()] = price.Clone()
}

// Price implements Source. Unknown tokens fail with adapter.ErrStaleQuote.
func (s *Static) Price(_ context.Context, chainID uint64, tok token.Ref) (*uint256.Int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[tok.Key()]
	if !ok || p.IsZero() {
		return nil, adapter.NewError(adapter.ErrStaleQuote, "pricefeed.static").WithChain(chainID).WithToken(tok).WithDetail("no price")
	}
	return p.Clone(), nil
}

// Fallback asks each source in order and returns the first price found.
type Fallback []Source

// Price implements Source. When every source fails the errors are joined.
func (f Fallback) Price(ctx context.Context, chainID uint64, tok token.Ref) (*uint256.Int, error) {
	if len(f) == 0 {
		return nil, adapter.NewError(adapter.ErrStaleQuote, "pricefeed.fallback").WithChain(chainID).WithToken(tok).WithDetail("no sources")
	}
	var errs []error
	for _, s := range f {
		p, err := s.Price(ctx, chainID, tok)
		if err == nil {
			return p, nil
		}
		errs = append(errs, err)
	}
	return nil, errors.Join(errs...)
}
