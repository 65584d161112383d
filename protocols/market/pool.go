package market

import (
	"context"
	"errors"
	"fmt"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/pricefeed"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/Iwinswap/defi-logic-composer-go/tokenlist"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PoolConfig holds what every lending plugin built on Pool needs.
type PoolConfig struct {
	ID       adapter.ProtocolID
	ChainIDs []uint64
	Markets  Source
	Prices   pricefeed.Source
	Tokens   tokenlist.Provider
}

func (c *PoolConfig) validate() error {
	if c.ID == "" {
		return errors.New("config: ID is required")
	}
	if len(c.ChainIDs) == 0 {
		return errors.New("config: ChainIDs must not be empty")
	}
	if c.Markets == nil {
		return errors.New("config: Markets is required")
	}
	if c.Prices == nil {
		return errors.New("config: Prices is required")
	}
	if c.Tokens == nil {
		return errors.New("config: Tokens is required")
	}
	return nil
}

// Pool implements the protocol-independent half of a lending plugin:
// identity, token lists, reads, validation, and descriptor building.
// Protocol packages embed it and add their own quoting rules and bounds.
type Pool struct {
	id       adapter.ProtocolID
	chainIDs mapset.Set[uint64]
	markets  Source
	prices   pricefeed.Source
	tokens   tokenlist.Provider
}

// NewPool validates cfg and builds a Pool.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Pool{
		id:       cfg.ID,
		chainIDs: mapset.NewSet(cfg.ChainIDs...),
		markets:  cfg.Markets,
		prices:   cfg.Prices,
		tokens:   cfg.Tokens,
	}, nil
}

func (p *Pool) ID() adapter.ProtocolID { return p.id }

// SupportedChainIDs returns a copy of the supported chain set.
func (p *Pool) SupportedChainIDs() mapset.Set[uint64] { return p.chainIDs.Clone() }

// TokenList implements adapter.Protocol.
func (p *Pool) TokenList(ctx context.Context, chainID uint64) ([]token.Ref, error) {
	if err := adapter.RequireChain(p.op("token_list"), string(p.id), p.chainIDs, chainID); err != nil {
		return nil, err
	}
	tokens, err := p.tokens.ProtocolTokenList(ctx, chainID, string(p.id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.op("token_list"), err)
	}
	return tokens, nil
}

// Price implements adapter.Lender.
func (p *Pool) Price(ctx context.Context, chainID uint64, tok token.Ref) (*uint256.Int, error) {
	if err := adapter.RequireChain(p.op("price"), string(p.id), p.chainIDs, chainID); err != nil {
		return nil, err
	}
	return p.prices.Price(ctx, chainID, tok)
}

// Prices exposes the configured price source.
func (p *Pool) Prices() pricefeed.Source { return p.prices }

// Position implements adapter.Lender.
func (p *Pool) Position(ctx context.Context, chainID uint64, account common.Address) (adapter.Position, error) {
	if err := adapter.RequireChain(p.op("position"), string(p.id), p.chainIDs, chainID); err != nil {
		return adapter.Position{}, err
	}
	b, err := p.markets.Account(ctx, chainID, account)
	if err != nil {
		return adapter.Position{}, fmt.Errorf("%s: %w", p.op("position"), err)
	}
	return adapter.Position{
		Protocol:   p.id,
		ChainID:    chainID,
		Account:    account,
		Collateral: b.Collateral,
		Debt:       b.Debt,
	}, nil
}

// CollateralFactorBps implements adapter.Lender.
func (p *Pool) CollateralFactorBps(ctx context.Context, chainID uint64, tok token.Ref) (uint64, error) {
	book, err := p.Book(ctx, chainID)
	if err != nil {
		return 0, err
	}
	r, ok := book.Get(tok)
	if !ok || !r.CollateralEnabled {
		return 0, adapter.NewError(adapter.ErrUnsupportedToken, p.op("collateral_factor")).
			WithChain(chainID).WithAdapter(string(p.id)).WithToken(tok).WithDetail("not usable as collateral")
	}
	return r.CollateralFactorBps, nil
}

// Book reads the chain's reserves.
func (p *Pool) Book(ctx context.Context, chainID uint64) (*Book, error) {
	if err := adapter.RequireChain(p.op("reserves"), string(p.id), p.chainIDs, chainID); err != nil {
		return nil, err
	}
	reserves, err := p.markets.Reserves(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.op("reserves"), err)
	}
	return NewBook(reserves), nil
}

// Prepare runs the checks shared by every quote: supported chain, positive
// amount, token-list membership, and a known reserve.
func (p *Pool) Prepare(ctx context.Context, op string, chainID uint64, tok token.Ref, amount *uint256.Int) (Reserve, error) {
	op = p.op(op)
	if err := adapter.RequireChain(op, string(p.id), p.chainIDs, chainID); err != nil {
		return Reserve{}, err
	}
	if err := adapter.ValidateAmount(op, string(p.id), chainID, tok, amount); err != nil {
		return Reserve{}, err
	}
	tokens, err := p.TokenList(ctx, chainID)
	if err != nil {
		return Reserve{}, err
	}
	if !token.NewIndex(tokens).Contains(tok) {
		return Reserve{}, p.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("not in token list")
	}
	book, err := p.Book(ctx, chainID)
	if err != nil {
		return Reserve{}, err
	}
	r, ok := book.Get(tok)
	if !ok {
		return Reserve{}, p.Fail(adapter.ErrUnsupportedToken, op, chainID, tok, amount).WithDetail("no reserve")
	}
	return r, nil
}

// Fail builds an adapter error carrying the plugin's context.
func (p *Pool) Fail(kind error, op string, chainID uint64, tok token.Ref, amount *uint256.Int) *adapter.Error {
	return adapter.NewError(kind, op).WithChain(chainID).WithAdapter(string(p.id)).WithToken(tok).WithAmount(amount)
}

// Quote builds a frozen lending quote.
func (p *Pool) Quote(chainID uint64, action adapter.Action, tok token.Ref, amount *uint256.Int) adapter.Quote {
	q := adapter.Quote{ChainID: chainID, Source: string(p.id), Action: action}
	switch action {
	case adapter.ActionSupply, adapter.ActionRepay:
		q.TokenIn, q.AmountIn = tok, amount.Clone()
	default:
		q.TokenOut, q.AmountOut, q.MinAmountOut = tok, amount.Clone(), amount.Clone()
	}
	return q
}

// BuildLogic implements adapter.Protocol for the four lending actions.
func (p *Pool) BuildLogic(q adapter.Quote) (logic.Descriptor, error) {
	if q.Source != string(p.id) {
		return logic.Descriptor{}, adapter.NewError(adapter.ErrUnknownAdapter, p.op("build_logic")).
			WithAdapter(string(p.id)).WithDetail("quote produced by %q", q.Source)
	}
	var fields logic.Fields
	switch q.Action {
	case adapter.ActionSupply:
		fields = logic.SupplyFields{Token: q.TokenIn, Amount: q.AmountIn.Clone()}
	case adapter.ActionRepay:
		fields = logic.RepayFields{Token: q.TokenIn, Amount: q.AmountIn.Clone()}
	case adapter.ActionWithdraw:
		fields = logic.WithdrawFields{Token: q.TokenOut, Amount: q.AmountOut.Clone()}
	case adapter.ActionBorrow:
		fields = logic.BorrowFields{Token: q.TokenOut, Amount: q.AmountOut.Clone()}
	default:
		return logic.Descriptor{}, adapter.NewError(adapter.ErrUnsupportedAction, p.op("build_logic")).
			WithChain(q.ChainID).WithAdapter(string(p.id)).WithDetail("action %q", q.Action)
	}
	return logic.Descriptor{RID: logic.NewRID(string(p.id), logic.Kind(fields)), Fields: fields}, nil
}

func (p *Pool) op(name string) string {
	return string(p.id) + "." + name
}
