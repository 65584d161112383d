// Package composer turns a lending intent into an ordered, linked sequence
// of logic descriptors by quoting the registered protocol and swapper
// plugins.
package composer

import (
	"context"
	"errors"
	"time"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/pkg/numeric"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	defaultMaxConcurrentQuotes = 4
	defaultQuoteTimeout        = 10 * time.Second
)

// Action is a high-level intent.
type Action string

const (
	ActionSupply                 Action = "supply"
	ActionWithdraw               Action = "withdraw"
	ActionBorrow                 Action = "borrow"
	ActionRepay                  Action = "repay"
	ActionOpenLeveragedPosition  Action = "open-leveraged-position"
	ActionCloseLeveragedPosition Action = "close-leveraged-position"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the Composer.
type Config struct {
	Registry *adapter.Registry
	Logger   Logger
	// Metrics is optional.
	Metrics *Metrics
	// MaxConcurrentQuotes bounds the swapper fan-out. Zero means 4.
	MaxConcurrentQuotes int
	// QuoteTimeout bounds each swapper quote. Zero means 10s.
	QuoteTimeout time.Duration
	// DefaultSlippageBps applies when a request carries no SlippageBps.
	DefaultSlippageBps uint64
}

func (c *Config) validate() error {
	if c.Registry == nil {
		return errors.New("config: Registry is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	if c.MaxConcurrentQuotes < 0 {
		return errors.New("config: MaxConcurrentQuotes must not be negative")
	}
	if c.QuoteTimeout < 0 {
		return errors.New("config: QuoteTimeout must not be negative")
	}
	if c.DefaultSlippageBps > numeric.BPSBase {
		return errors.New("config: DefaultSlippageBps must not exceed 10000")
	}
	return nil
}

// Request is one composition intent.
//
// Simple actions use Token and Amount. Opening a leveraged position uses
// CollateralToken, DebtToken and TargetLeverageBps, with Amount as an
// optional initial deposit of the collateral token. Closing uses
// CollateralToken and DebtToken, with Amount as the debt to repay (nil
// repays all of it).
type Request struct {
	ChainID           uint64
	ProtocolID        adapter.ProtocolID
	Action            Action
	Account           common.Address
	Token             token.Ref
	Amount            *uint256.Int
	CollateralToken   token.Ref
	DebtToken         token.Ref
	TargetLeverageBps uint64
	// SlippageBps overrides Config.DefaultSlippageBps when set.
	SlippageBps *uint64
}

// Bps is a convenience for Request.SlippageBps.
func Bps(v uint64) *uint64 { return &v }

// Result is a composed sequence with the position it starts from and the
// position it leaves behind.
type Result struct {
	Logics  logic.Sequence    `json:"logics"`
	Before  adapter.Position  `json:"before"`
	After   adapter.Position  `json:"after"`
	Swapper adapter.SwapperID `json:"swapper,omitempty"`
}

// Composer is safe for concurrent use; it shares only the registry
// between compositions.
type Composer struct {
	registry      *adapter.Registry
	logger        Logger
	metrics       *Metrics
	maxConcurrent int
	quoteTimeout  time.Duration
	slippageBps   uint64
}

// New creates a Composer.
func New(cfg Config) (*Composer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	maxConcurrent := cfg.MaxConcurrentQuotes
	if maxConcurrent == 0 {
		maxConcurrent = defaultMaxConcurrentQuotes
	}
	quoteTimeout := cfg.QuoteTimeout
	if quoteTimeout == 0 {
		quoteTimeout = defaultQuoteTimeout
	}
	return &Composer{
		registry:      cfg.Registry,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		maxConcurrent: maxConcurrent,
		quoteTimeout:  quoteTimeout,
		slippageBps:   cfg.DefaultSlippageBps,
	}, nil
}

// Compose builds the logic sequence for req. Plugin errors are returned
// unchanged; a sequence that fails its own linkage check is reported as
// adapter.ErrBrokenChain.
func (c *Composer) Compose(ctx context.Context, req Request) (res *Result, err error) {
	started := time.Now()
	defer func() { c.metrics.observeCompose(req.Action, started, err) }()

	const op = "composer.compose"
	lender, err := c.lender(op, req)
	if err != nil {
		return nil, err
	}
	slippage := c.slippageBps
	if req.SlippageBps != nil {
		slippage = *req.SlippageBps
	}
	if slippage > numeric.BPSBase {
		return nil, adapter.NewError(adapter.ErrInvalidAmount, op).WithChain(req.ChainID).WithDetail("slippage %d bps", slippage)
	}

	before, err := lender.Position(ctx, req.ChainID, req.Account)
	if err != nil {
		return nil, err
	}

	b := &build{
		c:        c,
		lender:   lender,
		req:      req,
		before:   before,
		slippage: slippage,
	}
	switch req.Action {
	case ActionSupply, ActionWithdraw, ActionBorrow, ActionRepay:
		err = b.simple(ctx)
	case ActionOpenLeveragedPosition:
		err = b.open(ctx)
	case ActionCloseLeveragedPosition:
		err = b.close(ctx)
	default:
		err = adapter.NewError(adapter.ErrUnsupportedAction, op).WithChain(req.ChainID).
			WithAdapter(string(req.ProtocolID)).WithDetail("action %q", req.Action)
	}
	if err != nil {
		return nil, err
	}

	if err := b.seq.ValidateChain(); err != nil {
		c.logger.Error("Composed sequence failed linkage check", "chain_id", req.ChainID, "protocol", req.ProtocolID, "action", req.Action, "error", err)
		return nil, adapter.NewError(adapter.ErrBrokenChain, op).WithChain(req.ChainID).WithAdapter(string(req.ProtocolID)).Wrap(err)
	}
	after, err := before.ApplyAll(b.seq)
	if err != nil {
		return nil, err
	}
	if err := lender.CheckSafety(ctx, req.ChainID, after); err != nil {
		// Existing debt or a swap priced below the oracle can still exhaust
		// capacity below the precomputed ceiling.
		if req.Action == ActionOpenLeveragedPosition && errors.Is(err, adapter.ErrSafetyBoundViolation) {
			return nil, adapter.NewError(adapter.ErrLeverageUnreachable, op).WithChain(req.ChainID).
				WithAdapter(string(req.ProtocolID)).WithToken(req.CollateralToken).
				WithDetail("target %d bps exceeds borrow capacity", req.TargetLeverageBps).Wrap(err)
		}
		return nil, err
	}

	c.logger.Info("Composed logic sequence",
		"chain_id", req.ChainID,
		"protocol", req.ProtocolID,
		"action", req.Action,
		"steps", len(b.seq),
		"swapper", b.swapper,
		"duration", time.Since(started),
	)
	return &Result{Logics: b.seq, Before: before, After: after, Swapper: b.swapper}, nil
}

func (c *Composer) lender(op string, req Request) (adapter.Lender, error) {
	p, err := c.registry.Protocol(req.ProtocolID)
	if err != nil {
		return nil, err
	}
	lender, ok := p.(adapter.Lender)
	if !ok {
		return nil, adapter.NewError(adapter.ErrUnsupportedAction, op).WithChain(req.ChainID).
			WithAdapter(string(req.ProtocolID)).WithDetail("protocol does not lend")
	}
	if err := adapter.RequireChain(op, string(req.ProtocolID), lender.SupportedChainIDs(), req.ChainID); err != nil {
		return nil, err
	}
	return lender, nil
}

func (c *Composer) flashLoaner(op string, chainID uint64) (adapter.FlashLoaner, error) {
	p, err := c.registry.Protocol(adapter.UtilityProtocolID)
	if err != nil {
		return nil, err
	}
	fl, ok := p.(adapter.FlashLoaner)
	if !ok {
		return nil, adapter.NewError(adapter.ErrUnsupportedAction, op).WithChain(chainID).
			WithAdapter(string(adapter.UtilityProtocolID)).WithDetail("protocol does not flash-loan")
	}
	if err := adapter.RequireChain(op, string(adapter.UtilityProtocolID), fl.SupportedChainIDs(), chainID); err != nil {
		return nil, err
	}
	return fl, nil
}

// build accumulates one composition.
type build struct {
	c        *Composer
	lender   adapter.Lender
	req      Request
	before   adapter.Position
	slippage uint64

	seq     logic.Sequence
	swapper adapter.SwapperID
}

type logicBuilder interface {
	BuildLogic(q adapter.Quote) (logic.Descriptor, error)
}

// add appends the descriptor of q built by p.
func (b *build) add(p logicBuilder, q adapter.Quote, dependsOnPrevious bool) (logic.Descriptor, error) {
	d, err := p.BuildLogic(q)
	if err != nil {
		return logic.Descriptor{}, err
	}
	d.DependsOnPrevious = dependsOnPrevious
	b.seq = append(b.seq, d)
	return d, nil
}

func (b *build) simple(ctx context.Context) error {
	const op = "composer.compose"
	r := b.req
	if r.Token.IsZero() {
		return adapter.NewError(adapter.ErrUnsupportedToken, op).WithChain(r.ChainID).WithAdapter(string(r.ProtocolID)).WithDetail("token is required")
	}

	b.c.logger.Debug("Requesting lending quote", "chain_id", r.ChainID, "protocol", r.ProtocolID, "action", r.Action, "token", r.Token.String())
	var (
		q   adapter.Quote
		err error
	)
	switch r.Action {
	case ActionSupply:
		q, err = b.lender.QuoteSupply(ctx, r.ChainID, r.Token, r.Amount)
	case ActionWithdraw:
		q, err = b.lender.QuoteWithdraw(ctx, r.ChainID, r.Token, r.Amount)
	case ActionBorrow:
		q, err = b.lender.QuoteBorrow(ctx, r.ChainID, r.Token, r.Amount)
	case ActionRepay:
		q, err = b.lender.QuoteRepay(ctx, r.ChainID, r.Token, r.Amount)
	}
	if err != nil {
		return err
	}
	_, err = b.add(b.lender, q, false)
	return err
}
