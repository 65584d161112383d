package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Iwinswap/defi-logic-composer-go/logic"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/holiman/uint256"
)

var (
	ErrUnsupportedChain      = errors.New("adapter: unsupported chain")
	ErrUnknownAdapter        = errors.New("adapter: unknown adapter")
	ErrDuplicateRegistration = errors.New("adapter: duplicate registration")
	ErrInvalidAmount         = errors.New("adapter: invalid amount")
	ErrInsufficientLiquidity = errors.New("adapter: insufficient liquidity")
	ErrNoRoute               = errors.New("adapter: no route")
	ErrStaleQuote            = errors.New("adapter: stale quote")
	ErrLeverageUnreachable   = errors.New("adapter: leverage unreachable")
	ErrSafetyBoundViolation  = errors.New("adapter: safety bound violation")
	ErrUnsupportedToken      = errors.New("adapter: unsupported token")
	ErrUnsupportedAction     = errors.New("adapter: unsupported action")

	// ErrBrokenChain is the logic package's linkage failure, re-exported so
	// callers can match every composer failure against this package.
	ErrBrokenChain = logic.ErrBrokenChain
)

// Error carries the context a caller needs to decide whether to adjust
// parameters and retry. errors.Is matches both Kind and the wrapped Err.
type Error struct {
	Kind    error
	Op      string
	ChainID uint64
	Adapter string
	Token   token.Ref
	Amount  *uint256.Int
	Detail  string
	Err     error
}

// NewError starts an error of the given kind raised by op.
func NewError(kind error, op string) *Error {
	return &Error{Kind: kind, Op: op}
}

func (e *Error) WithChain(chainID uint64) *Error {
	e.ChainID = chainID
	return e
}

func (e *Error) WithAdapter(id string) *Error {
	e.Adapter = id
	return e
}

func (e *Error) WithToken(tok token.Ref) *Error {
	e.Token = tok
	return e
}

func (e *Error) WithAmount(amount *uint256.Int) *Error {
	if amount != nil {
		e.Amount = amount.Clone()
	}
	return e
}

func (e *Error) WithDetail(format string, args ...any) *Error {
	e.Detail = fmt.Sprintf(format, args...)
	return e
}

func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("adapter: error")
	}
	var ctx []string
	if e.ChainID != 0 {
		ctx = append(ctx, fmt.Sprintf("chain=%d", e.ChainID))
	}
	if e.Adapter != "" {
		ctx = append(ctx, "adapter="+e.Adapter)
	}
	if !e.Token.IsZero() {
		ctx = append(ctx, "token="+e.Token.String())
	}
	if e.Amount != nil {
		ctx = append(ctx, "amount="+e.Amount.Dec())
	}
	if len(ctx) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(ctx, " "))
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}
