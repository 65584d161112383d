package composer

import (
	"context"
	"errors"

	"github.com/Iwinswap/defi-logic-composer-go/adapter"
	"github.com/Iwinswap/defi-logic-composer-go/protocols/token"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

type candidate struct {
	swapper adapter.Swapper
	quote   adapter.Quote
	err     error
}

// bestSwap quotes every swapper serving chainID concurrently and returns
// the quote with the highest MinAmountOut; ties go to the swapper
// registered first. A failing swapper is skipped unless every candidate
// fails, which yields adapter.ErrNoRoute joined with each cause.
// adapter.ErrInvalidAmount from any candidate aborts the fan-out.
func (c *Composer) bestSwap(ctx context.Context, chainID uint64, tokenIn, tokenOut token.Ref, amountIn *uint256.Int, slippageBps uint64) (adapter.Swapper, adapter.Quote, error) {
	const op = "composer.best_swap"
	noRoute := func() *adapter.Error {
		return adapter.NewError(adapter.ErrNoRoute, op).WithChain(chainID).WithToken(tokenIn).WithAmount(amountIn)
	}

	var swappers []adapter.Swapper
	for _, s := range c.registry.Swappers() {
		if s.SupportedChainIDs().Contains(chainID) {
			swappers = append(swappers, s)
		}
	}
	if len(swappers) == 0 {
		return nil, adapter.Quote{}, noRoute().WithDetail("no swapper serves the chain")
	}

	results := make([]candidate, len(swappers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for i, s := range swappers {
		g.Go(func() error {
			qctx, cancel := context.WithTimeout(gctx, c.quoteTimeout)
			defer cancel()
			c.logger.Debug("Requesting swap quote", "swapper", s.ID(), "chain_id", chainID, "token_in", tokenIn.String(), "token_out", tokenOut.String(), "amount_in", amountIn.Dec())

			q, err := quoteWithin(qctx, s, chainID, tokenIn, tokenOut, amountIn, slippageBps)
			if err == nil {
				err = checkSwapQuote(s.ID(), q, tokenIn, tokenOut, amountIn)
			}
			c.metrics.observeSwapQuote(s.ID(), err)
			if err != nil {
				if errors.Is(err, adapter.ErrInvalidAmount) {
					return err
				}
				c.logger.Warn("Swapper quote failed, skipping candidate", "swapper", s.ID(), "chain_id", chainID, "error", err)
				results[i] = candidate{swapper: s, err: err}
				return nil
			}
			results[i] = candidate{swapper: s, quote: q}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, adapter.Quote{}, err
	}

	best := -1
	var causes []error
	for i, r := range results {
		if r.err != nil {
			causes = append(causes, r.err)
			continue
		}
		if best < 0 || r.quote.MinAmountOut.Gt(results[best].quote.MinAmountOut) {
			best = i
		}
	}
	if best < 0 {
		return nil, adapter.Quote{}, noRoute().WithDetail("all %d swappers failed", len(swappers)).Wrap(errors.Join(causes...))
	}
	return results[best].swapper, results[best].quote, nil
}

// quoteWithin returns when ctx ends even if the swapper ignores it. The
// abandoned call finishes in the background.
func quoteWithin(ctx context.Context, s adapter.Swapper, chainID uint64, tokenIn, tokenOut token.Ref, amountIn *uint256.Int, slippageBps uint64) (adapter.Quote, error) {
	type reply struct {
		quote adapter.Quote
		err   error
	}
	done := make(chan reply, 1)
	go func() {
		q, err := s.QuoteSwap(ctx, chainID, tokenIn, tokenOut, amountIn, slippageBps)
		done <- reply{q, err}
	}()
	select {
	case r := <-done:
		return r.quote, r.err
	case <-ctx.Done():
		return adapter.Quote{}, adapter.NewError(adapter.ErrStaleQuote, "composer.quote_swap").WithAdapter(string(s.ID())).
			WithChain(chainID).WithToken(tokenIn).WithAmount(amountIn).Wrap(ctx.Err())
	}
}

// checkSwapQuote rejects quotes that do not answer the question asked.
func checkSwapQuote(id adapter.SwapperID, q adapter.Quote, tokenIn, tokenOut token.Ref, amountIn *uint256.Int) error {
	const op = "composer.check_swap_quote"
	switch {
	case q.MinAmountOut == nil || q.MinAmountOut.IsZero():
		return adapter.NewError(adapter.ErrNoRoute, op).WithAdapter(string(id)).WithDetail("zero guaranteed output")
	case !q.TokenIn.Equal(tokenIn) || !q.TokenOut.Equal(tokenOut):
		return adapter.NewError(adapter.ErrNoRoute, op).WithAdapter(string(id)).WithDetail("quote for %s -> %s", q.TokenIn, q.TokenOut)
	case q.AmountIn == nil || !q.AmountIn.Eq(amountIn):
		return adapter.NewError(adapter.ErrNoRoute, op).WithAdapter(string(id)).WithDetail("quote input differs from request")
	}
	return nil
}
