package adapter

import (
	"github.com/Iwinswap/defi-logic-composer-go/logic"
)

// SwapLogic builds the swap-token descriptor of a swap quote produced by
// swapper id. The output side carries MinAmountOut, the amount the next
// step may rely on.
func SwapLogic(id SwapperID, q Quote) (logic.Descriptor, error) {
	op := string(id) + ".build_logic"
	if q.Source != string(id) {
		return logic.Descriptor{}, NewError(ErrUnknownAdapter, op).WithAdapter(string(id)).WithDetail("quote produced by %q", q.Source)
	}
	if q.Action != ActionSwap {
		return logic.Descriptor{}, NewError(ErrUnsupportedAction, op).WithChain(q.ChainID).WithAdapter(string(id)).WithDetail("action %q", q.Action)
	}
	if q.AmountIn == nil || q.MinAmountOut == nil {
		return logic.Descriptor{}, NewError(ErrInvalidAmount, op).WithChain(q.ChainID).WithAdapter(string(id)).WithDetail("incomplete swap quote")
	}
	fields := logic.SwapFields{
		Input:       logic.NewTokenAmount(q.TokenIn, q.AmountIn),
		Output:      logic.NewTokenAmount(q.TokenOut, q.MinAmountOut),
		SlippageBps: q.SlippageBps,
		Route:       append([]byte(nil), q.Route...),
	}
	if q.AmountOut != nil {
		fields.Estimate = q.AmountOut.Clone()
	}
	return logic.Descriptor{RID: logic.NewRID(string(id), logic.Kind(fields)), Fields: fields}, nil
}
