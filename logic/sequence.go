package logic

import (
	"errors"
	"fmt"
)

// ErrBrokenChain reports a dependent pair of steps whose token or amount
// linkage does not hold. It is an internal-consistency failure.
var ErrBrokenChain = errors.New("logic: broken chain")

// Sequence is an ordered list of descriptors; order is significant.
type Sequence []Descriptor

// RIDs returns the router ids in order.
func (s Sequence) RIDs() []RID {
	rids := make([]RID, len(s))
	for i, d := range s {
		rids[i] = d.RID
	}
	return rids
}

// LinkError locates a broken link between step Index-1 and step Index.
type LinkError struct {
	Index  int
	Reason string
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("logic: broken chain at step %d: %s", e.Index, e.Reason)
}

func (e *LinkError) Unwrap() error { return ErrBrokenChain }

// ValidateChain checks every step marked DependsOnPrevious: the previous
// step must produce the same token this step consumes, in at least the
// amount consumed.
func (s Sequence) ValidateChain() error {
	for i, d := range s {
		if d.Fields == nil {
			return &LinkError{Index: i, Reason: "missing fields"}
		}
		if !d.DependsOnPrevious {
			continue
		}
		if i == 0 {
			return &LinkError{Index: i, Reason: "first step cannot depend on a previous step"}
		}
		out, ok := s[i-1].Fields.Produces()
		if !ok {
			return &LinkError{Index: i, Reason: fmt.Sprintf("%s produces nothing", s[i-1].RID)}
		}
		in, ok := d.Fields.Consumes()
		if !ok {
			return &LinkError{Index: i, Reason: fmt.Sprintf("%s consumes nothing", d.RID)}
		}
		if !out.Token.Equal(in.Token) {
			return &LinkError{Index: i, Reason: fmt.Sprintf("token mismatch: %s produces %s, %s consumes %s", s[i-1].RID, out.Token, d.RID, in.Token)}
		}
		if out.Amount == nil || in.Amount == nil {
			return &LinkError{Index: i, Reason: "missing amount"}
		}
		if out.Amount.Lt(in.Amount) {
			return &LinkError{Index: i, Reason: fmt.Sprintf("amount shortfall: %s produces %s, %s consumes %s", s[i-1].RID, out.Amount.Dec(), d.RID, in.Amount.Dec())}
		}
	}
	return nil
}
