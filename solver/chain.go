package solver

import (
	"context"

	"github.com/evalforge/evalforge/limits"
)

// Solver transforms State, or fails with a recoverable error (spec §4.2
// "a solver is a function state, generate -> state"). An error returned
// here propagates to the scheduler's failure handling; a limits.Exceeded
// error is the one recoverable case the chain itself understands.
type Solver func(ctx context.Context, st *State) error

// Chain is an ordered pipeline of Solvers, evaluated in sequence. Between
// solvers the chain checks st.Completed and the limit tracker; if either
// trips, the remainder of the chain is skipped and control returns to the
// caller (the scorer phase), mirroring the teacher's own run loop
// structure of checking termination conditions between steps rather than
// threading a cancellation flag through every call
// (runtime/agent/runtime/workflow_loop.go's workflowLoop.run).
type Chain []Solver

// Run executes every solver in order, short-circuiting on completion, a
// tripped limit, or an error.
func (c Chain) Run(ctx context.Context, st *State) error {
	for _, s := range c {
		if st.Completed {
			return nil
		}
		if st.Limits != nil {
			if err := st.Limits.Exceeded(); err != nil {
				st.Completed = true
				st.Err = err
				return nil
			}
		}
		if err := s(ctx, st); err != nil {
			if _, ok := limits.As(err); ok {
				st.Completed = true
				st.Err = err
				return nil
			}
			return err
		}
	}
	return nil
}
