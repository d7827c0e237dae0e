// Package scorer implements the scorer contract and metric reducers
// described in spec §4.6.
package scorer

import (
	"context"
	"strconv"

	"github.com/evalforge/evalforge/solver"
)

// Value is the open-union score value spec §3 ("Score") allows: boolean,
// number, string, or a nested object.
type Value struct {
	Bool   *bool
	Number *float64
	Str    *string
	Object map[string]any
}

// BoolValue wraps a boolean score value.
func BoolValue(b bool) Value { return Value{Bool: &b} }

// NumberValue wraps a numeric score value.
func NumberValue(n float64) Value { return Value{Number: &n} }

// StringValue wraps a string score value.
func StringValue(s string) Value { return Value{Str: &s} }

// AsFloat converts the score to a float for reducers, treating true/false
// as 1/0 and an unparsable string as 0.
func (v Value) AsFloat() float64 {
	switch {
	case v.Bool != nil:
		if *v.Bool {
			return 1
		}
		return 0
	case v.Number != nil:
		return *v.Number
	case v.Str != nil:
		if f, err := strconv.ParseFloat(*v.Str, 64); err == nil {
			return f
		}
		return 0
	default:
		return 0
	}
}

// Score is the result of one scorer applied to one sample (spec §3
// "Score"): a value plus optional answer/explanation/metadata.
type Score struct {
	Value       Value
	Answer      string
	Explanation string
	Metadata    map[string]any
}

// Scorer grades a completed sample's terminal state against its target.
// Scorer errors are reported into the sample record but never fail the
// run (spec §4.6).
type Scorer interface {
	Name() string
	Score(ctx context.Context, final solver.Snapshot, target []string) (Score, error)
}

// Func adapts a plain function to Scorer.
type Func struct {
	ScorerName string
	Fn         func(ctx context.Context, final solver.Snapshot, target []string) (Score, error)
}

// Name implements Scorer.
func (f Func) Name() string { return f.ScorerName }

// Score implements Scorer.
func (f Func) Score(ctx context.Context, final solver.Snapshot, target []string) (Score, error) {
	return f.Fn(ctx, final, target)
}
