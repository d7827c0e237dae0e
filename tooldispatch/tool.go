// Package tooldispatch resolves assistant tool calls against a registered
// tool set, validates arguments, consults an approval policy, and executes
// calls with the grouping/ordering rules spec §4.5 describes.
package tooldispatch

import (
	"context"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/store"
)

// Result is the outcome of one tool execution. Exactly one of Text, Parts,
// or Err is meaningful.
type Result struct {
	Text  string
	Parts []dataset.Part
	Err   *Error
}

// Tool is the contract a registered tool implements (spec §4.5 "Tool
// contract").
type Tool interface {
	// Name is the tool's unique identifier as referenced by ToolCall.Function.
	Name() string
	// Description is shown to the model as part of the tool's schema.
	Description() string
	// ParameterSchema is a JSON-Schema document describing the call's
	// arguments (name -> {type, description, required, default}).
	ParameterSchema() map[string]any
	// Parallel reports whether concurrent calls to this tool may run at
	// once. Defaults to true for tools that don't override it explicitly.
	Parallel() bool
	// Execute runs the tool against args and the sample's shared Store.
	Execute(ctx context.Context, args map[string]any, state *store.Store) Result
}

// BaseTool provides the Parallel() == true default so concrete tools only
// need to override it when they require serialisation.
type BaseTool struct{}

// Parallel implements Tool, defaulting to true per spec §4.5.
func (BaseTool) Parallel() bool { return true }
