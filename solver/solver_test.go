package solver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/modelgateway"
	"github.com/evalforge/evalforge/solver"
	"github.com/evalforge/evalforge/store"
	"github.com/evalforge/evalforge/tooldispatch"
)

type scriptedProvider struct {
	outputs []*model.Output
	i       int
}

func (p *scriptedProvider) Generate(ctx context.Context, messages []dataset.ChatMessage, tools []model.ToolDefinition, choice *model.ToolChoice, cfg model.Config) (*model.Output, error) {
	out := p.outputs[p.i]
	p.i++
	return out, nil
}
func (p *scriptedProvider) MaxTokens() int                          { return 4096 }
func (p *scriptedProvider) MaxConnections() int                     { return 4 }
func (p *scriptedProvider) IsRetryable(error) bool                  { return false }
func (p *scriptedProvider) ConnectionKey(model.Config) string       { return "" }

func TestGenerateLoopStopsOnPlainStop(t *testing.T) {
	provider := &scriptedProvider{outputs: []*model.Output{
		{Model: "m", Choices: []model.Choice{{Message: dataset.ChatMessage{Role: dataset.RoleAssistant, Text: "done"}, StopReason: model.StopReasonStop}}},
	}}
	gw := modelgateway.New(provider, 1)
	dispatch := tooldispatch.New(nil, nil)
	chain := solver.Chain{solver.Generate(gw, dispatch, nil, "s1", model.Config{})}

	st := &solver.State{Store: store.New(), Limits: limits.New(limits.Config{}, nil)}
	require.NoError(t, chain.Run(context.Background(), st))
	assert.True(t, st.Completed)
	assert.Len(t, st.Messages, 1)
}

func TestGenerateLoopDispatchesToolCallsThenStops(t *testing.T) {
	provider := &scriptedProvider{outputs: []*model.Output{
		{Model: "m", Choices: []model.Choice{{
			Message: dataset.ChatMessage{
				Role: dataset.RoleAssistant,
				ToolCalls: []dataset.ToolCall{{ID: "1", Function: "noop"}},
			},
			StopReason: model.StopReasonToolCalls,
		}}},
		{Model: "m", Choices: []model.Choice{{Message: dataset.ChatMessage{Role: dataset.RoleAssistant, Text: "final"}, StopReason: model.StopReasonStop}}},
	}}
	gw := modelgateway.New(provider, 1)
	dispatch := tooldispatch.New([]tooldispatch.Tool{noopTool{}}, nil)
	chain := solver.Chain{solver.Generate(gw, dispatch, nil, "s1", model.Config{})}

	st := &solver.State{Store: store.New(), Limits: limits.New(limits.Config{}, nil)}
	require.NoError(t, chain.Run(context.Background(), st))
	assert.True(t, st.Completed)
	// assistant(tool_calls) + tool_result + assistant(final) == 3
	assert.Len(t, st.Messages, 3)
}

type noopTool struct{ tooldispatch.BaseTool }

func (noopTool) Name() string                   { return "noop" }
func (noopTool) Description() string             { return "" }
func (noopTool) ParameterSchema() map[string]any { return nil }
func (noopTool) Execute(ctx context.Context, args map[string]any, state *store.Store) tooldispatch.Result {
	return tooldispatch.Result{Text: "ok"}
}
