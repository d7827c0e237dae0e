package compreg_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/compreg"
	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/scorer"
	"github.com/evalforge/evalforge/solver"
	"github.com/evalforge/evalforge/store"
	"github.com/evalforge/evalforge/tooldispatch"
)

type fakeModel struct{ name string }

func (m fakeModel) Generate(context.Context, []dataset.ChatMessage, []model.ToolDefinition, *model.ToolChoice, model.Config) (*model.Output, error) {
	return &model.Output{}, nil
}
func (m fakeModel) MaxTokens() int                          { return 4096 }
func (m fakeModel) MaxConnections() int                      { return 1 }
func (m fakeModel) IsRetryable(error) bool                  { return false }
func (m fakeModel) ConnectionKey(model.Config) string        { return "" }

type fakeTool struct{ name string }

func (t fakeTool) Name() string                  { return t.name }
func (t fakeTool) Description() string           { return "" }
func (t fakeTool) ParameterSchema() map[string]any { return nil }
func (t fakeTool) Parallel() bool                { return true }
func (t fakeTool) Execute(context.Context, map[string]any, *store.Store) tooldispatch.Result {
	return tooldispatch.Result{}
}

type fakeScorer struct{ name string }

func (s fakeScorer) Name() string { return s.name }
func (s fakeScorer) Score(context.Context, solver.Snapshot, []string) (scorer.Score, error) {
	return scorer.Score{}, nil
}

func TestModelResolvesExplicitDefaultName(t *testing.T) {
	r := compreg.New()
	r.RegisterModel("openai/gpt-4o", fakeModel{name: "gpt"})
	r.RegisterModel("default", fakeModel{name: "fallback"})

	got, err := r.Model("")
	require.NoError(t, err)
	assert.Equal(t, fakeModel{name: "fallback"}, got)
}

func TestModelFallsBackToFlaggedDefault(t *testing.T) {
	r := compreg.New()
	r.RegisterModel("anthropic/claude", fakeModel{name: "claude"})
	r.RegisterDefaultModel("openai/gpt-4o", fakeModel{name: "gpt"})

	got, err := r.Model("")
	require.NoError(t, err)
	assert.Equal(t, fakeModel{name: "gpt"}, got)
}

func TestModelFallsBackToFirstRegistered(t *testing.T) {
	r := compreg.New()
	r.RegisterModel("anthropic/claude", fakeModel{name: "claude"})
	r.RegisterModel("openai/gpt-4o", fakeModel{name: "gpt"})

	got, err := r.Model("")
	require.NoError(t, err)
	assert.Equal(t, fakeModel{name: "claude"}, got)
}

func TestModelUnknownNameErrors(t *testing.T) {
	r := compreg.New()
	_, err := r.Model("missing/model")
	require.Error(t, err)
}

func TestToolsResolvesByName(t *testing.T) {
	r := compreg.New()
	r.RegisterTool(fakeTool{name: "bash"})
	r.RegisterTool(fakeTool{name: "python"})

	tools, err := r.Tools([]string{"python", "bash"})
	require.NoError(t, err)
	require.Len(t, tools, 2)
	assert.Equal(t, "python", tools[0].Name())
	assert.Equal(t, "bash", tools[1].Name())
}

func TestToolsUnknownNameErrors(t *testing.T) {
	r := compreg.New()
	r.RegisterTool(fakeTool{name: "bash"})
	_, err := r.Tools([]string{"missing"})
	require.Error(t, err)
}

func TestScorersResolvesByName(t *testing.T) {
	r := compreg.New()
	r.RegisterScorer(fakeScorer{name: "exact_match"})
	r.RegisterScorer(fakeScorer{name: "includes"})

	scorers, err := r.Scorers([]string{"includes", "exact_match"})
	require.NoError(t, err)
	require.Len(t, scorers, 2)
	assert.Equal(t, "includes", scorers[0].Name())
}
