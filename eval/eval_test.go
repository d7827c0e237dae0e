package eval_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/eval"
	"github.com/evalforge/evalforge/evallog"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/scheduler"
	"github.com/evalforge/evalforge/scorer"
	"github.com/evalforge/evalforge/solver"
)

type fakeModel struct{}

func (fakeModel) Generate(context.Context, []dataset.ChatMessage, []model.ToolDefinition, *model.ToolChoice, model.Config) (*model.Output, error) {
	return &model.Output{
		Model: "fake-1",
		Choices: []model.Choice{{
			Message:    dataset.ChatMessage{Role: dataset.RoleAssistant, Text: "42"},
			StopReason: model.StopReasonStop,
		}},
		Usage: model.TokenUsage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12},
	}, nil
}
func (fakeModel) MaxTokens() int                    { return 4096 }
func (fakeModel) MaxConnections() int               { return 4 }
func (fakeModel) IsRetryable(error) bool            { return false }
func (fakeModel) ConnectionKey(model.Config) string { return "" }

type exactMatchScorer struct{}

func (exactMatchScorer) Name() string { return "exact_match" }
func (exactMatchScorer) Score(_ context.Context, final solver.Snapshot, target []string) (scorer.Score, error) {
	got := ""
	if len(final.Messages) > 0 {
		got = final.Messages[len(final.Messages)-1].Content()
	}
	want := ""
	if len(target) > 0 {
		want = target[0]
	}
	return scorer.Score{Value: scorer.BoolValue(got == want)}, nil
}

func twoSamples() []dataset.Sample {
	return []dataset.Sample{
		{ID: "q1", Input: []dataset.ChatMessage{{Role: dataset.RoleUser, Text: "what is it"}}, Target: []string{"42"}},
		{ID: "q2", Input: []dataset.ChatMessage{{Role: dataset.RoleUser, Text: "what is it"}}, Target: []string{"0"}},
	}
}

func TestRunnerProducesResultsAndLog(t *testing.T) {
	task := eval.Task{
		ID:        "task-1",
		Name:      "arithmetic",
		Samples:   twoSamples(),
		Model:     fakeModel{},
		ModelName: "fake/fake-1",
		Scorers:   []scorer.Scorer{exactMatchScorer{}},
		PassAtK:   []int{1},
		Scheduler: scheduler.Config{MaxSamples: 2},
	}
	runner, err := eval.NewRunner(task)
	require.NoError(t, err)

	logPath := filepath.Join(t.TempDir(), "run.json")
	doc, err := runner.Run(context.Background(), "run-1", logPath)
	require.NoError(t, err)

	assert.Equal(t, evallog.StatusSuccess, doc.Status)
	require.Len(t, doc.Samples, 2)
	require.NotNil(t, doc.Results)
	assert.Equal(t, 2, doc.Results.TotalSamples)
	assert.Equal(t, 2, doc.Results.CompletedSamples)

	require.Len(t, doc.Results.Scores, 1)
	summary := doc.Results.Scores[0]
	assert.Equal(t, "exact_match", summary.Name)
	assert.Equal(t, "mean", summary.Reducer)
	assert.InDelta(t, 0.5, summary.Metrics["mean"], 1e-9)
	assert.Contains(t, summary.Metrics, "pass_at_1")

	for _, s := range doc.Samples {
		assert.True(t, s.Completed)
		require.Len(t, s.Scores, 1)
		assert.Equal(t, "exact_match", s.Scores[0].Scorer)
	}

	reread, err := evallog.ReadLog(logPath)
	require.NoError(t, err)
	assert.Equal(t, evallog.StatusSuccess, reread.Status)
	assert.Len(t, reread.Samples, 2)
}

func TestRunnerRequiresModel(t *testing.T) {
	_, err := eval.NewRunner(eval.Task{})
	require.Error(t, err)
}

type explodingModel struct{ t *testing.T }

func (m explodingModel) Generate(context.Context, []dataset.ChatMessage, []model.ToolDefinition, *model.ToolChoice, model.Config) (*model.Output, error) {
	m.t.Fatal("generate must not be called once the sample's input already exceeds the message limit")
	return nil, nil
}
func (explodingModel) MaxTokens() int                    { return 4096 }
func (explodingModel) MaxConnections() int               { return 4 }
func (explodingModel) IsRetryable(error) bool            { return false }
func (explodingModel) ConnectionKey(model.Config) string { return "" }

// A message limit below the sample's own input length must trip before the
// first generate call, and the resulting sample must be limit-complete, not
// errored: Error and Limit are mutually exclusive terminal markers (spec
// §3/§6), and a limit-tripped sample is scored as completed (spec §4.1), not
// dropped from CompletedSamples or re-run by the retry controller.
func TestRunnerMarksMessageLimitSampleCompleteNotErrored(t *testing.T) {
	task := eval.Task{
		ID:   "task-2",
		Name: "limit",
		Samples: []dataset.Sample{
			{ID: "q1", Input: []dataset.ChatMessage{
				{Role: dataset.RoleUser, Text: "a"},
				{Role: dataset.RoleUser, Text: "b"},
			}},
		},
		Model:     explodingModel{t: t},
		ModelName: "fake/fake-1",
		Limits:    limits.Config{Messages: 1},
		Scheduler: scheduler.Config{MaxSamples: 1},
	}
	runner, err := eval.NewRunner(task)
	require.NoError(t, err)

	logPath := filepath.Join(t.TempDir(), "run.json")
	doc, err := runner.Run(context.Background(), "run-2", logPath)
	require.NoError(t, err)

	require.Len(t, doc.Samples, 1)
	s := doc.Samples[0]
	assert.True(t, s.Completed)
	assert.Empty(t, s.Error)
	assert.Equal(t, "message", s.Limit)

	require.NotNil(t, doc.Results)
	assert.Equal(t, 1, doc.Results.CompletedSamples)
}
