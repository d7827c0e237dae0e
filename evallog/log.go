// Package evallog implements the durable EvalLog artifact described in
// spec §3 "EvalLog" and §6 "Log file (produced)": a single addressable
// JSON document per run, written progressively (header first, samples
// streamed as they complete, footer on success), plus the sidecar sample
// buffer (§4.7, §6 "Sample buffer (produced, in-progress)") that lets an
// external viewer tail in-flight samples before they land in the final
// file.
//
// Grounded on the teacher's runtime/agent/runlog event-log shape and
// features/{run,runlog}/mongo's durable-store layering, adapted from a
// generic append-only event log to this spec's specific EvalLog schema.
package evallog

import (
	"time"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/internal/ids"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/scorer"
	"github.com/evalforge/evalforge/store"
	"github.com/evalforge/evalforge/transcript"
)

// Status is the terminal (or in-progress) state of one eval run.
type Status string

const (
	StatusStarted   Status = "started"
	StatusSuccess   Status = "success"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// DatasetSummary describes the dataset bound to this run, enough to
// reconstruct retry filtering without re-loading the dataset (spec §4.8
// loads it by task identity, but the summary here is what a log reader
// shows without that reload).
type DatasetSummary struct {
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	SampleIDs []any  `json:"sample_ids,omitempty"`
	Shuffled  bool   `json:"shuffled"`
}

// EvalHeader is the `eval` section of the log schema (spec §6): task
// identity, run identity, dataset summary, model, and configuration
// provenance.
type EvalHeader struct {
	Task     string            `json:"task"`
	TaskID   string            `json:"task_id"`
	RunID    string            `json:"run_id"`
	Created  time.Time         `json:"created"`
	Dataset  DatasetSummary    `json:"dataset"`
	Model    string            `json:"model"`
	Config   map[string]any    `json:"config,omitempty"`
	Packages map[string]string `json:"packages,omitempty"`
	Git      *GitInfo          `json:"git,omitempty"`
}

// GitInfo records the commit the run executed against, when available.
type GitInfo struct {
	Commit string `json:"commit"`
	Origin string `json:"origin,omitempty"`
	Dirty  bool   `json:"dirty"`
}

// Plan is the `plan` section: the solver chain's steps and the generate
// config it ran with, for provenance.
type Plan struct {
	Steps  []string       `json:"steps"`
	Config map[string]any `json:"config,omitempty"`
}

// ScoreSummary is one entry of `results.scores`: a named reducer applied to
// one scorer's output.
type ScoreSummary struct {
	Name    string         `json:"name"`
	Scorer  string         `json:"scorer"`
	Reducer string         `json:"reducer"`
	Metrics map[string]any `json:"metrics"`
}

// SampleReduction mirrors one sample's reduced score across epochs, so a
// reader can see per-sample outcomes without replaying every epoch.
type SampleReduction struct {
	SampleID any     `json:"sample_id"`
	Value    float64 `json:"value"`
}

// Results is the `results` section. eval.Runner writes it when the run
// finishes, whatever the final status.
type Results struct {
	Scores            []ScoreSummary    `json:"scores"`
	TotalSamples      int               `json:"total_samples"`
	CompletedSamples  int               `json:"completed_samples"`
	SampleReductions  []SampleReduction `json:"sample_reductions,omitempty"`
}

// Stats is the `stats` section: timing and model usage totals across the
// whole run.
type Stats struct {
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at,omitempty"`
	ModelUsage  map[string]model.TokenUsage `json:"model_usage,omitempty"`
}

// RunError is the `error` section, populated when Status is error or
// cancelled (spec §7 "User-visible failure").
type RunError struct {
	Message       string `json:"message"`
	Traceback     string `json:"traceback,omitempty"`
	TracebackANSI string `json:"traceback_ansi,omitempty"`
}

// SampleScore is one scorer's Score attached to a completed sample,
// indexed under the scorer's name (spec §3 "Score... scorer name is the
// outer key").
type SampleScore struct {
	Scorer      string         `json:"scorer"`
	Value       any            `json:"value"`
	Answer      string         `json:"answer,omitempty"`
	Explanation string         `json:"explanation,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// EvalSample is one dataset row's durable record (spec §6 "EvalSample").
type EvalSample struct {
	ID        any                    `json:"id"`
	Epoch     int                    `json:"epoch"`
	Input     []dataset.ChatMessage  `json:"input"`
	Choices   []string               `json:"choices,omitempty"`
	Target    []string               `json:"target,omitempty"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
	Messages  []dataset.ChatMessage  `json:"messages"`
	Output    *model.Output          `json:"output,omitempty"`
	Scores    []SampleScore          `json:"scores,omitempty"`
	Events    []transcript.Event     `json:"events"`
	ModelUsage model.TokenUsage      `json:"model_usage"`
	TotalTime   float64              `json:"total_time"`
	WorkingTime float64              `json:"working_time"`
	Error     string                 `json:"error,omitempty"`
	Limit     string                 `json:"limit,omitempty"`
	Store     map[string]store.Value `json:"store,omitempty"`
	UUID      string                 `json:"uuid"`
	Completed bool                   `json:"completed"`
}

// Key returns the (id, epoch) identity pair this record is stable under
// (spec invariant 1).
func (s EvalSample) Key() string {
	return ids.SampleKey(s.ID, s.Epoch)
}

// ScoreFromResult converts a scorer.Score plus its scorer name into the
// persisted SampleScore shape.
func ScoreFromResult(name string, sc scorer.Score, scoreErr error) SampleScore {
	out := SampleScore{
		Scorer:      name,
		Answer:      sc.Answer,
		Explanation: sc.Explanation,
		Metadata:    sc.Metadata,
	}
	switch {
	case sc.Value.Bool != nil:
		out.Value = *sc.Value.Bool
	case sc.Value.Number != nil:
		out.Value = *sc.Value.Number
	case sc.Value.Str != nil:
		out.Value = *sc.Value.Str
	case sc.Value.Object != nil:
		out.Value = sc.Value.Object
	}
	if scoreErr != nil {
		out.Error = scoreErr.Error()
	}
	return out
}

// LimitFromTracker extracts the limit kind that terminated a sample, or ""
// if the sample did not end via a tripped limit.
func LimitFromTracker(err error) string {
	if e, ok := limits.As(err); ok {
		return string(e.Which)
	}
	return ""
}
