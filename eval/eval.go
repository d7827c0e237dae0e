// Package eval implements the orchestrator spec §5 describes binding the
// scheduler, solver chain, tool dispatcher, sandbox pool, model gateway,
// and scorer/reducer stages into one per-task run: eval -> tasks ->
// samples. A Runner owns everything one Task needs and drives its
// dataset to a durable evallog.Document.
//
// Grounded on runtime/agent/run's per-run orchestration shape (building a
// State, running a chain, recording results) and runtime/agent/runtime's
// wiring of a model/tool/sandbox registry into a single run, adapted from
// the teacher's Temporal-workflow-backed design to this spec's plain
// in-process admission loop.
package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/evallog"
	"github.com/evalforge/evalforge/internal/ids"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/modelgateway"
	"github.com/evalforge/evalforge/sandbox"
	"github.com/evalforge/evalforge/scheduler"
	"github.com/evalforge/evalforge/scorer"
	"github.com/evalforge/evalforge/solver"
	"github.com/evalforge/evalforge/store"
	"github.com/evalforge/evalforge/tooldispatch"
	"github.com/evalforge/evalforge/transcript"
)

// Task bundles everything one evaluation task needs to run: the already
// resolved model/tools/scorers/sandbox provider (resolution against a
// compreg.Registry happens one layer up, at the CLI/config boundary) plus
// the dataset and the bounds that govern the run.
type Task struct {
	ID   string
	Name string

	Samples []dataset.Sample

	Model       model.Api
	ModelName   string // echoed into the log header; not used for dispatch
	ModelConfig model.Config

	Tools      []tooldispatch.Tool
	ToolPolicy tooldispatch.Policy

	Scorers  []scorer.Scorer
	Reducers map[string]string // scorer name -> reducer name; default "mean"
	PassAtK  []int             // additional pass@k metrics computed per scorer

	SandboxProvider sandbox.Provider // nil disables sandbox support for this task

	Limits      limits.Config
	Scheduler   scheduler.Config
	GatewayOpts []modelgateway.Option

	// ExtraSinks receive every sample's transcript events in addition to
	// the run's buffer sink, e.g. a pulse.Sink for live tailing.
	ExtraSinks []transcript.Sink
	// Buffer durably records in-flight sample state (spec §4.7). Nil
	// disables crash-safe buffering.
	Buffer evallog.Buffer
}

// Runner drives one Task to completion.
type Runner struct {
	task Task
	gw   *modelgateway.Gateway
	pool *sandbox.Pool
}

// NewRunner validates task and constructs a Runner.
func NewRunner(task Task) (*Runner, error) {
	if task.Model == nil {
		return nil, errors.New("eval: task model is required")
	}
	gw := modelgateway.New(task.Model, 0, task.GatewayOpts...)

	var pool *sandbox.Pool
	if task.SandboxProvider != nil {
		pool = sandbox.NewPool(task.Scheduler.MaxSandboxes)
		pool.RegisterDefault(task.SandboxProvider)
	}
	return &Runner{task: task, gw: gw, pool: pool}, nil
}

// Run drives the task's dataset through the scheduler and writes the
// result progressively to logPath, returning the reconstructed Document.
func (r *Runner) Run(ctx context.Context, runID string, logPath string) (evallog.Document, error) {
	if runID == "" {
		runID = ids.NewRunID()
	}
	sched := scheduler.New(r.task.Scheduler)
	items := sched.Items(r.task.Samples)

	header := evallog.EvalHeader{
		Task:    r.task.Name,
		TaskID:  r.task.ID,
		RunID:   runID,
		Created: time.Now(),
		Dataset: evallog.DatasetSummary{
			Name:      r.task.Name,
			SampleIDs: sampleIDs(r.task.Samples),
			Shuffled:  r.task.Scheduler.Shuffle,
		},
		Model: r.task.ModelName,
	}
	plan := evallog.Plan{
		Steps: []string{"generate"},
		Config: map[string]any{
			"max_tokens":  r.task.ModelConfig.MaxTokens,
			"temperature": r.task.ModelConfig.Temperature,
		},
	}

	writer, err := evallog.Create(logPath, header, plan)
	if err != nil {
		return evallog.Document{}, fmt.Errorf("eval: create log: %w", err)
	}

	startedAt := time.Now()
	result := sched.Run(ctx, items, r.sampleFunc(runID))

	for _, s := range result.Samples {
		if err := writer.WriteSample(s); err != nil {
			return evallog.Document{}, fmt.Errorf("eval: write sample: %w", err)
		}
	}

	results := r.summarize(result.Samples)
	stats := evallog.Stats{
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
		ModelUsage:  aggregateUsage(result.Samples),
	}

	var runErr *evallog.RunError
	if result.Err != nil {
		runErr = &evallog.RunError{Message: result.Err.Error()}
	}
	if err := writer.Finish(result.Status, &results, stats, runErr); err != nil {
		return evallog.Document{}, fmt.Errorf("eval: finish log: %w", err)
	}

	return evallog.Document{
		Version: 1,
		Status:  result.Status,
		Eval:    header,
		Plan:    plan,
		Samples: result.Samples,
		Results: &results,
		Stats:   stats,
		Error:   runErr,
	}, nil
}

func (r *Runner) sampleFunc(runID string) scheduler.SampleFunc {
	return func(ctx context.Context, item scheduler.Item) (evallog.EvalSample, error) {
		return r.runSample(ctx, runID, item)
	}
}

// runSample drives one (sample, epoch) pair: optional sandbox
// acquisition, the solver chain, scoring, and durable buffering (spec
// §4.1/§4.2/§4.5/§4.6/§4.7 in sequence).
func (r *Runner) runSample(ctx context.Context, runID string, item scheduler.Item) (evallog.EvalSample, error) {
	sampleKey := scheduler.SampleKey(item.Sample.ID, item.Epoch)
	tracker := limits.New(r.task.Limits, nil)
	// Seed the tracker with the sample's initial input turns so the
	// message limit bounds "messages in state" (spec §4.3) from admission,
	// not just messages the generate loop later appends. A limit already
	// tripped by the input alone is caught by the loop's pre-generate
	// check (solver.Generate) before any model call is made.
	_ = tracker.AddMessages(len(item.Sample.Input))

	record := evallog.EvalSample{
		ID:       item.Sample.ID,
		Epoch:    item.Epoch,
		Input:    item.Sample.Input,
		Choices:  item.Sample.Choices,
		Target:   item.Sample.Target,
		Metadata: item.Sample.Metadata,
		UUID:     ids.NewSampleUUID(),
	}

	var sinks []transcript.Sink
	if r.task.Buffer != nil {
		cur := record
		sinks = append(sinks, evallog.NewBufferSink(r.task.Buffer, runID, item.Sample.ID, item.Epoch,
			func() evallog.EvalSample { return cur },
			func(s evallog.EvalSample) { cur = s },
		))
	}
	sinks = append(sinks, r.task.ExtraSinks...)
	rec := transcript.New(sampleKey, nil, sinks...)

	if r.pool != nil && item.Sample.Sandbox != nil {
		spec := sandbox.Spec{Name: item.Sample.Sandbox.Name, Config: item.Sample.Sandbox.Config}
		sb, release, err := r.pool.AcquireTracked(ctx, spec, tracker)
		if err != nil {
			record.Error = err.Error()
			return record, fmt.Errorf("eval: acquire sandbox: %w", err)
		}
		defer release()
		defer sb.Close(ctx)
		ctx = sandbox.WithSandbox(ctx, sb)

		if err := materializeFiles(ctx, sb, item.Sample.Files); err != nil {
			record.Error = err.Error()
			return record, err
		}
		if item.Sample.Setup != "" {
			if res, err := sb.Exec(ctx, sandbox.ExecRequest{Cmd: []string{"sh", "-c", item.Sample.Setup}}); err != nil || !res.Success {
				record.Error = fmt.Sprintf("sandbox setup failed: %v", err)
				return record, fmt.Errorf("eval: sandbox setup: %w", err)
			}
		}
	}

	dispatcher := tooldispatch.New(r.task.Tools, r.task.ToolPolicy)
	st := &solver.State{
		Messages: item.Sample.Input,
		Tools:    toolDefinitions(r.task.Tools),
		Store:    store.New(),
		Metadata: item.Sample.Metadata,
		Limits:   tracker,
	}

	chain := solver.Chain{solver.Generate(r.gw, dispatcher, rec, sampleKey, r.task.ModelConfig)}
	chainErr := chain.Run(ctx, st)

	snap := st.Snapshot()
	record.Messages = snap.Messages
	record.Output = st.Output
	record.Events = rec.Events()
	record.Store = st.Store.Snapshot()
	if st.Output != nil {
		record.ModelUsage = st.Output.Usage
	}
	usage := tracker.Snapshot()
	record.TotalTime = usage.TotalTime.Seconds()
	record.WorkingTime = usage.WorkingTime.Seconds()

	if chainErr != nil {
		record.Error = chainErr.Error()
		record.Completed = false
		return record, chainErr
	}

	record.Completed = true
	if st.Err != nil {
		// st.Err is always a *limits.Exceeded here: Chain.Run only stashes
		// a limit error on st.Err and returns nil (any other solver error
		// propagates as chainErr above and is handled before this point).
		// Spec §3/§6 treat Error and Limit as the mutually exclusive
		// terminal marker ("error or limit marker") and §4.1 marks a
		// limit-tripped sample "limit-complete (scored)", not errored, so
		// only Limit is set here — Error stays empty.
		record.Limit = evallog.LimitFromTracker(st.Err)
	}

	if len(r.task.Scorers) > 0 {
		record.Scores = r.runScorers(ctx, snap, item.Sample.Target)
	}

	if r.task.Buffer != nil {
		_ = r.task.Buffer.Put(ctx, runID, record)
	}

	return record, nil
}

func (r *Runner) runScorers(ctx context.Context, snap solver.Snapshot, target []string) []evallog.SampleScore {
	out := make([]evallog.SampleScore, 0, len(r.task.Scorers))
	for _, sc := range r.task.Scorers {
		score, err := sc.Score(ctx, snap, target)
		out = append(out, evallog.ScoreFromResult(sc.Name(), score, err))
	}
	return out
}

// summarize reduces every scorer's per-sample scores across samples and
// epochs (spec §4.6 "across epochs for the same sample") into the log's
// closing results section.
func (r *Runner) summarize(samples []evallog.EvalSample) evallog.Results {
	results := evallog.Results{TotalSamples: len(samples)}
	for _, s := range samples {
		if s.Completed && s.Error == "" {
			results.CompletedSamples++
		}
	}

	for _, sc := range r.task.Scorers {
		name := sc.Name()
		var scores []scorer.Score
		var sampleIDsForScorer []any
		for _, s := range samples {
			for _, recorded := range s.Scores {
				if recorded.Scorer != name || recorded.Error != "" {
					continue
				}
				scores = append(scores, scoreFromSample(recorded))
				sampleIDsForScorer = append(sampleIDsForScorer, s.ID)
			}
		}
		if len(scores) == 0 {
			continue
		}

		reducerName := r.task.Reducers[name]
		if reducerName == "" {
			reducerName = "mean"
		}
		reduceFn, ok := scorer.Reducers[reducerName]
		if !ok {
			reduceFn = scorer.Mean
			reducerName = "mean"
		}

		metrics := map[string]any{reducerName: reduceFn(scores)}
		groups, order := scorer.GroupBySample(sampleIDsForScorer, scores)
		for _, k := range r.task.PassAtK {
			if len(order) == 0 {
				continue
			}
			var total float64
			for _, id := range order {
				total += scorer.PassAtK(groups[id], k)
			}
			metrics[fmt.Sprintf("pass_at_%d", k)] = total / float64(len(order))
		}

		for _, id := range order {
			results.SampleReductions = append(results.SampleReductions, evallog.SampleReduction{
				SampleID: id,
				Value:    scorer.Mean(groups[id]),
			})
		}
		results.Scores = append(results.Scores, evallog.ScoreSummary{
			Name:    name,
			Scorer:  name,
			Reducer: reducerName,
			Metrics: metrics,
		})
	}
	return results
}

func scoreFromSample(s evallog.SampleScore) scorer.Score {
	v := scorer.Value{}
	switch val := s.Value.(type) {
	case bool:
		v = scorer.BoolValue(val)
	case float64:
		v = scorer.NumberValue(val)
	case string:
		v = scorer.StringValue(val)
	case map[string]any:
		v = scorer.Value{Object: val}
	}
	return scorer.Score{Value: v, Answer: s.Answer, Explanation: s.Explanation, Metadata: s.Metadata}
}

func aggregateUsage(samples []evallog.EvalSample) map[string]model.TokenUsage {
	out := map[string]model.TokenUsage{}
	for _, s := range samples {
		key := "unknown"
		if s.Output != nil && s.Output.Model != "" {
			key = s.Output.Model
		}
		u := out[key]
		u.InputTokens += s.ModelUsage.InputTokens
		u.OutputTokens += s.ModelUsage.OutputTokens
		u.TotalTokens += s.ModelUsage.TotalTokens
		u.ReasoningTokens += s.ModelUsage.ReasoningTokens
		u.CacheReadTokens += s.ModelUsage.CacheReadTokens
		u.CacheWriteTokens += s.ModelUsage.CacheWriteTokens
		out[key] = u
	}
	return out
}

func toolDefinitions(tools []tooldispatch.Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	out := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		out = append(out, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.ParameterSchema(),
		})
	}
	return out
}

// materializeFiles writes a sample's declared Files into its sandbox
// before any solver runs (spec §4.5 "Files are written... before the
// solver chain starts"). A FileRef naming an external Path is read from
// local disk; dataset.FileRef's doc comment describes this as content the
// engine "must fetch lazily" rather than requiring it inline in the
// sample.
func materializeFiles(ctx context.Context, sb sandbox.Sandbox, files map[string]dataset.FileRef) error {
	for path, ref := range files {
		data := ref.Bytes
		if len(data) == 0 && ref.Path != "" {
			b, err := os.ReadFile(ref.Path)
			if err != nil {
				return fmt.Errorf("eval: read file ref %s: %w", ref.Path, err)
			}
			data = b
		}
		if err := sb.WriteFile(ctx, path, data); err != nil {
			return fmt.Errorf("eval: write sandbox file %s: %w", path, err)
		}
	}
	return nil
}

func sampleIDs(samples []dataset.Sample) []any {
	out := make([]any, len(samples))
	for i, s := range samples {
		out[i] = s.ID
	}
	return out
}
