// Package scheduler implements the sample scheduler described in spec
// §4.1: a bounded-concurrency admission loop that drives every
// (sample, epoch) pair through a caller-supplied driver function,
// enforcing max_samples/max_sandboxes and the fail_on_error recovery
// policy. max_tasks is not enforced here.
//
// Grounded on the teacher's runtime/agent/run package (per-run lifecycle
// bookkeeping) and runtime/agent/runtime.Runtime's registration/dispatch
// shape, simplified from Temporal-workflow dispatch to the plain
// cooperative-goroutine admission loop spec §5 mandates ("This is *not* a
// thread-pool design" — concurrency is structured as eval -> tasks ->
// samples, not a generic worker pool).
package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/evallog"
	"github.com/evalforge/evalforge/internal/ids"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/telemetry"
)

// Config bounds the scheduler's concurrency and governs its failure
// recovery policy (spec §4.1).
type Config struct {
	// MaxSamples bounds parallel samples in flight. <= 0 means unbounded.
	MaxSamples int
	// MaxSandboxes bounds parallel sandbox-bearing samples in flight.
	// <= 0 means unbounded. When set, effective MaxSamples <= MaxSandboxes
	// for samples that participate in the sandbox-derived slot (spec §4.1
	// "When max_sandboxes is set, effective max_samples <= max_sandboxes").
	MaxSandboxes int
	// CountSandboxlessSamples resolves spec §9's open question: whether
	// samples declaring no sandbox also consume the sandbox-derived
	// effective max_samples slot. Default false (see DESIGN.md decision).
	CountSandboxlessSamples bool
	// Epochs is the repetition count; (sample id, epoch) pairs are
	// produced interleaved by epoch (all epoch 1, then all epoch 2, ...)
	// unless Shuffle is set (spec §4.1 "Fairness").
	Epochs int
	// Shuffle randomizes item order at admission time instead of the
	// default epoch-interleaved order.
	Shuffle bool
	// Rand supplies the shuffle source; nil uses a time-seeded default.
	Rand *rand.Rand
	// FailOnError governs continuation after an unexpected sample error
	// (spec §4.1 table). The zero value behaves like FailAlways.
	FailOnError FailOnError
}

// Item is one admitted (sample, epoch) unit of work.
type Item struct {
	Sample dataset.Sample
	Epoch  int
}

// SampleFunc drives one sample to completion and returns its durable
// record. A non-nil error that is not a *limits.Exceeded is treated as an
// unexpected sample error under FailOnError; a *limits.Exceeded error is
// never counted as a failure (spec §4.1 "the sample is marked
// limit-complete... and the scheduler continues").
type SampleFunc func(ctx context.Context, item Item) (evallog.EvalSample, error)

// Scheduler drives a set of Items through a SampleFunc with bounded
// concurrency.
type Scheduler struct {
	cfg Config
}

// New constructs a Scheduler.
func New(cfg Config) *Scheduler { return &Scheduler{cfg: cfg} }

// Items expands samples into epoch-multiplied, (by default) epoch-
// interleaved Items (spec §4.1 "epoch-multiplied samples are enqueued
// interleaved").
func (s *Scheduler) Items(samples []dataset.Sample) []Item {
	epochs := s.cfg.Epochs
	if epochs <= 0 {
		epochs = 1
	}
	items := make([]Item, 0, len(samples)*epochs)
	for e := 1; e <= epochs; e++ {
		for _, sample := range samples {
			items = append(items, Item{Sample: sample, Epoch: e})
		}
	}
	if s.cfg.Shuffle {
		r := s.cfg.Rand
		if r == nil {
			r = rand.New(rand.NewSource(time.Now().UnixNano()))
		}
		r.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	}
	return items
}

// Result is the outcome of one Scheduler.Run call.
type Result struct {
	Samples []evallog.EvalSample
	Status  evallog.Status
	Err     error
}

// ErrCancelled is returned (wrapped) when the run aborted because the
// fail_on_error tolerance was exceeded, or the caller's context was
// cancelled.
var ErrCancelled = errors.New("scheduler: run cancelled")

// Run drives every item through fn with bounded concurrency, applying the
// fail_on_error policy and the max_samples/max_sandboxes gates (spec
// §4.1). Samples are returned sorted by their admission order, not
// completion order, so callers get a deterministic Results.samples
// ordering regardless of goroutine scheduling.
func (s *Scheduler) Run(ctx context.Context, items []Item, fn SampleFunc) Result {
	logger := telemetry.FromContext(ctx)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var sampleSem chan struct{}
	if s.cfg.MaxSamples > 0 {
		sampleSem = make(chan struct{}, s.cfg.MaxSamples)
	}
	var sandboxSem chan struct{}
	if s.cfg.MaxSandboxes > 0 {
		sandboxSem = make(chan struct{}, s.cfg.MaxSandboxes)
	}

	type indexed struct {
		idx    int
		sample evallog.EvalSample
	}

	var (
		mu       sync.Mutex
		results  = make([]indexed, 0, len(items))
		errCount int
		aborted  bool
		abortErr error
	)
	tolerated := s.cfg.FailOnError.maxTolerated(len(items))

	var wg sync.WaitGroup
admission:
	for idx, item := range items {
		idx, item := idx, item

		mu.Lock()
		stop := aborted
		mu.Unlock()
		if stop {
			break
		}

		wantsSandbox := item.Sample.Sandbox != nil || s.cfg.CountSandboxlessSamples
		if sandboxSem != nil && wantsSandbox {
			select {
			case sandboxSem <- struct{}{}:
			case <-runCtx.Done():
				break admission
			}
		}
		if sampleSem != nil {
			select {
			case sampleSem <- struct{}{}:
			case <-runCtx.Done():
				if sandboxSem != nil && wantsSandbox {
					<-sandboxSem
				}
				break admission
			}
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if sampleSem != nil {
					<-sampleSem
				}
				if sandboxSem != nil && wantsSandbox {
					<-sandboxSem
				}
			}()

			record, err := fn(runCtx, item)
			if err != nil {
				if _, isLimit := limits.As(err); !isLimit && !errors.Is(err, context.Canceled) {
					mu.Lock()
					errCount++
					exceeded := errCount > tolerated
					if exceeded && !aborted {
						aborted = true
						abortErr = err
						cancel()
					}
					mu.Unlock()
					logger.Error(runCtx, "sample failed", "sample_id", item.Sample.ID, "epoch", item.Epoch, "err", err.Error())
				}
			}

			mu.Lock()
			results = append(results, indexed{idx: idx, sample: record})
			mu.Unlock()
		}()
	}

	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].idx < results[j].idx })
	out := make([]evallog.EvalSample, len(results))
	for i, r := range results {
		out[i] = r.sample
	}

	status := evallog.StatusSuccess
	var runErr error
	if ctx.Err() != nil {
		status = evallog.StatusCancelled
		runErr = ctx.Err()
	} else if aborted {
		status = evallog.StatusError
		runErr = errors.Join(ErrCancelled, abortErr)
	}

	return Result{Samples: out, Status: status, Err: runErr}
}

// SampleKey is a convenience re-export so callers constructing Items do not
// need a separate import for identity formatting.
func SampleKey(sampleID any, epoch int) string { return ids.SampleKey(sampleID, epoch) }
