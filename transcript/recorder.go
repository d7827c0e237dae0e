package transcript

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/evalforge/evalforge/internal/ids"
)

// Sink receives events as they are appended to a Recorder. The log recorder
// (package evallog) and any live-tailing hook subscriber register as sinks;
// delivery is synchronous and fail-fast, mirroring the teacher's
// hooks.Bus.Publish contract: iteration stops at the first error so a
// critical sink (durable persistence) can halt the sample.
type Sink interface {
	HandleEvent(ctx context.Context, sampleKey string, event Event) error
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(ctx context.Context, sampleKey string, event Event) error

// HandleEvent implements Sink.
func (f SinkFunc) HandleEvent(ctx context.Context, sampleKey string, event Event) error {
	return f(ctx, sampleKey, event)
}

// Recorder accumulates one sample's ordered event stream and fans each
// appended event out to registered sinks. A Recorder is created per
// (sample, epoch) and discarded once the sample is scored (spec §3
// lifecycle).
//
// Recorder enforces event monotonicity (spec invariant 3): Timestamp is
// non-decreasing and span begin/end nest strictly, because Append is the
// only mutator and it is internally serialized.
type Recorder struct {
	mu        sync.Mutex
	sampleKey string
	events    []Event
	spanStack []int64
	lastTime  time.Time
	sinks     []Sink
	now       func() time.Time
}

// New constructs a Recorder for one sample. now defaults to time.Now and is
// overridable in tests that need deterministic timestamps.
func New(sampleKey string, now func() time.Time, sinks ...Sink) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{sampleKey: sampleKey, now: now, sinks: sinks}
}

// AddSink registers an additional sink. Safe to call before any Append.
func (r *Recorder) AddSink(s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks = append(r.sinks, s)
}

// Events returns a snapshot of the events appended so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Append records a single event, stamping Timestamp and SpanID, and fans it
// out to every registered sink in registration order. It returns the first
// sink error encountered, if any; the event is still retained locally
// regardless (the transcript itself is authoritative even if a downstream
// sink fails).
func (r *Recorder) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	now := r.now()
	if now.Before(r.lastTime) {
		now = r.lastTime
	}
	r.lastTime = now
	e.Timestamp = now
	if e.SpanID == 0 {
		e.SpanID = ids.NewSpanID()
	}
	if len(r.spanStack) > 0 {
		e.ParentID = r.spanStack[len(r.spanStack)-1]
	}
	switch e.Kind {
	case KindSpanBegin:
		r.spanStack = append(r.spanStack, e.SpanID)
	case KindSpanEnd:
		if len(r.spanStack) == 0 {
			r.mu.Unlock()
			return fmt.Errorf("transcript: span end with no matching begin for sample %s", r.sampleKey)
		}
		n := len(r.spanStack)
		e.SpanID = r.spanStack[n-1]
		e.ParentID = 0
		if n > 1 {
			e.ParentID = r.spanStack[n-2]
		}
		r.spanStack = r.spanStack[:n-1]
	}
	r.events = append(r.events, e)
	sinks := make([]Sink, len(r.sinks))
	copy(sinks, r.sinks)
	sampleKey := r.sampleKey
	r.mu.Unlock()

	for _, s := range sinks {
		if err := s.HandleEvent(ctx, sampleKey, e); err != nil {
			return err
		}
	}
	return nil
}

// BeginSpan appends a KindSpanBegin event and returns a function that
// appends the matching KindSpanEnd when called. Callers typically defer the
// returned function:
//
//	end := rec.BeginSpan(ctx, transcript.SpanKindSolver)
//	defer end(ctx)
func (r *Recorder) BeginSpan(ctx context.Context, kind SpanKind) func(context.Context) {
	_ = r.Append(ctx, Event{Kind: KindSpanBegin, SpanKind: kind})
	return func(ctx context.Context) {
		_ = r.Append(ctx, Event{Kind: KindSpanEnd, SpanKind: kind})
	}
}

// OpenSpans reports the number of currently unterminated spans. Used by
// tests asserting invariant 3 (spans balanced) at sample completion.
func (r *Recorder) OpenSpans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.spanStack)
}
