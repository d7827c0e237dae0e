package evallog

import (
	"context"
	"errors"

	"github.com/evalforge/evalforge/transcript"
)

// ErrNotFound is returned by Buffer.Get for a (runID, sampleID, epoch) key
// with no durable record.
var ErrNotFound = errors.New("evallog: sample not found")

// Buffer is the sidecar sample buffer spec §4.7/§6 describe: a keyed store
// for the EvalSample fields of currently-running samples, durable before
// each Put returns, so an external viewer can tail in-flight samples and
// so a crashed run can recover mid-flight sample state on restart.
//
// Implementations must be safe for concurrent use: different samples are
// written concurrently by the scheduler (spec §4.7 "Concurrency").
type Buffer interface {
	// Put durably stores (or replaces) the buffered record for one
	// (runID, sample, epoch). The call does not return until the write is
	// durable.
	Put(ctx context.Context, runID string, sample EvalSample) error

	// Get retrieves the buffered record, or ErrNotFound if absent.
	Get(ctx context.Context, runID string, sampleID any, epoch int) (EvalSample, error)

	// List returns every buffered record for a run, in no particular
	// order, for restart-time recovery (spec §4.7 "samples already fully
	// written to the final log are recoverable; samples mid-flight remain
	// in the buffer and can either be finalised on restart... or
	// discarded").
	List(ctx context.Context, runID string) ([]EvalSample, error)

	// Delete removes a buffered record once it has been finalised into the
	// durable log, or discarded.
	Delete(ctx context.Context, runID string, sampleID any, epoch int) error
}

// BufferSink adapts a Buffer into a transcript.Sink plus completion
// callback, feeding every appended event into the buffered record so a
// live viewer reading Buffer.Get sees events as they happen, not only once
// the sample finishes.
type BufferSink struct {
	buf      Buffer
	runID    string
	sampleID any
	epoch    int

	get func() EvalSample
	put func(EvalSample)
}

// NewBufferSink constructs a BufferSink. get/put let the caller supply the
// live EvalSample accumulator (typically held by the scheduler's per-sample
// driver) without BufferSink needing to own sample state itself.
func NewBufferSink(buf Buffer, runID string, sampleID any, epoch int, get func() EvalSample, put func(EvalSample)) *BufferSink {
	return &BufferSink{buf: buf, runID: runID, sampleID: sampleID, epoch: epoch, get: get, put: put}
}

// HandleEvent implements transcript.Sink: it appends the event to the
// live accumulator and persists the updated record, so Buffer.Get always
// reflects the sample's events up to the last Append.
func (b *BufferSink) HandleEvent(ctx context.Context, _ string, event transcript.Event) error {
	cur := b.get()
	cur.ID = b.sampleID
	cur.Epoch = b.epoch
	cur.Events = append(cur.Events, event)
	b.put(cur)
	return b.buf.Put(ctx, b.runID, cur)
}
