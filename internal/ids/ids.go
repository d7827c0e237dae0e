// Package ids generates stable identifiers for runs, spans, and samples.
package ids

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// NewRunID returns a globally unique identifier for one evaluation run
// (one invocation of the orchestrator across possibly many tasks).
func NewRunID() string {
	return uuid.NewString()
}

// NewSampleUUID returns a globally unique identifier for a single
// (sample, epoch) execution, independent of the user-facing sample id.
func NewSampleUUID() string {
	return uuid.NewString()
}

// spanSeq is a process-wide monotonic counter used to mint span ids. Spans
// only need to be unique and ordered within a single sample's event stream,
// but a process-wide counter is simpler than threading a per-sample
// generator through every call site and remains monotonic across samples.
var spanSeq uint64

// NewSpanID returns a monotonically increasing span identifier unique within
// this process.
func NewSpanID() int64 {
	return int64(atomic.AddUint64(&spanSeq, 1))
}

// SampleKey formats the stable (id, epoch) pair used to test sample identity
// (spec invariant: exactly one EvalSample record per (sample_id, epoch)).
func SampleKey(sampleID any, epoch int) string {
	return fmt.Sprintf("%v#%d", sampleID, epoch)
}
