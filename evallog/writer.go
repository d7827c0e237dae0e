package evallog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Writer persists one run's EvalLog artifact progressively: header first,
// each EvalSample exactly once as it completes, footer last (spec §4.7
// "Streaming discipline"). The footer is never written before every
// successful sample record is durable (spec invariant, §5 ordering
// guarantee 4): Finish writes the footer only after every WriteSample call
// has returned.
//
// Writer owns a single os.File and serializes writes with a mutex; the
// file is not valid JSON until Finish succeeds, matching the "partial log on
// crash" semantics spec §4.7/§7 describe: ReadLog recovers every fully
// written sample from a file left without its footer.
type Writer struct {
	mu      sync.Mutex
	f       *os.File
	w       *bufio.Writer
	enc     *json.Encoder
	nSample int
	closed  bool
}

// Create opens path for writing and emits the opening object plus the
// header and plan sections. The file is truncated if it already exists;
// callers resuming a prior run read the old log through retryctl and
// start a new Writer for the merged result (spec §4.8
// "writes a new file").
func Create(path string, header EvalHeader, plan Plan) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := &Writer{f: f, w: bufio.NewWriter(f)}
	w.enc = json.NewEncoder(w.w)

	if _, err := fmt.Fprintf(w.w, `{"version":1,"status":%q,"eval":`, StatusStarted); err != nil {
		return nil, w.abort(err)
	}
	if err := w.enc.Encode(header); err != nil {
		return nil, w.abort(err)
	}
	if _, err := w.w.WriteString(`,"plan":`); err != nil {
		return nil, w.abort(err)
	}
	if err := w.enc.Encode(plan); err != nil {
		return nil, w.abort(err)
	}
	if _, err := w.w.WriteString(`,"samples":[`); err != nil {
		return nil, w.abort(err)
	}
	if err := w.w.Flush(); err != nil {
		return nil, w.abort(err)
	}
	if err := f.Sync(); err != nil {
		return nil, w.abort(err)
	}
	return w, nil
}

func (w *Writer) abort(cause error) error {
	_ = w.f.Close()
	return cause
}

// WriteSample appends exactly one EvalSample to the streamed array,
// flushing and fsyncing before returning so a crash immediately after
// WriteSample leaves this sample durable in the file (spec §4.7
// "Concurrency": "samples already fully written to the final log are
// recoverable").
func (w *Writer) WriteSample(s EvalSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("evallog: WriteSample after Close")
	}
	if w.nSample > 0 {
		if _, err := w.w.WriteString(","); err != nil {
			return err
		}
	}
	if err := w.enc.Encode(s); err != nil {
		return err
	}
	w.nSample++
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

// Finish closes the samples array and writes the footer sections
// (results, stats, error, final status), then closes the file. Finish may
// be called at most once; it is the single point spec invariant 4 of §5
// ("the log footer is never written before all per-sample records for
// successful samples are durable") is upheld, since every WriteSample call
// has already returned by the time the caller invokes Finish.
func (w *Writer) Finish(status Status, results *Results, stats Stats, runErr *RunError) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("evallog: Finish called twice")
	}
	w.closed = true
	defer w.f.Close()

	if _, err := w.w.WriteString(`],"results":`); err != nil {
		return err
	}
	if err := w.enc.Encode(results); err != nil {
		return err
	}
	if _, err := w.w.WriteString(`,"stats":`); err != nil {
		return err
	}
	if err := w.enc.Encode(stats); err != nil {
		return err
	}
	if _, err := w.w.WriteString(`,"error":`); err != nil {
		return err
	}
	if err := w.enc.Encode(runErr); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.w, `,"status":%q}`, status); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.f.Sync()
}

// SamplesWritten reports how many EvalSample records have been appended so
// far.
func (w *Writer) SamplesWritten() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nSample
}
