// Package retryctl implements the retry controller of spec §4.8: given a
// prior EvalLog whose run did not reach status "success", it rebuilds
// which (sample id, epoch) pairs are already completed and filters a fresh
// scheduler.Item list down to the ones that still need to execute.
//
// Grounded on runtime/agent/run/snapshot.go's "derived view recomputed by
// replaying the event log" idiom: just as a Snapshot is never trusted as
// stored state but rebuilt from the append-only run log, the retry
// controller never trusts prior scheduler bookkeeping and instead
// recomputes "which samples are done" by reading the durable log
// directly.
package retryctl

import (
	"fmt"

	"github.com/evalforge/evalforge/evallog"
	"github.com/evalforge/evalforge/scheduler"
)

// Plan is the result of resolving a prior log against a fresh item list.
type Plan struct {
	// TaskID is inherited unchanged from the prior log (spec §4.8 "the
	// new eval inherits task_id from the prior log").
	TaskID string
	// Remaining are the (sample, epoch) pairs that still need to run.
	Remaining []scheduler.Item
	// Completed are the prior log's successfully completed sample
	// records, to be merged verbatim into the new log's result set.
	Completed []evallog.EvalSample
	// Warning is non-empty when sample reuse was disabled because the
	// prior log's dataset was shuffled (spec §4.8 precondition: "if
	// shuffling was detected in the prior log, sample reuse is disabled
	// and a warning is emitted").
	Warning string
}

// ErrAlreadySucceeded is returned when the prior log's status is already
// "success"; spec §4.8 only defines retry for status != success.
var ErrAlreadySucceeded = fmt.Errorf("retryctl: prior log already succeeded, nothing to retry")

// Resolve loads the prior log at path and filters items down to the
// (sample, epoch) pairs not marked completed in it. items must be the full,
// epoch-expanded item list for the task being retried (i.e.
// Scheduler.Items applied to the task's current dataset), so identity
// comparisons line up against the prior log's stable sample ids.
func Resolve(path string, items []scheduler.Item) (Plan, error) {
	doc, err := evallog.ReadLog(path)
	if err != nil {
		return Plan{}, err
	}
	return ResolveDocument(doc, items)
}

// ResolveDocument is Resolve with an already-loaded Document, for callers
// that read the log themselves (e.g. to also recover the task's original
// dataset identity before loading it).
func ResolveDocument(doc evallog.Document, items []scheduler.Item) (Plan, error) {
	if doc.Status == evallog.StatusSuccess {
		return Plan{}, ErrAlreadySucceeded
	}

	plan := Plan{TaskID: doc.Eval.TaskID}

	if doc.Eval.Dataset.Shuffled {
		plan.Remaining = items
		plan.Warning = "dataset shuffling detected in prior log; sample identity is not stable across runs, so sample reuse is disabled and every sample will be retried"
		return plan, nil
	}

	done := make(map[string]evallog.EvalSample, len(doc.Samples))
	for _, s := range doc.Samples {
		if s.Completed && s.Error == "" {
			done[s.Key()] = s
		}
	}

	for _, item := range items {
		key := scheduler.SampleKey(item.Sample.ID, item.Epoch)
		if s, ok := done[key]; ok {
			plan.Completed = append(plan.Completed, s)
			continue
		}
		plan.Remaining = append(plan.Remaining, item)
	}
	return plan, nil
}

// Merge combines a retry's freshly produced samples with the preserved
// samples carried over from the prior log, ordered by the original item
// list's admission order, so the final log reads the same as if the whole
// run had executed in one pass (spec §4.8 "final log contains 100
// samples... sample records for the original 70 are preserved").
func Merge(items []scheduler.Item, completed []evallog.EvalSample, fresh []evallog.EvalSample) []evallog.EvalSample {
	byKey := make(map[string]evallog.EvalSample, len(completed)+len(fresh))
	for _, s := range completed {
		byKey[s.Key()] = s
	}
	for _, s := range fresh {
		byKey[s.Key()] = s
	}
	out := make([]evallog.EvalSample, 0, len(items))
	for _, item := range items {
		key := scheduler.SampleKey(item.Sample.ID, item.Epoch)
		if s, ok := byKey[key]; ok {
			out = append(out, s)
		}
	}
	return out
}
