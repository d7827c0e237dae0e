// Package solver implements the solver chain and the distinguished
// generate/tool agent loop described in spec §4.2.
package solver

import (
	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/store"
)

// State is the mutable, per-sample TaskState (spec §3 "TaskState"),
// exclusively mutated by the solver chain driving one sample; concurrent
// observers must only read through Snapshot.
type State struct {
	Messages   []dataset.ChatMessage
	Output     *model.Output
	Tools      []model.ToolDefinition
	ToolChoice *model.ToolChoice
	Store      *store.Store
	Metadata   map[string]any
	Limits     *limits.Tracker
	Completed  bool
	Err        error
}

// Snapshot is a read-only copy of State safe to hand to observers while
// the solver chain continues mutating the live State.
type Snapshot struct {
	Messages  []dataset.ChatMessage
	Completed bool
	Err       error
}

// Snapshot returns a defensive copy of the message list and terminal
// fields.
func (s *State) Snapshot() Snapshot {
	msgs := make([]dataset.ChatMessage, len(s.Messages))
	copy(msgs, s.Messages)
	return Snapshot{Messages: msgs, Completed: s.Completed, Err: s.Err}
}
