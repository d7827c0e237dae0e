// Package limits implements the per-sample ceilings described in spec §4.3:
// message, token, time, working, operator, and context limits. Crossing any
// limit raises an Exceeded error carrying the kind so the scorer phase can
// still run against whatever state exists when the sample stopped.
package limits

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Which identifies a tracked limit kind.
type Which string

const (
	// Message bounds the count of messages in the sample's state.
	Message Which = "message"
	// Token bounds the sum of total tokens across completed generations.
	Token Which = "token"
	// Time bounds wall-clock seconds since sample admission.
	Time Which = "time"
	// Working bounds wall-clock seconds excluding reported waits.
	Working Which = "working"
	// Operator is an explicit "stop sample" signal from a scorer/tool/human.
	Operator Which = "operator"
	// Context indicates the model reported context overflow.
	Context Which = "context"
)

// Exceeded is raised when a tracked limit is crossed. It is a sentinel-style
// typed error (spec §7 "LimitExceeded{which}"); callers use errors.As to
// recover Which and the terminal values for scoring/logging.
type Exceeded struct {
	Which Which
	Value float64
	Bound float64
}

// Error implements the error interface.
func (e *Exceeded) Error() string {
	return fmt.Sprintf("limits: %s limit exceeded (%.0f > %.0f)", e.Which, e.Value, e.Bound)
}

// Config declares the ceilings in force for one sample. A zero value in any
// field means "no limit" for that kind.
type Config struct {
	Messages int
	Tokens   int
	Time     time.Duration
	Working  time.Duration
}

// Tracker accumulates the values that Config bounds for a single sample. A
// Tracker is created once per (sample, epoch) at admission time and
// discarded with the TaskState it belongs to.
//
// Tracker is safe for concurrent use: parallel tool calls and the gateway's
// background retry accounting may update it concurrently (spec §5).
type Tracker struct {
	mu sync.Mutex

	cfg Config

	messages int
	tokens   int

	admittedAt time.Time
	nonWorking time.Duration

	operatorStop bool
	contextStop  bool

	now func() time.Time
}

// New constructs a Tracker for one sample, starting its wall-clock budgets
// at the current time (or at the injected clock's current value in tests).
func New(cfg Config, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{cfg: cfg, admittedAt: now(), now: now}
}

// AddMessages records that n messages were appended to the sample's state
// and returns an Exceeded error if the message limit is now crossed. Spec
// §4.3 requires this check "on mutation of messages, and before each
// generate call"; callers invoke AddMessages after each mutation and
// Exceeded before each generate call.
func (t *Tracker) AddMessages(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages += n
	if t.cfg.Messages > 0 && t.messages > t.cfg.Messages {
		return &Exceeded{Which: Message, Value: float64(t.messages), Bound: float64(t.cfg.Messages)}
	}
	return nil
}

// AddTokens records usage from a completed (non-cache-hit) model generation
// and returns an Exceeded error if the token limit is now crossed.
func (t *Tracker) AddTokens(n int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens += n
	if t.cfg.Tokens > 0 && t.tokens > t.cfg.Tokens {
		return &Exceeded{Which: Token, Value: float64(t.tokens), Bound: float64(t.cfg.Tokens)}
	}
	return nil
}

// AddWait reports a duration the sample spent waiting on a shared resource
// (model gateway backoff/rate-limit, sandbox acquire queue) so it is
// excluded from "working time" per spec §4.3/§9. This is the single
// integration point working time vs total time approximation runs through;
// see DESIGN.md "Open Question decisions" item 1.
func (t *Tracker) AddWait(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nonWorking += d
}

// CheckTime returns an Exceeded error if either the time or working-time
// ceiling has been crossed as of now. Spec §4.3 requires this check
// "periodic (>= once per I/O suspension)"; callers invoke it at every
// suspension point (model call, tool dispatch, log append, sandbox exec).
func (t *Tracker) CheckTime() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := t.now().Sub(t.admittedAt)
	if t.cfg.Time > 0 && elapsed > t.cfg.Time {
		return &Exceeded{Which: Time, Value: elapsed.Seconds(), Bound: t.cfg.Time.Seconds()}
	}
	working := elapsed - t.nonWorking
	if t.cfg.Working > 0 && working > t.cfg.Working {
		return &Exceeded{Which: Working, Value: working.Seconds(), Bound: t.cfg.Working.Seconds()}
	}
	return nil
}

// StopOperator raises an operator-requested stop the next time Exceeded()
// is consulted. It models an explicit "stop sample" signal from a scorer,
// tool, or human operator (spec §4.3).
func (t *Tracker) StopOperator() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.operatorStop = true
}

// StopContext raises a context-overflow stop, recorded when the model
// reports stop_reason == model_length (spec §4.3).
func (t *Tracker) StopContext() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.contextStop = true
}

// Exceeded reports the first crossed limit, checking operator and context
// signals alongside the counted/timed limits. Limit checks are idempotent:
// calling Exceeded repeatedly after a limit has tripped keeps returning an
// equivalent error.
func (t *Tracker) Exceeded() error {
	t.mu.Lock()
	operator := t.operatorStop
	context := t.contextStop
	t.mu.Unlock()

	if operator {
		return &Exceeded{Which: Operator}
	}
	if context {
		return &Exceeded{Which: Context}
	}
	if err := t.CheckTime(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cfg.Messages > 0 && t.messages > t.cfg.Messages {
		return &Exceeded{Which: Message, Value: float64(t.messages), Bound: float64(t.cfg.Messages)}
	}
	if t.cfg.Tokens > 0 && t.tokens > t.cfg.Tokens {
		return &Exceeded{Which: Token, Value: float64(t.tokens), Bound: float64(t.cfg.Tokens)}
	}
	return nil
}

// Snapshot captures the tracker's current counters for inclusion in a
// sample's log record.
type Snapshot struct {
	Messages    int
	Tokens      int
	TotalTime   time.Duration
	WorkingTime time.Duration
}

// Snapshot returns the tracker's current values.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := t.now().Sub(t.admittedAt)
	return Snapshot{
		Messages:    t.messages,
		Tokens:      t.tokens,
		TotalTime:   elapsed,
		WorkingTime: elapsed - t.nonWorking,
	}
}

// As is a convenience wrapper around errors.As for *Exceeded, used by
// callers that only need the typed value.
func As(err error) (*Exceeded, bool) {
	var e *Exceeded
	ok := errors.As(err, &e)
	return e, ok
}
