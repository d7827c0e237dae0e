// Package sandbox implements the sandbox lifecycle spec §4.5 describes:
// pluggable environment providers, an acquire/operate/release contract,
// and output-size caps on exec/read_file.
package sandbox

import (
	"context"
	"errors"
	"time"
)

// Output caps from spec §4.5 "Output caps".
const (
	MaxExecOutputBytes = 10 * 1 << 20  // 10 MiB per stdout/stderr stream
	MaxReadFileBytes   = 100 * 1 << 20 // 100 MiB
)

// ErrOutputLimitExceeded is returned by Exec/ReadFile when a stream or file
// exceeds its cap.
var ErrOutputLimitExceeded = errors.New("sandbox: output limit exceeded")

// Spec describes the environment a sample requests (spec §3 "SandboxSpec").
type Spec struct {
	// Name identifies which registered provider/template to use (e.g.
	// "docker", "local", "k8s", "proxmox").
	Name string
	// Config carries provider-specific configuration (image, compose file,
	// resource limits, ...).
	Config map[string]any
	// Preserve requests the environment survive sample completion for
	// operator inspection instead of being torn down.
	Preserve bool
}

// RetryPolicy carries a caller's exec retry-on-timeout settings. No provider
// in this module reads it: each ExecRequest runs once.
type RetryPolicy struct {
	MaxRetries int
	Idempotent bool
}

// ExecRequest describes one command execution inside a Sandbox.
type ExecRequest struct {
	Cmd     []string
	Input   []byte
	Cwd     string
	Env     map[string]string
	User    string
	Timeout time.Duration
	Retry   RetryPolicy
}

// ExecResult is the outcome of one ExecRequest.
type ExecResult struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Success  bool
}

// Connection represents an interactive debug channel into a live sandbox,
// e.g. for attaching a terminal.
type Connection interface {
	Addr() string
	Close() error
}

// Sandbox is a live, acquired environment. Every method is a suspension
// point and must unwind promptly on ctx cancellation (spec §5).
type Sandbox interface {
	Exec(ctx context.Context, req ExecRequest) (ExecResult, error)
	WriteFile(ctx context.Context, path string, data []byte) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	// Connection opens an interactive debug channel, or returns an error
	// if the provider does not support one.
	Connection(ctx context.Context) (Connection, error)
	// Close tears the environment down.
	Close(ctx context.Context) error
}

// Provider creates Sandboxes matching a Spec. Concrete implementations
// live under sandbox/docker (and, by the same interface, any future
// local/k8s/proxmox provider).
type Provider interface {
	Name() string
	Acquire(ctx context.Context, spec Spec) (Sandbox, error)
}

type ctxKey struct{}

// WithSandbox binds a sample's acquired Sandbox into ctx so tools executed
// through tooldispatch.Dispatcher can reach it without threading it through
// the Store, which only carries the tagged scalar/list/map values spec §3
// ("Value") defines for scorer/solver state, not live resource handles.
func WithSandbox(ctx context.Context, sb Sandbox) context.Context {
	return context.WithValue(ctx, ctxKey{}, sb)
}

// FromContext returns the Sandbox bound by WithSandbox, or nil if the
// sample declared none.
func FromContext(ctx context.Context) Sandbox {
	sb, _ := ctx.Value(ctxKey{}).(Sandbox)
	return sb
}
