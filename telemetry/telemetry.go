// Package telemetry is the ambient logging/metrics/tracing facade every
// engine component accepts, per SPEC_FULL.md's AMBIENT STACK section: no
// component logs through fmt.Println or the stdlib log package, and a
// no-op implementation backs tests and callers that configure nothing.
//
// Adapted from the teacher's runtime/agents/telemetry package (interfaces)
// and runtime/agent/telemetry (the Clue/OTEL-backed implementation), merged
// into one package since this engine carries a single logging facade
// rather than the teacher's two parallel trees.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the structured, leveled logging interface every engine
// component accepts, typically obtained from context via FromContext.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer/gauge helpers for sample and tool
// instrumentation (spec §2 component table; §4.6 scorer/metric concerns).
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation for transcript.Event's Span kind (spec §3
// "Event... Span (begin/end with kind)") so the transcript recorder and the
// solver chain can emit OTEL spans without depending on a concrete
// provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight trace span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

type ctxKey struct{ name string }

var loggerKey = ctxKey{"telemetry-logger"}

// WithLogger attaches a Logger to ctx; components that accept a
// context.Context pull their logger via FromContext instead of threading a
// Logger argument through every call.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext returns the Logger attached via WithLogger, or a NoopLogger
// when none was attached, so call sites never need a nil check.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok && l != nil {
		return l
	}
	return NoopLogger{}
}
