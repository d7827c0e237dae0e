// Package pulse publishes transcript events to goa.design/pulse streams for
// cross-process live tailing, the `hooks/pulse` row of SPEC_FULL.md's
// DOMAIN STACK table. Grounded directly on
// features/stream/pulse/sink.go and its
// features/stream/pulse/clients/pulse client wrapper, retargeted from the
// teacher's stream.Event interface to this engine's concrete
// transcript.Event type.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"

	"github.com/evalforge/evalforge/transcript"
)

// Envelope wraps one transcript event for transmission over a Pulse
// stream.
type Envelope struct {
	SampleKey string          `json:"sample_key"`
	Kind      string          `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	SpanID    int64           `json:"span_id"`
	ParentID  int64           `json:"parent_id,omitempty"`
	Payload   transcript.Event `json:"payload"`
}

// Stream is the subset of a Pulse stream this sink needs, mirroring the
// teacher's clients/pulse.Stream narrowing.
type Stream interface {
	Add(ctx context.Context, event string, payload []byte) (string, error)
}

// Client opens named Pulse streams.
type Client interface {
	Stream(name string, opts ...streamopts.Stream) (Stream, error)
}

// redisStream adapts *streaming.Stream to Stream.
type redisStream struct{ s *streaming.Stream }

func (r redisStream) Add(ctx context.Context, event string, payload []byte) (string, error) {
	return r.s.Add(ctx, event, payload)
}

// redisClient adapts a *redis.Client-backed Pulse stream factory to Client.
type redisClient struct {
	streamOpts []streamopts.Stream
	open       func(name string, opts ...streamopts.Stream) (*streaming.Stream, error)
}

func (c redisClient) Stream(name string, opts ...streamopts.Stream) (Stream, error) {
	s, err := c.open(name, append(append([]streamopts.Stream{}, c.streamOpts...), opts...)...)
	if err != nil {
		return nil, err
	}
	return redisStream{s: s}, nil
}

// NewRedisClient builds a Client whose Stream calls open Pulse streams via
// open (typically streaming.NewStream bound to a *redis.Client), avoiding a
// direct compile-time dependency on redis.Client here.
func NewRedisClient(open func(name string, opts ...streamopts.Stream) (*streaming.Stream, error), opts ...streamopts.Stream) Client {
	return redisClient{streamOpts: opts, open: open}
}

// Sink publishes transcript events into a per-run Pulse stream named
// "evalforge/run/<runID>".
type Sink struct {
	client Client
	runID  string
}

// NewSink constructs a Sink. client must be non-nil.
func NewSink(client Client, runID string) (*Sink, error) {
	if client == nil {
		return nil, errors.New("evallog/pulse: client is required")
	}
	if runID == "" {
		return nil, errors.New("evallog/pulse: run id is required")
	}
	return &Sink{client: client, runID: runID}, nil
}

// HandleEvent implements transcript.Sink.
func (s *Sink) HandleEvent(ctx context.Context, sampleKey string, event transcript.Event) error {
	stream, err := s.client.Stream(fmt.Sprintf("evalforge/run/%s", s.runID))
	if err != nil {
		return err
	}
	env := Envelope{
		SampleKey: sampleKey,
		Kind:      string(event.Kind),
		Timestamp: event.Timestamp,
		SpanID:    event.SpanID,
		ParentID:  event.ParentID,
		Payload:   event,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	_, err = stream.Add(ctx, string(event.Kind), payload)
	return err
}
