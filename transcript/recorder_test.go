package transcript_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/transcript"
)

func TestRecorderMonotonicTimestamps(t *testing.T) {
	ctx := context.Background()
	tick := time.Unix(0, 0)
	rec := transcript.New("1#1", func() time.Time {
		t := tick
		tick = tick.Add(time.Millisecond)
		return t
	})

	require.NoError(t, rec.Append(ctx, transcript.Event{Kind: transcript.KindInfo, Message: "a"}))
	require.NoError(t, rec.Append(ctx, transcript.Event{Kind: transcript.KindInfo, Message: "b"}))

	events := rec.Events()
	require.Len(t, events, 2)
	assert.False(t, events[1].Timestamp.Before(events[0].Timestamp))
}

func TestRecorderSpansBalance(t *testing.T) {
	ctx := context.Background()
	rec := transcript.New("1#1", nil)

	end := rec.BeginSpan(ctx, transcript.SpanKindSolver)
	require.Equal(t, 1, rec.OpenSpans())
	end(ctx)
	require.Equal(t, 0, rec.OpenSpans())

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, transcript.KindSpanBegin, events[0].Kind)
	assert.Equal(t, transcript.KindSpanEnd, events[1].Kind)
	assert.Equal(t, events[0].SpanID, events[1].SpanID)
}

func TestRecorderSpanEndWithoutBeginErrors(t *testing.T) {
	rec := transcript.New("1#1", nil)
	err := rec.Append(context.Background(), transcript.Event{Kind: transcript.KindSpanEnd})
	require.Error(t, err)
}

func TestRecorderFanOutStopsAtFirstSinkError(t *testing.T) {
	ctx := context.Background()
	rec := transcript.New("1#1", nil)

	var calls int
	boom := errors.New("boom")
	rec.AddSink(transcript.SinkFunc(func(ctx context.Context, key string, e transcript.Event) error {
		calls++
		return boom
	}))
	rec.AddSink(transcript.SinkFunc(func(ctx context.Context, key string, e transcript.Event) error {
		calls++
		return nil
	}))

	err := rec.Append(ctx, transcript.Event{Kind: transcript.KindInfo})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	// The event is retained locally even though a sink failed.
	assert.Len(t, rec.Events(), 1)
}
