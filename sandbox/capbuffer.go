package sandbox

import "sync"

// capBuffer is an append-only, size-capped byte buffer used to enforce the
// 10 MiB exec stdout/stderr caps (spec §4.5 "Output caps") while a process
// is still running and its output is polled incrementally.
type capBuffer struct {
	mu       sync.Mutex
	buf      []byte
	limit    int
	exceeded bool
}

func newCapBuffer(limit int) *capBuffer {
	return &capBuffer{limit: limit}
}

// Write implements io.Writer. Once the cap is hit, further bytes are
// silently dropped but Exceeded() reports the overflow so callers can
// surface OutputLimitExceeded.
func (b *capBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) >= b.limit {
		b.exceeded = true
		return len(p), nil
	}
	remaining := b.limit - len(b.buf)
	if len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.exceeded = true
	} else {
		b.buf = append(b.buf, p...)
	}
	return len(p), nil
}

// Snapshot returns a copy of the buffered bytes so far.
func (b *capBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Exceeded reports whether the cap was hit.
func (b *capBuffer) Exceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exceeded
}
