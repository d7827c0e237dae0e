// Package modelgateway implements the retry-wrapped, rate-limited,
// cache-aware facade over a model.Api described in spec §4.4. It is the
// only caller of a provider's Generate method; solvers call Gateway.Generate
// instead of talking to a model.Api directly.
package modelgateway

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/limits"
	"github.com/evalforge/evalforge/model"
)

// Clock abstracts time for deterministic retry tests.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryPolicy configures the gateway's full-jitter exponential backoff
// (spec §4.4 "Retry policy"): start at BaseDelay, double up to MaxDelay,
// bounded in total by Timeout.
type RetryPolicy struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Timeout    time.Duration
	MaxRetries int
}

// DefaultRetryPolicy matches spec §4.4 literally: 3s base, 30s cap.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		BaseDelay:  3 * time.Second,
		MaxDelay:   30 * time.Second,
		Timeout:    5 * time.Minute,
		MaxRetries: 10,
	}
}

// Gateway wraps a model.Api with bounded per-model concurrency, retry,
// content-addressed caching, and usage/working-time accounting (spec §4.4).
type Gateway struct {
	provider model.Api
	sem      chan struct{}
	limiter  *rate.Limiter
	retry    RetryPolicy
	cache    Cache
	clock    Clock
	rand     *rand.Rand
	randMu   sync.Mutex
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(g *Gateway) { g.retry = p }
}

// WithCache attaches a Cache backend. Without one, calls are never cached.
func WithCache(c Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithClock overrides the gateway's clock, for deterministic tests.
func WithClock(c Clock) Option {
	return func(g *Gateway) { g.clock = c }
}

// WithRateLimiter bounds the sustained request rate in addition to the
// concurrency cap, mirroring features/model/middleware's adaptive limiter
// but configured statically here; the gateway has no adaptive (AIMD) mode.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// New constructs a Gateway bounding concurrent calls to provider at
// maxConnections (spec §4.4 (a)). maxConnections <= 0 means "use
// provider.MaxConnections()".
func New(provider model.Api, maxConnections int, opts ...Option) *Gateway {
	if maxConnections <= 0 {
		maxConnections = provider.MaxConnections()
	}
	if maxConnections <= 0 {
		maxConnections = 1
	}
	g := &Gateway{
		provider: provider,
		sem:      make(chan struct{}, maxConnections),
		retry:    DefaultRetryPolicy(),
		clock:    realClock{},
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Request bundles the inputs a Gateway.Generate call needs beyond the
// message transcript, matching the fields the content-addressed cache
// fingerprints (spec §4.4 (c)).
type Request struct {
	Messages   []dataset.ChatMessage
	Tools      []model.ToolDefinition
	ToolChoice *model.ToolChoice
	Config     model.Config
	ModelID    string
	Epoch      int
	PerEpoch   bool
	Scope      []string
}

// Generate performs one model call through the gateway: it consults the
// cache, then waits for a concurrency slot (reporting the wait to tracker as
// non-working time per spec §4.3/§4.4 (e)), and retries transient provider
// errors with full-jitter exponential backoff before giving up.
func (g *Gateway) Generate(ctx context.Context, req Request, tracker *limits.Tracker) (*model.Output, error) {
	if g.cache != nil {
		key := Fingerprint(req)
		if out, ok := g.cache.Get(ctx, key); ok {
			cached := *out
			cached.CacheHit = true
			cached.Usage = model.TokenUsage{}
			return &cached, nil
		}
	}

	if err := g.acquireSlot(ctx, tracker); err != nil {
		return nil, err
	}
	defer func() { <-g.sem }()

	if g.limiter != nil {
		waitStart := g.clock.Now()
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		if tracker != nil {
			tracker.AddWait(g.clock.Now().Sub(waitStart))
		}
	}

	out, err := g.generateWithRetry(ctx, req, tracker)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.Set(ctx, Fingerprint(req), out)
	}
	return out, nil
}

func (g *Gateway) acquireSlot(ctx context.Context, tracker *limits.Tracker) error {
	select {
	case g.sem <- struct{}{}:
		return nil
	default:
	}
	start := g.clock.Now()
	select {
	case g.sem <- struct{}{}:
		if tracker != nil {
			tracker.AddWait(g.clock.Now().Sub(start))
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) generateWithRetry(ctx context.Context, req Request, tracker *limits.Tracker) (*model.Output, error) {
	deadline := g.clock.Now().Add(g.retry.Timeout)
	delay := g.retry.BaseDelay

	for attempt := 0; ; attempt++ {
		out, err := g.provider.Generate(ctx, req.Messages, req.Tools, req.ToolChoice, req.Config)
		if err == nil {
			return out, nil
		}
		if !g.isRetryable(err) {
			return nil, err
		}
		if attempt >= g.retry.MaxRetries || g.clock.Now().After(deadline) {
			return nil, errors.Join(model.ErrRateLimited, err)
		}

		wait := g.fullJitter(delay)
		if tracker != nil {
			tracker.AddWait(wait)
		}
		if sleepErr := g.clock.Sleep(ctx, wait); sleepErr != nil {
			return nil, sleepErr
		}

		delay = time.Duration(math.Min(float64(delay*2), float64(g.retry.MaxDelay)))
	}
}

func (g *Gateway) isRetryable(err error) bool {
	if g.provider.IsRetryable(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// fullJitter implements the "full jitter" backoff formula: a uniformly
// random duration in [0, cap], per spec §4.4's "full-jitter exponential
// backoff" phrasing.
func (g *Gateway) fullJitter(cap time.Duration) time.Duration {
	if cap <= 0 {
		return 0
	}
	g.randMu.Lock()
	defer g.randMu.Unlock()
	return time.Duration(g.rand.Int63n(int64(cap) + 1))
}
