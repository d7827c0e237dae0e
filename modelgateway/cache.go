package modelgateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/evalforge/evalforge/dataset"
	"github.com/evalforge/evalforge/model"
)

// Cache is the content-addressed store described in spec §4.4 (c)/(d): keyed
// by a stable fingerprint of (model id+version, full message sequence, tool
// set, tool choice, generate config, epoch when per-epoch, optional scope
// labels), values are serialized model.Output.
type Cache interface {
	Get(ctx context.Context, key string) (*model.Output, bool)
	Set(ctx context.Context, key string, out *model.Output)
	// Invalidate removes every entry whose scope includes any of labels.
	Invalidate(ctx context.Context, labels ...string)
}

// Fingerprint computes the stable cache key for req. Message content is
// normalized before hashing so whitespace is preserved exactly (spec §4.4
// "Fingerprint stability") while Go map iteration order never leaks into the
// digest: tool definitions are sorted by name, and tool parameter maps and
// tool-call arguments are serialized through canonicalizeJSON, whose
// json.Marshal emits map keys in sorted order.
func Fingerprint(req Request) string {
	type canonical struct {
		Model      string
		Messages   []messageView
		Tools      []toolView
		ToolChoice *model.ToolChoice
		Config     model.Config
		Epoch      int
		PerEpoch   bool
		Scope      []string
	}

	c := canonical{
		Model:      req.ModelID,
		ToolChoice: req.ToolChoice,
		Config:     req.Config,
		Epoch:      req.Epoch,
		PerEpoch:   req.PerEpoch,
		Scope:      append([]string(nil), req.Scope...),
	}
	sort.Strings(c.Scope)
	for _, m := range req.Messages {
		c.Messages = append(c.Messages, canonicalizeMessage(m))
	}
	for _, td := range req.Tools {
		c.Tools = append(c.Tools, toolView{
			Name:        td.Name,
			Description: td.Description,
			Schema:      canonicalizeJSON(td.Parameters),
		})
	}
	sort.Slice(c.Tools, func(i, j int) bool { return c.Tools[i].Name < c.Tools[j].Name })

	b, _ := json.Marshal(c)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

type messageView struct {
	Role      string
	Text      string
	ToolCalls []toolCallView
}

type toolCallView struct {
	ID       string
	Function string
	Args     string
}

type toolView struct {
	Name        string
	Description string
	Schema      string
}

func canonicalizeMessage(m dataset.ChatMessage) messageView {
	view := messageView{Role: string(m.Role), Text: m.Content()}
	for _, tc := range m.ToolCalls {
		view.ToolCalls = append(view.ToolCalls, toolCallView{
			ID:       tc.ID,
			Function: tc.Function,
			Args:     canonicalizeJSON(tc.Arguments),
		})
	}
	return view
}

// canonicalizeJSON marshals v to a stable string. json.Marshal already
// sorts map[string]any keys alphabetically, so two semantically identical
// schemas hash identically regardless of Go's randomized map iteration
// order.
func canonicalizeJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// InMemoryCache is the default Cache backend: a process-local map guarded by
// a mutex, with optional TTL-based expiry (spec §4.4 "Expiry is either
// absolute... or 'never'").
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	output    *model.Output
	expiresAt time.Time // zero means never
	scope     []string
}

// NewInMemoryCache constructs an empty InMemoryCache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{entries: make(map[string]cacheEntry)}
}

// Get implements Cache.
func (c *InMemoryCache) Get(_ context.Context, key string) (*model.Output, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.output, true
}

// Set implements Cache, storing the entry forever. Use SetWithExpiry for an
// expiry time and scope labels.
func (c *InMemoryCache) Set(_ context.Context, key string, out *model.Output) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{output: out}
}

// SetWithExpiry stores the entry with an absolute expiry and scope labels
// used for selective invalidation.
func (c *InMemoryCache) SetWithExpiry(key string, out *model.Output, expiresAt time.Time, scope ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{output: out, expiresAt: expiresAt, scope: scope}
}

// Invalidate implements Cache.
func (c *InMemoryCache) Invalidate(_ context.Context, labels ...string) {
	want := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		want[l] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		for _, s := range e.scope {
			if _, ok := want[s]; ok {
				delete(c.entries, k)
				break
			}
		}
	}
}
