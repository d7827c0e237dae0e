// Package compreg implements the component registry spec §9's design note
// describes: the place models, tools, scorers, and sandbox providers are
// registered before a task is resolved, so task configuration only ever
// deals in names.
//
// Named compreg, not registry: the teacher repo already has an unrelated
// top-level registry/ package (a distributed task/toolset registry
// service); this package lives at a different import path to avoid
// colliding with it (see DESIGN.md).
//
// Grounded on sandbox.Pool's three-tier default-provider-selection
// protocol (named "default" -> flagged default -> first registered),
// generalized here to every component kind instead of just sandbox
// providers, and on tooldispatch.New's name-keyed map construction for
// tools.
package compreg

import (
	"fmt"

	"github.com/evalforge/evalforge/model"
	"github.com/evalforge/evalforge/sandbox"
	"github.com/evalforge/evalforge/scorer"
	"github.com/evalforge/evalforge/tooldispatch"
)

// named generalizes the three-tier default-selection protocol sandbox.Pool
// established: an unnamed lookup resolves to, in order, (1) the entry
// registered under the literal name "default", (2) the entry flagged
// default at registration time, (3) the first entry registered.
type named[T any] struct {
	kind    string
	items   map[string]T
	order   []string
	defName string
}

func newNamed[T any](kind string) *named[T] {
	return &named[T]{kind: kind, items: make(map[string]T)}
}

func (n *named[T]) register(name string, item T, asDefault bool) {
	if _, exists := n.items[name]; !exists {
		n.order = append(n.order, name)
	}
	n.items[name] = item
	if asDefault {
		n.defName = name
	}
}

func (n *named[T]) resolve(name string) (T, error) {
	var zero T
	if name != "" {
		item, ok := n.items[name]
		if !ok {
			return zero, fmt.Errorf("compreg: no %s registered for %q", n.kind, name)
		}
		return item, nil
	}
	if item, ok := n.items["default"]; ok {
		return item, nil
	}
	if n.defName != "" {
		return n.items[n.defName], nil
	}
	if len(n.order) > 0 {
		return n.items[n.order[0]], nil
	}
	return zero, fmt.Errorf("compreg: no %s registered", n.kind)
}

func (n *named[T]) names() []string {
	out := make([]string, len(n.order))
	copy(out, n.order)
	return out
}

// Registry holds every component kind a task can reference by name:
// models, tools, scorers, and sandbox providers.
type Registry struct {
	models    *named[model.Api]
	tools     *named[tooldispatch.Tool]
	scorers   *named[scorer.Scorer]
	sandboxes *named[sandbox.Provider]
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		models:    newNamed[model.Api]("model"),
		tools:     newNamed[tooldispatch.Tool]("tool"),
		scorers:   newNamed[scorer.Scorer]("scorer"),
		sandboxes: newNamed[sandbox.Provider]("sandbox provider"),
	}
}

// RegisterModel binds a model.Api under name (spec §6's scheme-prefixed
// provider identifiers, e.g. "openai/gpt-4o", "anthropic/claude-3-5").
func (r *Registry) RegisterModel(name string, api model.Api) { r.models.register(name, api, false) }

// RegisterDefaultModel registers api and flags it as the fallback used
// when a task names no model.
func (r *Registry) RegisterDefaultModel(name string, api model.Api) {
	r.models.register(name, api, true)
}

// Model resolves a model by name using the three-tier default protocol.
func (r *Registry) Model(name string) (model.Api, error) { return r.models.resolve(name) }

// ModelNames lists registered model names in registration order.
func (r *Registry) ModelNames() []string { return r.models.names() }

// RegisterTool binds a tool under its own Name().
func (r *Registry) RegisterTool(t tooldispatch.Tool) { r.tools.register(t.Name(), t, false) }

// Tools resolves a set of tool names to Tool implementations, in the order
// requested, for building a tooldispatch.Dispatcher scoped to one task.
func (r *Registry) Tools(names []string) ([]tooldispatch.Tool, error) {
	out := make([]tooldispatch.Tool, 0, len(names))
	for _, name := range names {
		t, err := r.tools.resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ToolNames lists every registered tool name in registration order.
func (r *Registry) ToolNames() []string { return r.tools.names() }

// RegisterScorer binds a scorer under its own Name().
func (r *Registry) RegisterScorer(s scorer.Scorer) { r.scorers.register(s.Name(), s, false) }

// Scorer resolves a scorer by name.
func (r *Registry) Scorer(name string) (scorer.Scorer, error) { return r.scorers.resolve(name) }

// Scorers resolves a set of scorer names, in the order requested, the way
// a task declares the scorers it wants applied to each sample.
func (r *Registry) Scorers(names []string) ([]scorer.Scorer, error) {
	out := make([]scorer.Scorer, 0, len(names))
	for _, name := range names {
		s, err := r.scorers.resolve(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ScorerNames lists every registered scorer name in registration order.
func (r *Registry) ScorerNames() []string { return r.scorers.names() }

// RegisterSandboxProvider binds a sandbox.Provider under its own Name().
func (r *Registry) RegisterSandboxProvider(p sandbox.Provider) {
	r.sandboxes.register(p.Name(), p, false)
}

// RegisterDefaultSandboxProvider registers p and flags it as the fallback
// provider for an unnamed sandbox.Spec, mirroring sandbox.Pool's own
// RegisterDefault. Callers that build a sandbox.Pool from this registry's
// providers should call Pool.RegisterDefault for whichever provider this
// method names as default, to keep both selection protocols in sync.
func (r *Registry) RegisterDefaultSandboxProvider(p sandbox.Provider) {
	r.sandboxes.register(p.Name(), p, true)
}

// SandboxProvider resolves a sandbox provider by name.
func (r *Registry) SandboxProvider(name string) (sandbox.Provider, error) {
	return r.sandboxes.resolve(name)
}

// SandboxProviders returns every registered sandbox provider in
// registration order, for seeding a sandbox.Pool.
func (r *Registry) SandboxProviders() []sandbox.Provider {
	out := make([]sandbox.Provider, 0, len(r.sandboxes.order))
	for _, name := range r.sandboxes.order {
		out = append(out, r.sandboxes.items[name])
	}
	return out
}

// SandboxProviderNames lists every registered sandbox provider name in
// registration order.
func (r *Registry) SandboxProviderNames() []string { return r.sandboxes.names() }
