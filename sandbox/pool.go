package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/evalforge/evalforge/limits"
)

// nowFunc is a var, not a direct time.Now call, so tests could substitute a
// deterministic clock the same way modelgateway.Clock does; no test
// currently needs to, so it stays a package-level default rather than a
// constructor parameter.
var nowFunc = time.Now

// Pool bounds concurrent live environments at max_sandboxes and resolves a
// Spec to a registered Provider, including the default-provider selection
// protocol this implementation supplements onto spec §4.5 ("the sandbox
// pool picks or creates an environment matching the sample's sandbox
// spec"): an unnamed Spec resolves to, in order, (1) the provider
// explicitly registered as "default", (2) the provider registered
// through RegisterDefault, (3) the first provider registered.
type Pool struct {
	sem       chan struct{}
	providers map[string]Provider
	order     []string // registration order, for the "first declared" fallback
	defName   string
}

// NewPool constructs a Pool bounding concurrent acquisitions at
// maxSandboxes. maxSandboxes <= 0 means unbounded.
func NewPool(maxSandboxes int) *Pool {
	p := &Pool{providers: make(map[string]Provider)}
	if maxSandboxes > 0 {
		p.sem = make(chan struct{}, maxSandboxes)
	}
	return p
}

// Register adds a provider under its own Name().
func (p *Pool) Register(prov Provider) {
	if _, exists := p.providers[prov.Name()]; !exists {
		p.order = append(p.order, prov.Name())
	}
	p.providers[prov.Name()] = prov
}

// RegisterDefault adds a provider and flags it as the default used when a
// Spec names no provider and none is registered under the literal name
// "default".
func (p *Pool) RegisterDefault(prov Provider) {
	p.Register(prov)
	p.defName = prov.Name()
}

// resolveProvider implements the selection protocol documented on Pool.
func (p *Pool) resolveProvider(name string) (Provider, error) {
	if name != "" {
		prov, ok := p.providers[name]
		if !ok {
			return nil, fmt.Errorf("sandbox: no provider registered for %q", name)
		}
		return prov, nil
	}
	if prov, ok := p.providers["default"]; ok {
		return prov, nil
	}
	if p.defName != "" {
		if prov, ok := p.providers[p.defName]; ok {
			return prov, nil
		}
	}
	if len(p.order) > 0 {
		return p.providers[p.order[0]], nil
	}
	return nil, fmt.Errorf("sandbox: no provider registered and none declared a default")
}

// Acquire resolves spec to a provider, waits for a pool slot (reporting
// the wait as a suspension point per spec §5), and creates the
// environment. The returned release func must be called exactly once to
// free the pool slot regardless of how the caller tears the Sandbox down.
func (p *Pool) Acquire(ctx context.Context, spec Spec) (Sandbox, func(), error) {
	return p.AcquireTracked(ctx, spec, nil)
}

// AcquireTracked behaves exactly like Acquire but, when tracker is
// non-nil, reports any time spent waiting for a saturated pool slot via
// tracker.AddWait so that queueing on max_sandboxes is excluded from
// "working time" per spec §4.3 ("the gateway and pool report these waits
// to the tracker which subtracts them").
func (p *Pool) AcquireTracked(ctx context.Context, spec Spec, tracker *limits.Tracker) (Sandbox, func(), error) {
	prov, err := p.resolveProvider(spec.Name)
	if err != nil {
		return nil, nil, err
	}

	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
		default:
			start := nowFunc()
			select {
			case p.sem <- struct{}{}:
				if tracker != nil {
					tracker.AddWait(nowFunc().Sub(start))
				}
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}
	}
	release := func() {
		if p.sem != nil {
			<-p.sem
		}
	}

	sb, err := prov.Acquire(ctx, spec)
	if err != nil {
		release()
		return nil, nil, err
	}
	return sb, release, nil
}
