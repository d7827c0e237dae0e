package sandbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evalforge/evalforge/sandbox"
)

type fakeProvider struct {
	name string
}

func (p fakeProvider) Name() string { return p.name }
func (p fakeProvider) Acquire(ctx context.Context, spec sandbox.Spec) (sandbox.Sandbox, error) {
	return fakeSandbox{}, nil
}

type fakeSandbox struct{}

func (fakeSandbox) Exec(context.Context, sandbox.ExecRequest) (sandbox.ExecResult, error) {
	return sandbox.ExecResult{Success: true}, nil
}
func (fakeSandbox) WriteFile(context.Context, string, []byte) error     { return nil }
func (fakeSandbox) ReadFile(context.Context, string) ([]byte, error)   { return nil, nil }
func (fakeSandbox) Connection(context.Context) (sandbox.Connection, error) {
	return nil, nil
}
func (fakeSandbox) Close(context.Context) error { return nil }

func TestPoolResolvesExplicitDefaultName(t *testing.T) {
	p := sandbox.NewPool(0)
	p.Register(fakeProvider{name: "local"})
	p.Register(fakeProvider{name: "default"})

	sb, release, err := p.Acquire(context.Background(), sandbox.Spec{})
	require.NoError(t, err)
	defer release()
	assert.NotNil(t, sb)
}

func TestPoolFallsBackToFirstRegisteredProvider(t *testing.T) {
	p := sandbox.NewPool(0)
	p.Register(fakeProvider{name: "docker"})
	p.Register(fakeProvider{name: "k8s"})

	sb, release, err := p.Acquire(context.Background(), sandbox.Spec{})
	require.NoError(t, err)
	defer release()
	assert.NotNil(t, sb)
}

func TestPoolBoundsConcurrentAcquisitions(t *testing.T) {
	p := sandbox.NewPool(1)
	p.RegisterDefault(fakeProvider{name: "docker"})

	_, release1, err := p.Acquire(context.Background(), sandbox.Spec{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = p.Acquire(ctx, sandbox.Spec{})
	assert.Error(t, err, "second acquisition should block and observe cancellation")

	release1()
}
