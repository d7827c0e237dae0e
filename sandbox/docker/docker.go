// Package docker implements sandbox.Provider on top of testcontainers-go,
// the container lifecycle library already present in the corpus (used
// there to stand up a disposable MongoDB for integration tests).
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/evalforge/evalforge/sandbox"
)

// Provider creates sandbox.Sandbox environments backed by Docker
// containers, grounded on registry/store/mongo/mongo_test.go's
// testcontainers.GenericContainer/ContainerRequest usage.
type Provider struct{}

// New constructs a docker Provider.
func New() *Provider { return &Provider{} }

// Name implements sandbox.Provider.
func (*Provider) Name() string { return "docker" }

// Acquire implements sandbox.Provider: launches a container from
// spec.Config ("image", optionally "wait_for_log", "ports").
func (p *Provider) Acquire(ctx context.Context, spec sandbox.Spec) (sandbox.Sandbox, error) {
	image, _ := spec.Config["image"].(string)
	if image == "" {
		return nil, fmt.Errorf("sandbox/docker: spec.Config[\"image\"] is required")
	}

	req := testcontainers.ContainerRequest{
		Image: image,
	}
	if ports, ok := spec.Config["ports"].([]string); ok {
		req.ExposedPorts = ports
	}
	if waitLog, ok := spec.Config["wait_for_log"].(string); ok && waitLog != "" {
		req.WaitingFor = wait.ForLog(waitLog)
	}

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox/docker: start container: %w", err)
	}
	return &containerSandbox{container: c, preserve: spec.Preserve}, nil
}

type containerSandbox struct {
	container testcontainers.Container
	preserve  bool
}

// Exec implements sandbox.Sandbox.
func (s *containerSandbox) Exec(ctx context.Context, req sandbox.ExecRequest) (sandbox.ExecResult, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	cmd := req.Cmd
	if req.User != "" {
		cmd = append([]string{"su", req.User, "-c"}, cmd...)
	}
	exitCode, reader, err := s.container.Exec(ctx, cmd)
	if err != nil {
		return sandbox.ExecResult{}, err
	}
	out, overflow, rerr := readCapped(reader, sandbox.MaxExecOutputBytes)
	if rerr != nil {
		return sandbox.ExecResult{}, rerr
	}
	if overflow {
		return sandbox.ExecResult{}, sandbox.ErrOutputLimitExceeded
	}
	return sandbox.ExecResult{
		Stdout:   out,
		ExitCode: exitCode,
		Success:  exitCode == 0,
	}, nil
}

// WriteFile implements sandbox.Sandbox.
func (s *containerSandbox) WriteFile(ctx context.Context, path string, data []byte) error {
	return s.container.CopyToContainer(ctx, data, path, 0o644)
}

// ReadFile implements sandbox.Sandbox.
func (s *containerSandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	reader, err := s.container.CopyFileFromContainer(ctx, path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	out, overflow, err := readCapped(reader, sandbox.MaxReadFileBytes)
	if err != nil {
		return nil, err
	}
	if overflow {
		return nil, sandbox.ErrOutputLimitExceeded
	}
	return out, nil
}

// Connection implements sandbox.Sandbox; the docker provider does not
// support interactive debug connections.
func (s *containerSandbox) Connection(context.Context) (sandbox.Connection, error) {
	return nil, fmt.Errorf("sandbox/docker: interactive connections not supported")
}

// Close implements sandbox.Sandbox: tears the container down unless
// preservation was requested (spec §4.5 "Release").
func (s *containerSandbox) Close(ctx context.Context) error {
	if s.preserve {
		return nil
	}
	return s.container.Terminate(ctx)
}

func readCapped(r io.Reader, limit int) ([]byte, bool, error) {
	var buf bytes.Buffer
	lr := io.LimitReader(r, int64(limit)+1)
	if _, err := io.Copy(&buf, lr); err != nil {
		return nil, false, err
	}
	if buf.Len() > limit {
		return buf.Bytes()[:limit], true, nil
	}
	return buf.Bytes(), false, nil
}
