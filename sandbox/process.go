package sandbox

import (
	"context"
	"fmt"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Long-running sandbox processes are submitted over a remote JSON-RPC
// channel (spec §4.5 "Process lifecycle for long-running sandbox
// processes"). No third-party RPC library in the corpus is exercised for
// this narrow a concern (see DESIGN.md's note on github.com/nexus-rpc/
// sdk-go), so this is deliberately built on the standard library's
// net/rpc/jsonrpc instead.

// StartArgs requests a new long-running process.
type StartArgs struct {
	Cmd []string
	Cwd string
	Env map[string]string
}

// StartReply returns the new process's pid.
type StartReply struct {
	PID int
}

// PollArgs requests the latest output/status for pid.
type PollArgs struct {
	PID int
}

// PollReply carries incremental output and exit status.
type PollReply struct {
	Stdout   []byte
	Stderr   []byte
	Exited   bool
	ExitCode int
}

// KillArgs requests termination of pid's process group.
type KillArgs struct {
	PID   int
	Grace time.Duration
}

// KillReply is an empty acknowledgement.
type KillReply struct{}

// DefaultKillGrace is the default SIGTERM-to-SIGKILL grace period (spec
// §4.5: "waits up to a configurable grace (default 5s)").
const DefaultKillGrace = 5 * time.Second

// ProcessService is the sandbox-side RPC receiver. It must run inside the
// sandbox environment (or a supervisor with access to it) and is
// registered with net/rpc under the name "Process". Every process is
// started as its own group leader so Kill's SIGTERM/SIGKILL propagates to
// children (spec §4.5: "the sandbox side must create each such process as
// a group leader").
type ProcessService struct {
	mu        sync.Mutex
	processes map[int]*trackedProcess
}

type trackedProcess struct {
	cmd    *exec.Cmd
	stdout *capBuffer
	stderr *capBuffer
	done   chan struct{}
	exit   int
}

// NewProcessService constructs an empty ProcessService.
func NewProcessService() *ProcessService {
	return &ProcessService{processes: make(map[int]*trackedProcess)}
}

// Start implements the RPC method: launches cmd as a new process group
// leader and returns its pid immediately without waiting for completion.
func (s *ProcessService) Start(args StartArgs, reply *StartReply) error {
	if len(args.Cmd) == 0 {
		return fmt.Errorf("sandbox: empty command")
	}
	cmd := exec.Command(args.Cmd[0], args.Cmd[1:]...)
	cmd.Dir = args.Cwd
	for k, v := range args.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := newCapBuffer(MaxExecOutputBytes)
	stderr := newCapBuffer(MaxExecOutputBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	tp := &trackedProcess{cmd: cmd, stdout: stdout, stderr: stderr, done: make(chan struct{})}
	s.mu.Lock()
	s.processes[cmd.Process.Pid] = tp
	s.mu.Unlock()

	go func() {
		err := cmd.Wait()
		tp.exit = exitCode(cmd, err)
		close(tp.done)
	}()

	reply.PID = cmd.Process.Pid
	return nil
}

// Poll implements the RPC method: returns buffered output seen so far and
// whether the process has exited.
func (s *ProcessService) Poll(args PollArgs, reply *PollReply) error {
	s.mu.Lock()
	tp, ok := s.processes[args.PID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("sandbox: unknown pid %d", args.PID)
	}
	reply.Stdout = tp.stdout.Snapshot()
	reply.Stderr = tp.stderr.Snapshot()
	select {
	case <-tp.done:
		reply.Exited = true
		reply.ExitCode = tp.exit
	default:
	}
	return nil
}

// Kill implements the RPC method: sends SIGTERM to the process group,
// waits up to Grace (default DefaultKillGrace), then SIGKILL.
func (s *ProcessService) Kill(args KillArgs, reply *KillReply) error {
	s.mu.Lock()
	tp, ok := s.processes[args.PID]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("sandbox: unknown pid %d", args.PID)
	}
	grace := args.Grace
	if grace <= 0 {
		grace = DefaultKillGrace
	}
	pgid := -args.PID
	_ = syscall.Kill(pgid, syscall.SIGTERM)
	select {
	case <-tp.done:
		return nil
	case <-time.After(grace):
	}
	return syscall.Kill(pgid, syscall.SIGKILL)
}

func exitCode(cmd *exec.Cmd, waitErr error) int {
	if waitErr == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if ok := asExitError(waitErr, &exitErr); ok {
		return exitErr.ExitCode()
	}
	return -1
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if !ok {
		return false
	}
	*target = ee
	return true
}

// ProcessClient is the engine-side handle to a ProcessService over
// net/rpc/jsonrpc.
type ProcessClient struct {
	client *rpc.Client
}

// DialProcessService connects to a sandbox's JSON-RPC process channel at
// addr ("host:port").
func DialProcessService(addr string) (*ProcessClient, error) {
	conn, err := jsonrpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &ProcessClient{client: conn}, nil
}

// Start submits a new long-running process and returns its pid.
func (c *ProcessClient) Start(ctx context.Context, args StartArgs) (int, error) {
	var reply StartReply
	if err := c.call(ctx, "Process.Start", args, &reply); err != nil {
		return 0, err
	}
	return reply.PID, nil
}

// Poll fetches the latest buffered output/status for pid.
func (c *ProcessClient) Poll(ctx context.Context, pid int) (PollReply, error) {
	var reply PollReply
	err := c.call(ctx, "Process.Poll", PollArgs{PID: pid}, &reply)
	return reply, err
}

// Kill requests termination of pid's process group with the given grace
// period (0 means DefaultKillGrace).
func (c *ProcessClient) Kill(ctx context.Context, pid int, grace time.Duration) error {
	var reply KillReply
	return c.call(ctx, "Process.Kill", KillArgs{PID: pid, Grace: grace}, &reply)
}

// Close closes the underlying RPC connection.
func (c *ProcessClient) Close() error { return c.client.Close() }

// call performs an RPC round trip that unwinds promptly on ctx
// cancellation, since net/rpc itself has no context support (spec §5:
// "every suspension point must be cancellation-aware").
func (c *ProcessClient) call(ctx context.Context, method string, args, reply any) error {
	done := c.client.Go(method, args, reply, nil).Done
	select {
	case call := <-done:
		return call.Error
	case <-ctx.Done():
		return ctx.Err()
	}
}
