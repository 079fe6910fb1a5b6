package worker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"golang.org/x/sys/unix"

	"courtside/internal/logging"
)

// Process is a handle to one running worker. Implementations must make Wait
// safe to call from multiple goroutines.
type Process interface {
	PID() int
	// Stdin is the request stream; Stdout the reply stream.
	Stdin() io.Writer
	Stdout() io.Reader
	// Terminate asks the process to exit (SIGTERM). Kill force-stops it.
	Terminate() error
	Kill() error
	// Wait blocks until the process exits and returns its exit error, if any.
	Wait() error
}

// Launcher creates worker processes. The pool uses it for both initial spawn
// and restarts; tests inject in-process fakes.
type Launcher interface {
	Launch(ctx context.Context, workerID string) (Process, error)
}

// ExecLauncher launches the configured worker binary with stdio pipes.
// Stderr lines are forwarded to the logger at debug level.
type ExecLauncher struct {
	Binary string
	Args   []string
	Logger *slog.Logger
}

// Launch starts the worker binary. The context only bounds startup; the
// process itself outlives it and is stopped through the Process handle.
func (l ExecLauncher) Launch(_ context.Context, workerID string) (Process, error) {
	cmd := exec.Command(l.Binary, l.Args...) //nolint:gosec
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker process: %w", err)
	}

	logger := logging.WithComponent(l.Logger, "worker-stderr")
	go forwardStderr(logger, workerID, stderr)

	return &execProcess{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func forwardStderr(logger *slog.Logger, workerID string, r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		logger.Debug(scanner.Text(), logging.String("worker", workerID))
	}
}

type execProcess struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader

	waitOnce sync.Once
	waitErr  error
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Stdin() io.Writer  { return p.stdin }
func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Signal(unix.SIGTERM)
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Wait() error {
	p.waitOnce.Do(func() {
		p.waitErr = p.cmd.Wait()
		_ = p.stdin.Close()
	})
	return p.waitErr
}
