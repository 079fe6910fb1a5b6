package testsupport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"courtside/internal/worker"
)

// Behavior scripts one fake worker incarnation.
type Behavior struct {
	// StartupHang makes the incarnation swallow every request, so startup
	// probes time out.
	StartupHang bool
	// ServiceTime delays each process_frame reply.
	ServiceTime time.Duration
	// FrameResult is returned as the process_frame result payload.
	FrameResult json.RawMessage
	// Healthy gates replies: when it returns false, requests are answered
	// with success=false. Nil means always healthy.
	Healthy func() bool
}

// FakeLauncher satisfies worker.Launcher with in-process pipe-backed workers.
// Behaviors are chosen per worker id and incarnation so tests can script
// crashes and recoveries.
type FakeLauncher struct {
	// BehaviorFor picks the behavior for a given spawn. Nil means default
	// (instant, healthy replies).
	BehaviorFor func(workerID string, incarnation int) Behavior

	mu     sync.Mutex
	counts map[string]int
	live   map[string]*FakeProcess
}

// Launch creates a fake worker process.
func (l *FakeLauncher) Launch(_ context.Context, workerID string) (worker.Process, error) {
	l.mu.Lock()
	if l.counts == nil {
		l.counts = map[string]int{}
		l.live = map[string]*FakeProcess{}
	}
	incarnation := l.counts[workerID]
	l.counts[workerID]++
	var behavior Behavior
	if l.BehaviorFor != nil {
		behavior = l.BehaviorFor(workerID, incarnation)
	}
	proc := newFakeProcess(workerID, behavior)
	l.live[workerID] = proc
	l.mu.Unlock()
	return proc, nil
}

// Spawns returns how many times the given worker id has been launched.
func (l *FakeLauncher) Spawns(workerID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[workerID]
}

// Live returns the most recently launched process for a worker id.
func (l *FakeLauncher) Live(workerID string) *FakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.live[workerID]
}

// FakeProcess emulates a worker over in-memory pipes.
type FakeProcess struct {
	id       string
	behavior Behavior

	stdinR  *io.PipeReader
	stdinW  *io.PipeWriter
	stdoutR *io.PipeReader
	stdoutW *io.PipeWriter

	done     chan struct{}
	exitOnce sync.Once
	exitErr  error
}

func newFakeProcess(id string, behavior Behavior) *FakeProcess {
	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	p := &FakeProcess{
		id:       id,
		behavior: behavior,
		stdinR:   stdinR,
		stdinW:   stdinW,
		stdoutR:  stdoutR,
		stdoutW:  stdoutW,
		done:     make(chan struct{}),
	}
	go p.serve()
	return p
}

func (p *FakeProcess) serve() {
	scanner := bufio.NewScanner(p.stdinR)
	enc := json.NewEncoder(p.stdoutW)
	for scanner.Scan() {
		var req worker.Request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		if p.behavior.StartupHang {
			continue
		}
		if req.Command == worker.CommandShutdown {
			p.exit(nil)
			return
		}
		healthy := p.behavior.Healthy == nil || p.behavior.Healthy()
		reply := worker.Reply{ID: req.ID, Success: healthy}
		if !healthy {
			reply.Error = "backend unavailable"
		}
		if req.Command == worker.CommandProcessFrame && healthy {
			if p.behavior.ServiceTime > 0 {
				select {
				case <-time.After(p.behavior.ServiceTime):
				case <-p.done:
					return
				}
			}
			reply.Result = p.behavior.FrameResult
			reply.ProcessingTimeMS = float64(p.behavior.ServiceTime.Milliseconds())
		}
		if err := enc.Encode(reply); err != nil {
			return
		}
	}
}

// Crash simulates an unexpected process death (non-zero exit).
func (p *FakeProcess) Crash() {
	p.exit(errors.New("exit status 1"))
}

func (p *FakeProcess) exit(err error) {
	p.exitOnce.Do(func() {
		p.exitErr = err
		p.stdinR.CloseWithError(io.EOF)
		p.stdoutW.CloseWithError(io.EOF)
		close(p.done)
	})
}

// PID returns a fake pid.
func (p *FakeProcess) PID() int { return 4242 }

// Stdin is the supervisor-side request stream.
func (p *FakeProcess) Stdin() io.Writer { return p.stdinW }

// Stdout is the supervisor-side reply stream.
func (p *FakeProcess) Stdout() io.Reader { return p.stdoutR }

// Terminate stops the fake process as a clean shutdown would.
func (p *FakeProcess) Terminate() error {
	p.exit(nil)
	return nil
}

// Kill force-stops the fake process.
func (p *FakeProcess) Kill() error {
	p.exit(errors.New("killed"))
	return nil
}

// Wait blocks until the process has exited.
func (p *FakeProcess) Wait() error {
	<-p.done
	return p.exitErr
}
