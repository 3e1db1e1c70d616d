package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrEmptyCommand = errors.New("empty command")
	ErrNotStarted   = errors.New("process not started")
)

// Command describes a managed process.
type Command struct {
	Name        string        // label of the console lines
	Script      string        // passed to the platform shell
	Dir         string        // working directory, empty means the current one
	Env         []string      // complete environment of the child
	StopTimeout time.Duration // zero waits for the exit forever
}

// Process is a running child whose stdout and stderr share a single pipe.
type Process struct {
	name      string
	cmd       *exec.Cmd
	out       *os.File
	closeOnce sync.Once
	streaming atomic.Bool
	done      chan struct{}
	waitErr   error
	started   time.Time
	stopped   time.Time
}

// Start spawns c through the platform shell. It does NOT wait on the
// command to finish, use Done or Wait for that.
// Note it spawns an internal goroutine which observes the exit of the child.
func Start(ctx context.Context, c Command) (*Process, error) {
	if strings.TrimSpace(c.Script) == "" {
		return nil, ErrEmptyCommand
	}

	if c.Dir != "" {
		// exec reports a missing directory as a missing shell
		if _, err := os.Stat(c.Dir); err != nil {
			return nil, fmt.Errorf("working directory: %w", err)
		}
	}

	pr, pw, err := os.Pipe()
	if err != nil {
		return nil, err
	}

	cmd := shellCommand(c.Script)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = pw
	cmd.Stderr = pw

	p := &Process{
		name:    c.Name,
		cmd:     cmd,
		out:     pr,
		done:    make(chan struct{}),
		started: time.Now().UTC(),
	}

	err = cmd.Start()
	// the child owns its copy of the write end now
	_ = pw.Close()
	if err != nil {
		_ = pr.Close()
		return nil, err
	}
	slog.DebugContext(ctx, "process started", "name", c.Name, "pid", cmd.Process.Pid, "dir", c.Dir)

	go p.wait()
	return p, nil
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.stopped = time.Now().UTC()
	p.waitErr = err
	close(p.done)
}

func (p *Process) PID() int {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Done returns a channel closed once the exit of the child was observed.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the child exits and returns the exec error, if any.
// The output pipe is released afterwards.
func (p *Process) Wait() error {
	<-p.done
	p.closeOutput()
	return p.waitErr
}

// Runtime returns how long the child ran, zero while it is still running.
func (p *Process) Runtime() time.Duration {
	select {
	case <-p.done:
		return p.stopped.Sub(p.started)
	default:
		return 0
	}
}

// ExitCode returns the exit code of a finished child, -1 if it is still
// running or was killed by a signal.
func (p *Process) ExitCode() int {
	select {
	case <-p.done:
		if p.cmd.ProcessState == nil {
			return -1
		}
		return p.cmd.ProcessState.ExitCode()
	default:
		return -1
	}
}

// Lines returns the combined output of the child as a sequence of lines
// without the trailing line terminators. The sequence ends once the child
// closes its output or ctx is done. It can be consumed only once; further
// calls return an empty sequence.
func (p *Process) Lines(ctx context.Context) iter.Seq[string] {
	return func(yield func(string) bool) {
		if !p.streaming.CompareAndSwap(false, true) {
			return
		}

		lines := make(chan string)
		stop := make(chan struct{})
		defer close(stop)
		go p.read(ctx, lines, stop)

		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				// a line may race with the cancellation
				if ctx.Err() != nil {
					return
				}
				if !yield(line) {
					return
				}
			}
		}
	}
}

func (p *Process) read(ctx context.Context, lines chan<- string, stop <-chan struct{}) {
	defer close(lines)
	defer p.closeOutput()

	r := bufio.NewReader(p.out)
	for {
		line, err := r.ReadString('\n')
		if line != "" {
			select {
			case lines <- strings.TrimRight(line, "\r\n"):
			case <-stop:
				return
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				slog.ErrorContext(ctx, "reading process output", "name", p.name, "error", err)
			}
			return
		}
	}
}

func (p *Process) closeOutput() {
	p.closeOnce.Do(func() {
		_ = p.out.Close()
	})
}

// Stop asks the child to terminate and blocks until its exit is observed.
// The child is killed when a positive timeout elapses or ctx is done first.
func (p *Process) Stop(ctx context.Context, timeout time.Duration) error {
	if p == nil || p.cmd == nil || p.cmd.Process == nil {
		return ErrNotStarted
	}
	select {
	case <-p.done:
		return nil
	default:
	}

	slog.DebugContext(ctx, "terminating process", "name", p.name, "pid", p.PID())
	termErr := terminate(p.cmd)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-p.done:
		return termErr
	case <-expired:
		slog.WarnContext(ctx, "process ignored termination: killing", "name", p.name, "pid", p.PID(), "timeout", timeout)
	case <-ctx.Done():
		slog.WarnContext(ctx, "stop forced: killing", "name", p.name, "pid", p.PID())
	}

	killErr := kill(p.cmd)
	<-p.done
	return errors.Join(termErr, killErr)
}
