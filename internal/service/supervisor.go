package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Supervise is the single-process entry point, Coordinator runs several
// processes through the same steps. It starts cmd, announces its PID and
// forwards every output line to console.
//
// It returns nil once the child exits on its own, whatever the exit code.
// When ctx is cancelled first, the child is stopped, its exit is awaited and
// the cancellation error is returned.
func Supervise(ctx context.Context, cmd Command, console *Console) error {
	return supervise(ctx, context.WithoutCancel(ctx), cmd, console, nil)
}

// supervise kills the process instead of waiting for it once force is done
// during the cleanup.
func supervise(ctx, force context.Context, cmd Command, console *Console, gate *startGate) error {
	proc, err := Start(ctx, cmd)
	if err != nil {
		gate.arrive()
		return fmt.Errorf("starting %s: %w", cmd.Name, err)
	}
	console.Line(cmd.Name, fmt.Sprintf("started (PID %d)", proc.PID()))
	gate.arrive()

	if err := gate.wait(ctx); err != nil {
		return cleanup(ctx, force, cmd, proc)
	}

	for line := range proc.Lines(ctx) {
		console.Line(cmd.Name, line)
	}
	if ctx.Err() != nil {
		return cleanup(ctx, force, cmd, proc)
	}

	// the output may be closed before the process exits
	select {
	case <-proc.Done():
	case <-ctx.Done():
		return cleanup(ctx, force, cmd, proc)
	}

	err = proc.Wait()
	slog.DebugContext(ctx, "process exited",
		"name", cmd.Name,
		"pid", proc.PID(),
		"exit_code", proc.ExitCode(),
		"runtime", proc.Runtime(),
		"error", err,
	)
	return nil
}

// cleanup stops proc and reports the cancellation of ctx
func cleanup(ctx, force context.Context, cmd Command, proc *Process) error {
	stopErr := proc.Stop(force, cmd.StopTimeout)
	_ = proc.Wait()
	slog.DebugContext(ctx, "process stopped", "name", cmd.Name, "pid", proc.PID(), "exit_code", proc.ExitCode())
	if stopErr != nil {
		slog.WarnContext(ctx, "stopping process failed", "name", cmd.Name, "error", stopErr)
		stopErr = fmt.Errorf("stopping %s: %w", cmd.Name, stopErr)
	}
	return errors.Join(ctx.Err(), stopErr)
}

// startGate holds the supervision tasks until every one of them tried to
// start its process. A nil gate does not block.
type startGate struct {
	wg    sync.WaitGroup
	ready chan struct{}
}

func newStartGate(n int) *startGate {
	g := &startGate{ready: make(chan struct{})}
	g.wg.Add(n)
	go func() {
		g.wg.Wait()
		close(g.ready)
	}()
	return g
}

func (g *startGate) arrive() {
	if g == nil {
		return
	}
	g.wg.Done()
}

func (g *startGate) wait(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	select {
	case <-g.ready:
		return ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}
