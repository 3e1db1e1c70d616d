package service

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// ShutdownNotice is printed once the coordinator starts stopping the tasks.
const ShutdownNotice = "\nShutting down..."

// Coordinator runs a supervision task per Command and propagates the
// shutdown to all of them.
type Coordinator struct {
	commands   []Command
	console    *Console
	force      context.Context
	onShutdown func()
}

func NewCoordinator(console *Console, commands ...Command) *Coordinator {
	return &Coordinator{
		commands: commands,
		console:  console,
	}
}

// WithForce makes the shutdown kill the processes still running once force
// is done, instead of waiting for them.
func (c *Coordinator) WithForce(force context.Context) *Coordinator {
	c.force = force
	return c
}

// OnShutdown registers f, called after the shutdown notice and before the
// tasks are cancelled.
func (c *Coordinator) OnShutdown(f func()) *Coordinator {
	c.onShutdown = f
	return c
}

// Run starts all commands and blocks until every supervision task is done.
//
// Children exiting on their own end their task only, Run returns nil once
// all of them did. A start failure cancels the siblings and is returned.
//
// Cancelling ctx prints the shutdown notice, cancels all tasks and waits for
// them to stop their processes. Cancellation errors are expected there and
// are not returned; other errors are only logged.
func (c *Coordinator) Run(ctx context.Context) error {
	if len(c.commands) == 0 {
		return nil
	}

	// tasks are cancelled explicitly, after the notice is printed
	taskCtx, cancelTasks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelTasks()

	force := c.force
	if force == nil {
		force = context.WithoutCancel(ctx)
	}

	g, gctx := errgroup.WithContext(taskCtx)
	gate := newStartGate(len(c.commands))
	for _, cmd := range c.commands {
		g.Go(func() error {
			return supervise(gctx, force, cmd, c.console, gate)
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	c.console.Notice(ShutdownNotice)
	if c.onShutdown != nil {
		c.onShutdown()
	}
	slog.DebugContext(ctx, "cancelling supervision tasks", "tasks", len(c.commands))
	cancelTasks()

	err := <-done
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.WarnContext(ctx, "supervision task failed during shutdown", "error", err)
	}
	return nil
}
