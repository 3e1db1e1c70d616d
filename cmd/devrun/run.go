package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/devrun/devrun/internal/env"
	"github.com/devrun/devrun/internal/log"
	"github.com/devrun/devrun/internal/model"
	"github.com/devrun/devrun/internal/service"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func doRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	attrs := slog.Group("devrun",
		slog.String("cmd", "run"),
		slog.Int("pid", os.Getpid()),
		slog.String("run_id", uuid.NewString()),
	)
	ctx = log.ContextAttrs(ctx, attrs)

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}

	commands, err := buildCommands(ctx, root, config, os.Environ())
	if err != nil {
		return err
	}

	// an interrupt during startup ends here
	if err := ctx.Err(); err != nil {
		return err
	}

	// a second interrupt during the shutdown kills the children
	second := make(chan os.Signal, 1)
	defer signal.Stop(second)
	force, cancelForce := forceOnSignal(context.WithoutCancel(ctx), second)
	defer cancelForce()

	coordinator := service.NewCoordinator(service.NewConsole(cmd.OutOrStdout()), commands...).
		WithForce(force).
		OnShutdown(func() {
			signal.Notify(second, os.Interrupt, syscall.SIGTERM)
		})
	return coordinator.Run(ctx)
}

// forceOnSignal returns a context cancelled by the first signal received on
// signals.
func forceOnSignal(parent context.Context, signals <-chan os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case sig := <-signals:
			slog.WarnContext(ctx, "shutdown already in progress: killing processes", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// buildCommands builds the managed processes of cfg. All of them share one
// environment: ambient overlaid with the env file found relative to root.
func buildCommands(ctx context.Context, root string, cfg model.Config, ambient []string) ([]service.Command, error) {
	overlay, err := env.Load(abs(root, cfg.EnvFile), ambient)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "environment loaded", "env_file", cfg.EnvFile, "file_keys", overlay.FileKeys(), "size", overlay.Len())

	stopTimeout, err := cfg.StopTimeoutDuration()
	if err != nil {
		return nil, err
	}

	environ := overlay.Environ()
	procs := cfg.Processes()
	ret := make([]service.Command, 0, len(procs))
	for _, p := range procs {
		ret = append(ret, service.Command{
			Name:        p.Name,
			Script:      p.Command,
			Dir:         abs(root, p.Dir),
			Env:         environ,
			StopTimeout: stopTimeout,
		})
	}
	return ret, nil
}

func abs(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
