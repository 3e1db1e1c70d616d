package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/devrun/devrun/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func creat(t *testing.T, path string, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFindConfig(t *testing.T) {
	t.Parallel()
	cwd := t.TempDir()
	user := t.TempDir()

	require.Equal(t, "", findConfig("", cwd, user))
	require.Equal(t, "explicit.yaml", findConfig("explicit.yaml", cwd, user))

	creat(t, filepath.Join(user, configName), "version: 0\n")
	require.Equal(t, filepath.Join(user, configName), findConfig("", cwd, user))

	creat(t, filepath.Join(cwd, configName), "version: 0\n")
	require.Equal(t, filepath.Join(cwd, configName), findConfig("", cwd, user))
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig("")
	require.NoError(t, err)
	require.Equal(t, model.DefaultConfig(), cfg)

	path := filepath.Join(t.TempDir(), configName)
	creat(t, path, "frontend:\n  command: npm run dev\n")
	cfg, err = loadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "npm run dev", cfg.Frontend.Command)

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestBuildCommands(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	creat(t, filepath.Join(root, ".env"), "DATABASE_URL=postgres://file\nAPI_KEY=k\n")

	cfg := model.DefaultConfig()
	cfg.StopTimeout = "2s"
	cmds, err := buildCommands(t.Context(), root, cfg, []string{"DATABASE_URL=postgres://ambient", "HOME=/home/dev"})
	require.NoError(t, err)
	require.Len(t, cmds, 2)

	require.Equal(t, "server", cmds[0].Name)
	require.Equal(t, "cargo run", cmds[0].Script)
	require.Equal(t, filepath.Join(root, "server"), cmds[0].Dir)
	require.Equal(t, "frontend", cmds[1].Name)
	require.Equal(t, "deno task dev", cmds[1].Script)
	require.Equal(t, filepath.Join(root, "website"), cmds[1].Dir)

	want := []string{"API_KEY=k", "DATABASE_URL=postgres://file", "HOME=/home/dev"}
	for _, c := range cmds {
		require.Equal(t, want, c.Env)
		require.Equal(t, 2*time.Second, c.StopTimeout)
	}
}

func TestBuildCommandsWithoutEnvFile(t *testing.T) {
	t.Parallel()
	cmds, err := buildCommands(t.Context(), t.TempDir(), model.DefaultConfig(), []string{"HOME=/home/dev"})
	require.NoError(t, err)
	for _, c := range cmds {
		require.Equal(t, []string{"HOME=/home/dev"}, c.Env)
		require.Zero(t, c.StopTimeout)
	}
}

func TestBindSettings(t *testing.T) {
	t.Setenv("DEVRUN_ENV_FILE", "config/dev.env")
	t.Setenv("DEVRUN_VERBOSE", "true")

	cmd := &cobra.Command{Use: "test"}
	cmd.PersistentFlags().String("config", "", "")
	cmd.PersistentFlags().Bool("verbose", false, "")
	cmd.PersistentFlags().String("env-file", "", "")

	v := viper.New()
	bindSettings(v, cmd)
	require.Equal(t, "config/dev.env", v.GetString("env-file"))
	require.True(t, v.GetBool("verbose"))

	require.NoError(t, cmd.PersistentFlags().Set("env-file", "flag.env"))
	require.Equal(t, "flag.env", v.GetString("env-file"))
}

func TestAbs(t *testing.T) {
	t.Parallel()
	require.Equal(t, "", abs("/root", ""))
	require.Equal(t, "/srv/app", abs("/root", "/srv/app"))
	require.Equal(t, filepath.Join("/root", "server"), abs("/root", "server"))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario    string
		err         error
		interrupted bool
		then        int
	}{
		{scenario: "success", then: 0},
		{scenario: "cancelled", err: context.Canceled, then: 0},
		{scenario: "wrapped cancel", err: fmt.Errorf("starting server: %w", context.Canceled), then: 0},
		{scenario: "interrupted", err: errors.New("boom"), interrupted: true, then: 0},
		{scenario: "failure", err: errors.New("boom"), then: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.scenario, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.then, exitCode(tc.err, tc.interrupted))
		})
	}
}

// modifies the global config, must not run in parallel
func TestDoRunInterruptedBeforeStart(t *testing.T) {
	saved := config
	t.Cleanup(func() { config = saved })

	dir := t.TempDir()
	marker := filepath.Join(dir, "spawned")
	config = model.DefaultConfig()
	config.EnvFile = filepath.Join(dir, ".env")
	config.Server.Dir = dir
	config.Server.Command = "touch " + marker
	config.Frontend.Dir = dir
	config.Frontend.Command = "touch " + marker

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(ctx)

	err := doRun(cmd, nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, exitCode(err, true))
	require.Empty(t, out.String())
	require.NoFileExists(t, marker)
}

func TestForceOnSignal(t *testing.T) {
	t.Parallel()

	signals := make(chan os.Signal, 1)
	force, cancel := forceOnSignal(t.Context(), signals)
	t.Cleanup(cancel)
	require.NoError(t, force.Err())

	signals <- os.Interrupt
	require.Eventually(t, func() bool {
		return force.Err() != nil
	}, 5*time.Second, 10*time.Millisecond)
	require.ErrorIs(t, force.Err(), context.Canceled)
}

func TestForceOnSignalCancel(t *testing.T) {
	t.Parallel()

	signals := make(chan os.Signal, 1)
	force, cancel := forceOnSignal(t.Context(), signals)
	cancel()
	require.ErrorIs(t, force.Err(), context.Canceled)
}
