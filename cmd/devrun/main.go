package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/devrun/devrun/internal/log"
	"github.com/devrun/devrun/internal/model"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const configName = "devrun.yaml"

var (
	userConfigPath string // /default/config/path/devrun on given OS
	configPath     string // actual config file used (if loaded)
	config         model.Config

	// flags bound to DEVRUN_CONFIG, DEVRUN_VERBOSE and DEVRUN_ENV_FILE
	settings = viper.New()
)

func init() {
	d, err := os.UserConfigDir()
	if err != nil {
		d = "."
	}
	userConfigPath = filepath.Join(d, "devrun")
}

func main() {
	// root flags
	rootCmd.PersistentFlags().String("config", "", "Config file to load - default is "+configName+" in current directory or in "+userConfigPath)
	rootCmd.PersistentFlags().Bool("verbose", false, "verbose logging")
	rootCmd.PersistentFlags().String("env-file", "", "dotenv file overlaid on the environment of the processes (default .env)")
	bindSettings(settings, rootCmd)

	// never print messages
	rootCmd.SilenceErrors = true

	// parse the config, setup logging
	rootCmd.PersistentPreRunE = initDevrun

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	interrupted := ctx.Err() != nil
	stop()

	code := exitCode(err, interrupted)
	if code != 0 {
		slog.Error("devrun failed", "err", err)
	}
	os.Exit(code)
}

// exitCode maps the result of the root command to the process exit status.
// Any interrupt ends with 0, including one received before the processes
// were supervised.
func exitCode(err error, interrupted bool) int {
	switch {
	case err == nil:
		return 0
	case interrupted || errors.Is(err, context.Canceled):
		return 0
	default:
		return 1
	}
}

var rootCmd = &cobra.Command{
	Use:          "devrun",
	Short:        "Runs the backend and the frontend of the project for development",
	SilenceUsage: true,
	RunE:         doRun,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run starts both processes and forwards their output until interrupted",
	RunE:  doRun,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "config prints the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if configPath != "" {
			_, _ = fmt.Fprintf(out, "# config: %s\n", configPath)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(config); err != nil {
			return fmt.Errorf("encoding configuration: %w", err)
		}
		return enc.Close()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "version provide version of a devrun",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("devrun: version info not available")
			return
		}

		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("devrun: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:  %s\n", s.Value)
			}
		}
		fmt.Println()
	},
}

func bindSettings(v *viper.Viper, cmd *cobra.Command) {
	v.SetEnvPrefix("DEVRUN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(cmd.PersistentFlags()); err != nil {
		panic(err)
	}
}

func initDevrun(cmd *cobra.Command, _ []string) error {
	configPath = findConfig(settings.GetString("config"), ".", userConfigPath)

	var err error
	config, err = loadConfig(configPath)
	if err != nil {
		for _, d := range model.CueErrDetails(err) {
			slog.Error(d.String(), d.Attr("detail"))
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// flags and environment have a precedence over config file
	if settings.GetBool("verbose") {
		config.Verbose = true
	}
	if envFile := settings.GetString("env-file"); envFile != "" {
		config.EnvFile = envFile
	}

	// initialize logging
	slog.SetDefault(log.New(os.Stderr, config.Verbose))

	slog.Debug("devrun init", "configPath", configPath)
	slog.Debug("devrun init", "config", config)
	return nil
}

// findConfig returns explicit if set, otherwise the first devrun.yaml found in
// dirs. Empty string means no config file.
func findConfig(explicit string, dirs ...string) string {
	if explicit != "" {
		return explicit
	}
	for _, d := range dirs {
		path := filepath.Join(d, configName)
		if exists(path) {
			return path
		}
	}
	return ""
}

func loadConfig(path string) (model.Config, error) {
	if path == "" {
		return model.DefaultConfig(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return model.Config{}, fmt.Errorf("opening config file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	return model.LoadConfig(f)
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
