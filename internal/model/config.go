package model

import (
	"fmt"
	"io"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

// Labels of the managed processes, used as console prefixes.
const (
	ServerName   = "server"
	FrontendName = "frontend"

	DefaultEnvFile = ".env"
)

//go:embed config.cue
var cueSource []byte

var (
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	if err := compiled.Validate(); err != nil {
		panic(err)
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
	if err := schema.Validate(); err != nil {
		panic(err)
	}
}

type Config struct {
	Version     int     `json:"version" yaml:"version"` // fixed 0 for now
	Verbose     bool    `json:"verbose" yaml:"verbose"`
	EnvFile     string  `json:"env_file" yaml:"env_file"`         // dotenv file, relative to the working directory
	StopTimeout string  `json:"stop_timeout" yaml:"stop_timeout"` // 0s waits for children forever
	Server      Process `json:"server" yaml:"server"`
	Frontend    Process `json:"frontend" yaml:"frontend"`
}

// Process describes one managed process. Command runs through the
// platform shell inside Dir.
type Process struct {
	Name    string `json:"-" yaml:"-"`
	Command string `json:"command" yaml:"command"`
	Dir     string `json:"dir" yaml:"dir"`
}

// DefaultConfig is used when no config file exists.
func DefaultConfig() Config {
	return Config{
		Version:     0,
		EnvFile:     DefaultEnvFile,
		StopTimeout: "0s",
		Server: Process{
			Command: "cargo run",
			Dir:     "server",
		},
		Frontend: Process{
			Command: "deno task dev",
			Dir:     "website",
		},
	}
}

// Processes returns the backend and the frontend, in this order, with their
// labels set.
func (c Config) Processes() []Process {
	server := c.Server
	server.Name = ServerName
	frontend := c.Frontend
	frontend.Name = FrontendName
	return []Process{server, frontend}
}

// StopTimeoutDuration parses StopTimeout. Empty means zero.
func (c Config) StopTimeoutDuration() (time.Duration, error) {
	if c.StopTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.StopTimeout)
	if err != nil {
		return 0, fmt.Errorf("parsing stop_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("stop_timeout must not be negative: %s", c.StopTimeout)
	}
	return d, nil
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
// Omitted fields get the defaults of DefaultConfig.
func LoadConfig(r io.Reader) (Config, error) {
	yamlFile, err := yaml.Extract("devrun.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, err
	}

	return out, nil
}
