package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration accepts "10s" style values in YAML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = dur
	return nil
}

func seconds(n int) Duration { return Duration{time.Duration(n) * time.Second} }

// Config is the full service configuration. Every field has a usable
// default; a config file and then environment variables override it.
type Config struct {
	Listen string `yaml:"listen"`

	Compiler struct {
		CC        string   `yaml:"cc"`
		CXX       string   `yaml:"cxx"`
		Timeout   Duration `yaml:"timeout"`
		CacheDir  string   `yaml:"cache_dir"`
		CacheSize int      `yaml:"cache_size"`
	} `yaml:"compiler"`

	Execution struct {
		Timeout      Duration `yaml:"timeout"`
		InputTimeout Duration `yaml:"input_timeout"`
		Workers      int      `yaml:"workers"`
		WorkRoot     string   `yaml:"work_root"`
	} `yaml:"execution"`

	Trace struct {
		MaxSteps   int    `yaml:"max_steps"`
		ChunkSize  int    `yaml:"chunk_size"`
		ArchiveDir string `yaml:"archive_dir"`
	} `yaml:"trace"`

	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	var c Config
	c.Listen = ":8080"
	c.Compiler.CC = "gcc"
	c.Compiler.CXX = "g++"
	c.Compiler.Timeout = seconds(30)
	c.Compiler.CacheSize = 32
	c.Execution.Timeout = seconds(10)
	c.Execution.InputTimeout = seconds(120)
	c.Execution.Workers = 4
	c.Trace.MaxSteps = 1000
	c.Trace.ChunkSize = 100
	c.LogLevel = "info"
	return c
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty or the file does not exist), then
// environment overrides.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return c, err
		default:
			if err := yaml.Unmarshal(data, &c); err != nil {
				return c, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}
	c.applyEnv()
	return c, nil
}

// applyEnv layers STEPVIZ_* environment variables over the config. These
// cover the knobs deployments most often tune per host.
func (c *Config) applyEnv() {
	envStr("STEPVIZ_LISTEN", &c.Listen)
	envStr("STEPVIZ_CC", &c.Compiler.CC)
	envStr("STEPVIZ_CXX", &c.Compiler.CXX)
	envStr("STEPVIZ_WORK_ROOT", &c.Execution.WorkRoot)
	envStr("STEPVIZ_ARCHIVE_DIR", &c.Trace.ArchiveDir)
	envStr("STEPVIZ_LOG_LEVEL", &c.LogLevel)
	envInt("STEPVIZ_WORKERS", &c.Execution.Workers)
	envInt("STEPVIZ_MAX_STEPS", &c.Trace.MaxSteps)
	envInt("STEPVIZ_CHUNK_SIZE", &c.Trace.ChunkSize)
	envDur("STEPVIZ_EXEC_TIMEOUT", &c.Execution.Timeout)
	envDur("STEPVIZ_INPUT_TIMEOUT", &c.Execution.InputTimeout)
	if v := os.Getenv("STEPVIZ_DEBUG"); v != "" {
		c.Debug = v == "1" || v == "true"
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDur(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
