package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, ":8080", c.Listen)
	assert.Equal(t, "gcc", c.Compiler.CC)
	assert.Equal(t, "g++", c.Compiler.CXX)
	assert.Equal(t, 10*time.Second, c.Execution.Timeout.Duration)
	assert.Equal(t, 1000, c.Trace.MaxSteps)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	c, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Listen, c.Listen)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
listen: ":9999"
compiler:
  cxx: clang++
execution:
  timeout: 25s
  workers: 8
trace:
  max_steps: 500
log_level: debug
`), 0644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", c.Listen)
	assert.Equal(t, "clang++", c.Compiler.CXX)
	assert.Equal(t, "gcc", c.Compiler.CC, "unset keys keep defaults")
	assert.Equal(t, 25*time.Second, c.Execution.Timeout.Duration)
	assert.Equal(t, 8, c.Execution.Workers)
	assert.Equal(t, 500, c.Trace.MaxSteps)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9999\"\n"), 0644))

	t.Setenv("STEPVIZ_LISTEN", ":7777")
	t.Setenv("STEPVIZ_WORKERS", "2")
	t.Setenv("STEPVIZ_EXEC_TIMEOUT", "3s")
	t.Setenv("STEPVIZ_DEBUG", "true")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7777", c.Listen)
	assert.Equal(t, 2, c.Execution.Workers)
	assert.Equal(t, 3*time.Second, c.Execution.Timeout.Duration)
	assert.True(t, c.Debug)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0644))
	_, err := Load(path)
	assert.Error(t, err)
}
