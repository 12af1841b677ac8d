package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCompileFailed is returned when the driver exits non-zero; the
// accompanying diagnostics carry the parsed messages.
var ErrCompileFailed = errors.New("compilation failed")

// Options configures a Compiler.
type Options struct {
	CC  string // C driver, default gcc
	CXX string // C++ driver, default g++; also links C targets
	// CacheDir and CacheSize configure the compiled-binary cache. An empty
	// CacheDir disables caching.
	CacheDir  string
	CacheSize int
	// Timeout bounds one driver invocation.
	Timeout time.Duration
}

// Compiler builds submitted sources against the runtime tracer. The
// function-instrumentation flag is what makes the binary report every call
// to the linked runtime.
type Compiler struct {
	cc, cxx string
	timeout time.Duration
	cache   *binaryCache
}

func New(opts Options) (*Compiler, error) {
	c := &Compiler{cc: opts.CC, cxx: opts.CXX, timeout: opts.Timeout}
	if c.cc == "" {
		c.cc = "gcc"
	}
	if c.cxx == "" {
		c.cxx = "g++"
	}
	if c.timeout <= 0 {
		c.timeout = 30 * time.Second
	}
	if opts.CacheDir != "" {
		size := opts.CacheSize
		if size <= 0 {
			size = 32
		}
		cache, err := newBinaryCache(opts.CacheDir, size)
		if err != nil {
			return nil, err
		}
		c.cache = cache
	}
	return c, nil
}

var buildFlags = []string{"-g", "-O0", "-finstrument-functions", "-rdynamic"}

// Compile builds srcName (relative to dir, with the runtime support files
// already materialized alongside) into an executable. It returns the binary
// path and any parsed diagnostics; on a non-zero driver exit the error is
// ErrCompileFailed and the diagnostics explain why.
func (c *Compiler) Compile(ctx context.Context, dir, srcName, lang string) (string, []Diagnostic, error) {
	source, err := os.ReadFile(filepath.Join(dir, srcName))
	if err != nil {
		return "", nil, err
	}
	key := CacheKey(source, lang)
	if c.cache != nil {
		if bin, ok := c.cache.get(key); ok {
			log.Debug().Str("key", key[:12]).Msg("binary cache hit")
			return bin, nil, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	// The runtime is C++ regardless of the target language; the C++
	// driver does the final link so the runtime's libstdc++ pieces
	// resolve.
	if _, err := os.Stat(filepath.Join(dir, "tracer.o")); err != nil {
		if diags, err := c.run(ctx, dir, c.cxx, "-g", "-O0", "-c", "tracer.cpp", "-o", "tracer.o"); err != nil {
			return "", diags, fmt.Errorf("building tracer runtime: %w", err)
		}
	}

	driver := c.cc
	if lang == "cpp" {
		driver = c.cxx
	}
	objName := "main.o"
	args := append(append([]string{}, buildFlags...), "-c", srcName, "-o", objName)
	if diags, err := c.run(ctx, dir, driver, args...); err != nil {
		return "", diags, err
	}

	binPath := filepath.Join(dir, "prog")
	linkArgs := []string{"-rdynamic", objName, "tracer.o", "-o", binPath, "-ldl"}
	if diags, err := c.run(ctx, dir, c.cxx, linkArgs...); err != nil {
		return "", diags, err
	}

	if c.cache != nil {
		if cached, err := c.cache.put(key, binPath); err == nil {
			return cached, nil, nil
		}
	}
	return binPath, nil, nil
}

func (c *Compiler) run(ctx context.Context, dir, driver string, args ...string) ([]Diagnostic, error) {
	cmd := exec.CommandContext(ctx, driver, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	log.Debug().Str("driver", driver).Strs("args", args).Msg("invoking compiler")
	err := cmd.Run()
	diags := ParseDiagnostics(stderr.String())
	if err != nil {
		if ctx.Err() != nil {
			return diags, fmt.Errorf("compiler timed out: %w", ctx.Err())
		}
		return diags, fmt.Errorf("%w: %s exited: %v", ErrCompileFailed, driver, err)
	}
	return diags, nil
}
