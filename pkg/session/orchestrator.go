package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stepviz/stepviz/pkg/compiler"
	"github.com/stepviz/stepviz/pkg/instrument"
	"github.com/stepviz/stepviz/pkg/synth"
	"github.com/stepviz/stepviz/pkg/trace"
	"github.com/stepviz/stepviz/pkg/tracer"
)

// Options configures the Orchestrator.
type Options struct {
	// WorkRoot is where per-submission temp dirs are created.
	WorkRoot string
	// ExecTimeout bounds wall-clock execution, suspended during input waits.
	ExecTimeout time.Duration
	// InputTimeout bounds a single wait for client input.
	InputTimeout time.Duration
	// Workers bounds concurrent compilations/executions.
	Workers int
	// MaxSteps and ChunkSize control synthesis and delivery.
	MaxSteps  int
	ChunkSize int
	// ArchiveDir, if set, retains a compressed copy of each raw trace.
	ArchiveDir string
	// Debug includes internal error detail in client-facing error events.
	Debug bool
}

// Builder is the compile collaborator: given a work dir holding the source
// and runtime support files, it produces a binary or structured diagnostics.
type Builder interface {
	Compile(ctx context.Context, dir, srcName, lang string) (string, []compiler.Diagnostic, error)
}

// Orchestrator drives submissions end to end: instrument, compile, execute,
// synthesize, deliver. Submissions are independent; the only shared resource
// is the worker pool.
type Orchestrator struct {
	compiler Builder
	tracer   tracer.Tracer
	pool     *pool
	opts     Options
}

func NewOrchestrator(c Builder, t tracer.Tracer, opts Options) *Orchestrator {
	if opts.WorkRoot == "" {
		opts.WorkRoot = os.TempDir()
	}
	if opts.ExecTimeout <= 0 {
		opts.ExecTimeout = 10 * time.Second
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 100
	}
	return &Orchestrator{
		compiler: c,
		tracer:   t,
		pool:     newPool(opts.Workers),
		opts:     opts,
	}
}

// Submit starts a run and returns immediately. All outcomes, including
// failures, reach the listener; the returned Session is the handle for
// cancel, pause and resume.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission, l Listener) *Session {
	ctx, cancel := context.WithCancel(ctx)
	s := newSession(cancel)
	go o.run(ctx, s, sub, l)
	return s
}

func (o *Orchestrator) run(ctx context.Context, s *Session, sub Submission, l Listener) {
	logger := log.With().Str("session", s.ID).Str("lang", sub.Language).Logger()

	if err := o.pool.acquire(ctx); err != nil {
		o.fail(s, l, ErrDisconnected)
		return
	}
	defer o.pool.release()

	dir := filepath.Join(o.opts.WorkRoot, s.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		o.fail(s, l, fmt.Errorf("creating work dir: %w", err))
		return
	}
	defer os.RemoveAll(dir)

	lang := instrument.LangCPP
	srcName := "main.cpp"
	if sub.Language == "c" {
		lang = instrument.LangC
		srcName = "main.c"
	}

	// Instrumentation degrades, never aborts: on an internal rewrite error
	// the original source compiles and runs untraced at source level.
	s.setState(StateInstrumenting)
	source := sub.Code
	instrumented := false
	if res, err := instrument.Rewrite(sub.Code, lang); err != nil {
		logger.Warn().Err(err).Msg("instrumentation degraded; compiling original source")
	} else {
		source = res.Source
		instrumented = true
		for _, w := range res.Warnings {
			logger.Debug().Str("warning", w).Msg("instrumentation warning")
		}
		logger.Debug().Int("calls", res.Calls).Msg("source instrumented")
	}

	if err := tracer.WriteSupportFiles(dir); err != nil {
		o.fail(s, l, fmt.Errorf("writing runtime support files: %w", err))
		return
	}
	if err := os.WriteFile(filepath.Join(dir, srcName), []byte(source), 0644); err != nil {
		o.fail(s, l, err)
		return
	}

	s.setState(StateCompiling)
	l.Progress(StageCompiling, 10, "Compiling program")
	bin, diags, err := o.compiler.Compile(ctx, dir, srcName, string(lang))
	if err != nil && instrumented {
		// The rewrite may have produced source the compiler rejects even
		// though the original is valid. Retry uninstrumented before
		// reporting the failure as the user's.
		logger.Warn().Err(err).Msg("instrumented source failed to compile; retrying original")
		if werr := os.WriteFile(filepath.Join(dir, srcName), []byte(sub.Code), 0644); werr == nil {
			bin, diags, err = o.compiler.Compile(ctx, dir, srcName, string(lang))
		}
	}
	if err != nil {
		o.fail(s, l, &CompilationError{Diagnostics: diags})
		return
	}

	s.setState(StateExecuting)
	l.Progress(StageExecuting, 40, "Running program")
	res, runErr := o.tracer.Run(ctx, bin, tracer.Options{
		Timeout:      o.opts.ExecTimeout,
		InputTimeout: o.opts.InputTimeout,
		WorkDir:      dir,
		OnInput: func(req tracer.InputRequest) (string, error) {
			s.setState(StateAwaitingInput)
			defer s.setState(StateExecuting)
			return l.RequestInput(req)
		},
	})
	switch {
	case runErr != nil && errors.Is(runErr, context.Canceled):
		o.fail(s, l, ErrDisconnected)
		return
	case runErr != nil:
		o.fail(s, l, runErr)
		return
	case res.TimedOut:
		o.fail(s, l, ErrExecutionTimeout)
		return
	}

	s.setState(StateSynthesizing)
	l.Progress(StageAnalyzing, 70, "Analyzing trace")
	syn := synth.New(synth.Options{MaxSteps: o.opts.MaxSteps, SourceFile: srcName})
	steps, info := syn.Synthesize(res.Events, res.Stdout)
	info.Metadata.Language = string(lang)
	if len(steps) <= 2 {
		o.fail(s, l, ErrEmptyTrace)
		return
	}
	o.archive(s.ID, dir)

	s.setState(StateDelivering)
	l.Progress(StageFormatting, 90, "Formatting steps")
	for _, chunk := range synth.Split(steps, o.opts.ChunkSize, info) {
		if gate := s.gate(); gate != nil {
			select {
			case <-gate:
			case <-ctx.Done():
				o.fail(s, l, ErrDisconnected)
				return
			}
		}
		if ctx.Err() != nil {
			o.fail(s, l, ErrDisconnected)
			return
		}
		l.Chunk(chunk)
	}

	if res.Crashed() {
		// The steps flushed before the crash were worth delivering, but
		// the run itself still failed.
		o.fail(s, l, &CrashError{Signal: res.Signal, ExitCode: res.ExitCode})
		return
	}

	s.setState(StateComplete)
	l.Completed(len(steps))
	logger.Info().Int("steps", len(steps)).Msg("session complete")
}

func (o *Orchestrator) fail(s *Session, l Listener, err error) {
	s.setState(StateFailed)
	details := ""
	if o.opts.Debug {
		details = err.Error()
	}
	l.Errored(clientMessage(err), details)
	log.Warn().Str("session", s.ID).Err(err).Msg("session failed")
}

// clientMessage maps an internal error to the human-readable message placed
// in the client-facing error event.
func clientMessage(err error) string {
	var ce *CompilationError
	var cr *CrashError
	switch {
	case errors.As(err, &ce):
		return ce.Error()
	case errors.As(err, &cr):
		return cr.Error()
	case errors.Is(err, ErrExecutionTimeout):
		return "Program took too long to run and was stopped"
	case errors.Is(err, ErrEmptyTrace):
		return "Program ran but produced no trace to visualize"
	case errors.Is(err, tracer.ErrInputTimeout):
		return "Timed out waiting for input"
	case errors.Is(err, ErrDisconnected):
		return "Session cancelled"
	default:
		return "Internal error while processing the program"
	}
}

// archive retains a compressed copy of the raw trace for later replay.
func (o *Orchestrator) archive(id, dir string) {
	if o.opts.ArchiveDir == "" {
		return
	}
	src := filepath.Join(dir, "trace.json")
	dst := filepath.Join(o.opts.ArchiveDir, id+".json.zst")
	if err := os.MkdirAll(o.opts.ArchiveDir, 0755); err != nil {
		return
	}
	if err := trace.ArchiveFile(src, dst); err != nil {
		log.Debug().Err(err).Str("session", id).Msg("trace archive failed")
	}
}
