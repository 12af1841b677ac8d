package tracer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stepviz/stepviz/pkg/trace"
)

// InputRequest describes a pending read the traced program is blocked on.
type InputRequest struct {
	Name string
	Kind string
	Line int
}

// Options controls one traced execution.
type Options struct {
	// Timeout bounds wall-clock execution. It is suspended while the run
	// legitimately waits for client-supplied input.
	Timeout time.Duration
	// InputTimeout bounds a single wait for client input.
	InputTimeout time.Duration
	// OnInput supplies a value for a pending input request. Nil means the
	// program gets no interactive input.
	OnInput func(InputRequest) (string, error)
	// WorkDir holds the trace and stdout files. Defaults to the binary's
	// directory.
	WorkDir string
}

// Result is what one traced execution produced.
type Result struct {
	Events   []trace.Event
	Stdout   string
	ExitCode int
	Signal   string
	TimedOut bool
}

// Crashed reports whether the process died from a signal.
func (r *Result) Crashed() bool { return r.Signal != "" }

// Tracer runs a compiled binary and produces its raw event stream. The
// hook-based implementation is the default; alternate strategies (replaying
// a recorded file, an external debugger) satisfy the same contract and are
// selected by configuration.
type Tracer interface {
	Run(ctx context.Context, binary string, opts Options) (*Result, error)
}

// ErrInputTimeout is returned when the client does not answer an input
// request within the input-wait bound.
var ErrInputTimeout = errors.New("timed out waiting for input")

// HookTracer executes the binary built against the embedded C runtime and
// follows its trace file while it runs.
type HookTracer struct{}

func NewHookTracer() *HookTracer { return &HookTracer{} }

func (t *HookTracer) Run(ctx context.Context, binary string, opts Options) (*Result, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = filepath.Dir(binary)
	}
	tracePath := filepath.Join(workDir, "trace.json")
	stdoutPath := filepath.Join(workDir, "stdout.out")

	// Stdout goes to a regular file: the runtime's flush markers record
	// ftell offsets into it for output attribution.
	stdoutFile, err := os.Create(stdoutPath)
	if err != nil {
		return nil, fmt.Errorf("creating stdout capture: %w", err)
	}
	defer stdoutFile.Close()

	cmd := exec.Command(binary)
	cmd.Dir = workDir
	cmd.Env = append(os.Environ(), trace.EnvTraceOutput+"="+tracePath)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stdoutFile
	setProcGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting traced process: %w", err)
	}
	log.Debug().Str("binary", binary).Int("pid", cmd.Process.Pid).Msg("traced process started")

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	res := &Result{}
	follower := trace.NewFollower(tracePath)
	answered := make(map[int64]bool)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	// answerPending polls the trace file and serves any unanswered input
	// request. While the client is answering, the execution clock is
	// stopped (drained, so a racing expiry is not consumed as stale on the
	// next iteration) and restarted afterwards. Reports whether a request
	// was served.
	answerPending := func() (bool, error) {
		events, pollErr := follower.Poll()
		if pollErr != nil {
			return false, nil
		}
		served := false
		for _, e := range events {
			if e.Kind != trace.InputRequest || answered[e.ID] || opts.OnInput == nil {
				continue
			}
			answered[e.ID] = true
			served = true
			if !deadline.Stop() {
				select {
				case <-deadline.C:
				default:
				}
			}
			value, inputErr := t.awaitInput(ctx, opts, InputRequest{Name: e.Name, Kind: e.VarType, Line: e.Line})
			if inputErr != nil {
				return true, inputErr
			}
			fmt.Fprintln(stdin, value)
			deadline.Reset(timeout)
		}
		return served, nil
	}

	var runErr error
loop:
	for {
		select {
		case <-done:
			break loop
		case <-ctx.Done():
			killTree(cmd)
			<-done
			runErr = ctx.Err()
			break loop
		case <-deadline.C:
			// The deadline can fire while an input request sits unread in
			// the trace file, since discovery rides the poll tick. One
			// final poll decides between blocked-on-input and runaway; a
			// served request has already restarted the clock.
			served, err := answerPending()
			if err != nil {
				killTree(cmd)
				<-done
				runErr = err
				break loop
			}
			if served {
				continue
			}
			killTree(cmd)
			<-done
			res.TimedOut = true
			break loop
		case <-poll.C:
			if _, err := answerPending(); err != nil {
				killTree(cmd)
				<-done
				runErr = err
				break loop
			}
		}
	}
	stdin.Close()

	res.ExitCode, res.Signal = exitInfo(cmd)
	res.Events, _ = trace.ReadFile(tracePath)
	if out, err := os.ReadFile(stdoutPath); err == nil {
		res.Stdout = string(out)
	}
	log.Debug().Int("events", len(res.Events)).Int("exit", res.ExitCode).
		Bool("timedOut", res.TimedOut).Str("signal", res.Signal).Msg("traced process finished")
	return res, runErr
}

func (t *HookTracer) awaitInput(ctx context.Context, opts Options, req InputRequest) (string, error) {
	inputTimeout := opts.InputTimeout
	if inputTimeout <= 0 {
		inputTimeout = 2 * time.Minute
	}
	type answer struct {
		value string
		err   error
	}
	ch := make(chan answer, 1)
	go func() {
		v, err := opts.OnInput(req)
		ch <- answer{v, err}
	}()
	select {
	case a := <-ch:
		return a.value, a.err
	case <-time.After(inputTimeout):
		return "", ErrInputTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ReplayTracer satisfies Tracer from a previously recorded trace file. It
// backs offline replays and tests that need a deterministic event stream.
type ReplayTracer struct {
	TracePath  string
	StdoutPath string
}

func (t *ReplayTracer) Run(ctx context.Context, binary string, opts Options) (*Result, error) {
	path := t.TracePath
	if path == "" {
		path = filepath.Join(filepath.Dir(binary), "trace.json")
	}
	events, err := trace.ReadFile(path)
	if err != nil {
		return nil, err
	}
	res := &Result{Events: events}
	if t.StdoutPath != "" {
		if out, err := os.ReadFile(t.StdoutPath); err == nil {
			res.Stdout = string(out)
		}
	}
	return res, nil
}
