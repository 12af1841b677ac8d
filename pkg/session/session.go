package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/stepviz/stepviz/pkg/synth"
	"github.com/stepviz/stepviz/pkg/tracer"
)

// State of one submission. Failed is absorbing and reachable from any stage.
type State string

const (
	StateReceived      State = "received"
	StateInstrumenting State = "instrumenting"
	StateCompiling     State = "compiling"
	StateExecuting     State = "executing"
	StateAwaitingInput State = "awaiting_input"
	StateSynthesizing  State = "synthesizing"
	StateDelivering    State = "delivering"
	StateComplete      State = "complete"
	StateFailed        State = "failed"
)

// Submission is one program to trace.
type Submission struct {
	Code     string
	Language string // "c" or "cpp"
}

// Listener receives a submission's outward-facing signals. Calls arrive from
// the submission's worker goroutine, strictly ordered: progress events, then
// chunks, then exactly one of Completed or Errored. RequestInput may be
// called any number of times while the program executes; it blocks the run
// until a value is returned.
type Listener interface {
	Progress(stage string, percent int, message string)
	Chunk(chunk synth.Chunk)
	Completed(totalSteps int)
	Errored(message, details string)
	RequestInput(req tracer.InputRequest) (string, error)
}

// Progress stages reported to clients.
const (
	StageCompiling  = "compiling"
	StageExecuting  = "executing"
	StageAnalyzing  = "analyzing"
	StageFormatting = "formatting"
)

// Session is one submission's run, from Received to Complete or Failed.
type Session struct {
	ID string

	mu     sync.Mutex
	state  State
	paused chan struct{} // non-nil while paused; closed on resume
	cancel func()
}

func newSession(cancel func()) *Session {
	return &Session{
		ID:     uuid.NewString(),
		state:  StateReceived,
		cancel: cancel,
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Cancel aborts the run: the subprocess tree is killed and the session
// transitions to Failed.
func (s *Session) Cancel() {
	s.cancel()
}

// Pause suspends chunk delivery after the in-flight chunk. Execution of the
// traced program is unaffected; only the outward stream stops.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused == nil {
		s.paused = make(chan struct{})
	}
}

// Resume releases a paused delivery stream.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused != nil {
		close(s.paused)
		s.paused = nil
	}
}

// gate returns the channel a paused deliverer waits on, or nil when running.
func (s *Session) gate() chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}
