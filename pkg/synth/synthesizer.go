package synth

import (
	"github.com/rs/zerolog/log"

	"github.com/stepviz/stepviz/pkg/trace"
)

// Options configures one synthesis pass.
type Options struct {
	// MaxSteps bounds the number of visible steps (sentinels excluded).
	MaxSteps int
	// SourceFile is the display name of the submitted source, used for the
	// start/end sentinels when no event names a file.
	SourceFile string
	Filter     FilterOptions
}

// DefaultMaxSteps bounds traces from runaway loops.
const DefaultMaxSteps = 1000

// Synthesizer turns a finished raw event sequence into the step sequence
// delivered to clients.
type Synthesizer struct {
	opts Options
}

func New(opts Options) *Synthesizer {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	if opts.Filter.ExcludeFilePatterns == nil && opts.Filter.ExcludeFuncPrefixes == nil {
		opts.Filter = DefaultFilterOptions()
	}
	return &Synthesizer{opts: opts}
}

// builder carries the grouping state while walking the event sequence.
type builder struct {
	steps     []Step
	cur       *Step
	curKey    stepKey
	curClosed bool // func steps never absorb later events

	// cursor: the last (file, line) any event carried; events without
	// location (heap operations) inherit it.
	file string
	line int

	funcStack []string
	prelude   []trace.Event // events seen before the first step opens

	globals  map[string]any
	funcs    []string
	funcSeen map[string]bool

	stdout    string
	stdoutOff int64
	truncated bool
}

type stepKey struct {
	file string
	line int
}

// Synthesize groups raw events into visualization steps: at most one
// visible step per consecutive run of events sharing a (file, line) key,
// with the rest preserved under InternalEvents. A program_start step is
// unconditionally prepended and a program_end step appended, whether or not
// the traced program reached those boundaries normally. The returned
// RunInfo is the run-level context stamped onto every delivered chunk.
func (s *Synthesizer) Synthesize(events []trace.Event, stdout string) ([]Step, RunInfo) {
	b := &builder{stdout: stdout, globals: map[string]any{}, funcSeen: map[string]bool{}}

	for _, e := range events {
		if !s.keep(e) {
			continue
		}
		b.note(e)
		if b.visible() >= s.opts.MaxSteps {
			b.truncated = true
			break
		}
		s.place(b, e)
	}
	b.finalize()

	return s.seal(b, events)
}

// note records run-level context independent of step grouping.
func (b *builder) note(e trace.Event) {
	switch e.Kind {
	case trace.FuncEnter:
		if !b.funcSeen[e.Func] {
			b.funcSeen[e.Func] = true
			b.funcs = append(b.funcs, e.Func)
		}
	case trace.Declare, trace.Var, trace.Assign:
		// Depth zero means no traced function has entered yet: a static
		// initializer writing before main.
		if e.Depth == 0 && e.Name != "" {
			b.globals[e.Name] = e.Value
		}
	}
}

// keep drops events originating outside user code before grouping.
func (s *Synthesizer) keep(e trace.Event) bool {
	if e.File != "" && !s.opts.Filter.keepFile(e.File) {
		return false
	}
	if e.Kind == trace.FuncEnter || e.Kind == trace.FuncExit {
		return s.opts.Filter.keepFunc(e.Func)
	}
	return true
}

func (s *Synthesizer) place(b *builder, e trace.Event) {
	if e.File != "" {
		b.file = e.File
	}
	if e.Line > 0 {
		b.line = e.Line
	}

	switch e.Kind {
	case trace.FuncEnter, trace.FuncExit:
		b.finalize()
		b.openStep(e, e.Kind == trace.FuncEnter)
		if e.Kind == trace.FuncEnter {
			b.funcStack = append(b.funcStack, e.Func)
		} else if n := len(b.funcStack); n > 0 {
			b.funcStack = b.funcStack[:n-1]
		}
		b.curClosed = true
		return
	case trace.Flush:
		// Slice the captured output up to this flush offset onto the
		// step whose line produced it.
		if e.Size > b.stdoutOff && b.cur != nil {
			b.cur.Stdout += b.slice(e.Size)
		}
		b.absorb(e)
		return
	}

	if !e.Kind.Core() {
		// Loop/branch markers and kinds from a newer tracer: absorbed,
		// never visible on their own.
		b.absorb(e)
		return
	}

	key := stepKey{file: b.file, line: b.line}
	if b.cur != nil && !b.curClosed && key == b.curKey {
		b.absorb(e)
		return
	}
	b.finalize()
	b.openStep(e, false)
}

func (b *builder) openStep(e trace.Event, isEnter bool) {
	ts := e.Timestamp
	st := &Step{
		EventType:    stepType(e.Kind),
		SourceLine:   b.line,
		SourceFile:   b.file,
		FunctionName: b.currentFunc(),
		Timestamp:    &ts,
	}
	if isEnter {
		st.FunctionName = e.Func
	}
	switch e.Kind {
	case trace.Declare, trace.Assign, trace.Var:
		st.Name = e.Name
		st.Value = e.Value
		st.VarType = e.VarType
	case trace.HeapAlloc, trace.HeapFree:
		st.SizeBytes = e.Size
		st.Address = e.Addr
	}
	if len(b.prelude) > 0 {
		st.InternalEvents = append(st.InternalEvents, b.prelude...)
		b.prelude = nil
	}
	b.cur = st
	b.curKey = stepKey{file: b.file, line: b.line}
	b.curClosed = false
}

// absorb appends e to the current step, letting a later, richer event fill
// payload fields the primary event lacked.
func (b *builder) absorb(e trace.Event) {
	if b.cur == nil {
		b.prelude = append(b.prelude, e)
		return
	}
	b.cur.InternalEvents = append(b.cur.InternalEvents, e)
	switch e.Kind {
	case trace.Var, trace.Assign:
		if b.cur.Value == nil && e.Value != nil {
			b.cur.Name = e.Name
			b.cur.Value = e.Value
			if e.VarType != "" {
				b.cur.VarType = e.VarType
			}
		}
	case trace.HeapAlloc, trace.HeapFree:
		if b.cur.Address == "" {
			b.cur.SizeBytes = e.Size
			b.cur.Address = e.Addr
		}
	}
}

// visible counts finalized steps plus the one still open.
func (b *builder) visible() int {
	if b.cur != nil {
		return len(b.steps) + 1
	}
	return len(b.steps)
}

func (b *builder) finalize() {
	if b.cur == nil {
		return
	}
	b.cur.Explanation = explain(b.cur)
	b.steps = append(b.steps, *b.cur)
	b.cur = nil
}

func (b *builder) currentFunc() string {
	if n := len(b.funcStack); n > 0 {
		return b.funcStack[n-1]
	}
	return "main"
}

func (b *builder) slice(to int64) string {
	if to > int64(len(b.stdout)) {
		to = int64(len(b.stdout))
	}
	if to <= b.stdoutOff {
		return ""
	}
	out := b.stdout[b.stdoutOff:to]
	b.stdoutOff = to
	return out
}

// seal wraps the grouped steps in the start/end sentinels and assigns dense
// indices.
func (s *Synthesizer) seal(b *builder, raw []trace.Event) ([]Step, RunInfo) {
	file := s.opts.SourceFile
	startLine := 1
	if len(b.steps) > 0 {
		file = b.steps[0].SourceFile
		startLine = b.steps[0].SourceLine
	}

	start := Step{
		EventType:    ProgramStart,
		SourceLine:   startLine,
		SourceFile:   file,
		FunctionName: "main",
		Explanation:  "Program started",
	}
	end := Step{
		EventType:    ProgramEnd,
		SourceLine:   0,
		SourceFile:   file,
		FunctionName: "main",
		Explanation:  "Program finished",
	}
	if len(raw) > 0 {
		first, last := raw[0].Timestamp, raw[len(raw)-1].Timestamp
		start.Timestamp = &first
		end.Timestamp = &last
	}
	if len(b.prelude) > 0 {
		start.InternalEvents = b.prelude
	}
	if rest := b.slice(int64(len(b.stdout))); rest != "" {
		end.Stdout = rest
	}
	if b.truncated {
		end.Explanation = "Program finished (trace truncated)"
		log.Warn().Int("maxSteps", s.opts.MaxSteps).Msg("step limit reached; trace truncated")
	}

	steps := make([]Step, 0, len(b.steps)+2)
	steps = append(steps, start)
	steps = append(steps, b.steps...)
	steps = append(steps, end)
	for i := range steps {
		steps[i].StepIndex = i
	}
	info := RunInfo{
		Globals:   b.globals,
		Functions: b.funcs,
		Metadata: Metadata{
			SourceFile:  file,
			TotalEvents: len(raw),
			Truncated:   b.truncated,
		},
	}
	if info.Functions == nil {
		info.Functions = []string{}
	}
	return steps, info
}

func stepType(k trace.Kind) string {
	switch k {
	case trace.FuncEnter:
		return FuncEnter
	case trace.FuncExit:
		return FuncExit
	case trace.HeapAlloc:
		return HeapAlloc
	case trace.HeapFree:
		return HeapFree
	default:
		return VarStep
	}
}
