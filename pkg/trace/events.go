package trace

// Kind identifies what a raw event records. It is a string on the wire so
// that the instrumenter and the runtime can add kinds without breaking
// readers; consumers must tolerate kinds they do not recognize.
type Kind string

const (
	FuncEnter Kind = "func_enter"
	FuncExit  Kind = "func_exit"
	Declare   Kind = "declare"
	Assign    Kind = "assign"
	Var       Kind = "var"
	HeapAlloc Kind = "heap_alloc"
	HeapFree  Kind = "heap_free"

	// Auxiliary kinds emitted by the injected calls. They never become
	// visible steps on their own; the synthesizer absorbs them into the
	// step for their source line.
	Flush        Kind = "flush"
	InputRequest Kind = "input_request"
	LoopStart    Kind = "loop_start"
	LoopBody     Kind = "loop_body"
	LoopCond     Kind = "loop_cond"
	LoopIter     Kind = "loop_iter"
	LoopEnd      Kind = "loop_end"
	Branch       Kind = "branch"
	Control      Kind = "control"
	BlockEnter   Kind = "block_enter"
	BlockExit    Kind = "block_exit"
)

// Core reports whether the kind belongs to the core taxonomy that may
// produce a visible step.
func (k Kind) Core() bool {
	switch k {
	case FuncEnter, FuncExit, Declare, Assign, Var, HeapAlloc, HeapFree:
		return true
	}
	return false
}

// Event is one fact emitted by the runtime tracer during execution.
// Events are append-only: ids are monotonic and insertion-ordered, and a
// written event is never modified.
type Event struct {
	ID        int64  `json:"id"`
	Kind      Kind   `json:"type"`
	Addr      string `json:"addr,omitempty"`
	Func      string `json:"func,omitempty"`
	Depth     int    `json:"depth"`
	Timestamp int64  `json:"ts"`

	// Kind-specific payload. Value holds whatever JSON value the runtime
	// wrote: a number for numeric variables, a string for strings and
	// pointers, an array for array initializers.
	Name    string `json:"name,omitempty"`
	Value   any    `json:"value,omitempty"`
	VarType string `json:"varType,omitempty"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Size    int64  `json:"size,omitempty"`
}
