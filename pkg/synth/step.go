package synth

import "github.com/stepviz/stepviz/pkg/trace"

// Step event types. Every trace starts with ProgramStart and ends with
// ProgramEnd regardless of how the traced program actually terminated.
const (
	ProgramStart = "program_start"
	ProgramEnd   = "program_end"
	FuncEnter    = "func_enter"
	FuncExit     = "func_exit"
	VarStep      = "var"
	HeapAlloc    = "heap_alloc"
	HeapFree     = "heap_free"
)

// Step is the client-facing unit: everything that happened at one point of
// the program, grouped from one or more raw events.
type Step struct {
	StepIndex    int    `json:"stepIndex"`
	EventType    string `json:"eventType"`
	SourceLine   int    `json:"sourceLine"`
	FunctionName string `json:"functionName,omitempty"`
	SourceFile   string `json:"sourceFile,omitempty"`
	Timestamp    *int64 `json:"timestampMicros"`
	Explanation  string `json:"explanation"`

	Name    string `json:"name,omitempty"`
	Value   any    `json:"value,omitempty"`
	VarType string `json:"varType,omitempty"`

	SizeBytes int64  `json:"sizeBytes,omitempty"`
	Address   string `json:"address,omitempty"`

	Stdout string `json:"stdout,omitempty"`

	// InternalEvents preserves, in order, the raw events absorbed into
	// this step but not shown individually.
	InternalEvents []trace.Event `json:"internalEvents,omitempty"`
}

// RunInfo is the per-run context repeated on every chunk, so any chunk a
// client holds is self-describing.
type RunInfo struct {
	// Globals maps variables recorded outside any traced function (static
	// initializers running before main) to their last written value.
	Globals map[string]any `json:"globals"`
	// Functions lists the user functions entered, in first-call order.
	Functions []string `json:"functions"`
	Metadata  Metadata `json:"metadata"`
}

// Metadata describes the run the steps were synthesized from.
type Metadata struct {
	Language    string `json:"language,omitempty"`
	SourceFile  string `json:"sourceFile,omitempty"`
	TotalEvents int    `json:"totalEvents"`
	Truncated   bool   `json:"truncated"`
}

// Chunk is one delivery unit. Chunk boundaries carry no meaning beyond
// bounding message size; clients concatenate steps in chunk order.
type Chunk struct {
	ChunkID     int            `json:"chunkId"`
	TotalChunks int            `json:"totalChunks"`
	Steps       []Step         `json:"steps"`
	TotalSteps  int            `json:"totalSteps"`
	Globals     map[string]any `json:"globals"`
	Functions   []string       `json:"functions"`
	Metadata    Metadata       `json:"metadata"`
}

// Split partitions steps into chunks of at most size steps, stamping the
// run context onto each.
func Split(steps []Step, size int, info RunInfo) []Chunk {
	if size <= 0 {
		size = 100
	}
	if info.Globals == nil {
		info.Globals = map[string]any{}
	}
	if info.Functions == nil {
		info.Functions = []string{}
	}
	total := (len(steps) + size - 1) / size
	if total == 0 {
		total = 1
	}
	chunks := make([]Chunk, 0, total)
	for i := 0; i < total; i++ {
		lo := i * size
		hi := lo + size
		if hi > len(steps) {
			hi = len(steps)
		}
		chunks = append(chunks, Chunk{
			ChunkID:     i,
			TotalChunks: total,
			Steps:       steps[lo:hi],
			TotalSteps:  len(steps),
			Globals:     info.Globals,
			Functions:   info.Functions,
			Metadata:    info.Metadata,
		})
	}
	return chunks
}
