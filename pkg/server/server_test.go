package server

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/websocket"

	"github.com/stepviz/stepviz/pkg/compiler"
	"github.com/stepviz/stepviz/pkg/session"
	"github.com/stepviz/stepviz/pkg/synth"
	"github.com/stepviz/stepviz/pkg/trace"
	"github.com/stepviz/stepviz/pkg/tracer"
)

type stubBuilder struct{}

func (stubBuilder) Compile(ctx context.Context, dir, srcName, lang string) (string, []compiler.Diagnostic, error) {
	return dir + "/prog", nil, nil
}

type stubTracer struct {
	events []trace.Event
	// ask, when set, raises one input request per run; the answered value
	// is sent on got.
	ask *tracer.InputRequest
	got chan string
}

func (s stubTracer) Run(ctx context.Context, binary string, opts tracer.Options) (*tracer.Result, error) {
	if s.ask != nil && opts.OnInput != nil {
		v, err := opts.OnInput(*s.ask)
		if err != nil {
			return nil, err
		}
		s.got <- v
	}
	return &tracer.Result{Events: s.events}, nil
}

// serverMsg is the union of everything the server can send.
type serverMsg struct {
	Type       string         `json:"type"`
	Stage      string         `json:"stage,omitempty"`
	Steps      []synth.Step   `json:"steps,omitempty"`
	TotalSteps int            `json:"totalSteps,omitempty"`
	Success    bool           `json:"success,omitempty"`
	Message    string         `json:"message,omitempty"`
	SourceLine int            `json:"sourceLine,omitempty"`
	Globals    map[string]any `json:"globals,omitempty"`
	Functions  []string       `json:"functions,omitempty"`
	Metadata   synth.Metadata `json:"metadata,omitempty"`
}

func dialTestServer(t *testing.T, events []trace.Event) *websocket.Conn {
	return dialTestServerWith(t, stubTracer{events: events})
}

func dialTestServerWith(t *testing.T, tr stubTracer) *websocket.Conn {
	t.Helper()
	orch := session.NewOrchestrator(stubBuilder{}, tr, session.Options{
		WorkRoot:    t.TempDir(),
		ExecTimeout: time.Second,
		ChunkSize:   2,
	})
	ts := httptest.NewServer(New(orch).Mux())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/trace"
	ws, err := websocket.Dial(url, "", ts.URL)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func recvAll(t *testing.T, ws *websocket.Conn) []serverMsg {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	var msgs []serverMsg
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var msg serverMsg
		require.NoError(t, websocket.JSON.Receive(ws, &msg))
		msgs = append(msgs, msg)
		if msg.Type == "completed" || msg.Type == "error" {
			return msgs
		}
	}
}

func traceEvents() []trace.Event {
	return []trace.Event{
		{ID: 0, Kind: trace.FuncEnter, Func: "main", Depth: 1, Timestamp: 100, File: "main.cpp", Line: 3},
		{ID: 1, Kind: trace.Var, Name: "x", Value: float64(5), VarType: "int", Depth: 1, Timestamp: 110, File: "main.cpp", Line: 4},
		{ID: 2, Kind: trace.FuncExit, Func: "main", Depth: 0, Timestamp: 120, File: "main.cpp", Line: 5},
	}
}

func TestSubmitDeliversChunksThenCompletion(t *testing.T) {
	ws := dialTestServer(t, traceEvents())

	require.NoError(t, websocket.JSON.Send(ws, map[string]string{
		"type":     "submit",
		"code":     "int main() {\n    int x = 5;\n    return 0;\n}\n",
		"language": "cpp",
	}))

	msgs := recvAll(t, ws)
	last := msgs[len(msgs)-1]
	require.Equal(t, "completed", last.Type, "messages: %+v", msgs)
	assert.True(t, last.Success)

	var steps []synth.Step
	sawProgress := false
	for _, m := range msgs {
		switch m.Type {
		case "progress":
			sawProgress = true
		case "chunk":
			steps = append(steps, m.Steps...)
			assert.Contains(t, m.Functions, "main",
				"every chunk carries the run context")
			assert.NotNil(t, m.Globals)
			assert.Equal(t, len(traceEvents()), m.Metadata.TotalEvents)
		}
	}
	assert.True(t, sawProgress)
	require.NotEmpty(t, steps)
	assert.Equal(t, "program_start", steps[0].EventType)
	assert.Equal(t, "program_end", steps[len(steps)-1].EventType)
	assert.Equal(t, last.TotalSteps, len(steps))
}

func TestEmptyTraceReportsError(t *testing.T) {
	ws := dialTestServer(t, nil)

	require.NoError(t, websocket.JSON.Send(ws, map[string]string{
		"type": "submit", "code": "int main() { return 0; }", "language": "c",
	}))

	msgs := recvAll(t, ws)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "error", last.Type)
	assert.Contains(t, last.Message, "no trace")
}

func TestStaleInputDoesNotAnswerNextRun(t *testing.T) {
	got := make(chan string, 1)
	ws := dialTestServerWith(t, stubTracer{
		events: traceEvents(),
		ask:    &tracer.InputRequest{Name: "n", Kind: "int", Line: 4},
		got:    got,
	})

	// An answer sent with nothing pending must not satisfy the next run's
	// first request.
	require.NoError(t, websocket.JSON.Send(ws, map[string]string{
		"type": "input", "value": "stale",
	}))
	require.NoError(t, websocket.JSON.Send(ws, map[string]string{
		"type":     "submit",
		"code":     "int main() {\n    int n;\n    std::cin >> n;\n    return 0;\n}\n",
		"language": "cpp",
	}))

	deadline := time.Now().Add(5 * time.Second)
	for {
		require.NoError(t, ws.SetReadDeadline(deadline))
		var msg serverMsg
		require.NoError(t, websocket.JSON.Receive(ws, &msg))
		if msg.Type == "input_request" {
			assert.Equal(t, 4, msg.SourceLine)
			require.NoError(t, websocket.JSON.Send(ws, map[string]string{
				"type": "input", "value": "42",
			}))
		}
		if msg.Type == "completed" || msg.Type == "error" {
			require.Equal(t, "completed", msg.Type)
			break
		}
	}
	assert.Equal(t, "42", <-got)
}

func TestUnknownMessageType(t *testing.T) {
	ws := dialTestServer(t, nil)
	require.NoError(t, websocket.JSON.Send(ws, map[string]string{"type": "frobnicate"}))
	msgs := recvAll(t, ws)
	assert.Contains(t, msgs[len(msgs)-1].Message, "unknown message type")
}
