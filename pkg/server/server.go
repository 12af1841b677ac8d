package server

import (
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"

	"github.com/stepviz/stepviz/pkg/session"
	"github.com/stepviz/stepviz/pkg/synth"
	"github.com/stepviz/stepviz/pkg/tracer"
)

// Server exposes the trace pipeline over a persistent WebSocket channel.
// Each connection drives at most one submission at a time; a new submit
// cancels the one in flight.
type Server struct {
	orch *session.Orchestrator
}

func New(orch *session.Orchestrator) *Server {
	return &Server{orch: orch}
}

// Handler returns the WebSocket endpoint handler.
func (s *Server) Handler() http.Handler {
	return websocket.Handler(s.handle)
}

// Mux returns the full HTTP mux: the trace channel plus a health probe.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/trace", s.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// clientMsg is anything the client sends.
type clientMsg struct {
	Type     string `json:"type"` // submit | input | pause | resume | cancel
	Code     string `json:"code,omitempty"`
	Language string `json:"language,omitempty"`
	Value    string `json:"value,omitempty"`
}

type progressMsg struct {
	Type    string `json:"type"`
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

type chunkMsg struct {
	Type string `json:"type"`
	synth.Chunk
}

type completedMsg struct {
	Type       string `json:"type"`
	TotalSteps int    `json:"totalSteps"`
	Success    bool   `json:"success"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

type inputRequestMsg struct {
	Type         string `json:"type"`
	SourceLine   int    `json:"sourceLine"`
	Prompt       string `json:"prompt"`
	ExpectedKind string `json:"expectedKind"`
}

// conn is one client connection. It is the session.Listener for whatever
// submission the client currently has running.
type conn struct {
	ws *websocket.Conn

	sendMu sync.Mutex // websocket writes are not concurrency safe

	mu     sync.Mutex
	sess   *session.Session
	inputs chan string
	closed bool
}

func (s *Server) handle(ws *websocket.Conn) {
	c := &conn{ws: ws, inputs: make(chan string, 1)}
	defer c.close()
	log.Debug().Str("remote", ws.Request().RemoteAddr).Msg("client connected")

	for {
		var msg clientMsg
		if err := websocket.JSON.Receive(ws, &msg); err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msg("receive failed")
			}
			return
		}
		switch msg.Type {
		case "submit":
			c.submit(s, msg)
		case "input":
			c.supplyInput(msg.Value)
		case "pause":
			c.withSession(func(sess *session.Session) { sess.Pause() })
		case "resume":
			c.withSession(func(sess *session.Session) { sess.Resume() })
		case "cancel":
			c.withSession(func(sess *session.Session) { sess.Cancel() })
		default:
			c.send(errorMsg{Type: "error", Message: "unknown message type: " + msg.Type})
		}
	}
}

func (c *conn) submit(s *Server, msg clientMsg) {
	c.mu.Lock()
	if c.sess != nil {
		c.sess.Cancel()
	}
	// Each submission gets a fresh input channel: an answer buffered after
	// a previous run ended must not satisfy this run's first request.
	// Closing the old one also unblocks a stale input wait.
	close(c.inputs)
	c.inputs = make(chan string, 1)
	c.mu.Unlock()

	sess := s.orch.Submit(c.ws.Request().Context(), session.Submission{
		Code:     msg.Code,
		Language: msg.Language,
	}, c)

	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()
	log.Info().Str("session", sess.ID).Str("lang", msg.Language).Msg("submission accepted")
}

func (c *conn) supplyInput(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.inputs <- value:
	default:
		// No pending request; stale or duplicate answer, dropped.
	}
}

func (c *conn) withSession(f func(*session.Session)) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess != nil {
		f(sess)
	}
}

func (c *conn) close() {
	c.mu.Lock()
	if c.sess != nil {
		c.sess.Cancel()
	}
	c.closed = true
	close(c.inputs)
	c.mu.Unlock()
}

func (c *conn) send(v any) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := websocket.JSON.Send(c.ws, v); err != nil {
		log.Debug().Err(err).Msg("send failed")
	}
}

// session.Listener implementation. Calls arrive from the submission's
// worker goroutine.

func (c *conn) Progress(stage string, percent int, message string) {
	c.send(progressMsg{Type: "progress", Stage: stage, Percent: percent, Message: message})
}

func (c *conn) Chunk(chunk synth.Chunk) {
	c.send(chunkMsg{Type: "chunk", Chunk: chunk})
}

func (c *conn) Completed(totalSteps int) {
	c.send(completedMsg{Type: "completed", TotalSteps: totalSteps, Success: true})
}

func (c *conn) Errored(message, details string) {
	c.send(errorMsg{Type: "error", Message: message, Details: details})
}

func (c *conn) RequestInput(req tracer.InputRequest) (string, error) {
	c.mu.Lock()
	inputs := c.inputs
	c.mu.Unlock()
	c.send(inputRequestMsg{
		Type:         "input_request",
		SourceLine:   req.Line,
		Prompt:       "Enter value for " + req.Name,
		ExpectedKind: req.Kind,
	})
	v, ok := <-inputs
	if !ok {
		return "", errors.New("connection closed while awaiting input")
	}
	return v, nil
}
