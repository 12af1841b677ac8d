package trace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// FormatVersion is written into the trace file header. Readers accept any
// version with the same major component; fields are only ever added.
const FormatVersion = "1.0"

// EnvTraceOutput names the environment variable the traced process reads
// to locate its output file.
const EnvTraceOutput = "TRACE_OUTPUT"

// A Writer produces a trace file in the runtime tracer's format:
//
//	{"version":"1.0","events":[ <event>,<event>,... ],"total_events":N}
//
// The header is written on creation and the trailer on Close, mirroring the
// constructor/destructor behavior of the traced process, so a file missing
// its trailer is recognizably truncated but still decodable.
type Writer struct {
	w     io.Writer
	count int64
}

// NewWriter writes the trace file header and returns a Writer.
func NewWriter(w io.Writer) (*Writer, error) {
	if _, err := fmt.Fprintf(w, "{\"version\":%q,\"events\":[\n", FormatVersion); err != nil {
		return nil, err
	}
	return &Writer{w: w}, nil
}

// Append writes one event. Events must be appended in id order.
func (tw *Writer) Append(e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if tw.count > 0 {
		if _, err := io.WriteString(tw.w, ",\n"); err != nil {
			return err
		}
	}
	if _, err := tw.w.Write(data); err != nil {
		return err
	}
	tw.count++
	return nil
}

// Close writes the trailer with the total event count.
func (tw *Writer) Close() error {
	_, err := fmt.Fprintf(tw.w, "\n],\"total_events\":%d}\n", tw.count)
	return err
}

// A Decoder reads events from a trace file incrementally. It tolerates
// truncated files: a stream cut off mid-event or missing its trailer ends
// with io.EOF after the last complete event.
type Decoder struct {
	dec     *json.Decoder
	started bool
	done    bool
}

// NewDecoder positions the decoder at the start of the events array.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: json.NewDecoder(r)}
}

func (d *Decoder) start() error {
	// Walk the envelope tokens until the events array opens.
	for {
		tok, err := d.dec.Token()
		if err != nil {
			return err
		}
		if key, ok := tok.(string); ok && key == "events" {
			if _, err := d.dec.Token(); err != nil { // consume '['
				return err
			}
			d.started = true
			return nil
		}
	}
}

// Next returns the next event, or io.EOF when the stream is exhausted or
// truncated past the last complete event.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{}, io.EOF
	}
	if !d.started {
		if err := d.start(); err != nil {
			d.done = true
			return Event{}, eofOrErr(err)
		}
	}
	if !d.dec.More() {
		d.done = true
		return Event{}, io.EOF
	}
	var e Event
	if err := d.dec.Decode(&e); err != nil {
		d.done = true
		return Event{}, eofOrErr(err)
	}
	return e, nil
}

func eofOrErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return io.EOF
	}
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		// A partially flushed final event reads as a syntax error.
		return io.EOF
	}
	return err
}

// ReadAll decodes every complete event from r.
func ReadAll(r io.Reader) ([]Event, error) {
	dec := NewDecoder(r)
	var events []Event
	for {
		e, err := dec.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}

// ReadFile decodes every complete event from the trace file at path.
func ReadFile(path string) ([]Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ReadAll(bytes.NewReader(data))
}

// A Follower reads a trace file that is still being written, returning only
// events it has not reported before. The traced process flushes after every
// event, so polling the file is enough to observe progress.
type Follower struct {
	path   string
	nextID int64
}

// NewFollower follows the trace file at path.
func NewFollower(path string) *Follower {
	return &Follower{path: path}
}

// Poll returns the events appended since the previous Poll. A missing file
// is not an error; the traced process may not have opened it yet.
func (f *Follower) Poll() ([]Event, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	all, err := ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var fresh []Event
	for _, e := range all {
		if e.ID >= f.nextID {
			fresh = append(fresh, e)
			f.nextID = e.ID + 1
		}
	}
	return fresh, nil
}
