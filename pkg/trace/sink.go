package trace

import (
	"bufio"
	"os"
)

// Sink receives events as they are produced. The file-backed implementation
// writes the same format the runtime tracer emits, so fixtures recorded
// through a Sink are interchangeable with real trace files.
type Sink interface {
	Record(e Event) error
	Events() []Event
	Clear()
}

// MemorySink accumulates events in memory.
type MemorySink struct {
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{events: []Event{}}
}

func (s *MemorySink) Record(e Event) error {
	s.events = append(s.events, e)
	return nil
}

func (s *MemorySink) Events() []Event {
	return s.events
}

func (s *MemorySink) Clear() {
	s.events = []Event{}
}

// FileSink records events to a trace file, flushing after every event so a
// reader can follow the file while it grows.
type FileSink struct {
	file   *os.File
	buf    *bufio.Writer
	writer *Writer
	events []Event
}

// NewFileSink creates the trace file at path, truncating any previous one.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	w, err := NewWriter(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := buf.Flush(); err != nil {
		f.Close()
		return nil, err
	}
	return &FileSink{file: f, buf: buf, writer: w}, nil
}

func (s *FileSink) Record(e Event) error {
	if err := s.writer.Append(e); err != nil {
		return err
	}
	s.events = append(s.events, e)
	return s.buf.Flush()
}

func (s *FileSink) Events() []Event {
	return s.events
}

func (s *FileSink) Clear() {
	s.events = nil
}

// Close writes the trailer and closes the file.
func (s *FileSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.file.Close()
}
