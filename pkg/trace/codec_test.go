package trace

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvents() []Event {
	return []Event{
		{ID: 0, Kind: FuncEnter, Func: "main", Depth: 1, Timestamp: 100, File: "main.cpp", Line: 3},
		{ID: 1, Kind: Declare, Name: "x", VarType: "int", Depth: 1, Timestamp: 110, File: "main.cpp", Line: 4},
		{ID: 2, Kind: Var, Name: "x", Value: float64(5), VarType: "int", Depth: 1, Timestamp: 120, File: "main.cpp", Line: 4},
		{ID: 3, Kind: FuncExit, Func: "main", Depth: 0, Timestamp: 130},
	}
}

func TestWriterRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, e := range sampleEvents() {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())

	assert.Contains(t, buf.String(), `"version":"1.0"`)
	assert.Contains(t, buf.String(), `"total_events":4`)

	got, err := ReadAll(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, sampleEvents(), got)
}

func TestDecoderToleratesTruncation(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, e := range sampleEvents() {
		require.NoError(t, w.Append(e))
	}
	// No Close: the traced process died before the destructor ran. Cut the
	// stream mid-way through the final event as well.
	full := buf.String()
	cut := full[:strings.LastIndex(full, `{"id":3`)+12]

	got, err := ReadAll(strings.NewReader(cut))
	require.NoError(t, err)
	require.Len(t, got, 3, "complete events before the cut must survive")
	assert.Equal(t, int64(2), got[2].ID)
}

func TestDecoderEmptyInput(t *testing.T) {
	got, err := ReadAll(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnknownKindRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	require.NoError(t, w.Append(Event{ID: 0, Kind: Kind("from_the_future"), Timestamp: 1}))
	require.NoError(t, w.Close())

	got, err := ReadAll(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, Kind("from_the_future"), got[0].Kind)
	assert.False(t, got[0].Kind.Core())
}

func TestFollowerReturnsOnlyFreshEvents(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trace.json")
	f := NewFollower(path)

	// Missing file: the traced process has not opened it yet.
	events, err := f.Poll()
	require.NoError(t, err)
	assert.Empty(t, events)

	// Header plus one flushed event, no trailer yet.
	require.NoError(t, os.WriteFile(path, []byte(
		"{\"version\":\"1.0\",\"events\":[\n{\"id\":0,\"type\":\"func_enter\",\"func\":\"main\",\"depth\":1,\"ts\":10}"), 0644))
	events, err = f.Poll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, FuncEnter, events[0].Kind)

	// Second event appended; only it is fresh.
	require.NoError(t, os.WriteFile(path, []byte(
		"{\"version\":\"1.0\",\"events\":[\n{\"id\":0,\"type\":\"func_enter\",\"func\":\"main\",\"depth\":1,\"ts\":10},\n"+
			"{\"id\":1,\"type\":\"input_request\",\"name\":\"n\",\"depth\":1,\"ts\":20}"), 0644))
	events, err = f.Poll()
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, InputRequest, events[0].Kind)
	assert.Equal(t, int64(1), events[0].ID)
}

func TestArchiveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "trace.json")
	dst := filepath.Join(dir, "trace.json.zst")

	var buf bytes.Buffer
	w, err := NewWriter(&buf)
	require.NoError(t, err)
	for _, e := range sampleEvents() {
		require.NoError(t, w.Append(e))
	}
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(src, buf.Bytes(), 0644))

	require.NoError(t, ArchiveFile(src, dst))
	got, err := ReadArchive(dst)
	require.NoError(t, err)
	assert.Equal(t, sampleEvents(), got)
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	for _, e := range sampleEvents() {
		require.NoError(t, s.Record(e))
	}
	assert.Len(t, s.Events(), 4)
	s.Clear()
	assert.Empty(t, s.Events())
}
