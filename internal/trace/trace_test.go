package trace

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormatAndParseFrame(t *testing.T) {
	tests := []struct {
		name string
		f    Frame
	}{
		{"command", Frame{Stream: StreamSend, Timestamp: time.Date(2025, 1, 2, 3, 4, 5, 123456789, time.UTC), Line: "go infinite"}},
		{"colon and spaces in content", Frame{Stream: StreamFresh, Timestamp: time.Now().UTC(), Line: "info depth 12 score cp 34 pv e2e4: x"}},
		{"empty line", Frame{Stream: StreamStderr, Timestamp: time.Now().UTC(), Line: ""}},
		{"stale", Frame{Stream: StreamStale, Timestamp: time.Now().UTC(), Line: "bestmove e2e4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := FormatFrame(tt.f)
			got, err := ParseFrame(strings.TrimSuffix(string(raw), "\n"))
			require.NoError(t, err)

			if got.Stream != tt.f.Stream {
				t.Errorf("Stream = %q, want %q", got.Stream, tt.f.Stream)
			}
			if got.Line != tt.f.Line {
				t.Errorf("Line = %q, want %q", got.Line, tt.f.Line)
			}
			if !got.Timestamp.Equal(tt.f.Timestamp.Truncate(time.Nanosecond)) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, tt.f.Timestamp)
			}
		})
	}
}

func TestParseFrameErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"no timestamp", "send"},
		{"bad timestamp", "send not-a-time 3: abc"},
		{"no length", "send 2025-01-02T03:04:05.000000000Z"},
		{"bad length", "send 2025-01-02T03:04:05.000000000Z x: abc"},
		{"length mismatch", "send 2025-01-02T03:04:05.000000000Z 99: abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFrame(tt.raw); err == nil {
				t.Errorf("ParseFrame(%q) succeeded, want error", tt.raw)
			}
		})
	}
}

func TestWriterMultiplexesStreams(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.Line(StreamSend, "isready")
	w.Line(StreamFresh, "readyok")
	w.Line(StreamStale, "bestmove a1a2")
	w.Close()

	frames, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, frames, 3)

	if frames[0].Stream != StreamSend || frames[0].Line != "isready" {
		t.Errorf("frame 0 = %+v", frames[0])
	}
	if frames[1].Stream != StreamFresh || frames[1].Line != "readyok" {
		t.Errorf("frame 1 = %+v", frames[1])
	}
	if frames[2].Stream != StreamStale || frames[2].Line != "bestmove a1a2" {
		t.Errorf("frame 2 = %+v", frames[2])
	}
}

func TestNilWriterIsNoOp(t *testing.T) {
	var w *Writer
	w.Line(StreamSend, "go") // must not panic
	w.Close()
}

func TestLineAfterCloseIsDropped(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	w.Line(StreamFresh, "readyok")
	w.Close()

	// The engine's reader goroutines can deliver lines after the
	// session is torn down; those must be dropped, not crash.
	w.Line(StreamStale, "bestmove e2e4")
	w.Close() // double close is safe too

	frames, err := ReadAll(&buf)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	if frames[0].Line != "readyok" {
		t.Errorf("got %q, want readyok", frames[0].Line)
	}
}
