// Package trace records the full line traffic of an engine session
// (outgoing commands, fresh and discarded engine output, diagnostic
// output), multiplexed into one timestamped transcript file.
//
// Frame format, one frame per line of traffic:
//
//	stream timestamp length: content\n
//
// The length prefix makes frames unambiguous even when content contains
// spaces or colons.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Stream names used in session transcripts.
const (
	StreamSend   = "send"   // command written to the engine
	StreamFresh  = "fresh"  // engine line forwarded to the consumer
	StreamStale  = "stale"  // engine line discarded as stale
	StreamStderr = "stderr" // diagnostic output
)

// Frame is one recorded line of traffic.
type Frame struct {
	Stream    string
	Timestamp time.Time // UTC
	Line      string
}

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatFrame renders a frame in transcript format.
func FormatFrame(f Frame) []byte {
	timestamp := f.Timestamp.UTC().Format(timestampLayout)
	out := fmt.Appendf(nil, "%s %s %d: ", f.Stream, timestamp, len(f.Line))
	out = append(out, f.Line...)
	out = append(out, '\n')
	return out
}

// ParseFrame parses a single transcript line produced by FormatFrame.
func ParseFrame(raw string) (Frame, error) {
	var f Frame

	stream, rest, ok := strings.Cut(raw, " ")
	if !ok {
		return f, fmt.Errorf("transcript frame missing stream: %q", raw)
	}
	f.Stream = stream

	timestampStr, rest, ok := strings.Cut(rest, " ")
	if !ok {
		return f, fmt.Errorf("transcript frame missing timestamp: %q", raw)
	}
	timestamp, err := time.Parse(timestampLayout, timestampStr)
	if err != nil {
		return f, fmt.Errorf("parsing transcript timestamp: %w", err)
	}
	f.Timestamp = timestamp

	lengthStr, content, ok := strings.Cut(rest, ": ")
	if !ok {
		return f, fmt.Errorf("transcript frame missing length: %q", raw)
	}
	length, err := strconv.Atoi(lengthStr)
	if err != nil {
		return f, fmt.Errorf("parsing transcript length: %w", err)
	}
	if length != len(content) {
		return f, fmt.Errorf("transcript length mismatch: header says %d, content is %d bytes", length, len(content))
	}
	f.Line = content
	return f, nil
}

// Writer serializes frames onto one io.Writer. Frames flow over a
// buffered channel to a single goroutine that owns the writer, so Line
// is safe to call from the send path and both stream readers at once.
// After Close, further lines are dropped: the engine's reader goroutines
// can still be delivering output while the session is torn down.
type Writer struct {
	mu     sync.Mutex
	closed bool
	frames chan Frame
	done   chan struct{}
}

// NewWriter starts the writing goroutine. It runs until Close is called.
func NewWriter(w io.Writer) *Writer {
	frames := make(chan Frame, 100)
	done := make(chan struct{})

	go func() {
		for f := range frames {
			_, _ = w.Write(FormatFrame(f))
		}
		close(done)
	}()

	return &Writer{frames: frames, done: done}
}

// Line records one line of traffic on the named stream. Lines arriving
// after Close are dropped.
func (w *Writer) Line(stream, line string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.frames <- Frame{Stream: stream, Timestamp: time.Now().UTC(), Line: line}
}

// Close flushes pending frames and stops the writing goroutine.
// Safe to call more than once.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.frames)
	w.mu.Unlock()
	<-w.done
}

// ReadAll parses every frame from a transcript. Used by tests and the
// transcript inspection path; frames that fail to parse end the read
// with an error.
func ReadAll(r io.Reader) ([]Frame, error) {
	var frames []Frame
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		f, err := ParseFrame(scanner.Text())
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
	}
	return frames, scanner.Err()
}
