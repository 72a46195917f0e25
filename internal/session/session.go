// Package session manages one conversation with a UCI engine process.
//
// UCI gives no way to correlate a response with the command that caused
// it: output for a superseded position can still be in flight when a new
// command is written. The session therefore keeps two counters, one for
// outstanding analysis commands and one for outstanding ready-checks,
// and runs every engine line through a staleness filter before it
// reaches the application. See filter.go for the classification rules.
package session

import (
	"log/slog"
	"strings"
	"sync"

	"enginebridge/internal/engine"
	"enginebridge/internal/trace"
	"enginebridge/internal/uci"
)

// Consumer receives one line of engine output.
type Consumer func(line string)

// Notifier receives the one-time crash notification when the engine
// stops accepting commands after having previously accepted at least
// one. The CLI installs one that alerts the user; tests install a
// recorder.
type Notifier interface {
	EngineCrashed(err error)
}

// Options configures per-session behavior.
type Options struct {
	// LogInfoLines controls whether discarded lines and fresh lines
	// carrying the "info" marker appear in the log. Search output is
	// high-volume, so this defaults to off.
	LogInfoLines bool

	// Trace, if set, records all session traffic. May be nil.
	Trace *trace.Writer
}

// commandSink is the writable side of the engine process.
type commandSink interface {
	WriteLine(line string) error
}

// Session is the single stateful entity: the engine handle, the two
// pending counters, and the bound consumers.
type Session struct {
	logger   *slog.Logger
	notifier Notifier
	opts     Options

	mu             sync.Mutex
	sink           commandSink
	eng            *engine.Engine
	pendingResults int
	pendingAcks    int
	everSent       bool
	crashWarned    bool
	fresh          Consumer
	diag           Consumer
}

// New creates an unbound session. Setup must be called before Send has
// any effect.
func New(logger *slog.Logger, notifier Notifier, opts Options) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger:   logger,
		notifier: notifier,
		opts:     opts,
		fresh:    func(string) {},
		diag:     func(string) {},
	}
}

// Setup binds the consumers, resets both pending counters, spawns the
// engine, and wires its output streams into the staleness filter. A
// spawn failure is returned to the caller and leaves the session with no
// bound process, so all subsequent Sends are no-ops. A session must not
// be set up twice.
func (s *Session) Setup(path string, spawn engine.SpawnOptions, fresh, diagnostic Consumer) error {
	if fresh == nil {
		fresh = func(string) {}
	}
	if diagnostic == nil {
		diagnostic = func(string) {}
	}

	eng, err := engine.Spawn(path, spawn)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.fresh = fresh
	s.diag = diagnostic
	s.pendingResults = 0
	s.pendingAcks = 0
	s.sink = eng
	s.eng = eng
	s.mu.Unlock()

	eng.Start(s.handleEngineLine, s.handleDiagnosticLine)
	s.logger.Info("Engine session started", "engine", path, "pid", eng.PID())
	return nil
}

// Send writes one trimmed command line to the engine. It is a no-op
// when no process is bound. Commands that start an analysis unit or
// request a ready acknowledgement bump the matching pending counter
// before the write, so that engine output arriving from this moment on
// is judged against the new expectation.
func (s *Session) Send(command string) {
	command = strings.TrimSpace(command)

	s.mu.Lock()
	if s.sink == nil {
		s.mu.Unlock()
		return
	}
	if uci.IsAnalysisCommand(command) {
		s.pendingResults++
	}
	if uci.IsBarrierCommand(command) {
		s.pendingAcks++
	}
	sink := s.sink
	err := sink.WriteLine(command)
	if err == nil {
		s.everSent = true
		s.mu.Unlock()
		s.logger.Info("Sent to engine", "command", command)
		s.opts.Trace.Line(trace.StreamSend, command)
		return
	}

	warn := s.everSent && !s.crashWarned
	if warn {
		s.crashWarned = true
	}
	s.mu.Unlock()

	s.logger.Error("Failed to send to engine", "command", command, "error", err)
	if warn && s.notifier != nil {
		s.notifier.EngineCrashed(err)
	}
}

// SetOption formats and sends a "setoption" command and returns the
// formatted command string for display.
func (s *Session) SetOption(name, value string) string {
	command := uci.SetOption(name, value)
	s.Send(command)
	return command
}

// Shutdown detaches both consumers, so in-flight lines are dropped
// silently from here on, and asks the engine to exit. The process
// itself is not killed or reaped here; callers that need to block on
// engine exit use Wait. A session must not be reused after Shutdown.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.fresh = func(string) {}
	s.diag = func(string) {}
	s.mu.Unlock()

	s.Send(uci.KeywordQuit)
}

// PID returns the engine's process ID, or 0 if no process is bound.
func (s *Session) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eng == nil {
		return 0
	}
	return s.eng.PID()
}

// Wait blocks until the engine process has exited.
func (s *Session) Wait() error {
	s.mu.Lock()
	eng := s.eng
	s.mu.Unlock()
	if eng == nil {
		return nil
	}
	return eng.Wait()
}
