package session

import (
	"enginebridge/internal/trace"
	"enginebridge/internal/uci"
)

// class is the verdict on one line of primary engine output.
type class int

const (
	classFresh class = iota
	classStale
)

// classify decides whether a primary-output line is relevant to the most
// recently issued command or leftover output from a superseded one, and
// performs the exactly-once counter mutation for the line. The caller
// must hold s.mu and must call classify once per line, in arrival order.
//
// The order of the steps is load-bearing. Decrements happen before the
// staleness tests so that the last outstanding result is the one that
// brings pendingResults to zero and is therefore recognized as fresh.
// The asymmetry between the two tests (results stale above one
// outstanding, everything stale above zero outstanding acks) encodes
// the actual synchronization heuristic: with two or more unresolved
// analysis commands no line can be attributed to the newest one, and
// while a ready-check is unanswered the engine's output cannot be
// trusted at all, because ack timing relative to position changes is
// not guaranteed.
func (s *Session) classify(line string) class {
	isResult := uci.IsResultLine(line)

	if isResult && s.pendingResults > 0 {
		s.pendingResults--
	}
	if uci.IsAckLine(line) && s.pendingAcks > 0 {
		s.pendingAcks--
	}

	if s.pendingResults > 1 {
		return classStale
	}
	if isResult && s.pendingResults > 0 {
		// This result line closed an older analysis command; only the
		// decrement that reaches zero belongs to the newest one.
		return classStale
	}
	if s.pendingAcks > 0 {
		return classStale
	}
	return classFresh
}

// handleEngineLine is the primary-output entry point. It is invoked by a
// single reader goroutine, so lines are filtered one at a time in
// arrival order. The consumer runs outside the lock: it may call Send.
func (s *Session) handleEngineLine(line string) {
	s.mu.Lock()
	verdict := s.classify(line)
	consumer := s.fresh
	s.mu.Unlock()

	if verdict == classStale {
		// Discarded lines are nearly all search output; logging them is
		// opt-in together with info lines.
		if s.opts.LogInfoLines {
			s.logger.Debug("Discarding stale engine output", "line", line)
		}
		s.opts.Trace.Line(trace.StreamStale, line)
		return
	}

	if s.opts.LogInfoLines || !uci.IsInfoLine(line) {
		s.logger.Info("Engine output", "line", line)
	}
	s.opts.Trace.Line(trace.StreamFresh, line)
	consumer(line)
}

// handleDiagnosticLine forwards diagnostic-stream lines unconditionally.
// They bypass the filter: stderr has no ordering relationship with the
// command stream and carries no protocol markers.
func (s *Session) handleDiagnosticLine(line string) {
	s.mu.Lock()
	consumer := s.diag
	s.mu.Unlock()

	s.logger.Info("Engine diagnostic output", "line", line)
	s.opts.Trace.Line(trace.StreamStderr, line)
	consumer(line)
}
