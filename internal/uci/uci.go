// Package uci covers the small slice of the UCI protocol surface that
// enginebridge needs: the keywords used for command bookkeeping, a few
// command builders, and an availability check for the engine binary.
package uci

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Protocol keywords recognized for command and response bookkeeping.
const (
	// KeywordGo starts an analysis unit that ends with one bestmove line.
	KeywordGo = "go"

	// KeywordIsReady asks the engine to acknowledge once it has drained
	// prior work.
	KeywordIsReady = "isready"

	// KeywordQuit asks the engine to exit.
	KeywordQuit = "quit"

	// KeywordUCINewGame resets the engine's game state.
	KeywordUCINewGame = "ucinewgame"

	// KeywordStop aborts the current analysis.
	KeywordStop = "stop"
)

// Response markers. Matching is substring-based on purpose: engines are
// not required to put the marker first on the line, and some prefix it
// with whitespace or id tokens.
const (
	markerBestMove = "bestmove"
	markerReadyOK  = "readyok"
	markerInfo     = "info"
)

// IsResultLine reports whether line carries the terminal result of an
// analysis unit.
func IsResultLine(line string) bool {
	return strings.Contains(line, markerBestMove)
}

// IsAckLine reports whether line acknowledges an isready command.
func IsAckLine(line string) bool {
	return strings.Contains(line, markerReadyOK)
}

// IsInfoLine reports whether line is informational search output.
func IsInfoLine(line string) bool {
	return strings.Contains(line, markerInfo)
}

// IsAnalysisCommand reports whether command starts an analysis unit.
// Any command beginning with "go" counts ("go infinite", "go depth 20").
func IsAnalysisCommand(command string) bool {
	return strings.HasPrefix(command, KeywordGo)
}

// IsBarrierCommand reports whether command is exactly the ready-check.
func IsBarrierCommand(command string) bool {
	return command == KeywordIsReady
}

// SetOption formats a "setoption" command for a name/value pair.
func SetOption(name, value string) string {
	return fmt.Sprintf("setoption name %s value %s", name, value)
}

// Position formats a "position" command. An empty fen means the
// standard starting position.
func Position(fen string, moves []string) string {
	var b strings.Builder
	b.WriteString("position ")
	if fen == "" {
		b.WriteString("startpos")
	} else {
		b.WriteString("fen ")
		b.WriteString(fen)
	}
	if len(moves) > 0 {
		b.WriteString(" moves ")
		b.WriteString(strings.Join(moves, " "))
	}
	return b.String()
}

// Go formats a "go" command. Empty args means an unbounded search.
func Go(args string) string {
	if args == "" {
		return KeywordGo
	}
	return KeywordGo + " " + args
}

// IsEngineAvailable checks whether the engine executable can be run:
// either found in PATH or an existing file at the given path.
func IsEngineAvailable(path string) bool {
	if strings.ContainsRune(path, os.PathSeparator) {
		info, err := os.Stat(path)
		return err == nil && !info.IsDir()
	}
	_, err := exec.LookPath(path)
	return err == nil
}
