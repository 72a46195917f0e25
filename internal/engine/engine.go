// Package engine owns the chess engine child process: spawning, the
// writable command sink (stdin), and per-line delivery of the two output
// streams. It knows nothing about the UCI protocol; callers get raw lines
// in arrival order.
package engine

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/creack/pty"
)

// SpawnOptions configures how the engine process is started.
type SpawnOptions struct {
	// Args are passed to the engine executable.
	Args []string

	// UsePTY runs the engine on a pseudo-terminal. Some engines
	// block-buffer stdout when it is not a terminal, which delays line
	// delivery; a pty forces line buffering. In pty mode stderr is
	// merged into the primary stream by the terminal driver.
	UsePTY bool
}

// Engine is an exclusively owned handle to a running engine process.
type Engine struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	ptmx  *os.File // nil unless UsePTY

	stdout io.Reader
	stderr io.Reader // nil in pty mode

	writeMu sync.Mutex
	started bool

	done    chan struct{}
	waitErr error
}

// Spawn starts the engine executable with the directory containing the
// executable as working directory. The process is started but no output
// is consumed until Start is called.
func Spawn(path string, opts SpawnOptions) (*Engine, error) {
	resolved := path
	if !strings.ContainsRune(path, os.PathSeparator) {
		p, err := exec.LookPath(path)
		if err != nil {
			return nil, fmt.Errorf("engine not found in PATH: %w", err)
		}
		resolved = p
	}

	cmd := exec.Command(resolved, opts.Args...)
	cmd.Dir = filepath.Dir(resolved)

	e := &Engine{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	if opts.UsePTY {
		ptmx, err := pty.Start(cmd)
		if err != nil {
			return nil, fmt.Errorf("failed to start engine with pty: %w", err)
		}
		e.ptmx = ptmx
		e.stdin = ptmx
		e.stdout = ptmx
		return e, nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	e.stdin = stdin
	e.stdout = stdout
	e.stderr = stderr
	return e, nil
}

// Start launches one reader goroutine per output stream. Each stream
// delivers lines to its callback in strict arrival order; the two
// streams are independent of each other. Must be called exactly once.
func (e *Engine) Start(onStdout, onStderr func(line string)) {
	if e.started {
		return
	}
	e.started = true

	readersDone := make(chan struct{}, 2)
	go readLines(e.stdout, onStdout, readersDone)
	if e.stderr != nil {
		go readLines(e.stderr, onStderr, readersDone)
	} else {
		readersDone <- struct{}{}
	}

	go func() {
		<-readersDone
		<-readersDone
		e.waitErr = e.cmd.Wait()
		close(e.done)
	}()
}

// WriteLine writes one command line, newline-terminated, to the engine's
// stdin. Safe for concurrent use.
func (e *Engine) WriteLine(line string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if _, err := e.stdin.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write to engine stdin: %w", err)
	}
	return nil
}

// PID returns the OS process ID of the engine.
func (e *Engine) PID() int {
	return e.cmd.Process.Pid
}

// Wait blocks until the process has exited and both readers have
// drained, then returns the process exit error, if any.
func (e *Engine) Wait() error {
	<-e.done
	return e.waitErr
}

// Close closes the engine's stdin. For a well-behaved engine that was
// sent "quit" this is enough for it to exit; the engine package never
// kills the process.
func (e *Engine) Close() error {
	if e.ptmx != nil {
		return e.ptmx.Close()
	}
	return e.stdin.Close()
}

// readLines reads lines from one stream and hands them to deliver, then
// signals done. Read errors end the stream; a pty master returns an
// error (EIO on Linux) when the child exits, which is a normal EOF here.
func readLines(reader io.Reader, deliver func(string), done chan<- struct{}) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		deliver(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !isExpectedReadError(err) {
		slog.Error("Error reading engine output", "error", err)
	}
	done <- struct{}{}
}

func isExpectedReadError(err error) bool {
	// "input/output error" is what a closed pty master produces
	return strings.Contains(err.Error(), "input/output error") ||
		strings.Contains(err.Error(), "file already closed")
}
