package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeFakeEngine writes a minimal UCI-speaking shell script and returns
// its path.
func writeFakeEngine(t *testing.T) string {
	t.Helper()

	script := `#!/bin/sh
while read line; do
  case "$line" in
    isready) echo "readyok" ;;
    go*) echo "info depth 1 score cp 10"
         echo "bestmove e2e4" ;;
    diag) echo "boom" >&2 ;;
    quit) exit 0 ;;
  esac
done
`
	path := filepath.Join(t.TempDir(), "fake-engine")
	err := os.WriteFile(path, []byte(script), 0700)
	require.NoError(t, err)
	return path
}

func collect(t *testing.T, ch <-chan string, want string) string {
	t.Helper()
	select {
	case line := <-ch:
		return line
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
		return ""
	}
}

func TestSpawnAndLineDelivery(t *testing.T) {
	path := writeFakeEngine(t)

	eng, err := Spawn(path, SpawnOptions{})
	require.NoError(t, err)

	stdout := make(chan string, 16)
	stderr := make(chan string, 16)
	eng.Start(
		func(line string) { stdout <- line },
		func(line string) { stderr <- line },
	)

	if eng.PID() <= 0 {
		t.Errorf("PID() = %d, want > 0", eng.PID())
	}

	require.NoError(t, eng.WriteLine("isready"))
	if line := collect(t, stdout, "readyok"); line != "readyok" {
		t.Errorf("got %q, want readyok", line)
	}

	require.NoError(t, eng.WriteLine("go infinite"))
	if line := collect(t, stdout, "info"); line != "info depth 1 score cp 10" {
		t.Errorf("got %q, want info line", line)
	}
	if line := collect(t, stdout, "bestmove"); line != "bestmove e2e4" {
		t.Errorf("got %q, want bestmove line", line)
	}

	require.NoError(t, eng.WriteLine("diag"))
	if line := collect(t, stderr, "boom"); line != "boom" {
		t.Errorf("got %q on stderr, want boom", line)
	}

	require.NoError(t, eng.WriteLine("quit"))
	require.NoError(t, eng.Wait())
}

func TestSpawnSetsWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	script := "#!/bin/sh\npwd\nread line\n"
	path := filepath.Join(dir, "pwd-engine")
	require.NoError(t, os.WriteFile(path, []byte(script), 0700))

	eng, err := Spawn(path, SpawnOptions{})
	require.NoError(t, err)

	stdout := make(chan string, 1)
	eng.Start(func(line string) { stdout <- line }, func(string) {})

	got := collect(t, stdout, "working directory")
	// Resolve symlinks: on some systems TempDir is behind /private or
	// similar, and the shell reports the resolved path.
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	if got != dir && got != resolved {
		t.Errorf("engine working directory = %q, want %q", got, dir)
	}

	_ = eng.Close()
	_ = eng.Wait()
}

func TestSpawnFailure(t *testing.T) {
	_, err := Spawn("/no/such/engine", SpawnOptions{})
	if err == nil {
		t.Fatal("expected spawn error for nonexistent executable")
	}

	_, err = Spawn("no-such-engine-in-path", SpawnOptions{})
	if err == nil {
		t.Fatal("expected lookup error for nonexistent PATH entry")
	}
}

func TestWriteLineAfterExit(t *testing.T) {
	path := writeFakeEngine(t)

	eng, err := Spawn(path, SpawnOptions{})
	require.NoError(t, err)
	eng.Start(func(string) {}, func(string) {})

	require.NoError(t, eng.WriteLine("quit"))
	require.NoError(t, eng.Wait())

	// The pipe is broken now; writes must fail rather than hang.
	werr := eng.WriteLine("isready")
	if werr == nil {
		t.Error("expected write error after engine exit")
	}
}
