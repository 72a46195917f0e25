package enginemon

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSnapshotOwnProcess(t *testing.T) {
	m, err := New(int32(os.Getpid()))
	require.NoError(t, err)

	stats, err := m.Snapshot()
	require.NoError(t, err)

	if stats.PID != int32(os.Getpid()) {
		t.Errorf("PID = %d, want %d", stats.PID, os.Getpid())
	}
	if stats.MemoryMB <= 0 {
		t.Errorf("MemoryMB = %f, want > 0", stats.MemoryMB)
	}
	if stats.NumThreads <= 0 {
		t.Errorf("NumThreads = %d, want > 0", stats.NumThreads)
	}
}

func TestNewNonexistentProcess(t *testing.T) {
	// PID 0 is never a valid monitorable process for us.
	if _, err := New(-1); err == nil {
		t.Error("expected error for invalid PID")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	m, err := New(int32(os.Getpid()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	done := make(chan struct{})
	go func() {
		m.Run(ctx, 10*time.Millisecond, logger)
		close(done)
	}()

	// Let at least one tick fire, then cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}

	if !strings.Contains(logBuf.String(), "Engine resource usage") {
		t.Error("expected at least one resource usage log line")
	}
}
