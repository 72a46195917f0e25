// Package enginemon samples resource usage of the engine process. Chess
// engines saturate cores and grow large transposition tables, so the
// host periodically logs CPU and memory of the child to make runaway
// configurations visible.
package enginemon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Stats is one resource sample of the engine process.
type Stats struct {
	PID        int32
	CPUPercent float64
	MemoryMB   float64 // RSS
	NumThreads int32
	Status     string
}

// Monitor samples a single process by PID.
type Monitor struct {
	proc *process.Process
}

// New creates a monitor for the given PID. Fails if the process does
// not exist.
func New(pid int32) (*Monitor, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	return &Monitor{proc: p}, nil
}

// Snapshot takes one sample. Individual metrics may be unavailable on
// some platforms; only a vanished process is an error.
func (m *Monitor) Snapshot() (Stats, error) {
	stats := Stats{PID: m.proc.Pid}

	running, err := m.proc.IsRunning()
	if err != nil || !running {
		return stats, fmt.Errorf("process %d is gone", m.proc.Pid)
	}

	if cpuPercent, err := m.proc.CPUPercent(); err == nil {
		stats.CPUPercent = cpuPercent
	}
	if memInfo, err := m.proc.MemoryInfo(); err == nil && memInfo != nil {
		stats.MemoryMB = float64(memInfo.RSS) / 1024 / 1024
	}
	if numThreads, err := m.proc.NumThreads(); err == nil {
		stats.NumThreads = numThreads
	}
	if statuses, err := m.proc.Status(); err == nil && len(statuses) > 0 {
		stats.Status = statuses[0]
	}

	return stats, nil
}

// Run logs one snapshot per tick until the context is canceled or the
// process vanishes.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := m.Snapshot()
			if err != nil {
				logger.Info("Engine process monitoring stopped", "pid", m.proc.Pid, "reason", err)
				return
			}
			logger.Info("Engine resource usage",
				"pid", stats.PID,
				"cpu_percent", fmt.Sprintf("%.1f", stats.CPUPercent),
				"memory_mb", fmt.Sprintf("%.1f", stats.MemoryMB),
				"threads", stats.NumThreads,
				"status", stats.Status,
			)
		}
	}
}
