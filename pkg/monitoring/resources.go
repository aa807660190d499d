package monitoring

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const DefaultSampleInterval = 500 * time.Millisecond

type ResourceSample struct {
	Timestamp  time.Time
	CPUPercent float64
	MemoryMB   uint64
}

// ResourceSummary aggregates the samples of a run.
type ResourceSummary struct {
	Samples      int     `json:"samples"`
	AverageCPU   float64 `json:"average_cpu"`
	PeakMemoryMB uint64  `json:"peak_memory_mb"`
	MinMemoryMB  uint64  `json:"min_memory_mb"`
}

func (s ResourceSummary) String() string {
	if s.Samples == 0 {
		return "No resource data collected"
	}

	return fmt.Sprintf("Resource Usage:\n  Average CPU: %.1f%%\n  Peak Memory: %d MB\n  Min Memory: %d MB\n  Samples: %d",
		s.AverageCPU, s.PeakMemoryMB, s.MinMemoryMB, s.Samples)
}

// ResourceMonitor samples CPU and resident memory of the current process.
// The first sample only primes the CPU counters and is not recorded.
type ResourceMonitor struct {
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	proc    *process.Process
	primed  bool
	samples []ResourceSample

	cancel context.CancelFunc
	done   chan struct{}
}

func NewResourceMonitor(logger *slog.Logger, interval time.Duration) *ResourceMonitor {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}

	return &ResourceMonitor{
		interval: interval,
		logger:   logger.With("module", "resource_monitor"),
	}
}

// Sample takes one measurement.
func (m *ResourceMonitor) Sample(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc == nil {
		proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pid fits int32
		if err != nil {
			return fmt.Errorf("failed to inspect current process: %w", err)
		}

		m.proc = proc
	}

	cpu, err := m.proc.PercentWithContext(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to read cpu usage: %w", err)
	}

	if !m.primed {
		m.primed = true

		return nil
	}

	mem, err := m.proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to read memory usage: %w", err)
	}

	m.samples = append(m.samples, ResourceSample{
		Timestamp:  time.Now(),
		CPUPercent: cpu,
		MemoryMB:   mem.RSS / (1024 * 1024),
	})

	return nil
}

// Start samples in the background until Stop is called or ctx is done.
func (m *ResourceMonitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		if err := m.Sample(ctx); err != nil {
			m.logger.Debug("Resource sample failed", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Sample(ctx); err != nil {
					m.logger.Debug("Resource sample failed", "error", err)
				}
			}
		}
	}()
}

// Stop ends background sampling and waits for the sampler to exit.
func (m *ResourceMonitor) Stop() {
	if m.cancel == nil {
		return
	}

	m.cancel()
	<-m.done
	m.cancel = nil
}

func (m *ResourceMonitor) Samples() []ResourceSample {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ResourceSample, len(m.samples))
	copy(out, m.samples)

	return out
}

func (m *ResourceMonitor) Summary() ResourceSummary {
	samples := m.Samples()
	if len(samples) == 0 {
		return ResourceSummary{}
	}

	summary := ResourceSummary{
		Samples:     len(samples),
		MinMemoryMB: samples[0].MemoryMB,
	}

	var cpu float64

	for _, s := range samples {
		cpu += s.CPUPercent
		summary.PeakMemoryMB = max(summary.PeakMemoryMB, s.MemoryMB)
		summary.MinMemoryMB = min(summary.MinMemoryMB, s.MemoryMB)
	}

	summary.AverageCPU = cpu / float64(len(samples))

	return summary
}
