package knowledge

import (
	"context"
	"log/slog"
	"time"
)

// Capacity thresholds: a sweep starts above the high-water fraction of the
// quota and offloads least-recently-accessed local nodes until usage drops
// under the low-water fraction.
const (
	highWater = 0.8
	lowWater  = 0.6

	// DefaultSweepInterval is how often the monitor re-checks usage.
	DefaultSweepInterval = time.Minute
)

// CapacityMonitor watches local substrate usage and offloads LRU nodes to
// the cloud tier when the quota is nearly exhausted. Individual offload
// failures are logged and skipped; a sweep is always safe to interrupt and
// resume later.
type CapacityMonitor struct {
	store    *Store
	quota    int64
	interval time.Duration
	logger   *slog.Logger
}

// NewCapacityMonitor creates a monitor for the store's local substrate.
// quota is the local capacity in bytes and must be positive.
func NewCapacityMonitor(store *Store, quota int64, interval time.Duration, logger *slog.Logger) *CapacityMonitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CapacityMonitor{
		store:    store,
		quota:    quota,
		interval: interval,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled, sweeping on each tick. Callers track
// the goroutine with a WaitGroup; the foreground query path never waits on
// the monitor.
func (m *CapacityMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep(ctx)
		}
	}
}

// Sweep performs a single capacity check and, when usage exceeds the high
// water mark, offloads LRU local nodes until usage falls under the low
// water mark or no local node remains.
func (m *CapacityMonitor) Sweep(ctx context.Context) {
	usage, err := m.store.LocalUsage(ctx)
	if err != nil {
		m.logger.Warn("estimate local usage", "error", err)
		return
	}
	if float64(usage) <= highWater*float64(m.quota) {
		return
	}

	target := int64(lowWater * float64(m.quota))
	m.logger.Info("local capacity exceeded, offloading",
		"usage", usage, "quota", m.quota, "target", target)

	offloaded := 0
	for _, id := range m.store.OffloadCandidates() {
		if ctx.Err() != nil {
			return
		}
		if err := m.store.Offload(ctx, id); err != nil {
			m.logger.Warn("offload node", "id", id, "error", err)
			continue
		}
		offloaded++

		usage, err = m.store.LocalUsage(ctx)
		if err != nil {
			m.logger.Warn("estimate local usage mid-sweep", "error", err)
			return
		}
		if usage <= target {
			break
		}
	}

	m.logger.Info("offload sweep complete", "offloaded", offloaded, "usage", usage)
}
