package model

import (
	"sync"
	"time"
)

// Availability state machine constants: a backend is disabled at the third
// consecutive error and re-enabled by an explicit reset or after five idle
// minutes.
const (
	disableAfterErrors = 3
	reEnableAfterIdle  = 5 * time.Minute
	rateWindow         = time.Minute
)

// windowEntry records one call for sliding-window accounting.
type windowEntry struct {
	at     time.Time
	tokens int
}

// backendState pairs a backend implementation with its descriptor and all
// mutable accounting. Counters are updated under the state's own lock so
// concurrent Generate calls targeting the same backend stay consistent.
type backendState struct {
	mu sync.Mutex

	desc Descriptor
	impl Backend

	available         bool
	consecutiveErrors int
	disabledAt        time.Time

	usageCount int64
	errorCount int64
	tokenTotal int64
	lastUsedAt time.Time

	window []windowEntry
}

func newBackendState(desc Descriptor, impl Backend) *backendState {
	return &backendState{desc: desc, impl: impl, available: true}
}

// eligible reports whether the backend may be selected now: available (or
// past the idle re-enable threshold) and under both rate limits.
func (b *backendState) eligible(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeReEnableLocked(now)
	if !b.available {
		return false
	}
	return b.underRateLimitLocked(now)
}

// maybeReEnableLocked applies the 5-minute idle recovery rule.
func (b *backendState) maybeReEnableLocked(now time.Time) {
	if !b.available && now.Sub(b.disabledAt) >= reEnableAfterIdle {
		b.available = true
		b.consecutiveErrors = 0
	}
}

// underRateLimitLocked prunes the window and checks both per-minute
// budgets.
func (b *backendState) underRateLimitLocked(now time.Time) bool {
	cutoff := now.Add(-rateWindow)
	keep := b.window[:0]
	for _, e := range b.window {
		if e.at.After(cutoff) {
			keep = append(keep, e)
		}
	}
	b.window = keep

	if rpm := b.desc.RateLimit.RequestsPerMinute; rpm > 0 && len(b.window) >= rpm {
		return false
	}
	if tpm := b.desc.RateLimit.TokensPerMinute; tpm > 0 {
		var tokens int
		for _, e := range b.window {
			tokens += e.tokens
		}
		if tokens >= tpm {
			return false
		}
	}
	return true
}

// recordSuccess updates usage counters, stamps last use and records the
// call in the rate window.
func (b *backendState) recordSuccess(now time.Time, tokens int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.usageCount++
	b.tokenTotal += int64(tokens)
	b.consecutiveErrors = 0
	b.lastUsedAt = now
	b.window = append(b.window, windowEntry{at: now, tokens: tokens})
}

// recordFailure bumps error counters and disables the backend on the
// third consecutive error.
func (b *backendState) recordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errorCount++
	b.consecutiveErrors++
	if b.available && b.consecutiveErrors >= disableAfterErrors {
		b.available = false
		b.disabledAt = now
	}
}

// reset restores availability and clears the consecutive-error streak.
// Cumulative totals are kept for stats.
func (b *backendState) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.available = true
	b.consecutiveErrors = 0
}

// Status is a point-in-time view of one backend.
type Status struct {
	Name          string
	Priority      int
	Available     bool
	UsageCount    int64
	ErrorCount    int64
	LastUsedAt    time.Time
	WindowedCalls int
}

func (b *backendState) status(now time.Time) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeReEnableLocked(now)

	cutoff := now.Add(-rateWindow)
	var windowed int
	for _, e := range b.window {
		if e.at.After(cutoff) {
			windowed++
		}
	}
	return Status{
		Name:          b.desc.Name,
		Priority:      b.desc.Priority,
		Available:     b.available,
		UsageCount:    b.usageCount,
		ErrorCount:    b.errorCount,
		LastUsedAt:    b.lastUsedAt,
		WindowedCalls: windowed,
	}
}
