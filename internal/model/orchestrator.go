package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/lumenreads/lumen/internal/log"
)

// Orchestrator sentinel errors.
var (
	ErrNoBackends           = errors.New("model: no backends registered")
	ErrBackendNotFound      = errors.New("model: backend not found")
	ErrAllBackendsExhausted = errors.New("model: all backends exhausted")
)

const (
	batchGroupSize     = 3
	batchGroupsPerSec  = 1
	healthTickInterval = 30 * time.Second
)

// Orchestrator routes generation requests across registered backends by
// priority, enforcing per-backend rate limits and falling back when a
// backend fails or is unavailable.
type Orchestrator struct {
	mu       sync.RWMutex
	backends map[string]*backendState

	now    func() time.Time
	logger log.Logger
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithOrchestratorLogger sets the logger.
func WithOrchestratorLogger(l log.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the time source used for rate windows and
// availability recovery.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator creates an orchestrator with no backends registered.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		backends: make(map[string]*backendState),
		now:      time.Now,
		logger:   log.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds a backend under the given descriptor. Registering the
// same name again replaces the previous backend and resets its state.
func (o *Orchestrator) Register(desc Descriptor, impl Backend) error {
	if desc.Name == "" {
		return fmt.Errorf("model: register: empty backend name")
	}
	if impl == nil {
		return fmt.Errorf("model: register %q: nil backend", desc.Name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backends[desc.Name] = newBackendState(desc, impl)
	return nil
}

// selectBackend picks the eligible backend with the lowest priority
// value, honoring a preferred name when that backend is itself eligible.
// Names in exclude are skipped.
func (o *Orchestrator) selectBackend(preferred string, exclude map[string]bool) (*backendState, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if len(o.backends) == 0 {
		return nil, ErrNoBackends
	}
	now := o.now()

	if preferred != "" && !exclude[preferred] {
		if st, ok := o.backends[preferred]; ok && st.eligible(now) {
			return st, nil
		}
	}

	var candidates []*backendState
	for name, st := range o.backends {
		if exclude[name] {
			continue
		}
		if st.eligible(now) {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrAllBackendsExhausted
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].desc.Priority != candidates[j].desc.Priority {
			return candidates[i].desc.Priority < candidates[j].desc.Priority
		}
		return candidates[i].desc.Name < candidates[j].desc.Name
	})
	return candidates[0], nil
}

// Generate routes the request to the best eligible backend. If that
// backend fails, one retry is attempted on the next-best backend before
// giving up.
func (o *Orchestrator) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	exclude := make(map[string]bool)
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		st, err := o.selectBackend(req.PreferredModel, exclude)
		if err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("%w: last error: %w", ErrAllBackendsExhausted, lastErr)
			}
			return nil, err
		}

		start := o.now()
		comp, err := st.impl.Generate(ctx, req)
		if err != nil {
			st.recordFailure(o.now())
			o.logger.Warn("backend generate failed",
				slog.String("backend", st.desc.Name), slog.Any("error", err))
			lastErr = fmt.Errorf("backend %s: %w", st.desc.Name, err)
			exclude[st.desc.Name] = true
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		done := o.now()
		st.recordSuccess(done, comp.TokensUsed)
		return &GenerateResult{
			Text:       comp.Text,
			ModelUsed:  st.desc.Name,
			TokensUsed: comp.TokensUsed,
			Latency:    done.Sub(start),
		}, nil
	}
	return nil, fmt.Errorf("%w: last error: %w", ErrAllBackendsExhausted, lastErr)
}

// StreamGenerate streams chunks from the best eligible backend. Errors
// surface on the returned channel; no cross-backend retry happens once
// streaming has started.
func (o *Orchestrator) StreamGenerate(ctx context.Context, req GenerateRequest) (<-chan StreamChunk, error) {
	st, err := o.selectBackend(req.PreferredModel, nil)
	if err != nil {
		return nil, err
	}

	inner, err := st.impl.Stream(ctx, req)
	if err != nil {
		st.recordFailure(o.now())
		return nil, fmt.Errorf("backend %s: %w", st.desc.Name, err)
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		var tokens int
		failed := false
		for chunk := range inner {
			if chunk.Err != nil {
				failed = true
			} else {
				tokens += len(chunk.Text) / 4
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if failed {
			st.recordFailure(o.now())
		} else {
			st.recordSuccess(o.now(), tokens)
		}
	}()
	return out, nil
}

// BatchGenerate processes requests in groups of three, pacing the groups
// so backend quotas are not saturated by a single batch. Results keep the
// input order; a failed request holds its error in place without aborting
// the rest.
type BatchResult struct {
	Result *GenerateResult
	Err    error
}

// BatchGenerate runs all requests and returns one BatchResult per
// request, index-aligned with the input.
func (o *Orchestrator) BatchGenerate(ctx context.Context, reqs []GenerateRequest) ([]BatchResult, error) {
	results := make([]BatchResult, len(reqs))
	if len(reqs) == 0 {
		return results, nil
	}

	limiter := rate.NewLimiter(rate.Limit(batchGroupsPerSec), 1)
	for start := 0; start < len(reqs); start += batchGroupSize {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("batch wait: %w", err)
		}
		end := min(start+batchGroupSize, len(reqs))

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := o.Generate(ctx, reqs[i])
				results[i] = BatchResult{Result: res, Err: err}
			}(i)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// GetStatus returns per-backend status sorted by priority then name.
func (o *Orchestrator) GetStatus() []Status {
	o.mu.RLock()
	defer o.mu.RUnlock()

	now := o.now()
	statuses := make([]Status, 0, len(o.backends))
	for _, st := range o.backends {
		statuses = append(statuses, st.status(now))
	}
	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].Priority != statuses[j].Priority {
			return statuses[i].Priority < statuses[j].Priority
		}
		return statuses[i].Name < statuses[j].Name
	})
	return statuses
}

// UsageStats aggregates lifetime counters for one backend.
type UsageStats struct {
	Name          string
	UsageCount    int64
	ErrorCount    int64
	TokensUsed    int64
	EstimatedCost float64
}

// GetUsageStats returns cumulative usage per backend, sorted by name.
func (o *Orchestrator) GetUsageStats() []UsageStats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := make([]UsageStats, 0, len(o.backends))
	for _, st := range o.backends {
		st.mu.Lock()
		stats = append(stats, UsageStats{
			Name:          st.desc.Name,
			UsageCount:    st.usageCount,
			ErrorCount:    st.errorCount,
			TokensUsed:    st.tokenTotal,
			EstimatedCost: float64(st.tokenTotal) * st.desc.CostPerToken,
		})
		st.mu.Unlock()
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// ResetErrors re-enables the named backend and clears its error streak.
func (o *Orchestrator) ResetErrors(name string) error {
	o.mu.RLock()
	st, ok := o.backends[name]
	o.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	st.reset()
	return nil
}

// Run periodically applies the idle re-enable rule so disabled backends
// recover even without traffic. Blocks until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(healthTickInterval)
	defer ticker.Stop()

	o.logger.Info("model health monitor started")
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("model health monitor stopped")
			return
		case <-ticker.C:
			now := o.now()
			o.mu.RLock()
			for _, st := range o.backends {
				st.mu.Lock()
				wasDown := !st.available
				st.maybeReEnableLocked(now)
				if wasDown && st.available {
					o.logger.Info("backend re-enabled after idle period",
						slog.String("backend", st.desc.Name))
				}
				st.mu.Unlock()
			}
			o.mu.RUnlock()
		}
	}
}
