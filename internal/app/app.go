// Package app wires the configured components into a runnable engine.
// All dependencies are constructed here and injected explicitly; no
// package-level singletons.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/lumenreads/lumen/internal/config"
	"github.com/lumenreads/lumen/internal/embedding"
	"github.com/lumenreads/lumen/internal/ingest"
	"github.com/lumenreads/lumen/internal/knowledge"
	"github.com/lumenreads/lumen/internal/log"
	"github.com/lumenreads/lumen/internal/metasearch"
	"github.com/lumenreads/lumen/internal/model"
	"github.com/lumenreads/lumen/internal/rag"
)

// Runtime holds the fully wired engine and its background tasks.
type Runtime struct {
	Config *config.Config
	Logger log.Logger

	Store        *knowledge.Store
	Pipeline     *ingest.Pipeline
	Orchestrator *model.Orchestrator
	Engine       *rag.Engine
	Search       *metasearch.Aggregator

	monitor *knowledge.CapacityMonitor
	kv      knowledge.KV
	pool    *pgxpool.Pool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// BackendFactory builds a generation backend for one configured entry.
type BackendFactory func(b config.BackendConfig) (model.Backend, error)

// RuntimeOption configures NewRuntime.
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	backends BackendFactory
}

// WithBackendFactory overrides how configured backends are constructed.
// Tests use it to wire fakes without a Gemini client.
func WithBackendFactory(f BackendFactory) RuntimeOption {
	return func(o *runtimeOptions) { o.backends = f }
}

// NewRuntime constructs every component from the configuration. The
// returned runtime owns the storage handles; call Close when done.
func NewRuntime(ctx context.Context, cfg *config.Config, opts ...RuntimeOption) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	var o runtimeOptions
	for _, opt := range opts {
		opt(&o)
	}

	logger := log.New(log.Config{Level: parseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	rt := &Runtime{Config: cfg, Logger: logger}

	// The default factory targets Gemini, so a client is required unless
	// the caller supplies its own backends.
	var client *genai.Client
	if cfg.Embedder == config.EmbedderGemini || o.backends == nil {
		var err error
		client, err = genai.NewClient(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("create genai client: %w", err)
		}
	}
	if o.backends == nil {
		o.backends = func(b config.BackendConfig) (model.Backend, error) {
			return model.NewGeminiBackend(client, b.Model), nil
		}
	}

	var embedder embedding.Embedder
	switch cfg.Embedder {
	case config.EmbedderGemini:
		embedder = embedding.NewGemini(client, cfg.EmbedderModel)
	default:
		embedder = embedding.NewDeterministic()
	}

	kv, err := knowledge.NewSQLiteKV(cfg.StorePath)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	rt.kv = kv

	storeOpts := []knowledge.StoreOption{knowledge.WithLogger(logger)}
	if cfg.Cloud.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Cloud.DSN())
		if err != nil {
			rt.closeStorage()
			return nil, fmt.Errorf("connect cloud tier: %w", err)
		}
		rt.pool = pool
		cloud, err := knowledge.NewPGCloudTier(ctx, pool, logger)
		if err != nil {
			rt.closeStorage()
			return nil, fmt.Errorf("init cloud tier: %w", err)
		}
		storeOpts = append(storeOpts, knowledge.WithCloudTier(cloud))
	}

	store, err := knowledge.NewStore(ctx, embedder, kv, storeOpts...)
	if err != nil {
		rt.closeStorage()
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}
	rt.Store = store
	rt.Pipeline = ingest.NewPipeline(store, logger)
	rt.monitor = knowledge.NewCapacityMonitor(store, cfg.LocalQuota,
		time.Duration(cfg.SweepIntervalSecs)*time.Second, logger)

	orch := model.NewOrchestrator(model.WithOrchestratorLogger(logger))
	for _, b := range cfg.Backends {
		desc := model.Descriptor{
			Name:         b.Name,
			Priority:     b.Priority,
			MaxTokens:    b.MaxTokens,
			CostPerToken: b.CostPerToken,
			RateLimit: model.RateLimit{
				RequestsPerMinute: b.RequestsPerMinute,
				TokensPerMinute:   b.TokensPerMinute,
			},
		}
		impl, err := o.backends(b)
		if err != nil {
			rt.closeStorage()
			return nil, fmt.Errorf("build backend %s: %w", b.Name, err)
		}
		if err := orch.Register(desc, impl); err != nil {
			rt.closeStorage()
			return nil, fmt.Errorf("register backend %s: %w", b.Name, err)
		}
	}
	if err := orch.Register(model.Descriptor{
		Name:     model.LastResortName,
		Priority: 1 << 20,
	}, model.NewLastResort()); err != nil {
		rt.closeStorage()
		return nil, fmt.Errorf("register last resort: %w", err)
	}
	rt.Orchestrator = orch

	rt.Engine = rag.NewEngine(store, orch, rag.WithEngineLogger(logger))

	search := metasearch.NewAggregator(metasearch.WithAggregatorLogger(logger))
	if err := search.Register(metasearch.NewLocalKnowledgeSource(store),
		metasearch.WithPriority(1)); err != nil {
		rt.closeStorage()
		return nil, fmt.Errorf("register local source: %w", err)
	}
	if cfg.Search.WebEnabled {
		var webOpts []metasearch.WebOption
		if cfg.Search.WebEndpoint != "" {
			webOpts = append(webOpts, metasearch.WithEndpoint(cfg.Search.WebEndpoint))
		}
		if err := search.Register(metasearch.NewWebSource("", webOpts...),
			metasearch.WithPriority(2), metasearch.WithWeight(0.8)); err != nil {
			rt.closeStorage()
			return nil, fmt.Errorf("register web source: %w", err)
		}
	}
	rt.Search = search

	return rt, nil
}

// Start launches the capacity monitor and the backend health monitor.
// Safe to call once; Close stops both.
func (rt *Runtime) Start(ctx context.Context) {
	ctx, rt.cancel = context.WithCancel(ctx)

	rt.wg.Add(2)
	go func() {
		defer rt.wg.Done()
		rt.monitor.Run(ctx)
	}()
	go func() {
		defer rt.wg.Done()
		rt.Orchestrator.Run(ctx)
	}()
}

// Close stops background tasks and releases storage handles.
func (rt *Runtime) Close() error {
	if rt.cancel != nil {
		rt.cancel()
		rt.wg.Wait()
	}
	return rt.closeStorage()
}

func (rt *Runtime) closeStorage() error {
	var firstErr error
	if rt.pool != nil {
		rt.pool.Close()
		rt.pool = nil
	}
	if rt.kv != nil {
		if err := rt.kv.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close local store: %w", err)
		}
		rt.kv = nil
	}
	return firstErr
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
