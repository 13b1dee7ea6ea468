package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/arborfoundry/scoutagent/internal/broker"
	"github.com/arborfoundry/scoutagent/internal/engine"
	"github.com/arborfoundry/scoutagent/internal/executor"
	"github.com/arborfoundry/scoutagent/internal/llm"
	"github.com/arborfoundry/scoutagent/internal/queue"
	"github.com/arborfoundry/scoutagent/internal/tools"
	"github.com/arborfoundry/scoutagent/internal/transporthttp"
	"github.com/arborfoundry/scoutagent/pkg/config"
	"github.com/arborfoundry/scoutagent/pkg/logger"
	"github.com/arborfoundry/scoutagent/pkg/observability"
	"github.com/arborfoundry/scoutagent/pkg/ratelimit"
)

// ServeCmd runs the job queue, executor pool, and HTTP/SSE server until
// the process receives a shutdown signal (spec.md §4.6-§4.8, §6).
type ServeCmd struct {
	Config  string `short:"c" help:"Path to config file." type:"path" required:""`
	Workers int    `help:"Override queue.max_concurrent_jobs worker count (0 = use config)."`
}

func (c *ServeCmd) Run(ctx context.Context) error {
	cfg, loader, err := config.LoadConfigFile(ctx, c.Config, config.WithOnChange(func(reloaded *config.Config) {
		if level, err := logger.ParseLevel(reloaded.LogLevel); err == nil {
			logger.SetLevel(level)
			slog.Info("config: log level updated", "level", reloaded.LogLevel)
		}
	}))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer loader.Close()

	obs, err := observability.NewManager(ctx, &observability.Config{
		Tracing: observability.TracingConfig{
			Enabled:       cfg.Observability.TracingEnabled,
			SamplingRatio: cfg.Observability.TracingSampling,
		},
		Metrics: observability.MetricsConfig{
			Enabled:   cfg.Observability.MetricsEnabled,
			Namespace: cfg.Observability.MetricsNamespace,
		},
	})
	if err != nil {
		return fmt.Errorf("construct observability manager: %w", err)
	}
	observability.SetGlobalMetrics(obs.Metrics())
	defer func() {
		if err := obs.Shutdown(context.Background()); err != nil {
			slog.Warn("observability: shutdown failed", "error", err)
		}
	}()

	llmProvider, err := llm.New(cfg.LLM)
	if err != nil {
		return fmt.Errorf("construct llm provider: %w", err)
	}
	defer llmProvider.Close()

	registry := tools.New()
	search := tools.NewHTTPSearchProvider(cfg.Search.Endpoint, cfg.Search.APIKeyEnv)
	extractor := tools.NewHTTPPageExtractor(cfg.Search.PageExtractMaxBytes)
	if err := tools.RegisterBuiltins(registry, search, extractor); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	eng, err := engine.New(llmProvider, registry, cfg.Engine)
	if err != nil {
		return fmt.Errorf("construct engine: %w", err)
	}

	var limiter ratelimit.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.NewRateLimiter(&ratelimit.Config{
			Enabled: true,
			Limits: []ratelimit.LimitRule{
				{Type: ratelimit.LimitTypeCount, Window: ratelimit.WindowHour, Limit: int64(cfg.RateLimit.MaxSubmitsPerHour)},
			},
		}, ratelimit.NewMemoryStore())
		if err != nil {
			return fmt.Errorf("construct rate limiter: %w", err)
		}
	}

	q := queue.New(cfg.Queue, limiter)
	if err := q.Start(ctx); err != nil {
		return fmt.Errorf("start queue: %w", err)
	}
	defer q.Stop()

	b := broker.New(cfg.Broker.SubscriberBufferSize)
	pool := executor.New(q, eng, b)

	workers := cfg.Queue.MaxConcurrentJobs
	if c.Workers > 0 {
		workers = c.Workers
	}
	go pool.Run(ctx, workers)

	srv := transporthttp.New(q, b, pool, pool)

	mux := http.NewServeMux()
	mux.Handle("/", srv)
	if h := obs.MetricsHandler(); h != nil {
		mux.Handle("/metrics", h)
	}
	httpSrv := &http.Server{Addr: cfg.Server.BindAddr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", cfg.Server.BindAddr)
		errCh <- httpSrv.ListenAndServe()
	}()

	go func() {
		if err := loader.Watch(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("config: watch stopped", "error", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("draining http server")
		_ = httpSrv.Shutdown(context.Background())
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}
