package main

import (
	"context"
	"time"

	"github.com/tradescan/assess-cli/internal/backend"
	"github.com/tradescan/assess-cli/internal/extract"
	"github.com/tradescan/assess-cli/internal/patch"
	"github.com/tradescan/assess-cli/internal/pipeline"
	"github.com/tradescan/assess-cli/internal/resilience"
	"github.com/tradescan/assess-cli/internal/store"
	"github.com/tradescan/assess-cli/internal/task"
	anthropicpkg "github.com/tradescan/assess-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store.Driver, cfg.Store.DatabaseURL)
}

// buildPipeline wires the full processing stack: store, LLM backend with
// cache/rate limit/retry, staged extraction, task set, batch driver.
func buildPipeline(st store.Store) *pipeline.Pipeline {
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	cache := backend.NewTTLCache(time.Duration(cfg.Extract.CacheTTLSecs) * time.Second)

	retry := resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffSecs * float64(time.Second)),
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffSecs * float64(time.Second)),
	}

	be := backend.New(client, cache, backend.Config{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   int64(cfg.Anthropic.MaxTokens),
		Temperature: cfg.Anthropic.Temperature,
		Timeout:     time.Duration(cfg.Anthropic.TimeoutSecs) * time.Second,
		SampleChars: cfg.Extract.CacheSampleChars,
	}, retry, cfg.Anthropic.RatePerSec)

	orchestrator := extract.New(be, extract.Config{
		MaxChunkTokens:  cfg.Extract.MaxChunkTokens,
		MaxContentChars: cfg.Extract.MaxContentChars,
		MaxConcurrent:   cfg.Pipeline.MaxConcurrent,
	})

	registry := task.NewRegistry(orchestrator, be)
	runner := task.NewRunner(registry, patch.NewApplier(st), st)

	return pipeline.New(st, runner, pipeline.Config{
		MaxConcurrent:   cfg.Pipeline.MaxConcurrent,
		MinContentChars: cfg.Pipeline.MinContentChars,
		BatchLimit:      cfg.Pipeline.BatchLimit,
	})
}
