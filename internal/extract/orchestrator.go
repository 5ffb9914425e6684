// Package extract runs the staged extraction fallback: each stage reduces
// the content differently before handing it to the model backend, and the
// next stage only runs when the previous one produced nothing.
package extract

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/reduce"
)

// Stage identifies which reduction strategy produced a result.
type Stage string

const (
	StageMinimalCleaning   Stage = "minimal_cleaning"
	StageStructureFiltered Stage = "structure_filtered"
	StageChunked           Stage = "chunked"
	StageTextOnly          Stage = "text_only"

	// Terminal tags, reported when no stage ran or none succeeded.
	StageEmptyInput Stage = "empty_input"
	StageFailedAll  Stage = "failed_all_stages"
)

// ProductExtractor is the backend operation the orchestrator depends on.
type ProductExtractor interface {
	ExtractProducts(ctx context.Context, content, sourceURL string) ([]model.Product, error)
}

// Config bounds content size and chunk fan-out.
type Config struct {
	MaxChunkTokens  int
	MaxContentChars int
	MaxConcurrent   int
}

// Orchestrator walks content through progressively cheaper representations
// until one of them yields product entities.
type Orchestrator struct {
	backend ProductExtractor
	cfg     Config
}

// New constructs an Orchestrator.
func New(backend ProductExtractor, cfg Config) *Orchestrator {
	if cfg.MaxChunkTokens <= 0 {
		cfg.MaxChunkTokens = 8000
	}
	if cfg.MaxContentChars <= 0 {
		cfg.MaxContentChars = 50000
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Orchestrator{backend: backend, cfg: cfg}
}

// stageOutcome is the explicit result of one stage attempt. A backend error
// is recorded here and treated as zero entities; it never aborts the run.
type stageOutcome struct {
	stage    Stage
	products []model.Product
	err      error
}

func (o stageOutcome) succeeded() bool {
	return len(o.products) > 0
}

// Run extracts products from raw content, trying each stage in order and
// returning the stage that produced entities. Empty input short-circuits
// without any backend call. When every stage comes back empty the result is
// an empty slice tagged failed_all_stages.
func (o *Orchestrator) Run(ctx context.Context, raw, sourceURL string) (products []model.Product, stage Stage) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("extract: stage panic recovered",
				zap.String("source_url", sourceURL),
				zap.Any("panic", r))
			products, stage = []model.Product{}, StageFailedAll
		}
	}()

	if strings.TrimSpace(raw) == "" {
		return []model.Product{}, StageEmptyInput
	}

	cleaned := truncate(reduce.CleanHTML(raw, false), o.cfg.MaxContentChars)
	if out := o.attempt(ctx, StageMinimalCleaning, cleaned, sourceURL); out.succeeded() {
		return out.products, out.stage
	}

	filtered := truncate(reduce.ExtractMainContent(cleaned), o.cfg.MaxContentChars)
	if out := o.attempt(ctx, StageStructureFiltered, filtered, sourceURL); out.succeeded() {
		return out.products, out.stage
	}

	if out := o.attemptChunked(ctx, filtered, sourceURL); out.succeeded() {
		return out.products, out.stage
	}

	// Last resort works from the original content, not the reductions that
	// already failed to produce anything.
	text := truncate(reduce.ExtractText(raw), o.cfg.MaxContentChars)
	if out := o.attempt(ctx, StageTextOnly, text, sourceURL); out.succeeded() {
		return out.products, out.stage
	}

	zap.L().Info("extract: all stages exhausted", zap.String("source_url", sourceURL))
	return []model.Product{}, StageFailedAll
}

// attempt runs one stage. Errors are demoted to an empty outcome so the
// cascade continues.
func (o *Orchestrator) attempt(ctx context.Context, stage Stage, content, sourceURL string) stageOutcome {
	if strings.TrimSpace(content) == "" {
		return stageOutcome{stage: stage}
	}

	products, err := o.backend.ExtractProducts(ctx, content, sourceURL)
	if err != nil {
		zap.L().Warn("extract: stage failed",
			zap.String("stage", string(stage)),
			zap.String("source_url", sourceURL),
			zap.Error(err))
		return stageOutcome{stage: stage, err: err}
	}

	products = reduce.DeduplicateProducts(products)
	zap.L().Debug("extract: stage complete",
		zap.String("stage", string(stage)),
		zap.Int("products", len(products)))
	return stageOutcome{stage: stage, products: products}
}

// attemptChunked fans the chunks out concurrently and unions the results.
// A failed chunk is skipped; the stage fails only when every chunk is empty.
func (o *Orchestrator) attemptChunked(ctx context.Context, content, sourceURL string) stageOutcome {
	chunks := reduce.ChunkContent(content, o.cfg.MaxChunkTokens)
	if len(chunks) == 0 {
		return stageOutcome{stage: StageChunked}
	}

	var mu sync.Mutex
	var all []model.Product

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, chunk := range chunks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					zap.L().Error("extract: chunk panic recovered",
						zap.Int("chunk", i),
						zap.Any("panic", r))
				}
			}()
			products, err := o.backend.ExtractProducts(gCtx, chunk, sourceURL)
			if err != nil {
				zap.L().Warn("extract: chunk failed",
					zap.Int("chunk", i),
					zap.String("source_url", sourceURL),
					zap.Error(err))
				return nil
			}
			mu.Lock()
			all = append(all, products...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	all = reduce.DeduplicateProducts(all)
	zap.L().Debug("extract: stage complete",
		zap.String("stage", string(StageChunked)),
		zap.Int("chunks", len(chunks)),
		zap.Int("products", len(all)))
	return stageOutcome{stage: StageChunked, products: all}
}

func truncate(s string, maxChars int) string {
	if maxChars > 0 && len(s) > maxChars {
		return s[:maxChars]
	}
	return s
}
