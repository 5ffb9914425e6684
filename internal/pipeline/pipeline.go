// Package pipeline drives batch processing of ready assessment records.
package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/store"
	"github.com/tradescan/assess-cli/internal/task"
)

// Config bounds one batch run.
type Config struct {
	MaxConcurrent   int
	MinContentChars int
	BatchLimit      int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 4
	}
	if c.MinContentChars <= 0 {
		c.MinContentChars = 1000
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 50
	}
	return c
}

// BatchSummary counts record outcomes for one batch.
type BatchSummary struct {
	Processed int
	Succeeded int
	Partial   int
	Failed    int
	Skipped   int
}

// Runner is the record-level task executor the pipeline dispatches to.
type Runner interface {
	ProcessRecord(ctx context.Context, a *model.Assessment) task.RecordOutcome
}

// Pipeline fetches ready records and runs the task set over them with
// bounded concurrency.
type Pipeline struct {
	store  store.Store
	runner Runner
	cfg    Config
}

func New(st store.Store, runner Runner, cfg Config) *Pipeline {
	return &Pipeline{store: st, runner: runner, cfg: cfg.withDefaults()}
}

// ProcessBatch handles one batch of ready records. A single record's failure
// never stops the batch; every fetched record is counted exactly once.
func (p *Pipeline) ProcessBatch(ctx context.Context) (BatchSummary, error) {
	records, err := p.store.FetchReady(ctx, p.cfg.BatchLimit)
	if err != nil {
		return BatchSummary{}, eris.Wrap(err, "pipeline: fetch ready")
	}
	if len(records) == 0 {
		zap.L().Info("no records ready for processing")
		return BatchSummary{}, nil
	}

	var (
		mu      sync.Mutex
		summary BatchSummary
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxConcurrent)

	for i := range records {
		rec := &records[i]
		g.Go(func() error {
			outcome := p.processOne(ctx, rec)
			mu.Lock()
			defer mu.Unlock()
			summary.Processed++
			switch outcome {
			case model.RunStatusSuccess:
				summary.Succeeded++
			case model.RunStatusPartial:
				summary.Partial++
			case model.RunStatusFailed:
				summary.Failed++
			default:
				summary.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("batch complete",
		zap.Int("processed", summary.Processed),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("partial", summary.Partial),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
	return summary, nil
}

// statusSkipped is a pipeline-private outcome for records that never reach
// the task runner.
const statusSkipped model.RunStatus = "skipped"

func (p *Pipeline) processOne(ctx context.Context, rec *model.Assessment) model.RunStatus {
	if rec.ID == "" {
		zap.L().Warn("skipping record without id")
		return statusSkipped
	}

	content := model.FlattenContent(rec.RawContent)
	if len(strings.TrimSpace(content)) < p.cfg.MinContentChars {
		zap.L().Info("content below minimum length, marking failed",
			zap.String("assessment_id", rec.ID),
			zap.Int("content_chars", len(content)),
			zap.Int("min_chars", p.cfg.MinContentChars))
		p.clearReady(ctx, rec.ID, map[string]any{
			"llm_ready":       false,
			"status":          string(model.AssessmentStatusFailed),
			"fallback_reason": "content_too_short",
		})
		return model.RunStatusFailed
	}

	products, err := p.store.ListProducts(ctx, rec.ID)
	if err != nil {
		zap.L().Warn("could not load existing products",
			zap.String("assessment_id", rec.ID), zap.Error(err))
	}
	rec.Products = products

	outcome := p.runner.ProcessRecord(ctx, rec)

	// Clear the ready flag on every degraded outcome so the record is not
	// refetched forever. On partial outcomes the analysis patch may have
	// already cleared it; writing it again is a no-op, and the status set
	// by a successful analysis task is left alone.
	switch outcome.Status {
	case model.RunStatusFailed:
		p.clearReady(ctx, rec.ID, map[string]any{
			"llm_ready":       false,
			"status":          string(model.AssessmentStatusFailed),
			"fallback_reason": failureReason(outcome, "all_tasks_failed"),
		})
	case model.RunStatusPartial:
		p.clearReady(ctx, rec.ID, map[string]any{
			"llm_ready":       false,
			"fallback_reason": failureReason(outcome, "partial_task_failure"),
		})
	}
	return outcome.Status
}

// failureReason picks a short human-readable reason for a degraded record.
func failureReason(outcome task.RecordOutcome, fallback string) string {
	reason := strings.TrimSpace(outcome.FirstError)
	if reason == "" {
		return fallback
	}
	if len(reason) > 200 {
		reason = reason[:200]
	}
	return reason
}

func (p *Pipeline) clearReady(ctx context.Context, id string, fields map[string]any) {
	if err := p.store.UpdateFields(ctx, store.TableAssessments, id, fields); err != nil {
		zap.L().Error("could not update record state",
			zap.String("assessment_id", id), zap.Error(err))
	}
}

// ProcessOne runs the task set for a single record by id, regardless of
// batch readiness filters. Used by the single-record command.
func (p *Pipeline) ProcessOne(ctx context.Context, id string) (task.RecordOutcome, error) {
	rec, err := p.store.GetAssessment(ctx, id)
	if err != nil {
		return task.RecordOutcome{}, eris.Wrapf(err, "pipeline: load record %s", id)
	}
	return p.runner.ProcessRecord(ctx, rec), nil
}
