package task

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/patch"
)

// RunLogStore is the audit sink the runner writes to.
type RunLogStore interface {
	InsertRunLog(ctx context.Context, entry *model.RunLogEntry) error
}

// RecordOutcome summarizes one record's pass through the task set.
// FirstError keeps the first failed task's error text for downstream state
// updates. PatchDegraded counts successful runs whose patch hit at least one
// table failure.
type RecordOutcome struct {
	AssessmentID  string
	Status        model.RunStatus
	TasksRun      int
	TasksFailed   int
	PatchDegraded int
	Confidence    *float64
	FirstError    string
}

// Runner evaluates task activation and executes the active tasks against a
// record, writing one run log row per task run.
type Runner struct {
	registry *Registry
	applier  *patch.Applier
	logs     RunLogStore
}

func NewRunner(registry *Registry, applier *patch.Applier, logs RunLogStore) *Runner {
	return &Runner{registry: registry, applier: applier, logs: logs}
}

// ProcessRecord runs every active task for one record. Each task run writes
// exactly one run log row, including panicked runs. Patches are applied only
// for runs that returned no error.
func (r *Runner) ProcessRecord(ctx context.Context, a *model.Assessment) RecordOutcome {
	outcome := RecordOutcome{AssessmentID: a.ID, Status: model.RunStatusSuccess}

	active := r.registry.ActiveTasks(a)
	if len(active) == 0 {
		zap.L().Debug("no active tasks for record", zap.String("assessment_id", a.ID))
		return outcome
	}

	var confidences []float64
	for _, t := range active {
		started := time.Now().UTC()
		res, summary := r.runOne(ctx, t, a)
		outcome.TasksRun++

		entry := &model.RunLogEntry{
			AssessmentID:   a.ID,
			TaskName:       t.Name(),
			TaskVersion:    t.Version(),
			PayloadSummary: summary,
			Result:         res.Result,
			Prompt:         res.Prompt,
			RawOutput:      res.RawOutput,
			StartedAt:      started,
			CompletedAt:    time.Now().UTC(),
		}
		if res.Confidence != nil {
			c := model.ClampConfidence(*res.Confidence)
			entry.Confidence = &c
			confidences = append(confidences, c)
		}
		if res.Err != nil {
			entry.Error = res.Err.Error()
			outcome.TasksFailed++
			if outcome.FirstError == "" {
				outcome.FirstError = res.Err.Error()
			}
			zap.L().Warn("task failed",
				zap.String("assessment_id", a.ID),
				zap.String("task", t.Name()),
				zap.Error(res.Err))
		} else if res.Patch != nil {
			if !r.applier.Apply(ctx, res.Patch) {
				outcome.PatchDegraded++
				zap.L().Warn("patch applied with table failures",
					zap.String("assessment_id", a.ID),
					zap.String("task", t.Name()))
			}
		}
		if err := r.logs.InsertRunLog(ctx, entry); err != nil {
			zap.L().Error("run log insert failed",
				zap.String("assessment_id", a.ID),
				zap.String("task", t.Name()),
				zap.Error(err))
		}
	}

	switch {
	case outcome.TasksFailed == 0:
		outcome.Status = model.RunStatusSuccess
	case outcome.TasksFailed == outcome.TasksRun:
		outcome.Status = model.RunStatusFailed
	default:
		outcome.Status = model.RunStatusPartial
	}
	if len(confidences) > 0 {
		var sum float64
		for _, c := range confidences {
			sum += c
		}
		avg := sum / float64(len(confidences))
		outcome.Confidence = &avg
	}
	return outcome
}

// runOne executes one task with panic recovery. A panic in BuildPayload or
// Run is converted into an errored result so the run log row still lands.
func (r *Runner) runOne(ctx context.Context, t Task, a *model.Assessment) (res Result, summary map[string]any) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.L().Error("task panicked",
				zap.String("assessment_id", a.ID),
				zap.String("task", t.Name()),
				zap.Any("panic", rec))
			res = Result{Err: fmt.Errorf("task %s panicked: %v", t.Name(), rec)}
		}
	}()

	payload, err := t.BuildPayload(ctx, a)
	if err != nil {
		return Result{Err: err}, nil
	}
	return t.Run(ctx, payload), payload.Summary
}
