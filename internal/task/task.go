// Package task holds the fixed set of analysis tasks and the runner that
// executes them against assessment records.
package task

import (
	"context"

	"github.com/tradescan/assess-cli/internal/model"
	"github.com/tradescan/assess-cli/internal/patch"
)

// Payload carries the inputs one task run operates on. Summary is a compact
// description of the payload recorded in the run log, never the full content.
type Payload struct {
	Assessment *model.Assessment
	Content    string
	Summary    map[string]any
}

// Result is what a task run produces. Patch is applied only when Err is nil;
// the run log row is written either way.
type Result struct {
	Result     map[string]any
	Patch      *patch.Patch
	Confidence *float64
	Prompt     string
	RawOutput  string
	Err        error
}

// Task is one versioned unit of analysis work. Active must be pure: it
// inspects the record and decides applicability without side effects.
type Task interface {
	Name() string
	Version() string
	Active(a *model.Assessment) bool
	BuildPayload(ctx context.Context, a *model.Assessment) (Payload, error)
	Run(ctx context.Context, p Payload) Result
}

func confidencePtr(v float64) *float64 {
	c := model.ClampConfidence(v)
	return &c
}
