package model

import "time"

// RunStatus is the aggregate outcome of running all active tasks on a record.
type RunStatus string

const (
	RunStatusSuccess RunStatus = "success"
	RunStatusPartial RunStatus = "partial"
	RunStatusFailed  RunStatus = "failed"
)

// RunLogEntry is an immutable audit row for one task execution. Exactly one
// entry is written per task run, including runs that panic or error.
type RunLogEntry struct {
	ID             string         `json:"id"`
	AssessmentID   string         `json:"assessment_id"`
	TaskName       string         `json:"task_name"`
	TaskVersion    string         `json:"task_version"`
	PayloadSummary map[string]any `json:"payload_summary,omitempty"`
	Result         map[string]any `json:"result,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Error          string         `json:"error,omitempty"`
	Prompt         string         `json:"prompt,omitempty"`
	RawOutput      string         `json:"raw_output,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	CompletedAt    time.Time      `json:"completed_at"`
}
