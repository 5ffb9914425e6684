package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradescan/assess-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCreateAndGetAssessment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &model.Assessment{
		BusinessName: "Acme Exports",
		WebsiteURL:   "https://acme.example",
		TargetMarket: "EU",
		RawContent:   "<html><body>hello</body></html>",
		LLMReady:     true,
	}
	require.NoError(t, s.CreateAssessment(ctx, a))
	require.NotEmpty(t, a.ID)
	assert.Equal(t, model.AssessmentStatusPending, a.Status)

	got, err := s.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Exports", got.BusinessName)
	assert.Equal(t, "https://acme.example", got.WebsiteURL)
	assert.True(t, got.LLMReady)
	assert.False(t, got.IsMock)
	assert.Empty(t, got.Products)
}

func TestGetAssessmentNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetAssessment(context.Background(), "missing")
	assert.Error(t, err)
}

func TestFetchReadyFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ready := &model.Assessment{BusinessName: "ready", RawContent: "<p>x</p>", LLMReady: true}
	notReady := &model.Assessment{BusinessName: "not ready", RawContent: "<p>x</p>"}
	mock := &model.Assessment{BusinessName: "mock", RawContent: "<p>x</p>", LLMReady: true, IsMock: true}
	empty := &model.Assessment{BusinessName: "empty", LLMReady: true}
	for _, a := range []*model.Assessment{ready, notReady, mock, empty} {
		require.NoError(t, s.CreateAssessment(ctx, a))
	}

	got, err := s.FetchReady(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ready", got[0].BusinessName)
}

func TestFetchReadyLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		a := &model.Assessment{BusinessName: "biz", RawContent: "<p>x</p>", LLMReady: true}
		require.NoError(t, s.CreateAssessment(ctx, a))
	}

	got, err := s.FetchReady(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestUpdateFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &model.Assessment{BusinessName: "biz", LLMReady: true}
	require.NoError(t, s.CreateAssessment(ctx, a))

	err := s.UpdateFields(ctx, TableAssessments, a.ID, map[string]any{
		"status":           string(model.AssessmentStatusProcessed),
		"llm_ready":        false,
		"confidence_score": 0.82,
		"summary":          "an exporter of widgets",
	})
	require.NoError(t, err)

	got, err := s.GetAssessment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.AssessmentStatusProcessed, got.Status)
	assert.False(t, got.LLMReady)
}

func TestUpdateFieldsRejectsUnknownTable(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateFields(context.Background(), "sqlite_master", "x", map[string]any{"a": 1})
	assert.Error(t, err)
}

func TestUpdateFieldsRejectsBadColumn(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateFields(context.Background(), TableAssessments, "x", map[string]any{
		"status; DROP TABLE assessments": "pwned",
	})
	assert.Error(t, err)
}

func TestUpdateFieldsMissingRecord(t *testing.T) {
	s := newTestStore(t)

	err := s.UpdateFields(context.Background(), TableAssessments, "missing", map[string]any{"status": "x"})
	assert.Error(t, err)
}

func TestUpsertRowsInsertAndUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &model.Assessment{BusinessName: "biz"}
	require.NoError(t, s.CreateAssessment(ctx, a))

	rows := []map[string]any{
		{"assessment_id": a.ID, "name": "Olive Oil", "category": "food", "confidence": 0.7},
		{"assessment_id": a.ID, "name": "Ceramic Tiles", "category": "building"},
	}
	require.NoError(t, s.UpsertRows(ctx, TableProducts, rows, []string{"assessment_id", "name"}))

	products, err := s.ListProducts(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)

	// Second pass updates in place instead of duplicating.
	rows = []map[string]any{
		{"assessment_id": a.ID, "name": "Olive Oil", "estimated_hs_code": "1509"},
	}
	require.NoError(t, s.UpsertRows(ctx, TableProducts, rows, []string{"assessment_id", "name"}))

	products, err = s.ListProducts(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)
	for _, p := range products {
		if p.Name == "Olive Oil" {
			assert.Equal(t, "1509", p.EstimatedHSCode)
		}
	}
}

func TestUpsertRowsHeterogeneousKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := &model.Assessment{BusinessName: "biz"}
	require.NoError(t, s.CreateAssessment(ctx, a))

	rows := []map[string]any{
		{"assessment_id": a.ID, "name": "ISO 9001", "issuer": "ISO"},
		{"assessment_id": a.ID, "name": "CE Marking"},
	}
	require.NoError(t, s.UpsertRows(ctx, TableCertifications, rows, []string{"assessment_id", "name"}))
}

func TestUpsertRowsEmptyIsNoop(t *testing.T) {
	s := newTestStore(t)

	assert.NoError(t, s.UpsertRows(context.Background(), TableProducts, nil, []string{"id"}))
}

func TestRunLogRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conf := 0.9
	started := time.Now().UTC().Truncate(time.Second)
	entry := &model.RunLogEntry{
		AssessmentID:   "a-1",
		TaskName:       "website_analysis",
		TaskVersion:    "1.1.0",
		PayloadSummary: map[string]any{"content_chars": float64(1234)},
		Result:         map[string]any{"products": float64(3)},
		Confidence:     &conf,
		Prompt:         "analyze this",
		RawOutput:      `{"products": []}`,
		StartedAt:      started,
		CompletedAt:    started.Add(2 * time.Second),
	}
	require.NoError(t, s.InsertRunLog(ctx, entry))
	require.NotEmpty(t, entry.ID)

	failed := &model.RunLogEntry{
		AssessmentID: "a-1",
		TaskName:     "hs_code",
		TaskVersion:  "0.2.0",
		Error:        "no products to classify",
		StartedAt:    started.Add(3 * time.Second),
		CompletedAt:  started.Add(3 * time.Second),
	}
	require.NoError(t, s.InsertRunLog(ctx, failed))

	logs, err := s.ListRunLogs(ctx, "a-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, "website_analysis", logs[0].TaskName)
	assert.Equal(t, map[string]any{"content_chars": float64(1234)}, logs[0].PayloadSummary)
	require.NotNil(t, logs[0].Confidence)
	assert.InDelta(t, 0.9, *logs[0].Confidence, 1e-9)
	assert.Empty(t, logs[0].Error)

	assert.Equal(t, "hs_code", logs[1].TaskName)
	assert.Nil(t, logs[1].Confidence)
	assert.Equal(t, "no products to classify", logs[1].Error)
}

func TestListRunLogsEmpty(t *testing.T) {
	s := newTestStore(t)

	logs, err := s.ListRunLogs(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, logs)
}
