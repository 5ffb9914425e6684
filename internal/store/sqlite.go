package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/tradescan/assess-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id               TEXT PRIMARY KEY,
	business_name    TEXT,
	website_url      TEXT,
	target_market    TEXT,
	raw_content      TEXT,
	llm_ready        INTEGER NOT NULL DEFAULT 0,
	is_mock          INTEGER NOT NULL DEFAULT 0,
	status           TEXT NOT NULL DEFAULT 'pending',
	summary          TEXT,
	contacts         TEXT,
	social_links     TEXT,
	confidence_score REAL,
	fallback_reason  TEXT,
	next_best_action TEXT,
	llm_processed_at DATETIME,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS extracted_products (
	id                TEXT PRIMARY KEY,
	assessment_id     TEXT NOT NULL REFERENCES assessments(id),
	name              TEXT NOT NULL,
	description       TEXT,
	category          TEXT,
	price             REAL,
	image_url         TEXT,
	source_url        TEXT,
	source            TEXT,
	estimated_hs_code TEXT,
	compliance_notes  TEXT,
	confidence        REAL,
	UNIQUE (assessment_id, name)
);

CREATE TABLE IF NOT EXISTS certifications (
	id            TEXT PRIMARY KEY,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	name          TEXT NOT NULL,
	issuer        TEXT,
	confidence    REAL,
	UNIQUE (assessment_id, name)
);

CREATE TABLE IF NOT EXISTS task_runs (
	id              TEXT PRIMARY KEY,
	assessment_id   TEXT NOT NULL,
	task_name       TEXT NOT NULL,
	task_version    TEXT,
	payload_summary TEXT,
	result          TEXT,
	confidence      REAL,
	error           TEXT,
	prompt          TEXT,
	raw_output      TEXT,
	started_at      DATETIME NOT NULL,
	completed_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_ready ON assessments(llm_ready, is_mock);
CREATE INDEX IF NOT EXISTS idx_products_assessment ON extracted_products(assessment_id);
CREATE INDEX IF NOT EXISTS idx_certifications_assessment ON certifications(assessment_id);
CREATE INDEX IF NOT EXISTS idx_task_runs_assessment ON task_runs(assessment_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = model.AssessmentStatusPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assessments (id, business_name, website_url, target_market, raw_content, llm_ready, is_mock, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BusinessName, a.WebsiteURL, a.TargetMarket, a.RawContent,
		boolToInt(a.LLMReady), boolToInt(a.IsMock), string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: insert assessment")
}

const assessmentColumns = `id, business_name, website_url, target_market, raw_content, llm_ready, is_mock, status, created_at, updated_at`

func (s *SQLiteStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`, id)
	a, err := scanAssessment(row)
	if err != nil {
		return nil, err
	}
	products, err := s.ListProducts(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Products = products
	return a, nil
}

// FetchReady returns assessments flagged for analysis: ready, not mock, with
// raw content present.
func (s *SQLiteStore) FetchReady(ctx context.Context, limit int) ([]model.Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+assessmentColumns+` FROM assessments
		 WHERE llm_ready = 1 AND is_mock = 0 AND raw_content IS NOT NULL AND raw_content != ''
		 ORDER BY updated_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: fetch ready")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: fetch ready iterate")
}

func (s *SQLiteStore) ListProducts(ctx context.Context, assessmentID string) ([]model.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assessment_id, name, category, estimated_hs_code, compliance_notes
		 FROM extracted_products WHERE assessment_id = ? ORDER BY name`, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list products")
	}
	defer rows.Close()

	var out []model.ProductRecord
	for rows.Next() {
		var p model.ProductRecord
		var category, hsCode, notes sql.NullString
		if err := rows.Scan(&p.ID, &p.AssessmentID, &p.Name, &category, &hsCode, &notes); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan product")
		}
		p.Category = category.String
		p.EstimatedHSCode = hsCode.String
		p.ComplianceNotes = notes.String
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list products iterate")
}

// UpdateFields applies a dynamic field update to one record. Column names
// are validated; values are bound as parameters.
func (s *SQLiteStore) UpdateFields(ctx context.Context, table, id string, fields map[string]any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	cols := sortedKeys(fields)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	for _, col := range cols {
		if err := checkIdent(col); err != nil {
			return err
		}
		sets = append(sets, col+" = ?")
		args = append(args, normalizeValue(fields[col]))
	}
	if table == TableAssessments {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC())
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", table, strings.Join(sets, ", ")), args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update %s %s", table, id)
	}
	return checkRowsAffected(res, table, id)
}

// UpsertRows inserts rows into a table, updating on conflict-key collision.
// Rows may have heterogeneous keys; missing columns are written as NULL.
func (s *SQLiteStore) UpsertRows(ctx context.Context, table string, rows []map[string]any, conflictKeys []string) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	cols, err := unionColumns(rows)
	if err != nil {
		return err
	}
	for _, k := range conflictKeys {
		if err := checkIdent(k); err != nil {
			return err
		}
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders)
	if len(conflictKeys) > 0 {
		var updates []string
		conflict := map[string]bool{"id": true}
		for _, k := range conflictKeys {
			conflict[k] = true
		}
		for _, col := range cols {
			if !conflict[col] {
				updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
			}
		}
		if len(updates) == 0 {
			query += fmt.Sprintf(" ON CONFLICT(%s) DO NOTHING", strings.Join(conflictKeys, ", "))
		} else {
			query += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s",
				strings.Join(conflictKeys, ", "), strings.Join(updates, ", "))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return eris.Wrapf(err, "sqlite: prepare upsert %s", table)
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]any, len(cols))
		for i, col := range cols {
			if col == "id" {
				if v, ok := row["id"]; ok && v != "" {
					args[i] = v
				} else {
					args[i] = uuid.New().String()
				}
				continue
			}
			args[i] = normalizeValue(row[col])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: upsert row into %s", table)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) InsertRunLog(ctx context.Context, entry *model.RunLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	payloadJSON, err := marshalNullable(entry.PayloadSummary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload summary")
	}
	resultJSON, err := marshalNullable(entry.Result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO task_runs (id, assessment_id, task_name, task_version, payload_summary, result, confidence, error, prompt, raw_output, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.AssessmentID, entry.TaskName, entry.TaskVersion,
		payloadJSON, resultJSON, entry.Confidence, nullIfEmpty(entry.Error),
		nullIfEmpty(entry.Prompt), nullIfEmpty(entry.RawOutput),
		entry.StartedAt.UTC(), entry.CompletedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: insert run log")
}

func (s *SQLiteStore) ListRunLogs(ctx context.Context, assessmentID string) ([]model.RunLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, assessment_id, task_name, task_version, payload_summary, result, confidence, error, prompt, raw_output, started_at, completed_at
		 FROM task_runs WHERE assessment_id = ? ORDER BY started_at ASC`, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list run logs")
	}
	defer rows.Close()

	var out []model.RunLogEntry
	for rows.Next() {
		var e model.RunLogEntry
		var payloadJSON, resultJSON, errMsg, prompt, rawOutput sql.NullString
		var confidence sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.AssessmentID, &e.TaskName, &e.TaskVersion,
			&payloadJSON, &resultJSON, &confidence, &errMsg, &prompt, &rawOutput,
			&e.StartedAt, &e.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run log")
		}
		if payloadJSON.Valid {
			_ = json.Unmarshal([]byte(payloadJSON.String), &e.PayloadSummary)
		}
		if resultJSON.Valid {
			_ = json.Unmarshal([]byte(resultJSON.String), &e.Result)
		}
		if confidence.Valid {
			c := confidence.Float64
			e.Confidence = &c
		}
		e.Error = errMsg.String
		e.Prompt = prompt.String
		e.RawOutput = rawOutput.String
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list run logs iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanAssessment(row scannable) (*model.Assessment, error) {
	var a model.Assessment
	var businessName, websiteURL, targetMarket, rawContent sql.NullString
	var llmReady, isMock int

	err := row.Scan(&a.ID, &businessName, &websiteURL, &targetMarket, &rawContent,
		&llmReady, &isMock, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("assessment not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan assessment")
	}

	a.BusinessName = businessName.String
	a.WebsiteURL = websiteURL.String
	a.TargetMarket = targetMarket.String
	a.RawContent = rawContent.String
	a.LLMReady = llmReady != 0
	a.IsMock = isMock != 0
	return &a, nil
}

func unionColumns(rows []map[string]any) ([]string, error) {
	set := map[string]bool{"id": true}
	for _, row := range rows {
		for k := range row {
			if err := checkIdent(k); err != nil {
				return nil, err
			}
			set[k] = true
		}
	}
	cols := make([]string, 0, len(set))
	for k := range set {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// normalizeValue converts values database/sql cannot bind directly
// (maps, slices) to JSON text.
func normalizeValue(v any) any {
	switch v.(type) {
	case nil, string, int, int64, float64, bool, time.Time, []byte:
		return v
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

func marshalNullable(m map[string]any) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
