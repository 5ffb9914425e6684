package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/tradescan/assess-cli/internal/db"
	"github.com/tradescan/assess-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_assessment": `SELECT ` + assessmentColumns + ` FROM assessments WHERE id = $1`,
	"fetch_ready": `SELECT ` + assessmentColumns + ` FROM assessments
		WHERE llm_ready AND NOT is_mock AND raw_content IS NOT NULL AND raw_content != ''
		ORDER BY updated_at ASC LIMIT $1`,
	"insert_run_log": `INSERT INTO task_runs (id, assessment_id, task_name, task_version, payload_summary, result, confidence, error, prompt, raw_output, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Tests use it with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS assessments (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	business_name    TEXT,
	website_url      TEXT,
	target_market    TEXT,
	raw_content      TEXT,
	llm_ready        BOOLEAN NOT NULL DEFAULT false,
	is_mock          BOOLEAN NOT NULL DEFAULT false,
	status           TEXT NOT NULL DEFAULT 'pending',
	summary          TEXT,
	contacts         JSONB,
	social_links     JSONB,
	confidence_score DOUBLE PRECISION,
	fallback_reason  TEXT,
	next_best_action TEXT,
	llm_processed_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS extracted_products (
	id                TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	assessment_id     TEXT NOT NULL REFERENCES assessments(id),
	name              TEXT NOT NULL,
	description       TEXT,
	category          TEXT,
	price             DOUBLE PRECISION,
	image_url         TEXT,
	source_url        TEXT,
	source            TEXT,
	estimated_hs_code TEXT,
	compliance_notes  TEXT,
	confidence        DOUBLE PRECISION,
	UNIQUE (assessment_id, name)
);

CREATE TABLE IF NOT EXISTS certifications (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	assessment_id TEXT NOT NULL REFERENCES assessments(id),
	name          TEXT NOT NULL,
	issuer        TEXT,
	confidence    DOUBLE PRECISION,
	UNIQUE (assessment_id, name)
);

CREATE TABLE IF NOT EXISTS task_runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	assessment_id   TEXT NOT NULL,
	task_name       TEXT NOT NULL,
	task_version    TEXT,
	payload_summary JSONB,
	result          JSONB,
	confidence      DOUBLE PRECISION,
	error           TEXT,
	prompt          TEXT,
	raw_output      TEXT,
	started_at      TIMESTAMPTZ NOT NULL,
	completed_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_ready ON assessments(llm_ready, is_mock);
CREATE INDEX IF NOT EXISTS idx_products_assessment ON extracted_products(assessment_id);
CREATE INDEX IF NOT EXISTS idx_certifications_assessment ON certifications(assessment_id);
CREATE INDEX IF NOT EXISTS idx_task_runs_assessment ON task_runs(assessment_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
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

	_, err := s.pool.Exec(ctx,
		`INSERT INTO assessments (id, business_name, website_url, target_market, raw_content, llm_ready, is_mock, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.BusinessName, a.WebsiteURL, a.TargetMarket, a.RawContent,
		a.LLMReady, a.IsMock, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: insert assessment")
}

func (s *PostgresStore) GetAssessment(ctx context.Context, id string) (*model.Assessment, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+assessmentColumns+` FROM assessments WHERE id = $1`, id)
	a, err := scanPgAssessment(row)
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

func (s *PostgresStore) FetchReady(ctx context.Context, limit int) ([]model.Assessment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+assessmentColumns+` FROM assessments
		 WHERE llm_ready AND NOT is_mock AND raw_content IS NOT NULL AND raw_content != ''
		 ORDER BY updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: fetch ready")
	}
	defer rows.Close()

	var out []model.Assessment
	for rows.Next() {
		a, err := scanPgAssessment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: fetch ready iterate")
}

func (s *PostgresStore) ListProducts(ctx context.Context, assessmentID string) ([]model.ProductRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assessment_id, name, category, estimated_hs_code, compliance_notes
		 FROM extracted_products WHERE assessment_id = $1 ORDER BY name`, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list products")
	}
	defer rows.Close()

	var out []model.ProductRecord
	for rows.Next() {
		var p model.ProductRecord
		var category, hsCode, notes *string
		if err := rows.Scan(&p.ID, &p.AssessmentID, &p.Name, &category, &hsCode, &notes); err != nil {
			return nil, eris.Wrap(err, "postgres: scan product")
		}
		p.Category = deref(category)
		p.EstimatedHSCode = deref(hsCode)
		p.ComplianceNotes = deref(notes)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list products iterate")
}

func (s *PostgresStore) UpdateFields(ctx context.Context, table, id string, fields map[string]any) error {
	if err := checkTable(table); err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}

	cols := sortedKeys(fields)
	sets := make([]string, 0, len(cols)+1)
	args := make([]any, 0, len(cols)+2)
	argIdx := 1
	for _, col := range cols {
		if err := checkIdent(col); err != nil {
			return err
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, argIdx))
		args = append(args, normalizeValue(fields[col]))
		argIdx++
	}
	if table == TableAssessments {
		sets = append(sets, "updated_at = now()")
	}
	args = append(args, id)

	tag, err := s.pool.Exec(ctx,
		fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d", table, strings.Join(sets, ", "), argIdx),
		args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update %s %s", table, id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("%s not found: %s", table, id)
	}
	return nil
}

func (s *PostgresStore) UpsertRows(ctx context.Context, table string, rows []map[string]any, conflictKeys []string) error {
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

	values := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(cols))
		for j, col := range cols {
			if col == "id" {
				if v, ok := row["id"]; ok && v != "" {
					vals[j] = v
				} else {
					vals[j] = uuid.New().String()
				}
				continue
			}
			vals[j] = normalizeValue(row[col])
		}
		values[i] = vals
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        table,
		Columns:      cols,
		ConflictKeys: conflictKeys,
	}, values)
	return err
}

func (s *PostgresStore) InsertRunLog(ctx context.Context, entry *model.RunLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	payloadJSON, err := marshalNullable(entry.PayloadSummary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload summary")
	}
	resultJSON, err := marshalNullable(entry.Result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO task_runs (id, assessment_id, task_name, task_version, payload_summary, result, confidence, error, prompt, raw_output, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		entry.ID, entry.AssessmentID, entry.TaskName, entry.TaskVersion,
		payloadJSON, resultJSON, entry.Confidence, nullIfEmpty(entry.Error),
		nullIfEmpty(entry.Prompt), nullIfEmpty(entry.RawOutput),
		entry.StartedAt.UTC(), entry.CompletedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: insert run log")
}

func (s *PostgresStore) ListRunLogs(ctx context.Context, assessmentID string) ([]model.RunLogEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, assessment_id, task_name, task_version, payload_summary, result, confidence, error, prompt, raw_output, started_at, completed_at
		 FROM task_runs WHERE assessment_id = $1 ORDER BY started_at ASC`, assessmentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list run logs")
	}
	defer rows.Close()

	var out []model.RunLogEntry
	for rows.Next() {
		var e model.RunLogEntry
		var payloadJSON, resultJSON []byte
		var errMsg, prompt, rawOutput *string
		if err := rows.Scan(&e.ID, &e.AssessmentID, &e.TaskName, &e.TaskVersion,
			&payloadJSON, &resultJSON, &e.Confidence, &errMsg, &prompt, &rawOutput,
			&e.StartedAt, &e.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run log")
		}
		if len(payloadJSON) > 0 {
			_ = json.Unmarshal(payloadJSON, &e.PayloadSummary)
		}
		if len(resultJSON) > 0 {
			_ = json.Unmarshal(resultJSON, &e.Result)
		}
		e.Error = deref(errMsg)
		e.Prompt = deref(prompt)
		e.RawOutput = deref(rawOutput)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list run logs iterate")
}

func scanPgAssessment(row pgx.Row) (*model.Assessment, error) {
	var a model.Assessment
	var businessName, websiteURL, targetMarket, rawContent *string

	err := row.Scan(&a.ID, &businessName, &websiteURL, &targetMarket, &rawContent,
		&a.LLMReady, &a.IsMock, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.New("assessment not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan assessment")
	}

	a.BusinessName = deref(businessName)
	a.WebsiteURL = deref(websiteURL)
	a.TargetMarket = deref(targetMarket)
	a.RawContent = deref(rawContent)
	return &a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
