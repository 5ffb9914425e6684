package store

import (
	"context"
	"regexp"

	"github.com/rotisserie/eris"

	"github.com/tradescan/assess-cli/internal/model"
)

// Store defines the persistence interface for the assessment pipeline.
// UpdateFields and UpsertRows are the dynamic operations the patch
// applier dispatches to; they accept only known tables and legal
// column names.
type Store interface {
	// Assessments
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	GetAssessment(ctx context.Context, id string) (*model.Assessment, error)
	FetchReady(ctx context.Context, limit int) ([]model.Assessment, error)
	ListProducts(ctx context.Context, assessmentID string) ([]model.ProductRecord, error)

	// Patch surface
	UpdateFields(ctx context.Context, table, id string, fields map[string]any) error
	UpsertRows(ctx context.Context, table string, rows []map[string]any, conflictKeys []string) error

	// Run log
	InsertRunLog(ctx context.Context, entry *model.RunLogEntry) error
	ListRunLogs(ctx context.Context, assessmentID string) ([]model.RunLogEntry, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Table names accepted by the patch surface.
const (
	TableAssessments    = "assessments"
	TableProducts       = "extracted_products"
	TableCertifications = "certifications"
)

var allowedTables = map[string]bool{
	TableAssessments:    true,
	TableProducts:       true,
	TableCertifications: true,
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// checkTable rejects table names outside the patchable set.
func checkTable(table string) error {
	if !allowedTables[table] {
		return eris.Errorf("store: table not patchable: %s", table)
	}
	return nil
}

// checkIdent rejects column names that cannot be safely interpolated.
func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return eris.Errorf("store: illegal identifier: %s", name)
	}
	return nil
}

// Open creates a Store for the configured driver.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unknown driver: %s", driver)
	}
}
