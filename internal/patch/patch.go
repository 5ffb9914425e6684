// Package patch describes and applies table-scoped writes emitted by tasks.
package patch

import (
	"context"

	"go.uber.org/zap"
)

// Op is one tagged write operation. The closed set of implementations is
// UpsertOp and UpdateOp; the applier dispatches on the concrete type.
type Op interface {
	isOp()
}

// UpsertOp inserts or updates whole rows in one table using a conflict key.
// When NeedsOwner is set the rows reference the patch's owning record and
// receive its id before writing.
type UpsertOp struct {
	Table        string
	Rows         []map[string]any
	ConflictKeys []string
	NeedsOwner   bool
}

func (UpsertOp) isOp() {}

// UpdateOp applies field updates to a single record by id.
type UpdateOp struct {
	Table    string
	RecordID string
	Fields   map[string]any
}

func (UpdateOp) isOp() {}

// Patch is the full set of writes produced by one task run. OwnerID is the
// authoritative record id that NeedsOwner upserts must reference.
type Patch struct {
	OwnerID string
	Ops     []Op
}

// Store is the subset of record-store operations the applier needs.
type Store interface {
	UpdateFields(ctx context.Context, table, id string, fields map[string]any) error
	UpsertRows(ctx context.Context, table string, rows []map[string]any, conflictKeys []string) error
}

// Applier writes patches to a record store. Tables are applied independently;
// there is no cross-table transaction.
type Applier struct {
	store Store
}

// NewApplier constructs an Applier over a store.
func NewApplier(store Store) *Applier {
	return &Applier{store: store}
}

// Apply writes every op in the patch. Owner-referencing upserts with no
// resolvable owner id are skipped and reported rather than written with a
// dangling reference. A failure in one table does not stop later tables.
// The returned bool reports whether the attempt completed without an
// unexpected internal failure; individual table errors alone do not flip it.
func (a *Applier) Apply(ctx context.Context, p *Patch) bool {
	if p == nil || len(p.Ops) == 0 {
		return true
	}

	var failed, skipped int
	for _, op := range p.Ops {
		switch o := op.(type) {
		case UpsertOp:
			if o.NeedsOwner && p.OwnerID == "" {
				zap.L().Warn("patch: skipping table, owner id unresolved",
					zap.String("table", o.Table),
					zap.Int("rows", len(o.Rows)))
				skipped++
				continue
			}
			if len(o.Rows) == 0 {
				continue
			}
			rows := o.Rows
			if o.NeedsOwner {
				rows = withOwner(rows, p.OwnerID)
			}
			if err := a.store.UpsertRows(ctx, o.Table, rows, o.ConflictKeys); err != nil {
				zap.L().Error("patch: upsert failed",
					zap.String("table", o.Table),
					zap.Error(err))
				failed++
			}
		case UpdateOp:
			if o.RecordID == "" || len(o.Fields) == 0 {
				zap.L().Warn("patch: skipping update without id or fields",
					zap.String("table", o.Table))
				skipped++
				continue
			}
			if err := a.store.UpdateFields(ctx, o.Table, o.RecordID, o.Fields); err != nil {
				zap.L().Error("patch: update failed",
					zap.String("table", o.Table),
					zap.String("record_id", o.RecordID),
					zap.Error(err))
				failed++
			}
		default:
			zap.L().Error("patch: unknown op type", zap.Any("op", op))
			return false
		}
	}

	if failed > 0 || skipped > 0 {
		zap.L().Info("patch: applied with degradation",
			zap.Int("ops", len(p.Ops)),
			zap.Int("failed", failed),
			zap.Int("skipped", skipped))
	}
	return true
}

// withOwner copies rows with the owning assessment id injected.
func withOwner(rows []map[string]any, ownerID string) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		copied := make(map[string]any, len(row)+1)
		for k, v := range row {
			copied[k] = v
		}
		copied["assessment_id"] = ownerID
		out[i] = copied
	}
	return out
}
