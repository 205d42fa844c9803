package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Models ---

// SaveModel inserts m or replaces the stored document of the same id.
// created_at is kept from the first save.
func (s *LibSQLStore) SaveModel(ctx context.Context, m *model.WorkflowModel) error {
	meta := m.Metadata()
	if meta.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "model must have an id to be saved")
	}
	doc, err := model.Encode(m)
	if err != nil {
		return err
	}
	// updated_ns orders listings; TIMESTAMP text does not sort reliably.
	updated := timeOrNow(meta.UpdatedAt)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO models (id, name, version, document, node_count, edge_count, created_at, updated_at, updated_ns)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, version=excluded.version, document=excluded.document,
		   node_count=excluded.node_count, edge_count=excluded.edge_count, updated_at=excluded.updated_at,
		   updated_ns=excluded.updated_ns`,
		meta.ID, nullStr(meta.Name), meta.Version, string(doc), m.NodeCount(), len(m.Edges()),
		timeOrNow(meta.CreatedAt), updated, updated.UnixNano(),
	)
	if err != nil {
		return storeError("save model", meta.ID, err)
	}
	return nil
}

// GetModel loads and decodes a model.
func (s *LibSQLStore) GetModel(ctx context.Context, id string) (*model.WorkflowModel, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM models WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("model", id)
	}
	if err != nil {
		return nil, storeError("get model", id, err)
	}
	return model.Decode([]byte(doc))
}

// ListModels returns summaries, most recently updated first.
func (s *LibSQLStore) ListModels(ctx context.Context, filter ModelFilter) ([]*ModelSummary, error) {
	var where []string
	var args []any

	if filter.NameContains != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+filter.NameContains+"%")
	}

	query := "SELECT id, name, version, node_count, edge_count, created_at, updated_at FROM models"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY updated_ns DESC, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ModelSummary
	for rows.Next() {
		ms := &ModelSummary{}
		var name sql.NullString
		if err := rows.Scan(&ms.ID, &name, &ms.Version, &ms.NodeCount, &ms.EdgeCount, &ms.CreatedAt, &ms.UpdatedAt); err != nil {
			return nil, err
		}
		ms.Name = name.String
		out = append(out, ms)
	}
	return out, rows.Err()
}

// DeleteModel removes a model and its validation history.
func (s *LibSQLStore) DeleteModel(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM validation_runs WHERE model_id = ?`, id); err != nil {
		return storeError("delete validation runs", id, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return storeError("delete model", id, err)
	}
	if err := checkRowsAffected(res, "model", id); err != nil {
		return err
	}
	return tx.Commit()
}

// --- Validation history ---

// AppendValidation appends run to its model's history, assigning ID (when
// empty), Sequence and CreatedAt.
func (s *LibSQLStore) AppendValidation(ctx context.Context, run *ValidationRun) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM models WHERE id = ?`, run.ModelID).Scan(&exists)
	if err != nil {
		return storeError("check model", run.ModelID, err)
	}
	if exists == 0 {
		return storeNotFound("model", run.ModelID)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM validation_runs WHERE model_id = ?`, run.ModelID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("get next sequence: %w", err)
	}

	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	run.Sequence = seq
	run.CreatedAt = timeOrNow(run.CreatedAt)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO validation_runs (id, model_id, sequence, valid, can_save, errors, warnings, report, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ModelID, seq, run.Valid, run.CanSave, run.Errors, run.Warnings, nullRaw(run.Report), run.CreatedAt,
	)
	if err != nil {
		return storeError("append validation", run.ModelID, err)
	}
	return tx.Commit()
}

// ListValidations returns the history of a model, newest first. A limit of
// zero or less returns everything.
func (s *LibSQLStore) ListValidations(ctx context.Context, modelID string, limit int) ([]*ValidationRun, error) {
	query := `SELECT id, model_id, sequence, valid, can_save, errors, warnings, report, created_at
		FROM validation_runs WHERE model_id = ? ORDER BY sequence DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ValidationRun
	for rows.Next() {
		r := &ValidationRun{}
		var report sql.NullString
		if err := rows.Scan(&r.ID, &r.ModelID, &r.Sequence, &r.Valid, &r.CanSave, &r.Errors, &r.Warnings, &report, &r.CreatedAt); err != nil {
			return nil, err
		}
		if report.Valid && report.String != "" {
			r.Report = []byte(report.String)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- helpers ---

func storeNotFound(resource, id string) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}

func storeError(op, id string, err error) *schema.FlowError {
	return schema.NewErrorf(schema.ErrCodeStore, "%s %q failed", op, id).WithCause(err)
}

func checkRowsAffected(res sql.Result, resource, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(resource, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

var _ Store = (*LibSQLStore)(nil)
