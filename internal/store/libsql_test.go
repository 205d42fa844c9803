package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := NewLibSQLStore("file:" + dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() {
		_ = s.Close()
		_ = os.RemoveAll(dir)
	})
	return s
}

func seedModel(t *testing.T, s *LibSQLStore, id, name string) *model.WorkflowModel {
	t.Helper()
	m := model.New(model.WithID(id), model.WithName(name))
	m, err := m.AddNode(&schema.BeginNode{NodeCommon: schema.NodeCommon{ID: "begin_1", Name: "Start"}})
	require.NoError(t, err)
	m, err = m.AddNode(&schema.EndNode{NodeCommon: schema.NodeCommon{ID: "end_1", Name: "Done"}})
	require.NoError(t, err)
	m, err = m.AddEdge(schema.Edge{ID: "e1", Source: "begin_1", Target: "end_1"})
	require.NoError(t, err)
	require.NoError(t, s.SaveModel(context.Background(), m))
	return m
}

// --- Migrations ---

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))

	v, err := schemaVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestLoadMigrations_Ordered(t *testing.T) {
	ms, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, ms)
	assert.Equal(t, 1, ms[0].version)
	assert.Equal(t, "initial_schema", ms[0].name)
}

func TestSplitStatements_SkipsComments(t *testing.T) {
	got := splitStatements("-- header\nCREATE TABLE a (x INT);\n-- only a comment\n;SELECT 1;")
	assert.Equal(t, []string{"-- header\nCREATE TABLE a (x INT)", "SELECT 1"}, got)
}

// --- Models ---

func TestSaveAndGetModel(t *testing.T) {
	s := newTestStore(t)
	orig := seedModel(t, s, "m1", "Onboarding")

	got, err := s.GetModel(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", got.Metadata().ID)
	assert.Equal(t, "Onboarding", got.Metadata().Name)
	assert.Equal(t, orig.NodeIDs(), got.NodeIDs())
	assert.Len(t, got.Edges(), 1)
}

func TestSaveModel_Upsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	m := seedModel(t, s, "m1", "Draft")

	m, err := m.RemoveEdge("e1")
	require.NoError(t, err)
	require.NoError(t, s.SaveModel(ctx, m))

	list, err := s.ListModels(ctx, ModelFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].NodeCount)
	assert.Zero(t, list[0].EdgeCount)
}

func TestSaveModel_RequiresID(t *testing.T) {
	s := newTestStore(t)
	err := s.SaveModel(context.Background(), model.New())
	assert.Equal(t, schema.ErrCodeValidation, schema.ErrorCode(err))
}

func TestGetModel_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetModel(context.Background(), "missing")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestListModels_FilterAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := range 4 {
		seedModel(t, s, fmt.Sprintf("m%d", i), fmt.Sprintf("claims-%d", i))
		time.Sleep(2 * time.Millisecond)
	}
	seedModel(t, s, "other", "invoices")

	all, err := s.ListModels(ctx, ModelFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, "other", all[0].ID, "most recently updated first")

	claims, err := s.ListModels(ctx, ModelFilter{NameContains: "claims"})
	require.NoError(t, err)
	assert.Len(t, claims, 4)

	page, err := s.ListModels(ctx, ModelFilter{NameContains: "claims", Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "m2", page[0].ID)
	assert.Equal(t, "m1", page[1].ID)
}

func TestDeleteModel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedModel(t, s, "m1", "x")
	require.NoError(t, s.AppendValidation(ctx, &ValidationRun{ModelID: "m1", Valid: true, CanSave: true}))

	require.NoError(t, s.DeleteModel(ctx, "m1"))
	_, err := s.GetModel(ctx, "m1")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))

	runs, err := s.ListValidations(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)

	err = s.DeleteModel(ctx, "m1")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

// --- Validation history ---

func TestAppendValidation_Sequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedModel(t, s, "m1", "x")

	result := &schema.WorkflowValidationResult{}
	result.Add(schema.ValidationIssue{Code: "missing-begin", Message: "no begin node", Severity: schema.SeverityError})
	result.Add(schema.ValidationIssue{Code: "unreachable", Message: "p1 is unreachable", Severity: schema.SeverityWarning})

	for range 3 {
		run, err := NewValidationRun("m1", result, false)
		require.NoError(t, err)
		require.NoError(t, s.AppendValidation(ctx, run))
		assert.NotEmpty(t, run.ID)
		assert.False(t, run.CreatedAt.IsZero())
	}

	runs, err := s.ListValidations(ctx, "m1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []int64{3, 2, 1}, []int64{runs[0].Sequence, runs[1].Sequence, runs[2].Sequence})
	assert.False(t, runs[0].Valid)
	assert.Equal(t, 1, runs[0].Errors)
	assert.Equal(t, 1, runs[0].Warnings)
	assert.Contains(t, string(runs[0].Report), "missing-begin")

	latest, err := s.ListValidations(ctx, "m1", 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, int64(3), latest[0].Sequence)
}

func TestAppendValidation_UnknownModel(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendValidation(context.Background(), &ValidationRun{ModelID: "ghost"})
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestNewValidationRun_Valid(t *testing.T) {
	result := &schema.WorkflowValidationResult{}
	result.Add(schema.ValidationIssue{Code: "summary", Message: "ok", Severity: schema.SeverityInfo})
	run, err := NewValidationRun("m1", result, true)
	require.NoError(t, err)
	assert.True(t, run.Valid)
	assert.True(t, run.CanSave)
	assert.Zero(t, run.Errors)
	assert.NotEmpty(t, run.Report)
}
