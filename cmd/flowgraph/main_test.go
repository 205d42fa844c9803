package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cli "github.com/urfave/cli/v3"

	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/pkg/schema"
)

type harness struct {
	dir    string
	stdout bytes.Buffer
	stderr bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	clearEnv(t)
	return &harness{dir: t.TempDir()}
}

// run executes the CLI and returns the exit code carried by the error.
func (h *harness) run(t *testing.T, args ...string) (int, error) {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()

	cmd := newApp().command()
	cmd.Writer = &h.stdout
	cmd.ErrWriter = &h.stderr
	cmd.ExitErrHandler = func(context.Context, *cli.Command, error) {}

	base := []string{"flowgraph",
		"--config", filepath.Join(h.dir, "settings.json"),
		"--db", filepath.Join(h.dir, "flowgraph.db"),
	}
	err := cmd.Run(context.Background(), append(base, args...))
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode(), err
	}
	if err != nil {
		return 1, err
	}
	return 0, nil
}

func (h *harness) write(t *testing.T, name string, m *model.WorkflowModel) string {
	t.Helper()
	data, err := model.Encode(m)
	require.NoError(t, err)
	path := filepath.Join(h.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func common(id, name string) schema.NodeCommon {
	return schema.NodeCommon{ID: id, Name: name}
}

func workflow(t *testing.T, id string, extraEdges ...schema.Edge) *model.WorkflowModel {
	t.Helper()
	m := model.New(model.WithID(id), model.WithName("onboarding"))
	var err error
	for _, n := range []schema.Node{
		&schema.BeginNode{NodeCommon: common("begin_1", "Start")},
		&schema.ProcessNode{NodeCommon: common("p1", "Review")},
		&schema.ConcurrentNode{NodeCommon: common("fork", "Fork"), ParallelBranches: []string{"a1", "b1"}},
		&schema.ProcessNode{NodeCommon: common("a1", "A")},
		&schema.ProcessNode{NodeCommon: common("b1", "B")},
		&schema.EndNode{NodeCommon: common("end_1", "Done"), ExpectedValue: "ok"},
	} {
		m, err = m.AddNode(n)
		require.NoError(t, err)
	}
	edges := []schema.Edge{
		{ID: "e1", Source: "begin_1", Target: "p1"},
		{ID: "e2", Source: "p1", Target: "fork"},
		{ID: "e3", Source: "fork", Target: "a1"},
		{ID: "e4", Source: "fork", Target: "b1"},
		{ID: "e5", Source: "a1", Target: "end_1"},
		{ID: "e6", Source: "b1", Target: "end_1"},
	}
	for _, e := range append(edges, extraEdges...) {
		m, err = m.AddEdge(e)
		require.NoError(t, err)
	}
	return m
}

// --- validate ---

func TestValidateCommand_Clean(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1"))

	code, err := h.run(t, "validate", "--format", "json", path)
	require.NoError(t, err)
	assert.Zero(t, code)

	var report struct {
		Valid   bool `json:"valid"`
		CanSave bool `json:"canSave"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.True(t, report.CanSave)
}

func TestValidateCommand_CycleBlocksSave(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1",
		schema.Edge{ID: "c1", Source: "a1", Target: "b1"},
		schema.Edge{ID: "c2", Source: "b1", Target: "a1"},
	))

	code, err := h.run(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, exitCannotSave, code)
	assert.Contains(t, h.stdout.String(), "workflow.concurrent-node.contains-cycle")
	assert.Contains(t, h.stdout.String(), "can_save=false")
}

func TestValidateCommand_Simulate(t *testing.T) {
	h := newHarness(t)
	m := workflow(t, "wf-1")
	n, _ := m.Node("p1")
	p := n.Clone()
	p.Common().AutomationActions = []schema.AutomationAction{{ID: "act-1", EdgeID: "e2", Type: schema.ActionTypeNoop}}
	m, err := m.UpdateNode(p)
	require.NoError(t, err)
	path := h.write(t, "wf.json", m)

	code, err := h.run(t, "--concurrency", "1", "validate", "--simulate", "--format", "json", path)
	require.NoError(t, err)
	assert.Zero(t, code)

	var report struct {
		Simulation struct {
			Succeeded int `json:"succeeded"`
		} `json:"simulation"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &report))
	assert.Equal(t, 1, report.Simulation.Succeeded)
}

func TestValidateCommand_MissingFile(t *testing.T) {
	h := newHarness(t)
	code, err := h.run(t, "validate")
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

// --- analyze / reference ---

func TestAnalyzeCommand(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1"))

	_, err := h.run(t, "analyze", "--node", "fork", path)
	require.NoError(t, err)

	var out struct {
		EndNodeID string   `json:"endNodeId"`
		Contained []string `json:"containedNodeIds"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &out))
	assert.Equal(t, "end_1", out.EndNodeID)
	assert.Equal(t, []string{"a1", "b1"}, out.Contained)
}

func TestReferenceCommand(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1"))
	outPath := filepath.Join(h.dir, "out.json")

	_, err := h.run(t, "reference", "--node", "p1", "--out", outPath, path)
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	m, err := model.Decode(data)
	require.NoError(t, err)
	ref, ok := m.Node("process_ref_1")
	require.True(t, ok)
	assert.Equal(t, "Review (Reference)", ref.Common().Name)

	code, err := h.run(t, "reference", "--node", "end_1", path)
	require.Error(t, err)
	assert.Equal(t, 1, code)
	assert.Contains(t, h.stderr.String(), "skipped end_1")
}

// --- diagram ---

func TestDiagramCommand_Mermaid(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1",
		schema.Edge{ID: "c1", Source: "a1", Target: "b1"},
		schema.Edge{ID: "c2", Source: "b1", Target: "a1"},
	))

	_, err := h.run(t, "diagram", "--issues", path)
	require.NoError(t, err)
	out := h.stdout.String()
	assert.True(t, strings.HasPrefix(out, "graph TD"))
	assert.Contains(t, out, "p1 --> fork")
	assert.Contains(t, out, "class fork error")
}

func TestDiagramCommand_SVGToFile(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1"))
	outPath := filepath.Join(h.dir, "wf.svg")

	_, err := h.run(t, "diagram", "--format", "svg", "--out", outPath, path)
	require.NoError(t, err)
	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<svg")
	assert.Empty(t, h.stdout.String())
}

func TestDiagramCommand_UnknownFormat(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1"))

	code, err := h.run(t, "diagram", "--format", "gif", path)
	require.Error(t, err)
	assert.Equal(t, 1, code)
}

// --- save / models / history ---

func TestSaveModelsHistory(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1"))

	_, err := h.run(t, "save", path)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", strings.TrimSpace(h.stdout.String()))

	_, err = h.run(t, "validate", "--record", path)
	require.NoError(t, err)

	_, err = h.run(t, "models", "list", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, h.stdout.String(), `"id": "wf-1"`)

	_, err = h.run(t, "history", "wf-1")
	require.NoError(t, err)
	var runs []struct {
		Sequence int64 `json:"sequence"`
	}
	require.NoError(t, json.Unmarshal(h.stdout.Bytes(), &runs))
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].Sequence)

	_, err = h.run(t, "models", "delete", "wf-1")
	require.NoError(t, err)
	_, err = h.run(t, "models", "get", "wf-1")
	assert.Equal(t, schema.ErrCodeNotFound, schema.ErrorCode(err))
}

func TestSaveCommand_AssignsID(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, ""))

	_, err := h.run(t, "save", path)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(h.stdout.String()))
}

func TestSaveCommand_Blocked(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "wf.json", workflow(t, "wf-1",
		schema.Edge{ID: "c1", Source: "a1", Target: "b1"},
		schema.Edge{ID: "c2", Source: "b1", Target: "a1"},
	))

	code, err := h.run(t, "save", path)
	require.Error(t, err)
	assert.Equal(t, exitCannotSave, code)
	assert.Contains(t, h.stderr.String(), "contains-cycle")
	assert.Contains(t, err.Error(), "concurrent region contains a cycle")
}

func TestValidateAndSave_AgreeOnBlockedDocuments(t *testing.T) {
	h := newHarness(t)
	missingExpected := filepath.Join(h.dir, "missing.json")
	require.NoError(t, os.WriteFile(missingExpected, []byte(`{
		"id": "wf-2",
		"nodes": [
			{"id": "begin_1", "type": "begin", "name": "Start"},
			{"id": "fork", "type": "concurrent", "name": "Fork", "parallelBranches": ["a", "b"]},
			{"id": "a", "type": "process", "name": "A"},
			{"id": "b", "type": "process", "name": "B"},
			{"id": "end_1", "type": "end", "name": "Done"}
		],
		"edges": [
			{"id": "e1", "source": "begin_1", "target": "fork"},
			{"id": "e2", "source": "fork", "target": "a"},
			{"id": "e3", "source": "a", "target": "b"},
			{"id": "e4", "source": "b", "target": "a"},
			{"id": "e5", "source": "fork", "target": "end_1"}
		]
	}`), 0o644))
	garbage := filepath.Join(h.dir, "garbage.json")
	require.NoError(t, os.WriteFile(garbage, []byte(`not json`), 0o644))

	for _, path := range []string{missingExpected, garbage} {
		code, err := h.run(t, "validate", path)
		require.Error(t, err, path)
		assert.Equal(t, exitCannotSave, code, path)

		code, err = h.run(t, "save", path)
		require.Error(t, err, path)
		assert.Equal(t, exitCannotSave, code, path)
	}

	code, _ := h.run(t, "validate", missingExpected)
	assert.Equal(t, exitCannotSave, code)
	assert.Contains(t, h.stdout.String(), "workflow.end.missing-expected-value")
	assert.Contains(t, h.stdout.String(), "workflow.concurrent-node.contains-cycle")
}

// --- version / config ---

func TestVersionCommand(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version, strings.TrimSpace(h.stdout.String()))
}

func TestBefore_RejectsInvalidConfig(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "--locale", "fr", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Locale")
}
