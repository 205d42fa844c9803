package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/flowgraph/internal/concurrent"
	"github.com/rendis/flowgraph/internal/diagram"
	"github.com/rendis/flowgraph/internal/logging"
	"github.com/rendis/flowgraph/internal/model"
	"github.com/rendis/flowgraph/internal/reference"
	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
	"github.com/rendis/flowgraph/pkg/schema"
)

var errNoStore = errors.New("no model store configured")

// handleValidate validates a document or a stored model.
func (s *FlowServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var (
		result  *schema.WorkflowValidationResult
		modelID string
	)

	if raw, ok, err := documentArg(req); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid document: %v", err)), nil
	} else if ok {
		var m *model.WorkflowModel
		result, m = s.validator.ValidateDocument(raw)
		if m != nil {
			modelID = m.Metadata().ID
		}
	} else {
		m, err := s.storedModel(ctx, req)
		if err != nil {
			return toolError("load model", err), nil
		}
		modelID = m.Metadata().ID
		result = s.validator.Validate(m)
	}

	canSave := validation.CanSave(result)
	out := map[string]any{
		"valid":    result.Valid(),
		"canSave":  canSave,
		"blocking": validation.BlockingIssues(result),
		"result":   result,
	}

	if req.GetBool("record", false) {
		run, err := s.record(ctx, modelID, result, canSave)
		if err != nil {
			return toolError("record validation", err), nil
		}
		out["run"] = run
	}

	s.logger.InfoContext(logging.WithModelID(ctx, modelID), "model validated",
		slog.Int("errors", len(result.Errors)),
		slog.Int("warnings", len(result.Warnings)),
		slog.Bool("can_save", canSave),
	)
	return marshalResult(out)
}

// handleAnalyzeConcurrent loads the region of one concurrent node.
func (s *FlowServer) handleAnalyzeConcurrent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	nodeID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	m, err := s.loadModel(ctx, req)
	if err != nil {
		return toolError("load model", err), nil
	}

	mgr, err := concurrent.FromModel(m, nodeID, concurrent.WithLogger(s.logger))
	if err != nil {
		return toolError("analyze concurrent node", err), nil
	}
	order, ordered := mgr.TopologicalOrder()

	return marshalResult(map[string]any{
		"nodeId":           nodeID,
		"startNodeId":      mgr.StartNodeID(),
		"endNodeId":        mgr.EndNodeID(),
		"containedNodeIds": mgr.ContainedNodeIDs(),
		"branches":         mgr.Branches(),
		"validation":       mgr.Validate(),
		"structure":        mgr.AnalyzeStructure(),
		"topologicalOrder": order,
		"ordered":          ordered,
		"cyclePath":        mgr.CyclePath(),
	})
}

// handleCreateReferences creates one reference per source id.
func (s *FlowServer) handleCreateReferences(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourceIDs, err := req.RequireStringSlice("node_ids")
	if err != nil || len(sourceIDs) == 0 {
		return mcp.NewToolResultError("node_ids is required"), nil
	}
	m, err := s.loadModel(ctx, req)
	if err != nil {
		return toolError("load model", err), nil
	}

	mgr := reference.NewManager(m, reference.WithLogger(s.logger))
	batch := mgr.CreateBatchReferences(sourceIDs)

	return s.referenceResult(ctx, req, mgr.Model(), map[string]any{
		"result":     batch,
		"statistics": mgr.Statistics(),
	}, len(batch.ReferenceNodes) > 0)
}

// handleEditReference edits, syncs or deletes one reference node.
func (s *FlowServer) handleEditReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	refID, err := req.RequireString("node_id")
	if err != nil {
		return mcp.NewToolResultError("node_id is required"), nil
	}
	m, err := s.loadModel(ctx, req)
	if err != nil {
		return toolError("load model", err), nil
	}
	mgr := reference.NewManager(m, reference.WithLogger(s.logger))

	var res schema.ReferenceEditResult
	switch action := req.GetString("action", "edit"); action {
	case "edit":
		property, perr := req.RequireString("property")
		if perr != nil {
			return mcp.NewToolResultError("property is required for edit"), nil
		}
		res = reference.EditResult(mgr.EditReferenceNode(refID, property, req.GetArguments()["value"]))
	case "sync":
		res = reference.EditResult(mgr.SyncReferenceWithSource(refID))
	case "delete":
		if derr := mgr.DeleteReference(refID); derr != nil {
			res = schema.ReferenceEditResult{Error: derr.Error()}
		} else {
			res = schema.ReferenceEditResult{Success: true}
		}
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}

	return s.referenceResult(ctx, req, mgr.Model(), map[string]any{"result": res}, res.Success)
}

// handleDiagram renders a model as text.
func (s *FlowServer) handleDiagram(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	m, err := s.loadModel(ctx, req)
	if err != nil {
		return toolError("load model", err), nil
	}
	var result *schema.WorkflowValidationResult
	if req.GetBool("issues", false) {
		result = s.validator.Validate(m)
	}
	d := diagram.Build(m, result)

	switch format := req.GetString("format", "mermaid"); format {
	case "mermaid":
		return mcp.NewToolResultText(diagram.RenderMermaid(d)), nil
	case "ascii":
		return mcp.NewToolResultText(diagram.RenderASCII(d)), nil
	case "svg", "dot":
		out, err := diagram.RenderImage(ctx, d, diagram.ImageFormat(format))
		if err != nil {
			return toolError("render diagram", err), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unsupported format: %s", format)), nil
	}
}

// handleModels serves the stored model catalogue.
func (s *FlowServer) handleModels(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action, err := req.RequireString("action")
	if err != nil {
		return mcp.NewToolResultError("action is required"), nil
	}
	if s.store == nil {
		return toolError(action, errNoStore), nil
	}

	if action == "list" {
		list, err := s.store.ListModels(ctx, store.ModelFilter{
			NameContains: req.GetString("name", ""),
			Limit:        req.GetInt("limit", 50),
			Offset:       req.GetInt("offset", 0),
		})
		if err != nil {
			return toolError("list models", err), nil
		}
		if list == nil {
			list = []*store.ModelSummary{}
		}
		return marshalResult(map[string]any{"models": list})
	}

	modelID, err := req.RequireString("model_id")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("model_id is required for %s", action)), nil
	}

	switch action {
	case "get":
		m, err := s.store.GetModel(ctx, modelID)
		if err != nil {
			return toolError("get model", err), nil
		}
		doc, err := model.Encode(m)
		if err != nil {
			return toolError("encode model", err), nil
		}
		return marshalResult(map[string]any{"document": json.RawMessage(doc)})
	case "delete":
		if err := s.store.DeleteModel(ctx, modelID); err != nil {
			return toolError("delete model", err), nil
		}
		s.logger.InfoContext(logging.WithModelID(ctx, modelID), "model deleted")
		return marshalResult(map[string]any{"ok": true, "model_id": modelID})
	case "history":
		runs, err := s.store.ListValidations(ctx, modelID, req.GetInt("limit", 0))
		if err != nil {
			return toolError("list validations", err), nil
		}
		if runs == nil {
			runs = []*store.ValidationRun{}
		}
		return marshalResult(map[string]any{"runs": runs})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action: %s", action)), nil
	}
}

// --- Internal helpers ---

// documentArg returns the "document" argument re-encoded as JSON.
func documentArg(req mcp.CallToolRequest) ([]byte, bool, error) {
	doc := mcp.ParseStringMap(req, "document", nil)
	if doc == nil {
		return nil, false, nil
	}
	raw, err := json.Marshal(doc)
	return raw, true, err
}

// loadModel resolves the model a call works on: document wins over model_id.
func (s *FlowServer) loadModel(ctx context.Context, req mcp.CallToolRequest) (*model.WorkflowModel, error) {
	raw, ok, err := documentArg(req)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "invalid document").WithCause(err)
	}
	if ok {
		return model.Decode(raw)
	}
	return s.storedModel(ctx, req)
}

func (s *FlowServer) storedModel(ctx context.Context, req mcp.CallToolRequest) (*model.WorkflowModel, error) {
	modelID := req.GetString("model_id", "")
	if modelID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "either document or model_id is required")
	}
	if s.store == nil {
		return nil, errNoStore
	}
	return s.store.GetModel(ctx, modelID)
}

func (s *FlowServer) record(ctx context.Context, modelID string, result *schema.WorkflowValidationResult, canSave bool) (*store.ValidationRun, error) {
	if s.store == nil {
		return nil, errNoStore
	}
	if modelID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "model has no id to record against")
	}
	run, err := store.NewValidationRun(modelID, result, canSave)
	if err != nil {
		return nil, err
	}
	if err := s.store.AppendValidation(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// referenceResult adds the updated document to out and saves it when asked
// and something changed.
func (s *FlowServer) referenceResult(ctx context.Context, req mcp.CallToolRequest, m *model.WorkflowModel, out map[string]any, changed bool) (*mcp.CallToolResult, error) {
	doc, err := model.Encode(m)
	if err != nil {
		return toolError("encode model", err), nil
	}
	out["document"] = json.RawMessage(doc)

	if changed && req.GetBool("save", false) {
		if s.store == nil {
			return toolError("save model", errNoStore), nil
		}
		if err := s.store.SaveModel(ctx, m); err != nil {
			return toolError("save model", err), nil
		}
		out["saved"] = true
		s.logger.InfoContext(logging.WithModelID(ctx, m.Metadata().ID), "model saved")
	}
	return marshalResult(out)
}

func toolError(op string, err error) *mcp.CallToolResult {
	if code := schema.ErrorCode(err); code != "" {
		return mcp.NewToolResultError(fmt.Sprintf("%s failed [%s]: %v", op, code, err))
	}
	return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", op, err))
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
