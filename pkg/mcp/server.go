package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rendis/flowgraph/internal/store"
	"github.com/rendis/flowgraph/internal/validation"
)

// FlowServerDeps holds the dependencies for creating a FlowServer.
// Store is optional; without it flow.models fails and model_id arguments are
// rejected.
type FlowServerDeps struct {
	Validator *validation.WorkflowValidator
	Store     store.Store
	Logger    *slog.Logger
	Version   string
}

// FlowServer wraps an MCP server with flowgraph tool handlers.
type FlowServer struct {
	validator *validation.WorkflowValidator
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewFlowServer creates a FlowServer with all 6 tools registered.
func NewFlowServer(deps FlowServerDeps) (*FlowServer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	v := deps.Validator
	if v == nil {
		var err error
		if v, err = validation.NewWorkflowValidator(validation.WithLogger(logger)); err != nil {
			return nil, err
		}
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}

	s := &FlowServer{
		validator: v,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"flowgraph",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Flowgraph validates and analyzes workflow graph documents. Use flow.validate to check a document or stored model, flow.analyze_concurrent to inspect a concurrent region, flow.create_references and flow.edit_reference to manage reference nodes, flow.diagram to render a model, and flow.models to list, fetch or delete stored models and their validation history."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s, nil
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *FlowServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *FlowServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *FlowServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: validateTool(), Handler: s.handleValidate},
		{Tool: analyzeConcurrentTool(), Handler: s.handleAnalyzeConcurrent},
		{Tool: createReferencesTool(), Handler: s.handleCreateReferences},
		{Tool: editReferenceTool(), Handler: s.handleEditReference},
		{Tool: diagramTool(), Handler: s.handleDiagram},
		{Tool: modelsTool(), Handler: s.handleModels},
	}
}

// --- Tool definitions ---

func withSource() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithObject("document", mcp.Description("Workflow model document (id, nodes, edges, swimlanes)")),
		mcp.WithString("model_id", mcp.Description("ID of a stored model, used when document is absent")),
	}
}

func validateTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Validate a workflow model and report errors, warnings and whether it can be saved"),
		mcp.WithBoolean("record", mcp.Description("Append the result to the model's validation history (stored models only)")),
	}, withSource()...)
	return mcp.NewTool("flow.validate", opts...)
}

func analyzeConcurrentTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Analyze the region of a concurrent node: branches, structure, ordering and cycles"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the concurrent node")),
	}, withSource()...)
	return mcp.NewTool("flow.analyze_concurrent", opts...)
}

func createReferencesTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Create reference nodes mirroring the given source nodes"),
		mcp.WithArray("node_ids", mcp.Required(), mcp.WithStringItems(), mcp.Description("Source node IDs")),
		mcp.WithBoolean("save", mcp.Description("Persist the updated model (requires a model id)")),
	}, withSource()...)
	return mcp.NewTool("flow.create_references", opts...)
}

func editReferenceTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Edit, resynchronize or delete a reference node"),
		mcp.WithString("node_id", mcp.Required(), mcp.Description("ID of the reference node")),
		mcp.WithString("action",
			mcp.Enum("edit", "sync", "delete"),
			mcp.Description("Operation to perform (default: edit)"),
		),
		mcp.WithString("property", mcp.Description("Property to edit: name or stepDisplay")),
		mcp.WithAny("value", mcp.Description("New property value")),
		mcp.WithBoolean("save", mcp.Description("Persist the updated model (requires a model id)")),
	}, withSource()...)
	return mcp.NewTool("flow.edit_reference", opts...)
}

func diagramTool() mcp.Tool {
	opts := append([]mcp.ToolOption{
		mcp.WithDescription("Render a workflow model as a Mermaid, ASCII, SVG or DOT diagram"),
		mcp.WithString("format",
			mcp.Enum("mermaid", "ascii", "svg", "dot"),
			mcp.Description("Output format (default: mermaid)"),
		),
		mcp.WithBoolean("issues", mcp.Description("Highlight nodes with validation issues")),
	}, withSource()...)
	return mcp.NewTool("flow.diagram", opts...)
}

func modelsTool() mcp.Tool {
	return mcp.NewTool("flow.models",
		mcp.WithDescription("List, get or delete stored models, or read a model's validation history"),
		mcp.WithString("action", mcp.Required(),
			mcp.Enum("list", "get", "delete", "history"),
			mcp.Description("Operation to perform"),
		),
		mcp.WithString("model_id", mcp.Description("Model ID (get, delete, history)")),
		mcp.WithString("name", mcp.Description("Substring filter on model name (list)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (list, history)")),
		mcp.WithNumber("offset", mcp.Description("Entries to skip (list)")),
	)
}
