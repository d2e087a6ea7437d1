// Package mcp exposes the host services as Model Context Protocol tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/schema"
)

const mermaidURIPrefix = "arbor://workflows/"

// Handler answers one request envelope; host.Server satisfies it.
type Handler interface {
	Handle(ctx context.Context, msg domain.Message) *domain.Message
}

// RefineResponse is the structured output of refine_workflow.
type RefineResponse struct {
	Workflow  domain.Workflow `json:"workflow" jsonschema_description:"The refined workflow"`
	AIMessage string          `json:"aiMessage,omitempty" jsonschema_description:"The assistant reply"`
	Iteration int             `json:"iteration" jsonschema_description:"Refinement turns recorded so far"`
}

// ValidateResponse is the structured output of validate_workflow.
type ValidateResponse struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Server wraps a host Handler and exposes it as an MCP server.
type Server struct {
	host      Handler
	library   ports.WorkflowLibrary
	schema    *schema.Document
	version   string
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithLibrary enables the per-workflow Mermaid resource.
func WithLibrary(lib ports.WorkflowLibrary) Option {
	return func(s *Server) { s.library = lib }
}

// WithSchema sets the document used by validate_workflow.
func WithSchema(doc *schema.Document) Option {
	return func(s *Server) { s.schema = doc }
}

func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// NewServer creates a new MCP Server instance.
func NewServer(host Handler, opts ...Option) *Server {
	s := &Server{
		host:    host,
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.schema == nil {
		s.schema = schema.Default()
	}
	s.mcpServer = server.NewMCPServer("arbor-mcp", strings.TrimSpace(s.version))
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(fmt.Sprintf("http://localhost:%d", port)))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{Addr: addr, Handler: mux}
	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	refineTool := mcp.NewTool("refine_workflow",
		mcp.WithDescription("Refine a workflow with a natural language instruction. Conversation history is kept per workflow id."),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("JSON workflow document to refine")),
		mcp.WithString("message", mcp.Required(), mcp.Description("Instruction, 1 to 5000 characters")),
		mcp.WithString("workflow_id", mcp.Description("Conversation key (defaults to the workflow id)")),
		mcp.WithNumber("timeout_ms", mcp.Description("Host-side timeout in milliseconds")),
		mcp.WithOutputSchema[RefineResponse](),
	)
	s.mcpServer.AddTool(refineTool, mcp.NewStructuredToolHandler(s.handleRefine))

	s.mcpServer.AddTool(mcp.NewTool("clear_conversation",
		mcp.WithDescription("Forget the refinement history of a workflow."),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("Conversation key")),
	), s.handleClear)

	validateTool := mcp.NewTool("validate_workflow",
		mcp.WithDescription("Check a workflow document against the graph rules and the node schema."),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("JSON workflow document")),
		mcp.WithOutputSchema[ValidateResponse](),
	)
	s.mcpServer.AddTool(validateTool, mcp.NewStructuredToolHandler(s.handleValidate))

	s.mcpServer.AddTool(mcp.NewTool("render_mermaid",
		mcp.WithDescription("Render a workflow document as a Mermaid flowchart."),
		mcp.WithString("workflow", mcp.Required(), mcp.Description("JSON workflow document")),
	), s.handleMermaid)
}

func decodeWorkflow(args map[string]any) (domain.Workflow, error) {
	var wf domain.Workflow
	raw, _ := args["workflow"].(string)
	if raw == "" {
		return wf, errors.New("workflow is required")
	}
	if err := json.Unmarshal([]byte(raw), &wf); err != nil {
		return wf, fmt.Errorf("invalid workflow JSON: %w", err)
	}
	return wf, nil
}

func (s *Server) handleRefine(ctx context.Context, _ mcp.CallToolRequest, args map[string]any) (RefineResponse, error) {
	wf, err := decodeWorkflow(args)
	if err != nil {
		return RefineResponse{}, err
	}
	message, _ := args["message"].(string)
	workflowID, _ := args["workflow_id"].(string)
	timeoutMs, _ := args["timeout_ms"].(float64)

	req, err := domain.NewMessage(domain.MsgRefineWorkflow, "mcp-"+wf.ID, domain.RefineWorkflowPayload{
		WorkflowID:      workflowID,
		UserMessage:     message,
		CurrentWorkflow: wf,
		TimeoutMs:       int64(timeoutMs),
	})
	if err != nil {
		return RefineResponse{}, err
	}

	reply := s.host.Handle(ctx, req)
	if reply == nil {
		return RefineResponse{}, errors.New("host returned no reply")
	}

	switch reply.Type {
	case domain.MsgRefinementSuccess:
		var p domain.RefinementSuccessPayload
		if err := reply.Decode(&p); err != nil {
			return RefineResponse{}, fmt.Errorf("decode reply: %w", err)
		}
		out := RefineResponse{Workflow: p.RefinedWorkflow}
		if p.AIMessage != nil {
			out.AIMessage = p.AIMessage.Content
		}
		if p.UpdatedConversationHistory != nil {
			out.Iteration = p.UpdatedConversationHistory.CurrentIteration
		}
		return out, nil
	case domain.MsgRefinementFailed:
		var p domain.RefinementFailedPayload
		if err := reply.Decode(&p); err != nil {
			return RefineResponse{}, fmt.Errorf("decode reply: %w", err)
		}
		s.logger.Warn("MCP Refine: refinement failed", "code", p.Error.Code)
		return RefineResponse{}, fmt.Errorf("%s: %s", p.Error.Code, p.Error.Message)
	default:
		return RefineResponse{}, errorFromReply(reply)
	}
}

func (s *Server) handleClear(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowID, err := request.RequireString("workflow_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	req, err := domain.NewMessage(domain.MsgClearConversation, "mcp-clear-"+workflowID, domain.ConversationPayload{WorkflowID: workflowID})
	if err != nil {
		return nil, err
	}
	reply := s.host.Handle(ctx, req)
	if reply == nil || reply.Type != domain.MsgConversationCleared {
		return mcp.NewToolResultError(errorFromReply(reply).Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("conversation %q cleared", workflowID)), nil
}

func errorFromReply(reply *domain.Message) error {
	if reply == nil {
		return errors.New("host returned no reply")
	}
	var p domain.ErrorPayload
	if err := reply.Decode(&p); err != nil || p.Message == "" {
		return fmt.Errorf("unexpected reply %s", reply.Type)
	}
	return errors.New(p.Message)
}

func (s *Server) handleValidate(_ context.Context, _ mcp.CallToolRequest, args map[string]any) (ValidateResponse, error) {
	wf, err := decodeWorkflow(args)
	if err != nil {
		return ValidateResponse{}, err
	}

	var problems []string
	if err := s.schema.ValidateWorkflow(wf); err != nil {
		all := schema.ValidationErrors(err)
		if all == nil {
			all = []error{err}
		}
		for _, e := range all {
			problems = append(problems, e.Error())
		}
	}
	return ValidateResponse{Valid: len(problems) == 0, Errors: problems}, nil
}

func (s *Server) handleMermaid(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, err := decodeWorkflow(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(wf.ToGraph(), nil)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("arbor://schema/node-types", "Node types known to the schema",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		b, err := json.Marshal(s.schema.Types())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{URI: request.Params.URI, MIMEType: "application/json", Text: string(b)},
		}, nil
	})

	if s.library == nil {
		return
	}
	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(mermaidURIPrefix+"{id}/mermaid", "Workflow as Mermaid",
		mcp.WithTemplateMIMEType("text/vnd.mermaid"),
	), s.readMermaid)
}

func (s *Server) readMermaid(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := request.Params.URI
	id := strings.TrimSuffix(strings.TrimPrefix(uri, mermaidURIPrefix), "/mermaid")
	if id == "" || id == uri {
		return nil, fmt.Errorf("invalid workflow resource %q", uri)
	}

	wf, err := s.library.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{URI: uri, MIMEType: "text/vnd.mermaid", Text: graph.GenerateMermaid(wf.ToGraph(), nil)},
	}, nil
}
