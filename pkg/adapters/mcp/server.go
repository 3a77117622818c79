// Package mcp lets agents edit a widget's chart through the Model Context Protocol.
// Tools go through the same edit path as the pill editor, so every change lands
// in the undo history and syncs to the host.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/bifrost/internal/logging"
	"github.com/aretw0/bifrost/pkg/domain"
	"github.com/aretw0/bifrost/pkg/loop"
	"github.com/aretw0/bifrost/pkg/widget"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// SpecURI is the resource holding the current graph spec.
const SpecURI = "bifrost://graph_spec"

// SpecResponse is the result of every tool.
type SpecResponse struct {
	Spec        domain.GraphSpec `json:"spec" jsonschema_description:"The current graph spec"`
	Description string           `json:"description" jsonschema_description:"Readable summary of the spec"`
	Changed     bool             `json:"changed" jsonschema_description:"Whether the call changed the spec"`
	CanUndo     bool             `json:"can_undo" jsonschema_description:"Whether an earlier spec exists"`
	Renderable  bool             `json:"renderable" jsonschema_description:"Whether the spec has a mark and its required channels"`
}

type markArgs struct {
	Mark string `json:"mark"`
}

type encodingArgs struct {
	Channel string `json:"channel"`
	Field   string `json:"field"`
	Type    string `json:"type"`
}

type channelArgs struct {
	Channel string `json:"channel"`
}

type aggregationArgs struct {
	Channel   string `json:"channel"`
	Aggregate string `json:"aggregate"`
}

type scaleArgs struct {
	Channel string `json:"channel"`
	Scale   string `json:"scale"`
}

// Server exposes one widget as an MCP server. Widget access is marshalled
// onto the widget's loop.
type Server struct {
	widget    *widget.Widget
	loop      *loop.Loop
	version   string
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// Option configures the Server.
type Option func(*Server)

// WithVersion sets the version announced to MCP clients.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server for w, whose loop is l.
func NewServer(w *widget.Widget, l *loop.Loop, opts ...Option) *Server {
	s := &Server{
		widget:  w,
		loop:    l,
		version: "dev",
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcpServer = server.NewMCPServer("bifrost-mcp", strings.TrimSpace(s.version))
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", sseServer.SSEHandler())
	mux.Handle("/message", sseServer.MessageHandler())

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

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

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("get_spec",
		mcp.WithDescription("Get the current graph spec of the widget."),
		mcp.WithOutputSchema[SpecResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetSpec))

	s.mcpServer.AddTool(mcp.NewTool("set_mark",
		mcp.WithDescription("Change the mark. Encodings the new mark does not allow are dropped."),
		mcp.WithString("mark", mcp.Required(), mcp.Description("One of: "+joinMarks())),
		mcp.WithOutputSchema[SpecResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetMark))

	s.mcpServer.AddTool(mcp.NewTool("set_encoding",
		mcp.WithDescription("Bind a column to an encoding channel."),
		mcp.WithString("channel", mcp.Required(), mcp.Description("Channel name, e.g. x, y, color, theta")),
		mcp.WithString("field", mcp.Required(), mcp.Description("Column name")),
		mcp.WithString("type", mcp.Required(), mcp.Description("quantitative, temporal, ordinal or nominal")),
		mcp.WithOutputSchema[SpecResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetEncoding))

	s.mcpServer.AddTool(mcp.NewTool("remove_encoding",
		mcp.WithDescription("Unbind an encoding channel."),
		mcp.WithString("channel", mcp.Required(), mcp.Description("Channel name")),
		mcp.WithOutputSchema[SpecResponse](),
	), mcp.NewStructuredToolHandler(s.handleRemoveEncoding))

	s.mcpServer.AddTool(mcp.NewTool("set_aggregation",
		mcp.WithDescription("Set or clear (empty) the aggregation of a bound channel."),
		mcp.WithString("channel", mcp.Required(), mcp.Description("Channel name")),
		mcp.WithString("aggregate", mcp.Description("mean, sum, median, min, max, count or distinct")),
		mcp.WithOutputSchema[SpecResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetAggregation))

	s.mcpServer.AddTool(mcp.NewTool("set_scale",
		mcp.WithDescription("Set or clear (empty) the scale type of a bound channel."),
		mcp.WithString("channel", mcp.Required(), mcp.Description("Channel name")),
		mcp.WithString("scale", mcp.Description("Scale type, e.g. linear, log")),
		mcp.WithOutputSchema[SpecResponse](),
	), mcp.NewStructuredToolHandler(s.handleSetScale))

	s.mcpServer.AddTool(mcp.NewTool("undo",
		mcp.WithDescription("Revert the last spec edit."),
		mcp.WithOutputSchema[SpecResponse](),
	), mcp.NewStructuredToolHandler(s.handleUndo))
}

func joinMarks() string {
	marks := domain.Marks()
	names := make([]string, len(marks))
	for i, m := range marks {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

// edit applies fn on the widget loop and reports the resulting spec.
func (s *Server) edit(ctx context.Context, name string, fn func(domain.GraphSpec) domain.GraphSpec) (SpecResponse, error) {
	var resp SpecResponse
	err := s.loop.Do(ctx, func() {
		changed := s.widget.Apply(fn)
		resp = s.describe()
		resp.Changed = changed
	})
	if err != nil {
		return SpecResponse{}, fmt.Errorf("%s: %w", name, err)
	}
	s.logger.Debug("MCP edit", "tool", name, "changed", resp.Changed)
	return resp, nil
}

// describe must run on the widget loop.
func (s *Server) describe() SpecResponse {
	spec := s.widget.CurrentSpec()
	return SpecResponse{
		Spec:        spec,
		Description: spec.Describe(),
		CanUndo:     s.widget.CanUndo(),
		Renderable:  domain.IsRenderable(spec),
	}
}

func (s *Server) handleGetSpec(ctx context.Context, request mcp.CallToolRequest, _ map[string]any) (SpecResponse, error) {
	var resp SpecResponse
	if err := s.loop.Do(ctx, func() { resp = s.describe() }); err != nil {
		return SpecResponse{}, fmt.Errorf("get_spec: %w", err)
	}
	return resp, nil
}

func (s *Server) handleSetMark(ctx context.Context, request mcp.CallToolRequest, args markArgs) (SpecResponse, error) {
	mark := domain.Mark(strings.TrimSpace(args.Mark))
	if !mark.Known() {
		return SpecResponse{}, fmt.Errorf("unknown mark %q", args.Mark)
	}
	return s.edit(ctx, "set_mark", func(spec domain.GraphSpec) domain.GraphSpec {
		return domain.SetMark(spec, mark)
	})
}

func (s *Server) handleSetEncoding(ctx context.Context, request mcp.CallToolRequest, args encodingArgs) (SpecResponse, error) {
	field := domain.FieldSpec{Field: args.Field, Type: domain.FieldType(args.Type)}
	if field.Field == "" || !field.Type.Valid() {
		return SpecResponse{}, fmt.Errorf("invalid field %q of type %q", args.Field, args.Type)
	}
	return s.edit(ctx, "set_encoding", func(spec domain.GraphSpec) domain.GraphSpec {
		return domain.SetEncoding(spec, args.Channel, field)
	})
}

func (s *Server) handleRemoveEncoding(ctx context.Context, request mcp.CallToolRequest, args channelArgs) (SpecResponse, error) {
	return s.edit(ctx, "remove_encoding", func(spec domain.GraphSpec) domain.GraphSpec {
		return domain.RemoveEncoding(spec, args.Channel)
	})
}

func (s *Server) handleSetAggregation(ctx context.Context, request mcp.CallToolRequest, args aggregationArgs) (SpecResponse, error) {
	return s.edit(ctx, "set_aggregation", func(spec domain.GraphSpec) domain.GraphSpec {
		return domain.SetAggregation(spec, args.Channel, args.Aggregate)
	})
}

func (s *Server) handleSetScale(ctx context.Context, request mcp.CallToolRequest, args scaleArgs) (SpecResponse, error) {
	return s.edit(ctx, "set_scale", func(spec domain.GraphSpec) domain.GraphSpec {
		return domain.SetScale(spec, args.Channel, args.Scale)
	})
}

func (s *Server) handleUndo(ctx context.Context, request mcp.CallToolRequest, _ map[string]any) (SpecResponse, error) {
	var resp SpecResponse
	err := s.loop.Do(ctx, func() {
		changed := s.widget.Undo()
		resp = s.describe()
		resp.Changed = changed
	})
	if err != nil {
		return SpecResponse{}, fmt.Errorf("undo: %w", err)
	}
	return resp, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(SpecURI, "Current Graph Spec",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		var spec domain.GraphSpec
		if err := s.loop.Do(ctx, func() { spec = s.widget.CurrentSpec() }); err != nil {
			return nil, fmt.Errorf("failed to read spec: %w", err)
		}
		jsonBytes, _ := json.Marshal(spec)

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SpecURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
