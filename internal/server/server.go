// Package server exposes analysis passes as MCP tools.
package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"refgraph/internal/analyzer"
	"refgraph/internal/scene"
	"refgraph/internal/store"
)

// ErrNoPass is returned by read tools before any pass has completed.
var ErrNoPass = errors.New("no analysis pass yet, run analyze first")

// SceneLoader returns the host and the roots to analyze. It is called once
// per analyze request so a re-exported hierarchy is picked up.
type SceneLoader func(ctx context.Context) (scene.Host, []*scene.Entity, error)

const defaultSystemPrompt = `# refgraph

refgraph builds a reference graph of a scene hierarchy: entities, their
behaviors, the assets they reference, and relationships inferred from the
behaviors' C# source (dynamic component acquisition, event subscription and
event invocation).

1. Call analyze once to run a pass. Later calls replace the current pass.
2. Use analysis_report for the per-type list of relationships with file:line.
3. Use find_references to see what points at a type, get_node to inspect a
   node and its edges, and list_edges to filter by kind.
4. Pass a pass id to read an older pass from the store, when one is
   configured; list_passes shows them.

Virtual nodes stand for types seen only in source, with no live instance.
Unresolved references are listed in the report but never appear as edges.
`

// Server is the MCP front end of an Analyzer.
type Server struct {
	mcpServer    *mcp.Server
	analyzer     *analyzer.Analyzer
	load         SceneLoader
	store        *store.Store
	keep         int
	logger       *slog.Logger
	systemPrompt string
}

// Option configures a Server.
type Option func(*Server)

// WithStore persists every pass in st and lets read tools address stored
// passes by id.
func WithStore(st *store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithRetention keeps only the newest keep stored passes after each save.
// Zero keeps every pass.
func WithRetention(keep int) Option {
	return func(s *Server) { s.keep = keep }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a server with all tools and resources registered.
func New(a *analyzer.Analyzer, load SceneLoader, version string, opts ...Option) *Server {
	s := &Server{
		analyzer:     a,
		load:         load,
		systemPrompt: defaultSystemPrompt,
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.mcpServer = mcp.NewServer(&mcp.Implementation{Name: "refgraph", Version: version}, nil)
	s.registerTools()
	s.registerResources()
	return s
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server { return s.mcpServer }

// Run serves over transport until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	return s.mcpServer.Run(ctx, transport)
}

func textResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	res := textResult(msg)
	res.IsError = true
	return res
}
