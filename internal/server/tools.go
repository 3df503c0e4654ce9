package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"refgraph/internal/analyzer"
	"refgraph/internal/graph"
	"refgraph/internal/store"
)

// Arguments structs

type AnalyzeArgs struct {
	SkipStore bool `json:"skip_store,omitempty" jsonschema:"Do not persist this pass even when a store is configured"`
}

type AnalysisReportArgs struct {
	TypeName string `json:"type_name,omitempty" jsonschema:"Only report relationships found in this behavior type"`
	Pass     string `json:"pass,omitempty" jsonschema:"Pass id; defaults to the current pass"`
}

type GetNodeArgs struct {
	ID       *int64 `json:"id,omitempty" jsonschema:"Node id"`
	TypeName string `json:"type_name,omitempty" jsonschema:"Return every node of this type instead of one node by id"`
	Pass     string `json:"pass,omitempty" jsonschema:"Pass id; defaults to the current pass"`
}

type FindReferencesArgs struct {
	TypeName string `json:"type_name" jsonschema:"Full or simple type name whose incoming edges to list"`
	Pass     string `json:"pass,omitempty" jsonschema:"Pass id; defaults to the current pass"`
}

type ListEdgesArgs struct {
	Kind string `json:"kind,omitempty" jsonschema:"Edge kind such as event_subscription; empty lists all edges"`
	Pass string `json:"pass,omitempty" jsonschema:"Pass id; defaults to the current pass"`
}

type ListPassesArgs struct{}

// AnalyzeSummary is the analyze tool result.
type AnalyzeSummary struct {
	Pass        string         `json:"pass"`
	Nodes       int            `json:"nodes"`
	Edges       map[string]int `json:"edges"`
	Unresolved  int            `json:"unresolved"`
	Skipped     int            `json:"skipped_types"`
	Virtual     int            `json:"virtual_nodes"`
	Resolutions map[string]int `json:"resolutions,omitempty"`
	Exhausted   bool           `json:"exhausted,omitempty"`
	Stored      bool           `json:"stored"`
	Duration    float64        `json:"duration_seconds"`
}

// Summarize condenses a pass result.
func Summarize(res *analyzer.Result) AnalyzeSummary {
	sum := AnalyzeSummary{
		Pass:        res.Pass,
		Nodes:       len(res.Nodes),
		Edges:       make(map[string]int),
		Unresolved:  res.Augment.Unresolved,
		Skipped:     len(res.Report.Skipped),
		Virtual:     res.Augment.VirtualNodes,
		Resolutions: res.Resolutions,
		Exhausted:   res.Exhausted,
		Duration:    res.Duration.Seconds(),
	}
	for _, e := range res.Edges {
		sum.Edges[e.Kind.String()]++
	}
	return sum
}

// PassFromResult converts a result into its stored form.
func PassFromResult(res *analyzer.Result) *store.Pass {
	return &store.Pass{
		ID:        res.Pass,
		CreatedAt: time.Now(),
		Exhausted: res.Exhausted,
		Nodes:     res.Nodes,
		Edges:     res.Edges,
		Report:    res.Report,
	}
}

func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("Failed to encode result: %v", err))
	}
	return textResult(string(data))
}

func (s *Server) viewOrError(ctx context.Context, pass string) (passView, *mcp.CallToolResult) {
	v, err := s.view(ctx, pass)
	if err != nil {
		if errors.Is(err, ErrNoPass) {
			return nil, errorResult("No analysis pass yet, run analyze first")
		}
		return nil, errorResult(err.Error())
	}
	return v, nil
}

// save persists res and prunes passes beyond the retention limit. Failures
// are logged; the pass is still served from memory.
func (s *Server) save(ctx context.Context, res *analyzer.Result) bool {
	if err := s.store.SavePass(ctx, PassFromResult(res)); err != nil {
		s.logger.Warn("failed to store pass", slog.String("pass", res.Pass), slog.Any("error", err))
		return false
	}
	if s.keep > 0 {
		n, err := s.store.Prune(ctx, s.keep)
		if err != nil {
			s.logger.Warn("failed to prune passes", slog.Any("error", err))
		} else if n > 0 {
			s.logger.Debug("pruned passes", slog.Int("removed", n))
		}
	}
	return true
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analyze",
		Description: "Runs an analysis pass over the scene hierarchy and its behavior sources",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args AnalyzeArgs) (*mcp.CallToolResult, any, error) {
		host, roots, err := s.load(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("Failed to load scene: %v", err)), nil, nil
		}
		res, err := s.analyzer.Analyze(ctx, host, roots)
		if err != nil {
			return errorResult(fmt.Sprintf("Analysis failed: %v", err)), nil, nil
		}

		sum := Summarize(res)
		if s.store != nil && !args.SkipStore {
			sum.Stored = s.save(ctx, res)
		}
		return jsonResult(sum), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "analysis_report",
		Description: "Returns the per-type report of relationships found in behavior sources, with file and line",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args AnalysisReportArgs) (*mcp.CallToolResult, any, error) {
		v, errRes := s.viewOrError(ctx, args.Pass)
		if errRes != nil {
			return errRes, nil, nil
		}
		rep, err := v.report(ctx, args.TypeName)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(rep.Records) == 0 && len(rep.Skipped) == 0 {
			return textResult("No relationships found."), nil, nil
		}
		return textResult(rep.String()), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_node",
		Description: "Returns a node with its incoming and outgoing edges, or every node of a type",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetNodeArgs) (*mcp.CallToolResult, any, error) {
		v, errRes := s.viewOrError(ctx, args.Pass)
		if errRes != nil {
			return errRes, nil, nil
		}
		if args.TypeName != "" {
			nodes, err := v.nodesByType(ctx, args.TypeName)
			if err != nil {
				return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
			}
			if len(nodes) == 0 {
				return textResult("No nodes of that type."), nil, nil
			}
			return jsonResult(nodes), nil, nil
		}
		if args.ID == nil {
			return errorResult("Either id or type_name is required"), nil, nil
		}

		n, err := v.node(ctx, graph.ID(*args.ID))
		if errors.Is(err, store.ErrNotFound) {
			return textResult("Node not found."), nil, nil
		}
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		edges, err := v.edges(ctx, nil)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}

		type NodeInfo struct {
			*graph.Node
			Outgoing []graph.Edge `json:"outgoing"`
			Incoming []graph.Edge `json:"incoming"`
		}
		info := NodeInfo{Node: n, Outgoing: []graph.Edge{}, Incoming: []graph.Edge{}}
		for _, e := range edges {
			if e.From == n.ID {
				info.Outgoing = append(info.Outgoing, e)
			}
			if e.To == n.ID {
				info.Incoming = append(info.Incoming, e)
			}
		}
		return jsonResult(info), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_references",
		Description: "Lists every edge pointing at nodes of a type, live or virtual",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindReferencesArgs) (*mcp.CallToolResult, any, error) {
		if args.TypeName == "" {
			return errorResult("type_name is required"), nil, nil
		}
		v, errRes := s.viewOrError(ctx, args.Pass)
		if errRes != nil {
			return errRes, nil, nil
		}
		refs, err := v.references(ctx, args.TypeName)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(refs) == 0 {
			return textResult("No references found."), nil, nil
		}

		type RefInfo struct {
			From       string `json:"from"`
			To         string `json:"to"`
			Kind       string `json:"kind"`
			Annotation string `json:"annotation,omitempty"`
		}
		out := make([]RefInfo, 0, len(refs))
		for _, r := range refs {
			info := RefInfo{Kind: r.Edge.Kind.String(), Annotation: r.Edge.Annotation}
			if r.From != nil {
				info.From = fmt.Sprintf("%s#%d", r.From.Label, r.From.ID)
			}
			info.To = fmt.Sprintf("%s#%d", r.To.Label, r.To.ID)
			out = append(out, info)
		}
		return jsonResult(out), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_edges",
		Description: "Lists the edges of a pass, optionally of one kind",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListEdgesArgs) (*mcp.CallToolResult, any, error) {
		var kind *graph.EdgeKind
		if args.Kind != "" {
			k, ok := graph.ParseEdgeKind(args.Kind)
			if !ok {
				return errorResult(fmt.Sprintf("Unknown edge kind %q", args.Kind)), nil, nil
			}
			kind = &k
		}
		v, errRes := s.viewOrError(ctx, args.Pass)
		if errRes != nil {
			return errRes, nil, nil
		}
		edges, err := v.edges(ctx, kind)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		edges = append([]graph.Edge(nil), edges...)
		sort.SliceStable(edges, func(i, j int) bool { return edges[i].Depth < edges[j].Depth })
		return jsonResult(edges), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_passes",
		Description: "Lists stored analysis passes, newest first",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args ListPassesArgs) (*mcp.CallToolResult, any, error) {
		if s.store == nil {
			return errorResult("No store is configured"), nil, nil
		}
		passes, err := s.store.Passes(ctx)
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(passes) == 0 {
			return textResult("No stored passes."), nil, nil
		}
		return jsonResult(passes), nil, nil
	})
}
