package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	guidelinesURI = "refgraph://usage-guidelines"
	schemaPrefix  = "refgraph://schemas/"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         guidelinesURI,
		Name:        "Usage Guidelines",
		Description: "How to run passes and read the reference graph",
		MIMEType:    "text/markdown",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: guidelinesURI, MIMEType: "text/markdown", Text: s.systemPrompt},
			},
		}, nil
	})

	schemaMap := buildSchemaMap()
	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaPrefix + "{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		uri := req.Params.URI
		schemaJSON, ok := schemaMap[strings.TrimPrefix(uri, schemaPrefix)]
		if !ok {
			return nil, fmt.Errorf("unknown tool schema: %q", uri)
		}
		return &mcp.ReadResourceResult{
			Contents: []*mcp.ResourceContents{
				{URI: uri, MIMEType: "application/schema+json", Text: schemaJSON},
			},
		}, nil
	})
}

// buildSchemaMap maps tool names to the JSON schema of their arguments.
func buildSchemaMap() map[string]string {
	m := make(map[string]string)
	addSchema[AnalyzeArgs](m, "analyze")
	addSchema[AnalysisReportArgs](m, "analysis_report")
	addSchema[GetNodeArgs](m, "get_node")
	addSchema[FindReferencesArgs](m, "find_references")
	addSchema[ListEdgesArgs](m, "list_edges")
	addSchema[ListPassesArgs](m, "list_passes")
	return m
}

func addSchema[T any](m map[string]string, name string) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		panic(fmt.Sprintf("server: schema for %s: %v", name, err))
	}
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		panic(fmt.Sprintf("server: schema for %s: %v", name, err))
	}
	m[name] = string(data)
}
