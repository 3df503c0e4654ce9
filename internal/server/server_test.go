package server

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refgraph/internal/analyzer"
	"refgraph/internal/scene"
	"refgraph/internal/source"
	"refgraph/internal/store"
	"refgraph/internal/typesys"
)

const spawnerSource = `
public class Spawner : MonoBehaviour
{
    void Awake() { gameObject.AddComponent<Rigidbody>(); }
}`

func newServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	types := typesys.NewRegistry()
	typesys.RegisterEngineTypes(types)
	a, err := analyzer.New(types, source.MapLocator{"Spawner": spawnerSource}, analyzer.DefaultOptions())
	require.NoError(t, err)

	load := func(context.Context) (scene.Host, []*scene.Entity, error) {
		root := scene.NewEntity("Level")
		root.AddChild(scene.NewEntity("Spawn")).AddBehavior("Spawner", nil)
		return scene.New(root), []*scene.Entity{root}, nil
	}
	return New(a, load, "test", opts...)
}

func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := s.MCP().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (string, bool) {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return text.Text, res.IsError
}

func TestToolsBeforeAnalyze(t *testing.T) {
	cs := connect(t, newServer(t))
	text, isErr := call(t, cs, "analysis_report", nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "run analyze first")

	text, isErr = call(t, cs, "list_passes", nil)
	assert.True(t, isErr)
	assert.Contains(t, text, "No store")
}

func TestAnalyzeAndQuery(t *testing.T) {
	cs := connect(t, newServer(t))

	text, isErr := call(t, cs, "analyze", nil)
	require.False(t, isErr, text)
	var sum AnalyzeSummary
	require.NoError(t, json.Unmarshal([]byte(text), &sum))
	assert.Equal(t, 4, sum.Nodes)
	assert.Equal(t, 1, sum.Edges["dynamic_reference"])
	assert.Equal(t, 1, sum.Virtual)
	assert.False(t, sum.Stored)

	text, isErr = call(t, cs, "analysis_report", map[string]any{"type_name": "Spawner"})
	require.False(t, isErr)
	assert.Contains(t, text, "gameObject.AddComponent<Rigidbody>()")

	text, isErr = call(t, cs, "find_references", map[string]any{"type_name": "Rigidbody"})
	require.False(t, isErr)
	assert.Contains(t, text, "dynamic_reference")
	assert.Contains(t, text, "Spawner")

	text, isErr = call(t, cs, "list_edges", map[string]any{"kind": "structural"})
	require.False(t, isErr)
	var edges []map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &edges))
	assert.Len(t, edges, 1)

	_, isErr = call(t, cs, "list_edges", map[string]any{"kind": "bogus"})
	assert.True(t, isErr)

	text, isErr = call(t, cs, "get_node", map[string]any{"id": 0})
	require.False(t, isErr)
	assert.Contains(t, text, `"label": "Level"`)
	assert.Contains(t, text, `"outgoing"`)

	text, isErr = call(t, cs, "get_node", map[string]any{"type_name": "Rigidbody"})
	require.False(t, isErr)
	assert.Contains(t, text, `"kind": "virtual"`)

	_, isErr = call(t, cs, "get_node", nil)
	assert.True(t, isErr)
}

func TestStoredPasses(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer st.Close()

	cs := connect(t, newServer(t, WithStore(st)))

	text, _ := call(t, cs, "analyze", nil)
	var first AnalyzeSummary
	require.NoError(t, json.Unmarshal([]byte(text), &first))
	assert.True(t, first.Stored)

	text, _ = call(t, cs, "analyze", map[string]any{"skip_store": true})
	var second AnalyzeSummary
	require.NoError(t, json.Unmarshal([]byte(text), &second))
	assert.False(t, second.Stored)

	passes, err := st.Passes(context.Background())
	require.NoError(t, err)
	require.Len(t, passes, 1)
	assert.Equal(t, first.Pass, passes[0].ID)

	// The first pass is no longer in memory and is read back from the store.
	text, isErr := call(t, cs, "find_references", map[string]any{"type_name": "Rigidbody", "pass": first.Pass})
	require.False(t, isErr, text)
	assert.Contains(t, text, "dynamic_reference")

	text, isErr = call(t, cs, "analysis_report", map[string]any{"pass": first.Pass})
	require.False(t, isErr)
	assert.Contains(t, text, "Spawner")

	_, isErr = call(t, cs, "get_node", map[string]any{"id": 0, "pass": "missing"})
	assert.True(t, isErr)

	text, isErr = call(t, cs, "list_passes", nil)
	require.False(t, isErr)
	assert.Contains(t, text, first.Pass)
}

func TestStoredPassesArePruned(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	defer st.Close()

	cs := connect(t, newServer(t, WithStore(st), WithRetention(2)))

	var last AnalyzeSummary
	for i := 0; i < 3; i++ {
		text, isErr := call(t, cs, "analyze", nil)
		require.False(t, isErr, text)
		require.NoError(t, json.Unmarshal([]byte(text), &last))
		require.True(t, last.Stored)
	}

	passes, err := st.Passes(context.Background())
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, last.Pass, passes[0].ID)
}

func TestResources(t *testing.T) {
	cs := connect(t, newServer(t))
	ctx := context.Background()

	res, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: guidelinesURI})
	require.NoError(t, err)
	require.Len(t, res.Contents, 1)
	assert.Contains(t, res.Contents[0].Text, "find_references")

	res, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "find_references"})
	require.NoError(t, err)
	assert.Contains(t, res.Contents[0].Text, "type_name")

	_, err = cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: schemaPrefix + "nope"})
	assert.Error(t, err)
}

func TestSchemaMapCoversTools(t *testing.T) {
	m := buildSchemaMap()
	for _, name := range []string{"analyze", "analysis_report", "get_node", "find_references", "list_edges", "list_passes"} {
		assert.Contains(t, m, name)
	}
}
