package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refgraph/internal/graph"
	"refgraph/internal/report"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "refgraph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePass(id string, at time.Time) *Pass {
	rep := report.New(id)
	rep.Add(report.Record{Type: "Player", Kind: report.KindSubscription, Path: "Player.cs", Line: 12,
		Detail: "field.OnHit += HandleHit", Target: "Game.Enemy", Strategy: "declared_type",
		Pattern: "conditional-indirect", Edges: 1})
	rep.Add(report.Record{Type: "Player", Kind: report.KindAcquisition, Path: "Player.cs", Line: 20,
		Detail: "GetComponent<Missing>()"})
	rep.Add(report.Record{Type: "Spawner", Kind: report.KindPublisher, Path: "Spawner.cs", Line: 3,
		Detail: "event Action OnSpawn"})
	rep.Skip("Ghost", "source not found")

	return &Pass{
		ID:        id,
		CreatedAt: at,
		Nodes: []*graph.Node{
			{ID: 0, Label: "Hero", Kind: graph.NodeEntity, TypeName: "", Depth: 0},
			{ID: 1, Label: "Player", Kind: graph.NodeBehavior, TypeName: "Game.Player", Depth: 0},
			{ID: 2, Label: "Enemy", Kind: graph.NodeVirtual, TypeName: "Game.Enemy", Depth: 1},
			{ID: -1, Label: "Wave1", Kind: graph.NodeDataAsset, TypeName: "Wave", Depth: 1},
		},
		Edges: []graph.Edge{
			{From: 0, To: 1, Kind: graph.EdgeComponentOwnership, Depth: 0, Color: graph.Color{R: 255, A: 255}, Width: 2},
			{From: 1, To: 2, Kind: graph.EdgeEventSubscription, Depth: 1, Color: graph.Color{G: 200, B: 40, A: 180}, Width: 1.5,
				Annotation: "conditional-indirect OnHit Player.cs:12"},
			{From: 1, To: -1, Kind: graph.EdgeDataReference, Depth: 1, Color: graph.Color{B: 255, A: 255}, Width: 1},
		},
		Report: rep,
	}
}

func TestSaveAndLoadPass(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	p := samplePass("p1", time.Now())
	require.NoError(t, s.SavePass(ctx, p))

	info, err := s.Pass(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 4, info.Nodes)
	assert.Equal(t, 3, info.Edges)
	assert.Equal(t, 1, info.Unresolved)

	nodes, err := s.Nodes(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, nodes, 4)
	assert.Equal(t, graph.ID(-1), nodes[0].ID)
	assert.Equal(t, graph.NodeDataAsset, nodes[0].Kind)

	edges, err := s.Edges(ctx, "p1", nil)
	require.NoError(t, err)
	assert.Equal(t, p.Edges, edges)

	kind := graph.EdgeEventSubscription
	subs, err := s.Edges(ctx, "p1", &kind)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, graph.ID(2), subs[0].To)

	rep, err := s.Report(ctx, "p1", "")
	require.NoError(t, err)
	assert.Equal(t, p.Report.Records, rep.Records)
	assert.Equal(t, p.Report.Skipped, rep.Skipped)

	only, err := s.Report(ctx, "p1", "Spawner")
	require.NoError(t, err)
	assert.Len(t, only.Records, 1)
	assert.Empty(t, only.Skipped)
}

func TestNodeLookup(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.SavePass(ctx, samplePass("p1", time.Now())))

	n, err := s.Node(ctx, "p1", 1)
	require.NoError(t, err)
	assert.Equal(t, "Player", n.Label)

	_, err = s.Node(ctx, "p1", 99)
	assert.ErrorIs(t, err, ErrNotFound)

	byType, err := s.NodesByType(ctx, "p1", "Enemy")
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, graph.NodeVirtual, byType[0].Kind)
}

func TestFindReferences(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.SavePass(ctx, samplePass("p1", time.Now())))

	refs, err := s.FindReferences(ctx, "p1", "Game.Enemy")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "Player", refs[0].From.Label)
	assert.Equal(t, graph.NodeVirtual, refs[0].To.Kind)
	assert.Equal(t, graph.EdgeEventSubscription, refs[0].Edge.Kind)

	simple, err := s.FindReferences(ctx, "p1", "Enemy")
	require.NoError(t, err)
	assert.Len(t, simple, 1)

	none, err := s.FindReferences(ctx, "p1", "nemy")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPassesAndPrune(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	_, err := s.LatestPass(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SavePass(ctx, samplePass(id, base.Add(time.Duration(i)*time.Minute))))
	}

	latest, err := s.LatestPass(ctx)
	require.NoError(t, err)
	assert.Equal(t, "c", latest.ID)

	passes, err := s.Passes(ctx)
	require.NoError(t, err)
	require.Len(t, passes, 3)
	assert.Equal(t, "a", passes[2].ID)

	removed, err := s.Prune(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	nodes, err := s.Nodes(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, nodes, "children cascade with their pass")

	_, err = s.Pass(ctx, "b")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSavePassReplaces(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.SavePass(ctx, samplePass("p1", time.Now())))

	p := samplePass("p1", time.Now())
	p.Nodes = p.Nodes[:1]
	p.Edges = nil
	require.NoError(t, s.SavePass(ctx, p))

	info, err := s.Pass(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Nodes)
	assert.Equal(t, 0, info.Edges)

	assert.Error(t, s.SavePass(ctx, &Pass{}))
}

func TestInMemory(t *testing.T) {
	s, err := Open(":memory:")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.SavePass(context.Background(), samplePass("m", time.Now())))
	passes, err := s.Passes(context.Background())
	require.NoError(t, err)
	assert.Len(t, passes, 1)
}
