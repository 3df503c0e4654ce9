package augment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refgraph/internal/csharp"
	"refgraph/internal/graph"
	"refgraph/internal/report"
	"refgraph/internal/resolve"
	"refgraph/internal/scene"
	"refgraph/internal/session"
	"refgraph/internal/source"
	"refgraph/internal/traverse"
	"refgraph/internal/typesys"
)

const guardedSubscriber = `
public class Player : MonoBehaviour
{
    void OnEnable()
    {
        if (Locator.Instance.field)
        {
            field.OnHit += HandleHit;
        }
    }

    void Die()
    {
        Locator.Instance.bus.RaiseGameOver(this);
        OnDied?.Invoke();
    }

    public event System.Action OnDied;
    void HandleHit() { }
}`

const spawner = `
public class Spawner : MonoBehaviour
{
    void Awake()
    {
        gameObject.AddComponent<Rigidbody>();
    }
}`

type fixture struct {
	sess  *session.Session
	types *typesys.Registry
	aug   *Augmenter
}

func setup(t *testing.T, locator source.Locator, roots ...*scene.Entity) *fixture {
	t.Helper()
	types := typesys.NewRegistry()
	typesys.RegisterEngineTypes(types)

	sess := session.New(0, nil)
	traverse.New(scene.New(roots...), sess, traverse.DefaultOptions()).Run(roots)

	opts := resolve.DefaultOptions()
	chain := resolve.NewChain(types, opts, nil, resolve.NewScopeChecker(types, opts))
	aug, err := New(locator, csharp.NewParser(), types, chain, DefaultOptions(), nil)
	require.NoError(t, err)
	return &fixture{sess: sess, types: types, aug: aug}
}

func (f *fixture) run(t *testing.T) (*report.Report, Stats) {
	t.Helper()
	rep, stats, err := f.aug.Run(context.Background(), f.sess)
	require.NoError(t, err)
	return rep, stats
}

func edgesOfKind(s *graph.Store, kind graph.EdgeKind) []graph.Edge {
	var out []graph.Edge
	for _, e := range s.Edges() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func nodeOf(t *testing.T, s *graph.Store, obj scene.Object) *graph.Node {
	t.Helper()
	n, ok := s.NodeFor(obj)
	require.True(t, ok)
	return n
}

func TestConditionalIndirectSubscription(t *testing.T) {
	hero := scene.NewEntity("Hero")
	player := hero.AddBehavior("Player", nil)

	f := setup(t, source.MapLocator{"Player": guardedSubscriber}, hero)
	f.types.Add(&typesys.Type{Name: "Locator", Namespace: "Game"})
	rep, stats := f.run(t)

	subs := edgesOfKind(f.sess.Store, graph.EdgeEventSubscription)
	require.Len(t, subs, 1)
	from := nodeOf(t, f.sess.Store, player)
	assert.Equal(t, from.ID, subs[0].From)
	assert.Equal(t, from.Depth+1, subs[0].Depth)
	assert.Contains(t, subs[0].Annotation, "conditional-indirect")

	owner, ok := f.sess.Store.Node(subs[0].To)
	require.True(t, ok)
	assert.Equal(t, graph.NodeVirtual, owner.Kind)
	assert.Equal(t, "Game.Locator", owner.TypeName)

	var sub report.Record
	for _, rec := range rep.ByType("Player") {
		if rec.Kind == report.KindSubscription {
			sub = rec
		}
	}
	assert.Equal(t, "conditional-indirect", sub.Pattern)
	assert.Equal(t, "singleton_accessor", sub.Strategy)
	assert.Equal(t, 1, sub.Edges)
	assert.Zero(t, stats.Unresolved)
}

func TestInvocations(t *testing.T) {
	hero := scene.NewEntity("Hero")
	hero.AddBehavior("Player", nil)

	f := setup(t, source.MapLocator{"Player": guardedSubscriber}, hero)
	f.types.Add(&typesys.Type{Name: "Locator", Namespace: "Game"})
	rep, _ := f.run(t)

	inv := edgesOfKind(f.sess.Store, graph.EdgeEventInvocation)
	require.Len(t, inv, 1, "self invocation is report-only")
	assert.Contains(t, inv[0].Annotation, "indirect RaiseGameOver")

	var self, indirect int
	for _, rec := range rep.ByType("Player") {
		if rec.Kind != report.KindInvocation {
			continue
		}
		if rec.Self {
			self++
		}
		if rec.Pattern == "indirect" {
			indirect++
		}
	}
	assert.Equal(t, 1, self)
	assert.Equal(t, 1, indirect)
	assert.Equal(t, 1, rep.Count(report.KindPublisher))
}

func TestSubscriptionOwnerFromMemberInfo(t *testing.T) {
	hero := scene.NewEntity("Hero")
	hero.AddBehavior("Player", nil)
	boss := scene.NewEntity("Boss")
	enemy := boss.AddBehavior("Enemy", nil)

	f := setup(t, source.MapLocator{"Player": guardedSubscriber}, hero, boss)
	f.types.Add(&typesys.Type{Name: "Locator", Members: []typesys.Member{{Name: "field", TypeName: "Enemy"}}})
	f.types.Add(&typesys.Type{Name: "Enemy", Kind: typesys.KindBehavior})
	f.run(t)

	subs := edgesOfKind(f.sess.Store, graph.EdgeEventSubscription)
	require.Len(t, subs, 1)
	assert.Equal(t, nodeOf(t, f.sess.Store, enemy).ID, subs[0].To, "live instance preferred over a virtual node")
}

func TestDynamicAcquisitionWithoutInstance(t *testing.T) {
	root := scene.NewEntity("Root")
	sp := root.AddBehavior("Spawner", nil)
	other := root.AddChild(scene.NewEntity("Elsewhere"))
	other.AddBehavior("Rigidbody", nil)

	f := setup(t, source.MapLocator{"Spawner": spawner}, root)
	rep, stats := f.run(t)

	dyn := edgesOfKind(f.sess.Store, graph.EdgeDynamicReference)
	require.Len(t, dyn, 1)
	assert.Equal(t, nodeOf(t, f.sess.Store, sp).ID, dyn[0].From)

	target, ok := f.sess.Store.Node(dyn[0].To)
	require.True(t, ok)
	assert.Equal(t, graph.NodeVirtual, target.Kind)
	assert.Equal(t, "UnityEngine.Rigidbody", target.TypeName)
	assert.Equal(t, 1, stats.VirtualNodes)

	recs := rep.ByType("Spawner")
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Virtual)
	assert.Equal(t, "gameObject.AddComponent<Rigidbody>()", recs[0].Detail)
}

func TestDynamicAcquisitionWithInstance(t *testing.T) {
	root := scene.NewEntity("Root")
	sp := root.AddBehavior("Spawner", nil)
	body := root.AddBehavior("Rigidbody", nil)

	f := setup(t, source.MapLocator{"Spawner": spawner}, root)
	f.run(t)

	dyn := edgesOfKind(f.sess.Store, graph.EdgeDynamicReference)
	require.Len(t, dyn, 1)
	assert.Equal(t, nodeOf(t, f.sess.Store, sp).ID, dyn[0].From)
	assert.Equal(t, nodeOf(t, f.sess.Store, body).ID, dyn[0].To)
	for _, n := range f.sess.Store.Nodes() {
		assert.NotEqual(t, graph.NodeVirtual, n.Kind)
	}
}

func TestSkippedSources(t *testing.T) {
	root := scene.NewEntity("Root")
	root.AddBehavior("Ghost", nil)
	root.AddBehavior("Garbled", nil)

	f := setup(t, source.MapLocator{"Garbled": "}}}} ((( ;;; => ]]"}, root)
	before := len(f.sess.Store.Edges())
	rep, stats := f.run(t)

	assert.Equal(t, 2, stats.Types)
	assert.Equal(t, 1, stats.MissingSource)
	assert.Equal(t, 1, stats.ParseFailures)
	assert.Len(t, rep.Skipped, 2)
	assert.Len(t, f.sess.Store.Edges(), before)
}

func TestUnresolvedIsDropped(t *testing.T) {
	root := scene.NewEntity("Root")
	root.AddBehavior("Listener", nil)

	src := `
public class Listener : MonoBehaviour
{
    void Start()
    {
        Nowhere.Thing.OnPing += () => Pong();
        var x = GetComponent<NoSuchType>();
    }
    void Pong() { }
}`
	f := setup(t, source.MapLocator{"Listener": src}, root)
	nodes := f.sess.Store.Len()
	rep, stats := f.run(t)

	assert.Equal(t, 2, stats.Unresolved)
	assert.Equal(t, nodes, f.sess.Store.Len(), "no node for an unresolved type")
	assert.Empty(t, edgesOfKind(f.sess.Store, graph.EdgeEventSubscription))
	assert.Empty(t, edgesOfKind(f.sess.Store, graph.EdgeDynamicReference))
	for _, rec := range rep.ByType("Listener") {
		assert.False(t, rec.Resolved())
	}
}

func TestParseCacheAcrossPasses(t *testing.T) {
	loc := source.MapLocator{"Spawner": spawner}
	root := scene.NewEntity("Root")
	root.AddBehavior("Spawner", nil)
	f := setup(t, loc, root)
	f.run(t)

	sess := session.New(0, nil)
	traverse.New(scene.New(root), sess, traverse.DefaultOptions()).Run([]*scene.Entity{root})
	_, _, err := f.aug.Run(context.Background(), sess)
	require.NoError(t, err)

	assert.Equal(t, 1, f.aug.cache.Len())
	assert.Len(t, edgesOfKind(sess.Store, graph.EdgeDynamicReference), 1)
}

func TestRunCanceled(t *testing.T) {
	root := scene.NewEntity("Root")
	root.AddBehavior("Spawner", nil)
	f := setup(t, source.MapLocator{"Spawner": spawner}, root)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := f.aug.Run(ctx, f.sess)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	_, err := New(nil, csharp.NewParser(), typesys.NewRegistry(), nil, DefaultOptions(), nil)
	assert.Error(t, err)
}

const channelListener = `
public class Listener : MonoBehaviour
{
    public ScoreChannel channel;

    void OnEnable()
    {
        channel.OnScored += HandleScore;
    }

    void HandleScore(int points) { }
}`

func TestSubscriptionToLiveAsset(t *testing.T) {
	score := scene.NewAsset("MainScore", "ScoreChannel")
	hud := scene.NewEntity("HUD")
	listener := hud.AddBehavior("Listener", nil).Set("channel", score)

	f := setup(t, source.MapLocator{"Listener": channelListener}, hud)
	f.types.Add(&typesys.Type{Name: "ScoreChannel", Kind: typesys.KindAsset, Base: "ScriptableObject"})
	_, stats := f.run(t)

	subs := edgesOfKind(f.sess.Store, graph.EdgeEventSubscription)
	require.Len(t, subs, 1)
	assert.Equal(t, nodeOf(t, f.sess.Store, listener).ID, subs[0].From)
	assert.Equal(t, nodeOf(t, f.sess.Store, score).ID, subs[0].To)
	assert.Zero(t, stats.VirtualNodes)
	for _, n := range f.sess.Store.Nodes() {
		assert.NotEqual(t, graph.NodeVirtual, n.Kind)
	}
}

func TestAcquisitionIgnoresLiveAssets(t *testing.T) {
	root := scene.NewEntity("Root")
	root.AddBehavior("Spawner", nil).Set("body", scene.NewAsset("BodyPreset", "Rigidbody"))

	f := setup(t, source.MapLocator{"Spawner": spawner}, root)
	_, stats := f.run(t)

	dyn := edgesOfKind(f.sess.Store, graph.EdgeDynamicReference)
	require.Len(t, dyn, 1)
	target, ok := f.sess.Store.Node(dyn[0].To)
	require.True(t, ok)
	assert.Equal(t, graph.NodeVirtual, target.Kind)
	assert.Equal(t, 1, stats.VirtualNodes)
}
