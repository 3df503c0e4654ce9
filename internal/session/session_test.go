package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refgraph/internal/graph"
	"refgraph/internal/scene"
)

func TestVisitStates(t *testing.T) {
	s := New(0, nil)
	id := graph.ID(7)

	assert.Equal(t, Unseen, s.State(id))
	assert.False(t, s.Enter(id))
	assert.Equal(t, InProgress, s.State(id))

	s.MarkDone(id)
	assert.Equal(t, InProgress, s.State(id))
	s.Leave(id)
	assert.Equal(t, Done, s.State(id))

	assert.True(t, s.Enter(id), "re-entering a done identity reports it")
	s.Leave(id)
	assert.Equal(t, Done, s.State(id))
}

func TestSessionsAreIndependent(t *testing.T) {
	a := New(0, nil)
	b := New(0, nil)
	assert.NotEqual(t, a.ID, b.ID)

	a.MarkDone(1)
	assert.Equal(t, Unseen, b.State(1))
}

func TestDiscover(t *testing.T) {
	s := New(0, nil)
	e := scene.NewEntity("Player")
	other := scene.NewEntity("Other")
	b1 := e.AddBehavior("Health", nil)
	b2 := other.AddBehavior("Health", nil)
	m := e.AddBehavior("Mover", nil)

	s.Discover("Health", b1, nil)
	s.Discover("Health", b1, nil)
	s.Discover("Health", b2, nil)
	s.Discover("Mover", m, nil)

	assert.Equal(t, []string{"Health", "Mover"}, s.DiscoveredTypes())
	assert.Len(t, s.Instances("Health"), 2)
	on := s.InstancesOn("Health", e)
	require.Len(t, on, 1)
	assert.Same(t, b1, on[0].Behavior)
	assert.Empty(t, s.Instances("Missing"))
}

func TestDiscoverAsset(t *testing.T) {
	s := New(0, nil)
	channel := scene.NewAsset("MainScore", "ScoreChannel")

	s.DiscoverAsset(channel, nil)
	s.DiscoverAsset(channel, nil)

	require.Len(t, s.AssetInstances("ScoreChannel"), 1)
	assert.Same(t, channel, s.AssetInstances("ScoreChannel")[0].Asset)
	assert.Empty(t, s.DiscoveredTypes(), "assets are not augmented")
	assert.Empty(t, s.Instances("ScoreChannel"))
}
