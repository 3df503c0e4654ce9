package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Kinds(t *testing.T) {
	tests := []struct {
		cat  Category
		want EdgeKind
	}{
		{CategoryHierarchy, EdgeStructural},
		{CategoryOwnership, EdgeComponentOwnership},
		{CategoryReference, EdgeDataReference},
		{CategoryCycle, EdgeCycleBack},
		{CategoryDynamic, EdgeDynamicReference},
		{CategorySubscription, EdgeEventSubscription},
		{CategoryInvocation, EdgeEventInvocation},
	}
	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(NodeBehavior, false, tt.cat, 0).Kind)
		})
	}
}

func TestClassify_DistinctHues(t *testing.T) {
	seen := map[[3]uint8]EdgeKind{}
	for cat := CategoryHierarchy; cat <= CategoryInvocation; cat++ {
		s := Classify(NodeEntity, false, cat, 0)
		rgb := [3]uint8{s.Color.R, s.Color.G, s.Color.B}
		prev, dup := seen[rgb]
		assert.False(t, dup, "%s shares a hue with %s", s.Kind, prev)
		seen[rgb] = s.Kind
	}

	plain := Classify(NodeBehavior, false, CategoryReference, 0)
	asset := Classify(NodeBehavior, true, CategoryReference, 0)
	assert.Equal(t, plain.Kind, asset.Kind)
	assert.NotEqual(t, plain.Color, asset.Color)
}

func TestClassify_MonotonicWithDepth(t *testing.T) {
	for cat := CategoryHierarchy; cat <= CategoryInvocation; cat++ {
		prev := Classify(NodeEntity, false, cat, 0)
		for depth := 1; depth < 40; depth++ {
			cur := Classify(NodeEntity, false, cat, depth)
			assert.LessOrEqual(t, cur.Width, prev.Width)
			assert.LessOrEqual(t, cur.Color.A, prev.Color.A)
			prev = cur
		}
	}
}

func TestClassify_NegativeDepthClamped(t *testing.T) {
	assert.Equal(t, Classify(NodeEntity, false, CategoryHierarchy, 0), Classify(NodeEntity, false, CategoryHierarchy, -3))
}

func TestColorHex(t *testing.T) {
	assert.Equal(t, "#0aff0080", Color{R: 10, G: 255, B: 0, A: 128}.Hex())
}

func TestParseEdgeKind(t *testing.T) {
	k, ok := ParseEdgeKind("event_subscription")
	assert.True(t, ok)
	assert.Equal(t, EdgeEventSubscription, k)
	_, ok = ParseEdgeKind("nope")
	assert.False(t, ok)
}

func TestParseColor(t *testing.T) {
	c := Color{R: 10, G: 255, B: 0, A: 128}
	got, err := ParseColor(c.Hex())
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = ParseColor("#fff")
	assert.Error(t, err)
}

func TestParseNodeKind(t *testing.T) {
	for _, k := range []NodeKind{NodeEntity, NodeBehavior, NodeDataAsset, NodeVirtual} {
		got, ok := ParseNodeKind(k.String())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}
	_, ok := ParseNodeKind("")
	assert.False(t, ok)
}
