package scene

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weaponData struct {
	Target  *Entity
	Ammo    *Asset
	Allies  []*Entity
	Lookup  map[string]Object
	Count   int
	Ignored *Entity `refgraph:"-"`
	hidden  *Asset
}

type configData struct {
	Visible *Asset
	table   *Asset `refgraph:"serialize"`
	skipped *Asset
}

type valueHolder struct {
	Marker marker
}

type marker struct{}

func (marker) Kind() Kind          { return KindAsset }
func (marker) DisplayName() string { return "marker" }
func (marker) TypeName() string    { return "Marker" }
func (marker) sealed()             {}

func TestReflectFields_ExportedReferences(t *testing.T) {
	target := NewEntity("Target")
	ally := NewEntity("Ally")
	ammo := NewAsset("Bullets", "AmmoConfig")
	data := &weaponData{
		Target:  target,
		Ammo:    ammo,
		Allies:  []*Entity{ally, nil},
		Lookup:  map[string]Object{"b": ally, "a": target},
		Count:   3,
		Ignored: NewEntity("Ignored"),
		hidden:  NewAsset("Hidden", "X"),
	}

	fields := ReflectFields(data, false)

	var names []string
	for _, f := range fields {
		require.NoError(t, f.Err)
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"Target", "Ammo", "Allies[0]", "Lookup[a]", "Lookup[b]"}, names)
	assert.Same(t, target, fields[0].Target)
}

func TestReflectFields_SerializedHiddenState(t *testing.T) {
	table := NewAsset("LootTable", "LootTable")
	data := &configData{Visible: NewAsset("V", "V"), table: table, skipped: NewAsset("S", "S")}

	fields := ReflectFields(data, true)
	require.Len(t, fields, 2)
	assert.Equal(t, "table", fields[1].Name)
	assert.Same(t, table, fields[1].Target)

	assert.Len(t, ReflectFields(data, false), 1)
}

func TestReflectFields_NonStructAndNil(t *testing.T) {
	assert.Nil(t, ReflectFields(nil, false))
	assert.Nil(t, ReflectFields(42, false))
	var nilPtr *weaponData
	assert.Nil(t, ReflectFields(nilPtr, false))
}

func TestReflectFields_HiddenFieldOnValueIsReportedNotPanicking(t *testing.T) {
	fields := ReflectFields(configData{table: NewAsset("T", "T")}, true)
	require.Len(t, fields, 1)
	assert.True(t, errors.Is(fields[0].Err, ErrFieldAccess))
}

func TestEntityHierarchy(t *testing.T) {
	root := NewEntity("Root")
	child := root.AddChild(NewEntity("Child"))
	b := child.AddBehavior("Mover", nil)

	assert.Same(t, root, child.Parent())
	assert.Equal(t, "Root/Child", child.Path())
	assert.Same(t, child, b.Owner())
	assert.Equal(t, "Child.Mover", b.DisplayName())

	var visited []string
	New(root).Walk(func(e *Entity) { visited = append(visited, e.Name) })
	assert.Equal(t, []string{"Root", "Child"}, visited)
}

func TestSceneObjectFieldsCombinesExplicitAndReflected(t *testing.T) {
	e := NewEntity("E")
	other := NewEntity("Other")
	b := e.AddBehavior("Weapon", &weaponData{Target: other})
	b.Set("explicit", other)

	fields, err := New(e).ObjectFields(b)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "explicit", fields[0].Name)
	assert.Equal(t, "Target", fields[1].Name)
}

const snapshotYAML = `
types:
  - name: Player
    namespace: Game
    kind: behavior
    base: MonoBehaviour
    members:
      - {name: OnDied, type: Action, event: true}
      - {name: config, type: GameConfig}
assets:
  - id: cfg
    name: MainConfig
    type: GameConfig
entities:
  - id: root
    name: Root
    behaviors:
      - id: player
        type: Player
        fields: {config: cfg, enemy: e2, ghost: nope}
    children:
      - id: e2
        name: Enemy
`

func TestLoadSnapshot(t *testing.T) {
	snap, err := LoadSnapshot(strings.NewReader(snapshotYAML))
	require.NoError(t, err)

	require.Len(t, snap.Scene.Roots, 1)
	root := snap.Scene.Roots[0]
	assert.Equal(t, "Root", root.Name)
	require.Len(t, root.Children(), 1)
	assert.Same(t, snap.Objects["e2"], root.Children()[0])

	require.Len(t, snap.Types, 1)
	assert.Equal(t, "Game.Player", snap.Types[0].FullName())
	m, ok := snap.Types[0].Member("OnDied")
	require.True(t, ok)
	assert.True(t, m.IsDelegate())

	player := root.Behaviors()[0]
	require.Len(t, player.Fields, 3)
	assert.Equal(t, "config", player.Fields[0].Name)
	assert.Same(t, snap.Objects["cfg"], player.Fields[0].Target)
	assert.Equal(t, "enemy", player.Fields[1].Name)
	assert.True(t, errors.Is(player.Fields[2].Err, ErrDanglingReference))
}

func TestLoadSnapshot_DuplicateID(t *testing.T) {
	_, err := LoadSnapshot(strings.NewReader(`
entities:
  - {id: a, name: A}
  - {id: a, name: B}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestReflectFields_ValueTypedObject(t *testing.T) {
	fields := ReflectFields(&valueHolder{}, false)
	require.Len(t, fields, 1)
	assert.NoError(t, fields[0].Err)
	assert.Equal(t, "Marker", fields[0].Target.TypeName())
}

func TestReflectFields_TypedNilIsUnassigned(t *testing.T) {
	data := struct {
		Target Object
		Asset  *Asset
		Many   []Object
	}{
		Target: (*Entity)(nil),
		Many:   []Object{(*Asset)(nil), NewAsset("A", "Config")},
	}
	fields := ReflectFields(data, false)
	require.Len(t, fields, 1)
	assert.Equal(t, "Many[1]", fields[0].Name)
}

func TestIsNil(t *testing.T) {
	assert.True(t, IsNil(nil))
	assert.True(t, IsNil((*Entity)(nil)))
	assert.True(t, IsNil((*Behavior)(nil)))
	assert.True(t, IsNil((*Asset)(nil)))
	assert.False(t, IsNil(NewEntity("E")))
}
