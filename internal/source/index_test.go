package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refgraph/internal/csharp"
	"refgraph/internal/typesys"
)

const playerCS = `namespace Game
{
    public class Player : MonoBehaviour
    {
        public Health health;
    }
}`

func writeFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func project(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "Generated/\n")
	writeFile(t, root, "Assets/Scripts/Player.cs", playerCS)
	writeFile(t, root, "Assets/Scripts/Broken.cs", "}}}} ((( ;;; => ]]")
	writeFile(t, root, "Assets/Notes.txt", "class NotSource {}")
	writeFile(t, root, "Library/Cached.cs", "class Cached {}")
	writeFile(t, root, "Generated/Gen.cs", "class Gen {}")
	return root
}

func TestIndex_Build(t *testing.T) {
	root := project(t)
	types := typesys.NewRegistry()
	ix, err := NewIndex(root, csharp.NewParser(), types, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, ix.Build(context.Background()))

	player := filepath.Join(ix.Root(), "Assets", "Scripts", "Player.cs")
	assert.Equal(t, []string{player}, ix.Locate("Player"))
	assert.Equal(t, []string{player}, ix.Locate("Game.Player"))
	assert.Equal(t, []string{player}, ix.Locate("Other.Player"), "qualified miss falls back to the simple name")

	assert.Len(t, ix.Locate("Broken"), 1, "unparsable file indexed by its name")
	assert.Empty(t, ix.Locate("Cached"))
	assert.Empty(t, ix.Locate("Gen"))
	assert.Empty(t, ix.Locate("NotSource"))
	assert.Len(t, ix.Files(), 2)

	typ, ok := types.ByExactName("Game.Player")
	require.True(t, ok)
	m, ok := typ.Member("health")
	require.True(t, ok)
	assert.Equal(t, "Health", m.TypeName)
}

func TestIndex_LocateSourceText(t *testing.T) {
	root := project(t)
	ix, err := NewIndex(root, csharp.NewParser(), nil, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, ix.Build(context.Background()))

	text, path, err := ix.LocateSourceText(context.Background(), "Player")
	require.NoError(t, err)
	assert.Equal(t, playerCS, string(text))
	assert.Equal(t, "Player.cs", filepath.Base(path))

	_, _, err = ix.LocateSourceText(context.Background(), "Missing")
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestIndex_Outline(t *testing.T) {
	root := project(t)
	types := typesys.NewRegistry()
	opts := DefaultOptions()
	opts.Outline = true
	ix, err := NewIndex(root, csharp.NewParser(), types, opts)
	require.NoError(t, err)
	require.NoError(t, ix.Build(context.Background()))

	assert.Len(t, ix.Locate("Game.Player"), 1)
	assert.Zero(t, types.Len(), "outline mode does not register members")
}

func TestIndex_Refresh(t *testing.T) {
	root := project(t)
	ix, err := NewIndex(root, csharp.NewParser(), nil, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, ix.Build(context.Background()))

	enemy := writeFile(t, root, "Assets/Scripts/Enemy.cs", "class Enemy : MonoBehaviour {}")
	require.NoError(t, ix.Refresh(context.Background(), enemy))
	assert.Len(t, ix.Locate("Enemy"), 1)

	require.NoError(t, os.Remove(enemy))
	require.NoError(t, ix.Refresh(context.Background(), enemy))
	assert.Empty(t, ix.Locate("Enemy"))
}

func TestIndex_Canceled(t *testing.T) {
	root := project(t)
	ix, err := NewIndex(root, csharp.NewParser(), nil, DefaultOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, ix.Build(ctx), context.Canceled)
}

func TestNewIndex_BadRoot(t *testing.T) {
	_, err := NewIndex(filepath.Join(t.TempDir(), "missing"), csharp.NewParser(), nil, DefaultOptions())
	assert.Error(t, err)

	_, err = NewIndex(t.TempDir(), nil, nil, DefaultOptions())
	assert.Error(t, err)
}

func TestIndex_Watch(t *testing.T) {
	root := project(t)
	ix, err := NewIndex(root, csharp.NewParser(), nil, DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, ix.Build(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ix.Watch(ctx, nil) }()

	path := filepath.Join(root, "Assets", "Scripts", "Spawner.cs")
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("class Spawner : MonoBehaviour {}"), 0o644)
		return len(ix.Locate("Spawner")) == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestMapLocator(t *testing.T) {
	m := MapLocator{"Player": playerCS}

	text, path, err := m.LocateSourceText(context.Background(), "Game.Player")
	require.NoError(t, err)
	assert.Equal(t, playerCS, string(text))
	assert.Equal(t, "Player.cs", path)

	_, _, err = m.LocateSourceText(context.Background(), "Enemy")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}
