package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refgraph/internal/analyzer"
)

func TestDefaultMatchesAnalyzer(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, analyzer.DefaultOptions(), cfg.AnalyzerOptions())
	assert.Equal(t, []string{".cs"}, cfg.SourceOptions().Extensions)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
max_nodes: 100
traversal:
  ignore_types: [Animator]
  ignore_transform: true
resolve:
  singleton_accessors: [Instance, Shared]
augment:
  max_fanout: 3
store:
  path: graph.db
  keep: 5
lsp:
  command: csharp-ls
  timeout: 500ms
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, 100, cfg.MaxNodes)
	assert.Equal(t, []string{"Animator"}, cfg.Traversal.IgnoreTypes)
	assert.True(t, cfg.Traversal.IgnoreTransform)
	assert.Equal(t, "Transform", cfg.Traversal.TransformType, "unset keys keep defaults")
	assert.True(t, cfg.Traversal.BehaviorNodes)
	assert.Equal(t, 3, cfg.Augment.MaxFanout)
	assert.Equal(t, 256, cfg.Augment.CacheSize)
	assert.Equal(t, "graph.db", cfg.Store.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.LSP.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)

	opts := cfg.AnalyzerOptions()
	assert.Equal(t, []string{"Instance", "Shared"}, opts.Resolve.SingletonAccessors)
	assert.NotEmpty(t, opts.Resolve.Keywords)
}

func TestParseRejects(t *testing.T) {
	tests := map[string]string{
		"unknown key":    "nope: 1\n",
		"negative nodes": "max_nodes: -1\n",
		"zero fanout":    "augment:\n  max_fanout: 0\n",
		"bad level":      "log:\n  level: loud\n",
		"no extensions":  "source:\n  extensions: []\n",
		"bad yaml":       "max_nodes: [\n",
	}
	for name, doc := range tests {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refgraph.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_nodes: 42\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.MaxNodes)

	t.Setenv(EnvPath, path)
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.MaxNodes)

	t.Setenv(EnvPath, "")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEmptyFile(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
