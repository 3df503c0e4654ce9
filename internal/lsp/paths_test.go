package lsp

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHome(t *testing.T) {
	t.Setenv(HomeEnv, "/opt/refgraph")
	home, err := Home()
	require.NoError(t, err)
	assert.Equal(t, "/opt/refgraph", home)

	bin, err := BinDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/opt/refgraph", "bin"), bin)

	if runtime.GOOS != "windows" {
		t.Setenv(HomeEnv, "")
		t.Setenv("XDG_CACHE_HOME", "/tmp/cache")
		home, err = Home()
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("/tmp/cache", "refgraph"), home)
	}
}

func TestFindServer(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits")
	}
	home := t.TempDir()
	t.Setenv(HomeEnv, home)
	bin := filepath.Join(home, "bin")
	require.NoError(t, os.MkdirAll(bin, 0o755))
	server := filepath.Join(bin, "csharp-ls")
	require.NoError(t, os.WriteFile(server, []byte("#!/bin/sh\n"), 0o755))

	path, err := FindServer("csharp-ls")
	require.NoError(t, err)
	assert.Equal(t, server, path)

	path, err = FindServer("./tools/omnisharp")
	require.NoError(t, err)
	assert.Equal(t, "./tools/omnisharp", path)

	t.Setenv("PATH", "")
	_, err = FindServer("no-such-server")
	assert.Error(t, err)

	_, err = FindServer("")
	assert.Error(t, err)
}

func TestStartMissingServer(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	t.Setenv("PATH", "")
	_, err := Start(context.Background(), "no-such-server", nil, nil)
	assert.ErrorContains(t, err, "not found")
}
