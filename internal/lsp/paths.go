package lsp

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// HomeEnv overrides the directory refgraph keeps installed servers in.
const HomeEnv = "REFGRAPH_HOME"

// Home returns the refgraph cache root.
// Priority: $REFGRAPH_HOME, $XDG_CACHE_HOME/refgraph, then the platform cache dir.
func Home() (string, error) {
	if home := os.Getenv(HomeEnv); home != "" {
		return home, nil
	}
	if runtime.GOOS != "windows" {
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "refgraph"), nil
		}
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(userHome, "AppData", "Local", "refgraph"), nil
	}
	return filepath.Join(userHome, ".cache", "refgraph"), nil
}

// BinDir is where language server executables are looked up first.
func BinDir() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "bin"), nil
}

// FindServer resolves a configured server command. Paths are used as given;
// bare names are tried in BinDir and then on $PATH.
func FindServer(command string) (string, error) {
	if command == "" {
		return "", fmt.Errorf("no language server command configured")
	}
	if filepath.IsAbs(command) || filepath.Base(command) != command {
		return command, nil
	}
	if dir, err := BinDir(); err == nil {
		name := command
		if runtime.GOOS == "windows" && filepath.Ext(name) != ".exe" {
			name += ".exe"
		}
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return "", fmt.Errorf("language server %q not found in refgraph bin dir or PATH: %w", command, err)
	}
	return path, nil
}
