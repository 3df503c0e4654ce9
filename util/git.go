package util

import (
	"os"
	"path/filepath"
)

// projectMarkers identify a project root: a git checkout or a Unity
// project (Assets plus ProjectSettings).
var projectMarkers = [][]string{
	{".git"},
	{"Assets", "ProjectSettings"},
}

// FindProjectRoot walks up from start to the nearest directory carrying a
// project marker. It returns start itself when none is found.
func FindProjectRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for cur := dir; ; {
		if hasMarker(cur) {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return dir, nil
		}
		cur = parent
	}
}

func hasMarker(dir string) bool {
	for _, marker := range projectMarkers {
		all := true
		for _, name := range marker {
			if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}
