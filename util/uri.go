package util

import (
	"net/url"
	"path/filepath"
	"strings"
)

// PathToURI converts a file path to a file:// URI as used by language
// servers.
func PathToURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// URIToPath converts a file:// URI back to a local path. Other strings are
// returned unchanged.
func URIToPath(uri string) string {
	if !strings.HasPrefix(uri, "file://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil {
		return filepath.FromSlash(strings.TrimPrefix(uri, "file://"))
	}
	return filepath.FromSlash(u.Path)
}
