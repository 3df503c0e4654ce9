// Package source locates the C# source text of behavior types inside a
// project tree.
package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gitignore "github.com/sabhiram/go-gitignore"

	"refgraph/internal/csharp"
	"refgraph/internal/typesys"
)

// ErrSourceNotFound is returned when no source file declares a type.
var ErrSourceNotFound = errors.New("source not found")

// Locator finds the source text declaring a type.
type Locator interface {
	LocateSourceText(ctx context.Context, typeName string) (text []byte, path string, err error)
}

// defaultIgnores are skipped in every project, on top of its .gitignore.
var defaultIgnores = []string{".git/", "Library/", "Temp/", "Logs/", "obj/", "bin/", "node_modules/"}

// Options configures an Index.
type Options struct {
	// Extensions are the indexed file extensions.
	Extensions []string
	// Outline indexes declarations only, without registering members in the
	// type registry.
	Outline bool
	Logger  *slog.Logger
}

// DefaultOptions indexes .cs files with full parsing.
func DefaultOptions() Options {
	return Options{Extensions: []string{".cs"}}
}

// Index maps declared type names to the files declaring them. It is safe for
// concurrent use.
type Index struct {
	root   string
	parser *csharp.Parser
	types  *typesys.Registry
	opts   Options
	logger *slog.Logger
	ignore *gitignore.GitIgnore

	mu     sync.RWMutex
	byType map[string][]string
	byFile map[string][]string
}

// NewIndex creates an index over root. When types is non-nil, declarations
// found by full parsing are registered into it.
func NewIndex(root string, parser *csharp.Parser, types *typesys.Registry, opts Options) (*Index, error) {
	if parser == nil {
		return nil, errors.New("source: nil parser")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", abs)
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultOptions().Extensions
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lines := append([]string(nil), defaultIgnores...)
	if data, err := os.ReadFile(filepath.Join(abs, ".gitignore")); err == nil {
		lines = append(lines, strings.Split(string(data), "\n")...)
	}

	return &Index{
		root:   abs,
		parser: parser,
		types:  types,
		opts:   opts,
		logger: logger,
		ignore: gitignore.CompileIgnoreLines(lines...),
		byType: make(map[string][]string),
		byFile: make(map[string][]string),
	}, nil
}

// Root returns the absolute project root.
func (ix *Index) Root() string { return ix.root }

// Build walks the project and indexes every matching file.
func (ix *Index) Build(ctx context.Context) error {
	return filepath.WalkDir(ix.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			ix.logger.Warn("failed to walk", slog.String("path", path), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == ix.root {
			return nil
		}
		if ix.ignored(path, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !ix.wanted(path) {
			return nil
		}
		return ix.indexFile(ctx, path)
	})
}

func (ix *Index) ignored(path string, dir bool) bool {
	rel, err := filepath.Rel(ix.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if dir {
		rel += "/"
	}
	return ix.ignore.MatchesPath(rel)
}

func (ix *Index) wanted(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range ix.opts.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Refresh re-indexes one file, or drops it when it no longer exists.
func (ix *Index) Refresh(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		ix.remove(abs)
		return nil
	}
	if !ix.wanted(abs) || ix.ignored(abs, false) {
		return nil
	}
	return ix.indexFile(ctx, abs)
}

func (ix *Index) indexFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		ix.logger.Warn("failed to read source", slog.String("path", path), slog.String("error", err.Error()))
		return nil
	}
	names, err := ix.declaredNames(ctx, path, src)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if err != nil || len(names) == 0 {
		// Unity requires a behavior's file to carry its class name.
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		ix.logger.Debug("indexing by file name", slog.String("path", path), slog.String("type", stem))
		names = []string{stem}
	}

	ix.remove(path)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.byFile[path] = names
	for _, name := range names {
		ix.byType[name] = appendUnique(ix.byType[name], path)
	}
	return nil
}

// declaredNames returns the simple and full names declared in src.
func (ix *Index) declaredNames(ctx context.Context, path string, src []byte) ([]string, error) {
	var names []string
	if ix.opts.Outline {
		decls, err := ix.parser.Outline(ctx, path, src)
		if err != nil {
			return nil, err
		}
		for _, d := range decls {
			names = appendUnique(names, d.Name)
			names = appendUnique(names, d.FullName())
		}
		return names, nil
	}

	f, err := ix.parser.Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}
	for _, c := range f.Classes {
		names = appendUnique(names, c.Name)
		names = appendUnique(names, c.FullName())
		if ix.types != nil {
			ix.types.Add(c.ToType(path))
		}
	}
	return names, nil
}

func (ix *Index) remove(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, name := range ix.byFile[path] {
		paths := ix.byType[name][:0]
		for _, p := range ix.byType[name] {
			if p != path {
				paths = append(paths, p)
			}
		}
		if len(paths) == 0 {
			delete(ix.byType, name)
		} else {
			ix.byType[name] = paths
		}
	}
	delete(ix.byFile, path)
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

// Locate returns the files declaring typeName, sorted. A qualified name that
// is not indexed falls back to its simple name.
func (ix *Index) Locate(typeName string) []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	paths := ix.byType[typeName]
	if len(paths) == 0 {
		if i := strings.LastIndexByte(typeName, '.'); i >= 0 {
			paths = ix.byType[typeName[i+1:]]
		}
	}
	out := append([]string(nil), paths...)
	sort.Strings(out)
	return out
}

// LocateSourceText reads the first file declaring typeName.
func (ix *Index) LocateSourceText(ctx context.Context, typeName string) ([]byte, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	paths := ix.Locate(typeName)
	if len(paths) == 0 {
		return nil, "", fmt.Errorf("%w: %s", ErrSourceNotFound, typeName)
	}
	src, err := os.ReadFile(paths[0])
	if err != nil {
		return nil, paths[0], fmt.Errorf("%w: %s: %v", ErrSourceNotFound, typeName, err)
	}
	return src, paths[0], nil
}

// Files returns the indexed files, sorted.
func (ix *Index) Files() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, 0, len(ix.byFile))
	for p := range ix.byFile {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of indexed type names.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byType)
}

// MapLocator serves source text from memory, keyed by type name. The
// reported path is "<type>.cs".
type MapLocator map[string]string

func (m MapLocator) LocateSourceText(_ context.Context, typeName string) ([]byte, string, error) {
	text, ok := m[typeName]
	if !ok {
		if i := strings.LastIndexByte(typeName, '.'); i >= 0 {
			text, ok = m[typeName[i+1:]]
		}
	}
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrSourceNotFound, typeName)
	}
	name := typeName
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return []byte(text), name + ".cs", nil
}
