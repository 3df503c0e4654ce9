// Package augment adds relationships that exist only in source code to the
// graph of a pass: dynamic component acquisition, event subscription and
// event invocation. It runs after traversal over the behavior types the
// traversal discovered and writes through the session's node store, so
// source-inferred edges land on the same nodes as live ones.
package augment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"refgraph/internal/csharp"
	"refgraph/internal/graph"
	"refgraph/internal/report"
	"refgraph/internal/resolve"
	"refgraph/internal/scene"
	"refgraph/internal/session"
	"refgraph/internal/source"
	"refgraph/internal/typesys"
	"refgraph/util"
)

// Options configures an Augmenter.
type Options struct {
	// MaxFanout caps how many live instances of one type a relationship is
	// drawn from or to.
	MaxFanout int
	// CacheSize is the number of parsed files kept between passes.
	CacheSize int
}

// DefaultOptions returns the default fan-out and cache size.
func DefaultOptions() Options {
	return Options{MaxFanout: 8, CacheSize: 256}
}

// Stats counts what a Run did.
type Stats struct {
	Types         int
	MissingSource int
	ParseFailures int
	Unresolved    int
	Edges         int
	VirtualNodes  int
	Refused       int
}

// Augmenter runs the source pass. The parsed-file cache survives across
// passes; everything else is per Run.
type Augmenter struct {
	locator source.Locator
	parser  *csharp.Parser
	types   *typesys.Registry
	chain   *resolve.Chain
	opts    Options
	logger  *slog.Logger
	cache   *lru.Cache[string, *csharp.File]
}

// New creates an augmenter. chain resolves owner and acquired types against
// types.
func New(locator source.Locator, parser *csharp.Parser, types *typesys.Registry, chain *resolve.Chain, opts Options, logger *slog.Logger) (*Augmenter, error) {
	if locator == nil || parser == nil || types == nil || chain == nil {
		return nil, errors.New("augment: nil collaborator")
	}
	if opts.MaxFanout <= 0 {
		opts.MaxFanout = DefaultOptions().MaxFanout
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := lru.New[string, *csharp.File](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create parse cache: %w", err)
	}
	return &Augmenter{
		locator: locator,
		parser:  parser,
		types:   types,
		chain:   chain,
		opts:    opts,
		logger:  logger,
		cache:   cache,
	}, nil
}

// run is the state of one Run.
type run struct {
	*Augmenter
	sess   *session.Session
	rep    *report.Report
	stats  Stats
	logger *slog.Logger
}

// Run augments every type discovered in sess and returns the report. Only
// cancellation of ctx is returned as an error; per-type failures are logged,
// reported as skipped and counted.
func (a *Augmenter) Run(ctx context.Context, sess *session.Session) (*report.Report, Stats, error) {
	r := &run{Augmenter: a, sess: sess, rep: report.New(sess.ID), logger: sess.Logger}
	for _, typeName := range sess.DiscoveredTypes() {
		if err := ctx.Err(); err != nil {
			return r.rep, r.stats, err
		}
		r.stats.Types++
		if err := r.augmentType(ctx, typeName); err != nil {
			return r.rep, r.stats, err
		}
	}
	return r.rep, r.stats, nil
}

func (r *run) augmentType(ctx context.Context, typeName string) error {
	text, path, err := r.locator.LocateSourceText(ctx, typeName)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.stats.MissingSource++
		r.logger.Warn("source not found, skipping", slog.String("type", typeName), slog.String("error", err.Error()))
		r.rep.Skip(typeName, "source not found")
		return nil
	}

	file, err := r.parse(ctx, path, text)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		r.stats.ParseFailures++
		r.logger.Warn("failed to parse source, skipping", slog.String("type", typeName), slog.String("path", path), slog.String("error", err.Error()))
		r.rep.Skip(typeName, "parse failed")
		return nil
	}
	for _, msg := range file.Errors {
		r.logger.Debug("tolerated syntax error", slog.String("path", path), slog.String("error", msg))
	}

	class := declaringClass(file, typeName)
	if class == nil {
		r.rep.Skip(typeName, "no declaration in "+path)
		return nil
	}
	for _, c := range file.Classes {
		r.types.Add(c.ToType(path))
	}

	t := &typeRun{run: r, name: typeName, file: file, class: class, path: path, sources: r.sourceNodes(typeName)}
	t.acquisitions(ctx)
	t.publishers()
	t.subscriptions(ctx)
	t.invocations(ctx)
	return nil
}

func (r *run) parse(ctx context.Context, path string, text []byte) (*csharp.File, error) {
	key := util.ContentKey(path, text)
	if f, ok := r.cache.Get(key); ok {
		return f, nil
	}
	f, err := r.parser.Parse(ctx, path, text)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, f)
	return f, nil
}

// declaringClass picks the class named by typeName, full or simple.
func declaringClass(f *csharp.File, typeName string) *csharp.Class {
	simple := typeName
	if i := strings.LastIndexByte(simple, '.'); i >= 0 {
		simple = simple[i+1:]
	}
	var bySimple *csharp.Class
	for _, c := range f.Classes {
		if c.FullName() == typeName {
			return c
		}
		if c.Name == simple && bySimple == nil {
			bySimple = c
		}
	}
	return bySimple
}

// sourceNodes returns the distinct nodes standing for live instances of
// typeName, capped at MaxFanout.
func (r *run) sourceNodes(typeName string) []session.Instance {
	var out []session.Instance
	seen := make(map[graph.ID]bool)
	for _, inst := range r.sess.Instances(typeName) {
		if inst.Node == nil || seen[inst.Node.ID] {
			continue
		}
		seen[inst.Node.ID] = true
		out = append(out, inst)
		if len(out) == r.opts.MaxFanout {
			break
		}
	}
	return out
}

// instancesOf returns live behaviors and assets of t, by full or simple
// name.
func (r *run) instancesOf(t *typesys.Type) []session.Instance {
	names := []string{t.FullName()}
	if t.Namespace != "" {
		names = append(names, t.Name)
	}
	var out []session.Instance
	for _, name := range names {
		out = append(out, r.sess.Instances(name)...)
		out = append(out, r.sess.AssetInstances(name)...)
	}
	return out
}

// targets returns the nodes a relationship to t should point at: live
// instances accepted by keep, capped, or the virtual node of t when there
// are none.
func (r *run) targets(t *typesys.Type, depth int, keep func(session.Instance) bool) (nodes []*graph.Node, virtual bool) {
	seen := make(map[graph.ID]bool)
	for _, inst := range r.instancesOf(t) {
		if inst.Node == nil || seen[inst.Node.ID] || (keep != nil && !keep(inst)) {
			continue
		}
		seen[inst.Node.ID] = true
		nodes = append(nodes, inst.Node)
		if len(nodes) == r.opts.MaxFanout {
			break
		}
	}
	if len(nodes) > 0 {
		return nodes, false
	}
	existed := r.sess.Store.Len()
	n, err := r.sess.Store.GetOrCreateVirtual(t.FullName(), t.Name, depth)
	if err != nil {
		r.stats.Refused++
		r.logger.Debug("virtual node refused", slog.String("type", t.FullName()), slog.String("error", err.Error()))
		return nil, true
	}
	if r.sess.Store.Len() > existed {
		r.stats.VirtualNodes++
	}
	return []*graph.Node{n}, true
}

// connect draws from -> each target and returns the number of new edges.
func (r *run) connect(from *graph.Node, to []*graph.Node, cat graph.Category, annotation string) int {
	added := 0
	for _, n := range to {
		if n.ID == from.ID {
			continue
		}
		if _, ok := r.sess.Store.Connect(from, n, graph.Relation{Category: cat, Annotation: annotation}, from.Depth+1); ok {
			added++
		}
	}
	r.stats.Edges += added
	return added
}

// within reports whether e is owner, or below or above it as scope asks.
func within(e, owner *scene.Entity, scope csharp.AcquireScope) bool {
	if e == nil || owner == nil {
		return false
	}
	switch scope {
	case csharp.AcquireSelf:
		return e == owner
	case csharp.AcquireChildren:
		for cur := e; cur != nil; cur = cur.Parent() {
			if cur == owner {
				return true
			}
		}
	case csharp.AcquireParent:
		for cur := owner; cur != nil; cur = cur.Parent() {
			if cur == e {
				return true
			}
		}
	case csharp.AcquireGlobal:
		return true
	}
	return false
}
