// Package analyzer runs analysis passes: live traversal followed by source
// augmentation, each over a fresh session.
package analyzer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"refgraph/internal/augment"
	"refgraph/internal/csharp"
	"refgraph/internal/graph"
	"refgraph/internal/report"
	"refgraph/internal/resolve"
	"refgraph/internal/scene"
	"refgraph/internal/session"
	"refgraph/internal/source"
	"refgraph/internal/traverse"
	"refgraph/internal/typesys"
)

// ErrNilHost is returned when Analyze is called without a host.
var ErrNilHost = errors.New("analyzer: nil host")

// Options configures every pass.
type Options struct {
	MaxNodes  int
	Traversal traverse.Options
	Resolve   resolve.Options
	Augment   augment.Options
}

// DefaultOptions returns the default pass configuration.
func DefaultOptions() Options {
	return Options{
		MaxNodes:  5000,
		Traversal: traverse.DefaultOptions(),
		Resolve:   resolve.DefaultOptions(),
		Augment:   augment.DefaultOptions(),
	}
}

// Result is the outcome of one pass.
type Result struct {
	Pass        string
	Nodes       []*graph.Node
	Edges       []graph.Edge
	Report      *report.Report
	Traversal   traverse.Stats
	Augment     augment.Stats
	Resolutions map[string]int
	// Exhausted is set when the node cap refused a creation.
	Exhausted bool
	Duration  time.Duration
}

// Node returns the node with the given id.
func (r *Result) Node(id graph.ID) (*graph.Node, bool) {
	for _, n := range r.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return nil, false
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics records every pass on m.
func WithMetrics(m *Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithTypeCheckers adds checkers consulted after the in-file scope checker.
func WithTypeCheckers(checkers ...resolve.TypeChecker) Option {
	return func(a *Analyzer) { a.checkers = append(a.checkers, checkers...) }
}

// WithParser sets the C# parser.
func WithParser(p *csharp.Parser) Option {
	return func(a *Analyzer) { a.parser = p }
}

// Analyzer runs passes one at a time. Concurrent calls to Analyze are
// serialized.
type Analyzer struct {
	mu sync.Mutex

	types    *typesys.Registry
	locator  source.Locator
	opts     Options
	logger   *slog.Logger
	metrics  *Metrics
	parser   *csharp.Parser
	checkers []resolve.TypeChecker

	chain *resolve.Chain
	aug   *augment.Augmenter
	last  *Result
}

// New creates an analyzer resolving against types and reading sources
// through locator.
func New(types *typesys.Registry, locator source.Locator, opts Options, options ...Option) (*Analyzer, error) {
	if types == nil || locator == nil {
		return nil, errors.New("analyzer: nil type registry or locator")
	}
	a := &Analyzer{types: types, locator: locator, opts: opts}
	for _, o := range options {
		o(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.parser == nil {
		a.parser = csharp.NewParser(csharp.WithLogger(a.logger))
	}

	checkers := append([]resolve.TypeChecker{resolve.NewScopeChecker(types, opts.Resolve)}, a.checkers...)
	a.chain = resolve.NewChain(types, opts.Resolve, a.logger, checkers...)
	aug, err := augment.New(locator, a.parser, types, a.chain, opts.Augment, a.logger)
	if err != nil {
		return nil, err
	}
	a.aug = aug
	return a, nil
}

// Analyze runs one pass over the hierarchy under roots. Per-object and
// per-type failures never fail the pass; only a nil host and cancellation
// of ctx are returned as errors.
func (a *Analyzer) Analyze(ctx context.Context, host scene.Host, roots []*scene.Entity) (*Result, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	ctx, span := startSpan(ctx, "analyzer.Analyze", attribute.Int("roots", len(roots)))
	defer span.End()

	sess := session.New(a.opts.MaxNodes, a.logger)
	span.SetAttributes(attribute.String("pass", sess.ID))
	before := a.chain.Stats()

	_, tspan := startSpan(ctx, "analyzer.traverse")
	eng := traverse.New(host, sess, a.opts.Traversal)
	eng.Run(roots)
	tstats := eng.Stats()
	tspan.SetAttributes(attribute.Int("visited", tstats.Visited), attribute.Int("cycles", tstats.Cycles))
	tspan.End()

	actx, aspan := startSpan(ctx, "analyzer.augment", attribute.Int("types", len(sess.DiscoveredTypes())))
	rep, astats, err := a.aug.Run(actx, sess)
	aspan.SetAttributes(attribute.Int("edges", astats.Edges), attribute.Int("unresolved", astats.Unresolved))
	aspan.End()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.metrics.record(nil, "canceled")
		return nil, err
	}

	res := &Result{
		Pass:        sess.ID,
		Nodes:       sess.Store.Nodes(),
		Edges:       sess.Store.Edges(),
		Report:      rep,
		Traversal:   tstats,
		Augment:     astats,
		Resolutions: diff(a.chain.Stats(), before),
		Exhausted:   sess.Store.Exhausted(),
		Duration:    time.Since(start),
	}
	span.SetAttributes(attribute.Int("nodes", len(res.Nodes)), attribute.Int("edges", len(res.Edges)))
	a.metrics.record(res, "ok")
	a.last = res

	sess.Logger.Info("analysis pass complete",
		slog.Int("nodes", len(res.Nodes)),
		slog.Int("edges", len(res.Edges)),
		slog.Int("unresolved", astats.Unresolved),
		slog.Bool("exhausted", res.Exhausted),
		slog.Duration("duration", res.Duration))
	return res, nil
}

// Last returns the result of the most recent completed pass.
func (a *Analyzer) Last() (*Result, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last, a.last != nil
}

func diff(after, before map[string]int) map[string]int {
	out := make(map[string]int)
	for k, v := range after {
		if d := v - before[k]; d > 0 {
			out[k] = d
		}
	}
	return out
}
