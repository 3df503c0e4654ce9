// Package resolve maps syntactic type names and dotted access paths to
// concrete types. Resolution is an ordered chain of strategies; the first
// one that yields a concrete type wins. A placeholder type is never
// returned: an unresolved reference is reported as such and dropped by the
// caller.
package resolve

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"refgraph/internal/typesys"
)

// Scope exposes the declarations visible where an expression appears.
type Scope interface {
	Lookup(name string) (string, bool)
	// Self is the full name of the enclosing type.
	Self() string
}

// Query is one resolution request.
type Query struct {
	// Text is a type name or a dotted access path.
	Text string
	// File and Line locate the expression for position-based checkers.
	File  string
	Line  int
	Scope Scope
}

// TypeChecker reports the declared type of an expression, as a type name.
type TypeChecker interface {
	DeclaredType(ctx context.Context, q Query) (string, bool)
}

// Strategy is one step of the chain. Resolve returns nil when it does not
// apply.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, q Query) *typesys.Type
}

// Result is the outcome of a resolution. Type is nil when unresolved.
type Result struct {
	Type     *typesys.Type
	Strategy string
}

// Resolved reports whether a concrete type was found.
func (r Result) Resolved() bool { return r.Type != nil }

// Options configures the heuristic strategies.
type Options struct {
	// SingletonAccessors are path segments marking the preceding segment as
	// a type name.
	SingletonAccessors []string
	// Keywords maps well-known field names to type names.
	Keywords map[string]string
}

// DefaultOptions returns the built-in accessor names and keyword table.
func DefaultOptions() Options {
	return Options{
		SingletonAccessors: []string{"Instance", "Current", "Singleton", "Service", "Services"},
		Keywords: map[string]string{
			"transform":  "Transform",
			"gameObject": "GameObject",
			"rigidbody":  "Rigidbody",
			"camera":     "Camera",
			"audio":      "AudioSource",
		},
	}
}

// Chain runs strategies in order.
type Chain struct {
	strategies []Strategy
	logger     *slog.Logger

	mu    sync.Mutex
	stats map[string]int
}

// NewChain builds the standard chain over reg: declared type (using the
// given checkers, in order), exact name, singleton accessor, trailing static
// member, generic argument and keyword table.
func NewChain(reg *typesys.Registry, opts Options, logger *slog.Logger, checkers ...TypeChecker) *Chain {
	if reg == nil {
		panic("resolve: nil registry")
	}
	if logger == nil {
		logger = slog.Default()
	}
	accessors := make(map[string]bool, len(opts.SingletonAccessors))
	for _, a := range opts.SingletonAccessors {
		accessors[a] = true
	}
	return NewChainOf(logger,
		declaredType{reg: reg, checkers: checkers},
		exactName{reg: reg},
		singletonAccessor{reg: reg, accessors: accessors},
		trailingStatic{reg: reg},
		genericArgument{reg: reg},
		keywordTable{reg: reg, keywords: opts.Keywords},
	)
}

// NewChainOf builds a chain from explicit strategies.
func NewChainOf(logger *slog.Logger, strategies ...Strategy) *Chain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chain{strategies: strategies, logger: logger, stats: make(map[string]int)}
}

// Resolve runs the chain. Placeholder types from any strategy are skipped.
func (c *Chain) Resolve(ctx context.Context, q Query) Result {
	q.Text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(q.Text), "global::"))
	if q.Text == "" {
		c.count("unresolved")
		return Result{}
	}
	for _, s := range c.strategies {
		if ctx.Err() != nil {
			break
		}
		t := s.Resolve(ctx, q)
		if t == nil || typesys.IsPlaceholder(t) {
			continue
		}
		c.count(s.Name())
		return Result{Type: t, Strategy: s.Name()}
	}
	c.count("unresolved")
	c.logger.Debug("unresolved reference", slog.String("text", q.Text), slog.String("file", q.File), slog.Int("line", q.Line))
	return Result{}
}

func (c *Chain) count(name string) {
	c.mu.Lock()
	c.stats[name]++
	c.mu.Unlock()
}

// Stats returns how often each strategy won, plus "unresolved".
func (c *Chain) Stats() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.stats))
	for k, v := range c.stats {
		out[k] = v
	}
	return out
}

// Strategies lists the strategy names in order.
func (c *Chain) Strategies() []string {
	names := make([]string, len(c.strategies))
	for i, s := range c.strategies {
		names[i] = s.Name()
	}
	return names
}
