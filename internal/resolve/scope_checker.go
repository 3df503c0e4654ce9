package resolve

import (
	"context"

	"refgraph/internal/typesys"
)

// ScopeChecker is the in-file type checker. It types the first segment of
// a path from the enclosing scope (locals, parameters, members of the
// enclosing type and its bases) or as a static type reference, then walks
// the remaining segments through registry member information.
type ScopeChecker struct {
	reg       *typesys.Registry
	accessors map[string]bool
}

// NewScopeChecker creates a checker over reg. Singleton accessors missing
// from a type's member list are assumed to return the type itself.
func NewScopeChecker(reg *typesys.Registry, opts Options) *ScopeChecker {
	accessors := make(map[string]bool, len(opts.SingletonAccessors))
	for _, a := range opts.SingletonAccessors {
		accessors[a] = true
	}
	return &ScopeChecker{reg: reg, accessors: accessors}
}

func (c *ScopeChecker) DeclaredType(_ context.Context, q Query) (string, bool) {
	segs := typesys.SplitPath(q.Text)
	if len(segs) == 0 {
		return "", false
	}
	cur, ok := c.first(q, typesys.SegmentName(segs[0]), len(segs) > 1)
	if !ok {
		return "", false
	}
	for _, seg := range segs[1:] {
		t, ok := c.reg.ByExactName(cur)
		if !ok {
			return "", false
		}
		name := typesys.SegmentName(seg)
		m, _, ok := c.reg.LookupMember(t, name)
		switch {
		case ok:
			cur = m.TypeName
		case c.accessors[name]:
			cur = t.FullName()
		default:
			return "", false
		}
		if typesys.IsPlaceholderName(cur) {
			return "", false
		}
	}
	return cur, !typesys.IsPlaceholderName(cur)
}

// first types the leading segment. A bare type name is only accepted as a
// static receiver, never as a whole expression.
func (c *ScopeChecker) first(q Query, name string, static bool) (string, bool) {
	if q.Scope != nil {
		if typ, ok := q.Scope.Lookup(name); ok {
			return typ, true
		}
		if self, ok := c.reg.ByExactName(q.Scope.Self()); ok {
			if m, _, ok := c.reg.LookupMember(self, name); ok {
				return m.TypeName, true
			}
		}
	}
	if !static {
		return "", false
	}
	if t, ok := c.reg.ByExactName(name); ok {
		return t.FullName(), true
	}
	return "", false
}
