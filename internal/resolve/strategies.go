package resolve

import (
	"context"
	"strings"

	"refgraph/internal/typesys"
)

func lookup(reg *typesys.Registry, name string) *typesys.Type {
	name = strings.TrimSpace(name)
	if typesys.IsPlaceholderName(name) {
		return nil
	}
	t, ok := reg.ByExactName(name)
	if !ok {
		return nil
	}
	return t
}

// declaredType asks each checker for the declared type of the expression.
type declaredType struct {
	reg      *typesys.Registry
	checkers []TypeChecker
}

func (declaredType) Name() string { return "declared_type" }

func (s declaredType) Resolve(ctx context.Context, q Query) *typesys.Type {
	for _, c := range s.checkers {
		name, ok := c.DeclaredType(ctx, q)
		if !ok {
			continue
		}
		if t := lookup(s.reg, name); t != nil {
			return t
		}
		if arg, ok := typesys.FirstGenericArgument(name); ok && isCollection(name) {
			if t := lookup(s.reg, arg); t != nil {
				return t
			}
		}
	}
	return nil
}

// collections are container types whose element type stands for them.
var collections = map[string]bool{"List": true, "IList": true, "IEnumerable": true, "HashSet": true, "Queue": true, "Stack": true}

func isCollection(name string) bool {
	return collections[typesys.SegmentName(name)]
}

// exactName looks the text up as a simple or fully qualified type name.
type exactName struct{ reg *typesys.Registry }

func (exactName) Name() string { return "exact_name" }

func (s exactName) Resolve(_ context.Context, q Query) *typesys.Type {
	return lookup(s.reg, q.Text)
}

// singletonAccessor treats the segment before an accessor such as
// "Instance" as a type name.
type singletonAccessor struct {
	reg       *typesys.Registry
	accessors map[string]bool
}

func (singletonAccessor) Name() string { return "singleton_accessor" }

func (s singletonAccessor) Resolve(_ context.Context, q Query) *typesys.Type {
	segs := typesys.SplitPath(q.Text)
	for i := 1; i < len(segs); i++ {
		if !s.accessors[typesys.SegmentName(segs[i])] {
			continue
		}
		if t := lookup(s.reg, strings.Join(segs[:i], ".")); t != nil {
			return t
		}
		if t := lookup(s.reg, typesys.SegmentName(segs[i-1])); t != nil {
			return t
		}
	}
	return nil
}

// trailingStatic treats everything but the last segment as a type name,
// covering StaticType.SomeField.
type trailingStatic struct{ reg *typesys.Registry }

func (trailingStatic) Name() string { return "trailing_static" }

func (s trailingStatic) Resolve(_ context.Context, q Query) *typesys.Type {
	segs := typesys.SplitPath(q.Text)
	if len(segs) < 2 {
		return nil
	}
	return lookup(s.reg, strings.Join(segs[:len(segs)-1], "."))
}

// genericArgument resolves the first type argument of the first <...>.
type genericArgument struct{ reg *typesys.Registry }

func (genericArgument) Name() string { return "generic_argument" }

func (s genericArgument) Resolve(_ context.Context, q Query) *typesys.Type {
	arg, ok := typesys.FirstGenericArgument(q.Text)
	if !ok {
		return nil
	}
	return lookup(s.reg, arg)
}

// keywordTable maps a handful of well-known field names to types.
type keywordTable struct {
	reg      *typesys.Registry
	keywords map[string]string
}

func (keywordTable) Name() string { return "keyword_table" }

func (s keywordTable) Resolve(_ context.Context, q Query) *typesys.Type {
	segs := typesys.SplitPath(q.Text)
	if len(segs) == 0 {
		return nil
	}
	name, ok := s.keywords[typesys.SegmentName(segs[len(segs)-1])]
	if !ok {
		return nil
	}
	return lookup(s.reg, name)
}
