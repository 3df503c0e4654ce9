package typesys

import (
	"strings"
	"sync"
)

// maxBaseDepth bounds base-type walks so a malformed inheritance cycle
// cannot loop forever.
const maxBaseDepth = 32

// Registry holds every loaded type. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byFull map[string]*Type
	byName map[string][]*Type
	order  []*Type
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byFull: make(map[string]*Type),
		byName: make(map[string][]*Type),
	}
}

// Add registers t. When a type with the same full name already exists the
// two are merged into a new instance that replaces it, and that instance is
// returned. A registered *Type is never modified, so callers may read it
// without holding the registry lock.
func (r *Registry) Add(t *Type) *Type {
	if t == nil || t.Name == "" {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	full := t.FullName()
	if existing, ok := r.byFull[full]; ok {
		merged := merge(existing, t)
		r.replace(existing, merged)
		return merged
	}

	r.byFull[full] = t
	r.byName[t.Name] = append(r.byName[t.Name], t)
	r.order = append(r.order, t)
	return t
}

// replace swaps old for t in every index. Callers hold the write lock.
func (r *Registry) replace(old, t *Type) {
	r.byFull[t.FullName()] = t
	names := make([]*Type, len(r.byName[t.Name]))
	for i, c := range r.byName[t.Name] {
		if c == old {
			c = t
		}
		names[i] = c
	}
	r.byName[t.Name] = names
	for i, c := range r.order {
		if c == old {
			r.order[i] = t
		}
	}
}

// merge returns a copy of dst extended with what src adds.
func merge(existing, src *Type) *Type {
	dst := *existing
	dst.Members = append([]Member(nil), existing.Members...)
	dst.Sources = append([]string(nil), existing.Sources...)
	if dst.Base == "" {
		dst.Base = src.Base
	}
	if dst.Kind == KindClass && src.Kind != KindClass {
		dst.Kind = src.Kind
	}
	for _, m := range src.Members {
		if _, ok := dst.Member(m.Name); !ok {
			dst.Members = append(dst.Members, m)
		}
	}
	for _, s := range src.Sources {
		if !contains(dst.Sources, s) {
			dst.Sources = append(dst.Sources, s)
		}
	}
	return &dst
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// AllTypes returns every registered type in registration order.
func (r *Registry) AllTypes() []*Type {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Type, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered types.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ByFullName looks a type up by its namespace-qualified name.
func (r *Registry) ByFullName(full string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byFull[full]
	return t, ok
}

// ByExactName resolves a fully-qualified name first, then a simple name.
// A simple name shared by several namespaces is ambiguous and returns false.
// The "global::" alias prefix is ignored.
func (r *Registry) ByExactName(name string) (*Type, bool) {
	name = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(name), "global::"))
	if name == "" {
		return nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if t, ok := r.byFull[name]; ok {
		return t, true
	}
	candidates := r.byName[name]
	if len(candidates) == 1 {
		return candidates[0], true
	}
	return nil, false
}

// LookupMember finds name on t or one of its registered base types. It
// returns the member and the type declaring it.
func (r *Registry) LookupMember(t *Type, name string) (Member, *Type, bool) {
	for depth := 0; t != nil && depth < maxBaseDepth; depth++ {
		if m, ok := t.Member(name); ok {
			return m, t, true
		}
		if t.Base == "" {
			break
		}
		next, ok := r.ByExactName(t.Base)
		if !ok || next == t {
			break
		}
		t = next
	}
	return Member{}, nil, false
}

// IsA reports whether t is, or derives from, a type named base.
func (r *Registry) IsA(t *Type, base string) bool {
	for depth := 0; t != nil && depth < maxBaseDepth; depth++ {
		if t.Name == base || t.FullName() == base {
			return true
		}
		if t.Base == "" {
			return false
		}
		next, ok := r.ByExactName(t.Base)
		if !ok || next == t {
			return t.Base == base
		}
		t = next
	}
	return false
}
