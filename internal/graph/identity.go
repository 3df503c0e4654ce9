package graph

import "refgraph/internal/scene"

// Registry assigns stable identities for one pass. Assets draw from a
// descending negative counter; entities, behaviors and virtual types share
// an ascending non-negative one, so the sign alone tells the spaces apart.
type Registry struct {
	objects   map[scene.Object]ID
	types     map[string]ID
	nextAsset ID
	nextLive  ID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		objects:   make(map[scene.Object]ID),
		types:     make(map[string]ID),
		nextAsset: -1,
	}
}

// IdentityOf returns obj's identity, allocating one on first sight.
func (r *Registry) IdentityOf(obj scene.Object) ID {
	if id, ok := r.objects[obj]; ok {
		return id
	}
	var id ID
	if obj.Kind() == scene.KindAsset {
		id = r.nextAsset
		r.nextAsset--
	} else {
		id = r.nextLive
		r.nextLive++
	}
	r.objects[obj] = id
	return id
}

// Lookup returns obj's identity without allocating.
func (r *Registry) Lookup(obj scene.Object) (ID, bool) {
	id, ok := r.objects[obj]
	return id, ok
}

// TypeIdentity returns the identity of the virtual node for a type full name.
func (r *Registry) TypeIdentity(fullName string) ID {
	if id, ok := r.types[fullName]; ok {
		return id
	}
	id := r.nextLive
	r.nextLive++
	r.types[fullName] = id
	return id
}

// Len returns the number of identities handed out.
func (r *Registry) Len() int { return len(r.objects) + len(r.types) }

// IsAssetID reports whether id belongs to the asset space.
func IsAssetID(id ID) bool { return id < 0 }
