package graph

import (
	"fmt"

	"refgraph/internal/scene"
)

// Relation describes how a node is reached from its parent.
type Relation struct {
	Category Category
	// Asset marks a reference into a shared data asset.
	Asset      bool
	Annotation string
}

type edgeKey struct {
	from, to ID
	kind     EdgeKind
}

// Store deduplicates nodes by identity and edges by (from, to, kind).
type Store struct {
	reg      *Registry
	maxNodes int

	nodes     map[ID]*Node
	order     []*Node
	edges     []Edge
	edgeIndex map[edgeKey]int
	exhausted bool
}

// NewStore creates a store over reg. maxNodes <= 0 disables the cap.
func NewStore(reg *Registry, maxNodes int) *Store {
	if reg == nil {
		panic("graph: nil registry")
	}
	return &Store{
		reg:       reg,
		maxNodes:  maxNodes,
		nodes:     make(map[ID]*Node),
		edgeIndex: make(map[edgeKey]int),
	}
}

// Registry returns the identity registry backing the store.
func (s *Store) Registry() *Registry { return s.reg }

// GetOrCreate returns the node for obj, creating it if needed, and connects
// parent to it when parent is non-nil. Once the cap is reached creation is
// refused with ErrNodeBudgetExhausted; existing nodes are still returned and
// connected.
func (s *Store) GetOrCreate(obj scene.Object, depth int, parent *Node, rel Relation) (*Node, error) {
	if obj == nil {
		return nil, ErrNilObject
	}
	id := s.reg.IdentityOf(obj)
	n, ok := s.nodes[id]
	if !ok {
		if !s.canCreate() {
			return nil, fmt.Errorf("%w: %s", ErrNodeBudgetExhausted, obj.DisplayName())
		}
		n = &Node{
			ID:       id,
			Label:    obj.DisplayName(),
			Kind:     NodeKindOf(obj),
			TypeName: obj.TypeName(),
			Depth:    depth,
			Object:   obj,
		}
		s.add(n)
	}
	if parent != nil {
		s.Connect(parent, n, rel, depth)
	}
	return n, nil
}

// GetOrCreateVirtual returns the virtual node standing for a type.
func (s *Store) GetOrCreateVirtual(fullName, label string, depth int) (*Node, error) {
	id := s.reg.TypeIdentity(fullName)
	if n, ok := s.nodes[id]; ok {
		return n, nil
	}
	if !s.canCreate() {
		return nil, fmt.Errorf("%w: virtual %s", ErrNodeBudgetExhausted, fullName)
	}
	if label == "" {
		label = fullName
	}
	n := &Node{ID: id, Label: label, Kind: NodeVirtual, TypeName: fullName, Depth: depth}
	s.add(n)
	return n, nil
}

func (s *Store) canCreate() bool {
	if s.maxNodes > 0 && len(s.order) >= s.maxNodes {
		s.exhausted = true
		return false
	}
	return true
}

func (s *Store) add(n *Node) {
	s.nodes[n.ID] = n
	s.order = append(s.order, n)
}

// Connect adds an edge from -> to. Re-asserting an edge of the same kind
// between the same ordered pair keeps a single edge at the shallower depth
// and reports false; edges of different kinds are additive.
func (s *Store) Connect(from, to *Node, rel Relation, depth int) (Edge, bool) {
	style := Classify(from.Kind, rel.Asset, rel.Category, depth)
	key := edgeKey{from: from.ID, to: to.ID, kind: style.Kind}
	if i, ok := s.edgeIndex[key]; ok {
		e := &s.edges[i]
		if depth < e.Depth {
			e.Depth, e.Color, e.Width = depth, style.Color, style.Width
		}
		if e.Annotation == "" {
			e.Annotation = rel.Annotation
		}
		return *e, false
	}
	e := Edge{
		From:       from.ID,
		To:         to.ID,
		Kind:       style.Kind,
		Depth:      depth,
		Color:      style.Color,
		Width:      style.Width,
		Annotation: rel.Annotation,
	}
	s.edgeIndex[key] = len(s.edges)
	s.edges = append(s.edges, e)
	return e, true
}

// NodeFor returns the node already created for obj.
func (s *Store) NodeFor(obj scene.Object) (*Node, bool) {
	id, ok := s.reg.Lookup(obj)
	if !ok {
		return nil, false
	}
	n, ok := s.nodes[id]
	return n, ok
}

// Node returns the node with the given identity.
func (s *Store) Node(id ID) (*Node, bool) {
	n, ok := s.nodes[id]
	return n, ok
}

// HasEdge reports whether an edge of kind exists from -> to.
func (s *Store) HasEdge(from, to ID, kind EdgeKind) bool {
	_, ok := s.edgeIndex[edgeKey{from: from, to: to, kind: kind}]
	return ok
}

// Nodes returns the nodes in creation order.
func (s *Store) Nodes() []*Node {
	out := make([]*Node, len(s.order))
	copy(out, s.order)
	return out
}

// Edges returns a copy of the edges in insertion order.
func (s *Store) Edges() []Edge {
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Len returns the number of nodes created.
func (s *Store) Len() int { return len(s.order) }

// Full reports whether the cap has been reached.
func (s *Store) Full() bool {
	return s.maxNodes > 0 && len(s.order) >= s.maxNodes
}

// Exhausted reports whether a creation has been refused.
func (s *Store) Exhausted() bool { return s.exhausted }
