package graph

import (
	"fmt"

	"refgraph/internal/scene"
)

// ID is a node identity. Asset identities are negative; entity, behavior
// and virtual type identities are non-negative.
type ID int64

// NodeKind is the category of a graph node.
type NodeKind int

const (
	NodeEntity NodeKind = iota
	NodeBehavior
	NodeDataAsset
	// NodeVirtual represents a type seen only in source, with no live instance.
	NodeVirtual
)

var nodeKindNames = [...]string{"entity", "behavior", "asset", "virtual"}

func (k NodeKind) String() string {
	if k < 0 || int(k) >= len(nodeKindNames) {
		return "unknown"
	}
	return nodeKindNames[k]
}

func (k NodeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseNodeKind is the inverse of NodeKind.String.
func ParseNodeKind(s string) (NodeKind, bool) {
	for i, name := range nodeKindNames {
		if name == s {
			return NodeKind(i), true
		}
	}
	return 0, false
}

// NodeKindOf maps a live object to the kind of node that represents it.
func NodeKindOf(obj scene.Object) NodeKind {
	switch obj.(type) {
	case *scene.Entity:
		return NodeEntity
	case *scene.Behavior:
		return NodeBehavior
	case *scene.Asset:
		return NodeDataAsset
	}
	panic(fmt.Sprintf("graph: unexpected object type %T", obj))
}

// EdgeKind is the semantic tag of an edge.
type EdgeKind int

const (
	EdgeStructural EdgeKind = iota
	EdgeComponentOwnership
	EdgeDataReference
	EdgeCycleBack
	EdgeDynamicReference
	EdgeEventSubscription
	EdgeEventInvocation
)

var edgeKindNames = [...]string{
	"structural",
	"component_ownership",
	"data_reference",
	"cycle_back",
	"dynamic_reference",
	"event_subscription",
	"event_invocation",
}

func (k EdgeKind) String() string {
	if k < 0 || int(k) >= len(edgeKindNames) {
		return "unknown"
	}
	return edgeKindNames[k]
}

func (k EdgeKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// ParseEdgeKind is the inverse of EdgeKind.String.
func ParseEdgeKind(s string) (EdgeKind, bool) {
	for i, name := range edgeKindNames {
		if name == s {
			return EdgeKind(i), true
		}
	}
	return 0, false
}

// SourceInferred reports whether edges of this kind come from static source
// analysis rather than the live hierarchy.
func (k EdgeKind) SourceInferred() bool {
	return k == EdgeDynamicReference || k == EdgeEventSubscription || k == EdgeEventInvocation
}

// Category is the relationship that produced an edge, before classification.
type Category int

const (
	CategoryHierarchy Category = iota
	CategoryOwnership
	CategoryReference
	CategoryCycle
	CategoryDynamic
	CategorySubscription
	CategoryInvocation
)

// Color is an 8-bit RGBA color.
type Color struct {
	R, G, B, A uint8
}

// Hex returns the color as #rrggbbaa.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.Hex()), nil }

// ParseColor parses the #rrggbbaa form produced by Hex.
func ParseColor(s string) (Color, error) {
	var c Color
	if len(s) != 9 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	if _, err := fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A); err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

// Node is one vertex of the reference graph.
type Node struct {
	ID       ID       `json:"id"`
	Label    string   `json:"label"`
	Kind     NodeKind `json:"kind"`
	TypeName string   `json:"type_name"`
	Depth    int      `json:"depth"`
	// Object is nil for virtual nodes.
	Object scene.Object `json:"-"`
}

// Edge is a directed relationship between two nodes.
type Edge struct {
	From       ID       `json:"from"`
	To         ID       `json:"to"`
	Kind       EdgeKind `json:"kind"`
	Depth      int      `json:"depth"`
	Color      Color    `json:"color"`
	Width      float64  `json:"width"`
	Annotation string   `json:"annotation,omitempty"`
}
