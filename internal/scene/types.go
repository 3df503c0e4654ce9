// Package scene models the live object hierarchy the analysis walks:
// entities arranged in a tree, behaviors attached to them and shared data
// assets referenced from behavior fields.
//
// Object is a closed union. Only *Entity, *Behavior and *Asset implement it,
// so a type switch over the three is exhaustive.
package scene

import "errors"

var (
	// ErrFieldAccess is reported for a field whose value could not be read.
	ErrFieldAccess = errors.New("field access failed")

	// ErrDanglingReference is reported for a snapshot field that names an
	// object id missing from the snapshot.
	ErrDanglingReference = errors.New("dangling object reference")
)

// Kind is the category of a live object.
type Kind int

const (
	KindEntity Kind = iota
	KindBehavior
	KindAsset
)

func (k Kind) String() string {
	switch k {
	case KindEntity:
		return "entity"
	case KindBehavior:
		return "behavior"
	case KindAsset:
		return "asset"
	default:
		return "unknown"
	}
}

// Object is a live source object with identity.
type Object interface {
	Kind() Kind
	// DisplayName is the label shown for the object's node.
	DisplayName() string
	// TypeName is the object's runtime type name.
	TypeName() string

	sealed()
}

// IsNil reports whether obj is nil or a typed nil pointer, as left behind
// by an unassigned reference.
func IsNil(obj Object) bool {
	switch o := obj.(type) {
	case nil:
		return true
	case *Entity:
		return o == nil
	case *Behavior:
		return o == nil
	case *Asset:
		return o == nil
	}
	return false
}

// Entity is a hierarchy container. It owns its children and behaviors.
type Entity struct {
	Name string
	// Generated marks objects created by graph visualization itself; the
	// traversal refuses to walk them if they are fed back in.
	Generated bool

	parent    *Entity
	children  []*Entity
	behaviors []*Behavior
}

// NewEntity creates a detached entity.
func NewEntity(name string) *Entity {
	return &Entity{Name: name}
}

// AddChild attaches child under e and returns the child.
func (e *Entity) AddChild(child *Entity) *Entity {
	child.parent = e
	e.children = append(e.children, child)
	return child
}

// AddBehavior attaches a behavior of the given type. data, when non-nil, is
// the Go value whose fields are reflected for object references.
func (e *Entity) AddBehavior(typeName string, data any) *Behavior {
	b := &Behavior{Type: typeName, Data: data, owner: e}
	e.behaviors = append(e.behaviors, b)
	return b
}

func (e *Entity) Parent() *Entity        { return e.parent }
func (e *Entity) Children() []*Entity    { return e.children }
func (e *Entity) Behaviors() []*Behavior { return e.behaviors }

func (e *Entity) Kind() Kind          { return KindEntity }
func (e *Entity) DisplayName() string { return e.Name }
func (e *Entity) TypeName() string    { return "GameObject" }
func (e *Entity) sealed()             {}

// Path returns the slash-separated hierarchy path of e.
func (e *Entity) Path() string {
	if e.parent == nil {
		return e.Name
	}
	return e.parent.Path() + "/" + e.Name
}

// Behavior is a logic component attached to exactly one entity.
type Behavior struct {
	Type string
	// Fields are explicit object-valued fields, as captured by a snapshot.
	Fields []Field
	// Data is an optional Go value reflected for further fields.
	Data any

	owner *Entity
}

// Owner returns the entity the behavior is attached to.
func (b *Behavior) Owner() *Entity { return b.owner }

// Set appends an explicit object-valued field and returns b.
func (b *Behavior) Set(name string, target Object) *Behavior {
	b.Fields = append(b.Fields, Field{Name: name, Target: target})
	return b
}

func (b *Behavior) Kind() Kind { return KindBehavior }
func (b *Behavior) DisplayName() string {
	if b.owner == nil {
		return b.Type
	}
	return b.owner.Name + "." + b.Type
}
func (b *Behavior) TypeName() string { return b.Type }
func (b *Behavior) sealed()          {}

// Asset is a shared, non-hierarchy object.
type Asset struct {
	Name string
	Type string
	// Properties are serialized object-valued properties.
	Properties []Field
	// Data is an optional Go value reflected for serialized state, including
	// unexported fields tagged `refgraph:"serialize"`.
	Data any
}

// NewAsset creates an asset.
func NewAsset(name, typeName string) *Asset {
	return &Asset{Name: name, Type: typeName}
}

// Set appends a serialized object-valued property and returns a.
func (a *Asset) Set(name string, target Object) *Asset {
	a.Properties = append(a.Properties, Field{Name: name, Target: target})
	return a
}

func (a *Asset) Kind() Kind          { return KindAsset }
func (a *Asset) DisplayName() string { return a.Name }
func (a *Asset) TypeName() string    { return a.Type }
func (a *Asset) sealed()             {}

// Field is one object-valued field or serialized property. Err is set when
// the value could not be read; Target is then nil.
type Field struct {
	Name   string
	Target Object
	Err    error
}

// Host exposes the live hierarchy primitives the traversal consumes.
type Host interface {
	Children(e *Entity) []*Entity
	Behaviors(e *Entity) []*Behavior
	ObjectFields(b *Behavior) ([]Field, error)
	AssetProperties(a *Asset) ([]Field, error)
}
