// Package csharp is the syntax layer of source augmentation. It parses C#
// behavior sources with tree-sitter and extracts the declarations needed for
// in-file type checking plus the code-only relationships: component
// acquisition, event declarations, event subscriptions and invocations.
package csharp

import (
	"errors"

	"refgraph/internal/typesys"
)

// ErrParseFailed is returned when a source file does not yield a usable
// syntax tree.
var ErrParseFailed = errors.New("parse failed")

// File is the extraction result for one source file.
type File struct {
	Path    string
	Classes []*Class
	// Errors lists syntax errors tolerated while extracting.
	Errors []string
}

// Class returns the first class declared in the file with the given simple
// name.
func (f *File) Class(name string) (*Class, bool) {
	for _, c := range f.Classes {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// Class is a type declaration and everything found inside its body.
// Nested types are separate Class values.
type Class struct {
	Name      string
	Namespace string
	Kind      typesys.Kind
	Bases     []string
	Line      int
	EndLine   int

	Fields  []Field
	Methods []*Method

	Acquisitions  []Acquisition
	Events        []EventDecl
	Subscriptions []Subscription
	Invocations   []Invocation
}

// FullName returns the namespace-qualified name.
func (c *Class) FullName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

// Field is a field, property, event, parameter or local declaration.
type Field struct {
	Name   string
	Type   string
	Kind   typesys.MemberKind
	Static bool
	Line   int
}

// Method is a method or constructor with its parameters and locals.
type Method struct {
	Name       string
	ReturnType string
	Static     bool
	Params     []Field
	Locals     []Field
	Line       int
	EndLine    int
	body       string
}

// AcquireScope says where a dynamic acquisition looks for its component.
type AcquireScope int

const (
	// AcquireSelf targets the calling behavior's own entity.
	AcquireSelf AcquireScope = iota
	AcquireChildren
	AcquireParent
	// AcquireGlobal searches the whole hierarchy.
	AcquireGlobal
)

// Acquisition is a dynamic component acquire-or-create site, or a
// RequireComponent attribute on the class.
type Acquisition struct {
	Method   string
	TypeName string
	Receiver string
	Scope    AcquireScope
	// Caller is the enclosing method, empty for attributes.
	Caller string
	Line   int
}

// EventDecl is a delegate-typed field or an event.
type EventDecl struct {
	Name    string
	Type    string
	IsEvent bool
	Static  bool
	// Invoker is the first method whose body invokes the delegate.
	Invoker string
	Line    int
}

// Pattern classifies how a subscription reaches its event.
type Pattern int

const (
	PatternDirect Pattern = iota
	PatternIndirect
	PatternConditionalIndirect
)

func (p Pattern) String() string {
	switch p {
	case PatternIndirect:
		return "indirect"
	case PatternConditionalIndirect:
		return "conditional-indirect"
	default:
		return "direct"
	}
}

// Subscription is a += or -= on an event-shaped left-hand side.
type Subscription struct {
	// Target is the left-hand side path, e.g. "Locator.Instance.bus.OnHit".
	Target string
	Event  string
	// OwnerPath is the expression whose type declares the event. It is
	// empty when the event is reached without a prefix. A guard that names
	// the same root supplies the longer path.
	OwnerPath   string
	Handler     string
	Unsubscribe bool
	Pattern     Pattern
	Guard       string
	Caller      string
	Line        int
}

// InvokeVia says how an invocation was written.
type InvokeVia int

const (
	// ViaInvoke is a delegate .Invoke() or ?.Invoke() call.
	ViaInvoke InvokeVia = iota
	// ViaPrefixedMethod is a call to a Raise*/Trigger*/Fire*/Invoke* method.
	ViaPrefixedMethod
)

// Invocation is an event invocation site.
type Invocation struct {
	// Target is the delegate or method path without the call,
	// e.g. "bus.OnHit" or "Locator.Instance.RaiseScored".
	Target string
	Member string
	// Receiver is Target without its last segment.
	Receiver    string
	Via         InvokeVia
	Conditional bool
	Indirect    bool
	Caller      string
	Line        int
}

// ToType converts a class declaration into a type-system entry.
func (c *Class) ToType(path string) *typesys.Type {
	t := &typesys.Type{
		Name:      c.Name,
		Namespace: c.Namespace,
		Kind:      c.Kind,
	}
	if len(c.Bases) > 0 {
		t.Base = c.Bases[0]
	}
	if path != "" {
		t.Sources = []string{path}
	}
	for _, f := range c.Fields {
		t.Members = append(t.Members, typesys.Member{
			Name:     f.Name,
			TypeName: f.Type,
			Kind:     f.Kind,
			Static:   f.Static,
			Event:    f.Kind == typesys.MemberEvent,
		})
	}
	for _, m := range c.Methods {
		if m.Name == c.Name {
			continue
		}
		t.Members = append(t.Members, typesys.Member{
			Name:     m.Name,
			TypeName: m.ReturnType,
			Kind:     typesys.MemberMethod,
			Static:   m.Static,
		})
	}
	return t
}
