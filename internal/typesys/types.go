// Package typesys is the type-system view used by type resolution: every type
// known to the analysis (engine types, snapshot types, types declared in
// indexed source) with enough member information to walk access paths.
package typesys

import (
	"strings"
)

// Kind classifies a type.
type Kind int

const (
	KindClass Kind = iota
	KindBehavior
	KindAsset
	KindDelegate
	KindInterface
	KindStruct
	KindEnum
)

var kindNames = map[Kind]string{
	KindClass:     "class",
	KindBehavior:  "behavior",
	KindAsset:     "asset",
	KindDelegate:  "delegate",
	KindInterface: "interface",
	KindStruct:    "struct",
	KindEnum:      "enum",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "class"
}

// ParseKind maps a kind name back to a Kind. Unknown names map to KindClass.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if strings.EqualFold(name, s) {
			return k
		}
	}
	return KindClass
}

// MemberKind classifies a type member.
type MemberKind int

const (
	MemberField MemberKind = iota
	MemberProperty
	MemberMethod
	MemberEvent
)

// Member is a field, property, method or event of a type. For methods
// TypeName is the return type.
type Member struct {
	Name     string     `yaml:"name" json:"name"`
	TypeName string     `yaml:"type" json:"type"`
	Kind     MemberKind `yaml:"-" json:"kind"`
	Static   bool       `yaml:"static,omitempty" json:"static,omitempty"`
	Event    bool       `yaml:"event,omitempty" json:"event,omitempty"`
}

// IsDelegate reports whether the member holds a delegate (event or
// delegate-typed field/property).
func (m Member) IsDelegate() bool {
	return m.Event || m.Kind == MemberEvent || IsDelegateTypeName(m.TypeName)
}

// Type is a named type.
type Type struct {
	Name      string
	Namespace string
	Base      string
	Kind      Kind
	Members   []Member
	// Sources lists files declaring the type (several for partial classes).
	Sources []string
}

// FullName returns the namespace-qualified name.
func (t *Type) FullName() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// Member finds a member declared directly on the type.
func (t *Type) Member(name string) (Member, bool) {
	for _, m := range t.Members {
		if m.Name == name {
			return m, true
		}
	}
	return Member{}, false
}

// delegateTypes are the well-known delegate families recognised by name.
var delegateTypes = map[string]bool{
	"Action":            true,
	"Func":              true,
	"Predicate":         true,
	"EventHandler":      true,
	"UnityEvent":        true,
	"UnityAction":       true,
	"Delegate":          true,
	"MulticastDelegate": true,
}

// IsDelegateTypeName reports whether a syntactic type name denotes a delegate
// type: Action, Func<...>, UnityEvent<T>, EventHandler and friends, or any
// name ending in "Handler", "Callback" or "Delegate".
func IsDelegateTypeName(name string) bool {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, "?")
	if i := strings.IndexByte(name, '<'); i >= 0 {
		name = name[:i]
	}
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if delegateTypes[name] {
		return true
	}
	return strings.HasSuffix(name, "Handler") || strings.HasSuffix(name, "Callback") || strings.HasSuffix(name, "Delegate")
}

// placeholderNames are catch-all types that carry no relationship
// information. Resolution never produces them.
var placeholderNames = map[string]bool{
	"":              true,
	"object":        true,
	"Object":        true,
	"System.Object": true,
	"dynamic":       true,
	"var":           true,
	"void":          true,
}

// IsPlaceholderName reports whether name is a generic/unknown placeholder.
func IsPlaceholderName(name string) bool {
	return placeholderNames[strings.TrimSpace(name)]
}

// IsPlaceholder reports whether t is a placeholder type.
func IsPlaceholder(t *Type) bool {
	return t == nil || IsPlaceholderName(t.Name) || IsPlaceholderName(t.FullName())
}
