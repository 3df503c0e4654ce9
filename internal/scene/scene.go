package scene

// Scene is an in-memory Host over a set of root entities. Behavior fields
// combine the explicit Fields list with the exported fields of Data;
// asset properties combine Properties with Data's serialized state.
type Scene struct {
	Roots  []*Entity
	Assets []*Asset
}

// New creates a scene with the given roots.
func New(roots ...*Entity) *Scene {
	return &Scene{Roots: roots}
}

func (s *Scene) Children(e *Entity) []*Entity    { return e.Children() }
func (s *Scene) Behaviors(e *Entity) []*Behavior { return e.Behaviors() }

func (s *Scene) ObjectFields(b *Behavior) ([]Field, error) {
	fields := append([]Field(nil), b.Fields...)
	return append(fields, ReflectFields(b.Data, false)...), nil
}

func (s *Scene) AssetProperties(a *Asset) ([]Field, error) {
	props := append([]Field(nil), a.Properties...)
	return append(props, ReflectFields(a.Data, true)...), nil
}

// Walk visits every entity under the roots depth-first.
func (s *Scene) Walk(fn func(e *Entity)) {
	stack := make([]*Entity, 0, len(s.Roots))
	for i := len(s.Roots) - 1; i >= 0; i-- {
		stack = append(stack, s.Roots[i])
	}
	for len(stack) > 0 {
		e := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		fn(e)
		kids := e.Children()
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, kids[i])
		}
	}
}
