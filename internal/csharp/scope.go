package csharp

// Scope is the set of declarations visible at one source position: the
// enclosing method's locals and parameters, then the enclosing class's
// members.
type Scope struct {
	Class  *Class
	Method *Method
}

// ScopeAt returns the innermost class and method enclosing line. When line
// is zero the first class of the file is used with no method.
func (f *File) ScopeAt(line int) Scope {
	var s Scope
	for _, c := range f.Classes {
		if line == 0 {
			return Scope{Class: c}
		}
		if line < c.Line || line > c.EndLine {
			continue
		}
		if s.Class == nil || c.Line >= s.Class.Line {
			s.Class = c
		}
	}
	if s.Class == nil {
		return s
	}
	for _, m := range s.Class.Methods {
		if line >= m.Line && line <= m.EndLine {
			s.Method = m
		}
	}
	return s
}

// ScopeFor returns the scope of a method declared in c by name.
func (c *Class) ScopeFor(method string) Scope {
	s := Scope{Class: c}
	for _, m := range c.Methods {
		if m.Name == method {
			s.Method = m
			break
		}
	}
	return s
}

// Lookup returns the declared type of a simple name visible in the scope.
// Methods resolve to their return type.
func (s Scope) Lookup(name string) (string, bool) {
	if s.Method != nil {
		for i := len(s.Method.Locals) - 1; i >= 0; i-- {
			if l := s.Method.Locals[i]; l.Name == name {
				return l.Type, true
			}
		}
		for _, p := range s.Method.Params {
			if p.Name == name {
				return p.Type, true
			}
		}
	}
	if s.Class == nil {
		return "", false
	}
	for _, f := range s.Class.Fields {
		if f.Name == name {
			return f.Type, true
		}
	}
	for _, m := range s.Class.Methods {
		if m.Name == name {
			return m.ReturnType, true
		}
	}
	return "", false
}

// Self returns the full name of the enclosing class.
func (s Scope) Self() string {
	if s.Class == nil {
		return ""
	}
	return s.Class.FullName()
}
