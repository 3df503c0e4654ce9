package csharp

import (
	"context"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"refgraph/internal/typesys"
)

// outlineQuery captures every named type declaration of a file.
const outlineQuery = `
	(class_declaration name: (identifier) @name) @def
	(struct_declaration name: (identifier) @name) @def
	(interface_declaration name: (identifier) @name) @def
	(enum_declaration name: (identifier) @name) @def
`

var compiledOutline = sync.OnceValues(func() (*tree_sitter.Query, error) {
	q, qerr := tree_sitter.NewQuery(language, outlineQuery)
	if qerr != nil {
		return nil, qerr
	}
	return q, nil
})

// Decl is a type declaration found by Outline.
type Decl struct {
	Name      string
	Namespace string
	Kind      typesys.Kind
	Line      int
}

// FullName returns the namespace-qualified name.
func (d Decl) FullName() string { return joinName(d.Namespace, d.Name) }

// Outline lists the type declarations of src without extracting members or
// relationships. It is the cheap path used to index large projects.
func (p *Parser) Outline(ctx context.Context, path string, src []byte) ([]Decl, error) {
	q, err := compiledOutline()
	if err != nil {
		return nil, err
	}
	tree, err := p.tree(ctx, path, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	fileNS := ""
	for i := uint(0); i < root.NamedChildCount(); i++ {
		if c := root.NamedChild(i); c.Kind() == "file_scoped_namespace_declaration" {
			if name := c.ChildByFieldName("name"); name != nil {
				fileNS = name.Utf8Text(src)
			}
		}
	}

	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()
	names := q.CaptureNames()

	var decls []Decl
	matches := qc.Matches(q, root, src)
	for m := matches.Next(); m != nil; m = matches.Next() {
		var d Decl
		for _, c := range m.Captures {
			switch names[c.Index] {
			case "name":
				d.Name = c.Node.Utf8Text(src)
			case "def":
				d.Kind = classKinds[c.Node.Kind()]
				d.Line = int(c.Node.StartPosition().Row) + 1
				d.Namespace = joinName(fileNS, enclosingNames(c.Node.Parent(), src))
			}
		}
		if d.Name != "" {
			decls = append(decls, d)
		}
	}
	return decls, nil
}

// enclosingNames joins the names of the namespaces and types around n,
// outermost first.
func enclosingNames(n *tree_sitter.Node, src []byte) string {
	var parts []string
	for ; n != nil; n = n.Parent() {
		switch n.Kind() {
		case "namespace_declaration", "class_declaration", "struct_declaration", "interface_declaration", "record_declaration":
			if name := n.ChildByFieldName("name"); name != nil {
				parts = append([]string{name.Utf8Text(src)}, parts...)
			}
		}
	}
	ns := ""
	for _, p := range parts {
		ns = joinName(ns, p)
	}
	return ns
}
