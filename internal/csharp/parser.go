package csharp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_csharp "github.com/tree-sitter/tree-sitter-c-sharp/bindings/go"

	"refgraph/internal/typesys"
)

// DefaultMaxFileSize is the largest source file Parse accepts.
const DefaultMaxFileSize = 4 * 1024 * 1024

var language = tree_sitter.NewLanguage(tree_sitter_csharp.Language())

// Option configures a Parser.
type Option func(*Parser)

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(bytes int) Option {
	return func(p *Parser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithLogger sets the logger used for partial-parse warnings.
func WithLogger(l *slog.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// Parser parses C# sources. It is safe for concurrent use; each call builds
// its own tree-sitter parser.
type Parser struct {
	maxFileSize int
	logger      *slog.Logger
}

// NewParser creates a parser.
func NewParser(opts ...Option) *Parser {
	p := &Parser{maxFileSize: DefaultMaxFileSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse extracts declarations and relationships from src. Syntax errors
// that still leave type declarations behind are tolerated and listed in
// File.Errors; a file that yields nothing usable fails with ErrParseFailed.
func (p *Parser) Parse(ctx context.Context, path string, src []byte) (*File, error) {
	tree, err := p.tree(ctx, path, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	x := &extractor{src: src, file: &File{Path: path}}
	x.walk(root, walkCtx{})
	x.finish()

	if root.HasError() {
		line := firstErrorLine(root)
		if len(x.file.Classes) == 0 {
			return nil, fmt.Errorf("%w: %s:%d: syntax error", ErrParseFailed, path, line)
		}
		x.file.Errors = append(x.file.Errors, fmt.Sprintf("%s:%d: syntax error", path, line))
		p.logger.Debug("partial parse", slog.String("file", path), slog.Int("line", line))
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled: %w", err)
	}
	return x.file, nil
}

func (p *Parser) tree(ctx context.Context, path string, src []byte) (*tree_sitter.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}
	if len(src) > p.maxFileSize {
		return nil, fmt.Errorf("%w: %s: size %d exceeds limit %d", ErrParseFailed, path, len(src), p.maxFileSize)
	}
	if !utf8.Valid(src) {
		return nil, fmt.Errorf("%w: %s: content is not valid UTF-8", ErrParseFailed, path)
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(language); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParseFailed, path, err)
	}
	tree := parser.Parse(src, nil)
	if tree == nil {
		return nil, fmt.Errorf("%w: %s: no syntax tree", ErrParseFailed, path)
	}
	return tree, nil
}

func firstErrorLine(n *tree_sitter.Node) int {
	if n.IsError() || n.IsMissing() {
		return int(n.StartPosition().Row) + 1
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		c := n.Child(i)
		if c != nil && c.HasError() {
			return firstErrorLine(c)
		}
	}
	return int(n.StartPosition().Row) + 1
}

type walkCtx struct {
	namespace string
	class     *Class
	method    *Method
	caller    string
	guards    []string
}

func (c walkCtx) withGuard(cond string) walkCtx {
	c.guards = append(c.guards[:len(c.guards):len(c.guards)], cond)
	return c
}

// candidate is a += or -= whose event shape is decided once the whole class
// has been read.
type candidate struct {
	sub      Subscription
	rhsKind  string
	rhsName  string
	lastName string
	class    *Class
}

type extractor struct {
	src        []byte
	file       *File
	candidates []candidate
}

func (x *extractor) text(n *tree_sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Utf8Text(x.src)
}

func (x *extractor) fieldText(n *tree_sitter.Node, field string) string {
	return strings.TrimSpace(x.text(n.ChildByFieldName(field)))
}

func line(n *tree_sitter.Node) int { return int(n.StartPosition().Row) + 1 }

func (x *extractor) walkChildren(n *tree_sitter.Node, ctx walkCtx) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c == nil {
			continue
		}
		if c.Kind() == "file_scoped_namespace_declaration" {
			ctx.namespace = joinName(ctx.namespace, x.fieldText(c, "name"))
			continue
		}
		x.walk(c, ctx)
	}
}

func (x *extractor) walk(n *tree_sitter.Node, ctx walkCtx) {
	switch n.Kind() {
	case "namespace_declaration":
		ctx.namespace = joinName(ctx.namespace, x.fieldText(n, "name"))
		if body := n.ChildByFieldName("body"); body != nil {
			x.walkChildren(body, ctx)
		}
	case "class_declaration", "struct_declaration", "interface_declaration", "record_declaration", "enum_declaration":
		x.typeDecl(n, ctx)
	case "field_declaration", "event_field_declaration":
		x.fieldDecl(n, ctx)
		x.walkChildren(n, ctx)
	case "event_declaration":
		x.eventDecl(n, ctx)
	case "property_declaration":
		x.propertyDecl(n, ctx)
	case "method_declaration", "constructor_declaration":
		x.methodDecl(n, ctx)
	case "local_declaration_statement":
		x.localDecl(n, ctx)
		x.walkChildren(n, ctx)
	case "block":
		x.block(n, ctx)
	case "if_statement":
		x.ifStatement(n, ctx)
	case "assignment_expression":
		x.assignment(n, ctx)
		x.walkChildren(n, ctx)
	case "invocation_expression":
		x.invocation(n, ctx)
		x.walkChildren(n, ctx)
	default:
		x.walkChildren(n, ctx)
	}
}

func joinName(outer, inner string) string {
	switch {
	case outer == "":
		return inner
	case inner == "":
		return outer
	default:
		return outer + "." + inner
	}
}

var classKinds = map[string]typesys.Kind{
	"class_declaration":     typesys.KindClass,
	"record_declaration":    typesys.KindClass,
	"struct_declaration":    typesys.KindStruct,
	"interface_declaration": typesys.KindInterface,
	"enum_declaration":      typesys.KindEnum,
}

// behaviorBases and assetBases decide the kind of a class from its
// immediate base; deeper chains are settled by the type registry.
var (
	behaviorBases = map[string]bool{"MonoBehaviour": true, "Behaviour": true, "Component": true, "NetworkBehaviour": true}
	assetBases    = map[string]bool{"ScriptableObject": true}
)

func (x *extractor) typeDecl(n *tree_sitter.Node, ctx walkCtx) {
	c := &Class{
		Name:      x.fieldText(n, "name"),
		Namespace: ctx.namespace,
		Kind:      classKinds[n.Kind()],
		Line:      line(n),
		EndLine:   int(n.EndPosition().Row) + 1,
	}
	if c.Name == "" {
		return
	}
	if ctx.class != nil {
		c.Namespace = joinName(ctx.class.Namespace, ctx.class.Name)
	}
	for i := uint(0); i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		switch child.Kind() {
		case "base_list":
			for j := uint(0); j < child.NamedChildCount(); j++ {
				base := strings.TrimSpace(x.text(child.NamedChild(j)))
				if k := strings.IndexByte(base, '('); k >= 0 {
					base = base[:k]
				}
				c.Bases = append(c.Bases, base)
			}
		case "attribute_list":
			x.attributes(child, c)
		}
	}
	if c.Kind == typesys.KindClass && len(c.Bases) > 0 {
		base := typesys.SegmentName(c.Bases[0])
		if i := strings.LastIndexByte(base, '.'); i >= 0 {
			base = base[i+1:]
		}
		switch {
		case behaviorBases[base]:
			c.Kind = typesys.KindBehavior
		case assetBases[base]:
			c.Kind = typesys.KindAsset
		}
	}
	x.file.Classes = append(x.file.Classes, c)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	inner := walkCtx{namespace: ctx.namespace, class: c}
	x.walkChildren(body, inner)
}

func (x *extractor) attributes(list *tree_sitter.Node, c *Class) {
	for i := uint(0); i < list.NamedChildCount(); i++ {
		attr := list.NamedChild(i)
		if attr.Kind() != "attribute" {
			continue
		}
		name := typesys.SegmentName(x.fieldText(attr, "name"))
		if j := strings.LastIndexByte(name, '.'); j >= 0 {
			name = name[j+1:]
		}
		if strings.TrimSuffix(name, "Attribute") != "RequireComponent" {
			continue
		}
		for _, tn := range x.typeofArgs(attr) {
			c.Acquisitions = append(c.Acquisitions, Acquisition{
				Method:   "RequireComponent",
				TypeName: tn,
				Scope:    AcquireSelf,
				Line:     line(attr),
			})
		}
	}
}

// typeofArgs collects the operands of typeof(...) expressions under n.
func (x *extractor) typeofArgs(n *tree_sitter.Node) []string {
	var out []string
	var visit func(*tree_sitter.Node)
	visit = func(m *tree_sitter.Node) {
		if m.Kind() == "typeof_expression" {
			t := x.fieldText(m, "type")
			if t == "" && m.NamedChildCount() > 0 {
				t = strings.TrimSpace(x.text(m.NamedChild(0)))
			}
			if t != "" {
				out = append(out, t)
			}
			return
		}
		for i := uint(0); i < m.NamedChildCount(); i++ {
			if c := m.NamedChild(i); c != nil {
				visit(c)
			}
		}
	}
	visit(n)
	return out
}

func (x *extractor) isStatic(n *tree_sitter.Node) bool {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		c := n.NamedChild(i)
		if c.Kind() == "modifier" && strings.TrimSpace(x.text(c)) == "static" {
			return true
		}
	}
	return false
}

func (x *extractor) variableDeclaration(n *tree_sitter.Node) *tree_sitter.Node {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		if c := n.NamedChild(i); c.Kind() == "variable_declaration" {
			return c
		}
	}
	return nil
}

// declarators returns the declared names of a variable_declaration with
// their initializer nodes.
func (x *extractor) declarators(decl *tree_sitter.Node) (typ string, names []string, inits []*tree_sitter.Node) {
	typ = x.fieldText(decl, "type")
	for i := uint(0); i < decl.NamedChildCount(); i++ {
		d := decl.NamedChild(i)
		if d.Kind() != "variable_declarator" {
			continue
		}
		name := x.fieldText(d, "name")
		var init *tree_sitter.Node
		for j := uint(0); j < d.NamedChildCount(); j++ {
			c := d.NamedChild(j)
			switch c.Kind() {
			case "identifier":
				if name == "" {
					name = strings.TrimSpace(x.text(c))
				} else if j > 0 {
					init = c
				}
			case "equals_value_clause":
				if c.NamedChildCount() > 0 {
					init = c.NamedChild(c.NamedChildCount() - 1)
				}
			case "bracketed_argument_list", "tuple_pattern":
			default:
				init = c
			}
		}
		if name == "" {
			continue
		}
		names = append(names, name)
		inits = append(inits, init)
	}
	return typ, names, inits
}

func (x *extractor) fieldDecl(n *tree_sitter.Node, ctx walkCtx) {
	if ctx.class == nil {
		return
	}
	decl := x.variableDeclaration(n)
	if decl == nil {
		return
	}
	isEvent := n.Kind() == "event_field_declaration"
	static := x.isStatic(n)
	typ, names, _ := x.declarators(decl)
	for _, name := range names {
		kind := typesys.MemberField
		if isEvent {
			kind = typesys.MemberEvent
		}
		ctx.class.Fields = append(ctx.class.Fields, Field{Name: name, Type: typ, Kind: kind, Static: static, Line: line(n)})
		if isEvent || typesys.IsDelegateTypeName(typ) {
			ctx.class.Events = append(ctx.class.Events, EventDecl{Name: name, Type: typ, IsEvent: isEvent, Static: static, Line: line(n)})
		}
	}
}

func (x *extractor) eventDecl(n *tree_sitter.Node, ctx walkCtx) {
	if ctx.class == nil {
		return
	}
	name, typ := x.fieldText(n, "name"), x.fieldText(n, "type")
	static := x.isStatic(n)
	ctx.class.Fields = append(ctx.class.Fields, Field{Name: name, Type: typ, Kind: typesys.MemberEvent, Static: static, Line: line(n)})
	ctx.class.Events = append(ctx.class.Events, EventDecl{Name: name, Type: typ, IsEvent: true, Static: static, Line: line(n)})
	ctx.caller = name
	x.walkChildren(n, ctx)
}

func (x *extractor) propertyDecl(n *tree_sitter.Node, ctx walkCtx) {
	if ctx.class == nil {
		return
	}
	name := x.fieldText(n, "name")
	ctx.class.Fields = append(ctx.class.Fields, Field{
		Name:   name,
		Type:   x.fieldText(n, "type"),
		Kind:   typesys.MemberProperty,
		Static: x.isStatic(n),
		Line:   line(n),
	})
	ctx.caller = name
	x.walkChildren(n, ctx)
}

func (x *extractor) methodDecl(n *tree_sitter.Node, ctx walkCtx) {
	if ctx.class == nil {
		return
	}
	ret := x.fieldText(n, "returns")
	if ret == "" {
		ret = x.fieldText(n, "type")
	}
	m := &Method{
		Name:       x.fieldText(n, "name"),
		ReturnType: ret,
		Static:     x.isStatic(n),
		Line:       line(n),
		EndLine:    int(n.EndPosition().Row) + 1,
	}
	if n.Kind() == "constructor_declaration" {
		m.ReturnType = ctx.class.Name
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := uint(0); i < params.NamedChildCount(); i++ {
			p := params.NamedChild(i)
			if p.Kind() != "parameter" {
				continue
			}
			m.Params = append(m.Params, Field{Name: x.fieldText(p, "name"), Type: x.fieldText(p, "type"), Line: line(p)})
		}
	}
	if body := n.ChildByFieldName("body"); body != nil {
		m.body = compact(x.text(body))
	}
	ctx.class.Methods = append(ctx.class.Methods, m)

	ctx.method = m
	ctx.caller = m.Name
	ctx.guards = nil
	x.walkChildren(n, ctx)
}

func (x *extractor) localDecl(n *tree_sitter.Node, ctx walkCtx) {
	if ctx.method == nil {
		return
	}
	decl := x.variableDeclaration(n)
	if decl == nil {
		return
	}
	typ, names, inits := x.declarators(decl)
	for i, name := range names {
		t := typ
		if t == "var" {
			t = x.inferVar(inits[i])
		}
		ctx.method.Locals = append(ctx.method.Locals, Field{Name: name, Type: t, Line: line(n)})
	}
}

// inferVar recovers the type of an implicitly typed local from the common
// initializer shapes: new T(), (T)x, x as T and Get<T>().
func (x *extractor) inferVar(init *tree_sitter.Node) string {
	if init == nil {
		return "var"
	}
	switch init.Kind() {
	case "object_creation_expression", "cast_expression":
		if t := x.fieldText(init, "type"); t != "" {
			return t
		}
	case "invocation_expression":
		fn := x.fieldText(init, "function")
		segs := typesys.SplitPath(fn)
		if len(segs) > 0 {
			if arg, ok := typesys.FirstGenericArgument(segs[len(segs)-1]); ok {
				return arg
			}
		}
	}
	if t := x.text(init); strings.Contains(t, " as ") {
		return strings.TrimSpace(t[strings.LastIndex(t, " as ")+4:])
	}
	return "var"
}

func (x *extractor) block(n *tree_sitter.Node, ctx walkCtx) {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		stmt := n.NamedChild(i)
		x.walk(stmt, ctx)
		if cond, ok := x.earlyReturnGuard(stmt); ok {
			ctx = ctx.withGuard(cond)
		}
	}
}

// earlyReturnGuard recognises "if (cond) return;" with no else branch.
func (x *extractor) earlyReturnGuard(stmt *tree_sitter.Node) (string, bool) {
	if stmt.Kind() != "if_statement" || stmt.ChildByFieldName("alternative") != nil {
		return "", false
	}
	cons := stmt.ChildByFieldName("consequence")
	if cons == nil {
		return "", false
	}
	if cons.Kind() == "block" {
		if cons.NamedChildCount() != 1 {
			return "", false
		}
		cons = cons.NamedChild(0)
	}
	if cons.Kind() != "return_statement" {
		return "", false
	}
	return x.fieldText(stmt, "condition"), true
}

func (x *extractor) ifStatement(n *tree_sitter.Node, ctx walkCtx) {
	cond := n.ChildByFieldName("condition")
	if cond != nil {
		x.walk(cond, ctx)
	}
	if cons := n.ChildByFieldName("consequence"); cons != nil {
		x.walk(cons, ctx.withGuard(strings.TrimSpace(x.text(cond))))
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		x.walk(alt, ctx)
	}
}

var handlerKinds = map[string]bool{
	"identifier":                      true,
	"member_access_expression":        true,
	"generic_name":                    true,
	"lambda_expression":               true,
	"parenthesized_lambda_expression": true,
	"anonymous_method_expression":     true,
}

func (x *extractor) assignment(n *tree_sitter.Node, ctx walkCtx) {
	if ctx.class == nil {
		return
	}
	left, right := n.ChildByFieldName("left"), n.ChildByFieldName("right")
	if left == nil || right == nil {
		return
	}
	op := strings.TrimSpace(string(x.src[left.EndByte():right.StartByte()]))
	if op != "+=" && op != "-=" {
		return
	}
	if k := left.Kind(); k != "identifier" && k != "member_access_expression" {
		return
	}
	if !handlerKinds[right.Kind()] {
		return
	}

	target := compact(x.text(left))
	segs := typesys.SplitPath(target)
	if len(segs) == 0 {
		return
	}
	sub := Subscription{
		Target:      strings.Join(segs, "."),
		Event:       segs[len(segs)-1],
		Handler:     strings.TrimSpace(x.text(right)),
		Unsubscribe: op == "-=",
		Caller:      ctx.caller,
		Line:        line(n),
	}
	prefix := segs[:len(segs)-1]
	sub.OwnerPath = strings.Join(prefix, ".")
	if len(prefix) > 1 {
		sub.Pattern = PatternIndirect
	}
	if len(prefix) > 0 {
		if guard, chain, ok := matchGuard(ctx.guards, prefix[0]); ok {
			sub.Guard = guard
			if len(typesys.SplitPath(chain)) > 1 {
				sub.OwnerPath = strings.Join(append([]string{chain}, prefix[1:]...), ".")
				sub.Pattern = PatternConditionalIndirect
			} else if len(prefix) > 1 {
				sub.Pattern = PatternConditionalIndirect
			}
		}
	}

	rhsName := ""
	if k := right.Kind(); k == "identifier" || k == "member_access_expression" || k == "generic_name" {
		rs := typesys.SplitPath(x.text(right))
		if len(rs) > 0 {
			rhsName = typesys.SegmentName(rs[len(rs)-1])
		}
	}
	x.candidates = append(x.candidates, candidate{
		sub:      sub,
		rhsKind:  right.Kind(),
		rhsName:  rhsName,
		lastName: sub.Event,
		class:    ctx.class,
	})
}

// matchGuard finds the innermost guard mentioning root. chain is the dotted
// path in the guard that ends with root.
func matchGuard(guards []string, root string) (guard, chain string, ok bool) {
	for i := len(guards) - 1; i >= 0; i-- {
		for _, ch := range pathChains(guards[i]) {
			segs := typesys.SplitPath(ch)
			for j, s := range segs {
				if s != root {
					continue
				}
				if j == len(segs)-1 {
					return guards[i], ch, true
				}
				guard, chain, ok = guards[i], root, true
			}
		}
		if ok {
			return guard, chain, ok
		}
	}
	return "", "", false
}

// pathChains extracts the dotted identifier chains of an expression.
func pathChains(expr string) []string {
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		s := strings.Trim(cur.String(), ".")
		if s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		switch {
		case isIdentByte(ch) || ch == '.':
			cur.WriteByte(ch)
		case ch == '?' && i+1 < len(expr) && expr[i+1] == '.':
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			if i+1 < len(expr) && (expr[i+1] == '.' || expr[i+1] == '?') && cur.Len() > 0 {
				continue
			}
			flush()
		default:
			flush()
		}
	}
	flush()
	return out
}

func isIdentByte(c byte) bool {
	return c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// acquisitionScopes lists the acquire-or-create calls and where they look.
var acquisitionScopes = map[string]AcquireScope{
	"AddComponent":            AcquireSelf,
	"GetComponent":            AcquireSelf,
	"GetComponents":           AcquireSelf,
	"TryGetComponent":         AcquireSelf,
	"GetComponentInChildren":  AcquireChildren,
	"GetComponentsInChildren": AcquireChildren,
	"GetComponentInParent":    AcquireParent,
	"GetComponentsInParent":   AcquireParent,
	"FindObjectOfType":        AcquireGlobal,
	"FindObjectsOfType":       AcquireGlobal,
	"FindFirstObjectByType":   AcquireGlobal,
	"FindAnyObjectByType":     AcquireGlobal,
	"FindObjectsByType":       AcquireGlobal,
}

// selfReceivers address the calling behavior's own entity.
var selfReceivers = map[string]bool{"": true, "this": true, "gameObject": true, "transform": true, "Object": true, "UnityEngine.Object": true}

var invokePrefixes = []string{"Raise", "Trigger", "Fire", "Invoke"}

// builtinInvokes are engine methods that only look like invocation-prefixed
// methods.
var builtinInvokes = map[string]bool{"InvokeRepeating": true}

func (x *extractor) invocation(n *tree_sitter.Node, ctx walkCtx) {
	if ctx.class == nil {
		return
	}
	fnNode := n.ChildByFieldName("function")
	if fnNode == nil {
		return
	}
	fn := compact(x.text(fnNode))
	conditional := strings.Contains(fn, "?.")
	if strings.HasPrefix(fn, ".") {
		cond := x.conditionalReceiver(n)
		if cond == "" {
			return
		}
		fn = cond + fn
		conditional = true
	}
	segs := typesys.SplitPath(fn)
	if len(segs) == 0 {
		return
	}
	last := segs[len(segs)-1]
	name := typesys.SegmentName(last)
	receiver := strings.Join(segs[:len(segs)-1], ".")

	if scope, ok := acquisitionScopes[name]; ok {
		x.acquisition(n, ctx, name, last, receiver, scope)
		return
	}

	switch {
	case name == "Invoke" && receiver != "":
		rsegs := segs[:len(segs)-1]
		ctx.class.Invocations = append(ctx.class.Invocations, Invocation{
			Target:      receiver,
			Member:      rsegs[len(rsegs)-1],
			Receiver:    strings.Join(rsegs[:len(rsegs)-1], "."),
			Via:         ViaInvoke,
			Conditional: conditional,
			Indirect:    len(rsegs) > 1,
			Caller:      ctx.caller,
			Line:        line(n),
		})
	case hasInvokePrefix(name) && !builtinInvokes[name]:
		ctx.class.Invocations = append(ctx.class.Invocations, Invocation{
			Target:      strings.Join(append(append([]string{}, segs[:len(segs)-1]...), name), "."),
			Member:      name,
			Receiver:    receiver,
			Via:         ViaPrefixedMethod,
			Conditional: conditional,
			Indirect:    len(segs) > 1,
			Caller:      ctx.caller,
			Line:        line(n),
		})
	}
}

func hasInvokePrefix(name string) bool {
	for _, p := range invokePrefixes {
		if len(name) > len(p) && strings.HasPrefix(name, p) {
			c := name[len(p)]
			if c >= 'A' && c <= 'Z' || c == '_' {
				return true
			}
		}
	}
	return false
}

// conditionalReceiver returns the receiver of a member binding inside a
// null-conditional access ("recv" in "recv?.Invoke()").
func (x *extractor) conditionalReceiver(n *tree_sitter.Node) string {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if p.Kind() != "conditional_access_expression" {
			continue
		}
		if c := p.ChildByFieldName("condition"); c != nil {
			return compact(x.text(c))
		}
		if p.NamedChildCount() > 0 {
			return compact(x.text(p.NamedChild(0)))
		}
	}
	return ""
}

func (x *extractor) acquisition(n *tree_sitter.Node, ctx walkCtx, name, last, receiver string, scope AcquireScope) {
	typ, ok := typesys.FirstGenericArgument(last)
	if !ok {
		args := n.ChildByFieldName("arguments")
		if args != nil {
			if ts := x.typeofArgs(args); len(ts) > 0 {
				typ, ok = ts[0], true
			} else if s := x.stringArg(args); s != "" {
				typ, ok = s, true
			}
		}
	}
	if !ok {
		return
	}
	if !selfReceivers[receiver] && scope != AcquireGlobal {
		scope = AcquireGlobal
	}
	ctx.class.Acquisitions = append(ctx.class.Acquisitions, Acquisition{
		Method:   name,
		TypeName: typ,
		Receiver: receiver,
		Scope:    scope,
		Caller:   ctx.caller,
		Line:     line(n),
	})
}

// stringArg returns the content of a lone string literal argument, as in
// GetComponent("Rigidbody").
func (x *extractor) stringArg(args *tree_sitter.Node) string {
	if args.NamedChildCount() != 1 {
		return ""
	}
	s := strings.TrimSpace(x.text(args.NamedChild(0)))
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return ""
	}
	return s[1 : len(s)-1]
}

// finish settles decisions that need the whole file: event shape of
// subscription candidates and the invoker method of each event.
func (x *extractor) finish() {
	methods := map[string]bool{}
	for _, c := range x.file.Classes {
		for _, m := range c.Methods {
			methods[m.Name] = true
		}
	}
	for _, cand := range x.candidates {
		if x.eventShaped(cand, methods) {
			cand.class.Subscriptions = append(cand.class.Subscriptions, cand.sub)
		}
	}
	for _, c := range x.file.Classes {
		for i := range c.Events {
			for _, m := range c.Methods {
				if invokes(m.body, c.Events[i].Name) {
					c.Events[i].Invoker = m.Name
					break
				}
			}
		}
	}
}

func (x *extractor) eventShaped(c candidate, methods map[string]bool) bool {
	switch c.rhsKind {
	case "lambda_expression", "parenthesized_lambda_expression", "anonymous_method_expression":
		return true
	}
	if c.sub.OwnerPath == "" {
		for _, f := range c.class.Fields {
			if f.Name == c.lastName {
				return f.Kind == typesys.MemberEvent || typesys.IsDelegateTypeName(f.Type)
			}
		}
	}
	if methods[c.rhsName] {
		return true
	}
	name := c.lastName
	return len(name) > 2 && strings.HasPrefix(name, "On") && name[2] >= 'A' && name[2] <= 'Z'
}

// invokes reports whether a compacted body calls name.Invoke or name?.Invoke
// on the bare identifier or a this-qualified one.
func invokes(body, name string) bool {
	for _, suffix := range []string{"?.Invoke(", ".Invoke("} {
		needle := name + suffix
		for i := strings.Index(body, needle); i >= 0; {
			if i == 0 || !isIdentByte(body[i-1]) && (body[i-1] != '.' || strings.HasSuffix(body[:i], "this.")) {
				return true
			}
			next := strings.Index(body[i+1:], needle)
			if next < 0 {
				break
			}
			i += next + 1
		}
	}
	return false
}

// compact removes whitespace outside string literals.
func compact(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' && (i == 0 || s[i-1] != '\\') {
			inString = !inString
		}
		if !inString && (c == ' ' || c == '\t' || c == '\n' || c == '\r') {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}
