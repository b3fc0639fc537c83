// Filename: javascript/parser.go
// Parser adapter: runs tree-sitter and lowers its concrete syntax tree into the
// closed node set defined in ast.go.
package javascript

import (
	"context"
	"fmt"
	"path"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language selects the grammar used for a file.
type Language string

const (
	LangJavaScript Language = "javascript"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
)

// DetectLanguage picks a grammar from a file path or script URL. Compression
// suffixes and URL query strings are ignored. The JavaScript grammar accepts
// JSX and decorators, so it is the fallback for everything else.
func DetectLanguage(name string) Language {
	name = strings.ToLower(name)
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimSuffix(strings.TrimSuffix(name, ".gz"), ".br")

	switch path.Ext(name) {
	case ".ts", ".mts", ".cts":
		return LangTypeScript
	case ".tsx":
		return LangTSX
	default:
		return LangJavaScript
	}
}

func (l Language) grammar() *sitter.Language {
	switch l {
	case LangTypeScript:
		return typescript.GetLanguage()
	case LangTSX:
		return tsx.GetLanguage()
	default:
		return javascript.GetLanguage()
	}
}

// ParseError reports malformed or unsupported syntax in one file.
type ParseError struct {
	File    string
	Message string
	Line    int
	Column  int
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.File, e.Message)
}

// Parse turns source text into a Program. Any syntax error in the tree is
// reported as a *ParseError; tree-sitter's error recovery is not trusted for
// analysis because recovered trees misplace bindings.
func Parse(ctx context.Context, filename string, src []byte, lang Language) (*Program, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, &ParseError{File: filename, Message: fmt.Sprintf("tree-sitter failed: %v", err)}
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil {
		return nil, &ParseError{File: filename, Message: "empty syntax tree"}
	}
	if root.HasError() {
		return nil, syntaxError(filename, root, src)
	}

	c := &converter{src: src}
	return &Program{base: c.base(root), Body: c.namedKids(root)}, nil
}

// syntaxError locates the first ERROR or MISSING node in document order.
func syntaxError(filename string, root *sitter.Node, src []byte) *ParseError {
	bad := firstErrorNode(root)
	if bad == nil {
		return &ParseError{File: filename, Message: "syntax error"}
	}
	pt := bad.StartPoint()
	msg := "syntax error"
	switch {
	case bad.IsMissing():
		msg = fmt.Sprintf("missing %q", bad.Type())
	default:
		snippet := truncate(strings.TrimSpace(bad.Content(src)), 40)
		if snippet != "" {
			msg = fmt.Sprintf("syntax error near %q", snippet)
		}
	}
	return &ParseError{
		File:    filename,
		Message: msg,
		Line:    int(pt.Row) + 1,
		Column:  int(pt.Column),
	}
}

func firstErrorNode(n *sitter.Node) *sitter.Node {
	if n == nil {
		return nil
	}
	if n.IsError() || n.IsMissing() {
		return n
	}
	if !n.HasError() {
		return nil
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstErrorNode(n.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// converter lowers tree-sitter nodes. It is used by one goroutine at a time.
type converter struct {
	src []byte
}

func (c *converter) base(n *sitter.Node) base {
	sp, ep := n.StartPoint(), n.EndPoint()
	return base{
		span: Span{
			StartLine:   int(sp.Row) + 1,
			StartColumn: int(sp.Column),
			EndLine:     int(ep.Row) + 1,
			EndColumn:   int(ep.Column),
		},
		src:   c.src,
		start: n.StartByte(),
		end:   n.EndByte(),
	}
}

func (c *converter) content(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return n.Content(c.src)
}

// namedKids lowers the named children of n, dropping comments.
func (c *converter) namedKids(n *sitter.Node) []Node {
	count := int(n.NamedChildCount())
	out := make([]Node, 0, count)
	for i := 0; i < count; i++ {
		if kid := c.lower(n.NamedChild(i)); kid != nil {
			out = append(out, kid)
		}
	}
	return out
}

func hasChildOfType(n *sitter.Node, typ string) bool {
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil && child.Type() == typ {
			return true
		}
	}
	return false
}

// lower converts one node. It returns a nil Node for comments.
func (c *converter) lower(n *sitter.Node) Node {
	if n == nil || n.IsNull() {
		return nil
	}

	switch n.Type() {
	case "comment", "hash_bang_line":
		return nil

	case "parenthesized_expression":
		if kids := c.namedKids(n); len(kids) == 1 {
			return kids[0]
		}

	case "call_expression":
		call := &CallExpr{
			base:     c.base(n),
			Callee:   c.lower(n.ChildByFieldName("function")),
			Optional: hasChildOfType(n, "optional_chain"),
		}
		call.Args = c.arguments(n.ChildByFieldName("arguments"))
		return call

	case "new_expression":
		return &NewExpr{
			base:   c.base(n),
			Callee: c.lower(n.ChildByFieldName("constructor")),
			Args:   c.arguments(n.ChildByFieldName("arguments")),
		}

	case "assignment_expression":
		return &AssignExpr{
			base:     c.base(n),
			Operator: "=",
			Target:   c.lower(n.ChildByFieldName("left")),
			Value:    c.lower(n.ChildByFieldName("right")),
		}

	case "augmented_assignment_expression":
		op := "="
		if opNode := n.ChildByFieldName("operator"); opNode != nil {
			op = opNode.Type()
		}
		return &AssignExpr{
			base:     c.base(n),
			Operator: op,
			Target:   c.lower(n.ChildByFieldName("left")),
			Value:    c.lower(n.ChildByFieldName("right")),
		}

	case "variable_declarator":
		nameNode := n.ChildByFieldName("name")
		return &Declarator{
			base:    c.base(n),
			Binding: c.lower(nameNode),
			Names:   c.bindingNames(nameNode, nil),
			Value:   c.lower(n.ChildByFieldName("value")),
		}

	case "binary_expression":
		op := ""
		if opNode := n.ChildByFieldName("operator"); opNode != nil {
			op = opNode.Type()
		}
		return &BinaryExpr{
			base:     c.base(n),
			Operator: op,
			Left:     c.lower(n.ChildByFieldName("left")),
			Right:    c.lower(n.ChildByFieldName("right")),
		}

	case "template_string":
		return c.template(n)

	case "identifier", "this", "shorthand_property_identifier", "property_identifier", "super":
		return &Ident{base: c.base(n), Name: c.content(n)}

	case "member_expression":
		return &MemberExpr{
			base:     c.base(n),
			Object:   c.lower(n.ChildByFieldName("object")),
			Property: c.content(n.ChildByFieldName("property")),
			Optional: hasChildOfType(n, "optional_chain"),
		}

	case "subscript_expression":
		m := &MemberExpr{
			base:     c.base(n),
			Object:   c.lower(n.ChildByFieldName("object")),
			Optional: hasChildOfType(n, "optional_chain"),
		}
		index := c.lower(n.ChildByFieldName("index"))
		if lit, ok := index.(*Literal); ok && lit.LitKind == LitString {
			m.Property = lit.Value
		} else {
			m.Index = index
			m.Computed = true
		}
		return m

	case "string":
		return &Literal{base: c.base(n), LitKind: LitString, Value: unquote(c.content(n))}
	case "number":
		return &Literal{base: c.base(n), LitKind: LitNumber, Value: c.content(n)}
	case "true", "false":
		return &Literal{base: c.base(n), LitKind: LitBool, Value: n.Type()}
	case "null":
		return &Literal{base: c.base(n), LitKind: LitNull, Value: "null"}
	case "undefined":
		return &Literal{base: c.base(n), LitKind: LitUndefined, Value: "undefined"}
	case "regex":
		return &Literal{base: c.base(n), LitKind: LitRegex, Value: c.content(n)}

	case "object":
		return c.object(n)
	}

	return &Opaque{base: c.base(n), Type: n.Type(), Kids: c.namedKids(n)}
}

// arguments lowers an argument list. A tagged template passes the template
// itself as the only argument.
func (c *converter) arguments(n *sitter.Node) []Node {
	if n == nil {
		return nil
	}
	if n.Type() != "arguments" {
		if arg := c.lower(n); arg != nil {
			return []Node{arg}
		}
		return nil
	}
	return c.namedKids(n)
}

// template splits a template string into literal chunks and substitutions.
// Chunks are sliced from byte ranges so the result does not depend on how a
// grammar version names the literal fragments.
func (c *converter) template(n *sitter.Node) *TemplateLit {
	t := &TemplateLit{base: c.base(n)}
	start, end := int(n.StartByte())+1, int(n.EndByte())-1
	if end < start {
		end = start
	}
	cursor := start
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil || child.Type() != "template_substitution" {
			continue
		}
		t.Quasis = append(t.Quasis, string(c.src[cursor:int(child.StartByte())]))
		var expr Node
		if kids := c.namedKids(child); len(kids) > 0 {
			expr = kids[0]
		} else {
			expr = &Opaque{base: c.base(child), Type: "empty_substitution"}
		}
		t.Exprs = append(t.Exprs, expr)
		cursor = int(child.EndByte())
	}
	if cursor > end {
		cursor = end
	}
	t.Quasis = append(t.Quasis, string(c.src[cursor:end]))
	return t
}

func (c *converter) object(n *sitter.Node) *ObjectLit {
	obj := &ObjectLit{base: c.base(n)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "pair":
			p := c.propertyKey(child.ChildByFieldName("key"))
			p.Value = c.lower(child.ChildByFieldName("value"))
			obj.Props = append(obj.Props, p)
		case "shorthand_property_identifier":
			name := c.content(child)
			obj.Props = append(obj.Props, Property{
				Key:       name,
				Value:     &Ident{base: c.base(child), Name: name},
				Shorthand: true,
			})
		case "spread_element":
			var value Node
			if kids := c.namedKids(child); len(kids) > 0 {
				value = kids[0]
			}
			obj.Props = append(obj.Props, Property{Value: value, Spread: true})
		case "method_definition":
			p := c.propertyKey(child.ChildByFieldName("name"))
			p.Method = true
			p.Value = c.lower(child)
			obj.Props = append(obj.Props, p)
		}
	}
	return obj
}

func (c *converter) propertyKey(key *sitter.Node) Property {
	if key == nil {
		return Property{}
	}
	switch key.Type() {
	case "string":
		return Property{Key: unquote(c.content(key))}
	case "computed_property_name":
		p := Property{Computed: true}
		if kids := c.namedKids(key); len(kids) > 0 {
			p.KeyNode = kids[0]
		}
		return p
	default:
		return Property{Key: c.content(key)}
	}
}

// bindingNames collects the identifiers bound by a declaration pattern.
func (c *converter) bindingNames(n *sitter.Node, out []string) []string {
	if n == nil {
		return out
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		return append(out, c.content(n))
	case "pair_pattern":
		return c.bindingNames(n.ChildByFieldName("value"), out)
	case "assignment_pattern", "object_assignment_pattern":
		return c.bindingNames(n.ChildByFieldName("left"), out)
	case "object_pattern", "array_pattern", "rest_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = c.bindingNames(n.NamedChild(i), out)
		}
	}
	return out
}

// unquote strips the delimiters of a string literal. Escape sequences are
// kept as written.
func unquote(raw string) string {
	if len(raw) >= 2 {
		first, last := raw[0], raw[len(raw)-1]
		if (first == '"' || first == '\'' || first == '`') && last == first {
			return raw[1 : len(raw)-1]
		}
	}
	return raw
}
