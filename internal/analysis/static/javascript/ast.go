// Filename: javascript/ast.go
// Package javascript implements a single-pass, syntax-directed taint and
// network-call analyzer for JavaScript and TypeScript sources.
//
// This file defines the closed syntax tree the analyzer works on. The parser
// adapter lowers the tree-sitter CST into these node types so the rest of the
// package never depends on grammar node names.
package javascript

import (
	"fmt"
	"unicode/utf8"
)

// Span is the source range of a node. Lines are 1-based, columns are 0-based
// byte offsets within the line.
type Span struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn"`
	EndLine     int `json:"endLine"`
	EndColumn   int `json:"endColumn"`
}

// Kind tags each node variant.
type Kind int

const (
	KindProgram Kind = iota
	KindCall
	KindNew
	KindAssign
	KindDeclarator
	KindBinary
	KindTemplate
	KindIdent
	KindMember
	KindLiteral
	KindObject
	KindOpaque
)

var kindNames = [...]string{
	KindProgram:    "program",
	KindCall:       "call",
	KindNew:        "new",
	KindAssign:     "assignment",
	KindDeclarator: "declarator",
	KindBinary:     "binary",
	KindTemplate:   "template",
	KindIdent:      "identifier",
	KindMember:     "member",
	KindLiteral:    "literal",
	KindObject:     "object",
	KindOpaque:     "opaque",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Node is implemented only by the types in this file.
type Node interface {
	Kind() Kind
	Span() Span
	// Text is the raw source text of the node.
	Text() string
	// Children returns the child nodes in source order.
	Children() []Node
	textPrefix(limit int) string
	sealed()
}

// base holds the span and a view into the file source. Text is sliced on
// demand so large bundles do not copy every subtree.
type base struct {
	span       Span
	src        []byte
	start, end uint32
}

func (b *base) Span() Span { return b.span }
func (b *base) sealed()    {}

func (b *base) Text() string {
	if b.src == nil || int(b.end) > len(b.src) || b.start > b.end {
		return ""
	}
	return string(b.src[b.start:b.end])
}

// textPrefix copies at most limit bytes of the node text, plus enough to
// finish a rune, so callers never materialize a whole bundle-sized span.
func (b *base) textPrefix(limit int) string {
	if b.src == nil || int(b.end) > len(b.src) || b.start > b.end {
		return ""
	}
	end := int(b.end)
	if limit > 0 && end-int(b.start) > limit+utf8.UTFMax {
		end = int(b.start) + limit + utf8.UTFMax
	}
	return string(b.src[b.start:end])
}

// Program is the root of a file.
type Program struct {
	base
	Body []Node
}

// CallExpr is a function or method invocation.
type CallExpr struct {
	base
	Callee   Node
	Args     []Node
	Optional bool
}

// NewExpr is a constructor invocation. Args is nil for `new X` without parens.
type NewExpr struct {
	base
	Callee Node
	Args   []Node
}

// AssignExpr covers plain and compound assignment.
type AssignExpr struct {
	base
	Operator string
	Target   Node
	Value    Node
}

// Declarator is one `name = value` entry of a var/let/const declaration.
// Names lists every identifier bound by the pattern, in source order.
type Declarator struct {
	base
	Binding Node
	Names   []string
	Value   Node
}

// BinaryExpr is an infix operation, including logical operators.
type BinaryExpr struct {
	base
	Operator string
	Left     Node
	Right    Node
}

// TemplateLit is a template string. len(Quasis) == len(Exprs)+1.
type TemplateLit struct {
	base
	Quasis []string
	Exprs  []Node
}

// Ident is an identifier reference, including `this`.
type Ident struct {
	base
	Name string
}

// MemberExpr is `object.property` or, when Computed, `object[index]`.
type MemberExpr struct {
	base
	Object Node
	// Property is the property name for non-computed access.
	Property string
	// Index is the subscript expression for computed access.
	Index    Node
	Computed bool
	Optional bool
}

// LiteralKind distinguishes literal values.
type LiteralKind int

const (
	LitString LiteralKind = iota
	LitNumber
	LitBool
	LitNull
	LitUndefined
	LitRegex
)

// Literal is a primitive literal. Value is the unquoted string content for
// strings and the raw text otherwise.
type Literal struct {
	base
	LitKind LiteralKind
	Value   string
}

// Property is one entry of an object literal.
type Property struct {
	Key       string
	KeyNode   Node
	Value     Node
	Shorthand bool
	Spread    bool
	Computed  bool
	Method    bool
}

// ObjectLit is an object literal.
type ObjectLit struct {
	base
	Props []Property
}

// Opaque is any syntactic form the analyzer does not interpret. Its children
// are still visited.
type Opaque struct {
	base
	Type string
	Kids []Node
}

func (*Program) Kind() Kind     { return KindProgram }
func (*CallExpr) Kind() Kind    { return KindCall }
func (*NewExpr) Kind() Kind     { return KindNew }
func (*AssignExpr) Kind() Kind  { return KindAssign }
func (*Declarator) Kind() Kind  { return KindDeclarator }
func (*BinaryExpr) Kind() Kind  { return KindBinary }
func (*TemplateLit) Kind() Kind { return KindTemplate }
func (*Ident) Kind() Kind       { return KindIdent }
func (*MemberExpr) Kind() Kind  { return KindMember }
func (*Literal) Kind() Kind     { return KindLiteral }
func (*ObjectLit) Kind() Kind   { return KindObject }
func (*Opaque) Kind() Kind      { return KindOpaque }

func (n *Program) Children() []Node { return n.Body }

func (n *CallExpr) Children() []Node {
	return prepend(n.Callee, n.Args)
}

func (n *NewExpr) Children() []Node {
	return prepend(n.Callee, n.Args)
}

func (n *AssignExpr) Children() []Node { return compact(n.Target, n.Value) }
func (n *Declarator) Children() []Node { return compact(n.Binding, n.Value) }
func (n *BinaryExpr) Children() []Node { return compact(n.Left, n.Right) }
func (n *TemplateLit) Children() []Node {
	return n.Exprs
}
func (*Ident) Children() []Node   { return nil }
func (*Literal) Children() []Node { return nil }

func (n *MemberExpr) Children() []Node {
	if n.Computed {
		return compact(n.Object, n.Index)
	}
	return compact(n.Object)
}

func (n *ObjectLit) Children() []Node {
	out := make([]Node, 0, len(n.Props)*2)
	for _, p := range n.Props {
		if p.Computed && p.KeyNode != nil {
			out = append(out, p.KeyNode)
		}
		if p.Value != nil {
			out = append(out, p.Value)
		}
	}
	return out
}

func (n *Opaque) Children() []Node { return n.Kids }

// Get returns the value of the property named key. Later duplicates win,
// as they do at runtime. Spread, computed and method entries are ignored.
func (n *ObjectLit) Get(key string) (Node, bool) {
	for i := len(n.Props) - 1; i >= 0; i-- {
		p := n.Props[i]
		if p.Spread || p.Computed || p.Method {
			continue
		}
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

func prepend(first Node, rest []Node) []Node {
	out := make([]Node, 0, len(rest)+1)
	if first != nil {
		out = append(out, first)
	}
	return append(out, rest...)
}

func compact(nodes ...Node) []Node {
	out := nodes[:0]
	for _, n := range nodes {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}
