// Filename: javascript/reconstruct.go
// Expression reconstructor: renders argument subtrees back into readable
// text. Anything that is not known statically becomes a placeholder; nothing
// is ever guessed. All functions here are pure.
package javascript

import (
	"strings"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// Reconstruct renders n as a string.
//
//   - string literal: its value as written
//   - number, boolean, null and undefined literals: their source text
//   - template literal: chunks with each substitution as ${<expr>}
//   - identifier: $name
//   - member access: the dotted path (a.b.c, a[$i])
//   - `+` concatenation: both operands rendered back to back
//   - object literal: {key: value, ...} in source order
//   - anything else: "..."
func Reconstruct(n Node) string {
	var b strings.Builder
	writeExpr(&b, n)
	return b.String()
}

func writeExpr(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case *Literal:
		if n.LitKind == LitRegex {
			b.WriteString(schemas.UnknownExpression)
			return
		}
		b.WriteString(n.Value)

	case *TemplateLit:
		for i, q := range n.Quasis {
			b.WriteString(q)
			if i < len(n.Exprs) {
				b.WriteString("${")
				writeExpr(b, n.Exprs[i])
				b.WriteString("}")
			}
		}

	case *Ident:
		if n.Name == "this" {
			b.WriteString("this")
			return
		}
		b.WriteString("$")
		b.WriteString(n.Name)

	case *MemberExpr:
		if !writeMember(b, n) {
			b.WriteString(schemas.UnknownExpression)
		}

	case *BinaryExpr:
		if n.Operator != "+" {
			b.WriteString(schemas.UnknownExpression)
			return
		}
		writeExpr(b, n.Left)
		writeExpr(b, n.Right)

	case *ObjectLit:
		b.WriteString("{")
		first := true
		for _, p := range n.Props {
			if p.Method || p.Spread {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(propertyKey(p))
			b.WriteString(": ")
			writeExpr(b, p.Value)
		}
		b.WriteString("}")

	default:
		b.WriteString(schemas.UnknownExpression)
	}
}

// writeMember renders a member chain. The base must be an identifier or
// `this`; the base identifier is written bare since the path itself marks
// the value as dynamic.
func writeMember(b *strings.Builder, m *MemberExpr) bool {
	var tmp strings.Builder
	switch obj := m.Object.(type) {
	case *Ident:
		tmp.WriteString(obj.Name)
	case *MemberExpr:
		if !writeMember(&tmp, obj) {
			return false
		}
	default:
		return false
	}
	if m.Computed {
		tmp.WriteString("[")
		writeExpr(&tmp, m.Index)
		tmp.WriteString("]")
	} else {
		tmp.WriteString(".")
		tmp.WriteString(m.Property)
	}
	b.WriteString(tmp.String())
	return true
}

func propertyKey(p Property) string {
	if p.Computed {
		return "[" + Reconstruct(p.KeyNode) + "]"
	}
	return p.Key
}

// ReconstructValue renders n as structured data for headers and bodies: an
// object literal becomes a map whose values are reconstructed recursively,
// and everything else becomes its Reconstruct string.
func ReconstructValue(n Node) any {
	obj, ok := n.(*ObjectLit)
	if !ok {
		return Reconstruct(n)
	}
	out := make(map[string]any, len(obj.Props))
	for _, p := range obj.Props {
		if p.Method || p.Spread {
			continue
		}
		out[propertyKey(p)] = ReconstructValue(p.Value)
	}
	return out
}

// IsStatic reports whether n reconstructs without any placeholder, i.e. its
// value is fully known from the source text.
func IsStatic(n Node) bool {
	switch n := n.(type) {
	case *Literal:
		return n.LitKind != LitRegex
	case *TemplateLit:
		for _, e := range n.Exprs {
			if !IsStatic(e) {
				return false
			}
		}
		return true
	case *BinaryExpr:
		return n.Operator == "+" && IsStatic(n.Left) && IsStatic(n.Right)
	case *ObjectLit:
		for _, p := range n.Props {
			if p.Method {
				continue
			}
			if p.Spread || p.Computed || !IsStatic(p.Value) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
