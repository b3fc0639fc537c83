// Filename: javascript/taint.go
// Taint evaluation over expressions and the propagation handlers that grow
// the tainted-binding set.
package javascript

import (
	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

type taintMemo struct {
	generation int
	sources    []TaintSource
}

// transparentOpaque lists the uninterpreted forms whose value is derived from
// their children, so child taint flows through them.
var transparentOpaque = map[string]bool{
	"parenthesized_expression": true,
	"await_expression":         true,
	"ternary_expression":       true,
	"as_expression":            true,
	"satisfies_expression":     true,
	"non_null_expression":      true,
	"type_assertion":           true,
	"spread_element":           true,
	"array":                    true,
	"sequence_expression":      true,
}

// TaintOf returns the sources that reach the value of n. An empty result
// means n is not tainted.
func (fc *FileContext) TaintOf(n Node) []TaintSource {
	if n == nil {
		return nil
	}
	if m, ok := fc.memo[n]; ok && m.generation == fc.generation {
		return m.sources
	}
	set := make(map[TaintSource]bool)
	fc.collectTaint(n, set)
	var out []TaintSource
	if len(set) > 0 {
		out = make([]TaintSource, 0, len(set))
		for s := range set {
			out = append(out, s)
		}
	}
	fc.memo[n] = taintMemo{generation: fc.generation, sources: out}
	return out
}

// IsExprTainted reports whether any source reaches n.
func (fc *FileContext) IsExprTainted(n Node) bool {
	return len(fc.TaintOf(n)) > 0
}

func (fc *FileContext) merge(n Node, acc map[TaintSource]bool) {
	for _, s := range fc.TaintOf(n) {
		acc[s] = true
	}
}

func (fc *FileContext) collectTaint(n Node, acc map[TaintSource]bool) {
	switch n := n.(type) {
	case *Ident:
		for _, s := range fc.bindingSources(n.Name) {
			acc[s] = true
		}

	case *MemberExpr:
		if path, ok := memberPath(n); ok {
			if src, ok := LookupSource(path, SourceProperty); ok {
				acc[src] = true
				return
			}
			if fc.collectPathTaint(path, acc) {
				return
			}
		}
		fc.merge(n.Object, acc)

	case *CallExpr:
		path := calleePath(n.Callee)
		if src, ok := LookupSource(path, SourceFunction); ok {
			acc[src] = true
			return
		}
		if IsPassthrough(path) {
			for _, arg := range n.Args {
				fc.merge(arg, acc)
			}
			return
		}
		// A method called on a tainted receiver (q.split, params.get) keeps the taint.
		if m, ok := n.Callee.(*MemberExpr); ok {
			fc.merge(m.Object, acc)
		}

	case *NewExpr:
		path := calleePath(n.Callee)
		if src, ok := LookupSource(path, SourceConstructor); ok {
			acc[src] = true
			return
		}
		if path == "URL" || path == "String" {
			for _, arg := range n.Args {
				fc.merge(arg, acc)
			}
		}

	case *BinaryExpr:
		fc.merge(n.Left, acc)
		fc.merge(n.Right, acc)

	case *TemplateLit:
		for _, e := range n.Exprs {
			fc.merge(e, acc)
		}

	case *AssignExpr:
		fc.merge(n.Value, acc)

	case *ObjectLit:
		for _, p := range n.Props {
			if p.Method {
				continue
			}
			fc.merge(p.Value, acc)
		}

	case *Opaque:
		if !transparentOpaque[n.Type] {
			return
		}
		kids := n.Kids
		// The condition of a ternary selects a branch but is not its value.
		if n.Type == "ternary_expression" && len(kids) == 3 {
			kids = kids[1:]
		}
		for _, k := range kids {
			fc.merge(k, acc)
		}

	case *Literal, *Declarator, *Program:
		// Never tainted.
	}
}

// collectPathTaint checks a dotted path and its prefixes against bindings
// created by member assignments (obj.x = location.hash).
func (fc *FileContext) collectPathTaint(path string, acc map[TaintSource]bool) bool {
	found := false
	for p := path; p != ""; p = parentPath(p) {
		if !fc.IsTainted(p) {
			continue
		}
		for _, s := range fc.bindingSources(p) {
			acc[s] = true
		}
		found = true
	}
	return found
}

// -- Propagation handlers --

func handleDeclarator(fc *FileContext, n Node) {
	d, ok := n.(*Declarator)
	if !ok || d.Value == nil || len(d.Names) == 0 {
		return
	}
	sources := fc.TaintOf(d.Value)
	if len(sources) == 0 {
		return
	}
	for _, name := range d.Names {
		fc.taint(name, d.Span().StartLine, sources)
	}
}

func handleAssignment(fc *FileContext, n Node) {
	a, ok := n.(*AssignExpr)
	if !ok {
		return
	}
	sources := fc.TaintOf(a.Value)
	if len(sources) == 0 {
		return
	}
	switch target := a.Target.(type) {
	case *Ident:
		fc.taint(target.Name, a.Span().StartLine, sources)
	case *MemberExpr:
		if path, ok := memberPath(target); ok {
			fc.taint(path, a.Span().StartLine, sources)
		}
	}
}

// handleBinary reports tainted string concatenation.
func handleBinary(fc *FileContext, n Node) {
	b, ok := n.(*BinaryExpr)
	if !ok || b.Operator != "+" {
		return
	}
	set := make(map[TaintSource]bool)
	fc.merge(b.Left, set)
	fc.merge(b.Right, set)
	if len(set) == 0 {
		return
	}
	fc.addPattern(schemas.PatternStringConcat, b, set)
}

// handleTemplate reports each tainted substitution in a template literal.
func handleTemplate(fc *FileContext, n Node) {
	t, ok := n.(*TemplateLit)
	if !ok {
		return
	}
	for _, e := range t.Exprs {
		set := make(map[TaintSource]bool)
		fc.merge(e, set)
		if len(set) == 0 {
			continue
		}
		sp := e.Span()
		fc.patterns = append(fc.patterns, schemas.DangerousPattern{
			File:       fc.File,
			Line:       sp.StartLine,
			Column:     sp.StartColumn,
			Kind:       schemas.PatternTemplateLiteral,
			Expression: clippedText(t, maxExpressionLen),
			Sources:    sortedSources(set),
		})
	}
}

func (fc *FileContext) addPattern(kind schemas.PatternKind, n Node, set map[TaintSource]bool) {
	sp := n.Span()
	fc.patterns = append(fc.patterns, schemas.DangerousPattern{
		File:       fc.File,
		Line:       sp.StartLine,
		Column:     sp.StartColumn,
		Kind:       kind,
		Expression: clippedText(n, maxExpressionLen),
		Sources:    sortedSources(set),
	})
}

// -- Observation handlers --

func observeMember(fc *FileContext, n Node) {
	m, ok := n.(*MemberExpr)
	if !ok {
		return
	}
	if path, ok := memberPath(m); ok {
		if src, ok := LookupSource(path, SourceProperty); ok {
			fc.observe(src)
		}
	}
}

func observeCall(fc *FileContext, n Node) {
	c, ok := n.(*CallExpr)
	if !ok {
		return
	}
	if src, ok := LookupSource(calleePath(c.Callee), SourceFunction); ok {
		fc.observe(src)
	}
}

func observeNew(fc *FileContext, n Node) {
	c, ok := n.(*NewExpr)
	if !ok {
		return
	}
	if src, ok := LookupSource(calleePath(c.Callee), SourceConstructor); ok {
		fc.observe(src)
	}
}
