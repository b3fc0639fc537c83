// Filename: javascript/helpers.go
package javascript

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxExpressionLen bounds expression text copied into diagnostics.
const maxExpressionLen = 200

// LocationInfo is a file position used in log fields and error messages.
type LocationInfo struct {
	File   string
	Line   int
	Column int
}

func (l LocationInfo) String() string {
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
}

// FormatLocation returns the start position of n within file.
func FormatLocation(file string, n Node) LocationInfo {
	if n == nil {
		return LocationInfo{File: file}
	}
	sp := n.Span()
	return LocationInfo{File: file, Line: sp.StartLine, Column: sp.StartColumn}
}

// memberPath flattens a chain of non-computed property accesses rooted at an
// identifier or `this` (window.location.hash -> "window.location.hash").
func memberPath(n Node) (string, bool) {
	var parts []string
	current := n
	for {
		switch cur := current.(type) {
		case *Ident:
			parts = append(parts, cur.Name)
			reverse(parts)
			return strings.Join(parts, "."), true
		case *MemberExpr:
			if cur.Computed || cur.Property == "" {
				return "", false
			}
			parts = append(parts, cur.Property)
			current = cur.Object
		default:
			// Not a simple property access chain (call result, literal, ...).
			return "", false
		}
	}
}

// calleePath renders a callee as a dotted path, or "" when it is not one.
func calleePath(n Node) string {
	path, _ := memberPath(n)
	return path
}

// parentPath drops the last segment of a dotted path.
func parentPath(p string) string {
	i := strings.LastIndexByte(p, '.')
	if i <= 0 {
		return ""
	}
	return p[:i]
}

func lastSegment(p string) string {
	return p[strings.LastIndexByte(p, '.')+1:]
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// truncate cuts s after limit bytes, without splitting a rune, and marks the cut.
func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

// clippedText is truncate(n.Text(), limit) without copying the full span.
func clippedText(n Node, limit int) string {
	return truncate(n.textPrefix(limit), limit)
}

// ContextWindow is the block of source lines captured around a call site.
type ContextWindow struct {
	StartLine int
	EndLine   int
	Text      string
}

// captureContext returns the lines from span.StartLine-n to span.EndLine+n,
// clipped to the file. Lines longer than the configured limit are cut to a
// window around the call column on the call's first line and to their prefix
// elsewhere.
func (fc *FileContext) captureContext(span Span) ContextWindow {
	n := fc.Options.ContextLines
	total := len(fc.lines)
	if total == 0 {
		return ContextWindow{}
	}
	start := max(span.StartLine-n, 1)
	end := min(span.EndLine+n, total)

	limit := fc.Options.ContextLineLimit
	out := make([]string, 0, end-start+1)
	for line := start; line <= end; line++ {
		text := strings.TrimSuffix(fc.lines[line-1], "\r")
		if limit > 0 && len(text) > limit {
			if line == span.StartLine {
				text = clipAround(text, span.StartColumn, limit)
			} else {
				text = truncate(text, limit)
			}
		}
		if fc.Options.IncludePrettify {
			text = prettifyLine(text)
		}
		out = append(out, text)
	}
	return ContextWindow{StartLine: start, EndLine: end, Text: strings.Join(out, "\n")}
}

// clipAround keeps limit bytes of s centered on col.
func clipAround(s string, col, limit int) string {
	from := max(col-limit/2, 0)
	to := min(from+limit, len(s))
	from = max(to-limit, 0)
	for from > 0 && from < len(s) && !utf8.RuneStart(s[from]) {
		from--
	}
	for to < len(s) && !utf8.RuneStart(s[to]) {
		to++
	}
	clipped := s[from:to]
	if from > 0 {
		clipped = "…" + clipped
	}
	if to < len(s) {
		clipped += "…"
	}
	return clipped
}

// prettifyLine is the cosmetic normalization applied when IncludePrettify is
// set: tabs become two spaces and trailing whitespace is dropped.
func prettifyLine(s string) string {
	return strings.TrimRight(strings.ReplaceAll(s, "\t", "  "), " \r")
}
