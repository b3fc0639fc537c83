package javascript

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

func TestMemberPath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		code     string
		expected string
		ok       bool
	}{
		{"window.location.hash", "window.location.hash", true},
		{"obj['prop']", "obj.prop", true},
		{"this.data", "this.data", true},
		{"simple", "simple", true},
		{"arr[0]", "", false},
		{"obj[variable]", "", false},
		{"getObj().field", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			node := parseExpr(t, tt.code)
			path, ok := memberPath(node)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, path)
		})
	}
}

func TestPathHelpers(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a.b", parentPath("a.b.c"))
	assert.Equal(t, "", parentPath("a"))
	assert.Equal(t, "axios", lastSegment("window.axios"))
	assert.Equal(t, "axios", lastSegment("axios"))
}

func TestTruncate(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc…", truncate("abcdef", 3))
	assert.Equal(t, "anything", truncate("anything", 0), "A zero limit disables truncation")

	// Never split a multi-byte rune.
	cut := truncate("ééé", 3)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, "é…", cut)
}

func TestClippedText(t *testing.T) {
	t.Parallel()
	src := []byte(strings.Repeat("é", 1<<20))
	whole := &Ident{base: base{src: src, start: 0, end: uint32(len(src))}}

	assert.Len(t, whole.textPrefix(10), 10+utf8.UTFMax, "Only a bounded prefix is copied")
	clipped := clippedText(whole, 9)
	assert.Equal(t, truncate(whole.Text(), 9), clipped)
	assert.Equal(t, strings.Repeat("é", 4)+"…", clipped)

	short := &Ident{base: base{src: src, start: 2, end: 8}}
	assert.Equal(t, "ééé", clippedText(short, 10))
	assert.Equal(t, short.Text(), clippedText(short, 0), "A zero limit disables truncation")

	assert.Empty(t, clippedText(&Ident{}, 10))
}

func TestCaptureContext_ClipsToFile(t *testing.T) {
	t.Parallel()
	src := "line1\r\nline2\r\nline3"
	opts := DefaultOptions()
	opts.ContextLines = 5
	fc := NewFileContext("ctx.js", []byte(src), opts)

	window := fc.captureContext(Span{StartLine: 2, EndLine: 2})
	assert.Equal(t, 1, window.StartLine)
	assert.Equal(t, 3, window.EndLine)
	assert.Equal(t, "line1\nline2\nline3", window.Text)
}

func TestCaptureContext_LongLines(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("a", 500) + "fetch('/x')" + strings.Repeat("b", 500)
	src := strings.Repeat("c", 300) + "\n" + long
	opts := DefaultOptions()
	opts.ContextLineLimit = 100
	fc := NewFileContext("min.js", []byte(src), opts)

	window := fc.captureContext(Span{StartLine: 2, StartColumn: 500, EndLine: 2, EndColumn: 511})
	lines := strings.Split(window.Text, "\n")
	assert.Len(t, lines, 2)
	assert.Equal(t, strings.Repeat("c", 100)+"…", lines[0], "Other lines keep their prefix")
	assert.Contains(t, lines[1], "fetch('/x')", "The call line is clipped around the call")
	assert.True(t, strings.HasPrefix(lines[1], "…"))
	assert.True(t, strings.HasSuffix(lines[1], "…"))
}

func TestInferAuth(t *testing.T) {
	t.Parallel()
	assert.Equal(t, &schemas.AuthInfo{Type: "bearer", Token: TokenPlaceholder},
		inferAuth(`headers: {Authorization: "Bearer " + t}`))
	assert.Equal(t, &schemas.AuthInfo{Type: "bearer", Token: TokenPlaceholder},
		inferAuth(`const accessToken = getToken();`))
	assert.Equal(t, &schemas.AuthInfo{Type: "basic", Credentials: CredentialsPlaceholder},
		inferAuth(`"Authorization": "Basic " + btoa(u + ":" + p)`))
	assert.Nil(t, inferAuth(`fetch("/public")`))
}

func TestFormatLocation(t *testing.T) {
	t.Parallel()
	node := parseExpr(t, "value")
	loc := FormatLocation("loc.js", node)
	assert.Equal(t, "loc.js:1:12", loc.String())
	assert.Equal(t, LocationInfo{File: "loc.js"}, FormatLocation("loc.js", nil))
}
