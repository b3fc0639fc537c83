package javascript

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

func bindingNames(result *FileResult) []string {
	names := make([]string, 0, len(result.TaintedBindings))
	for _, b := range result.TaintedBindings {
		names = append(names, b.Name)
	}
	return names
}

func TestTaintPropagation(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		code     string
		expected []string
	}{
		{
			name:     "DirectPropertySource",
			code:     `var h = location.hash;`,
			expected: []string{"h"},
		},
		{
			name:     "WindowPrefixedSource",
			code:     `let u = window.location.href;`,
			expected: []string{"u"},
		},
		{
			name:     "ChainedAssignment",
			code:     `let a = document.referrer; let b = a; let c; c = b;`,
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "FunctionSource",
			code:     `const s = sessionStorage.getItem("k"); const p = prompt("name?");`,
			expected: []string{"s", "p"},
		},
		{
			name:     "PassthroughFunction",
			code:     `const d = decodeURIComponent(location.hash.slice(1));`,
			expected: []string{"d"},
		},
		{
			name:     "MethodOnTaintedReceiver",
			code:     `const q = location.search; const parts = q.split("&");`,
			expected: []string{"q", "parts"},
		},
		{
			name:     "URLSearchParams",
			code:     `const params = new URLSearchParams(location.search); const id = params.get("id");`,
			expected: []string{"params", "id"},
		},
		{
			name:     "ObjectDestructuring",
			code:     `const {user, meta: {role}, ...rest} = req.body;`,
			expected: []string{"user", "role", "rest"},
		},
		{
			name:     "ArrayDestructuring",
			code:     `const [first, , third = 1] = req.params;`,
			expected: []string{"first", "third"},
		},
		{
			name:     "MemberAssignment",
			code:     `const cfg = {}; cfg.endpoint = document.URL;`,
			expected: []string{"cfg.endpoint"},
		},
		{
			name:     "DeepPropertySource",
			code:     `const user = req.body.user;`,
			expected: []string{"user"},
		},
		{
			name:     "TemplateAndObject",
			code:     "const c = document.cookie; const msg = `c=${c}`; const payload = {msg};",
			expected: []string{"c", "msg", "payload"},
		},
		{
			name:     "TernaryBranches",
			code:     `const v = flag ? window.name : "none";`,
			expected: []string{"v"},
		},
		{
			name:     "TernaryConditionOnly",
			code:     `const v = location.hash ? "a" : "b";`,
			expected: []string{},
		},
		{
			name:     "CaseSensitiveCatalog",
			code:     `const v = Location.hash; const w = document.Cookie;`,
			expected: []string{},
		},
		{
			name:     "UnrelatedCall",
			code:     `const v = compute(location.hash);`,
			expected: []string{},
		},
		{
			name:     "AwaitedSource",
			code:     `async function f() { const v = await (prompt("x")); }`,
			expected: []string{"v"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result := runAnalysis(t, tt.code)
			assert.Equal(t, tt.expected, bindingNames(result))
		})
	}
}

func TestTaint_IsMonotonic(t *testing.T) {
	t.Parallel()
	// Reassigning a clean value never clears taint.
	result := runAnalysis(t, `
		let target = location.hash;
		target = "/safe";
		fetch(target);
	`)
	require.Len(t, result.Endpoints, 1)
	assert.Equal(t, schemas.RiskHigh, result.Endpoints[0].Risk)
	assert.Equal(t, []string{"target"}, bindingNames(result))
}

func TestTaint_SourcesAccumulate(t *testing.T) {
	t.Parallel()
	result := runAnalysis(t, `
		let v = location.hash;
		v = document.cookie;
	`)
	require.Len(t, result.TaintedBindings, 1)
	b := result.TaintedBindings[0]
	assert.Equal(t, 2, b.Line, "The first tainting line is kept")
	assert.Equal(t, []string{"document.cookie", "location.hash"}, b.Sources)
}

func TestTaint_OrderMatters(t *testing.T) {
	t.Parallel()
	// Inference runs at the call, before the later assignment taints url.
	result := runAnalysis(t, `
		let url = "/static";
		fetch(url);
		url = location.href;
		fetch(url);
	`)
	require.Len(t, result.Endpoints, 2)
	assert.Equal(t, schemas.RiskMedium, result.Endpoints[0].Risk)
	assert.Equal(t, schemas.RiskHigh, result.Endpoints[1].Risk)
}

func TestTaint_MemberPathPrefix(t *testing.T) {
	t.Parallel()
	result := runAnalysis(t, `
		state.request = location.search;
		fetch("/api" + state.request.slice(1));
		fetch(state.request.value);
	`)
	require.Len(t, result.Endpoints, 2)
	for _, ep := range result.Endpoints {
		assert.Equal(t, schemas.RiskHigh, ep.Risk, "endpoint %s", ep.URL)
		assert.Equal(t, []string{"location.search"}, ep.TaintedBy)
	}
}

func TestTaint_DangerousPatternSources(t *testing.T) {
	t.Parallel()
	result := runAnalysis(t, "const a = location.hash; const b = document.cookie;\nconst s = `${a}-${b}-${1 + 2}`;")

	require.Len(t, result.DangerousPatterns, 2, "One pattern per tainted substitution")
	assert.Equal(t, []string{"location.hash"}, result.DangerousPatterns[0].Sources)
	assert.Equal(t, []string{"document.cookie"}, result.DangerousPatterns[1].Sources)
	for _, p := range result.DangerousPatterns {
		assert.Equal(t, schemas.PatternTemplateLiteral, p.Kind)
		assert.Equal(t, 2, p.Line)
	}
}

func TestTaint_ObservedSourcesWithoutFlow(t *testing.T) {
	t.Parallel()
	result := runAnalysis(t, `
		console.log(document.referrer);
		if (confirm("sure?")) { track(); }
		new URLSearchParams("a=1");
	`)
	assert.Equal(t, []string{"URLSearchParams", "confirm", "document.referrer"}, result.TaintSources)
	assert.Empty(t, result.TaintedBindings)
}

func TestTaint_LongConcatenationChain(t *testing.T) {
	t.Parallel()
	var b strings.Builder
	b.WriteString("const seed = location.hash;\nconst long = seed")
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&b, ` + "p%d"`, i)
	}
	b.WriteString(";\nfetch(long);\n")

	result := runAnalysis(t, b.String())
	require.Len(t, result.Endpoints, 1)
	assert.Equal(t, schemas.RiskHigh, result.Endpoints[0].Risk)
	assert.Len(t, result.DangerousPatterns, 2000, "Each tainted + node is reported")
	for _, p := range result.DangerousPatterns {
		assert.LessOrEqual(t, len(p.Expression), maxExpressionLen+len("…"))
	}
}

func TestFileContext_TaintOfMemoInvalidation(t *testing.T) {
	t.Parallel()
	src := []byte(`x + y`)
	prog, err := Parse(context.Background(), "memo.js", src, LangJavaScript)
	require.NoError(t, err)

	var expr Node
	NewWalker(zaptest.NewLogger(t)).
		On(KindBinary, func(_ *FileContext, n Node) { expr = n }).
		Walk(NewFileContext("memo.js", src, DefaultOptions()), prog)
	require.NotNil(t, expr)

	fc := NewFileContext("memo.js", src, DefaultOptions())
	assert.False(t, fc.IsExprTainted(expr))

	fc.taint("y", 1, []TaintSource{SourcePrompt})
	assert.True(t, fc.IsExprTainted(expr), "A new binding invalidates cached results")
	assert.Equal(t, []TaintSource{SourcePrompt}, fc.TaintOf(expr))

	fc.taint("y", 1, []TaintSource{SourceAlert})
	assert.ElementsMatch(t, []TaintSource{SourcePrompt, SourceAlert}, fc.TaintOf(expr))
}
