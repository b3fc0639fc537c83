// Filename: javascript/tokens.go
package javascript

import (
	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/analysis/static/jwt"
)

// detectTokens reports JSON Web Tokens embedded in string literals and in
// the static parts of template literals.
func detectTokens(fc *FileContext, n Node) {
	if !fc.Options.DetectTokens {
		return
	}
	switch lit := n.(type) {
	case *Literal:
		if lit.LitKind == LitString {
			fc.addTokens(lit, lit.Value)
		}
	case *TemplateLit:
		for _, q := range lit.Quasis {
			fc.addTokens(lit, q)
		}
	}
}

func (fc *FileContext) addTokens(n Node, text string) {
	for _, token := range jwt.ExtractTokens(text) {
		result, err := jwt.AnalyzeToken(token, fc.Options.BruteForceTokens)
		if err != nil {
			// Looked like a JWT but is not one, e.g. a truncated fixture.
			continue
		}
		sp := n.Span()
		fc.tokens = append(fc.tokens, schemas.HardcodedToken{
			File:      fc.File,
			Line:      sp.StartLine,
			Column:    sp.StartColumn,
			Algorithm: result.Algorithm(),
			Preview:   jwt.Preview(token),
			Subject:   result.Subject(),
			Issues:    result.Findings,
			Risk:      result.Risk(),
		})
	}
}

// Tokens returns the hardcoded tokens found so far, in source order.
func (fc *FileContext) Tokens() []schemas.HardcodedToken { return fc.tokens }
