// internal/analysis/static/jwt/extract.go
package jwt

import (
	"regexp"
	"strings"
)

// jwtPattern matches the compact serialization of a signed or unsigned JWT.
// Both the header and the payload are JSON objects, so they start with "eyJ".
var jwtPattern = regexp.MustCompile(`eyJ[A-Za-z0-9_-]{5,}\.eyJ[A-Za-z0-9_-]{5,}\.[A-Za-z0-9_-]*`)

// previewLength bounds how much of a token is kept in reports.
const previewLength = 16

// ExtractTokens returns every JWT found in a string literal, in order, such
// as the token inside "Bearer eyJ...".
func ExtractTokens(literal string) []string {
	if !strings.Contains(literal, "eyJ") {
		return nil
	}
	return jwtPattern.FindAllString(literal, -1)
}

// Preview shortens a token for display.
func Preview(token string) string {
	if len(token) <= previewLength {
		return token
	}
	return token[:previewLength] + "..."
}
