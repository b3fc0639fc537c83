// internal/analysis/static/jwt/token_logic.go
package jwt

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// TokenAnalysisResult holds the results of analyzing a single JWT.
type TokenAnalysisResult struct {
	TokenString string
	Header      map[string]interface{}
	Claims      jwt.MapClaims
	Findings    []schemas.TokenIssue
}

// Algorithm returns the alg header, or "" when absent.
func (r TokenAnalysisResult) Algorithm() string {
	alg, _ := r.Header["alg"].(string)
	return alg
}

// Subject returns the sub claim, or "" when absent.
func (r TokenAnalysisResult) Subject() string {
	sub, _ := r.Claims["sub"].(string)
	return sub
}

// Risk is the highest risk among the findings, LOW when there are none.
func (r TokenAnalysisResult) Risk() schemas.RiskLevel {
	risk := schemas.RiskLow
	for _, f := range r.Findings {
		if f.Risk.Rank() > risk.Rank() {
			risk = f.Risk
		}
	}
	return risk
}

// weakSecrets is a list of common weak secrets used for brute-forcing.
var weakSecrets = []string{
	"secret", "password", "123456", "12345678", "admin", "test", "root", "qwerty", "changeme",
	"secretkey", "jwtsecret", "mysecret", "default", "key", "privatekey", "development",
	"production", "supersecret", "password123",
}

var (
	// parserUnverified inspects token contents without checking the signature.
	parserUnverified = new(jwt.Parser)

	// parserSkipClaimsValidation is used for brute-forcing secrets, ignoring expiration.
	parserSkipClaimsValidation = jwt.NewParser(jwt.WithoutClaimsValidation())
)

// AnalyzeToken inspects a JWT for weaknesses. With bruteForceEnabled, HMAC
// tokens are also verified against a short list of common secrets.
func AnalyzeToken(tokenString string, bruteForceEnabled bool) (TokenAnalysisResult, error) {
	result := TokenAnalysisResult{
		TokenString: tokenString,
		Findings:    []schemas.TokenIssue{},
	}

	token, _, err := parserUnverified.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return result, fmt.Errorf("failed to parse token unverified: %w", err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		result.Claims = claims
	}
	result.Header = token.Header

	alg, algOk := result.Header["alg"].(string)
	if algOk && strings.EqualFold(alg, "none") {
		result.Findings = append(result.Findings, schemas.TokenIssue{
			Kind:        schemas.TokenIssueAlgNone,
			Description: "JWT uses 'alg: none'. A server accepting it lets anyone forge tokens.",
			Risk:        schemas.RiskHigh,
		})
	}

	if containsSensitiveData(result.Claims) {
		result.Findings = append(result.Findings, schemas.TokenIssue{
			Kind:        schemas.TokenIssueSensitiveClaims,
			Description: "JWT payload contains potentially sensitive claims. JWT payloads are encoded, not encrypted.",
			Risk:        schemas.RiskMedium,
		})
	}

	if _, exists := result.Claims["exp"]; !exists {
		result.Findings = append(result.Findings, schemas.TokenIssue{
			Kind:        schemas.TokenIssueMissingExpiration,
			Description: "JWT has no 'exp' claim, so it never expires.",
			Risk:        schemas.RiskLow,
		})
	}

	if bruteForceEnabled && algOk && strings.HasPrefix(alg, "HS") {
		if secret := bruteForceSecret(tokenString); secret != "" {
			result.Findings = append(result.Findings, schemas.TokenIssue{
				Kind:        schemas.TokenIssueWeakSecret,
				Description: fmt.Sprintf("Weak secret found: '%s'. The token signature is valid using this common secret.", secret),
				Risk:        schemas.RiskHigh,
			})
		}
	}

	return result, nil
}

// bruteForceSecret attempts to verify the token signature using a list of weak secrets.
func bruteForceSecret(tokenString string) string {
	for _, secret := range weakSecrets {
		token, err := parserSkipClaimsValidation.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			// Only HMAC; a public key must never be used as an HMAC secret.
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err == nil && token.Valid {
			return secret
		}
	}
	return ""
}

// containsSensitiveData checks claim names for sensitive keywords.
func containsSensitiveData(claims jwt.MapClaims) bool {
	sensitiveKeywords := []string{
		"password", "pwd", "secret", "apikey", "api_key", "ssn", "creditcard",
		"privatekey", "credential", "auth_token", "access_key",
	}
	for key := range claims {
		lowerKey := strings.ToLower(key)
		for _, keyword := range sensitiveKeywords {
			if strings.Contains(lowerKey, keyword) {
				return true
			}
		}
	}
	return false
}
