// internal/discovery/html.go
package discovery

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// scriptMIMETypes are the <script type> values that hold executable code.
// JSON data blocks, templates and similar payloads are skipped.
var scriptMIMETypes = map[string]bool{
	"":                       true,
	"text/javascript":        true,
	"application/javascript": true,
	"text/ecmascript":        true,
	"application/ecmascript": true,
	"module":                 true,
	"text/babel":             true,
	"text/jsx":               true,
}

// InlineScriptName names the n-th inline script (1-based) found in page.
func InlineScriptName(page string, n int) string {
	return fmt.Sprintf("%s#script-%d", page, n)
}

// ExtractInlineScripts returns every non-empty inline <script> block of an
// HTML document, named page#script-N in document order.
func ExtractInlineScripts(page string, r io.Reader) ([]schemas.ScriptSource, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return InlineScriptsFromDocument(page, doc), nil
}

// InlineScriptsFromDocument is ExtractInlineScripts for an already parsed document.
func InlineScriptsFromDocument(page string, doc *goquery.Document) []schemas.ScriptSource {
	var out []schemas.ScriptSource
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if _, external := s.Attr("src"); external {
			return
		}
		typ, _ := s.Attr("type")
		if !scriptMIMETypes[strings.ToLower(strings.TrimSpace(typ))] {
			return
		}
		code := s.Text()
		if strings.TrimSpace(code) == "" {
			return
		}
		out = append(out, schemas.ScriptSource{
			URL:     InlineScriptName(page, len(out)+1),
			Content: code,
			Type:    schemas.ScriptInline,
		})
	})
	return out
}

// ExternalScriptsFromDocument returns the src of every executable
// <script src> element, in document order and as written in the page.
func ExternalScriptsFromDocument(doc *goquery.Document) []string {
	var out []string
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if !scriptMIMETypes[strings.ToLower(strings.TrimSpace(typ))] {
			return
		}
		if src := strings.TrimSpace(s.AttrOr("src", "")); src != "" {
			out = append(out, src)
		}
	})
	return out
}
