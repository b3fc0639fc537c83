// internal/discovery/manifest.go
package discovery

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type manifestEntry struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// LoadManifest reads a JSON array of {url, content, type} triples, the form
// produced by a browser-side collector. A missing type means external.
func LoadManifest(r io.Reader) ([]schemas.ScriptSource, error) {
	var entries []manifestEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode script manifest: %w", err)
	}

	out := make([]schemas.ScriptSource, 0, len(entries))
	for i, e := range entries {
		if e.URL == "" {
			return nil, fmt.Errorf("manifest entry %d has no url", i)
		}
		typ, err := schemas.ParseScriptType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d (%s): %w", i, e.URL, err)
		}
		out = append(out, schemas.ScriptSource{URL: e.URL, Content: e.Content, Type: typ})
	}
	return out, nil
}

// WriteManifest writes sources in the form LoadManifest reads.
func WriteManifest(w io.Writer, sources []schemas.ScriptSource) error {
	entries := make([]manifestEntry, len(sources))
	for i, s := range sources {
		entries[i] = manifestEntry{URL: s.URL, Content: s.Content, Type: string(s.Type)}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(entries); err != nil {
		return fmt.Errorf("failed to encode script manifest: %w", err)
	}
	return nil
}
