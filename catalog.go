package imagemerge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

const catalogImagePrefix = "images/"

// CatalogOpts selects the catalog section that merged assets are appended to.
type CatalogOpts struct {
	Path        string // e.g. article.json
	Key         string // top-level section
	TitlePrefix string // entry titles are "<prefix> NNNN"
}

// CatalogEntry is one title → image path pair.
type CatalogEntry struct {
	Title string
	Path  string
}

// CatalogEntries names merged assets for the catalog. Paths are relative to
// the archive's images/ directory: images/<dest base>/<file>.
func CatalogEntries(prefix, destDir string, merged []MergedAsset) []CatalogEntry {
	base := filepath.Base(filepath.Clean(destDir))
	out := make([]CatalogEntry, 0, len(merged))
	for _, m := range merged {
		out = append(out, CatalogEntry{
			Title: strings.TrimSpace(fmt.Sprintf("%s %04d", prefix, m.Sequence)),
			Path:  normalizeCatalogPath(base + "/" + m.Name),
		})
	}
	return out
}

// UpdateCatalog appends entries to section opts.Key of the JSON catalog,
// keeping the existing key order of both the document and the section.
// Existing string values in the section are normalized to forward slashes
// under images/. A missing catalog is created; a malformed one is an error
// and is left untouched.
func UpdateCatalog(opts CatalogOpts, entries []CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	if opts.Path == "" || opts.Key == "" {
		return fmt.Errorf("catalog: path and key are required")
	}

	doc := orderedmap.New[string, json.RawMessage]()
	data, err := os.ReadFile(opts.Path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return fmt.Errorf("catalog: read %s: %w", opts.Path, err)
	case len(strings.TrimSpace(string(data))) > 0:
		if err := json.Unmarshal(data, doc); err != nil {
			return fmt.Errorf("catalog: parse %s: %w", opts.Path, err)
		}
	}

	section := orderedmap.New[string, json.RawMessage]()
	if raw, ok := doc.Get(opts.Key); ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, section); err != nil {
			return fmt.Errorf("catalog: section %q is not an object: %w", opts.Key, err)
		}
	}

	for pair := section.Oldest(); pair != nil; pair = pair.Next() {
		var s string
		if json.Unmarshal(pair.Value, &s) != nil {
			continue
		}
		if norm := normalizeCatalogPath(s); norm != s {
			pair.Value = mustRaw(norm)
		}
	}
	for _, e := range entries {
		section.Set(e.Title, mustRaw(normalizeCatalogPath(e.Path)))
	}

	raw, err := json.Marshal(section)
	if err != nil {
		return fmt.Errorf("catalog: encode section: %w", err)
	}
	doc.Set(opts.Key, raw)

	if err := writeJSONAtomic(opts.Path, doc); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

func normalizeCatalogPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if !strings.HasPrefix(p, catalogImagePrefix) {
		p = catalogImagePrefix + p
	}
	return p
}

func mustRaw(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}
