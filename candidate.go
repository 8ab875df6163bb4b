package imagemerge

import (
	"context"
	"fmt"
	"path/filepath"
)

// CandidateItem is one image URL in display order. Seq is assigned once and
// never changes; every ordered stage sorts by it.
type CandidateItem struct {
	Seq   int    `json:"seq"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
	Group string `json:"group,omitempty"`
}

// StagedAsset is a candidate that was fetched into the staging directory.
type StagedAsset struct {
	CandidateItem
	Filename string `json:"filename"`
	Size     int64  `json:"size,omitempty"`
	Credit   string `json:"credit,omitempty"` // artist/copyright from embedded metadata
}

// Path returns the staged file location under stagingDir.
func (s StagedAsset) Path(stagingDir string) string {
	return filepath.Join(stagingDir, s.Filename)
}

// ExtractedImage is what an Extractor reports for one image on a page.
type ExtractedImage struct {
	Title string
	URL   string
	Group string
}

// Extractor turns one page or gallery identifier into its images, in display order.
type Extractor interface {
	Extract(ctx context.Context, page string) ([]ExtractedImage, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, page string) ([]ExtractedImage, error)

func (f ExtractorFunc) Extract(ctx context.Context, page string) ([]ExtractedImage, error) {
	return f(ctx, page)
}

// CollectCandidates visits pages in order and numbers their images 1..n.
// A URL seen on an earlier page is dropped; maxCount > 0 caps the list.
// A page that fails is logged and skipped.
func (cfg *Config) CollectCandidates(ctx context.Context, ex Extractor, pages []string, maxCount int) ([]CandidateItem, error) {
	log := cfg.logger()
	seen := make(map[string]bool)
	var items []CandidateItem

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := ex.Extract(ctx, page)
		if err != nil {
			log.Warn("imagemerge: extract failed", "page", page, "error", err.Error())
			continue
		}
		log.Info("imagemerge: collected page", "page", page, "candidates", len(found))
		for _, img := range found {
			if img.URL == "" || seen[img.URL] {
				continue
			}
			seen[img.URL] = true
			items = append(items, CandidateItem{URL: img.URL, Title: img.Title, Group: img.Group})
		}
	}

	if maxCount > 0 && len(items) > maxCount {
		items = items[:maxCount]
	}
	if len(items) == 0 {
		return nil, ErrNoCandidates
	}
	for i := range items {
		items[i].Seq = i + 1
	}
	return items, nil
}

// checkSequence verifies that every Seq is positive and unique.
func checkSequence(items []CandidateItem) error {
	seen := make(map[int]bool, len(items))
	for _, it := range items {
		if it.Seq <= 0 {
			return fmt.Errorf("imagemerge: candidate %q has non-positive seq %d", it.URL, it.Seq)
		}
		if seen[it.Seq] {
			return fmt.Errorf("imagemerge: duplicate candidate seq %d", it.Seq)
		}
		seen[it.Seq] = true
	}
	return nil
}
