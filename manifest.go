package imagemerge

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"
)

// Manifest is the durable record of a fetch run. It is the recovery boundary
// between fetching and compare-and-merge.
type Manifest struct {
	RunID       string        `json:"runId,omitempty"`
	SourcePages []string      `json:"sourcePages"`
	FetchedAt   time.Time     `json:"fetchedAt"`
	StagingDir  string        `json:"stagingDir"`
	Count       int           `json:"count"`
	Items       []StagedAsset `json:"items"`
}

func sortStaged(items []StagedAsset) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Seq < items[j].Seq
	})
}

// WriteManifest persists m atomically with items sorted ascending by seq.
func WriteManifest(path string, m *Manifest) error {
	sortStaged(m.Items)
	m.Count = len(m.Items)
	if m.Items == nil {
		m.Items = []StagedAsset{}
	}
	if m.SourcePages == nil {
		m.SourcePages = []string{}
	}
	if err := writeJSONAtomic(path, m); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// LoadManifest reads a manifest written by WriteManifest.
// A missing file yields an error wrapping ErrManifestNotFound.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrManifestNotFound, path)
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	seqs := make([]CandidateItem, len(m.Items))
	for i, it := range m.Items {
		seqs[i] = it.CandidateItem
	}
	if err := checkSequence(seqs); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	sortStaged(m.Items)
	return &m, nil
}
