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

// Per-item failure statuses recorded in a report.
const (
	StatusMissingTemp = "missing_temp"
	StatusUnreadable  = "unreadable"
)

// ReportItem is the audit record for one manifest item. Nullable fields are
// nil when they do not apply: nothing was compared, or nothing was saved.
type ReportItem struct {
	Seq          int     `json:"seq"`
	URL          string  `json:"url"`
	TempFilename string  `json:"tempFilename"`
	BestMatch    *string `json:"bestMatch"`
	Distance     *int    `json:"distance"`
	IsNew        *bool   `json:"isNew"`
	SavedAs      *string `json:"savedAs"`
	Status       string  `json:"status,omitempty"`
}

// Report is written once at the end of a compare-and-merge run.
type Report struct {
	RunID        string       `json:"runId,omitempty"`
	GeneratedAt  time.Time    `json:"generatedAt"`
	Manifest     string       `json:"manifest,omitempty"`
	Threshold    int          `json:"threshold"`
	Method       Method       `json:"method"`
	DestDir      string       `json:"destDir"`
	DryRun       bool         `json:"dryRun"`
	IndexedCount int          `json:"indexedCount"`
	NewOnlyCount int          `json:"newOnlyCount"`
	Items        []ReportItem `json:"items"`
}

// ReportCounts summarizes a report's items.
type ReportCounts struct {
	Total       int
	New         int
	Duplicate   int
	Saved       int
	MissingTemp int
	Unreadable  int
}

// Counts tallies item outcomes.
func (r *Report) Counts() ReportCounts {
	c := ReportCounts{Total: len(r.Items)}
	for _, it := range r.Items {
		switch {
		case it.Status == StatusMissingTemp:
			c.MissingTemp++
		case it.Status == StatusUnreadable:
			c.Unreadable++
		case it.IsNew != nil && *it.IsNew:
			c.New++
		default:
			c.Duplicate++
		}
		if it.SavedAs != nil {
			c.Saved++
		}
	}
	return c
}

// WriteReport persists r atomically with items sorted by seq.
func WriteReport(path string, r *Report) error {
	sort.SliceStable(r.Items, func(i, j int) bool { return r.Items[i].Seq < r.Items[j].Seq })
	if r.Items == nil {
		r.Items = []ReportItem{}
	}
	if err := writeJSONAtomic(path, r); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// LoadReport reads a report written by WriteReport.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("report not found: %s", path)
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse report %s: %w", path, err)
	}
	return &r, nil
}

func decisionItem(d MatchDecision) ReportItem {
	it := ReportItem{
		Seq:          d.Item.Seq,
		URL:          d.Item.URL,
		TempFilename: d.Item.Filename,
		IsNew:        &d.IsNew,
	}
	if d.HasNearest {
		p, dist := d.NearestPath, d.Distance
		it.BestMatch, it.Distance = &p, &dist
	}
	return it
}

func failedItem(a StagedAsset, status string) ReportItem {
	return ReportItem{Seq: a.Seq, URL: a.URL, TempFilename: a.Filename, Status: status}
}
