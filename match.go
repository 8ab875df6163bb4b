package imagemerge

// MatchDecision is the outcome of comparing one staged candidate against the
// archive. The nearest path and distance are recorded whether or not the
// candidate is new.
type MatchDecision struct {
	Item        StagedAsset
	NearestPath string
	Distance    int
	HasNearest  bool
	IsNew       bool
}

// Nearest scans the whole index for the entry closest to fp. Among equally
// close entries the lexicographically smallest path wins. ok is false when the
// index is empty.
func (ix *ArchiveIndex) Nearest(fp Fingerprint) (path string, dist int, ok bool) {
	if ix.Len() == 0 || fp.IsZero() {
		return "", 0, false
	}
	best := -1
	// entries are sorted by path, so a strict < keeps the first (smallest) tie.
	for i := range ix.entries {
		d := Distance(fp, ix.entries[i].Fingerprint)
		if best < 0 || d < dist {
			best, dist = i, d
			if d == 0 {
				break
			}
		}
	}
	return ix.entries[best].Path, dist, true
}

// Match classifies item as new when the index is empty or the nearest archive
// entry is strictly farther than threshold. A distance equal to threshold is a
// duplicate.
func Match(item StagedAsset, fp Fingerprint, ix *ArchiveIndex, threshold int) MatchDecision {
	d := MatchDecision{Item: item}
	d.NearestPath, d.Distance, d.HasNearest = ix.Nearest(fp)
	d.IsNew = !d.HasNearest || d.Distance > threshold
	return d
}
