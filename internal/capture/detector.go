package capture

import "github.com/retracehq/retrace/internal/fingerprint"

// Detector decides whether a frame is similar enough to the last analyzed
// frame to skip. The baseline only moves when a frame is actually analyzed,
// so a slow drift across many skipped frames still triggers analysis once
// the accumulated change crosses the threshold.
type Detector struct {
	baseline    fingerprint.Hash
	hasBaseline bool
}

// Decide reports whether the frame should be skipped and how similar it is
// to the current baseline. The first frame is never skipped.
func (d *Detector) Decide(h fingerprint.Hash, threshold float64) (skip bool, similarity float64) {
	if !d.hasBaseline {
		return false, 0
	}
	similarity = fingerprint.Similarity(d.baseline, h)
	return similarity >= threshold, similarity
}

// Commit records h as the new baseline after the frame is sent for analysis.
func (d *Detector) Commit(h fingerprint.Hash) {
	d.baseline = h
	d.hasBaseline = true
}

// Reset forgets the baseline, forcing the next frame to be analyzed.
func (d *Detector) Reset() {
	d.hasBaseline = false
}
