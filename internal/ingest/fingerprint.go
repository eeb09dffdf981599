package ingest

import (
	"time"

	"github.com/MikeSquared-Agency/scribe/internal/segment"
)

// dedupWindow is the tolerance for matching timestamps across session and
// export files that recorded the same conversation.
const dedupWindow = 1 * time.Second

// overlapThreshold is the fraction of timestamps that must match before two
// files are considered the same conversation.
const overlapThreshold = 0.8

// fileFingerprint holds the timing profile of a parsed file for deduplication.
type fileFingerprint struct {
	Path       string
	Timestamps []time.Time
	Previews   []string // first 3 message texts, truncated
}

// BuildFingerprint creates a fingerprint from a parsed message sequence.
func BuildFingerprint(path string, msgs []segment.Message) fileFingerprint {
	fp := fileFingerprint{Path: path}

	for _, m := range msgs {
		if !m.Timestamp.IsZero() {
			fp.Timestamps = append(fp.Timestamps, m.Timestamp)
		}
	}

	for i, m := range msgs {
		if i >= 3 {
			break
		}
		text := m.Content
		if len(text) > 100 {
			text = text[:100]
		}
		fp.Previews = append(fp.Previews, text)
	}

	return fp
}

// FindDuplicates returns export file paths whose timestamps overlap a session
// file. Session logs are the richer record, so they win.
func FindDuplicates(sessionFPs, exportFPs []fileFingerprint) map[string]bool {
	duplicates := make(map[string]bool)

	for _, ex := range exportFPs {
		if len(ex.Timestamps) == 0 {
			continue
		}
		for _, ss := range sessionFPs {
			if isOverlapping(ss, ex) {
				duplicates[ex.Path] = true
				break
			}
		}
	}

	return duplicates
}

// isOverlapping checks if at least overlapThreshold of b's timestamps appear
// in a within dedupWindow.
func isOverlapping(a, b fileFingerprint) bool {
	if len(b.Timestamps) == 0 {
		return false
	}

	matches := 0
	for _, bt := range b.Timestamps {
		for _, at := range a.Timestamps {
			diff := bt.Sub(at)
			if diff < 0 {
				diff = -diff
			}
			if diff <= dedupWindow {
				matches++
				break
			}
		}
	}

	return float64(matches)/float64(len(b.Timestamps)) >= overlapThreshold
}
