package crawler

import (
	"slices"
	"strconv"
	"strings"
	"time"
)

// RevisionDateLayout is the timestamp format used by history listings.
const RevisionDateLayout = "2 Jan 2006 15:04"

// SortRevisions returns a copy of revisions ordered by date. Revisions whose date
// cannot be parsed sort first; ties keep ascending revision id order.
func SortRevisions(revisions []Revision) []Revision {
	out := make([]Revision, len(revisions))
	copy(out, revisions)
	for i := range out {
		if ts, err := time.Parse(RevisionDateLayout, strings.TrimSpace(out[i].Date)); err == nil {
			out[i].Timestamp = ts
		}
	}
	slices.SortFunc(out, func(a, b Revision) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return CompareRevisionIDs(a.ID, b.ID)
	})
	return out
}

// CompareRevisionIDs orders numeric ids numerically and places non-numeric ids last.
func CompareRevisionIDs(a, b string) int {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	switch {
	case errA == nil && errB == nil:
		return na - nb
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
