// Package audit compares the ids a source enumerates with the ids that have
// a recorded result.
package audit

import (
	"strconv"
	"strings"

	"github.com/jonathan/report-context/internal/types"
)

// Report is the outcome of a gap check.
type Report struct {
	SourceCount int
	ResultCount int
	// Missing are source ids with no result, ascending.
	Missing []types.ItemID
	// Extra are result ids the source no longer lists, ascending. They are
	// informational; an item deleted upstream after processing is not an error.
	Extra []types.ItemID
}

// Complete reports whether every source id has a result.
func (r Report) Complete() bool {
	return len(r.Missing) == 0
}

// Compare computes the gaps between sourceIDs and resultIDs. Duplicate ids
// in either input are counted once.
func Compare(sourceIDs, resultIDs []types.ItemID) Report {
	source := toSet(sourceIDs)
	recorded := toSet(resultIDs)

	report := Report{
		SourceCount: len(source),
		ResultCount: len(recorded),
	}
	for id := range source {
		if _, ok := recorded[id]; !ok {
			report.Missing = append(report.Missing, id)
		}
	}
	for id := range recorded {
		if _, ok := source[id]; !ok {
			report.Extra = append(report.Extra, id)
		}
	}
	types.SortIDs(report.Missing)
	types.SortIDs(report.Extra)
	return report
}

// FormatRanges renders sorted ids compactly, e.g. "1-3, 7, 9-12".
// An empty list renders as "None".
func FormatRanges(ids []types.ItemID) string {
	if len(ids) == 0 {
		return "None"
	}

	sorted := make([]types.ItemID, len(ids))
	copy(sorted, ids)
	types.SortIDs(sorted)

	var parts []string
	start, end := sorted[0], sorted[0]
	flush := func() {
		if start == end {
			parts = append(parts, strconv.Itoa(int(start)))
		} else {
			parts = append(parts, strconv.Itoa(int(start))+"-"+strconv.Itoa(int(end)))
		}
	}
	for _, id := range sorted[1:] {
		switch {
		case id == end:
			continue
		case id == end+1:
			end = id
		default:
			flush()
			start, end = id, id
		}
	}
	flush()
	return strings.Join(parts, ", ")
}

func toSet(ids []types.ItemID) map[types.ItemID]struct{} {
	set := make(map[types.ItemID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
