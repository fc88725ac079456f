// Package activity derives usage scores and recency classification for reports.
package activity

import (
	"sort"
	"time"

	"github.com/jonathan/report-context/internal/types"
)

// DefaultWindow is the lookback window for "recent" query activity (12 months).
const DefaultWindow = 365 * 24 * time.Hour

// Score weights and caps.
const (
	recentQueryPoints  = 10
	maxDashboardPoints = 5
	maxParameterPoints = 3
)

// Score maps raw usage metadata to an ActivityRecord. It is pure and never fails;
// negative counts are clamped to zero.
//
// A card that sits on any dashboard counts as recently used even when it has not
// been queried inside the window.
func Score(u types.Usage, now time.Time, window time.Duration) types.ActivityRecord {
	if window <= 0 {
		window = DefaultWindow
	}

	dashboards := max(u.DashboardCount, 0)
	parameters := max(u.ParameterUsageCount, 0)

	score := 0
	recentlyUsed := false

	if u.LastQueryAt != nil && now.Sub(*u.LastQueryAt) <= window {
		score += recentQueryPoints
		recentlyUsed = true
	}
	if dashboards > 0 {
		score += min(dashboards, maxDashboardPoints)
		recentlyUsed = true
	}
	if parameters > 0 {
		score += min(parameters, maxParameterPoints)
	}

	return types.ActivityRecord{
		ItemID:              u.ItemID,
		Name:                u.Name,
		CollectionID:        u.CollectionID,
		LastActivityAt:      u.LastQueryAt,
		DashboardCount:      dashboards,
		ParameterUsageCount: parameters,
		ActivityScore:       score,
		IsRecentlyUsed:      recentlyUsed,
		Band:                Classify(score),
	}
}

// Classify maps a score to its band: 0 none, 1-5 low, 6-10 medium, 11+ high.
func Classify(score int) types.ActivityBand {
	switch {
	case score <= 0:
		return types.BandNone
	case score <= 5:
		return types.BandLow
	case score <= 10:
		return types.BandMedium
	default:
		return types.BandHigh
	}
}

// Summary aggregates a scoring run.
type Summary struct {
	Total        int
	RecentlyUsed int
	Bands        map[types.ActivityBand]int
	MostActive   []types.ActivityRecord
}

// Summarize counts records per band and returns the topN most active records
// ordered by score descending, then id ascending.
func Summarize(records []types.ActivityRecord, topN int) Summary {
	s := Summary{
		Total: len(records),
		Bands: map[types.ActivityBand]int{
			types.BandNone:   0,
			types.BandLow:    0,
			types.BandMedium: 0,
			types.BandHigh:   0,
		},
	}
	for _, r := range records {
		s.Bands[r.Band]++
		if r.IsRecentlyUsed {
			s.RecentlyUsed++
		}
	}

	ranked := make([]types.ActivityRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ActivityScore != ranked[j].ActivityScore {
			return ranked[i].ActivityScore > ranked[j].ActivityScore
		}
		return ranked[i].ItemID < ranked[j].ItemID
	})
	if topN >= 0 && len(ranked) > topN {
		ranked = ranked[:topN]
	}
	s.MostActive = ranked
	return s
}

// Filter keeps records meeting minScore, and only recently used ones when
// recentOnly is set.
func Filter(records []types.ActivityRecord, minScore int, recentOnly bool) []types.ActivityRecord {
	out := make([]types.ActivityRecord, 0, len(records))
	for _, r := range records {
		if r.ActivityScore < minScore {
			continue
		}
		if recentOnly && !r.IsRecentlyUsed {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Collection names used when a card's collection cannot be resolved.
const (
	RootCollection    = "Root Collection"
	UnknownCollection = "Unknown Collection"
)

// CollectionName resolves a card's collection id against names. Cards outside
// any collection live in the root collection.
func CollectionName(id *int, names map[int]string) string {
	if id == nil || *id == 0 {
		return RootCollection
	}
	if name, ok := names[*id]; ok && name != "" {
		return name
	}
	return UnknownCollection
}

// NameCollections fills CollectionName on every record in place.
func NameCollections(records []types.ActivityRecord, names map[int]string) {
	for i := range records {
		records[i].CollectionName = CollectionName(records[i].CollectionID, names)
	}
}
