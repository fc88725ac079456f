package types

import "time"

// ActivityBand is the coarse usage classification derived from an activity score.
type ActivityBand string

// ActivityBand values, ordered from least to most active.
const (
	BandNone   ActivityBand = "No Activity"
	BandLow    ActivityBand = "Low"
	BandMedium ActivityBand = "Medium"
	BandHigh   ActivityBand = "High"
)

// ActivityRecord is the derived usage view of one report. It is recomputed
// wholesale from fresh usage data on every analytics run.
type ActivityRecord struct {
	ItemID              ItemID       `json:"item_id"`
	Name                string       `json:"name,omitempty"`
	CollectionID        *int         `json:"collection_id,omitempty"`
	CollectionName      string       `json:"collection_name,omitempty"`
	LastActivityAt      *time.Time   `json:"last_activity_at,omitempty"`
	DashboardCount      int          `json:"dashboard_count"`
	ParameterUsageCount int          `json:"parameter_usage_count"`
	ActivityScore       int          `json:"activity_score"`
	IsRecentlyUsed      bool         `json:"is_recently_used"`
	Band                ActivityBand `json:"band"`
}
