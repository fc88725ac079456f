// Package types provides type definitions for the structured data shared across the report-context pipeline.
package types

import (
	"strings"
	"time"
)

// ItemID is the stable Metabase card identifier. Ids are never reused upstream.
type ItemID int

// WorkItem is one report as fetched from Metabase. It carries everything the
// enrichment call needs and is never mutated after the fetch.
type WorkItem struct {
	ID           ItemID `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	SQL          string `json:"sql"`
	CollectionID *int   `json:"collection_id,omitempty"`
	QueryType    string `json:"query_type,omitempty"`
}

// HasEssentialData reports whether the item has both a name and query text.
// Items without them cannot be enriched.
func (w WorkItem) HasEssentialData() bool {
	return strings.TrimSpace(w.Name) != "" && strings.TrimSpace(w.SQL) != ""
}

// Usage is the raw activity metadata Metabase exposes for a card.
type Usage struct {
	ItemID              ItemID     `json:"item_id"`
	Name                string     `json:"name,omitempty"`
	CollectionID        *int       `json:"collection_id,omitempty"`
	LastQueryAt         *time.Time `json:"last_query_at,omitempty"`
	DashboardCount      int        `json:"dashboard_count"`
	ParameterUsageCount int        `json:"parameter_usage_count"`
}
