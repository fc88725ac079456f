package metabase

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonathan/report-context/internal/types"
)

// Card is the subset of a Metabase card (saved question) this tool reads.
type Card struct {
	ID                  int          `json:"id"`
	Name                string       `json:"name"`
	Description         *string      `json:"description"`
	Archived            bool         `json:"archived"`
	CollectionID        *int         `json:"collection_id"`
	DatabaseID          *int         `json:"database_id"`
	QueryType           string       `json:"query_type"`
	DatasetQuery        datasetQuery `json:"dataset_query"`
	LastQueryStart      *string      `json:"last_query_start"`
	DashboardCount      int          `json:"dashboard_count"`
	ParameterUsageCount int          `json:"parameter_usage_count"`
	CreatedAt           string       `json:"created_at"`
	UpdatedAt           string       `json:"updated_at"`
}

type datasetQuery struct {
	Type   string          `json:"type"`
	Native *nativeQuery    `json:"native,omitempty"`
	Query  json.RawMessage `json:"query,omitempty"`
}

type nativeQuery struct {
	Query string `json:"query"`
}

type collection struct {
	ID   any    `json:"id"`
	Name string `json:"name"`
}

type currentUser struct {
	Email string `json:"email"`
}

// SQL returns the query text for the card. Native queries return their SQL;
// GUI-built queries are rendered as indented JSON with a "GUI Query:" prefix.
func (c *Card) SQL() string {
	switch c.DatasetQuery.Type {
	case "native":
		if c.DatasetQuery.Native == nil {
			return ""
		}
		return strings.TrimSpace(c.DatasetQuery.Native.Query)
	case "query":
		var v any
		if err := json.Unmarshal(c.DatasetQuery.Query, &v); err != nil {
			return ""
		}
		pretty, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return ""
		}
		return "GUI Query: " + string(pretty)
	default:
		return ""
	}
}

// WorkItem converts the card into the enrichment payload.
func (c *Card) WorkItem() *types.WorkItem {
	item := &types.WorkItem{
		ID:           types.ItemID(c.ID),
		Name:         strings.TrimSpace(c.Name),
		SQL:          c.SQL(),
		CollectionID: c.CollectionID,
		QueryType:    c.QueryType,
	}
	if c.Description != nil {
		item.Description = strings.TrimSpace(*c.Description)
	}
	return item
}

// Usage extracts activity metadata. An unparseable last_query_start is
// treated as absent and logged.
func (c *Card) Usage(logger *slog.Logger) *types.Usage {
	u := &types.Usage{
		ItemID:              types.ItemID(c.ID),
		Name:                c.Name,
		CollectionID:        c.CollectionID,
		DashboardCount:      c.DashboardCount,
		ParameterUsageCount: c.ParameterUsageCount,
	}
	if c.LastQueryStart != nil && *c.LastQueryStart != "" {
		t, err := parseTimestamp(*c.LastQueryStart)
		if err != nil {
			logger.Warn("could not parse last_query_start", "card_id", c.ID, "value", *c.LastQueryStart, "error", err)
		} else {
			u.LastQueryAt = &t
		}
	}
	return u
}

// parseTimestamp accepts the ISO-8601 variants Metabase emits.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		"2006-01-02T15:04:05.999999999",
		"2006-01-02T15:04:05.999999999-0700",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// collectionID returns the numeric id, or false for the synthetic "root" collection.
func (c collection) collectionID() (int, bool) {
	switch v := c.ID.(type) {
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}
