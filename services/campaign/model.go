package campaign

import (
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"
)

type CampaignStatus string

const (
	CampaignStatusPending   CampaignStatus = "pending"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusRejected  CampaignStatus = "rejected"
	CampaignStatusCompleted CampaignStatus = "completed"
)

// Campaign is a business's funded advertising request. trips_needed and
// trips_remaining are derived figures: trips_needed is always re-derivable as
// floor(budget / price_per_trip) and trips_remaining is a cache of the last
// reconcile, never an independently authoritative counter.
type Campaign struct {
	ID              string         `gorm:"column:id;primaryKey" json:"id"`
	Code            string         `gorm:"column:code" json:"code"`
	BusinessID      string         `gorm:"column:business_id;index;not null" json:"business_id"`
	Name            string         `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description     string         `gorm:"column:description;type:text" json:"description"`
	Route           string         `gorm:"column:route" json:"route"`
	PreferredRoutes datatypes.JSON `gorm:"column:preferred_routes" json:"preferred_routes"`
	Budget          int64          `gorm:"column:budget;not null" json:"budget"`
	PricePerTrip    int64          `gorm:"column:price_per_trip;not null" json:"price_per_trip"`
	TripsNeeded     int64          `gorm:"column:trips_needed" json:"trips_needed"`
	TripsRemaining  int64          `gorm:"column:trips_remaining" json:"trips_remaining"`
	Status          CampaignStatus `gorm:"column:status;type:varchar(50);not null;default:'pending'" json:"status"`
	Deadline        time.Time      `gorm:"column:deadline;not null" json:"deadline"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// TripsFor converts a budget into a whole number of fulfillable trips.
// A non-positive price yields 0; price validation happens at the API edge.
func TripsFor(budget, pricePerTrip int64) int64 {
	if pricePerTrip <= 0 {
		return 0
	}
	return budget / pricePerTrip
}

// NormalizeRoutes canonicalizes the preferred_routes field. Upstream clients
// send it as a plain string, an array, or a JSON-encoded string of an array;
// everything is parsed once here and stored as a clean string slice.
func NormalizeRoutes(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return trimRoutes(t)
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return trimRoutes(out)
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		if strings.HasPrefix(s, "[") {
			var arr []string
			if err := json.Unmarshal([]byte(s), &arr); err == nil {
				return trimRoutes(arr)
			}
		}
		return trimRoutes(strings.Split(s, ","))
	default:
		return nil
	}
}

func trimRoutes(in []string) []string {
	out := make([]string, 0, len(in))
	for _, r := range in {
		r = strings.TrimSpace(r)
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// SetPreferredRoutes stores the normalized route list and keeps the primary
// route column in sync with its first entry.
func (c *Campaign) SetPreferredRoutes(v any) error {
	routes := NormalizeRoutes(v)
	if len(routes) == 0 {
		c.Route = ""
		c.PreferredRoutes = nil
		return nil
	}

	raw, err := json.Marshal(routes)
	if err != nil {
		return err
	}

	c.Route = routes[0]
	c.PreferredRoutes = raw
	return nil
}
