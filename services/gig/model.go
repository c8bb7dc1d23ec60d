package gig

import (
	"time"
)

type GigStatus string

const (
	GigStatusAvailable GigStatus = "available"
	GigStatusPending   GigStatus = "pending"
	GigStatusAssigned  GigStatus = "assigned"
	GigStatusCompleted GigStatus = "completed"
	GigStatusSubmitted GigStatus = "submitted"
	GigStatusVerified  GigStatus = "verified"
	GigStatusRejected  GigStatus = "rejected"
	GigStatusPaid      GigStatus = "paid"
)

// ConsumedStatuses are the gig states that count against a campaign's
// remaining trips. available and pending are unclaimed inventory; rejected
// trips must be re-offered. paid is a settled verified trip and stays
// consumed, otherwise settlement would resurrect inventory.
var ConsumedStatuses = []GigStatus{
	GigStatusAssigned,
	GigStatusCompleted,
	GigStatusSubmitted,
	GigStatusVerified,
	GigStatusPaid,
}

// UnclaimedStatuses are the states a freelancer can still pick up.
var UnclaimedStatuses = []GigStatus{GigStatusAvailable, GigStatusPending}

// Gig is one fulfillable trip-slot of a campaign.
type Gig struct {
	ID                      string     `gorm:"column:id;primaryKey" json:"id"`
	CampaignID              string     `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	FreelancerID            *string    `gorm:"column:freelancer_id;index" json:"freelancer_id"`
	Status                  GigStatus  `gorm:"column:status;type:varchar(50);not null;default:'available'" json:"status"`
	TripsAssigned           int64      `gorm:"column:trips_assigned;not null;default:1" json:"trips_assigned"`
	FreelancerPayoutPerTrip int64      `gorm:"column:freelancer_payout_per_trip;not null" json:"freelancer_payout_per_trip"`
	Deadline                time.Time  `gorm:"column:deadline;not null" json:"deadline"`
	ProofObjectKey          string     `gorm:"column:proof_object_key" json:"proof_object_key,omitempty"`
	AssignedAt              *time.Time `gorm:"column:assigned_at" json:"assigned_at"`
	SubmittedAt             *time.Time `gorm:"column:submitted_at" json:"submitted_at"`
	CompletedAt             *time.Time `gorm:"column:completed_at" json:"completed_at"`
	CreatedAt               time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Gig) TableName() string {
	return "gigs"
}

// MidpointDeadline places a gig's deadline halfway between its creation time
// and the campaign's hard deadline, leaving room to reclaim and reassign
// abandoned work before the campaign itself expires.
func MidpointDeadline(createdAt, campaignDeadline time.Time) time.Time {
	return createdAt.Add(campaignDeadline.Sub(createdAt) / 2)
}

type ReconcileResult struct {
	TripsNeeded    int64 `json:"trips_needed"`
	TripsRemaining int64 `json:"trips_remaining"`
}

type SweepError struct {
	CampaignID string `json:"campaign_id"`
	Message    string `json:"message"`
}

type SweepResult struct {
	Created int64        `json:"created"`
	Errors  []SweepError `json:"errors"`
}
