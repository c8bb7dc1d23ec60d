package taskname

// Task type names shared between the API service (enqueue side) and the
// worker (handler side).
const (
	// Campaign tasks
	CampaignSweep     = "campaign:sweep"
	CampaignReconcile = "campaign:reconcile"

	// Gig tasks
	GigReclaimOverdue = "gig:reclaim:overdue"

	// Payout tasks
	PayoutSettle = "payout:settle"
)

type CampaignReconcilePayload struct {
	CampaignID string `json:"campaign_id"`
	TraceID    string `json:"trace_id,omitempty"`
}

type PayoutSettlePayload struct {
	FreelancerID string `json:"freelancer_id"`
	TraceID      string `json:"trace_id,omitempty"`
}
