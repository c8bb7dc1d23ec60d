package gig

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/services/campaign"
	"matwana-controlplane/services/ledger"
	"matwana-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &campaign.Campaign{}, &Gig{}, &ledger.LedgerEntry{}, &ledger.Balance{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Marketplace.DefaultPricePerTrip = 1000
	cfg.Marketplace.FreelancerPayoutPerTrip = 500

	ledgerSvc := ledger.NewService(ledger.ServiceParams{DB: db, Node: node})
	svc := NewService(ServiceParams{DB: db, Config: cfg, Node: node, Ledger: ledgerSvc})

	return svc, db
}

// seedNode is shared across seedCampaign calls: a fresh node per call can
// hand out the same ID twice within one millisecond.
var seedNode = func() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}()

func seedCampaign(t *testing.T, db *gorm.DB, budget, pricePerTrip int64) *campaign.Campaign {
	t.Helper()

	node := seedNode

	now := time.Now().UTC()
	c := &campaign.Campaign{
		ID:             node.Generate().String(),
		BusinessID:     "biz-1",
		Name:           "Downtown loop",
		Route:          "Route 46",
		Budget:         budget,
		PricePerTrip:   pricePerTrip,
		TripsNeeded:    campaign.TripsFor(budget, pricePerTrip),
		TripsRemaining: campaign.TripsFor(budget, pricePerTrip),
		Status:         campaign.CampaignStatusActive,
		Deadline:       now.Add(48 * time.Hour),
		CreatedAt:      now,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func fetchCampaign(t *testing.T, db *gorm.DB, id string) *campaign.Campaign {
	t.Helper()
	var c campaign.Campaign
	require.NoError(t, db.Where("id = ?", id).First(&c).Error)
	return &c
}

func assignGigs(t *testing.T, db *gorm.DB, campaignID, freelancerID string, n int) []string {
	t.Helper()

	var gigs []Gig
	require.NoError(t, db.Where("campaign_id = ? AND status = ?", campaignID, GigStatusAvailable).
		Order("created_at ASC").Limit(n).Find(&gigs).Error)
	require.Len(t, gigs, n)

	now := time.Now().UTC()
	ids := make([]string, 0, n)
	for _, g := range gigs {
		ids = append(ids, g.ID)
		require.NoError(t, db.Model(&Gig{}).Where("id = ?", g.ID).Updates(map[string]any{
			"status":        GigStatusAssigned,
			"freelancer_id": freelancerID,
			"assigned_at":   now,
		}).Error)
	}
	return ids
}

func TestReconcileNotFound(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Reconcile(context.Background(), "missing")
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestReconcileCounters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)

	created, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), created)

	rec, err := svc.Reconcile(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), rec.TripsNeeded)
	require.Equal(t, int64(10), rec.TripsRemaining)

	// 3 assigned, 7 still available.
	assignGigs(t, db, c.ID, "f1", 3)

	rec, err = svc.Reconcile(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), rec.TripsNeeded)
	require.Equal(t, int64(7), rec.TripsRemaining)

	stored := fetchCampaign(t, db, c.ID)
	require.Equal(t, int64(10), stored.TripsNeeded)
	require.Equal(t, int64(7), stored.TripsRemaining)
}

func TestReconcileIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)
	assignGigs(t, db, c.ID, "f1", 4)

	first, err := svc.Reconcile(ctx, c.ID)
	require.NoError(t, err)

	second, err := svc.Reconcile(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, first, second)

	stored := fetchCampaign(t, db, c.ID)
	require.Equal(t, first.TripsNeeded, stored.TripsNeeded)
	require.Equal(t, first.TripsRemaining, stored.TripsRemaining)
}

func TestReconcileClampsAtZero(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Price raised after gigs were consumed: needed drops below consumed.
	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)
	assignGigs(t, db, c.ID, "f1", 6)

	require.NoError(t, db.Model(&campaign.Campaign{}).Where("id = ?", c.ID).
		Update("price_per_trip", 2500).Error)

	rec, err := svc.Reconcile(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(4), rec.TripsNeeded)
	require.Equal(t, int64(0), rec.TripsRemaining)
}

func TestTopUpCreatesMidpointDeadlines(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)

	created, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Equal(t, int64(10), created)

	var gigs []Gig
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Find(&gigs).Error)
	require.Len(t, gigs, 10)

	now := time.Now().UTC()
	for _, g := range gigs {
		require.Equal(t, GigStatusAvailable, g.Status)
		require.Equal(t, int64(1), g.TripsAssigned)
		require.Equal(t, int64(500), g.FreelancerPayoutPerTrip)
		require.Nil(t, g.FreelancerID)

		// Midpoint of the campaign's remaining lifetime, strictly inside it.
		require.True(t, g.Deadline.After(c.CreatedAt))
		require.True(t, g.Deadline.Before(c.Deadline))
		require.WithinDuration(t, now.Add(24*time.Hour), g.Deadline, 5*time.Second)
	}
}

func TestTopUpValidation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)

	_, err := svc.TopUp(ctx, c.ID, 0)
	require.Error(t, err)

	_, err = svc.TopUp(ctx, "missing", 5)
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestTopUpRejectsPayoutAbovePrice(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Flat payout of 500 exceeds this campaign's 400 per trip.
	c := seedCampaign(t, db, 10000, 400)

	_, err := svc.TopUp(ctx, c.ID, 5)
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())

	var count int64
	require.NoError(t, db.Model(&Gig{}).Where("campaign_id = ?", c.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestSweepTopsUpAndStaysIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(10), result.Created)
	require.Empty(t, result.Errors)

	// Inventory already matches remaining; a second sweep creates nothing.
	result, err = svc.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Created)
	require.Empty(t, result.Errors)

	var count int64
	require.NoError(t, db.Model(&Gig{}).Where("campaign_id = ?", c.ID).Count(&count).Error)
	require.Equal(t, int64(10), count)
}

func TestSweepRefillsShortfallOnly(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)

	_, err := svc.Sweep(ctx)
	require.NoError(t, err)

	var victims []Gig
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Limit(2).Find(&victims).Error)
	for _, v := range victims {
		require.NoError(t, db.Delete(&Gig{}, "id = ?", v.ID).Error)
	}

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), result.Created)
}

func TestSweepIsolatesCampaignFailures(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	bad := seedCampaign(t, db, 10000, 400) // payout 500 > 400, top-up must fail
	good := seedCampaign(t, db, 5000, 1000)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), result.Created)
	require.Len(t, result.Errors, 1)
	require.Equal(t, bad.ID, result.Errors[0].CampaignID)
	require.NotEmpty(t, result.Errors[0].Message)

	var count int64
	require.NoError(t, db.Model(&Gig{}).Where("campaign_id = ?", good.ID).Count(&count).Error)
	require.Equal(t, int64(5), count)
}

func TestSweepSkipsIneligibleCampaigns(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	rejected := seedCampaign(t, db, 10000, 1000)
	require.NoError(t, db.Model(&campaign.Campaign{}).Where("id = ?", rejected.ID).
		Update("status", campaign.CampaignStatusRejected).Error)

	routeless := seedCampaign(t, db, 10000, 1000)
	require.NoError(t, db.Model(&campaign.Campaign{}).Where("id = ?", routeless.ID).
		Update("route", "").Error)

	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Created)
	require.Empty(t, result.Errors)
}

func TestAllocate(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	remaining, err := svc.Allocate(ctx, c.ID, "f1", 3)
	require.NoError(t, err)
	require.Equal(t, int64(7), remaining)

	var claimed []Gig
	require.NoError(t, db.Where("campaign_id = ? AND freelancer_id = ?", c.ID, "f1").Find(&claimed).Error)
	require.Len(t, claimed, 3)
	for _, g := range claimed {
		require.Equal(t, GigStatusAssigned, g.Status)
		require.NotNil(t, g.AssignedAt)
	}

	stored := fetchCampaign(t, db, c.ID)
	require.Equal(t, int64(7), stored.TripsRemaining)
}

func TestAllocateValidation(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)

	_, err := svc.Allocate(ctx, c.ID, "f1", 0)
	require.Error(t, err)

	_, err = svc.Allocate(ctx, "", "f1", 1)
	require.Error(t, err)

	_, err = svc.Allocate(ctx, "missing", "f1", 1)
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusNotFound, be.Status())
}

func TestAllocateInsufficientInventory(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 3)
	require.NoError(t, err)

	// 7 remain; 8 is too many.
	_, err = svc.Allocate(ctx, c.ID, "f2", 8)
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())
}

func TestAllocateDriftBelowCounter(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	// Counter says 10 remain but only 5 gigs exist in the pool.
	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 5)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 6)
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, errutil.StatusUnprocessableEntity, be.Status())

	var claimed int64
	require.NoError(t, db.Model(&Gig{}).Where("campaign_id = ? AND status = ?", c.ID, GigStatusAssigned).
		Count(&claimed).Error)
	require.Zero(t, claimed)
}

func TestClaimIsConditional(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 2000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 2)
	require.NoError(t, err)

	var gigs []Gig
	require.NoError(t, db.Where("campaign_id = ?", c.ID).Find(&gigs).Error)
	ids := []string{gigs[0].ID, gigs[1].ID}

	now := time.Now().UTC()
	won, err := svc.gigs.Claim(ctx, ids, "f1", now)
	require.NoError(t, err)
	require.Equal(t, int64(2), won)

	// Second claimer races on the same rows and wins none.
	won, err = svc.gigs.Claim(ctx, ids, "f2", now)
	require.NoError(t, err)
	require.Zero(t, won)

	var stillMine int64
	require.NoError(t, db.Model(&Gig{}).Where("freelancer_id = ?", "f1").Count(&stillMine).Error)
	require.Equal(t, int64(2), stillMine)
}

func TestReclaimOverdue(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 3)
	require.NoError(t, err)

	// One of the claimed gigs blows past its deadline.
	var overdue Gig
	require.NoError(t, db.Where("campaign_id = ? AND status = ?", c.ID, GigStatusAssigned).
		First(&overdue).Error)
	require.NoError(t, db.Model(&Gig{}).Where("id = ?", overdue.ID).
		Update("deadline", time.Now().UTC().Add(-time.Hour)).Error)

	reset, err := svc.ReclaimOverdue(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), reset)

	var reclaimed Gig
	require.NoError(t, db.Where("id = ?", overdue.ID).First(&reclaimed).Error)
	require.Equal(t, GigStatusAvailable, reclaimed.Status)
	require.Nil(t, reclaimed.FreelancerID)
	require.Nil(t, reclaimed.AssignedAt)

	stored := fetchCampaign(t, db, c.ID)
	require.Equal(t, int64(8), stored.TripsRemaining)

	// Nothing left overdue, repeat is a no-op.
	reset, err = svc.ReclaimOverdue(ctx)
	require.NoError(t, err)
	require.Zero(t, reset)
}

func TestListReclaimsBeforeServing(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 3000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 3)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 1)
	require.NoError(t, err)

	require.NoError(t, db.Model(&Gig{}).Where("campaign_id = ? AND status = ?", c.ID, GigStatusAssigned).
		Update("deadline", time.Now().UTC().Add(-time.Minute)).Error)

	gigs, err := svc.List(ctx, ListQuery{CampaignID: c.ID, Status: GigStatusAvailable})
	require.NoError(t, err)
	require.Len(t, gigs, 3)
}

func TestVerifyCreditsEarnings(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 1)
	require.NoError(t, err)

	var g Gig
	require.NoError(t, db.Where("campaign_id = ? AND freelancer_id = ?", c.ID, "f1").First(&g).Error)
	require.NoError(t, db.Model(&Gig{}).Where("id = ?", g.ID).Updates(map[string]any{
		"status":       GigStatusSubmitted,
		"submitted_at": time.Now().UTC(),
	}).Error)

	verified, err := svc.Verify(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, GigStatusVerified, verified.Status)
	require.NotNil(t, verified.CompletedAt)

	balance, err := svc.ledger.Balance(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)

	// A verified gig stays consumed.
	rec, err := svc.Reconcile(ctx, c.ID)
	require.NoError(t, err)
	require.Equal(t, int64(9), rec.TripsRemaining)
}

func TestVerifyCreditFailureKeepsSubmission(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 1)
	require.NoError(t, err)

	var g Gig
	require.NoError(t, db.Where("campaign_id = ? AND freelancer_id = ?", c.ID, "f1").First(&g).Error)
	require.NoError(t, db.Model(&Gig{}).Where("id = ?", g.ID).Updates(map[string]any{
		"status":       GigStatusSubmitted,
		"submitted_at": time.Now().UTC(),
	}).Error)

	// Break the ledger out from under the credit.
	require.NoError(t, db.Migrator().DropTable(&ledger.LedgerEntry{}))

	_, err = svc.Verify(ctx, g.ID)
	require.Error(t, err)

	// The gig must not be verified while the earnings went unrecorded, so a
	// retry can pick the whole operation back up.
	var after Gig
	require.NoError(t, db.Where("id = ?", g.ID).First(&after).Error)
	require.Equal(t, GigStatusSubmitted, after.Status)
	require.Nil(t, after.CompletedAt)
}

func TestVerifyToleratesReplayedCredit(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 1)
	require.NoError(t, err)

	var g Gig
	require.NoError(t, db.Where("campaign_id = ? AND freelancer_id = ?", c.ID, "f1").First(&g).Error)
	require.NoError(t, db.Model(&Gig{}).Where("id = ?", g.ID).Updates(map[string]any{
		"status":       GigStatusSubmitted,
		"submitted_at": time.Now().UTC(),
	}).Error)

	// An earlier verify attempt credited the gig but died before the flip.
	_, err = svc.ledger.Credit(ctx, ledger.EntryParams{
		FreelancerID: "f1",
		Amount:       500,
		ReferenceID:  g.ID,
		Description:  "verified trip earnings",
	})
	require.NoError(t, err)

	verified, err := svc.Verify(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, GigStatusVerified, verified.Status)

	// No double pay.
	balance, err := svc.ledger.Balance(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, int64(500), balance)
}

func TestRejectProofReopensInventory(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 1)
	require.NoError(t, err)

	var g Gig
	require.NoError(t, db.Where("campaign_id = ? AND freelancer_id = ?", c.ID, "f1").First(&g).Error)
	require.NoError(t, db.Model(&Gig{}).Where("id = ?", g.ID).Updates(map[string]any{
		"status":       GigStatusSubmitted,
		"submitted_at": time.Now().UTC(),
	}).Error)

	rejected, err := svc.RejectProof(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, GigStatusRejected, rejected.Status)

	// Rejected trips must be re-offered, not counted as consumed.
	stored := fetchCampaign(t, db, c.ID)
	require.Equal(t, int64(10), stored.TripsRemaining)
}

func TestSettlePayout(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	c := seedCampaign(t, db, 10000, 1000)
	_, err := svc.TopUp(ctx, c.ID, 10)
	require.NoError(t, err)

	_, err = svc.Allocate(ctx, c.ID, "f1", 2)
	require.NoError(t, err)

	var claimed []Gig
	require.NoError(t, db.Where("freelancer_id = ?", "f1").Find(&claimed).Error)
	for _, g := range claimed {
		require.NoError(t, db.Model(&Gig{}).Where("id = ?", g.ID).Updates(map[string]any{
			"status":       GigStatusSubmitted,
			"submitted_at": time.Now().UTC(),
		}).Error)
		_, err = svc.Verify(ctx, g.ID)
		require.NoError(t, err)
	}

	amount, err := svc.SettlePayout(ctx, "f1")
	require.NoError(t, err)
	require.Equal(t, int64(1000), amount)

	balance, err := svc.ledger.Balance(ctx, "f1")
	require.NoError(t, err)
	require.Zero(t, balance)

	var paid int64
	require.NoError(t, db.Model(&Gig{}).Where("freelancer_id = ? AND status = ?", "f1", GigStatusPaid).
		Count(&paid).Error)
	require.Equal(t, int64(2), paid)

	// Nothing outstanding, repeat settles zero.
	amount, err = svc.SettlePayout(ctx, "f1")
	require.NoError(t, err)
	require.Zero(t, amount)
}
