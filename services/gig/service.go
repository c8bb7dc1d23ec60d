package gig

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/db/option"
	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/repository"
	"matwana-controlplane/pkg/task"
	"matwana-controlplane/services/campaign"
	"matwana-controlplane/services/ledger"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// sweepParallelism bounds concurrent per-campaign reconciles during a sweep.
const sweepParallelism = 4

// ProofRemover deletes an uploaded proof object when its gig is reclaimed.
type ProofRemover interface {
	Remove(ctx context.Context, objectKey string) error
}

type Service struct {
	db   *gorm.DB
	cfg  *config.Config
	node *snowflake.Node

	gigs     *GigRepository
	campaign repository.Repository[campaign.Campaign]

	ledger   *ledger.Service
	proofs   ProofRemover
	enqueuer task.Enqueuer
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
	Node   *snowflake.Node

	Ledger   *ledger.Service `optional:"true"`
	Proofs   ProofRemover    `optional:"true"`
	Enqueuer task.Enqueuer   `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		cfg:      p.Config,
		node:     p.Node,
		gigs:     NewRepository(GigRepositoryParams{DB: p.DB}),
		campaign: repository.ProvideStore[campaign.Campaign](p.DB),
		ledger:   p.Ledger,
		proofs:   p.Proofs,
		enqueuer: p.Enqueuer,
	}
}

// Reconcile recomputes a campaign's trip counters from the live state of its
// gigs and persists them. Idempotent: with no intervening gig changes,
// repeated calls yield identical output and state.
func (s *Service) Reconcile(ctx context.Context, campaignID string) (*ReconcileResult, error) {
	if campaignID == "" {
		return nil, errutil.ValidationFailed("campaign id is required")
	}

	c, err := s.campaign.FindOne(ctx, &campaign.Campaign{ID: campaignID})
	if err != nil {
		return nil, errutil.Internal("failed to query campaign", errutil.WithErr(err))
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found")
	}

	tripsNeeded := campaign.TripsFor(c.Budget, c.PricePerTrip)

	consumed, err := s.gigs.ConsumedTrips(ctx, c.ID)
	if err != nil {
		return nil, errutil.Internal("failed to sum consumed trips", errutil.WithErr(err))
	}

	tripsRemaining := tripsNeeded - consumed
	if tripsRemaining < 0 {
		tripsRemaining = 0
	}

	if unclaimed, err := s.gigs.UnclaimedCount(ctx, c.ID); err == nil && unclaimed > tripsRemaining {
		// Inventory drifted above the counter (price raised, over-provisioned
		// sweep). Not fatal, the surplus simply stays unclaimable once the
		// counter hits zero.
		zap.L().Warn("gig inventory exceeds remaining trips",
			zap.String("campaign_id", c.ID),
			zap.Int64("unclaimed", unclaimed),
			zap.Int64("trips_remaining", tripsRemaining),
		)
	}

	if err := s.campaign.Update(ctx, c.ID, map[string]any{
		"trips_needed":    tripsNeeded,
		"trips_remaining": tripsRemaining,
	}); err != nil {
		return nil, errutil.Internal("failed to persist trip counters", errutil.WithErr(err))
	}

	return &ReconcileResult{TripsNeeded: tripsNeeded, TripsRemaining: tripsRemaining}, nil
}

// TopUp creates exactly n gigs for a campaign, each one trip wide, deadlined
// at the midpoint of the campaign's lifetime. The insert is a single batch:
// either all n rows land or none do.
func (s *Service) TopUp(ctx context.Context, campaignID string, n int64) (int64, error) {
	if n < 1 {
		return 0, errutil.ValidationFailed("gig count must be at least 1")
	}

	c, err := s.campaign.FindOne(ctx, &campaign.Campaign{ID: campaignID})
	if err != nil {
		return 0, errutil.Internal("failed to query campaign", errutil.WithErr(err))
	}
	if c == nil {
		return 0, errutil.NotFound("campaign not found")
	}

	payout := s.cfg.Marketplace.FreelancerPayoutPerTrip
	if payout > c.PricePerTrip {
		// Configuration error, surfaced rather than clamped.
		return 0, errutil.UnprocessableEntity(
			fmt.Sprintf("freelancer payout %d exceeds campaign price per trip %d", payout, c.PricePerTrip))
	}

	now := time.Now().UTC()
	deadline := MidpointDeadline(now, c.Deadline.UTC())

	batch := make([]*Gig, 0, n)
	for i := int64(0); i < n; i++ {
		batch = append(batch, &Gig{
			ID:                      s.node.Generate().String(),
			CampaignID:              c.ID,
			Status:                  GigStatusAvailable,
			TripsAssigned:           1,
			FreelancerPayoutPerTrip: payout,
			Deadline:                deadline,
			CreatedAt:               now,
		})
	}

	if err := s.gigs.Store().BatchCreate(ctx, batch); err != nil {
		zap.L().Error("failed to create gig inventory",
			zap.String("campaign_id", c.ID), zap.Int64("count", n), zap.Error(err))
		return 0, errutil.Internal("failed to create gig inventory", errutil.WithErr(err))
	}

	return n, nil
}

// Sweep reconciles every eligible campaign and tops up inventory shortfall.
// Campaign failures are isolated: one bad campaign never aborts the rest.
func (s *Service) Sweep(ctx context.Context) (*SweepResult, error) {
	var eligible []*campaign.Campaign
	if err := s.db.WithContext(ctx).
		Where("status IN ?", []campaign.CampaignStatus{campaign.CampaignStatusPending, campaign.CampaignStatusActive}).
		Where("budget > 0 AND price_per_trip > 0").
		Where("route IS NOT NULL AND route <> ''").
		Find(&eligible).Error; err != nil {
		return nil, errutil.Internal("failed to list eligible campaigns", errutil.WithErr(err))
	}

	result := &SweepResult{Errors: make([]SweepError, 0)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepParallelism)

	for _, c := range eligible {
		c := c
		g.Go(func() error {
			created, err := s.topUpShortfall(gctx, c.ID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, SweepError{CampaignID: c.ID, Message: err.Error()})
				return nil
			}
			result.Created += created
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("campaign sweep finished",
		zap.Int("campaigns", len(eligible)),
		zap.Int64("gigs_created", result.Created),
		zap.Int("failures", len(result.Errors)),
	)

	return result, nil
}

// topUpShortfall reconciles one campaign and creates only the gigs missing
// from the pool. Counting unclaimed inventory before creating keeps repeated
// sweeps from over-provisioning.
func (s *Service) topUpShortfall(ctx context.Context, campaignID string) (int64, error) {
	rec, err := s.Reconcile(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	if rec.TripsRemaining <= 0 {
		return 0, nil
	}

	unclaimed, err := s.gigs.UnclaimedCount(ctx, campaignID)
	if err != nil {
		return 0, errutil.Internal("failed to count unclaimed gigs", errutil.WithErr(err))
	}

	shortfall := rec.TripsRemaining - unclaimed
	if shortfall <= 0 {
		return 0, nil
	}

	return s.TopUp(ctx, campaignID, shortfall)
}

// ReclaimOverdue releases assigned gigs whose deadline has passed, removes
// their orphaned proof objects and reconciles every touched campaign.
func (s *Service) ReclaimOverdue(ctx context.Context) (int64, error) {
	reclaimed, err := s.gigs.ReclaimOverdue(ctx, time.Now().UTC())
	if err != nil {
		return 0, errutil.Internal("failed to reclaim overdue gigs", errutil.WithErr(err))
	}
	if len(reclaimed) == 0 {
		return 0, nil
	}

	touched := make(map[string]struct{}, len(reclaimed))
	for _, g := range reclaimed {
		touched[g.CampaignID] = struct{}{}

		if g.ProofObjectKey != "" && s.proofs != nil {
			if err := s.proofs.Remove(ctx, g.ProofObjectKey); err != nil {
				zap.L().Warn("failed to remove orphaned proof object",
					zap.String("gig_id", g.ID), zap.String("object_key", g.ProofObjectKey), zap.Error(err))
			}
		}
	}

	for campaignID := range touched {
		if _, err := s.Reconcile(ctx, campaignID); err != nil {
			zap.L().Error("failed to reconcile campaign after reclaim",
				zap.String("campaign_id", campaignID), zap.Error(err))
		}
	}

	zap.L().Info("overdue gigs reclaimed", zap.Int("count", len(reclaimed)))

	return int64(len(reclaimed)), nil
}

// Allocate atomically claims k available gigs of a campaign for a freelancer.
// The conditional claim in GigRepository is the concurrency boundary; on a
// partial win the claim is released and a compensating reconcile runs.
func (s *Service) Allocate(ctx context.Context, campaignID, freelancerID string, k int64) (int64, error) {
	if campaignID == "" || freelancerID == "" {
		return 0, errutil.ValidationFailed("campaign id and freelancer id are required")
	}
	if k < 1 {
		return 0, errutil.ValidationFailed("trip count must be at least 1")
	}

	c, err := s.campaign.FindOne(ctx, &campaign.Campaign{ID: campaignID})
	if err != nil {
		return 0, errutil.Internal("failed to query campaign", errutil.WithErr(err))
	}
	if c == nil {
		return 0, errutil.NotFound("campaign not found")
	}

	if k > c.TripsRemaining {
		return 0, errutil.UnprocessableEntity(
			fmt.Sprintf("requested %d trips but only %d remain", k, c.TripsRemaining))
	}

	candidates, err := s.gigs.Store().Find(ctx,
		&Gig{CampaignID: campaignID, Status: GigStatusAvailable},
		option.WithOrder("created_at ASC"),
		option.WithLimit(int(k)),
	)
	if err != nil {
		return 0, errutil.Internal("failed to list available gigs", errutil.WithErr(err))
	}

	if int64(len(candidates)) < k {
		zap.L().Warn("available gigs drifted below remaining counter",
			zap.String("campaign_id", campaignID),
			zap.Int("available", len(candidates)),
			zap.Int64("requested", k),
		)
		return 0, errutil.UnprocessableEntity(
			fmt.Sprintf("requested %d trips but only %d gigs are available", k, len(candidates)))
	}

	ids := make([]string, 0, len(candidates))
	for _, g := range candidates {
		ids = append(ids, g.ID)
	}

	claimed, err := s.gigs.Claim(ctx, ids, freelancerID, time.Now().UTC())
	if err != nil {
		return 0, errutil.Internal("failed to claim gigs", errutil.WithErr(err))
	}

	if claimed != k {
		// Lost some rows to a concurrent claimer. Back out what we won and
		// bring the counter back in line before failing.
		if relErr := s.gigs.Release(ctx, ids, freelancerID); relErr != nil {
			zap.L().Error("failed to release partial claim",
				zap.String("campaign_id", campaignID), zap.Error(relErr))
		}
		if _, recErr := s.Reconcile(ctx, campaignID); recErr != nil {
			zap.L().Error("compensating reconcile failed",
				zap.String("campaign_id", campaignID), zap.Error(recErr))
		}
		return 0, errutil.UnprocessableEntity(
			fmt.Sprintf("only %d of %d gigs could be claimed", claimed, k))
	}

	rec, err := s.Reconcile(ctx, campaignID)
	if err != nil {
		// Gigs are assigned but the counter is stale; surface it, the next
		// reconcile corrects the figure.
		return 0, errutil.Internal("gigs claimed but campaign counter not updated", errutil.WithErr(err))
	}

	return rec.TripsRemaining, nil
}

type ListQuery struct {
	CampaignID   string
	Route        string
	FreelancerID string
	Status       GigStatus
}

// List serves the gig feeds. The freelancer-facing available feed reclaims
// overdue assignments first so stale claims never mask open slots.
func (s *Service) List(ctx context.Context, q ListQuery) ([]*Gig, error) {
	if q.Status == GigStatusAvailable || (q.Status == "" && q.FreelancerID == "") {
		if _, err := s.ReclaimOverdue(ctx); err != nil {
			zap.L().Warn("pre-listing reclaim failed", zap.Error(err))
		}
	}

	query := s.db.WithContext(ctx).Model(&Gig{})
	if q.CampaignID != "" {
		query = query.Where("campaign_id = ?", q.CampaignID)
	}
	if q.FreelancerID != "" {
		query = query.Where("freelancer_id = ?", q.FreelancerID)
	}
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}
	if q.Route != "" {
		query = query.Where("campaign_id IN (?)",
			s.db.Model(&campaign.Campaign{}).Select("id").Where("route = ?", q.Route))
	}

	var out []*Gig
	if err := query.Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, errutil.Internal("failed to list gigs", errutil.WithErr(err))
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, gigID string) (*Gig, error) {
	g, err := s.gigs.Store().FindOne(ctx, &Gig{ID: gigID})
	if err != nil {
		return nil, errutil.Internal("failed to query gig", errutil.WithErr(err))
	}
	if g == nil {
		return nil, errutil.NotFound("gig not found")
	}
	return g, nil
}

// Verify approves a submitted proof. The freelancer earns a ledger credit of
// trips_assigned x payout-per-trip. The credit lands before the status flip:
// its reference id (the gig id) makes it idempotent, so a failure between the
// two steps leaves the gig submitted and the whole call safe to retry. A
// Conflict on the credit means an earlier attempt already paid this gig.
func (s *Service) Verify(ctx context.Context, gigID string) (*Gig, error) {
	g, err := s.Get(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if g.Status != GigStatusSubmitted {
		return nil, errutil.Conflict("gig has no pending submission")
	}

	if s.ledger != nil && g.FreelancerID != nil {
		amount := g.TripsAssigned * g.FreelancerPayoutPerTrip
		if _, err := s.ledger.Credit(ctx, ledger.EntryParams{
			FreelancerID: *g.FreelancerID,
			Amount:       amount,
			ReferenceID:  g.ID,
			Description:  "verified trip earnings",
		}); err != nil {
			var be errutil.BaseError
			if !errors.As(err, &be) || be.Status() != errutil.StatusConflict {
				zap.L().Error("failed to credit freelancer earnings",
					zap.String("gig_id", g.ID), zap.Error(err))
				return nil, err
			}
		}
	}

	now := time.Now().UTC()
	if err := s.gigs.Store().Update(ctx, g.ID, map[string]any{
		"status":       GigStatusVerified,
		"completed_at": now,
	}); err != nil {
		return nil, errutil.Internal("failed to verify gig", errutil.WithErr(err))
	}

	return s.Get(ctx, gigID)
}

// RejectProof sends a submitted gig to rejected. Rejected trips are excluded
// from the consumed sum, so the campaign's remaining count rises back up.
func (s *Service) RejectProof(ctx context.Context, gigID string) (*Gig, error) {
	g, err := s.Get(ctx, gigID)
	if err != nil {
		return nil, err
	}
	if g.Status != GigStatusSubmitted {
		return nil, errutil.Conflict("gig has no pending submission")
	}

	if err := s.gigs.Store().Update(ctx, g.ID, map[string]any{"status": GigStatusRejected}); err != nil {
		return nil, errutil.Internal("failed to reject gig", errutil.WithErr(err))
	}

	if _, err := s.Reconcile(ctx, g.CampaignID); err != nil {
		zap.L().Error("failed to reconcile campaign after rejection",
			zap.String("campaign_id", g.CampaignID), zap.Error(err))
	}

	return s.Get(ctx, gigID)
}

// SettlePayout debits a freelancer's full outstanding balance and marks their
// verified gigs paid. The transfer itself happens out of process.
func (s *Service) SettlePayout(ctx context.Context, freelancerID string) (int64, error) {
	if freelancerID == "" {
		return 0, errutil.ValidationFailed("freelancer id is required")
	}
	if s.ledger == nil {
		return 0, errutil.Internal("earnings ledger is not configured")
	}

	balance, err := s.ledger.Balance(ctx, freelancerID)
	if err != nil {
		return 0, err
	}
	if balance <= 0 {
		return 0, nil
	}

	if _, err := s.ledger.Settle(ctx, freelancerID, balance); err != nil {
		return 0, err
	}

	if err := s.db.WithContext(ctx).
		Model(&Gig{}).
		Where("freelancer_id = ? AND status = ?", freelancerID, GigStatusVerified).
		Update("status", GigStatusPaid).Error; err != nil {
		return 0, errutil.Internal("failed to mark gigs paid", errutil.WithErr(err))
	}

	return balance, nil
}
