package campaign

import (
	"context"
	"encoding/json"
	"time"

	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/db/option"
	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/repository"
	"matwana-controlplane/pkg/sequence"
	"matwana-controlplane/pkg/task"
	"matwana-controlplane/pkg/taskname"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	cfg  *config.Config
	node *snowflake.Node
	seq  sequence.Generator

	enqueuer task.Enqueuer

	campaign repository.Repository[Campaign]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
	Node   *snowflake.Node
	Seq    sequence.Generator

	Enqueuer task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:       p.DB,
		cfg:      p.Config,
		node:     p.Node,
		seq:      p.Seq,
		enqueuer: p.Enqueuer,
		campaign: repository.ProvideStore[Campaign](p.DB),
	}
}

type CreateCampaignRequest struct {
	BusinessID      string    `json:"business_id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	PreferredRoutes any       `json:"preferred_routes"`
	Budget          int64     `json:"budget"`
	PricePerTrip    int64     `json:"price_per_trip"`
	Deadline        time.Time `json:"deadline"`
}

func (s *Service) Create(ctx context.Context, req *CreateCampaignRequest) (*Campaign, error) {
	if req.BusinessID == "" {
		return nil, errutil.ValidationFailed("business_id is required")
	}
	if req.Name == "" {
		return nil, errutil.ValidationFailed("name is required")
	}
	if req.Budget <= 0 {
		return nil, errutil.ValidationFailed("budget must be positive")
	}

	price := req.PricePerTrip
	if price == 0 {
		price = s.cfg.Marketplace.DefaultPricePerTrip
	}
	if price <= 0 {
		return nil, errutil.ValidationFailed("price_per_trip must be positive")
	}

	if req.Deadline.IsZero() || !req.Deadline.After(time.Now().UTC()) {
		return nil, errutil.ValidationFailed("deadline must be in the future")
	}

	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		return nil, errutil.Internal("failed to mint campaign code", errutil.WithErr(err))
	}

	tripsNeeded := TripsFor(req.Budget, price)

	c := &Campaign{
		ID:             s.node.Generate().String(),
		Code:           code,
		BusinessID:     req.BusinessID,
		Name:           req.Name,
		Description:    req.Description,
		Budget:         req.Budget,
		PricePerTrip:   price,
		TripsNeeded:    tripsNeeded,
		TripsRemaining: tripsNeeded,
		Status:         CampaignStatusPending,
		Deadline:       req.Deadline.UTC(),
	}

	if err := c.SetPreferredRoutes(req.PreferredRoutes); err != nil {
		return nil, errutil.ValidationFailed("preferred_routes is malformed", errutil.WithErr(err))
	}

	if err := s.campaign.Create(ctx, c); err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return nil, errutil.Internal("failed to create campaign", errutil.WithErr(err))
	}

	// Gig inventory is provisioned by the worker; the periodic sweep catches
	// anything lost between here and the queue.
	s.enqueueReconcile(c.ID)

	return c, nil
}

type ListQuery struct {
	BusinessID string
	Status     CampaignStatus
}

func (s *Service) List(ctx context.Context, q ListQuery) ([]*Campaign, error) {
	query := &Campaign{BusinessID: q.BusinessID, Status: q.Status}
	return s.campaign.Find(ctx, query, option.WithOrder("created_at DESC"))
}

func (s *Service) Get(ctx context.Context, campaignID string) (*Campaign, error) {
	c, err := s.campaign.FindOne(ctx, &Campaign{ID: campaignID})
	if err != nil {
		return nil, errutil.Internal("failed to query campaign", errutil.WithErr(err))
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found")
	}
	return c, nil
}

// UpdatePrice is the operator path for correcting a campaign's per-trip rate.
// trips_needed changes with the price, so a reconcile follows.
func (s *Service) UpdatePrice(ctx context.Context, campaignID string, pricePerTrip int64) (*Campaign, error) {
	if pricePerTrip <= 0 {
		return nil, errutil.ValidationFailed("price_per_trip must be positive")
	}

	c, err := s.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if err := s.campaign.Update(ctx, c.ID, map[string]any{
		"price_per_trip": pricePerTrip,
		"trips_needed":   TripsFor(c.Budget, pricePerTrip),
	}); err != nil {
		zap.L().Error("failed to update campaign price", zap.String("campaign_id", c.ID), zap.Error(err))
		return nil, errutil.Internal("failed to update campaign price", errutil.WithErr(err))
	}

	s.enqueueReconcile(c.ID)

	return s.Get(ctx, campaignID)
}

func (s *Service) Approve(ctx context.Context, campaignID string) (*Campaign, error) {
	return s.review(ctx, campaignID, CampaignStatusActive)
}

func (s *Service) Reject(ctx context.Context, campaignID string) (*Campaign, error) {
	return s.review(ctx, campaignID, CampaignStatusRejected)
}

func (s *Service) review(ctx context.Context, campaignID string, next CampaignStatus) (*Campaign, error) {
	c, err := s.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if c.Status != CampaignStatusPending {
		return nil, errutil.Conflict("campaign has already been reviewed")
	}

	if err := s.campaign.Update(ctx, c.ID, map[string]any{"status": next}); err != nil {
		return nil, errutil.Internal("failed to update campaign status", errutil.WithErr(err))
	}

	return s.Get(ctx, campaignID)
}

func (s *Service) enqueueReconcile(campaignID string) {
	if s.enqueuer == nil {
		return
	}

	payload, _ := json.Marshal(taskname.CampaignReconcilePayload{CampaignID: campaignID})
	if _, err := s.enqueuer.Enqueue(asynq.NewTask(taskname.CampaignReconcile, payload), asynq.Queue("critical")); err != nil {
		zap.L().Warn("failed to enqueue campaign reconcile", zap.String("campaign_id", campaignID), zap.Error(err))
	}
}
