package gig

import (
	"context"
	"time"

	"matwana-controlplane/pkg/repository"

	"gorm.io/gorm"
)

// GigRepository wraps the generic store with the conditional updates the
// allocator and reclaimer need. The status guard in the WHERE clause is the
// concurrency boundary: a row flips exactly once no matter how many callers
// race on it.
type GigRepository struct {
	db   *gorm.DB
	repo repository.Repository[Gig]
}

type GigRepositoryParams struct {
	DB *gorm.DB
}

func NewRepository(p GigRepositoryParams) *GigRepository {
	return &GigRepository{
		db:   p.DB,
		repo: repository.ProvideStore[Gig](p.DB),
	}
}

func (r *GigRepository) Store() repository.Repository[Gig] {
	return r.repo
}

// Claim flips the given gigs available → assigned for one freelancer. Rows
// already claimed by a concurrent caller no longer match the status guard, so
// RowsAffected tells the caller exactly how many it won.
func (r *GigRepository) Claim(ctx context.Context, gigIDs []string, freelancerID string, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Gig{}).
		Where("id IN ? AND status = ?", gigIDs, GigStatusAvailable).
		Updates(map[string]any{
			"status":        GigStatusAssigned,
			"freelancer_id": freelancerID,
			"assigned_at":   now,
		})
	return res.RowsAffected, res.Error
}

// Release undoes a claim for rows still held by the given freelancer. Used to
// back out of a partial claim before the compensating reconcile.
func (r *GigRepository) Release(ctx context.Context, gigIDs []string, freelancerID string) error {
	return r.db.WithContext(ctx).
		Model(&Gig{}).
		Where("id IN ? AND freelancer_id = ? AND status = ?", gigIDs, freelancerID, GigStatusAssigned).
		Updates(map[string]any{
			"status":        GigStatusAvailable,
			"freelancer_id": nil,
			"assigned_at":   nil,
		}).Error
}

// ReclaimOverdue releases every assigned gig whose deadline has passed and
// returns the released rows so the caller can reconcile the touched campaigns
// and clean up orphaned proof objects.
func (r *GigRepository) ReclaimOverdue(ctx context.Context, now time.Time) ([]*Gig, error) {
	var overdue []*Gig
	if err := r.db.WithContext(ctx).
		Where("status = ? AND deadline < ?", GigStatusAssigned, now).
		Find(&overdue).Error; err != nil {
		return nil, err
	}

	if len(overdue) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(overdue))
	for _, g := range overdue {
		ids = append(ids, g.ID)
	}

	res := r.db.WithContext(ctx).
		Model(&Gig{}).
		Where("id IN ? AND status = ? AND deadline < ?", ids, GigStatusAssigned, now).
		Updates(map[string]any{
			"status":           GigStatusAvailable,
			"freelancer_id":    nil,
			"assigned_at":      nil,
			"proof_object_key": "",
		})
	if res.Error != nil {
		return nil, res.Error
	}

	return overdue, nil
}

// ConsumedTrips sums trips_assigned over the campaign's consumed gigs.
func (r *GigRepository) ConsumedTrips(ctx context.Context, campaignID string) (int64, error) {
	var consumed int64
	err := r.db.WithContext(ctx).
		Model(&Gig{}).
		Where("campaign_id = ? AND status IN ?", campaignID, ConsumedStatuses).
		Select("COALESCE(SUM(trips_assigned), 0)").
		Scan(&consumed).Error
	return consumed, err
}

// UnclaimedCount counts inventory still sitting in the pool for a campaign.
func (r *GigRepository) UnclaimedCount(ctx context.Context, campaignID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Gig{}).
		Where("campaign_id = ? AND status IN ?", campaignID, UnclaimedStatuses).
		Count(&count).Error
	return count, err
}
