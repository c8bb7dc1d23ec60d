package media

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/repository"
	"matwana-controlplane/pkg/util"
	"matwana-controlplane/services/gig"

	"github.com/gosimple/slug"
	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service handles proof-of-play video storage. Uploads go straight to object
// storage through presigned PUT URLs; this side only mints tickets and flips
// the gig once the object exists.
type Service struct {
	cfg    *config.Config
	client *minio.Client

	gigs repository.Repository[gig.Gig]
}

type ServiceParams struct {
	fx.In

	DB     *gorm.DB
	Config *config.Config
	Client *minio.Client
}

func NewService(p ServiceParams) *Service {
	return &Service{
		cfg:    p.Config,
		client: p.Client,
		gigs:   repository.ProvideStore[gig.Gig](p.DB),
	}
}

type UploadTicket struct {
	URL       string    `json:"url"`
	ObjectKey string    `json:"object_key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PresignUpload mints a presigned PUT URL for a proof video. Only the
// assigned freelancer can upload, and only while the gig is still assigned.
func (s *Service) PresignUpload(ctx context.Context, gigID, freelancerID, filename string) (*UploadTicket, error) {
	g, err := s.assignedGig(ctx, gigID, freelancerID)
	if err != nil {
		return nil, err
	}

	objectKey := buildObjectKey(g.CampaignID, g.ID, filename)
	expiry := s.cfg.Marketplace.UploadURLExpiry

	url, err := s.client.PresignedPutObject(ctx, s.cfg.Minio.BucketName, objectKey, expiry)
	if err != nil {
		zap.L().Error("failed to presign proof upload", zap.String("gig_id", g.ID), zap.Error(err))
		return nil, errutil.Internal("failed to presign upload", errutil.WithErr(err))
	}

	return &UploadTicket{
		URL:       url.String(),
		ObjectKey: objectKey,
		ExpiresAt: time.Now().UTC().Add(expiry),
	}, nil
}

// AttachProof flips an assigned gig to submitted after confirming the proof
// object actually landed in the bucket.
func (s *Service) AttachProof(ctx context.Context, gigID, freelancerID, objectKey string) (*gig.Gig, error) {
	if objectKey == "" {
		return nil, errutil.ValidationFailed("object_key is required")
	}

	g, err := s.assignedGig(ctx, gigID, freelancerID)
	if err != nil {
		return nil, err
	}

	if _, err := s.client.StatObject(ctx, s.cfg.Minio.BucketName, objectKey, minio.StatObjectOptions{}); err != nil {
		return nil, errutil.ValidationFailed("proof object not found in storage", errutil.WithErr(err))
	}

	now := time.Now().UTC()
	if err := s.gigs.Update(ctx, g.ID, map[string]any{
		"status":           gig.GigStatusSubmitted,
		"submitted_at":     now,
		"proof_object_key": objectKey,
	}); err != nil {
		return nil, errutil.Internal("failed to attach proof", errutil.WithErr(err))
	}

	return s.gigs.FindOne(ctx, &gig.Gig{ID: g.ID})
}

// Remove deletes a proof object, used when a reclaimed gig leaves an orphan
// behind.
func (s *Service) Remove(ctx context.Context, objectKey string) error {
	return s.client.RemoveObject(ctx, s.cfg.Minio.BucketName, objectKey, minio.RemoveObjectOptions{})
}

func (s *Service) assignedGig(ctx context.Context, gigID, freelancerID string) (*gig.Gig, error) {
	g, err := s.gigs.FindOne(ctx, &gig.Gig{ID: gigID})
	if err != nil {
		return nil, errutil.Internal("failed to query gig", errutil.WithErr(err))
	}
	if g == nil {
		return nil, errutil.NotFound("gig not found")
	}
	if g.FreelancerID == nil || *g.FreelancerID != freelancerID {
		return nil, errutil.Forbidden("gig is not assigned to you")
	}
	if g.Status != gig.GigStatusAssigned {
		return nil, errutil.Conflict("gig is not awaiting a proof upload")
	}
	return g, nil
}

func buildObjectKey(campaignID, gigID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	if base == "" {
		base = "proof"
	}
	return fmt.Sprintf("proofs/%s/%s/%s-%s%s", campaignID, gigID, slug.Make(base), util.GenerateProofSuffix(), ext)
}
