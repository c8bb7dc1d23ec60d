package media

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
	"matwana-controlplane/services/gig"
	"matwana-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// newTestService wires the service against sqlite with no object storage
// client; only the gig-side guards are exercised here.
func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.NewTestDB(t, &gig.Gig{})
	cfg := &config.Config{}
	cfg.Marketplace.UploadURLExpiry = 15 * time.Minute

	return NewService(ServiceParams{DB: db, Config: cfg}), db
}

// seedNode is shared across seedGig calls: a fresh node per call can hand out
// the same ID twice within one millisecond.
var seedNode = func() *snowflake.Node {
	node, err := snowflake.NewNode(3)
	if err != nil {
		panic(err)
	}
	return node
}()

func seedGig(t *testing.T, db *gorm.DB, status gig.GigStatus, freelancerID string) *gig.Gig {
	t.Helper()

	node := seedNode

	now := time.Now().UTC()
	g := &gig.Gig{
		ID:                      node.Generate().String(),
		CampaignID:              "cmp-1",
		Status:                  status,
		TripsAssigned:           1,
		FreelancerPayoutPerTrip: 500,
		Deadline:                now.Add(24 * time.Hour),
		CreatedAt:               now,
	}
	if freelancerID != "" {
		g.FreelancerID = &freelancerID
		g.AssignedAt = &now
	}
	require.NoError(t, db.Create(g).Error)
	return g
}

func requireStatus(t *testing.T, err error, status errutil.CoreStatus) {
	t.Helper()
	require.Error(t, err)

	var be errutil.BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, status, be.Status())
}

func TestBuildObjectKey(t *testing.T) {
	key := buildObjectKey("cmp-1", "gig-1", "My Proof Video.MP4")
	require.Regexp(t, `^proofs/cmp-1/gig-1/my-proof-video-[0-9a-f]+\.mp4$`, key)

	// No usable base name falls back to a generic one.
	key = buildObjectKey("cmp-1", "gig-1", ".mp4")
	require.Regexp(t, `^proofs/cmp-1/gig-1/proof-[0-9a-f]+\.mp4$`, key)

	// Keys are unique across calls for the same filename.
	require.NotEqual(t,
		buildObjectKey("cmp-1", "gig-1", "trip.mp4"),
		buildObjectKey("cmp-1", "gig-1", "trip.mp4"),
	)
}

func TestAssignedGigGuards(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.assignedGig(ctx, "missing", "f1")
	requireStatus(t, err, errutil.StatusNotFound)

	unclaimed := seedGig(t, db, gig.GigStatusAvailable, "")
	_, err = svc.assignedGig(ctx, unclaimed.ID, "f1")
	requireStatus(t, err, errutil.StatusForbidden)

	mine := seedGig(t, db, gig.GigStatusAssigned, "f1")
	_, err = svc.assignedGig(ctx, mine.ID, "f2")
	requireStatus(t, err, errutil.StatusForbidden)

	submitted := seedGig(t, db, gig.GigStatusSubmitted, "f1")
	_, err = svc.assignedGig(ctx, submitted.ID, "f1")
	requireStatus(t, err, errutil.StatusConflict)

	got, err := svc.assignedGig(ctx, mine.ID, "f1")
	require.NoError(t, err)
	require.Equal(t, mine.ID, got.ID)
}

func TestAttachProofRequiresObjectKey(t *testing.T) {
	svc, db := newTestService(t)

	g := seedGig(t, db, gig.GigStatusAssigned, "f1")

	_, err := svc.AttachProof(context.Background(), g.ID, "f1", "")
	requireStatus(t, err, errutil.StatusValidationFailed)
}
