package gig

import (
	"net/http"

	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func (s *Service) listGigs(c *gin.Context) {
	p := middleware.Principal(c)

	q := ListQuery{
		CampaignID: c.Query("campaign_id"),
		Route:      c.Query("route"),
		Status:     GigStatus(c.Query("status")),
	}

	switch {
	case c.Query("mine") == "true":
		q.FreelancerID = p.UserID
	case p.Role == identity.RoleFreelancer && q.Status == "":
		// The freelancer feed defaults to open inventory.
		q.Status = GigStatusAvailable
	}

	gigs, err := s.List(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"gigs": gigs})
}

func (s *Service) getGig(c *gin.Context) {
	g, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Service) claimGigs(c *gin.Context) {
	p := middleware.Principal(c)

	var body struct {
		Trips int64 `json:"trips"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("malformed request body", errutil.WithErr(err)))
		return
	}

	remaining, err := s.Allocate(c.Request.Context(), c.Param("id"), p.UserID, body.Trips)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trips_remaining": remaining})
}

func (s *Service) reconcileCampaign(c *gin.Context) {
	result, err := s.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) topUpCampaign(c *gin.Context) {
	var body struct {
		Count int64 `json:"count"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("malformed request body", errutil.WithErr(err)))
		return
	}

	created, err := s.TopUp(c.Request.Context(), c.Param("id"), body.Count)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"created": created})
}

func (s *Service) verifyGig(c *gin.Context) {
	g, err := s.Verify(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Service) rejectGig(c *gin.Context) {
	g, err := s.RejectProof(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, g)
}

func (s *Service) runSweep(c *gin.Context) {
	result, err := s.Sweep(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Service) runReclaim(c *gin.Context) {
	reset, err := s.ReclaimOverdue(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reset": reset})
}

func (s *Service) settlePayout(c *gin.Context) {
	var body struct {
		FreelancerID string `json:"freelancer_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("malformed request body", errutil.WithErr(err)))
		return
	}

	if s.enqueuer != nil {
		t, err := NewPayoutSettleTask(body.FreelancerID)
		if err != nil {
			c.Error(errutil.Internal("failed to build settle task", errutil.WithErr(err)))
			return
		}
		if _, err := s.enqueuer.Enqueue(t); err != nil {
			c.Error(errutil.Internal("failed to enqueue settle task", errutil.WithErr(err)))
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"enqueued": true})
		return
	}

	amount, err := s.SettlePayout(c.Request.Context(), body.FreelancerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settled": amount})
}
