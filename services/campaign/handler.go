package campaign

import (
	"net/http"
	"time"

	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

type createCampaignBody struct {
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	PreferredRoutes any       `json:"preferred_routes"`
	Budget          int64     `json:"budget"`
	PricePerTrip    int64     `json:"price_per_trip"`
	Deadline        time.Time `json:"deadline"`
	BusinessID      string    `json:"business_id"`
}

func (s *Service) createCampaign(c *gin.Context) {
	p := middleware.Principal(c)

	var body createCampaignBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("malformed request body", errutil.WithErr(err)))
		return
	}

	businessID := p.UserID
	if p.Role == identity.RoleAdmin && body.BusinessID != "" {
		businessID = body.BusinessID
	}

	created, err := s.Create(c.Request.Context(), &CreateCampaignRequest{
		BusinessID:      businessID,
		Name:            body.Name,
		Description:     body.Description,
		PreferredRoutes: body.PreferredRoutes,
		Budget:          body.Budget,
		PricePerTrip:    body.PricePerTrip,
		Deadline:        body.Deadline,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, created)
}

func (s *Service) listCampaigns(c *gin.Context) {
	p := middleware.Principal(c)

	q := ListQuery{Status: CampaignStatus(c.Query("status"))}
	if p.Role == identity.RoleAdmin {
		q.BusinessID = c.Query("business_id")
	} else {
		q.BusinessID = p.UserID
	}

	campaigns, err := s.List(c.Request.Context(), q)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"campaigns": campaigns})
}

func (s *Service) getCampaign(c *gin.Context) {
	p := middleware.Principal(c)

	found, err := s.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}

	if p.Role != identity.RoleAdmin && found.BusinessID != p.UserID {
		c.Error(errutil.Forbidden("access denied"))
		return
	}

	c.JSON(http.StatusOK, found)
}

func (s *Service) updatePrice(c *gin.Context) {
	var body struct {
		PricePerTrip int64 `json:"price_per_trip"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("malformed request body", errutil.WithErr(err)))
		return
	}

	updated, err := s.UpdatePrice(c.Request.Context(), c.Param("id"), body.PricePerTrip)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (s *Service) approveCampaign(c *gin.Context) {
	updated, err := s.Approve(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Service) rejectCampaign(c *gin.Context) {
	updated, err := s.Reject(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, updated)
}
