package ledger

import (
	"net/http"

	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func (s *Service) getEarnings(c *gin.Context) {
	freelancerID := s.subjectID(c)

	balance, err := s.Balance(c.Request.Context(), freelancerID)
	if err != nil {
		c.Error(err)
		return
	}

	entries, err := s.Entries(c.Request.Context(), freelancerID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"balance": balance, "entries": entries})
}

func (s *Service) verifyChain(c *gin.Context) {
	report, err := s.VerifyChain(c.Request.Context(), s.subjectID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// subjectID lets admins inspect any freelancer's ledger; everyone else sees
// their own.
func (s *Service) subjectID(c *gin.Context) string {
	p := middleware.Principal(c)
	if p.Role == identity.RoleAdmin {
		if id := c.Query("freelancer_id"); id != "" {
			return id
		}
	}
	return p.UserID
}
