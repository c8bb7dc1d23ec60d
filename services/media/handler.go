package media

import (
	"net/http"

	"matwana-controlplane/pkg/errutil"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
)

func (s *Service) presignProof(c *gin.Context) {
	p := middleware.Principal(c)

	var body struct {
		Filename string `json:"filename"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("malformed request body", errutil.WithErr(err)))
		return
	}

	ticket, err := s.PresignUpload(c.Request.Context(), c.Param("id"), p.UserID, body.Filename)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, ticket)
}

func (s *Service) attachProof(c *gin.Context) {
	p := middleware.Principal(c)

	var body struct {
		ObjectKey string `json:"object_key"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.Error(errutil.ValidationFailed("malformed request body", errutil.WithErr(err)))
		return
	}

	g, err := s.AttachProof(c.Request.Context(), c.Param("id"), p.UserID, body.ObjectKey)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, g)
}
