package media

import (
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/middleware"
	"matwana-controlplane/services/gig"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("media.module",
	fx.Provide(
		NewService,
		func(s *Service) gig.ProofRemover { return s },
	),
)

var Gateway = fx.Module("media.gateway",
	fx.Invoke(registerRoutes),
)

type registerRoutesParams struct {
	fx.In

	Engine   *gin.Engine
	Service  *Service
	Resolver identity.Resolver
}

func registerRoutes(p registerRoutesParams) {
	gigs := p.Engine.Group("/v1/gigs",
		middleware.RequireAuth(p.Resolver),
		middleware.RequireRole(identity.RoleFreelancer),
	)
	gigs.POST("/:id/proof/presign", p.Service.presignProof)
	gigs.POST("/:id/proof", p.Service.attachProof)
}
