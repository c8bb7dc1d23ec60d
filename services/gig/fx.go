package gig

import (
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("gig.module",
	fx.Provide(NewService),
)

var Gateway = fx.Module("gig.gateway",
	fx.Invoke(registerRoutes),
)

type registerRoutesParams struct {
	fx.In

	Engine   *gin.Engine
	Service  *Service
	Resolver identity.Resolver
}

func registerRoutes(p registerRoutesParams) {
	auth := middleware.RequireAuth(p.Resolver)

	gigs := p.Engine.Group("/v1/gigs", auth)
	gigs.GET("", p.Service.listGigs)
	gigs.GET("/:id", p.Service.getGig)
	gigs.POST("/:id/verify", middleware.RequireRole(identity.RoleAdmin), p.Service.verifyGig)
	gigs.POST("/:id/reject", middleware.RequireRole(identity.RoleAdmin), p.Service.rejectGig)

	campaigns := p.Engine.Group("/v1/campaigns", auth)
	campaigns.POST("/:id/claims", middleware.RequireRole(identity.RoleFreelancer), p.Service.claimGigs)
	campaigns.POST("/:id/reconcile", middleware.RequireRole(identity.RoleAdmin), p.Service.reconcileCampaign)
	campaigns.POST("/:id/gigs", middleware.RequireRole(identity.RoleAdmin), p.Service.topUpCampaign)

	ops := p.Engine.Group("/v1/ops", auth, middleware.RequireRole(identity.RoleAdmin))
	ops.POST("/sweep", p.Service.runSweep)
	ops.POST("/reclaim", p.Service.runReclaim)
	ops.POST("/payouts/settle", p.Service.settlePayout)
}
