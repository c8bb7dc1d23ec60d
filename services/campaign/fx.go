package campaign

import (
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("campaign.module",
	fx.Provide(NewService),
)

var Gateway = fx.Module("campaign.gateway",
	fx.Invoke(registerRoutes),
)

type registerRoutesParams struct {
	fx.In

	Engine   *gin.Engine
	Service  *Service
	Resolver identity.Resolver
}

func registerRoutes(p registerRoutesParams) {
	v1 := p.Engine.Group("/v1", middleware.RequireAuth(p.Resolver))

	campaigns := v1.Group("/campaigns")
	campaigns.POST("", middleware.RequireRole(identity.RoleBusiness, identity.RoleAdmin), p.Service.createCampaign)
	campaigns.GET("", p.Service.listCampaigns)
	campaigns.GET("/:id", p.Service.getCampaign)

	admin := campaigns.Group("", middleware.RequireRole(identity.RoleAdmin))
	admin.PATCH("/:id/price", p.Service.updatePrice)
	admin.POST("/:id/approve", p.Service.approveCampaign)
	admin.POST("/:id/reject", p.Service.rejectCampaign)
}
