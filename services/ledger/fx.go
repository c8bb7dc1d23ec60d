package ledger

import (
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("ledger.module",
	fx.Provide(NewService),
)

var Gateway = fx.Module("ledger.gateway",
	fx.Invoke(registerRoutes),
)

type registerRoutesParams struct {
	fx.In

	Engine   *gin.Engine
	Service  *Service
	Resolver identity.Resolver
}

func registerRoutes(p registerRoutesParams) {
	earnings := p.Engine.Group("/v1/earnings",
		middleware.RequireAuth(p.Resolver),
		middleware.RequireRole(identity.RoleFreelancer, identity.RoleAdmin),
	)
	earnings.GET("", p.Service.getEarnings)
	earnings.GET("/chain", p.Service.verifyChain)
}
