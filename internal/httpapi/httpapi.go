package httpapi

import (
	"net/http"

	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/health"
	"matwana-controlplane/pkg/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		func(e *gin.Engine) http.Handler { return e },
	),
)

type Params struct {
	fx.In

	Config *config.Config
	Health health.HealthService
}

// NewEngine builds the shared router. Service packages register their own
// routes against it via fx.Invoke.
func NewEngine(p Params) *gin.Engine {
	if p.Config.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), middleware.Error())

	engine.GET("/healthz", p.Health.Liveness)
	engine.GET("/readyz", p.Health.Readiness)

	return engine
}
