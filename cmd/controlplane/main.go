package main

import (
	"log"

	"matwana-controlplane/internal/httpapi"
	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/db"
	"matwana-controlplane/pkg/gen"
	"matwana-controlplane/pkg/hashistack/secretmanager"
	"matwana-controlplane/pkg/health"
	"matwana-controlplane/pkg/identity"
	"matwana-controlplane/pkg/logger"
	miniofx "matwana-controlplane/pkg/minio"
	"matwana-controlplane/pkg/otelcol"
	redisfx "matwana-controlplane/pkg/redis"
	"matwana-controlplane/pkg/sequence"
	"matwana-controlplane/pkg/server"
	"matwana-controlplane/pkg/task"
	"matwana-controlplane/services/campaign"
	"matwana-controlplane/services/gig"
	"matwana-controlplane/services/ledger"
	"matwana-controlplane/services/media"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redisfx.Module,
		miniofx.Client,
		sequence.Module,
		identity.Module,
		otelcol.Module,
		task.Client,
		health.Module,
		httpapi.Module,

		campaign.Module,
		campaign.Gateway,
		ledger.Module,
		ledger.Gateway,
		media.Module,
		media.Gateway,
		gig.Module,
		gig.Gateway,

		server.ProvideHTTPServer,
		fx.Invoke(migrate, db.Otel, db.Metric),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func migrate(database *gorm.DB) error {
	return database.AutoMigrate(
		&campaign.Campaign{},
		&gig.Gig{},
		&ledger.LedgerEntry{},
		&ledger.Balance{},
	)
}
