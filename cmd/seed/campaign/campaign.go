package main

import (
	"context"
	"log"
	"time"

	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/db"
	"matwana-controlplane/pkg/gen"
	"matwana-controlplane/pkg/logger"
	redisfx "matwana-controlplane/pkg/redis"
	"matwana-controlplane/pkg/sequence"
	"matwana-controlplane/services/campaign"
	"matwana-controlplane/services/gig"
	"matwana-controlplane/services/ledger"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Dev seeder: creates a handful of demo campaigns and runs one sweep so the
// gig pool is browsable right away.
func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		gen.Module,
		db.Module,
		redisfx.Module,
		sequence.Module,
		campaign.Module,
		gig.Module,
		fx.Invoke(migrate, seed),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)
	if err := app.Err(); err != nil {
		log.Fatalf("seed failed: %v", err)
	}
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

func seed(campaigns *campaign.Service, gigs *gig.Service) error {
	ctx := context.Background()
	deadline := time.Now().UTC().Add(30 * 24 * time.Hour)

	demos := []*campaign.CreateCampaignRequest{
		{
			BusinessID:      "biz-demo-1",
			Name:            "Safi Soda CBD Push",
			Description:     "In-cab screens on the downtown loop",
			PreferredRoutes: []string{"Route 46 - CBD", "Route 23 - Westlands"},
			Budget:          10000,
			PricePerTrip:    1000,
			Deadline:        deadline,
		},
		{
			BusinessID:      "biz-demo-2",
			Name:            "Mamba Mobile Data Promo",
			Description:     "Commuter hours only",
			PreferredRoutes: "Route 111 - Ngong",
			Budget:          25000,
			Deadline:        deadline,
		},
	}

	for _, req := range demos {
		created, err := campaigns.Create(ctx, req)
		if err != nil {
			return err
		}
		zap.L().Info("seeded campaign",
			zap.String("campaign_id", created.ID),
			zap.String("code", created.Code),
			zap.Int64("trips_needed", created.TripsNeeded),
		)
	}

	result, err := gigs.Sweep(ctx)
	if err != nil {
		return err
	}

	zap.L().Info("seed sweep finished", zap.Int64("gigs_created", result.Created))
	return nil
}
