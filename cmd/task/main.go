package main

import (
	"log"

	"matwana-controlplane/pkg/config"
	"matwana-controlplane/pkg/db"
	"matwana-controlplane/pkg/gen"
	"matwana-controlplane/pkg/hashistack/secretmanager"
	"matwana-controlplane/pkg/logger"
	miniofx "matwana-controlplane/pkg/minio"
	redisfx "matwana-controlplane/pkg/redis"
	"matwana-controlplane/pkg/sequence"
	"matwana-controlplane/pkg/task"
	"matwana-controlplane/pkg/taskname"
	"matwana-controlplane/services/gig"
	"matwana-controlplane/services/ledger"
	"matwana-controlplane/services/media"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
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
		task.Client,
		task.Server,
		task.Scheduler,

		ledger.Module,
		media.Module,
		gig.Module,
		gig.TaskModule,

		fx.Invoke(
			registerHandlers,
			registerSchedules,
		),
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

func registerHandlers(mux *asynq.ServeMux, t *gig.Task) {
	mux.HandleFunc(taskname.CampaignSweep, t.HandleCampaignSweep)
	mux.HandleFunc(taskname.CampaignReconcile, t.HandleCampaignReconcile)
	mux.HandleFunc(taskname.GigReclaimOverdue, t.HandleGigReclaimOverdue)
	mux.HandleFunc(taskname.PayoutSettle, t.HandlePayoutSettle)
}

func registerSchedules(scheduler *asynq.Scheduler, cfg *config.Config) error {
	if _, err := scheduler.Register(cfg.Marketplace.SweepSpec, gig.NewCampaignSweepTask(), asynq.Queue("low")); err != nil {
		zap.L().Error("failed to register sweep schedule", zap.Error(err))
		return err
	}

	if _, err := scheduler.Register(cfg.Marketplace.ReclaimSpec, gig.NewGigReclaimTask(), asynq.Queue("low")); err != nil {
		zap.L().Error("failed to register reclaim schedule", zap.Error(err))
		return err
	}

	return nil
}
