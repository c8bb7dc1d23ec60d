package gig

import (
	"context"
	"encoding/json"
	"fmt"

	"matwana-controlplane/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var TaskModule = fx.Module("task.gig",
	fx.Provide(NewTask),
)

// Task carries the asynq handlers for the periodic sweep, the overdue
// reclaimer and payout settlement. Every handler is idempotent, so
// overlapping runs and retries are harmless.
type Task struct {
	svc *Service
}

type TaskParams struct {
	fx.In

	Service *Service
}

func NewTask(p TaskParams) *Task {
	return &Task{svc: p.Service}
}

func NewCampaignSweepTask() *asynq.Task {
	return asynq.NewTask(taskname.CampaignSweep, nil)
}

func NewGigReclaimTask() *asynq.Task {
	return asynq.NewTask(taskname.GigReclaimOverdue, nil)
}

func NewCampaignReconcileTask(campaignID string) (*asynq.Task, error) {
	payload, err := json.Marshal(taskname.CampaignReconcilePayload{CampaignID: campaignID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.CampaignReconcile, payload), nil
}

func NewPayoutSettleTask(freelancerID string) (*asynq.Task, error) {
	payload, err := json.Marshal(taskname.PayoutSettlePayload{FreelancerID: freelancerID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskname.PayoutSettle, payload), nil
}

func (t *Task) HandleCampaignSweep(ctx context.Context, _ *asynq.Task) error {
	result, err := t.svc.Sweep(ctx)
	if err != nil {
		return err
	}

	for _, sweepErr := range result.Errors {
		zap.L().Warn("campaign skipped during sweep",
			zap.String("campaign_id", sweepErr.CampaignID),
			zap.String("reason", sweepErr.Message),
		)
	}

	return nil
}

func (t *Task) HandleCampaignReconcile(ctx context.Context, task *asynq.Task) error {
	var payload taskname.CampaignReconcilePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	created, err := t.svc.topUpShortfall(ctx, payload.CampaignID)
	if err != nil {
		zap.L().Error("campaign reconcile task failed",
			zap.String("campaign_id", payload.CampaignID), zap.Error(err))
		return err
	}

	zap.L().Info("campaign reconciled",
		zap.String("campaign_id", payload.CampaignID),
		zap.Int64("gigs_created", created),
	)
	return nil
}

func (t *Task) HandleGigReclaimOverdue(ctx context.Context, _ *asynq.Task) error {
	reset, err := t.svc.ReclaimOverdue(ctx)
	if err != nil {
		return err
	}

	if reset > 0 {
		zap.L().Info("overdue reclaim task finished", zap.Int64("reset", reset))
	}
	return nil
}

func (t *Task) HandlePayoutSettle(ctx context.Context, task *asynq.Task) error {
	var payload taskname.PayoutSettlePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	amount, err := t.svc.SettlePayout(ctx, payload.FreelancerID)
	if err != nil {
		zap.L().Error("payout settle task failed",
			zap.String("freelancer_id", payload.FreelancerID), zap.Error(err))
		return err
	}

	zap.L().Info("payout settled",
		zap.String("freelancer_id", payload.FreelancerID),
		zap.Int64("amount", amount),
	)
	return nil
}
