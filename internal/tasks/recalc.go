package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/TexasJeff75/hs360-backend/internal/commission"
)

// TypeCommissionRecalculate is the task type for a full commission
// recalculation run.
const TypeCommissionRecalculate = "commission:recalculate"

// Enqueuer schedules background tasks through asynq. Recalculation tasks
// carry a time-bucketed id so repeated admin triggers within the same minute
// collapse into one run.
type Enqueuer struct {
	Client  *asynq.Client
	Queue   string
	TaskTTL time.Duration
	Now     func() time.Time
}

// TriggerRecalculation enqueues a recalculation task and returns its id.
// A task already queued for the current minute is reported as enqueued.
func (e Enqueuer) TriggerRecalculation(ctx context.Context) (string, error) {
	if e.Client == nil {
		return "", errors.New("tasks: asynq client not configured")
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	taskID := fmt.Sprintf("%s:%s", TypeCommissionRecalculate, now().UTC().Format("2006-01-02T15:04"))

	opts := []asynq.Option{
		asynq.TaskID(taskID),
		asynq.MaxRetry(0),
	}
	if e.Queue != "" {
		opts = append(opts, asynq.Queue(e.Queue))
	}
	if e.TaskTTL > 0 {
		opts = append(opts, asynq.Retention(e.TaskTTL))
	}

	_, err := e.Client.EnqueueContext(ctx, asynq.NewTask(TypeCommissionRecalculate, nil), opts...)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return taskID, nil
		}
		return "", fmt.Errorf("enqueue recalculation: %w", err)
	}
	return taskID, nil
}

// NewRecalcHandler returns the asynq handler that executes a recalculation
// run. A run that fails outright is retried by asynq per queue policy; a run
// that completes with per-record failures is still a success.
func NewRecalcHandler(recalc *commission.Recalculator, logger zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		report, err := recalc.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("recalculation task failed")
			return err
		}
		logger.Info().
			Int("processed", report.Processed).
			Int("updated", report.Updated).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("recalculation task complete")
		return nil
	}
}
