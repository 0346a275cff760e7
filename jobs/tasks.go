package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the catch-all queue for background jobs.
	QueueDefault = "default"
	// QueueAlerts carries post-movement alert evaluations.
	QueueAlerts = "alerts"
	// TaskAlertEvaluate re-evaluates stock alerts for one item.
	TaskAlertEvaluate = "alerts:evaluate"
	// TaskAlertReorderScan sweeps every active item against its reorder point.
	TaskAlertReorderScan = "alerts:reorder_scan"
	// TaskIdempotencyCleanup prunes processed movement keys past retention.
	TaskIdempotencyCleanup = "maintenance:idempotency_cleanup"
)

// idempotencyRetention is how long processed movement keys stay queryable.
const idempotencyRetention = 7 * 24 * time.Hour

// AlertEvaluatePayload names the item whose alerts need re-evaluation.
type AlertEvaluatePayload struct {
	ItemID int64 `json:"item_id"`
}

// NewAlertEvaluateTask constructs an Asynq task for one item.
func NewAlertEvaluateTask(payload AlertEvaluatePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAlertEvaluate, data), nil
}

// NewAlertReorderScanTask constructs the periodic sweep task.
func NewAlertReorderScanTask() *asynq.Task {
	return asynq.NewTask(TaskAlertReorderScan, nil)
}

// AlertEvaluator is the alert engine surface the worker calls into.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, itemID int64) error
	EvaluateAll(ctx context.Context) error
}

// NewAlertEvaluateHandler processes TaskAlertEvaluate tasks.
func NewAlertEvaluateHandler(evaluator AlertEvaluator) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AlertEvaluatePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		return evaluator.Evaluate(ctx, payload.ItemID)
	}
}

// NewAlertReorderScanHandler processes TaskAlertReorderScan tasks.
func NewAlertReorderScanHandler(evaluator AlertEvaluator) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return evaluator.EvaluateAll(ctx)
	}
}

// KeyCleaner prunes expired idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// NewIdempotencyCleanupTask constructs the periodic retention task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}

// NewIdempotencyCleanupHandler processes TaskIdempotencyCleanup tasks.
func NewIdempotencyCleanupHandler(cleaner KeyCleaner) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		return cleaner.Cleanup(ctx, idempotencyRetention)
	}
}
