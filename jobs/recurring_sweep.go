package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-finance/internal/jobs"
	"github.com/odyssey-erp/odyssey-finance/internal/ledger"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// RecurringService is the part of the recurring scheduler driven by jobs.
type RecurringService interface {
	Today() time.Time
	DueIDs(ctx context.Context) ([]int64, error)
	ProcessOne(ctx context.Context, id int64) (ledger.ChargeOutcome, error)
	ProcessDueExpenses(ctx context.Context) (ledger.SweepResult, error)
}

// Enqueuer submits tasks; *asynq.Client satisfies it.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Locker serialises sweeps across workers.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// RecurringJob handles the sweep and charge tasks.
type RecurringJob struct {
	Service RecurringService
	Queue   Enqueuer
	Locker  Locker
	LockTTL time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRecurringJob constructs the job handlers.
func NewRecurringJob(service RecurringService, queue Enqueuer, locker Locker, lockTTL time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *RecurringJob {
	return &RecurringJob{Service: service, Queue: queue, Locker: locker, LockTTL: lockTTL, Logger: logger, Metrics: metrics}
}

// HandleSweep lists due expenses under the sweep lock and enqueues one charge task per
// expense. Inline payloads, or a job without a queue, charge directly instead.
func (j *RecurringJob) HandleSweep(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("recurring sweep: dependencies not configured")
	}
	var payload RecurringSweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.Metrics.Track(TaskRecurringSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	run := func(ctx context.Context) error {
		if payload.Inline || j.Queue == nil {
			return j.sweepInline(ctx)
		}
		return j.fanOut(ctx)
	}
	if j.Locker == nil {
		resultErr = run(ctx)
		return resultErr
	}
	ttl := j.LockTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	err := j.Locker.WithLock(ctx, shared.RecurringSweepLockKey, ttl, run)
	if errors.Is(err, shared.ErrLockHeld) {
		j.logger().Info("sweep already running elsewhere")
		return nil
	}
	resultErr = err
	return resultErr
}

func (j *RecurringJob) fanOut(ctx context.Context) error {
	today := j.Service.Today()
	ids, err := j.Service.DueIDs(ctx)
	if err != nil {
		j.logger().Error("list due expenses", slog.Any("error", err))
		return err
	}
	var enqueued, duplicates int
	var failed []error
	for _, id := range ids {
		task, err := NewRecurringChargeTask(id, today)
		if err != nil {
			return err
		}
		_, err = j.Queue.EnqueueContext(ctx, task,
			asynq.TaskID(RecurringChargeTaskID(id, today)),
			asynq.Queue(QueueDefault),
			asynq.MaxRetry(3),
			asynq.Retention(chargeRetention),
		)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, asynq.ErrTaskIDConflict):
			duplicates++
		default:
			failed = append(failed, fmt.Errorf("enqueue recurring %d: %w", id, err))
		}
	}
	j.logger().Info("recurring sweep enqueued charges",
		slog.Time("today", today),
		slog.Int("due", len(ids)),
		slog.Int("enqueued", enqueued),
		slog.Int("duplicates", duplicates),
		slog.Int("failed", len(failed)))
	return errors.Join(failed...)
}

func (j *RecurringJob) sweepInline(ctx context.Context) error {
	result, err := j.Service.ProcessDueExpenses(ctx)
	if err != nil {
		j.logger().Error("inline sweep", slog.Any("error", err))
		return err
	}
	j.Metrics.AddCharges("charged", result.Charged)
	j.Metrics.AddCharges("skipped", result.Skipped)
	j.Metrics.AddCharges("failed", result.Failed)
	return nil
}

// HandleCharge charges one expense. Only transient storage failures are retried; domain
// failures such as insufficient funds wait for the next sweep.
func (j *RecurringJob) HandleCharge(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("recurring charge: dependencies not configured")
	}
	var payload RecurringChargePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.RecurringID <= 0 {
		return asynq.SkipRetry
	}

	tracker := j.Metrics.Track(TaskRecurringCharge)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int64("recurring_id", payload.RecurringID), slog.String("due", payload.Due))
	outcome, err := j.Service.ProcessOne(ctx, payload.RecurringID)
	if err != nil {
		j.Metrics.AddCharges("failed", 1)
		if ledger.IsRetryable(err) {
			logger.Warn("recurring charge will retry", slog.Any("error", err))
			resultErr = err
			return resultErr
		}
		logger.Warn("recurring charge rejected", slog.Any("error", err))
		resultErr = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		return resultErr
	}
	j.Metrics.AddCharges(string(outcome), 1)
	logger.Info("recurring charge processed", slog.String("outcome", string(outcome)))
	return nil
}

func (j *RecurringJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", "recurring"))
	}
	return slog.Default().With(slog.String("job", "recurring"))
}
