package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskRecurringSweep lists due recurring expenses and fans out one charge task each.
	TaskRecurringSweep = "recurring:sweep"
	// TaskRecurringCharge charges a single recurring expense.
	TaskRecurringCharge = "recurring:charge"

	// chargeRetention keeps completed charge task ids around long enough to reject a
	// second enqueue for the same due date.
	chargeRetention = 36 * time.Hour
)

// RecurringSweepPayload configures a sweep run.
type RecurringSweepPayload struct {
	// Inline charges every due expense inside the sweep instead of fanning out.
	Inline bool `json:"inline,omitempty"`
}

// RecurringChargePayload identifies one charge.
type RecurringChargePayload struct {
	RecurringID int64  `json:"recurring_id"`
	Due         string `json:"due"`
}

// NewRecurringSweepTask creates the sweep task registered on the cron scheduler.
func NewRecurringSweepTask(inline bool) (*asynq.Task, error) {
	body, err := json.Marshal(RecurringSweepPayload{Inline: inline})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringSweep, body, asynq.Queue(QueueDefault)), nil
}

// NewRecurringChargeTask creates a charge task for id on the given calendar day.
func NewRecurringChargeTask(id int64, due time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(RecurringChargePayload{RecurringID: id, Due: due.Format("2006-01-02")})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRecurringCharge, body, asynq.Queue(QueueDefault)), nil
}

// RecurringChargeTaskID deduplicates charge tasks per schedule and day.
func RecurringChargeTaskID(id int64, due time.Time) string {
	return fmt.Sprintf("recurring:%d:%s", id, due.Format("2006-01-02"))
}
