package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// ChargeOutcome describes what ProcessOne did with a schedule.
type ChargeOutcome string

const (
	ChargeOutcomeCharged ChargeOutcome = "charged"
	ChargeOutcomeSkipped ChargeOutcome = "skipped"
)

// SchedulerConfig tunes the sweep.
type SchedulerConfig struct {
	// Location defines "today"; UTC when nil.
	Location *time.Location
	// Concurrency bounds how many accounts are swept in parallel.
	Concurrency int
}

// RecurringScheduler owns the due-date state machine of recurring expenses.
type RecurringScheduler struct {
	repo       RepositoryPort
	engine     *TransactionEngine
	categories *CategoryGuard
	audit      AuditPort
	logger     *slog.Logger
	cfg        SchedulerConfig
	now        func() time.Time
}

// NewRecurringScheduler constructs the scheduler.
func NewRecurringScheduler(repo RepositoryPort, engine *TransactionEngine, categories *CategoryGuard, audit AuditPort, logger *slog.Logger, cfg SchedulerConfig) *RecurringScheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &RecurringScheduler{repo: repo, engine: engine, categories: categories, audit: audit, logger: logger, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *RecurringScheduler) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Today is the scheduler's current calendar day.
func (s *RecurringScheduler) Today() time.Time {
	return DateOf(s.now().In(s.cfg.Location))
}

// Create registers an active schedule whose first charge is due on StartDate.
func (s *RecurringScheduler) Create(ctx context.Context, ownerID int64, input CreateRecurringInput) (RecurringExpense, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return RecurringExpense{}, ErrInvalidName
	}
	if !validAmount(input.Amount) {
		return RecurringExpense{}, ErrInvalidAmount
	}
	if !input.Frequency.Known() {
		return RecurringExpense{}, ErrUnsupportedFrequency
	}
	start := input.StartDate
	if start.IsZero() {
		start = s.Today()
	}
	start = DateOf(start)
	var created RecurringExpense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.activeAccount(ctx, tx, ownerID, input.AccountID); err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, input.CategoryID)
		if err != nil {
			return err
		}
		if !s.categories.IsUserSelectable(category) {
			return ErrReservedCategory
		}
		created, err = tx.InsertRecurring(ctx, NewRecurringExpense{
			OwnerID:     ownerID,
			Name:        name,
			Amount:      input.Amount,
			AccountID:   input.AccountID,
			CategoryID:  input.CategoryID,
			Frequency:   input.Frequency,
			StartDate:   start,
			NextDueDate: start,
		})
		return err
	})
	if err != nil {
		return RecurringExpense{}, err
	}
	s.record(ctx, ownerID, "recurring.create", created.ID, map[string]any{"frequency": string(created.Frequency)})
	return created, nil
}

// Get returns one of the owner's schedules.
func (s *RecurringScheduler) Get(ctx context.Context, ownerID, id int64) (RecurringExpense, error) {
	var r RecurringExpense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		r, err = s.owned(ctx, tx, ownerID, id)
		return err
	})
	return r, err
}

// List returns the owner's schedules.
func (s *RecurringScheduler) List(ctx context.Context, ownerID int64) ([]RecurringExpense, error) {
	var out []RecurringExpense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListRecurring(ctx, ownerID)
		return err
	})
	return out, err
}

// Pause deactivates a schedule without touching its dates.
func (s *RecurringScheduler) Pause(ctx context.Context, ownerID, id int64) (RecurringExpense, error) {
	return s.mutate(ctx, ownerID, id, "recurring.pause", func(ctx context.Context, tx TxRepository, r *RecurringExpense) error {
		r.Active = false
		return nil
	})
}

// Resume reactivates a schedule. With a payment history the next due date becomes the
// first step after today counted from the last payment; without one it is left as is.
func (s *RecurringScheduler) Resume(ctx context.Context, ownerID, id int64) (RecurringExpense, error) {
	today := s.Today()
	return s.mutate(ctx, ownerID, id, "recurring.resume", func(ctx context.Context, tx TxRepository, r *RecurringExpense) error {
		if r.LastPayment != nil {
			step, err := StepFor(r.Frequency)
			if err != nil {
				return err
			}
			next := step.FirstAfter(*r.LastPayment, today)
			r.NextDueDate = &next
		}
		r.Active = true
		return nil
	})
}

// UpdateAmount changes the charge amount of future payments.
func (s *RecurringScheduler) UpdateAmount(ctx context.Context, ownerID, id int64, amount decimal.Decimal) (RecurringExpense, error) {
	if !validAmount(amount) {
		return RecurringExpense{}, ErrInvalidAmount
	}
	return s.mutate(ctx, ownerID, id, "recurring.update_amount", func(ctx context.Context, tx TxRepository, r *RecurringExpense) error {
		r.Amount = amount
		return nil
	})
}

// UpdateAccount moves future payments to another active account of the same owner.
func (s *RecurringScheduler) UpdateAccount(ctx context.Context, ownerID, id, accountID int64) (RecurringExpense, error) {
	return s.mutate(ctx, ownerID, id, "recurring.update_account", func(ctx context.Context, tx TxRepository, r *RecurringExpense) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			if isKind(err, shared.ErrNotFound) {
				return ErrIncorrectAccount
			}
			return err
		}
		if account.OwnerID != ownerID || !account.Active {
			return ErrIncorrectAccount
		}
		r.AccountID = account.ID
		return nil
	})
}

// UpdateNextDueDate overrides the next due date.
func (s *RecurringScheduler) UpdateNextDueDate(ctx context.Context, ownerID, id int64, due time.Time) (RecurringExpense, error) {
	if due.IsZero() {
		return RecurringExpense{}, shared.NewKindError(shared.ErrBadRequest, "Next due date required")
	}
	day := DateOf(due)
	return s.mutate(ctx, ownerID, id, "recurring.update_next_due", func(ctx context.Context, tx TxRepository, r *RecurringExpense) error {
		r.NextDueDate = &day
		return nil
	})
}

// Delete removes the schedule. Transactions it already produced stay in the ledger.
func (s *RecurringScheduler) Delete(ctx context.Context, ownerID, id int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := s.owned(ctx, tx, ownerID, id); err != nil {
			return err
		}
		return tx.DeleteRecurring(ctx, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, ownerID, "recurring.delete", id, nil)
	return nil
}

// DueIDs lists the schedules owed a charge today.
func (s *RecurringScheduler) DueIDs(ctx context.Context) ([]int64, error) {
	due, err := s.due(ctx, s.Today())
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(due))
	for _, r := range due {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// ProcessDueExpenses charges every active schedule due on or before today. Each schedule
// is its own unit of work; failures are logged and the schedule stays due for the next run.
func (s *RecurringScheduler) ProcessDueExpenses(ctx context.Context) (SweepResult, error) {
	today := s.Today()
	due, err := s.due(ctx, today)
	if err != nil {
		return SweepResult{}, err
	}

	// Schedules on one account run in order; separate accounts run in parallel.
	var order []int64
	byAccount := make(map[int64][]RecurringExpense)
	for _, r := range due {
		if _, ok := byAccount[r.AccountID]; !ok {
			order = append(order, r.AccountID)
		}
		byAccount[r.AccountID] = append(byAccount[r.AccountID], r)
	}

	var (
		mu     sync.Mutex
		result SweepResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, accountID := range order {
		batch := byAccount[accountID]
		g.Go(func() error {
			for _, r := range batch {
				outcome, err := s.chargeOn(gctx, r.ID, today)
				mu.Lock()
				switch {
				case err != nil:
					result.Failed++
				case outcome == ChargeOutcomeSkipped:
					result.Skipped++
				default:
					result.Charged++
				}
				mu.Unlock()
				if err != nil {
					logOrDefault(s.logger).Warn("recurring charge failed",
						slog.Int64("recurring_id", r.ID),
						slog.Int64("account_id", r.AccountID),
						slog.Any("error", err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	logOrDefault(s.logger).Info("recurring sweep finished",
		slog.Time("today", today),
		slog.Int("charged", result.Charged),
		slog.Int("skipped", result.Skipped),
		slog.Int("failed", result.Failed))
	return result, nil
}

// ProcessOne charges a single schedule if it is due today.
func (s *RecurringScheduler) ProcessOne(ctx context.Context, id int64) (ChargeOutcome, error) {
	return s.chargeOn(ctx, id, s.Today())
}

func (s *RecurringScheduler) chargeOn(ctx context.Context, id int64, today time.Time) (ChargeOutcome, error) {
	outcome := ChargeOutcomeSkipped
	var charged Transaction
	var schedule RecurringExpense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetRecurring(ctx, id)
		if err != nil {
			return err
		}
		if !r.Active || r.NextDueDate == nil || r.NextDueDate.After(today) {
			return nil
		}
		if r.LastPayment != nil && DateOf(*r.LastPayment).Equal(today) {
			return nil
		}
		step, err := StepFor(r.Frequency)
		if err != nil {
			return err
		}
		account, err := s.activeAccount(ctx, tx, r.OwnerID, r.AccountID)
		if err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, r.CategoryID)
		if err != nil {
			return err
		}
		recurringID := r.ID
		charged, _, err = s.engine.post(ctx, tx, leg{
			account:     account,
			category:    category,
			amount:      r.Amount,
			kind:        TransactionTypeExpense,
			date:        today,
			description: r.Name,
			recurringID: &recurringID,
		})
		if err != nil {
			return err
		}
		due := DateOf(*r.NextDueDate)
		if err := tx.AdvanceRecurring(ctx, r.ID, due, today, step.Next(due)); err != nil {
			return err
		}
		schedule = r
		outcome = ChargeOutcomeCharged
		return nil
	})
	if err != nil {
		return ChargeOutcomeSkipped, fmt.Errorf("recurring %d: %w", id, err)
	}
	if outcome == ChargeOutcomeCharged {
		s.record(ctx, schedule.OwnerID, "recurring.charge", schedule.ID, map[string]any{
			"transaction_id": charged.ID,
			"amount":         charged.Amount.String(),
		})
	}
	return outcome, nil
}

func (s *RecurringScheduler) due(ctx context.Context, today time.Time) ([]RecurringExpense, error) {
	var due []RecurringExpense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		due, err = tx.ListDueRecurring(ctx, today)
		return err
	})
	return due, err
}

func (s *RecurringScheduler) mutate(ctx context.Context, ownerID, id int64, action string, fn func(context.Context, TxRepository, *RecurringExpense) error) (RecurringExpense, error) {
	var updated RecurringExpense
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := s.owned(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &r); err != nil {
			return err
		}
		if err := tx.UpdateRecurring(ctx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return RecurringExpense{}, err
	}
	s.record(ctx, ownerID, action, id, nil)
	return updated, nil
}

func (s *RecurringScheduler) owned(ctx context.Context, tx TxRepository, ownerID, id int64) (RecurringExpense, error) {
	r, err := tx.GetRecurring(ctx, id)
	if err != nil {
		return RecurringExpense{}, err
	}
	if r.OwnerID != ownerID {
		return RecurringExpense{}, ErrPaymentNotFound
	}
	return r, nil
}

func (s *RecurringScheduler) activeAccount(ctx context.Context, tx TxRepository, ownerID, accountID int64) (Account, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if account.OwnerID != ownerID || !account.Active {
		return Account{}, ErrAccountMissing
	}
	return account, nil
}

func (s *RecurringScheduler) record(ctx context.Context, ownerID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		OwnerID:  ownerID,
		Action:   action,
		Entity:   "recurring_expense",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		logOrDefault(s.logger).Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

// IsRetryable reports whether a charge failure is transient and worth retrying before
// the next sweep. A version conflict means another writer touched the account; the retry
// re-reads it.
func IsRetryable(err error) bool {
	return errors.Is(err, shared.ErrUnavailable) || errors.Is(err, ErrVersionConflict)
}
