package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// AccountLedger owns account balances and their optimistic version counters.
type AccountLedger struct {
	repo       RepositoryPort
	categories *CategoryGuard
	audit      AuditPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewAccountLedger constructs the ledger.
func NewAccountLedger(repo RepositoryPort, categories *CategoryGuard, audit AuditPort, logger *slog.Logger) *AccountLedger {
	return &AccountLedger{repo: repo, categories: categories, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (l *AccountLedger) WithNow(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// ApplyDelta writes snapshot.Balance+delta conditionally on snapshot.Version. A writer that
// read a stale snapshot gets ErrVersionConflict and must re-read.
func (l *AccountLedger) ApplyDelta(ctx context.Context, tx TxRepository, snapshot Account, delta decimal.Decimal) (Account, error) {
	if !snapshot.Active {
		return Account{}, ErrAccountMissing
	}
	if !fitsScale(delta) {
		return Account{}, ErrInvalidAmount
	}
	return tx.UpdateAccountBalance(ctx, snapshot.ID, snapshot.Version, snapshot.Balance.Add(delta))
}

// ApplyDeltaByID reads the current balance and version and applies delta in its own unit of work.
func (l *AccountLedger) ApplyDeltaByID(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		updated, err := l.ApplyDelta(ctx, tx, current, delta)
		if err != nil {
			return err
		}
		balance = updated.Balance
		return nil
	})
	return balance, err
}

// Create opens an account. A positive initial balance is recorded as an opening-balance
// deposit so the balance stays equal to the sum of the account's transactions.
func (l *AccountLedger) Create(ctx context.Context, ownerID int64, input CreateAccountInput) (Account, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Account{}, ErrInvalidName
	}
	if input.InitialBalance.IsNegative() || !fitsScale(input.InitialBalance) {
		return Account{}, ErrInvalidAmount
	}
	key := foldName(name)
	var account Account
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.FindActiveAccountByName(ctx, ownerID, key); err == nil {
			return ErrDuplicateAccount
		} else if !isKind(err, shared.ErrNotFound) {
			return err
		}
		inserted, err := tx.InsertAccount(ctx, ownerID, name, key, input.InitialBalance)
		if err != nil {
			return err
		}
		if input.InitialBalance.IsPositive() {
			opening, err := l.categories.byRole(ctx, tx, CategoryRoleOpeningBalance)
			if err != nil {
				return err
			}
			if _, err := tx.InsertTransaction(ctx, NewTransaction{
				AccountID:   inserted.ID,
				CategoryID:  opening.ID,
				Amount:      input.InitialBalance,
				Type:        TransactionTypeDeposit,
				Date:        DateOf(l.now()),
				Description: opening.Name,
			}); err != nil {
				return err
			}
		}
		account = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	l.record(ctx, ownerID, "account.create", account.ID, map[string]any{
		"name":            account.Name,
		"initial_balance": input.InitialBalance.String(),
	})
	return account, nil
}

// Rename changes the account's display name under the same uniqueness rule as Create.
func (l *AccountLedger) Rename(ctx context.Context, ownerID, accountID int64, name string) (Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Account{}, ErrInvalidName
	}
	key := foldName(name)
	var account Account
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := l.owned(ctx, tx, ownerID, accountID)
		if err != nil {
			return err
		}
		if clash, err := tx.FindActiveAccountByName(ctx, ownerID, key); err == nil && clash.ID != current.ID {
			return ErrDuplicateAccount
		} else if err != nil && !isKind(err, shared.ErrNotFound) {
			return err
		}
		account, err = tx.UpdateAccountIdentity(ctx, current.ID, current.Version, name, key, current.Active)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	l.record(ctx, ownerID, "account.rename", account.ID, map[string]any{"name": account.Name})
	return account, nil
}

// Deactivate tombstones an account with a zero balance.
func (l *AccountLedger) Deactivate(ctx context.Context, ownerID, accountID int64) (Account, error) {
	var account Account
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := l.owned(ctx, tx, ownerID, accountID)
		if err != nil {
			return err
		}
		if !current.Balance.IsZero() {
			return ErrNonZeroBalance
		}
		account, err = tx.UpdateAccountIdentity(ctx, current.ID, current.Version, current.Name, foldName(current.Name), false)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	l.record(ctx, ownerID, "account.deactivate", account.ID, nil)
	return account, nil
}

// Get returns an active account owned by ownerID.
func (l *AccountLedger) Get(ctx context.Context, ownerID, accountID int64) (Account, error) {
	var account Account
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		account, err = l.owned(ctx, tx, ownerID, accountID)
		return err
	})
	return account, err
}

// List returns the owner's active accounts.
func (l *AccountLedger) List(ctx context.Context, ownerID int64) ([]Account, error) {
	var accounts []Account
	err := l.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx, ownerID)
		return err
	})
	return accounts, err
}

// owned loads an active account and hides other owners' accounts behind ErrAccountMissing.
func (l *AccountLedger) owned(ctx context.Context, tx TxRepository, ownerID, accountID int64) (Account, error) {
	account, err := tx.GetAccount(ctx, accountID)
	if err != nil {
		return Account{}, err
	}
	if account.OwnerID != ownerID || !account.Active {
		return Account{}, ErrAccountMissing
	}
	return account, nil
}

func (l *AccountLedger) record(ctx context.Context, ownerID int64, action string, accountID int64, meta map[string]any) {
	if l.audit == nil {
		return
	}
	if err := l.audit.Record(ctx, shared.AuditLog{
		OwnerID:  ownerID,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", accountID),
		Meta:     meta,
		At:       l.now(),
	}); err != nil {
		logOrDefault(l.logger).Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
