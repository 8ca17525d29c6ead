package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// Repository persists ledger entities in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction. Domain errors pass through;
// serialization failures become ErrVersionConflict and anything else ErrUnavailable.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("%w: ledger repository not initialised", shared.ErrUnavailable)
	}
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil {
		return translate(err)
	}
	return nil
}

func translate(err error) error {
	var kindErr *shared.KindError
	if errors.As(err, &kindErr) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return ErrVersionConflict
		}
	}
	return fmt.Errorf("%w: ledger: %w", shared.ErrUnavailable, err)
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

const accountColumns = `id, owner_id, name, balance, active, version, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.OwnerID, &a.Name, &a.Balance, &a.Active, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountMissing
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetAccount(ctx context.Context, id int64) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
}

func (r *txRepository) FindActiveAccountByName(ctx context.Context, ownerID int64, nameKey string) (Account, error) {
	return scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id=$1 AND name_key=$2 AND active`, ownerID, nameKey))
}

func (r *txRepository) ListAccounts(ctx context.Context, ownerID int64) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE owner_id=$1 AND active ORDER BY name`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) InsertAccount(ctx context.Context, ownerID int64, name, nameKey string, balance decimal.Decimal) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `INSERT INTO accounts (owner_id, name, name_key, balance, active, version)
VALUES ($1,$2,$3,$4,TRUE,1) RETURNING `+accountColumns, ownerID, name, nameKey, balance))
	if err != nil {
		if isUniqueViolation(err, "uq_accounts_owner_name_active") {
			return Account{}, ErrDuplicateAccount
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) UpdateAccountBalance(ctx context.Context, id, expectedVersion int64, balance decimal.Decimal) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `UPDATE accounts SET balance=$3, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$2 RETURNING `+accountColumns, id, expectedVersion, balance))
	if errors.Is(err, ErrAccountMissing) {
		return Account{}, ErrVersionConflict
	}
	return a, err
}

func (r *txRepository) UpdateAccountIdentity(ctx context.Context, id, expectedVersion int64, name, nameKey string, active bool) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `UPDATE accounts SET name=$3, name_key=$4, active=$5, version=version+1, updated_at=NOW()
WHERE id=$1 AND version=$2 RETURNING `+accountColumns, id, expectedVersion, name, nameKey, active))
	if err != nil {
		if errors.Is(err, ErrAccountMissing) {
			return Account{}, ErrVersionConflict
		}
		if isUniqueViolation(err, "uq_accounts_owner_name_active") {
			return Account{}, ErrDuplicateAccount
		}
		return Account{}, err
	}
	return a, nil
}

const categoryColumns = `id, name, COALESCE(role, ''), reserved, deletion_prohibited, created_at`

func scanCategory(row pgx.Row) (Category, error) {
	var c Category
	if err := row.Scan(&c.ID, &c.Name, &c.Role, &c.Reserved, &c.DeletionProhibited, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Category{}, ErrCategoryMissing
		}
		return Category{}, err
	}
	return c, nil
}

func (r *txRepository) GetCategory(ctx context.Context, id int64) (Category, error) {
	return scanCategory(r.tx.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id=$1`, id))
}

func (r *txRepository) GetCategoryByRole(ctx context.Context, role CategoryRole) (Category, error) {
	return scanCategory(r.tx.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE role=$1`, string(role)))
}

func (r *txRepository) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertCategory(ctx context.Context, name, nameKey string) (Category, error) {
	c, err := scanCategory(r.tx.QueryRow(ctx, `INSERT INTO categories (name, name_key, reserved, deletion_prohibited)
VALUES ($1,$2,FALSE,FALSE) RETURNING `+categoryColumns, name, nameKey))
	if err != nil {
		if isUniqueViolation(err, "") {
			return Category{}, ErrDuplicateCategory
		}
		return Category{}, err
	}
	return c, nil
}

const transactionColumns = `id, account_id, category_id, amount, type, date, description, transfer_id, recurring_id, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var transferID *uuid.UUID
	if err := row.Scan(&t.ID, &t.AccountID, &t.CategoryID, &t.Amount, &t.Type, &t.Date, &t.Description, &transferID, &t.RecurringID, &t.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	if transferID != nil {
		t.TransferID = *transferID
	}
	return t, nil
}

func (r *txRepository) InsertTransaction(ctx context.Context, in NewTransaction) (Transaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `INSERT INTO transactions (account_id, category_id, amount, type, date, description, transfer_id, recurring_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING `+transactionColumns,
		in.AccountID, in.CategoryID, in.Amount, string(in.Type), in.Date, in.Description, nullUUID(in.TransferID), in.RecurringID))
}

func (r *txRepository) GetTransaction(ctx context.Context, id int64) (Transaction, error) {
	return scanTransaction(r.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id))
}

func (r *txRepository) ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE account_id=$1 ORDER BY date DESC, id DESC`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *txRepository) DeleteTransaction(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

const recurringColumns = `id, owner_id, name, amount, account_id, category_id, frequency, start_date, next_due_date, last_payment, active, created_at, updated_at`

func scanRecurring(row pgx.Row) (RecurringExpense, error) {
	var e RecurringExpense
	if err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &e.Amount, &e.AccountID, &e.CategoryID, &e.Frequency, &e.StartDate, &e.NextDueDate, &e.LastPayment, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RecurringExpense{}, ErrPaymentNotFound
		}
		return RecurringExpense{}, err
	}
	return e, nil
}

func (r *txRepository) listRecurring(ctx context.Context, query string, args ...any) ([]RecurringExpense, error) {
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []RecurringExpense
	for rows.Next() {
		e, err := scanRecurring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *txRepository) InsertRecurring(ctx context.Context, in NewRecurringExpense) (RecurringExpense, error) {
	return scanRecurring(r.tx.QueryRow(ctx, `INSERT INTO recurring_expenses (owner_id, name, amount, account_id, category_id, frequency, start_date, next_due_date, active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE) RETURNING `+recurringColumns,
		in.OwnerID, in.Name, in.Amount, in.AccountID, in.CategoryID, string(in.Frequency), in.StartDate, in.NextDueDate))
}

func (r *txRepository) GetRecurring(ctx context.Context, id int64) (RecurringExpense, error) {
	return scanRecurring(r.tx.QueryRow(ctx, `SELECT `+recurringColumns+` FROM recurring_expenses WHERE id=$1`, id))
}

func (r *txRepository) ListRecurring(ctx context.Context, ownerID int64) ([]RecurringExpense, error) {
	return r.listRecurring(ctx, `SELECT `+recurringColumns+` FROM recurring_expenses WHERE owner_id=$1 ORDER BY next_due_date NULLS LAST, id`, ownerID)
}

func (r *txRepository) ListDueRecurring(ctx context.Context, today time.Time) ([]RecurringExpense, error) {
	return r.listRecurring(ctx, `SELECT `+recurringColumns+` FROM recurring_expenses
WHERE active AND next_due_date IS NOT NULL AND next_due_date <= $1 ORDER BY next_due_date, id`, today)
}

func (r *txRepository) UpdateRecurring(ctx context.Context, e RecurringExpense) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE recurring_expenses SET amount=$2, account_id=$3, next_due_date=$4, last_payment=$5, active=$6, updated_at=NOW()
WHERE id=$1`, e.ID, e.Amount, e.AccountID, e.NextDueDate, e.LastPayment, e.Active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *txRepository) AdvanceRecurring(ctx context.Context, id int64, expectedDue, lastPayment, nextDue time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE recurring_expenses SET last_payment=$3, next_due_date=$4, updated_at=NOW()
WHERE id=$1 AND next_due_date=$2 AND active`, id, expectedDue, lastPayment, nextDue)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyCharged
	}
	return nil
}

func (r *txRepository) DeleteRecurring(ctx context.Context, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM recurring_expenses WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func nullUUID(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
