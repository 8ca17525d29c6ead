package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour. Every call to fn is one
// all-or-nothing unit of work.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a unit of work.
type TxRepository interface {
	GetAccount(ctx context.Context, id int64) (Account, error)
	FindActiveAccountByName(ctx context.Context, ownerID int64, nameKey string) (Account, error)
	ListAccounts(ctx context.Context, ownerID int64) ([]Account, error)
	InsertAccount(ctx context.Context, ownerID int64, name, nameKey string, balance decimal.Decimal) (Account, error)
	// UpdateAccountBalance writes balance only when the stored version still equals
	// expectedVersion, returning ErrVersionConflict otherwise.
	UpdateAccountBalance(ctx context.Context, id, expectedVersion int64, balance decimal.Decimal) (Account, error)
	UpdateAccountIdentity(ctx context.Context, id, expectedVersion int64, name, nameKey string, active bool) (Account, error)

	GetCategory(ctx context.Context, id int64) (Category, error)
	GetCategoryByRole(ctx context.Context, role CategoryRole) (Category, error)
	ListCategories(ctx context.Context) ([]Category, error)
	InsertCategory(ctx context.Context, name, nameKey string) (Category, error)

	InsertTransaction(ctx context.Context, in NewTransaction) (Transaction, error)
	GetTransaction(ctx context.Context, id int64) (Transaction, error)
	ListTransactions(ctx context.Context, accountID int64) ([]Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error

	InsertRecurring(ctx context.Context, in NewRecurringExpense) (RecurringExpense, error)
	GetRecurring(ctx context.Context, id int64) (RecurringExpense, error)
	ListRecurring(ctx context.Context, ownerID int64) ([]RecurringExpense, error)
	ListDueRecurring(ctx context.Context, today time.Time) ([]RecurringExpense, error)
	UpdateRecurring(ctx context.Context, r RecurringExpense) error
	// AdvanceRecurring moves the schedule past expectedDue only if it has not moved
	// already, returning ErrAlreadyCharged otherwise.
	AdvanceRecurring(ctx context.Context, id int64, expectedDue, lastPayment, nextDue time.Time) error
	DeleteRecurring(ctx context.Context, id int64) error
}

// AuditPort records ledger events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort deduplicates client retries.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// foldName produces the comparison key used for per-owner name uniqueness.
func foldName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}
