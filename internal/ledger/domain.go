package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates the direction of a ledger entry.
type TransactionType string

const (
	TransactionTypeDeposit TransactionType = "DEPOSIT"
	TransactionTypeExpense TransactionType = "EXPENSE"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionTypeDeposit || t == TransactionTypeExpense
}

// Signed returns the balance delta an amount of this type produces.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionTypeExpense {
		return amount.Neg()
	}
	return amount
}

// TransferDirection is expressed relative to the anchor account.
type TransferDirection string

const (
	// TransferDeposit moves funds from the counterpart into the anchor.
	TransferDeposit TransferDirection = "DEPOSIT"
	// TransferWithdraw moves funds from the anchor into the counterpart.
	TransferWithdraw TransferDirection = "WITHDRAW"
)

// CategoryRole tags the ledger-internal categories seeded by migrations.
type CategoryRole string

const (
	CategoryRoleNone           CategoryRole = ""
	CategoryRoleOpeningBalance CategoryRole = "OPENING_BALANCE"
	CategoryRoleFundTransfer   CategoryRole = "FUND_TRANSFER"
	CategoryRoleSavings        CategoryRole = "SAVINGS"
)

// Account holds a balance owned by one user.
type Account struct {
	ID        int64
	OwnerID   int64
	Name      string
	Balance   decimal.Decimal
	Active    bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Category is shared reference data. Reserved categories are never user-selectable.
type Category struct {
	ID                 int64
	Name               string
	Role               CategoryRole
	Reserved           bool
	DeletionProhibited bool
	CreatedAt          time.Time
}

// Transaction is an immutable ledger entry; Amount is always positive.
type Transaction struct {
	ID          int64
	AccountID   int64
	CategoryID  int64
	Amount      decimal.Decimal
	Type        TransactionType
	Date        time.Time
	Description string
	TransferID  uuid.UUID
	RecurringID *int64
	CreatedAt   time.Time
}

// RecurringExpense schedules a periodic charge against an account.
type RecurringExpense struct {
	ID          int64
	OwnerID     int64
	Name        string
	Amount      decimal.Decimal
	AccountID   int64
	CategoryID  int64
	Frequency   Frequency
	StartDate   time.Time
	NextDueDate *time.Time
	LastPayment *time.Time
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CreateAccountInput describes a new account.
type CreateAccountInput struct {
	Name           string
	InitialBalance decimal.Decimal
}

// SaveTransactionInput describes a user-initiated ledger entry.
type SaveTransactionInput struct {
	AccountName string
	CategoryID  int64
	Amount      decimal.Decimal
	Type        TransactionType
	Date        time.Time
	Description string
}

// TransferInput describes a fund transfer relative to an anchor account.
type TransferInput struct {
	AnchorAccountID int64
	Amount          decimal.Decimal
	Direction       TransferDirection
	CounterpartName string
	Date            time.Time
	IdempotencyKey  string
}

// CreateRecurringInput describes a new recurring expense.
type CreateRecurringInput struct {
	Name       string
	Amount     decimal.Decimal
	AccountID  int64
	CategoryID int64
	Frequency  Frequency
	StartDate  time.Time
}

// NewTransaction is the repository insert shape.
type NewTransaction struct {
	AccountID   int64
	CategoryID  int64
	Amount      decimal.Decimal
	Type        TransactionType
	Date        time.Time
	Description string
	TransferID  uuid.UUID
	RecurringID *int64
}

// NewRecurringExpense is the repository insert shape.
type NewRecurringExpense struct {
	OwnerID     int64
	Name        string
	Amount      decimal.Decimal
	AccountID   int64
	CategoryID  int64
	Frequency   Frequency
	StartDate   time.Time
	NextDueDate time.Time
}

// SweepResult summarises one processDueExpenses run.
type SweepResult struct {
	Charged int
	Skipped int
	Failed  int
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
