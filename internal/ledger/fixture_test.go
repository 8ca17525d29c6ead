package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	ownerID      int64 = 7
	otherOwnerID int64 = 8
)

type fixture struct {
	repo       *memoryRepo
	categories *CategoryGuard
	accounts   *AccountLedger
	engine     *TransactionEngine
	transfers  *TransferCoordinator
	scheduler  *RecurringScheduler

	opening      Category
	fundTransfer Category
	savings      Category
	groceries    Category

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{repo: newMemoryRepo(), now: time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC)}
	f.opening = f.repo.seedCategory("Opening Balance", CategoryRoleOpeningBalance, true, true)
	f.fundTransfer = f.repo.seedCategory("Fund Transfer", CategoryRoleFundTransfer, true, true)
	f.savings = f.repo.seedCategory("Savings", CategoryRoleSavings, true, true)
	f.groceries = f.repo.seedCategory("Groceries", CategoryRoleNone, false, false)

	clock := func() time.Time { return f.now }
	f.categories = NewCategoryGuard(f.repo)
	f.accounts = NewAccountLedger(f.repo, f.categories, nil, nil)
	f.accounts.WithNow(clock)
	f.engine = NewTransactionEngine(f.repo, f.accounts, f.categories, nil, nil)
	f.engine.WithNow(clock)
	f.transfers = NewTransferCoordinator(f.repo, f.engine, f.categories, nil, nil, nil)
	f.transfers.WithNow(clock)
	f.scheduler = NewRecurringScheduler(f.repo, f.engine, f.categories, nil, nil, SchedulerConfig{Concurrency: 2})
	f.scheduler.WithNow(clock)
	return f
}

func (f *fixture) today() time.Time {
	return DateOf(f.now)
}

func (f *fixture) openAccount(t *testing.T, owner int64, name, balance string) Account {
	t.Helper()
	account, err := f.accounts.Create(t.Context(), owner, CreateAccountInput{Name: name, InitialBalance: dec(balance)})
	require.NoError(t, err)
	return account
}

// requireConsistent asserts balance == Σ signed(amount) over the account's history.
func (f *fixture) requireConsistent(t *testing.T, accountID int64) {
	t.Helper()
	account := f.repo.account(accountID)
	require.True(t, account.Balance.Equal(f.repo.ledgerSum(accountID)),
		"balance %s != ledger sum %s", account.Balance, f.repo.ledgerSum(accountID))
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func requireBalance(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "expected balance %s, got %s", want, got)
}
