package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

func TestSaveAndDeleteExpenseRestoresBalance(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "100.00")

	txn, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
		AccountName: "Checking",
		CategoryID:  f.groceries.ID,
		Amount:      dec("30.00"),
		Type:        TransactionTypeExpense,
		Description: "weekly shop",
	})
	require.NoError(t, err)
	require.Equal(t, f.today(), txn.Date)
	requireBalance(t, "70.00", f.repo.account(account.ID).Balance)
	f.requireConsistent(t, account.ID)

	require.NoError(t, f.engine.DeleteTransaction(context.Background(), ownerID, txn.ID))
	requireBalance(t, "100.00", f.repo.account(account.ID).Balance)
	f.requireConsistent(t, account.ID)

	_, err = f.engine.GetTransactionByID(context.Background(), ownerID, txn.ID)
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestSaveExpenseRejectsInsufficientFunds(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "10.00")

	_, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
		AccountName: "Checking",
		CategoryID:  f.groceries.ID,
		Amount:      dec("20.00"),
		Type:        TransactionTypeExpense,
	})
	require.ErrorIs(t, err, ErrNotEnoughFunds)
	require.ErrorIs(t, err, shared.ErrConflict)
	require.Equal(t, "Not enough funds", err.Error())
	requireBalance(t, "10.00", f.repo.account(account.ID).Balance)
	require.Len(t, f.repo.transactionsOf(account.ID), 1)
}

func TestSaveExpenseOfWholeBalanceIsAllowed(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "10.00")
	_, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
		AccountName: "checking",
		CategoryID:  f.groceries.ID,
		Amount:      dec("10"),
		Type:        TransactionTypeExpense,
	})
	require.NoError(t, err)
	require.True(t, f.repo.account(account.ID).Balance.IsZero())
}

func TestSaveTransactionResolvesReferences(t *testing.T) {
	f := newFixture(t)
	f.openAccount(t, ownerID, "Checking", "10.00")

	cases := []struct {
		name  string
		owner int64
		input SaveTransactionInput
		want  error
	}{
		{"unknown account", ownerID, SaveTransactionInput{AccountName: "Nope", CategoryID: f.groceries.ID, Amount: dec("1"), Type: TransactionTypeDeposit}, ErrAccountMissing},
		{"other owner", otherOwnerID, SaveTransactionInput{AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec("1"), Type: TransactionTypeDeposit}, ErrAccountMissing},
		{"unknown category", ownerID, SaveTransactionInput{AccountName: "Checking", CategoryID: 999, Amount: dec("1"), Type: TransactionTypeDeposit}, ErrCategoryMissing},
		{"zero amount", ownerID, SaveTransactionInput{AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec("0"), Type: TransactionTypeDeposit}, ErrInvalidAmount},
		{"unknown type", ownerID, SaveTransactionInput{AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec("1"), Type: "REFUND"}, ErrInvalidTransactionType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.SaveTransaction(context.Background(), tc.owner, tc.input)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestDeleteSavingsTransactionIsForbidden(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "50.00")
	txn, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
		AccountName: "Checking",
		CategoryID:  f.savings.ID,
		Amount:      dec("20.00"),
		Type:        TransactionTypeExpense,
	})
	require.NoError(t, err)

	err = f.engine.DeleteTransaction(context.Background(), ownerID, txn.ID)
	require.ErrorIs(t, err, ErrDeletingProhibited)
	require.ErrorIs(t, err, shared.ErrForbidden)
	requireBalance(t, "30.00", f.repo.account(account.ID).Balance)
	_, err = f.engine.GetTransactionByID(context.Background(), ownerID, txn.ID)
	require.NoError(t, err)
}

func TestDeleteSpentDepositIsRejected(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "0")
	deposit, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
		AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec("40"), Type: TransactionTypeDeposit,
	})
	require.NoError(t, err)
	_, err = f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
		AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec("30"), Type: TransactionTypeExpense,
	})
	require.NoError(t, err)

	err = f.engine.DeleteTransaction(context.Background(), ownerID, deposit.ID)
	require.ErrorIs(t, err, ErrInsufficientFunds)
	requireBalance(t, "10", f.repo.account(account.ID).Balance)
	require.Len(t, f.repo.transactionsOf(account.ID), 2)
	f.requireConsistent(t, account.ID)
}

func TestDeleteTransactionIsAtomic(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "100")
	txn, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
		AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec("30"), Type: TransactionTypeExpense,
	})
	require.NoError(t, err)

	// A failure after the reversal delta must discard the delta as well.
	boom := errors.New("boom")
	err = f.repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, account.ID)
		require.NoError(t, err)
		if _, err := f.accounts.ApplyDelta(ctx, tx, current, dec("30")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	requireBalance(t, "70", f.repo.account(account.ID).Balance)

	require.NoError(t, f.engine.DeleteTransaction(context.Background(), ownerID, txn.ID))
	f.requireConsistent(t, account.ID)
}

func TestTransactionsAreHiddenFromOtherOwners(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "100")
	history := f.repo.transactionsOf(account.ID)
	require.Len(t, history, 1)

	_, err := f.engine.GetTransactionByID(context.Background(), otherOwnerID, history[0].ID)
	require.ErrorIs(t, err, ErrTransactionNotFound)
	err = f.engine.DeleteTransaction(context.Background(), otherOwnerID, history[0].ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.engine.ListTransactions(context.Background(), otherOwnerID, account.ID)
	require.ErrorIs(t, err, ErrAccountMissing)
}

func TestBalanceMatchesHistoryAfterMixedActivity(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "12.34")
	amounts := []struct {
		kind   TransactionType
		amount string
	}{
		{TransactionTypeDeposit, "100.10"},
		{TransactionTypeExpense, "45.55"},
		{TransactionTypeExpense, "0.01"},
		{TransactionTypeDeposit, "9.99"},
		{TransactionTypeExpense, "500"},
	}
	var saved []Transaction
	for _, a := range amounts {
		txn, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
			AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec(a.amount), Type: a.kind,
		})
		if err == nil {
			saved = append(saved, txn)
		}
		f.requireConsistent(t, account.ID)
	}
	require.Len(t, saved, 4)
	require.NoError(t, f.engine.DeleteTransaction(context.Background(), ownerID, saved[1].ID))
	f.requireConsistent(t, account.ID)
	requireBalance(t, "122.42", f.repo.account(account.ID).Balance)

	listed, err := f.engine.ListTransactions(context.Background(), ownerID, account.ID)
	require.NoError(t, err)
	require.Len(t, listed, 4)
}

func TestSaveTransactionRejectsSubCentAmounts(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "100.00")

	for _, raw := range []string{"0.005", "12.345", "0.0001"} {
		_, err := f.engine.SaveTransaction(context.Background(), ownerID, SaveTransactionInput{
			AccountName: "Checking", CategoryID: f.groceries.ID, Amount: dec(raw), Type: TransactionTypeExpense,
		})
		require.ErrorIs(t, err, ErrInvalidAmount, raw)
		require.ErrorIs(t, err, shared.ErrBadRequest, raw)
	}
	requireBalance(t, "100.00", f.repo.account(account.ID).Balance)
	require.Len(t, f.repo.transactionsOf(account.ID), 1)
	f.requireConsistent(t, account.ID)
}

func TestApplyDeltaRejectsSubCentDelta(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "100.00")
	_, err := f.accounts.ApplyDeltaByID(context.Background(), account.ID, dec("-0.005"))
	require.ErrorIs(t, err, ErrInvalidAmount)
	requireBalance(t, "100.00", f.repo.account(account.ID).Balance)
}
