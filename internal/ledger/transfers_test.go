package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

func TestWithdrawTransferMovesFundsToCounterpart(t *testing.T) {
	f := newFixture(t)
	primary := f.openAccount(t, ownerID, "Primary", "250.00")
	target := f.openAccount(t, ownerID, "test-acc", "250.00")

	anchor, err := f.transfers.TransferFunds(context.Background(), ownerID, TransferInput{
		AnchorAccountID: primary.ID,
		Amount:          dec("100.00"),
		Direction:       TransferWithdraw,
		CounterpartName: "test-acc",
	})
	require.NoError(t, err)
	require.Equal(t, primary.ID, anchor.ID)
	requireBalance(t, "150.00", anchor.Balance)
	requireBalance(t, "150.00", f.repo.account(primary.ID).Balance)
	requireBalance(t, "350.00", f.repo.account(target.ID).Balance)

	payerLegs := f.repo.transactionsOf(primary.ID)
	payeeLegs := f.repo.transactionsOf(target.ID)
	require.Len(t, payerLegs, 2)
	require.Len(t, payeeLegs, 2)
	out, in := payerLegs[1], payeeLegs[1]
	require.Equal(t, TransactionTypeExpense, out.Type)
	require.Equal(t, TransactionTypeDeposit, in.Type)
	require.Equal(t, "Transfer to test-acc", out.Description)
	require.Equal(t, "Transfer from Primary", in.Description)
	require.Equal(t, f.fundTransfer.ID, out.CategoryID)
	require.Equal(t, f.fundTransfer.ID, in.CategoryID)
	require.NotEqual(t, uuid.Nil, out.TransferID)
	require.Equal(t, out.TransferID, in.TransferID)
	f.requireConsistent(t, primary.ID)
	f.requireConsistent(t, target.ID)
}

func TestDepositTransferPullsFundsIntoAnchor(t *testing.T) {
	f := newFixture(t)
	primary := f.openAccount(t, ownerID, "Primary", "10.00")
	source := f.openAccount(t, ownerID, "Reserve", "90.00")

	anchor, err := f.transfers.TransferFunds(context.Background(), ownerID, TransferInput{
		AnchorAccountID: primary.ID,
		Amount:          dec("40"),
		Direction:       TransferDeposit,
		CounterpartName: "reserve",
	})
	require.NoError(t, err)
	requireBalance(t, "50.00", anchor.Balance)
	requireBalance(t, "50.00", f.repo.account(source.ID).Balance)
}

func TestTransferValidation(t *testing.T) {
	f := newFixture(t)
	primary := f.openAccount(t, ownerID, "Primary", "20.00")
	f.openAccount(t, ownerID, "Other", "5.00")
	f.openAccount(t, otherOwnerID, "Foreign", "500.00")

	cases := []struct {
		name  string
		input TransferInput
		want  error
		kind  error
	}{
		{"unknown direction", TransferInput{AnchorAccountID: primary.ID, Amount: dec("1"), Direction: "SIDEWAYS", CounterpartName: "Other"}, ErrUnknownTransferType, shared.ErrBadRequest},
		{"missing counterpart", TransferInput{AnchorAccountID: primary.ID, Amount: dec("1"), Direction: TransferWithdraw, CounterpartName: "Nope"}, ErrAccountNotFound, shared.ErrNotFound},
		{"foreign counterpart", TransferInput{AnchorAccountID: primary.ID, Amount: dec("1"), Direction: TransferWithdraw, CounterpartName: "Foreign"}, ErrAccountNotFound, shared.ErrNotFound},
		{"missing anchor", TransferInput{AnchorAccountID: 999, Amount: dec("1"), Direction: TransferWithdraw, CounterpartName: "Other"}, ErrAccountNotFound, shared.ErrNotFound},
		{"payer short on withdraw", TransferInput{AnchorAccountID: primary.ID, Amount: dec("20.01"), Direction: TransferWithdraw, CounterpartName: "Other"}, ErrNotEnoughFunds, shared.ErrConflict},
		{"payer short on deposit", TransferInput{AnchorAccountID: primary.ID, Amount: dec("6"), Direction: TransferDeposit, CounterpartName: "Other"}, ErrNotEnoughFunds, shared.ErrConflict},
		{"same account", TransferInput{AnchorAccountID: primary.ID, Amount: dec("1"), Direction: TransferWithdraw, CounterpartName: "PRIMARY"}, ErrSameAccount, shared.ErrBadRequest},
		{"sub-cent amount", TransferInput{AnchorAccountID: primary.ID, Amount: dec("0.005"), Direction: TransferWithdraw, CounterpartName: "Other"}, ErrInvalidAmount, shared.ErrBadRequest},
		{"zero amount", TransferInput{AnchorAccountID: primary.ID, Amount: dec("0"), Direction: TransferWithdraw, CounterpartName: "Other"}, ErrInvalidAmount, shared.ErrBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.transfers.TransferFunds(context.Background(), ownerID, tc.input)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, tc.kind)
			requireBalance(t, "20.00", f.repo.account(primary.ID).Balance)
		})
	}
}

func TestTransferRollsBackFirstLegWhenSecondFails(t *testing.T) {
	f := newFixture(t)
	primary := f.openAccount(t, ownerID, "Primary", "100")
	target := f.openAccount(t, ownerID, "Target", "0")

	boom := errors.New("disk full")
	f.repo.failInsert = 2
	f.repo.failErr = boom
	_, err := f.transfers.TransferFunds(context.Background(), ownerID, TransferInput{
		AnchorAccountID: primary.ID,
		Amount:          dec("60"),
		Direction:       TransferWithdraw,
		CounterpartName: "Target",
	})
	require.ErrorIs(t, err, boom)

	requireBalance(t, "100", f.repo.account(primary.ID).Balance)
	require.True(t, f.repo.account(target.ID).Balance.IsZero())
	require.Len(t, f.repo.transactionsOf(primary.ID), 1)
	require.Empty(t, f.repo.transactionsOf(target.ID))
}

func TestTransferRequiresSeededCategory(t *testing.T) {
	f := newFixture(t)
	primary := f.openAccount(t, ownerID, "Primary", "100")
	f.openAccount(t, ownerID, "Target", "0")
	f.repo.mu.Lock()
	delete(f.repo.state.categories, f.fundTransfer.ID)
	f.repo.mu.Unlock()

	_, err := f.transfers.TransferFunds(context.Background(), ownerID, TransferInput{
		AnchorAccountID: primary.ID, Amount: dec("1"), Direction: TransferWithdraw, CounterpartName: "Target",
	})
	require.ErrorIs(t, err, ErrReservedCategoryMissing)
}

type stubIdempotency struct {
	keys    map[string]bool
	deleted []string
}

func (s *stubIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *stubIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func TestTransferIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	idem := &stubIdempotency{keys: map[string]bool{}}
	coordinator := NewTransferCoordinator(f.repo, f.engine, f.categories, idem, nil, nil)
	primary := f.openAccount(t, ownerID, "Primary", "100")
	f.openAccount(t, ownerID, "Target", "0")

	input := TransferInput{AnchorAccountID: primary.ID, Amount: dec("10"), Direction: TransferWithdraw, CounterpartName: "Target", IdempotencyKey: "abc"}
	_, err := coordinator.TransferFunds(context.Background(), ownerID, input)
	require.NoError(t, err)
	_, err = coordinator.TransferFunds(context.Background(), ownerID, input)
	require.ErrorIs(t, err, shared.ErrConflict)
	requireBalance(t, "90", f.repo.account(primary.ID).Balance)

	// A failed transfer releases its key so the client can retry.
	failing := TransferInput{AnchorAccountID: primary.ID, Amount: dec("1000"), Direction: TransferWithdraw, CounterpartName: "Target", IdempotencyKey: "def"}
	_, err = coordinator.TransferFunds(context.Background(), ownerID, failing)
	require.ErrorIs(t, err, ErrNotEnoughFunds)
	require.Equal(t, []string{"transfer:7:def"}, idem.deleted)
}

func TestTransferLegsCannotBeDeletedAlone(t *testing.T) {
	f := newFixture(t)
	primary := f.openAccount(t, ownerID, "Primary", "250.00")
	target := f.openAccount(t, ownerID, "test-acc", "250.00")
	_, err := f.transfers.TransferFunds(context.Background(), ownerID, TransferInput{
		AnchorAccountID: primary.ID, Amount: dec("100.00"), Direction: TransferWithdraw, CounterpartName: "test-acc",
	})
	require.NoError(t, err)
	out, in := f.repo.transactionsOf(primary.ID)[1], f.repo.transactionsOf(target.ID)[1]

	for _, leg := range []Transaction{out, in} {
		err = f.engine.DeleteTransaction(context.Background(), ownerID, leg.ID)
		require.ErrorIs(t, err, ErrDeletingProhibited)
		require.ErrorIs(t, err, shared.ErrForbidden)
	}

	// The leg itself pins the transfer even if the category flags were seeded loosely.
	f.repo.mu.Lock()
	loose := f.repo.state.categories[f.fundTransfer.ID]
	loose.Reserved, loose.DeletionProhibited = false, false
	f.repo.state.categories[f.fundTransfer.ID] = loose
	f.repo.mu.Unlock()
	err = f.engine.DeleteTransaction(context.Background(), ownerID, in.ID)
	require.ErrorIs(t, err, ErrDeletingProhibited)

	requireBalance(t, "150.00", f.repo.account(primary.ID).Balance)
	requireBalance(t, "350.00", f.repo.account(target.ID).Balance)
	require.Len(t, f.repo.transactionsOf(primary.ID), 2)
	require.Len(t, f.repo.transactionsOf(target.ID), 2)
	f.requireConsistent(t, primary.ID)
	f.requireConsistent(t, target.ID)
}

func TestOpeningBalanceCannotBeDeleted(t *testing.T) {
	f := newFixture(t)
	account := f.openAccount(t, ownerID, "Checking", "80.00")
	opening := f.repo.transactionsOf(account.ID)[0]
	require.Equal(t, f.opening.ID, opening.CategoryID)

	err := f.engine.DeleteTransaction(context.Background(), ownerID, opening.ID)
	require.ErrorIs(t, err, ErrDeletingProhibited)
	requireBalance(t, "80.00", f.repo.account(account.ID).Balance)
	f.requireConsistent(t, account.ID)
}
