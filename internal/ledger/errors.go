package ledger

import "github.com/odyssey-erp/odyssey-finance/internal/shared"

var (
	// ErrAccountMissing indicates the account is absent or inactive for the owner.
	ErrAccountMissing = shared.NewKindError(shared.ErrNotFound, "Account missing")
	// ErrAccountNotFound is reported by transfers when either side cannot be resolved.
	ErrAccountNotFound = shared.NewKindError(shared.ErrNotFound, "Account not found")
	// ErrCategoryMissing indicates an unknown category id.
	ErrCategoryMissing = shared.NewKindError(shared.ErrNotFound, "Category missing")
	// ErrReservedCategoryMissing indicates seed data for a reserved role is absent.
	ErrReservedCategoryMissing = shared.NewKindError(shared.ErrNotFound, "Reserved category missing")
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = shared.NewKindError(shared.ErrNotFound, "Transaction not found")
	// ErrPaymentNotFound indicates an unknown recurring expense.
	ErrPaymentNotFound = shared.NewKindError(shared.ErrNotFound, "Incorrect payment")
	// ErrIncorrectAccount indicates a recurring expense cannot be moved to the account.
	ErrIncorrectAccount = shared.NewKindError(shared.ErrNotFound, "Incorrect account")

	// ErrNotEnoughFunds rejects expenses and transfers exceeding the balance.
	ErrNotEnoughFunds = shared.NewKindError(shared.ErrConflict, "Not enough funds")
	// ErrInsufficientFunds rejects reversals that would drive a balance negative.
	ErrInsufficientFunds = shared.NewKindError(shared.ErrConflict, "Insufficient funds")
	// ErrVersionConflict reports a stale optimistic version; callers re-read and retry.
	ErrVersionConflict = shared.NewKindError(shared.ErrConflict, "Account was modified concurrently")
	// ErrDuplicateAccount indicates an active account with the same name exists.
	ErrDuplicateAccount = shared.NewKindError(shared.ErrConflict, "Account already exists")
	// ErrDuplicateCategory indicates a category with the same name exists.
	ErrDuplicateCategory = shared.NewKindError(shared.ErrConflict, "Category already exists")
	// ErrNonZeroBalance blocks deactivation of funded accounts.
	ErrNonZeroBalance = shared.NewKindError(shared.ErrConflict, "Account balance must be zero")
	// ErrAlreadyCharged indicates the schedule moved on before this charge committed.
	ErrAlreadyCharged = shared.NewKindError(shared.ErrConflict, "Recurring expense already advanced")

	// ErrUnknownTransferType rejects directions other than deposit/withdraw.
	ErrUnknownTransferType = shared.NewKindError(shared.ErrBadRequest, "Unknown transfer type")
	// ErrUnsupportedFrequency rejects frequencies without a confirmed step.
	ErrUnsupportedFrequency = shared.NewKindError(shared.ErrBadRequest, "Unsupported frequency")
	// ErrInvalidAmount rejects zero or negative amounts and amounts finer than a cent.
	ErrInvalidAmount = shared.NewKindError(shared.ErrBadRequest, "Amount must be positive with at most 2 decimal places")
	// ErrInvalidTransactionType rejects unknown transaction types.
	ErrInvalidTransactionType = shared.NewKindError(shared.ErrBadRequest, "Unknown transaction type")
	// ErrInvalidName rejects blank names.
	ErrInvalidName = shared.NewKindError(shared.ErrBadRequest, "Name required")
	// ErrSameAccount rejects transfers onto the anchor itself.
	ErrSameAccount = shared.NewKindError(shared.ErrBadRequest, "Transfer accounts must differ")
	// ErrReservedCategory rejects ledger-internal categories on user-facing schedules.
	ErrReservedCategory = shared.NewKindError(shared.ErrBadRequest, "Category is reserved")

	// ErrDeletingProhibited blocks deletion of transactions in protected categories.
	ErrDeletingProhibited = shared.NewKindError(shared.ErrForbidden, "Deleting prohibited")
)
