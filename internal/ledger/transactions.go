package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// TransactionEngine applies and reverses signed transactions against the AccountLedger.
type TransactionEngine struct {
	repo       RepositoryPort
	accounts   *AccountLedger
	categories *CategoryGuard
	audit      AuditPort
	logger     *slog.Logger
	now        func() time.Time
}

// NewTransactionEngine constructs the engine.
func NewTransactionEngine(repo RepositoryPort, accounts *AccountLedger, categories *CategoryGuard, audit AuditPort, logger *slog.Logger) *TransactionEngine {
	return &TransactionEngine{repo: repo, accounts: accounts, categories: categories, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (e *TransactionEngine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// leg is one balance-changing entry inside a caller-owned unit of work.
type leg struct {
	account     Account
	category    Category
	amount      decimal.Decimal
	kind        TransactionType
	date        time.Time
	description string
	transferID  uuid.UUID
	recurringID *int64
}

// post checks funds, applies the delta and persists the row. The row is only written
// once the balance mutation succeeded.
func (e *TransactionEngine) post(ctx context.Context, tx TxRepository, l leg) (Transaction, Account, error) {
	if !validAmount(l.amount) {
		return Transaction{}, Account{}, ErrInvalidAmount
	}
	if !l.kind.Valid() {
		return Transaction{}, Account{}, ErrInvalidTransactionType
	}
	if l.kind == TransactionTypeExpense && l.amount.GreaterThan(l.account.Balance) {
		return Transaction{}, Account{}, ErrNotEnoughFunds
	}
	updated, err := e.accounts.ApplyDelta(ctx, tx, l.account, l.kind.Signed(l.amount))
	if err != nil {
		return Transaction{}, Account{}, err
	}
	date := l.date
	if date.IsZero() {
		date = e.now()
	}
	created, err := tx.InsertTransaction(ctx, NewTransaction{
		AccountID:   l.account.ID,
		CategoryID:  l.category.ID,
		Amount:      l.amount,
		Type:        l.kind,
		Date:        DateOf(date),
		Description: l.description,
		TransferID:  l.transferID,
		RecurringID: l.recurringID,
	})
	if err != nil {
		return Transaction{}, Account{}, err
	}
	return created, updated, nil
}

// SaveTransaction records a user-initiated deposit or expense on the owner's named account.
func (e *TransactionEngine) SaveTransaction(ctx context.Context, ownerID int64, input SaveTransactionInput) (Transaction, error) {
	if !input.Type.Valid() {
		return Transaction{}, ErrInvalidTransactionType
	}
	if !validAmount(input.Amount) {
		return Transaction{}, ErrInvalidAmount
	}
	var created Transaction
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.FindActiveAccountByName(ctx, ownerID, foldName(input.AccountName))
		if err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, input.CategoryID)
		if err != nil {
			return err
		}
		created, _, err = e.post(ctx, tx, leg{
			account:     account,
			category:    category,
			amount:      input.Amount,
			kind:        input.Type,
			date:        input.Date,
			description: input.Description,
		})
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	e.record(ctx, ownerID, "transaction.save", created)
	return created, nil
}

// DeleteTransaction reverses a transaction's balance effect and removes it, as one unit.
func (e *TransactionEngine) DeleteTransaction(ctx context.Context, ownerID, id int64) error {
	var deleted Transaction
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		txn, account, err := e.ownedTransaction(ctx, tx, ownerID, id)
		if err != nil {
			return err
		}
		category, err := tx.GetCategory(ctx, txn.CategoryID)
		if err != nil {
			return err
		}
		// A transfer leg is only ever removed together with its counterpart.
		if !e.categories.CanDeleteTransactions(category) || txn.TransferID != uuid.Nil {
			return ErrDeletingProhibited
		}
		inverse := txn.Type.Signed(txn.Amount).Neg()
		if account.Balance.Add(inverse).IsNegative() {
			return ErrInsufficientFunds
		}
		if _, err := e.accounts.ApplyDelta(ctx, tx, account, inverse); err != nil {
			return err
		}
		if err := tx.DeleteTransaction(ctx, txn.ID); err != nil {
			return err
		}
		deleted = txn
		return nil
	})
	if err != nil {
		return err
	}
	e.record(ctx, ownerID, "transaction.delete", deleted)
	return nil
}

// GetTransactionByID returns a transaction on one of the owner's accounts.
func (e *TransactionEngine) GetTransactionByID(ctx context.Context, ownerID, id int64) (Transaction, error) {
	var txn Transaction
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, _, err = e.ownedTransaction(ctx, tx, ownerID, id)
		return err
	})
	return txn, err
}

// ListTransactions returns the history of one of the owner's accounts, newest first.
func (e *TransactionEngine) ListTransactions(ctx context.Context, ownerID, accountID int64) ([]Transaction, error) {
	var out []Transaction
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		account, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if account.OwnerID != ownerID {
			return ErrAccountMissing
		}
		out, err = tx.ListTransactions(ctx, account.ID)
		return err
	})
	return out, err
}

func (e *TransactionEngine) ownedTransaction(ctx context.Context, tx TxRepository, ownerID, id int64) (Transaction, Account, error) {
	txn, err := tx.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, Account{}, err
	}
	account, err := tx.GetAccount(ctx, txn.AccountID)
	if err != nil {
		if isKind(err, shared.ErrNotFound) {
			return Transaction{}, Account{}, ErrTransactionNotFound
		}
		return Transaction{}, Account{}, err
	}
	if account.OwnerID != ownerID {
		return Transaction{}, Account{}, ErrTransactionNotFound
	}
	return txn, account, nil
}

func (e *TransactionEngine) record(ctx context.Context, ownerID int64, action string, txn Transaction) {
	if e.audit == nil {
		return
	}
	meta := map[string]any{
		"account_id": txn.AccountID,
		"amount":     txn.Amount.String(),
		"type":       string(txn.Type),
	}
	if txn.TransferID != uuid.Nil {
		meta["transfer_id"] = txn.TransferID.String()
	}
	if err := e.audit.Record(ctx, shared.AuditLog{
		OwnerID:  ownerID,
		Action:   action,
		Entity:   "transaction",
		EntityID: fmt.Sprintf("%d", txn.ID),
		Meta:     meta,
		At:       e.now(),
	}); err != nil {
		logOrDefault(e.logger).Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}
