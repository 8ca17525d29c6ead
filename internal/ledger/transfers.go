package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

const idempotencyModuleTransfer = "transfer"

// TransferCoordinator composes two engine legs into one atomic cross-account transfer.
type TransferCoordinator struct {
	repo        RepositoryPort
	engine      *TransactionEngine
	categories  *CategoryGuard
	idempotency IdempotencyPort
	audit       AuditPort
	logger      *slog.Logger
	now         func() time.Time
}

// NewTransferCoordinator constructs the coordinator. idempotency may be nil.
func NewTransferCoordinator(repo RepositoryPort, engine *TransactionEngine, categories *CategoryGuard, idempotency IdempotencyPort, audit AuditPort, logger *slog.Logger) *TransferCoordinator {
	return &TransferCoordinator{
		repo:        repo,
		engine:      engine,
		categories:  categories,
		idempotency: idempotency,
		audit:       audit,
		logger:      logger,
		now:         time.Now,
	}
}

// WithNow overrides the clock for testing.
func (c *TransferCoordinator) WithNow(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}

// TransferFunds moves input.Amount between the anchor and the named counterpart and returns
// the anchor's post-transfer state. Both legs commit together or not at all.
func (c *TransferCoordinator) TransferFunds(ctx context.Context, ownerID int64, input TransferInput) (Account, error) {
	if !validAmount(input.Amount) {
		return Account{}, ErrInvalidAmount
	}

	idemKey := ""
	if input.IdempotencyKey != "" && c.idempotency != nil {
		idemKey = fmt.Sprintf("%s:%d:%s", idempotencyModuleTransfer, ownerID, input.IdempotencyKey)
		if err := c.idempotency.CheckAndInsert(ctx, idemKey, idempotencyModuleTransfer); err != nil {
			return Account{}, err
		}
	}

	transferID := uuid.New()
	var anchor, payer, payee Account
	err := c.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		category, err := c.categories.byRole(ctx, tx, CategoryRoleFundTransfer)
		if err != nil {
			return err
		}
		if input.Direction != TransferDeposit && input.Direction != TransferWithdraw {
			return ErrUnknownTransferType
		}
		anchorAccount, err := tx.GetAccount(ctx, input.AnchorAccountID)
		if err != nil {
			if isKind(err, shared.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if anchorAccount.OwnerID != ownerID || !anchorAccount.Active {
			return ErrAccountNotFound
		}
		counterpart, err := tx.FindActiveAccountByName(ctx, ownerID, foldName(input.CounterpartName))
		if err != nil {
			if isKind(err, shared.ErrNotFound) {
				return ErrAccountNotFound
			}
			return err
		}
		if counterpart.ID == anchorAccount.ID {
			return ErrSameAccount
		}

		payer, payee = counterpart, anchorAccount
		if input.Direction == TransferWithdraw {
			payer, payee = anchorAccount, counterpart
		}
		if payer.Balance.LessThan(input.Amount) {
			return ErrNotEnoughFunds
		}

		_, payerAfter, err := c.engine.post(ctx, tx, leg{
			account:     payer,
			category:    category,
			amount:      input.Amount,
			kind:        TransactionTypeExpense,
			date:        input.Date,
			description: "Transfer to " + payee.Name,
			transferID:  transferID,
		})
		if err != nil {
			return err
		}
		_, payeeAfter, err := c.engine.post(ctx, tx, leg{
			account:     payee,
			category:    category,
			amount:      input.Amount,
			kind:        TransactionTypeDeposit,
			date:        input.Date,
			description: "Transfer from " + payer.Name,
			transferID:  transferID,
		})
		if err != nil {
			return err
		}
		payer, payee = payerAfter, payeeAfter
		if payer.ID == anchorAccount.ID {
			anchor = payer
		} else {
			anchor = payee
		}
		return nil
	})
	if err != nil {
		if idemKey != "" {
			if delErr := c.idempotency.Delete(ctx, idemKey); delErr != nil {
				logOrDefault(c.logger).Warn("release idempotency key", slog.String("key", idemKey), slog.Any("error", delErr))
			}
		}
		return Account{}, err
	}

	if c.audit != nil {
		if err := c.audit.Record(ctx, shared.AuditLog{
			OwnerID:  ownerID,
			Action:   "transfer.create",
			Entity:   "transfer",
			EntityID: transferID.String(),
			Meta: map[string]any{
				"payer_account_id": payer.ID,
				"payee_account_id": payee.ID,
				"amount":           input.Amount.String(),
				"direction":        string(input.Direction),
			},
			At: c.now(),
		}); err != nil {
			logOrDefault(c.logger).Warn("audit record", slog.String("action", "transfer.create"), slog.Any("error", err))
		}
	}
	return anchor, nil
}
