package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-finance/internal/ledger"
	"github.com/odyssey-erp/odyssey-finance/internal/shared"
)

// BuildLedger wires the ledger components over PostgreSQL.
func BuildLedger(cfg *Config, pool *pgxpool.Pool, logger *slog.Logger) (ledger.Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return ledger.Services{}, err
	}
	repo := ledger.NewRepository(pool)
	audit := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)

	categories := ledger.NewCategoryGuard(repo)
	accounts := ledger.NewAccountLedger(repo, categories, audit, logger)
	engine := ledger.NewTransactionEngine(repo, accounts, categories, audit, logger)
	transfers := ledger.NewTransferCoordinator(repo, engine, categories, idempotency, audit, logger)
	scheduler := ledger.NewRecurringScheduler(repo, engine, categories, audit, logger, ledger.SchedulerConfig{
		Location:    loc,
		Concurrency: cfg.SweepConcurrency,
	})
	return ledger.Services{
		Accounts:   accounts,
		Categories: categories,
		Engine:     engine,
		Transfers:  transfers,
		Scheduler:  scheduler,
	}, nil
}
