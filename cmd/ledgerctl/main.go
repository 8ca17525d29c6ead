package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/odyssey-erp/odyssey-finance/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/odyssey-finance/internal/app"
	"github.com/odyssey-erp/odyssey-finance/internal/platform/db"
)

func main() {
	root := cli.NewRootCommand(cli.Deps{
		Jobs: cli.NewJobsCLI,
		Recurring: func(ctx context.Context) (cli.RecurringAPI, func(), error) {
			cfg, err := app.LoadConfig()
			if err != nil {
				return nil, nil, err
			}
			logger := app.NewLogger(cfg)
			pool, err := db.New(ctx, cfg.PGDSN, 2)
			if err != nil {
				return nil, nil, err
			}
			services, err := app.BuildLedger(cfg, pool, logger)
			if err != nil {
				pool.Close()
				return nil, nil, err
			}
			return services.Scheduler, pool.Close, nil
		},
	})
	if err := root.Execute(); err != nil {
		slog.Default().Error("ledgerctl", slog.Any("error", err))
		os.Exit(1)
	}
}
