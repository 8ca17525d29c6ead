// Package cli implements the ledgerctl operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-finance/internal/ledger"
	"github.com/odyssey-erp/odyssey-finance/jobs"
)

// JobsAPI is the queue surface used by the jobs commands.
type JobsAPI interface {
	Trigger(ctx context.Context, name string, inline bool) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	ListRetry(ctx context.Context, size int) ([]*asynq.TaskInfo, error)
	Close() error
}

// RecurringAPI is the scheduler surface used by the recurring commands.
type RecurringAPI interface {
	DueIDs(ctx context.Context) ([]int64, error)
	ProcessDueExpenses(ctx context.Context) (ledger.SweepResult, error)
}

// Deps builds the backends lazily so --help never dials Redis or PostgreSQL.
type Deps struct {
	Jobs      func(redisAddr string) (JobsAPI, error)
	Recurring func(ctx context.Context) (RecurringAPI, func(), error)
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(deps Deps) *cobra.Command {
	root := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Operate the finance ledger worker and recurring sweep",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
	}
	var redisAddr string
	root.PersistentFlags().StringVar(&redisAddr, "redis", "127.0.0.1:6379", "Redis address used by the job queue")

	root.AddCommand(newJobsCommand(deps, &redisAddr), newRecurringCommand(deps))
	return root
}

func newJobsCommand(deps Deps, redisAddr *string) *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and trigger background jobs"}

	var inline bool
	trigger := &cobra.Command{
		Use:       "trigger <job>",
		Short:     "Enqueue a job now",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskRecurringSweep, jobs.TaskIdempotencyCleanup},
		RunE: func(cmd *cobra.Command, args []string) error {
			api, err := deps.Jobs(*redisAddr)
			if err != nil {
				return err
			}
			defer api.Close()
			info, err := api.Trigger(cmd.Context(), args[0], inline)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		},
	}
	trigger.Flags().BoolVar(&inline, "inline", false, "charge due expenses inside the sweep instead of fanning out")

	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Show queue statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := deps.Jobs(*redisAddr)
			if err != nil {
				return err
			}
			defer api.Close()
			stats, err := api.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
			return w.Flush()
		},
	}

	var size int
	retries := &cobra.Command{
		Use:   "retries",
		Short: "List tasks waiting for a retry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, err := deps.Jobs(*redisAddr)
			if err != nil {
				return err
			}
			defer api.Close()
			tasks, err := api.ListRetry(cmd.Context(), size)
			if err != nil {
				return err
			}
			return printTasks(cmd.OutOrStdout(), tasks)
		},
	}
	retries.Flags().IntVar(&size, "size", 10, "page size")

	cmd.AddCommand(trigger, inspect, retries)
	return cmd
}

func newRecurringCommand(deps Deps) *cobra.Command {
	cmd := &cobra.Command{Use: "recurring", Short: "Recurring expense maintenance"}

	due := &cobra.Command{
		Use:   "due",
		Short: "List recurring expenses due today",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, closeFn, err := deps.Recurring(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			ids, err := api.DueIDs(cmd.Context())
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Charge every due recurring expense in-process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			api, closeFn, err := deps.Recurring(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()
			result, err := api.ProcessDueExpenses(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "charged=%d skipped=%d failed=%d\n", result.Charged, result.Skipped, result.Failed)
			return nil
		},
	}

	cmd.AddCommand(due, sweep)
	return cmd
}

func printTasks(out io.Writer, tasks []*asynq.TaskInfo) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tRETRIED\tLAST ERROR")
	for _, t := range tasks {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ID, t.Type, t.Retried, t.LastErr)
	}
	return w.Flush()
}
