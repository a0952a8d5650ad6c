package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/mysql"
)

func newCleanupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete old processed and dead job messages from MySQL",
		Long: `Delete old processed (and optionally dead) rows from the job message table.

Several instances may run at once: a MySQL advisory lock lets one pass run at a time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.runCleanup(ctx)
		},
	}

	f := cmd.Flags()
	f.Duration("retention", 0, "Delete rows older than this duration")
	f.Duration("check-every", time.Hour, "How often to run cleanup")
	f.Int("limit", 0, "Max rows deleted per run (0 uses default)")
	f.String("lock-name", "", "Advisory lock name (optional)")
	f.Bool("include-dead", false, "Delete dead rows as well")
	f.String("job", "", "Only delete messages of this job")
	f.Bool("once", false, "Run once and exit")

	return cmd
}

func (a *app) runCleanup(ctx context.Context) error {
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	logger := a.logger()
	maintainer, err := mysql.NewCleanupMaintainer(db, mysql.CleanupMaintainerConfig{
		Table:       a.v.GetString("table"),
		Retention:   a.v.GetDuration("retention"),
		CheckEvery:  a.v.GetDuration("check-every"),
		Limit:       a.v.GetInt("limit"),
		IncludeDead: a.v.GetBool("include-dead"),
		JobName:     a.v.GetString("job"),
		LockName:    a.v.GetString("lock-name"),
		Clock:       jobrelay.SystemClock{},
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("init maintainer: %w", err)
	}

	if a.v.GetBool("once") {
		result, err := maintainer.Ensure(ctx)
		if err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
		logger.Info("jobrelay cleanup done", "processed", result.Processed, "dead", result.Dead)

		return nil
	}

	if err := maintainer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run maintainer: %w", err)
	}

	return nil
}
