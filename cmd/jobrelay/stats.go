package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/mysql"
	"github.com/velmie/jobrelay/probe"
)

var errNoStatsSource = errors.New("stats needs --redis-addr, --dsn or both")

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print outcome counters and queue depth",
		Long: `Print the outcome counters shared through Redis and the MySQL message counts
by status. Each source is queried only when it is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runStats(cmd.Context())
		},
	}
}

func (a *app) runStats(ctx context.Context) error {
	client := a.redisClient()
	dsn := a.v.GetString("dsn")
	if client == nil && dsn == "" {
		return errNoStatsSource
	}

	w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	if client != nil {
		defer client.Close()
		snap, err := probe.NewRedis(client, probe.WithRedisPrefix(a.v.GetString("redis-prefix"))).Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("read probe: %w", err)
		}
		fmt.Fprintf(w, "outcome ok\t%d\n", snap.OK)
		fmt.Fprintf(w, "outcome failed\t%d\n", snap.Failed)
		if snap.Last != nil {
			reason := snap.Last.Reason
			if reason == "" {
				reason = "-"
			}
			fmt.Fprintf(w, "last job\t%s\n", snap.Last.JobName)
			fmt.Fprintf(w, "last reason\t%s\n", reason)
		}
	}

	if dsn != "" {
		counts, err := a.queueCounts(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "queue pending\t%d\n", counts[jobrelay.StatusPending])
		fmt.Fprintf(w, "queue processed\t%d\n", counts[jobrelay.StatusProcessed])
		fmt.Fprintf(w, "queue dead\t%d\n", counts[jobrelay.StatusDead])
	}

	return w.Flush()
}

func (a *app) queueCounts(ctx context.Context) (map[jobrelay.Status]int, error) {
	db, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	store, err := mysql.NewStore(db, mysql.WithTable(a.v.GetString("table")))
	if err != nil {
		return nil, err
	}

	return store.CountByStatus(ctx)
}
