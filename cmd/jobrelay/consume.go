package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/velmie/jobrelay"
	"github.com/velmie/jobrelay/dispatch"
	"github.com/velmie/jobrelay/mysql"
	"github.com/velmie/jobrelay/probe"
	"github.com/velmie/jobrelay/prommetrics"
	"github.com/velmie/jobrelay/rabbitmq"
)

const metricsShutdownTimeout = 5 * time.Second

func newConsumeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume job messages and run their webhooks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return a.runConsume(ctx)
		},
	}

	f := cmd.Flags()
	f.String("transport", transportMySQL, "Queue transport: mysql or rabbitmq")
	f.Int("workers", 1, "Concurrent polling workers (mysql)")
	f.Int("batch-size", 1, "Messages locked per fetch (mysql)")
	f.Duration("poll-interval", 100*time.Millisecond, "Delay between empty polls (mysql)")
	f.Duration("pending-interval", 0, "Pending count sampling interval, 0 disables (mysql)")
	f.Int("prefetch", 1, "Unacknowledged deliveries per consumer (rabbitmq)")
	f.Int("max-attempts", 5, "Deliveries of a failing message before it is dead-lettered")
	f.Duration("handler-timeout", 0, "Per-message timeout, 0 means none")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9090")

	return cmd
}

func (a *app) runConsume(ctx context.Context) error {
	transport, err := a.transport()
	if err != nil {
		return err
	}
	registry, err := a.registry()
	if err != nil {
		return err
	}
	logger := a.logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := prommetrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	outcomes, err := probe.NewPrometheus(reg, registry.Names())
	if err != nil {
		return fmt.Errorf("register outcome metrics: %w", err)
	}

	probes := []probe.Probe{outcomes}
	if client := a.redisClient(); client != nil {
		defer client.Close()
		probes = append(probes, probe.NewRedis(client,
			probe.WithRedisPrefix(a.v.GetString("redis-prefix")),
			probe.WithRedisLogger(logger),
		))
	}

	dispatcher := dispatch.NewDispatcher(registry,
		dispatch.WithProbe(probe.Multi(probes...)),
		dispatch.WithLogger(logger),
	)

	if addr := a.v.GetString("metrics-addr"); addr != "" {
		stop := serveMetrics(addr, reg, logger)
		defer stop()
	}

	logger.Info("jobrelay consumer starting", "transport", transport, "jobs", registry.Len())
	defer logger.Info("jobrelay consumer stopped")

	if transport == transportRabbitMQ {
		return a.consumeRabbitMQ(ctx, dispatcher, logger, metrics)
	}

	return a.consumeMySQL(ctx, dispatcher, logger, metrics)
}

func (a *app) consumeMySQL(ctx context.Context, handler jobrelay.Handler, logger jobrelay.Logger, metrics jobrelay.Metrics) error {
	db, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	store, err := mysql.NewStore(db,
		mysql.WithTable(a.v.GetString("table")),
		mysql.WithMaxAttempts(a.v.GetInt("max-attempts")),
	)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}

	relay := jobrelay.NewRelay(store, handler,
		jobrelay.WithWorkers(a.v.GetInt("workers")),
		jobrelay.WithBatchSize(a.v.GetInt("batch-size")),
		jobrelay.WithPollInterval(a.v.GetDuration("poll-interval")),
		jobrelay.WithPendingInterval(a.v.GetDuration("pending-interval")),
		jobrelay.WithHandlerTimeout(a.v.GetDuration("handler-timeout")),
		jobrelay.WithFailureClassifier(dispatch.Classify),
		jobrelay.WithLogger(logger),
		jobrelay.WithMetrics(metrics),
	)

	return relay.Run(ctx)
}

func (a *app) consumeRabbitMQ(ctx context.Context, handler jobrelay.Handler, logger jobrelay.Logger, metrics jobrelay.Metrics) error {
	conn, ch, err := a.dialAMQP()
	if err != nil {
		return err
	}
	defer conn.Close()
	defer ch.Close()

	topology := a.topology()
	if err := rabbitmq.DeclareTopology(ch, topology); err != nil {
		return err
	}

	consumer, err := rabbitmq.NewConsumer(ch, handler,
		rabbitmq.WithTopology(topology),
		rabbitmq.WithMaxAttempts(a.v.GetInt("max-attempts")),
		rabbitmq.WithPrefetch(a.v.GetInt("prefetch")),
		rabbitmq.WithHandlerTimeout(a.v.GetDuration("handler-timeout")),
		rabbitmq.WithFailureClassifier(dispatch.Classify),
		rabbitmq.WithLogger(logger),
		rabbitmq.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}

	return consumer.Run(ctx)
}

// serveMetrics exposes reg on addr/metrics and returns a shutdown func.
func serveMetrics(addr string, reg *prometheus.Registry, logger jobrelay.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", prommetrics.Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("jobrelay metrics server failed", "addr", addr, "err", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
