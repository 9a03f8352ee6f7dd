package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gfimx/internal/broker"
	"gfimx/internal/daemon"
	"gfimx/internal/fault"
	"gfimx/internal/logging"
	"gfimx/internal/metrics"
	"gfimx/internal/notifications"
	"gfimx/internal/report"
)

const logFlushTimeout = 5 * time.Second

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the monitoring agent in the foreground",
		Long: "Run the agent: fetch the policy, watch the [watch] directories, run the\n" +
			"[schedule.*] scans, and serve status and metrics when metrics.bind is set.\n" +
			"Stops on SIGINT or SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var (
		valkey  *broker.Valkey
		sink    logging.LogSink
		details report.DetailsSink
	)
	if cfg.BrokerEnabled() {
		valkey, err = ctx.connectBroker(signalCtx)
		if err != nil {
			return err
		}
		sink, details = valkey, valkey
	}

	logger, flushLogs, err := newLogger(cfg, sink)
	if err != nil {
		if valkey != nil {
			_ = valkey.Close()
		}
		return err
	}

	store, err := ctx.openStore(signalCtx, false)
	if err != nil {
		logging.ErrorWithContext(logger, "open baseline store", "store_open_failed",
			logging.String("driver", cfg.Store.Driver),
			logging.Error(err),
			logging.Hint("check store.path permissions or store.dsn"),
		)
		shutdownLogging(flushLogs, valkey)
		return err
	}

	reporter, closers := buildReporter(cfg, logging.NewComponentLogger(logger, "report"), details)
	closers = append(closers, func() error {
		shutdownLogging(flushLogs, valkey)
		return nil
	})

	deps := daemon.Deps{
		Store:    store,
		Reporter: reporter,
		Metrics:  metrics.NewRecorder(true),
		Logger:   logger,
		Closers:  closers,
	}
	if valkey != nil {
		deps.Policy = valkey
	}
	if svc := notifications.NewService(cfg); notifications.Enabled(svc) {
		deps.Notifier = svc
	}

	d, err := daemon.New(cfg, deps)
	if err != nil {
		_ = store.Close()
		for _, closeFn := range closers {
			_ = closeFn()
		}
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			fmt.Fprintf(os.Stderr, "warn: close agent: %v\n", cerr)
		}
	}()

	if err := d.Start(signalCtx); err != nil {
		if fault.Startup(err) {
			logging.ErrorWithContext(logger, "daemon startup failed", "startup_failed",
				logging.String("kind", fault.Kind(err)),
				logging.Error(err),
			)
		}
		return err
	}

	logger.Info("gfimx agent running",
		logging.String("agent", cfg.Agent.Name),
		logging.Bool("broker", valkey != nil),
		logging.Bool("kafka", len(cfg.Report.KafkaBrokers) > 0),
		logging.String("metrics_bind", cfg.Metrics.Bind),
	)
	<-signalCtx.Done()
	logger.Info("shutdown signal received", logging.String("reason", context.Cause(signalCtx).Error()))
	return nil
}

func shutdownLogging(flush func(context.Context) error, valkey *broker.Valkey) {
	flushCtx, cancel := context.WithTimeout(context.Background(), logFlushTimeout)
	defer cancel()
	_ = flush(flushCtx)
	if valkey != nil {
		_ = valkey.Close()
	}
}
