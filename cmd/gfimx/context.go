package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"gfimx/internal/baseline"
	"gfimx/internal/broker"
	"gfimx/internal/config"
	"gfimx/internal/logging"
	"gfimx/internal/report"
	"gfimx/internal/scan"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configSeen = exists
	})
	return c.config, c.configErr
}

// connectBroker dials the configured broker. It fails when none is set.
func (c *commandContext) connectBroker(ctx context.Context) (*broker.Valkey, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.BrokerEnabled() {
		return nil, errors.New("no broker configured: set broker.addr or REDIS_HOST")
	}
	return broker.NewValkey(ctx, broker.Options{
		Addr:     cfg.Broker.Addr,
		Password: cfg.Broker.Password,
		DB:       cfg.Broker.DB,
		Name:     cfg.Agent.Name,
	})
}

// openStore opens the configured baseline store, or an in-memory one.
func (c *commandContext) openStore(ctx context.Context, ephemeral bool) (baseline.Store, error) {
	if ephemeral {
		return baseline.NewMemoryStore(), nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return baseline.Open(ctx, cfg)
}

// newLogger builds the process logger. When sink is non-nil and
// logging.broker is on, records are also shipped to the broker; the
// returned func flushes that handler.
func newLogger(cfg *config.Config, sink logging.LogSink) (*slog.Logger, func(context.Context) error, error) {
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	noop := func(context.Context) error { return nil }
	if sink == nil || !cfg.Logging.Broker {
		return logger, noop, nil
	}
	handler := logging.NewBrokerHandler(sink, logging.ParseLevel(cfg.Logging.Level), 0)
	return logging.TeeLogger(logger, handler), handler.Close, nil
}

// buildReporter assembles the change reporters the configuration asks for.
// Closers release any Kafka writer.
func buildReporter(cfg *config.Config, logger *slog.Logger, details report.DetailsSink) (scan.Reporter, []func() error) {
	reporters := report.Multi{report.NewLogReporter(logger)}
	var closers []func() error
	if details != nil {
		reporters = append(reporters, report.NewBrokerReporter(details))
	}
	if len(cfg.Report.KafkaBrokers) > 0 {
		kr := report.NewKafkaReporter(report.NewKafkaWriter(cfg.Report.KafkaBrokers, cfg.Report.KafkaTopic), cfg.Agent.Name)
		reporters = append(reporters, kr)
		closers = append(closers, kr.Close)
	}
	return reporters, closers
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
