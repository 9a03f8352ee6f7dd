package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeAgent(); err != nil {
		return err
	}
	c.normalizeBroker()
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeScan()
	c.normalizeReport()
	c.normalizeExport()
	c.normalizeNotify()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAgent() error {
	c.Agent.Name = strings.TrimSpace(c.Agent.Name)
	if c.Agent.Name == "" {
		c.Agent.Name = firstEnv("GFIMX_CLIENT_NAME", "CLIENT_NAME")
	}
	if c.Agent.Name == "" {
		if host, err := os.Hostname(); err == nil {
			c.Agent.Name = host
		}
	}
	if value := firstEnv("GFIMX_POLICY_DIR"); value != "" {
		c.Agent.PolicyDir = value
	}
	var err error
	if c.Agent.PolicyDir, err = expandPath(strings.TrimSpace(c.Agent.PolicyDir)); err != nil {
		return fmt.Errorf("agent.policy_dir: %w", err)
	}
	if c.Agent.PolicyFile, err = expandPath(strings.TrimSpace(c.Agent.PolicyFile)); err != nil {
		return fmt.Errorf("agent.policy_file: %w", err)
	}
	return nil
}

func (c *Config) normalizeBroker() {
	c.Broker.Addr = strings.TrimSpace(c.Broker.Addr)
	if c.Broker.Addr == "" {
		c.Broker.Addr = firstEnv("GFIMX_BROKER_ADDR")
	}
	if c.Broker.Addr == "" {
		if host := firstEnv("REDIS_HOST"); host != "" {
			port := firstEnv("REDIS_PORT")
			if port == "" {
				port = defaultBrokerPort
			}
			c.Broker.Addr = net.JoinHostPort(host, port)
		}
	}
}

func (c *Config) normalizeStore() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	if c.Store.Driver == "" {
		c.Store.Driver = StoreSQLite
	}
	if c.Store.Driver == "postgresql" || c.Store.Driver == "pgx" {
		c.Store.Driver = StorePostgres
	}
	c.Store.DSN = strings.TrimSpace(c.Store.DSN)
	if c.Store.DSN == "" {
		c.Store.DSN = firstEnv("GFIMX_STORE_DSN")
	}
	if strings.TrimSpace(c.Store.Path) == "" {
		c.Store.Path = filepath.Join(c.Paths.StateDir, defaultStoreFile)
	}
	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeScan() {
	if c.Scan.ChunkSize <= 0 {
		c.Scan.ChunkSize = defaultChunkSize
	}
	if c.Scan.IdleTimeoutMS <= 0 {
		c.Scan.IdleTimeoutMS = defaultIdleTimeoutMS
	}
	c.Scan.Compare = strings.ToLower(strings.TrimSpace(c.Scan.Compare))
	if c.Scan.Compare == "" {
		c.Scan.Compare = CompareContent
	}
	if c.Schedule.TickMS <= 0 {
		c.Schedule.TickMS = defaultScheduleTickMS
	}
	if c.Watch.DebounceMS <= 0 {
		c.Watch.DebounceMS = defaultWatchDebounceMS
	}
}

func (c *Config) normalizeReport() {
	brokers := c.Report.KafkaBrokers[:0]
	for _, b := range c.Report.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.Report.KafkaBrokers = brokers
	c.Report.KafkaTopic = strings.TrimSpace(c.Report.KafkaTopic)
	if c.Report.KafkaTopic == "" {
		c.Report.KafkaTopic = defaultKafkaTopic
	}
}

func (c *Config) normalizeExport() {
	c.Export.Endpoint = strings.TrimSpace(c.Export.Endpoint)
	c.Export.Bucket = strings.TrimSpace(c.Export.Bucket)
	if c.Export.Bucket == "" {
		c.Export.Bucket = defaultExportBucket
	}
	if c.Export.AccessKey == "" {
		c.Export.AccessKey = firstEnv("GFIMX_EXPORT_ACCESS_KEY")
	}
	if c.Export.SecretKey == "" {
		c.Export.SecretKey = firstEnv("GFIMX_EXPORT_SECRET_KEY")
	}
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	if c.Metrics.Token == "" {
		c.Metrics.Token = firstEnv("GFIMX_API_TOKEN")
	}
}

func (c *Config) normalizeNotify() {
	c.Notify.NtfyTopic = strings.TrimSpace(c.Notify.NtfyTopic)
	if c.Notify.NtfyTopic == "" {
		c.Notify.NtfyTopic = firstEnv("GFIMX_NTFY_TOPIC")
	}
	if c.Notify.RequestTimeout <= 0 {
		c.Notify.RequestTimeout = defaultNotifyTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.StageOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.StageOverrides))
		for stage, level := range c.Logging.StageOverrides {
			key := strings.ToLower(strings.TrimSpace(stage))
			if key == "" {
				continue
			}
			normalized[key] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.StageOverrides = normalized
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
