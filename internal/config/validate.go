package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAgent(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateScan(); err != nil {
		return err
	}
	if err := c.validateExport(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAgent() error {
	if c.Agent.Name == "" {
		return errors.New("agent.name is required. Set CLIENT_NAME or edit the [agent] section")
	}
	if strings.ContainsAny(c.Agent.Name, " \t\n") {
		return fmt.Errorf("agent.name %q must not contain whitespace", c.Agent.Name)
	}
	return nil
}

func (c *Config) validateBroker() error {
	if c.Broker.DB < 0 {
		return errors.New("broker.db must be non-negative")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.Path == "" {
			return errors.New("store.path must be set for the sqlite driver")
		}
	case StorePostgres:
		if c.Store.DSN == "" {
			return errors.New("store.dsn is required for the postgres driver. Set GFIMX_STORE_DSN or edit the [store] section")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported (use sqlite or postgres)", c.Store.Driver)
	}
	return nil
}

func (c *Config) validateScan() error {
	if c.Scan.TraverseWorkers <= 0 {
		return errors.New("scan.traverse_workers must be positive")
	}
	if c.Scan.ReadWorkers <= 0 {
		return errors.New("scan.read_workers must be positive")
	}
	if c.Scan.HashWorkers <= 0 {
		return errors.New("scan.hash_workers must be positive")
	}
	if c.Scan.SinkWorkers <= 0 {
		return errors.New("scan.sink_workers must be positive")
	}
	switch c.Scan.Compare {
	case CompareContent, CompareMetadata:
	default:
		return fmt.Errorf("scan.compare %q is not supported (use content or metadata)", c.Scan.Compare)
	}
	return nil
}

func (c *Config) validateExport() error {
	if !c.ExportEnabled() {
		return nil
	}
	if c.Export.AccessKey == "" || c.Export.SecretKey == "" {
		return errors.New("export.access_key and export.secret_key are required when export.endpoint is set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	if !validLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	for stage, level := range c.Logging.StageOverrides {
		if !validLevel(level) {
			return fmt.Errorf("logging.stage_overrides.%s: unsupported level %q", stage, level)
		}
	}
	return nil
}

func validLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
