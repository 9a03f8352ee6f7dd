package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Agent identifies this agent to the broker and locates its policy.
type Agent struct {
	Name       string `toml:"name"`
	PolicyFile string `toml:"policy_file"`
	PolicyDir  string `toml:"policy_dir"`
}

// Broker contains connection settings for the Valkey/Redis broker.
type Broker struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Store selects and configures the baseline store backend.
type Store struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

// Scan sizes the scan pipeline.
type Scan struct {
	ChunkSize       int    `toml:"chunk_size"`
	TraverseWorkers int    `toml:"traverse_workers"`
	ReadWorkers     int    `toml:"read_workers"`
	HashWorkers     int    `toml:"hash_workers"`
	SinkWorkers     int    `toml:"sink_workers"`
	IdleTimeoutMS   int    `toml:"idle_timeout_ms"`
	Compare         string `toml:"compare"`
}

// Schedule contains scheduler timing.
type Schedule struct {
	TickMS int `toml:"tick_ms"`
}

// Watch contains filesystem watcher timing.
type Watch struct {
	DebounceMS int `toml:"debounce_ms"`
}

// Report contains change-event publishing settings.
type Report struct {
	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
}

// Export contains object storage settings for baseline snapshots.
type Export struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Metrics contains the HTTP endpoint serving /metrics and /api/status.
// An empty bind disables it; a token requires bearer authentication.
type Metrics struct {
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Notify contains ntfy settings for change alerts. An empty topic disables
// notifications.
type Notify struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format         string            `toml:"format"`
	Level          string            `toml:"level"`
	Broker         bool              `toml:"broker"`
	StageOverrides map[string]string `toml:"stage_overrides"`
}

// Config encapsulates all configuration values for the gfimx agent.
//
// Configuration sections by subsystem:
//   - Paths: state and log directories
//   - Agent: client name and policy location
//   - Broker: policy source and remote log sink
//   - Store: baseline store backend
//   - Scan: pipeline worker counts, chunk size, comparison mode
//   - Schedule, Watch: monitor timing
//   - Report, Export, Metrics, Notify: optional integrations
//   - Logging: log format, level, and per-stage overrides
type Config struct {
	Paths    Paths    `toml:"paths"`
	Agent    Agent    `toml:"agent"`
	Broker   Broker   `toml:"broker"`
	Store    Store    `toml:"store"`
	Scan     Scan     `toml:"scan"`
	Schedule Schedule `toml:"schedule"`
	Watch    Watch    `toml:"watch"`
	Report   Report   `toml:"report"`
	Export   Export   `toml:"export"`
	Metrics  Metrics  `toml:"metrics"`
	Notify   Notify   `toml:"notify"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("gfimx.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Store.Driver == StoreSQLite {
		if dir := filepath.Dir(c.Store.Path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create store directory %q: %w", dir, err)
			}
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "gfimx.lock")
}

// PIDPath returns the daemon pid file.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "gfimx.pid")
}

// BrokerEnabled reports whether a broker address is configured.
func (c *Config) BrokerEnabled() bool {
	return strings.TrimSpace(c.Broker.Addr) != ""
}

// ExportEnabled reports whether baseline export has an endpoint configured.
func (c *Config) ExportEnabled() bool {
	return strings.TrimSpace(c.Export.Endpoint) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
