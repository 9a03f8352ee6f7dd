package testsupport

import (
	"path/filepath"
	"testing"

	"gfimx/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The baseline store lives under the temp dir and the broker is disabled.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Agent.Name = "test-agent"
	cfgVal.Agent.PolicyDir = filepath.Join(base, "policy")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Store.Driver = config.StoreSQLite
	cfgVal.Store.Path = filepath.Join(base, "state", "baseline.db")
	cfgVal.Broker.Addr = ""
	cfgVal.Metrics.Bind = ""
	cfgVal.Scan.IdleTimeoutMS = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPolicyFile points the agent at a local policy file written with body.
func WithPolicyFile(body string) ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "policy.toml")
		WriteText(b.t, path, body)
		b.cfg.Agent.PolicyFile = path
	}
}

// WithCompare sets the comparison mode.
func WithCompare(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.Compare = mode
	}
}

// WithChunkSize sets the read size.
func WithChunkSize(size int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Scan.ChunkSize = size
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
