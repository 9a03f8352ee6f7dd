package config

const (
	defaultConfigPath      = "~/.config/gfimx/config.toml"
	defaultStateDir        = "~/.local/share/gfimx"
	defaultLogDir          = "~/.local/share/gfimx/logs"
	defaultPolicyDir       = "/etc/gfimx/policy"
	defaultBrokerPort      = "6379"
	defaultStoreFile       = "baseline.db"
	defaultChunkSize       = 64 * 1024
	defaultTraverseWorkers = 4
	defaultReadWorkers     = 4
	defaultHashWorkers     = 4
	defaultSinkWorkers     = 2
	defaultIdleTimeoutMS   = 50
	defaultScheduleTickMS  = 100
	defaultWatchDebounceMS = 2000
	defaultKafkaTopic      = "gfimx.changes"
	defaultExportBucket    = "gfimx-baselines"
	defaultNotifyTimeout   = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

// Store drivers.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Comparison modes for the result sink.
const (
	CompareContent  = "content"
	CompareMetadata = "metadata"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Agent: Agent{
			PolicyDir: defaultPolicyDir,
		},
		Store: Store{
			Driver: StoreSQLite,
		},
		Scan: Scan{
			ChunkSize:       defaultChunkSize,
			TraverseWorkers: defaultTraverseWorkers,
			ReadWorkers:     defaultReadWorkers,
			HashWorkers:     defaultHashWorkers,
			SinkWorkers:     defaultSinkWorkers,
			IdleTimeoutMS:   defaultIdleTimeoutMS,
			Compare:         CompareContent,
		},
		Schedule: Schedule{
			TickMS: defaultScheduleTickMS,
		},
		Watch: Watch{
			DebounceMS: defaultWatchDebounceMS,
		},
		Report: Report{
			KafkaTopic: defaultKafkaTopic,
		},
		Export: Export{
			Bucket: defaultExportBucket,
			UseSSL: true,
		},
		Notify: Notify{
			RequestTimeout: defaultNotifyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
