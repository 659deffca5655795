package config

const (
	defaultWatchDir              = "~/skystack/incoming"
	defaultLogDir                = "~/.local/share/skystack/logs"
	defaultDataDir               = "~/.local/share/skystack"
	defaultStabilityPollInterval = 100
	defaultStabilityTimeout      = 60
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultStackingMode          = "Mean"
)

var defaultIgnoredPrefixes = []string{".", "~", "tmp"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir: defaultWatchDir,
			LogDir:   defaultLogDir,
			DataDir:  defaultDataDir,
		},
		Ingest: Ingest{
			IgnoredPrefixes:         append([]string{}, defaultIgnoredPrefixes...),
			StabilityPollIntervalMS: defaultStabilityPollInterval,
			StabilityTimeoutSeconds: defaultStabilityTimeout,
		},
		Pipeline: Pipeline{
			StackingMode:        defaultStackingMode,
			AlignBeforeStacking: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
