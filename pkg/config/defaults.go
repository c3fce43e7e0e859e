package config

const (
	defaultAPIListen    = ":8090"
	defaultRetainTurns  = 500
	defaultContextTurns = 20

	// Created inside the dotdir-managed data directory when no explicit
	// paths are configured.
	defaultSQLiteFile   = "rewind.sqlite"
	defaultFlatFileName = "turns.jsonl"
)

// NewDefaultConfig returns a Config with defaults for all fields. This is
// the single source of truth for default values; storage paths are left
// empty here and resolved against the home directory in Load.
func NewDefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Watcher: WatcherConfig{
			Enabled: true,
		},
		Capture: CaptureConfig{
			RetainTurns: defaultRetainTurns,
		},
		Context: ContextConfig{
			DefaultTurns: defaultContextTurns,
		},
	}
}
