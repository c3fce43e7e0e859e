// Package config holds the rewind service configuration: defaults, an
// optional config.toml, and REWIND_-prefixed environment overrides, layered
// via viper.
package config

// Config is the full service configuration. The TOML layout uses sections
// for logical grouping.
type Config struct {
	API     APIConfig     `mapstructure:"api" toml:"api"`
	Storage StorageConfig `mapstructure:"storage" toml:"storage"`
	Watcher WatcherConfig `mapstructure:"watcher" toml:"watcher"`
	Capture CaptureConfig `mapstructure:"capture" toml:"capture"`
	Context ContextConfig `mapstructure:"context" toml:"context"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Listen string `mapstructure:"listen" toml:"listen,omitempty"`
}

// StorageConfig holds the candidate targets for the three storage tiers.
// PostgresURL empty means the cloud tier is not attempted.
type StorageConfig struct {
	PostgresURL  string `mapstructure:"postgres_url" toml:"postgres_url,omitempty"`
	SQLitePath   string `mapstructure:"sqlite_path" toml:"sqlite_path,omitempty"`
	FlatFilePath string `mapstructure:"flatfile_path" toml:"flatfile_path,omitempty"`
}

// WatcherConfig holds transcript watcher settings. An empty TranscriptDir
// disables the watcher.
type WatcherConfig struct {
	Enabled       bool   `mapstructure:"enabled" toml:"enabled,omitempty"`
	TranscriptDir string `mapstructure:"transcript_dir" toml:"transcript_dir,omitempty"`
}

// CaptureConfig holds ingestion settings.
type CaptureConfig struct {
	RetainTurns int `mapstructure:"retain_turns" toml:"retain_turns,omitempty"`
}

// ContextConfig holds retrieval settings.
type ContextConfig struct {
	DefaultTurns int `mapstructure:"default_turns" toml:"default_turns,omitempty"`
}
