package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/rewind/pkg/dotdir"
)

// Load builds the effective configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (REWIND_API_LISTEN, REWIND_STORAGE_POSTGRES_URL,
//     ...), plus the compatibility bindings DATABASE_URL (cloud tier
//     connection string) and PORT (listen port).
//  2. config.toml in configDir (or the dotdir data directory when configDir
//     is empty).
//  3. Defaults from NewDefaultConfig.
//
// A missing config file is fine; defaults apply.
func Load(configDir string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	dataDir, err := dotdir.NewManager().Target("")
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}

	if configDir != "" {
		v.AddConfigPath(configDir)
	} else {
		v.AddConfigPath(dataDir)
	}

	if err := v.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("REWIND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Compatibility with hosted-platform conventions.
	_ = v.BindEnv("storage.postgres_url", "REWIND_STORAGE_POSTGRES_URL", "DATABASE_URL")
	_ = v.BindEnv("api.port", "PORT")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// PORT fills the listen address only when nothing explicit set one; a
	// REWIND_API_LISTEN env var or a config file value always wins.
	listenUntouched := !v.InConfig("api.listen") && v.GetString("api.listen") == defaultAPIListen
	if port := v.GetString("api.port"); port != "" && listenUntouched {
		cfg.API.Listen = ":" + port
	}

	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = filepath.Join(dataDir, defaultSQLiteFile)
	}
	if cfg.Storage.FlatFilePath == "" {
		cfg.Storage.FlatFilePath = filepath.Join(dataDir, defaultFlatFileName)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := NewDefaultConfig()

	v.SetDefault("api.listen", defaults.API.Listen)
	v.SetDefault("storage.postgres_url", defaults.Storage.PostgresURL)
	v.SetDefault("storage.sqlite_path", defaults.Storage.SQLitePath)
	v.SetDefault("storage.flatfile_path", defaults.Storage.FlatFilePath)
	v.SetDefault("watcher.enabled", defaults.Watcher.Enabled)
	v.SetDefault("watcher.transcript_dir", defaults.Watcher.TranscriptDir)
	v.SetDefault("capture.retain_turns", defaults.Capture.RetainTurns)
	v.SetDefault("context.default_turns", defaults.Context.DefaultTurns)
}
