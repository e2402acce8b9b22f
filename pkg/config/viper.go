package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the MNEMO_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (MNEMO_API_LISTEN, MNEMO_STORAGE_PROVIDER, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: MNEMO_API_LISTEN, MNEMO_STORAGE_SQLITE_PATH, etc.
	v.SetEnvPrefix("MNEMO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Hierarchy
	v.SetDefault("hierarchy.max_depth", d.Hierarchy.MaxDepth)
	v.SetDefault("hierarchy.cache_size", d.Hierarchy.CacheSize)

	// Extraction
	v.SetDefault("extraction.rules_path", d.Extraction.RulesPath)
	v.SetDefault("extraction.watch_rules", d.Extraction.WatchRules)
	v.SetDefault("extraction.confidence_threshold", d.Extraction.ConfidenceThreshold)
	v.SetDefault("extraction.max_categories", d.Extraction.MaxCategories)
	v.SetDefault("extraction.workers", d.Extraction.Workers)

	// Search
	v.SetDefault("search.default_strategy", d.Search.DefaultStrategy)
	v.SetDefault("search.default_limit", d.Search.DefaultLimit)

	// Consolidation
	v.SetDefault("consolidation.threshold", d.Consolidation.Threshold)
	v.SetDefault("consolidation.content_policy", d.Consolidation.ContentPolicy)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.topic", d.Events.Topic)
}
