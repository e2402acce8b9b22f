package config

import (
	"fmt"
	"strconv"
)

// Config represents the persistent mnemo configuration stored as config.toml
// in the .mnemo/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version       int                 `toml:"version"`
	Storage       StorageConfig       `toml:"storage"`
	Hierarchy     HierarchyConfig     `toml:"hierarchy"`
	Extraction    ExtractionConfig    `toml:"extraction"`
	Search        SearchConfig        `toml:"search"`
	Consolidation ConsolidationConfig `toml:"consolidation"`
	API           APIConfig           `toml:"api"`
	Client        ClientConfig        `toml:"client"`
	Events        EventsConfig        `toml:"events"`
}

// StorageConfig holds storage backend settings.
type StorageConfig struct {
	// Provider selects the storage driver: sqlite, postgres, or inmemory.
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// HierarchyConfig holds category tree settings.
type HierarchyConfig struct {
	MaxDepth  int `toml:"max_depth,omitempty"`
	CacheSize int `toml:"cache_size,omitempty"`
}

// ExtractionConfig holds category extraction settings.
type ExtractionConfig struct {
	RulesPath           string  `toml:"rules_path,omitempty"`
	WatchRules          bool    `toml:"watch_rules,omitempty"`
	ConfidenceThreshold float64 `toml:"confidence_threshold,omitempty"`
	MaxCategories       int     `toml:"max_categories,omitempty"`
	Workers             uint    `toml:"workers,omitempty"`
}

// SearchConfig holds search orchestrator settings.
type SearchConfig struct {
	DefaultStrategy string `toml:"default_strategy,omitempty"`
	DefaultLimit    int    `toml:"default_limit,omitempty"`
}

// ConsolidationConfig holds duplicate detection and merge settings.
type ConsolidationConfig struct {
	Threshold     float64 `toml:"threshold,omitempty"`
	ContentPolicy string  `toml:"content_policy,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that connect to the running
// API server (e.g. mnemo search, mnemo consolidate).
// Values are full URLs (scheme + host + port).
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// EventsConfig holds event stream settings.
type EventsConfig struct {
	// Provider selects the publisher: nop or kafka.
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.provider": {
		get: func(c *Config) string { return c.Storage.Provider },
		set: func(c *Config, v string) error { c.Storage.Provider = v; return nil },
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"hierarchy.max_depth": {
		get: func(c *Config) string {
			if c.Hierarchy.MaxDepth == 0 {
				return ""
			}
			return strconv.Itoa(c.Hierarchy.MaxDepth)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for hierarchy.max_depth: %w", err)
			}
			c.Hierarchy.MaxDepth = n
			return nil
		},
	},
	"extraction.rules_path": {
		get: func(c *Config) string { return c.Extraction.RulesPath },
		set: func(c *Config, v string) error { c.Extraction.RulesPath = v; return nil },
	},
	"extraction.watch_rules": {
		get: func(c *Config) string { return strconv.FormatBool(c.Extraction.WatchRules) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for extraction.watch_rules: %w", err)
			}
			c.Extraction.WatchRules = b
			return nil
		},
	},
	"extraction.confidence_threshold": {
		get: func(c *Config) string {
			if c.Extraction.ConfidenceThreshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Extraction.ConfidenceThreshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for extraction.confidence_threshold: %w", err)
			}
			c.Extraction.ConfidenceThreshold = f
			return nil
		},
	},
	"search.default_strategy": {
		get: func(c *Config) string { return c.Search.DefaultStrategy },
		set: func(c *Config, v string) error { c.Search.DefaultStrategy = v; return nil },
	},
	"search.default_limit": {
		get: func(c *Config) string {
			if c.Search.DefaultLimit == 0 {
				return ""
			}
			return strconv.Itoa(c.Search.DefaultLimit)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for search.default_limit: %w", err)
			}
			c.Search.DefaultLimit = n
			return nil
		},
	},
	"consolidation.threshold": {
		get: func(c *Config) string {
			if c.Consolidation.Threshold == 0 {
				return ""
			}
			return strconv.FormatFloat(c.Consolidation.Threshold, 'f', -1, 64)
		},
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for consolidation.threshold: %w", err)
			}
			c.Consolidation.Threshold = f
			return nil
		},
	},
	"consolidation.content_policy": {
		get: func(c *Config) string { return c.Consolidation.ContentPolicy },
		set: func(c *Config, v string) error { c.Consolidation.ContentPolicy = v; return nil },
	},
	"api.listen": {
		get: func(c *Config) string { return c.API.Listen },
		set: func(c *Config, v string) error { c.API.Listen = v; return nil },
	},
	"client.api_target": {
		get: func(c *Config) string { return c.Client.APITarget },
		set: func(c *Config, v string) error { c.Client.APITarget = v; return nil },
	},
	"events.provider": {
		get: func(c *Config) string { return c.Events.Provider },
		set: func(c *Config, v string) error { c.Events.Provider = v; return nil },
	},
	"events.topic": {
		get: func(c *Config) string { return c.Events.Topic },
		set: func(c *Config, v string) error { c.Events.Topic = v; return nil },
	},
}
