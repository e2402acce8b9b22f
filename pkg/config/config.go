package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

const (
	configFile = "config.toml"

	// v0 is the alpha version of the config
	v0 = 0

	// CurrentV is the currently supported version, points to v0
	CurrentV = v0
)

type Configer struct {
	ddm        *dotdir.Manager
	targetPath string
}

func NewConfiger(override string) (*Configer, error) {
	cfger := &Configer{}

	cfger.ddm = dotdir.NewManager()
	target, err := cfger.ddm.Target(override)
	if err != nil {
		return nil, err
	}

	// If no .mnemo/ directory was resolved, targetPath stays empty;
	// LoadConfig will return defaults and SaveConfig will error clearly.
	if target == "" {
		return cfger, nil
	}

	path := filepath.Join(target, configFile)
	_, err = os.Stat(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Always set targetPath when the directory exists so SaveConfig
	// can create or overwrite the file.
	cfger.targetPath = path

	return cfger, nil
}

// ValidConfigKeys returns the sorted list of all supported configuration key names.
func ValidConfigKeys() []string {
	keys := make([]string, 0, len(configKeys))
	for k := range configKeys {
		keys = append(keys, k)
	}

	// Return in a stable, logical order matching the TOML section layout.
	ordered := []string{
		"storage.provider",
		"storage.sqlite_path",
		"storage.postgres_dsn",
		"hierarchy.max_depth",
		"extraction.rules_path",
		"extraction.watch_rules",
		"extraction.confidence_threshold",
		"search.default_strategy",
		"search.default_limit",
		"consolidation.threshold",
		"consolidation.content_policy",
		"api.listen",
		"client.api_target",
		"events.provider",
		"events.topic",
	}

	// Sanity: only return keys that actually exist in the map.
	result := make([]string, 0, len(ordered))
	for _, k := range ordered {
		if _, ok := configKeys[k]; ok {
			result = append(result, k)
		}
	}

	// Append any keys in the map that we missed in the ordered list.
	seen := make(map[string]bool, len(result))
	for _, k := range result {
		seen[k] = true
	}
	for _, k := range keys {
		if !seen[k] {
			result = append(result, k)
		}
	}

	return result
}

// IsValidConfigKey returns true if the given key is a supported configuration key.
func IsValidConfigKey(key string) bool {
	_, ok := configKeys[key]
	return ok
}

func (c *Configer) GetTarget() string {
	return c.targetPath
}

// LoadConfig loads the configuration from config.toml in the target .mnemo/ directory.
// If the file does not exist, returns NewDefaultConfig() so callers always receive
// a fully-populated Config with sane defaults. Fields explicitly set in the file
// override the defaults.
func (c *Configer) LoadConfig() (*Config, error) {
	if c.targetPath == "" {
		return NewDefaultConfig(), nil
	}

	data, err := os.ReadFile(c.targetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewDefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg, err := ParseConfigTOML(data)
	if err != nil {
		return nil, err
	}

	// Merge in defaults: fill in any zero-value fields from the loaded config
	applyDefaults(cfg)

	return cfg, nil
}

// applyDefaults fills zero-value fields in cfg with values from NewDefaultConfig().
func applyDefaults(cfg *Config) {
	defaults := NewDefaultConfig()

	if cfg.Version == 0 {
		cfg.Version = defaults.Version
	}

	if cfg.Storage.Provider == "" {
		cfg.Storage.Provider = defaults.Storage.Provider
	}

	if cfg.Hierarchy.MaxDepth == 0 {
		cfg.Hierarchy.MaxDepth = defaults.Hierarchy.MaxDepth
	}
	if cfg.Hierarchy.CacheSize == 0 {
		cfg.Hierarchy.CacheSize = defaults.Hierarchy.CacheSize
	}

	if cfg.Extraction.RulesPath == "" {
		cfg.Extraction.RulesPath = defaults.Extraction.RulesPath
	}
	if cfg.Extraction.ConfidenceThreshold == 0 {
		cfg.Extraction.ConfidenceThreshold = defaults.Extraction.ConfidenceThreshold
	}
	if cfg.Extraction.MaxCategories == 0 {
		cfg.Extraction.MaxCategories = defaults.Extraction.MaxCategories
	}
	if cfg.Extraction.Workers == 0 {
		cfg.Extraction.Workers = defaults.Extraction.Workers
	}

	if cfg.Search.DefaultStrategy == "" {
		cfg.Search.DefaultStrategy = defaults.Search.DefaultStrategy
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = defaults.Search.DefaultLimit
	}

	if cfg.Consolidation.Threshold == 0 {
		cfg.Consolidation.Threshold = defaults.Consolidation.Threshold
	}
	if cfg.Consolidation.ContentPolicy == "" {
		cfg.Consolidation.ContentPolicy = defaults.Consolidation.ContentPolicy
	}

	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}

	if cfg.Client.APITarget == "" {
		cfg.Client.APITarget = defaults.Client.APITarget
	}

	if cfg.Events.Provider == "" {
		cfg.Events.Provider = defaults.Events.Provider
	}
	if cfg.Events.Topic == "" {
		cfg.Events.Topic = defaults.Events.Topic
	}
}

// SaveConfig persists the configuration to config.toml in the target .mnemo/ directory.
func (c *Configer) SaveConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("cannot save nil config")
	}

	if c.targetPath == "" {
		return errors.New("cannot save empty target path")
	}

	var buf bytes.Buffer
	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.WriteFile(c.targetPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// SetConfigValue loads the config, sets the given key to the given value, and saves it.
// Returns an error if the key is not a valid config key.
func (c *Configer) SetConfigValue(key string, value string) error {
	info, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return err
	}

	if err := info.set(cfg, value); err != nil {
		return err
	}

	return c.SaveConfig(cfg)
}

// GetConfigValue loads the config and returns the string representation of the given key.
// Returns an error if the key is not a valid config key.
func (c *Configer) GetConfigValue(key string) (string, error) {
	info, ok := configKeys[key]
	if !ok {
		return "", fmt.Errorf("unknown config key: %q", key)
	}

	cfg, err := c.LoadConfig()
	if err != nil {
		return "", err
	}

	return info.get(cfg), nil
}

// ParseConfigTOML parses raw TOML bytes into a Config.
// Returns an error if the version field is present and not equal to CurrentV.
func ParseConfigTOML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config TOML: %w", err)
	}

	if cfg.Version != 0 && cfg.Version != CurrentV {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentV)
	}

	return cfg, nil
}
