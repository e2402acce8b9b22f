package config

const (
	defaultStorageProvider = "sqlite"

	defaultHierarchyMaxDepth  = 5
	defaultHierarchyCacheSize = 256

	defaultRulesFile           = "rules.toml"
	defaultConfidenceThreshold = 0.3
	defaultMaxCategories       = 5
	defaultExtractionWorkers   = 3

	defaultSearchStrategy = "fulltext"
	defaultSearchLimit    = 20

	defaultConsolidationThreshold = 0.6
	defaultContentPolicy          = "dedupe"

	defaultAPIListen       = ":8082"
	defaultClientAPITarget = "http://localhost:8082"

	defaultEventsProvider = "nop"
	defaultEventsTopic    = "mnemo.consolidations"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		Hierarchy: HierarchyConfig{
			MaxDepth:  defaultHierarchyMaxDepth,
			CacheSize: defaultHierarchyCacheSize,
		},
		Extraction: ExtractionConfig{
			RulesPath:           defaultRulesFile,
			ConfidenceThreshold: defaultConfidenceThreshold,
			MaxCategories:       defaultMaxCategories,
			Workers:             defaultExtractionWorkers,
		},
		Search: SearchConfig{
			DefaultStrategy: defaultSearchStrategy,
			DefaultLimit:    defaultSearchLimit,
		},
		Consolidation: ConsolidationConfig{
			Threshold:     defaultConsolidationThreshold,
			ContentPolicy: defaultContentPolicy,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    defaultEventsTopic,
		},
	}
}
