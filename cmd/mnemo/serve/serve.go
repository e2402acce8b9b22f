// Package servecmder provides the serve command for running the mnemo API server.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/api"
	apimcp "github.com/papercomputeco/mnemo/api/mcp"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/consolidate"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/eventstream"
	eskafka "github.com/papercomputeco/mnemo/pkg/eventstream/kafka"
	"github.com/papercomputeco/mnemo/pkg/eventstream/nop"
	"github.com/papercomputeco/mnemo/pkg/extract"
	"github.com/papercomputeco/mnemo/pkg/hierarchy"
	"github.com/papercomputeco/mnemo/pkg/logger"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/storage/inmemory"
	"github.com/papercomputeco/mnemo/pkg/storage/postgres"
	"github.com/papercomputeco/mnemo/pkg/storage/sqlite"
	"github.com/papercomputeco/mnemo/pkg/worker"
)

type ServeCommander struct {
	listen          string
	storageProvider string
	sqlitePath      string
	postgresDSN     string
	rulesPath       string
	watchRules      bool
	eventsProvider  string
	eventsTopic     string
	debug           bool
	configDir       string
	logger          *zap.Logger
}

const serveLongDesc string = `Run the Mnemo API server.

Serves the memory search, category, and consolidation endpoints, plus the
MCP tool surface at /mcp. Storage backends: sqlite (default), postgres,
or inmemory.`

const serveShortDesc string = "Run the Mnemo API server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cmder.configDir = configDir

			v, err := config.InitViper(configDir)
			if err != nil {
				return err
			}

			// Flags beat env beats file beats defaults.
			fs := config.FlagSet{
				config.FlagAPIListen:       {Name: "listen", ViperKey: "api.listen"},
				config.FlagStorageProvider: {Name: "storage", ViperKey: "storage.provider"},
				config.FlagSQLite:          {Name: "sqlite", ViperKey: "storage.sqlite_path"},
				config.FlagPostgresDSN:     {Name: "postgres-dsn", ViperKey: "storage.postgres_dsn"},
				config.FlagRulesPath:       {Name: "rules", ViperKey: "extraction.rules_path"},
				config.FlagWatchRules:      {Name: "watch-rules", ViperKey: "extraction.watch_rules"},
				config.FlagEventsProvider:  {Name: "events", ViperKey: "events.provider"},
				config.FlagEventsTopic:     {Name: "events-topic", ViperKey: "events.topic"},
			}
			config.BindRegisteredFlags(v, cmd, fs, []string{
				config.FlagAPIListen,
				config.FlagStorageProvider,
				config.FlagSQLite,
				config.FlagPostgresDSN,
				config.FlagRulesPath,
				config.FlagWatchRules,
				config.FlagEventsProvider,
				config.FlagEventsTopic,
			})

			cmder.listen = v.GetString("api.listen")
			cmder.storageProvider = v.GetString("storage.provider")
			cmder.sqlitePath = v.GetString("storage.sqlite_path")
			cmder.postgresDSN = v.GetString("storage.postgres_dsn")
			cmder.rulesPath = v.GetString("extraction.rules_path")
			cmder.watchRules = v.GetBool("extraction.watch_rules")
			cmder.eventsProvider = v.GetString("events.provider")
			cmder.eventsTopic = v.GetString("events.topic")
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}
			return cmder.run()
		},
	}

	cmd.Flags().StringP("listen", "l", ":8082", "Address for the API server to listen on")
	cmd.Flags().String("storage", "sqlite", "Storage backend (sqlite, postgres, inmemory)")
	cmd.Flags().StringP("sqlite", "s", "", "Path to SQLite database (default: .mnemo/mnemo.db)")
	cmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
	cmd.Flags().String("rules", "", "Path to extraction rules TOML (default: .mnemo/rules.toml)")
	cmd.Flags().Bool("watch-rules", false, "Reload extraction rules when the file changes")
	cmd.Flags().String("events", "nop", "Event stream backend (nop, kafka)")
	cmd.Flags().String("events-topic", "mnemo.consolidations", "Kafka topic for consolidation events")
	cmd.Flags().StringSlice("kafka-brokers", []string{"localhost:9092"}, "Kafka broker addresses")

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	driver, err := c.newStorageDriver()
	if err != nil {
		return err
	}
	defer driver.Close()

	// Category hierarchy
	tree := hierarchy.NewStore(hierarchy.Config{
		MaxDepth:  cfg.Hierarchy.MaxDepth,
		CacheSize: cfg.Hierarchy.CacheSize,
	})

	// Extraction rules: from file when present, built-ins otherwise.
	rulesPath, rules, err := c.loadRules()
	if err != nil {
		return err
	}

	extractConfig := extract.DefaultConfig()
	extractConfig.ConfidenceThreshold = cfg.Extraction.ConfidenceThreshold
	extractConfig.MaxCategories = cfg.Extraction.MaxCategories
	extractor := extract.NewExtractor(extractConfig, rules, tree, c.logger)

	if c.watchRules && rulesPath != "" {
		stop, err := extractor.WatchRules(rulesPath)
		if err != nil {
			return fmt.Errorf("watching rules: %w", err)
		}
		defer stop()
	}

	// Extraction worker pool
	pool, err := worker.NewPool(&worker.Config{
		Driver:     driver,
		Extractor:  extractor,
		NumWorkers: cfg.Extraction.Workers,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating worker pool: %w", err)
	}

	// Search and consolidation
	searcher := search.NewOrchestrator(driver, c.logger, search.WithHierarchy(tree))

	publisher := c.newPublisher(cfg)
	defer publisher.Close()

	consolidator := consolidate.NewService(driver, searcher, publisher, c.logger, consolidate.Config{
		ContentPolicy: consolidate.ContentPolicy(cfg.Consolidation.ContentPolicy),
	})

	// MCP tool surface
	mcpServer, err := apimcp.NewServer(apimcp.Config{
		Searcher:     searcher,
		Consolidator: consolidator,
		Logger:       c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer := api.NewServer(api.Config{ListenAddr: c.listen}, api.Deps{
		Storer:       driver,
		Searcher:     searcher,
		Consolidator: consolidator,
		Tree:         tree,
		Extractor:    extractor,
		Pool:         pool,
		MCPHandler:   mcpServer.Handler(),
	}, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		pool.Close()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		if err := apiServer.Shutdown(); err != nil {
			c.logger.Warn("API server shutdown failed", zap.Error(err))
		}
		// Drain queued extraction jobs before the driver closes.
		pool.Close()
		return nil
	}
}

func (c *ServeCommander) newStorageDriver() (storage.Driver, error) {
	switch c.storageProvider {
	case "postgres":
		driver, err := postgres.NewDriver(context.Background(), c.postgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create Postgres driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil

	case "inmemory":
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		path := c.sqlitePath
		if path == "" {
			dir, err := dotdir.NewManager().Target(c.configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving data dir: %w", err)
			}
			path = filepath.Join(dir, "mnemo.db")
		}
		driver, err := sqlite.NewDriver(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", zap.String("path", path))
		return driver, nil
	}
}

// loadRules resolves the rules file path and loads it, falling back to the
// built-in rule table when no file exists. An empty returned path means
// there is nothing to watch.
func (c *ServeCommander) loadRules() (string, []extract.Rule, error) {
	path := c.rulesPath
	if path == "" {
		dir, err := dotdir.NewManager().Target(c.configDir)
		if err != nil {
			return "", nil, fmt.Errorf("resolving rules dir: %w", err)
		}
		path = filepath.Join(dir, "rules.toml")
	}

	if _, err := os.Stat(path); err != nil {
		c.logger.Info("no rules file found, using built-in rules",
			zap.String("path", path),
		)
		return "", extract.DefaultRules(), nil
	}

	rules, err := extract.LoadRules(path)
	if err != nil {
		return "", nil, fmt.Errorf("loading rules: %w", err)
	}
	c.logger.Info("loaded extraction rules",
		zap.String("path", path),
		zap.Int("rules", len(rules)),
	)

	return path, rules, nil
}

func (c *ServeCommander) newPublisher(cfg *config.Config) eventstream.Publisher {
	if c.eventsProvider == "kafka" {
		brokers := cfg.Events.Brokers
		if len(brokers) == 0 {
			brokers = []string{"localhost:9092"}
		}
		c.logger.Info("publishing consolidation events to Kafka",
			zap.Strings("brokers", brokers),
			zap.String("topic", c.eventsTopic),
		)
		return eskafka.NewPublisher(brokers, c.eventsTopic)
	}

	return nop.NewPublisher()
}

