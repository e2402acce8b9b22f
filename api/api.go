package api

import (
	"net/http"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/consolidate"
	"github.com/papercomputeco/mnemo/pkg/extract"
	"github.com/papercomputeco/mnemo/pkg/hierarchy"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/worker"
)

// Server is the API server for managing and querying the mnemo system
type Server struct {
	config       Config
	storer       storage.Driver
	searcher     *search.Orchestrator
	consolidator *consolidate.Service
	tree         *hierarchy.Store
	extractor    *extract.Extractor
	pool         *worker.Pool
	logger       *zap.Logger
	app          *fiber.App
}

// Deps are the wired components the server exposes over HTTP.
// The storer and pool are injected to allow sharing with other components.
type Deps struct {
	Storer       storage.Driver
	Searcher     *search.Orchestrator
	Consolidator *consolidate.Service
	Tree         *hierarchy.Store

	// Extractor backs the synchronous category extraction endpoint.
	Extractor *extract.Extractor

	// Pool, when set, categorizes newly captured records asynchronously.
	Pool *worker.Pool

	// MCPHandler, when set, is mounted at /mcp.
	MCPHandler http.Handler
}

// NewServer creates a new API server.
func NewServer(config Config, deps Deps, logger *zap.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:       config,
		storer:       deps.Storer,
		searcher:     deps.Searcher,
		consolidator: deps.Consolidator,
		tree:         deps.Tree,
		extractor:    deps.Extractor,
		pool:         deps.Pool,
		logger:       logger,
		app:          app,
	}

	app.Get("/ping", s.handlePing)

	app.Post("/v1/records", s.handleCreateRecord)
	app.Get("/v1/records/:id", s.handleGetRecord)
	app.Delete("/v1/records/:id", s.handleDeleteRecord)

	app.Get("/v1/search", s.handleSearchEndpoint)
	app.Get("/v1/search/strategies", s.handleListStrategies)

	app.Get("/v1/categories", s.handleListCategories)
	app.Post("/v1/categories", s.handleAddCategory)
	app.Delete("/v1/categories/:name", s.handleRemoveCategory)
	app.Get("/v1/categories/tree", s.handleExportTree)
	app.Post("/v1/categories/extract", s.handleExtractCategories)

	app.Post("/v1/consolidate/detect", s.handleDetectDuplicates)
	app.Post("/v1/consolidate/validate", s.handleValidateEligibility)
	app.Post("/v1/consolidate/preview", s.handlePreviewMerge)
	app.Post("/v1/consolidate/commit", s.handleCommit)
	app.Get("/v1/consolidate/history", s.handleConsolidationHistory)

	if deps.MCPHandler != nil {
		app.All("/mcp", adaptor.HTTPHandler(deps.MCPHandler))
	}

	return s
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}
