package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/mnemo/pkg/search"
)

// SearchRequest mirrors the search orchestrator options for the HTTP
// surface. Filters arrive in the JSON body of POST-style GETs via query
// params for the simple fields and a JSON body for structured filters.
type SearchRequest struct {
	Query           string                  `json:"query"`
	Strategy        string                  `json:"strategy,omitempty"`
	Limit           int                     `json:"limit,omitempty"`
	Offset          int                     `json:"offset,omitempty"`
	Namespace       string                  `json:"namespace,omitempty"`
	MinImportance   float64                 `json:"min_importance,omitempty"`
	Categories      []string                `json:"categories,omitempty"`
	Temporal        []search.TemporalFilter `json:"temporal,omitempty"`
	Metadata        []search.MetadataFilter `json:"metadata,omitempty"`
	IncludeMetadata bool                    `json:"include_metadata,omitempty"`
}

// handleSearchEndpoint handles GET /v1/search requests.
// Simple queries use query parameters; structured filters come in the JSON
// body.
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	req := SearchRequest{
		Query:     c.Query("query"),
		Strategy:  c.Query("strategy"),
		Limit:     c.QueryInt("limit", 0),
		Offset:    c.QueryInt("offset", 0),
		Namespace: c.Query("namespace"),
	}

	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
		}
	}

	if req.Query == "" && req.Strategy != search.StrategyRecent {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "query parameter is required"})
	}

	results, err := s.searcher.Search(c.Context(), req.Query, req.Strategy, search.Options{
		Limit:           req.Limit,
		Offset:          req.Offset,
		Namespace:       req.Namespace,
		MinImportance:   req.MinImportance,
		Categories:      req.Categories,
		Temporal:        req.Temporal,
		Metadata:        req.Metadata,
		IncludeMetadata: req.IncludeMetadata,
	})
	if err != nil {
		var unknown search.UnknownStrategyError
		var invalid search.InvalidFilterError
		switch {
		case errors.As(err, &unknown), errors.As(err, &invalid):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(map[string]any{
		"query":   req.Query,
		"count":   len(results),
		"results": results,
	})
}

// handleListStrategies returns the live strategy registry.
func (s *Server) handleListStrategies(c *fiber.Ctx) error {
	return c.JSON(map[string]any{
		"strategies": s.searcher.AvailableStrategies(),
	})
}
