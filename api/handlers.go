package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/extract"
	"github.com/papercomputeco/mnemo/pkg/hierarchy"
	"github.com/papercomputeco/mnemo/pkg/record"
	"github.com/papercomputeco/mnemo/pkg/storage"
	"github.com/papercomputeco/mnemo/pkg/worker"
)

// CreateRecordRequest is the body for POST /v1/records.
type CreateRecordRequest struct {
	Namespace  string         `json:"namespace"`
	Content    string         `json:"content"`
	Summary    string         `json:"summary,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Importance float64        `json:"importance,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// handleCreateRecord captures a new memory record and queues it for
// categorization.
func (s *Server) handleCreateRecord(c *fiber.Ctx) error {
	var req CreateRecordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	rec := &record.Record{
		ID:         uuid.NewString(),
		Namespace:  req.Namespace,
		Content:    req.Content,
		Summary:    req.Summary,
		Tags:       req.Tags,
		Importance: req.Importance,
		CreatedAt:  time.Now().UTC(),
		Metadata:   req.Metadata,
	}

	if err := s.storer.Insert(c.Context(), rec); err != nil {
		s.logger.Error("record insert failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to store record"})
	}

	// Categorization happens off the capture path.
	if s.pool != nil {
		s.pool.Enqueue(worker.Job{
			RecordID: rec.ID,
			Input: extract.Input{
				Content: rec.Content,
				Summary: rec.Summary,
				Tags:    rec.Tags,
			},
		})
	}

	return c.Status(fiber.StatusCreated).JSON(rec)
}

// handleGetRecord returns a single record by id.
func (s *Server) handleGetRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	rec, err := s.storer.Get(c.Context(), id)
	if err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "record not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to load record"})
	}

	return c.JSON(rec)
}

// handleDeleteRecord removes a record by id.
func (s *Server) handleDeleteRecord(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "id parameter required"})
	}

	if err := s.storer.Delete(c.Context(), id); err != nil {
		var nf storage.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "record not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete record"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// AddCategoryRequest is the body for POST /v1/categories.
type AddCategoryRequest struct {
	Name   string `json:"name"`
	Parent string `json:"parent,omitempty"`
}

// handleAddCategory inserts a category node. A missing parent path fails;
// intermediate nodes are never auto-created.
func (s *Server) handleAddCategory(c *fiber.Ctx) error {
	var req AddCategoryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "name is required"})
	}

	node, err := s.tree.AddCategory(req.Name, req.Parent)
	if err != nil {
		var invalid hierarchy.InvalidParentError
		var depth hierarchy.DepthExceededError
		switch {
		case errors.As(err, &invalid):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		case errors.As(err, &depth):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to add category"})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(node)
}

// handleRemoveCategory removes a category and its subtree.
func (s *Server) handleRemoveCategory(c *fiber.Ctx) error {
	name := c.Params("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "name parameter required"})
	}

	if err := s.tree.RemoveCategory(name); err != nil {
		var nf hierarchy.NotFoundError
		if errors.As(err, &nf) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "category not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to remove category"})
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleListCategories searches categories by optional substring.
func (s *Server) handleListCategories(c *fiber.Ctx) error {
	query := c.Query("q")
	limit := c.QueryInt("limit", 50)

	nodes := s.tree.SearchCategories(query, limit)

	return c.JSON(map[string]any{
		"count":      len(nodes),
		"categories": nodes,
	})
}

// ExtractCategoriesRequest is the body for POST /v1/categories/extract.
type ExtractCategoriesRequest struct {
	Content  string   `json:"content"`
	Summary  string   `json:"summary,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Existing []string `json:"existing,omitempty"`
}

// handleExtractCategories classifies submitted text synchronously without
// storing a record.
func (s *Server) handleExtractCategories(c *fiber.Ctx) error {
	var req ExtractCategoriesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	if s.extractor == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{Error: "extraction is not configured"})
	}

	result := s.extractor.Extract(extract.Input{
		Content:  req.Content,
		Summary:  req.Summary,
		Tags:     req.Tags,
		Existing: req.Existing,
	})

	return c.JSON(result)
}

// handleExportTree returns the full category tree as nested nodes.
func (s *Server) handleExportTree(c *fiber.Ctx) error {
	return c.JSON(map[string]any{
		"generation": s.tree.Generation(),
		"tree":       s.tree.Export(),
	})
}
