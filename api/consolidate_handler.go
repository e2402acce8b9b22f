package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/consolidate"
)

// DetectDuplicatesRequest is the body for POST /v1/consolidate/detect.
type DetectDuplicatesRequest struct {
	Content   string  `json:"content"`
	Threshold float64 `json:"threshold,omitempty"`
	Namespace string  `json:"namespace,omitempty"`
	Limit     int     `json:"limit,omitempty"`
}

// ConsolidationPlanRequest names a primary record and the members to fold
// into it. Shared by validate, preview, and commit.
type ConsolidationPlanRequest struct {
	PrimaryID string   `json:"primary_id"`
	MemberIDs []string `json:"member_ids"`
}

// handleDetectDuplicates scores stored records against the probe content.
func (s *Server) handleDetectDuplicates(c *fiber.Ctx) error {
	var req DetectDuplicatesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "content is required"})
	}

	candidates, err := s.consolidator.DetectDuplicates(c.Context(), req.Content, req.Threshold, req.Namespace, req.Limit)
	if err != nil {
		s.logger.Error("duplicate detection failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "duplicate detection failed"})
	}

	return c.JSON(map[string]any{
		"count":      len(candidates),
		"candidates": candidates,
	})
}

// handleValidateEligibility runs the safety checks for a merge plan.
// Ineligibility is a normal 200 response carrying reasons.
func (s *Server) handleValidateEligibility(c *fiber.Ctx) error {
	var req ConsolidationPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	eligibility, err := s.consolidator.ValidateEligibility(c.Context(), req.PrimaryID, req.MemberIDs)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "validation failed"})
	}

	return c.JSON(eligibility)
}

// handlePreviewMerge shows the merged record without mutating storage.
func (s *Server) handlePreviewMerge(c *fiber.Ctx) error {
	var req ConsolidationPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	preview, err := s.consolidator.PreviewMerge(c.Context(), req.PrimaryID, req.MemberIDs)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: err.Error()})
	}

	return c.JSON(preview)
}

// handleCommit applies a merge plan atomically.
func (s *Server) handleCommit(c *fiber.Ctx) error {
	var req ConsolidationPlanRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	result, err := s.consolidator.Commit(c.Context(), req.PrimaryID, req.MemberIDs)
	if err != nil {
		var ineligible consolidate.IneligibleError
		var conflict consolidate.ConflictError
		switch {
		case errors.As(err, &ineligible):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(map[string]any{
				"error":   "plan not eligible",
				"reasons": ineligible.Reasons,
			})
		case errors.As(err, &conflict):
			return c.Status(fiber.StatusConflict).JSON(ErrorResponse{Error: err.Error()})
		default:
			s.logger.Error("consolidation commit failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(result)
}

// handleConsolidationHistory returns stage outcomes and the derived
// success rate.
func (s *Server) handleConsolidationHistory(c *fiber.Ctx) error {
	return c.JSON(map[string]any{
		"success_rate": s.consolidator.SuccessRate(),
		"history":      s.consolidator.History(),
	})
}
