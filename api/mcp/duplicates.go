package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/utils"
)

var (
	duplicatesToolName    = "detect_duplicates"
	duplicatesDescription = "Find stored memories that duplicate the given content. Returns candidates scored by similarity, at or above the threshold (default 0.6)."
)

// DuplicatesInput represents the input arguments for the detect_duplicates tool.
type DuplicatesInput struct {
	Content   string  `json:"content" jsonschema:"the memory content to check for duplicates"`
	Namespace string  `json:"namespace,omitempty" jsonschema:"namespace to scope the check to"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"minimum similarity score 0..1 (default: 0.6)"`
	Limit     int     `json:"limit,omitempty" jsonschema:"maximum candidates to return (default: 10)"`
}

// DuplicateCandidate represents a single duplicate candidate.
type DuplicateCandidate struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// DuplicatesOutput represents the output of the detect_duplicates tool.
type DuplicatesOutput struct {
	Candidates []DuplicateCandidate `json:"candidates"`
	Count      int                  `json:"count"`
}

// handleDetectDuplicates processes a duplicate detection request.
func (s *Server) handleDetectDuplicates(ctx context.Context, req *mcp.CallToolRequest, input DuplicatesInput) (*mcp.CallToolResult, DuplicatesOutput, error) {
	logger := s.config.Logger

	logger.Debug("MCP duplicate detection request",
		zap.String("namespace", input.Namespace),
		zap.Float64("threshold", input.Threshold),
	)

	candidates, err := s.config.Consolidator.DetectDuplicates(ctx, input.Content, input.Threshold, input.Namespace, input.Limit)
	if err != nil {
		logger.Error("duplicate detection failed", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Duplicate detection failed: %v", err)},
			},
		}, DuplicatesOutput{}, nil
	}

	out := DuplicatesOutput{Count: len(candidates)}
	for _, cand := range candidates {
		out.Candidates = append(out.Candidates, DuplicateCandidate{
			ID:      cand.Record.ID,
			Score:   cand.Score,
			Preview: utils.Truncate(cand.Record.Content, 200),
		})
	}

	jsonBytes, err := json.Marshal(out)
	if err != nil {
		logger.Error("failed to marshal duplicates output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, DuplicatesOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, out, nil
}
