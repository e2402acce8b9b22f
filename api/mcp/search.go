package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

var (
	searchToolName    = "memory_search"
	searchDescription = "Search stored memories. Returns ranked records matching the query text, scoped to an optional namespace. Strategies: fulltext (default), fallback, recent."
)

// SearchInput represents the input arguments for the memory_search tool.
type SearchInput struct {
	Query     string `json:"query" jsonschema:"the search query text to find relevant memories"`
	Namespace string `json:"namespace,omitempty" jsonschema:"namespace to scope the search to"`
	Strategy  string `json:"strategy,omitempty" jsonschema:"search strategy name (default: fulltext)"`
	Limit     int    `json:"limit,omitempty" jsonschema:"number of results to return (default: 10)"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID         string   `json:"id"`
	Score      float64  `json:"score"`
	Preview    string   `json:"preview"`
	Category   string   `json:"category,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Importance float64  `json:"importance"`
}

// SearchOutput represents the output of the memory_search tool.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// handleSearch processes a memory search request.
func (s *Server) handleSearch(ctx context.Context, req *mcp.CallToolRequest, input SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	logger := s.config.Logger

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	logger.Debug("MCP memory search request",
		zap.String("query", input.Query),
		zap.String("namespace", input.Namespace),
		zap.Int("limit", limit),
	)

	results, err := s.config.Searcher.Search(ctx, input.Query, input.Strategy, search.Options{
		Namespace: input.Namespace,
		Limit:     limit,
	})
	if err != nil {
		logger.Error("memory search failed", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Search failed: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	searchResults := make([]SearchResult, 0, len(results))
	for _, result := range results {
		searchResults = append(searchResults, SearchResult{
			ID:         result.ID,
			Score:      result.Score,
			Preview:    utils.Truncate(result.Record.Content, 200),
			Category:   result.Record.Category,
			Tags:       result.Record.Tags,
			Importance: result.Record.Importance,
		})
	}

	output := SearchOutput{
		Query:   input.Query,
		Results: searchResults,
		Count:   len(searchResults),
	}

	// Serialize the structured output as JSON for the text field
	// Per MCP spec: tools returning structured content should also return
	// serialized JSON in a TextContent block for backwards compatibility
	jsonBytes, err := json.Marshal(output)
	if err != nil {
		logger.Error("failed to marshal search output", zap.Error(err))
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Failed to serialize results: %v", err)},
			},
		}, SearchOutput{}, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(jsonBytes)},
		},
	}, output, nil
}
