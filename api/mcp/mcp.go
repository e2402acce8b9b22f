// Package mcp provides an MCP (Model Context Protocol) server for the mnemo system.
package mcp

import (
	"errors"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/papercomputeco/mnemo/pkg/consolidate"
	"github.com/papercomputeco/mnemo/pkg/search"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

type Config struct {
	// Searcher runs memory queries for the memory_search tool
	Searcher *search.Orchestrator

	// Consolidator backs the detect_duplicates tool (optional)
	Consolidator *consolidate.Service

	// Noop for empty MCP server
	Noop bool

	// Logger is the configured zap logger
	Logger *zap.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	// Create the MCP server
	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "mnemo",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if c.Noop {
		// return the empty MCP server with no tools configured
		// if the noop flag is set (i.e., MCP capabilities are disabled)
		s.mcpServer = mcpServer
		return s, nil
	}

	if c.Searcher == nil {
		return nil, errors.New("search orchestrator is required")
	}
	if c.Logger == nil {
		return nil, errors.New("logger is required")
	}

	// Add tools
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        searchToolName,
		Description: searchDescription,
	}, s.handleSearch)

	// Add duplicate detection if the consolidation service is configured
	if c.Consolidator != nil {
		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        duplicatesToolName,
			Description: duplicatesDescription,
		}, s.handleDetectDuplicates)
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}
