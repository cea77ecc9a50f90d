package mcp

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/docsearch/internal/embedder"
	"github.com/dshills/docsearch/internal/ingest"
	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "docsearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Deps are the services the tools operate on
type Deps struct {
	Storage  storage.Storage
	Ingest   *ingest.Service
	Searcher *searcher.Searcher
	Pipeline *embedder.Pipeline // Optional, reported by get_status
	Limits   Limits
	Logger   *slog.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	ingest   *ingest.Service
	searcher *searcher.Searcher
	pipeline *embedder.Pipeline
	limiters *limiters
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance. The caller owns the
// dependencies and closes them after Serve returns.
func NewServer(deps Deps) (*Server, error) {
	if deps.Storage == nil || deps.Ingest == nil || deps.Searcher == nil {
		return nil, errors.New("storage, ingest and searcher are required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s := &Server{
		mcp:      mcpServer,
		storage:  deps.Storage,
		ingest:   deps.Ingest,
		searcher: deps.Searcher,
		pipeline: deps.Pipeline,
		limiters: newLimiters(deps.Limits),
		logger:   deps.Logger,
	}

	s.registerTools()

	return s, nil
}

// Serve runs the MCP server on stdio until ctx is cancelled or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	stdio := server.NewStdioServer(s.mcp)
	err := stdio.Listen(ctx, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool(), s.handleSearchDocuments)
	s.mcp.AddTool(uploadDocumentTool(), s.handleUploadDocument)
	s.mcp.AddTool(ingestDirectoryTool(), s.handleIngestDirectory)
	s.mcp.AddTool(listDocumentsTool(), s.handleListDocuments)
	s.mcp.AddTool(deleteDocumentTool(), s.handleDeleteDocument)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	s.mcp.AddTool(clearCacheTool(), s.handleClearCache)
}
