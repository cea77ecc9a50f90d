package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/time/rate"

	"github.com/dshills/docsearch/internal/ingest"
	"github.com/dshills/docsearch/internal/searcher"
	"github.com/dshills/docsearch/internal/storage"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound         = -32001 // Document does not exist
	ErrorCodeIngestInProgress = -32002 // Another directory ingest is already running
	ErrorCodeIngestFailed     = -32003 // No passage of the document could be stored
	ErrorCodeEmptyQuery       = -32004 // Query parameter is empty
	ErrorCodeRateLimited      = -32005 // Tool called too often
)

// maxReportedErrors caps per-item errors echoed back to the client
const maxReportedErrors = 5

// handleSearchDocuments handles the search_documents tool invocation
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", searcher.DefaultLimit)
	if limit < 1 || limit > searcher.DefaultMaxLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	if err := s.checkRate(s.limiters.search, "search_documents"); err != nil {
		return nil, err
	}

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:    query,
		Limit:    limit,
		UseCache: getBoolDefault(args, "use_cache", true),
	})
	if errors.Is(err, searcher.ErrEmptyQuery) {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query cannot be blank", map[string]interface{}{
			"param": "query",
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"query":         resp.Query,
		"results":       resp.Results,
		"total_results": resp.TotalResults,
		"raw_hits":      resp.RawHits,
		"cached":        resp.Cached,
		"duration_ms":   resp.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleUploadDocument handles the upload_document tool invocation
func (s *Server) handleUploadDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	title := getStringDefault(args, "title", "")
	text := getStringDefault(args, "text", "")
	if title == "" || text == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "title and text parameters are required", map[string]interface{}{
			"param":  "title, text",
			"reason": "missing or empty",
		})
	}

	if err := s.checkRate(s.limiters.upload, "upload_document"); err != nil {
		return nil, err
	}

	res, err := s.ingest.Ingest(ctx, title, text)
	var partial *ingest.PartialIngestError
	switch {
	case err == nil:
	case errors.As(err, &partial):
	case errors.Is(err, ingest.ErrEmptyDocument):
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, ingest.ErrIngestFailed):
		return nil, newMCPError(ErrorCodeIngestFailed, "document could not be ingested", map[string]interface{}{
			"error": err.Error(),
		})
	default:
		return nil, newMCPError(ErrorCodeInternalError, "ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"document_id":     res.DocumentID,
		"title":           res.Title,
		"passages_stored": res.Passages,
		"passages_failed": res.Failed,
		"duration_ms":     res.Duration.Milliseconds(),
	}

	if partial != nil {
		errs := make([]string, 0, len(partial.Items))
		for _, item := range partial.Items {
			errs = append(errs, item.Error())
		}
		if len(errs) > maxReportedErrors {
			response["error_count"] = len(errs)
			errs = errs[:maxReportedErrors]
		}
		response["errors"] = errs
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleIngestDirectory handles the ingest_directory tool invocation
func (s *Server) handleIngestDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts := ingest.DirectoryOptions{
		Extensions: getStringSlice(args, "extensions"),
		Include:    getStringDefault(args, "include", ""),
		Recursive:  getBoolDefault(args, "recursive", false),
		DryRun:     getBoolDefault(args, "dry_run", false),
	}

	if !opts.DryRun {
		if err := s.checkRate(s.limiters.upload, "ingest_directory"); err != nil {
			return nil, err
		}
	}

	report, err := s.ingest.IngestDirectory(ctx, path, opts)
	if errors.Is(err, ingest.ErrRunInProgress) {
		return nil, newMCPError(ErrorCodeIngestInProgress, "a directory ingest is already running", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "directory ingest failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"run_id":      report.RunID,
		"dry_run":     report.DryRun,
		"files":       report.Files,
		"ingested":    report.Ingested,
		"partial":     report.Partial,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListDocuments handles the list_documents tool invocation
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.storage.ListDocuments(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list documents", map[string]interface{}{
			"error": err.Error(),
		})
	}

	items := make([]map[string]interface{}, 0, len(docs))
	for _, d := range docs {
		items = append(items, map[string]interface{}{
			"id":         d.ID,
			"title":      d.Title,
			"passages":   d.PassageCount,
			"created_at": d.CreatedAt.Format(time.RFC3339),
		})
	}

	response := map[string]interface{}{
		"documents": items,
		"count":     len(items),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleDeleteDocument handles the delete_document tool invocation
func (s *Server) handleDeleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id := int64(getIntDefault(args, "id", 0))
	if id <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "id must be a positive integer", map[string]interface{}{
			"param": "id",
		})
	}

	err := s.ingest.Delete(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, newMCPError(ErrorCodeNotFound, "document not found", map[string]interface{}{
			"id": id,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to delete document", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"deleted": true,
		"id":      id,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	cacheErr := s.searcher.PingCache(ctx)

	statistics := map[string]interface{}{
		"documents_count": status.DocumentsCount,
		"passages_count":  status.PassagesCount,
		"queries_count":   status.QueriesCount,
		"db_size_mb":      fmt.Sprintf("%.2f", status.SizeMB),
		"schema_version":  status.SchemaVersion,
	}
	if !status.LastIngestedAt.IsZero() {
		statistics["last_ingested_at"] = status.LastIngestedAt.Format(time.RFC3339)
	}

	health := map[string]interface{}{
		"database_accessible":  status.Health.DatabaseAccessible,
		"embeddings_available": status.Health.EmbeddingsAvailable,
		"cache_available":      cacheErr == nil,
	}
	if cacheErr != nil {
		health["cache_error"] = cacheErr.Error()
	}

	response := map[string]interface{}{
		"statistics": statistics,
		"health":     health,
	}
	if s.pipeline != nil {
		response["embedder"] = s.pipeline.Stats()
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleCacheStats handles the cache_stats tool invocation
func (s *Server) handleCacheStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.searcher.CacheStats(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to read cache stats", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"total_keys":  stats.TotalKeys,
		"tag_sets":    stats.TaggedKeys,
		"search_keys": stats.SearchKeys,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleClearCache handles the clear_cache tool invocation
func (s *Server) handleClearCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	removed, err := s.searcher.ClearCache(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to clear cache", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"cleared": true,
		"removed": removed,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// checkRate rejects the call when the tool's limiter has no token left
func (s *Server) checkRate(l *rate.Limiter, tool string) error {
	wait, allowed := allow(l)
	if allowed {
		return nil
	}
	s.logger.Warn("tool rate limited", "tool", tool, "retry_after", wait)
	return newMCPError(ErrorCodeRateLimited, "rate limit exceeded", map[string]interface{}{
		"tool":           tool,
		"retry_after_ms": wait.Milliseconds(),
	})
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// validatePath checks if a path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()

	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array parameter, skipping non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
