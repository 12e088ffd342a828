package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/catalogsearch/internal/loader"
	"github.com/dshills/catalogsearch/internal/logger"
	"github.com/dshills/catalogsearch/internal/ranker"
	"github.com/dshills/catalogsearch/internal/searcher"
	"github.com/dshills/catalogsearch/internal/tokenizer"
	"github.com/dshills/catalogsearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams         = -32602 // Invalid method parameters
	ErrorCodeInternalError         = -32603 // Internal JSON-RPC error
	ErrorCodeRepositoryUnavailable = -32001 // Catalog store cannot serve queries
	ErrorCodeImportInProgress      = -32002 // Another import is already running
	ErrorCodeEmptyQuery            = -32003 // Query parameter is empty
)

// toolHandler is the signature of every tool handler
type toolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// withRequestLogger gives each tool call a logger tagged with the tool name
func (s *Server) withRequestLogger(tool string, h toolHandler) toolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		log := s.logger.With(zap.String("tool", tool))
		return h(logger.ContextWithLogger(ctx, log), request)
	}
}

// handleSearchCatalog handles the search_catalog tool invocation
func (s *Server) handleSearchCatalog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	// Extract and validate parameters
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

	limit := getIntDefault(args, "limit", s.searcher.Config().ResultLimit)
	if limit < 1 || limit > searcher.MaxResultLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", searcher.MaxResultLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	// Paging windows over the ranked list, which is capped at MaxResultLimit
	maxOffset := searcher.MaxResultLimit - limit
	offset := getIntDefault(args, "offset", 0)
	if offset < 0 || offset > maxOffset {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("offset must be between 0 and %d for limit %d", maxOffset, limit), map[string]interface{}{
			"param":        "offset",
			"value":        offset,
			"max_offset":   maxOffset,
			"window_limit": searcher.MaxResultLimit,
		})
	}

	filters, err := parseFields(args, s.defaultFields)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid fields", map[string]interface{}{
			"param":   "fields",
			"reason":  err.Error(),
			"allowed": fieldNames,
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:   query,
		Filters: filters,
		Limit:   offset + limit,
	})
	if err != nil {
		return nil, s.searchError(ctx, err)
	}

	page := ranker.Page(resp.Results, offset, limit)
	response := map[string]interface{}{
		"query":         resp.Query,
		"total_matches": resp.TotalMatches,
		"returned":      len(page),
		"offset":        offset,
		"window_limit":  searcher.MaxResultLimit,
		"has_more":      offset+len(page) < min(resp.TotalMatches, searcher.MaxResultLimit),
		"cache_hit":     resp.CacheHit,
		"duration_ms":   resp.Duration.Milliseconds(),
		"results":       s.searcher.Items(page),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleLookupBarcode handles the lookup_barcode tool invocation
func (s *Server) handleLookupBarcode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	barcode, _ := args["barcode"].(string)
	if !tokenizer.IsNumeric(barcode) {
		return nil, newMCPError(ErrorCodeInvalidParams, "barcode must contain only digits", map[string]interface{}{
			"param": "barcode",
			"value": barcode,
		})
	}

	resp, err := s.searcher.Search(ctx, searcher.Request{
		Query:   barcode,
		Filters: types.Filters{Barcode: true},
	})
	if err != nil {
		return nil, s.searchError(ctx, err)
	}

	response := map[string]interface{}{
		"barcode":      barcode,
		"found":        len(resp.Results) > 0,
		"case_matches": resp.CaseResults,
		"results":      s.searcher.Items(resp.Results),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleImportCatalog handles the import_catalog tool invocation
func (s *Server) handleImportCatalog(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
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

	// Validate path exists and is accessible
	if err := validatePath(path); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	stats, err := s.loader.ImportFile(ctx, path, s.importConfig)
	if errors.Is(err, loader.ErrImportInProgress) {
		return nil, newMCPError(ErrorCodeImportInProgress, "an import is already running", nil)
	}
	if errors.Is(err, loader.ErrInvalidSnapshot) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid snapshot", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "import failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Format response
	response := map[string]interface{}{
		"imported":    true,
		"written":     stats.Written,
		"rejected":    stats.Rejected,
		"duration_ms": stats.Duration.Milliseconds(),
	}

	if len(stats.ErrorMessages) > 0 {
		// Include first few errors
		errorCount := len(stats.ErrorMessages)
		if errorCount > 5 {
			response["errors"] = stats.ErrorMessages[:5]
			response["error_count"] = errorCount
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeRepositoryUnavailable, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Format response
	response := map[string]interface{}{
		"statistics": map[string]interface{}{
			"items_count":      status.ItemsCount,
			"variations_count": status.VariationsCount,
			"categories_count": status.CategoriesCount,
			"case_upc_count":   status.CaseUpcCount,
			"db_size_mb":       fmt.Sprintf("%.2f", status.SizeMB),
		},
		"schema_version":     status.SchemaVersion,
		"checked_at":         status.CheckedAt.Format("2006-01-02T15:04:05Z07:00"),
		"import_in_progress": s.loader.InProgress(),
		"cached_searches":    s.searcher.CacheLen(),
		"health": map[string]interface{}{
			"database_accessible": status.Health.DatabaseAccessible,
			"migrations_applied":  status.Health.MigrationsApplied,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// searchError maps a search failure to an MCP error
func (s *Server) searchError(ctx context.Context, err error) error {
	if errors.Is(err, types.ErrRepositoryUnavailable) {
		return newMCPError(ErrorCodeRepositoryUnavailable, "catalog is unavailable", map[string]interface{}{
			"error": err.Error(),
		})
	}
	logger.FromContext(ctx, s.logger).Error("search failed", zap.Error(err))
	return newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
		"error": err.Error(),
	})
}

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

// parseFields reads the optional fields array into Filters
func parseFields(args map[string]interface{}, defaults types.Filters) (types.Filters, error) {
	raw, ok := args["fields"]
	if !ok || raw == nil {
		return defaults, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return types.Filters{}, errors.New("fields must be an array of strings")
	}

	names := make([]string, 0, len(list))
	for _, v := range list {
		name, ok := v.(string)
		if !ok {
			return types.Filters{}, errors.New("fields must be an array of strings")
		}
		names = append(names, name)
	}
	filters, err := types.ParseFilters(names)
	if err != nil {
		return types.Filters{}, err
	}
	if filters.IsEmpty() {
		return types.Filters{}, errors.New("at least one field is required")
	}
	return filters, nil
}

// validatePath checks that a snapshot path is absolute and readable
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}

	// Check if path is absolute
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	// Check if path exists
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if info.IsDir() {
		return ErrIsDirectory
	}

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

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		if math.IsNaN(val) {
			return defaultValue
		}
		// Out-of-range floats clamp instead of wrapping
		return int(max(min(val, math.MaxInt32), math.MinInt32))
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrIsDirectory     = errors.New("path is a directory")
)
