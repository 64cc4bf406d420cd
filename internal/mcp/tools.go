package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/engramlabs/engram/internal/memory"
	"github.com/engramlabs/engram/internal/storage"
	"github.com/engramlabs/engram/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams  = -32602 // Invalid method parameters
	ErrorCodeInternalError  = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound       = -32001 // Memory ID does not exist
	ErrorCodeInvalidTier    = -32002 // Tier is not one of the known values
	ErrorCodeInvalidVerdict = -32003 // Verdict is not "useful" or "outdated"
	ErrorCodeEmptyQuery     = -32004 // Query parameter is empty
	ErrorCodeEmptyContent   = -32005 // Content parameter is empty
)

// handleMemorySave handles the memory_save tool invocation
func (s *Server) handleMemorySave(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	content, ok := args["content"].(string)
	if !ok || strings.TrimSpace(content) == "" {
		return nil, newMCPError(ErrorCodeEmptyContent, "content parameter is required and cannot be empty", map[string]interface{}{
			"param":  "content",
			"reason": "missing or empty",
		})
	}

	tier, err := types.ParseTier(getStringDefault(args, "tier", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidTier, "invalid tier", map[string]interface{}{
			"param":   "tier",
			"value":   args["tier"],
			"allowed": tierNames,
		})
	}

	result, err := s.engine.Save(ctx, memory.SaveRequest{
		Content: content,
		Tier:    tier,
		Scope:   getStringDefault(args, "scope", ""),
	})
	if err != nil {
		return nil, engineError("save failed", err)
	}

	response := map[string]interface{}{
		"id":           result.Memory.ID,
		"uid":          result.Memory.UID,
		"tier":         string(result.Memory.Tier),
		"state":        string(result.Memory.State),
		"scope":        result.Memory.Scope,
		"deduplicated": result.Deduplicated,
		"degraded":     result.Degraded,
	}
	if result.DegradedReason != "" {
		response["degraded_reason"] = result.DegradedReason
	}
	if result.VectorSpace != "" {
		response["vector_space"] = result.VectorSpace
	}
	if len(result.Similar) > 0 {
		similar := make([]map[string]interface{}, len(result.Similar))
		for i, w := range result.Similar {
			similar[i] = map[string]interface{}{
				"id":         w.ID,
				"uid":        w.UID,
				"similarity": w.Similarity,
				"preview":    w.Preview,
			}
		}
		response["similar"] = similar
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemorySearch handles the memory_search tool invocation
func (s *Server) handleMemorySearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", memory.DefaultSearchLimit)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	tiers, err := parseTiers(args["tiers"])
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidTier, "invalid tiers filter", map[string]interface{}{
			"param":   "tiers",
			"reason":  err.Error(),
			"allowed": tierNames,
		})
	}

	resp, err := s.engine.Search(ctx, memory.SearchRequest{
		Query:           query,
		Limit:           limit,
		Scope:           getStringDefault(args, "scope", ""),
		IncludeArchived: getBoolDefault(args, "include_archived", false),
		Tiers:           tiers,
	})
	if err != nil {
		return nil, engineError("search failed", err)
	}

	results := make([]map[string]interface{}, len(resp.Results))
	for i, r := range resp.Results {
		results[i] = map[string]interface{}{
			"rank":        r.Rank,
			"id":          r.Memory.ID,
			"uid":         r.Memory.UID,
			"content":     r.Memory.Content,
			"tier":        string(r.Memory.Tier),
			"state":       string(r.Memory.State),
			"scope":       r.Memory.Scope,
			"score":       r.FinalScore,
			"match_score": r.MatchScore,
			"source":      string(r.Source),
		}
	}

	response := map[string]interface{}{
		"results":  results,
		"count":    len(results),
		"degraded": resp.Degraded,
	}
	if resp.DegradedReason != "" {
		response["degraded_reason"] = resp.DegradedReason
	}
	if resp.Provider != "" {
		response["provider"] = resp.Provider
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryValidate handles the memory_validate tool invocation
func (s *Server) handleMemoryValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := getInt64(args, "id")
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or not an integer",
		})
	}

	raw := getStringDefault(args, "verdict", "")
	verdict, err := memory.ParseVerdict(raw)
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidVerdict, "invalid verdict", map[string]interface{}{
			"param":   "verdict",
			"value":   raw,
			"allowed": []string{string(memory.VerdictUseful), string(memory.VerdictOutdated)},
		})
	}

	item, err := s.engine.Validate(ctx, id, verdict)
	if err != nil {
		return nil, engineError("validate failed", err)
	}

	response := map[string]interface{}{
		"id":    item.ID,
		"state": string(item.State),
		"tier":  string(item.Tier),
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryDelete handles the memory_delete tool invocation
func (s *Server) handleMemoryDelete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	id, ok := getInt64(args, "id")
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "id parameter is required", map[string]interface{}{
			"param":  "id",
			"reason": "missing or not an integer",
		})
	}

	if err := s.engine.Delete(ctx, id); err != nil {
		return nil, engineError("delete failed", err)
	}

	response := map[string]interface{}{
		"id":      id,
		"deleted": true,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleMemoryStatus handles the memory_status tool invocation. It takes
// no arguments, so a nil or malformed argument map is not an error.
func (s *Server) handleMemoryStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.engine.Status(ctx)
	if err != nil {
		return nil, engineError("status failed", err)
	}

	spaces := make([]map[string]interface{}, len(st.Store.Spaces))
	for i, sp := range st.Store.Spaces {
		spaces[i] = map[string]interface{}{
			"provider":  sp.Provider,
			"model":     sp.Model,
			"dimension": sp.Dimension,
		}
	}

	response := map[string]interface{}{
		"server": map[string]interface{}{
			"name":    ServerName,
			"version": ServerVersion,
		},
		"session": map[string]interface{}{
			"id":   st.SessionID,
			"turn": st.Turn,
		},
		"providers": st.Providers,
		"cache":     st.Cache,
		"storage": map[string]interface{}{
			"total_memories":   st.Store.TotalMemories,
			"states":           st.Store.StateCounts,
			"tiers":            st.Store.TierCounts,
			"vector_count":     st.Store.VectorCount,
			"spaces":           spaces,
			"database_size_mb": fmt.Sprintf("%.2f", st.Store.DatabaseSizeMB),
			"schema_version":   st.Store.SchemaVersion,
		},
	}
	if st.ProfileError != "" {
		response["profile_error"] = st.ProfileError
	} else {
		response["profile"] = st.Profile
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
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

// engineError maps an engine failure onto an MCP error code. Parameter
// problems are caught by the handlers before the engine runs, so most
// errors landing here are internal ones.
func engineError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		code = ErrorCodeNotFound
		message = "memory not found"
	case errors.Is(err, types.ErrEmptyContent):
		code = ErrorCodeEmptyContent
	case errors.Is(err, memory.ErrEmptyQuery):
		code = ErrorCodeEmptyQuery
	case errors.Is(err, types.ErrInvalidTier):
		code = ErrorCodeInvalidTier
	case errors.Is(err, memory.ErrInvalidVerdict):
		code = ErrorCodeInvalidVerdict
	case errors.Is(err, types.ErrInvalidBaseScore):
		code = ErrorCodeInvalidParams
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// parseTiers converts a raw tiers argument into validated tier values.
// Arguments arrive as []interface{} over the wire and may be []string
// from in-process callers.
func parseTiers(raw interface{}) ([]types.Tier, error) {
	if raw == nil {
		return nil, nil
	}

	var names []string
	switch v := raw.(type) {
	case []string:
		names = v
	case []interface{}:
		names = make([]string, 0, len(v))
		for _, entry := range v {
			s, ok := entry.(string)
			if !ok {
				return nil, fmt.Errorf("tiers must be an array of strings, got %T", entry)
			}
			names = append(names, s)
		}
	default:
		return nil, fmt.Errorf("tiers must be an array of strings, got %T", raw)
	}

	tiers := make([]types.Tier, 0, len(names))
	for _, name := range names {
		tier, err := types.ParseTier(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", types.ErrInvalidTier, name)
		}
		tiers = append(tiers, tier)
	}
	return tiers, nil
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

// getInt64 extracts a required integer parameter. JSON numbers arrive
// as float64; in-process callers may pass int or int64.
func getInt64(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
