package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// tierNames lists the accepted importance tiers, most protected first.
var tierNames = []string{"constitutional", "critical", "important", "normal", "temporary", "deprecated"}

// memorySaveTool returns the tool definition for memory_save
func memorySaveTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_save",
		Description: "Store a memory with an importance tier. Identical content in the same scope is deduplicated and refreshed instead of inserted twice.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Text to remember",
				},
				"tier": map[string]interface{}{
					"type":        "string",
					"description": "Importance tier controlling decay protection and search boost",
					"enum":        tierNames,
					"default":     "normal",
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Namespace the memory belongs to (e.g. a project name)",
					"default":     "global",
				},
			},
			Required: []string{"content"},
		},
	}
}

// memorySearchTool returns the tool definition for memory_search
func memorySearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_search",
		Description: "Search stored memories with hybrid semantic and keyword retrieval, ranked by decayed importance. Constitutional memories always lead the results.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search query (natural language or keywords)",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"scope": map[string]interface{}{
					"type":        "string",
					"description": "Restrict results to one scope; constitutional memories match regardless",
				},
				"include_archived": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, archived memories may appear in results",
					"default":     false,
				},
				"tiers": map[string]interface{}{
					"type":        "array",
					"description": "Restrict results to the listed tiers",
					"items": map[string]interface{}{
						"type": "string",
						"enum": tierNames,
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// memoryValidateTool returns the tool definition for memory_validate
func memoryValidateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_validate",
		Description: "Record a verdict on a previously surfaced memory: useful content is promoted and refreshed, outdated content is archived.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "integer",
					"description": "ID of the memory to validate",
				},
				"verdict": map[string]interface{}{
					"type":        "string",
					"description": "Judgement on the memory's continued relevance",
					"enum":        []string{"useful", "outdated"},
				},
			},
			Required: []string{"id", "verdict"},
		},
	}
}

// memoryDeleteTool returns the tool definition for memory_delete
func memoryDeleteTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_delete",
		Description: "Permanently delete a memory along with its vectors and keyword index entries.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "integer",
					"description": "ID of the memory to delete",
				},
			},
			Required: []string{"id"},
		},
	}
}

// memoryStatusTool returns the tool definition for memory_status
func memoryStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "memory_status",
		Description: "Report the active embedding profile, provider health, cache statistics, and stored memory counts.",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
