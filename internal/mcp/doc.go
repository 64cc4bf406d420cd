// Package mcp implements the Model Context Protocol (MCP) server for Engram.
//
// The MCP server exposes five tools to AI coding assistants:
//   - memory_save: Store a memory with an importance tier
//   - memory_search: Hybrid semantic and keyword retrieval over stored memories
//   - memory_validate: Promote or archive a memory based on a verdict
//   - memory_delete: Permanently remove a memory
//   - memory_status: Report embedding profile, provider health, and corpus counts
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server communicates with MCP clients via standard input/output.
// Stdout is reserved for protocol traffic; every log line goes to stderr.
//
// # Basic Usage
//
// The server is started by running the engram binary:
//
//	engram
//
// It then listens on stdin for MCP protocol messages and writes responses
// to stdout until stdin closes or the process receives a signal.
//
// # Tool: memory_save
//
// Store a memory. Identical content in the same scope is deduplicated:
// the existing item is refreshed and returned instead of inserted twice.
//
//	Request:
//	{
//	  "name": "memory_save",
//	  "arguments": {
//	    "content": "Deploy with rolling restarts only",
//	    "tier": "critical",
//	    "scope": "ops"
//	  }
//	}
//
//	Response:
//	{
//	  "id": 42,
//	  "uid": "6f1c9b2e-...",
//	  "tier": "critical",
//	  "state": "hot",
//	  "scope": "ops",
//	  "deduplicated": false,
//	  "degraded": false,
//	  "vector_space": "gemini/text-embedding-004 (768-dim)",
//	  "similar": [
//	    {"id": 17, "similarity": 0.97, "preview": "Deployments must use rolling restarts"}
//	  ]
//	}
//
// A save during a full provider outage still succeeds: the item is stored
// without a vector, "degraded" is true, and the next reindex backfills the
// embedding once a provider recovers.
//
// # Tool: memory_search
//
// Search memories with hybrid retrieval. Vector and keyword rankings are
// fused, then weighted by each memory's decayed, tier-boosted score.
// Constitutional memories always lead the results regardless of scope.
//
//	Request:
//	{
//	  "name": "memory_search",
//	  "arguments": {
//	    "query": "how do we roll out deploys",
//	    "limit": 10,
//	    "scope": "ops",
//	    "include_archived": false,
//	    "tiers": ["critical", "important"]
//	  }
//	}
//
//	Response:
//	{
//	  "results": [
//	    {
//	      "rank": 1,
//	      "id": 42,
//	      "content": "Deploy with rolling restarts only",
//	      "tier": "critical",
//	      "state": "hot",
//	      "scope": "ops",
//	      "score": 0.0221,
//	      "source": "both"
//	    }
//	  ],
//	  "count": 1,
//	  "degraded": false,
//	  "provider": "gemini/text-embedding-004 (768-dim)"
//	}
//
// When no provider can embed the query the search degrades to keyword
// matching alone; "degraded" is true and "degraded_reason" names the
// providers that were tried.
//
// # Tool: memory_validate
//
// Record a verdict on a surfaced memory:
//
//	Request:
//	{
//	  "name": "memory_validate",
//	  "arguments": {"id": 42, "verdict": "useful"}
//	}
//
//	Response:
//	{"id": 42, "state": "warm", "tier": "critical"}
//
// A "useful" verdict promotes the memory to at least warm and refreshes
// its access time; "outdated" archives it, removing it from default
// search results.
//
// # Tool: memory_delete
//
// Permanently delete a memory, its vectors, and its keyword index rows:
//
//	Request:
//	{
//	  "name": "memory_delete",
//	  "arguments": {"id": 42}
//	}
//
//	Response:
//	{"id": 42, "deleted": true}
//
// # Tool: memory_status
//
// Report a point-in-time view of the server:
//
//	Response:
//	{
//	  "server": {"name": "engram", "version": "0.3.0"},
//	  "session": {"id": "6f1c9b2e-...", "turn": 14},
//	  "profile": {"provider": "gemini", "model": "text-embedding-004", "dimension": 768},
//	  "providers": {
//	    "gemini": {"score": 0.94, "status": "healthy", "success_rate": 0.99}
//	  },
//	  "cache": {"size": 412, "capacity": 1000, "hits": 1890, "misses": 415},
//	  "storage": {"total_memories": 128, "vector_count": 126, "schema_version": "0.3.0"}
//	}
//
// # MCP Client Configuration
//
// Configure in an MCP client's settings:
//
//	{
//	  "mcpServers": {
//	    "engram": {
//	      "command": "/usr/local/bin/engram",
//	      "env": {
//	        "GEMINI_API_KEY": "your-api-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Bad arguments never crash the server; handlers return structured
// JSON-RPC errors:
//
//	{
//	  "error": {
//	    "code": -32002,
//	    "message": "invalid tier",
//	    "data": {
//	      "param": "tier",
//	      "value": "urgent",
//	      "allowed": ["constitutional", "critical", "important", "normal", "temporary", "deprecated"]
//	    }
//	  }
//	}
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (storage, embedding, etc.)
//   - -32001: Memory not found
//   - -32002: Invalid tier
//   - -32003: Invalid verdict
//   - -32004: Empty query
//   - -32005: Empty content
//
// # Implementation Details
//
// The package uses github.com/mark3labs/mcp-go for protocol handling.
// NewServer wraps an already-constructed memory engine; the main
// program owns storage, the embedding service, and their shutdown
// order. Handlers translate tool arguments into engine calls and engine
// results into JSON text content.
package mcp
