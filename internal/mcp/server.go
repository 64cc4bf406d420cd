package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/engramlabs/engram/internal/memory"
)

const (
	// ServerName is the MCP server name
	ServerName = "engram"
	// ServerVersion is the current server version
	ServerVersion = "0.3.0"
)

// Server wraps the MCP server with the memory engine it exposes
type Server struct {
	mcp    *server.MCPServer
	engine *memory.Engine
	logger zerolog.Logger
}

// NewServer creates an MCP server around an already-wired memory
// engine. The caller owns the engine's dependencies and their
// lifecycle; closing storage and the embedding service stays with
// whoever built them.
func NewServer(engine *memory.Engine, logger zerolog.Logger) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		engine: engine,
		logger: logger.With().Str("component", "mcp").Logger(),
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown.
// Stdout carries protocol traffic only; all logging goes to stderr.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info().
		Str("server", ServerName).
		Str("version", ServerVersion).
		Str("session", s.engine.SessionID()).
		Msg("serving MCP over stdio")
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(memorySaveTool(), s.handleMemorySave)
	s.mcp.AddTool(memorySearchTool(), s.handleMemorySearch)
	s.mcp.AddTool(memoryValidateTool(), s.handleMemoryValidate)
	s.mcp.AddTool(memoryDeleteTool(), s.handleMemoryDelete)
	s.mcp.AddTool(memoryStatusTool(), s.handleMemoryStatus)
}
