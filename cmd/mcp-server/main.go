package main

import (
	"os"

	"github.com/mbenaiss/conseiller-chat/config"
	"github.com/mbenaiss/conseiller-chat/logger"
	"github.com/mbenaiss/conseiller-chat/mcp"
)

func main() {
	log := logger.NewWithWriter(os.Stderr, "mcp-server", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	mcpServer := mcp.NewMCPServer("Conseiller Chat MCP API", "1.0.0", mcp.NewBridge(cfg.BridgeAPIURL))
	if err := mcp.StartMCPServer(mcpServer); err != nil {
		log.Fatal().Err(err).Msg("failed to start MCP server")
	}
}
