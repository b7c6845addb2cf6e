package cmd

import (
	"context"
	"fmt"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/docent/internal/app"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
	"github.com/koopa0/docent/internal/mcp"
)

// runMCP serves the retrieval tools over MCP on stdio.
// Stdout carries JSON-RPC only; all logging goes to stderr.
func runMCP(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	server, err := mcp.NewServer(mcp.Config{
		Name:    "docent",
		Version: AppVersion,
		Tools:   a.Tools,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	return server.Run(ctx, &sdk.StdioTransport{})
}
