// Package mcp exposes the documentation retrieval tools over the Model
// Context Protocol, so external MCP clients can query the same corpus the
// built-in agent uses.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/docent/internal/agent"
	"github.com/koopa0/docent/internal/log"
)

// Server wraps the MCP SDK server around the documentation toolset.
type Server struct {
	mcpServer *mcp.Server
	tools     *agent.Tools
	logger    log.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Tools   *agent.Tools
	Logger  log.Logger
}

// NewServer creates an MCP server with the retrieval tools registered.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Name == "" {
		return nil, errors.New("server name is required")
	}
	if cfg.Version == "" {
		return nil, errors.New("server version is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("tools are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		tools:  cfg.Tools,
		logger: cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	return s, nil
}

// Run serves MCP on the given transport. Blocks until ctx is canceled or
// the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("mcp server starting")
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	retrieveSchema, err := jsonschema.For[agent.RetrieveInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", agent.RetrieveDocumentationName, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: agent.RetrieveDocumentationName,
		Description: "Search the documentation corpus using semantic similarity. " +
			"Returns the most relevant documentation chunks for the query.",
		InputSchema: retrieveSchema,
	}, s.retrieveDocumentation)

	listSchema, err := jsonschema.For[agent.ListPagesInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", agent.ListPagesName, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: agent.ListPagesName,
		Description: "List the URL of every page in the documentation corpus. " +
			"Returns a sorted list of unique URLs.",
		InputSchema: listSchema,
	}, s.listPages)

	pageSchema, err := jsonschema.For[agent.GetPageInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", agent.GetPageContentName, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name: agent.GetPageContentName,
		Description: "Fetch the complete content of one documentation page by its exact URL, " +
			"as returned by " + agent.ListPagesName + ".",
		InputSchema: pageSchema,
	}, s.getPageContent)

	return nil
}

func (s *Server) retrieveDocumentation(ctx context.Context, _ *mcp.CallToolRequest, in agent.RetrieveInput) (*mcp.CallToolResult, any, error) {
	text, err := s.tools.RetrieveRelevantDocumentation(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", agent.RetrieveDocumentationName, err)
	}
	return textResult(text), nil, nil
}

func (s *Server) listPages(ctx context.Context, _ *mcp.CallToolRequest, in agent.ListPagesInput) (*mcp.CallToolResult, any, error) {
	urls, err := s.tools.ListDocumentationPages(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", agent.ListPagesName, err)
	}
	if len(urls) == 0 {
		return textResult("No documentation pages found."), nil, nil
	}
	return textResult(strings.Join(urls, "\n")), nil, nil
}

func (s *Server) getPageContent(ctx context.Context, _ *mcp.CallToolRequest, in agent.GetPageInput) (*mcp.CallToolResult, any, error) {
	text, err := s.tools.GetPageContent(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", agent.GetPageContentName, err)
	}
	return textResult(text), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}
