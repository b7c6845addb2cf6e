package agent

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/koopa0/docent/internal/retrieval"
)

// Tool name constants for the documentation tools registered with Genkit.
// The dispatch switch in expert.go is closed over exactly this set.
const (
	// RetrieveDocumentationName searches the corpus by semantic similarity.
	RetrieveDocumentationName = "retrieve_relevant_documentation"
	// ListPagesName lists every documentation page URL.
	ListPagesName = "list_documentation_pages"
	// GetPageContentName fetches one full page by URL.
	GetPageContentName = "get_page_content"
)

// RetrieveInput defines input for retrieve_relevant_documentation.
type RetrieveInput struct {
	UserQuery string `json:"user_query" jsonschema_description:"The user's question or topic to search the documentation for"`
}

// ListPagesInput defines input for list_documentation_pages (no parameters).
type ListPagesInput struct{}

// GetPageInput defines input for get_page_content.
type GetPageInput struct {
	URL string `json:"url" jsonschema_description:"Exact URL of the page, as returned by list_documentation_pages"`
}

// Tools adapts the retrieval engine to the agent's tool surface.
type Tools struct {
	engine *retrieval.Engine
	logger *slog.Logger
}

// NewTools creates the documentation toolset.
func NewTools(engine *retrieval.Engine, logger *slog.Logger) (*Tools, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tools{engine: engine, logger: logger}, nil
}

// RetrieveRelevantDocumentation returns the top matching chunks for a query,
// formatted for the model. Failures surface as readable sentinel text.
func (t *Tools) RetrieveRelevantDocumentation(ctx context.Context, in RetrieveInput) (string, error) {
	t.logger.Info("retrieve_relevant_documentation called", "query", in.UserQuery)
	return t.engine.RelevantDocumentation(ctx, in.UserQuery)
}

// ListDocumentationPages returns the sorted unique page URLs in the corpus.
func (t *Tools) ListDocumentationPages(ctx context.Context, _ ListPagesInput) ([]string, error) {
	t.logger.Info("list_documentation_pages called")
	return t.engine.PageURLs(ctx)
}

// GetPageContent returns the full reconstructed content of one page.
func (t *Tools) GetPageContent(ctx context.Context, in GetPageInput) (string, error) {
	t.logger.Info("get_page_content called", "url", in.URL)
	return t.engine.PageContent(ctx, in.URL)
}

// Register registers the documentation tools with Genkit so their schemas
// are advertised to the model. Execution itself happens in the agent's own
// dispatch loop, not through Genkit's runner.
func Register(g *genkit.Genkit, t *Tools) ([]ai.Tool, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if t == nil {
		return nil, fmt.Errorf("tools are required")
	}

	tools := []ai.Tool{
		genkit.DefineTool(g, RetrieveDocumentationName,
			"Search the documentation corpus using semantic similarity. "+
				"Returns the most relevant documentation chunks for the query, "+
				"formatted as titled sections. "+
				"Use this first for almost every question.",
			func(ctx *ai.ToolContext, in RetrieveInput) (string, error) {
				return t.RetrieveRelevantDocumentation(ctx, in)
			}),
		genkit.DefineTool(g, ListPagesName,
			"List the URL of every page in the documentation corpus. "+
				"Returns a sorted list of unique URLs. "+
				"Use this to discover pages before calling get_page_content; "+
				"never guess or fabricate a URL.",
			func(ctx *ai.ToolContext, in ListPagesInput) ([]string, error) {
				return t.ListDocumentationPages(ctx, in)
			}),
		genkit.DefineTool(g, GetPageContentName,
			"Fetch the complete content of one documentation page by its exact URL. "+
				"The URL must come from list_documentation_pages. "+
				"Returns the page title followed by its full text.",
			func(ctx *ai.ToolContext, in GetPageInput) (string, error) {
				return t.GetPageContent(ctx, in)
			}),
	}

	return tools, nil
}
