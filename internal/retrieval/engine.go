// Package retrieval turns corpus searches into the formatted text blocks
// the agent's tools hand to the model.
//
// Every operation degrades to a sentinel string instead of failing: the
// model can read "No relevant documentation found." and act on it, whereas a
// raw error would abort the whole turn. Only context cancellation surfaces
// as an error, so canceled turns discard partial results.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/koopa0/docent/internal/corpus"
)

// Sentinel messages returned to the model in place of errors.
const (
	// NoResultsMessage is returned when similarity search matches nothing.
	NoResultsMessage = "No relevant documentation found."

	// chunkSeparator joins formatted chunks in retrieval output.
	chunkSeparator = "\n\n---\n\n"
)

// DefaultMaxConcurrent bounds in-flight retrieval operations when no value
// is configured.
const DefaultMaxConcurrent = 5

// ChunkStore is the corpus access the engine needs, satisfied by
// *corpus.Store.
type ChunkStore interface {
	SimilaritySearch(ctx context.Context, vec []float32, opts ...corpus.SearchOption) ([]corpus.ScoredChunk, error)
	DistinctURLs(ctx context.Context) ([]string, error)
	PageChunks(ctx context.Context, url string) ([]corpus.Chunk, error)
}

// Embedder produces query vectors, satisfied by *embedding.Provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config contains all required parameters for the retrieval Engine.
type Config struct {
	Store    ChunkStore
	Embedder Embedder
	Logger   *slog.Logger

	// MatchCount is the number of chunks similarity search returns
	// (default corpus.DefaultLimit).
	MatchCount int

	// MaxConcurrent bounds in-flight operations (default DefaultMaxConcurrent).
	MaxConcurrent int
}

// Engine executes the three retrieval operations exposed as agent tools.
//
// Engine is safe for concurrent use; a semaphore caps how many operations
// run at once so a burst of turns cannot exhaust the database pool.
type Engine struct {
	store      ChunkStore
	embedder   Embedder
	logger     *slog.Logger
	matchCount int
	sem        chan struct{}
}

// NewEngine creates a retrieval Engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MatchCount <= 0 {
		cfg.MatchCount = corpus.DefaultLimit
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}

	return &Engine{
		store:      cfg.Store,
		embedder:   cfg.Embedder,
		logger:     cfg.Logger,
		matchCount: cfg.MatchCount,
		sem:        make(chan struct{}, cfg.MaxConcurrent),
	}, nil
}

// acquire claims a semaphore slot, waiting until one frees or ctx is done.
func (e *Engine) acquire(ctx context.Context) (release func(), err error) {
	select {
	case e.sem <- struct{}{}:
		return func() { <-e.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RelevantDocumentation embeds the query, runs similarity search, and
// formats the top chunks as "# {title}\n\n{content}" blocks separated by
// "---" rules.
//
// Failures come back as a sentinel string the model can reason about, never
// as an error; only context cancellation returns err.
func (e *Engine) RelevantDocumentation(ctx context.Context, query string) (string, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.logger.Warn("embedding query failed", "error", err)
		return fmt.Sprintf("Error retrieving documentation: %v", err), nil
	}

	chunks, err := e.store.SimilaritySearch(ctx, vec, corpus.WithLimit(e.matchCount))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.logger.Warn("similarity search failed", "error", err)
		return fmt.Sprintf("Error retrieving documentation: %v", err), nil
	}

	if len(chunks) == 0 {
		return NoResultsMessage, nil
	}

	blocks := make([]string, len(chunks))
	for i, c := range chunks {
		blocks[i] = fmt.Sprintf("# %s\n\n%s", c.Title, c.Content)
	}

	e.logger.Debug("retrieved documentation", "query_len", len(query), "chunks", len(chunks))
	return strings.Join(blocks, chunkSeparator), nil
}

// PageURLs returns the sorted unique page URLs in the corpus.
//
// On store failure it returns an empty slice, not an error: an empty page
// index reads as "nothing available" to the model, which is the safe
// degradation. Only context cancellation returns err.
func (e *Engine) PageURLs(ctx context.Context) ([]string, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	urls, err := e.store.DistinctURLs(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		e.logger.Warn("listing page urls failed", "error", err)
		return []string{}, nil
	}
	if urls == nil {
		urls = []string{}
	}

	return urls, nil
}

// PageContent reconstructs a full page from its chunks.
//
// The page title is the first chunk's title with any " - Part N" style
// suffix stripped (ingestion appends those to continuation chunks). Output
// is "# {title}" followed by each chunk's content, joined by blank lines.
func (e *Engine) PageContent(ctx context.Context, url string) (string, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	chunks, err := e.store.PageChunks(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		e.logger.Warn("fetching page content failed", "url", url, "error", err)
		return fmt.Sprintf("Error retrieving page content: %v", err), nil
	}

	if len(chunks) == 0 {
		return fmt.Sprintf("No content found for URL: %s", url), nil
	}

	title := pageTitle(chunks[0].Title)
	parts := make([]string, 0, len(chunks)+1)
	parts = append(parts, "# "+title)
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}

	return strings.Join(parts, "\n\n"), nil
}

// pageTitle strips the chunk-part suffix from a chunk title.
// "Getting Started - Part 3" -> "Getting Started".
func pageTitle(chunkTitle string) string {
	title, _, _ := strings.Cut(chunkTitle, " - ")
	return title
}
