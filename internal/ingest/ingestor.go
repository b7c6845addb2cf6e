// Package ingest crawls documentation sites and loads them into the corpus
// as embedded chunks.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/koopa0/docent/internal/corpus"
	"github.com/koopa0/docent/internal/log"
)

// Embedder produces one vector per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChunkWriter persists embedded chunks.
type ChunkWriter interface {
	InsertChunk(ctx context.Context, c corpus.Chunk, vec []float32) error
}

// Stats summarizes one ingest run.
type Stats struct {
	PagesFetched int
	PagesStored  int
	Chunks       int
}

// Config wires an Ingestor.
type Config struct {
	Store     ChunkWriter
	Embedder  Embedder
	Crawler   *Crawler
	Logger    log.Logger
	ChunkSize int // bytes per chunk (default: DefaultChunkSize)
}

// Ingestor runs the crawl, chunk, embed, store pipeline.
type Ingestor struct {
	store     ChunkWriter
	embedder  Embedder
	crawler   *Crawler
	logger    log.Logger
	chunkSize int
}

// New creates an Ingestor.
func New(cfg Config) (*Ingestor, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Crawler == nil {
		return nil, errors.New("crawler is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Ingestor{
		store:     cfg.Store,
		embedder:  cfg.Embedder,
		crawler:   cfg.Crawler,
		logger:    cfg.Logger,
		chunkSize: cfg.ChunkSize,
	}, nil
}

// Run loads the sitemap, crawls every page and stores its embedded chunks.
// Per-page failures are logged and skipped; only context cancellation
// aborts the run.
func (i *Ingestor) Run(ctx context.Context, sitemapLocation string) (Stats, error) {
	urls, err := LoadSitemap(ctx, sitemapLocation)
	if err != nil {
		return Stats{}, err
	}
	i.logger.Info("sitemap loaded", "location", sitemapLocation, "urls", len(urls))

	var mu sync.Mutex
	var pages []Page
	err = i.crawler.Fetch(urls, func(p Page) {
		mu.Lock()
		pages = append(pages, p)
		mu.Unlock()
	})
	if err != nil {
		return Stats{}, fmt.Errorf("crawl: %w", err)
	}

	// Crawl completion order is nondeterministic; sort so re-runs store
	// pages in a stable order.
	sort.Slice(pages, func(a, b int) bool { return pages[a].URL < pages[b].URL })

	stats := Stats{PagesFetched: len(pages)}
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		n, err := i.storePage(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			i.logger.Warn("storing page failed", "url", page.URL, "error", err)
			continue
		}
		stats.PagesStored++
		stats.Chunks += n
	}

	i.logger.Info("ingest complete",
		"pages_fetched", stats.PagesFetched,
		"pages_stored", stats.PagesStored,
		"chunks", stats.Chunks,
	)
	return stats, nil
}

// storePage splits one page, embeds each chunk and upserts it.
func (i *Ingestor) storePage(ctx context.Context, page Page) (int, error) {
	parts := SplitText(page.Content, i.chunkSize)
	if len(parts) == 0 {
		return 0, errors.New("page produced no chunks")
	}

	for idx, content := range parts {
		vec, err := i.embedder.Embed(ctx, content)
		if err != nil {
			return 0, fmt.Errorf("embed chunk %d: %w", idx, err)
		}

		chunk := corpus.Chunk{
			URL:         page.URL,
			ChunkNumber: idx,
			Title:       chunkTitle(page.Title, idx),
			Summary:     chunkSummary(content),
			Content:     content,
			Metadata: map[string]any{
				"chunk_count": len(parts),
			},
		}
		if err := i.store.InsertChunk(ctx, chunk, vec); err != nil {
			return 0, err
		}
	}

	return len(parts), nil
}

// chunkTitle names continuation chunks "{title} - Part {n}" so the page
// title can later be recovered by splitting on " - ".
func chunkTitle(pageTitle string, idx int) string {
	if idx == 0 {
		return pageTitle
	}
	return fmt.Sprintf("%s - Part %d", pageTitle, idx+1)
}

// chunkSummary takes the first line as a cheap summary, truncated on a
// rune boundary so the column never receives invalid UTF-8.
func chunkSummary(content string) string {
	line, _, _ := strings.Cut(content, "\n")
	line = strings.TrimSpace(line)
	const maxSummary = 200
	if len(line) > maxSummary {
		line = line[:runeCut(line, 0, maxSummary)]
	}
	return line
}
