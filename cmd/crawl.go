package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/koopa0/docent/internal/app"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
)

// runCrawl ingests a documentation site into the corpus. The sitemap comes
// from the first argument or from the sitemap_url config key.
func runCrawl(ctx context.Context, cfg *config.Config, logger log.Logger, args []string) error {
	sitemap := cfg.SitemapURL
	if len(args) > 0 {
		sitemap = args[0]
	}
	if sitemap == "" {
		return errors.New("no sitemap given: pass one as an argument or set sitemap_url in the config")
	}

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	ing, err := a.NewIngestor()
	if err != nil {
		return fmt.Errorf("creating ingestor: %w", err)
	}

	fmt.Printf("crawling %s into source %q...\n", sitemap, cfg.Source)
	stats, err := ing.Run(ctx, sitemap)
	if err != nil {
		return fmt.Errorf("crawling: %w", err)
	}

	fmt.Printf("done: %d pages fetched, %d stored, %d chunks\n",
		stats.PagesFetched, stats.PagesStored, stats.Chunks)

	total, err := a.Corpus.Count(ctx)
	if err != nil {
		logger.Warn("counting corpus chunks", "error", err)
		return nil
	}
	fmt.Printf("source %q now holds %d chunks\n", cfg.Source, total)
	return nil
}
