package cmd

import (
	"context"
	"fmt"

	"github.com/koopa0/docent/internal/app"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
)

// runPages prints the indexed page URLs, one per line.
func runPages(ctx context.Context, cfg *config.Config, logger log.Logger) error {
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	urls, err := a.Engine.PageURLs(ctx)
	if err != nil {
		return fmt.Errorf("listing pages: %w", err)
	}
	if len(urls) == 0 {
		fmt.Printf("no pages indexed for source %q, run `docent crawl` first\n", cfg.Source)
		return nil
	}

	for _, u := range urls {
		fmt.Println(u)
	}
	return nil
}
