package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/koopa0/docent/internal/app"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
)

// runAsk answers one question and exits. No session is created.
func runAsk(ctx context.Context, cfg *config.Config, logger log.Logger, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return errors.New("usage: docent ask <question>")
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

	resp, err := a.Expert.Ask(ctx, question, nil)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(resp.Answer)
	return nil
}
