package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/koopa0/docent/internal/app"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
)

// runSessions lists or deletes saved chat sessions.
func runSessions(ctx context.Context, cfg *config.Config, logger log.Logger, args []string) error {
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	if len(args) > 0 && args[0] == "delete" {
		if len(args) < 2 {
			return errors.New("usage: docent sessions delete <session-id>")
		}
		id, err := uuid.Parse(args[1])
		if err != nil {
			return fmt.Errorf("invalid session id %q: %w", args[1], err)
		}
		if err := a.Sessions.Delete(ctx, id); err != nil {
			return fmt.Errorf("deleting session: %w", err)
		}
		fmt.Printf("deleted session %s\n", id)
		return nil
	}

	sessions, err := a.Sessions.List(ctx)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	if len(sessions) == 0 {
		fmt.Println("no sessions yet, start one with `docent chat`")
		return nil
	}

	for _, s := range sessions {
		fmt.Printf("%s  %s  %s\n", s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), s.Title)
	}
	return nil
}
