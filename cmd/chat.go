package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/koopa0/docent/internal/app"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
	"github.com/koopa0/docent/internal/session"
)

// runChat is the interactive REPL. A session is created lazily on the first
// question, and each completed turn is persisted before the next prompt.
// "docent chat --resume <id>" continues an existing session.
func runChat(ctx context.Context, cfg *config.Config, logger log.Logger, args []string) error {
	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("closing application", "error", err)
		}
	}()

	var (
		sess    *session.Session
		history []*ai.Message
	)

	if id, ok, err := resumeID(args); err != nil {
		return err
	} else if ok {
		resumed, err := a.Sessions.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("resuming session: %w", err)
		}
		sess = &resumed
		history, err = a.Sessions.History(ctx, id, int(cfg.MaxHistoryMessages))
		if err != nil {
			return fmt.Errorf("loading history: %w", err)
		}
		fmt.Printf("resumed session %s: %s (%d messages)\n", sess.ID, sess.Title, len(history))
	}

	fmt.Printf("docent v%s - ask about the documentation (/help for commands)\n\n", AppVersion)

	reader := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !reader.Scan() {
			if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
				return fmt.Errorf("reading input: %w", err)
			}
			fmt.Println()
			return nil
		}

		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := handleChatCommand(line, sess); done {
				return nil
			}
			continue
		}

		if sess == nil {
			created, err := a.Sessions.Create(ctx, line)
			if err != nil {
				// Degrade to an unpersisted conversation.
				logger.Warn("creating session failed, history will not be saved", "error", err)
			} else {
				sess = &created
			}
		}

		resp, err := a.Expert.Ask(ctx, line, history)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}

		fmt.Println()
		fmt.Println(resp.Answer)
		fmt.Println()

		history = append(history, resp.NewMessages...)
		if sess != nil {
			if err := a.Sessions.AppendMessages(ctx, sess.ID, resp.NewMessages); err != nil {
				logger.Warn("persisting turn failed", "session_id", sess.ID, "error", err)
			}
		}
	}
}

// resumeID parses the optional "--resume <id>" flag.
func resumeID(args []string) (uuid.UUID, bool, error) {
	for i, arg := range args {
		if arg != "--resume" && arg != "-r" {
			continue
		}
		if i+1 >= len(args) {
			return uuid.Nil, false, errors.New("usage: docent chat --resume <session-id>")
		}
		id, err := uuid.Parse(args[i+1])
		if err != nil {
			return uuid.Nil, false, fmt.Errorf("invalid session id %q: %w", args[i+1], err)
		}
		return id, true, nil
	}
	return uuid.Nil, false, nil
}

// handleChatCommand processes a /command line. Returns true when the REPL
// should exit.
func handleChatCommand(line string, sess *session.Session) bool {
	switch line {
	case "/exit", "/quit":
		return true
	case "/session":
		if sess == nil {
			fmt.Println("no session yet, ask a question first")
		} else {
			fmt.Printf("session %s: %s\n", sess.ID, sess.Title)
		}
	case "/help":
		fmt.Println("Commands:")
		fmt.Println("  /session         Show the current session")
		fmt.Println("  /help            Show this help")
		fmt.Println("  /exit, /quit     Exit")
	default:
		fmt.Printf("unknown command %s, try /help\n", line)
	}
	return false
}
