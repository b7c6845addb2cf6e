// Package cmd contains the CLI entry points. main.go stays minimal; all
// flag handling and command routing lives here.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point for the docent CLI.
func Execute() error {
	// version and help must work even when config is broken.
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		}
	}

	logger := initLogger()
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if err := checkRequiredEnv(cfg); err != nil {
		return err
	}

	ctx := context.Background()

	if len(os.Args) > 1 {
		args := os.Args[2:]
		switch os.Args[1] {
		case "ask":
			return runAsk(ctx, cfg, logger, args)
		case "chat":
			return runChat(ctx, cfg, logger, args)
		case "crawl":
			return runCrawl(ctx, cfg, logger, args)
		case "pages":
			return runPages(ctx, cfg, logger)
		case "sessions":
			return runSessions(ctx, cfg, logger, args)
		case "mcp":
			return runMCP(ctx, cfg, logger)
		default:
			printHelp()
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	// Interactive chat is the default.
	return runChat(ctx, cfg, logger, nil)
}

// initLogger builds the structured logger.
//
// Logs go to stderr: stdout carries command output, and in MCP mode it is
// reserved for JSON-RPC. DEBUG=1 enables debug level.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level: logLevel(),
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// checkRequiredEnv verifies the API key for the configured provider.
// Ollama runs locally and needs no key.
func checkRequiredEnv(cfg *config.Config) error {
	var envVar string
	switch cfg.Provider {
	case config.ProviderOpenAI:
		envVar = "OPENAI_API_KEY"
	case config.ProviderOllama:
		return nil
	default:
		envVar = "GEMINI_API_KEY"
	}

	if os.Getenv(envVar) == "" {
		fmt.Fprintf(os.Stderr, "Error: %s environment variable not set\n\n", envVar)
		fmt.Fprintf(os.Stderr, "The %q provider requires an API key:\n", cfg.Provider)
		fmt.Fprintf(os.Stderr, "  export %s=your-api-key\n", envVar)
		return fmt.Errorf("%s not set", envVar)
	}
	return nil
}

func printVersionInfo() error {
	fmt.Printf("docent v%s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println("docent - documentation Q&A agent")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  docent                      Start interactive chat (default)")
	fmt.Println("  docent ask <question>       Ask one question and exit")
	fmt.Println("  docent chat                 Start interactive chat")
	fmt.Println("  docent crawl [sitemap]      Crawl a documentation site into the corpus")
	fmt.Println("  docent pages                List indexed documentation pages")
	fmt.Println("  docent sessions             List saved chat sessions")
	fmt.Println("  docent sessions delete <id> Delete a session")
	fmt.Println("  docent mcp                  Serve the retrieval tools over MCP (stdio)")
	fmt.Println("  docent version              Show version information")
	fmt.Println("  docent help                 Show this help")
	fmt.Println()
	fmt.Println("Chat commands:")
	fmt.Println("  /help            Show available commands")
	fmt.Println("  /exit, /quit     Exit")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  GEMINI_API_KEY   API key for the gemini provider (default)")
	fmt.Println("  OPENAI_API_KEY   API key for the openai provider")
	fmt.Println("  DATABASE_URL     PostgreSQL connection URL override")
	fmt.Println("  DEBUG            Enable debug logging")
}
