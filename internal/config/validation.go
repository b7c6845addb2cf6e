package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validSSLModes are the SSL modes accepted by libpq-compatible drivers.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate checks the configuration for correctness.
// Returns a wrapped sentinel error on the first violation (fail-fast).
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGemini, ProviderOllama, ProviderOpenAI:
	default:
		return fmt.Errorf("%w: %q (expected gemini, ollama, or openai)", ErrInvalidProvider, c.Provider)
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model name is empty", ErrInvalidModelName)
	}

	if c.Provider == ProviderOllama {
		u, err := url.Parse(c.OllamaHost)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidOllamaHost, c.OllamaHost)
		}
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model is empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 4096 {
		return fmt.Errorf("%w: %d (expected 1-4096)", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}

	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("%w: source tag is empty", ErrInvalidSource)
	}
	if c.MatchCount < 1 || c.MatchCount > 50 {
		return fmt.Errorf("%w: %d (expected 1-50)", ErrInvalidMatchCount, c.MatchCount)
	}
	if c.MaxToolRounds < 0 || c.MaxToolRounds > 10 {
		return fmt.Errorf("%w: %d (expected 0-10)", ErrInvalidMaxToolRounds, c.MaxToolRounds)
	}
	if c.MaxConcurrentRetrievals < 1 || c.MaxConcurrentRetrievals > 100 {
		return fmt.Errorf("%w: max_concurrent_retrievals %d (expected 1-100)", ErrInvalidMatchCount, c.MaxConcurrentRetrievals)
	}

	if c.MaxHistoryMessages < 1 || c.MaxHistoryMessages > MaxAllowedHistoryMessages {
		return fmt.Errorf("invalid max_history_messages: %d (expected 1-%d)", c.MaxHistoryMessages, MaxAllowedHistoryMessages)
	}

	if c.ChunkSize < 100 || c.ChunkSize > 100_000 {
		return fmt.Errorf("%w: %d (expected 100-100000)", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.MaxConcurrentCrawls < 1 || c.MaxConcurrentCrawls > 50 {
		return fmt.Errorf("invalid max_concurrent_crawls: %d (expected 1-50)", c.MaxConcurrentCrawls)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	return nil
}
