// Package app wires the application together: configuration, database,
// Genkit, retrieval and the agent. Setup builds everything in dependency
// order; Close tears it down in reverse.
package app

import (
	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/docent/internal/agent"
	"github.com/koopa0/docent/internal/config"
	"github.com/koopa0/docent/internal/corpus"
	"github.com/koopa0/docent/internal/embedding"
	"github.com/koopa0/docent/internal/ingest"
	"github.com/koopa0/docent/internal/log"
	"github.com/koopa0/docent/internal/retrieval"
	"github.com/koopa0/docent/internal/session"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger log.Logger

	Genkit   *genkit.Genkit
	DBPool   *pgxpool.Pool
	Embedder *embedding.Provider
	Corpus   *corpus.Store
	Engine   *retrieval.Engine
	Tools    *agent.Tools
	Expert   *agent.Expert
	Sessions *session.Store

	// Registered holds the Genkit tool references advertised to the model.
	Registered []ai.Tool

	otelCleanup func()
}

// Close releases all resources in reverse initialization order.
func (a *App) Close() error {
	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Debug("database pool closed")
	}
	if a.otelCleanup != nil {
		a.otelCleanup()
	}
	return nil
}

// NewIngestor builds the crawl pipeline on top of the app's embedder and
// corpus store. Built on demand because only the crawl command needs it.
func (a *App) NewIngestor() (*ingest.Ingestor, error) {
	crawler, err := ingest.NewCrawler(ingest.CrawlerConfig{
		Parallelism: a.Config.MaxConcurrentCrawls,
		Logger:      a.Logger,
	})
	if err != nil {
		return nil, err
	}
	return ingest.New(ingest.Config{
		Store:     a.Corpus,
		Embedder:  a.Embedder,
		Crawler:   crawler,
		Logger:    a.Logger,
		ChunkSize: a.Config.ChunkSize,
	})
}
