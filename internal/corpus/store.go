package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// queryTimeout bounds individual store queries.
const queryTimeout = 10 * time.Second

// chunkCols is the standard SELECT column list for scanChunks.
const chunkCols = `id, url, chunk_number, title, summary, content, source, metadata, created_at`

// DefaultLimit is the similarity search result count when no option is given.
const DefaultLimit = 5

// MaxLimit caps similarity search result counts.
const MaxLimit = 50

// Store provides access to the documentation chunk corpus.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     querier
	source string
	logger *slog.Logger
}

// NewStore creates a corpus Store scoped to one source tag.
// All reads and writes are filtered by source, so several corpora can share
// the same table.
func NewStore(db querier, source string, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, source: source, logger: logger}, nil
}

// SearchOption customizes SimilaritySearch behavior.
type SearchOption func(*searchOptions)

type searchOptions struct {
	limit int
}

// WithLimit sets the maximum number of results, capped at MaxLimit. Zero is
// honored and yields no results; negative values fall back to DefaultLimit.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) {
		if n < 0 {
			n = DefaultLimit
		}
		if n > MaxLimit {
			n = MaxLimit
		}
		o.limit = n
	}
}

// SimilaritySearch returns the chunks nearest to vec by cosine distance.
//
// Ordering is deterministic: distance ascending, then chunk_number, then url,
// so equal-similarity rows always come back in the same order.
func (s *Store) SimilaritySearch(ctx context.Context, vec []float32, opts ...SearchOption) ([]ScoredChunk, error) {
	o := searchOptions{limit: DefaultLimit}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT `+chunkCols+`, 1 - (embedding <=> $1) AS similarity
		FROM site_pages
		WHERE source = $2 AND embedding IS NOT NULL
		ORDER BY embedding <=> $1, chunk_number, url
		LIMIT $3`,
		pgvector.NewVector(vec), s.source, o.limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var results []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := scanChunk(rows, &sc.Chunk, &sc.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}

	return results, nil
}

// DistinctURLs returns the sorted set of unique page URLs in the corpus.
func (s *Store) DistinctURLs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT url FROM site_pages
		WHERE source = $1
		ORDER BY url`, s.source)
	if err != nil {
		return nil, fmt.Errorf("listing urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scanning url: %w", err)
		}
		urls = append(urls, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading urls: %w", err)
	}

	return urls, nil
}

// PageChunks returns all chunks for one URL ordered by chunk_number,
// suitable for reconstructing the full page.
func (s *Store) PageChunks(ctx context.Context, url string) ([]Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT `+chunkCols+`
		FROM site_pages
		WHERE source = $1 AND url = $2
		ORDER BY chunk_number`, s.source, url)
	if err != nil {
		return nil, fmt.Errorf("fetching page chunks: %w", err)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		if err := scanChunk(rows, &c, nil); err != nil {
			return nil, fmt.Errorf("scanning page chunk: %w", err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading page chunks: %w", err)
	}

	return chunks, nil
}

// InsertChunk upserts one chunk with its embedding.
// Re-crawling a page overwrites its chunks in place via the
// (url, chunk_number, source) unique constraint.
func (s *Store) InsertChunk(ctx context.Context, c Chunk, vec []float32) error {
	if c.URL == "" {
		return fmt.Errorf("chunk url is required")
	}
	if c.Content == "" {
		return fmt.Errorf("chunk content is required")
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	metadata := c.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO site_pages (url, chunk_number, title, summary, content, source, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (url, chunk_number, source) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`,
		c.URL, c.ChunkNumber, c.Title, c.Summary, c.Content, s.source, metadata, pgvector.NewVector(vec))
	if err != nil {
		return fmt.Errorf("inserting chunk %s#%d: %w", c.URL, c.ChunkNumber, err)
	}

	return nil
}

// Count returns the number of chunks in the corpus.
func (s *Store) Count(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var n int64
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM site_pages WHERE source = $1`, s.source).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

// scanChunk reads one row into c. When similarity is non-nil, the row is
// expected to carry a trailing similarity column.
func scanChunk(row pgx.Row, c *Chunk, similarity *float64) error {
	dest := []any{&c.ID, &c.URL, &c.ChunkNumber, &c.Title, &c.Summary, &c.Content, &c.Source, &c.Metadata, &c.CreatedAt}
	if similarity != nil {
		dest = append(dest, similarity)
	}
	return row.Scan(dest...)
}
