// Package corpus manages the documentation chunk store backed by
// PostgreSQL + pgvector.
package corpus

import (
	"time"
)

// Chunk is one slice of a documentation page.
// Pages are split at ingestion time; chunk_number orders the slices so the
// full page can be reconstructed.
type Chunk struct {
	ID          int64
	URL         string
	ChunkNumber int
	Title       string
	Summary     string
	Content     string
	Source      string
	Metadata    map[string]any
	CreatedAt   time.Time
}

// ScoredChunk is a chunk with its cosine similarity to a query vector.
// Similarity is 1 - cosine distance, in [0, 1] for normalized vectors.
type ScoredChunk struct {
	Chunk
	Similarity float64
}
