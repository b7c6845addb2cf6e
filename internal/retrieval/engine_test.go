package retrieval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/koopa0/docent/internal/corpus"
	"github.com/koopa0/docent/internal/log"
)

// fakeStore returns canned data or errors, optionally blocking until
// released to observe concurrency.
type fakeStore struct {
	scored []corpus.ScoredChunk
	chunks []corpus.Chunk
	urls   []string
	err    error

	block   chan struct{} // non-nil: operations wait here
	inUse   atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeStore) enter(ctx context.Context) error {
	n := f.inUse.Add(1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	defer f.inUse.Add(-1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *fakeStore) SimilaritySearch(ctx context.Context, _ []float32, _ ...corpus.SearchOption) ([]corpus.ScoredChunk, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.scored, f.err
}

func (f *fakeStore) DistinctURLs(ctx context.Context) ([]string, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.urls, f.err
}

func (f *fakeStore) PageChunks(ctx context.Context, _ string) ([]corpus.Chunk, error) {
	if err := f.enter(ctx); err != nil {
		return nil, err
	}
	return f.chunks, f.err
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

func newEngine(t *testing.T, store ChunkStore) *Engine {
	t.Helper()
	e, err := NewEngine(Config{Store: store, Embedder: &fakeEmbedder{}, Logger: log.NewNop()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestRelevantDocumentationFormatting(t *testing.T) {
	t.Parallel()

	store := &fakeStore{scored: []corpus.ScoredChunk{
		{Chunk: corpus.Chunk{Title: "Agents", Content: "Agents run tools."}, Similarity: 0.9},
		{Chunk: corpus.Chunk{Title: "Models", Content: "Models generate text."}, Similarity: 0.8},
	}}

	got, err := newEngine(t, store).RelevantDocumentation(context.Background(), "how do agents work")
	if err != nil {
		t.Fatalf("RelevantDocumentation: %v", err)
	}

	want := "# Agents\n\nAgents run tools.\n\n---\n\n# Models\n\nModels generate text."
	if got != want {
		t.Errorf("formatted output = %q, want %q", got, want)
	}
}

func TestRelevantDocumentationNoResults(t *testing.T) {
	t.Parallel()

	got, err := newEngine(t, &fakeStore{}).RelevantDocumentation(context.Background(), "anything")
	if err != nil {
		t.Fatalf("RelevantDocumentation: %v", err)
	}
	if got != NoResultsMessage {
		t.Errorf("got %q, want %q", got, NoResultsMessage)
	}
}

func TestRelevantDocumentationStoreErrorBecomesSentinel(t *testing.T) {
	t.Parallel()

	store := &fakeStore{err: errors.New("connection refused")}
	got, err := newEngine(t, store).RelevantDocumentation(context.Background(), "anything")
	if err != nil {
		t.Fatalf("RelevantDocumentation returned error: %v", err)
	}
	if !strings.HasPrefix(got, "Error retrieving documentation:") {
		t.Errorf("got %q, want error sentinel prefix", got)
	}
	if !strings.Contains(got, "connection refused") {
		t.Errorf("sentinel %q should carry the cause", got)
	}
}

func TestRelevantDocumentationEmbedErrorBecomesSentinel(t *testing.T) {
	t.Parallel()

	e, err := NewEngine(Config{
		Store:    &fakeStore{},
		Embedder: &fakeEmbedder{err: errors.New("model offline")},
		Logger:   log.NewNop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	got, err := e.RelevantDocumentation(context.Background(), "anything")
	if err != nil {
		t.Fatalf("RelevantDocumentation returned error: %v", err)
	}
	if !strings.HasPrefix(got, "Error retrieving documentation:") {
		t.Errorf("got %q, want error sentinel prefix", got)
	}
}

func TestPageURLs(t *testing.T) {
	t.Parallel()

	t.Run("returns urls", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{urls: []string{"https://a", "https://b"}}
		urls, err := newEngine(t, store).PageURLs(context.Background())
		if err != nil {
			t.Fatalf("PageURLs: %v", err)
		}
		if len(urls) != 2 {
			t.Errorf("got %d urls, want 2", len(urls))
		}
	})

	t.Run("empty slice on store error", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{err: errors.New("down")}
		urls, err := newEngine(t, store).PageURLs(context.Background())
		if err != nil {
			t.Fatalf("PageURLs returned error: %v", err)
		}
		if urls == nil || len(urls) != 0 {
			t.Errorf("got %v, want empty non-nil slice", urls)
		}
	})
}

func TestPageContent(t *testing.T) {
	t.Parallel()

	t.Run("reconstructs page from chunks", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{chunks: []corpus.Chunk{
			{URL: "https://a", ChunkNumber: 0, Title: "A", Content: "Hello"},
			{URL: "https://a", ChunkNumber: 1, Title: "A - Part 2", Content: "World"},
		}}

		got, err := newEngine(t, store).PageContent(context.Background(), "https://a")
		if err != nil {
			t.Fatalf("PageContent: %v", err)
		}
		want := "# A\n\nHello\n\nWorld"
		if got != want {
			t.Errorf("PageContent = %q, want %q", got, want)
		}
	})

	t.Run("title keeps plain first chunk title", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{chunks: []corpus.Chunk{
			{Title: "Getting Started - Part 1", Content: "Intro"},
		}}

		got, err := newEngine(t, store).PageContent(context.Background(), "https://a")
		if err != nil {
			t.Fatalf("PageContent: %v", err)
		}
		if !strings.HasPrefix(got, "# Getting Started\n\n") {
			t.Errorf("PageContent = %q, want stripped title header", got)
		}
	})

	t.Run("no rows sentinel", func(t *testing.T) {
		t.Parallel()

		got, err := newEngine(t, &fakeStore{}).PageContent(context.Background(), "https://missing")
		if err != nil {
			t.Fatalf("PageContent: %v", err)
		}
		want := "No content found for URL: https://missing"
		if got != want {
			t.Errorf("PageContent = %q, want %q", got, want)
		}
	})

	t.Run("store error sentinel", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{err: errors.New("boom")}
		got, err := newEngine(t, store).PageContent(context.Background(), "https://a")
		if err != nil {
			t.Fatalf("PageContent: %v", err)
		}
		if !strings.HasPrefix(got, "Error retrieving page content:") {
			t.Errorf("PageContent = %q, want error sentinel prefix", got)
		}
	})
}

func TestConcurrencyCeiling(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &fakeStore{urls: []string{"https://a"}, block: make(chan struct{})}
	e, err := NewEngine(Config{
		Store:         store,
		Embedder:      &fakeEmbedder{},
		Logger:        log.NewNop(),
		MaxConcurrent: 2,
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	const callers = 6
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = e.PageURLs(context.Background())
		}()
	}

	// Give callers time to pile up on the semaphore, then release them.
	time.Sleep(100 * time.Millisecond)
	close(store.block)
	wg.Wait()

	if got := store.maxSeen.Load(); got > 2 {
		t.Errorf("max concurrent operations = %d, want <= 2", got)
	}
}

func TestCancellationReturnsError(t *testing.T) {
	t.Parallel()

	store := &fakeStore{block: make(chan struct{})}
	e := newEngine(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.PageContent(ctx, "https://a")
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("PageContent = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("canceled operation did not return")
	}
}
