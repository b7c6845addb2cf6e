package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/koopa0/docent/internal/corpus"
	"github.com/koopa0/docent/internal/log"
)

type captureWriter struct {
	chunks []corpus.Chunk
	vecs   [][]float32
}

func (w *captureWriter) InsertChunk(_ context.Context, c corpus.Chunk, vec []float32) error {
	w.chunks = append(w.chunks, c)
	w.vecs = append(w.vecs, vec)
	return nil
}

type fixedEmbedder struct{}

func (fixedEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{0.5, 0.5}, nil
}

func TestStorePage(t *testing.T) {
	t.Parallel()

	writer := &captureWriter{}
	crawler, err := NewCrawler(CrawlerConfig{})
	if err != nil {
		t.Fatalf("NewCrawler: %v", err)
	}
	ing, err := New(Config{
		Store:     writer,
		Embedder:  fixedEmbedder{},
		Crawler:   crawler,
		Logger:    log.NewNop(),
		ChunkSize: 50,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	page := Page{
		URL:     "https://docs.example.com/start",
		Title:   "Getting Started",
		Content: "First paragraph of the page.\n\nSecond paragraph with more words in it.",
	}
	n, err := ing.storePage(context.Background(), page)
	if err != nil {
		t.Fatalf("storePage: %v", err)
	}
	if n != len(writer.chunks) {
		t.Errorf("reported %d chunks, stored %d", n, len(writer.chunks))
	}
	if len(writer.chunks) < 2 {
		t.Fatalf("stored %d chunks, want at least 2", len(writer.chunks))
	}

	first := writer.chunks[0]
	if first.Title != "Getting Started" || first.ChunkNumber != 0 {
		t.Errorf("first chunk = %q #%d", first.Title, first.ChunkNumber)
	}
	second := writer.chunks[1]
	if second.Title != "Getting Started - Part 2" || second.ChunkNumber != 1 {
		t.Errorf("second chunk = %q #%d", second.Title, second.ChunkNumber)
	}
	for i, c := range writer.chunks {
		if c.URL != page.URL {
			t.Errorf("chunk %d url = %q", i, c.URL)
		}
		if got := c.Metadata["chunk_count"]; got != len(writer.chunks) {
			t.Errorf("chunk %d chunk_count = %v", i, got)
		}
	}
}

func TestLoadSitemapFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "sitemap.xml")
	content := `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://docs.example.com/a</loc></url>
  <url><loc> https://docs.example.com/b </loc></url>
  <url><loc>https://docs.example.com/a</loc></url>
</urlset>`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write sitemap: %v", err)
	}

	urls, err := LoadSitemap(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadSitemap: %v", err)
	}
	want := []string{"https://docs.example.com/a", "https://docs.example.com/b"}
	if len(urls) != len(want) {
		t.Fatalf("urls = %v, want %v", urls, want)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d] = %q, want %q", i, urls[i], want[i])
		}
	}
}

func TestLoadSitemapOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<urlset><url><loc>https://docs.example.com/x</loc></url></urlset>`))
	}))
	defer srv.Close()

	urls, err := LoadSitemap(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("LoadSitemap: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://docs.example.com/x" {
		t.Errorf("urls = %v", urls)
	}
}

func TestLoadSitemapEmpty(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.xml")
	if err := os.WriteFile(path, []byte(`<urlset></urlset>`), 0o644); err != nil {
		t.Fatalf("write sitemap: %v", err)
	}
	if _, err := LoadSitemap(context.Background(), path); err == nil {
		t.Error("LoadSitemap on empty sitemap should fail")
	}
}
