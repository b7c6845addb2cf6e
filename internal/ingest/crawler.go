package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/koopa0/docent/internal/log"
)

// Page is one fetched documentation page reduced to readable text.
type Page struct {
	URL     string
	Title   string
	Content string
}

// DefaultCrawlParallelism bounds concurrent page fetches.
const DefaultCrawlParallelism = 5

// CrawlerConfig configures page fetching.
type CrawlerConfig struct {
	Parallelism int           // concurrent fetches (default: DefaultCrawlParallelism)
	Timeout     time.Duration // per-request timeout (default: 30s)
	UserAgent   string
	Logger      log.Logger
}

// Crawler fetches pages concurrently and extracts their readable content.
type Crawler struct {
	cfg    CrawlerConfig
	logger log.Logger
}

// NewCrawler creates a crawler.
func NewCrawler(cfg CrawlerConfig) (*Crawler, error) {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultCrawlParallelism
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "docent-crawler/1.0"
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Crawler{cfg: cfg, logger: cfg.Logger}, nil
}

// Fetch visits every URL and calls handle once per successfully extracted
// page. handle may be called from multiple goroutines concurrently.
// Individual page failures are logged and skipped.
func (c *Crawler) Fetch(urls []string, handle func(Page)) error {
	if len(urls) == 0 {
		return errors.New("no urls to fetch")
	}

	collector := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(c.cfg.UserAgent),
	)
	collector.SetRequestTimeout(c.cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
	}); err != nil {
		return fmt.Errorf("configure crawl limit: %w", err)
	}

	collector.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		page, err := extractPage(r.Body, r.Request.URL)
		if err != nil {
			c.logger.Warn("skipping page", "url", pageURL, "error", err)
			return
		}
		handle(page)
	})
	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	for _, u := range urls {
		if err := collector.Visit(u); err != nil {
			c.logger.Warn("visit rejected", "url", u, "error", err)
		}
	}
	collector.Wait()

	return nil
}

// extractPage reduces raw HTML to title and readable text.
// Readability does the heavy lifting; goquery supplies the <title> when
// readability cannot find one.
func extractPage(body []byte, pageURL *url.URL) (Page, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("extract content: %w", err)
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		if doc, derr := goquery.NewDocumentFromReader(bytes.NewReader(body)); derr == nil {
			title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
	if title == "" {
		title = pageURL.String()
	}

	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		return Page{}, errors.New("no readable content")
	}

	return Page{
		URL:     pageURL.String(),
		Title:   title,
		Content: content,
	}, nil
}
