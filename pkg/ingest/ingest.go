package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/xhad/scribe/internal/models"
	"github.com/xhad/scribe/internal/types"
)

// Ingester imports external reference documentation into the context
// store. It fetches a page, extracts the main content, and follows
// same-host links up to MaxDepth.
type Ingester struct {
	config  types.IngestConfig
	client  *http.Client
	limiter *rate.Limiter
}

// DocumentStore indexes processed chunks, normally the vector store.
type DocumentStore interface {
	Store(ctx context.Context, docs []models.ProcessedDocument) error
}

func NewWithConfig(config types.IngestConfig) *Ingester {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	return &Ingester{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

func New() *Ingester {
	return NewWithConfig(types.IngestConfig{})
}

// Fetch crawls baseURL and every same-host page reachable within
// MaxDepth, returning one document per page. Pages that fail to fetch
// are skipped, not fatal; only an unusable baseURL is an error.
func (ing *Ingester) Fetch(ctx context.Context, baseURL string) ([]models.Document, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %v", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %s", baseURL)
	}

	crawl := &crawl{
		ing:      ing,
		baseHost: parsed.Host,
		visited:  make(map[string]bool),
	}

	if err := crawl.page(ctx, baseURL, 0); err != nil {
		return nil, err
	}
	return crawl.documents, nil
}

// crawl holds the state of one Fetch call so an Ingester can be reused.
type crawl struct {
	ing       *Ingester
	baseHost  string
	visited   map[string]bool
	documents []models.Document
}

func (c *crawl) page(ctx context.Context, urlStr string, depth int) error {
	if depth > c.ing.config.MaxDepth || c.visited[urlStr] {
		return nil
	}
	if !c.shouldProcess(urlStr) {
		return nil
	}

	c.visited[urlStr] = true
	if c.ing.config.OnProgress != nil {
		c.ing.config.OnProgress(urlStr)
	}

	if err := c.ing.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return err
	}

	resp, err := c.ing.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return err
	}

	c.documents = append(c.documents, models.Document{
		Source:  urlStr,
		Title:   strings.TrimSpace(doc.Find("title").Text()),
		Content: extractMainContent(doc),
		Metadata: map[string]interface{}{
			"depth":        depth,
			"time":         time.Now(),
			"contentType":  resp.Header.Get("Content-Type"),
			"lastModified": resp.Header.Get("Last-Modified"),
		},
	})

	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, exists := selection.Attr("href")
		if !exists {
			return
		}

		absolute, err := url.Parse(href)
		if err != nil {
			return
		}
		if !absolute.IsAbs() {
			base, err := url.Parse(urlStr)
			if err != nil {
				return
			}
			absolute = base.ResolveReference(absolute)
		}
		absolute.Fragment = ""
		links = append(links, absolute.String())
	})

	for _, link := range links {
		// A broken child page should not abort the crawl, but a
		// cancelled context should.
		if err := c.page(ctx, link, depth+1); err != nil {
			if ctx.Err() != nil {
				return err
			}
		}
	}

	return nil
}

func (c *crawl) shouldProcess(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsed.Host != c.baseHost {
		return false
	}

	path := strings.ToLower(parsed.Path)
	validExt := false
	for _, ext := range c.ing.config.AllowedExtensions {
		if strings.HasSuffix(path, ext) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range c.ing.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

var contentSelectors = []string{
	"main",
	"article",
	".content",
	"#content",
	".documentation",
	"#documentation",
}

func extractMainContent(doc *goquery.Document) string {
	var content string
	for _, selector := range contentSelectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = selected.Text()
			break
		}
	}
	if content == "" {
		content = doc.Find("body").Text()
	}

	return cleanContent(content)
}

var noisePatterns = []string{
	"Cookie Policy",
	"Accept Cookies",
	"Privacy Policy",
	"Terms of Service",
}

func cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}
	return strings.TrimSpace(content)
}

// IngestInto fetches reference pages, chunks them, and indexes the
// chunks. Returns the number of pages imported.
func (ing *Ingester) IngestInto(ctx context.Context, baseURL string, processor types.Processor, store DocumentStore) (int, error) {
	docs, err := ing.Fetch(ctx, baseURL)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	processed, err := processor.Process(docs)
	if err != nil {
		return 0, fmt.Errorf("failed to process documents: %v", err)
	}

	if err := store.Store(ctx, processed); err != nil {
		return 0, fmt.Errorf("failed to index documents: %v", err)
	}

	return len(docs), nil
}
