package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

// DefaultBeyondChatsURL is the blog listing crawled by ScrapeSource
const DefaultBeyondChatsURL = "https://beyondchats.com/blogs"

var (
	lastPageSelectors = []string{
		".pagination a:last-child",
		".pagination li:last-child a",
		`nav[aria-label="pagination"] a:last-child`,
		".page-numbers:last-child",
	}
	activePageSelectors = []string{
		".pagination .active",
		".pagination li.active a",
		`nav[aria-label="pagination"] .current`,
	}
	entrySelectors = []string{
		"article",
		".post",
		".blog-post",
		".article-item",
		`[class*="article"]`,
		`[class*="post"]`,
	}
	entryTitleSelectors   = []string{"h1", "h2", "h3", ".title", `[class*="title"]`}
	entryContentSelectors = []string{".content", ".excerpt", "p", `[class*="content"]`}
	entryAuthorSelectors  = []string{".author", `[class*="author"]`, `[rel="author"]`}
	entryDateSelectors    = []string{"time", ".date", `[class*="date"]`}
)

// BeyondChats crawls the BeyondChats blog listing and returns the oldest
// entries, which live on the last page.
type BeyondChats struct {
	baseURL   string
	transport http.RoundTripper
	logger    *slog.Logger
}

// NewBeyondChats creates the strategy. An empty baseURL uses DefaultBeyondChatsURL.
func NewBeyondChats(baseURL string, logger *slog.Logger) *BeyondChats {
	if baseURL == "" {
		baseURL = DefaultBeyondChatsURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BeyondChats{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: otelhttp.NewTransport(http.DefaultTransport),
		logger:    logger,
	}
}

func (b *BeyondChats) Name() string { return "beyondchats" }

// CanHandle matches BeyondChats blog URLs and the configured listing
func (b *BeyondChats) CanHandle(rawURL string) bool {
	return strings.Contains(rawURL, "beyondchats.com/blogs") || strings.HasPrefix(rawURL, b.baseURL)
}

// Scrape reads the listing at rawURL, moves to its last page and extracts up
// to opts.MaxArticles entries
func (b *BeyondChats) Scrape(ctx context.Context, rawURL string, opts Options) ([]models.ScrapedArticle, error) {
	opts = opts.withDefaults()
	b.logger.Info("starting listing scrape", "url", rawURL, "max_articles", opts.MaxArticles)

	articles, err := b.scrape(ctx, rawURL, opts)
	if err != nil {
		b.logger.Error("listing scrape failed", "url", rawURL, "error", err)
		return nil, apperr.External("ingest", "failed to scrape BeyondChats blog", err)
	}

	b.logger.Info("scraped listing", "url", rawURL, "articles", len(articles))
	return articles, nil
}

func (b *BeyondChats) scrape(ctx context.Context, rawURL string, opts Options) ([]models.ScrapedArticle, error) {
	page, pageURL, err := b.fetchPage(ctx, rawURL, opts.Timeout)
	if err != nil {
		return nil, err
	}

	last := findLastPage(page)
	b.logger.Info("found listing pages", "pages", last)

	if last > 1 {
		page, pageURL, err = b.navigateToPage(ctx, last, opts.Timeout)
		if err != nil {
			return nil, err
		}
	}

	return extractEntries(page, pageURL, opts.MaxArticles, b.logger)
}

// fetchPage loads one listing page with a fresh collector
func (b *BeyondChats) fetchPage(ctx context.Context, pageURL string, timeout time.Duration) (*goquery.Selection, *url.URL, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	c := colly.NewCollector(
		colly.UserAgent(UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(timeout)
	c.WithTransport(b.transport)

	var (
		doc      *goquery.Selection
		finalURL *url.URL
		visitErr error
	)
	c.OnHTML("html", func(e *colly.HTMLElement) {
		if doc == nil {
			doc = e.DOM
			finalURL = e.Request.URL
		}
	})
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("fetching %s: status %d: %w", pageURL, r.StatusCode, err)
	})

	if err := c.Visit(pageURL); err != nil && visitErr == nil {
		visitErr = fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	c.Wait()

	if visitErr != nil {
		return nil, nil, visitErr
	}
	if doc == nil {
		return nil, nil, fmt.Errorf("no HTML document at %s", pageURL)
	}
	return doc, finalURL, nil
}

// navigateToPage tries the common pagination URL shapes until one lands on page n
func (b *BeyondChats) navigateToPage(ctx context.Context, n int, timeout time.Duration) (*goquery.Selection, *url.URL, error) {
	patterns := []string{
		fmt.Sprintf("%s?page=%d", b.baseURL, n),
		fmt.Sprintf("%s/page/%d", b.baseURL, n),
		fmt.Sprintf("%s?p=%d", b.baseURL, n),
	}

	for _, candidate := range patterns {
		page, pageURL, err := b.fetchPage(ctx, candidate, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			b.logger.Debug("pagination pattern failed", "url", candidate, "error", err)
			continue
		}
		if currentPage(page) == n {
			return page, pageURL, nil
		}
		b.logger.Debug("pagination pattern landed on another page", "url", candidate)
	}

	return nil, nil, fmt.Errorf("could not navigate to page %d", n)
}

// findLastPage reads the last pagination link. Listings without one have a single page.
func findLastPage(page *goquery.Selection) int {
	for _, selector := range lastPageSelectors {
		el := page.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if n, ok := parseLeadingInt(el.Text()); ok {
			return n
		}
	}
	return 1
}

func currentPage(page *goquery.Selection) int {
	for _, selector := range activePageSelectors {
		el := page.Find(selector).First()
		if el.Length() == 0 {
			continue
		}
		if n, ok := parseLeadingInt(el.Text()); ok {
			return n
		}
	}
	return 1
}

func extractEntries(page *goquery.Selection, pageURL *url.URL, maxArticles int, logger *slog.Logger) ([]models.ScrapedArticle, error) {
	var entries *goquery.Selection
	for _, selector := range entrySelectors {
		found := page.Find(selector)
		if found.Length() > 0 {
			logger.Info("found listing entries", "count", found.Length(), "selector", selector)
			entries = found
			break
		}
	}
	if entries == nil {
		return nil, fmt.Errorf("no articles found on page")
	}

	var articles []models.ScrapedArticle
	entries.EachWithBreak(func(i int, entry *goquery.Selection) bool {
		if i >= maxArticles {
			return false
		}

		article := extractEntry(entry, pageURL)
		if article.Title == "" || article.SourceURL == "" {
			logger.Debug("skipping entry without title or link", "index", i)
			return true
		}
		articles = append(articles, article)
		return true
	})

	return articles, nil
}

func extractEntry(entry *goquery.Selection, pageURL *url.URL) models.ScrapedArticle {
	title := untitled
	if el := firstMatch(entry, entryTitleSelectors); el != nil {
		if text := strings.TrimSpace(el.Text()); text != "" {
			title = text
		}
	}

	var content string
	if el := firstMatch(entry, entryContentSelectors); el != nil {
		content = strings.TrimSpace(el.Text())
	}

	var link string
	if href, ok := entry.Find("a").First().Attr("href"); ok && href != "" {
		link = resolveURL(pageURL, href)
	}

	var author string
	if el := firstMatch(entry, entryAuthorSelectors); el != nil {
		author = strings.TrimSpace(el.Text())
	}

	var published *time.Time
	if el := firstMatch(entry, entryDateSelectors); el != nil {
		raw, ok := el.Attr("datetime")
		if !ok || raw == "" {
			raw = el.Text()
		}
		published = parseDate(raw)
	}

	return models.ScrapedArticle{
		Title:       title,
		Content:     content,
		SourceURL:   link,
		Author:      author,
		PublishedAt: published,
	}
}

// firstMatch returns the first element of the first selector that matches
func firstMatch(s *goquery.Selection, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		if el := s.Find(selector).First(); el.Length() > 0 {
			return el
		}
	}
	return nil
}

func resolveURL(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
