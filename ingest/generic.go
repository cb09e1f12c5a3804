package ingest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

const (
	contentNotAvailable = "Content not available"

	minContainerLength = 100
	minParagraphLength = 20
	maxPageBytes       = 10 << 20
)

var genericContentSelectors = []string{
	"article",
	".article-content",
	".post-content",
	".entry-content",
	"main",
	`[role="main"]`,
	".content",
}

const genericUnwanted = "script, style, nav, header, footer, aside, .ad, .advertisement"

// Generic scrapes a single article from any page
type Generic struct {
	client    *http.Client
	robots    *RobotsPolicy
	converter *md.Converter
	logger    *slog.Logger
}

// NewGeneric creates the catch-all strategy. When respectRobots is set,
// pages disallowed by robots.txt are refused.
func NewGeneric(respectRobots bool, logger *slog.Logger) *Generic {
	if logger == nil {
		logger = slog.Default()
	}
	client := newHTTPClient()

	g := &Generic{
		client:    client,
		converter: md.NewConverter("", true, nil),
		logger:    logger,
	}
	if respectRobots {
		g.robots = NewRobotsPolicy(client, UserAgent, logger)
	}
	return g
}

func (g *Generic) Name() string { return "generic" }

// CanHandle accepts every URL
func (g *Generic) CanHandle(string) bool { return true }

// Scrape fetches rawURL and extracts one article from it
func (g *Generic) Scrape(ctx context.Context, rawURL string, opts Options) ([]models.ScrapedArticle, error) {
	opts = opts.withDefaults()
	g.logger.Info("scraping article", "url", rawURL)

	article, err := g.scrape(ctx, rawURL, opts)
	if err != nil {
		g.logger.Error("failed to scrape", "url", rawURL, "error", err)
		return nil, apperr.External("ingest", "Failed to scrape article", err)
	}

	g.logger.Info("scraped article", "url", rawURL, "title", article.Title)
	return []models.ScrapedArticle{*article}, nil
}

func (g *Generic) scrape(ctx context.Context, rawURL string, opts Options) (*models.ScrapedArticle, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL: %s", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if g.robots != nil && !g.robots.Allowed(ctx, pageURL) {
		return nil, fmt.Errorf("disallowed by robots.txt")
	}

	body, err := g.fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	title := strings.TrimSpace(doc.Find("h1").First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
		title = strings.TrimSpace(title)
	}
	if title == "" {
		title = strings.TrimSpace(doc.Find("title").Text())
	}
	if title == "" {
		title = untitled
	}

	author := genericAuthor(doc)
	published := parseDate(genericDate(doc))
	content := g.mainContent(doc, body, pageURL)

	return &models.ScrapedArticle{
		Title:       title,
		Content:     content,
		SourceURL:   rawURL,
		Author:      author,
		PublishedAt: published,
	}, nil
}

func (g *Generic) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

// mainContent tries known containers, then long paragraphs, then the
// readability article converted to markdown
func (g *Generic) mainContent(doc *goquery.Document, body []byte, pageURL *url.URL) string {
	for _, selector := range genericContentSelectors {
		el := doc.Find(selector)
		if el.Length() == 0 {
			continue
		}
		el.Find(genericUnwanted).Remove()
		if text := strings.TrimSpace(el.Text()); utf8.RuneCountInString(text) > minContainerLength {
			return text
		}
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); utf8.RuneCountInString(text) > minParagraphLength {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n")
	}

	if content := g.readabilityContent(body, pageURL); content != "" {
		return content
	}
	return contentNotAvailable
}

func (g *Generic) readabilityContent(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		g.logger.Debug("readability failed", "url", pageURL.String(), "error", err)
		return ""
	}
	if strings.TrimSpace(article.Content) == "" {
		return strings.TrimSpace(article.TextContent)
	}

	markdown, err := g.converter.ConvertString(article.Content)
	if err != nil {
		g.logger.Debug("markdown conversion failed", "url", pageURL.String(), "error", err)
		return strings.TrimSpace(article.TextContent)
	}
	return strings.TrimSpace(markdown)
}

func genericAuthor(doc *goquery.Document) string {
	if author, ok := doc.Find(`meta[name="author"]`).Attr("content"); ok && strings.TrimSpace(author) != "" {
		return strings.TrimSpace(author)
	}
	if author := strings.TrimSpace(doc.Find(`[rel="author"]`).Text()); author != "" {
		return author
	}
	return strings.TrimSpace(doc.Find(".author").Text())
}

func genericDate(doc *goquery.Document) string {
	if published, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok && published != "" {
		return published
	}
	if datetime, ok := doc.Find("time").First().Attr("datetime"); ok && datetime != "" {
		return datetime
	}
	return strings.TrimSpace(doc.Find(".date").Text())
}
