// Package extractor fetches a competing article and pulls its readable body
// out of the page with layered goquery heuristics.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

const (
	// UserAgent is sent with every page fetch
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// ContentNotAvailable is returned when no tier finds enough text
	ContentNotAvailable = "Content not available"

	// UntitledTitle is used when a page has no usable title
	UntitledTitle = "Untitled"

	minBlockLength     = 200
	minParagraphLength = 50
)

var contentSelectors = []string{
	"article",
	`[role="main"]`,
	"main",
	".article-content",
	".post-content",
	".entry-content",
	".content",
	"#content",
	".article-body",
	".post-body",
}

const unwantedSelector = `script, style, nav, header, footer, aside, iframe, .ad, .advertisement, .social-share, .comments, .related-posts, [class*="sidebar"], [class*="widget"]`

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// Config contains extractor configuration
type Config struct {
	HTTPTimeout time.Duration
}

// DefaultConfig returns default extractor configuration
func DefaultConfig() Config {
	return Config{
		HTTPTimeout: 15 * time.Second,
	}
}

// Extractor fetches pages and extracts their main content
type Extractor struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a new Extractor
func New(config Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if config.HTTPTimeout <= 0 {
		config.HTTPTimeout = DefaultConfig().HTTPTimeout
	}

	return &Extractor{
		config: config,
		httpClient: &http.Client{
			Timeout:   config.HTTPTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// ScrapeArticle fetches targetURL and returns its title and cleaned body text
func (e *Extractor) ScrapeArticle(ctx context.Context, targetURL string) (*models.ScrapedContent, error) {
	e.logger.Info("scraping content", "url", targetURL)

	doc, err := e.fetch(ctx, targetURL)
	if err != nil {
		e.logger.Error("failed to scrape", "url", targetURL, "error", err)
		return nil, apperr.External("extractor", "Failed to scrape article", err)
	}

	title := ExtractTitle(doc)
	if title == "" {
		title = UntitledTitle
	}
	content := ExtractMainContent(goquery.NewDocumentFromNode(doc))

	e.logger.Info("scraped content", "url", targetURL, "characters", len(content))

	return &models.ScrapedContent{
		Title:   title,
		Content: content,
		URL:     targetURL,
	}, nil
}

func (e *Extractor) fetch(ctx context.Context, targetURL string) (*html.Node, error) {
	parsedURL, err := url.Parse(targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("URL must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// ExtractTitle returns the page title.
// Priority: first h1 > og:title > title tag. Empty when none has text.
func ExtractTitle(n *html.Node) string {
	var ogTitle, h1Title, htmlTitle string
	var seenH1, seenTitle bool

	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				var property, content string
				for _, attr := range n.Attr {
					switch attr.Key {
					case "property":
						property = strings.ToLower(attr.Val)
					case "content":
						content = attr.Val
					}
				}
				if property == "og:title" && ogTitle == "" {
					ogTitle = content
				}
			case "h1":
				if !seenH1 {
					seenH1 = true
					h1Title = extractTextFromNode(n)
				}
			case "title":
				if !seenTitle {
					seenTitle = true
					htmlTitle = extractTextFromNode(n)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)

	for _, candidate := range []string{h1Title, ogTitle, htmlTitle} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// extractTextFromNode extracts all text content from a single node and its children
func extractTextFromNode(n *html.Node) string {
	var parts []string
	var f func(*html.Node)
	f = func(n *html.Node) {
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			f(c)
		}
	}
	f(n)
	return strings.Join(parts, " ")
}

// ExtractMainContent runs the three extraction tiers in order: known
// article containers, the largest text block, then all long paragraphs.
func ExtractMainContent(doc *goquery.Document) string {
	for _, selector := range contentSelectors {
		matches := doc.Find(selector)
		if matches.Length() == 0 {
			continue
		}
		if content := cleanContent(matches); textLength(content) > minBlockLength {
			return content
		}
	}

	if content, ok := largestBlock(doc); ok {
		return content
	}

	var paragraphs []string
	doc.Find("p").Each(func(_ int, p *goquery.Selection) {
		text := strings.TrimSpace(p.Text())
		if textLength(text) > minParagraphLength {
			paragraphs = append(paragraphs, text)
		}
	})
	if len(paragraphs) > 0 {
		return strings.Join(paragraphs, "\n\n")
	}

	return ContentNotAvailable
}

type textBlock struct {
	sel    *goquery.Selection
	length int
}

// largestBlock measures each div, section and article without its nested
// blocks and cleans the full element of the longest one
func largestBlock(doc *goquery.Document) (string, bool) {
	var blocks []textBlock
	doc.Find("div, section, article").Each(func(_ int, s *goquery.Selection) {
		clone := s.Clone()
		clone.Find("div, section, article").Remove()
		length := textLength(strings.TrimSpace(clone.Text()))
		if length > minBlockLength {
			blocks = append(blocks, textBlock{sel: s, length: length})
		}
	})
	if len(blocks) == 0 {
		return "", false
	}

	sort.SliceStable(blocks, func(i, j int) bool {
		return blocks[i].length > blocks[j].length
	})

	content := cleanContent(blocks[0].sel)
	if textLength(content) > minBlockLength {
		return content, true
	}
	return "", false
}

// cleanContent strips boilerplate elements from a copy of sel and
// normalizes its text to blank-line separated lines
func cleanContent(sel *goquery.Selection) string {
	clone := sel.Clone()
	clone.Find(unwantedSelector).Remove()
	return normalizeLines(clone.Text())
}

func normalizeLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}
	joined := strings.Join(kept, "\n\n")
	joined = excessNewlines.ReplaceAllString(joined, "\n\n")
	return strings.TrimSpace(joined)
}

func textLength(s string) int {
	return utf8.RuneCountInString(s)
}
