// Package ingest discovers source articles through pluggable scraping
// strategies and stores them as ORIGINAL articles.
package ingest

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/docutag/enhancer/models"
)

const (
	// UserAgent is sent by every strategy
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

	DefaultMaxArticles = 5
	DefaultTimeout     = 30 * time.Second

	untitled = "Untitled"
)

// Options tune a single scrape
type Options struct {
	MaxArticles int
	Timeout     time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxArticles <= 0 {
		o.MaxArticles = DefaultMaxArticles
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	return o
}

// Strategy scrapes articles from the URLs it recognises
type Strategy interface {
	Name() string
	CanHandle(rawURL string) bool
	Scrape(ctx context.Context, rawURL string, opts Options) ([]models.ScrapedArticle, error)
}

// Registry picks the first strategy that can handle a URL
type Registry struct {
	strategies []Strategy
}

// NewRegistry creates a Registry. Strategies are tried in the given order,
// so a catch-all strategy belongs last.
func NewRegistry(strategies ...Strategy) *Registry {
	return &Registry{strategies: strategies}
}

// Resolve returns the strategy for rawURL
func (r *Registry) Resolve(rawURL string) (Strategy, error) {
	for _, s := range r.strategies {
		if s.CanHandle(rawURL) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no suitable scraping strategy found for %s", rawURL)
}

// Strategies returns the registered strategies in resolution order
func (r *Registry) Strategies() []Strategy {
	return r.strategies
}

func newHTTPClient() *http.Client {
	return &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
}

var leadingInt = regexp.MustCompile(`^[+-]?\d+`)

// parseLeadingInt reads the integer a string starts with, ignoring trailing text
func parseLeadingInt(s string) (int, bool) {
	m := leadingInt.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return n, true
}

var dateLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02 Jan 2006",
}

// parseDate accepts the date formats blogs commonly print. Unparseable input yields nil.
func parseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var spaceRuns = regexp.MustCompile(`[ \t\r\f\v]+`)

// normalizeText collapses spaces on each line and joins non-empty lines with blank lines
func normalizeText(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(spaceRuns.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n\n")
}
