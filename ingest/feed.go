package ingest

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

var feedSuffixes = []string{".rss", ".xml", ".atom", "/feed", "/rss", "/atom"}

// Feed reads RSS, Atom and JSON feeds
type Feed struct {
	parser *gofeed.Parser
	logger *slog.Logger
}

// NewFeed creates the feed strategy
func NewFeed(logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	parser := gofeed.NewParser()
	parser.UserAgent = UserAgent
	parser.Client = newHTTPClient()
	return &Feed{parser: parser, logger: logger}
}

func (f *Feed) Name() string { return "feed" }

// CanHandle matches URLs whose path looks like a feed
func (f *Feed) CanHandle(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	p := strings.TrimRight(strings.ToLower(u.Path), "/")
	for _, suffix := range feedSuffixes {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

// Scrape parses the feed and converts up to opts.MaxArticles items
func (f *Feed) Scrape(ctx context.Context, rawURL string, opts Options) ([]models.ScrapedArticle, error) {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(rawURL, ctx)
	if err != nil {
		f.logger.Error("failed to parse feed", "url", rawURL, "error", err)
		return nil, apperr.External("ingest", "failed to parse feed", err)
	}

	var articles []models.ScrapedArticle
	for _, item := range feed.Items {
		if len(articles) >= opts.MaxArticles {
			break
		}
		if article, ok := feedItem(item); ok {
			articles = append(articles, article)
		}
	}

	f.logger.Info("parsed feed", "url", rawURL, "items", len(feed.Items), "articles", len(articles))
	return articles, nil
}

func feedItem(item *gofeed.Item) (models.ScrapedArticle, bool) {
	link := item.Link
	if link == "" {
		link = item.GUID
	}
	title := strings.TrimSpace(item.Title)
	if link == "" || title == "" {
		return models.ScrapedArticle{}, false
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}

	var author string
	if item.Author != nil {
		author = item.Author.Name
	} else if len(item.Authors) > 0 && item.Authors[0] != nil {
		author = item.Authors[0].Name
	}

	var published *time.Time
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		published = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		published = &t
	}

	return models.ScrapedArticle{
		Title:       title,
		Content:     htmlToText(body),
		SourceURL:   link,
		Author:      strings.TrimSpace(author),
		PublishedAt: published,
	}, true
}

// htmlToText renders an HTML fragment as plain text with one blank line between blocks
func htmlToText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return normalizeText(fragment)
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, li, blockquote, pre, h1, h2, h3, h4, h5, h6").AfterHtml("\n")
	return normalizeText(doc.Text())
}
