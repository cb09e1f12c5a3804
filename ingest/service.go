package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/metrics"
	"github.com/docutag/enhancer/models"
)

// ArticleCreator stores newly scraped articles
type ArticleCreator interface {
	CreateArticle(ctx context.Context, article *models.Article) error
}

// OriginalArchiver keeps a copy of scraped articles. Failures are logged only.
type OriginalArchiver interface {
	SaveOriginal(ctx context.Context, article *models.Article) (string, error)
}

// Config contains ingestion configuration
type Config struct {
	SourceURL   string // listing crawled by ScrapeSource
	MaxArticles int
	Timeout     time.Duration
}

// DefaultConfig returns default ingestion configuration
func DefaultConfig() Config {
	return Config{
		SourceURL:   DefaultBeyondChatsURL,
		MaxArticles: DefaultMaxArticles,
		Timeout:     DefaultTimeout,
	}
}

// Service scrapes articles and stores them as ORIGINAL
type Service struct {
	config   Config
	registry *Registry
	store    ArticleCreator
	archive  OriginalArchiver
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewService creates a Service. archive and m may be nil.
func NewService(config Config, registry *Registry, store ArticleCreator, archive OriginalArchiver, m *metrics.Metrics, logger *slog.Logger) *Service {
	defaults := DefaultConfig()
	if config.SourceURL == "" {
		config.SourceURL = defaults.SourceURL
	}
	if config.MaxArticles <= 0 {
		config.MaxArticles = defaults.MaxArticles
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		config:   config,
		registry: registry,
		store:    store,
		archive:  archive,
		metrics:  m,
		logger:   logger,
	}
}

// ScrapeSource crawls the configured listing and stores every article found.
// A store failure for one article is logged and the rest are still stored.
func (s *Service) ScrapeSource(ctx context.Context) (*models.ScrapeSourceResponse, error) {
	s.logger.Info("starting source scrape", "url", s.config.SourceURL, "max_articles", s.config.MaxArticles)

	strategy, err := s.registry.Resolve(s.config.SourceURL)
	if err != nil {
		return nil, err
	}

	scraped, err := strategy.Scrape(ctx, s.config.SourceURL, Options{
		MaxArticles: s.config.MaxArticles,
		Timeout:     s.config.Timeout,
	})
	if err != nil {
		return nil, err
	}

	articleIDs := make([]string, 0, len(scraped))
	for _, item := range scraped {
		article, err := s.save(ctx, item)
		if err != nil {
			s.logger.Error("failed to store article", "url", item.SourceURL, "error", err)
			continue
		}
		articleIDs = append(articleIDs, article.ID)
	}
	s.metrics.ArticlesScraped(strategy.Name(), len(articleIDs))

	return &models.ScrapeSourceResponse{
		Message:    fmt.Sprintf("Successfully scraped and stored %d articles", len(articleIDs)),
		Count:      len(articleIDs),
		ArticleIDs: articleIDs,
	}, nil
}

// ScrapeURL scrapes a single article from rawURL with the matching strategy
func (s *Service) ScrapeURL(ctx context.Context, rawURL string) (*models.ScrapeURLResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperr.Validation("ScrapeURL", "url must be a valid http or https URL")
	}

	strategy, err := s.registry.Resolve(rawURL)
	if err != nil {
		return nil, err
	}
	s.logger.Info("scraping article", "url", rawURL, "strategy", strategy.Name())

	scraped, err := strategy.Scrape(ctx, rawURL, Options{MaxArticles: 1, Timeout: s.config.Timeout})
	if err != nil {
		return nil, err
	}
	if len(scraped) == 0 {
		return nil, apperr.NotFound("ScrapeURL", "No article found at URL")
	}

	article, err := s.save(ctx, scraped[0])
	if err != nil {
		return nil, apperr.Persistence("ScrapeURL", "failed to store article", err)
	}
	s.metrics.ArticlesScraped(strategy.Name(), 1)

	return &models.ScrapeURLResponse{
		Message:   "Article scraped and stored successfully",
		ArticleID: article.ID,
	}, nil
}

func (s *Service) save(ctx context.Context, item models.ScrapedArticle) (*models.Article, error) {
	article := &models.Article{
		Title:     item.Title,
		Content:   item.Content,
		SourceURL: item.SourceURL,
		Status:    models.StatusOriginal,
	}
	if err := s.store.CreateArticle(ctx, article); err != nil {
		return nil, err
	}
	s.logger.Info("stored article", "article_id", article.ID, "title", article.Title)

	if s.archive != nil {
		if key, err := s.archive.SaveOriginal(ctx, article); err != nil {
			s.logger.Warn("failed to archive original article", "article_id", article.ID, "error", err)
		} else if key != "" {
			s.logger.Debug("archived original article", "article_id", article.ID, "key", key)
		}
	}
	return article, nil
}
