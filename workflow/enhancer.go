// Package workflow runs the enhancement pipeline for a single article and
// exposes the automation entry points that queue it.
package workflow

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/llm"
	"github.com/docutag/enhancer/models"
	"github.com/docutag/enhancer/prompt"
)

// DefaultExcludeDomain is excluded from search when an article's source host is unusable
const DefaultExcludeDomain = "beyondchats.com"

// ReferenceCount is the number of references the prompt always carries
const ReferenceCount = 2

var placeholderReference = models.ScrapedContent{
	Title:   "Reference Article",
	Content: "No additional reference available.",
	URL:     "",
}

var tracer = otel.Tracer("github.com/docutag/enhancer/workflow")

// ArticleStore is the subset of the article store the pipeline needs
type ArticleStore interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	UpdateArticle(ctx context.Context, id string, upd models.ArticleUpdate) (*models.Article, error)
}

// Searcher finds competing articles
type Searcher interface {
	Search(ctx context.Context, query, excludeDomain string, maxResults int) ([]models.SearchResult, error)
}

// Scraper extracts a competing article's content
type Scraper interface {
	ScrapeArticle(ctx context.Context, url string) (*models.ScrapedContent, error)
}

// ContentEnhancer rewrites an article with the help of its references
type ContentEnhancer interface {
	EnhanceArticle(ctx context.Context, p prompt.Params) (string, error)
}

// Archiver keeps a copy of enhanced markdown. Failures never fail a job.
type Archiver interface {
	SaveEnhanced(ctx context.Context, article *models.Article) (string, error)
}

// Config contains pipeline configuration
type Config struct {
	DefaultExcludeDomain string
}

// Enhancer runs search, extraction, LLM enhancement and persistence for one article
type Enhancer struct {
	config   Config
	store    ArticleStore
	searcher Searcher
	scraper  Scraper
	llm      ContentEnhancer
	archive  Archiver
	logger   *slog.Logger
}

// Deps are the collaborators of an Enhancer. Archive may be nil.
type Deps struct {
	Store    ArticleStore
	Searcher Searcher
	Scraper  Scraper
	LLM      ContentEnhancer
	Archive  Archiver
	Logger   *slog.Logger
}

// NewEnhancer creates an Enhancer
func NewEnhancer(config Config, deps Deps) *Enhancer {
	if config.DefaultExcludeDomain == "" {
		config.DefaultExcludeDomain = DefaultExcludeDomain
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Enhancer{
		config:   config,
		store:    deps.Store,
		searcher: deps.Searcher,
		scraper:  deps.Scraper,
		llm:      deps.LLM,
		archive:  deps.Archive,
		logger:   logger,
	}
}

// Process enhances the article named by job. On failure the article is marked
// FAILED and the returned result carries the error message alongside err.
func (e *Enhancer) Process(ctx context.Context, job *models.Job, progress func(int)) (*models.JobResult, error) {
	if progress == nil {
		progress = func(int) {}
	}
	articleID := job.ArticleID
	logger := e.logger.With("job_id", job.ID, "article_id", articleID)

	ctx, span := tracer.Start(ctx, "workflow.Process")
	defer span.End()
	span.SetAttributes(
		attribute.String("article.id", articleID),
		attribute.String("job.id", job.ID),
		attribute.Int("job.attempt", job.AttemptsMade),
	)

	logger.Info("processing enhancement job")

	if err := e.run(ctx, articleID, progress, logger); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("enhancement failed", "error", err)

		failed := models.StatusFailed
		if _, updateErr := e.store.UpdateArticle(context.WithoutCancel(ctx), articleID, models.ArticleUpdate{Status: &failed}); updateErr != nil {
			logger.Error("failed to update article status", "error", updateErr)
		}

		return &models.JobResult{Success: false, ArticleID: articleID, Error: err.Error()}, err
	}

	logger.Info("successfully enhanced article")
	return &models.JobResult{Success: true, ArticleID: articleID}, nil
}

func (e *Enhancer) run(ctx context.Context, articleID string, progress func(int), logger *slog.Logger) error {
	progress(10)
	article, err := e.store.GetArticle(ctx, articleID)
	if err != nil {
		return apperr.Persistence("workflow", "failed to load article", err)
	}
	if article == nil {
		return apperr.NotFound("workflow", "Article with ID %s not found", articleID)
	}
	logger.Info("fetched article", "title", article.Title)

	processing := models.StatusProcessing
	if _, err := e.store.UpdateArticle(ctx, articleID, models.ArticleUpdate{Status: &processing}); err != nil {
		return err
	}

	progress(20)
	exclude := e.excludeDomain(article.SourceURL)
	results, err := e.searcher.Search(ctx, article.Title, exclude, ReferenceCount)
	if err != nil {
		return err
	}
	if len(results) < ReferenceCount {
		logger.Warn("fewer search results than expected, proceeding anyway",
			"found", len(results), "wanted", ReferenceCount)
	}

	progress(40)
	scraped, err := e.scrapeAll(ctx, results)
	if err != nil {
		return err
	}
	for len(scraped) < ReferenceCount {
		scraped = append(scraped, placeholderReference)
	}

	progress(60)
	enhanced, err := e.llm.EnhanceArticle(ctx, prompt.Params{
		OriginalTitle:     article.Title,
		OriginalContent:   article.Content,
		Reference1Title:   scraped[0].Title,
		Reference1Content: scraped[0].Content,
		Reference2Title:   scraped[1].Title,
		Reference2Content: scraped[1].Content,
	})
	if err != nil {
		return err
	}

	progress(80)
	references := make([]models.Reference, len(results))
	for i, r := range results {
		references[i] = models.Reference{Title: r.Title, URL: r.URL}
	}
	final := llm.AddReferences(enhanced, references)

	progress(90)
	enhancedStatus := models.StatusEnhanced
	updated, err := e.store.UpdateArticle(ctx, articleID, models.ArticleUpdate{
		UpdatedContent: &final,
		References:     &references,
		Status:         &enhancedStatus,
	})
	if err != nil {
		return err
	}

	if e.archive != nil && updated != nil {
		if key, err := e.archive.SaveEnhanced(ctx, updated); err != nil {
			logger.Warn("failed to archive enhanced article", "error", err)
		} else {
			logger.Debug("archived enhanced article", "key", key)
		}
	}

	progress(100)
	return nil
}

// scrapeAll extracts every result concurrently and keeps result order.
// The first extraction error cancels the rest.
func (e *Enhancer) scrapeAll(ctx context.Context, results []models.SearchResult) ([]models.ScrapedContent, error) {
	scraped := make([]models.ScrapedContent, len(results))

	g, gctx := errgroup.WithContext(ctx)
	for i, r := range results {
		g.Go(func() error {
			content, err := e.scraper.ScrapeArticle(gctx, r.URL)
			if err != nil {
				return err
			}
			scraped[i] = *content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scraped, nil
}

// excludeDomain returns the source host without a leading www.
func (e *Enhancer) excludeDomain(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Hostname() == "" {
		return e.config.DefaultExcludeDomain
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
