package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

// ArticleLister lists and loads articles for queueing
type ArticleLister interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	ListArticles(ctx context.Context, filter models.ArticleFilter) ([]*models.Article, error)
}

// JobQueue accepts enhancement jobs and reports their state
type JobQueue interface {
	Enqueue(ctx context.Context, articleID string) (string, error)
	Get(ctx context.Context, jobID string) (*models.Job, error)
}

// Automation queues enhancement jobs and reports on them
type Automation struct {
	articles ArticleLister
	queue    JobQueue
	logger   *slog.Logger
}

// NewAutomation creates an Automation service
func NewAutomation(articles ArticleLister, queue JobQueue, logger *slog.Logger) *Automation {
	if logger == nil {
		logger = slog.Default()
	}
	return &Automation{articles: articles, queue: queue, logger: logger}
}

// EnhanceAll queues one enhancement job per ORIGINAL article
func (a *Automation) EnhanceAll(ctx context.Context) (*models.EnhanceAllResponse, error) {
	a.logger.Info("queuing enhancement jobs for all ORIGINAL articles")

	articles, err := a.articles.ListArticles(ctx, models.ArticleFilter{Status: models.StatusOriginal})
	if err != nil {
		return nil, apperr.Persistence("EnhanceAll", "failed to list articles", err)
	}

	if len(articles) == 0 {
		return &models.EnhanceAllResponse{
			Message: "No articles found with status ORIGINAL",
			Queued:  0,
			JobIDs:  []string{},
		}, nil
	}

	jobIDs := make([]string, 0, len(articles))
	for _, article := range articles {
		jobID, err := a.queue.Enqueue(ctx, article.ID)
		if err != nil {
			a.logger.Error("failed to queue enhancement jobs", "article_id", article.ID, "error", err)
			return nil, err
		}
		jobIDs = append(jobIDs, jobID)
		a.logger.Info("queued enhancement job", "job_id", jobID, "article_id", article.ID)
	}

	return &models.EnhanceAllResponse{
		Message: fmt.Sprintf("Successfully queued %d enhancement jobs", len(jobIDs)),
		Queued:  len(jobIDs),
		JobIDs:  jobIDs,
	}, nil
}

// EnhanceOne queues an enhancement job for a single article
func (a *Automation) EnhanceOne(ctx context.Context, articleID string) (*models.EnhanceOneResponse, error) {
	a.logger.Info("queuing enhancement job", "article_id", articleID)

	article, err := a.articles.GetArticle(ctx, articleID)
	if err != nil {
		return nil, apperr.Persistence("EnhanceOne", "failed to load article", err)
	}
	if article == nil {
		return nil, apperr.NotFound("EnhanceOne", "Article with ID %s not found", articleID)
	}

	jobID, err := a.queue.Enqueue(ctx, articleID)
	if err != nil {
		a.logger.Error("failed to queue enhancement job", "article_id", articleID, "error", err)
		return nil, err
	}
	a.logger.Info("queued enhancement job", "job_id", jobID, "article_id", articleID)

	return &models.EnhanceOneResponse{
		Message: "Enhancement job queued successfully",
		JobID:   jobID,
	}, nil
}

// JobStatus reports the state of a queued job
func (a *Automation) JobStatus(ctx context.Context, jobID string) (*models.JobStatus, error) {
	job, err := a.queue.Get(ctx, jobID)
	if err != nil {
		a.logger.Error("failed to get job status", "job_id", jobID, "error", err)
		return nil, err
	}
	if job == nil {
		return nil, apperr.NotFound("JobStatus", "Job %s not found", jobID)
	}

	status := models.StatusOf(job)
	return &status, nil
}
