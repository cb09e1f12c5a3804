package models

import "time"

// ArticleStatus is the lifecycle state of an article
type ArticleStatus string

const (
	StatusOriginal   ArticleStatus = "ORIGINAL"
	StatusProcessing ArticleStatus = "PROCESSING"
	StatusEnhanced   ArticleStatus = "ENHANCED"
	StatusFailed     ArticleStatus = "FAILED"
)

// Valid reports whether s is one of the known article statuses
func (s ArticleStatus) Valid() bool {
	switch s {
	case StatusOriginal, StatusProcessing, StatusEnhanced, StatusFailed:
		return true
	}
	return false
}

// Article is a scraped piece of content tracked through the enhancement lifecycle
type Article struct {
	ID             string        `json:"id"`
	Title          string        `json:"title"`
	Content        string        `json:"content"`
	SourceURL      string        `json:"sourceUrl"`
	Status         ArticleStatus `json:"status"`
	UpdatedContent *string       `json:"updatedContent"` // Enhanced markdown, set together with References
	References     []Reference   `json:"references"`     // nil until the first enhancement
	ScrapedAt      time.Time     `json:"scrapedAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// Reference identifies a source article used as model input
type Reference struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ArticleFilter narrows article listings
type ArticleFilter struct {
	Status ArticleStatus // empty matches all statuses
	Skip   int
	Take   int // 0 means no limit
}

// ArticleUpdate holds a partial article update; nil fields are left unchanged
type ArticleUpdate struct {
	Title          *string        `json:"title,omitempty"`
	Content        *string        `json:"content,omitempty"`
	SourceURL      *string        `json:"sourceUrl,omitempty"`
	Status         *ArticleStatus `json:"status,omitempty"`
	UpdatedContent *string        `json:"updatedContent,omitempty"`
	References     *[]Reference   `json:"references,omitempty"`
}

// CreateArticleRequest is the body of POST /api/v1/articles
type CreateArticleRequest struct {
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	SourceURL string        `json:"sourceUrl"`
	Status    ArticleStatus `json:"status,omitempty"`
}

// SearchResult is a single organic result returned by the search provider
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// ScrapedContent is the readable text extracted from a reference page
type ScrapedContent struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

// ScrapedArticle is one article produced by an ingestion strategy
type ScrapedArticle struct {
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	SourceURL   string     `json:"sourceUrl"`
	Author      string     `json:"author,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// JobState mirrors the states a queued job moves through
type JobState string

const (
	JobWaiting   JobState = "waiting"
	JobActive    JobState = "active"
	JobDelayed   JobState = "delayed"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Job is one queued execution of the enhancement workflow for a single article
type Job struct {
	ID           string
	Name         string
	ArticleID    string
	State        JobState
	Progress     int
	AttemptsMade int
	MaxAttempts  int
	RunAt        time.Time
	ProcessedOn  *time.Time
	FinishedOn   *time.Time
	FailedReason string
	Result       *JobResult
	CreatedAt    time.Time
}

// JobResult is the terminal outcome recorded for a job attempt
type JobResult struct {
	Success   bool   `json:"success"`
	ArticleID string `json:"articleId"`
	Error     string `json:"error,omitempty"`
}

// JobStatus is the API view of a job
type JobStatus struct {
	JobID        string   `json:"jobId"`
	ArticleID    string   `json:"articleId"`
	State        JobState `json:"state"`
	Progress     int      `json:"progress"`
	AttemptsMade int      `json:"attemptsMade"`
	ProcessedOn  *int64   `json:"processedOn"` // epoch milliseconds
	FinishedOn   *int64   `json:"finishedOn"`  // epoch milliseconds
	FailedReason *string  `json:"failedReason"`
}

// StatusOf builds the API view of a job
func StatusOf(job *Job) JobStatus {
	status := JobStatus{
		JobID:        job.ID,
		ArticleID:    job.ArticleID,
		State:        job.State,
		Progress:     job.Progress,
		AttemptsMade: job.AttemptsMade,
		ProcessedOn:  epochMillis(job.ProcessedOn),
		FinishedOn:   epochMillis(job.FinishedOn),
	}
	if job.FailedReason != "" {
		reason := job.FailedReason
		status.FailedReason = &reason
	}
	return status
}

func epochMillis(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

// EnhanceAllResponse is returned when every ORIGINAL article is queued
type EnhanceAllResponse struct {
	Message string   `json:"message"`
	Queued  int      `json:"queued"`
	JobIDs  []string `json:"jobIds"`
}

// EnhanceOneResponse is returned when a single article is queued
type EnhanceOneResponse struct {
	Message string `json:"message"`
	JobID   string `json:"jobId"`
}

// ScrapeSourceResponse is returned by the site-specific ingestion run
type ScrapeSourceResponse struct {
	Message    string   `json:"message"`
	Count      int      `json:"count"`
	ArticleIDs []string `json:"articleIds"`
}

// ScrapeURLRequest is the body of POST /api/v1/automation/scrape-url
type ScrapeURLRequest struct {
	URL string `json:"url"`
}

// ScrapeURLResponse is returned after ingesting a single URL
type ScrapeURLResponse struct {
	Message   string `json:"message"`
	ArticleID string `json:"articleId"`
}
