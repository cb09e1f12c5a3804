// Package queue runs enhancement jobs from the database on a bounded pool of
// workers, with retries, stalled-job recovery and retention.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/metrics"
	"github.com/docutag/enhancer/models"
)

// JobName is recorded on every enhancement job
const JobName = "enhance"

// Store persists jobs
type Store interface {
	InsertJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	FindPendingJob(ctx context.Context, articleID string) (*models.Job, error)
	ClaimNextJob(ctx context.Context, now time.Time) (*models.Job, error)
	UpdateJobProgress(ctx context.Context, id string, progress int) error
	CompleteJob(ctx context.Context, id string, result *models.JobResult, finishedOn time.Time) error
	RetryJob(ctx context.Context, id string, runAt time.Time, reason string, result *models.JobResult) error
	FailJob(ctx context.Context, id string, reason string, result *models.JobResult, finishedOn time.Time) error
	ResetStalledJobs(ctx context.Context, now time.Time) (int, error)
	PruneJobs(ctx context.Context, state models.JobState, keep int) (int, error)
}

// Processor executes one job attempt
type Processor interface {
	Process(ctx context.Context, job *models.Job, progress func(int)) (*models.JobResult, error)
}

// Config contains queue configuration
type Config struct {
	Concurrency     int
	MaxAttempts     int
	Backoff         time.Duration // delay before the first retry, doubled for each one after
	PollInterval    time.Duration
	RetainCompleted int
	RetainFailed    int
}

// DefaultConfig returns default queue configuration
func DefaultConfig() Config {
	return Config{
		Concurrency:     2,
		MaxAttempts:     3,
		Backoff:         2 * time.Second,
		PollInterval:    time.Second,
		RetainCompleted: 100,
		RetainFailed:    100,
	}
}

// Queue is a durable FIFO of enhancement jobs
type Queue struct {
	config    Config
	store     Store
	processor Processor
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time

	enqueueMu sync.Mutex
	notify    chan struct{}

	mu      sync.Mutex
	started bool
	quit    chan struct{}
	wg      sync.WaitGroup
}

// New creates a Queue. Zero config fields take their defaults.
func New(config Config, store Store, processor Processor, m *metrics.Metrics, logger *slog.Logger) *Queue {
	defaults := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.Backoff <= 0 {
		config.Backoff = defaults.Backoff
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RetainCompleted <= 0 {
		config.RetainCompleted = defaults.RetainCompleted
	}
	if config.RetainFailed <= 0 {
		config.RetainFailed = defaults.RetainFailed
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Queue{
		config:    config,
		store:     store,
		processor: processor,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
		notify:    make(chan struct{}, config.Concurrency),
	}
}

// Enqueue adds a job for articleID. If the article already has a waiting,
// delayed or active job, that job's id is returned instead.
func (q *Queue) Enqueue(ctx context.Context, articleID string) (string, error) {
	q.enqueueMu.Lock()
	defer q.enqueueMu.Unlock()

	existing, err := q.store.FindPendingJob(ctx, articleID)
	if err != nil {
		return "", apperr.Persistence("Enqueue", "failed to check pending jobs", err)
	}
	if existing != nil {
		q.logger.Info("article already has a pending job",
			"job_id", existing.ID, "article_id", articleID, "state", existing.State)
		return existing.ID, nil
	}

	now := q.now()
	job := &models.Job{
		ID:          uuid.New().String(),
		Name:        JobName,
		ArticleID:   articleID,
		State:       models.JobWaiting,
		MaxAttempts: q.config.MaxAttempts,
		RunAt:       now,
		CreatedAt:   now,
	}
	if err := q.store.InsertJob(ctx, job); err != nil {
		return "", apperr.Persistence("Enqueue", "failed to queue job", err)
	}

	q.metrics.JobEnqueued()
	q.wake()
	return job.ID, nil
}

// Get returns a job by id, or nil when it does not exist
func (q *Queue) Get(ctx context.Context, jobID string) (*models.Job, error) {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, apperr.Persistence("Get", "failed to load job", err)
	}
	return job, nil
}

// Start resets jobs left active by a previous process and launches the workers.
// Workers exit when ctx is cancelled or Stop is called.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return fmt.Errorf("queue already started")
	}

	reset, err := q.store.ResetStalledJobs(ctx, q.now())
	if err != nil {
		return fmt.Errorf("failed to reset stalled jobs: %w", err)
	}
	if reset > 0 {
		q.logger.Warn("reset stalled jobs", "count", reset)
	}

	q.quit = make(chan struct{})
	q.started = true
	for i := 0; i < q.config.Concurrency; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.logger.Info("queue started",
		"concurrency", q.config.Concurrency,
		"max_attempts", q.config.MaxAttempts,
		"backoff", q.config.Backoff,
	)
	return nil
}

// Stop signals the workers and waits for in-flight jobs to finish
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	close(q.quit)
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("queue stopped")
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	for {
		for q.runNext(ctx) {
			select {
			case <-ctx.Done():
				return
			case <-q.quit:
				return
			default:
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-q.quit:
			return
		case <-q.notify:
		case <-ticker.C:
		}
	}
}

// runNext claims and executes one due job. It reports whether a job ran.
func (q *Queue) runNext(ctx context.Context) bool {
	job, err := q.store.ClaimNextJob(ctx, q.now())
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Error("failed to claim job", "error", err)
		}
		return false
	}
	if job == nil {
		return false
	}

	// In-flight jobs run to completion through shutdown
	q.execute(context.WithoutCancel(ctx), job)
	return true
}

func (q *Queue) execute(ctx context.Context, job *models.Job) {
	logger := q.logger.With("job_id", job.ID, "article_id", job.ArticleID, "attempt", job.AttemptsMade)
	logger.Info("job started")

	progress := func(p int) {
		if err := q.store.UpdateJobProgress(ctx, job.ID, p); err != nil {
			logger.Debug("failed to record progress", "progress", p, "error", err)
		}
	}

	start := q.now()
	result, err := q.safeProcess(ctx, job, progress)
	finished := q.now()

	if err == nil {
		if result == nil {
			result = &models.JobResult{Success: true, ArticleID: job.ArticleID}
		}
		if err := q.store.CompleteJob(ctx, job.ID, result, finished); err != nil {
			logger.Error("failed to mark job completed", "error", err)
		}
		q.metrics.JobFinished(string(models.JobCompleted), finished.Sub(start))
		logger.Info("job completed", "duration", finished.Sub(start))
		q.prune(ctx, models.JobCompleted, q.config.RetainCompleted)
		return
	}

	if result == nil {
		result = &models.JobResult{Success: false, ArticleID: job.ArticleID, Error: err.Error()}
	}

	if !apperr.IsNotFound(err) && job.AttemptsMade < job.MaxAttempts {
		delay := q.retryDelay(job.AttemptsMade)
		if err := q.store.RetryJob(ctx, job.ID, finished.Add(delay), err.Error(), result); err != nil {
			logger.Error("failed to schedule retry", "error", err)
		}
		q.metrics.JobRetried()
		logger.Warn("job attempt failed, retrying", "error", err, "delay", delay)
		return
	}

	if err := q.store.FailJob(ctx, job.ID, err.Error(), result, finished); err != nil {
		logger.Error("failed to mark job failed", "error", err)
	}
	q.metrics.JobFinished(string(models.JobFailed), finished.Sub(start))
	logger.Error("job failed", "error", err)
	q.prune(ctx, models.JobFailed, q.config.RetainFailed)
}

func (q *Queue) safeProcess(ctx context.Context, job *models.Job, progress func(int)) (result *models.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return q.processor.Process(ctx, job, progress)
}

// retryDelay is the exponential delay after the given attempt: the configured
// backoff after the first, twice that after the second, and so on.
func (q *Queue) retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.config.Backoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	return delay
}

func (q *Queue) prune(ctx context.Context, state models.JobState, keep int) {
	deleted, err := q.store.PruneJobs(ctx, state, keep)
	if err != nil {
		q.logger.Warn("failed to prune jobs", "state", state, "error", err)
		return
	}
	if deleted > 0 {
		q.logger.Debug("pruned jobs", "state", state, "count", deleted)
	}
}
