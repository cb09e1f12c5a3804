package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/docutag/enhancer/models"
)

var jobColumns = []string{
	"id", "name", "article_id", "state", "progress", "attempts_made", "max_attempts",
	"run_at", "processed_on", "finished_on", "failed_reason", "result", "created_at",
}

var pendingStates = []string{
	string(models.JobWaiting), string(models.JobDelayed), string(models.JobActive),
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := time.UnixMilli(ms.Int64).UTC()
	return &t
}

func scanJob(row rowScanner) (*models.Job, error) {
	var (
		j           models.Job
		state       string
		runAt       int64
		createdAt   int64
		processedOn sql.NullInt64
		finishedOn  sql.NullInt64
		reason      sql.NullString
		result      sql.NullString
	)
	if err := row.Scan(&j.ID, &j.Name, &j.ArticleID, &state, &j.Progress, &j.AttemptsMade,
		&j.MaxAttempts, &runAt, &processedOn, &finishedOn, &reason, &result, &createdAt); err != nil {
		return nil, err
	}
	j.State = models.JobState(state)
	j.RunAt = time.UnixMilli(runAt).UTC()
	j.CreatedAt = time.UnixMilli(createdAt).UTC()
	j.ProcessedOn = fromMillis(processedOn)
	j.FinishedOn = fromMillis(finishedOn)
	j.FailedReason = reason.String
	if result.Valid && result.String != "" {
		var r models.JobResult
		if err := json.Unmarshal([]byte(result.String), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal job result: %w", err)
		}
		j.Result = &r
	}
	return &j, nil
}

func encodeResult(r *models.JobResult) (sql.NullString, error) {
	if r == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(r)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal job result: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// InsertJob stores a new job
func (db *DB) InsertJob(ctx context.Context, job *models.Job) error {
	query, args, err := db.sb.Insert("enhancement_jobs").
		Columns("id", "name", "article_id", "state", "progress", "attempts_made",
			"max_attempts", "run_at", "created_at").
		Values(job.ID, job.Name, job.ArticleID, string(job.State), job.Progress, job.AttemptsMade,
			job.MaxAttempts, millis(job.RunAt), millis(job.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID. It returns nil, nil when no job matches.
func (db *DB) GetJob(ctx context.Context, id string) (*models.Job, error) {
	query, args, err := db.sb.Select(jobColumns...).
		From("enhancement_jobs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	job, err := scanJob(db.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query job: %w", err)
	}
	return job, nil
}

// FindPendingJob returns the waiting, delayed or active job for an article, if any
func (db *DB) FindPendingJob(ctx context.Context, articleID string) (*models.Job, error) {
	query, args, err := db.sb.Select(jobColumns...).
		From("enhancement_jobs").
		Where(sq.Eq{"article_id": articleID, "state": pendingStates}).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	job, err := scanJob(db.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query pending job: %w", err)
	}
	return job, nil
}

// ClaimNextJob moves the oldest due job to the active state and returns it.
// It returns nil, nil when nothing is due. The conditional update makes the
// claim safe when several workers race for the same row.
func (db *DB) ClaimNextJob(ctx context.Context, now time.Time) (*models.Job, error) {
	for {
		selectQuery, selectArgs, err := db.sb.Select("id").
			From("enhancement_jobs").
			Where(sq.Eq{"state": []string{string(models.JobWaiting), string(models.JobDelayed)}}).
			Where(sq.LtOrEq{"run_at": millis(now)}).
			OrderBy("run_at ASC", "created_at ASC").
			Limit(1).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build query: %w", err)
		}

		var id string
		err = db.conn.QueryRowContext(ctx, selectQuery, selectArgs...).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to select due job: %w", err)
		}

		updateQuery, updateArgs, err := db.sb.Update("enhancement_jobs").
			Set("state", string(models.JobActive)).
			Set("attempts_made", sq.Expr("attempts_made + 1")).
			Set("processed_on", millis(now)).
			Where(sq.Eq{"id": id, "state": []string{string(models.JobWaiting), string(models.JobDelayed)}}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("failed to build update: %w", err)
		}

		result, err := db.conn.ExecContext(ctx, updateQuery, updateArgs...)
		if err != nil {
			return nil, fmt.Errorf("failed to claim job: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get affected rows: %w", err)
		}
		if rows == 0 {
			// Another worker claimed it first
			continue
		}

		return db.GetJob(ctx, id)
	}
}

// UpdateJobProgress records the advisory progress percentage of an active job
func (db *DB) UpdateJobProgress(ctx context.Context, id string, progress int) error {
	return db.updateJob(ctx, id, sq.Eq{"progress": progress})
}

// CompleteJob marks a job completed with its result
func (db *DB) CompleteJob(ctx context.Context, id string, result *models.JobResult, finishedOn time.Time) error {
	encoded, err := encodeResult(result)
	if err != nil {
		return err
	}
	return db.updateJob(ctx, id, sq.Eq{
		"state":       string(models.JobCompleted),
		"progress":    100,
		"result":      encoded,
		"finished_on": millis(finishedOn),
	})
}

// RetryJob moves a failed attempt back into the delayed state until runAt
func (db *DB) RetryJob(ctx context.Context, id string, runAt time.Time, reason string, result *models.JobResult) error {
	encoded, err := encodeResult(result)
	if err != nil {
		return err
	}
	return db.updateJob(ctx, id, sq.Eq{
		"state":         string(models.JobDelayed),
		"run_at":        millis(runAt),
		"failed_reason": reason,
		"result":        encoded,
	})
}

// FailJob marks a job permanently failed
func (db *DB) FailJob(ctx context.Context, id string, reason string, result *models.JobResult, finishedOn time.Time) error {
	encoded, err := encodeResult(result)
	if err != nil {
		return err
	}
	return db.updateJob(ctx, id, sq.Eq{
		"state":         string(models.JobFailed),
		"failed_reason": reason,
		"result":        encoded,
		"finished_on":   millis(finishedOn),
	})
}

func (db *DB) updateJob(ctx context.Context, id string, set sq.Eq) error {
	query, args, err := db.sb.Update("enhancement_jobs").
		SetMap(set).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build update: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no job found with id: %s", id)
	}
	return nil
}

// ResetStalledJobs returns jobs left active by a previous process to the waiting state
func (db *DB) ResetStalledJobs(ctx context.Context, now time.Time) (int, error) {
	query, args, err := db.sb.Update("enhancement_jobs").
		Set("state", string(models.JobWaiting)).
		Set("run_at", millis(now)).
		Where(sq.Eq{"state": string(models.JobActive)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stalled jobs: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}

// PruneJobs deletes all but the newest keep jobs in a terminal state
func (db *DB) PruneJobs(ctx context.Context, state models.JobState, keep int) (int, error) {
	keepQuery := db.sb.Select("id").
		From("enhancement_jobs").
		Where(sq.Eq{"state": string(state)}).
		OrderBy("finished_on DESC", "created_at DESC").
		Limit(uint64(keep))

	keepSQL, keepArgs, err := keepQuery.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, keepSQL, keepArgs...)
	if err != nil {
		return 0, fmt.Errorf("failed to query retained jobs: %w", err)
	}
	var keepIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan row: %w", err)
		}
		keepIDs = append(keepIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, fmt.Errorf("failed to iterate rows: %w", err)
	}
	rows.Close()

	builder := db.sb.Delete("enhancement_jobs").Where(sq.Eq{"state": string(state)})
	if len(keepIDs) > 0 {
		builder = builder.Where(sq.NotEq{"id": keepIDs})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(deleted), nil
}
