package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

var articleColumns = []string{
	"id", "title", "content", "source_url", "status",
	"updated_content", "article_references", "scraped_at", "updated_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (*models.Article, error) {
	var (
		a       models.Article
		status  string
		updated sql.NullString
		refs    sql.NullString
	)
	if err := row.Scan(&a.ID, &a.Title, &a.Content, &a.SourceURL, &status,
		&updated, &refs, &a.ScrapedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = models.ArticleStatus(status)
	if updated.Valid {
		s := updated.String
		a.UpdatedContent = &s
	}
	if refs.Valid {
		a.References = []models.Reference{}
		if err := json.Unmarshal([]byte(refs.String), &a.References); err != nil {
			return nil, fmt.Errorf("failed to unmarshal references: %w", err)
		}
	}
	a.ScrapedAt = a.ScrapedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

func encodeReferences(refs []models.Reference) (sql.NullString, error) {
	if refs == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(refs)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal references: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// CreateArticle inserts a new article, assigning an id and timestamps when unset
func (db *DB) CreateArticle(ctx context.Context, a *models.Article) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Status == "" {
		a.Status = models.StatusOriginal
	}
	now := time.Now().UTC()
	if a.ScrapedAt.IsZero() {
		a.ScrapedAt = now
	}
	a.UpdatedAt = now

	refs, err := encodeReferences(a.References)
	if err != nil {
		return err
	}
	var updated sql.NullString
	if a.UpdatedContent != nil {
		updated = sql.NullString{String: *a.UpdatedContent, Valid: true}
	}

	query, args, err := db.sb.Insert("articles").
		Columns(articleColumns...).
		Values(a.ID, a.Title, a.Content, a.SourceURL, string(a.Status),
			updated, refs, a.ScrapedAt, a.UpdatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save article: %w", err)
	}
	return nil
}

// GetArticle retrieves an article by ID. It returns nil, nil when no article matches.
func (db *DB) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	query, args, err := db.sb.Select(articleColumns...).
		From("articles").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	article, err := scanArticle(db.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query article: %w", err)
	}
	return article, nil
}

// ListArticles returns articles newest first, filtered by status and paginated by skip/take
func (db *DB) ListArticles(ctx context.Context, filter models.ArticleFilter) ([]*models.Article, error) {
	builder := db.sb.Select(articleColumns...).
		From("articles").
		OrderBy("scraped_at DESC", "id ASC")

	if filter.Status != "" {
		builder = builder.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Take > 0 {
		builder = builder.Limit(uint64(filter.Take))
	}
	if filter.Skip > 0 {
		if filter.Take <= 0 && db.driver == DriverSQLite {
			// SQLite needs a LIMIT before OFFSET
			builder = builder.Limit(uint64(1<<62))
		}
		builder = builder.Offset(uint64(filter.Skip))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	results := []*models.Article{}
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return results, nil
}

// CountArticles returns the number of articles, optionally restricted to one status
func (db *DB) CountArticles(ctx context.Context, status models.ArticleStatus) (int, error) {
	builder := db.sb.Select("COUNT(*)").From("articles")
	if status != "" {
		builder = builder.Where(sq.Eq{"status": string(status)})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count articles: %w", err)
	}
	return count, nil
}

// UpdateArticle applies a partial update and returns the stored article.
// A missing article yields an apperr NotFound error.
func (db *DB) UpdateArticle(ctx context.Context, id string, upd models.ArticleUpdate) (*models.Article, error) {
	builder := db.sb.Update("articles").
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id})

	if upd.Title != nil {
		builder = builder.Set("title", *upd.Title)
	}
	if upd.Content != nil {
		builder = builder.Set("content", *upd.Content)
	}
	if upd.SourceURL != nil {
		builder = builder.Set("source_url", *upd.SourceURL)
	}
	if upd.Status != nil {
		builder = builder.Set("status", string(*upd.Status))
	}
	if upd.UpdatedContent != nil {
		builder = builder.Set("updated_content", *upd.UpdatedContent)
	}
	if upd.References != nil {
		refs, err := encodeReferences(*upd.References)
		if err != nil {
			return nil, err
		}
		builder = builder.Set("article_references", refs)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build update: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Persistence("UpdateArticle", "failed to update article", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, apperr.NotFound("UpdateArticle", "Article with ID %s not found", id)
	}

	return db.GetArticle(ctx, id)
}

// DeleteArticle removes an article and returns it as it was before deletion
func (db *DB) DeleteArticle(ctx context.Context, id string) (*models.Article, error) {
	existing, err := db.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, apperr.NotFound("DeleteArticle", "Article with ID %s not found", id)
	}

	query, args, err := db.sb.Delete("articles").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build delete: %w", err)
	}

	result, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to delete article: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return nil, apperr.NotFound("DeleteArticle", "Article with ID %s not found", id)
	}

	return existing, nil
}
