// Package storage archives article markdown to the filesystem or an
// S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/docutag/enhancer/models"
	"github.com/docutag/enhancer/slug"
)

const (
	BackendNone = "none"
	BackendFS   = "fs"
	BackendS3   = "s3"
)

const markdownContentType = "text/markdown; charset=utf-8"

// Backend stores opaque objects by key
type Backend interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Delete(ctx context.Context, key string) error
}

// Config contains storage configuration
type Config struct {
	Backend  string // "none", "fs" or "s3"
	BasePath string // Base directory for the fs backend
	S3       S3Config
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		Backend:  BackendNone,
		BasePath: "./storage",
	}
}

// Open builds the archive for config. It returns nil when archiving is disabled.
func Open(ctx context.Context, config Config) (*Archive, error) {
	switch config.Backend {
	case "", BackendNone:
		return nil, nil
	case BackendFS:
		fs, err := NewFileStorage(config.BasePath)
		if err != nil {
			return nil, err
		}
		return NewArchive(fs), nil
	case BackendS3:
		s3, err := NewS3Storage(ctx, config.S3)
		if err != nil {
			return nil, err
		}
		return NewArchive(s3), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", config.Backend)
	}
}

// FileStorage keeps objects under a base directory
type FileStorage struct {
	basePath string
}

// NewFileStorage creates the base directory if needed
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}
	return &FileStorage{basePath: basePath}, nil
}

// Put writes data to key, creating parent directories
func (s *FileStorage) Put(_ context.Context, key string, data []byte, _ string) error {
	fullPath := s.GetFullPath(key)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// Delete removes the object at key. A missing file is not an error.
func (s *FileStorage) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.GetFullPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// GetFullPath returns the full filesystem path for a key
func (s *FileStorage) GetFullPath(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(key))
}

// Archive writes original and enhanced articles as markdown documents.
// A nil *Archive discards everything.
type Archive struct {
	backend Backend
}

// NewArchive creates an Archive over backend
func NewArchive(backend Backend) *Archive {
	return &Archive{backend: backend}
}

// SaveOriginal archives the scraped text of an article and returns its key
func (a *Archive) SaveOriginal(ctx context.Context, article *models.Article) (string, error) {
	if a == nil {
		return "", nil
	}
	key := articleKey("originals", article)
	return key, a.backend.Put(ctx, key, []byte(renderOriginal(article)), markdownContentType)
}

// SaveEnhanced archives the enhanced markdown of an article and returns its key
func (a *Archive) SaveEnhanced(ctx context.Context, article *models.Article) (string, error) {
	if a == nil {
		return "", nil
	}
	if article.UpdatedContent == nil {
		return "", fmt.Errorf("article %s has no enhanced content", article.ID)
	}
	key := articleKey("enhanced", article)
	return key, a.backend.Put(ctx, key, []byte(*article.UpdatedContent), markdownContentType)
}

// Delete removes both archived documents of an article
func (a *Archive) Delete(ctx context.Context, article *models.Article) error {
	if a == nil {
		return nil
	}
	for _, kind := range []string{"originals", "enhanced"} {
		if err := a.backend.Delete(ctx, articleKey(kind, article)); err != nil {
			return err
		}
	}
	return nil
}

// articleKey lays documents out as kind/YYYY/MM/slug.md by scrape date
func articleKey(kind string, article *models.Article) string {
	scraped := article.ScrapedAt
	if scraped.IsZero() {
		scraped = time.Now()
	}
	scraped = scraped.UTC()

	name := slug.ForArticle(article.Title, article.SourceURL, article.ID) + ".md"
	return path.Join(kind, fmt.Sprintf("%04d", scraped.Year()), fmt.Sprintf("%02d", int(scraped.Month())), name)
}

func renderOriginal(article *models.Article) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(article.Title)
	b.WriteString("\n\n")
	if article.SourceURL != "" {
		fmt.Fprintf(&b, "Source: %s\n\n", article.SourceURL)
	}
	b.WriteString(article.Content)
	b.WriteString("\n")
	return b.String()
}
