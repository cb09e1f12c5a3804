package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/docutag/enhancer/apperr"
	"github.com/docutag/enhancer/models"
)

type fakeStrategy struct {
	name     string
	prefix   string
	articles []models.ScrapedArticle
	err      error
	gotOpts  Options
}

func (f *fakeStrategy) Name() string { return f.name }

func (f *fakeStrategy) CanHandle(rawURL string) bool {
	return f.prefix == "" || strings.HasPrefix(rawURL, f.prefix)
}

func (f *fakeStrategy) Scrape(_ context.Context, _ string, opts Options) ([]models.ScrapedArticle, error) {
	f.gotOpts = opts
	return f.articles, f.err
}

type memCreator struct {
	created []*models.Article
	failFor string
}

func (m *memCreator) CreateArticle(_ context.Context, a *models.Article) error {
	if a.Title == m.failFor {
		return errors.New("unique violation")
	}
	a.ID = fmt.Sprintf("article-%d", len(m.created)+1)
	m.created = append(m.created, a)
	return nil
}

type fakeArchive struct {
	saved []string
	err   error
}

func (f *fakeArchive) SaveOriginal(_ context.Context, a *models.Article) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, a.ID)
	return "originals/" + a.ID + ".md", nil
}

func scraped(titles ...string) []models.ScrapedArticle {
	out := make([]models.ScrapedArticle, len(titles))
	for i, title := range titles {
		out[i] = models.ScrapedArticle{Title: title, Content: "body", SourceURL: "https://beyondchats.com/blogs/" + title}
	}
	return out
}

func TestScrapeSource(t *testing.T) {
	source := &fakeStrategy{name: "beyondchats", prefix: "https://beyondchats.com", articles: scraped("a", "b", "c")}
	store := &memCreator{failFor: "b"}
	archive := &fakeArchive{}

	s := NewService(Config{MaxArticles: 3}, NewRegistry(source, &fakeStrategy{name: "generic"}), store, archive, nil, nil)

	resp, err := s.ScrapeSource(context.Background())
	if err != nil {
		t.Fatalf("ScrapeSource() error = %v", err)
	}
	if resp.Message != "Successfully scraped and stored 2 articles" || resp.Count != 2 {
		t.Errorf("resp = %+v", resp)
	}
	if len(resp.ArticleIDs) != 2 || resp.ArticleIDs[0] != "article-1" || resp.ArticleIDs[1] != "article-2" {
		t.Errorf("articleIds = %v", resp.ArticleIDs)
	}
	if source.gotOpts.MaxArticles != 3 || source.gotOpts.Timeout != DefaultTimeout {
		t.Errorf("options = %+v", source.gotOpts)
	}
	for _, a := range store.created {
		if a.Status != models.StatusOriginal || a.UpdatedContent != nil {
			t.Errorf("stored article = %+v", a)
		}
	}
	if len(archive.saved) != 2 {
		t.Errorf("archived = %v", archive.saved)
	}
}

func TestScrapeSourceStrategyError(t *testing.T) {
	source := &fakeStrategy{name: "beyondchats", err: apperr.External("ingest", "failed", errors.New("timeout"))}
	s := NewService(Config{}, NewRegistry(source), &memCreator{}, nil, nil, nil)

	if _, err := s.ScrapeSource(context.Background()); !apperr.IsExternal(err) {
		t.Errorf("expected external service error, got %v", err)
	}
}

func TestScrapeURL(t *testing.T) {
	t.Run("stores first article", func(t *testing.T) {
		generic := &fakeStrategy{name: "generic", articles: scraped("post")}
		store := &memCreator{}
		archive := &fakeArchive{err: errors.New("bucket missing")}
		s := NewService(Config{}, NewRegistry(generic), store, archive, nil, nil)

		resp, err := s.ScrapeURL(context.Background(), "https://example.com/post")
		if err != nil {
			t.Fatalf("ScrapeURL() error = %v", err)
		}
		if resp.Message != "Article scraped and stored successfully" || resp.ArticleID != "article-1" {
			t.Errorf("resp = %+v", resp)
		}
		if generic.gotOpts.MaxArticles != 1 {
			t.Errorf("maxArticles = %d, want 1", generic.gotOpts.MaxArticles)
		}
	})

	t.Run("empty result", func(t *testing.T) {
		s := NewService(Config{}, NewRegistry(&fakeStrategy{name: "generic"}), &memCreator{}, nil, nil, nil)
		_, err := s.ScrapeURL(context.Background(), "https://example.com/post")
		if !apperr.IsNotFound(err) || err.Error() != "No article found at URL" {
			t.Errorf("expected NotFound, got %v", err)
		}
	})

	t.Run("store failure", func(t *testing.T) {
		generic := &fakeStrategy{name: "generic", articles: scraped("post")}
		s := NewService(Config{}, NewRegistry(generic), &memCreator{failFor: "post"}, nil, nil, nil)
		if _, err := s.ScrapeURL(context.Background(), "https://example.com/post"); !apperr.IsPersistence(err) {
			t.Errorf("expected persistence error, got %v", err)
		}
	})

	invalid := []string{"", "not a url", "ftp://example.com/x", "https://"}
	for _, raw := range invalid {
		t.Run("invalid "+raw, func(t *testing.T) {
			s := NewService(Config{}, NewRegistry(&fakeStrategy{name: "generic"}), &memCreator{}, nil, nil, nil)
			if _, err := s.ScrapeURL(context.Background(), raw); !apperr.IsValidation(err) {
				t.Errorf("ScrapeURL(%q) expected validation error, got %v", raw, err)
			}
		})
	}
}
