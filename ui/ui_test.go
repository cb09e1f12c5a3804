package ui

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/docutag/enhancer/models"
)

type memStore struct {
	articles []*models.Article
	err      error
	filter   models.ArticleFilter
}

func (m *memStore) GetArticle(_ context.Context, id string) (*models.Article, error) {
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.articles {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListArticles(_ context.Context, filter models.ArticleFilter) ([]*models.Article, error) {
	m.filter = filter
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.Article
	for _, a := range m.articles {
		if filter.Status == "" || a.Status == filter.Status {
			out = append(out, a)
		}
	}
	return out, nil
}

func ptr(s string) *string { return &s }

func newTestStore() *memStore {
	scraped := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	return &memStore{articles: []*models.Article{
		{
			ID: "a1", Title: "Chatbot Basics", Content: "First paragraph.\n\nSecond paragraph.",
			SourceURL: "https://beyondchats.com/blogs/chatbot-basics", Status: models.StatusOriginal, ScrapedAt: scraped,
		},
		{
			ID: "a2", Title: "Advanced Features", Content: "Original body.",
			SourceURL: "https://beyondchats.com/blogs/advanced", Status: models.StatusEnhanced, ScrapedAt: scraped,
			UpdatedContent: ptr("## Better Heading\n\nEnhanced **body**."),
			References:     []models.Reference{{Title: "AI Guide", URL: "https://example.com/guide"}},
		},
		{
			ID: "a3", Title: "In Flight", Content: "Body.",
			SourceURL: "https://beyondchats.com/blogs/in-flight", Status: models.StatusProcessing, ScrapedAt: scraped,
		},
	}}
}

func serve(t *testing.T, u *UI, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	u.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestListPage(t *testing.T) {
	store := newTestStore()
	u, err := New(store, nil)
	if err != nil {
		t.Fatalf("Failed to create UI: %v", err)
	}

	rec := serve(t, u, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Chatbot Basics", "Advanced Features", `href="/articles/a1"`, "badge-success", "Jan 20, 2024"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in list page", want)
		}
	}
	if store.filter.Take != listLimit {
		t.Errorf("take = %d, want %d", store.filter.Take, listLimit)
	}
}

func TestListPageStatusFilter(t *testing.T) {
	tests := []struct {
		query      string
		wantStatus models.ArticleStatus
		present    string
		absent     string
	}{
		{"?status=ENHANCED", models.StatusEnhanced, "Advanced Features", "Chatbot Basics"},
		{"?status=ORIGINAL", models.StatusOriginal, "Chatbot Basics", "Advanced Features"},
		{"?status=bogus", "", "Chatbot Basics", ""},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			store := newTestStore()
			u, err := New(store, nil)
			if err != nil {
				t.Fatalf("Failed to create UI: %v", err)
			}

			body := serve(t, u, "/"+tt.query).Body.String()
			if store.filter.Status != tt.wantStatus {
				t.Errorf("filter status = %q, want %q", store.filter.Status, tt.wantStatus)
			}
			if !strings.Contains(body, tt.present) {
				t.Errorf("expected %q in page", tt.present)
			}
			if tt.absent != "" && strings.Contains(body, tt.absent) {
				t.Errorf("did not expect %q in page", tt.absent)
			}
		})
	}
}

func TestDetailPage(t *testing.T) {
	u, err := New(newTestStore(), nil)
	if err != nil {
		t.Fatalf("Failed to create UI: %v", err)
	}

	tests := []struct {
		name       string
		path       string
		wantCode   int
		contains   []string
		notContain []string
	}{
		{
			name:     "enhanced side by side",
			path:     "/articles/a2",
			wantCode: http.StatusOK,
			contains: []string{"Original body.", "<h2>Better Heading</h2>", "<strong>body</strong>", `href="https://example.com/guide"`, "AI Guide"},
		},
		{
			name:       "original not yet enhanced",
			path:       "/articles/a1",
			wantCode:   http.StatusOK,
			contains:   []string{"<p>First paragraph.</p>", "<p>Second paragraph.</p>", "Not Yet Enhanced"},
			notContain: []string{"References"},
		},
		{
			name:     "processing",
			path:     "/articles/a3",
			wantCode: http.StatusOK,
			contains: []string{"Enhancement in Progress"},
		},
		{
			name:     "missing",
			path:     "/articles/zzz",
			wantCode: http.StatusNotFound,
			contains: []string{"Article with ID zzz not found"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, u, tt.path)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			body := rec.Body.String()
			for _, want := range tt.contains {
				if !strings.Contains(body, want) {
					t.Errorf("expected %q in page:\n%s", want, body)
				}
			}
			for _, unwanted := range tt.notContain {
				if strings.Contains(body, unwanted) {
					t.Errorf("did not expect %q in page", unwanted)
				}
			}
		})
	}
}

func TestStoreErrors(t *testing.T) {
	store := newTestStore()
	store.err = errors.New("connection refused")
	u, err := New(store, nil)
	if err != nil {
		t.Fatalf("Failed to create UI: %v", err)
	}

	for _, path := range []string{"/", "/articles/a1"} {
		if rec := serve(t, u, path); rec.Code != http.StatusInternalServerError {
			t.Errorf("GET %s: expected 500, got %d", path, rec.Code)
		}
	}
}

func TestStaticAndUnknownPaths(t *testing.T) {
	u, err := New(newTestStore(), nil)
	if err != nil {
		t.Fatalf("Failed to create UI: %v", err)
	}

	if rec := serve(t, u, "/static/style.css"); rec.Code != http.StatusOK {
		t.Errorf("expected stylesheet, got %d", rec.Code)
	}
	if rec := serve(t, u, "/nowhere"); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestParagraphs(t *testing.T) {
	got := paragraphs("  One \n\n\n\nTwo\n\n ")
	if len(got) != 2 || got[0] != "One" || got[1] != "Two" {
		t.Errorf("paragraphs() = %q", got)
	}
}
