package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docutag/enhancer/apperr"
)

const listingPage1 = `<!DOCTYPE html>
<html><body>
<article><h2>Newest post</h2><a href="/blogs/newest">Read</a></article>
<div class="pagination">
  <a href="?page=1">1</a>
  <a href="?page=2">2</a>
  <a href="?page=3">3</a>
</div>
</body></html>`

const listingPage3 = `<!DOCTYPE html>
<html><body>
<article>
  <h2>Oldest: Why Chatbots Matter</h2>
  <p class="excerpt">An early look at support automation.</p>
  <a href="/blogs/why-chatbots-matter">Read more</a>
  <span class="author">Jane Doe</span>
  <time datetime="2023-01-15T10:00:00Z">Jan 15, 2023</time>
</article>
<article>
  <h2>Draft without a link</h2>
  <p>Nothing to follow here.</p>
</article>
<article>
  <h3>Second oldest</h3>
  <p>Lead paragraph.</p>
  <a href="https://beyondchats.com/blogs/second-oldest">Read</a>
  <span class="date">March 3, 2023</span>
</article>
<div class="pagination">
  <a href="/blogs/page/1">1</a>
  <span class="active">3</span>
</div>
</body></html>`

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, body)
}

func newListingServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/blogs" && r.URL.Query().Get("page") == "3":
			// Query pagination is ignored and serves the first page
			writeHTML(w, listingPage1)
		case r.URL.Path == "/blogs" && r.URL.RawQuery == "":
			writeHTML(w, listingPage1)
		case r.URL.Path == "/blogs/page/3":
			writeHTML(w, listingPage3)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestBeyondChatsScrapesLastPage(t *testing.T) {
	server := newListingServer(t)
	s := NewBeyondChats(server.URL+"/blogs", nil)

	articles, err := s.Scrape(context.Background(), server.URL+"/blogs", Options{MaxArticles: 5})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(articles) != 2 {
		t.Fatalf("got %d articles, want 2 (entry without link skipped): %+v", len(articles), articles)
	}

	first := articles[0]
	if first.Title != "Oldest: Why Chatbots Matter" {
		t.Errorf("title = %q", first.Title)
	}
	if first.Content != "An early look at support automation." {
		t.Errorf("content = %q", first.Content)
	}
	if first.SourceURL != server.URL+"/blogs/why-chatbots-matter" {
		t.Errorf("url = %q", first.SourceURL)
	}
	if first.Author != "Jane Doe" {
		t.Errorf("author = %q", first.Author)
	}
	if first.PublishedAt == nil || first.PublishedAt.Format("2006-01-02") != "2023-01-15" {
		t.Errorf("publishedAt = %v", first.PublishedAt)
	}

	second := articles[1]
	if second.Title != "Second oldest" || second.SourceURL != "https://beyondchats.com/blogs/second-oldest" {
		t.Errorf("second = %+v", second)
	}
	if second.PublishedAt == nil || second.PublishedAt.Format("2006-01-02") != "2023-03-03" {
		t.Errorf("second publishedAt = %v", second.PublishedAt)
	}
}

func TestBeyondChatsRespectsMaxArticles(t *testing.T) {
	server := newListingServer(t)
	s := NewBeyondChats(server.URL+"/blogs", nil)

	articles, err := s.Scrape(context.Background(), server.URL+"/blogs", Options{MaxArticles: 1})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(articles) != 1 || articles[0].Title != "Oldest: Why Chatbots Matter" {
		t.Errorf("articles = %+v", articles)
	}
}

func TestBeyondChatsSinglePage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, `<html><body>
<div class="blog-post"><div class="title">Only post</div><div class="content">Body</div><a href="/blogs/only">Go</a></div>
</body></html>`)
	}))
	defer server.Close()

	s := NewBeyondChats(server.URL+"/blogs", nil)
	articles, err := s.Scrape(context.Background(), server.URL+"/blogs", Options{})
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("got %d articles, want 1", len(articles))
	}
	if articles[0].Title != "Only post" || articles[0].Content != "Body" {
		t.Errorf("article = %+v", articles[0])
	}
}

func TestBeyondChatsErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
	}{
		{
			name: "no entries",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeHTML(w, `<html><body><h1>Nothing here</h1></body></html>`)
			},
			wantMsg: "no articles found on page",
		},
		{
			name: "pagination never verifies",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeHTML(w, `<html><body><article><h2>A</h2><a href="/a">a</a></article>
<div class="pagination"><a href="#">1</a><a href="#">4</a></div></body></html>`)
			},
			wantMsg: "could not navigate to page 4",
		},
		{
			name: "listing unavailable",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "down", http.StatusServiceUnavailable)
			},
			wantMsg: "status 503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			s := NewBeyondChats(server.URL+"/blogs", nil)
			_, err := s.Scrape(context.Background(), server.URL+"/blogs", Options{})
			if !apperr.IsExternal(err) {
				t.Fatalf("expected external service error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
