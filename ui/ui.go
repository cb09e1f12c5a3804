// Package ui renders the article list and the original/enhanced comparison
// pages.
package ui

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/docutag/enhancer/models"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// listLimit bounds the article list page
const listLimit = 100

// ArticleReader loads articles for display
type ArticleReader interface {
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	ListArticles(ctx context.Context, filter models.ArticleFilter) ([]*models.Article, error)
}

// UI serves the HTML pages
type UI struct {
	store  ArticleReader
	pages  map[string]*template.Template
	mux    *http.ServeMux
	logger *slog.Logger
}

// New parses the embedded templates and registers the page routes
func New(store ArticleReader, logger *slog.Logger) (*UI, error) {
	if logger == nil {
		logger = slog.Default()
	}

	funcMap := template.FuncMap{
		"markdown":   renderMarkdown,
		"paragraphs": paragraphs,
		"badge":      badgeClass,
		"deref": func(s *string) string {
			if s == nil {
				return ""
			}
			return *s
		},
		"inc": func(i int) int { return i + 1 },
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone so that "title" and "content" do not collide
	pageNames := []string{"list.html", "detail.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	u := &UI{store: store, pages: pages, mux: http.NewServeMux(), logger: logger}
	u.routes()
	return u, nil
}

// ServeHTTP dispatches to the page routes
func (u *UI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u.mux.ServeHTTP(w, r)
}

func (u *UI) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	u.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	u.mux.HandleFunc("/", u.handleList)
	u.mux.HandleFunc("/articles/{id}", u.handleDetail)
}

var statusFilters = []models.ArticleStatus{
	models.StatusOriginal,
	models.StatusProcessing,
	models.StatusEnhanced,
	models.StatusFailed,
}

func (u *UI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := models.ArticleStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		status = ""
	}

	articles, err := u.store.ListArticles(r.Context(), models.ArticleFilter{Status: status, Take: listLimit})
	if err != nil {
		u.logger.Error("failed to list articles", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	u.render(w, http.StatusOK, "list.html", map[string]any{
		"Articles": articles,
		"Status":   status,
		"Filters":  statusFilters,
	})
}

func (u *UI) handleDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id := r.PathValue("id")
	article, err := u.store.GetArticle(r.Context(), id)
	if err != nil {
		u.logger.Error("failed to get article", "article_id", id, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if article == nil {
		u.render(w, http.StatusNotFound, "detail.html", map[string]any{"MissingID": id})
		return
	}

	u.render(w, http.StatusOK, "detail.html", map[string]any{
		"Article":    article,
		"Enhanced":   article.Status == models.StatusEnhanced && article.UpdatedContent != nil,
		"Processing": article.Status == models.StatusProcessing,
	})
}

// render buffers the page so that template errors still produce a 500
func (u *UI) render(w http.ResponseWriter, status int, name string, data any) {
	tmpl, ok := u.pages[name]
	if !ok {
		u.logger.Error("template not found", "template", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		u.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// paragraphs splits plain scraped text on blank lines
func paragraphs(text string) []string {
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func badgeClass(status models.ArticleStatus) string {
	switch status {
	case models.StatusEnhanced:
		return "badge-success"
	case models.StatusProcessing:
		return "badge-warning"
	case models.StatusFailed:
		return "badge-danger"
	default:
		return "badge-outline"
	}
}
