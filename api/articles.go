package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/docutag/enhancer/models"
)

const (
	defaultTake = 10
	maxTake     = 100
)

// handleArticles handles list (GET) and create (POST)
func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleCreate(w, r)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleArticle handles GET, PATCH and DELETE for a single article
func (s *Server) handleArticle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetByID(w, r, id)
	case http.MethodPatch:
		s.handleUpdate(w, r, id)
	case http.MethodDelete:
		s.handleDeleteByID(w, r, id)
	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleList lists articles newest first with skip/take pagination
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	skip, err := parseNonNegative(query.Get("skip"), 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	take, err := parseNonNegative(query.Get("take"), defaultTake)
	if err != nil {
		respondError(w, http.StatusBadRequest, "take must be a non-negative integer")
		return
	}
	if take > maxTake {
		take = maxTake
	}
	if take == 0 {
		respondJSON(w, http.StatusOK, []*models.Article{})
		return
	}

	status, ok := parseStatus(query.Get("status"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	articles, err := s.store.ListArticles(r.Context(), models.ArticleFilter{
		Status: status,
		Skip:   skip,
		Take:   take,
	})
	if err != nil {
		s.logger.Error("failed to list articles", "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, articles)
}

// handleCount returns the number of articles as a bare JSON number
func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	status, ok := parseStatus(r.URL.Query().Get("status"))
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}

	count, err := s.store.CountArticles(r.Context(), status)
	if err != nil {
		s.logger.Error("failed to count articles", "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	respondJSON(w, http.StatusOK, count)
}

// handleCreate stores a manually submitted article
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateArticleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" || req.SourceURL == "" {
		respondError(w, http.StatusBadRequest, "title, content and sourceUrl are required")
		return
	}
	if !validHTTPURL(req.SourceURL) {
		respondError(w, http.StatusBadRequest, "sourceUrl must be a valid http or https URL")
		return
	}
	if req.Status != "" && !req.Status.Valid() {
		respondError(w, http.StatusBadRequest, "invalid status")
		return
	}
	if req.Status == models.StatusEnhanced {
		respondError(w, http.StatusBadRequest, "status ENHANCED requires updatedContent")
		return
	}

	article := &models.Article{
		Title:     req.Title,
		Content:   req.Content,
		SourceURL: req.SourceURL,
		Status:    req.Status,
	}
	if err := s.store.CreateArticle(r.Context(), article); err != nil {
		s.logger.Error("failed to create article", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create article")
		return
	}

	respondJSON(w, http.StatusCreated, article)
}

// handleGetByID retrieves an article by ID
func (s *Server) handleGetByID(w http.ResponseWriter, r *http.Request, id string) {
	article, err := s.store.GetArticle(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get article", "article_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if article == nil {
		respondError(w, http.StatusNotFound, notFoundMessage(id))
		return
	}

	respondJSON(w, http.StatusOK, article)
}

// handleUpdate applies a partial update. The merged article must keep
// updatedContent and references set together.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, id string) {
	var upd models.ArticleUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if msg := validateUpdate(upd); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	existing, err := s.store.GetArticle(r.Context(), id)
	if err != nil {
		s.logger.Error("failed to get article", "article_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, notFoundMessage(id))
		return
	}

	updatedContent := existing.UpdatedContent
	if upd.UpdatedContent != nil {
		updatedContent = upd.UpdatedContent
	}
	references := existing.References
	if upd.References != nil {
		references = *upd.References
	}
	status := existing.Status
	if upd.Status != nil {
		status = *upd.Status
	}

	if references != nil && updatedContent == nil {
		respondError(w, http.StatusBadRequest, "references require updatedContent")
		return
	}
	if updatedContent != nil && references == nil {
		empty := []models.Reference{}
		upd.References = &empty
	}
	if status == models.StatusEnhanced && updatedContent == nil {
		respondError(w, http.StatusBadRequest, "status ENHANCED requires updatedContent")
		return
	}

	article, err := s.store.UpdateArticle(r.Context(), id, upd)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}
	if article == nil {
		respondError(w, http.StatusNotFound, notFoundMessage(id))
		return
	}

	respondJSON(w, http.StatusOK, article)
}

// handleDeleteByID deletes an article and its archived documents, and
// returns the deleted article. Archive failures are logged only.
func (s *Server) handleDeleteByID(w http.ResponseWriter, r *http.Request, id string) {
	article, err := s.store.DeleteArticle(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err)
		return
	}

	if s.archive != nil {
		if err := s.archive.Delete(r.Context(), article); err != nil {
			s.logger.Warn("failed to delete archived article", "article_id", id, "error", err)
		}
	}

	respondJSON(w, http.StatusOK, article)
}

func validateUpdate(upd models.ArticleUpdate) string {
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return "title must not be empty"
	}
	if upd.Content != nil && strings.TrimSpace(*upd.Content) == "" {
		return "content must not be empty"
	}
	if upd.SourceURL != nil && !validHTTPURL(*upd.SourceURL) {
		return "sourceUrl must be a valid http or https URL"
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return "invalid status"
	}
	return ""
}

func notFoundMessage(id string) string {
	return fmt.Sprintf("Article with ID %s not found", id)
}

func parseNonNegative(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return n, nil
}

// parseStatus accepts an empty filter or a known status
func parseStatus(raw string) (models.ArticleStatus, bool) {
	if raw == "" {
		return "", true
	}
	status := models.ArticleStatus(raw)
	return status, status.Valid()
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
