package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/models"
	"github.com/hyperjump/autoscan/internal/notion"
)

// notionTarget carries the optional credentials of a Notion request. Empty
// fields fall back to the notion block of the config.
type notionTarget struct {
	Token      string `json:"token"`
	DatabaseID string `json:"databaseId"`
}

func (s *Server) resolveTarget(t notionTarget) notionTarget {
	cfg := s.config.Get().Notion
	if t.Token == "" {
		t.Token = cfg.Token
	}
	if t.DatabaseID == "" {
		t.DatabaseID = cfg.DatabaseID
	}
	return t
}

type notionPageRequest struct {
	notionTarget
	Title        string            `json:"title"`
	Children     []json.RawMessage `json:"children"`
	PropertyName string            `json:"propertyName"`
}

type notionStructuredRequest struct {
	notionTarget
	Properties notion.Properties `json:"properties"`
}

type notionUploadRequest struct {
	notionTarget
	Items []models.ActionItem `json:"items"`
}

type upsertResponse struct {
	Action notion.Action   `json:"action"`
	Score  float64         `json:"score,omitempty"`
	ID     string          `json:"id"`
	URL    string          `json:"url,omitempty"`
	Page   json.RawMessage `json:"page,omitempty"`
}

func bearerToken(r *http.Request) string {
	return strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
}

func (s *Server) handleNotionDatabase(w http.ResponseWriter, r *http.Request) {
	t := s.resolveTarget(notionTarget{Token: bearerToken(r), DatabaseID: chi.URLParam(r, "id")})
	if t.Token == "" {
		s.respondError(w, http.StatusBadRequest, "Missing Notion token")
		return
	}
	db, err := s.notion(t.Token).GetDatabase(r.Context(), t.DatabaseID)
	if err != nil {
		s.respondFailure(w, "notion database", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(db.Raw)
}

func (s *Server) handleNotionPage(w http.ResponseWriter, r *http.Request) {
	var req notionPageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.notionTarget = s.resolveTarget(req.notionTarget)
	if req.Token == "" || req.DatabaseID == "" {
		s.respondError(w, http.StatusBadRequest, "Missing Notion token or databaseId")
		return
	}
	if req.PropertyName == "" {
		req.PropertyName = notion.DefaultTitleProperty
	}
	s.logger.Debug("notion page request", zap.String("title", req.Title), zap.String("property", req.PropertyName))
	props := notion.Properties{req.PropertyName: notion.TitleValue(req.Title)}
	page, err := s.notion(req.Token).CreatePage(r.Context(), req.DatabaseID, props, req.Children)
	if err != nil {
		s.respondFailure(w, "notion page", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page.Raw)
}

func (s *Server) handleNotionStructured(w http.ResponseWriter, r *http.Request) {
	var req notionStructuredRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.notionTarget = s.resolveTarget(req.notionTarget)
	if req.Token == "" || req.DatabaseID == "" || len(req.Properties) == 0 {
		s.respondError(w, http.StatusBadRequest, "Missing required fields: token, databaseId, or properties")
		return
	}
	res, err := notion.NewUpserter(s.notion(req.Token), s.logger).Upsert(r.Context(), req.DatabaseID, req.Properties)
	if err != nil {
		s.respondFailure(w, "notion upsert", err)
		return
	}
	resp := upsertResponse{Action: res.Action, Score: res.Score}
	if res.Page != nil {
		resp.ID, resp.URL, resp.Page = res.Page.ID, res.Page.URL, res.Page.Raw
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNotionUpload(w http.ResponseWriter, r *http.Request) {
	var req notionUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.notionTarget = s.resolveTarget(req.notionTarget)
	if req.Token == "" || req.DatabaseID == "" {
		s.respondError(w, http.StatusBadRequest, "Missing Notion token or databaseId")
		return
	}
	names := s.config.Get().Notion.Properties
	res, err := notion.NewUploader(s.notion(req.Token), req.DatabaseID, names, s.logger).Upload(r.Context(), req.Items)
	switch {
	case errors.Is(err, notion.ErrNoItems):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case err != nil && res != nil:
		s.logger.Error("notion upload failed", zap.Error(err), zap.Strings("errors", res.Errors))
		s.respondJSON(w, http.StatusBadGateway, res)
	case err != nil:
		s.respondFailure(w, "notion upload", err)
	default:
		s.respondJSON(w, http.StatusOK, res)
	}
}
