package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/analysis"
	"github.com/hyperjump/autoscan/internal/extract"
	"github.com/hyperjump/autoscan/internal/insight"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/models"
)

const multipartMemory = 8 << 20

// errBadUpload marks a multipart body that could not be parsed.
var errBadUpload = errors.New("malformed multipart upload")

type analyzeResponse struct {
	*analysis.Report
	Source  string          `json:"source,omitempty"`
	Summary insight.Summary `json:"summary"`
}

type insightsRequest struct {
	Items []models.ActionItem `json:"items"`
	Query string              `json:"query,omitempty"`
	Fuzzy bool                `json:"fuzzy,omitempty"`
	Limit int                 `json:"limit,omitempty"`
}

type insightsResponse struct {
	Summary insight.Summary `json:"summary"`
	Matches []insight.Hit   `json:"matches,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.config.Get()
	services := map[string]bool{}
	for _, name := range []string{"gemini", "openai", "notion", "vertex"} {
		services[name] = cfg.IsConfigured(name)
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "services": services})
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func (s *Server) bodyLimit() int64 {
	if s.extractor.MaxBytes > 0 {
		return s.extractor.MaxBytes + multipartMemory
	}
	return extract.DefaultMaxBytes + multipartMemory
}

// readUpload extracts the "file" part of a multipart request. A request
// without a file part returns a nil document.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*extract.Document, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.bodyLimit())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, extract.ErrTooLarge
		}
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadUpload, err)
	}
	defer file.Close()
	return s.extractor.ExtractReader(file, header.Filename)
}

func formBool(r *http.Request, key string) bool {
	b, _ := strconv.ParseBool(r.FormValue(key))
	return b
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	var source string
	if isMultipart(r) {
		doc, err := s.readUpload(w, r)
		if err != nil {
			s.respondFailure(w, "analyze upload", err)
			return
		}
		req = analysis.Request{
			Text:           r.FormValue("text"),
			Provider:       llm.Provider(r.FormValue("provider")),
			Agent:          r.FormValue("agent"),
			Model:          r.FormValue("model"),
			TargetLanguage: r.FormValue("targetLanguage"),
			Structured:     formBool(r, "structured"),
			UseAgent:       formBool(r, "useAgent"),
		}
		if doc != nil {
			req.Text, source = doc.Text, doc.Name
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	s.logger.Debug("analyze request",
		zap.String("provider", string(req.Provider)),
		zap.String("agent", req.Agent),
		zap.Int("chars", len(req.Text)),
		zap.String("source", source))
	report, err := s.analyzer.Analyze(r.Context(), req)
	if err != nil {
		s.respondFailure(w, "analyze", err)
		return
	}
	s.respondJSON(w, http.StatusOK, analyzeResponse{Report: report, Source: source, Summary: insight.Summarize(report.Items)})
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		s.respondError(w, http.StatusBadRequest, "multipart form with a file field is required")
		return
	}
	doc, err := s.readUpload(w, r)
	if err != nil {
		s.respondFailure(w, "extract", err)
		return
	}
	if doc == nil {
		s.respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp := insightsResponse{Summary: insight.Summarize(req.Items)}
	if strings.TrimSpace(req.Query) != "" {
		idx, err := insight.NewItemIndex(req.Items)
		if err != nil {
			s.respondFailure(w, "insights", err)
			return
		}
		defer idx.Close()
		hits, err := idx.Search(req.Query, req.Limit, req.Fuzzy)
		if err != nil {
			s.respondFailure(w, "insights search", err)
			return
		}
		resp.Matches = hits
	}
	s.respondJSON(w, http.StatusOK, resp)
}
