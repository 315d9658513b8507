package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/analysis"
	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/extract"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/notion"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes {"error": msg, "message": msg}; the browser UI reads
// message, API clients read error.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "message": message})
}

// statusFor maps a pipeline error to an HTTP status.
func statusFor(err error) int {
	var llmErr *llm.Error
	var apiErr *notion.APIError
	switch {
	case errors.Is(err, analysis.ErrEmptyText), errors.Is(err, config.ErrNotConfigured), errors.Is(err, notion.ErrNoItems),
		errors.Is(err, errBadUpload):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr):
		return apiErr.StatusCode
	case errors.As(err, &llmErr):
		switch {
		case llmErr.Kind == llm.KindConfig:
			return http.StatusBadRequest
		case llmErr.Kind == llm.KindTransient && llmErr.StatusCode == 0:
			return http.StatusGatewayTimeout
		case llmErr.Kind == llm.KindPermanent && llmErr.StatusCode >= 400 && llmErr.StatusCode < 500:
			return llmErr.StatusCode
		}
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondFailure logs err and writes it. Notion errors are relayed with
// their original body so the browser sees Notion's own message.
func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= 500 {
		s.logger.Error(op+" failed", zap.Error(err), zap.Int("status", status))
	} else {
		s.logger.Debug(op+" rejected", zap.Error(err), zap.Int("status", status))
	}
	var apiErr *notion.APIError
	if errors.As(err, &apiErr) && json.Valid(apiErr.Body) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(apiErr.Body)
		return
	}
	s.respondError(w, status, err.Error())
}
