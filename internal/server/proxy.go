package server

import (
	"encoding/json"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/metrics"
	"github.com/hyperjump/autoscan/internal/models"
	"github.com/hyperjump/autoscan/internal/parser"
)

// vendorProxy forwards /api/<vendor>/* to target/*. Headers and query pass
// through; inject may add credentials the browser did not send.
func (s *Server) vendorProxy(vendor string, target *url.URL, inject func(out *http.Request, cfg *config.Config)) http.HandlerFunc {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.URL.Path = strings.TrimSuffix(target.Path, "/") + "/" + chi.URLParam(pr.In, "*")
			pr.Out.URL.RawPath = ""
			pr.Out.Header.Del("Cookie")
			inject(pr.Out, s.config.Get())
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Error("proxy request failed", zap.String("vendor", vendor), zap.Error(err))
			s.respondError(w, http.StatusBadGateway, err.Error())
		},
	}
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("proxying request",
			zap.String("vendor", vendor),
			zap.String("method", r.Method),
			zap.String("path", chi.URLParam(r, "*")))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		proxy.ServeHTTP(ww, r)
		metrics.RecordUpstreamRequest(vendor+"-proxy", strconv.Itoa(ww.Status()), time.Since(start))
	}
}

func (s *Server) injectOpenAIKey(out *http.Request, cfg *config.Config) {
	if out.Header.Get("Authorization") != "" {
		return
	}
	if key := cfg.OpenAI.ResolveAPIKey(""); key != "" {
		out.Header.Set("Authorization", "Bearer "+key)
	}
}

func (s *Server) injectGeminiKey(out *http.Request, cfg *config.Config) {
	q := out.URL.Query()
	if q.Get("key") != "" {
		return
	}
	if key := cfg.Gemini.ResolveAPIKey(""); key != "" {
		q.Set("key", key)
		out.URL.RawQuery = q.Encode()
	}
}

type vertexResponse struct {
	*llm.VertexAnswer
	Items []models.ActionItem `json:"items"`
	Stage string              `json:"stage"`
}

func (s *Server) handleVertexQuery(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.respondError(w, http.StatusBadRequest, "vertex agent is not configured")
		return
	}
	var q llm.VertexQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil || strings.TrimSpace(q.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	ans, err := s.agent.Query(r.Context(), q)
	if err != nil {
		s.respondFailure(w, "vertex query", err)
		return
	}
	parsed := parser.ParseAgentAnswer(ans.Answer, time.Now())
	metrics.IncrementParseStage(string(parsed.Stage))
	s.respondJSON(w, http.StatusOK, vertexResponse{VertexAnswer: ans, Items: parsed.Items, Stage: string(parsed.Stage)})
}

func (s *Server) handleVertexHealth(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.respondJSON(w, http.StatusOK, llm.VertexHealth{Status: "unconfigured", Message: "vertex agent is not configured"})
		return
	}
	s.respondJSON(w, http.StatusOK, s.agent.Health(r.Context()))
}
