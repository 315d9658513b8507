package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/autoscan/internal/analysis"
	"github.com/hyperjump/autoscan/internal/config"
	"github.com/hyperjump/autoscan/internal/llm"
	"github.com/hyperjump/autoscan/internal/models"
	"github.com/hyperjump/autoscan/internal/notion"
	"github.com/hyperjump/autoscan/internal/parser"
)

type mockAnalyzer struct {
	req    analysis.Request
	report *analysis.Report
	err    error
}

func (m *mockAnalyzer) Analyze(_ context.Context, req analysis.Request) (*analysis.Report, error) {
	m.req = req
	if m.err != nil {
		return nil, m.err
	}
	return m.report, nil
}

type mockNotion struct {
	pages     []notion.Page
	created   []notion.Properties
	updated   map[string]notion.Properties
	getErr    error
	createErr error
}

func (m *mockNotion) QueryRecent(context.Context, string, int) ([]notion.Page, error) {
	return m.pages, nil
}

func (m *mockNotion) CreatePage(_ context.Context, _ string, props notion.Properties, _ []json.RawMessage) (*notion.Page, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.created = append(m.created, props)
	return &notion.Page{ID: "new-page", Raw: json.RawMessage(`{"id":"new-page"}`)}, nil
}

func (m *mockNotion) UpdatePage(_ context.Context, id string, props notion.Properties) (*notion.Page, error) {
	if m.updated == nil {
		m.updated = map[string]notion.Properties{}
	}
	m.updated[id] = props
	return &notion.Page{ID: id, URL: "https://notion.so/" + id, Raw: json.RawMessage(`{"id":"` + id + `"}`)}, nil
}

func (m *mockNotion) TitlePropertyName(context.Context, string) (string, error) {
	return "Name", nil
}

func (m *mockNotion) GetDatabase(context.Context, string) (*notion.Database, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &notion.Database{ID: "db-1", Raw: json.RawMessage(`{"object":"database","id":"db-1"}`)}, nil
}

type mockAgent struct {
	answer string
}

func (m *mockAgent) Query(context.Context, llm.VertexQuery) (*llm.VertexAnswer, error) {
	return &llm.VertexAnswer{Answer: m.answer, State: "SUCCEEDED"}, nil
}

func (m *mockAgent) Health(context.Context) llm.VertexHealth {
	return llm.VertexHealth{Status: "ok", ProjectID: "p"}
}

const serverConfig = `{
  "gemini": {"apiKey": "g-key"},
  "openai": {"apiKey": "sk-main"},
  "notion": {"token": "secret_cfg", "databaseId": "db-cfg"}
}`

func newTestServer(t *testing.T, a Analyzer, opts ...Option) (*Server, http.Handler) {
	t.Helper()
	cfg, err := config.Parse([]byte(serverConfig))
	if err != nil {
		t.Fatal(err)
	}
	s := NewServer(config.NewHolder(cfg), a, opts...)
	return s, s.Routes()
}

func do(h http.Handler, method, path string, body []byte, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if header != nil {
		req.Header = header
	} else {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHandleHealth(t *testing.T) {
	_, h := newTestServer(t, &mockAnalyzer{})
	rec := do(h, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	services := body["services"].(map[string]interface{})
	if services["gemini"] != true || services["notion"] != true || services["vertex"] != false {
		t.Errorf("services = %v", services)
	}
}

func TestHandleAnalyze_json(t *testing.T) {
	a := &mockAnalyzer{report: &analysis.Report{
		ID:    "r1",
		Mode:  analysis.ModeStructured,
		Stage: parser.StageDirect,
		Items: []models.ActionItem{models.NewStructured(models.Fields{Description: "準備Q4簡報", Status: models.StatusDone})},
	}}
	_, h := newTestServer(t, a)
	rec := do(h, http.MethodPost, "/api/analyze", []byte(`{"text":"會議","provider":"gemini","agent":"notes"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if a.req.Text != "會議" || a.req.Agent != "notes" || a.req.Provider != llm.ProviderGemini {
		t.Errorf("request = %+v", a.req)
	}
	body := decodeBody(t, rec)
	if body["id"] != "r1" || body["stage"] != "direct" {
		t.Errorf("body = %v", body)
	}
	summary := body["summary"].(map[string]interface{})
	if summary["structured"] != true {
		t.Errorf("summary = %v", summary)
	}
}

func TestHandleAnalyze_multipart(t *testing.T) {
	a := &mockAnalyzer{report: &analysis.Report{ID: "r2", Items: []models.ActionItem{}}}
	_, h := newTestServer(t, a)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("provider", "openai")
	_ = mw.WriteField("structured", "true")
	fw, err := mw.CreateFormFile("file", "minutes.txt")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte("1. 寄送會議紀錄"))
	_ = mw.Close()

	header := http.Header{}
	header.Set("Content-Type", mw.FormDataContentType())
	rec := do(h, http.MethodPost, "/api/analyze", buf.Bytes(), header)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if a.req.Text != "1. 寄送會議紀錄" || !a.req.Structured || a.req.Provider != llm.ProviderOpenAI {
		t.Errorf("request = %+v", a.req)
	}
	if body := decodeBody(t, rec); body["source"] != "minutes.txt" {
		t.Errorf("source = %v", body["source"])
	}
}

func TestHandleAnalyze_errorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"empty text", analysis.ErrEmptyText, http.StatusBadRequest},
		{"missing key", &llm.Error{Provider: "gemini", Kind: llm.KindConfig, Message: "API key is not configured"}, http.StatusBadRequest},
		{"timeout", &llm.Error{Provider: "gemini", Kind: llm.KindTransient, Message: "timeout"}, http.StatusGatewayTimeout},
		{"upstream 503", &llm.Error{Provider: "openai", Kind: llm.KindTransient, StatusCode: 503}, http.StatusBadGateway},
		{"upstream 401", &llm.Error{Provider: "openai", Kind: llm.KindPermanent, StatusCode: 401, Message: "bad key"}, http.StatusUnauthorized},
		{"run failed", &llm.Error{Provider: "openai", Kind: llm.KindPermanent, Message: "run failed"}, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, h := newTestServer(t, &mockAnalyzer{err: tt.err})
			rec := do(h, http.MethodPost, "/api/analyze", []byte(`{"text":"x"}`), nil)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			body := decodeBody(t, rec)
			if body["error"] == "" || body["message"] != body["error"] {
				t.Errorf("body = %v", body)
			}
		})
	}
}

func TestHandleExtract(t *testing.T) {
	_, h := newTestServer(t, &mockAnalyzer{})
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "notes.md")
	_, _ = fw.Write([]byte("- item"))
	_ = mw.Close()
	header := http.Header{}
	header.Set("Content-Type", mw.FormDataContentType())

	rec := do(h, http.MethodPost, "/api/extract", buf.Bytes(), header)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["text"] != "- item" || body["ext"] != ".md" {
		t.Errorf("body = %v", body)
	}

	rec = do(h, http.MethodPost, "/api/extract", []byte(`{}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-multipart status = %d", rec.Code)
	}
}

func TestHandleInsights(t *testing.T) {
	_, h := newTestServer(t, &mockAnalyzer{})
	payload := `{"items":[
		{"operation":"CREATE","properties":{"ToDo":"準備Q4簡報","狀態":"進行中","專案":["Goonas"]}},
		"Send the budget"
	],"query":"budget"}`
	rec := do(h, http.MethodPost, "/api/insights", []byte(payload), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Summary struct {
			Total    int `json:"total"`
			Projects []struct {
				Label string `json:"label"`
				Value int    `json:"value"`
			} `json:"projects"`
		} `json:"summary"`
		Matches []struct {
			Position int `json:"position"`
		} `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Summary.Total != 2 || len(resp.Summary.Projects) != 1 || resp.Summary.Projects[0].Label != "Goonas" {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Position != 1 {
		t.Errorf("matches = %+v", resp.Matches)
	}
}

func TestVendorProxy(t *testing.T) {
	var got *http.Request
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"thread_1"}`))
	}))
	defer upstream.Close()
	_, h := newTestServer(t, &mockAnalyzer{}, WithUpstreams(upstream.URL, upstream.URL))

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("OpenAI-Beta", "assistants=v2")
	rec := do(h, http.MethodPost, "/api/openai/v1/threads", []byte(`{}`), header)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), "thread_1") {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}
	if got.URL.Path != "/v1/threads" || got.Header.Get("Authorization") != "Bearer sk-main" || got.Header.Get("OpenAI-Beta") != "assistants=v2" {
		t.Errorf("upstream saw path=%s auth=%q beta=%q", got.URL.Path, got.Header.Get("Authorization"), got.Header.Get("OpenAI-Beta"))
	}

	header.Set("Authorization", "Bearer sk-browser")
	do(h, http.MethodGet, "/api/openai/v1/threads/t1/runs/r1", nil, header)
	if got.Method != http.MethodGet || got.Header.Get("Authorization") != "Bearer sk-browser" {
		t.Errorf("browser key not preserved: %s %q", got.Method, got.Header.Get("Authorization"))
	}

	do(h, http.MethodPost, "/api/gemini/v1beta/models/gemini-2.0-flash-exp:generateContent", []byte(`{}`), nil)
	if got.URL.Path != "/v1beta/models/gemini-2.0-flash-exp:generateContent" || got.URL.Query().Get("key") != "g-key" {
		t.Errorf("gemini upstream saw %s?%s", got.URL.Path, got.URL.RawQuery)
	}
	do(h, http.MethodPost, "/api/gemini/v1beta/models/x:generateContent?key=browser", []byte(`{}`), nil)
	if got.URL.Query().Get("key") != "browser" {
		t.Errorf("browser key not preserved: %s", got.URL.RawQuery)
	}
}

func TestHandleNotionStructured(t *testing.T) {
	nc := &mockNotion{pages: []notion.Page{{
		ID:         "page-1",
		Properties: map[string]json.RawMessage{"Name": json.RawMessage(`{"type":"title","title":[{"plain_text":"準備Q4簡報"}]}`)},
	}}}
	var token string
	_, h := newTestServer(t, &mockAnalyzer{}, WithNotionFactory(func(tok string) NotionAPI {
		token = tok
		return nc
	}))

	payload := `{"token":"secret_req","databaseId":"db-1","properties":{"Name":{"title":[{"text":{"content":"准備 Q4 簡報"}}]}}}`
	rec := do(h, http.MethodPost, "/api/notion/structured", []byte(payload), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["action"] != "updated" || body["id"] != "page-1" || token != "secret_req" {
		t.Errorf("body = %v token = %q", body, token)
	}
	if _, ok := nc.updated["page-1"]; !ok {
		t.Error("page-1 should be patched")
	}

	rec = do(h, http.MethodPost, "/api/notion/structured", []byte(`{"token":"t","databaseId":"d"}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing properties status = %d", rec.Code)
	}
	if msg := decodeBody(t, rec)["message"]; msg != "Missing required fields: token, databaseId, or properties" {
		t.Errorf("message = %v", msg)
	}
}

func TestHandleNotionPage(t *testing.T) {
	nc := &mockNotion{}
	var token string
	_, h := newTestServer(t, &mockAnalyzer{}, WithNotionFactory(func(tok string) NotionAPI {
		token = tok
		return nc
	}))
	rec := do(h, http.MethodPost, "/api/notion", []byte(`{"title":"會議摘要","children":[{"object":"block"}]}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if token != "secret_cfg" || len(nc.created) != 1 {
		t.Fatalf("token = %q created = %v", token, nc.created)
	}
	if _, ok := nc.created[0]["Name"]; !ok {
		t.Errorf("title property missing: %v", nc.created[0])
	}
}

func TestHandleNotionDatabase_relaysAPIError(t *testing.T) {
	apiErr := &notion.APIError{StatusCode: 404, Code: "object_not_found", Message: "Could not find database", Body: []byte(`{"object":"error","code":"object_not_found"}`)}
	_, h := newTestServer(t, &mockAnalyzer{}, WithNotionFactory(func(string) NotionAPI { return &mockNotion{getErr: apiErr} }))

	header := http.Header{}
	header.Set("Authorization", "Bearer secret_x")
	rec := do(h, http.MethodGet, "/api/notion/database/db-404", nil, header)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["code"] != "object_not_found" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleNotionUpload(t *testing.T) {
	nc := &mockNotion{}
	_, h := newTestServer(t, &mockAnalyzer{}, WithNotionFactory(func(string) NotionAPI { return nc }))

	rec := do(h, http.MethodPost, "/api/notion/upload", []byte(`{"items":["a",{"ToDo":"b"}]}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["count"] != float64(2) || body["total"] != float64(2) {
		t.Errorf("body = %v", body)
	}

	rec = do(h, http.MethodPost, "/api/notion/upload", []byte(`{"items":[]}`), nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty batch status = %d", rec.Code)
	}

	nc.createErr = &notion.APIError{StatusCode: 400, Message: "validation_error"}
	rec = do(h, http.MethodPost, "/api/notion/upload", []byte(`{"items":["a"]}`), nil)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("all-failed status = %d", rec.Code)
	}
}

func TestVertexRoutes(t *testing.T) {
	_, h := newTestServer(t, &mockAnalyzer{})
	if rec := do(h, http.MethodPost, "/api/vertex-agent/query", []byte(`{"query":"x"}`), nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unconfigured query status = %d", rec.Code)
	}
	if body := decodeBody(t, do(h, http.MethodGet, "/api/vertex-agent/health", nil, nil)); body["status"] != "unconfigured" {
		t.Errorf("health = %v", body)
	}

	_, h = newTestServer(t, &mockAnalyzer{}, WithVertexAgent(&mockAgent{answer: "請整理客戶回饋"}))
	rec := do(h, http.MethodPost, "/api/vertex-agent/query", []byte(`{"query":"回饋?"}`), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	items := body["items"].([]interface{})
	if body["answer"] != "請整理客戶回饋" || len(items) != 1 {
		t.Errorf("body = %v", body)
	}
	if body := decodeBody(t, do(h, http.MethodGet, "/api/vertex-agent/health", nil, nil)); body["status"] != "ok" {
		t.Errorf("health = %v", body)
	}
}

func TestHandleExtract_malformedMultipart(t *testing.T) {
	_, h := newTestServer(t, &mockAnalyzer{})
	header := http.Header{}
	header.Set("Content-Type", "multipart/form-data; boundary=xyz")

	for _, path := range []string{"/api/extract", "/api/analyze"} {
		rec := do(h, http.MethodPost, path, []byte("--xyz\r\nnot a part header"), header)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400: %s", path, rec.Code, rec.Body.String())
		}
	}
}

func TestStaticFiles_defaultConfig(t *testing.T) {
	dir := t.TempDir()
	for name, content := range map[string]string{
		"index.html":  "<title>AutoScan</title>",
		"config.json": `{"gemini":{"apiKey":"secret"}}`,
		".env":        "KEY=secret",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	t.Chdir(dir)

	s := NewServer(config.NewHolder(config.Default()), &mockAnalyzer{})
	h := s.Routes()

	rec := do(h, http.MethodGet, "/", nil, http.Header{})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "AutoScan") {
		t.Fatalf("GET / = %d: %s", rec.Code, rec.Body.String())
	}
	// The browser UI reads its settings from config.json.
	if rec := do(h, http.MethodGet, "/config.json", nil, http.Header{}); rec.Code != http.StatusOK {
		t.Errorf("GET /config.json = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/.env", nil, http.Header{}); rec.Code != http.StatusNotFound {
		t.Errorf("GET /.env = %d: %s", rec.Code, rec.Body.String())
	}
}
