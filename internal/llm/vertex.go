package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ProviderVertex is the Discovery Engine agent.
const ProviderVertex Provider = "vertex"

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// VertexConfig locates the Agent Builder engine.
type VertexConfig struct {
	ProjectID       string `yaml:"projectId"`
	Location        string `yaml:"location"`
	EngineID        string `yaml:"engineId"`
	DataStoreID     string `yaml:"dataStoreId"`
	CredentialsFile string `yaml:"credentialsFile"`
}

// Configured reports whether the engine can be addressed.
func (c VertexConfig) Configured() bool {
	return c.ProjectID != "" && c.EngineID != ""
}

// VertexQuery is one question for the agent. Empty ids fall back to the
// agent's configuration.
type VertexQuery struct {
	Query       string `json:"query"`
	ProjectID   string `json:"projectId,omitempty"`
	Location    string `json:"location,omitempty"`
	EngineID    string `json:"engineId,omitempty"`
	DataStoreID string `json:"dataStoreId,omitempty"`
}

// VertexAnswer is the agent reply.
type VertexAnswer struct {
	Answer string          `json:"answer"`
	State  string          `json:"state,omitempty"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// VertexHealth reports whether the agent can be reached.
type VertexHealth struct {
	Status    string `json:"status"`
	ProjectID string `json:"projectId,omitempty"`
	EngineID  string `json:"engineId,omitempty"`
	Location  string `json:"location,omitempty"`
	Message   string `json:"message,omitempty"`
}

// VertexAgent queries a Discovery Engine answer endpoint with OAuth2
// credentials.
type VertexAgent struct {
	cfg     VertexConfig
	ts      oauth2.TokenSource
	client  *Client
	baseURL string
	logger  *zap.Logger
}

// VertexOption configures a VertexAgent.
type VertexOption func(*VertexAgent)

// WithTokenSource skips credential discovery.
func WithTokenSource(ts oauth2.TokenSource) VertexOption {
	return func(a *VertexAgent) { a.ts = ts }
}

// WithVertexBaseURL overrides the Discovery Engine host.
func WithVertexBaseURL(u string) VertexOption {
	return func(a *VertexAgent) { a.baseURL = strings.TrimRight(u, "/") }
}

// WithVertexLogger sets the logger.
func WithVertexLogger(l *zap.Logger) VertexOption {
	return func(a *VertexAgent) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewVertexAgent resolves credentials from cfg.CredentialsFile, or from
// application default credentials when no file is set.
func NewVertexAgent(ctx context.Context, cfg VertexConfig, opts ...VertexOption) (*VertexAgent, error) {
	if cfg.Location == "" {
		cfg.Location = "global"
	}
	a := &VertexAgent{cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	if a.ts == nil {
		ts, err := findTokenSource(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, &Error{Provider: string(ProviderVertex), Kind: KindConfig, Message: "load credentials", Err: err}
		}
		a.ts = ts
	}
	if a.baseURL == "" {
		a.baseURL = discoveryEngineHost(cfg.Location)
	}
	a.client = NewClient(
		WithHTTPClient(oauth2.NewClient(ctx, a.ts)),
		WithLogger(a.logger),
	)
	return a, nil
}

func findTokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read credentials file: %w", err)
		}
		creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("parse credentials file: %w", err)
		}
		return creds.TokenSource, nil
	}
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return nil, err
	}
	return creds.TokenSource, nil
}

func discoveryEngineHost(location string) string {
	if location == "" || location == "global" {
		return "https://discoveryengine.googleapis.com"
	}
	return "https://" + location + "-discoveryengine.googleapis.com"
}

// AnswerPath is the answer method of the engine's default serving config.
func AnswerPath(projectID, location, engineID string) string {
	return fmt.Sprintf("/v1/projects/%s/locations/%s/collections/default_collection/engines/%s/servingConfigs/default_serving_config:answer",
		projectID, location, engineID)
}

type answerRequest struct {
	Query struct {
		Text string `json:"text"`
	} `json:"query"`
	UserPseudoID string `json:"userPseudoId"`
}

type answerResponse struct {
	Answer struct {
		AnswerText string `json:"answerText"`
		State      string `json:"state"`
	} `json:"answer"`
}

// Query asks the agent and returns its answer text.
func (a *VertexAgent) Query(ctx context.Context, q VertexQuery) (*VertexAnswer, error) {
	provider := string(ProviderVertex)
	if strings.TrimSpace(q.Query) == "" {
		return nil, &Error{Provider: provider, Kind: KindPermanent, Message: "query is empty"}
	}
	project, location, engine := firstNonEmpty(q.ProjectID, a.cfg.ProjectID), firstNonEmpty(q.Location, a.cfg.Location), firstNonEmpty(q.EngineID, a.cfg.EngineID)
	if project == "" || engine == "" {
		return nil, configError(provider, "project id and engine id are required")
	}

	var payload answerRequest
	payload.Query.Text = q.Query
	payload.UserPseudoID = uuid.NewString()

	var out *VertexAnswer
	err := a.client.retrier.Do(ctx, provider, func(ctx context.Context) error {
		data, err := a.client.send(ctx, request{
			provider: provider,
			method:   http.MethodPost,
			url:      a.baseURL + AnswerPath(project, location, engine),
			payload:  payload,
		})
		if err != nil {
			return err
		}
		var parsed answerResponse
		if err := decode(provider, data, &parsed); err != nil {
			return err
		}
		out = &VertexAnswer{Answer: parsed.Answer.AnswerText, State: parsed.Answer.State, Raw: json.RawMessage(data)}
		return nil
	})
	if err != nil {
		a.logger.Error("vertex agent query failed", zap.String("engine_id", engine), zap.Error(err))
		return nil, err
	}
	return out, nil
}

// Health checks the configuration and that an access token can be minted.
func (a *VertexAgent) Health(ctx context.Context) VertexHealth {
	h := VertexHealth{ProjectID: a.cfg.ProjectID, EngineID: a.cfg.EngineID, Location: a.cfg.Location}
	if !a.cfg.Configured() {
		h.Status, h.Message = "unconfigured", "project id and engine id are required"
		return h
	}
	if _, err := a.ts.Token(); err != nil {
		h.Status, h.Message = "error", err.Error()
		return h
	}
	h.Status = "ok"
	return h
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
