package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	DefaultPollInterval = 1500 * time.Millisecond
	DefaultMaxPolls     = 30
)

// RunState is the local view of an Assistants run.
type RunState int

const (
	RunQueued RunState = iota
	RunRunning
	RunRequiresAction
	RunSucceeded
	RunFailed
	RunTimedOut
)

func (s RunState) String() string {
	switch s {
	case RunQueued:
		return "queued"
	case RunRunning:
		return "running"
	case RunRequiresAction:
		return "requires_action"
	case RunSucceeded:
		return "succeeded"
	case RunFailed:
		return "failed"
	default:
		return "timed_out"
	}
}

// Terminal reports whether polling stops in s.
func (s RunState) Terminal() bool {
	return s != RunQueued && s != RunRunning
}

// RunStateFromStatus maps an API run status onto a RunState. Unknown
// statuses keep the run going.
func RunStateFromStatus(status string) RunState {
	switch status {
	case "queued":
		return RunQueued
	case "in_progress", "cancelling":
		return RunRunning
	case "requires_action":
		return RunRequiresAction
	case "completed":
		return RunSucceeded
	case "failed", "cancelled", "expired", "incomplete":
		return RunFailed
	default:
		return RunRunning
	}
}

// Run is the subset of an Assistants run object the client reads.
type Run struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	LastError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_error"`
	Usage *Usage `json:"usage"`
}

// Poller waits for a run to reach a terminal state.
type Poller struct {
	Interval time.Duration
	MaxPolls int
	Sleep    func(ctx context.Context, d time.Duration) error
}

// NewPoller polls every 1.5s, at most 30 times.
func NewPoller() Poller {
	return Poller{Interval: DefaultPollInterval, MaxPolls: DefaultMaxPolls, Sleep: sleepContext}
}

// Wait calls fetch after each interval until the run leaves the queued and
// running states or MaxPolls is reached. It returns the final state with
// the last run seen.
func (p Poller) Wait(ctx context.Context, fetch func(ctx context.Context) (*Run, error)) (RunState, *Run, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var last *Run
	for i := 0; i < p.MaxPolls; i++ {
		if err := sleep(ctx, p.Interval); err != nil {
			return RunFailed, last, err
		}
		run, err := fetch(ctx)
		if err != nil {
			return RunFailed, last, err
		}
		last = run
		if state := RunStateFromStatus(run.Status); state.Terminal() {
			return state, run, nil
		}
	}
	return RunTimedOut, last, nil
}

type threadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type listedMessage struct {
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text struct {
			Value string `json:"value"`
		} `json:"text"`
	} `json:"content"`
}

func (c *Client) assistantRequest(method, path, key string, payload any) request {
	h := bearer(key)
	h.Set("OpenAI-Beta", "assistants=v2")
	return request{
		provider: string(ProviderOpenAI),
		method:   method,
		url:      c.openAIBaseURL + path,
		header:   h,
		payload:  payload,
	}
}

// callAssistant drives thread, message, run, poll and message listing.
func (c *Client) callAssistant(ctx context.Context, text string, opts CallOptions) (*Result, error) {
	provider := string(ProviderOpenAI)
	key := opts.APIKey

	threadBody := map[string]any{}
	if opts.TargetLanguage != "" {
		threadBody["messages"] = []threadMessage{{Role: "user", Content: "Please output in " + LanguageName(opts.TargetLanguage)}}
	}
	data, err := c.send(ctx, c.assistantRequest(http.MethodPost, "/v1/threads", key, threadBody))
	if err != nil {
		return nil, err
	}
	var thread struct {
		ID string `json:"id"`
	}
	if err := decode(provider, data, &thread); err != nil {
		return nil, err
	}

	msgPath := "/v1/threads/" + thread.ID + "/messages"
	if _, err := c.send(ctx, c.assistantRequest(http.MethodPost, msgPath, key, threadMessage{Role: "user", Content: text})); err != nil {
		return nil, err
	}

	data, err = c.send(ctx, c.assistantRequest(http.MethodPost, "/v1/threads/"+thread.ID+"/runs", key, map[string]string{"assistant_id": opts.AssistantID}))
	if err != nil {
		return nil, err
	}
	var run Run
	if err := decode(provider, data, &run); err != nil {
		return nil, err
	}

	runPath := "/v1/threads/" + thread.ID + "/runs/" + run.ID
	state, last, err := c.poller.Wait(ctx, func(ctx context.Context) (*Run, error) {
		data, err := c.send(ctx, c.assistantRequest(http.MethodGet, runPath, key, nil))
		if err != nil {
			return nil, err
		}
		var r Run
		if err := decode(provider, data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	})
	if err != nil {
		return nil, err
	}
	switch state {
	case RunSucceeded:
	case RunTimedOut:
		return nil, &Error{Provider: provider, Kind: KindTransient, Message: fmt.Sprintf("assistant run timeout after %d polls", c.poller.MaxPolls)}
	case RunRequiresAction:
		return nil, &Error{Provider: provider, Kind: KindPermanent, Message: "assistant run requires action, which is not supported"}
	default:
		msg := "assistant run " + last.Status
		if last.LastError != nil && last.LastError.Message != "" {
			msg += ": " + last.LastError.Message
		}
		return nil, &Error{Provider: provider, Kind: KindPermanent, Message: msg}
	}

	data, err = c.send(ctx, c.assistantRequest(http.MethodGet, msgPath, key, nil))
	if err != nil {
		return nil, err
	}
	var listed struct {
		Data []listedMessage `json:"data"`
	}
	if err := decode(provider, data, &listed); err != nil {
		return nil, err
	}
	for _, m := range listed.Data {
		if m.Role != "assistant" || len(m.Content) == 0 {
			continue
		}
		res := &Result{
			Text:     m.Content[0].Text.Value,
			Provider: ProviderOpenAI,
			Model:    opts.AssistantID,
			Raw:      json.RawMessage(data),
		}
		if last.Usage != nil {
			res.Usage = *last.Usage
		}
		return res, nil
	}
	return nil, &Error{Provider: provider, Kind: KindPermanent, Message: "assistant returned no reply", Body: string(data)}
}
