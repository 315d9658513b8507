package llm

import (
	"context"
	"encoding/json"
	"net/http"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

func bearer(key string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+key)
	return h
}

func (c *Client) callChat(ctx context.Context, text string, opts CallOptions) (*Result, error) {
	messages := make([]chatMessage, 0, 2)
	if opts.SystemInstruction != "" {
		messages = append(messages, chatMessage{Role: "system", Content: opts.SystemInstruction})
	}
	messages = append(messages, chatMessage{Role: "user", Content: text})

	data, err := c.send(ctx, request{
		provider: string(ProviderOpenAI),
		method:   http.MethodPost,
		url:      c.openAIBaseURL + "/v1/chat/completions",
		header:   bearer(opts.APIKey),
		payload: chatRequest{
			Model:       opts.Model,
			Messages:    messages,
			Temperature: *opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		},
	})
	if err != nil {
		return nil, err
	}
	var parsed chatResponse
	if err := decode(string(ProviderOpenAI), data, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Choices) == 0 {
		return nil, &Error{Provider: string(ProviderOpenAI), Kind: KindPermanent, Message: "response has no choices", Body: string(data)}
	}
	model := parsed.Model
	if model == "" {
		model = opts.Model
	}
	return &Result{
		Text:     parsed.Choices[0].Message.Content,
		Provider: ProviderOpenAI,
		Model:    model,
		Usage:    parsed.Usage,
		Raw:      json.RawMessage(data),
	}, nil
}
