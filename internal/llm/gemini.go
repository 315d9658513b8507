package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// GeminiModelPath returns the resource path for model. Bare ids get the
// models/ prefix; tuned models keep theirs.
func GeminiModelPath(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

func (c *Client) callGemini(ctx context.Context, text string, opts CallOptions) (*Result, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: text}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     *opts.Temperature,
			MaxOutputTokens: opts.MaxTokens,
		},
	}
	if opts.SystemInstruction != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.SystemInstruction}}}
	}
	endpoint := c.geminiBaseURL + "/v1beta/" + GeminiModelPath(opts.Model) + ":generateContent?key=" + url.QueryEscape(opts.APIKey)

	data, err := c.send(ctx, request{
		provider: string(ProviderGemini),
		method:   http.MethodPost,
		url:      endpoint,
		payload:  payload,
	})
	if err != nil {
		return nil, err
	}
	var parsed geminiResponse
	if err := decode(string(ProviderGemini), data, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		msg := "response has no candidates"
		if parsed.PromptFeedback != nil && parsed.PromptFeedback.BlockReason != "" {
			msg = "prompt blocked: " + parsed.PromptFeedback.BlockReason
		}
		return nil, &Error{Provider: string(ProviderGemini), Kind: KindPermanent, Message: msg, Body: string(data)}
	}
	var b strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return &Result{
		Text:     b.String(),
		Provider: ProviderGemini,
		Model:    opts.Model,
		Usage: Usage{
			PromptTokens:     parsed.UsageMetadata.PromptTokenCount,
			CompletionTokens: parsed.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      parsed.UsageMetadata.TotalTokenCount,
		},
		Raw: json.RawMessage(data),
	}, nil
}
