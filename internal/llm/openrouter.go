package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/go-resty/resty/v2"
)

const defaultOpenRouterURL = "https://openrouter.ai/api/v1"

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model       string              `json:"model"`
	Messages    []openRouterMessage `json:"messages"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
	Temperature *float32            `json:"temperature,omitempty"`
}

// openRouterEnvelope covers both the success and the error body shape.
type openRouterEnvelope struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type OpenRouterOptions struct {
	APIKey    string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// OpenRouterProvider reaches vendor/model ids (anthropic/..., google/...) through the OpenRouter API.
type OpenRouterProvider struct {
	client    *resty.Client
	apiKey    string
	maxTokens int
}

func NewOpenRouterProvider(opts OpenRouterOptions) *OpenRouterProvider {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenRouterURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Title", "Analyst Council")
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.APIKey != "" {
		client.SetAuthToken(opts.APIKey)
	}
	return &OpenRouterProvider{client: client, apiKey: opts.APIKey, maxTokens: opts.MaxTokens}
}

func (p *OpenRouterProvider) Name() string {
	return "openrouter"
}

func (p *OpenRouterProvider) Generate(ctx context.Context, modelID string, msgs []*schema.Message, opts ...model.Option) (string, error) {
	if p.apiKey == "" {
		return "", newError(KindAuth, p.Name(), modelID, errMissingKey(p.Name()))
	}

	options := model.GetCommonOptions(&model.Options{}, opts...)
	req := openRouterRequest{
		Model:       OpenRouterModelID(modelID),
		Messages:    make([]openRouterMessage, 0, len(msgs)),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
	}
	if req.MaxTokens == nil && p.maxTokens > 0 {
		maxTokens := p.maxTokens
		req.MaxTokens = &maxTokens
	}
	for _, m := range msgs {
		req.Messages = append(req.Messages, openRouterMessage{Role: string(m.Role), Content: m.Content})
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		return "", Classify(p.Name(), modelID, err)
	}

	var envelope openRouterEnvelope
	decodeErr := json.Unmarshal(resp.Body(), &envelope)

	if resp.IsError() {
		detail := strings.TrimSpace(string(resp.Body()))
		if decodeErr == nil && envelope.Error != nil && envelope.Error.Message != "" {
			detail = envelope.Error.Message
		}
		return "", newError(KindFromStatus(resp.StatusCode()), p.Name(), modelID,
			fmt.Errorf("status %d: %s", resp.StatusCode(), truncate(detail, 300)))
	}
	if decodeErr != nil {
		return "", newError(KindMalformed, p.Name(), modelID, decodeErr)
	}
	if envelope.Error != nil {
		// OpenRouter reports some upstream failures with a 200 and an error body.
		cause := fmt.Errorf("upstream error (code %v): %s", envelope.Error.Code, envelope.Error.Message)
		if code, ok := envelope.Error.Code.(float64); ok {
			return "", newError(KindFromStatus(int(code)), p.Name(), modelID, cause)
		}
		return "", Classify(p.Name(), modelID, cause)
	}
	if len(envelope.Choices) == 0 {
		return "", newError(KindMalformed, p.Name(), modelID, errors.New("no choices in response"))
	}
	content := envelope.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", newError(KindMalformed, p.Name(), modelID, errors.New("empty completion"))
	}
	return content, nil
}

// OpenRouterModelID qualifies bare claude/gemini ids with their vendor prefix.
func OpenRouterModelID(modelID string) string {
	if strings.Contains(modelID, "/") {
		return modelID
	}
	lower := strings.ToLower(modelID)
	switch {
	case strings.HasPrefix(lower, "claude"):
		return "anthropic/" + modelID
	case strings.HasPrefix(lower, "gemini"):
		return "google/" + modelID
	case strings.HasPrefix(lower, "llama"):
		return "meta-llama/" + modelID
	}
	return modelID
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
