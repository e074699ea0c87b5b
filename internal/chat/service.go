package chat

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/pawel/toolgate/internal/config"
)

// Message is one turn of an OpenAI-style conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is the inbound completion request. The model falls back to the
// configured default when empty.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Response mirrors the OpenAI chat completion response shape.
type Response struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Service proxies chat completions to an OpenAI-compatible upstream with
// the platform's own API key.
type Service struct {
	client       *resty.Client
	endpoint     string
	defaultModel string
}

// NewService creates a chat completion proxy.
// Parameters:
//   - cfg: chat configuration including base URL and default model.
//   - apiKey: upstream API key, resolved from the secrets provider.
// Returns:
//   - *Service: initialized proxy.
func NewService(cfg *config.ChatConfig, apiKey string) *Service {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+apiKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(cfg.Timeout)

	return &Service{
		client:       client,
		endpoint:     cfg.BaseURL + "/chat/completions",
		defaultModel: cfg.Model,
	}
}

// Complete forwards one completion request upstream.
func (s *Service) Complete(ctx context.Context, req *Request) (*Response, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("messages must not be empty")
	}
	if req.Model == "" {
		req.Model = s.defaultModel
	}

	var out Response
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("calling chat upstream: %w", err)
	}
	if resp.IsError() {
		if out.Error != nil {
			return nil, fmt.Errorf("chat upstream error: %s", out.Error.Message)
		}
		return nil, fmt.Errorf("chat upstream error: %s", resp.Status())
	}
	return &out, nil
}
