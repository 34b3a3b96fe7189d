package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chronicle/internal/config"
	"chronicle/internal/services"
)

const defaultHTTPTimeout = 120 * time.Second

// Usage reports the token cost of one completion call.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
}

// Completion is the result of one text-generation call.
type Completion struct {
	Content string
	Model   string
	Usage   Usage
}

// Completer is the text-generation surface the pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, template string, vars map[string]string) (*Completion, error)
}

// Client talks to an OpenAI-compatible chat completion endpoint.
type Client struct {
	cfg        config.LLMConfig
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a text-generation client from the shared settings.
func NewClient(cfg config.LLMConfig, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

var _ Completer = (*Client)(nil)

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Complete renders the template with the supplied variables and issues one
// chat completion request. Failures carry the services error markers so the
// orchestrator can decide between retry and terminal handling.
func (c *Client) Complete(ctx context.Context, template string, vars map[string]string) (*Completion, error) {
	prompt := strings.TrimSpace(RenderTemplate(template, vars))
	if prompt == "" {
		return nil, services.Wrap(services.ErrTerminal, "llm", "complete", "empty prompt", nil)
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "llm", "complete", "api key required", nil)
	}

	payload := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("llm request: encode body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("llm request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "llm", "complete", "http error", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "llm", "complete", "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyStatus(resp.StatusCode, string(body))
	}

	var completion chatCompletionResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return nil, services.Wrap(services.ErrTransient, "llm", "complete", "decode response", err)
	}
	if completion.Error != nil {
		return nil, services.Wrap(services.ErrTerminal, "llm", "complete", "api error: "+strings.TrimSpace(completion.Error.Message), nil)
	}
	if len(completion.Choices) == 0 {
		return nil, services.Wrap(services.ErrTransient, "llm", "complete", "empty choices", nil)
	}

	choice := completion.Choices[0]
	if refusal := strings.TrimSpace(choice.Message.Refusal); refusal != "" {
		return nil, services.Wrap(services.ErrTerminal, "llm", "complete", "content refused: "+refusal, nil)
	}
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return nil, services.Wrap(services.ErrTransient, "llm", "complete",
			fmt.Sprintf("empty content (finish_reason=%q)", choice.FinishReason), nil)
	}

	model := completion.Model
	if model == "" {
		model = c.cfg.Model
	}
	return &Completion{
		Content: content,
		Model:   model,
		Usage:   completion.Usage,
	}, nil
}

func classifyStatus(status int, body string) error {
	detail := fmt.Sprintf("http %d: %s", status, payloadExcerpt(body))
	switch {
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "llm", "complete", detail, nil)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.Wrap(services.ErrTerminal, "llm", "complete", detail, nil)
	default:
		return services.Wrap(services.ErrTerminal, "llm", "complete", detail, nil)
	}
}
