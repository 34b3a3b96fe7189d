package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"chronicle/internal/config"
	"chronicle/internal/services"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1/audio/transcriptions"
	defaultModel       = "whisper-1"
	defaultHTTPTimeout = 300 * time.Second
)

// Result carries one completed transcription.
type Result struct {
	Text            string
	Language        string
	DurationSeconds float64
	Model           string
}

// Transcriber is the speech-to-text surface the pipeline depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (*Result, error)
}

// Client uploads audio files to an OpenAI-compatible transcription endpoint.
type Client struct {
	cfg     config.Transcriber
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a transcription client from the configuration.
func NewClient(cfg config.Transcriber) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "transcribe", "new", "transcriber api_key is required", nil)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = defaultModel
	}
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if limit <= 0 {
		limit = rate.Inf
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, 1),
	}, nil
}

var _ Transcriber = (*Client)(nil)

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads one recording and returns the transcript. An empty
// transcript is returned as a Result with empty Text, not an error, so the
// pipeline can record the recording as silent rather than failed.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (*Result, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "transcribe", "transcribe", "rate limiter", err)
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrTerminal, "transcribe", "transcribe", "open audio file", err)
	}
	defer audio.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("transcribe request: form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "transcribe", "buffer audio file", err)
	}
	if err := form.WriteField("model", c.cfg.Model); err != nil {
		return nil, fmt.Errorf("transcribe request: model field: %w", err)
	}
	if err := form.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("transcribe request: response_format field: %w", err)
	}
	if language := strings.TrimSpace(c.cfg.Language); language != "" {
		if err := form.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("transcribe request: language field: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("transcribe request: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, &body)
	if err != nil {
		return nil, fmt.Errorf("transcribe request: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, services.Wrap(services.ErrTransient, "transcribe", "transcribe", "http error", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "transcribe", "read body", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, classifyStatus(resp.StatusCode, string(payload))
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrTransient, "transcribe", "transcribe", "decode response", err)
	}
	if decoded.Error != nil {
		return nil, services.Wrap(services.ErrTerminal, "transcribe", "transcribe",
			"api error: "+strings.TrimSpace(decoded.Error.Message), nil)
	}

	return &Result{
		Text:            strings.TrimSpace(decoded.Text),
		Language:        decoded.Language,
		DurationSeconds: decoded.Duration,
		Model:           c.cfg.Model,
	}, nil
}

func classifyStatus(status int, body string) error {
	detail := fmt.Sprintf("http %d: %s", status, trimBody(body))
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return services.Wrap(services.ErrTerminal, "transcribe", "transcribe", detail, nil)
	case status == http.StatusRequestEntityTooLarge,
		status == http.StatusUnsupportedMediaType,
		status == http.StatusUnprocessableEntity:
		// Recording itself is the problem. Retrying the same file cannot help.
		return services.Wrap(services.ErrTerminal, "transcribe", "transcribe", detail, nil)
	case status == http.StatusRequestTimeout,
		status == http.StatusTooManyRequests,
		status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "transcribe", "transcribe", detail, nil)
	default:
		return services.Wrap(services.ErrTerminal, "transcribe", "transcribe", detail, nil)
	}
}

func trimBody(body string) string {
	clean := strings.Join(strings.Fields(body), " ")
	if len(clean) > 160 {
		clean = clean[:160] + "..."
	}
	if clean == "" {
		clean = "<empty>"
	}
	return clean
}
