package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chronicle/internal/config"
)

const userAgent = "Chronicle/0.1.0"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyRunStarted(ctx context.Context, runID string, itemCount int) error
	NotifyRunCompleted(ctx context.Context, runID string, completed, failed int, duration time.Duration) error
	NotifyItemFailed(ctx context.Context, filename, stage string, err error) error
	NotifyJournalDelivered(ctx context.Context, day string, recipients int) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint:  topic,
		client:    client,
		runEvents: cfg.Notifications.RunEvents,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	runEvents bool
	errors    bool
}

func (n *ntfyService) NotifyRunStarted(ctx context.Context, runID string, itemCount int) error {
	if !n.runEvents {
		return nil
	}
	data := payload{
		title:   "Chronicle - Run Started",
		message: fmt.Sprintf("Started run %s with %d new recordings", shortRunID(runID), itemCount),
		tags:    []string{"chronicle", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, runID string, completed, failed int, duration time.Duration) error {
	if !n.runEvents {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title string
	var message string
	if failed == 0 {
		title = "Chronicle - Run Complete"
		message = fmt.Sprintf("Run %s: %d recordings processed in %s", shortRunID(runID), completed, durationText)
	} else {
		title = "Chronicle - Run Complete (with errors)"
		message = fmt.Sprintf("Run %s: %d succeeded, %d failed in %s", shortRunID(runID), completed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"chronicle", "run", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemFailed(ctx context.Context, filename, stage string, err error) error {
	if !n.errors {
		return nil
	}
	filename = strings.TrimSpace(filename)
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	data := payload{
		title:    "Chronicle - Recording Failed",
		message:  fmt.Sprintf("Gave up on %s during %s: %s", filename, stage, detail),
		tags:     []string{"chronicle", "item", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJournalDelivered(ctx context.Context, day string, recipients int) error {
	if !n.runEvents {
		return nil
	}
	data := payload{
		title:   "Chronicle - Journal Delivered",
		message: fmt.Sprintf("Journal entry for %s sent to %d recipients", day, recipients),
		tags:    []string{"chronicle", "journal", "delivered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Chronicle - Error",
		message:  builder.String(),
		tags:     []string{"chronicle", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Chronicle - Test",
		message:  "Notification system test",
		tags:     []string{"chronicle", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func shortRunID(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}

type noopService struct{}

func (noopService) NotifyRunStarted(context.Context, string, int) error { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, int, int, time.Duration) error {
	return nil
}
func (noopService) NotifyItemFailed(context.Context, string, string, error) error { return nil }
func (noopService) NotifyJournalDelivered(context.Context, string, int) error     { return nil }
func (noopService) NotifyError(context.Context, error, string) error              { return nil }
func (noopService) TestNotification(context.Context) error                        { return nil }
