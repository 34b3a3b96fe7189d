package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrTransient marks failures worth retrying: network errors, timeouts,
	// rate limits, upstream 5xx responses.
	ErrTransient = errors.New("transient failure")
	// ErrTerminal marks failures no retry can fix: malformed input,
	// authentication rejection, content-policy refusal, invalid recipient.
	ErrTerminal = errors.New("terminal failure")
	// ErrConfiguration marks errors that abort a run before it mutates any
	// state.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks missing remote resources.
	ErrNotFound = errors.New("not found")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether the orchestrator should retry the failed call.
// Deadline expiry and untagged network errors count as transient; anything
// tagged terminal does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTerminal) || errors.Is(err, ErrConfiguration) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// IsTerminal reports whether the failure should mark the item failed without
// further retries.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrTerminal)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
