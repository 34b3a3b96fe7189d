package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecodeLLMJSON unmarshals a model response that was asked for JSON but may
// arrive wrapped in a markdown fence or surrounded by conversational text.
// The raw payload is tried first; on failure the embedded document is
// extracted and tried once more.
func DecodeLLMJSON(content string, target any) error {
	raw := strings.TrimSpace(content)
	if raw == "" {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(raw), target); err == nil {
		return nil
	}

	doc := extractJSONDocument(raw)
	if err := json.Unmarshal([]byte(doc), target); err != nil {
		return fmt.Errorf("decode model output: %w (payload: %s)", err, payloadExcerpt(raw))
	}
	return nil
}

// extractJSONDocument peels a leading markdown fence and then slices the
// outermost object or array out of any surrounding prose. When no document
// boundary is found the input comes back unchanged so the caller's decode
// error reflects the original payload.
func extractJSONDocument(raw string) string {
	if rest, ok := strings.CutPrefix(raw, "```"); ok {
		rest = strings.TrimSpace(rest)
		if len(rest) >= 4 && strings.EqualFold(rest[:4], "json") {
			rest = strings.TrimSpace(rest[4:])
		}
		if end := strings.LastIndex(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		raw = strings.TrimSpace(rest)
	}

	for _, bounds := range [][2]string{{"{", "}"}, {"[", "]"}} {
		open := strings.Index(raw, bounds[0])
		last := strings.LastIndex(raw, bounds[1])
		if open >= 0 && last > open {
			return strings.TrimSpace(raw[open : last+1])
		}
	}
	return raw
}

// payloadExcerpt flattens the payload to one short line for error messages.
func payloadExcerpt(raw string) string {
	flat := strings.Join(strings.Fields(raw), " ")
	if flat == "" {
		return "<empty>"
	}
	const excerptRunes = 160
	runes := []rune(flat)
	if len(runes) > excerptRunes {
		return string(runes[:excerptRunes]) + "..."
	}
	return flat
}
