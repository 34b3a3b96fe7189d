package digest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"chronicle/internal/journal"
	"chronicle/internal/logging"
	"chronicle/internal/services"
	"chronicle/internal/services/llm"
	"chronicle/internal/services/mail"
)

// Store is the read surface the service needs from the journal database.
type Store interface {
	EntriesBetween(ctx context.Context, fromDay, toDay string, origin journal.EntryOrigin) ([]*journal.Entry, error)
	OptimizedBetween(ctx context.Context, fromDay, toDay string) ([]*journal.Optimized, error)
	InsertEntry(ctx context.Context, entry *journal.Entry) (int64, error)
}

// Service generates on-demand digests over persisted journal data.
type Service struct {
	store     Store
	completer llm.Completer
	sender    mail.Sender
	logger    *slog.Logger
	titler    cases.Caser
}

// NewService wires a digest service. The sender may be nil when delivery is
// not wanted.
func NewService(store Store, completer llm.Completer, sender mail.Sender, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:     store,
		completer: completer,
		sender:    sender,
		logger:    logger.With(logging.String(logging.FieldComponent, "digest")),
		titler:    cases.Title(language.English),
	}
}

// Request describes one digest generation.
type Request struct {
	// From and To are inclusive canonical days.
	From string
	To   string
	// Template overrides the default report template when non-empty.
	Template string
	// Deliver sends the digest by email after persisting it.
	Deliver bool
}

// Result carries the generated digest and what fed it.
type Result struct {
	Entry        *journal.Entry
	SourceDays   int
	SourceItems  int
	Delivered    bool
	TemplateName string
}

// Generate reads the persisted entries and optimized passages in the range,
// summarizes them with the caller's template, and persists the digest as an
// ondemand journal entry. It reads and writes nothing else: registry and
// run state are untouched, and the scheduled entries it read stay as they
// were.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	from, to, err := normalizeRange(req.From, req.To)
	if err != nil {
		return nil, err
	}

	entries, err := s.store.EntriesBetween(ctx, from, to, journal.OriginScheduled)
	if err != nil {
		return nil, fmt.Errorf("load entries: %w", err)
	}
	optimized, err := s.store.OptimizedBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load optimized passages: %w", err)
	}

	body, days, items := collectSources(entries, optimized)
	if body == "" {
		return nil, services.Wrap(services.ErrNotFound, "report", "generate",
			fmt.Sprintf("no journal data between %s and %s", from, to), nil)
	}

	template := req.Template
	templateName := "report"
	if strings.TrimSpace(template) == "" {
		template = llm.DefaultReportTemplate
	} else {
		templateName = "custom"
	}

	completion, err := s.completer.Complete(ctx, template, map[string]string{
		"from":    from,
		"to":      to,
		"entries": body,
	})
	if err != nil {
		return nil, err
	}

	metadata, err := json.Marshal(map[string]any{
		"from":              from,
		"to":                to,
		"source_days":       days,
		"source_items":      items,
		"model":             completion.Model,
		"prompt_tokens":     completion.Usage.PromptTokens,
		"completion_tokens": completion.Usage.CompletionTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode digest metadata: %w", err)
	}

	entry := &journal.Entry{
		Day:          to,
		Content:      completion.Content,
		MetadataJSON: string(metadata),
		Template:     templateName,
		Origin:       journal.OriginOnDemand,
	}
	entry.ID, err = s.store.InsertEntry(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("persist digest: %w", err)
	}

	result := &Result{
		Entry:        entry,
		SourceDays:   days,
		SourceItems:  items,
		TemplateName: templateName,
	}

	if req.Deliver && s.sender != nil && s.sender.Enabled() {
		subject := s.titler.String(fmt.Sprintf("journal digest %s to %s", from, to))
		if err := s.sender.Send(ctx, mail.Message{Subject: subject, Body: entry.Content, Day: to}); err != nil {
			s.logger.Warn("digest delivery failed", logging.Error(err))
		} else {
			result.Delivered = true
		}
	}

	s.logger.Info("digest generated",
		logging.String("from", from),
		logging.String("to", to),
		logging.Int("source_days", days),
		logging.Int("source_items", items),
		logging.Bool("delivered", result.Delivered))
	return result, nil
}

func normalizeRange(from, to string) (string, string, error) {
	fromTime, err := journal.ParseDay(from)
	if err != nil {
		return "", "", services.Wrap(services.ErrConfiguration, "report", "generate",
			fmt.Sprintf("invalid from day %q", from), err)
	}
	toTime, err := journal.ParseDay(to)
	if err != nil {
		return "", "", services.Wrap(services.ErrConfiguration, "report", "generate",
			fmt.Sprintf("invalid to day %q", to), err)
	}
	if toTime.Before(fromTime) {
		return "", "", services.Wrap(services.ErrConfiguration, "report", "generate",
			fmt.Sprintf("range end %s precedes start %s", to, from), nil)
	}
	return journal.Day(fromTime), journal.Day(toTime), nil
}

// collectSources prefers the finished daily entries and falls back to raw
// optimized passages for days that never got one.
func collectSources(entries []*journal.Entry, optimized []*journal.Optimized) (string, int, int) {
	covered := make(map[string]bool, len(entries))
	var sections []string
	items := 0

	for _, entry := range entries {
		content := strings.TrimSpace(entry.Content)
		if content == "" {
			continue
		}
		covered[entry.Day] = true
		sections = append(sections, fmt.Sprintf("## %s\n\n%s", entry.Day, content))
		items++
	}
	for _, opt := range optimized {
		if covered[opt.Day] {
			continue
		}
		content := strings.TrimSpace(opt.Content)
		if content == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s (unsummarized)\n\n%s", opt.Day, content))
		items++
	}

	days := make(map[string]bool)
	for _, entry := range entries {
		days[entry.Day] = true
	}
	for _, opt := range optimized {
		days[opt.Day] = true
	}
	return strings.Join(sections, "\n\n"), len(days), items
}
