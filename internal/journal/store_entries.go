package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertEntry persists a journal entry and returns its id. The scheduled
// origin is unique per day; an on-demand entry never conflicts with the
// original.
func (s *Store) InsertEntry(ctx context.Context, entry *Entry) (int64, error) {
	if entry == nil {
		return 0, errors.New("entry is nil")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO journal_entries (day, content, metadata_json, template, origin, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Day,
		entry.Content,
		nullableString(entry.MetadataJSON),
		nullableString(entry.Template),
		string(entry.Origin),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	entry.ID = id
	entry.CreatedAt = now
	return id, nil
}

// EntryByID fetches a journal entry by identifier.
func (s *Store) EntryByID(ctx context.Context, id int64) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE id = ?`,
		id,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entry by id: %w", err)
	}
	return entry, nil
}

// ScheduledEntryByDay returns the scheduled journal entry for a day, or nil
// when the day has none.
func (s *Store) ScheduledEntryByDay(ctx context.Context, day string) (*Entry, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+entryColumns+` FROM journal_entries
         WHERE day = ? AND origin = ? LIMIT 1`,
		day, string(OriginScheduled),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scheduled entry by day: %w", err)
	}
	return entry, nil
}

// EntriesBetween returns journal entries whose day falls in the inclusive
// range, ordered by day.
func (s *Store) EntriesBetween(ctx context.Context, fromDay, toDay string, origin EntryOrigin) ([]*Entry, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+entryColumns+` FROM journal_entries
         WHERE day >= ? AND day <= ? AND origin = ?
         ORDER BY day, created_at, id`,
		fromDay, toDay, string(origin),
	)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

const entryColumns = "id, day, content, metadata_json, template, origin, created_at"

func scanEntry(scanner rowScanner) (*Entry, error) {
	var (
		entry      Entry
		metadata   sql.NullString
		template   sql.NullString
		origin     string
		createdRaw string
	)
	if err := scanner.Scan(
		&entry.ID,
		&entry.Day,
		&entry.Content,
		&metadata,
		&template,
		&origin,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	entry.MetadataJSON = metadata.String
	entry.Template = template.String
	entry.Origin = EntryOrigin(origin)
	if created, err := parseTimeString(createdRaw); err == nil {
		entry.CreatedAt = created
	}
	return &entry, nil
}
