package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"chronicle/internal/config"
)

// Store manages journal persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the journal database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.StateDir, "journal.db"))
}

// OpenPath connects to the journal database at an explicit location and
// applies the schema when the database is new.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// InsertTranscription persists a raw transcription and returns its id.
func (s *Store) InsertTranscription(ctx context.Context, tr *Transcription) (int64, error) {
	if tr == nil {
		return 0, errors.New("transcription is nil")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO transcriptions (
            identity, filename, audio_path, content, day,
            duration_seconds, model, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tr.Identity,
		tr.Filename,
		nullableString(tr.AudioPath),
		tr.Content,
		tr.Day,
		tr.DurationSeconds,
		nullableString(tr.Model),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert transcription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	tr.ID = id
	tr.CreatedAt = now
	return id, nil
}

// TranscriptionByIdentity fetches the latest transcription for an item
// identity, or nil when none exists.
func (s *Store) TranscriptionByIdentity(ctx context.Context, identity string) (*Transcription, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, identity, filename, audio_path, content, day,
                duration_seconds, model, created_at
         FROM transcriptions WHERE identity = ? ORDER BY id DESC LIMIT 1`,
		identity,
	)
	tr, err := scanTranscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcription by identity: %w", err)
	}
	return tr, nil
}

// InsertOptimized persists an optimized transcription and returns its id.
func (s *Store) InsertOptimized(ctx context.Context, opt *Optimized) (int64, error) {
	if opt == nil {
		return 0, errors.New("optimized transcription is nil")
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO optimized_transcriptions (
            transcription_id, content, metadata_json, category_id, day,
            model, prompt_tokens, completion_tokens, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		opt.TranscriptionID,
		opt.Content,
		nullableString(opt.MetadataJSON),
		nullableInt64(opt.CategoryID),
		opt.Day,
		nullableString(opt.Model),
		opt.PromptTokens,
		opt.CompletionTokens,
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert optimized transcription: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	opt.ID = id
	opt.CreatedAt = now
	return id, nil
}

// OptimizedByTranscription returns the latest optimized record for an
// original transcription, or nil when none exists.
func (s *Store) OptimizedByTranscription(ctx context.Context, transcriptionID int64) (*Optimized, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+optimizedColumns+`
         FROM optimized_transcriptions WHERE transcription_id = ? ORDER BY id DESC LIMIT 1`,
		transcriptionID,
	)
	opt, err := scanOptimized(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("optimized by transcription: %w", err)
	}
	return opt, nil
}

// OptimizedByDay returns all optimized records for one calendar day ordered
// by creation time.
func (s *Store) OptimizedByDay(ctx context.Context, day string) ([]*Optimized, error) {
	return s.queryOptimized(
		ctx,
		`SELECT `+optimizedColumns+`
         FROM optimized_transcriptions WHERE day = ? ORDER BY created_at, id`,
		day,
	)
}

// OptimizedBetween returns optimized records whose day falls in the
// inclusive range.
func (s *Store) OptimizedBetween(ctx context.Context, fromDay, toDay string) ([]*Optimized, error) {
	return s.queryOptimized(
		ctx,
		`SELECT `+optimizedColumns+`
         FROM optimized_transcriptions WHERE day >= ? AND day <= ?
         ORDER BY day, created_at, id`,
		fromDay, toDay,
	)
}

func (s *Store) queryOptimized(ctx context.Context, query string, args ...any) ([]*Optimized, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query optimized transcriptions: %w", err)
	}
	defer rows.Close()

	var records []*Optimized
	for rows.Next() {
		opt, err := scanOptimized(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, opt)
	}
	return records, rows.Err()
}

// EnsureCategory returns the id for a category name, creating it when absent.
func (s *Store) EnsureCategory(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, errors.New("category name is empty")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(
		ctx,
		`INSERT INTO categories (name, created_at) VALUES (?, ?)
         ON CONFLICT (name) DO NOTHING`,
		name, now,
	); err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("category id: %w", err)
	}
	return id, nil
}

// RecordAttempt appends one stage attempt record. Attempt history is
// append-only; a retry adds a new row rather than mutating the prior one.
func (s *Store) RecordAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt == nil {
		return errors.New("attempt is nil")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO stage_attempts (run_id, identity, stage, attempt, outcome, error, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		attempt.RunID,
		attempt.Identity,
		attempt.Stage,
		attempt.Attempt,
		string(attempt.Outcome),
		nullableString(attempt.Error),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record stage attempt: %w", err)
	}
	attempt.CreatedAt = now
	return nil
}

// AttemptsForRun returns all attempt records for a run id in insertion order.
func (s *Store) AttemptsForRun(ctx context.Context, runID string) ([]*Attempt, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, run_id, identity, stage, attempt, outcome, error, created_at
         FROM stage_attempts WHERE run_id = ? ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query stage attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		var (
			a          Attempt
			outcome    string
			errMsg     sql.NullString
			createdRaw string
		)
		if err := rows.Scan(&a.ID, &a.RunID, &a.Identity, &a.Stage, &a.Attempt, &outcome, &errMsg, &createdRaw); err != nil {
			return nil, err
		}
		a.Outcome = AttemptOutcome(outcome)
		a.Error = errMsg.String
		if created, err := parseTimeString(createdRaw); err == nil {
			a.CreatedAt = created
		}
		attempts = append(attempts, &a)
	}
	return attempts, rows.Err()
}

const optimizedColumns = "id, transcription_id, content, metadata_json, category_id, day, model, prompt_tokens, completion_tokens, created_at"

type rowScanner interface{ Scan(dest ...any) error }

func scanTranscription(scanner rowScanner) (*Transcription, error) {
	var (
		tr         Transcription
		audioPath  sql.NullString
		model      sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&tr.ID,
		&tr.Identity,
		&tr.Filename,
		&audioPath,
		&tr.Content,
		&tr.Day,
		&tr.DurationSeconds,
		&model,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	tr.AudioPath = audioPath.String
	tr.Model = model.String
	if created, err := parseTimeString(createdRaw); err == nil {
		tr.CreatedAt = created
	}
	return &tr, nil
}

func scanOptimized(scanner rowScanner) (*Optimized, error) {
	var (
		opt        Optimized
		metadata   sql.NullString
		categoryID sql.NullInt64
		model      sql.NullString
		createdRaw string
	)
	if err := scanner.Scan(
		&opt.ID,
		&opt.TranscriptionID,
		&opt.Content,
		&metadata,
		&categoryID,
		&opt.Day,
		&model,
		&opt.PromptTokens,
		&opt.CompletionTokens,
		&createdRaw,
	); err != nil {
		return nil, err
	}
	opt.MetadataJSON = metadata.String
	opt.CategoryID = categoryID.Int64
	opt.Model = model.String
	if created, err := parseTimeString(createdRaw); err == nil {
		opt.CreatedAt = created
	}
	return &opt, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt64(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
