package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ProcessedFileByIdentity fetches the registry row for an identity, or nil
// when the identity has never reached a terminal state.
func (s *Store) ProcessedFileByIdentity(ctx context.Context, identity string) (*ProcessedFile, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, identity, filename, transcription_id, status, reason,
                journal_entry_id, created_at, updated_at
         FROM processed_files WHERE identity = ?`,
		identity,
	)
	pf, err := scanProcessedFile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("processed file by identity: %w", err)
	}
	return pf, nil
}

// UpsertProcessedFile records the terminal outcome for an identity. A second
// write for the same identity replaces the status and reason, so a failed
// item can later be completed by a retry run.
func (s *Store) UpsertProcessedFile(ctx context.Context, pf *ProcessedFile) error {
	if pf == nil {
		return errors.New("processed file is nil")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO processed_files (
            identity, filename, transcription_id, status, reason,
            journal_entry_id, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (identity) DO UPDATE SET
            filename = excluded.filename,
            transcription_id = excluded.transcription_id,
            status = excluded.status,
            reason = excluded.reason,
            journal_entry_id = excluded.journal_entry_id,
            updated_at = excluded.updated_at`,
		pf.Identity,
		pf.Filename,
		nullableInt64(pf.TranscriptionID),
		string(pf.Status),
		nullableString(pf.Reason),
		nullableInt64(pf.JournalEntryID),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("upsert processed file: %w", err)
	}
	return nil
}

// ProcessedFiles lists all registry rows ordered by creation time.
func (s *Store) ProcessedFiles(ctx context.Context) ([]*ProcessedFile, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, identity, filename, transcription_id, status, reason,
                journal_entry_id, created_at, updated_at
         FROM processed_files ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list processed files: %w", err)
	}
	defer rows.Close()

	var files []*ProcessedFile
	for rows.Next() {
		pf, err := scanProcessedFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, pf)
	}
	return files, rows.Err()
}

// RemoveProcessedFile deletes a registry row, making the identity eligible
// for reprocessing on the next run.
func (s *Store) RemoveProcessedFile(ctx context.Context, identity string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_files WHERE identity = ?`, identity)
	if err != nil {
		return false, fmt.Errorf("remove processed file: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

func scanProcessedFile(scanner rowScanner) (*ProcessedFile, error) {
	var (
		pf              ProcessedFile
		transcriptionID sql.NullInt64
		status          string
		reason          sql.NullString
		entryID         sql.NullInt64
		createdRaw      string
		updatedRaw      string
	)
	if err := scanner.Scan(
		&pf.ID,
		&pf.Identity,
		&pf.Filename,
		&transcriptionID,
		&status,
		&reason,
		&entryID,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	pf.TranscriptionID = transcriptionID.Int64
	pf.Status = ProcessedStatus(status)
	pf.Reason = reason.String
	pf.JournalEntryID = entryID.Int64
	if created, err := parseTimeString(createdRaw); err == nil {
		pf.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		pf.UpdatedAt = updated
	}
	return &pf, nil
}
