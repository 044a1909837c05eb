package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Entry is one recorded scan.
type Entry struct {
	ID          string
	Fingerprint string
	SourcePath  string
	VolumeLabel string
	Title       string

	StartedAt  time.Time
	FinishedAt time.Time

	// Phase is the final orchestrator phase, e.g. "done" or "cancelled".
	Phase     string
	Cancelled bool

	TotalBytes    int64
	FinishedBytes int64
	DiscSize      int64

	Playlists   int
	StreamFiles int

	ErrorMessage string
	// SummaryJSON holds the serialized report.
	SummaryJSON string

	// FileErrors maps stream file names to error text. List leaves it empty
	// and fills FileErrorCount instead.
	FileErrors     map[string]string
	FileErrorCount int
}

// Duration is the wall time the scan took.
func (e Entry) Duration() time.Duration {
	if e.FinishedAt.IsZero() || e.StartedAt.IsZero() {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

const entryColumns = `id, fingerprint, source_path, volume_label, title, started_at, finished_at, phase, cancelled,
	total_bytes, finished_bytes, disc_size, playlist_count, stream_file_count, error_message, summary_json,
	(SELECT COUNT(1) FROM scan_file_errors f WHERE f.scan_id = scans.id)`

// Record inserts or replaces an entry together with its file errors.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("history entry requires an id")
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin record tx: %w", err)
		}
		defer func() {
			_ = tx.Rollback()
		}()

		if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO scans (
			id, fingerprint, source_path, volume_label, title, started_at, finished_at, phase, cancelled,
			total_bytes, finished_bytes, disc_size, playlist_count, stream_file_count, error_message, summary_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID, nullableString(e.Fingerprint), e.SourcePath, nullableString(e.VolumeLabel), nullableString(e.Title),
			formatTime(e.StartedAt), nullableTime(e.FinishedAt), e.Phase, boolToInt(e.Cancelled),
			e.TotalBytes, e.FinishedBytes, e.DiscSize, e.Playlists, e.StreamFiles,
			nullableString(e.ErrorMessage), nullableString(e.SummaryJSON),
		); err != nil {
			return fmt.Errorf("insert scan: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM scan_file_errors WHERE scan_id = ?`, e.ID); err != nil {
			return fmt.Errorf("clear file errors: %w", err)
		}
		files := make([]string, 0, len(e.FileErrors))
		for name := range e.FileErrors {
			files = append(files, name)
		}
		sort.Strings(files)
		for _, name := range files {
			if _, err := tx.ExecContext(ctx, `INSERT INTO scan_file_errors (scan_id, file, error_message) VALUES (?, ?, ?)`,
				e.ID, name, e.FileErrors[name]); err != nil {
				return fmt.Errorf("insert file error %s: %w", name, err)
			}
		}
		return tx.Commit()
	})
}

// List returns up to limit entries, newest first. A limit <= 0 lists all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM scans ORDER BY started_at DESC, id`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.query(ctx, query, args...)
}

// FindByFingerprint returns the scans of one disc, newest first.
func (s *Store) FindByFingerprint(ctx context.Context, fingerprint string) ([]Entry, error) {
	return s.query(ctx, `SELECT `+entryColumns+` FROM scans WHERE fingerprint = ? ORDER BY started_at DESC, id`, fingerprint)
}

// Get returns the entry whose ID equals or starts with id, including its
// file errors.
func (s *Store) Get(ctx context.Context, id string) (*Entry, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}
	entries, err := s.query(ctx, `SELECT `+entryColumns+` FROM scans WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY id LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return nil, err
	}
	switch {
	case len(entries) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case len(entries) > 1 && entries[0].ID != id:
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousID, id)
	}
	entry := entries[0]

	rows, err := s.db.QueryContext(ctx, `SELECT file, error_message FROM scan_file_errors WHERE scan_id = ? ORDER BY file`, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("load file errors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var file, msg string
		if err := rows.Scan(&file, &msg); err != nil {
			return nil, err
		}
		if entry.FileErrors == nil {
			entry.FileErrors = make(map[string]string)
		}
		entry.FileErrors[file] = msg
	}
	return &entry, rows.Err()
}

// Prune keeps the newest keep entries and deletes the rest, returning the
// number removed.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE id NOT IN (
			SELECT id FROM scans ORDER BY started_at DESC, id LIMIT ?
		)`, keep)
		if err != nil {
			return fmt.Errorf("prune scans: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		e           Entry
		fingerprint sql.NullString
		label       sql.NullString
		title       sql.NullString
		startedRaw  string
		finishedRaw sql.NullString
		cancelled   int
		errorMsg    sql.NullString
		summary     sql.NullString
	)
	if err := scanner.Scan(
		&e.ID,
		&fingerprint,
		&e.SourcePath,
		&label,
		&title,
		&startedRaw,
		&finishedRaw,
		&e.Phase,
		&cancelled,
		&e.TotalBytes,
		&e.FinishedBytes,
		&e.DiscSize,
		&e.Playlists,
		&e.StreamFiles,
		&errorMsg,
		&summary,
		&e.FileErrorCount,
	); err != nil {
		return Entry{}, err
	}
	e.Fingerprint = fingerprint.String
	e.VolumeLabel = label.String
	e.Title = title.String
	e.Cancelled = cancelled != 0
	e.ErrorMessage = errorMsg.String
	e.SummaryJSON = summary.String
	if t, err := parseTimeString(startedRaw); err == nil {
		e.StartedAt = t
	}
	if finishedRaw.Valid {
		if t, err := parseTimeString(finishedRaw.String); err == nil {
			e.FinishedAt = t
		}
	}
	return e, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
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

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
