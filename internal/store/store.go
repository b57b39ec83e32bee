package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/andresmejia3/shadecheck/internal/types"
)

var (
	ErrNotFound  = errors.New("capture not found")
	ErrAmbiguous = errors.New("capture id prefix matches more than one capture")
)

// Store manages the PostgreSQL connection holding capture records.
// A pgx.Conn is not safe for concurrent use; callers serialise access.
type Store struct {
	conn *pgx.Conn
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the necessary tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS captures (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			location TEXT NOT NULL,
			file_name TEXT NOT NULL,
			mime_type TEXT NOT NULL,
			source_tag TEXT NOT NULL,
			width INT NOT NULL,
			height INT NOT NULL,
			label TEXT NOT NULL DEFAULT '',
			readiness TEXT NOT NULL DEFAULT '',
			mean_luma DOUBLE PRECISION NOT NULL DEFAULT 0,
			cast_magnitude DOUBLE PRECISION NOT NULL DEFAULT 0,
			sharpness DOUBLE PRECISION NOT NULL DEFAULT 0,
			skin_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
			face_area_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
			captured_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS captures_captured_at_idx ON captures (captured_at DESC);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

// InsertCapture records a hand-off. Re-recording the same image bytes refreshes
// the row instead of duplicating it.
// InsertCapture records a handed-off capture. A session keeps a single record:
// when a hand-off is retried with a new image, the earlier attempt is replaced.
// Re-inserting the same image only refreshes it.
func (s *Store) InsertCapture(ctx context.Context, c types.CaptureRecord) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if c.SessionID != "" {
		if _, err := tx.Exec(ctx, `DELETE FROM captures WHERE session_id = $1 AND id <> $2`, c.SessionID, c.ID); err != nil {
			return fmt.Errorf("failed to replace earlier attempt: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO captures (id, session_id, location, file_name, mime_type, source_tag, width, height,
			readiness, mean_luma, cast_magnitude, sharpness, skin_ratio, face_area_ratio, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			location = EXCLUDED.location,
			readiness = EXCLUDED.readiness,
			captured_at = NOW()
	`, c.ID, c.SessionID, c.Location, c.FileName, c.MimeType, c.SourceTag, c.Width, c.Height,
		c.Readiness, c.Debug.MeanLuma, c.Debug.CastMagnitude, c.Debug.Sharpness, c.Debug.SkinRatio, c.Debug.FaceAreaRatio)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const selectCapture = `
	SELECT id, session_id, location, file_name, mime_type, source_tag, width, height, label, readiness,
		mean_luma, cast_magnitude, sharpness, skin_ratio, face_area_ratio, captured_at
	FROM captures`

func scanCapture(row pgx.Row) (types.CaptureRecord, error) {
	var c types.CaptureRecord
	err := row.Scan(&c.ID, &c.SessionID, &c.Location, &c.FileName, &c.MimeType, &c.SourceTag,
		&c.Width, &c.Height, &c.Label, &c.Readiness,
		&c.Debug.MeanLuma, &c.Debug.CastMagnitude, &c.Debug.Sharpness, &c.Debug.SkinRatio, &c.Debug.FaceAreaRatio,
		&c.CapturedAt)
	return c, err
}

// GetCapture looks a capture up by its id or an unambiguous prefix of it.
func (s *Store) GetCapture(ctx context.Context, idPrefix string) (types.CaptureRecord, error) {
	if idPrefix == "" {
		return types.CaptureRecord{}, ErrNotFound
	}
	rows, err := s.conn.Query(ctx, selectCapture+` WHERE starts_with(id, $1) ORDER BY id LIMIT 2`, idPrefix)
	if err != nil {
		return types.CaptureRecord{}, err
	}
	defer rows.Close()

	var found []types.CaptureRecord
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return types.CaptureRecord{}, err
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return types.CaptureRecord{}, err
	}

	switch len(found) {
	case 0:
		return types.CaptureRecord{}, ErrNotFound
	case 1:
		return found[0], nil
	default:
		return types.CaptureRecord{}, ErrAmbiguous
	}
}

// ListCaptures returns the most recent captures first. limit <= 0 means no limit.
func (s *Store) ListCaptures(ctx context.Context, limit int) ([]types.CaptureRecord, error) {
	query := selectCapture + ` ORDER BY captured_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var captures []types.CaptureRecord
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, err
		}
		captures = append(captures, c)
	}
	return captures, rows.Err()
}

// LabelCapture sets a free-form label on a capture.
func (s *Store) LabelCapture(ctx context.Context, id, label string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE captures SET label = $1 WHERE id = $2", label, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Reset drops all application tables to clear the database state.
// The schema is recreated on the next connection.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `DROP TABLE IF EXISTS captures CASCADE;`)
	return err
}
