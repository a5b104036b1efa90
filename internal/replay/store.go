package replay

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRecordingNotFound is returned when a requested recording is absent.
var ErrRecordingNotFound = errors.New("recording not found")

// Store keeps landmark recordings in SQLite so long captures can be
// imported once and replayed without re-parsing JSON.
type Store struct {
	*sql.DB
}

// RecordingInfo summarises a stored recording.
type RecordingInfo struct {
	ID         string
	Source     string
	FrameCount int
	Duration   time.Duration
	CreatedAt  time.Time
}

// OpenStore opens (creating if needed) the store at path and applies
// pending migrations.
func OpenStore(path string) (*Store, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to recording store: %w", err)
	}

	s := &Store{db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// MigrateUp runs all pending migrations up to the latest version.
func (s *Store) MigrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	// m is not closed: that would close the shared *sql.DB.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the current schema version and dirty state.
func (s *Store) MigrateVersion() (uint, bool, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.DB, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

// migrateLogger implements migrate.Logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}

// SaveRecording stores rec, assigning an ID if it has none, and returns
// the ID. Frames are sorted by timestamp and renumbered first, so rec
// need not come from ReadJSONL.
func (s *Store) SaveRecording(ctx context.Context, rec *Recording) (string, error) {
	if len(rec.Frames) == 0 {
		return "", ErrEmptyRecording
	}
	rec.normalise()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO recordings (recording_id, source, frame_count, duration_ns) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Source, len(rec.Frames), int64(rec.Duration()))
	if err != nil {
		return "", fmt.Errorf("failed to insert recording: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO recording_frames (recording_id, frame_index, timestamp_ns, landmarks_json) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare frame insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range rec.Frames {
		var landmarks sql.NullString
		if f.Landmarks != nil {
			b, err := json.Marshal(f.Landmarks)
			if err != nil {
				return "", fmt.Errorf("failed to encode frame %d: %w", f.Index, err)
			}
			landmarks = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, f.Index, int64(f.Timestamp), landmarks); err != nil {
			return "", fmt.Errorf("failed to insert frame %d: %w", f.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit recording: %w", err)
	}
	return rec.ID, nil
}

// LoadRecording reads the recording with the given ID, or the most
// recently created one when id is empty.
func (s *Store) LoadRecording(ctx context.Context, id string) (*Recording, error) {
	rec := &Recording{}
	var row *sql.Row
	if id == "" {
		row = s.QueryRowContext(ctx,
			`SELECT recording_id, source FROM recordings ORDER BY created_at DESC, rowid DESC LIMIT 1`)
	} else {
		row = s.QueryRowContext(ctx,
			`SELECT recording_id, source FROM recordings WHERE recording_id = ?`, id)
	}
	if err := row.Scan(&rec.ID, &rec.Source); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordingNotFound
		}
		return nil, fmt.Errorf("failed to query recording: %w", err)
	}

	rows, err := s.QueryContext(ctx,
		`SELECT frame_index, timestamp_ns, landmarks_json FROM recording_frames
		 WHERE recording_id = ? ORDER BY timestamp_ns, frame_index`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f         RecordedFrame
			ts        int64
			landmarks sql.NullString
		)
		if err := rows.Scan(&f.Index, &ts, &landmarks); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		f.Timestamp = time.Duration(ts)
		if landmarks.Valid {
			if err := json.Unmarshal([]byte(landmarks.String), &f.Landmarks); err != nil {
				return nil, fmt.Errorf("failed to decode frame %d: %w", f.Index, err)
			}
		}
		rec.Frames = append(rec.Frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate frames: %w", err)
	}
	if len(rec.Frames) == 0 {
		return nil, ErrEmptyRecording
	}
	rec.normalise()
	return rec, nil
}

// ListRecordings returns all stored recordings, newest first.
func (s *Store) ListRecordings(ctx context.Context) ([]RecordingInfo, error) {
	rows, err := s.QueryContext(ctx,
		`SELECT recording_id, source, frame_count, duration_ns, created_at
		 FROM recordings ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	var out []RecordingInfo
	for rows.Next() {
		var (
			info    RecordingInfo
			dur     int64
			created interface{}
		)
		if err := rows.Scan(&info.ID, &info.Source, &info.FrameCount, &dur, &created); err != nil {
			return nil, fmt.Errorf("failed to scan recording: %w", err)
		}
		info.Duration = time.Duration(dur)
		info.CreatedAt = parseTimestamp(created)
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteRecording removes a recording and its frames.
func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	res, err := s.ExecContext(ctx, `DELETE FROM recordings WHERE recording_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRecordingNotFound
	}
	return nil
}

// parseTimestamp accepts the forms the sqlite driver may return for a
// CURRENT_TIMESTAMP column. Unparseable values yield the zero time.
func parseTimestamp(v interface{}) time.Time {
	var text string
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		text = t
	case []byte:
		text = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339Nano} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts
		}
	}
	return time.Time{}
}
