package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultOverrideMaxAge bounds how long a schedule override is trusted.
const DefaultOverrideMaxAge = 24 * time.Hour

const bootstrapSQL = `
CREATE TABLE IF NOT EXISTS schedule_overrides (
	dispatch_id TEXT PRIMARY KEY,
	payload     TEXT NOT NULL,
	saved_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS technician_meta (
	technician_id TEXT PRIMARY KEY,
	payload       TEXT NOT NULL
);`

// SQLiteStore is a file-backed implementation of OverrideStore and
// TechnicianMetaStore using an embedded sqlite database.
type SQLiteStore struct {
	db     *sql.DB
	maxAge time.Duration
	now    func() time.Time
}

func Open(path string, overrideMaxAge time.Duration) (*SQLiteStore, error) {
	if overrideMaxAge <= 0 {
		overrideMaxAge = DefaultOverrideMaxAge
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if _, err := db.Exec(bootstrapSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap local store: %w", err)
	}
	return &SQLiteStore{db: db, maxAge: overrideMaxAge, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Override(ctx context.Context, dispatchID string) (ScheduleOverride, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM schedule_overrides WHERE dispatch_id = ?`, dispatchID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ScheduleOverride{}, false, nil
	}
	if err != nil {
		return ScheduleOverride{}, false, fmt.Errorf("read override: %w", err)
	}
	var ov ScheduleOverride
	if err := json.Unmarshal([]byte(payload), &ov); err != nil {
		return ScheduleOverride{}, false, fmt.Errorf("decode override: %w", err)
	}
	if s.now().Sub(ov.SavedAt) > s.maxAge {
		_ = s.DeleteOverride(ctx, dispatchID)
		return ScheduleOverride{}, false, nil
	}
	return ov, true, nil
}

func (s *SQLiteStore) PutOverride(ctx context.Context, dispatchID string, ov ScheduleOverride) error {
	if ov.SavedAt.IsZero() {
		ov.SavedAt = s.now()
	}
	payload, err := json.Marshal(ov)
	if err != nil {
		return fmt.Errorf("encode override: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedule_overrides (dispatch_id, payload, saved_at) VALUES (?, ?, ?)
		ON CONFLICT (dispatch_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		dispatchID, string(payload), ov.SavedAt)
	if err != nil {
		return fmt.Errorf("write override: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteOverride(ctx context.Context, dispatchID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM schedule_overrides WHERE dispatch_id = ?`, dispatchID)
	if err != nil {
		return fmt.Errorf("delete override: %w", err)
	}
	return nil
}

func (s *SQLiteStore) TechnicianMeta(ctx context.Context, technicianID string) (json.RawMessage, bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM technician_meta WHERE technician_id = ?`, technicianID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read technician meta: %w", err)
	}
	return json.RawMessage(payload), true, nil
}

func (s *SQLiteStore) PutTechnicianMeta(ctx context.Context, technicianID string, meta json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO technician_meta (technician_id, payload) VALUES (?, ?)
		ON CONFLICT (technician_id) DO UPDATE SET payload = excluded.payload`,
		technicianID, string(meta))
	if err != nil {
		return fmt.Errorf("write technician meta: %w", err)
	}
	return nil
}
