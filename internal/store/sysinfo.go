package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/georgysavva/scany/v2/sqlscan"
)

// SystemInfo is the latest system-info snapshot of a session. SystemData
// and WebhookResponse hold opaque JSON documents.
type SystemInfo struct {
	SessionID       string         `db:"session_id"`
	SystemData      string         `db:"system_data"`
	WebhookResponse sql.NullString `db:"webhook_response"`
	Timestamp       int64          `db:"timestamp"`
}

const systemInfoColumns = `session_id, system_data, webhook_response, timestamp`

// GetSystemInfo returns the snapshot of a session.
// Returns ErrNotFound (wrapped) if none was recorded.
func (s *Store) GetSystemInfo(ctx context.Context, sessionID string) (*SystemInfo, error) {
	var si SystemInfo
	err := sqlscan.Get(ctx, s.reader, &si, `SELECT `+systemInfoColumns+` FROM system_info WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, lookupErr("get system info", err)
	}
	return &si, nil
}

// InsertSystemInfo stores a new snapshot. It reports false without error
// when the session already has one.
func (s *Store) InsertSystemInfo(ctx context.Context, si *SystemInfo) (bool, error) {
	result, err := s.writer.ExecContext(ctx, `
		INSERT INTO system_info (session_id, system_data, webhook_response, timestamp)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		si.SessionID, si.SystemData, si.WebhookResponse, si.Timestamp,
	)
	if err != nil {
		return false, fmt.Errorf("store: insert system info: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: insert system info rows affected: %w", err)
	}
	return n > 0, nil
}

// PatchSystemInfo replaces every field of an existing snapshot.
func (s *Store) PatchSystemInfo(ctx context.Context, si *SystemInfo) error {
	result, err := s.writer.ExecContext(ctx, `
		UPDATE system_info SET system_data = ?, webhook_response = ?, timestamp = ?
		WHERE session_id = ?`,
		si.SystemData, si.WebhookResponse, si.Timestamp, si.SessionID,
	)
	if err != nil {
		return fmt.Errorf("store: patch system info: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: patch system info rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: patch system info %s: %w", si.SessionID, ErrNotFound)
	}
	return nil
}

// ListSystemInfo returns up to limit snapshots, newest first.
func (s *Store) ListSystemInfo(ctx context.Context, limit int) ([]SystemInfo, error) {
	var out []SystemInfo
	err := sqlscan.Select(ctx, s.reader, &out, `
		SELECT `+systemInfoColumns+` FROM system_info
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list system info: %w", err)
	}
	return out, nil
}
