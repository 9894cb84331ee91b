package store

import (
	"context"
	"encoding/json"
	"time"
)

// AuditLog is an append-only activity row.
type AuditLog struct {
	ID           string          `json:"id"`
	ClientID     string          `json:"clientId"`
	UserID       string          `json:"userId"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Details      json.RawMessage `json:"details"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// InsertAuditLog appends l.
func (s *Store) InsertAuditLog(ctx context.Context, l AuditLog) (AuditLog, error) {
	l.ID, l.CreatedAt = newID(), s.Now()
	if len(l.Details) == 0 {
		l.Details = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_logs (id, client_id, user_id, action, resource_type, resource_id, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, l.ID, l.ClientID, l.UserID, l.Action, l.ResourceType, nullString(l.ResourceID), string(l.Details), l.CreatedAt)
	return l, mapErr(err)
}

// ListAuditLogs returns the newest rows of clientID, optionally filtered by
// action.
func (s *Store) ListAuditLogs(ctx context.Context, clientID, action string, limit int) ([]AuditLog, error) {
	q := `SELECT id, client_id, user_id, action, resource_type, COALESCE(resource_id, ''), details, created_at FROM audit_logs WHERE client_id = ?`
	args := []any{clientID}
	if action != "" {
		q += ` AND action = ?`
		args = append(args, action)
	}
	q += ` ORDER BY created_at DESC, rowid DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AuditLog
	for rows.Next() {
		var l AuditLog
		var details string
		if err := rows.Scan(&l.ID, &l.ClientID, &l.UserID, &l.Action, &l.ResourceType, &l.ResourceID, &details, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.Details = json.RawMessage(details)
		out = append(out, l)
	}
	return out, rows.Err()
}
