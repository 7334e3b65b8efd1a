package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// IntentLog is one persisted intent proposal row. It is the authoritative
// record of the propose → confirm → execute lifecycle; ephemeral dialogue
// state must never be trusted over it.
type IntentLog struct {
	ID             string
	IntentID       string
	UserID         string
	SpaceID        string
	OrganizationID string
	Status         string
	Payload        map[string]string
	RiskLevel      string
	Metadata       map[string]any
	CreatedAt      time.Time
	UpdatedAt      *time.Time
}

// CreateIntentLog inserts a new proposal row. The caller supplies the id.
func (s *Store) CreateIntentLog(ctx context.Context, row *IntentLog) error {
	payloadJSON, err := marshalNullable(row.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal intent payload: %w", err)
	}
	metadataJSON, err := marshalNullable(row.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal intent metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO intent_log (id, intent_id, user_id, space_id, organization_id, status, payload_json, risk_level, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ID, row.IntentID, row.UserID, row.SpaceID, row.OrganizationID,
		row.Status, payloadJSON, row.RiskLevel, metadataJSON, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert intent log: %w", err)
	}
	return nil
}

// GetIntentLog loads a proposal row by id. Returns ErrNotFound when absent.
func (s *Store) GetIntentLog(ctx context.Context, id string) (*IntentLog, error) {
	row := &IntentLog{}
	var payloadJSON, metadataJSON sql.NullString
	var updatedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, intent_id, user_id, space_id, organization_id, status, payload_json, risk_level, metadata_json, created_at, updated_at
		FROM intent_log
		WHERE id = ?
	`, id).Scan(
		&row.ID, &row.IntentID, &row.UserID, &row.SpaceID, &row.OrganizationID,
		&row.Status, &payloadJSON, &row.RiskLevel, &metadataJSON, &row.CreatedAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("intent log %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent log: %w", err)
	}

	if payloadJSON.Valid {
		if err := json.Unmarshal([]byte(payloadJSON.String), &row.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode intent payload: %w", err)
		}
	}
	if metadataJSON.Valid {
		if err := json.Unmarshal([]byte(metadataJSON.String), &row.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode intent metadata: %w", err)
		}
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		row.UpdatedAt = &t
	}
	return row, nil
}

// TransitionIntentStatus conditionally moves a row from one status to
// another, replacing its metadata. The update only applies when the row is
// still in fromStatus — the conditional WHERE is what keeps two concurrent
// transitions from both succeeding. Returns whether the row changed.
func (s *Store) TransitionIntentStatus(ctx context.Context, id, fromStatus, toStatus string, metadata map[string]any) (bool, error) {
	metadataJSON, err := marshalNullable(metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal intent metadata: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE intent_log
		SET status = ?, metadata_json = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, toStatus, metadataJSON, time.Now(), id, fromStatus)
	if err != nil {
		return false, fmt.Errorf("failed to transition intent log: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return n > 0, nil
}

// ExpireStaleProposals moves every row still in fromStatus whose creation is
// older than cutoff into toStatus, stamping expiry metadata. Returns the
// number of rows moved.
func (s *Store) ExpireStaleProposals(ctx context.Context, fromStatus, toStatus string, cutoff time.Time) (int64, error) {
	metadataJSON, err := marshalNullable(map[string]any{
		"expired_at": time.Now().UTC().Format(time.RFC3339),
		"reason":     "proposal expired without confirmation",
	})
	if err != nil {
		return 0, fmt.Errorf("failed to marshal expiry metadata: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE intent_log
		SET status = ?, metadata_json = ?, updated_at = ?
		WHERE status = ? AND created_at < ?
	`, toStatus, metadataJSON, time.Now(), fromStatus, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire stale proposals: %w", err)
	}
	return result.RowsAffected()
}

// marshalNullable JSON-encodes v into a nullable column value; nil or empty
// maps become SQL NULL.
func marshalNullable(v any) (sql.NullString, error) {
	switch m := v.(type) {
	case map[string]string:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	case map[string]any:
		if len(m) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
