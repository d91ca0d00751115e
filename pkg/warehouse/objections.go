package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/callscope/callscope/pkg/models"
)

// ObjectionStore persists per-call objection rows.
type ObjectionStore struct {
	db *sqlx.DB
}

const objectionColumns = `id, call_id, client_id, closer_id,
	objection_type, objection_text, timestamp_seconds,
	resolved, resolution_text, resolution_timestamp_seconds, created_at`

// Insert writes one objection row.
func (s *ObjectionStore) Insert(ctx context.Context, obj *models.Objection) error {
	if obj.TenantID == "" {
		return fmt.Errorf("insert objection: missing tenant id")
	}
	if obj.CreatedAt == "" {
		obj.CreatedAt = models.FormatISO(time.Now().UTC())
	}

	query := `INSERT INTO objections (` + objectionColumns + `) VALUES (
		:id, :call_id, :client_id, :closer_id,
		:objection_type, :objection_text, :timestamp_seconds,
		:resolved, :resolution_text, :resolution_timestamp_seconds, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, obj); err != nil {
		return fmt.Errorf("insert objection for call %s: %w", obj.CallID, err)
	}
	return nil
}

// ListByCall returns the call's objections in chronological order.
func (s *ObjectionStore) ListByCall(ctx context.Context, tenantID, callID string) ([]models.Objection, error) {
	var objections []models.Objection
	query := `SELECT ` + objectionColumns + ` FROM objections
		WHERE client_id = $1 AND call_id = $2 ORDER BY timestamp_seconds`
	if err := s.db.SelectContext(ctx, &objections, query, tenantID, callID); err != nil {
		return nil, fmt.Errorf("list objections for call %s: %w", callID, err)
	}
	return objections, nil
}

// DeleteByCall removes a call's objections. Reanalysis replaces the set
// rather than appending to it.
func (s *ObjectionStore) DeleteByCall(ctx context.Context, tenantID, callID string) error {
	query := `DELETE FROM objections WHERE client_id = $1 AND call_id = $2`
	if _, err := s.db.ExecContext(ctx, query, tenantID, callID); err != nil {
		return fmt.Errorf("delete objections for call %s: %w", callID, err)
	}
	return nil
}
