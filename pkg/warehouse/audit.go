package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/callscope/callscope/pkg/models"
)

// AuditStore persists the append-only audit trail. Rows are written
// once and never updated.
type AuditStore struct {
	db *sqlx.DB
}

const auditColumns = `id, created_at, client_id, entity_type, entity_id, action,
	field_name, old_value, new_value, trigger_source, trigger_detail, metadata`

// Insert appends one audit entry.
func (s *AuditStore) Insert(ctx context.Context, entry *models.AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	query := `INSERT INTO audit_log (` + auditColumns + `) VALUES (
		:id, :created_at, :client_id, :entity_type, :entity_id, :action,
		:field_name, :old_value, :new_value, :trigger_source, :trigger_detail, :metadata)`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert audit entry for %s/%s: %w", entry.EntityType, entry.EntityID, err)
	}
	return nil
}

// ListByEntity returns an entity's audit trail, oldest first.
func (s *AuditStore) ListByEntity(ctx context.Context, tenantID, entityType, entityID string) ([]models.AuditEntry, error) {
	var entries []models.AuditEntry
	query := `SELECT ` + auditColumns + ` FROM audit_log
		WHERE client_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at`
	if err := s.db.SelectContext(ctx, &entries, query, tenantID, entityType, entityID); err != nil {
		return nil, fmt.Errorf("list audit entries for %s/%s: %w", entityType, entityID, err)
	}
	return entries, nil
}

// CostStore persists the append-only AI spend ledger.
type CostStore struct {
	db *sqlx.DB
}

const costColumns = `id, created_at, client_id, call_id, model,
	input_tokens, output_tokens, input_cost_usd, output_cost_usd, total_cost_usd, duration_ms`

// Insert appends one cost entry.
func (s *CostStore) Insert(ctx context.Context, entry *models.CostEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	query := `INSERT INTO cost_tracking (` + costColumns + `) VALUES (
		:id, :created_at, :client_id, :call_id, :model,
		:input_tokens, :output_tokens, :input_cost_usd, :output_cost_usd, :total_cost_usd, :duration_ms)`
	if _, err := s.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("insert cost entry for call %s: %w", entry.CallID, err)
	}
	return nil
}

// ListByTenant returns a tenant's cost entries within [from, to), newest first.
func (s *CostStore) ListByTenant(ctx context.Context, tenantID string, from, to time.Time) ([]models.CostEntry, error) {
	var entries []models.CostEntry
	query := `SELECT ` + costColumns + ` FROM cost_tracking
		WHERE client_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &entries, query, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("list cost entries: %w", err)
	}
	return entries, nil
}
