package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/callscope/callscope/pkg/models"
)

// CloserStore persists closer rows.
type CloserStore struct {
	db *sqlx.DB
}

const closerColumns = `id, client_id, name, work_email, status,
	transcript_provider, provider_api_key,
	provider_webhook_id, provider_webhook_secret,
	created_at, updated_at`

// Insert writes a new closer row.
func (s *CloserStore) Insert(ctx context.Context, closer *models.Closer) error {
	if closer.TenantID == "" {
		return fmt.Errorf("insert closer: missing tenant id")
	}
	now := models.FormatISO(time.Now().UTC())
	if closer.CreatedAt == "" {
		closer.CreatedAt = now
	}
	if closer.UpdatedAt == "" {
		closer.UpdatedAt = now
	}

	query := `INSERT INTO closers (` + closerColumns + `) VALUES (
		:id, :client_id, :name, :work_email, :status,
		:transcript_provider, :provider_api_key,
		:provider_webhook_id, :provider_webhook_secret,
		:created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, closer); err != nil {
		return fmt.Errorf("insert closer %s: %w", closer.ID, err)
	}
	return nil
}

// GetByID fetches one closer within the tenant.
func (s *CloserStore) GetByID(ctx context.Context, tenantID, id string) (*models.Closer, error) {
	var closer models.Closer
	query := `SELECT ` + closerColumns + ` FROM closers WHERE client_id = $1 AND id = $2`
	if err := s.db.GetContext(ctx, &closer, query, tenantID, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get closer %s: %w", id, err)
	}
	return &closer, nil
}

// FindActiveByEmail fetches the active closer with the given work email
// within the tenant. Emails are stored normalized.
func (s *CloserStore) FindActiveByEmail(ctx context.Context, tenantID, email string) (*models.Closer, error) {
	var closer models.Closer
	query := `SELECT ` + closerColumns + ` FROM closers
		WHERE client_id = $1 AND work_email = $2 AND status = $3`
	err := s.db.GetContext(ctx, &closer, query, tenantID, models.NormalizeEmail(email), string(models.StatusActive))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find closer by email: %w", err)
	}
	return &closer, nil
}

// FindActiveByEmailAllTenants resolves a work email across every tenant.
// Used only by transcript tenant resolution, where the inbound payload
// carries no tenant identity. Cross-tenant by design.
func (s *CloserStore) FindActiveByEmailAllTenants(ctx context.Context, email string) ([]models.Closer, error) {
	var closers []models.Closer
	query := `SELECT ` + closerColumns + ` FROM closers
		WHERE work_email = $1 AND status = $2`
	err := s.db.SelectContext(ctx, &closers, query, models.NormalizeEmail(email), string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("find closer by email across tenants: %w", err)
	}
	return closers, nil
}

// ListActive returns the tenant's active closers.
func (s *CloserStore) ListActive(ctx context.Context, tenantID string) ([]models.Closer, error) {
	var closers []models.Closer
	query := `SELECT ` + closerColumns + ` FROM closers
		WHERE client_id = $1 AND status = $2 ORDER BY created_at`
	if err := s.db.SelectContext(ctx, &closers, query, tenantID, string(models.StatusActive)); err != nil {
		return nil, fmt.Errorf("list active closers: %w", err)
	}
	return closers, nil
}

// ListActiveAllTenants returns every active closer. Used by the sweeper's
// pull phase, which iterates all tenants in one batch.
func (s *CloserStore) ListActiveAllTenants(ctx context.Context) ([]models.Closer, error) {
	var closers []models.Closer
	query := `SELECT ` + closerColumns + ` FROM closers
		WHERE status = $1 ORDER BY client_id, created_at`
	if err := s.db.SelectContext(ctx, &closers, query, string(models.StatusActive)); err != nil {
		return nil, fmt.Errorf("list active closers across tenants: %w", err)
	}
	return closers, nil
}

// SetStatus flips the closer's lifecycle flag.
func (s *CloserStore) SetStatus(ctx context.Context, tenantID, id string, status models.EntityStatus) error {
	query := `UPDATE closers SET status = $1, updated_at = $2 WHERE client_id = $3 AND id = $4`
	res, err := s.db.ExecContext(ctx, query, string(status), models.FormatISO(time.Now().UTC()), tenantID, id)
	if err != nil {
		return fmt.Errorf("set closer status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetProviderWebhook stores the transcript provider's webhook identity
// after auto-registration.
func (s *CloserStore) SetProviderWebhook(ctx context.Context, tenantID, id, webhookID, webhookSecret string) error {
	query := `UPDATE closers SET provider_webhook_id = $1, provider_webhook_secret = $2, updated_at = $3
		WHERE client_id = $4 AND id = $5`
	res, err := s.db.ExecContext(ctx, query, webhookID, webhookSecret, models.FormatISO(time.Now().UTC()), tenantID, id)
	if err != nil {
		return fmt.Errorf("set closer provider webhook: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
