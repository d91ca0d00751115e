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

// TenantStore persists tenant rows (the legacy clients table).
type TenantStore struct {
	db *sqlx.DB
}

const tenantColumns = `id, name, plan_tier, status, filter_phrases,
	default_provider, webhook_secret, timezone,
	tenant_context, offer_description, script_template,
	discovery_instructions, pitch_instructions, close_instructions,
	objection_instructions, disqualification_criteria, common_objections,
	additional_context, created_at, updated_at`

// Insert writes a new tenant row.
func (s *TenantStore) Insert(ctx context.Context, tenant *models.Tenant) error {
	now := models.FormatISO(time.Now().UTC())
	if tenant.CreatedAt == "" {
		tenant.CreatedAt = now
	}
	if tenant.UpdatedAt == "" {
		tenant.UpdatedAt = now
	}

	query := `INSERT INTO clients (` + tenantColumns + `) VALUES (
		:id, :name, :plan_tier, :status, :filter_phrases,
		:default_provider, :webhook_secret, :timezone,
		:tenant_context, :offer_description, :script_template,
		:discovery_instructions, :pitch_instructions, :close_instructions,
		:objection_instructions, :disqualification_criteria, :common_objections,
		:additional_context, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, tenant); err != nil {
		return fmt.Errorf("insert tenant %s: %w", tenant.ID, err)
	}
	return nil
}

// GetByID fetches one tenant.
func (s *TenantStore) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	var tenant models.Tenant
	query := `SELECT ` + tenantColumns + ` FROM clients WHERE id = $1`
	if err := s.db.GetContext(ctx, &tenant, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get tenant %s: %w", id, err)
	}
	return &tenant, nil
}

// ListActive returns every active tenant.
func (s *TenantStore) ListActive(ctx context.Context) ([]models.Tenant, error) {
	var tenants []models.Tenant
	query := `SELECT ` + tenantColumns + ` FROM clients WHERE status = $1 ORDER BY created_at`
	if err := s.db.SelectContext(ctx, &tenants, query, string(models.StatusActive)); err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return tenants, nil
}

// SetStatus flips the tenant's lifecycle flag.
func (s *TenantStore) SetStatus(ctx context.Context, id string, status models.EntityStatus) error {
	query := `UPDATE clients SET status = $1, updated_at = $2 WHERE id = $3`
	res, err := s.db.ExecContext(ctx, query, string(status), models.FormatISO(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("set tenant status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePromptProfile replaces the tenant's analysis prompt fragments.
func (s *TenantStore) UpdatePromptProfile(ctx context.Context, tenant *models.Tenant) error {
	query := `UPDATE clients SET
		tenant_context = :tenant_context,
		offer_description = :offer_description,
		script_template = :script_template,
		discovery_instructions = :discovery_instructions,
		pitch_instructions = :pitch_instructions,
		close_instructions = :close_instructions,
		objection_instructions = :objection_instructions,
		disqualification_criteria = :disqualification_criteria,
		common_objections = :common_objections,
		additional_context = :additional_context,
		updated_at = :updated_at
		WHERE id = :id`
	tenant.UpdatedAt = models.FormatISO(time.Now().UTC())
	res, err := s.db.NamedExecContext(ctx, query, tenant)
	if err != nil {
		return fmt.Errorf("update tenant prompt profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
