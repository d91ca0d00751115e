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

// ProspectStore persists the per-tenant prospect ledger.
type ProspectStore struct {
	db *sqlx.DB
}

const prospectColumns = `id, client_id, email, name,
	total_calls, total_shows, total_cash_collected, total_revenue,
	payment_count, last_payment_date, status, created_at, updated_at`

// Insert writes a new prospect row.
func (s *ProspectStore) Insert(ctx context.Context, p *models.Prospect) error {
	if p.TenantID == "" {
		return fmt.Errorf("insert prospect: missing tenant id")
	}
	now := models.FormatISO(time.Now().UTC())
	if p.CreatedAt == "" {
		p.CreatedAt = now
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = now
	}
	if p.Status == "" {
		p.Status = models.StatusActive
	}
	p.Email = models.NormalizeEmail(p.Email)

	query := `INSERT INTO prospects (` + prospectColumns + `) VALUES (
		:id, :client_id, :email, :name,
		:total_calls, :total_shows, :total_cash_collected, :total_revenue,
		:payment_count, :last_payment_date, :status, :created_at, :updated_at)`
	if _, err := s.db.NamedExecContext(ctx, query, p); err != nil {
		return fmt.Errorf("insert prospect %s: %w", p.Email, err)
	}
	return nil
}

// GetByEmail fetches the tenant's prospect row for a normalized email.
func (s *ProspectStore) GetByEmail(ctx context.Context, tenantID, email string) (*models.Prospect, error) {
	var p models.Prospect
	query := `SELECT ` + prospectColumns + ` FROM prospects WHERE client_id = $1 AND email = $2`
	if err := s.db.GetContext(ctx, &p, query, tenantID, models.NormalizeEmail(email)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get prospect %s: %w", email, err)
	}
	return &p, nil
}

// RecordCall bumps the prospect's call counter, filling the name when it
// was previously blank.
func (s *ProspectStore) RecordCall(ctx context.Context, tenantID, email, name string) error {
	query := `UPDATE prospects SET
		total_calls = total_calls + 1,
		name = CASE WHEN name = '' THEN $1 ELSE name END,
		updated_at = $2
		WHERE client_id = $3 AND email = $4`
	res, err := s.db.ExecContext(ctx, query, name, models.FormatISO(time.Now().UTC()), tenantID, models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("record prospect call: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// FillName sets the prospect's display name only when it is still blank.
func (s *ProspectStore) FillName(ctx context.Context, tenantID, email, name string) error {
	query := `UPDATE prospects SET
		name = CASE WHEN name = '' THEN $1 ELSE name END,
		updated_at = $2
		WHERE client_id = $3 AND email = $4`
	res, err := s.db.ExecContext(ctx, query, name, models.FormatISO(time.Now().UTC()), tenantID, models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("fill prospect name: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordShow bumps the prospect's show counter.
func (s *ProspectStore) RecordShow(ctx context.Context, tenantID, email string) error {
	query := `UPDATE prospects SET
		total_shows = total_shows + 1,
		updated_at = $1
		WHERE client_id = $2 AND email = $3`
	res, err := s.db.ExecContext(ctx, query, models.FormatISO(time.Now().UTC()), tenantID, models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("record prospect show: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyPayment applies revenue and cash deltas to the prospect totals.
// Deltas may be negative (refunds, chargebacks); both totals are floored
// at zero so out-of-order events cannot drive them below.
func (s *ProspectStore) ApplyPayment(ctx context.Context, tenantID, email string, revenueDelta, cashDelta float64, paidAt string) error {
	query := `UPDATE prospects SET
		total_revenue = GREATEST(0, total_revenue + $1),
		total_cash_collected = GREATEST(0, total_cash_collected + $2),
		payment_count = payment_count + 1,
		last_payment_date = $3,
		updated_at = $4
		WHERE client_id = $5 AND email = $6`
	res, err := s.db.ExecContext(ctx, query, revenueDelta, cashDelta, paidAt, models.FormatISO(time.Now().UTC()), tenantID, models.NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("apply prospect payment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
