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

// TokenStore persists API access tokens.
type TokenStore struct {
	db *sqlx.DB
}

const tokenColumns = `id, token, scope, client_id, client_ids, status, created_at`

// Insert writes a new token row.
func (s *TokenStore) Insert(ctx context.Context, token *models.AccessToken) error {
	if token.CreatedAt == "" {
		token.CreatedAt = models.FormatISO(time.Now().UTC())
	}
	query := `INSERT INTO access_tokens (` + tokenColumns + `) VALUES (
		:id, :token, :scope, :client_id, :client_ids, :status, :created_at)`
	if _, err := s.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("insert access token %s: %w", token.ID, err)
	}
	return nil
}

// Resolve looks up an active token by its opaque bearer value.
func (s *TokenStore) Resolve(ctx context.Context, value string) (*models.AccessToken, error) {
	var token models.AccessToken
	query := `SELECT ` + tokenColumns + ` FROM access_tokens WHERE token = $1 AND status = $2`
	if err := s.db.GetContext(ctx, &token, query, value, string(models.StatusActive)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("resolve access token: %w", err)
	}
	return &token, nil
}

// Revoke marks a token inactive.
func (s *TokenStore) Revoke(ctx context.Context, id string) error {
	query := `UPDATE access_tokens SET status = $1 WHERE id = $2`
	res, err := s.db.ExecContext(ctx, query, string(models.StatusInactive), id)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
