package repository

import (
	"context"
	"database/sql"
	"errors"

	"leadflow/api/internal/crm/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a token repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tokenColumns = `id, user_id, access_token, refresh_token, expires_at, scopes, updated_at`

// Upsert inserts the token or replaces the user's existing row. The write is a
// single statement so concurrent connects for the same user never leave a
// mixed token pair behind.
func (r *PostgresRepository) Upsert(ctx context.Context, t *domain.IntegrationToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO crm_tokens (id, user_id, access_token, refresh_token, expires_at, scopes, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			expires_at = EXCLUDED.expires_at,
			scopes = EXCLUDED.scopes,
			updated_at = EXCLUDED.updated_at`,
		t.ID, t.UserID, t.AccessToken, t.RefreshToken, t.ExpiresAt, t.Scopes, t.UpdatedAt,
	)
	return err
}

// GetByUserID returns the user's token, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByUserID(ctx context.Context, userID string) (*domain.IntegrationToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM crm_tokens WHERE user_id = $1`, userID)
	var t domain.IntegrationToken
	err := row.Scan(&t.ID, &t.UserID, &t.AccessToken, &t.RefreshToken, &t.ExpiresAt, &t.Scopes, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// DeleteByUserID removes the user's token. Missing rows are ignored.
func (r *PostgresRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM crm_tokens WHERE user_id = $1`, userID)
	return err
}
