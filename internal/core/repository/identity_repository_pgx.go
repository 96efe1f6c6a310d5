package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// PgxIdentityRepository implements domain.IdentityRepository using pgx.
type PgxIdentityRepository struct {
	q Querier
}

// NewIdentityRepository creates a new PgxIdentityRepository bound to q.
func NewIdentityRepository(q Querier) *PgxIdentityRepository {
	return &PgxIdentityRepository{q: q}
}

// FindGoogleLink returns the owner linked to googleID.
func (r *PgxIdentityRepository) FindGoogleLink(ctx context.Context, googleID string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.q.QueryRow(ctx, `SELECT user_id FROM user_auth_google WHERE google_id = $1`, googleID).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, domain.ErrNotFound
		}
		return uuid.Nil, fmt.Errorf("lookup google link: %w", err)
	}
	return userID, nil
}

// CreateGoogleLink links googleID to userID.
func (r *PgxIdentityRepository) CreateGoogleLink(ctx context.Context, userID uuid.UUID, googleID string) error {
	_, err := r.q.Exec(ctx, `INSERT INTO user_auth_google (user_id, google_id) VALUES ($1, $2)`, userID, googleID)
	if err != nil {
		return mapPgError(fmt.Errorf("insert google link for %s: %w", userID, err))
	}
	return nil
}
