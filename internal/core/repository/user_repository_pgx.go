package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// PgxUserRepository implements domain.UserRepository using pgx.
type PgxUserRepository struct {
	q Querier
}

// NewUserRepository creates a new PgxUserRepository bound to q.
func NewUserRepository(q Querier) *PgxUserRepository {
	return &PgxUserRepository{q: q}
}

// GetBasicByEmail returns the basic-auth record matching email.
func (r *PgxUserRepository) GetBasicByEmail(ctx context.Context, email string) (*domain.BasicCredentials, error) {
	query := `SELECT user_id, email, password_hash FROM user_auth_basic WHERE lower(email) = lower($1)`

	var row domain.BasicCredentials
	err := r.q.QueryRow(ctx, query, email).Scan(&row.UserID, &row.Email, &row.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("basic credentials for %q: %w", email, domain.ErrNotFound)
		}
		return nil, err
	}
	return &row, nil
}

// Create inserts a new subject and returns its id.
func (r *PgxUserRepository) Create(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := r.q.Exec(ctx, `INSERT INTO "user" (id) VALUES ($1)`, id); err != nil {
		return uuid.Nil, mapPgError(fmt.Errorf("insert user: %w", err))
	}
	return id, nil
}

// InsertEmail attaches an email to the subject.
func (r *PgxUserRepository) InsertEmail(ctx context.Context, userID uuid.UUID, email string, verified bool) error {
	query := `
		INSERT INTO user_email (user_id, email, verified_at)
		VALUES ($1, $2, CASE WHEN $3::boolean THEN now() END)
	`
	if _, err := r.q.Exec(ctx, query, userID, email, verified); err != nil {
		return mapPgError(fmt.Errorf("insert email for %s: %w", userID, err))
	}
	return nil
}

// RegistrationStatus derives the subject's status from profile and email rows.
func (r *PgxUserRepository) RegistrationStatus(ctx context.Context, userID uuid.UUID) (domain.RegistrationStatus, error) {
	query := `
		SELECT
			EXISTS(SELECT 1 FROM user_profile WHERE user_id = u.id),
			EXISTS(SELECT 1 FROM user_email WHERE user_id = u.id AND verified_at IS NOT NULL)
		FROM "user" u
		WHERE u.id = $1
	`
	var hasProfile, verified bool
	if err := r.q.QueryRow(ctx, query, userID).Scan(&hasProfile, &verified); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StatusNew, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return domain.StatusNew, err
	}
	switch {
	case hasProfile:
		return domain.StatusComplete, nil
	case verified:
		return domain.StatusValidated, nil
	default:
		return domain.StatusNew, nil
	}
}
