package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// PgxSessionRepository implements domain.SessionRepository using pgx.
type PgxSessionRepository struct {
	q Querier
}

// NewSessionRepository creates a new PgxSessionRepository bound to q.
func NewSessionRepository(q Querier) *PgxSessionRepository {
	return &PgxSessionRepository{q: q}
}

// Create inserts a new session for the given owner.
func (r *PgxSessionRepository) Create(ctx context.Context, ownerID uuid.UUID, validUntil *time.Time, mask domain.Mask, singleUseCode *string) (*domain.Session, error) {
	query := `
		INSERT INTO session (id, user_id, valid_until, mask, single_use_code)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	s := &domain.Session{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		ValidUntil:    validUntil,
		Mask:          mask,
		SingleUseCode: singleUseCode,
	}
	err := r.q.QueryRow(ctx, query, s.ID, ownerID, validUntil, int32(mask.Bits()), singleUseCode).Scan(&s.CreatedAt)
	if err != nil {
		return nil, mapPgError(fmt.Errorf("insert session for %s: %w", ownerID, err))
	}
	return s, nil
}

// FindValid returns the session when it exists, is not revoked and has not
// reached valid_until.
func (r *PgxSessionRepository) FindValid(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		SELECT id, user_id, valid_until, mask, single_use_code, created_at
		FROM session
		WHERE id = $1
		  AND deleted_at IS NULL
		  AND (valid_until IS NULL OR valid_until > now())
	`
	s, err := scanSession(r.q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("lookup session %s: %w", id, err)
	}
	return s, nil
}

// ConsumeSingleUseCode clears the code in a single UPDATE. The row lock
// taken by the update makes a concurrent consumer re-check the predicate and
// match nothing.
func (r *PgxSessionRepository) ConsumeSingleUseCode(ctx context.Context, code string) (*domain.Session, error) {
	query := `
		UPDATE session
		SET single_use_code = NULL
		WHERE single_use_code = $1
		  AND deleted_at IS NULL
		  AND (valid_until IS NULL OR valid_until > now())
		RETURNING id, user_id, valid_until, mask, single_use_code, created_at
	`
	s, err := scanSession(r.q.QueryRow(ctx, query, code))
	if err != nil {
		return nil, fmt.Errorf("consume single use code: %w", err)
	}
	return s, nil
}

// Revoke soft-deletes the session.
func (r *PgxSessionRepository) Revoke(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE session SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`
	if _, err := r.q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("revoke session %s: %w", id, err)
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s    domain.Session
		bits int32
	)
	err := row.Scan(&s.ID, &s.OwnerID, &s.ValidUntil, &bits, &s.SingleUseCode, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	mask, err := domain.ParseMask(uint32(bits))
	if err != nil {
		// A stored mask outside the vocabulary is corruption, not bad input.
		return nil, fmt.Errorf("session %s has invalid mask %d: %v", s.ID, bits, err)
	}
	s.Mask = mask
	return &s, nil
}
