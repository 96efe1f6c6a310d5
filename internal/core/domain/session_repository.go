package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is a server-held record authorizing a bounded set of actions for
// its owner. Mask is fixed at creation; an upgrade requires a new session.
type Session struct {
	ID            uuid.UUID
	OwnerID       uuid.UUID
	ValidUntil    *time.Time
	Mask          Mask
	SingleUseCode *string
	CreatedAt     time.Time
}

// Expired reports whether the record-level expiry has passed at now.
// Sessions without ValidUntil never expire at the record level.
func (s *Session) Expired(now time.Time) bool {
	return s.ValidUntil != nil && !now.Before(*s.ValidUntil)
}

// SessionRepository defines the data-access contract for session operations.
// Implementations live in internal/core/repository (Core layer).
// Lookups return ErrNotFound (wrapped) for absent, expired or revoked sessions.
type SessionRepository interface {
	// Create inserts a new session. It runs on whatever connection or
	// transaction the repository is bound to.
	Create(ctx context.Context, ownerID uuid.UUID, validUntil *time.Time, mask Mask, singleUseCode *string) (*Session, error)

	// FindValid returns the session only if it is neither expired nor revoked.
	FindValid(ctx context.Context, id uuid.UUID) (*Session, error)

	// ConsumeSingleUseCode atomically reads and clears the code. Of two
	// concurrent callers with the same code exactly one receives the session.
	ConsumeSingleUseCode(ctx context.Context, code string) (*Session, error)

	// Revoke soft-deletes the session. Revoking twice is not an error.
	Revoke(ctx context.Context, id uuid.UUID) error
}
