package domain

import (
	"context"

	"github.com/google/uuid"
)

// RegistrationStatus is how far a subject has progressed through sign-up.
type RegistrationStatus int

const (
	// StatusNew has no verified email and no profile.
	StatusNew RegistrationStatus = iota
	// StatusValidated has a verified email but no profile yet.
	StatusValidated
	// StatusComplete has a profile.
	StatusComplete
)

func (s RegistrationStatus) String() string {
	switch s {
	case StatusValidated:
		return "validated"
	case StatusComplete:
		return "complete"
	default:
		return "new"
	}
}

// BasicCredentials is a basic-auth login record. It includes the password
// hash so the Logic layer can verify credentials.
type BasicCredentials struct {
	UserID       uuid.UUID
	Email        string
	PasswordHash string
}

// UserRepository defines the data-access contract for user operations.
// Implementations live in internal/core/repository (Core layer).
// The Logic layer depends on this interface only, never on SQL or pgx directly.
type UserRepository interface {
	// GetBasicByEmail returns the basic-auth record for email (case-insensitive).
	GetBasicByEmail(ctx context.Context, email string) (*BasicCredentials, error)

	// Create inserts a new subject with no profile and returns its id.
	Create(ctx context.Context) (uuid.UUID, error)

	// InsertEmail attaches an email to the subject. A duplicate email
	// returns ErrConflict.
	InsertEmail(ctx context.Context, userID uuid.UUID, email string, verified bool) error

	// RegistrationStatus derives the subject's status from its profile and
	// email rows. Returns ErrNotFound for an unknown subject.
	RegistrationStatus(ctx context.Context, userID uuid.UUID) (RegistrationStatus, error)
}
