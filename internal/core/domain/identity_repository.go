package domain

import (
	"context"

	"github.com/google/uuid"
)

// IdentityRepository stores links between local subjects and federated
// provider subjects.
type IdentityRepository interface {
	// FindGoogleLink returns the local owner for a Google subject id, or
	// ErrNotFound when the subject has never logged in.
	FindGoogleLink(ctx context.Context, googleID string) (uuid.UUID, error)

	// CreateGoogleLink links googleID to userID. The Google subject id is
	// unique; a concurrent duplicate returns ErrConflict.
	CreateGoogleLink(ctx context.Context, userID uuid.UUID, googleID string) error
}
