package domain

import "context"

// Repositories is a set of repositories bound to one connection or
// transaction.
type Repositories struct {
	Sessions   SessionRepository
	Users      UserRepository
	Identities IdentityRepository
}

// UnitOfWork runs multi-step writes atomically.
type UnitOfWork interface {
	// WithinTx begins a transaction, hands fn repositories bound to it and
	// commits when fn returns nil. Any error rolls the whole unit back and
	// leaves no visible effect.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error

	// Repositories returns repositories for single-statement operations
	// outside an explicit transaction.
	Repositories() Repositories
}
