package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/identity-service/internal/core/domain"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestMemoryStore_ClockDrivesExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore(WithClock(func() time.Time { return now }))
	ctx := context.Background()
	repos := store.Repositories()

	owner, err := repos.Users.Create(ctx)
	require.NoError(t, err)
	until := now.Add(time.Minute)
	sess, err := repos.Sessions.Create(ctx, owner, &until, domain.MaskGeneral, nil)
	require.NoError(t, err)

	_, err = repos.Sessions.FindValid(ctx, sess.ID)
	require.NoError(t, err)

	now = until
	_, err = repos.Sessions.FindValid(ctx, sess.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryStore_Seed(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	repos := store.Repositories()

	id, err := store.AddBasicUser("Alice@Example.com", "hash", true)
	require.NoError(t, err)

	creds, err := repos.Users.GetBasicByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, creds.UserID)
	assert.Equal(t, "hash", creds.PasswordHash)

	_, err = store.AddBasicUser("alice@example.com", "other", false)
	assert.ErrorIs(t, err, domain.ErrConflict)

	require.NoError(t, store.AddProfile(id, "alice"))
	status, err := repos.Users.RegistrationStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusComplete, status)

	assert.ErrorIs(t, store.AddProfile(uuid.New(), "bob"), domain.ErrNotFound)
}

// Two transactions that both observe "no link" must not both commit.
func TestMemoryStore_CommitTimeUniqueness(t *testing.T) {
	var arrived sync.WaitGroup
	arrived.Add(2)
	release := make(chan struct{})
	store := NewMemoryStore(WithBeforeCommit(func() {
		arrived.Done()
		<-release
	}))
	ctx := context.Background()
	googleID := "g-race"

	provision := func() error {
		return store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			if _, err := tx.Identities.FindGoogleLink(ctx, googleID); err == nil {
				return domain.ErrConflict
			}
			id, err := tx.Users.Create(ctx)
			if err != nil {
				return err
			}
			return tx.Identities.CreateGoogleLink(ctx, id, googleID)
		})
	}

	errs := make(chan error, 2)
	for range 2 {
		go func() { errs <- provision() }()
	}
	arrived.Wait()
	close(release)

	var conflicts, ok int
	for range 2 {
		err := <-errs
		switch {
		case err == nil:
			ok++
		case domain.KindOf(err) == domain.KindConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, conflicts)

	users, _ := store.Counts()
	assert.Equal(t, 1, users)
}

func TestMemoryStore_TxReadsOwnWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		id, err := tx.Users.Create(ctx)
		require.NoError(t, err)
		status, err := tx.Users.RegistrationStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNew, status)

		users, _ := store.Counts()
		assert.Zero(t, users, "uncommitted writes must not be visible")
		return nil
	})
	require.NoError(t, err)

	users, _ := store.Counts()
	assert.Equal(t, 1, users)
}

func TestMemoryStore_CanceledContextDiscardsTx(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		_, err := tx.Users.Create(ctx)
		cancel()
		return err
	})
	require.ErrorIs(t, err, context.Canceled)

	users, _ := store.Counts()
	assert.Zero(t, users)
}
