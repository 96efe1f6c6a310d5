package repository

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// runStoreSuite exercises the domain.UnitOfWork contract. Every backend runs
// the same cases.
func runStoreSuite(t *testing.T, store domain.UnitOfWork) {
	ctx := context.Background()
	repos := store.Repositories()

	newUser := func(t *testing.T) uuid.UUID {
		t.Helper()
		id, err := repos.Users.Create(ctx)
		require.NoError(t, err)
		return id
	}
	future := func() *time.Time {
		v := time.Now().Add(time.Hour).UTC()
		return &v
	}

	t.Run("CreateAndFindValid", func(t *testing.T) {
		owner := newUser(t)
		created, err := repos.Sessions.Create(ctx, owner, future(), domain.MaskGeneral, nil)
		require.NoError(t, err)

		got, err := repos.Sessions.FindValid(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, owner, got.OwnerID)
		assert.Equal(t, domain.MaskGeneral, got.Mask)
		assert.Nil(t, got.SingleUseCode)
	})

	t.Run("FindValidUnknown", func(t *testing.T) {
		_, err := repos.Sessions.FindValid(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("FindValidExpired", func(t *testing.T) {
		owner := newUser(t)
		past := time.Now().Add(-time.Minute).UTC()
		created, err := repos.Sessions.Create(ctx, owner, &past, domain.MaskGeneral, nil)
		require.NoError(t, err)

		_, err = repos.Sessions.FindValid(ctx, created.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("NoExpiry", func(t *testing.T) {
		owner := newUser(t)
		created, err := repos.Sessions.Create(ctx, owner, nil, domain.MaskRegister, nil)
		require.NoError(t, err)

		got, err := repos.Sessions.FindValid(ctx, created.ID)
		require.NoError(t, err)
		assert.Nil(t, got.ValidUntil)
	})

	t.Run("RevokeIsIdempotent", func(t *testing.T) {
		owner := newUser(t)
		created, err := repos.Sessions.Create(ctx, owner, future(), domain.MaskGeneral, nil)
		require.NoError(t, err)

		require.NoError(t, repos.Sessions.Revoke(ctx, created.ID))
		require.NoError(t, repos.Sessions.Revoke(ctx, created.ID))
		_, err = repos.Sessions.FindValid(ctx, created.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("ConsumeSingleUseCodeOnce", func(t *testing.T) {
		owner := newUser(t)
		code := "code-" + uuid.NewString()
		created, err := repos.Sessions.Create(ctx, owner, future(), domain.MaskGeneral, &code)
		require.NoError(t, err)

		got, err := repos.Sessions.ConsumeSingleUseCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Nil(t, got.SingleUseCode)

		_, err = repos.Sessions.ConsumeSingleUseCode(ctx, code)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		// The session itself outlives its code.
		_, err = repos.Sessions.FindValid(ctx, created.ID)
		assert.NoError(t, err)
	})

	t.Run("ConsumeSingleUseCodeConcurrent", func(t *testing.T) {
		owner := newUser(t)
		code := "code-" + uuid.NewString()
		_, err := repos.Sessions.Create(ctx, owner, future(), domain.MaskGeneral, &code)
		require.NoError(t, err)

		const workers = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners int
		)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := repos.Sessions.ConsumeSingleUseCode(ctx, code); err == nil {
					mu.Lock()
					winners++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, winners)
	})

	t.Run("ConsumeSingleUseCodeRevoked", func(t *testing.T) {
		owner := newUser(t)
		code := "code-" + uuid.NewString()
		created, err := repos.Sessions.Create(ctx, owner, future(), domain.MaskGeneral, &code)
		require.NoError(t, err)
		require.NoError(t, repos.Sessions.Revoke(ctx, created.ID))

		_, err = repos.Sessions.ConsumeSingleUseCode(ctx, code)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("SessionForUnknownOwner", func(t *testing.T) {
		_, err := repos.Sessions.Create(ctx, uuid.New(), future(), domain.MaskGeneral, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("EmailUniqueCaseInsensitive", func(t *testing.T) {
		a, b := newUser(t), newUser(t)
		email := "Case-" + uuid.NewString() + "@Example.com"
		require.NoError(t, repos.Users.InsertEmail(ctx, a, email, true))

		err := repos.Users.InsertEmail(ctx, b, strings.ToLower(email), false)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("RegistrationStatus", func(t *testing.T) {
		id := newUser(t)
		status, err := repos.Users.RegistrationStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusNew, status)

		require.NoError(t, repos.Users.InsertEmail(ctx, id, uuid.NewString()+"@example.com", true))
		status, err = repos.Users.RegistrationStatus(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusValidated, status)

		_, err = repos.Users.RegistrationStatus(ctx, uuid.New())
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("GoogleLink", func(t *testing.T) {
		id := newUser(t)
		googleID := "g-" + uuid.NewString()

		_, err := repos.Identities.FindGoogleLink(ctx, googleID)
		require.ErrorIs(t, err, domain.ErrNotFound)

		require.NoError(t, repos.Identities.CreateGoogleLink(ctx, id, googleID))
		got, err := repos.Identities.FindGoogleLink(ctx, googleID)
		require.NoError(t, err)
		assert.Equal(t, id, got)

		err = repos.Identities.CreateGoogleLink(ctx, newUser(t), googleID)
		assert.ErrorIs(t, err, domain.ErrConflict)
	})

	t.Run("WithinTxRollsBack", func(t *testing.T) {
		googleID := "g-" + uuid.NewString()
		boom := errors.New("boom")

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			id, err := tx.Users.Create(ctx)
			if err != nil {
				return err
			}
			if err := tx.Identities.CreateGoogleLink(ctx, id, googleID); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = repos.Identities.FindGoogleLink(ctx, googleID)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("WithinTxCommits", func(t *testing.T) {
		googleID := "g-" + uuid.NewString()
		var owner uuid.UUID

		err := store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
			id, err := tx.Users.Create(ctx)
			if err != nil {
				return err
			}
			owner = id
			if err := tx.Users.InsertEmail(ctx, id, googleID+"@example.com", true); err != nil {
				return err
			}
			if err := tx.Identities.CreateGoogleLink(ctx, id, googleID); err != nil {
				return err
			}
			_, err = tx.Sessions.Create(ctx, id, nil, domain.MaskRegister, nil)
			return err
		})
		require.NoError(t, err)

		got, err := repos.Identities.FindGoogleLink(ctx, googleID)
		require.NoError(t, err)
		assert.Equal(t, owner, got)

		status, err := repos.Users.RegistrationStatus(ctx, owner)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusValidated, status)
	})
}
