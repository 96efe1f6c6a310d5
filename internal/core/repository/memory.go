package repository

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// MemoryStore is an in-process domain.UnitOfWork for local development and
// tests. Transactions work on a private snapshot and replay their writes on
// the committed state at commit, so uniqueness is enforced exactly once,
// at commit time, like the postgres constraints.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time

	// beforeCommit runs outside the lock before a transaction's writes are
	// replayed. Tests use it to line up concurrent commits.
	beforeCommit func()
}

var _ domain.UnitOfWork = (*MemoryStore)(nil)

type memUser struct {
	hasProfile bool
}

type memEmail struct {
	userID   uuid.UUID
	verified bool
}

type memSession struct {
	session domain.Session
	revoked bool
}

type memState struct {
	users    map[uuid.UUID]memUser
	emails   map[string]memEmail // lower(email)
	basic    map[string]domain.BasicCredentials
	google   map[string]uuid.UUID
	sessions map[uuid.UUID]memSession
	codes    map[string]uuid.UUID
	profiles map[string]uuid.UUID // username
}

func newMemState() *memState {
	return &memState{
		users:    make(map[uuid.UUID]memUser),
		emails:   make(map[string]memEmail),
		basic:    make(map[string]domain.BasicCredentials),
		google:   make(map[string]uuid.UUID),
		sessions: make(map[uuid.UUID]memSession),
		codes:    make(map[string]uuid.UUID),
		profiles: make(map[string]uuid.UUID),
	}
}

func (s *memState) clone() *memState {
	return &memState{
		users:    maps.Clone(s.users),
		emails:   maps.Clone(s.emails),
		basic:    maps.Clone(s.basic),
		google:   maps.Clone(s.google),
		sessions: maps.Clone(s.sessions),
		codes:    maps.Clone(s.codes),
		profiles: maps.Clone(s.profiles),
	}
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// WithBeforeCommit installs a hook that runs before every commit.
func WithBeforeCommit(fn func()) MemoryOption {
	return func(s *MemoryStore) { s.beforeCommit = fn }
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{state: newMemState(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// memOp is a write that can be applied to any state. Ops carry every
// generated id so replaying them is deterministic.
type memOp func(st *memState) error

// memScope is where repository calls read from and write to.
type memScope interface {
	read(fn func(st *memState) error) error
	write(op memOp) error
	now() time.Time
}

type autoScope struct{ s *MemoryStore }

func (a autoScope) read(fn func(st *memState) error) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	return fn(a.s.state)
}

func (a autoScope) write(op memOp) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	next := a.s.state.clone()
	if err := op(next); err != nil {
		return err
	}
	a.s.state = next
	return nil
}

func (a autoScope) now() time.Time { return a.s.now() }

type txScope struct {
	s     *MemoryStore
	local *memState
	ops   []memOp
}

func (t *txScope) read(fn func(st *memState) error) error { return fn(t.local) }

func (t *txScope) write(op memOp) error {
	if err := op(t.local); err != nil {
		return err
	}
	t.ops = append(t.ops, op)
	return nil
}

func (t *txScope) now() time.Time { return t.s.now() }

// WithinTx runs fn against a snapshot and commits its writes atomically.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	s.mu.Lock()
	tx := &txScope{s: s, local: s.state.clone()}
	s.mu.Unlock()

	if err := fn(ctx, bindMemory(tx)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if s.beforeCommit != nil {
		s.beforeCommit()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.clone()
	for _, op := range tx.ops {
		if err := op(next); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
	}
	s.state = next
	return nil
}

// Repositories returns repositories where every call commits on its own.
func (s *MemoryStore) Repositories() domain.Repositories {
	return bindMemory(autoScope{s: s})
}

func bindMemory(sc memScope) domain.Repositories {
	return domain.Repositories{
		Sessions:   &memSessionRepository{sc: sc},
		Users:      &memUserRepository{sc: sc},
		Identities: &memIdentityRepository{sc: sc},
	}
}

// AddBasicUser seeds a subject with a basic-auth login and returns its id.
func (s *MemoryStore) AddBasicUser(email, passwordHash string, verified bool) (uuid.UUID, error) {
	id := uuid.New()
	err := autoScope{s: s}.write(func(st *memState) error {
		key := strings.ToLower(email)
		if _, ok := st.emails[key]; ok {
			return fmt.Errorf("email %q: %w", email, domain.ErrConflict)
		}
		st.users[id] = memUser{}
		st.emails[key] = memEmail{userID: id, verified: verified}
		st.basic[key] = domain.BasicCredentials{UserID: id, Email: email, PasswordHash: passwordHash}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// AddProfile marks the subject's registration complete.
func (s *MemoryStore) AddProfile(userID uuid.UUID, username string) error {
	return autoScope{s: s}.write(func(st *memState) error {
		u, ok := st.users[userID]
		if !ok {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		if _, taken := st.profiles[username]; taken {
			return fmt.Errorf("username %q: %w", username, domain.ErrConflict)
		}
		u.hasProfile = true
		st.users[userID] = u
		st.profiles[username] = userID
		return nil
	})
}

// Counts reports the number of subjects and sessions, revoked ones included.
func (s *MemoryStore) Counts() (users, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.users), len(s.state.sessions)
}

type memSessionRepository struct{ sc memScope }

func (r *memSessionRepository) Create(_ context.Context, ownerID uuid.UUID, validUntil *time.Time, mask domain.Mask, singleUseCode *string) (*domain.Session, error) {
	sess := domain.Session{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		ValidUntil:    cloneTime(validUntil),
		Mask:          mask,
		SingleUseCode: cloneString(singleUseCode),
		CreatedAt:     r.sc.now().UTC(),
	}
	err := r.sc.write(func(st *memState) error {
		if _, ok := st.users[ownerID]; !ok {
			return fmt.Errorf("owner %s: %w", ownerID, domain.ErrNotFound)
		}
		if sess.SingleUseCode != nil {
			if _, dup := st.codes[*sess.SingleUseCode]; dup {
				return fmt.Errorf("single use code: %w", domain.ErrConflict)
			}
			st.codes[*sess.SingleUseCode] = sess.ID
		}
		st.sessions[sess.ID] = memSession{session: sess}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := sess
	return &out, nil
}

func (r *memSessionRepository) FindValid(_ context.Context, id uuid.UUID) (*domain.Session, error) {
	var out domain.Session
	err := r.sc.read(func(st *memState) error {
		ms, ok := st.sessions[id]
		if !ok || ms.revoked || ms.session.Expired(r.sc.now()) {
			return fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
		}
		out = ms.session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memSessionRepository) ConsumeSingleUseCode(_ context.Context, code string) (*domain.Session, error) {
	now := r.sc.now()
	var out domain.Session
	err := r.sc.write(func(st *memState) error {
		id, ok := st.codes[code]
		if !ok {
			return fmt.Errorf("single use code: %w", domain.ErrNotFound)
		}
		ms := st.sessions[id]
		if ms.revoked || ms.session.Expired(now) {
			return fmt.Errorf("single use code: %w", domain.ErrNotFound)
		}
		delete(st.codes, code)
		ms.session.SingleUseCode = nil
		st.sessions[id] = ms
		out = ms.session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memSessionRepository) Revoke(_ context.Context, id uuid.UUID) error {
	return r.sc.write(func(st *memState) error {
		ms, ok := st.sessions[id]
		if !ok || ms.revoked {
			return nil
		}
		ms.revoked = true
		st.sessions[id] = ms
		return nil
	})
}

type memUserRepository struct{ sc memScope }

func (r *memUserRepository) GetBasicByEmail(_ context.Context, email string) (*domain.BasicCredentials, error) {
	var out domain.BasicCredentials
	err := r.sc.read(func(st *memState) error {
		row, ok := st.basic[strings.ToLower(email)]
		if !ok {
			return fmt.Errorf("basic credentials for %q: %w", email, domain.ErrNotFound)
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *memUserRepository) Create(_ context.Context) (uuid.UUID, error) {
	id := uuid.New()
	err := r.sc.write(func(st *memState) error {
		st.users[id] = memUser{}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (r *memUserRepository) InsertEmail(_ context.Context, userID uuid.UUID, email string, verified bool) error {
	key := strings.ToLower(email)
	return r.sc.write(func(st *memState) error {
		if _, ok := st.users[userID]; !ok {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		if _, dup := st.emails[key]; dup {
			return fmt.Errorf("email %q: %w", email, domain.ErrConflict)
		}
		st.emails[key] = memEmail{userID: userID, verified: verified}
		return nil
	})
}

func (r *memUserRepository) RegistrationStatus(_ context.Context, userID uuid.UUID) (domain.RegistrationStatus, error) {
	status := domain.StatusNew
	err := r.sc.read(func(st *memState) error {
		u, ok := st.users[userID]
		if !ok {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		if u.hasProfile {
			status = domain.StatusComplete
			return nil
		}
		for _, e := range st.emails {
			if e.userID == userID && e.verified {
				status = domain.StatusValidated
				break
			}
		}
		return nil
	})
	return status, err
}

type memIdentityRepository struct{ sc memScope }

func (r *memIdentityRepository) FindGoogleLink(_ context.Context, googleID string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.sc.read(func(st *memState) error {
		owner, ok := st.google[googleID]
		if !ok {
			return domain.ErrNotFound
		}
		id = owner
		return nil
	})
	return id, err
}

func (r *memIdentityRepository) CreateGoogleLink(_ context.Context, userID uuid.UUID, googleID string) error {
	return r.sc.write(func(st *memState) error {
		if _, ok := st.users[userID]; !ok {
			return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		if _, dup := st.google[googleID]; dup {
			return fmt.Errorf("google link: %w", domain.ErrConflict)
		}
		st.google[googleID] = userID
		return nil
	})
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
