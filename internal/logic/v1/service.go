package v1

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/core/jwk"
	"github.com/duynhne/identity-service/internal/core/oauth"
	"github.com/duynhne/identity-service/internal/core/token"
	"github.com/duynhne/identity-service/middleware"
)

const (
	// ServiceGoogle is the only supported OAuth provider.
	ServiceGoogle = "google"

	// RegisterTTL bounds sessions that can only complete registration.
	RegisterTTL = time.Hour
	// DefaultLoginTTL bounds fully authenticated sessions.
	DefaultLoginTTL = 14 * 24 * time.Hour

	// maxKeyRetry is how many key set refreshes one ID token may cause.
	maxKeyRetry = 3

	singleUseCodeSize = 32
)

var sessionsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "identity_sessions_issued_total",
	Help: "Sessions issued by login path and response framing.",
}, []string{"path", "framing"})

// dummyHash keeps the unknown-email path as slow as a wrong password.
var dummyHash = sync.OnceValue(func() []byte {
	h, _ := bcrypt.GenerateFromPassword([]byte("identity-service-dummy"), bcrypt.DefaultCost)
	return h
})

// Exchanger trades a provider authorization code for tokens and builds the
// consent URL.
type Exchanger interface {
	Exchange(ctx context.Context, code, redirectURL string) (*oauth.Tokens, error)
	AuthURL(redirectURL string) string
}

// IDTokenVerifier verifies provider ID tokens.
type IDTokenVerifier interface {
	Verify(ctx context.Context, idToken string, maxRetry int) (*jwk.Claims, error)
}

// Framing tells the client which flow a new session belongs to.
type Framing int

const (
	FramingRegister Framing = iota
	FramingLogin
)

func (f Framing) String() string {
	if f == FramingLogin {
		return "login"
	}
	return "register"
}

func framingFor(m domain.Mask) Framing {
	if m.Has(domain.General) {
		return FramingLogin
	}
	return FramingRegister
}

// Issued is a freshly minted session credential.
type Issued struct {
	Framing     Framing
	AntiForgery string
	Cookie      *http.Cookie
	SessionID   uuid.UUID
	Mask        domain.Mask
	ValidUntil  *time.Time
}

// Principal is an authenticated caller.
type Principal struct {
	SessionID uuid.UUID
	OwnerID   uuid.UUID
	Mask      domain.Mask
}

// OAuthRequest is a federated login attempt.
type OAuthRequest struct {
	Service      string
	Code         string
	RedirectKind oauth.URLKind
}

// SessionService implements session issuance and authentication rules.
// It depends on repository interfaces (injected via constructor) and
// MUST NOT access the database or SQL directly.
type SessionService struct {
	store     domain.UnitOfWork
	codec     *token.Codec
	redirects *oauth.Redirects
	loginTTL  time.Duration
	now       func() time.Time

	// nil when Google OAuth is not configured
	exchanger Exchanger
	verifier  IDTokenVerifier
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithGoogle enables the Google login path.
func WithGoogle(exchanger Exchanger, verifier IDTokenVerifier) Option {
	return func(s *SessionService) {
		s.exchanger = exchanger
		s.verifier = verifier
	}
}

// WithClock overrides time.Now for session expiry.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService creates a new SessionService. A non-positive loginTTL
// falls back to DefaultLoginTTL.
func NewSessionService(store domain.UnitOfWork, codec *token.Codec, redirects *oauth.Redirects, loginTTL time.Duration, opts ...Option) *SessionService {
	if loginTTL <= 0 {
		loginTTL = DefaultLoginTTL
	}
	s := &SessionService{
		store:     store,
		codec:     codec,
		redirects: redirects,
		loginTTL:  loginTTL,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OAuthURL returns the provider consent URL for the given flow.
func (s *SessionService) OAuthURL(ctx context.Context, service string, kind oauth.URLKind) (string, error) {
	_, span := middleware.StartSpan(ctx, "session.oauth_url", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("oauth.service", service),
		attribute.String("oauth.url_kind", string(kind)),
	))
	defer span.End()

	if err := s.requireGoogle(service); err != nil {
		return "", err
	}
	redirect, err := s.redirects.Google(kind)
	if err != nil {
		return "", err
	}
	return s.exchanger.AuthURL(redirect), nil
}

// CreateSession logs in with email and password. Subjects without a profile
// get a short registration session.
func (s *SessionService) CreateSession(ctx context.Context, email, password string) (*Issued, error) {
	ctx, span := middleware.StartSpan(ctx, "session.create_basic", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required: %w", domain.ErrUnprocessableInput)
	}

	creds, err := s.store.Repositories().Users.GetBasicByEmail(ctx, email)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate %q: %w", email, ErrInvalidCredentials)
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("lookup basic credentials: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(password)); err != nil {
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate %q: %w", email, ErrInvalidCredentials)
	}
	span.SetAttributes(attribute.String("user.id", creds.UserID.String()))

	var issued *Issued
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		status, err := tx.Users.RegistrationStatus(ctx, creds.UserID)
		if err != nil {
			return fmt.Errorf("registration status: %w", err)
		}
		if status == domain.StatusNew {
			return fmt.Errorf("login %s: %w", creds.UserID, ErrEmailUnverified)
		}
		issued, err = s.issue(ctx, tx, creds.UserID, maskForStatus(status))
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.record(ctx, span, "basic", issued)
	return issued, nil
}

// CreateOAuthSession logs in with a provider authorization code, provisioning
// a new subject on first login.
func (s *SessionService) CreateOAuthSession(ctx context.Context, req OAuthRequest) (*Issued, error) {
	ctx, span := middleware.StartSpan(ctx, "session.create_oauth", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("oauth.service", req.Service),
	))
	defer span.End()

	if err := s.requireGoogle(req.Service); err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, fmt.Errorf("authorization code is required: %w", domain.ErrUnprocessableInput)
	}
	redirect, err := s.redirects.Google(req.RedirectKind)
	if err != nil {
		return nil, err
	}

	tokens, err := s.exchanger.Exchange(ctx, req.Code, redirect)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("exchange google code: %w", err)
	}
	claims, err := s.verifier.Verify(ctx, tokens.IDToken, maxKeyRetry)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("verify google id token: %w", err)
	}

	var issued *Issued
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		owner, mask, err := s.resolveGoogleSubject(ctx, tx, claims)
		if err != nil {
			return err
		}
		issued, err = s.issue(ctx, tx, owner, mask)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.record(ctx, span, "google", issued)
	return issued, nil
}

// resolveGoogleSubject finds or provisions the local owner of a Google
// identity. Provisioning writes happen on tx; a concurrent duplicate fails
// on the google_id uniqueness and rolls back.
func (s *SessionService) resolveGoogleSubject(ctx context.Context, tx domain.Repositories, claims *jwk.Claims) (uuid.UUID, domain.Mask, error) {
	owner, err := tx.Identities.FindGoogleLink(ctx, claims.Subject)
	switch {
	case err == nil:
		status, err := tx.Users.RegistrationStatus(ctx, owner)
		if err != nil {
			return uuid.Nil, domain.Mask{}, fmt.Errorf("registration status: %w", err)
		}
		if status == domain.StatusComplete {
			return owner, domain.MaskGeneral, nil
		}
		return owner, domain.MaskRegisterFull, nil
	case !errors.Is(err, domain.ErrNotFound):
		return uuid.Nil, domain.Mask{}, fmt.Errorf("lookup google link: %w", err)
	}

	if !claims.EmailVerified || claims.Email == "" {
		return uuid.Nil, domain.Mask{}, fmt.Errorf("google subject %s: %w", claims.Subject, ErrEmailUnverified)
	}

	owner, err = tx.Users.Create(ctx)
	if err != nil {
		return uuid.Nil, domain.Mask{}, fmt.Errorf("create user: %w", err)
	}
	if err := tx.Identities.CreateGoogleLink(ctx, owner, claims.Subject); err != nil {
		return uuid.Nil, domain.Mask{}, fmt.Errorf("link google subject: %w", err)
	}
	if err := tx.Users.InsertEmail(ctx, owner, claims.Email, true); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return uuid.Nil, domain.Mask{}, fmt.Errorf("email %q: %w: %w", claims.Email, ErrEmailTaken, err)
		}
		return uuid.Nil, domain.Mask{}, fmt.Errorf("insert email: %w", err)
	}
	return owner, domain.MaskRegister, nil
}

// IssueSingleUseCode creates a code that can later be redeemed once for a
// session belonging to ownerID.
func (s *SessionService) IssueSingleUseCode(ctx context.Context, ownerID uuid.UUID, ttl time.Duration) (string, error) {
	ctx, span := middleware.StartSpan(ctx, "session.issue_code", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("user.id", ownerID.String()),
	))
	defer span.End()

	if ttl <= 0 {
		return "", fmt.Errorf("code ttl must be positive: %w", domain.ErrUnprocessableInput)
	}
	raw := make([]byte, singleUseCodeSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate single use code: %w", err)
	}
	code := base64.RawURLEncoding.EncodeToString(raw)

	validUntil := s.now().Add(ttl).UTC()
	_, err := s.store.Repositories().Sessions.Create(ctx, ownerID, &validUntil, domain.MaskRegister, &code)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("store single use code: %w", err)
	}
	return code, nil
}

// RedeemSingleUseCode consumes code and issues a fresh session for its owner.
// A code redeems at most once, even under concurrent attempts.
func (s *SessionService) RedeemSingleUseCode(ctx context.Context, code string) (*Issued, error) {
	ctx, span := middleware.StartSpan(ctx, "session.redeem_code", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	if code == "" {
		return nil, fmt.Errorf("code is required: %w", domain.ErrUnprocessableInput)
	}

	var issued *Issued
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx domain.Repositories) error {
		carrier, err := tx.Sessions.ConsumeSingleUseCode(ctx, code)
		if err != nil {
			return fmt.Errorf("consume code: %w", err)
		}
		if err := tx.Sessions.Revoke(ctx, carrier.ID); err != nil {
			return fmt.Errorf("revoke code session: %w", err)
		}
		status, err := tx.Users.RegistrationStatus(ctx, carrier.OwnerID)
		if err != nil {
			return fmt.Errorf("registration status: %w", err)
		}
		mask := maskForStatus(status)
		if status == domain.StatusNew {
			mask = domain.MaskRegister
		}
		issued, err = s.issue(ctx, tx, carrier.OwnerID, mask)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.record(ctx, span, "code", issued)
	return issued, nil
}

// Authenticate checks a credential and its anti-forgery value, then confirms
// against the store that the session is live and grants required.
func (s *SessionService) Authenticate(ctx context.Context, cookie, antiForgery string, required domain.Mask) (*Principal, error) {
	claims, err := s.codec.Verify(cookie, antiForgery)
	if err != nil {
		return nil, err
	}
	return s.authorize(ctx, claims, required)
}

// AuthenticateRead is Authenticate without the anti-forgery check, for safe
// read-only requests.
func (s *SessionService) AuthenticateRead(ctx context.Context, cookie string, required domain.Mask) (*Principal, error) {
	claims, err := s.codec.VerifyRead(cookie)
	if err != nil {
		return nil, err
	}
	return s.authorize(ctx, claims, required)
}

func (s *SessionService) authorize(ctx context.Context, claims *token.SessionClaims, required domain.Mask) (*Principal, error) {
	ctx, span := middleware.StartSpan(ctx, "session.authorize", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", claims.SessionID.String()),
	))
	defer span.End()

	sess, err := s.store.Repositories().Sessions.FindValid(ctx, claims.SessionID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("session %s: %w", claims.SessionID, ErrSessionNotFound)
	case err != nil:
		span.RecordError(err)
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	// The stored record wins over whatever the credential claims.
	if sess.OwnerID != claims.OwnerID || sess.Mask != claims.Mask {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("session %s does not match credential: %w", sess.ID, ErrSessionNotFound)
	}
	if !sess.Mask.Contains(required) {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, fmt.Errorf("session mask %s lacks %s: %w", sess.Mask, required, ErrInsufficientScope)
	}

	span.SetAttributes(attribute.Bool("session.valid", true))
	return &Principal{SessionID: sess.ID, OwnerID: sess.OwnerID, Mask: sess.Mask}, nil
}

// Revoke ends the principal's session.
func (s *SessionService) Revoke(ctx context.Context, p *Principal) error {
	ctx, span := middleware.StartSpan(ctx, "session.revoke", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("session.id", p.SessionID.String()),
	))
	defer span.End()

	if err := s.store.Repositories().Sessions.Revoke(ctx, p.SessionID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// LogoutCookie returns the cookie that clears the credential.
func (s *SessionService) LogoutCookie() *http.Cookie {
	return s.codec.ClearCookie()
}

func (s *SessionService) requireGoogle(service string) error {
	if service != ServiceGoogle {
		return fmt.Errorf("oauth service %q: %w", service, ErrUnsupportedService)
	}
	if s.exchanger == nil || s.verifier == nil {
		return fmt.Errorf("oauth service %q: %w", service, ErrServiceDisabled)
	}
	return nil
}

// issue persists a session on tx and mints its credential. A mint failure
// returns an error so the caller's transaction rolls back.
func (s *SessionService) issue(ctx context.Context, tx domain.Repositories, owner uuid.UUID, mask domain.Mask) (*Issued, error) {
	ttl := s.loginTTL
	if mask.Has(domain.PutProfile) {
		ttl = RegisterTTL
	}
	validUntil := s.now().Add(ttl).UTC()

	sess, err := tx.Sessions.Create(ctx, owner, &validUntil, mask, nil)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	antiForgery, cookie, err := s.codec.Mint(sess, s.loginTTL)
	if err != nil {
		return nil, fmt.Errorf("mint session credential: %w", err)
	}
	return &Issued{
		Framing:     framingFor(mask),
		AntiForgery: antiForgery,
		Cookie:      cookie,
		SessionID:   sess.ID,
		Mask:        mask,
		ValidUntil:  sess.ValidUntil,
	}, nil
}

func (s *SessionService) record(ctx context.Context, span trace.Span, path string, issued *Issued) {
	sessionsIssued.WithLabelValues(path, issued.Framing.String()).Inc()
	span.SetAttributes(
		attribute.String("session.id", issued.SessionID.String()),
		attribute.String("session.mask", issued.Mask.String()),
		attribute.String("session.framing", issued.Framing.String()),
	)
	span.AddEvent("session.issued")
	pkgzerolog.FromContext(ctx).Debug().
		Str("path", path).
		Str("session_id", issued.SessionID.String()).
		Str("mask", issued.Mask.String()).
		Msg("Session issued")
}

// maskForStatus maps a registration status to the mask a login grants.
// StatusNew has no login mask; callers decide how to handle it.
func maskForStatus(status domain.RegistrationStatus) domain.Mask {
	switch status {
	case domain.StatusComplete:
		return domain.MaskGeneral
	case domain.StatusValidated:
		return domain.MaskRegisterFull
	default:
		return domain.Mask{}
	}
}
