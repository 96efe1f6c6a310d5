// Package token mints and verifies the session credential: a signed cookie
// bound to an anti-forgery value the client echoes in a header.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/duynhne/identity-service/internal/core/domain"
)

const (
	// CookieName carries the signed credential.
	CookieName = "X-AUTH"
	// HeaderName carries the anti-forgery value on state-changing requests.
	HeaderName = "X-CSRF"

	antiForgerySize = 32
)

// SessionClaims is the decoded credential. It is only ever returned fully
// verified.
type SessionClaims struct {
	SessionID uuid.UUID
	OwnerID   uuid.UUID
	Mask      domain.Mask
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type wireClaims struct {
	SID        string `json:"sid"`
	Mask       uint32 `json:"mask"`
	CSRFDigest string `json:"csrf_digest"`
	jwt.RegisteredClaims
}

// Codec signs credentials with one Secret.
type Codec struct {
	secret   *Secret
	insecure bool
	now      func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec creates a Codec. insecure drops the Secure cookie attribute for
// plain-HTTP local development.
func NewCodec(secret *Secret, insecure bool, opts ...CodecOption) *Codec {
	c := &Codec{secret: secret, insecure: insecure, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mint issues a credential for sess. The cookie lives for ttl; the signed
// expiry never passes the session's own ValidUntil. It returns the
// anti-forgery value for the response body and the cookie carrying the
// signed credential.
func (c *Codec) Mint(sess *domain.Session, ttl time.Duration) (string, *http.Cookie, error) {
	now := c.now().Truncate(time.Second)
	exp := now.Add(ttl)
	if sess.ValidUntil != nil && sess.ValidUntil.Before(exp) {
		exp = *sess.ValidUntil
	}
	if !exp.After(now) {
		return "", nil, fmt.Errorf("session %s expires before it can be issued", sess.ID)
	}

	raw := make([]byte, antiForgerySize)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating anti-forgery value: %w", err)
	}
	antiForgery := base64.RawURLEncoding.EncodeToString(raw)

	claims := wireClaims{
		SID:        sess.ID.String(),
		Mask:       sess.Mask.Bits(),
		CSRFDigest: digest(antiForgery),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.OwnerID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	var signed string
	err := c.secret.use(func(key []byte) error {
		var err error
		signed, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("signing session credential: %w", err)
	}

	cookie := c.cookie(signed, now.Add(ttl), int(ttl.Seconds()))
	return antiForgery, cookie, nil
}

// Verify checks the credential and the anti-forgery value bound to it.
// Every failure is ErrInvalidCredential.
func (c *Codec) Verify(cookieValue, antiForgery string) (*SessionClaims, error) {
	if antiForgery == "" {
		return nil, fmt.Errorf("missing %s: %w", HeaderName, domain.ErrInvalidCredential)
	}
	claims, wire, err := c.parse(cookieValue)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(digest(antiForgery)), []byte(wire.CSRFDigest)) != 1 {
		return nil, fmt.Errorf("anti-forgery mismatch: %w", domain.ErrInvalidCredential)
	}
	return claims, nil
}

// VerifyRead checks the credential without the anti-forgery binding. Only
// safe, read-only requests may rely on it.
func (c *Codec) VerifyRead(cookieValue string) (*SessionClaims, error) {
	claims, _, err := c.parse(cookieValue)
	return claims, err
}

// ClearCookie returns a cookie that removes the credential from the browser.
func (c *Codec) ClearCookie() *http.Cookie {
	return c.cookie("", time.Unix(0, 0), -1)
}

func (c *Codec) parse(cookieValue string) (*SessionClaims, *wireClaims, error) {
	if cookieValue == "" {
		return nil, nil, fmt.Errorf("missing %s cookie: %w", CookieName, domain.ErrInvalidCredential)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)

	var wire wireClaims
	var parseErr error
	err := c.secret.use(func(key []byte) error {
		_, parseErr = parser.ParseWithClaims(cookieValue, &wire, func(*jwt.Token) (any, error) {
			return key, nil
		})
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	if parseErr != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, parseErr)
	}

	sid, err := uuid.Parse(wire.SID)
	if err != nil {
		return nil, nil, fmt.Errorf("sid: %w", domain.ErrInvalidCredential)
	}
	owner, err := uuid.Parse(wire.Subject)
	if err != nil {
		return nil, nil, fmt.Errorf("sub: %w", domain.ErrInvalidCredential)
	}
	mask, err := domain.ParseMask(wire.Mask)
	if err != nil || mask.IsZero() {
		return nil, nil, fmt.Errorf("mask: %w", domain.ErrInvalidCredential)
	}
	if wire.CSRFDigest == "" || wire.IssuedAt == nil {
		return nil, nil, fmt.Errorf("incomplete claims: %w", domain.ErrInvalidCredential)
	}

	return &SessionClaims{
		SessionID: sid,
		OwnerID:   owner,
		Mask:      mask,
		IssuedAt:  wire.IssuedAt.Time,
		ExpiresAt: wire.ExpiresAt.Time,
	}, &wire, nil
}

func (c *Codec) cookie(value string, expires time.Time, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   !c.insecure,
		SameSite: http.SameSiteLaxMode,
	}
}

func digest(antiForgery string) string {
	sum := sha256.Sum256([]byte(antiForgery))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
