package jwk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GoogleIssuers are the issuer values Google places in ID tokens.
var GoogleIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// Claims is the verified identity asserted by the provider.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Issuer        string
	Audience      []string
	ExpiresAt     time.Time
}

// idTokenClaims is the wire shape of a provider ID token.
type idTokenClaims struct {
	Email         string       `json:"email"`
	EmailVerified flexibleBool `json:"email_verified"`
	jwt.RegisteredClaims
}

// flexibleBool accepts both true and "true"; some Google flows send the
// string form.
type flexibleBool bool

func (b *flexibleBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexibleBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	*b = flexibleBool(v)
	return nil
}

var (
	errKeyNotCached = errors.New("key not cached")
	errMissingKid   = errors.New("missing kid")
)

// Verifier checks provider ID tokens against a KeySet.
type Verifier struct {
	keys     *KeySet
	audience string
	issuers  []string
	now      func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithIssuers overrides the accepted issuers.
func WithIssuers(issuers ...string) VerifierOption {
	return func(v *Verifier) { v.issuers = issuers }
}

// WithTimeFunc overrides the clock used for expiry checks.
func WithTimeFunc(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier accepting tokens for audience (the OAuth
// client id). Issuers default to GoogleIssuers.
func NewVerifier(keys *KeySet, audience string, opts ...VerifierOption) *Verifier {
	v := &Verifier{keys: keys, audience: audience, issuers: GoogleIssuers, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify validates idToken. A token signed with a kid missing from the cache
// triggers one key set refresh per attempt, up to maxRetry refreshes; no
// other failure is retried.
func (v *Verifier) Verify(ctx context.Context, idToken string, maxRetry int) (*Claims, error) {
	for attempt := 0; ; attempt++ {
		claims, err := v.verifyCached(idToken)
		if !errors.Is(err, errKeyNotCached) {
			return claims, err
		}
		if attempt >= maxRetry {
			return nil, fmt.Errorf("after %d refreshes: %w", attempt, ErrUnknownKey)
		}
		if err := v.keys.Refresh(ctx); err != nil {
			return nil, err
		}
	}
}

func (v *Verifier) verifyCached(idToken string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithStrictDecoding(),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)

	var claims idTokenClaims
	_, err := parser.ParseWithClaims(idToken, &claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errMissingKid
		}
		key, ok := v.keys.Get(kid)
		if !ok {
			return nil, errKeyNotCached
		}
		return key, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if !slices.Contains(v.issuers, claims.Issuer) {
		return nil, fmt.Errorf("issuer %q: %w", claims.Issuer, ErrIssuerMismatch)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing sub: %w", ErrMalformed)
	}

	return &Claims{
		Subject:       claims.Subject,
		Email:         claims.Email,
		EmailVerified: bool(claims.EmailVerified),
		Issuer:        claims.Issuer,
		Audience:      claims.Audience,
		ExpiresAt:     claims.ExpiresAt.Time,
	}, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, errKeyNotCached):
		return errKeyNotCached
	case errors.Is(err, errMissingKid):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %w", ErrAudienceMismatch, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
