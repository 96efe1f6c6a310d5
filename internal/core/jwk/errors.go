package jwk

import "github.com/duynhne/identity-service/internal/core/domain"

// Verification failures. Everything except ErrFetch means the caller
// presented a bad token.
var (
	ErrUnknownKey       = domain.NewError(domain.KindInvalidCredential, "jwk: unknown key id")
	ErrBadSignature     = domain.NewError(domain.KindInvalidCredential, "jwk: bad signature")
	ErrExpired          = domain.NewError(domain.KindInvalidCredential, "jwk: token expired")
	ErrIssuerMismatch   = domain.NewError(domain.KindInvalidCredential, "jwk: issuer mismatch")
	ErrAudienceMismatch = domain.NewError(domain.KindInvalidCredential, "jwk: audience mismatch")
	ErrMalformed        = domain.NewError(domain.KindInvalidCredential, "jwk: malformed token")

	// ErrFetch means the key set could not be retrieved from the provider.
	ErrFetch = domain.NewError(domain.KindUpstreamFailure, "jwk: fetch key set")
)
