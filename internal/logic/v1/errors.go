// Package v1 provides session issuance and authentication logic for API
// version 1.
//
// Error Handling:
// Every error returned from this package resolves to a domain.Kind through
// domain.KindOf. The sentinels below carry a kind and should be wrapped with
// context using fmt.Errorf("%w") when returned.
//
// Example Usage:
//
//	if err := bcrypt.CompareHashAndPassword(hash, password); err != nil {
//	    return nil, fmt.Errorf("authenticate %q: %w", email, ErrInvalidCredentials)
//	}
//
// Error Checking (in handlers):
//
//	switch domain.KindOf(err) {
//	case domain.KindNotFound, domain.KindInvalidCredential:
//	    c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
//	default:
//	    c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
//	}
package v1

import "github.com/duynhne/identity-service/internal/core/domain"

// Sentinel errors for session operations.
var (
	// ErrInvalidCredentials indicates an unknown email or a wrong password.
	// The two are indistinguishable to the caller.
	// HTTP Status: 401 Unauthorized
	ErrInvalidCredentials = domain.NewError(domain.KindNotFound, "invalid credentials")

	// ErrEmailUnverified indicates the subject has not proven ownership of
	// its email.
	// HTTP Status: 403 Forbidden
	ErrEmailUnverified = domain.NewError(domain.KindUnverifiedEmail, "email not verified")

	// ErrEmailTaken indicates a federated identity asserts an email that
	// already belongs to another subject.
	// HTTP Status: 409 Conflict
	ErrEmailTaken = domain.NewError(domain.KindConflict, "email already registered")

	// ErrServiceDisabled indicates the requested OAuth provider is not configured.
	// HTTP Status: 501 Not Implemented
	ErrServiceDisabled = domain.NewError(domain.KindDisabledService, "oauth service disabled")

	// ErrUnsupportedService indicates an OAuth provider this service does not
	// know. Routing should make it unreachable.
	// HTTP Status: 500 Internal Server Error
	ErrUnsupportedService = domain.NewError(domain.KindInternal, "unsupported oauth service")

	// ErrSessionNotFound indicates the credential names a session that is
	// revoked, expired or does not match the stored record.
	// HTTP Status: 401 Unauthorized
	ErrSessionNotFound = domain.NewError(domain.KindInvalidCredential, "session not found")

	// ErrInsufficientScope indicates the session's mask lacks a required
	// capability.
	// HTTP Status: 401 Unauthorized
	ErrInsufficientScope = domain.NewError(domain.KindInvalidCredential, "insufficient session scope")
)
