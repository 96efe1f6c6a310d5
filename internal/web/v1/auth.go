package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/core/token"
	logicv1 "github.com/duynhne/identity-service/internal/logic/v1"
)

const principalKey = "principal"

// RequireSession authenticates the caller and requires every capability in
// required. Safe methods skip the anti-forgery header since they cannot be
// forged into a state change.
func (h *Handler) RequireSession(required domain.Mask) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := startSpan(c, "http.session.authenticate")
		defer span.End()

		cookie, err := c.Cookie(token.CookieName)
		if err != nil {
			respondError(ctx, c, span, domain.Classify(domain.ErrInvalidCredential, err), "Missing session cookie")
			return
		}

		var p *logicv1.Principal
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			p, err = h.sessions.AuthenticateRead(ctx, cookie, required)
		default:
			p, err = h.sessions.Authenticate(ctx, cookie, c.GetHeader(token.HeaderName), required)
		}
		if err != nil {
			respondError(ctx, c, span, err, "Authentication failed")
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// PrincipalFrom returns the principal set by RequireSession.
func PrincipalFrom(c *gin.Context) *logicv1.Principal {
	p, _ := c.Get(principalKey)
	principal, _ := p.(*logicv1.Principal)
	return principal
}
