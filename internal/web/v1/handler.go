package v1

import (
	"context"
	"net/http"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/identity-service/internal/core/domain"
	"github.com/duynhne/identity-service/internal/core/oauth"
	logicv1 "github.com/duynhne/identity-service/internal/logic/v1"
	"github.com/duynhne/identity-service/middleware"
)

// Handler groups HTTP handlers for the session API v1.
// Dependencies are injected via the constructor; there is no global state.
type Handler struct {
	sessions *logicv1.SessionService
}

// NewHandler creates a new Handler with the given SessionService.
func NewHandler(sessions *logicv1.SessionService) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes registers all session API v1 routes on the given router
// group. createLimit guards the routes that mint sessions.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, createLimit ...gin.HandlerFunc) {
	rg.GET("/session/oauth/url/:service/:kind", h.GetOAuthURL)

	create := rg.Group("/session", createLimit...)
	create.POST("", h.CreateSession)
	create.POST("/oauth", h.CreateOAuthSession)
	create.POST("/code", h.RedeemCode)

	rg.GET("/session", h.RequireSession(domain.Mask{}), h.GetSession)
	rg.DELETE("/session", h.RequireSession(domain.Mask{}), h.DeleteSession)
}

type oauthURLResponse struct {
	URL string `json:"url"`
}

type newSessionResponse struct {
	CSRF string `json:"csrf"`
}

// createSessionResponse serializes as {"register": {...}} or {"login": {...}}.
type createSessionResponse struct {
	Register *newSessionResponse `json:"register,omitempty"`
	Login    *newSessionResponse `json:"login,omitempty"`
}

type googleOAuthRequest struct {
	Code         string `json:"code" binding:"required"`
	RedirectKind string `json:"redirect_kind" binding:"required"`
}

type createOAuthSessionRequest struct {
	Google *googleOAuthRequest `json:"google" binding:"required"`
}

type redeemCodeRequest struct {
	Code string `json:"code" binding:"required"`
}

type sessionResponse struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Mask      string `json:"mask"`
}

// startSpan opens a web layer span and rebinds the request to its context.
func startSpan(c *gin.Context, name string) (context.Context, trace.Span) {
	ctx, span := middleware.StartSpan(c.Request.Context(), name, trace.WithAttributes(
		attribute.String("layer", "web"),
		attribute.String("method", c.Request.Method),
		attribute.String("path", c.FullPath()),
	))
	c.Request = c.Request.WithContext(ctx)
	return ctx, span
}

// GetOAuthURL returns the provider consent URL.
func (h *Handler) GetOAuthURL(c *gin.Context) {
	ctx, span := startSpan(c, "http.session.oauth_url")
	defer span.End()

	kind, err := oauth.ParseURLKind(c.Param("kind"))
	if err != nil {
		respondError(ctx, c, span, err, "Get OAuth URL failed")
		return
	}
	url, err := h.sessions.OAuthURL(ctx, c.Param("service"), kind)
	if err != nil {
		respondError(ctx, c, span, err, "Get OAuth URL failed")
		return
	}
	c.JSON(http.StatusOK, oauthURLResponse{URL: url})
}

// CreateSession logs in with HTTP Basic email:password.
func (h *Handler) CreateSession(c *gin.Context) {
	ctx, span := startSpan(c, "http.session.create")
	defer span.End()

	email, password, ok := c.Request.BasicAuth()
	if !ok {
		c.Header("WWW-Authenticate", `Basic realm="identity"`)
		respondError(ctx, c, span, logicv1.ErrInvalidCredentials, "Missing basic credentials")
		return
	}

	issued, err := h.sessions.CreateSession(ctx, email, password)
	if err != nil {
		respondError(ctx, c, span, err, "Create session failed")
		return
	}
	h.writeIssued(c, issued)
}

// CreateOAuthSession logs in with a provider authorization code.
func (h *Handler) CreateOAuthSession(c *gin.Context) {
	ctx, span := startSpan(c, "http.session.create_oauth")
	defer span.End()

	var req createOAuthSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetAttributes(attribute.Bool("request.valid", false))
		respondError(ctx, c, span, domain.Classify(domain.ErrUnprocessableInput, err), "Invalid request")
		return
	}
	kind, err := oauth.ParseURLKind(req.Google.RedirectKind)
	if err != nil {
		respondError(ctx, c, span, err, "Create OAuth session failed")
		return
	}
	span.SetAttributes(attribute.Bool("request.valid", true))

	issued, err := h.sessions.CreateOAuthSession(ctx, logicv1.OAuthRequest{
		Service:      logicv1.ServiceGoogle,
		Code:         req.Google.Code,
		RedirectKind: kind,
	})
	if err != nil {
		respondError(ctx, c, span, err, "Create OAuth session failed")
		return
	}
	h.writeIssued(c, issued)
}

// RedeemCode exchanges a single-use code for a session.
func (h *Handler) RedeemCode(c *gin.Context) {
	ctx, span := startSpan(c, "http.session.redeem_code")
	defer span.End()

	var req redeemCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(ctx, c, span, domain.Classify(domain.ErrUnprocessableInput, err), "Invalid request")
		return
	}

	issued, err := h.sessions.RedeemSingleUseCode(ctx, req.Code)
	if err != nil {
		respondError(ctx, c, span, err, "Redeem code failed")
		return
	}
	h.writeIssued(c, issued)
}

// GetSession describes the caller's session.
func (h *Handler) GetSession(c *gin.Context) {
	p := PrincipalFrom(c)
	c.JSON(http.StatusOK, sessionResponse{
		UserID:    p.OwnerID.String(),
		SessionID: p.SessionID.String(),
		Mask:      p.Mask.String(),
	})
}

// DeleteSession logs out.
func (h *Handler) DeleteSession(c *gin.Context) {
	ctx, span := startSpan(c, "http.session.delete")
	defer span.End()

	p := PrincipalFrom(c)
	if err := h.sessions.Revoke(ctx, p); err != nil {
		respondError(ctx, c, span, err, "Revoke session failed")
		return
	}
	http.SetCookie(c.Writer, h.sessions.LogoutCookie())
	pkgzerolog.FromContext(ctx).Info().Str("session_id", p.SessionID.String()).Msg("Session revoked")
	c.Status(http.StatusNoContent)
}

func (h *Handler) writeIssued(c *gin.Context, issued *logicv1.Issued) {
	body := &newSessionResponse{CSRF: issued.AntiForgery}
	var resp createSessionResponse
	if issued.Framing == logicv1.FramingLogin {
		resp.Login = body
	} else {
		resp.Register = body
	}

	http.SetCookie(c.Writer, issued.Cookie)
	pkgzerolog.FromContext(c.Request.Context()).Info().
		Str("session_id", issued.SessionID.String()).
		Str("framing", issued.Framing.String()).
		Msg("Session created")
	c.JSON(http.StatusCreated, resp)
}
