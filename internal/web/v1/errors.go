package v1

import (
	"context"
	"net/http"

	pkgzerolog "github.com/duynhne/pkg/logger/zerolog"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/identity-service/internal/core/domain"
)

// statusByKind is the only place error kinds become HTTP statuses.
var statusByKind = map[domain.Kind]int{
	domain.KindNotFound:           http.StatusUnauthorized,
	domain.KindInvalidCredential:  http.StatusUnauthorized,
	domain.KindConflict:           http.StatusConflict,
	domain.KindUnprocessableInput: http.StatusUnprocessableEntity,
	domain.KindDisabledService:    http.StatusNotImplemented,
	domain.KindUnverifiedEmail:    http.StatusForbidden,
	domain.KindUpstreamFailure:    http.StatusBadGateway,
	domain.KindInternal:           http.StatusInternalServerError,
}

// StatusFor returns the HTTP status for err.
func StatusFor(err error) int {
	if status, ok := statusByKind[domain.KindOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// errorBody never echoes err itself; only the kind leaves the process.
type errorBody struct {
	Error string `json:"error"`
}

// respondError logs err, records it on span and writes the mapped status.
func respondError(ctx context.Context, c *gin.Context, span trace.Span, err error, msg string) {
	kind := domain.KindOf(err)
	status := StatusFor(err)

	span.RecordError(err)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, kind.String())
	}

	event := pkgzerolog.FromContext(ctx).Warn()
	if status >= http.StatusInternalServerError {
		event = pkgzerolog.FromContext(ctx).Error()
	}
	event.Err(err).Str("kind", kind.String()).Int("status", status).Msg(msg)

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody{Error: kind.String()})
}
