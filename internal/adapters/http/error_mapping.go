package httpadapter

import (
	"net/http"

	"github.com/kirillkom/docstack/internal/core/domain"
)

// mapErrorToHTTPStatus translates domain error kinds into response
// codes. Upstream model failures surface as 502 so callers can tell a
// broken dependency from a broken request.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConversationNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case domain.IsKind(err, domain.ErrInvalidCredentials),
		domain.IsKind(err, domain.ErrNetwork),
		domain.IsKind(err, domain.ErrEmbeddingFailed),
		domain.IsKind(err, domain.ErrGenerationFailed):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
