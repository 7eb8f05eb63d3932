package httpadapter

import (
	"context"
	"errors"
	"net/http"

	"github.com/kirillkom/knowledge-enrichment-connector/internal/core/domain"
)

// mapErrorToHTTPStatus maps domain error kinds to a status. Failures to
// authenticate against the remote services are gateway errors: the caller of
// this api did nothing wrong.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput), domain.IsKind(err, domain.ErrUnsupportedService):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrJobNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUnauthorized), domain.IsKind(err, domain.ErrMalformedResponse), domain.IsKind(err, domain.ErrNotJSON):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
