package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/kuncarous/nextmu-remix/internal/domain"
)

const (
	invalidInputMessage     = "invalid input provided"
	unauthenticatedMessage  = "requires authentication"
	permissionDeniedMessage = "you don't have enough permissions"
	unavailableMessage      = "service is unavailable, try again later"
)

// statusFor maps a category to the gateway's HTTP status and message.
func statusFor(cat domain.Category) (int, string) {
	switch cat {
	case domain.CategoryInvalidArgument:
		return http.StatusBadRequest, invalidInputMessage
	case domain.CategoryUnauthenticated:
		return http.StatusUnauthorized, unauthenticatedMessage
	case domain.CategoryPermissionDenied:
		return http.StatusForbidden, permissionDeniedMessage
	default:
		return http.StatusServiceUnavailable, unavailableMessage
	}
}

// writeRemoteError writes err as the JSON error body. Validation errors
// name the offending field.
func writeRemoteError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":  invalidInputMessage,
			"field":  verr.Field,
			"reason": verr.Reason,
		})
		return
	}

	cat, ok := domain.CategoryOf(err)
	if !ok {
		cat = domain.CategoryInternal
		if errors.Is(err, context.DeadlineExceeded) {
			cat = domain.CategoryUnavailable
		}
	}
	status, msg := statusFor(cat)
	writeError(w, status, msg)
}
