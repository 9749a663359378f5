package api

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/kuncarous/nextmu-remix/internal/auth"
)

// withAuth resolves the portal session, checks the upload role and stores the
// principal in the request context for next. Browser requests without a
// usable session are sent to the login page; bearer requests get a JSON 401.
func (h *Handler) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, method, err := h.authn.Authenticate(r)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrNoCredentials),
				errors.Is(err, auth.ErrInvalidSession),
				errors.Is(err, auth.ErrSessionExpired):
				if method == auth.MethodBearer {
					writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
					return
				}
				h.redirectToLogin(w, r)
			default:
				h.logger.Error("session lookup failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, unavailableMessage)
			}
			return
		}

		if h.opts.RequiredRole != "" && !p.HasRole(h.opts.RequiredRole) {
			writeError(w, http.StatusForbidden, permissionDeniedMessage)
			return
		}

		next(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
	}
}

// principal returns the caller stored by withAuth, answering 401 when a
// route was mounted without it.
func principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, unauthenticatedMessage)
	}
	return p, ok
}

func (h *Handler) redirectToLogin(w http.ResponseWriter, r *http.Request) {
	target := h.opts.LoginURL + "?" + url.Values{"redirectTo": {r.URL.RequestURI()}}.Encode()
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			h.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
