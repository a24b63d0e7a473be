package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"stockyard.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// withAuth runs the authorization pipeline on every request. The session
// token travels in the session cookie; a Bearer header is accepted as a
// fallback for non-browser clients.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a.gate == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token := sessionToken(r)
		actor, err := a.gate.Authorize(r.Context(), token, r.URL.Path)
		if err != nil {
			a.handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithActor(r.Context(), actor)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionToken extracts the raw token from the session cookie, falling back
// to the Authorization header.
func sessionToken(r *http.Request) string {
	if c, err := r.Cookie(auth.SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header == "" {
		return ""
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return ""
	}
	return strings.TrimSpace(header[len(bearer):])
}

// handleAuthError translates pipeline failures to their status codes. A
// revoked token additionally clears the client's session cookie.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrTokenRevoked):
		http.SetCookie(w, auth.ExpiredSessionCookie())
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrInvalidRole):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotTiedToWarehouse):
		writeError(w, r, http.StatusBadRequest, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// actor returns the authorized identity attached by withAuth. Handlers behind
// the pipeline always see a populated actor; a zero value means the route was
// reached through the public allow-list.
func actor(r *http.Request) (auth.ActorContext, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok || a.UserID == "" {
		return auth.ActorContext{}, false
	}
	return a, true
}
