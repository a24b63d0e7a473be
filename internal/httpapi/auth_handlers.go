package httpapi

import (
	"net/http"
	"strings"

	"stockyard.org/internal/auth"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type meResponse struct {
	UserID   string `json:"userId"`
	Email    string `json:"email"`
	RoleName string `json:"roleName"`
	FullName string `json:"fullName"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	token, _, _, err := a.gate.Login(r.Context(), email, req.Password)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}

	http.SetCookie(w, auth.NewSessionCookie(token, a.sessionTTL))
	writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
}

// handleLogout revokes the presented token. The session-clearing cookie goes
// out regardless of the revocation outcome.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	act, _ := actor(r)
	if token, ok := auth.TokenFromContext(r.Context()); ok {
		a.gate.Logout(r.Context(), act, token)
	}

	http.SetCookie(w, auth.ExpiredSessionCookie())
	writeJSON(w, http.StatusOK, messageResponse{Message: "OK"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		UserID:   act.UserID,
		Email:    act.Email,
		RoleName: act.RoleName,
		FullName: act.FullName,
	})
}
