package httpapi

import (
	"errors"
	"net/http"

	"stockyard.org/internal/sysconfig"
)

type simulationFlagResponse struct {
	Enabled bool `json:"enabled"`
}

type permissionItem struct {
	ID           string `json:"id"`
	RoleID       string `json:"roleId"`
	ResourcePath string `json:"resourcePath"`
}

func (a *API) handleGetSimulationFlag(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	cfg, err := a.flags.Get(r.Context(), sysconfig.SimulationRunFlag)
	if err != nil {
		handleSysconfigError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, simulationFlagResponse{Enabled: cfg.Enabled()})
}

func (a *API) handleToggleSimulation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	act, _ := actor(r)
	cfg, err := sysconfig.Toggle(r.Context(), a.flags, sysconfig.SimulationRunFlag, act.Email)
	if err != nil {
		handleSysconfigError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, simulationFlagResponse{Enabled: cfg.Enabled()})
}

func (a *API) handleListPermissions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	permissions, err := a.authStore.Permissions(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]permissionItem, 0, len(permissions))
	for _, p := range permissions {
		items = append(items, permissionItem{
			ID:           p.ID,
			RoleID:       p.RoleID,
			ResourcePath: p.ResourcePath,
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func handleSysconfigError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, sysconfig.ErrNotFound) {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, r, http.StatusInternalServerError, "internal error")
}
