package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"

	"github.com/erazemk/najdeno/internal/model"
	"github.com/erazemk/najdeno/internal/store"
)

// MeHandler serves the signed-in user's profile and postings.
type MeHandler struct {
	DB *sql.DB
}

type updateMeRequest struct {
	Name string `json:"name"`
}

// Get handles GET /api/me.
func (h *MeHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Update handles PUT /api/me.
func (h *MeHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())

	var req updateMeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		jsonError(w, http.StatusBadRequest, "name required")
		return
	}

	if err := store.UpdateUserName(r.Context(), h.DB, claims.UserID, name); err != nil {
		slog.Error("failed to update user name", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to update profile")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, claims.UserID)
	if err != nil || user == nil {
		slog.Error("failed to reload user", "user_id", claims.UserID, "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get profile")
		return
	}
	jsonResponse(w, http.StatusOK, user)
}

// Items handles GET /api/me/items: every live posting of the user,
// including claimed ones, newest first.
func (h *MeHandler) Items(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	items, err := store.ListItems(r.Context(), h.DB, store.ListOptions{
		UserID: claims.UserID,
		Page:   -1,
	})
	if err != nil {
		slog.Error("failed to list own items", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list items")
		return
	}
	if items == nil {
		items = []model.Item{}
	}
	jsonResponse(w, http.StatusOK, items)
}
