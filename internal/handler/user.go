package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
	"github.com/corpchat/internal/repository"
)

type UserHandler struct {
	users *repository.UserRepository
}

func NewUserHandler(users *repository.UserRepository) *UserHandler {
	return &UserHandler{users: users}
}

// List отдаёт публичные профили всех сотрудников (справочник для начала беседы).
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	all, err := h.users.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	out := make([]model.UserPublic, 0, len(all))
	for i := range all {
		out = append(out, all[i].ToPublic())
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.ToPublic())
}

type UpdateProfileRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
	Phone  string `json:"phone"`
}

// UpdateProfile меняет собственный профиль; имя и аватар разъезжаются по
// денормализованным копиям в беседах и каналах.
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if err := h.users.UpdateProfile(r.Context(), userID, req.Name, req.Avatar, req.Phone); err != nil {
		writeRepoError(w, err)
		return
	}
	u, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Permissions отдаёт набор возможностей текущего пользователя.
func (h *UserHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	u := middleware.GetUser(r.Context())
	writeJSON(w, http.StatusOK, permission.Derive(u.Role))
}
