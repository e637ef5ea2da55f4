package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/permission"
	"github.com/corpchat/internal/repository"
)

type PinnedHandler struct {
	pins  *repository.PinnedRepository
	depts *repository.DepartmentRepository
}

func NewPinnedHandler(pins *repository.PinnedRepository, depts *repository.DepartmentRepository) *PinnedHandler {
	return &PinnedHandler{pins: pins, depts: depts}
}

type PinRequest struct {
	MessageID string `json:"messageId"`
}

// Pin закрепляет сообщение канала. Только менеджер этого канала.
func (h *PinnedHandler) Pin(w http.ResponseWriter, r *http.Request) {
	var req PinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	me := middleware.GetUser(r.Context())
	dept, err := h.depts.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !permission.CanPinMessage(me, dept.ID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	msg, err := h.depts.Message(r.Context(), dept.ID, req.MessageID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	p, err := h.pins.Pin(r.Context(), me, dept.ID, msg)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PinnedHandler) Unpin(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUser(r.Context())
	p, err := h.pins.Get(r.Context(), chi.URLParam(r, "pinId"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !permission.CanPinMessage(me, p.DepartmentID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := h.pins.Unpin(r.Context(), p.ID); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PinnedHandler) List(w http.ResponseWriter, r *http.Request) {
	dept, err := h.depts.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	pins, err := h.pins.ListByDepartment(r.Context(), dept.ID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pins)
}
