package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
	"github.com/corpchat/internal/repository"
)

type PollHandler struct {
	polls *repository.PollRepository
	depts *repository.DepartmentRepository
}

func NewPollHandler(polls *repository.PollRepository, depts *repository.DepartmentRepository) *PollHandler {
	return &PollHandler{polls: polls, depts: depts}
}

type CreatePollRequest struct {
	DepartmentID string     `json:"departmentId"`
	Question     string     `json:"question"`
	Options      []string   `json:"options"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

func (h *PollHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}
	me := middleware.GetUser(r.Context())
	dept, err := h.depts.Resolve(r.Context(), req.DepartmentID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !permission.CanCreatePoll(me, dept.ID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	p := &model.Poll{
		DepartmentID: dept.ID,
		Question:     req.Question,
		ExpiresAt:    req.ExpiresAt,
	}
	for _, text := range req.Options {
		p.Options = append(p.Options, model.PollOption{Text: text})
	}
	if err := h.polls.Create(r.Context(), me, p); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PollHandler) ListByDepartment(w http.ResponseWriter, r *http.Request) {
	dept, err := h.depts.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	polls, err := h.polls.ListByDepartment(r.Context(), dept.ID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, polls)
}

type VoteRequest struct {
	OptionID int `json:"optionId"`
}

// Vote переносит голос целиком: пользователь остаётся максимум в одном варианте.
func (h *PollHandler) Vote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	p, err := h.polls.Vote(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.OptionID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
