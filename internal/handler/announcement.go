package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
	"github.com/corpchat/internal/push"
	"github.com/corpchat/internal/repository"
)

type AnnouncementHandler struct {
	anns     *repository.AnnouncementRepository
	users    *repository.UserRepository
	notifier *push.Notifier
}

func NewAnnouncementHandler(anns *repository.AnnouncementRepository, users *repository.UserRepository, notifier *push.Notifier) *AnnouncementHandler {
	return &AnnouncementHandler{anns: anns, users: users, notifier: notifier}
}

type CreateAnnouncementRequest struct {
	Title             string                     `json:"title"`
	Content           string                     `json:"content"`
	Priority          model.AnnouncementPriority `json:"priority"`
	Scope             model.AnnouncementScope    `json:"scope"`
	TargetDepartments []string                   `json:"targetDepartments"`
}

// Create: менеджер публикует в свои отделы, директор — на всю компанию.
func (h *AnnouncementHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Title == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "title and content required")
		return
	}
	me := middleware.GetUser(r.Context())

	a := &model.Announcement{
		Title:             req.Title,
		Content:           req.Content,
		Priority:          req.Priority,
		Scope:             req.Scope,
		TargetDepartments: req.TargetDepartments,
	}
	switch a.Scope {
	case model.ScopeCompany:
		if !permission.CanCreateAnnouncement(me, "") {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		a.TargetDepartments = nil
	case model.ScopeDepartment:
		if len(a.TargetDepartments) == 0 {
			a.TargetDepartments = []string{me.Department}
		}
		for _, d := range a.TargetDepartments {
			if !permission.CanCreateAnnouncement(me, d) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
		}
	default:
		writeError(w, http.StatusBadRequest, "unknown scope")
		return
	}

	if err := h.anns.Create(r.Context(), me, a); err != nil {
		writeRepoError(w, err)
		return
	}
	go h.notifyRecipients(context.Background(), me, a)
	writeJSON(w, http.StatusCreated, a)
}

// notifyRecipients шлёт push тем, кого объявление касается, кроме автора.
func (h *AnnouncementHandler) notifyRecipients(ctx context.Context, author *model.User, a *model.Announcement) {
	if !h.notifier.Enabled() {
		return
	}
	all, err := h.users.List(ctx)
	if err != nil {
		return
	}
	for i := range all {
		u := &all[i]
		if u.ID == author.ID {
			continue
		}
		if a.Scope == model.ScopeDepartment && !slices.Contains(a.TargetDepartments, u.Department) {
			continue
		}
		h.notifier.Notify(ctx, u.ID, &push.Notification{
			Title: "Announcement: " + a.Title,
			Body:  a.Content,
			Data:  map[string]string{"announcementId": a.ID},
		})
	}
}

func (h *AnnouncementHandler) List(w http.ResponseWriter, r *http.Request) {
	anns, err := h.anns.ListVisible(r.Context(), middleware.GetUser(r.Context()))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anns)
}

func (h *AnnouncementHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.anns.MarkRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AnnouncementHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.anns.UnreadCount(r.Context(), middleware.GetUser(r.Context()))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

// Delete: автор или директор.
func (h *AnnouncementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUser(r.Context())
	anns, err := h.anns.ListVisible(r.Context(), me)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	for i := range anns {
		if anns[i].ID != id {
			continue
		}
		if anns[i].CreatedBy != me.ID && me.Role != model.RoleDirector && me.Role != model.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		if err := h.anns.Delete(r.Context(), id); err != nil {
			writeRepoError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeError(w, http.StatusNotFound, "not found")
}
