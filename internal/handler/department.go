package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/permission"
	"github.com/corpchat/internal/push"
	"github.com/corpchat/internal/repository"
)

type DepartmentHandler struct {
	depts    *repository.DepartmentRepository
	users    *repository.UserRepository
	notifier *push.Notifier
}

func NewDepartmentHandler(depts *repository.DepartmentRepository, users *repository.UserRepository, notifier *push.Notifier) *DepartmentHandler {
	return &DepartmentHandler{depts: depts, users: users, notifier: notifier}
}

func (h *DepartmentHandler) List(w http.ResponseWriter, r *http.Request) {
	depts, err := h.depts.ListVisible(r.Context(), middleware.GetUser(r.Context()))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, depts)
}

func (h *DepartmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	dept, err := h.depts.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dept)
}

// Send постит сообщение в канал. Право писать проверяется здесь: директор
// каналы только читает.
func (h *DepartmentHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	me := middleware.GetUser(r.Context())
	deptKey := chi.URLParam(r, "id")
	dept, err := h.depts.Resolve(r.Context(), deptKey)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !permission.CanChatInDepartment(me, dept.ID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	msg, err := h.depts.SendMessage(r.Context(), dept.ID, me, req.toMessage())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	// push всем адресатам инкремента в фоне
	if users, err := h.users.ListByDepartment(r.Context(), dept.ID, dept.Name); err == nil {
		note := &push.Notification{
			Title: dept.Name,
			Body:  me.Name + ": " + msg.Text,
			Data:  map[string]string{"departmentId": dept.ID},
		}
		for _, u := range users {
			if u.ID == me.ID {
				continue
			}
			go h.notifier.Notify(context.Background(), u.ID, note)
		}
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *DepartmentHandler) Messages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.depts.Messages(r.Context(), chi.URLParam(r, "id"), queryInt(r, "limit", 100))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *DepartmentHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.depts.MarkAsRead(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context())); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
