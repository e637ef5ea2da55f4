package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/middleware"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
	"github.com/corpchat/internal/repository"
)

type AdminHandler struct {
	store   docstore.Store
	users   *repository.UserRepository
	depts   *repository.DepartmentRepository
	cleanup *repository.CleanupRepository
}

func NewAdminHandler(store docstore.Store, users *repository.UserRepository, depts *repository.DepartmentRepository, cleanup *repository.CleanupRepository) *AdminHandler {
	return &AdminHandler{store: store, users: users, depts: depts, cleanup: cleanup}
}

// Rules отдаёт всю матрицу ролей, чтобы клиент не зашивал её у себя.
func (h *AdminHandler) Rules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, permission.Rules())
}

type StatsResponse struct {
	Users         int            `json:"users"`
	UsersByRole   map[string]int `json:"usersByRole"`
	Departments   int            `json:"departments"`
	Messages      int            `json:"messages"`
	Announcements int            `json:"announcements"`
	Tasks         int            `json:"tasks"`
	GeneratedAt   time.Time      `json:"generatedAt"`
}

// Stats: сводные счётчики для директора и админа.
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUser(r.Context())
	if !permission.CanViewStats(me) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	resp := StatsResponse{UsersByRole: map[string]int{}, GeneratedAt: time.Now().UTC()}

	users, err := h.users.List(r.Context())
	if err != nil {
		writeRepoError(w, err)
		return
	}
	resp.Users = len(users)
	for i := range users {
		resp.UsersByRole[string(users[i].Role)]++
	}

	counts := map[string]*int{
		repository.ColDepartments:        &resp.Departments,
		repository.ColAnnouncements:      &resp.Announcements,
		repository.ColTasks:              &resp.Tasks,
		repository.ColDepartmentMessages: &resp.Messages,
	}
	for col, dst := range counts {
		docs, err := h.store.Query(r.Context(), docstore.Query{Collection: col})
		if err != nil {
			writeRepoError(w, err)
			return
		}
		*dst = len(docs)
	}
	if docs, err := h.store.Query(r.Context(), docstore.Query{Collection: repository.ColMessages}); err == nil {
		resp.Messages += len(docs)
	}
	writeJSON(w, http.StatusOK, resp)
}

type SetRoleRequest struct {
	Role model.Role `json:"role"`
	// Department — новый домашний отдел; пустой = оставить прежний.
	Department         string   `json:"department"`
	ManagedDepartments []string `json:"managedDepartments"`
}

func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUser(r.Context())
	if me.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req SetRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	u, err := h.users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	dept := req.Department
	if dept == "" {
		dept = u.Department
	}
	if err := h.users.SetRole(r.Context(), u.ID, req.Role, dept, req.ManagedDepartments); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type CreateDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

func (h *AdminHandler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUser(r.Context())
	if me.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req CreateDepartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}
	d := &model.Department{
		Name:        req.Name,
		Description: req.Description,
		Icon:        req.Icon,
		Type:        model.DepartmentTypeDepartment,
	}
	if err := h.depts.Create(r.Context(), d); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

type AssignManagerRequest struct {
	UserID string `json:"userId"`
}

// AssignManager назначает руководителя канала и повышает его до менеджера.
func (h *AdminHandler) AssignManager(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUser(r.Context())
	if me.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req AssignManagerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	dept, err := h.depts.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	u, err := h.users.GetByID(r.Context(), req.UserID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if err := h.depts.AssignManager(r.Context(), dept.ID, u); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAccount запускает каскадную чистку. Админ удаляет кого угодно,
// пользователь — только себя.
func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUser(r.Context())
	target := chi.URLParam(r, "id")
	if target != me.ID && me.Role != model.RoleAdmin {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if _, err := h.users.GetByID(r.Context(), target); err != nil {
		writeRepoError(w, err)
		return
	}
	if err := h.cleanup.Run(r.Context(), target); err != nil {
		logger.Errorf("cleanup %s: %v", target, err)
		writeError(w, http.StatusInternalServerError, "cleanup failed, retry to resume")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
