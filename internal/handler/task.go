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

type TaskHandler struct {
	tasks *repository.TaskRepository
	depts *repository.DepartmentRepository
	users *repository.UserRepository
}

func NewTaskHandler(tasks *repository.TaskRepository, depts *repository.DepartmentRepository, users *repository.UserRepository) *TaskHandler {
	return &TaskHandler{tasks: tasks, depts: depts, users: users}
}

type CreateTaskRequest struct {
	DepartmentID string             `json:"departmentId"`
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	AssignedTo   string             `json:"assignedTo"`
	DueDate      *time.Time         `json:"dueDate,omitempty"`
	Priority     model.TaskPriority `json:"priority"`
}

// Create: менеджер ставит задачи сотрудникам своего отдела.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Title == "" || req.AssignedTo == "" {
		writeError(w, http.StatusBadRequest, "title and assignedTo required")
		return
	}
	me := middleware.GetUser(r.Context())
	dept, err := h.depts.Resolve(r.Context(), req.DepartmentID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !permission.IsManagerOfDepartment(me, dept.ID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if _, err := h.users.GetByID(r.Context(), req.AssignedTo); err != nil {
		writeRepoError(w, err)
		return
	}
	t := &model.Task{
		DepartmentID: dept.ID,
		Title:        req.Title,
		Description:  req.Description,
		AssignedTo:   req.AssignedTo,
		DueDate:      req.DueDate,
		Priority:     req.Priority,
	}
	if err := h.tasks.Create(r.Context(), me, t); err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ListMine отдаёт задачи, назначенные текущему пользователю. Параметр
// ?status= сужает выборку.
func (h *TaskHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	status := model.TaskStatus(r.URL.Query().Get("status"))
	tasks, err := h.tasks.ListForUser(r.Context(), middleware.GetUserID(r.Context()), status)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) ListByDepartment(w http.ResponseWriter, r *http.Request) {
	dept, err := h.depts.Resolve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeRepoError(w, err)
		return
	}
	status := model.TaskStatus(r.URL.Query().Get("status"))
	tasks, err := h.tasks.ListByDepartment(r.Context(), dept.ID, status)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

type UpdateTaskStatusRequest struct {
	Status model.TaskStatus `json:"status"`
}

func (h *TaskHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateTaskStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	t, err := h.tasks.UpdateStatus(r.Context(), chi.URLParam(r, "id"), middleware.GetUserID(r.Context()), req.Status)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.tasks.Delete(r.Context(), chi.URLParam(r, "id"), middleware.GetUser(r.Context())); err != nil {
		writeRepoError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
