package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
)

type TaskRepository struct {
	store docstore.Store
}

func NewTaskRepository(store docstore.Store) *TaskRepository {
	return &TaskRepository{store: store}
}

func (r *TaskRepository) Create(ctx context.Context, creator *model.User, t *model.Task) error {
	defer logger.DeferLogDuration("task.Create", time.Now())()
	t.AssignedBy = creator.ID
	t.AssignedByName = creator.Name
	t.Status = model.TaskStatusPending
	if t.Priority == "" {
		t.Priority = model.TaskPriorityMedium
	}
	data, err := docstore.DataFrom(t)
	if err != nil {
		return fmt.Errorf("taskRepo.Create: %w", err)
	}
	data["createdAt"] = docstore.ServerTimestamp()
	data["updatedAt"] = docstore.ServerTimestamp()
	id, err := r.store.Create(ctx, ColTasks, "", data)
	if err != nil {
		return fmt.Errorf("taskRepo.Create: %w", err)
	}
	t.ID = id
	return nil
}

func (r *TaskRepository) Get(ctx context.Context, id string) (*model.Task, error) {
	defer logger.DeferLogDuration("task.Get", time.Now())()
	doc, err := r.store.Get(ctx, ColTasks, id)
	if err != nil {
		return nil, mapStoreErr(fmt.Errorf("taskRepo.Get: %w", err))
	}
	t := &model.Task{}
	if err := doc.DataTo(t); err != nil {
		return nil, fmt.Errorf("taskRepo.Get: %w", err)
	}
	t.ID = doc.ID
	return t, nil
}

// ListForUser возвращает задачи, назначенные пользователю; пустой status —
// без фильтра.
func (r *TaskRepository) ListForUser(ctx context.Context, userID string, status model.TaskStatus) ([]model.Task, error) {
	defer logger.DeferLogDuration("task.ListForUser", time.Now())()
	return r.list(ctx, status, docstore.Where("assignedTo", docstore.OpEqual, userID))
}

func (r *TaskRepository) ListByDepartment(ctx context.Context, deptID string, status model.TaskStatus) ([]model.Task, error) {
	defer logger.DeferLogDuration("task.ListByDepartment", time.Now())()
	return r.list(ctx, status, docstore.Where("departmentId", docstore.OpEqual, deptID))
}

func (r *TaskRepository) list(ctx context.Context, status model.TaskStatus, filters ...docstore.Filter) ([]model.Task, error) {
	if status != "" {
		filters = append(filters, docstore.Where("status", docstore.OpEqual, string(status)))
	}
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColTasks,
		Filters:    filters,
		OrderField: "createdAt",
		Desc:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("taskRepo.list: %w", err)
	}
	out := make([]model.Task, 0, len(docs))
	for _, d := range docs {
		t := model.Task{}
		if err := d.DataTo(&t); err != nil {
			return nil, fmt.Errorf("taskRepo.list: decode %s: %w", d.ID, err)
		}
		t.ID = d.ID
		out = append(out, t)
	}
	return out, nil
}

// UpdateStatus moves the task forward. Only the assignee or the assigner may
// touch it; the status never moves backwards.
func (r *TaskRepository) UpdateStatus(ctx context.Context, id, userID string, next model.TaskStatus) (*model.Task, error) {
	defer logger.DeferLogDuration("task.UpdateStatus", time.Now())()
	var updated model.Task
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(ColTasks, id)
		if err != nil {
			return mapStoreErr(err)
		}
		t := model.Task{}
		if err := doc.DataTo(&t); err != nil {
			return err
		}
		t.ID = doc.ID
		if t.AssignedTo != userID && t.AssignedBy != userID {
			return ErrNotAuthorized
		}
		if !t.CanTransitionTo(next) {
			return ErrInvalidTransition
		}
		if err := tx.Update(ColTasks, id, map[string]any{
			"status":    string(next),
			"updatedAt": docstore.ServerTimestamp(),
		}); err != nil {
			return err
		}
		t.Status = next
		updated = t
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("taskRepo.UpdateStatus: %w", err)
	}
	return &updated, nil
}

// Delete удаляет задачу. Разрешено постановщику и менеджеру отдела задачи.
func (r *TaskRepository) Delete(ctx context.Context, id string, u *model.User) error {
	defer logger.DeferLogDuration("task.Delete", time.Now())()
	t, err := r.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("taskRepo.Delete: %w", err)
	}
	if t.AssignedBy != u.ID && !permission.IsManagerOfDepartment(u, t.DepartmentID) {
		return fmt.Errorf("taskRepo.Delete: %w", ErrNotAuthorized)
	}
	if err := r.store.Delete(ctx, ColTasks, id); err != nil {
		return mapStoreErr(fmt.Errorf("taskRepo.Delete: %w", err))
	}
	return nil
}
