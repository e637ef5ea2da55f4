package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corpchat/internal/docstore/memory"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
)

func newTask(t *testing.T, repo *repository.TaskRepository) *model.Task {
	t.Helper()
	task := &model.Task{
		DepartmentID: "engineering",
		Title:        "ship it",
		AssignedTo:   "e1",
	}
	mgr := &model.User{ID: "m1", Name: "Mgr", Role: model.RoleManager, Department: "engineering"}
	if err := repo.Create(context.Background(), mgr, task); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

func TestTaskCreateDefaults(t *testing.T) {
	repo := repository.NewTaskRepository(memory.New())
	task := newTask(t, repo)

	if task.Status != model.TaskStatusPending {
		t.Errorf("status = %s", task.Status)
	}
	if task.Priority != model.TaskPriorityMedium {
		t.Errorf("priority = %s", task.Priority)
	}
	if task.AssignedBy != "m1" || task.AssignedByName != "Mgr" {
		t.Errorf("assignedBy = %s / %s", task.AssignedBy, task.AssignedByName)
	}
}

func TestTaskStatusForwardOnly(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTaskRepository(memory.New())
	task := newTask(t, repo)

	updated, err := repo.UpdateStatus(ctx, task.ID, "e1", model.TaskStatusInProgress)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if updated.Status != model.TaskStatusInProgress {
		t.Errorf("status = %s", updated.Status)
	}

	updated, err = repo.UpdateStatus(ctx, task.ID, "e1", model.TaskStatusCompleted)
	if err != nil {
		t.Fatalf("UpdateStatus completed: %v", err)
	}

	// назад нельзя
	_, err = repo.UpdateStatus(ctx, task.ID, "e1", model.TaskStatusPending)
	if !errors.Is(err, repository.ErrInvalidTransition) {
		t.Errorf("backward transition = %v", err)
	}
	got, _ := repo.Get(ctx, task.ID)
	if got.Status != model.TaskStatusCompleted {
		t.Errorf("status after rejected transition = %s", got.Status)
	}
}

func TestTaskStatusOnlyParticipants(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTaskRepository(memory.New())
	task := newTask(t, repo)

	// постановщик может двигать статус
	if _, err := repo.UpdateStatus(ctx, task.ID, "m1", model.TaskStatusInProgress); err != nil {
		t.Fatalf("assigner update: %v", err)
	}
	// посторонний — нет
	_, err := repo.UpdateStatus(ctx, task.ID, "stranger", model.TaskStatusCompleted)
	if !errors.Is(err, repository.ErrNotAuthorized) {
		t.Errorf("stranger update = %v", err)
	}
}

func TestTaskLists(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTaskRepository(memory.New())
	newTask(t, repo)
	other := &model.Task{DepartmentID: "sales", Title: "call client", AssignedTo: "s1"}
	repo.Create(ctx, &model.User{ID: "m2", Name: "SalesMgr"}, other)

	mine, err := repo.ListForUser(ctx, "e1", "")
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	if len(mine) != 1 || mine[0].Title != "ship it" {
		t.Errorf("mine = %v", mine)
	}

	dept, err := repo.ListByDepartment(ctx, "sales", "")
	if err != nil {
		t.Fatalf("ListByDepartment: %v", err)
	}
	if len(dept) != 1 || dept[0].Title != "call client" {
		t.Errorf("dept = %v", dept)
	}
}

func TestTaskListStatusFilter(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTaskRepository(memory.New())
	task := newTask(t, repo)
	second := &model.Task{DepartmentID: "engineering", Title: "review pr", AssignedTo: "e1"}
	repo.Create(ctx, &model.User{ID: "m1", Name: "Mgr"}, second)

	if _, err := repo.UpdateStatus(ctx, task.ID, "e1", model.TaskStatusInProgress); err != nil {
		t.Fatal(err)
	}

	pending, err := repo.ListForUser(ctx, "e1", model.TaskStatusPending)
	if err != nil {
		t.Fatalf("ListForUser pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Title != "review pr" {
		t.Errorf("pending = %v", pending)
	}

	all, _ := repo.ListByDepartment(ctx, "engineering", "")
	if len(all) != 2 {
		t.Errorf("all = %d", len(all))
	}
}

func TestTaskDelete(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewTaskRepository(memory.New())
	task := newTask(t, repo)

	assignee := &model.User{ID: "e1", Role: model.RoleEmployee, Department: "engineering"}
	if err := repo.Delete(ctx, task.ID, assignee); !errors.Is(err, repository.ErrNotAuthorized) {
		t.Errorf("assignee delete = %v", err)
	}

	otherMgr := &model.User{ID: "m9", Role: model.RoleManager, Department: "sales"}
	if err := repo.Delete(ctx, task.ID, otherMgr); !errors.Is(err, repository.ErrNotAuthorized) {
		t.Errorf("foreign manager delete = %v", err)
	}

	assigner := &model.User{ID: "m1", Role: model.RoleManager, Department: "engineering"}
	if err := repo.Delete(ctx, task.ID, assigner); err != nil {
		t.Fatalf("assigner delete: %v", err)
	}
	if _, err := repo.Get(ctx, task.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("task survived: %v", err)
	}
}
