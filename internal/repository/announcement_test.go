package repository_test

import (
	"context"
	"testing"

	"github.com/corpchat/internal/docstore/memory"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
)

func director() *model.User {
	return &model.User{ID: "dir", Name: "Director", Role: model.RoleDirector}
}

func TestAnnouncementVisibility(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAnnouncementRepository(memory.New())
	mgr := &model.User{ID: "m1", Name: "Mgr", Role: model.RoleManager, Department: "engineering"}

	repo.Create(ctx, director(), &model.Announcement{
		Title: "all hands", Content: "friday", Scope: model.ScopeCompany,
	})
	repo.Create(ctx, mgr, &model.Announcement{
		Title: "eng only", Content: "retro", Scope: model.ScopeDepartment,
		TargetDepartments: []string{"engineering"},
	})

	eng := &model.User{ID: "e1", Role: model.RoleEmployee, Department: "engineering"}
	visible, err := repo.ListVisible(ctx, eng)
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	if len(visible) != 2 {
		t.Errorf("engineering sees %d", len(visible))
	}

	sales := &model.User{ID: "s1", Role: model.RoleEmployee, Department: "sales"}
	visible, _ = repo.ListVisible(ctx, sales)
	if len(visible) != 1 || visible[0].Title != "all hands" {
		t.Errorf("sales sees %v", visible)
	}

	// директор не видит объявления отделов
	visible, _ = repo.ListVisible(ctx, director())
	if len(visible) != 1 || visible[0].Title != "all hands" {
		t.Errorf("director sees %v", visible)
	}
}

func TestAnnouncementReadSetOnlyGrows(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAnnouncementRepository(memory.New())
	a := &model.Announcement{Title: "t", Content: "c", Scope: model.ScopeCompany}
	repo.Create(ctx, director(), a)

	eng := &model.User{ID: "e1", Role: model.RoleEmployee, Department: "engineering"}
	n, _ := repo.UnreadCount(ctx, eng)
	if n != 1 {
		t.Errorf("unread = %d", n)
	}

	if err := repo.MarkRead(ctx, a.ID, "e1"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	// повторное прочтение не дублирует запись
	if err := repo.MarkRead(ctx, a.ID, "e1"); err != nil {
		t.Fatalf("MarkRead twice: %v", err)
	}

	visible, _ := repo.ListVisible(ctx, eng)
	if len(visible[0].ReadBy) != 1 {
		t.Errorf("readBy = %v", visible[0].ReadBy)
	}
	n, _ = repo.UnreadCount(ctx, eng)
	if n != 0 {
		t.Errorf("unread after read = %d", n)
	}
}

func TestAnnouncementDefaultPriority(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewAnnouncementRepository(memory.New())
	a := &model.Announcement{Title: "t", Content: "c", Scope: model.ScopeCompany}
	repo.Create(ctx, director(), a)

	if a.Priority != model.PriorityNormal {
		t.Errorf("priority = %s", a.Priority)
	}
	if a.CreatedBy != "dir" || a.CreatedByName != "Director" {
		t.Errorf("creator = %s / %s", a.CreatedBy, a.CreatedByName)
	}
}
