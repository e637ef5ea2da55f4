package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corpchat/internal/docstore/memory"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
)

func seededDepartments(t *testing.T) (*repository.DepartmentRepository, *repository.UserRepository) {
	t.Helper()
	store := memory.New()
	users := repository.NewUserRepository(store)
	depts := repository.NewDepartmentRepository(store, users, 0)
	if err := depts.Seed(context.Background()); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	return depts, users
}

func mustCreateUser(t *testing.T, users *repository.UserRepository, u *model.User) {
	t.Helper()
	if err := users.Create(context.Background(), u); err != nil {
		t.Fatalf("create user %s: %v", u.ID, err)
	}
}

func TestSeedIdempotent(t *testing.T) {
	ctx := context.Background()
	depts, _ := seededDepartments(t)

	if err := depts.Seed(ctx); err != nil {
		t.Fatalf("second Seed: %v", err)
	}
	general, err := depts.Resolve(ctx, model.GeneralDepartmentID)
	if err != nil {
		t.Fatalf("Resolve general: %v", err)
	}
	if general.Type != model.DepartmentTypePublic {
		t.Errorf("general type = %s", general.Type)
	}
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Engineering":   "engineering",
		"Customer Care": "customer-care",
		"  HR  ":        "hr",
		"R&D":           "rd",
	}
	for in, want := range cases {
		if got := repository.Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveByNameFallback(t *testing.T) {
	ctx := context.Background()
	depts, _ := seededDepartments(t)

	d, err := depts.Resolve(ctx, "Engineering")
	if err != nil {
		t.Fatalf("Resolve by name: %v", err)
	}
	if d.ID != "engineering" {
		t.Errorf("id = %q", d.ID)
	}
	if _, err := depts.Resolve(ctx, "nonexistent"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Resolve missing = %v", err)
	}
}

func TestCreateDuplicate(t *testing.T) {
	ctx := context.Background()
	depts, _ := seededDepartments(t)

	err := depts.Create(ctx, &model.Department{Name: "Engineering", Type: model.DepartmentTypeDepartment})
	if !errors.Is(err, repository.ErrAlreadyExists) {
		t.Errorf("Create duplicate = %v", err)
	}
}

func TestListVisibleByRole(t *testing.T) {
	ctx := context.Background()
	depts, _ := seededDepartments(t)

	employee := &model.User{ID: "e1", Role: model.RoleEmployee, Department: "sales"}
	visible, err := depts.ListVisible(ctx, employee)
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	// общий канал + свой отдел
	if len(visible) != 2 {
		t.Fatalf("employee sees %d channels", len(visible))
	}
	ids := map[string]bool{}
	for _, d := range visible {
		ids[d.ID] = true
	}
	if !ids["general"] || !ids["sales"] {
		t.Errorf("employee channels = %v", ids)
	}

	director := &model.User{ID: "d1", Role: model.RoleDirector}
	visible, _ = depts.ListVisible(ctx, director)
	if len(visible) != 5 {
		t.Errorf("director sees %d channels, want all 5", len(visible))
	}
}

func TestDepartmentSendFanOut(t *testing.T) {
	ctx := context.Background()
	depts, users := seededDepartments(t)
	mustCreateUser(t, users, &model.User{ID: "m1", Name: "Mgr", Role: model.RoleManager, Department: "engineering"})
	mustCreateUser(t, users, &model.User{ID: "e1", Name: "Eng1", Role: model.RoleEmployee, Department: "engineering"})
	mustCreateUser(t, users, &model.User{ID: "e2", Name: "Eng2", Role: model.RoleEmployee, Department: "engineering"})
	mustCreateUser(t, users, &model.User{ID: "s1", Name: "Sales", Role: model.RoleEmployee, Department: "sales"})

	sender := &model.User{ID: "m1", Name: "Mgr", Role: model.RoleManager, Department: "engineering"}
	msg, err := depts.SendMessage(ctx, "engineering", sender, &model.Message{Text: "standup", Type: model.MessageTypeText})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.SenderDepartment != "engineering" {
		t.Errorf("senderDepartment = %q", msg.SenderDepartment)
	}

	d, _ := depts.Resolve(ctx, "engineering")
	// счётчики растут у всех сотрудников отдела, кроме отправителя
	if d.UnreadCount["e1"] != 1 || d.UnreadCount["e2"] != 1 {
		t.Errorf("unread = %v", d.UnreadCount)
	}
	if d.UnreadCount["m1"] != 0 {
		t.Errorf("sender counter incremented: %v", d.UnreadCount)
	}
	if _, ok := d.UnreadCount["s1"]; ok {
		t.Errorf("outsider counter incremented: %v", d.UnreadCount)
	}
	if d.LastMessage == nil || d.LastMessage.Text != "standup" {
		t.Errorf("lastMessage = %+v", d.LastMessage)
	}

	if err := depts.MarkAsRead(ctx, "engineering", "e1"); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	d, _ = depts.Resolve(ctx, "engineering")
	if d.UnreadCount["e1"] != 0 || d.UnreadCount["e2"] != 1 {
		t.Errorf("unread after read = %v", d.UnreadCount)
	}
}

func TestPublicChannelReachesWholeCompany(t *testing.T) {
	ctx := context.Background()
	depts, users := seededDepartments(t)
	mustCreateUser(t, users, &model.User{ID: "e1", Role: model.RoleEmployee, Department: "engineering"})
	mustCreateUser(t, users, &model.User{ID: "s1", Role: model.RoleEmployee, Department: "sales"})

	sender := &model.User{ID: "e1", Role: model.RoleEmployee, Department: "engineering"}
	if _, err := depts.SendMessage(ctx, "general", sender, &model.Message{Text: "hello all", Type: model.MessageTypeText}); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	d, _ := depts.Resolve(ctx, "general")
	if d.UnreadCount["s1"] != 1 {
		t.Errorf("sales unread = %v", d.UnreadCount)
	}
	if d.UnreadCount["e1"] != 0 {
		t.Errorf("sender unread = %v", d.UnreadCount)
	}
}

func TestAssignManagerPromotes(t *testing.T) {
	ctx := context.Background()
	depts, users := seededDepartments(t)
	mustCreateUser(t, users, &model.User{ID: "e1", Name: "Eva", Role: model.RoleEmployee, Department: "engineering"})

	u, _ := users.GetByID(ctx, "e1")
	if err := depts.AssignManager(ctx, "engineering", u); err != nil {
		t.Fatalf("AssignManager: %v", err)
	}

	d, _ := depts.Resolve(ctx, "engineering")
	if d.ManagerID != "e1" || d.ManagerName != "Eva" {
		t.Errorf("manager = %q / %q", d.ManagerID, d.ManagerName)
	}
	u, _ = users.GetByID(ctx, "e1")
	if u.Role != model.RoleManager {
		t.Errorf("role = %s", u.Role)
	}
	if len(u.ManagedDepartments) != 1 || u.ManagedDepartments[0] != "engineering" {
		t.Errorf("managedDepartments = %v", u.ManagedDepartments)
	}
}

func TestDepartmentMessageLookup(t *testing.T) {
	ctx := context.Background()
	depts, users := seededDepartments(t)
	mustCreateUser(t, users, &model.User{ID: "e1", Role: model.RoleEmployee, Department: "engineering"})

	sender := &model.User{ID: "e1", Role: model.RoleEmployee, Department: "engineering"}
	msg, _ := depts.SendMessage(ctx, "engineering", sender, &model.Message{Text: "pin me", Type: model.MessageTypeText})

	got, err := depts.Message(ctx, "engineering", msg.ID)
	if err != nil {
		t.Fatalf("Message: %v", err)
	}
	if got.Text != "pin me" {
		t.Errorf("text = %q", got.Text)
	}
	// сообщение чужого канала не находится
	if _, err := depts.Message(ctx, "sales", msg.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("cross-channel lookup = %v", err)
	}
}
