package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
)

type UserRepository struct {
	store docstore.Store
}

func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	defer logger.DeferLogDuration("user.Create", time.Now())()
	data, err := docstore.DataFrom(u)
	if err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	data["createdAt"] = docstore.ServerTimestamp()
	data["lastSeen"] = docstore.ServerTimestamp()
	data["status"] = string(model.StatusOffline)
	if _, err := r.store.Create(ctx, ColUsers, u.ID, data); err != nil {
		return fmt.Errorf("userRepo.Create: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByID", time.Now())()
	doc, err := r.store.Get(ctx, ColUsers, id)
	if err != nil {
		return nil, mapStoreErr(fmt.Errorf("userRepo.GetByID: %w", err))
	}
	u := &model.User{}
	if err := doc.DataTo(u); err != nil {
		return nil, fmt.Errorf("userRepo.GetByID: %w", err)
	}
	u.ID = doc.ID
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	defer logger.DeferLogDuration("user.GetByEmail", time.Now())()
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColUsers,
		Filters:    []docstore.Filter{docstore.Where("email", docstore.OpEqual, strings.ToLower(email))},
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	u := &model.User{}
	if err := docs[0].DataTo(u); err != nil {
		return nil, fmt.Errorf("userRepo.GetByEmail: %w", err)
	}
	u.ID = docs[0].ID
	return u, nil
}

func (r *UserRepository) List(ctx context.Context) ([]model.User, error) {
	defer logger.DeferLogDuration("user.List", time.Now())()
	docs, err := r.store.Query(ctx, docstore.Query{Collection: ColUsers, OrderField: "name"})
	if err != nil {
		return nil, fmt.Errorf("userRepo.List: %w", err)
	}
	return decodeUsers(docs)
}

// ListByDepartment matches by department id with a case-insensitive name
// fallback: old user documents carry the display name instead of the slug.
func (r *UserRepository) ListByDepartment(ctx context.Context, deptID, deptName string) ([]model.User, error) {
	defer logger.DeferLogDuration("user.ListByDepartment", time.Now())()
	all, err := r.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("userRepo.ListByDepartment: %w", err)
	}
	var out []model.User
	for _, u := range all {
		if strings.EqualFold(u.Department, deptID) || (deptName != "" && strings.EqualFold(u.Department, deptName)) {
			out = append(out, u)
		}
	}
	return out, nil
}

// UpdateProfile updates the user document and fans the denormalized name and
// avatar out to every conversation the user is a member of and to channels
// the user manages.
func (r *UserRepository) UpdateProfile(ctx context.Context, id, name, avatar, phone string) error {
	defer logger.DeferLogDuration("user.UpdateProfile", time.Now())()
	if err := r.store.Update(ctx, ColUsers, id, map[string]any{
		"name":   name,
		"avatar": avatar,
		"phone":  phone,
	}); err != nil {
		return mapStoreErr(fmt.Errorf("userRepo.UpdateProfile: %w", err))
	}

	convs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColConversations,
		Filters:    []docstore.Filter{docstore.Where("members", docstore.OpArrayContains, id)},
	})
	if err != nil {
		return fmt.Errorf("userRepo.UpdateProfile: conversations: %w", err)
	}
	for _, c := range convs {
		if err := r.store.Update(ctx, ColConversations, c.ID, map[string]any{
			"memberDetails." + id + ".name":   name,
			"memberDetails." + id + ".avatar": avatar,
		}); err != nil {
			return fmt.Errorf("userRepo.UpdateProfile: conversation %s: %w", c.ID, err)
		}
	}

	depts, err := r.store.Query(ctx, docstore.Query{
		Collection: ColDepartments,
		Filters:    []docstore.Filter{docstore.Where("managerId", docstore.OpEqual, id)},
	})
	if err != nil {
		return fmt.Errorf("userRepo.UpdateProfile: departments: %w", err)
	}
	for _, d := range depts {
		if err := r.store.Update(ctx, ColDepartments, d.ID, map[string]any{
			"managerName": name,
		}); err != nil {
			return fmt.Errorf("userRepo.UpdateProfile: department %s: %w", d.ID, err)
		}
	}
	return nil
}

func (r *UserRepository) SetStatus(ctx context.Context, id string, status model.UserStatus) error {
	defer logger.DeferLogDuration("user.SetStatus", time.Now())()
	err := r.store.Update(ctx, ColUsers, id, map[string]any{
		"status":   string(status),
		"lastSeen": docstore.ServerTimestamp(),
	})
	if err != nil {
		return mapStoreErr(fmt.Errorf("userRepo.SetStatus: %w", err))
	}
	return nil
}

// SetRole назначает роль и отделы; только для админских операций.
func (r *UserRepository) SetRole(ctx context.Context, id string, role model.Role, department string, managed []string) error {
	defer logger.DeferLogDuration("user.SetRole", time.Now())()
	fields := map[string]any{
		"role":       string(role),
		"department": department,
	}
	if managed == nil {
		fields["managedDepartments"] = docstore.DeleteField()
	} else {
		fields["managedDepartments"] = managed
	}
	if err := r.store.Update(ctx, ColUsers, id, fields); err != nil {
		return mapStoreErr(fmt.Errorf("userRepo.SetRole: %w", err))
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("user.Delete", time.Now())()
	if err := r.store.Delete(ctx, ColUsers, id); err != nil {
		return fmt.Errorf("userRepo.Delete: %w", err)
	}
	return nil
}

func decodeUsers(docs []docstore.Document) ([]model.User, error) {
	out := make([]model.User, 0, len(docs))
	for _, d := range docs {
		u := model.User{}
		if err := d.DataTo(&u); err != nil {
			return nil, fmt.Errorf("userRepo: decode %s: %w", d.ID, err)
		}
		u.ID = d.ID
		out = append(out, u)
	}
	return out, nil
}
