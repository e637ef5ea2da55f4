package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
)

type DepartmentRepository struct {
	store              docstore.Store
	users              *UserRepository
	maxAttachmentBytes int64
}

func NewDepartmentRepository(store docstore.Store, users *UserRepository, maxAttachmentBytes int64) *DepartmentRepository {
	return &DepartmentRepository{store: store, users: users, maxAttachmentBytes: maxAttachmentBytes}
}

// defaultDepartments — каналы, создаваемые при первом старте.
var defaultDepartments = []model.Department{
	{ID: model.GeneralDepartmentID, Name: "General", Description: "Company-wide channel", Icon: "💬", Type: model.DepartmentTypePublic},
	{ID: "engineering", Name: "Engineering", Icon: "🛠", Type: model.DepartmentTypeDepartment},
	{ID: "marketing", Name: "Marketing", Icon: "📣", Type: model.DepartmentTypeDepartment},
	{ID: "sales", Name: "Sales", Icon: "💼", Type: model.DepartmentTypeDepartment},
	{ID: "hr", Name: "HR", Icon: "🧑‍💼", Type: model.DepartmentTypeDepartment},
}

// Seed creates the default channels that do not exist yet. Safe to run on
// every start.
func (r *DepartmentRepository) Seed(ctx context.Context) error {
	defer logger.DeferLogDuration("department.Seed", time.Now())()
	for _, d := range defaultDepartments {
		_, err := r.store.Get(ctx, ColDepartments, d.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("departmentRepo.Seed: %w", err)
		}
		data, err := docstore.DataFrom(&d)
		if err != nil {
			return fmt.Errorf("departmentRepo.Seed: %w", err)
		}
		data["unreadCount"] = map[string]any{}
		data["createdAt"] = docstore.ServerTimestamp()
		data["updatedAt"] = docstore.ServerTimestamp()
		if _, err := r.store.Create(ctx, ColDepartments, d.ID, data); err != nil {
			return fmt.Errorf("departmentRepo.Seed: %w", err)
		}
		logger.Infof("seeded department %s", d.ID)
	}
	return nil
}

// Slugify derives a channel id from a display name.
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}

func (r *DepartmentRepository) Create(ctx context.Context, d *model.Department) error {
	defer logger.DeferLogDuration("department.Create", time.Now())()
	if d.ID == "" {
		d.ID = Slugify(d.Name)
	}
	if d.ID == "" {
		return fmt.Errorf("departmentRepo.Create: empty department id")
	}
	if _, err := r.store.Get(ctx, ColDepartments, d.ID); err == nil {
		return fmt.Errorf("departmentRepo.Create: %w", ErrAlreadyExists)
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("departmentRepo.Create: %w", err)
	}
	data, err := docstore.DataFrom(d)
	if err != nil {
		return fmt.Errorf("departmentRepo.Create: %w", err)
	}
	data["unreadCount"] = map[string]any{}
	data["createdAt"] = docstore.ServerTimestamp()
	data["updatedAt"] = docstore.ServerTimestamp()
	if _, err := r.store.Create(ctx, ColDepartments, d.ID, data); err != nil {
		return fmt.Errorf("departmentRepo.Create: %w", err)
	}
	return nil
}

// Resolve finds a channel by slug id, falling back to a case-insensitive
// name match for user documents that still carry display names.
func (r *DepartmentRepository) Resolve(ctx context.Context, key string) (*model.Department, error) {
	defer logger.DeferLogDuration("department.Resolve", time.Now())()
	doc, err := r.store.Get(ctx, ColDepartments, strings.ToLower(key))
	if err == nil {
		return decodeDepartment(doc)
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("departmentRepo.Resolve: %w", err)
	}
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.Resolve: %w", err)
	}
	for i := range all {
		if strings.EqualFold(all[i].Name, key) {
			return &all[i], nil
		}
	}
	return nil, ErrNotFound
}

func (r *DepartmentRepository) listAll(ctx context.Context) ([]model.Department, error) {
	docs, err := r.store.Query(ctx, docstore.Query{Collection: ColDepartments, OrderField: "name"})
	if err != nil {
		return nil, err
	}
	out := make([]model.Department, 0, len(docs))
	for _, d := range docs {
		dep, err := decodeDepartment(&d)
		if err != nil {
			return nil, err
		}
		out = append(out, *dep)
	}
	return out, nil
}

// ListVisible returns the channels the user may read: public channels and the
// home department for everyone, every channel for roles with the view-all
// capability, plus managed channels.
func (r *DepartmentRepository) ListVisible(ctx context.Context, u *model.User) ([]model.Department, error) {
	defer logger.DeferLogDuration("department.ListVisible", time.Now())()
	all, err := r.listAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.ListVisible: %w", err)
	}
	if permission.CanViewAllDepartments(u) {
		return all, nil
	}
	var out []model.Department
	for _, d := range all {
		if d.Type == model.DepartmentTypePublic ||
			strings.EqualFold(u.Department, d.ID) || strings.EqualFold(u.Department, d.Name) ||
			permission.IsManagerOfDepartment(u, d.ID) {
			out = append(out, d)
		}
	}
	return out, nil
}

// AssignManager sets the channel's single manager slot and promotes the user.
func (r *DepartmentRepository) AssignManager(ctx context.Context, deptID string, u *model.User) error {
	defer logger.DeferLogDuration("department.AssignManager", time.Now())()
	dept, err := r.Resolve(ctx, deptID)
	if err != nil {
		return fmt.Errorf("departmentRepo.AssignManager: %w", err)
	}
	if err := r.store.Update(ctx, ColDepartments, dept.ID, map[string]any{
		"managerId":   u.ID,
		"managerName": u.Name,
		"updatedAt":   docstore.ServerTimestamp(),
	}); err != nil {
		return fmt.Errorf("departmentRepo.AssignManager: %w", err)
	}
	if err := r.store.Update(ctx, ColUsers, u.ID, map[string]any{
		"role":               string(model.RoleManager),
		"managedDepartments": docstore.ArrayUnion(dept.ID),
	}); err != nil {
		return fmt.Errorf("departmentRepo.AssignManager: %w", err)
	}
	return nil
}

// SendMessage appends a channel message and fans the unread increment out to
// every channel member except the sender, all inside one atomic update on
// the channel document.
func (r *DepartmentRepository) SendMessage(ctx context.Context, deptKey string, sender *model.User, msg *model.Message) (*model.Message, error) {
	defer logger.DeferLogDuration("department.SendMessage", time.Now())()
	if err := validateAttachment(msg, r.maxAttachmentBytes); err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}
	dept, err := r.Resolve(ctx, deptKey)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}

	msg.SenderID = sender.ID
	msg.SenderName = sender.Name
	msg.SenderAvatar = sender.Avatar
	msg.SenderDepartment = sender.Department
	data, err := docstore.DataFrom(msg)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}
	data["departmentId"] = dept.ID
	data["createdAt"] = docstore.ServerTimestamp()
	msgID, err := r.store.Create(ctx, ColDepartmentMessages, "", data)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}
	msg.ID = msgID

	recipients, err := r.recipients(ctx, dept, sender.ID)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}
	fields := map[string]any{
		"lastMessage": map[string]any{
			"text":       previewText(msg),
			"senderId":   sender.ID,
			"senderName": sender.Name,
			"timestamp":  docstore.ServerTimestamp(),
		},
		"updatedAt": docstore.ServerTimestamp(),
	}
	for _, uid := range recipients {
		fields["unreadCount."+uid] = docstore.Increment(1)
	}
	if err := r.store.Update(ctx, ColDepartments, dept.ID, fields); err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}

	stored, err := r.store.Get(ctx, ColDepartmentMessages, msgID)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}
	if err := stored.DataTo(msg); err != nil {
		return nil, fmt.Errorf("departmentRepo.SendMessage: %w", err)
	}
	msg.ID = msgID
	return msg, nil
}

// recipients: для публичного канала — вся компания, для отдела — его
// сотрудники (по слагу или старому имени); отправитель исключается всегда.
func (r *DepartmentRepository) recipients(ctx context.Context, dept *model.Department, senderID string) ([]string, error) {
	var users []model.User
	var err error
	if dept.Type == model.DepartmentTypePublic {
		users, err = r.users.List(ctx)
	} else {
		users, err = r.users.ListByDepartment(ctx, dept.ID, dept.Name)
	}
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID != senderID {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

// Messages returns the latest limit channel messages in chronological order.
func (r *DepartmentRepository) Messages(ctx context.Context, deptKey string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("department.Messages", time.Now())()
	dept, err := r.Resolve(ctx, deptKey)
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.Messages: %w", err)
	}
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColDepartmentMessages,
		Filters:    []docstore.Filter{docstore.Where("departmentId", docstore.OpEqual, dept.ID)},
		OrderField: "createdAt",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("departmentRepo.Messages: %w", err)
	}
	out := make([]model.Message, len(docs))
	for i, d := range docs {
		m := model.Message{}
		if err := d.DataTo(&m); err != nil {
			return nil, fmt.Errorf("departmentRepo.Messages: decode %s: %w", d.ID, err)
		}
		m.ID = d.ID
		out[len(docs)-1-i] = m
	}
	return out, nil
}

// Message fetches a single channel message. The returned message keeps its
// departmentId so callers can check it belongs to the expected channel.
func (r *DepartmentRepository) Message(ctx context.Context, deptID, msgID string) (*model.Message, error) {
	defer logger.DeferLogDuration("department.Message", time.Now())()
	doc, err := r.store.Get(ctx, ColDepartmentMessages, msgID)
	if err != nil {
		return nil, mapStoreErr(fmt.Errorf("departmentRepo.Message: %w", err))
	}
	if got, _ := doc.Data["departmentId"].(string); got != deptID {
		return nil, fmt.Errorf("departmentRepo.Message: %w", ErrNotFound)
	}
	m := &model.Message{}
	if err := doc.DataTo(m); err != nil {
		return nil, fmt.Errorf("departmentRepo.Message: %w", err)
	}
	m.ID = doc.ID
	return m, nil
}

// MarkAsRead zeroes the caller's unread counter for the channel.
func (r *DepartmentRepository) MarkAsRead(ctx context.Context, deptKey, userID string) error {
	defer logger.DeferLogDuration("department.MarkAsRead", time.Now())()
	dept, err := r.Resolve(ctx, deptKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("departmentRepo.MarkAsRead: %w", err)
	}
	if err := r.store.Update(ctx, ColDepartments, dept.ID, map[string]any{
		"unreadCount." + userID: 0,
	}); err != nil {
		return fmt.Errorf("departmentRepo.MarkAsRead: %w", err)
	}
	return nil
}

func decodeDepartment(doc *docstore.Document) (*model.Department, error) {
	d := &model.Department{}
	if err := doc.DataTo(d); err != nil {
		return nil, fmt.Errorf("departmentRepo: decode %s: %w", doc.ID, err)
	}
	d.ID = doc.ID
	return d, nil
}
