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

type AnnouncementRepository struct {
	store docstore.Store
}

func NewAnnouncementRepository(store docstore.Store) *AnnouncementRepository {
	return &AnnouncementRepository{store: store}
}

func (r *AnnouncementRepository) Create(ctx context.Context, creator *model.User, a *model.Announcement) error {
	defer logger.DeferLogDuration("announcement.Create", time.Now())()
	a.CreatedBy = creator.ID
	a.CreatedByName = creator.Name
	if a.Priority == "" {
		a.Priority = model.PriorityNormal
	}
	data, err := docstore.DataFrom(a)
	if err != nil {
		return fmt.Errorf("announcementRepo.Create: %w", err)
	}
	data["readBy"] = []any{}
	data["createdAt"] = docstore.ServerTimestamp()
	id, err := r.store.Create(ctx, ColAnnouncements, "", data)
	if err != nil {
		return fmt.Errorf("announcementRepo.Create: %w", err)
	}
	a.ID = id
	return nil
}

// ListVisible returns announcements the user may see, newest first.
func (r *AnnouncementRepository) ListVisible(ctx context.Context, u *model.User) ([]model.Announcement, error) {
	defer logger.DeferLogDuration("announcement.ListVisible", time.Now())()
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColAnnouncements,
		OrderField: "createdAt",
		Desc:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("announcementRepo.ListVisible: %w", err)
	}
	var out []model.Announcement
	for _, d := range docs {
		a := model.Announcement{}
		if err := d.DataTo(&a); err != nil {
			return nil, fmt.Errorf("announcementRepo.ListVisible: decode %s: %w", d.ID, err)
		}
		a.ID = d.ID
		if permission.CanViewAnnouncement(u, &a) {
			out = append(out, a)
		}
	}
	return out, nil
}

// MarkRead adds the user to the read set. The set only grows; re-reading is
// a no-op thanks to ArrayUnion.
func (r *AnnouncementRepository) MarkRead(ctx context.Context, id, userID string) error {
	defer logger.DeferLogDuration("announcement.MarkRead", time.Now())()
	err := r.store.Update(ctx, ColAnnouncements, id, map[string]any{
		"readBy": docstore.ArrayUnion(userID),
	})
	if err != nil {
		return mapStoreErr(fmt.Errorf("announcementRepo.MarkRead: %w", err))
	}
	return nil
}

// UnreadCount derives the badge: visible announcements the user has not read.
func (r *AnnouncementRepository) UnreadCount(ctx context.Context, u *model.User) (int, error) {
	defer logger.DeferLogDuration("announcement.UnreadCount", time.Now())()
	visible, err := r.ListVisible(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("announcementRepo.UnreadCount: %w", err)
	}
	n := 0
	for i := range visible {
		if !visible[i].IsReadBy(u.ID) {
			n++
		}
	}
	return n, nil
}

func (r *AnnouncementRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("announcement.Delete", time.Now())()
	if err := r.store.Delete(ctx, ColAnnouncements, id); err != nil {
		return fmt.Errorf("announcementRepo.Delete: %w", err)
	}
	return nil
}
