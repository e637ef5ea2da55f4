package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
)

type PinnedRepository struct {
	store docstore.Store
}

func NewPinnedRepository(store docstore.Store) *PinnedRepository {
	return &PinnedRepository{store: store}
}

// Pin records the message as pinned in its channel. The (departmentId,
// messageId) pair is unique: pinning twice returns ErrAlreadyExists.
func (r *PinnedRepository) Pin(ctx context.Context, pinner *model.User, deptID string, msg *model.Message) (*model.PinnedMessage, error) {
	defer logger.DeferLogDuration("pinned.Pin", time.Now())()
	existing, err := r.store.Query(ctx, docstore.Query{
		Collection: ColPinnedMessages,
		Filters: []docstore.Filter{
			docstore.Where("departmentId", docstore.OpEqual, deptID),
			docstore.Where("messageId", docstore.OpEqual, msg.ID),
		},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("pinnedRepo.Pin: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("pinnedRepo.Pin: %w", ErrAlreadyExists)
	}

	p := &model.PinnedMessage{
		DepartmentID: deptID,
		MessageID:    msg.ID,
		MessageText:  previewText(msg),
		SenderID:     msg.SenderID,
		SenderName:   msg.SenderName,
		PinnedBy:     pinner.ID,
	}
	data, err := docstore.DataFrom(p)
	if err != nil {
		return nil, fmt.Errorf("pinnedRepo.Pin: %w", err)
	}
	data["pinnedAt"] = docstore.ServerTimestamp()
	id, err := r.store.Create(ctx, ColPinnedMessages, "", data)
	if err != nil {
		return nil, fmt.Errorf("pinnedRepo.Pin: %w", err)
	}
	p.ID = id
	return p, nil
}

func (r *PinnedRepository) Unpin(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("pinned.Unpin", time.Now())()
	if err := r.store.Delete(ctx, ColPinnedMessages, id); err != nil {
		return fmt.Errorf("pinnedRepo.Unpin: %w", err)
	}
	return nil
}

func (r *PinnedRepository) Get(ctx context.Context, id string) (*model.PinnedMessage, error) {
	defer logger.DeferLogDuration("pinned.Get", time.Now())()
	doc, err := r.store.Get(ctx, ColPinnedMessages, id)
	if err != nil {
		return nil, mapStoreErr(fmt.Errorf("pinnedRepo.Get: %w", err))
	}
	p := &model.PinnedMessage{}
	if err := doc.DataTo(p); err != nil {
		return nil, fmt.Errorf("pinnedRepo.Get: %w", err)
	}
	p.ID = doc.ID
	return p, nil
}

// ListByDepartment returns the channel's pins, newest first.
func (r *PinnedRepository) ListByDepartment(ctx context.Context, deptID string) ([]model.PinnedMessage, error) {
	defer logger.DeferLogDuration("pinned.ListByDepartment", time.Now())()
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColPinnedMessages,
		Filters:    []docstore.Filter{docstore.Where("departmentId", docstore.OpEqual, deptID)},
		OrderField: "pinnedAt",
		Desc:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinnedRepo.ListByDepartment: %w", err)
	}
	out := make([]model.PinnedMessage, 0, len(docs))
	for _, d := range docs {
		p := model.PinnedMessage{}
		if err := d.DataTo(&p); err != nil {
			return nil, fmt.Errorf("pinnedRepo.ListByDepartment: decode %s: %w", d.ID, err)
		}
		p.ID = d.ID
		out = append(out, p)
	}
	return out, nil
}
