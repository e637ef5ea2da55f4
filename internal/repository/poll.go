package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
)

type PollRepository struct {
	store docstore.Store
}

func NewPollRepository(store docstore.Store) *PollRepository {
	return &PollRepository{store: store}
}

var (
	ErrPollClosed    = errors.New("poll closed")
	ErrUnknownOption = errors.New("unknown poll option")
	ErrTooFewOptions = errors.New("poll requires at least two options")
)

func (r *PollRepository) Create(ctx context.Context, creator *model.User, p *model.Poll) error {
	defer logger.DeferLogDuration("poll.Create", time.Now())()
	if len(p.Options) < 2 {
		return fmt.Errorf("pollRepo.Create: %w", ErrTooFewOptions)
	}
	for i := range p.Options {
		p.Options[i].ID = i + 1
		p.Options[i].Votes = []string{}
	}
	p.CreatedBy = creator.ID
	p.CreatedByName = creator.Name
	data, err := docstore.DataFrom(p)
	if err != nil {
		return fmt.Errorf("pollRepo.Create: %w", err)
	}
	data["createdAt"] = docstore.ServerTimestamp()
	data["updatedAt"] = docstore.ServerTimestamp()
	id, err := r.store.Create(ctx, ColPolls, "", data)
	if err != nil {
		return fmt.Errorf("pollRepo.Create: %w", err)
	}
	p.ID = id
	return nil
}

func (r *PollRepository) ListByDepartment(ctx context.Context, deptID string) ([]model.Poll, error) {
	defer logger.DeferLogDuration("poll.ListByDepartment", time.Now())()
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColPolls,
		Filters:    []docstore.Filter{docstore.Where("departmentId", docstore.OpEqual, deptID)},
		OrderField: "createdAt",
		Desc:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("pollRepo.ListByDepartment: %w", err)
	}
	out := make([]model.Poll, 0, len(docs))
	for _, d := range docs {
		p := model.Poll{}
		if err := d.DataTo(&p); err != nil {
			return nil, fmt.Errorf("pollRepo.ListByDepartment: decode %s: %w", d.ID, err)
		}
		p.ID = d.ID
		out = append(out, p)
	}
	return out, nil
}

// Vote moves the user's vote to the chosen option inside a store transaction.
// Single choice: the user id is first removed from every option, then added
// to the chosen one, so two racing votes can never leave a double entry.
func (r *PollRepository) Vote(ctx context.Context, pollID, userID string, optionID int) (*model.Poll, error) {
	defer logger.DeferLogDuration("poll.Vote", time.Now())()
	var voted model.Poll
	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get(ColPolls, pollID)
		if err != nil {
			return mapStoreErr(err)
		}
		p := model.Poll{}
		if err := doc.DataTo(&p); err != nil {
			return err
		}
		p.ID = doc.ID
		if p.ExpiresAt != nil && time.Now().After(*p.ExpiresAt) {
			return ErrPollClosed
		}
		found := false
		for i := range p.Options {
			votes := p.Options[i].Votes[:0]
			for _, v := range p.Options[i].Votes {
				if v != userID {
					votes = append(votes, v)
				}
			}
			p.Options[i].Votes = append([]string{}, votes...)
			if p.Options[i].ID == optionID {
				found = true
				p.Options[i].Votes = append(p.Options[i].Votes, userID)
			}
		}
		if !found {
			return ErrUnknownOption
		}
		opts, err := docstore.DataFrom(struct {
			Options []model.PollOption `json:"options"`
		}{Options: p.Options})
		if err != nil {
			return err
		}
		if err := tx.Update(ColPolls, pollID, map[string]any{
			"options":   opts["options"],
			"updatedAt": docstore.ServerTimestamp(),
		}); err != nil {
			return err
		}
		voted = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pollRepo.Vote: %w", err)
	}
	return &voted, nil
}

func (r *PollRepository) Delete(ctx context.Context, id string) error {
	defer logger.DeferLogDuration("poll.Delete", time.Now())()
	if err := r.store.Delete(ctx, ColPolls, id); err != nil {
		return fmt.Errorf("pollRepo.Delete: %w", err)
	}
	return nil
}
