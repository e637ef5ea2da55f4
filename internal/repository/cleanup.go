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
	"github.com/corpchat/internal/storage"
)

// CleanupRepository removes every trace of an account. The run is a saga: the
// step checklist is persisted in cleanup_jobs, so a crashed run resumes where
// it stopped and a finished run is a no-op.
type CleanupRepository struct {
	store    docstore.Store
	sessions storage.SessionStore
}

func NewCleanupRepository(store docstore.Store, sessions storage.SessionStore) *CleanupRepository {
	return &CleanupRepository{store: store, sessions: sessions}
}

// Порядок шагов фиксирован: сначала зависимые данные, документ пользователя —
// последним, чтобы прерванный прогон всегда можно было повторить по job'у.
var cleanupSteps = []string{
	"delete_messages",
	"delete_conversations",
	"delete_department_messages",
	"remove_poll_votes",
	"delete_announcements",
	"remove_announcement_reads",
	"delete_tasks",
	"delete_pins",
	"clear_department_counters",
	"clear_manager_fields",
	"delete_sessions",
	"delete_credentials",
	"delete_user",
}

type cleanupJob struct {
	UserID     string          `json:"userId"`
	Steps      map[string]bool `json:"steps"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Run executes the cascade for the user. Safe to call repeatedly. A failing
// step is logged and left unchecked in the job, the remaining steps still
// run; the next Run retries only what failed.
func (r *CleanupRepository) Run(ctx context.Context, userID string) error {
	defer logger.DeferLogDuration("cleanup.Run", time.Now())()
	jobID := "cleanup_" + userID
	job, err := r.loadJob(ctx, jobID, userID)
	if err != nil {
		return fmt.Errorf("cleanupRepo.Run: %w", err)
	}
	if job.FinishedAt != nil {
		return nil
	}

	var failed []string
	for _, step := range cleanupSteps {
		if job.Steps[step] {
			continue
		}
		if err := r.runStep(ctx, step, userID); err != nil {
			logger.Errorf("cleanup %s: step %s: %v", userID, step, err)
			failed = append(failed, step)
			continue
		}
		if err := r.store.Update(ctx, ColCleanupJobs, jobID, map[string]any{
			"steps." + step: true,
		}); err != nil {
			logger.Errorf("cleanup %s: checkpoint %s: %v", userID, step, err)
			failed = append(failed, step)
			continue
		}
		logger.Debugf("cleanup %s: step %s done", userID, step)
	}
	if len(failed) > 0 {
		return fmt.Errorf("cleanupRepo.Run: steps failed: %s", strings.Join(failed, ", "))
	}

	if err := r.store.Update(ctx, ColCleanupJobs, jobID, map[string]any{
		"finishedAt": docstore.ServerTimestamp(),
	}); err != nil {
		return fmt.Errorf("cleanupRepo.Run: finish: %w", err)
	}
	logger.Infof("cleanup finished for user %s", userID)
	return nil
}

func (r *CleanupRepository) loadJob(ctx context.Context, jobID, userID string) (*cleanupJob, error) {
	doc, err := r.store.Get(ctx, ColCleanupJobs, jobID)
	if err == nil {
		job := &cleanupJob{}
		if err := doc.DataTo(job); err != nil {
			return nil, err
		}
		if job.Steps == nil {
			job.Steps = map[string]bool{}
		}
		return job, nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return nil, err
	}
	if _, err := r.store.Create(ctx, ColCleanupJobs, jobID, map[string]any{
		"userId":    userID,
		"steps":     map[string]any{},
		"startedAt": docstore.ServerTimestamp(),
	}); err != nil {
		return nil, err
	}
	return &cleanupJob{UserID: userID, Steps: map[string]bool{}}, nil
}

func (r *CleanupRepository) runStep(ctx context.Context, step, userID string) error {
	switch step {
	case "delete_messages":
		convs, err := r.userConversations(ctx, userID)
		if err != nil {
			return err
		}
		for _, convID := range convs {
			if _, err := r.store.BatchDelete(ctx, docstore.Query{
				Collection: ColMessages,
				Filters:    []docstore.Filter{docstore.Where("conversationId", docstore.OpEqual, convID)},
			}); err != nil {
				return err
			}
		}
		return nil

	case "delete_conversations":
		_, err := r.store.BatchDelete(ctx, docstore.Query{
			Collection: ColConversations,
			Filters:    []docstore.Filter{docstore.Where("members", docstore.OpArrayContains, userID)},
		})
		return err

	case "delete_department_messages":
		_, err := r.store.BatchDelete(ctx, docstore.Query{
			Collection: ColDepartmentMessages,
			Filters:    []docstore.Filter{docstore.Where("senderId", docstore.OpEqual, userID)},
		})
		return err

	case "remove_poll_votes":
		docs, err := r.store.Query(ctx, docstore.Query{Collection: ColPolls})
		if err != nil {
			return err
		}
		for _, d := range docs {
			p := model.Poll{}
			if err := d.DataTo(&p); err != nil {
				return err
			}
			if p.VoteOf(userID) == 0 {
				continue
			}
			for i := range p.Options {
				votes := []string{}
				for _, v := range p.Options[i].Votes {
					if v != userID {
						votes = append(votes, v)
					}
				}
				p.Options[i].Votes = votes
			}
			opts, err := docstore.DataFrom(struct {
				Options []model.PollOption `json:"options"`
			}{Options: p.Options})
			if err != nil {
				return err
			}
			if err := r.store.Update(ctx, ColPolls, d.ID, map[string]any{
				"options": opts["options"],
			}); err != nil {
				return err
			}
		}
		return nil

	case "delete_announcements":
		_, err := r.store.BatchDelete(ctx, docstore.Query{
			Collection: ColAnnouncements,
			Filters:    []docstore.Filter{docstore.Where("createdBy", docstore.OpEqual, userID)},
		})
		return err

	case "remove_announcement_reads":
		docs, err := r.store.Query(ctx, docstore.Query{
			Collection: ColAnnouncements,
			Filters:    []docstore.Filter{docstore.Where("readBy", docstore.OpArrayContains, userID)},
		})
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := r.store.Update(ctx, ColAnnouncements, d.ID, map[string]any{
				"readBy": docstore.ArrayRemove(userID),
			}); err != nil {
				return err
			}
		}
		return nil

	case "delete_tasks":
		if _, err := r.store.BatchDelete(ctx, docstore.Query{
			Collection: ColTasks,
			Filters:    []docstore.Filter{docstore.Where("assignedTo", docstore.OpEqual, userID)},
		}); err != nil {
			return err
		}
		_, err := r.store.BatchDelete(ctx, docstore.Query{
			Collection: ColTasks,
			Filters:    []docstore.Filter{docstore.Where("assignedBy", docstore.OpEqual, userID)},
		})
		return err

	case "delete_pins":
		_, err := r.store.BatchDelete(ctx, docstore.Query{
			Collection: ColPinnedMessages,
			Filters:    []docstore.Filter{docstore.Where("pinnedBy", docstore.OpEqual, userID)},
		})
		return err

	case "clear_department_counters":
		docs, err := r.store.Query(ctx, docstore.Query{Collection: ColDepartments})
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := r.store.Update(ctx, ColDepartments, d.ID, map[string]any{
				"unreadCount." + userID: docstore.DeleteField(),
				"typing." + userID:      docstore.DeleteField(),
			}); err != nil {
				return err
			}
		}
		return nil

	case "clear_manager_fields":
		docs, err := r.store.Query(ctx, docstore.Query{
			Collection: ColDepartments,
			Filters:    []docstore.Filter{docstore.Where("managerId", docstore.OpEqual, userID)},
		})
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := r.store.Update(ctx, ColDepartments, d.ID, map[string]any{
				"managerId":   docstore.DeleteField(),
				"managerName": docstore.DeleteField(),
			}); err != nil {
				return err
			}
		}
		return nil

	case "delete_sessions":
		if err := r.sessions.DeleteUserSessions(ctx, userID); err != nil {
			return err
		}
		return r.sessions.DeletePushSubscriptions(ctx, userID)

	case "delete_credentials":
		err := r.store.Delete(ctx, ColCredentials, userID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err

	case "delete_user":
		err := r.store.Delete(ctx, ColUsers, userID)
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown cleanup step %q", step)
}

func (r *CleanupRepository) userConversations(ctx context.Context, userID string) ([]string, error) {
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColConversations,
		Filters:    []docstore.Filter{docstore.Where("members", docstore.OpArrayContains, userID)},
	})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	return ids, nil
}
