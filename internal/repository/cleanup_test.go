package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/docstore/memory"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
	memstorage "github.com/corpchat/internal/storage/memory"
)

// populateAccount создаёт пользователя со следами во всех коллекциях.
func populateAccount(t *testing.T, store *memory.Store, users *repository.UserRepository) {
	t.Helper()
	ctx := context.Background()

	mustCreateUser(t, users, &model.User{ID: "victim", Name: "Victim", Role: model.RoleManager, Department: "engineering"})
	mustCreateUser(t, users, &model.User{ID: "peer", Name: "Peer", Role: model.RoleEmployee, Department: "engineering"})

	convs := repository.NewConversationRepository(store, 0)
	victim := &model.User{ID: "victim", Name: "Victim"}
	peer := &model.User{ID: "peer", Name: "Peer"}
	conv, _ := convs.GetOrCreate(ctx, victim, peer)
	convs.SendMessage(ctx, conv.ID, victim, &model.Message{Text: "hi", Type: model.MessageTypeText})

	depts := repository.NewDepartmentRepository(store, users, 0)
	if err := depts.Seed(ctx); err != nil {
		t.Fatal(err)
	}
	if err := depts.AssignManager(ctx, "engineering", &model.User{ID: "victim", Name: "Victim"}); err != nil {
		t.Fatal(err)
	}
	depts.SendMessage(ctx, "engineering", &model.User{ID: "victim", Name: "Victim", Department: "engineering"},
		&model.Message{Text: "channel", Type: model.MessageTypeText})

	polls := repository.NewPollRepository(store)
	p := &model.Poll{DepartmentID: "engineering", Question: "?", Options: []model.PollOption{{Text: "a"}, {Text: "b"}}}
	polls.Create(ctx, victim, p)
	polls.Vote(ctx, p.ID, "victim", 1)
	polls.Vote(ctx, p.ID, "peer", 2)

	anns := repository.NewAnnouncementRepository(store)
	anns.Create(ctx, victim, &model.Announcement{Title: "bye", Content: "c", Scope: model.ScopeDepartment, TargetDepartments: []string{"engineering"}})

	// чужое объявление, прочитанное жертвой: само переживает чистку,
	// отметка о прочтении — нет
	peerAnn := &model.Announcement{Title: "stays", Content: "c", Scope: model.ScopeDepartment, TargetDepartments: []string{"engineering"}}
	anns.Create(ctx, peer, peerAnn)
	if err := anns.MarkRead(ctx, peerAnn.ID, "victim"); err != nil {
		t.Fatal(err)
	}
	if err := anns.MarkRead(ctx, peerAnn.ID, "peer"); err != nil {
		t.Fatal(err)
	}

	tasks := repository.NewTaskRepository(store)
	tasks.Create(ctx, victim, &model.Task{DepartmentID: "engineering", Title: "t", AssignedTo: "peer"})

	pins := repository.NewPinnedRepository(store)
	pins.Pin(ctx, victim, "engineering", &model.Message{ID: "mx", Text: "pin", Type: model.MessageTypeText})
}

func countDocs(t *testing.T, store *memory.Store, collection string) int {
	t.Helper()
	docs, err := store.Query(context.Background(), docstore.Query{Collection: collection})
	if err != nil {
		t.Fatal(err)
	}
	return len(docs)
}

func TestCleanupRemovesAllTraces(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	users := repository.NewUserRepository(store)
	populateAccount(t, store, users)
	sessions := memstorage.New()
	sessions.SetSession(ctx, "tok", "victim")

	cleanup := repository.NewCleanupRepository(store, sessions)
	if err := cleanup.Run(ctx, "victim"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if _, err := users.GetByID(ctx, "victim"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("user survived: %v", err)
	}
	if n := countDocs(t, store, repository.ColConversations); n != 0 {
		t.Errorf("conversations left: %d", n)
	}
	if n := countDocs(t, store, repository.ColMessages); n != 0 {
		t.Errorf("messages left: %d", n)
	}
	// собственные объявления жертвы удалены, чужое осталось без её отметки
	anns := repository.NewAnnouncementRepository(store)
	peerUser := &model.User{ID: "peer", Role: model.RoleEmployee, Department: "engineering"}
	visible, err := anns.ListVisible(ctx, peerUser)
	if err != nil {
		t.Fatalf("ListVisible: %v", err)
	}
	if len(visible) != 1 || visible[0].Title != "stays" {
		t.Fatalf("announcements = %v", visible)
	}
	if got := visible[0].ReadBy; len(got) != 1 || got[0] != "peer" {
		t.Errorf("readBy = %v", got)
	}
	if n := countDocs(t, store, repository.ColTasks); n != 0 {
		t.Errorf("tasks left: %d", n)
	}
	if n := countDocs(t, store, repository.ColPinnedMessages); n != 0 {
		t.Errorf("pins left: %d", n)
	}
	if uid, _ := sessions.GetSession(ctx, "tok"); uid != "" {
		t.Error("session survived")
	}

	// чужие данные не тронуты: голос peer остался, сам peer жив
	polls := repository.NewPollRepository(store)
	ps, _ := polls.ListByDepartment(ctx, "engineering")
	if len(ps) != 1 {
		t.Fatalf("polls = %d", len(ps))
	}
	if ps[0].VoteOf("victim") != 0 {
		t.Error("victim vote survived")
	}
	if ps[0].VoteOf("peer") != 2 {
		t.Error("peer vote lost")
	}
	if _, err := users.GetByID(ctx, "peer"); err != nil {
		t.Errorf("peer lost: %v", err)
	}

	// счётчик жертвы вычищен из документов каналов, слот менеджера свободен
	depts := repository.NewDepartmentRepository(store, users, 0)
	d, _ := depts.Resolve(ctx, "engineering")
	if _, ok := d.UnreadCount["victim"]; ok {
		t.Error("victim unread counter survived")
	}
	if d.ManagerID != "" || d.ManagerName != "" {
		t.Errorf("manager slot survived: %q / %q", d.ManagerID, d.ManagerName)
	}
}

func TestCleanupIdempotentAndResumable(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	users := repository.NewUserRepository(store)
	populateAccount(t, store, users)
	sessions := memstorage.New()

	cleanup := repository.NewCleanupRepository(store, sessions)
	if err := cleanup.Run(ctx, "victim"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// повторный прогон завершённого job'а — no-op
	if err := cleanup.Run(ctx, "victim"); err != nil {
		t.Fatalf("Run twice: %v", err)
	}

	// прерванный прогон возобновляется по чеклисту
	job, err := store.Get(ctx, repository.ColCleanupJobs, "cleanup_victim")
	if err != nil {
		t.Fatalf("job doc: %v", err)
	}
	steps, _ := job.Data["steps"].(map[string]any)
	if len(steps) == 0 {
		t.Fatal("job has no recorded steps")
	}
	if job.Data["finishedAt"] == nil {
		t.Error("job not marked finished")
	}
}

// flakyStore прокидывает всё в память, но роняет удаление задач, пока
// взведён failTasks.
type flakyStore struct {
	*memory.Store
	failTasks bool
}

func (s *flakyStore) BatchDelete(ctx context.Context, q docstore.Query) (int, error) {
	if s.failTasks && q.Collection == repository.ColTasks {
		return 0, errors.New("tasks unavailable")
	}
	return s.Store.BatchDelete(ctx, q)
}

func TestCleanupContinuesPastFailedStep(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	store := &flakyStore{Store: mem, failTasks: true}
	users := repository.NewUserRepository(mem)
	populateAccount(t, mem, users)
	sessions := memstorage.New()

	cleanup := repository.NewCleanupRepository(store, sessions)
	if err := cleanup.Run(ctx, "victim"); err == nil {
		t.Fatal("Run swallowed the failed step")
	}

	// упавший шаг не остановил каскад: задачи остались, но более поздние
	// шаги выполнились и документ пользователя удалён
	if n := countDocs(t, mem, repository.ColTasks); n == 0 {
		t.Error("tasks deleted despite failing step")
	}
	if _, err := users.GetByID(ctx, "victim"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("user survived: %v", err)
	}
	job, err := mem.Get(ctx, repository.ColCleanupJobs, "cleanup_victim")
	if err != nil {
		t.Fatalf("job doc: %v", err)
	}
	if job.Data["finishedAt"] != nil {
		t.Error("job marked finished with a failed step")
	}

	// повторный прогон доделывает только упавший шаг
	store.failTasks = false
	if err := cleanup.Run(ctx, "victim"); err != nil {
		t.Fatalf("resumed Run: %v", err)
	}
	if n := countDocs(t, mem, repository.ColTasks); n != 0 {
		t.Errorf("tasks left after resume: %d", n)
	}
	job, _ = mem.Get(ctx, repository.ColCleanupJobs, "cleanup_victim")
	if job.Data["finishedAt"] == nil {
		t.Error("job not finished after resume")
	}
}
