// Package ws — live-шлюз: клиент подписывается на именованные потоки, сервер
// держит соответствующие live-запросы хранилища и шлёт полный снимок при
// каждом изменении. Записи идут через REST; сокет несёт только подписки и
// индикатор набора текста.
package ws

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/permission"
	"github.com/corpchat/internal/repository"
)

type Hub struct {
	store     docstore.Store
	convs     *repository.ConversationRepository
	depts     *repository.DepartmentRepository
	maxConns  int
	typingTTL time.Duration

	mu      sync.Mutex
	clients map[*Client]struct{}

	// tmu guards typers: convID:userID -> таймер сброса отметки набора.
	// На пару (беседа, пользователь) живёт ровно один таймер; новый кадр
	// typing=true заменяет его, а не добавляет второй.
	tmu    sync.Mutex
	typers map[string]*time.Timer
}

func NewHub(store docstore.Store, convs *repository.ConversationRepository, depts *repository.DepartmentRepository, maxConns int, typingTTL time.Duration) *Hub {
	if typingTTL <= 0 {
		typingTTL = 3 * time.Second
	}
	return &Hub{
		store:     store,
		convs:     convs,
		depts:     depts,
		maxConns:  maxConns,
		typingTTL: typingTTL,
		clients:   make(map[*Client]struct{}),
		typers:    make(map[string]*time.Timer),
	}
}

// Run блокируется до отмены ctx, затем закрывает все соединения.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
	for _, c := range clients {
		c.Wait()
	}
	logger.Info("ws hub drained")
}

// Register создаёт клиента для принятого соединения. Превышение лимита
// соединений закрывает новое, а не старые.
func (h *Hub) Register(conn *websocket.Conn, user *model.User) (*Client, error) {
	h.mu.Lock()
	if h.maxConns > 0 && len(h.clients) >= h.maxConns {
		h.mu.Unlock()
		return nil, fmt.Errorf("ws: connection limit reached")
	}
	c := newClient(h, conn, user)
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c, nil
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	h.dropTypers(c.user.ID)
	c.Close()
}

// HandleMessage обрабатывает входящий кадр клиента.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	switch msg.Type {
	case EventSubscribe:
		h.subscribe(ctx, c, msg.Stream, msg.Target)
	case EventUnsubscribe:
		c.removeSubscription(subKey(msg.Stream, msg.Target))
	case EventTyping:
		h.typing(ctx, c, msg.Target, msg.Typing)
	default:
		c.enqueue(OutgoingMessage{Type: EventError, Payload: ErrorPayload{Error: "unknown message type"}})
	}
}

func subKey(stream Stream, target string) string {
	return string(stream) + ":" + target
}

func (h *Hub) subscribe(ctx context.Context, c *Client, stream Stream, target string) {
	q, keep, err := h.streamQuery(ctx, c.user, stream, target)
	if err != nil {
		c.enqueue(OutgoingMessage{Type: EventError, Payload: ErrorPayload{Stream: stream, Target: target, Error: err.Error()}})
		return
	}
	fn := func(docs []docstore.Document) {
		items := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			if keep != nil && !keep(d) {
				continue
			}
			item := make(map[string]any, len(d.Data)+1)
			for k, v := range d.Data {
				item[k] = v
			}
			item["id"] = d.ID
			items = append(items, item)
		}
		c.enqueue(OutgoingMessage{
			Type:    EventSnapshot,
			Payload: SnapshotPayload{Stream: stream, Target: target, Items: items},
		})
	}
	unsub, err := h.store.Subscribe(ctx, q, fn)
	if err != nil {
		logger.Errorf("ws subscribe %s user=%s: %v", stream, c.user.ID, err)
		c.enqueue(OutgoingMessage{Type: EventError, Payload: ErrorPayload{Stream: stream, Target: target, Error: "subscribe failed"}})
		return
	}
	c.addSubscription(subKey(stream, target), unsub)
}

// streamQuery строит запрос потока и дофильтр видимости. Ошибка — поток
// неизвестен или пользователю не разрешён.
func (h *Hub) streamQuery(ctx context.Context, u *model.User, stream Stream, target string) (docstore.Query, func(docstore.Document) bool, error) {
	switch stream {
	case StreamConversations:
		return docstore.Query{
			Collection: repository.ColConversations,
			Filters:    []docstore.Filter{docstore.Where("members", docstore.OpArrayContains, u.ID)},
			OrderField: "updatedAt",
			Desc:       true,
		}, nil, nil

	case StreamMessages:
		conv, err := h.convs.Get(ctx, target)
		if err != nil {
			return docstore.Query{}, nil, fmt.Errorf("conversation not found")
		}
		if !contains(conv.Members, u.ID) {
			return docstore.Query{}, nil, fmt.Errorf("not a member")
		}
		return docstore.Query{
			Collection: repository.ColMessages,
			Filters:    []docstore.Filter{docstore.Where("conversationId", docstore.OpEqual, target)},
			OrderField: "createdAt",
			Desc:       true,
			Limit:      500,
		}, nil, nil

	case StreamDepartments:
		user := u
		return docstore.Query{
			Collection: repository.ColDepartments,
			OrderField: "name",
		}, func(d docstore.Document) bool { return h.departmentDocVisible(user, d) }, nil

	case StreamDepartmentMessages:
		if err := h.requireDeptVisible(ctx, u, target); err != nil {
			return docstore.Query{}, nil, err
		}
		return docstore.Query{
			Collection: repository.ColDepartmentMessages,
			Filters:    []docstore.Filter{docstore.Where("departmentId", docstore.OpEqual, target)},
			OrderField: "createdAt",
			Desc:       true,
			Limit:      500,
		}, nil, nil

	case StreamAnnouncements:
		user := u
		return docstore.Query{
			Collection: repository.ColAnnouncements,
			OrderField: "createdAt",
			Desc:       true,
		}, func(d docstore.Document) bool {
			a := model.Announcement{}
			if err := d.DataTo(&a); err != nil {
				return false
			}
			return permission.CanViewAnnouncement(user, &a)
		}, nil

	case StreamPolls:
		if err := h.requireDeptVisible(ctx, u, target); err != nil {
			return docstore.Query{}, nil, err
		}
		return docstore.Query{
			Collection: repository.ColPolls,
			Filters:    []docstore.Filter{docstore.Where("departmentId", docstore.OpEqual, target)},
			OrderField: "createdAt",
			Desc:       true,
		}, nil, nil

	case StreamPinned:
		if err := h.requireDeptVisible(ctx, u, target); err != nil {
			return docstore.Query{}, nil, err
		}
		return docstore.Query{
			Collection: repository.ColPinnedMessages,
			Filters:    []docstore.Filter{docstore.Where("departmentId", docstore.OpEqual, target)},
			OrderField: "pinnedAt",
			Desc:       true,
		}, nil, nil

	case StreamTasks:
		return docstore.Query{
			Collection: repository.ColTasks,
			Filters:    []docstore.Filter{docstore.Where("assignedTo", docstore.OpEqual, u.ID)},
			OrderField: "createdAt",
			Desc:       true,
		}, nil, nil

	case StreamUsers:
		return docstore.Query{
			Collection: repository.ColUsers,
			OrderField: "name",
		}, nil, nil

	default:
		return docstore.Query{}, nil, fmt.Errorf("unknown stream %q", stream)
	}
}

func (h *Hub) requireDeptVisible(ctx context.Context, u *model.User, key string) error {
	dept, err := h.depts.Resolve(ctx, key)
	if err != nil {
		return fmt.Errorf("department not found")
	}
	if dept.Type == model.DepartmentTypePublic || permission.CanViewAllDepartments(u) ||
		strings.EqualFold(u.Department, dept.ID) || strings.EqualFold(u.Department, dept.Name) ||
		permission.IsManagerOfDepartment(u, dept.ID) {
		return nil
	}
	return fmt.Errorf("department not visible")
}

func (h *Hub) departmentDocVisible(u *model.User, d docstore.Document) bool {
	if permission.CanViewAllDepartments(u) {
		return true
	}
	dep := model.Department{}
	if err := d.DataTo(&dep); err != nil {
		return false
	}
	dep.ID = d.ID
	return dep.Type == model.DepartmentTypePublic ||
		strings.EqualFold(u.Department, dep.ID) || strings.EqualFold(u.Department, dep.Name) ||
		permission.IsManagerOfDepartment(u, dep.ID)
}

// typing пробрасывает отметку набора в документ беседы; авторизация — по
// членству. Отметка живёт не дольше typingTTL: таймер заводится на каждый
// кадр typing=true и сам снимает её, если клиент замолчал без typing=false.
func (h *Hub) typing(ctx context.Context, c *Client, convID string, typing bool) {
	conv, err := h.convs.Get(ctx, convID)
	if err != nil {
		return
	}
	if !contains(conv.Members, c.user.ID) {
		return
	}
	if err := h.convs.SetTyping(ctx, convID, c.user.ID, typing); err != nil {
		logger.Errorf("ws typing user=%s conv=%s: %v", c.user.ID, convID, err)
		return
	}

	key := convID + ":" + c.user.ID
	h.tmu.Lock()
	if prev, ok := h.typers[key]; ok {
		prev.Stop()
		delete(h.typers, key)
	}
	if typing {
		userID := c.user.ID
		h.typers[key] = time.AfterFunc(h.typingTTL, func() {
			h.expireTyping(key, convID, userID)
		})
	}
	h.tmu.Unlock()
}

func (h *Hub) expireTyping(key, convID, userID string) {
	h.tmu.Lock()
	delete(h.typers, key)
	h.tmu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.convs.SetTyping(ctx, convID, userID, false); err != nil {
		logger.Errorf("ws typing expire user=%s conv=%s: %v", userID, convID, err)
	}
}

// dropTypers снимает все отметки набора отключившегося пользователя, не
// дожидаясь их таймеров.
func (h *Hub) dropTypers(userID string) {
	suffix := ":" + userID
	h.tmu.Lock()
	var convs []string
	for key, t := range h.typers {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		t.Stop()
		delete(h.typers, key)
		convs = append(convs, strings.TrimSuffix(key, suffix))
	}
	h.tmu.Unlock()
	if len(convs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, convID := range convs {
		if err := h.convs.SetTyping(ctx, convID, userID, false); err != nil {
			logger.Errorf("ws typing drop user=%s conv=%s: %v", userID, convID, err)
		}
	}
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
