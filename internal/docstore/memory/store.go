// Package memory — документное хранилище в памяти процесса. Используется в
// тестах и в -dev запусках без Postgres; семантика операций общая с
// postgres-реализацией (docstore.ApplyUpdates / Matches / SortAndLimit).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corpchat/internal/docstore"
)

type subscription struct {
	id    int64
	query docstore.Query
	fn    func([]docstore.Document)
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any

	subMu   sync.Mutex
	subs    map[int64]*subscription
	nextSub int64

	clock func() time.Time
}

var _ docstore.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		collections: make(map[string]map[string]map[string]any),
		subs:        make(map[int64]*subscription),
		clock:       time.Now,
	}
}

// NewWithClock фиксирует часы хранилища; нужен тестам на ServerTimestamp.
func NewWithClock(clock func() time.Time) *Store {
	s := New()
	s.clock = clock
	return s
}

func (s *Store) Create(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	normalized, err := docstore.Normalize(data, s.clock())
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	col := s.collections[collection]
	if col == nil {
		col = make(map[string]map[string]any)
		s.collections[collection] = col
	}
	col[id] = normalized
	s.mu.Unlock()
	s.notify(collection)
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return &docstore.Document{ID: id, Data: cloneData(data)}, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	s.mu.Lock()
	data, ok := s.collections[collection][id]
	if !ok {
		s.mu.Unlock()
		return docstore.ErrNotFound
	}
	if err := docstore.ApplyUpdates(data, fields, s.clock()); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	col, ok := s.collections[collection]
	if ok {
		delete(col, id)
	}
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryLocked(q)
}

func (s *Store) queryLocked(q docstore.Query) ([]docstore.Document, error) {
	var docs []docstore.Document
	for id, data := range s.collections[q.Collection] {
		ok, err := docstore.Matches(data, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, docstore.Document{ID: id, Data: cloneData(data)})
		}
	}
	// детерминированный порядок при равных ключах сортировки
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docstore.SortAndLimit(docs, q), nil
}

func (s *Store) BatchDelete(ctx context.Context, q docstore.Query) (int, error) {
	s.mu.Lock()
	var ids []string
	for id, data := range s.collections[q.Collection] {
		ok, err := docstore.Matches(data, q.Filters)
		if err != nil {
			s.mu.Unlock()
			return 0, err
		}
		if ok {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		delete(s.collections[q.Collection], id)
	}
	s.mu.Unlock()
	if len(ids) > 0 {
		s.notify(q.Collection)
	}
	return len(ids), nil
}

func (s *Store) Subscribe(ctx context.Context, q docstore.Query, fn func([]docstore.Document)) (docstore.Unsubscribe, error) {
	initial, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	s.subMu.Lock()
	s.nextSub++
	sub := &subscription{id: s.nextSub, query: q, fn: fn}
	s.subs[sub.id] = sub
	s.subMu.Unlock()

	fn(initial)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, sub.id)
			s.subMu.Unlock()
		})
	}, nil
}

// notify перезапускает все live-запросы коллекции после изменения.
func (s *Store) notify(collection string) {
	s.subMu.Lock()
	var touched []*subscription
	for _, sub := range s.subs {
		if sub.query.Collection == collection {
			touched = append(touched, sub)
		}
	}
	s.subMu.Unlock()

	for _, sub := range touched {
		s.mu.RLock()
		docs, err := s.queryLocked(sub.query)
		s.mu.RUnlock()
		if err != nil {
			continue
		}
		sub.fn(docs)
	}
}

type memTx struct {
	store   *Store
	backups map[string]map[string]map[string]any
	touched map[string]bool
}

func (t *memTx) backup(collection string) {
	if _, ok := t.backups[collection]; ok {
		return
	}
	col := t.store.collections[collection]
	cp := make(map[string]map[string]any, len(col))
	for id, data := range col {
		cp[id] = cloneData(data)
	}
	t.backups[collection] = cp
}

func (t *memTx) Get(collection, id string) (*docstore.Document, error) {
	data, ok := t.store.collections[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return &docstore.Document{ID: id, Data: cloneData(data)}, nil
}

func (t *memTx) Set(collection, id string, data map[string]any) error {
	normalized, err := docstore.Normalize(data, t.store.clock())
	if err != nil {
		return err
	}
	t.backup(collection)
	col := t.store.collections[collection]
	if col == nil {
		col = make(map[string]map[string]any)
		t.store.collections[collection] = col
	}
	col[id] = normalized
	t.touched[collection] = true
	return nil
}

func (t *memTx) Update(collection, id string, fields map[string]any) error {
	if _, ok := t.store.collections[collection][id]; !ok {
		return docstore.ErrNotFound
	}
	t.backup(collection)
	if err := docstore.ApplyUpdates(t.store.collections[collection][id], fields, t.store.clock()); err != nil {
		return err
	}
	t.touched[collection] = true
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	t.backup(collection)
	if col, ok := t.store.collections[collection]; ok {
		delete(col, id)
	}
	t.touched[collection] = true
	return nil
}

// RunTransaction держит эксклюзивную блокировку хранилища на время fn; при
// ошибке восстанавливает затронутые коллекции из резервных копий.
func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	s.mu.Lock()
	tx := &memTx{
		store:   s,
		backups: make(map[string]map[string]map[string]any),
		touched: make(map[string]bool),
	}
	err := fn(tx)
	if err != nil {
		for collection, backup := range tx.backups {
			s.collections[collection] = backup
		}
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	for collection := range tx.touched {
		s.notify(collection)
	}
	return nil
}

func (s *Store) Close() error {
	s.subMu.Lock()
	s.subs = make(map[int64]*subscription)
	s.subMu.Unlock()
	return nil
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch tv := v.(type) {
	case map[string]any:
		return cloneData(tv)
	case []any:
		out := make([]any, len(tv))
		for i, el := range tv {
			out[i] = cloneValue(el)
		}
		return out
	default:
		return v
	}
}
