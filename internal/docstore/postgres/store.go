// Package postgres — документное хранилище поверх Postgres: одна таблица
// documents с jsonb-телом, блокировка строк для атомарных операций,
// LISTEN/NOTIFY для live-подписок.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
)

type subscription struct {
	id    int64
	query docstore.Query
	fn    func([]docstore.Document)
}

type Store struct {
	pool  *pgxpool.Pool
	clock func() time.Time

	subMu   sync.Mutex
	subs    map[int64]*subscription
	nextSub int64

	listenCancel context.CancelFunc
	listenDone   chan struct{}
}

var _ docstore.Store = (*Store)(nil)

// New запускает слушателя docstore_changes на выделенном соединении.
// Пул остаётся во владении вызывающего: Close останавливает только слушателя.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{
		pool:       pool,
		clock:      time.Now,
		subs:       make(map[int64]*subscription),
		listenDone: make(chan struct{}),
	}
	listenCtx, cancel := context.WithCancel(context.Background())
	s.listenCancel = cancel
	if err := s.startListener(listenCtx); err != nil {
		cancel()
		close(s.listenDone)
		return nil, err
	}
	return s, nil
}

func (s *Store) Create(ctx context.Context, collection, id string, data map[string]any) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	normalized, err := docstore.Normalize(data, s.clock())
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, body,
	)
	if err != nil {
		return "", fmt.Errorf("docstore: create %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (*docstore.Document, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: get %s/%s: %w", collection, id, err)
	}
	return decodeDocument(collection, id, body)
}

// Update берёт блокировку строки и применяет операции в Go: семантика
// атомарных операций одна на обе реализации (docstore.ApplyUpdates).
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("docstore: begin update %s/%s: %w", collection, id, err)
	}
	defer tx.Rollback(ctx)

	if err := updateInTx(ctx, tx, collection, id, fields, s.clock()); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("docstore: commit update %s/%s: %w", collection, id, err)
	}
	return nil
}

func updateInTx(ctx context.Context, tx pgx.Tx, collection, id string, fields map[string]any, now time.Time) error {
	var body []byte
	err := tx.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: lock %s/%s: %w", collection, id, err)
	}
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
	}
	if err := docstore.ApplyUpdates(data, fields, now); err != nil {
		return err
	}
	updated, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("docstore: encode %s/%s: %w", collection, id, err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE documents SET data = $3, updated_at = now() WHERE collection = $1 AND id = $2`,
		collection, id, updated,
	); err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("docstore: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	// Равенства по верхнеуровневым полям уходят в jsonb-containment; вложенные
	// пути и array-contains дофильтровываются в Go.
	sql := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{q.Collection}
	if contain := containment(q.Filters); len(contain) > 0 {
		body, err := json.Marshal(contain)
		if err != nil {
			return nil, fmt.Errorf("docstore: encode containment: %w", err)
		}
		sql += ` AND data @> $2`
		args = append(args, body)
	}
	sql += ` ORDER BY id`

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.Collection, err)
	}
	defer rows.Close()

	var docs []docstore.Document
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("docstore: scan %s: %w", q.Collection, err)
		}
		doc, err := decodeDocument(q.Collection, id, body)
		if err != nil {
			return nil, err
		}
		ok, err := docstore.Matches(doc.Data, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, *doc)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("docstore: query %s: %w", q.Collection, err)
	}
	return docstore.SortAndLimit(docs, q), nil
}

func (s *Store) BatchDelete(ctx context.Context, q docstore.Query) (int, error) {
	docs, err := s.Query(ctx, q)
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = ANY($2)`,
		q.Collection, ids,
	)
	if err != nil {
		return 0, fmt.Errorf("docstore: batch delete %s: %w", q.Collection, err)
	}
	return int(tag.RowsAffected()), nil
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

type pgTx struct {
	ctx   context.Context
	tx    pgx.Tx
	clock func() time.Time
}

func (t *pgTx) Get(collection, id string) (*docstore.Document, error) {
	var body []byte
	err := t.tx.QueryRow(t.ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2 FOR UPDATE`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("docstore: tx get %s/%s: %w", collection, id, err)
	}
	return decodeDocument(collection, id, body)
}

func (t *pgTx) Set(collection, id string, data map[string]any) error {
	normalized, err := docstore.Normalize(data, t.clock())
	if err != nil {
		return err
	}
	body, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("docstore: tx encode %s/%s: %w", collection, id, err)
	}
	_, err = t.tx.Exec(t.ctx,
		`INSERT INTO documents (collection, id, data, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		collection, id, body,
	)
	if err != nil {
		return fmt.Errorf("docstore: tx set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (t *pgTx) Update(collection, id string, fields map[string]any) error {
	return updateInTx(t.ctx, t.tx, collection, id, fields, t.clock())
}

func (t *pgTx) Delete(collection, id string) error {
	_, err := t.tx.Exec(t.ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	if err != nil {
		return fmt.Errorf("docstore: tx delete %s/%s: %w", collection, id, err)
	}
	return nil
}

func (s *Store) RunTransaction(ctx context.Context, fn func(tx docstore.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("docstore: begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := fn(&pgTx{ctx: ctx, tx: tx, clock: s.clock}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("docstore: commit transaction: %w", err)
	}
	return nil
}

// Close останавливает слушателя уведомлений. Пул закрывает владелец.
func (s *Store) Close() error {
	s.listenCancel()
	<-s.listenDone
	s.subMu.Lock()
	s.subs = make(map[int64]*subscription)
	s.subMu.Unlock()
	return nil
}

// notify перезапускает live-запросы коллекции после NOTIFY.
func (s *Store) notify(ctx context.Context, collection string) {
	s.subMu.Lock()
	var touched []*subscription
	for _, sub := range s.subs {
		if sub.query.Collection == collection {
			touched = append(touched, sub)
		}
	}
	s.subMu.Unlock()

	for _, sub := range touched {
		docs, err := s.Query(ctx, sub.query)
		if err != nil {
			logger.Errorf("docstore: refresh subscription %s: %v", collection, err)
			continue
		}
		sub.fn(docs)
	}
}

func decodeDocument(collection, id string, body []byte) (*docstore.Document, error) {
	var data map[string]any
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("docstore: decode %s/%s: %w", collection, id, err)
	}
	return &docstore.Document{ID: id, Data: data}, nil
}

// containment собирает jsonb-документ из равенств по верхнеуровневым скалярам.
func containment(filters []docstore.Filter) map[string]any {
	out := map[string]any{}
	for _, f := range filters {
		if f.Op != docstore.OpEqual {
			continue
		}
		if containsDot(f.Field) {
			continue
		}
		switch f.Value.(type) {
		case string, bool, float64, int, int64:
			out[f.Field] = f.Value
		}
	}
	return out
}

func containsDot(s string) bool {
	return strings.ContainsRune(s, '.')
}
