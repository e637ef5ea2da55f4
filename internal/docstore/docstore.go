// Package docstore defines the document-store collaborator the chat protocol
// runs on: per-document CRUD in named collections, compound-filtered queries,
// atomic field operations and live subscriptions. Implementations: postgres
// (jsonb over pgx, LISTEN/NOTIFY) and memory (tests and -dev runs).
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("document not found")

type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where is a shorthand for building a filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query — стоячий запрос к одной коллекции. Фильтры соединяются по AND.
type Query struct {
	Collection string
	Filters    []Filter
	OrderField string
	Desc       bool
	Limit      int
}

// Document — документ коллекции. Data содержит только JSON-типы
// (string/float64/bool/map/slice/nil) независимо от бэкенда.
type Document struct {
	ID   string
	Data map[string]any
}

// DataTo unmarshals the document body into v (a pointer to a model struct).
func (d *Document) DataTo(v any) error {
	b, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("docstore: encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("docstore: decode document %s: %w", d.ID, err)
	}
	return nil
}

// DataFrom converts a model struct into a document body.
func DataFrom(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("docstore: encode data: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("docstore: decode data: %w", err)
	}
	return m, nil
}

// --- Atomic field operations ---
// Values of these types inside Create/Update field maps are applied by the
// store without a separate read, per the shared-resource policy: unread
// counters and vote arrays must never go through read-then-write.

type incrementOp struct{ by int64 }

type arrayUnionOp struct{ values []any }

type arrayRemoveOp struct{ values []any }

type deleteFieldOp struct{}

type serverTimestampOp struct{}

// Increment atomically adds n to a numeric field (missing field counts as 0).
func Increment(n int64) any { return incrementOp{by: n} }

// ArrayUnion atomically appends values not already present.
func ArrayUnion(values ...any) any { return arrayUnionOp{values: values} }

// ArrayRemove atomically removes all occurrences of values.
func ArrayRemove(values ...any) any { return arrayRemoveOp{values: values} }

// DeleteField removes the field from the document.
func DeleteField() any { return deleteFieldOp{} }

// ServerTimestamp resolves to the store's wall clock at write time.
// Клиентские часы в документы не попадают никогда — иначе расползается
// порядок сообщений между клиентами с разным skew.
func ServerTimestamp() any { return serverTimestampOp{} }

// Tx — операции внутри транзакции. Get берёт блокировку документа до конца
// транзакции; используется там, где атомарных полевых операций недостаточно
// (голосование в опросах).
type Tx interface {
	Get(collection, id string) (*Document, error)
	Set(collection, id string, data map[string]any) error
	Update(collection, id string, fields map[string]any) error
	Delete(collection, id string) error
}

// Unsubscribe отменяет live-подписку. Обязанность вызвать ровно один раз
// лежит на владельце подписки; после вызова callback больше не дёргается.
type Unsubscribe func()

type Store interface {
	// Create создаёт или перезаписывает документ (set-семантика). Пустой id —
	// сгенерировать; возвращается итоговый id.
	Create(ctx context.Context, collection, id string, data map[string]any) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Update применяет значения и атомарные операции к полям; ключи с точкой
	// адресуют вложенные поля ("unreadCount.<userId>"). ErrNotFound, если
	// документа нет.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// BatchDelete удаляет все документы, подходящие под запрос; возвращает их число.
	BatchDelete(ctx context.Context, q Query) (int, error)
	// Subscribe регистрирует live-запрос: callback вызывается сразу с текущим
	// результатом и затем при каждом изменении коллекции.
	Subscribe(ctx context.Context, q Query, fn func([]Document)) (Unsubscribe, error)
	RunTransaction(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}
