package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/corpchat/internal/docstore"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore() *Store {
	return NewWithClock(func() time.Time { return fixedNow })
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id, err := s.Create(ctx, "things", "", map[string]any{
		"name":      "first",
		"count":     3,
		"createdAt": docstore.ServerTimestamp(),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == "" {
		t.Fatal("Create: empty generated id")
	}

	doc, err := s.Get(ctx, "things", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["name"] != "first" {
		t.Errorf("name = %v", doc.Data["name"])
	}
	// числа нормализуются в float64, таймстемпы — в RFC3339Nano
	if doc.Data["count"] != float64(3) {
		t.Errorf("count = %v (%T)", doc.Data["count"], doc.Data["count"])
	}
	if doc.Data["createdAt"] != fixedNow.Format(time.RFC3339Nano) {
		t.Errorf("createdAt = %v", doc.Data["createdAt"])
	}

	if _, err := s.Get(ctx, "things", "missing"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestUpdateAtomicOps(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	id, _ := s.Create(ctx, "counters", "c1", map[string]any{
		"total":  1,
		"unread": map[string]any{"alice": 2},
		"tags":   []any{"a"},
	})

	err := s.Update(ctx, "counters", id, map[string]any{
		"total":        docstore.Increment(4),
		"unread.bob":   docstore.Increment(1),
		"unread.alice": docstore.Increment(-2),
		"tags":         docstore.ArrayUnion("b", "a"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	doc, _ := s.Get(ctx, "counters", id)
	if doc.Data["total"] != float64(5) {
		t.Errorf("total = %v", doc.Data["total"])
	}
	unread := doc.Data["unread"].(map[string]any)
	if unread["bob"] != float64(1) || unread["alice"] != float64(0) {
		t.Errorf("unread = %v", unread)
	}
	tags := doc.Data["tags"].([]any)
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("tags = %v, want union without duplicates", tags)
	}

	err = s.Update(ctx, "counters", id, map[string]any{
		"tags":         docstore.ArrayRemove("a"),
		"unread.alice": docstore.DeleteField(),
	})
	if err != nil {
		t.Fatalf("Update remove: %v", err)
	}
	doc, _ = s.Get(ctx, "counters", id)
	tags = doc.Data["tags"].([]any)
	if len(tags) != 1 || tags[0] != "b" {
		t.Errorf("tags after remove = %v", tags)
	}
	unread = doc.Data["unread"].(map[string]any)
	if _, ok := unread["alice"]; ok {
		t.Error("unread.alice should be deleted")
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	s := newTestStore()
	err := s.Update(context.Background(), "things", "nope", map[string]any{"x": 1})
	if !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestQueryFilterOrderLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()

	for i, name := range []string{"one", "two", "three"} {
		ts := fixedNow.Add(time.Duration(i) * time.Minute).Format(time.RFC3339Nano)
		s.Create(ctx, "msgs", name, map[string]any{
			"room":      "r1",
			"createdAt": ts,
		})
	}
	s.Create(ctx, "msgs", "other", map[string]any{"room": "r2", "createdAt": fixedNow.Format(time.RFC3339Nano)})

	docs, err := s.Query(ctx, docstore.Query{
		Collection: "msgs",
		Filters:    []docstore.Filter{docstore.Where("room", docstore.OpEqual, "r1")},
		OrderField: "createdAt",
		Desc:       true,
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("len = %d, want 2", len(docs))
	}
	if docs[0].ID != "three" || docs[1].ID != "two" {
		t.Errorf("order = %s, %s", docs[0].ID, docs[1].ID)
	}
}

func TestQueryArrayContains(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "convs", "a_b", map[string]any{"members": []any{"a", "b"}})
	s.Create(ctx, "convs", "b_c", map[string]any{"members": []any{"b", "c"}})

	docs, err := s.Query(ctx, docstore.Query{
		Collection: "convs",
		Filters:    []docstore.Filter{docstore.Where("members", docstore.OpArrayContains, "a")},
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != "a_b" {
		t.Errorf("docs = %v", docs)
	}
}

func TestSubscribeSnapshotAndUpdates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "rooms", "r1", map[string]any{"open": true})

	var snapshots [][]docstore.Document
	unsub, err := s.Subscribe(ctx, docstore.Query{Collection: "rooms"}, func(docs []docstore.Document) {
		snapshots = append(snapshots, docs)
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if len(snapshots) != 1 || len(snapshots[0]) != 1 {
		t.Fatalf("initial snapshot = %v", snapshots)
	}

	s.Create(ctx, "rooms", "r2", map[string]any{"open": false})
	if len(snapshots) != 2 || len(snapshots[1]) != 2 {
		t.Fatalf("after create snapshots = %d", len(snapshots))
	}

	// изменения чужих коллекций подписку не будят
	s.Create(ctx, "other", "x", map[string]any{})
	if len(snapshots) != 2 {
		t.Errorf("foreign collection triggered snapshot")
	}

	unsub()
	unsub() // идемпотентно
	s.Create(ctx, "rooms", "r3", map[string]any{})
	if len(snapshots) != 2 {
		t.Errorf("snapshot after unsubscribe")
	}
}

func TestTransactionRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "accounts", "a", map[string]any{"balance": 10})

	boom := errors.New("boom")
	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		if err := tx.Update("accounts", "a", map[string]any{"balance": docstore.Increment(-10)}); err != nil {
			return err
		}
		if err := tx.Set("accounts", "b", map[string]any{"balance": 10}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("RunTransaction = %v", err)
	}

	doc, _ := s.Get(ctx, "accounts", "a")
	if doc.Data["balance"] != float64(10) {
		t.Errorf("balance rolled back = %v", doc.Data["balance"])
	}
	if _, err := s.Get(ctx, "accounts", "b"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("b should not survive rollback: %v", err)
	}
}

func TestTransactionCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "accounts", "a", map[string]any{"balance": 10})

	err := s.RunTransaction(ctx, func(tx docstore.Tx) error {
		doc, err := tx.Get("accounts", "a")
		if err != nil {
			return err
		}
		bal := doc.Data["balance"].(float64)
		return tx.Update("accounts", "a", map[string]any{"balance": bal - 3})
	})
	if err != nil {
		t.Fatalf("RunTransaction: %v", err)
	}
	doc, _ := s.Get(ctx, "accounts", "a")
	if doc.Data["balance"] != float64(7) {
		t.Errorf("balance = %v", doc.Data["balance"])
	}
}

func TestBatchDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "msgs", "m1", map[string]any{"room": "r1"})
	s.Create(ctx, "msgs", "m2", map[string]any{"room": "r1"})
	s.Create(ctx, "msgs", "m3", map[string]any{"room": "r2"})

	n, err := s.BatchDelete(ctx, docstore.Query{
		Collection: "msgs",
		Filters:    []docstore.Filter{docstore.Where("room", docstore.OpEqual, "r1")},
	})
	if err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
	docs, _ := s.Query(ctx, docstore.Query{Collection: "msgs"})
	if len(docs) != 1 || docs[0].ID != "m3" {
		t.Errorf("remaining = %v", docs)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore()
	s.Create(ctx, "things", "t1", map[string]any{"nested": map[string]any{"v": 1}})

	doc, _ := s.Get(ctx, "things", "t1")
	doc.Data["nested"].(map[string]any)["v"] = float64(99)

	fresh, _ := s.Get(ctx, "things", "t1")
	if fresh.Data["nested"].(map[string]any)["v"] != float64(1) {
		t.Error("Get leaked internal state")
	}
}
