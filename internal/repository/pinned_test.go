package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corpchat/internal/docstore/memory"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
)

func TestPinUniquePerChannelMessage(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPinnedRepository(memory.New())
	mgr := &model.User{ID: "m1", Name: "Mgr", Role: model.RoleManager, Department: "engineering"}
	msg := &model.Message{ID: "msg1", Text: "important", SenderID: "e1", SenderName: "Eng", Type: model.MessageTypeText}

	p, err := repo.Pin(ctx, mgr, "engineering", msg)
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if p.PinnedBy != "m1" || p.MessageText != "important" {
		t.Errorf("pin = %+v", p)
	}

	// то же сообщение второй раз не закрепляется
	if _, err := repo.Pin(ctx, mgr, "engineering", msg); !errors.Is(err, repository.ErrAlreadyExists) {
		t.Errorf("second Pin = %v", err)
	}

	// но в другом канале (теоретически) — отдельная запись
	if _, err := repo.Pin(ctx, mgr, "sales", msg); err != nil {
		t.Errorf("Pin other channel: %v", err)
	}
}

func TestPinListAndUnpin(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPinnedRepository(memory.New())
	mgr := &model.User{ID: "m1", Name: "Mgr"}

	first, _ := repo.Pin(ctx, mgr, "engineering", &model.Message{ID: "msg1", Text: "a", Type: model.MessageTypeText})
	repo.Pin(ctx, mgr, "engineering", &model.Message{ID: "msg2", Text: "b", Type: model.MessageTypeText})

	pins, err := repo.ListByDepartment(ctx, "engineering")
	if err != nil {
		t.Fatalf("ListByDepartment: %v", err)
	}
	if len(pins) != 2 {
		t.Fatalf("pins = %d", len(pins))
	}

	if err := repo.Unpin(ctx, first.ID); err != nil {
		t.Fatalf("Unpin: %v", err)
	}
	pins, _ = repo.ListByDepartment(ctx, "engineering")
	if len(pins) != 1 || pins[0].MessageID != "msg2" {
		t.Errorf("pins after unpin = %v", pins)
	}
}

func TestPinPreviewForMedia(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewPinnedRepository(memory.New())
	mgr := &model.User{ID: "m1"}

	p, err := repo.Pin(ctx, mgr, "engineering", &model.Message{ID: "msg1", Type: model.MessageTypeFile, FileName: "spec.pdf"})
	if err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if p.MessageText != "📎 spec.pdf" {
		t.Errorf("preview = %q", p.MessageText)
	}
}
