package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/corpchat/internal/docstore/memory"
	"github.com/corpchat/internal/model"
	"github.com/corpchat/internal/repository"
)

func alice() *model.User {
	return &model.User{ID: "alice", Name: "Alice", Department: "sales", Role: model.RoleEmployee}
}

func bob() *model.User {
	return &model.User{ID: "bob", Name: "Bob", Department: "engineering", Role: model.RoleEmployee}
}

func TestConversationID(t *testing.T) {
	if got := repository.ConversationID("bob", "alice"); got != "alice_bob" {
		t.Errorf("ConversationID = %q", got)
	}
	if repository.ConversationID("alice", "bob") != repository.ConversationID("bob", "alice") {
		t.Error("ConversationID should not depend on argument order")
	}
}

func TestGetOrCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(memory.New(), 0)

	c1, err := repo.GetOrCreate(ctx, alice(), bob())
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if c1.ID != "alice_bob" {
		t.Errorf("id = %q", c1.ID)
	}
	if c1.UnreadCount["alice"] != 0 || c1.UnreadCount["bob"] != 0 {
		t.Errorf("zero state unread = %v", c1.UnreadCount)
	}

	// повторный вызов (и с обратным порядком) возвращает ту же беседу
	c2, err := repo.GetOrCreate(ctx, bob(), alice())
	if err != nil {
		t.Fatalf("GetOrCreate twice: %v", err)
	}
	if c2.ID != c1.ID {
		t.Errorf("ids differ: %q vs %q", c1.ID, c2.ID)
	}

	if _, err := repo.GetOrCreate(ctx, alice(), alice()); err == nil {
		t.Error("self-conversation should be rejected")
	}
}

func TestSendMessageUpdatesConversation(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(memory.New(), 0)
	conv, _ := repo.GetOrCreate(ctx, alice(), bob())

	msg, err := repo.SendMessage(ctx, conv.ID, alice(), &model.Message{Text: "hi", Type: model.MessageTypeText})
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Errorf("message not resolved: id=%q createdAt=%v", msg.ID, msg.CreatedAt)
	}

	conv, _ = repo.Get(ctx, conv.ID)
	if conv.LastMessage == nil || conv.LastMessage.Text != "hi" {
		t.Fatalf("lastMessage = %+v", conv.LastMessage)
	}
	// счётчик растёт только у получателя
	if conv.UnreadCount["bob"] != 1 || conv.UnreadCount["alice"] != 0 {
		t.Errorf("unread = %v", conv.UnreadCount)
	}

	repo.SendMessage(ctx, conv.ID, alice(), &model.Message{Text: "again", Type: model.MessageTypeText})
	conv, _ = repo.Get(ctx, conv.ID)
	if conv.UnreadCount["bob"] != 2 {
		t.Errorf("unread after second send = %v", conv.UnreadCount)
	}

	if err := repo.MarkAsRead(ctx, conv.ID, "bob"); err != nil {
		t.Fatalf("MarkAsRead: %v", err)
	}
	conv, _ = repo.Get(ctx, conv.ID)
	if conv.UnreadCount["bob"] != 0 {
		t.Errorf("unread after read = %v", conv.UnreadCount)
	}
}

func TestSendMessageRejectsOutsiders(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(memory.New(), 0)
	conv, _ := repo.GetOrCreate(ctx, alice(), bob())

	eve := &model.User{ID: "eve", Name: "Eve"}
	_, err := repo.SendMessage(ctx, conv.ID, eve, &model.Message{Text: "hi"})
	if !errors.Is(err, repository.ErrNotAuthorized) {
		t.Errorf("err = %v, want ErrNotAuthorized", err)
	}
}

func TestSendMessageAttachmentLimit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(memory.New(), 8)
	conv, _ := repo.GetOrCreate(ctx, alice(), bob())

	_, err := repo.SendMessage(ctx, conv.ID, alice(), &model.Message{
		Type:        model.MessageTypeImage,
		ImageBase64: "0123456789",
	})
	if !errors.Is(err, repository.ErrOversizeAttachment) {
		t.Errorf("err = %v, want ErrOversizeAttachment", err)
	}
}

func TestMessagesChronologicalWithLimit(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(memory.New(), 0)
	conv, _ := repo.GetOrCreate(ctx, alice(), bob())

	for _, text := range []string{"one", "two", "three"} {
		if _, err := repo.SendMessage(ctx, conv.ID, alice(), &model.Message{Text: text, Type: model.MessageTypeText}); err != nil {
			t.Fatalf("SendMessage %s: %v", text, err)
		}
	}

	msgs, err := repo.Messages(ctx, conv.ID, 2)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("len = %d", len(msgs))
	}
	// последние limit сообщений, в хронологическом порядке
	if msgs[0].Text != "two" || msgs[1].Text != "three" {
		t.Errorf("order = %q, %q", msgs[0].Text, msgs[1].Text)
	}
}

func TestMediaPreview(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(memory.New(), 0)
	conv, _ := repo.GetOrCreate(ctx, alice(), bob())

	repo.SendMessage(ctx, conv.ID, alice(), &model.Message{
		Type:     model.MessageTypeFile,
		FileName: "report.pdf",
	})
	conv, _ = repo.Get(ctx, conv.ID)
	if conv.LastMessage.Text != "📎 report.pdf" {
		t.Errorf("file preview = %q", conv.LastMessage.Text)
	}

	repo.SendMessage(ctx, conv.ID, alice(), &model.Message{Type: model.MessageTypeImage})
	conv, _ = repo.Get(ctx, conv.ID)
	if conv.LastMessage.Text != "📷 Photo" {
		t.Errorf("image preview = %q", conv.LastMessage.Text)
	}
}

func TestTypingMarker(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewConversationRepository(memory.New(), 0)
	conv, _ := repo.GetOrCreate(ctx, alice(), bob())

	if err := repo.SetTyping(ctx, conv.ID, "alice", true); err != nil {
		t.Fatalf("SetTyping: %v", err)
	}
	conv, _ = repo.Get(ctx, conv.ID)
	if conv.Typing["alice"] == nil {
		t.Fatal("typing marker not set")
	}

	// отправка сообщения снимает отметку отправителя
	repo.SendMessage(ctx, conv.ID, alice(), &model.Message{Text: "done", Type: model.MessageTypeText})
	conv, _ = repo.Get(ctx, conv.ID)
	if _, ok := conv.Typing["alice"]; ok {
		t.Error("typing marker should be cleared by send")
	}

	// отметка в несуществующей беседе — no-op
	if err := repo.SetTyping(ctx, "nope", "alice", true); err != nil {
		t.Errorf("SetTyping missing conv: %v", err)
	}
}
