package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/corpchat/internal/docstore"
	"github.com/corpchat/internal/logger"
	"github.com/corpchat/internal/model"
)

type ConversationRepository struct {
	store              docstore.Store
	maxAttachmentBytes int64
}

func NewConversationRepository(store docstore.Store, maxAttachmentBytes int64) *ConversationRepository {
	return &ConversationRepository{store: store, maxAttachmentBytes: maxAttachmentBytes}
}

// ConversationID builds the canonical id: member ids sorted and joined with
// "_". Any two users map to exactly one conversation, no lookup needed.
func ConversationID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// GetOrCreate returns the conversation between the two users, creating the
// zero-state document on first contact. Idempotent: concurrent first calls
// race to write the same zero state.
func (r *ConversationRepository) GetOrCreate(ctx context.Context, a, b *model.User) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.GetOrCreate", time.Now())()
	if a.ID == b.ID {
		return nil, fmt.Errorf("conversationRepo.GetOrCreate: %w", ErrConversationMembers)
	}
	id := ConversationID(a.ID, b.ID)

	err := r.store.RunTransaction(ctx, func(tx docstore.Tx) error {
		_, err := tx.Get(ColConversations, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, docstore.ErrNotFound) {
			return err
		}
		members := []string{a.ID, b.ID}
		sort.Strings(members)
		return tx.Set(ColConversations, id, map[string]any{
			"type":    "direct",
			"members": members,
			"memberDetails": map[string]any{
				a.ID: map[string]any{"name": a.Name, "avatar": a.Avatar, "department": a.Department},
				b.ID: map[string]any{"name": b.Name, "avatar": b.Avatar, "department": b.Department},
			},
			"lastMessage": nil,
			"unreadCount": map[string]any{a.ID: 0, b.ID: 0},
			"createdAt":   docstore.ServerTimestamp(),
			"updatedAt":   docstore.ServerTimestamp(),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.GetOrCreate: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *ConversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.Get", time.Now())()
	doc, err := r.store.Get(ctx, ColConversations, id)
	if err != nil {
		return nil, mapStoreErr(fmt.Errorf("conversationRepo.Get: %w", err))
	}
	c := &model.Conversation{}
	if err := doc.DataTo(c); err != nil {
		return nil, fmt.Errorf("conversationRepo.Get: %w", err)
	}
	c.ID = doc.ID
	return c, nil
}

// List returns the user's conversations, most recently active first.
func (r *ConversationRepository) List(ctx context.Context, userID string) ([]model.Conversation, error) {
	defer logger.DeferLogDuration("conversation.List", time.Now())()
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColConversations,
		Filters:    []docstore.Filter{docstore.Where("members", docstore.OpArrayContains, userID)},
		OrderField: "updatedAt",
		Desc:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.List: %w", err)
	}
	out := make([]model.Conversation, 0, len(docs))
	for _, d := range docs {
		c := model.Conversation{}
		if err := d.DataTo(&c); err != nil {
			return nil, fmt.Errorf("conversationRepo.List: decode %s: %w", d.ID, err)
		}
		c.ID = d.ID
		out = append(out, c)
	}
	return out, nil
}

// SendMessage appends the message and folds the whole side effect into one
// atomic conversation update: lastMessage, updatedAt, the peer's unread
// increment and the sender's typing flag. The sender's own counter is never
// touched.
func (r *ConversationRepository) SendMessage(ctx context.Context, convID string, sender *model.User, msg *model.Message) (*model.Message, error) {
	defer logger.DeferLogDuration("conversation.SendMessage", time.Now())()
	if err := validateAttachment(msg, r.maxAttachmentBytes); err != nil {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", err)
	}
	conv, err := r.Get(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", err)
	}
	if !isMember(conv.Members, sender.ID) {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", ErrNotAuthorized)
	}
	other := conv.OtherMember(sender.ID)

	msg.SenderID = sender.ID
	msg.SenderName = sender.Name
	msg.SenderAvatar = sender.Avatar
	data, err := docstore.DataFrom(msg)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", err)
	}
	data["conversationId"] = convID
	data["createdAt"] = docstore.ServerTimestamp()
	msgID, err := r.store.Create(ctx, ColMessages, "", data)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", err)
	}
	msg.ID = msgID

	preview := previewText(msg)
	if err := r.store.Update(ctx, ColConversations, convID, map[string]any{
		"lastMessage": map[string]any{
			"text":       preview,
			"senderId":   sender.ID,
			"senderName": sender.Name,
			"timestamp":  docstore.ServerTimestamp(),
		},
		"updatedAt":            docstore.ServerTimestamp(),
		"unreadCount." + other: docstore.Increment(1),
		"typing." + sender.ID:  docstore.DeleteField(),
	}); err != nil {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", err)
	}

	stored, err := r.store.Get(ctx, ColMessages, msgID)
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", err)
	}
	if err := stored.DataTo(msg); err != nil {
		return nil, fmt.Errorf("conversationRepo.SendMessage: %w", err)
	}
	msg.ID = msgID
	return msg, nil
}

// Messages returns the latest limit messages in chronological order.
func (r *ConversationRepository) Messages(ctx context.Context, convID string, limit int) ([]model.Message, error) {
	defer logger.DeferLogDuration("conversation.Messages", time.Now())()
	docs, err := r.store.Query(ctx, docstore.Query{
		Collection: ColMessages,
		Filters:    []docstore.Filter{docstore.Where("conversationId", docstore.OpEqual, convID)},
		OrderField: "createdAt",
		Desc:       true,
		Limit:      limit,
	})
	if err != nil {
		return nil, fmt.Errorf("conversationRepo.Messages: %w", err)
	}
	out := make([]model.Message, len(docs))
	for i, d := range docs {
		m := model.Message{}
		if err := d.DataTo(&m); err != nil {
			return nil, fmt.Errorf("conversationRepo.Messages: decode %s: %w", d.ID, err)
		}
		m.ID = d.ID
		out[len(docs)-1-i] = m
	}
	return out, nil
}

// MarkAsRead zeroes the caller's own unread counter. Missing conversation is
// a no-op: the client may mark before first contact.
func (r *ConversationRepository) MarkAsRead(ctx context.Context, convID, userID string) error {
	defer logger.DeferLogDuration("conversation.MarkAsRead", time.Now())()
	err := r.store.Update(ctx, ColConversations, convID, map[string]any{
		"unreadCount." + userID: 0,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("conversationRepo.MarkAsRead: %w", err)
	}
	return nil
}

// SetTyping stamps or clears the caller's typing marker. Readers treat the
// stamp as fresh only within the typing TTL, so stale markers expire on
// their own even if the clear is lost.
func (r *ConversationRepository) SetTyping(ctx context.Context, convID, userID string, typing bool) error {
	defer logger.DeferLogDuration("conversation.SetTyping", time.Now())()
	var v any = docstore.DeleteField()
	if typing {
		v = docstore.ServerTimestamp()
	}
	err := r.store.Update(ctx, ColConversations, convID, map[string]any{
		"typing." + userID: v,
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("conversationRepo.SetTyping: %w", err)
	}
	return nil
}

func isMember(members []string, id string) bool {
	for _, m := range members {
		if m == id {
			return true
		}
	}
	return false
}

// previewText derives the denormalized announcement line: media messages get
// a placeholder instead of raw payload.
func previewText(m *model.Message) string {
	switch m.Type {
	case model.MessageTypeImage:
		return "📷 Photo"
	case model.MessageTypeFile:
		if m.FileName != "" {
			return "📎 " + m.FileName
		}
		return "📎 File"
	default:
		return m.Text
	}
}

func validateAttachment(m *model.Message, max int64) error {
	if max <= 0 {
		return nil
	}
	if int64(len(m.ImageBase64)) > max || int64(len(m.FileBase64)) > max {
		return ErrOversizeAttachment
	}
	return nil
}
