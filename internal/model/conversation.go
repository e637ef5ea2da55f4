package model

import "time"

// Conversation — личная переписка 1:1. ID канонический: отсортированные id
// участников через "_", что даёт детерминированную идентичность без поиска.
type Conversation struct {
	ID            string                  `json:"id"`
	Type          string                  `json:"type"` // всегда "direct"
	Members       []string                `json:"members"`
	MemberDetails map[string]MemberDetail `json:"memberDetails"`
	LastMessage   *LastMessage            `json:"lastMessage"`
	// UnreadCount — ровно по одной записи на участника; собственный счётчик
	// отправителя его же сообщением не инкрементируется.
	UnreadCount map[string]int64 `json:"unreadCount"`
	// Typing — userId → отметка последнего ввода (nil = не печатает).
	// Читатели считают отметку свежей в пределах TypingTTL.
	Typing    map[string]*time.Time `json:"typing,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// OtherMember возвращает id собеседника. Состав 1:1 беседы неизменяем.
func (c *Conversation) OtherMember(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}
