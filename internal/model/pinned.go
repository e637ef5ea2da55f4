package model

import "time"

// PinnedMessage — закреплённое сообщение канала. Пара (departmentId, messageId)
// уникальна; текст и отправитель денормализованы для показа без чтения сообщения.
type PinnedMessage struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"departmentId"`
	MessageID    string    `json:"messageId"`
	MessageText  string    `json:"messageText"`
	SenderID     string    `json:"senderId"`
	SenderName   string    `json:"senderName"`
	PinnedBy     string    `json:"pinnedBy"`
	PinnedAt     time.Time `json:"pinnedAt"`
}
