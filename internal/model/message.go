package model

import "time"

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// Message — сообщение в беседе или канале отдела. После создания неизменяемо.
// Вложения хранятся inline (base64) прямо в документе, внешнего файлового
// хранилища нет; потолок размера проверяется до записи.
type Message struct {
	ID           string `json:"id"`
	SenderID     string `json:"senderId"`
	SenderName   string `json:"senderName"`
	SenderAvatar string `json:"senderAvatar"`
	// SenderDepartment заполняется только в сообщениях каналов отделов.
	SenderDepartment string      `json:"senderDepartment,omitempty"`
	Text             string      `json:"text"`
	ImageBase64      string      `json:"imageBase64,omitempty"`
	FileBase64       string      `json:"fileBase64,omitempty"`
	FileName         string      `json:"fileName,omitempty"`
	MimeType         string      `json:"mimeType,omitempty"`
	FileSize         int64       `json:"fileSize,omitempty"`
	Type             MessageType `json:"type"`
	CreatedAt        time.Time   `json:"createdAt"` // всегда серверное время
}

// LastMessage — денормализованный анонс последнего сообщения.
type LastMessage struct {
	Text       string    `json:"text"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}
