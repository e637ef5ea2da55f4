package ws

// Stream — именованный live-запрос, на который подписывается клиент.
type Stream string

const (
	// StreamConversations — список бесед пользователя (счётчики, lastMessage, typing).
	StreamConversations Stream = "conversations"
	// StreamMessages — сообщения одной беседы; Target = id беседы.
	StreamMessages Stream = "messages"
	// StreamDepartments — видимые каналы отделов.
	StreamDepartments Stream = "departments"
	// StreamDepartmentMessages — сообщения канала; Target = id отдела.
	StreamDepartmentMessages Stream = "department_messages"
	// StreamAnnouncements — видимые объявления.
	StreamAnnouncements Stream = "announcements"
	// StreamPolls — опросы канала; Target = id отдела.
	StreamPolls Stream = "polls"
	// StreamPinned — закреплённые сообщения канала; Target = id отдела.
	StreamPinned Stream = "pinned"
	// StreamTasks — задачи, назначенные пользователю.
	StreamTasks Stream = "tasks"
	// StreamUsers — справочник сотрудников со статусами присутствия.
	StreamUsers Stream = "users"
)

type EventType string

const (
	EventSubscribe   EventType = "subscribe"
	EventUnsubscribe EventType = "unsubscribe"
	EventTyping      EventType = "typing"
	EventSnapshot    EventType = "snapshot"
	EventError       EventType = "error"
)

// IncomingMessage is what the client sends to the server. Writes go through
// the REST API; the socket carries subscriptions and typing only.
type IncomingMessage struct {
	Type   EventType `json:"type"`
	Stream Stream    `json:"stream,omitempty"`
	// Target уточняет поток: id беседы или отдела.
	Target string `json:"target,omitempty"`
	// Typing=true ставит отметку, false снимает (для type=typing).
	Typing bool `json:"typing,omitempty"`
}

// OutgoingMessage is what the server sends to the client.
type OutgoingMessage struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// SnapshotPayload — полный текущий результат live-запроса. Шлётся при
// подписке и далее при каждом изменении коллекции.
type SnapshotPayload struct {
	Stream Stream           `json:"stream"`
	Target string           `json:"target,omitempty"`
	Items  []map[string]any `json:"items"`
}

// ErrorPayload отправляется в ответ на неразрешённую или неизвестную подписку.
type ErrorPayload struct {
	Stream Stream `json:"stream,omitempty"`
	Target string `json:"target,omitempty"`
	Error  string `json:"error"`
}
