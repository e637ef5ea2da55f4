package model

import "time"

type DepartmentType string

const (
	DepartmentTypePublic     DepartmentType = "public" // общий канал компании
	DepartmentTypeDepartment DepartmentType = "department"
)

// Department — канал отдела. Каноническим идентификатором везде служит слаг
// (id); сравнение по display-имени осталось только как fallback для старых
// записей пользователей и всегда регистронезависимо.
type Department struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Icon        string         `json:"icon"`
	Type        DepartmentType `json:"type"`
	// ManagerID/ManagerName — не более одного менеджера; уникальность
	// проверяется при назначении, хранилище её не навязывает.
	ManagerID   string           `json:"managerId,omitempty"`
	ManagerName string           `json:"managerName,omitempty"`
	Members     []string         `json:"members"`
	LastMessage *LastMessage     `json:"lastMessage"`
	UnreadCount map[string]int64 `json:"unreadCount"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// GeneralDepartmentID — общий канал; объявления "на всю компанию" живут тут.
const GeneralDepartmentID = "general"
