package model

import "time"

type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleDirector Role = "director"
	// RoleAdmin существует только в веб-админке, в приложении его нет.
	RoleAdmin Role = "admin"
)

type UserStatus string

const (
	StatusOnline  UserStatus = "online"
	StatusOffline UserStatus = "offline"
)

type User struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	Avatar     string     `json:"avatar"`
	Phone      string     `json:"phone"`
	Role       Role       `json:"role"`
	Department string     `json:"department"` // слаг отдела; у директора пустой
	// ManagedDepartments — legacy-список отделов менеджера (до инварианта
	// "один менеджер — один отдел"); читается guard'ами для обратной совместимости.
	ManagedDepartments []string   `json:"managedDepartments,omitempty"`
	Status             UserStatus `json:"status"`
	LastSeen           time.Time  `json:"lastSeen"`
	CreatedAt          time.Time  `json:"createdAt"`
}

type UserPublic struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Avatar     string     `json:"avatar"`
	Department string     `json:"department"`
	Role       Role       `json:"role"`
	Status     UserStatus `json:"status"`
	LastSeen   time.Time  `json:"lastSeen"`
}

func (u *User) ToPublic() UserPublic {
	return UserPublic{
		ID:         u.ID,
		Name:       u.Name,
		Avatar:     u.Avatar,
		Department: u.Department,
		Role:       u.Role,
		Status:     u.Status,
		LastSeen:   u.LastSeen,
	}
}

// MemberDetail — денормализованный снимок профиля внутри беседы.
type MemberDetail struct {
	Name       string `json:"name"`
	Avatar     string `json:"avatar"`
	Department string `json:"department"`
}
