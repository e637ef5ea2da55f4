package model

import "time"

type AnnouncementPriority string

const (
	PriorityNormal AnnouncementPriority = "normal"
	PriorityUrgent AnnouncementPriority = "urgent"
)

type AnnouncementScope string

const (
	ScopeDepartment AnnouncementScope = "department"
	ScopeCompany    AnnouncementScope = "company"
)

type Announcement struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Content       string               `json:"content"`
	Priority      AnnouncementPriority `json:"priority"`
	Scope         AnnouncementScope    `json:"scope"`
	CreatedBy     string               `json:"createdBy"`
	CreatedByName string               `json:"createdByName"`
	// TargetDepartments — пустой список означает "видно всем".
	TargetDepartments []string `json:"targetDepartments"`
	// ReadBy — множество прочитавших; только растёт (ArrayUnion).
	ReadBy    []string  `json:"readBy"`
	CreatedAt time.Time `json:"createdAt"`
}

// VisibleTo сообщает, видно ли объявление пользователю отдела dept.
func (a *Announcement) VisibleTo(dept string) bool {
	if a.Scope == ScopeCompany || len(a.TargetDepartments) == 0 {
		return true
	}
	for _, t := range a.TargetDepartments {
		if t == dept {
			return true
		}
	}
	return false
}

// IsReadBy сообщает, прочитал ли пользователь объявление.
func (a *Announcement) IsReadBy(userID string) bool {
	for _, id := range a.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
