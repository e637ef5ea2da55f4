package model

import "time"

type PollOption struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	// Votes — id проголосовавших. Инвариант одиночного выбора: пользователь
	// присутствует не более чем в одном варианте (смена голоса переносит id).
	Votes []string `json:"votes"`
}

type Poll struct {
	ID            string       `json:"id"`
	DepartmentID  string       `json:"departmentId"`
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	CreatedBy     string       `json:"createdBy"`
	CreatedByName string       `json:"createdByName"`
	CreatedAt     time.Time    `json:"createdAt"`
	ExpiresAt     *time.Time   `json:"expiresAt,omitempty"`
	UpdatedAt     time.Time    `json:"updatedAt"`
}

// VoteOf возвращает id варианта, за который голосовал пользователь (0 = не голосовал).
func (p *Poll) VoteOf(userID string) int {
	for _, opt := range p.Options {
		for _, v := range opt.Votes {
			if v == userID {
				return opt.ID
			}
		}
	}
	return 0
}
