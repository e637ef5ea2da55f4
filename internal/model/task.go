package model

import "time"

type TaskPriority string

const (
	TaskPriorityLow    TaskPriority = "low"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityHigh   TaskPriority = "high"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

type Task struct {
	ID             string       `json:"id"`
	DepartmentID   string       `json:"departmentId"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	AssignedTo     string       `json:"assignedTo"`
	AssignedBy     string       `json:"assignedBy"`
	AssignedByName string       `json:"assignedByName"`
	DueDate        *time.Time   `json:"dueDate,omitempty"`
	Priority       TaskPriority `json:"priority"`
	Status         TaskStatus   `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// statusRank задаёт порядок переходов: статус движется только вперёд.
var statusRank = map[TaskStatus]int{
	TaskStatusPending:    0,
	TaskStatusInProgress: 1,
	TaskStatusCompleted:  2,
}

// CanTransitionTo разрешает только движение вперёд по статусам.
func (t *Task) CanTransitionTo(next TaskStatus) bool {
	cur, ok := statusRank[t.Status]
	if !ok {
		return false
	}
	n, ok := statusRank[next]
	if !ok {
		return false
	}
	return n >= cur
}
