package domain

import "time"

// TodoStatus enumerates the lifecycle states of a todo.
type TodoStatus string

const (
	// StatusPending is the initial state of every todo.
	StatusPending TodoStatus = "PENDING"
	// StatusReminderDue marks a todo whose reminder instant has elapsed.
	StatusReminderDue TodoStatus = "REMINDER_DUE"
	// StatusDone is terminal; no transition leaves it.
	StatusDone TodoStatus = "DONE"
)

// Todo is the central entity of the reminder service. DeletedAt marks a
// soft-deleted record; deletion is orthogonal to Status.
type Todo struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      TodoStatus `json:"status"`
	RemindAt    *time.Time `json:"remind_at,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
