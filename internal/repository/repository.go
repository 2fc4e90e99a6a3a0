package repository

import (
	"context"
	"time"

	"github.com/remindkit/remindd/internal/domain"
)

// TodoDraft carries the caller-settable fields for a new todo. The store
// assigns the ID and both timestamps.
type TodoDraft struct {
	UserID      string
	Title       string
	Description string
	Status      domain.TodoStatus
	RemindAt    *time.Time
}

// TodoPatch describes a partial update. Nil fields are left untouched.
// ID, UserID, and CreatedAt are immutable and deliberately absent.
//
// When UpdatedAt is nil the store stamps its own clock. Either way the
// resulting UpdatedAt is guaranteed strictly greater than the record's
// previous one, so consumers may order by it or treat it as a change token.
type TodoPatch struct {
	Title       *string
	Description *string
	Status      *domain.TodoStatus
	RemindAt    *time.Time
	DeletedAt   *time.Time
	UpdatedAt   *time.Time
}

// TodoRepository persists todos. Every returned record is an independent
// copy; mutating it never affects stored state. Updates against an unknown
// ID return ErrNotFound and never create a record.
type TodoRepository interface {
	CreateTodo(ctx context.Context, draft TodoDraft) (*domain.Todo, error)
	UpdateTodo(ctx context.Context, id string, patch TodoPatch) (*domain.Todo, error)
	GetTodoByID(ctx context.Context, id string) (*domain.Todo, error)
	// ListTodosByUser returns all of the user's todos in insertion order,
	// soft-deleted records included.
	ListTodosByUser(ctx context.Context, userID string) ([]domain.Todo, error)
	// ListDueReminders returns todos still PENDING whose RemindAt is set and
	// not after asOf, in insertion order.
	ListDueReminders(ctx context.Context, asOf time.Time) ([]domain.Todo, error)
}

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
}
