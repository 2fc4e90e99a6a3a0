// Package memory provides the in-memory reference implementation of the
// storage contracts. It keeps canonical records behind a mutex and hands out
// copies on every boundary crossing, so callers can never alias stored state.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/remindkit/remindd/internal/domain"
	"github.com/remindkit/remindd/internal/repository"
)

// Store implements repository.TodoRepository and repository.UserRepository
// on process-local maps. IDs come from a counter scoped to the store
// instance, which is collision-free for a single-process, non-persistent
// store.
type Store struct {
	mu           sync.Mutex
	todos        map[string]*domain.Todo
	order        []string
	users        map[string]*domain.User
	usersByEmail map[string]string
	seq          uint64

	now func() time.Time
}

var (
	_ repository.TodoRepository = (*Store)(nil)
	_ repository.UserRepository = (*Store)(nil)
)

// New constructs an empty Store backed by the wall clock.
func New() *Store {
	return &Store{
		todos:        make(map[string]*domain.Todo),
		users:        make(map[string]*domain.User),
		usersByEmail: make(map[string]string),
		now:          time.Now,
	}
}

// CreateTodo assigns the next ID, stamps CreatedAt = UpdatedAt = now, and
// stores the record.
func (s *Store) CreateTodo(ctx context.Context, draft repository.TodoDraft) (*domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	now := s.now().UTC()
	todo := &domain.Todo{
		ID:          strconv.FormatUint(s.seq, 10),
		UserID:      draft.UserID,
		Title:       draft.Title,
		Description: draft.Description,
		Status:      draft.Status,
		RemindAt:    cloneTime(draft.RemindAt),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if todo.RemindAt != nil {
		utc := todo.RemindAt.UTC()
		todo.RemindAt = &utc
	}
	s.todos[todo.ID] = todo
	s.order = append(s.order, todo.ID)
	return cloneTodo(todo), nil
}

// UpdateTodo merges the set fields of patch into an existing record. The new
// UpdatedAt is the caller-supplied value, or now when absent; if that
// candidate is not strictly after the record's current UpdatedAt it is forced
// to previous+1ns, so successive updates always carry strictly increasing
// timestamps even under coarse clock resolution.
func (s *Store) UpdateTodo(ctx context.Context, id string, patch repository.TodoPatch) (*domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.todos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	next := *cur
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.RemindAt != nil {
		utc := patch.RemindAt.UTC()
		next.RemindAt = &utc
	} else {
		next.RemindAt = cloneTime(cur.RemindAt)
	}
	if patch.DeletedAt != nil {
		utc := patch.DeletedAt.UTC()
		next.DeletedAt = &utc
	} else {
		next.DeletedAt = cloneTime(cur.DeletedAt)
	}

	stamp := s.now().UTC()
	if patch.UpdatedAt != nil {
		stamp = patch.UpdatedAt.UTC()
	}
	if !stamp.After(cur.UpdatedAt) {
		stamp = cur.UpdatedAt.Add(time.Nanosecond)
	}
	next.UpdatedAt = stamp

	s.todos[id] = &next
	return cloneTodo(&next), nil
}

// GetTodoByID returns a copy of the record or ErrNotFound.
func (s *Store) GetTodoByID(ctx context.Context, id string) (*domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	todo, ok := s.todos[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneTodo(todo), nil
}

// ListTodosByUser returns the user's todos in insertion order, soft-deleted
// records included.
func (s *Store) ListTodosByUser(ctx context.Context, userID string) ([]domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]domain.Todo, 0)
	for _, id := range s.order {
		todo := s.todos[id]
		if todo.UserID == userID {
			list = append(list, *cloneTodo(todo))
		}
	}
	return list, nil
}

// ListDueReminders returns PENDING todos whose RemindAt is set and not after
// asOf, in insertion order.
func (s *Store) ListDueReminders(ctx context.Context, asOf time.Time) ([]domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := make([]domain.Todo, 0)
	for _, id := range s.order {
		todo := s.todos[id]
		if todo.Status != domain.StatusPending || todo.RemindAt == nil {
			continue
		}
		if todo.RemindAt.After(asOf) {
			continue
		}
		list = append(list, *cloneTodo(todo))
	}
	return list, nil
}

// CreateUser stores a user record.
func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *user
	s.users[stored.ID] = &stored
	s.usersByEmail[strings.ToLower(stored.Email)] = stored.ID
	return nil
}

// GetUserByID returns a copy of the user or ErrNotFound.
func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUserByEmail resolves a user by email, case-insensitively.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.usersByEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *s.users[id]
	return &copied, nil
}

func cloneTodo(t *domain.Todo) *domain.Todo {
	copied := *t
	copied.RemindAt = cloneTime(t.RemindAt)
	copied.DeletedAt = cloneTime(t.DeletedAt)
	return &copied
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	copied := *t
	return &copied
}
