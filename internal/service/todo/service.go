// Package todo implements the todo lifecycle rules: input validation,
// cross-entity existence checks, the status state machine, and the periodic
// reminder sweep.
package todo

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/remindkit/remindd/internal/cache"
	"github.com/remindkit/remindd/internal/domain"
	"github.com/remindkit/remindd/internal/repository"
	"github.com/remindkit/remindd/internal/ws"
)

// CreateInput carries todo creation attributes. RemindAt, when non-empty,
// must be an RFC 3339 instant.
type CreateInput struct {
	UserID      string `json:"user_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	RemindAt    string `json:"remind_at"`
}

// ListOptions controls ListByUser. A Limit <= 0 means the remaining count.
type ListOptions struct {
	Limit          int
	Offset         int
	IncludeDeleted bool
}

// SweepSummary describes one reminder sweep.
type SweepSummary struct {
	SweptAt      time.Time
	Candidates   int
	Transitioned int
	Duration     time.Duration
}

// Service enforces the todo state machine over a TodoRepository. The cache
// and hub are optional; nil disables them.
type Service struct {
	todos  repository.TodoRepository
	users  repository.UserRepository
	cache  *cache.TodoCache
	hub    *ws.Hub
	sf     singleflight.Group
	logger *slog.Logger
	now    func() time.Time
}

// New returns a todo lifecycle service.
func New(todos repository.TodoRepository, users repository.UserRepository, c *cache.TodoCache, hub *ws.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "todo")
	initSweepMetrics()
	return &Service{
		todos:  todos,
		users:  users,
		cache:  c,
		hub:    hub,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates input, checks the owning user exists, and stores the todo
// as PENDING. Nothing is written when validation fails.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Todo, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return nil, validationf("user_id is required")
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, validationf("title is required")
	}

	var remindAt *time.Time
	if raw := strings.TrimSpace(in.RemindAt); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, validationf("remind_at is not a valid RFC 3339 instant: %q", raw)
		}
		utc := parsed.UTC()
		remindAt = &utc
	}

	if _, err := s.users.GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "user", ID: userID}
		}
		return nil, err
	}

	created, err := s.todos.CreateTodo(ctx, repository.TodoDraft{
		UserID:      userID,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Status:      domain.StatusPending,
		RemindAt:    remindAt,
	})
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, userID)
	s.logger.Info("todo created", "todo_id", created.ID, "user_id", userID, "remind_at", in.RemindAt)
	return created, nil
}

// Complete moves a todo to DONE. Completing an already-done todo returns it
// unchanged without a store write.
func (s *Service) Complete(ctx context.Context, todoID string) (*domain.Todo, error) {
	todoID = strings.TrimSpace(todoID)
	if todoID == "" {
		return nil, validationf("todo id is required")
	}

	current, err := s.todos.GetTodoByID(ctx, todoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "todo", ID: todoID}
		}
		return nil, err
	}
	if current.Status == domain.StatusDone {
		return current, nil
	}

	done := domain.StatusDone
	updated, err := s.todos.UpdateTodo(ctx, todoID, repository.TodoPatch{Status: &done})
	if err != nil {
		// The record vanished between lookup and update; the store never
		// deletes physically, so surface it as the same not-found contract.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "todo", ID: todoID}
		}
		return nil, err
	}
	s.invalidate(ctx, updated.UserID)
	s.logger.Info("todo completed", "todo_id", todoID, "user_id", updated.UserID)
	return updated, nil
}

// Get fetches a single todo by ID.
func (s *Service) Get(ctx context.Context, todoID string) (*domain.Todo, error) {
	todoID = strings.TrimSpace(todoID)
	if todoID == "" {
		return nil, validationf("todo id is required")
	}
	current, err := s.todos.GetTodoByID(ctx, todoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "todo", ID: todoID}
		}
		return nil, err
	}
	return current, nil
}

// ListByUser returns the user's todos, excluding soft-deleted ones unless
// opts.IncludeDeleted, paginated over the filtered, order-preserved sequence.
func (s *Service) ListByUser(ctx context.Context, userID string, opts ListOptions) ([]domain.Todo, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, validationf("user_id is required")
	}

	all, err := s.fetchUserTodos(ctx, userID)
	if err != nil {
		return nil, err
	}

	filtered := make([]domain.Todo, 0, len(all))
	for _, t := range all {
		if t.DeletedAt != nil && !opts.IncludeDeleted {
			continue
		}
		filtered = append(filtered, t)
	}

	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= len(filtered) {
		return []domain.Todo{}, nil
	}
	end := len(filtered)
	if opts.Limit > 0 && offset+opts.Limit < end {
		end = offset + opts.Limit
	}
	return filtered[offset:end], nil
}

// Delete soft-deletes a todo by stamping DeletedAt. Deleting an already
// deleted todo succeeds and re-stamps it.
func (s *Service) Delete(ctx context.Context, todoID string) (*domain.Todo, error) {
	todoID = strings.TrimSpace(todoID)
	if todoID == "" {
		return nil, validationf("todo id is required")
	}
	if _, err := s.todos.GetTodoByID(ctx, todoID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "todo", ID: todoID}
		}
		return nil, err
	}

	deletedAt := s.now().UTC()
	updated, err := s.todos.UpdateTodo(ctx, todoID, repository.TodoPatch{DeletedAt: &deletedAt})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, &NotFoundError{Entity: "todo", ID: todoID}
		}
		return nil, err
	}
	s.invalidate(ctx, updated.UserID)
	s.logger.Info("todo deleted", "todo_id", todoID, "user_id", updated.UserID)
	return updated, nil
}

// ProcessReminders promotes every PENDING, non-deleted todo whose reminder
// instant is at or before asOf to REMINDER_DUE. Candidates transitioned or
// deleted by a concurrent call are skipped, which keeps overlapping sweeps
// idempotent.
func (s *Service) ProcessReminders(ctx context.Context, asOf time.Time) (SweepSummary, error) {
	start := s.now()

	due, err := s.todos.ListDueReminders(ctx, asOf)
	if err != nil {
		return SweepSummary{SweptAt: asOf}, err
	}

	transitioned := 0
	for _, candidate := range due {
		if candidate.Status != domain.StatusPending || candidate.DeletedAt != nil {
			continue
		}
		status := domain.StatusReminderDue
		updated, err := s.todos.UpdateTodo(ctx, candidate.ID, repository.TodoPatch{Status: &status})
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			s.logger.Warn("reminder promotion failed", "todo_id", candidate.ID, "error", err)
			continue
		}
		transitioned++
		s.invalidate(ctx, updated.UserID)
		s.notifyReminder(updated)
	}

	summary := SweepSummary{
		SweptAt:      asOf,
		Candidates:   len(due),
		Transitioned: transitioned,
		Duration:     s.now().Sub(start),
	}
	sweepRuns.Inc()
	sweepPromoted.Add(float64(transitioned))
	sweepDuration.Observe(summary.Duration.Seconds())
	s.logger.Info("reminder sweep completed",
		"swept_at", summary.SweptAt.UTC().Format(time.RFC3339Nano),
		"candidates", summary.Candidates,
		"transitioned", summary.Transitioned,
		"duration_ms", summary.Duration.Milliseconds(),
	)
	return summary, nil
}

// fetchUserTodos reads the user's full list through the cache when one is
// configured, collapsing concurrent fills per user.
func (s *Service) fetchUserTodos(ctx context.Context, userID string) ([]domain.Todo, error) {
	if s.cache == nil {
		return s.todos.ListTodosByUser(ctx, userID)
	}
	v, err, _ := s.sf.Do("list:"+userID, func() (interface{}, error) {
		if list, err := s.cache.GetUserList(ctx, userID); err == nil && list != nil {
			return list, nil
		}
		list, err := s.todos.ListTodosByUser(ctx, userID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.SetUserList(ctx, userID, list); err != nil {
			s.logger.Warn("todo list cache write failed", "user_id", userID, "error", err)
		}
		return list, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Todo), nil
}

func (s *Service) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("todo list cache invalidation failed", "user_id", userID, "error", err)
	}
}

func (s *Service) notifyReminder(t *domain.Todo) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":       "reminder_due",
		"todo_id":     t.ID,
		"user_id":     t.UserID,
		"title":       t.Title,
		"status":      t.Status,
		"remind_at":   t.RemindAt,
		"occurred_at": t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		s.logger.Warn("failed to marshal reminder event", "todo_id", t.ID, "error", err)
		return
	}
	s.hub.Broadcast(t.UserID, payload)
}

// ParseListOptions builds ListOptions from raw query values. Unparsable
// numbers fall back to zero.
func ParseListOptions(limit, offset, includeDeleted string) ListOptions {
	var opts ListOptions
	opts.Limit, _ = strconv.Atoi(limit)
	opts.Offset, _ = strconv.Atoi(offset)
	opts.IncludeDeleted, _ = strconv.ParseBool(includeDeleted)
	return opts
}
