package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/remindkit/remindd/internal/domain"
	"github.com/remindkit/remindd/internal/repository"
)

func TestCreateTodoStampsTimestamps(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := New()
	store.now = func() time.Time { return base }

	remind := base.Add(time.Hour)
	todo, err := store.CreateTodo(context.Background(), repository.TodoDraft{
		UserID:   "user-1",
		Title:    "water plants",
		Status:   domain.StatusPending,
		RemindAt: &remind,
	})
	if err != nil {
		t.Fatalf("CreateTodo returned error: %v", err)
	}
	if todo.ID == "" {
		t.Fatalf("expected assigned ID")
	}
	if !todo.CreatedAt.Equal(base) || !todo.UpdatedAt.Equal(base) {
		t.Fatalf("expected createdAt == updatedAt == %v, got %v / %v", base, todo.CreatedAt, todo.UpdatedAt)
	}
	if todo.RemindAt == nil || !todo.RemindAt.Equal(remind) {
		t.Fatalf("unexpected remindAt: %v", todo.RemindAt)
	}
}

func TestUpdateTodoUnknownIDIsNotFound(t *testing.T) {
	store := New()
	title := "anything"
	if _, err := store.UpdateTodo(context.Background(), "missing", repository.TodoPatch{Title: &title}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// An update must never materialize a record.
	if _, err := store.GetTodoByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("update created a record as a side effect")
	}
}

func TestUpdateTodoMonotonicUpdatedAt(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := New()
	store.now = func() time.Time { return base }

	todo, err := store.CreateTodo(context.Background(), repository.TodoDraft{UserID: "u", Title: "t", Status: domain.StatusPending})
	if err != nil {
		t.Fatalf("CreateTodo: %v", err)
	}

	// Three updates all supplying the same timestamp must still produce
	// strictly increasing, distinct UpdatedAt values.
	seen := []time.Time{todo.UpdatedAt}
	for i := 0; i < 3; i++ {
		stamp := base
		updated, err := store.UpdateTodo(context.Background(), todo.ID, repository.TodoPatch{UpdatedAt: &stamp})
		if err != nil {
			t.Fatalf("UpdateTodo %d: %v", i, err)
		}
		seen = append(seen, updated.UpdatedAt)
	}
	for i := 1; i < len(seen); i++ {
		if !seen[i].After(seen[i-1]) {
			t.Fatalf("updatedAt not strictly increasing: %v then %v", seen[i-1], seen[i])
		}
	}
}

func TestUpdateTodoUsesClockWhenNoTimestampSupplied(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := New()
	store.now = func() time.Time { return base }

	todo, _ := store.CreateTodo(context.Background(), repository.TodoDraft{UserID: "u", Title: "t", Status: domain.StatusPending})

	later := base.Add(time.Minute)
	store.now = func() time.Time { return later }
	status := domain.StatusDone
	updated, err := store.UpdateTodo(context.Background(), todo.ID, repository.TodoPatch{Status: &status})
	if err != nil {
		t.Fatalf("UpdateTodo: %v", err)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Fatalf("expected updatedAt %v, got %v", later, updated.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(base) {
		t.Fatalf("createdAt must not change, got %v", updated.CreatedAt)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	store := New()
	remind := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	todo, _ := store.CreateTodo(context.Background(), repository.TodoDraft{
		UserID: "u", Title: "original", Status: domain.StatusPending, RemindAt: &remind,
	})

	todo.Title = "mutated"
	*todo.RemindAt = todo.RemindAt.Add(24 * time.Hour)

	fresh, err := store.GetTodoByID(context.Background(), todo.ID)
	if err != nil {
		t.Fatalf("GetTodoByID: %v", err)
	}
	if fresh.Title != "original" {
		t.Fatalf("stored title mutated through returned copy: %q", fresh.Title)
	}
	if !fresh.RemindAt.Equal(remind) {
		t.Fatalf("stored remindAt mutated through returned copy: %v", fresh.RemindAt)
	}
}

func TestListDueRemindersSelection(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := New()
	store.now = func() time.Time { return base }
	ctx := context.Background()

	past := base.Add(-time.Minute)
	future := base.Add(time.Hour)

	due, _ := store.CreateTodo(ctx, repository.TodoDraft{UserID: "u", Title: "due", Status: domain.StatusPending, RemindAt: &past})
	exact, _ := store.CreateTodo(ctx, repository.TodoDraft{UserID: "u", Title: "exact", Status: domain.StatusPending, RemindAt: &base})
	store.CreateTodo(ctx, repository.TodoDraft{UserID: "u", Title: "future", Status: domain.StatusPending, RemindAt: &future})
	store.CreateTodo(ctx, repository.TodoDraft{UserID: "u", Title: "no reminder", Status: domain.StatusPending})
	doneStatus := domain.StatusDone
	finished, _ := store.CreateTodo(ctx, repository.TodoDraft{UserID: "u", Title: "done", Status: domain.StatusPending, RemindAt: &past})
	store.UpdateTodo(ctx, finished.ID, repository.TodoPatch{Status: &doneStatus})

	list, err := store.ListDueReminders(ctx, base)
	if err != nil {
		t.Fatalf("ListDueReminders: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 due reminders, got %d", len(list))
	}
	if list[0].ID != due.ID || list[1].ID != exact.ID {
		t.Fatalf("expected insertion order [%s %s], got [%s %s]", due.ID, exact.ID, list[0].ID, list[1].ID)
	}
}

func TestListTodosByUserIncludesDeletedInInsertionOrder(t *testing.T) {
	store := New()
	ctx := context.Background()

	first, _ := store.CreateTodo(ctx, repository.TodoDraft{UserID: "u1", Title: "first", Status: domain.StatusPending})
	store.CreateTodo(ctx, repository.TodoDraft{UserID: "u2", Title: "other user", Status: domain.StatusPending})
	second, _ := store.CreateTodo(ctx, repository.TodoDraft{UserID: "u1", Title: "second", Status: domain.StatusPending})

	deletedAt := time.Now().UTC()
	if _, err := store.UpdateTodo(ctx, first.ID, repository.TodoPatch{DeletedAt: &deletedAt}); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	list, err := store.ListTodosByUser(ctx, "u1")
	if err != nil {
		t.Fatalf("ListTodosByUser: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 todos including the soft-deleted one, got %d", len(list))
	}
	if list[0].ID != first.ID || list[1].ID != second.ID {
		t.Fatalf("unexpected order: [%s %s]", list[0].ID, list[1].ID)
	}
	if list[0].DeletedAt == nil {
		t.Fatalf("expected first todo to carry its deletion stamp")
	}
}

func TestUserLookup(t *testing.T) {
	store := New()
	ctx := context.Background()

	user := &domain.User{ID: "user-1", Email: "Ada@example.com", CreatedAt: time.Now().UTC()}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	got, err := store.GetUserByID(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.Email != user.Email {
		t.Fatalf("unexpected user: %+v", got)
	}

	byEmail, err := store.GetUserByEmail(ctx, "ada@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail.ID != "user-1" {
		t.Fatalf("unexpected user by email: %+v", byEmail)
	}

	if _, err := store.GetUserByID(ctx, "nope"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
