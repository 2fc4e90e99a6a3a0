package todo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/remindkit/remindd/internal/domain"
	"github.com/remindkit/remindd/internal/repository/memory"
)

var testClock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := New(store, store, nil, nil, log)
	svc.now = func() time.Time { return testClock }
	if err := store.CreateUser(context.Background(), &domain.User{
		ID: "user-1", Email: "u1@example.com", CreatedAt: testClock,
	}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return svc, store
}

func mustCreate(t *testing.T, svc *Service, in CreateInput) *domain.Todo {
	t.Helper()
	created, err := svc.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create(%+v): %v", in, err)
	}
	return created
}

func TestCreateDefaults(t *testing.T) {
	svc, _ := newTestService(t)

	remind := testClock.Add(time.Hour).Format(time.RFC3339)
	created := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "  water plants  ", RemindAt: remind})

	if created.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", created.Status)
	}
	if created.Title != "water plants" {
		t.Fatalf("expected trimmed title, got %q", created.Title)
	}
	if !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("expected createdAt == updatedAt, got %v / %v", created.CreatedAt, created.UpdatedAt)
	}
	if created.RemindAt == nil || !created.RemindAt.Equal(testClock.Add(time.Hour)) {
		t.Fatalf("unexpected remindAt: %v", created.RemindAt)
	}

	plain := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "no reminder"})
	if plain.RemindAt != nil {
		t.Fatalf("expected absent remindAt, got %v", plain.RemindAt)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []CreateInput{
		{UserID: "", Title: "x"},
		{UserID: "user-1", Title: "   "},
		{UserID: "user-1", Title: "x", RemindAt: "tomorrow-ish"},
	}
	for _, in := range cases {
		var ve *ValidationError
		if _, err := svc.Create(ctx, in); !errors.As(err, &ve) {
			t.Fatalf("Create(%+v): expected ValidationError, got %v", in, err)
		}
	}

	var nfe *NotFoundError
	if _, err := svc.Create(ctx, CreateInput{UserID: "ghost", Title: "x"}); !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError for unknown user, got %v", err)
	}
	if nfe.Entity != "user" {
		t.Fatalf("expected user not-found, got %+v", nfe)
	}

	// None of the failures may have written to the store.
	list, err := svc.ListByUser(ctx, "user-1", ListOptions{IncludeDeleted: true})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no store writes on validation failure, found %d todos", len(list))
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "task"})

	first, err := svc.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if first.Status != domain.StatusDone {
		t.Fatalf("expected DONE, got %s", first.Status)
	}
	if !first.UpdatedAt.After(created.UpdatedAt) {
		t.Fatalf("expected updatedAt to advance on completion")
	}

	second, err := svc.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if second.Status != domain.StatusDone || !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("second completion must be a no-op: %v vs %v", second.UpdatedAt, first.UpdatedAt)
	}
}

func TestCompleteErrors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	var ve *ValidationError
	if _, err := svc.Complete(ctx, "  "); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for empty id, got %v", err)
	}
	var nfe *NotFoundError
	if _, err := svc.Complete(ctx, "999"); !errors.As(err, &nfe) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestProcessRemindersPromotesExactlyDueTodos(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	past := testClock.Add(-time.Minute).Format(time.RFC3339)
	future := testClock.Add(time.Hour).Format(time.RFC3339)

	due := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "due", RemindAt: past})
	notYet := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "not yet", RemindAt: future})
	noReminder := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "no reminder"})
	deleted := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "deleted", RemindAt: past})
	if _, err := svc.Delete(ctx, deleted.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	completed := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "completed", RemindAt: past})
	if _, err := svc.Complete(ctx, completed.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	summary, err := svc.ProcessReminders(ctx, testClock)
	if err != nil {
		t.Fatalf("ProcessReminders: %v", err)
	}
	if summary.Transitioned != 1 {
		t.Fatalf("expected exactly 1 transition, got %+v", summary)
	}

	assertStatus := func(id string, want domain.TodoStatus) {
		t.Helper()
		list, _ := svc.ListByUser(ctx, "user-1", ListOptions{IncludeDeleted: true})
		for _, item := range list {
			if item.ID == id {
				if item.Status != want {
					t.Fatalf("todo %s: expected %s, got %s", id, want, item.Status)
				}
				return
			}
		}
		t.Fatalf("todo %s not found", id)
	}
	assertStatus(due.ID, domain.StatusReminderDue)
	assertStatus(notYet.ID, domain.StatusPending)
	assertStatus(noReminder.ID, domain.StatusPending)
	assertStatus(deleted.ID, domain.StatusPending)
	assertStatus(completed.ID, domain.StatusDone)

	// A second sweep at the same instant finds no remaining candidates.
	again, err := svc.ProcessReminders(ctx, testClock)
	if err != nil {
		t.Fatalf("second ProcessReminders: %v", err)
	}
	if again.Transitioned != 0 {
		t.Fatalf("expected idempotent second sweep, got %+v", again)
	}
}

func TestProcessRemindersEmptyStore(t *testing.T) {
	svc, _ := newTestService(t)
	summary, err := svc.ProcessReminders(context.Background(), testClock)
	if err != nil {
		t.Fatalf("ProcessReminders on empty store: %v", err)
	}
	if summary.Candidates != 0 || summary.Transitioned != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

func TestDeleteHidesTodoFromDefaultListing(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	keep := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "keep"})
	drop := mustCreate(t, svc, CreateInput{UserID: "user-1", Title: "drop"})

	deleted, err := svc.Delete(ctx, drop.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if deleted.DeletedAt == nil {
		t.Fatalf("expected deletedAt to be set")
	}

	visible, _ := svc.ListByUser(ctx, "user-1", ListOptions{})
	if len(visible) != 1 || visible[0].ID != keep.ID {
		t.Fatalf("expected only the kept todo, got %+v", visible)
	}

	all, _ := svc.ListByUser(ctx, "user-1", ListOptions{IncludeDeleted: true})
	if len(all) != 2 {
		t.Fatalf("expected both todos with IncludeDeleted, got %d", len(all))
	}

	// Double delete still succeeds and re-stamps.
	if _, err := svc.Delete(ctx, drop.ID); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
}

func TestListByUserPagination(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	titles := []string{"a", "b", "c", "d", "e"}
	ids := make([]string, 0, len(titles))
	for _, title := range titles {
		ids = append(ids, mustCreate(t, svc, CreateInput{UserID: "user-1", Title: title}).ID)
	}

	page, err := svc.ListByUser(ctx, "user-1", ListOptions{Limit: 2, Offset: 3})
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[3] || page[1].ID != ids[4] {
		t.Fatalf("expected todos at positions 3-4, got %+v", page)
	}

	// Negative offset clamps to zero; oversized offset yields an empty page.
	page, _ = svc.ListByUser(ctx, "user-1", ListOptions{Limit: 1, Offset: -5})
	if len(page) != 1 || page[0].ID != ids[0] {
		t.Fatalf("expected clamped offset to return first todo, got %+v", page)
	}
	page, _ = svc.ListByUser(ctx, "user-1", ListOptions{Offset: 10})
	if len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %+v", page)
	}
}

func TestReminderLifecycleScenario(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created := mustCreate(t, svc, CreateInput{
		UserID:   "user-1",
		Title:    "call dentist",
		RemindAt: testClock.Format(time.RFC3339),
	})

	if _, err := svc.ProcessReminders(ctx, testClock); err != nil {
		t.Fatalf("ProcessReminders: %v", err)
	}
	list, _ := svc.ListByUser(ctx, "user-1", ListOptions{})
	if list[0].Status != domain.StatusReminderDue {
		t.Fatalf("expected REMINDER_DUE after sweep, got %s", list[0].Status)
	}

	done, err := svc.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != domain.StatusDone {
		t.Fatalf("expected DONE, got %s", done.Status)
	}

	again, err := svc.Complete(ctx, created.ID)
	if err != nil {
		t.Fatalf("repeat Complete: %v", err)
	}
	if !again.UpdatedAt.Equal(done.UpdatedAt) {
		t.Fatalf("repeat completion changed updatedAt: %v vs %v", again.UpdatedAt, done.UpdatedAt)
	}
}
