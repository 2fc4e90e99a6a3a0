// Package postgres implements the persistence interfaces on PostgreSQL via
// pgx. Timestamps are stored as timestamptz; the monotonic updated_at rule is
// enforced in SQL so it holds across replicas sharing the database.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/remindkit/remindd/internal/domain"
	"github.com/remindkit/remindd/internal/repository"
)

// Repository implements persistence interfaces on PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// New constructs a Repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ensure Repository satisfies interfaces.
var (
	_ repository.TodoRepository = (*Repository)(nil)
	_ repository.UserRepository = (*Repository)(nil)
)

const todoColumns = `id, user_id, title, description, status, remind_at, deleted_at, created_at, updated_at`

// CreateTodo inserts a todo and returns the stored record.
func (r *Repository) CreateTodo(ctx context.Context, draft repository.TodoDraft) (*domain.Todo, error) {
	const query = `INSERT INTO todos (id, user_id, title, description, status, remind_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING ` + todoColumns
	row := r.pool.QueryRow(ctx, query,
		uuid.NewString(),
		draft.UserID,
		draft.Title,
		draft.Description,
		draft.Status,
		timePtrToNil(draft.RemindAt),
	)
	todo, err := scanTodo(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return todo, nil
}

// UpdateTodo applies a partial update. The updated_at CASE keeps the stamp
// strictly increasing even when the supplied timestamp does not move forward:
// a stale or equal candidate falls back to the previous stamp plus one
// microsecond, the finest granularity timestamptz holds.
func (r *Repository) UpdateTodo(ctx context.Context, id string, patch repository.TodoPatch) (*domain.Todo, error) {
	const query = `UPDATE todos
		SET title = COALESCE($2, title),
			description = COALESCE($3, description),
			status = COALESCE($4, status),
			remind_at = COALESCE($5, remind_at),
			deleted_at = COALESCE($6, deleted_at),
			updated_at = CASE
				WHEN COALESCE($7::timestamptz, NOW()) > updated_at THEN COALESCE($7::timestamptz, NOW())
				ELSE updated_at + interval '1 microsecond'
			END
		WHERE id = $1
		RETURNING ` + todoColumns
	row := r.pool.QueryRow(ctx, query,
		id,
		stringPtrToNil(patch.Title),
		stringPtrToNil(patch.Description),
		statusPtrToNil(patch.Status),
		timePtrToNil(patch.RemindAt),
		timePtrToNil(patch.DeletedAt),
		timePtrToNil(patch.UpdatedAt),
	)
	todo, err := scanTodo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return todo, nil
}

// GetTodoByID fetches a single todo.
func (r *Repository) GetTodoByID(ctx context.Context, id string) (*domain.Todo, error) {
	const query = `SELECT ` + todoColumns + ` FROM todos WHERE id = $1`
	todo, err := scanTodo(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return todo, nil
}

// ListTodosByUser returns all of a user's todos in insertion order, soft
// deleted records included.
func (r *Repository) ListTodosByUser(ctx context.Context, userID string) ([]domain.Todo, error) {
	const query = `SELECT ` + todoColumns + ` FROM todos
		WHERE user_id = $1 ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := make([]domain.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, *todo)
	}
	return todos, rows.Err()
}

// ListDueReminders returns todos still PENDING whose reminder instant is at
// or before asOf.
func (r *Repository) ListDueReminders(ctx context.Context, asOf time.Time) ([]domain.Todo, error) {
	const query = `SELECT ` + todoColumns + ` FROM todos
		WHERE status = 'PENDING' AND remind_at IS NOT NULL AND remind_at <= $1
		ORDER BY created_at ASC, id ASC`
	rows, err := r.pool.Query(ctx, query, asOf.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	todos := make([]domain.Todo, 0)
	for rows.Next() {
		todo, err := scanTodo(rows)
		if err != nil {
			return nil, err
		}
		todos = append(todos, *todo)
	}
	return todos, rows.Err()
}

// CreateUser inserts a user.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	const query = `INSERT INTO users (id, email, name, created_at)
		VALUES ($1, $2, $3, $4)`
	_, err := r.pool.Exec(ctx, query, user.ID, user.Email, user.Name, user.CreatedAt)
	return err
}

// GetUserByID retrieves a user by identifier.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT id, email, name, created_at FROM users WHERE id = $1`
	row := r.pool.QueryRow(ctx, query, id)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by email, case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	const query = `SELECT id, email, name, created_at FROM users WHERE lower(email) = lower($1)`
	row := r.pool.QueryRow(ctx, query, email)
	var u domain.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func scanTodo(row pgx.Row) (*domain.Todo, error) {
	var (
		t         domain.Todo
		remindAt  sql.NullTime
		deletedAt sql.NullTime
	)
	if err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Status,
		&remindAt,
		&deletedAt,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if remindAt.Valid {
		value := remindAt.Time.UTC()
		t.RemindAt = &value
	}
	if deletedAt.Valid {
		value := deletedAt.Time.UTC()
		t.DeletedAt = &value
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return &t, nil
}

func stringPtrToNil(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func statusPtrToNil(v *domain.TodoStatus) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func timePtrToNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
