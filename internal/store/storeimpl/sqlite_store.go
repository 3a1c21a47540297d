package storeimpl

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/sqlitedb"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
	"github.com/tiation/riggerhire/pkg/cerr"
)

var _ store.Store = (*SQLiteStore)(nil)

// SQLiteStore keeps each record as a JSON body next to the columns used for
// filtering. Update runs in one transaction and bumps the task version with
// a conditional UPDATE.
type SQLiteStore struct {
	db *sqlitedb.DB
}

func NewSQLiteStore(db *sqlitedb.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func dbError(op string, err error) error {
	return cerr.NewError(cerr.Unavailable, "storage unavailable", fmt.Errorf("failed to %s: %w", op, err))
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (r *SQLiteStore) CreateTask(ctx context.Context, t *task.Task) error {
	c := t.Clone()
	if c.Version == 0 {
		c.Version = 1
	}
	if err := (&store.Snapshot{Task: c}).Validate(); err != nil {
		return cerr.NewError(cerr.InvalidArgument, "invalid task", err)
	}
	body, err := json.Marshal(c)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task: %w", err))
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tasks (id, poster_id, assignee_id, status, payment_status, version, created_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.PosterID, c.AssigneeID, c.Status, c.PaymentStatus, c.Version, ts(c.CreatedAt), string(body),
	)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return cerr.NewError(cerr.AlreadyExists, "task already exists", nil)
		}
		return dbError("insert task", err)
	}
	t.Version = c.Version
	return nil
}

func getTask(ctx context.Context, exec sqlitedb.Executor, id string) (*task.Task, error) {
	var body string
	err := exec.QueryRowContext(ctx, `SELECT body FROM tasks WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reason.New(reason.NotFound, "task not found")
	}
	if err != nil {
		return nil, dbError("get task", err)
	}
	var t task.Task
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal task: %w", err))
	}
	return &t, nil
}

func queryApplications(ctx context.Context, exec sqlitedb.Executor, where string, args ...any) ([]*application.Application, error) {
	q := `SELECT body FROM applications`
	if where != "" {
		q += " WHERE " + where
	}
	q += ` ORDER BY applied_at, id`
	rows, err := exec.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, dbError("query applications", err)
	}
	defer rows.Close()

	var out []*application.Application
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, dbError("scan application", err)
		}
		var a application.Application
		if err := json.Unmarshal([]byte(body), &a); err != nil {
			return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal application: %w", err))
		}
		out = append(out, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate applications", err)
	}
	return out, nil
}

func snapshot(ctx context.Context, exec sqlitedb.Executor, taskID string) (*store.Snapshot, error) {
	t, err := getTask(ctx, exec, taskID)
	if err != nil {
		return nil, err
	}
	apps, err := queryApplications(ctx, exec, "task_id = ?", taskID)
	if err != nil {
		return nil, err
	}
	if apps == nil {
		apps = []*application.Application{}
	}
	return &store.Snapshot{Task: t, Applications: apps}, nil
}

func (r *SQLiteStore) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return getTask(ctx, r.db, id)
}

func (r *SQLiteStore) Snapshot(ctx context.Context, taskID string) (*store.Snapshot, error) {
	return snapshot(ctx, r.db, taskID)
}

func (r *SQLiteStore) GetApplication(ctx context.Context, id string) (*application.Application, error) {
	apps, err := queryApplications(ctx, r.db, "id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(apps) == 0 {
		return nil, reason.New(reason.NotFound, "application not found")
	}
	return apps[0], nil
}

func inClause(column string, n int) string {
	return fmt.Sprintf("%s IN (%s)", column, strings.TrimSuffix(strings.Repeat("?,", n), ","))
}

func (r *SQLiteStore) ListTasks(ctx context.Context, f store.TaskFilter) ([]*task.Task, int, error) {
	var conds []string
	var args []any
	if f.PosterID != "" {
		conds = append(conds, "poster_id = ?")
		args = append(args, f.PosterID)
	}
	if f.AssigneeID != "" {
		conds = append(conds, "assignee_id = ?")
		args = append(args, f.AssigneeID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, inClause("status", len(f.Statuses)))
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.PaymentStatus != "" {
		conds = append(conds, "payment_status = ?")
		args = append(args, f.PaymentStatus)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, dbError("count tasks", err)
	}

	q := `SELECT body FROM tasks` + where + ` ORDER BY created_at, id`
	if f.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d OFFSET %d", f.Limit, f.Offset)
	} else if f.Offset > 0 {
		q += fmt.Sprintf(" LIMIT -1 OFFSET %d", f.Offset)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, dbError("list tasks", err)
	}
	defer rows.Close()

	var out []*task.Task
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, 0, dbError("scan task", err)
		}
		var t task.Task
		if err := json.Unmarshal([]byte(body), &t); err != nil {
			return nil, 0, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to unmarshal task: %w", err))
		}
		out = append(out, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, dbError("iterate tasks", err)
	}
	return out, total, nil
}

func (r *SQLiteStore) ListApplications(ctx context.Context, f store.ApplicationFilter) ([]*application.Application, error) {
	var conds []string
	var args []any
	if f.TaskID != "" {
		conds = append(conds, "task_id = ?")
		args = append(args, f.TaskID)
	}
	if f.ApplicantID != "" {
		conds = append(conds, "applicant_id = ?")
		args = append(args, f.ApplicantID)
	}
	if f.PosterID != "" {
		conds = append(conds, "poster_id = ?")
		args = append(args, f.PosterID)
	}
	if len(f.Statuses) > 0 {
		conds = append(conds, inClause("status", len(f.Statuses)))
		for _, s := range f.Statuses {
			args = append(args, s)
		}
	}
	if f.RatedOnly {
		conds = append(conds, "rated = 1")
	}
	return queryApplications(ctx, r.db, strings.Join(conds, " AND "), args...)
}

func (r *SQLiteStore) Update(ctx context.Context, taskID string, mutate store.MutateFunc) (*store.Snapshot, error) {
	var next *store.Snapshot
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		current, err := snapshot(ctx, tx, taskID)
		if err != nil {
			return err
		}
		next, err = store.Apply(current, mutate)
		if err != nil {
			return err
		}

		t := next.Task
		body, err := json.Marshal(t)
		if err != nil {
			return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal task: %w", err))
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET assignee_id = ?, status = ?, payment_status = ?, version = ?, body = ?
			WHERE id = ? AND version = ?`,
			t.AssigneeID, t.Status, t.PaymentStatus, t.Version, string(body), t.ID, current.Task.Version,
		)
		if err != nil {
			return dbError("update task", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return dbError("update task", err)
		} else if n == 0 {
			return reason.New(reason.ConcurrentModification, "task was modified concurrently")
		}

		for _, a := range next.Applications {
			if err := upsertApplication(ctx, tx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return next, nil
}

func upsertApplication(ctx context.Context, tx *sql.Tx, a *application.Application) error {
	body, err := json.Marshal(a)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal application: %w", err))
	}
	rated := 0
	if a.Rating != nil {
		rated = 1
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO applications (id, task_id, applicant_id, poster_id, status, rated, applied_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET status = excluded.status, rated = excluded.rated, body = excluded.body`,
		a.ID, a.TaskID, a.ApplicantID, a.PosterID, a.Status, rated, ts(a.AppliedAt), string(body),
	)
	if err != nil {
		if sqlitedb.IsUniqueViolation(err) {
			return reason.New(reason.DuplicateApplication, "applicant already applied to this task")
		}
		return dbError("upsert application", err)
	}
	return nil
}

func (r *SQLiteStore) Close() error {
	return r.db.Close()
}
