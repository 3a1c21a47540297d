package repositoryimpl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/sqlitedb"
	"github.com/tiation/riggerhire/pkg/cerr"
)

var _ actor.Repository = (*SQLiteRepository)(nil)

type SQLiteRepository struct {
	db  *sqlitedb.DB
	now func() time.Time
}

func NewSQLiteRepository(db *sqlitedb.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

func dbError(op string, err error) error {
	return cerr.NewError(cerr.Unavailable, "storage unavailable", fmt.Errorf("failed to %s: %w", op, err))
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*actor.Actor, error) {
	var (
		a         = actor.Actor{ID: id, Counters: map[string]int64{}}
		avg       string
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT role, average_rating, rating_count, updated_at FROM actors WHERE id = ?`, id,
	).Scan(&a.Role, &avg, &a.RatingCount, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, reason.New(reason.NotFound, "actor not found")
	}
	if err != nil {
		return nil, dbError("get actor", err)
	}
	if a.AverageRating, err = decimal.NewFromString(avg); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("bad average rating %q: %w", avg, err))
	}
	if a.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, cerr.NewError(cerr.Internal, "server error", fmt.Errorf("bad updated_at %q: %w", updatedAt, err))
	}

	rows, err := r.db.QueryContext(ctx, `SELECT name, value FROM actor_counters WHERE actor_id = ?`, id)
	if err != nil {
		return nil, dbError("get actor counters", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			name  string
			value int64
		)
		if err := rows.Scan(&name, &value); err != nil {
			return nil, dbError("scan actor counter", err)
		}
		a.Counters[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate actor counters", err)
	}
	return &a, nil
}

func ensureActor(ctx context.Context, exec sqlitedb.Executor, id string, now time.Time) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO actors (id, updated_at) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET updated_at = excluded.updated_at`,
		id, now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return dbError("upsert actor", err)
	}
	return nil
}

func (r *SQLiteRepository) Register(ctx context.Context, id string, role actor.Role) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := ensureActor(ctx, tx, id, r.now()); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE actors SET role = ? WHERE id = ?`, role, id); err != nil {
			return dbError("set actor role", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) IncrementCounter(ctx context.Context, id, counter string, delta int64) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := ensureActor(ctx, tx, id, r.now()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO actor_counters (actor_id, name, value) VALUES (?, ?, ?)
			ON CONFLICT (actor_id, name) DO UPDATE SET value = value + excluded.value`,
			id, counter, delta,
		)
		if err != nil {
			return dbError("increment actor counter", err)
		}
		return nil
	})
}

func (r *SQLiteRepository) SetRating(ctx context.Context, id string, average decimal.Decimal, count int) error {
	return r.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := ensureActor(ctx, tx, id, r.now()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE actors SET average_rating = ?, rating_count = ? WHERE id = ?`,
			average.StringFixed(2), count, id,
		)
		if err != nil {
			return dbError("set actor rating", err)
		}
		return nil
	})
}
