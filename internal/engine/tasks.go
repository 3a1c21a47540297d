package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tiation/riggerhire/internal/actorsync"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
)

const maxTitleLength = 200

// TaskInput holds the poster editable fields of a task.
type TaskInput struct {
	Title          string           `json:"title"`
	Description    string           `json:"description"`
	HourlyRate     *decimal.Decimal `json:"hourlyRate,omitempty"`
	EstimatedHours *float64         `json:"estimatedHours,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	MaxApplicants  *int             `json:"maxApplicants,omitempty"`
}

func (in *TaskInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	switch {
	case in.Title == "":
		return reason.Invalid("title", "required", "title is required")
	case len(in.Title) > maxTitleLength:
		return reason.Invalid("title", "max_len", "title must be at most %d characters", maxTitleLength)
	case in.HourlyRate != nil && !in.HourlyRate.IsPositive():
		return reason.Invalid("hourlyRate", "gt", "hourly rate must be positive")
	case in.EstimatedHours != nil && *in.EstimatedHours <= 0:
		return reason.Invalid("estimatedHours", "gt", "estimated hours must be positive")
	case in.MaxApplicants != nil && *in.MaxApplicants < 1:
		return reason.Invalid("maxApplicants", "gte", "max applicants must be at least 1")
	case in.Currency != "" && !slices.Contains(task.Currencies, in.Currency):
		return reason.Invalid("currency", "in", "currency must be one of %s", strings.Join(task.Currencies, ", "))
	}
	return nil
}

func (e *Engine) PostTask(ctx context.Context, c Caller, in TaskInput) (*task.Task, error) {
	if err := Check(c, nil, nil, ActionPost).Err(); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	now := e.now()
	t := &task.Task{
		ID:             e.newID(),
		PosterID:       c.ID,
		Title:          in.Title,
		Description:    in.Description,
		HourlyRate:     in.HourlyRate,
		EstimatedHours: in.EstimatedHours,
		Currency:       in.Currency,
		MaxApplicants:  in.MaxApplicants,
		Status:         task.StatusOpen,
		PaymentStatus:  task.PaymentUnbilled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if t.Currency == "" {
		t.Currency = task.DefaultCurrency
	}
	if err := e.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	e.effects.Enqueue(ctx, actorsync.TaskPosted, t.ID, actorsync.Parties{PosterID: c.ID})
	e.publish(ctx, event.TaskPosted, &store.Snapshot{Task: t}, map[string]string{"poster_id": c.ID})
	return t, nil
}

// UpdateTask edits an open task. Capacity may not drop below the number of
// active applications.
func (e *Engine) UpdateTask(ctx context.Context, c Caller, taskID string, in TaskInput) (*task.Task, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if err := Check(c, t, nil, ActionEdit).Err(); err != nil {
			return err
		}
		if in.MaxApplicants != nil && *in.MaxApplicants < t.CurrentApplicantCount {
			return reason.New(reason.CapacityExceeded, "task already has %d active applications", t.CurrentApplicantCount)
		}
		t.Title = in.Title
		t.Description = in.Description
		t.HourlyRate = in.HourlyRate
		t.EstimatedHours = in.EstimatedHours
		t.MaxApplicants = in.MaxApplicants
		if in.Currency != "" {
			t.Currency = in.Currency
		}
		t.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.TaskUpdated, snap, nil)
	return snap.Task, nil
}

func (e *Engine) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	return e.store.GetTask(ctx, taskID)
}

// Ping reports whether the task store answers a query.
func (e *Engine) Ping(ctx context.Context) error {
	_, _, err := e.store.ListTasks(ctx, store.TaskFilter{Limit: 1})
	return err
}

func (e *Engine) ListTasks(ctx context.Context, f store.TaskFilter) ([]*task.Task, int, error) {
	return e.store.ListTasks(ctx, f)
}
