package store

import (
	"context"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/task"
)

type TaskFilter struct {
	PosterID      string
	AssigneeID    string
	Statuses      []task.Status
	PaymentStatus task.PaymentStatus
	Limit         int
	Offset        int
}

type ApplicationFilter struct {
	TaskID      string
	ApplicantID string
	PosterID    string
	Statuses    []application.Status
	RatedOnly   bool
}

// MutateFunc inspects a private copy of the snapshot and either changes it
// or returns an error. Returning an error discards every change.
type MutateFunc func(s *Snapshot) error

// Store persists tasks together with their applications. Update is the only
// way to change an existing task or any of its applications: it reads a
// fresh snapshot, runs mutate, and commits only if nothing else committed in
// between, otherwise it fails with reason ConcurrentModification.
type Store interface {
	CreateTask(ctx context.Context, t *task.Task) error
	GetTask(ctx context.Context, id string) (*task.Task, error)
	Snapshot(ctx context.Context, taskID string) (*Snapshot, error)
	GetApplication(ctx context.Context, id string) (*application.Application, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]*task.Task, int, error)
	ListApplications(ctx context.Context, f ApplicationFilter) ([]*application.Application, error)
	Update(ctx context.Context, taskID string, mutate MutateFunc) (*Snapshot, error)
	Close() error
}
