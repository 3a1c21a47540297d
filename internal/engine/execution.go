package engine

import (
	"context"
	"strings"

	"github.com/tiation/riggerhire/internal/actorsync"
	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
)

const maxActualHours = 24 * 365

type CompletionInput struct {
	Notes       string   `json:"completionNotes,omitempty"`
	ActualHours *float64 `json:"actualHours,omitempty"`
}

func (e *Engine) StartTask(ctx context.Context, c Caller, taskID string) (*task.Task, error) {
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if err := Check(c, t, nil, ActionStart).Err(); err != nil {
			return err
		}
		now := e.now()
		t.Status = task.StatusInProgress
		t.ActualStartDate = &now
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.TaskStarted, snap, map[string]string{"assignee_id": c.ID})
	return snap.Task, nil
}

// CompleteTask finishes an in-progress task. The actor counters are
// updated afterwards through the side-effect queue.
func (e *Engine) CompleteTask(ctx context.Context, c Caller, taskID string, in CompletionInput) (*task.Task, error) {
	if in.ActualHours != nil && (*in.ActualHours < 0 || *in.ActualHours > maxActualHours) {
		return nil, reason.Invalid("actualHours", "range", "actual hours must be between 0 and %d", maxActualHours)
	}
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if err := Check(c, t, nil, ActionComplete).Err(); err != nil {
			return err
		}
		now := e.now()
		t.Status = task.StatusCompleted
		t.ActualEndDate = &now
		t.Completion = &task.Completion{Notes: strings.TrimSpace(in.Notes), ActualHours: in.ActualHours}
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.effects.Enqueue(ctx, actorsync.TaskCompleted, taskID, actorsync.Parties{PosterID: snap.Task.PosterID, WorkerID: c.ID})
	e.publish(ctx, event.TaskCompleted, snap, map[string]string{"assignee_id": c.ID})
	return snap.Task, nil
}

// CancelTask cancels a task that has not been completed. A cancelled
// assignment releases the assignee and rejects their application; pending
// applications are left as they are.
func (e *Engine) CancelTask(ctx context.Context, c Caller, taskID, cancelReason string) (*task.Task, error) {
	var released string
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if err := Check(c, t, nil, ActionCancel).Err(); err != nil {
			return err
		}
		now := e.now()
		released = t.AssigneeID
		if a := s.Accepted(); a != nil {
			a.Reject(now, application.RejectionTaskCancelled)
		}
		t.AssigneeID = ""
		t.Status = task.StatusCancelled
		t.Cancellation = &task.Cancellation{Reason: strings.TrimSpace(cancelReason), CancelledBy: c.ID, CancelledAt: now}
		t.CurrentApplicantCount = s.ActiveCount()
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.effects.Enqueue(ctx, actorsync.TaskCancelled, taskID, actorsync.Parties{PosterID: snap.Task.PosterID, WorkerID: released})
	e.publish(ctx, event.TaskCancelled, snap, map[string]string{"released_assignee_id": released})
	return snap.Task, nil
}
