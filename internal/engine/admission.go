package engine

import (
	"context"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
)

const maxMessageLength = 2000

func validateDetails(d application.Details) error {
	switch {
	case len(d.Message) > maxMessageLength:
		return reason.Invalid("message", "max_len", "message must be at most %d characters", maxMessageLength)
	case d.ProposedRate != nil && !d.ProposedRate.IsPositive():
		return reason.Invalid("proposedRate", "gt", "proposed rate must be positive")
	}
	return nil
}

// SubmitApplication creates a pending application. The open check, the
// duplicate check, the capacity check and the count increment all commit
// together or not at all.
func (e *Engine) SubmitApplication(ctx context.Context, c Caller, taskID string, d application.Details) (*application.Application, error) {
	if err := validateDetails(d); err != nil {
		return nil, err
	}
	now := e.now()
	a := &application.Application{
		ID:          e.newID(),
		TaskID:      taskID,
		ApplicantID: c.ID,
		Status:      application.StatusPending,
		AppliedAt:   now,
		UpdatedAt:   now,
	}
	a.Apply(d)

	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if err := Check(c, t, nil, ActionApply).Err(); err != nil {
			return err
		}
		if s.ApplicationBy(c.ID) != nil {
			return reason.New(reason.DuplicateApplication, "you have already applied to this task")
		}
		if !t.HasCapacity() {
			return reason.New(reason.CapacityExceeded, "task has reached its maximum of %d applicants", *t.MaxApplicants)
		}
		added := a.Clone()
		added.PosterID = t.PosterID
		s.AddApplication(added)
		t.CurrentApplicantCount++
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.ApplicationSubmitted, snap, map[string]string{"application_id": a.ID, "applicant_id": c.ID})
	return snap.Application(a.ID), nil
}

// mutateApplication runs fn inside the atomic unit of the application's task.
func (e *Engine) mutateApplication(ctx context.Context, applicationID string, fn func(s *store.Snapshot, a *application.Application) error) (*store.Snapshot, *application.Application, error) {
	current, err := e.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	snap, err := e.store.Update(ctx, current.TaskID, func(s *store.Snapshot) error {
		a := s.Application(applicationID)
		if a == nil {
			return reason.New(reason.NotFound, "application not found")
		}
		return fn(s, a)
	})
	if err != nil {
		return nil, nil, err
	}
	return snap, snap.Application(applicationID), nil
}

func (e *Engine) UpdateApplication(ctx context.Context, c Caller, applicationID string, d application.Details) (*application.Application, error) {
	if err := validateDetails(d); err != nil {
		return nil, err
	}
	snap, a, err := e.mutateApplication(ctx, applicationID, func(s *store.Snapshot, a *application.Application) error {
		if err := Check(c, s.Task, a, ActionUpdateApplication).Err(); err != nil {
			return err
		}
		a.Apply(d)
		a.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.ApplicationUpdated, snap, map[string]string{"application_id": applicationID})
	return a, nil
}

// WithdrawApplication withdraws a pending application and frees its slot.
// Accepted and rejected applications cannot be withdrawn.
func (e *Engine) WithdrawApplication(ctx context.Context, c Caller, applicationID string) (*application.Application, error) {
	snap, a, err := e.mutateApplication(ctx, applicationID, func(s *store.Snapshot, a *application.Application) error {
		if err := Check(c, s.Task, a, ActionWithdraw).Err(); err != nil {
			return err
		}
		now := e.now()
		a.Status = application.StatusWithdrawn
		a.WithdrawnAt = &now
		a.UpdatedAt = now
		s.Task.CurrentApplicantCount--
		s.Task.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.ApplicationWithdrawn, snap, map[string]string{"application_id": applicationID, "applicant_id": c.ID})
	return a, nil
}

// TaskApplications lists a task's applications for its poster.
func (e *Engine) TaskApplications(ctx context.Context, c Caller, taskID string) ([]*application.Application, error) {
	snap, err := e.store.Snapshot(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if c.ID == "" || snap.Task.PosterID != c.ID {
		return nil, reason.New(reason.NotOwner, "only the task's poster may list its applications")
	}
	return snap.Applications, nil
}

// MyApplications lists the caller's own applications.
func (e *Engine) MyApplications(ctx context.Context, c Caller, statuses []application.Status) ([]*application.Application, error) {
	if c.ID == "" {
		return nil, reason.New(reason.Unauthorized, "caller identity is required")
	}
	return e.store.ListApplications(ctx, store.ApplicationFilter{ApplicantID: c.ID, Statuses: statuses})
}
