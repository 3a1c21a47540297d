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

type ReviewDecision string

const (
	DecisionAccept ReviewDecision = "accept"
	DecisionReject ReviewDecision = "reject"
)

type ReviewResult struct {
	Task        *task.Task                 `json:"task"`
	Application *application.Application   `json:"application"`
	Rejected    []*application.Application `json:"rejected,omitempty"`
}

// ReviewApplication accepts or rejects a pending application. Accepting
// assigns the task and rejects every other pending application in the same
// commit, so no caller can observe a partially applied cascade.
func (e *Engine) ReviewApplication(ctx context.Context, c Caller, taskID, applicationID string, decision ReviewDecision, message string) (*ReviewResult, error) {
	if decision != DecisionAccept && decision != DecisionReject {
		return nil, reason.New(reason.InvalidDecision, "decision must be accept or reject, got %q", decision)
	}
	message = strings.TrimSpace(message)

	var rejectedIDs []string
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		rejectedIDs = rejectedIDs[:0]
		t := s.Task
		if err := Check(c, t, nil, ActionReview).Err(); err != nil {
			return err
		}
		a := s.Application(applicationID)
		if a == nil {
			return reason.New(reason.NotFound, "application %s not found on task %s", applicationID, taskID)
		}
		if a.Status != application.StatusPending {
			return reason.New(reason.ApplicationAlreadyReviewed, "application is already %s", a.Status)
		}

		now := e.now()
		if decision == DecisionReject {
			r := message
			if r == "" {
				r = application.RejectionDefault
			}
			a.Reject(now, r)
			a.ReviewMessage = message
			t.CurrentApplicantCount--
			t.UpdatedAt = now
			return nil
		}

		a.Status = application.StatusAccepted
		a.ReviewedAt = &now
		a.ReviewMessage = message
		a.UpdatedAt = now
		t.AssigneeID = a.ApplicantID
		t.Status = task.StatusAssigned
		for _, other := range s.Applications {
			if other.ID != a.ID && other.Status == application.StatusPending {
				other.Reject(now, application.RejectionPositionFilled)
				rejectedIDs = append(rejectedIDs, other.ID)
			}
		}
		t.CurrentApplicantCount = s.ActiveCount()
		t.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	res := &ReviewResult{Task: snap.Task, Application: snap.Application(applicationID)}
	for _, id := range rejectedIDs {
		res.Rejected = append(res.Rejected, snap.Application(id))
	}
	meta := map[string]string{"application_id": applicationID, "applicant_id": res.Application.ApplicantID}
	if decision == DecisionReject {
		e.publish(ctx, event.ApplicationRejected, snap, meta)
		return res, nil
	}
	e.effects.Enqueue(ctx, actorsync.TaskAssigned, taskID, actorsync.Parties{PosterID: snap.Task.PosterID, WorkerID: snap.Task.AssigneeID})
	e.publish(ctx, event.ApplicationAccepted, snap, meta)
	e.publish(ctx, event.TaskAssigned, snap, map[string]string{"assignee_id": snap.Task.AssigneeID})
	return res, nil
}
