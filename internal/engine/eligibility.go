package engine

import (
	"fmt"
	"slices"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/task"
	"github.com/tiation/riggerhire/pkg/cerr"
)

type Action string

const (
	ActionPost              Action = "post"
	ActionEdit              Action = "edit"
	ActionCancel            Action = "cancel"
	ActionReview            Action = "review"
	ActionPay               Action = "pay"
	ActionReleaseEscrow     Action = "release_escrow"
	ActionRate              Action = "rate"
	ActionApply             Action = "apply"
	ActionUpdateApplication Action = "update_application"
	ActionWithdraw          Action = "withdraw"
	ActionStart             Action = "start"
	ActionComplete          Action = "complete"
)

type identity int

const (
	anyone identity = iota
	owner
	applicant
	assignee
)

type policy struct {
	role     actor.Role
	identity identity
	// states the task must be in; empty means any.
	states []task.Status
	// stateKind is the reason surfaced for a task in the wrong state.
	stateKind func(task.Status) cerr.Reason
	// pendingApplication requires the application to still be pending.
	pendingApplication bool
}

func always(r cerr.Reason) func(task.Status) cerr.Reason {
	return func(task.Status) cerr.Reason { return r }
}

var policies = map[Action]policy{
	ActionPost:   {role: actor.RoleRequester},
	ActionEdit:   {role: actor.RoleRequester, identity: owner, states: []task.Status{task.StatusOpen}, stateKind: always(reason.TaskNotOpen)},
	ActionReview: {role: actor.RoleRequester, identity: owner, states: []task.Status{task.StatusOpen}, stateKind: always(reason.TaskNotOpen)},
	ActionCancel: {
		role:     actor.RoleRequester,
		identity: owner,
		states:   []task.Status{task.StatusOpen, task.StatusAssigned, task.StatusInProgress},
		stateKind: func(s task.Status) cerr.Reason {
			if s == task.StatusCompleted {
				return reason.CannotCancelCompleted
			}
			return reason.WrongState
		},
	},
	ActionPay:           {role: actor.RoleRequester, identity: owner, states: []task.Status{task.StatusCompleted}, stateKind: always(reason.TaskNotCompleted)},
	ActionReleaseEscrow: {role: actor.RoleRequester, identity: owner, states: []task.Status{task.StatusCompleted}, stateKind: always(reason.TaskNotCompleted)},
	ActionRate:          {role: actor.RoleRequester, identity: owner, states: []task.Status{task.StatusCompleted}, stateKind: always(reason.TaskNotCompleted)},

	ActionApply:             {role: actor.RoleWorker, states: []task.Status{task.StatusOpen}, stateKind: always(reason.TaskNotOpen)},
	ActionUpdateApplication: {role: actor.RoleWorker, identity: applicant, pendingApplication: true},
	ActionWithdraw:          {role: actor.RoleWorker, identity: applicant, pendingApplication: true},
	ActionStart:             {role: actor.RoleWorker, identity: assignee, states: []task.Status{task.StatusAssigned}, stateKind: always(reason.WrongState)},
	ActionComplete:          {role: actor.RoleWorker, identity: assignee, states: []task.Status{task.StatusInProgress}, stateKind: always(reason.WrongState)},
}

// Decision is the outcome of an eligibility check. Reason is the rule that
// denied the action; Kind is the error reason surfaced to the caller.
type Decision struct {
	Allowed bool
	Reason  cerr.Reason
	Kind    cerr.Reason
	Message string
}

var allow = Decision{Allowed: true}

func deny(r, kind cerr.Reason, format string, args ...any) Decision {
	return Decision{Reason: r, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return reason.New(d.Kind, "%s", d.Message)
}

// Check reports whether c may perform action on t (and a, for application
// actions). Role and identity are checked before state. It has no side
// effects; callers run it inside the atomic unit against the fresh snapshot.
func Check(c Caller, t *task.Task, a *application.Application, action Action) Decision {
	p, ok := policies[action]
	if !ok {
		return deny(reason.InvalidArgument, reason.InvalidArgument, "unknown action %q", action)
	}
	if c.ID == "" {
		return deny(reason.Unauthorized, reason.Unauthorized, "caller identity is required")
	}
	if c.Role != p.role {
		return deny(reason.WrongRole, reason.WrongRole, "only a %s may %s", p.role, action)
	}

	switch p.identity {
	case owner:
		if t == nil || t.PosterID != c.ID {
			return deny(reason.NotOwner, reason.NotOwner, "only the task's poster may %s it", action)
		}
	case applicant:
		if a == nil || a.ApplicantID != c.ID {
			return deny(reason.NotApplicant, reason.NotApplicant, "only the applicant may %s this application", action)
		}
	case assignee:
		if t == nil || t.AssigneeID == "" || t.AssigneeID != c.ID {
			return deny(reason.NotAssignee, reason.NotAssignee, "only the assigned worker may %s the task", action)
		}
	}

	if len(p.states) > 0 && t != nil && !slices.Contains(p.states, t.Status) {
		return deny(reason.WrongState, p.stateKind(t.Status), "cannot %s a task that is %s", action, t.Status)
	}
	if p.pendingApplication && a != nil && a.Status != application.StatusPending {
		return deny(reason.WrongState, reason.ApplicationAlreadyReviewed, "application is already %s", a.Status)
	}
	return allow
}
