package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/task"
	"github.com/tiation/riggerhire/pkg/cerr"
)

func TestCheck(t *testing.T) {
	requester := Caller{ID: "p1", Role: actor.RoleRequester}
	stranger := Caller{ID: "p2", Role: actor.RoleRequester}
	w1 := Caller{ID: "w1", Role: actor.RoleWorker}
	w2 := Caller{ID: "w2", Role: actor.RoleWorker}

	taskIn := func(s task.Status) *task.Task {
		tk := &task.Task{ID: "t1", PosterID: "p1", Status: s}
		if s != task.StatusOpen && s != task.StatusCancelled {
			tk.AssigneeID = "w1"
		}
		return tk
	}
	app := func(s application.Status) *application.Application {
		return &application.Application{ID: "a1", TaskID: "t1", ApplicantID: "w1", Status: s}
	}

	tests := []struct {
		name   string
		caller Caller
		task   *task.Task
		app    *application.Application
		action Action
		want   cerr.Reason
	}{
		{"post", requester, nil, nil, ActionPost, ""},
		{"worker cannot post", w1, nil, nil, ActionPost, reason.WrongRole},
		{"anonymous", Caller{Role: actor.RoleRequester}, nil, nil, ActionPost, reason.Unauthorized},
		{"edit open", requester, taskIn(task.StatusOpen), nil, ActionEdit, ""},
		{"edit assigned", requester, taskIn(task.StatusAssigned), nil, ActionEdit, reason.TaskNotOpen},
		{"edit by stranger", stranger, taskIn(task.StatusOpen), nil, ActionEdit, reason.NotOwner},
		{"review assigned", requester, taskIn(task.StatusAssigned), nil, ActionReview, reason.TaskNotOpen},
		{"cancel in progress", requester, taskIn(task.StatusInProgress), nil, ActionCancel, ""},
		{"cancel completed", requester, taskIn(task.StatusCompleted), nil, ActionCancel, reason.CannotCancelCompleted},
		{"cancel cancelled", requester, taskIn(task.StatusCancelled), nil, ActionCancel, reason.WrongState},
		{"pay completed", requester, taskIn(task.StatusCompleted), nil, ActionPay, ""},
		{"pay in progress", requester, taskIn(task.StatusInProgress), nil, ActionPay, reason.TaskNotCompleted},
		{"release by stranger", stranger, taskIn(task.StatusCompleted), nil, ActionReleaseEscrow, reason.NotOwner},
		{"rate in progress", requester, taskIn(task.StatusInProgress), nil, ActionRate, reason.TaskNotCompleted},
		{"apply open", w2, taskIn(task.StatusOpen), nil, ActionApply, ""},
		{"apply assigned", w2, taskIn(task.StatusAssigned), nil, ActionApply, reason.TaskNotOpen},
		{"requester cannot apply", requester, taskIn(task.StatusOpen), nil, ActionApply, reason.WrongRole},
		{"withdraw pending", w1, taskIn(task.StatusOpen), app(application.StatusPending), ActionWithdraw, ""},
		{"withdraw accepted", w1, taskIn(task.StatusAssigned), app(application.StatusAccepted), ActionWithdraw, reason.ApplicationAlreadyReviewed},
		{"withdraw someone else's", w2, taskIn(task.StatusOpen), app(application.StatusPending), ActionWithdraw, reason.NotApplicant},
		{"update rejected", w1, taskIn(task.StatusOpen), app(application.StatusRejected), ActionUpdateApplication, reason.ApplicationAlreadyReviewed},
		{"start assigned", w1, taskIn(task.StatusAssigned), nil, ActionStart, ""},
		{"start by other worker", w2, taskIn(task.StatusAssigned), nil, ActionStart, reason.NotAssignee},
		{"start open", w1, taskIn(task.StatusOpen), nil, ActionStart, reason.NotAssignee},
		{"start in progress", w1, taskIn(task.StatusInProgress), nil, ActionStart, reason.WrongState},
		{"complete assigned", w1, taskIn(task.StatusAssigned), nil, ActionComplete, reason.WrongState},
		{"complete in progress", w1, taskIn(task.StatusInProgress), nil, ActionComplete, ""},
		{"unknown action", requester, taskIn(task.StatusOpen), nil, "teleport", reason.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Check(tt.caller, tt.task, tt.app, tt.action)
			if tt.want == "" {
				assert.True(t, d.Allowed, "denied: %s", d.Message)
				assert.NoError(t, d.Err())
				return
			}
			assert.False(t, d.Allowed)
			assert.Equal(t, tt.want, d.Kind)
			assert.Equal(t, tt.want, cerr.ReasonOf(d.Err()))
		})
	}
}

func TestCheck_AuthorizationReasonsArePermissionDenied(t *testing.T) {
	for _, r := range []cerr.Reason{reason.Unauthorized, reason.NotOwner, reason.NotApplicant, reason.NotAssignee, reason.WrongRole} {
		assert.True(t, reason.IsAuthorization(r), r)
		assert.True(t, cerr.HasReason(reason.New(r, "denied"), reason.Unauthorized), r)
	}
	assert.False(t, reason.IsAuthorization(reason.WrongState))
	assert.False(t, cerr.HasReason(reason.New(reason.WrongState, "task is open"), reason.Unauthorized))
}
