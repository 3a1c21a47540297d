// Package dispatch maps a closed set of request kinds onto engine
// operations. Integration surfaces (the HTTP dispatch endpoint and the MCP
// tool server) route every request through Dispatch.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
)

type Kind string

const (
	KindPostTask            Kind = "post_task"
	KindUpdateTask          Kind = "update_task"
	KindGetTask             Kind = "get_task"
	KindListTasks           Kind = "list_tasks"
	KindCancelTask          Kind = "cancel_task"
	KindStartTask           Kind = "start_task"
	KindCompleteTask        Kind = "complete_task"
	KindSubmitApplication   Kind = "submit_application"
	KindUpdateApplication   Kind = "update_application"
	KindWithdrawApplication Kind = "withdraw_application"
	KindReviewApplication   Kind = "review_application"
	KindTaskApplications    Kind = "list_task_applications"
	KindMyApplications      Kind = "list_my_applications"
	KindRateApplication     Kind = "rate_application"
	KindProcessPayment      Kind = "process_payment"
	KindReleaseEscrow       Kind = "release_escrow"
	KindApplicationStats    Kind = "application_stats"
	KindPaymentStats        Kind = "payment_stats"
	KindGetActor            Kind = "get_actor"
	KindRegisterActor       Kind = "register_actor"
)

// Request is one call through the dispatch table. Payload holds the
// kind-specific parameters as a JSON object.
type Request struct {
	Kind    Kind            `json:"kind"`
	Caller  engine.Caller   `json:"caller"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Handler func(ctx context.Context, e *engine.Engine, c engine.Caller, payload json.RawMessage) (any, error)

type Dispatcher struct {
	engine *engine.Engine
}

func New(e *engine.Engine) *Dispatcher {
	return &Dispatcher{engine: e}
}

// Kinds returns every registered kind in a stable order.
func Kinds() []Kind {
	out := make([]Kind, 0, len(handlers))
	for k := range handlers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Dispatch runs the handler registered for req.Kind. Unknown kinds fail
// with reason UnknownHandler.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	h, ok := handlers[req.Kind]
	if !ok {
		return nil, reason.New(reason.UnknownHandler, "no handler for request kind %q", req.Kind)
	}
	slog.DebugContext(ctx, "dispatching request", "kind", req.Kind, "actor_id", req.Caller.ID)
	return h(ctx, d.engine, req.Caller, req.Payload)
}

func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(payload)) == 0 {
		return v, nil
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, reason.Invalid("payload", "json", "invalid payload: %v", err)
	}
	return v, nil
}

// handle adapts a typed operation to a Handler.
func handle[P any](fn func(ctx context.Context, e *engine.Engine, c engine.Caller, p P) (any, error)) Handler {
	return func(ctx context.Context, e *engine.Engine, c engine.Caller, payload json.RawMessage) (any, error) {
		p, err := decode[P](payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, e, c, p)
	}
}

func required(field, value string) error {
	if value == "" {
		return reason.Invalid(field, "required", "%s is required", field)
	}
	return nil
}

type taskRef struct {
	TaskID string `json:"taskId"`
}

type applicationRef struct {
	ApplicationID string `json:"applicationId"`
}

type updateTaskPayload struct {
	TaskID string `json:"taskId"`
	engine.TaskInput
}

type listTasksPayload struct {
	PosterID      string `json:"posterId,omitempty"`
	AssigneeID    string `json:"assigneeId,omitempty"`
	Status        string `json:"status,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Offset        int    `json:"offset,omitempty"`
}

type ListTasksResult struct {
	Tasks []*task.Task `json:"tasks"`
	Total int          `json:"total"`
}

type cancelTaskPayload struct {
	TaskID string `json:"taskId"`
	Reason string `json:"reason,omitempty"`
}

type completeTaskPayload struct {
	TaskID string `json:"taskId"`
	engine.CompletionInput
}

type submitApplicationPayload struct {
	TaskID string `json:"taskId"`
	application.Details
}

type updateApplicationPayload struct {
	ApplicationID string `json:"applicationId"`
	application.Details
}

type reviewApplicationPayload struct {
	TaskID        string                `json:"taskId"`
	ApplicationID string                `json:"applicationId"`
	Decision      engine.ReviewDecision `json:"decision"`
	Message       string                `json:"message,omitempty"`
}

type myApplicationsPayload struct {
	Status string `json:"status,omitempty"`
}

type rateApplicationPayload struct {
	ApplicationID string `json:"applicationId"`
	Rating        int    `json:"rating"`
	Review        string `json:"review,omitempty"`
}

type processPaymentPayload struct {
	TaskID string `json:"taskId"`
	engine.PaymentInput
}

type actorRef struct {
	ActorID string `json:"actorId"`
}

func splitList[T ~string](s string) []T {
	var out []T
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, T(part))
		}
	}
	return out
}

var handlers = map[Kind]Handler{
	KindPostTask: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p engine.TaskInput) (any, error) {
		return e.PostTask(ctx, c, p)
	}),
	KindUpdateTask: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p updateTaskPayload) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.UpdateTask(ctx, c, p.TaskID, p.TaskInput)
	}),
	KindGetTask: handle(func(ctx context.Context, e *engine.Engine, _ engine.Caller, p taskRef) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.GetTask(ctx, p.TaskID)
	}),
	KindListTasks: handle(func(ctx context.Context, e *engine.Engine, _ engine.Caller, p listTasksPayload) (any, error) {
		tasks, total, err := e.ListTasks(ctx, store.TaskFilter{
			PosterID:      p.PosterID,
			AssigneeID:    p.AssigneeID,
			Statuses:      splitList[task.Status](p.Status),
			PaymentStatus: task.PaymentStatus(p.PaymentStatus),
			Limit:         p.Limit,
			Offset:        p.Offset,
		})
		if err != nil {
			return nil, err
		}
		return &ListTasksResult{Tasks: tasks, Total: total}, nil
	}),
	KindCancelTask: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p cancelTaskPayload) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.CancelTask(ctx, c, p.TaskID, p.Reason)
	}),
	KindStartTask: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p taskRef) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.StartTask(ctx, c, p.TaskID)
	}),
	KindCompleteTask: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p completeTaskPayload) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.CompleteTask(ctx, c, p.TaskID, p.CompletionInput)
	}),
	KindSubmitApplication: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p submitApplicationPayload) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.SubmitApplication(ctx, c, p.TaskID, p.Details)
	}),
	KindUpdateApplication: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p updateApplicationPayload) (any, error) {
		if err := required("applicationId", p.ApplicationID); err != nil {
			return nil, err
		}
		return e.UpdateApplication(ctx, c, p.ApplicationID, p.Details)
	}),
	KindWithdrawApplication: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p applicationRef) (any, error) {
		if err := required("applicationId", p.ApplicationID); err != nil {
			return nil, err
		}
		return e.WithdrawApplication(ctx, c, p.ApplicationID)
	}),
	KindReviewApplication: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p reviewApplicationPayload) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		if err := required("applicationId", p.ApplicationID); err != nil {
			return nil, err
		}
		return e.ReviewApplication(ctx, c, p.TaskID, p.ApplicationID, p.Decision, p.Message)
	}),
	KindTaskApplications: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p taskRef) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.TaskApplications(ctx, c, p.TaskID)
	}),
	KindMyApplications: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p myApplicationsPayload) (any, error) {
		return e.MyApplications(ctx, c, splitList[application.Status](p.Status))
	}),
	KindRateApplication: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p rateApplicationPayload) (any, error) {
		if err := required("applicationId", p.ApplicationID); err != nil {
			return nil, err
		}
		return e.RateApplication(ctx, c, p.ApplicationID, p.Rating, p.Review)
	}),
	KindProcessPayment: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p processPaymentPayload) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.ProcessPayment(ctx, c, p.TaskID, p.PaymentInput)
	}),
	KindReleaseEscrow: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p taskRef) (any, error) {
		if err := required("taskId", p.TaskID); err != nil {
			return nil, err
		}
		return e.ReleaseEscrow(ctx, c, p.TaskID)
	}),
	KindApplicationStats: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, _ struct{}) (any, error) {
		return e.ApplicationStats(ctx, c)
	}),
	KindPaymentStats: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, _ struct{}) (any, error) {
		return e.PaymentStats(ctx, c)
	}),
	KindGetActor: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, p actorRef) (any, error) {
		id := p.ActorID
		if id == "" {
			id = c.ID
		}
		if err := required("actorId", id); err != nil {
			return nil, err
		}
		return e.GetActor(ctx, id)
	}),
	KindRegisterActor: handle(func(ctx context.Context, e *engine.Engine, c engine.Caller, _ struct{}) (any, error) {
		return e.RegisterActor(ctx, c)
	}),
}
