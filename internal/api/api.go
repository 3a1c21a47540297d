// Package api serves the engine over JSON/HTTP. Responses and errors are
// handed to the cerr chi middleware, which renders them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/dispatch"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/internal/eventbus"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/clog"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

type Handler struct {
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	bus        *eventbus.Bus
}

func NewHandler(e *engine.Engine, d *dispatch.Dispatcher, bus *eventbus.Bus) *Handler {
	return &Handler{engine: e, dispatcher: d, bus: bus}
}

// Ping reports whether the engine can serve requests.
func (h *Handler) Ping(ctx context.Context) error {
	return h.engine.Ping(ctx)
}

// Mount registers every route on r, which is expected to be the /api router.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Post("/", h.PostTask)
		r.Get("/", h.ListTasks)
		r.Route("/{taskID}", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.Put("/", h.UpdateTask)
			r.Delete("/", h.CancelTask)
			r.Put("/start", h.StartTask)
			r.Put("/complete", h.CompleteTask)
			r.Get("/applications", h.TaskApplications)
			r.Post("/applications", h.SubmitApplication)
			r.Put("/applications/{applicationID}/review", h.ReviewApplication)
		})
	})
	r.Route("/applications", func(r chi.Router) {
		r.Get("/", h.MyApplications)
		r.Get("/stats", h.ApplicationStats)
		r.Put("/{applicationID}", h.UpdateApplication)
		r.Delete("/{applicationID}", h.WithdrawApplication)
		r.Post("/{applicationID}/rate", h.RateApplication)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Post("/tasks/{taskID}/process", h.ProcessPayment)
		r.Post("/escrow/{taskID}/release", h.ReleaseEscrow)
		r.Get("/stats", h.PaymentStats)
	})
	r.Post("/actors/me", h.RegisterActor)
	r.Get("/actors/{actorID}", h.GetActor)
	r.Post("/dispatch", h.Dispatch)
	r.Get("/events", h.Events)
}

// callerFrom reads the caller identity set by the authenticating proxy.
func callerFrom(r *http.Request) engine.Caller {
	c := engine.Caller{
		ID:   strings.TrimSpace(r.Header.Get(HeaderActorID)),
		Role: actor.Role(strings.TrimSpace(r.Header.Get(HeaderActorRole))),
	}
	if c.ID != "" {
		clog.AddAttribute(r.Context(), "actor_id", c.ID)
	}
	return c
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return reason.Invalid("body", "json", "invalid request body: %v", err)
	}
	return nil
}

func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, reason.Invalid(name, "uint", "%s must be a non-negative integer", name)
	}
	return n, nil
}

func respond(ctx context.Context, v any, err error) {
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponse(ctx, v)
}

func respondCreated(ctx context.Context, v any, err error) {
	if err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONResponseWithStatus(ctx, http.StatusCreated, v)
}
