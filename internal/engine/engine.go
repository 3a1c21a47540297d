// Package engine implements the task and application lifecycle: admission,
// review, execution and settlement. Every transition is one Store.Update
// against a fresh snapshot of the task, checked by the eligibility table.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/actorsync"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/payment"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/pkg/keylock"
)

// Caller is the already authenticated actor issuing a request.
type Caller struct {
	ID   string     `json:"actorId"`
	Role actor.Role `json:"role"`
}

// SideEffects receives the actor aggregate updates implied by committed
// transitions. Implementations must not block or fail the caller.
type SideEffects interface {
	Enqueue(ctx context.Context, t actorsync.Transition, taskID string, p actorsync.Parties)
	EnqueueRating(ctx context.Context, applicantID string)
}

type Publisher interface {
	PublishNew(eventType event.Type, taskID string, version int64, metadata map[string]string)
}

type Engine struct {
	store     store.Store
	actors    actor.Repository
	gateway   payment.Gateway
	effects   SideEffects
	publisher Publisher

	ratings    *keylock.Locker
	now        func() time.Time
	newID      func() string
	staleAfter time.Duration
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithStaleAfter sets how old a pending payment attempt must be before
// Reconcile resolves it.
func WithStaleAfter(d time.Duration) Option {
	return func(e *Engine) { e.staleAfter = d }
}

func New(st store.Store, actors actor.Repository, gw payment.Gateway, effects SideEffects, opts ...Option) *Engine {
	e := &Engine{
		store:      st,
		actors:     actors,
		gateway:    gw,
		effects:    effects,
		ratings:    keylock.New(),
		now:        func() time.Time { return time.Now().UTC() },
		newID:      func() string { return ulid.Make().String() },
		staleAfter: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) publish(ctx context.Context, t event.Type, snap *store.Snapshot, metadata map[string]string) {
	slog.InfoContext(ctx, "task transition", "event", t, "task_id", snap.Task.ID, "version", snap.Task.Version)
	if e.publisher != nil {
		e.publisher.PublishNew(t, snap.Task.ID, snap.Task.Version, metadata)
	}
}
