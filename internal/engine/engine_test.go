package engine

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/actor/repositoryimpl"
	"github.com/tiation/riggerhire/internal/actorsync"
	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/payment"
	"github.com/tiation/riggerhire/internal/sqlitedb"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/store/storeimpl"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/storage"
)

var epoch = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

var poster = Caller{ID: "req-1", Role: actor.RoleRequester}

func worker(id string) Caller {
	return Caller{ID: id, Role: actor.RoleWorker}
}

type recorder struct {
	mu     sync.Mutex
	events []event.Type
}

func (r *recorder) PublishNew(t event.Type, _ string, _ int64, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, t)
}

func (r *recorder) types() []event.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event.Type(nil), r.events...)
}

type harness struct {
	engine *Engine
	store  store.Store
	actors actor.Repository
	queue  *actorsync.Queue
	sync   *actorsync.Worker
	gw     *payment.Simulated
	events *recorder
}

// harnesses builds one engine per store implementation. Both share nothing.
func harnesses(t *testing.T) map[string]*harness {
	t.Helper()
	out := make(map[string]*harness)

	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	out["yaml"] = newHarness(t, storeimpl.NewYAMLStore(local), repositoryimpl.NewYAMLRepository(local), local)

	db, err := sqlitedb.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	outbox, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	out["sqlite"] = newHarness(t, storeimpl.NewSQLiteStore(db), repositoryimpl.NewSQLiteRepository(db), outbox)
	return out
}

func newHarness(t *testing.T, st store.Store, actors actor.Repository, outbox storage.Storage) *harness {
	t.Helper()
	h := &harness{
		store:  st,
		actors: actors,
		queue:  actorsync.NewQueue(outbox),
		gw:     payment.NewSimulated(payment.SimulatedConfig{SuccessRate: 1}),
		events: &recorder{},
	}
	h.engine = New(st, actors, h.gw, h.queue,
		WithClock(func() time.Time { return epoch }),
		WithPublisher(h.events),
	)
	h.sync = actorsync.NewWorker(h.queue, actors, h.engine, actorsync.Config{})
	return h
}

func ptr[T any](v T) *T {
	return &v
}

func (h *harness) postTask(t *testing.T, maxApplicants *int) string {
	t.Helper()
	tk, err := h.engine.PostTask(context.Background(), poster, TaskInput{
		Title:          "Tower crane dogging",
		Description:    "Dogman needed for a two day lift",
		HourlyRate:     ptr(decimal.RequireFromString("50")),
		EstimatedHours: ptr(8.0),
		MaxApplicants:  maxApplicants,
	})
	require.NoError(t, err)
	return tk.ID
}

func (h *harness) apply(t *testing.T, taskID, workerID string) *application.Application {
	t.Helper()
	a, err := h.engine.SubmitApplication(context.Background(), worker(workerID), taskID, application.Details{Message: "Ticketed rigger, available now"})
	require.NoError(t, err)
	return a
}

// completed drives a task to completed with workerID assigned.
func (h *harness) completed(t *testing.T, workerID string) (string, *application.Application) {
	t.Helper()
	ctx := context.Background()
	taskID := h.postTask(t, nil)
	a := h.apply(t, taskID, workerID)
	_, err := h.engine.ReviewApplication(ctx, poster, taskID, a.ID, DecisionAccept, "")
	require.NoError(t, err)
	_, err = h.engine.StartTask(ctx, worker(workerID), taskID)
	require.NoError(t, err)
	_, err = h.engine.CompleteTask(ctx, worker(workerID), taskID, CompletionInput{ActualHours: ptr(8.0)})
	require.NoError(t, err)
	return taskID, a
}

func requireReason(t *testing.T, err error, want cerr.Reason) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want, cerr.ReasonOf(err), "error: %v", err)
}

// assertRoundTrip checks that the persisted snapshot survives a JSON and a
// YAML round trip unchanged and still satisfies its invariants.
func assertRoundTrip(t *testing.T, st store.Store, taskID string) {
	t.Helper()
	snap, err := st.Snapshot(context.Background(), taskID)
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	want, err := json.Marshal(snap)
	require.NoError(t, err)

	var fromJSON store.Snapshot
	require.NoError(t, json.Unmarshal(want, &fromJSON))
	got, err := json.Marshal(&fromJSON)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	y, err := yaml.Marshal(snap)
	require.NoError(t, err)
	var fromYAML store.Snapshot
	require.NoError(t, yaml.Unmarshal(y, &fromYAML))
	got, err = json.Marshal(&fromYAML)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))
}
