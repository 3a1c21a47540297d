package actorsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/pkg/storage"
)

type fakeActors struct {
	mu       sync.Mutex
	counters map[string]map[string]int64
	failures int
	calls    int
}

func newFakeActors() *fakeActors {
	return &fakeActors{counters: map[string]map[string]int64{}}
}

func (f *fakeActors) Get(_ context.Context, id string) (*actor.Actor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &actor.Actor{ID: id, Counters: f.counters[id]}, nil
}

func (f *fakeActors) Register(context.Context, string, actor.Role) error { return nil }

func (f *fakeActors) IncrementCounter(_ context.Context, id, counter string, delta int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("actor store unavailable")
	}
	if f.counters[id] == nil {
		f.counters[id] = map[string]int64{}
	}
	f.counters[id][counter] += delta
	return nil
}

func (f *fakeActors) SetRating(context.Context, string, decimal.Decimal, int) error { return nil }

func (f *fakeActors) counter(id, name string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counters[id][name]
}

type recomputer struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (r *recomputer) RecomputeRating(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	return r.err
}

// flakyStorage fails writes while broken is set.
type flakyStorage struct {
	storage.Storage
	broken bool
}

func (s *flakyStorage) Write(ctx context.Context, path string, data []byte) error {
	if s.broken {
		return errors.New("disk full")
	}
	return s.Storage.Write(ctx, path, data)
}

func setup(t *testing.T) (*Queue, *Worker, *fakeActors, *recomputer, *flakyStorage) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	s := &flakyStorage{Storage: local}
	q := NewQueue(s)
	actors := newFakeActors()
	r := &recomputer{}
	w := NewWorker(q, actors, r, Config{InitialBackoff: time.Minute, MaxBackoff: time.Hour})
	return q, w, actors, r, s
}

func TestEffects(t *testing.T) {
	got, err := Effects(TaskCompleted, Parties{PosterID: "p1", WorkerID: "w1"})
	require.NoError(t, err)
	assert.Equal(t, []Effect{
		{ActorID: "w1", Counter: actor.CounterCompletedTasks, Delta: 1},
		{ActorID: "w1", Counter: actor.CounterActiveAssignments, Delta: -1},
		{ActorID: "p1", Counter: actor.CounterActiveTasks, Delta: -1},
	}, got)

	got, err = Effects(TaskCancelled, Parties{PosterID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, []Effect{{ActorID: "p1", Counter: actor.CounterActiveTasks, Delta: -1}}, got)

	_, err = Effects("task_exploded", Parties{PosterID: "p1"})
	assert.Error(t, err)
}

func TestWorker_AppliesEnqueuedEffects(t *testing.T) {
	ctx := context.Background()
	q, w, actors, _, _ := setup(t)

	q.Enqueue(ctx, TaskPosted, "t1", Parties{PosterID: "p1"})
	q.Enqueue(ctx, TaskAssigned, "t1", Parties{PosterID: "p1", WorkerID: "w1"})

	res, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, int64(1), actors.counter("p1", actor.CounterActiveTasks))
	assert.Equal(t, int64(1), actors.counter("p1", actor.CounterTotalTasksPosted))
	assert.Equal(t, int64(1), actors.counter("w1", actor.CounterActiveAssignments))

	jobs, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestWorker_RetriesWithBackoff(t *testing.T) {
	ctx := context.Background()
	q, w, actors, _, _ := setup(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }
	q.now = w.now

	q.Enqueue(ctx, TaskCancelled, "t1", Parties{PosterID: "p1", WorkerID: "w1"})
	actors.failures = 1

	res, err := w.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Remaining)

	jobs, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, 1, jobs[0].Attempts)
	assert.Equal(t, now.Add(time.Minute), jobs[0].NextAttemptAt)
	assert.NotEmpty(t, jobs[0].LastError)

	// Not yet due.
	res, err = w.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	assert.Equal(t, 1, res.Remaining)

	now = now.Add(time.Minute)
	res, err = w.RunOnce(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, int64(-1), actors.counter("p1", actor.CounterActiveTasks))
	assert.Equal(t, int64(-1), actors.counter("w1", actor.CounterActiveAssignments))
}

func TestWorker_PartialProgressIsNotReapplied(t *testing.T) {
	ctx := context.Background()
	q, w, actors, _, _ := setup(t)

	q.Enqueue(ctx, TaskCompleted, "t1", Parties{PosterID: "p1", WorkerID: "w1"})
	jobs, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	// Mark the first effect applied as if a previous round crashed after it.
	jobs[0].Effects[0].Done = true
	q.Save(ctx, jobs[0])

	_, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), actors.counter("w1", actor.CounterCompletedTasks))
	assert.Equal(t, int64(-1), actors.counter("w1", actor.CounterActiveAssignments))
	assert.Equal(t, int64(-1), actors.counter("p1", actor.CounterActiveTasks))
}

func TestQueue_HoldsJobsInMemoryWhenStorageFails(t *testing.T) {
	ctx := context.Background()
	q, w, actors, _, s := setup(t)

	s.broken = true
	q.Enqueue(ctx, TaskPosted, "t1", Parties{PosterID: "p1"})

	jobs, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	s.broken = false
	res, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Applied)
	assert.Equal(t, int64(1), actors.counter("p1", actor.CounterTotalTasksPosted))

	jobs, err = q.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestWorker_RatingJobs(t *testing.T) {
	ctx := context.Background()
	q, w, _, r, _ := setup(t)

	r.err = errors.New("actor store unavailable")
	q.EnqueueRating(ctx, "w1")
	res, err := w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remaining)

	r.err = nil
	res, err = w.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, []string{"w1", "w1"}, r.calls)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	q, w, actors, _, _ := setup(t)
	w.cfg.PollInterval = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	q.Enqueue(ctx, TaskPosted, "t1", Parties{PosterID: "p1"})
	assert.Eventually(t, func() bool {
		return actors.counter("p1", actor.CounterActiveTasks) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
