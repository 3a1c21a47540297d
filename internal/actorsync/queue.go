package actorsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/storage"
)

const outboxPrefix = "outbox"

type Kind string

const (
	KindCounters Kind = "counters"
	KindRating   Kind = "rating"
)

type Job struct {
	ID            string     `yaml:"id"`
	Kind          Kind       `yaml:"kind"`
	Transition    Transition `yaml:"transition,omitempty"`
	TaskID        string     `yaml:"task_id,omitempty"`
	Effects       []Effect   `yaml:"effects,omitempty"`
	ApplicantID   string     `yaml:"applicant_id,omitempty"`
	Attempts      int        `yaml:"attempts"`
	NextAttemptAt time.Time  `yaml:"next_attempt_at"`
	LastError     string     `yaml:"last_error,omitempty"`
	CreatedAt     time.Time  `yaml:"created_at"`
}

func (j *Job) Due(now time.Time) bool {
	return !j.NextAttemptAt.After(now)
}

// Queue is the durable outbox. Jobs whose write fails are held in memory
// and written again by the worker.
type Queue struct {
	storage storage.Storage
	now     func() time.Time

	mu      sync.Mutex
	unsaved map[string]*Job
	wake    chan struct{}
}

func NewQueue(s storage.Storage) *Queue {
	return &Queue{
		storage: s,
		now:     time.Now,
		unsaved: make(map[string]*Job),
		wake:    make(chan struct{}, 1),
	}
}

func path(id string) string {
	return fmt.Sprintf("%s/%s.yaml", outboxPrefix, id)
}

// Enqueue records the counter effects of t. It never fails the caller.
func (q *Queue) Enqueue(ctx context.Context, t Transition, taskID string, p Parties) {
	effects, err := Effects(t, p)
	if err != nil {
		slog.ErrorContext(ctx, "dropping side effects of unknown transition", "transition", t, "task_id", taskID)
		return
	}
	if len(effects) == 0 {
		return
	}
	q.add(ctx, &Job{Kind: KindCounters, Transition: t, TaskID: taskID, Effects: effects})
}

// EnqueueRating schedules a recomputation of the applicant's average rating.
func (q *Queue) EnqueueRating(ctx context.Context, applicantID string) {
	q.add(ctx, &Job{Kind: KindRating, ApplicantID: applicantID})
}

func (q *Queue) add(ctx context.Context, j *Job) {
	now := q.now()
	j.ID = ulid.Make().String()
	j.CreatedAt = now
	j.NextAttemptAt = now
	q.Save(ctx, j)
	q.notify()
}

func (q *Queue) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Wake is signalled whenever a job is enqueued.
func (q *Queue) Wake() <-chan struct{} {
	return q.wake
}

// Save persists j, keeping it in memory when the write fails.
func (q *Queue) Save(ctx context.Context, j *Job) {
	err := q.write(ctx, j)

	q.mu.Lock()
	defer q.mu.Unlock()
	if err != nil {
		slog.WarnContext(ctx, "outbox write failed, holding job in memory", "job_id", j.ID, "error", err)
		q.unsaved[j.ID] = j
		return
	}
	delete(q.unsaved, j.ID)
}

func (q *Queue) write(ctx context.Context, j *Job) error {
	data, err := yaml.Marshal(j)
	if err != nil {
		return cerr.NewError(cerr.Internal, "server error", fmt.Errorf("failed to marshal job: %w", err))
	}
	if err := q.storage.Write(ctx, path(j.ID), data); err != nil {
		return cerr.WrapStorageWriteError("outbox job", err)
	}
	return nil
}

// Remove deletes a finished job.
func (q *Queue) Remove(ctx context.Context, j *Job) error {
	q.mu.Lock()
	_, inMemory := q.unsaved[j.ID]
	delete(q.unsaved, j.ID)
	q.mu.Unlock()

	err := q.storage.Delete(ctx, path(j.ID))
	if err != nil && !(inMemory && errors.Is(err, storage.ErrNotFound)) {
		return cerr.WrapStorageDeleteError("outbox job", err)
	}
	return nil
}

// Pending returns every job in the outbox, oldest first.
func (q *Queue) Pending(ctx context.Context) ([]*Job, error) {
	paths, err := q.storage.List(ctx, outboxPrefix)
	if err != nil {
		return nil, cerr.WrapStorageReadError("outbox", err)
	}

	jobs := make(map[string]*Job, len(paths))
	for _, p := range paths {
		data, err := q.storage.Read(ctx, p)
		if err != nil {
			continue
		}
		var j Job
		if err := yaml.Unmarshal(data, &j); err != nil {
			slog.WarnContext(ctx, "skipping malformed outbox job", "path", p, "error", err)
			continue
		}
		jobs[j.ID] = &j
	}
	q.mu.Lock()
	for id, j := range q.unsaved {
		jobs[id] = j
	}
	q.mu.Unlock()

	out := make([]*Job, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}
