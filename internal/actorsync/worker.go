package actorsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/pkg/backoff"
	"github.com/tiation/riggerhire/pkg/panicerr"
)

// RatingRecomputer rebuilds an applicant's average rating from their rated
// applications and stores it on the actor.
type RatingRecomputer interface {
	RecomputeRating(ctx context.Context, applicantID string) error
}

type Config struct {
	PollInterval   time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Worker struct {
	queue   *Queue
	actors  actor.Repository
	ratings RatingRecomputer
	cfg     Config
	now     func() time.Time
}

func NewWorker(q *Queue, actors actor.Repository, ratings RatingRecomputer, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = backoff.DefaultMax
	}
	return &Worker{queue: q, actors: actors, ratings: ratings, cfg: cfg, now: time.Now}
}

type Result struct {
	Applied   int
	Failed    int
	Remaining int
}

// RunOnce processes every due job once. With force, jobs waiting on a
// backoff are processed too.
func (w *Worker) RunOnce(ctx context.Context, force bool) (Result, error) {
	var res Result
	jobs, err := w.queue.Pending(ctx)
	if err != nil {
		return res, err
	}
	for _, j := range jobs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !force && !j.Due(w.now()) {
			res.Remaining++
			continue
		}
		if err := w.process(ctx, j); err != nil {
			w.retryLater(ctx, j, err)
			res.Failed++
			res.Remaining++
			continue
		}
		if err := w.queue.Remove(ctx, j); err != nil {
			slog.WarnContext(ctx, "failed to remove finished outbox job", "job_id", j.ID, "error", err)
		}
		res.Applied++
	}
	return res, nil
}

func (w *Worker) process(ctx context.Context, j *Job) error {
	switch j.Kind {
	case KindCounters:
		for i := range j.Effects {
			e := &j.Effects[i]
			if e.Done {
				continue
			}
			if err := w.actors.IncrementCounter(ctx, e.ActorID, e.Counter, e.Delta); err != nil {
				return fmt.Errorf("increment %s of %s: %w", e.Counter, e.ActorID, err)
			}
			e.Done = true
			// Persist progress so a retry does not apply this effect again.
			w.queue.Save(ctx, j)
		}
		return nil
	case KindRating:
		if w.ratings == nil {
			return errors.New("no rating recomputer configured")
		}
		return w.ratings.RecomputeRating(ctx, j.ApplicantID)
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
}

func (w *Worker) retryLater(ctx context.Context, j *Job, err error) {
	j.Attempts++
	j.LastError = err.Error()
	delay := backoff.Delay(w.cfg.InitialBackoff, w.cfg.MaxBackoff, backoff.DefaultFactor, j.Attempts-1, w.cfg.InitialBackoff)
	j.NextAttemptAt = w.now().Add(delay)
	slog.WarnContext(ctx, "actor side effect failed",
		"job_id", j.ID, "kind", j.Kind, "task_id", j.TaskID, "attempts", j.Attempts, "retry_in", delay, "error", err)
	w.queue.Save(ctx, j)
}

// Drain processes jobs, ignoring backoff, until the outbox is empty or a
// round makes no progress.
func (w *Worker) Drain(ctx context.Context) (Result, error) {
	var total Result
	for {
		res, err := w.RunOnce(ctx, true)
		total.Applied += res.Applied
		total.Failed += res.Failed
		total.Remaining = res.Remaining
		if err != nil || res.Remaining == 0 || res.Applied == 0 {
			return total, err
		}
	}
}

// Run polls the outbox until ctx is done. A panic in one round is logged
// and the next round starts normally.
func (w *Worker) Run(ctx context.Context) error {
	slog.InfoContext(ctx, "actor sync worker started", "poll_interval", w.cfg.PollInterval)
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	round := panicerr.SafeContext(func(ctx context.Context) error {
		_, err := w.RunOnce(ctx, false)
		return err
	})
	for {
		if err := round(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "actor sync round failed", "error", err)
		}
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "actor sync worker stopped")
			return nil
		case <-ticker.C:
		case <-w.queue.Wake():
		}
	}
}
