package engine

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
)

// RateApplication lets the poster rate the worker of a completed task once.
// The applicant's average is recomputed afterwards; a failed recompute is
// queued and retried in the background.
func (e *Engine) RateApplication(ctx context.Context, c Caller, applicationID string, rating int, review string) (*application.Application, error) {
	if rating < application.MinRating || rating > application.MaxRating {
		return nil, reason.Invalid("rating", "range", "rating must be between %d and %d", application.MinRating, application.MaxRating)
	}
	review = strings.TrimSpace(review)
	if utf8.RuneCountInString(review) > application.MaxReviewLength {
		return nil, reason.Invalid("review", "max_len", "review must be at most %d characters", application.MaxReviewLength)
	}

	snap, a, err := e.mutateApplication(ctx, applicationID, func(s *store.Snapshot, a *application.Application) error {
		if err := Check(c, s.Task, a, ActionRate).Err(); err != nil {
			return err
		}
		if a.Status != application.StatusAccepted {
			return reason.New(reason.WrongState, "only the accepted application can be rated, this one is %s", a.Status)
		}
		if a.Rating != nil {
			return reason.New(reason.AlreadyRated, "application was already rated")
		}
		now := e.now()
		r := rating
		a.Rating = &r
		a.Review = review
		a.RatedAt = &now
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.ApplicationRated, snap, map[string]string{
		"application_id": applicationID,
		"applicant_id":   a.ApplicantID,
		"rating":         strconv.Itoa(rating),
	})

	if err := e.RecomputeRating(ctx, a.ApplicantID); err != nil {
		slog.WarnContext(ctx, "rating recompute failed, queued for retry", "applicant_id", a.ApplicantID, "error", err)
		e.effects.EnqueueRating(ctx, a.ApplicantID)
	}
	return a, nil
}

// RecomputeRating sets the applicant's average to the mean of all their
// rated applications, rounded to two decimals. Calls for the same applicant
// are serialized; the result is absolute, so repeating it is harmless.
func (e *Engine) RecomputeRating(ctx context.Context, applicantID string) error {
	unlock := e.ratings.Lock(applicantID)
	defer unlock()

	rated, err := e.store.ListApplications(ctx, store.ApplicationFilter{ApplicantID: applicantID, RatedOnly: true})
	if err != nil {
		return err
	}
	avg, n := averageRating(rated)
	return e.actors.SetRating(ctx, applicantID, avg, n)
}

func averageRating(apps []*application.Application) (decimal.Decimal, int) {
	var sum, n int64
	for _, a := range apps {
		if a.Rating == nil {
			continue
		}
		sum += int64(*a.Rating)
		n++
	}
	if n == 0 {
		return decimal.Zero, 0
	}
	return decimal.NewFromInt(sum).DivRound(decimal.NewFromInt(n), 2), int(n)
}
