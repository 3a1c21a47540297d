package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
)

type WorkerApplicationStats struct {
	Total         int             `json:"total"`
	Pending       int             `json:"pending"`
	Accepted      int             `json:"accepted"`
	Rejected      int             `json:"rejected"`
	Withdrawn     int             `json:"withdrawn"`
	AverageRating decimal.Decimal `json:"averageRating"`
	TotalRatings  int             `json:"totalRatings"`
}

type RequesterApplicationStats struct {
	TasksPosted          int `json:"tasksPosted"`
	ApplicationsReceived int `json:"applicationsReceived"`
	PendingReviews       int `json:"pendingReviews"`
	ActiveTasks          int `json:"activeTasks"`
	CompletedTasks       int `json:"completedTasks"`
}

// ApplicationStats holds the section for the caller's role; the other is nil.
type ApplicationStats struct {
	Worker    *WorkerApplicationStats    `json:"worker,omitempty"`
	Requester *RequesterApplicationStats `json:"requester,omitempty"`
}

func (e *Engine) ApplicationStats(ctx context.Context, c Caller) (*ApplicationStats, error) {
	if c.ID == "" {
		return nil, reason.New(reason.Unauthorized, "caller identity is required")
	}
	switch c.Role {
	case actor.RoleWorker:
		apps, err := e.store.ListApplications(ctx, store.ApplicationFilter{ApplicantID: c.ID})
		if err != nil {
			return nil, err
		}
		s := &WorkerApplicationStats{Total: len(apps)}
		for _, a := range apps {
			switch a.Status {
			case application.StatusPending:
				s.Pending++
			case application.StatusAccepted:
				s.Accepted++
			case application.StatusRejected:
				s.Rejected++
			case application.StatusWithdrawn:
				s.Withdrawn++
			}
		}
		s.AverageRating, s.TotalRatings = averageRating(apps)
		return &ApplicationStats{Worker: s}, nil

	case actor.RoleRequester:
		tasks, _, err := e.store.ListTasks(ctx, store.TaskFilter{PosterID: c.ID})
		if err != nil {
			return nil, err
		}
		apps, err := e.store.ListApplications(ctx, store.ApplicationFilter{PosterID: c.ID})
		if err != nil {
			return nil, err
		}
		s := &RequesterApplicationStats{TasksPosted: len(tasks), ApplicationsReceived: len(apps)}
		for _, a := range apps {
			if a.Status == application.StatusPending {
				s.PendingReviews++
			}
		}
		for _, t := range tasks {
			switch t.Status {
			case task.StatusOpen, task.StatusAssigned, task.StatusInProgress:
				s.ActiveTasks++
			case task.StatusCompleted:
				s.CompletedTasks++
			}
		}
		return &ApplicationStats{Requester: s}, nil
	}
	return nil, reason.New(reason.WrongRole, "unknown role %q", c.Role)
}

type WorkerPaymentStats struct {
	TotalEarnings        decimal.Decimal `json:"totalEarnings"`
	TotalTips            decimal.Decimal `json:"totalTips"`
	TotalGross           decimal.Decimal `json:"totalGross"`
	TotalHours           float64         `json:"totalHours"`
	AverageHourlyRate    decimal.Decimal `json:"averageHourlyRate"`
	CompletedTasks       int             `json:"completedTasks"`
	CurrentMonthEarnings decimal.Decimal `json:"currentMonthEarnings"`
	PendingPayments      int             `json:"pendingPayments"`
}

type RequesterPaymentStats struct {
	TotalSpent           decimal.Decimal `json:"totalSpent"`
	TotalTasks           int             `json:"totalTasks"`
	AverageTaskCost      decimal.Decimal `json:"averageTaskCost"`
	CurrentMonthSpending decimal.Decimal `json:"currentMonthSpending"`
	PendingPayments      int             `json:"pendingPayments"`
}

type PaymentStats struct {
	Worker    *WorkerPaymentStats    `json:"worker,omitempty"`
	Requester *RequesterPaymentStats `json:"requester,omitempty"`
}

// PaymentStats summarizes paid tasks. Escrowed charges are not counted
// until released.
func (e *Engine) PaymentStats(ctx context.Context, c Caller) (*PaymentStats, error) {
	if c.ID == "" {
		return nil, reason.New(reason.Unauthorized, "caller identity is required")
	}
	var f store.TaskFilter
	switch c.Role {
	case actor.RoleWorker:
		f.AssigneeID = c.ID
	case actor.RoleRequester:
		f.PosterID = c.ID
	default:
		return nil, reason.New(reason.WrongRole, "unknown role %q", c.Role)
	}
	f.PaymentStatus = task.PaymentPaid
	paid, _, err := e.store.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	f.PaymentStatus = task.PaymentPending
	_, pending, err := e.store.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}

	now := e.now()
	thisMonth := func(r *task.PaymentRecord) bool {
		y, m, _ := r.ProcessedAt.Date()
		ny, nm, _ := now.Date()
		return y == ny && m == nm
	}

	if c.Role == actor.RoleWorker {
		s := &WorkerPaymentStats{CompletedTasks: len(paid), PendingPayments: pending}
		for _, t := range paid {
			r := t.PaymentRecord
			s.TotalEarnings = s.TotalEarnings.Add(r.Amount)
			s.TotalTips = s.TotalTips.Add(r.Tip)
			if r.ActualHours != nil {
				s.TotalHours += *r.ActualHours
			}
			if thisMonth(r) {
				s.CurrentMonthEarnings = s.CurrentMonthEarnings.Add(r.Amount)
			}
		}
		s.TotalGross = s.TotalEarnings.Add(s.TotalTips)
		if s.TotalHours > 0 {
			s.AverageHourlyRate = s.TotalEarnings.DivRound(decimal.NewFromFloat(s.TotalHours), 2)
		}
		return &PaymentStats{Worker: s}, nil
	}

	s := &RequesterPaymentStats{TotalTasks: len(paid), PendingPayments: pending}
	for _, t := range paid {
		r := t.PaymentRecord
		s.TotalSpent = s.TotalSpent.Add(r.TotalAmount)
		if thisMonth(r) {
			s.CurrentMonthSpending = s.CurrentMonthSpending.Add(r.TotalAmount)
		}
	}
	if len(paid) > 0 {
		s.AverageTaskCost = s.TotalSpent.DivRound(decimal.NewFromInt(int64(len(paid))), 2)
	}
	return &PaymentStats{Requester: s}, nil
}

func (e *Engine) GetActor(ctx context.Context, actorID string) (*actor.Actor, error) {
	return e.actors.Get(ctx, actorID)
}

// RegisterActor records the caller's role on their actor record.
func (e *Engine) RegisterActor(ctx context.Context, c Caller) (*actor.Actor, error) {
	if c.ID == "" {
		return nil, reason.New(reason.Unauthorized, "caller identity is required")
	}
	if !c.Role.Valid() {
		return nil, reason.Invalid("role", "in", "role must be requester or worker")
	}
	if err := e.actors.Register(ctx, c.ID, c.Role); err != nil {
		return nil, err
	}
	return e.actors.Get(ctx, c.ID)
}
