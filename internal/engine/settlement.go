package engine

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/payment"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
	"github.com/tiation/riggerhire/pkg/cerr"
)

var paymentNamespace = uuid.MustParse("5b0c8b53-8d0e-4c5c-9a55-3f1c0d6e2a71")

// errUnchanged aborts an Update whose mutation turned out to be a no-op.
var errUnchanged = errors.New("unchanged")

type PaymentInput struct {
	Amount   decimal.Decimal    `json:"amount"`
	Tip      decimal.Decimal    `json:"tip"`
	Currency string             `json:"currency,omitempty"`
	Method   task.PaymentMethod `json:"method"`
}

func (in *PaymentInput) validate() error {
	switch {
	case !in.Amount.IsPositive():
		return reason.Invalid("amount", "gt", "amount must be positive")
	case in.Tip.IsNegative():
		return reason.Invalid("tip", "gte", "tip must not be negative")
	case in.Currency != "" && !slices.Contains(task.Currencies, in.Currency):
		return reason.Invalid("currency", "in", "currency must be one of %s", strings.Join(task.Currencies, ", "))
	case !slices.Contains(task.Methods, in.Method):
		return reason.Invalid("method", "in", "payment method must be credit_card, bank_transfer or escrow")
	}
	return nil
}

// IdempotencyKey is the gateway key for the charge of taskID. It is stable
// across retries and processes.
func IdempotencyKey(taskID string) string {
	return uuid.NewSHA1(paymentNamespace, []byte("charge:"+taskID)).String()
}

// ProcessPayment charges the poster for a completed task. The pending
// attempt is committed first, the gateway is called without holding the
// task, and the outcome is committed in a second atomic unit.
func (e *Engine) ProcessPayment(ctx context.Context, c Caller, taskID string, in PaymentInput) (*task.PaymentRecord, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	var attempt *task.PaymentAttempt
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if err := Check(c, t, nil, ActionPay).Err(); err != nil {
			return err
		}
		currency := in.Currency
		if currency == "" {
			currency = t.Currency
		}
		switch t.PaymentStatus {
		case task.PaymentPaid, task.PaymentEscrowed:
			return reason.New(reason.AlreadyPaid, "task is already %s", t.PaymentStatus)
		case task.PaymentPending:
			a := t.PaymentAttempt
			if !a.Amount.Equal(in.Amount) || !a.Tip.Equal(in.Tip) || a.Currency != currency || a.Method != in.Method {
				return reason.New(reason.WrongState, "a different payment for this task is in progress")
			}
			attempt = a
			return errUnchanged
		}
		attempt = &task.PaymentAttempt{
			IdempotencyKey: IdempotencyKey(taskID),
			Amount:         in.Amount,
			Tip:            in.Tip,
			Currency:       currency,
			Method:         in.Method,
			StartedAt:      e.now(),
		}
		t.PaymentStatus = task.PaymentPending
		t.PaymentAttempt = attempt
		t.UpdatedAt = e.now()
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged):
		slog.InfoContext(ctx, "resuming pending payment", "task_id", taskID)
	case err != nil:
		return nil, err
	default:
		e.publish(ctx, event.PaymentPending, snap, map[string]string{"idempotency_key": attempt.IdempotencyKey})
	}

	ch, err := e.charge(ctx, attempt)
	if err != nil {
		if errors.Is(err, payment.ErrDeclined) {
			e.revertAttempt(context.WithoutCancel(ctx), taskID, attempt.IdempotencyKey, event.PaymentFailed)
			return nil, reason.New(reason.PaymentFailed, "payment failed: %v", err)
		}
		// The gateway may have charged. The attempt stays pending until a
		// retry with the same payment or Reconcile resolves it.
		slog.WarnContext(ctx, "payment outcome unknown", "task_id", taskID, "idempotency_key", attempt.IdempotencyKey, "error", err)
		return nil, reason.New(reason.PaymentFailed, "payment outcome unknown, retry the same payment: %v", err)
	}
	snap, err = e.commitCharge(ctx, taskID, attempt, ch)
	if err != nil {
		return nil, err
	}
	return snap.Task.PaymentRecord, nil
}

func (e *Engine) charge(ctx context.Context, a *task.PaymentAttempt) (*payment.Charge, error) {
	ch, err := e.gateway.Lookup(ctx, a.IdempotencyKey)
	if err != nil {
		return nil, err
	}
	if ch != nil {
		return ch, nil
	}
	return e.gateway.Charge(ctx, payment.ChargeRequest{
		Key:      a.IdempotencyKey,
		Amount:   a.Total(),
		Currency: a.Currency,
		Method:   a.Method,
	})
}

// commitCharge records a confirmed charge. It succeeds from pending, and
// from unbilled when a concurrent decline already reverted the attempt.
// The record carries what the gateway charged, which must match a.
func (e *Engine) commitCharge(ctx context.Context, taskID string, a *task.PaymentAttempt, ch *payment.Charge) (*store.Snapshot, error) {
	if !ch.Amount.Equal(a.Total()) || ch.Currency != a.Currency || ch.Method != a.Method {
		slog.ErrorContext(ctx, "gateway charge does not match payment attempt",
			"task_id", taskID, "transaction_id", ch.TransactionID,
			"charged", ch.Amount.String()+" "+ch.Currency, "attempt", a.Total().String()+" "+a.Currency)
		return nil, reason.New(reason.WrongState, "charge %s of %s %s does not match the payment attempt", ch.TransactionID, ch.Amount.StringFixed(2), ch.Currency)
	}
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if t.PaymentStatus == task.PaymentPaid || t.PaymentStatus == task.PaymentEscrowed {
			return reason.New(reason.AlreadyPaid, "task is already %s", t.PaymentStatus)
		}
		if t.Status != task.StatusCompleted {
			return reason.New(reason.TaskNotCompleted, "task is %s", t.Status)
		}
		r := &task.PaymentRecord{
			Amount:         a.Amount,
			Tip:            a.Tip,
			TotalAmount:    ch.Amount,
			Currency:       ch.Currency,
			Method:         ch.Method,
			TransactionID:  ch.TransactionID,
			ProcessedAt:    e.now(),
			ExpectedAmount: t.ExpectedAmount(),
		}
		if t.Completion != nil && t.Completion.ActualHours != nil {
			h := *t.Completion.ActualHours
			r.ActualHours = &h
		}
		t.PaymentStatus = task.PaymentPaid
		if ch.Method == task.MethodEscrow {
			t.PaymentStatus = task.PaymentEscrowed
		}
		t.PaymentRecord = r
		t.PaymentAttempt = nil
		t.UpdatedAt = e.now()
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.PaymentSettled, snap, map[string]string{
		"transaction_id": ch.TransactionID,
		"payment_status": string(snap.Task.PaymentStatus),
		"total_amount":   snap.Task.PaymentRecord.TotalAmount.StringFixed(2),
	})
	return snap, nil
}

// revertAttempt restores unbilled if the attempt under key is still pending.
func (e *Engine) revertAttempt(ctx context.Context, taskID, key string, eventType event.Type) {
	snap, err := e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if t.PaymentStatus != task.PaymentPending || t.PaymentAttempt == nil || t.PaymentAttempt.IdempotencyKey != key {
			return errUnchanged
		}
		t.PaymentStatus = task.PaymentUnbilled
		t.PaymentAttempt = nil
		t.UpdatedAt = e.now()
		return nil
	})
	switch {
	case errors.Is(err, errUnchanged):
	case err != nil:
		slog.ErrorContext(ctx, "failed to revert payment attempt", "task_id", taskID, "error", err)
	default:
		e.publish(ctx, eventType, snap, map[string]string{"idempotency_key": key})
	}
}

// ReleaseEscrow pays out an escrowed charge to the worker.
func (e *Engine) ReleaseEscrow(ctx context.Context, c Caller, taskID string) (*task.PaymentRecord, error) {
	snap, err := e.store.Snapshot(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := checkReleasable(c, snap.Task); err != nil {
		return nil, err
	}

	rel, err := e.gateway.ReleaseEscrow(ctx, IdempotencyKey(taskID))
	if err != nil {
		return nil, reason.New(reason.PaymentFailed, "escrow release failed: %v", err)
	}

	snap, err = e.store.Update(ctx, taskID, func(s *store.Snapshot) error {
		t := s.Task
		if t.PaymentStatus == task.PaymentPaid && t.PaymentRecord.ReleaseID == rel.ReleaseID {
			return errUnchanged
		}
		if err := checkReleasable(c, t); err != nil {
			return err
		}
		at := rel.ReleasedAt
		t.PaymentStatus = task.PaymentPaid
		t.PaymentRecord.ReleaseID = rel.ReleaseID
		t.PaymentRecord.ReleasedAt = &at
		t.UpdatedAt = e.now()
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return e.paymentRecord(ctx, taskID)
	}
	if err != nil {
		return nil, err
	}
	e.publish(ctx, event.EscrowReleased, snap, map[string]string{"release_id": rel.ReleaseID})
	return snap.Task.PaymentRecord, nil
}

func checkReleasable(c Caller, t *task.Task) error {
	if err := Check(c, t, nil, ActionReleaseEscrow).Err(); err != nil {
		return err
	}
	if t.PaymentStatus != task.PaymentEscrowed {
		return reason.New(reason.WrongState, "payment is %s, not escrowed", t.PaymentStatus)
	}
	return nil
}

func (e *Engine) paymentRecord(ctx context.Context, taskID string) (*task.PaymentRecord, error) {
	t, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return t.PaymentRecord, nil
}

type ReconcileReport struct {
	Checked  int      `json:"checked"`
	Settled  []string `json:"settled"`
	Reverted []string `json:"reverted"`
	Failed   []string `json:"failed"`
}

// Reconcile resolves payment attempts left pending longer than the
// configured staleness by asking the gateway what happened under their key.
// It never issues a new charge.
func (e *Engine) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	pending, _, err := e.store.ListTasks(ctx, store.TaskFilter{PaymentStatus: task.PaymentPending})
	if err != nil {
		return nil, err
	}
	report := &ReconcileReport{}
	cutoff := e.now().Add(-e.staleAfter)
	for _, t := range pending {
		a := t.PaymentAttempt
		if a == nil || a.StartedAt.After(cutoff) {
			continue
		}
		report.Checked++
		ch, err := e.gateway.Lookup(ctx, a.IdempotencyKey)
		if err != nil {
			slog.WarnContext(ctx, "payment lookup failed", "task_id", t.ID, "error", err)
			report.Failed = append(report.Failed, t.ID)
			continue
		}
		if ch == nil {
			e.revertAttempt(ctx, t.ID, a.IdempotencyKey, event.PaymentReverted)
			report.Reverted = append(report.Reverted, t.ID)
			continue
		}
		if _, err := e.commitCharge(ctx, t.ID, a, ch); err != nil && !cerr.HasReason(err, reason.AlreadyPaid) {
			slog.WarnContext(ctx, "failed to commit reconciled payment", "task_id", t.ID, "error", err)
			report.Failed = append(report.Failed, t.ID)
			continue
		}
		report.Settled = append(report.Settled, t.ID)
	}
	if report.Checked > 0 {
		slog.InfoContext(ctx, "payment reconciliation finished",
			"checked", report.Checked, "settled", len(report.Settled), "reverted", len(report.Reverted), "failed", len(report.Failed))
	}
	return report, nil
}
