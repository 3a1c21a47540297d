package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/event"
	"github.com/tiation/riggerhire/internal/payment"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/store"
	"github.com/tiation/riggerhire/internal/task"
)

func payment400(method task.PaymentMethod) PaymentInput {
	return PaymentInput{Amount: decimal.RequireFromString("400"), Tip: decimal.RequireFromString("25"), Method: method}
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, IdempotencyKey("t1"), IdempotencyKey("t1"))
	assert.NotEqual(t, IdempotencyKey("t1"), IdempotencyKey("t2"))
}

func TestProcessPayment_Idempotent(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			taskID, _ := h.completed(t, "w1")

			rec, err := h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodCreditCard))
			require.NoError(t, err)
			assert.Equal(t, "425", rec.TotalAmount.String())
			assert.Equal(t, "USD", rec.Currency)

			_, err = h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodCreditCard))
			requireReason(t, err, reason.AlreadyPaid)
			assert.Equal(t, 1, h.gw.ChargeCount())
			assert.Equal(t, 1, h.gw.Calls())
			assertRoundTrip(t, h.store, taskID)
		})
	}
}

func TestProcessPayment_ConcurrentCallsChargeOnce(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			taskID, _ := h.completed(t, "w1")

			errs := make([]error, 4)
			var wg conc.WaitGroup
			for i := range errs {
				wg.Go(func() {
					_, errs[i] = h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodBankTransfer))
				})
			}
			wg.Wait()

			succeeded := 0
			for _, err := range errs {
				if err == nil {
					succeeded++
					continue
				}
				requireReason(t, err, reason.AlreadyPaid)
			}
			assert.GreaterOrEqual(t, succeeded, 1)
			assert.Equal(t, 1, h.gw.ChargeCount())

			got, err := h.engine.GetTask(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, task.PaymentPaid, got.PaymentStatus)
		})
	}
}

func TestProcessPayment_DeclineLeavesTaskUnpaid(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			taskID, _ := h.completed(t, "w1")
			h.gw.SetSuccessRate(0)

			_, err := h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodCreditCard))
			requireReason(t, err, reason.PaymentFailed)
			got, err := h.engine.GetTask(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, task.PaymentUnbilled, got.PaymentStatus)
			assert.Nil(t, got.PaymentAttempt)
			assert.Nil(t, got.PaymentRecord)
			assertRoundTrip(t, h.store, taskID)

			// The caller retries and the gateway accepts this time.
			h.gw.SetSuccessRate(1)
			rec, err := h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodCreditCard))
			require.NoError(t, err)
			assert.NotEmpty(t, rec.TransactionID)
			assert.Equal(t, 1, h.gw.ChargeCount())
			assert.Contains(t, h.events.types(), event.PaymentFailed)
		})
	}
}

func TestProcessPayment_Preconditions(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			openID := h.postTask(t, nil)
			_, err := h.engine.ProcessPayment(ctx, poster, openID, payment400(task.MethodCreditCard))
			requireReason(t, err, reason.TaskNotCompleted)

			taskID, _ := h.completed(t, "w1")
			_, err = h.engine.ProcessPayment(ctx, worker("w1"), taskID, payment400(task.MethodCreditCard))
			requireReason(t, err, reason.WrongRole)
			_, err = h.engine.ProcessPayment(ctx, Caller{ID: "req-2", Role: actor.RoleRequester}, taskID, payment400(task.MethodCreditCard))
			requireReason(t, err, reason.NotOwner)
			_, err = h.engine.ProcessPayment(ctx, poster, taskID, PaymentInput{Amount: decimal.Zero, Method: task.MethodCreditCard})
			requireReason(t, err, reason.InvalidArgument)
			_, err = h.engine.ProcessPayment(ctx, poster, taskID, PaymentInput{Amount: decimal.NewFromInt(1), Method: "cheque"})
			requireReason(t, err, reason.InvalidArgument)
			_, err = h.engine.ProcessPayment(ctx, poster, taskID, PaymentInput{Amount: decimal.NewFromInt(1), Currency: "JPY", Method: task.MethodEscrow})
			requireReason(t, err, reason.InvalidArgument)
			assert.Equal(t, 0, h.gw.Calls())
		})
	}
}

func TestProcessPayment_PendingAttemptIsPinned(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			taskID, _ := h.completed(t, "w1")
			in := payment400(task.MethodCreditCard)
			markPending(t, h.store, taskID, in, epoch)

			other := in
			other.Amount = decimal.NewFromInt(500)
			_, err := h.engine.ProcessPayment(ctx, poster, taskID, other)
			requireReason(t, err, reason.WrongState)

			rec, err := h.engine.ProcessPayment(ctx, poster, taskID, in)
			require.NoError(t, err)
			assert.Equal(t, "425", rec.TotalAmount.String())
		})
	}
}

func TestReleaseEscrow(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			taskID, _ := h.completed(t, "w1")

			_, err := h.engine.ReleaseEscrow(ctx, poster, taskID)
			requireReason(t, err, reason.WrongState)

			rec, err := h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodEscrow))
			require.NoError(t, err)
			assert.Empty(t, rec.ReleaseID)
			got, err := h.engine.GetTask(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, task.PaymentEscrowed, got.PaymentStatus)

			_, err = h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodEscrow))
			requireReason(t, err, reason.AlreadyPaid)

			_, err = h.engine.ReleaseEscrow(ctx, worker("w1"), taskID)
			requireReason(t, err, reason.WrongRole)

			rec, err = h.engine.ReleaseEscrow(ctx, poster, taskID)
			require.NoError(t, err)
			assert.NotEmpty(t, rec.ReleaseID)
			assert.NotNil(t, rec.ReleasedAt)
			got, err = h.engine.GetTask(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, task.PaymentPaid, got.PaymentStatus)
			assertRoundTrip(t, h.store, taskID)

			_, err = h.engine.ReleaseEscrow(ctx, poster, taskID)
			requireReason(t, err, reason.WrongState)

			openID := h.postTask(t, nil)
			_, err = h.engine.ReleaseEscrow(ctx, poster, openID)
			requireReason(t, err, reason.TaskNotCompleted)
		})
	}
}

func TestReconcile(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			stale := epoch.Add(-10 * time.Minute)
			in := payment400(task.MethodCreditCard)

			// Charged at the gateway, but the process died before committing.
			charged, _ := h.completed(t, "w1")
			markPending(t, h.store, charged, in, stale)
			_, err := h.gw.Charge(ctx, payment.ChargeRequest{Key: IdempotencyKey(charged), Amount: decimal.NewFromInt(425), Currency: "USD", Method: task.MethodCreditCard})
			require.NoError(t, err)

			// Never reached the gateway.
			lost, _ := h.completed(t, "w2")
			markPending(t, h.store, lost, in, stale)

			// Still in flight.
			fresh, _ := h.completed(t, "w3")
			markPending(t, h.store, fresh, in, epoch)

			calls := h.gw.Calls()
			report, err := h.engine.Reconcile(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, report.Checked)
			assert.Equal(t, []string{charged}, report.Settled)
			assert.Equal(t, []string{lost}, report.Reverted)
			assert.Empty(t, report.Failed)
			assert.Equal(t, calls, h.gw.Calls(), "reconcile must not charge")

			for id, want := range map[string]task.PaymentStatus{charged: task.PaymentPaid, lost: task.PaymentUnbilled, fresh: task.PaymentPending} {
				got, err := h.engine.GetTask(ctx, id)
				require.NoError(t, err)
				assert.Equal(t, want, got.PaymentStatus, id)
				assertRoundTrip(t, h.store, id)
			}
		})
	}
}

// lostResponseGateway charges, then drops the next lost responses as if the
// call timed out after the gateway confirmed.
type lostResponseGateway struct {
	*payment.Simulated
	lost int
}

func (g *lostResponseGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Charge, error) {
	ch, err := g.Simulated.Charge(ctx, req)
	if err == nil && g.lost > 0 {
		g.lost--
		return nil, context.DeadlineExceeded
	}
	return ch, err
}

func TestProcessPayment_LostResponseStaysPending(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			taskID, _ := h.completed(t, "w1")
			h.engine.gateway = &lostResponseGateway{Simulated: h.gw, lost: 1}
			in := payment400(task.MethodCreditCard)

			_, err := h.engine.ProcessPayment(ctx, poster, taskID, in)
			requireReason(t, err, reason.PaymentFailed)
			assert.Equal(t, 1, h.gw.ChargeCount())
			got, err := h.engine.GetTask(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, task.PaymentPending, got.PaymentStatus)
			require.NotNil(t, got.PaymentAttempt)
			assert.Nil(t, got.PaymentRecord)
			assert.NotContains(t, h.events.types(), event.PaymentFailed)

			// A retry with a different amount must not adopt the charge.
			other := in
			other.Amount = decimal.NewFromInt(900)
			_, err = h.engine.ProcessPayment(ctx, poster, taskID, other)
			requireReason(t, err, reason.WrongState)

			rec, err := h.engine.ProcessPayment(ctx, poster, taskID, in)
			require.NoError(t, err)
			charged, err := h.gw.Lookup(ctx, IdempotencyKey(taskID))
			require.NoError(t, err)
			assert.Equal(t, charged.TransactionID, rec.TransactionID)
			assert.Equal(t, "425", rec.TotalAmount.String())
			assert.Equal(t, "400", rec.Amount.String())
			assert.Equal(t, "25", rec.Tip.String())
			assert.Equal(t, 1, h.gw.ChargeCount())
			assertRoundTrip(t, h.store, taskID)
		})
	}
}

func TestReconcile_SettlesLostResponse(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			taskID, _ := h.completed(t, "w1")
			h.engine.gateway = &lostResponseGateway{Simulated: h.gw, lost: 1}

			_, err := h.engine.ProcessPayment(ctx, poster, taskID, payment400(task.MethodBankTransfer))
			requireReason(t, err, reason.PaymentFailed)

			h.engine.now = func() time.Time { return epoch.Add(10 * time.Minute) }
			report, err := h.engine.Reconcile(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{taskID}, report.Settled)

			got, err := h.engine.GetTask(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, task.PaymentPaid, got.PaymentStatus)
			require.NotNil(t, got.PaymentRecord)
			assert.Equal(t, "425", got.PaymentRecord.TotalAmount.String())
			assert.Equal(t, task.MethodBankTransfer, got.PaymentRecord.Method)
			assert.Equal(t, 1, h.gw.ChargeCount())
		})
	}
}

func TestReconcile_MismatchedChargeIsNotRecorded(t *testing.T) {
	for name, h := range harnesses(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := payment400(task.MethodCreditCard)
			taskID, _ := h.completed(t, "w1")
			markPending(t, h.store, taskID, in, epoch.Add(-10*time.Minute))
			_, err := h.gw.Charge(ctx, payment.ChargeRequest{Key: IdempotencyKey(taskID), Amount: decimal.NewFromInt(900), Currency: "USD", Method: task.MethodCreditCard})
			require.NoError(t, err)

			report, err := h.engine.Reconcile(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{taskID}, report.Failed)
			assert.Empty(t, report.Settled)

			_, err = h.engine.ProcessPayment(ctx, poster, taskID, in)
			requireReason(t, err, reason.WrongState)

			got, err := h.engine.GetTask(ctx, taskID)
			require.NoError(t, err)
			assert.Equal(t, task.PaymentPending, got.PaymentStatus)
			assert.Nil(t, got.PaymentRecord)
		})
	}
}

func markPending(t *testing.T, st store.Store, taskID string, in PaymentInput, startedAt time.Time) {
	t.Helper()
	_, err := st.Update(context.Background(), taskID, func(s *store.Snapshot) error {
		s.Task.PaymentStatus = task.PaymentPending
		s.Task.PaymentAttempt = &task.PaymentAttempt{
			IdempotencyKey: IdempotencyKey(taskID),
			Amount:         in.Amount,
			Tip:            in.Tip,
			Currency:       s.Task.Currency,
			Method:         in.Method,
			StartedAt:      startedAt,
		}
		return nil
	})
	require.NoError(t, err)
}
