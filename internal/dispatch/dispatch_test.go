package dispatch

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiation/riggerhire/internal/actor"
	"github.com/tiation/riggerhire/internal/actor/repositoryimpl"
	"github.com/tiation/riggerhire/internal/actorsync"
	"github.com/tiation/riggerhire/internal/application"
	"github.com/tiation/riggerhire/internal/engine"
	"github.com/tiation/riggerhire/internal/payment"
	"github.com/tiation/riggerhire/internal/reason"
	"github.com/tiation/riggerhire/internal/sqlitedb"
	"github.com/tiation/riggerhire/internal/store/storeimpl"
	"github.com/tiation/riggerhire/internal/task"
	"github.com/tiation/riggerhire/pkg/cerr"
	"github.com/tiation/riggerhire/pkg/storage"
)

var (
	requester = engine.Caller{ID: "req-1", Role: actor.RoleRequester}
	rigger    = engine.Caller{ID: "w1", Role: actor.RoleWorker}
)

func newDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	outbox, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	e := engine.New(
		storeimpl.NewSQLiteStore(db),
		repositoryimpl.NewSQLiteRepository(db),
		payment.NewSimulated(payment.SimulatedConfig{SuccessRate: 1}),
		actorsync.NewQueue(outbox),
	)
	return New(e)
}

func call(t *testing.T, d *Dispatcher, kind Kind, c engine.Caller, payload string) (any, error) {
	t.Helper()
	return d.Dispatch(context.Background(), Request{Kind: kind, Caller: c, Payload: json.RawMessage(payload)})
}

func TestDispatch_UnknownKind(t *testing.T) {
	d := newDispatcher(t)
	_, err := call(t, d, "launch_rocket", requester, `{}`)
	require.Error(t, err)
	assert.Equal(t, reason.UnknownHandler, cerr.ReasonOf(err))
	assert.True(t, cerr.IsCode(err, cerr.Unimplemented))
}

func TestDispatch_InvalidPayload(t *testing.T) {
	d := newDispatcher(t)

	_, err := call(t, d, KindGetTask, requester, `{"taskId": 7}`)
	assert.Equal(t, reason.InvalidArgument, cerr.ReasonOf(err))

	_, err = call(t, d, KindGetTask, requester, `{"task": "t1"}`)
	assert.Equal(t, reason.InvalidArgument, cerr.ReasonOf(err))

	_, err = call(t, d, KindStartTask, rigger, ``)
	assert.Equal(t, reason.InvalidArgument, cerr.ReasonOf(err))
}

func TestDispatch_Lifecycle(t *testing.T) {
	d := newDispatcher(t)

	out, err := call(t, d, KindPostTask, requester, `{"title": "Rigger for steel erection", "hourlyRate": 62.5, "maxApplicants": 2}`)
	require.NoError(t, err)
	tk := out.(*task.Task)
	assert.Equal(t, "62.5", tk.HourlyRate.String())

	out, err = call(t, d, KindSubmitApplication, rigger, `{"taskId": "`+tk.ID+`", "message": "Advanced rigging ticket"}`)
	require.NoError(t, err)
	a := out.(*application.Application)

	out, err = call(t, d, KindReviewApplication, requester, `{"taskId": "`+tk.ID+`", "applicationId": "`+a.ID+`", "decision": "accept"}`)
	require.NoError(t, err)
	assert.Equal(t, "w1", out.(*engine.ReviewResult).Task.AssigneeID)

	_, err = call(t, d, KindCompleteTask, rigger, `{"taskId": "`+tk.ID+`", "actualHours": 6}`)
	assert.Equal(t, reason.WrongState, cerr.ReasonOf(err))

	_, err = call(t, d, KindStartTask, rigger, `{"taskId": "`+tk.ID+`"}`)
	require.NoError(t, err)
	_, err = call(t, d, KindCompleteTask, rigger, `{"taskId": "`+tk.ID+`", "actualHours": 6, "completionNotes": "Done"}`)
	require.NoError(t, err)

	out, err = call(t, d, KindProcessPayment, requester, `{"taskId": "`+tk.ID+`", "amount": 375, "method": "credit_card"}`)
	require.NoError(t, err)
	assert.NotEmpty(t, out.(*task.PaymentRecord).TransactionID)

	out, err = call(t, d, KindListTasks, requester, `{"status": "completed, cancelled", "paymentStatus": "paid"}`)
	require.NoError(t, err)
	assert.Equal(t, 1, out.(*ListTasksResult).Total)

	out, err = call(t, d, KindMyApplications, rigger, `{"status": "accepted"}`)
	require.NoError(t, err)
	assert.Len(t, out.([]*application.Application), 1)

	_, err = call(t, d, KindRateApplication, requester, `{"applicationId": "`+a.ID+`", "rating": 4}`)
	require.NoError(t, err)
}

func TestSpecs_CoverEveryKind(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, s := range Specs {
		assert.False(t, seen[s.Kind], "duplicate spec for %s", s.Kind)
		seen[s.Kind] = true
		assert.Contains(t, handlers, s.Kind)
		assert.NotEmpty(t, s.Description)
	}
	for _, k := range Kinds() {
		assert.True(t, seen[k], "no spec for %s", k)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []task.Status{task.StatusOpen, task.StatusAssigned}, splitList[task.Status]("open, assigned,"))
	assert.Nil(t, splitList[task.Status](""))
}
