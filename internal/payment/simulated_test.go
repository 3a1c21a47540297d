package payment

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiation/riggerhire/internal/task"
)

func chargeReq(key string) ChargeRequest {
	return ChargeRequest{
		Key:      key,
		Amount:   decimal.RequireFromString("120.50"),
		Currency: "AUD",
		Method:   task.MethodCreditCard,
	}
}

func TestSimulated_ChargeIsIdempotentPerKey(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated(SimulatedConfig{SuccessRate: 1})

	first, err := g.Charge(ctx, chargeReq("k1"))
	require.NoError(t, err)
	assert.Contains(t, first.TransactionID, "txn_")

	second, err := g.Charge(ctx, chargeReq("k1"))
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, second.TransactionID)
	assert.Equal(t, 1, g.ChargeCount())

	found, err := g.Lookup(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, first.TransactionID, found.TransactionID)

	missing, err := g.Lookup(ctx, "k2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSimulated_DeclinesAreNotCached(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated(SimulatedConfig{SuccessRate: 0})

	_, err := g.Charge(ctx, chargeReq("k1"))
	require.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, 0, g.ChargeCount())

	g.SetSuccessRate(1)
	c, err := g.Charge(ctx, chargeReq("k1"))
	require.NoError(t, err)
	assert.NotEmpty(t, c.TransactionID)
}

func TestSimulated_ConcurrentChargesShareOneTransaction(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated(SimulatedConfig{SuccessRate: 1, ChargeLatency: 5 * time.Millisecond})

	ids := make(chan string, 10)
	var wg conc.WaitGroup
	for range 10 {
		wg.Go(func() {
			c, err := g.Charge(ctx, chargeReq("k1"))
			if assert.NoError(t, err) {
				ids <- c.TransactionID
			}
		})
	}
	wg.Wait()
	close(ids)

	seen := map[string]bool{}
	for id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, 1, g.ChargeCount())
}

func TestSimulated_ReleaseEscrow(t *testing.T) {
	ctx := context.Background()
	g := NewSimulated(SimulatedConfig{SuccessRate: 1})

	_, err := g.ReleaseEscrow(ctx, "k1")
	require.ErrorIs(t, err, ErrDeclined)

	_, err = g.Charge(ctx, chargeReq("k1"))
	require.NoError(t, err)
	r1, err := g.ReleaseEscrow(ctx, "k1")
	require.NoError(t, err)
	assert.Contains(t, r1.ReleaseID, "rel_")

	r2, err := g.ReleaseEscrow(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, r1.ReleaseID, r2.ReleaseID)
}

func TestSimulated_ChargeHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewSimulated(SimulatedConfig{SuccessRate: 1, ChargeLatency: time.Second})

	_, err := g.Charge(ctx, chargeReq("k1"))
	assert.ErrorIs(t, err, context.Canceled)
}
