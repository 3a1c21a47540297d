package payment

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type SimulatedConfig struct {
	// SuccessRate is the probability that a new charge succeeds.
	SuccessRate float64
	// ReleaseSuccessRate is the probability that a new escrow release
	// succeeds. Zero means always.
	ReleaseSuccessRate float64
	ChargeLatency      time.Duration
	ReleaseLatency     time.Duration
}

// Simulated is an in-memory gateway with injected latency and declines.
type Simulated struct {
	cfg  SimulatedConfig
	rand func() float64
	now  func() time.Time

	mu       sync.Mutex
	charges  map[string]*Charge
	releases map[string]*Release
	calls    int
}

func NewSimulated(cfg SimulatedConfig) *Simulated {
	return &Simulated{
		cfg:      cfg,
		rand:     rand.Float64,
		now:      time.Now,
		charges:  make(map[string]*Charge),
		releases: make(map[string]*Release),
	}
}

func (g *Simulated) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ToLower(ulid.Make().String())
}

func (g *Simulated) Charge(ctx context.Context, req ChargeRequest) (*Charge, error) {
	g.mu.Lock()
	g.calls++
	if c, ok := g.charges[req.Key]; ok {
		g.mu.Unlock()
		return c, nil
	}
	g.mu.Unlock()

	if err := g.wait(ctx, g.cfg.ChargeLatency); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	// A concurrent call under the same key may have succeeded meanwhile.
	if c, ok := g.charges[req.Key]; ok {
		return c, nil
	}
	if g.rand() >= g.cfg.SuccessRate {
		slog.WarnContext(ctx, "simulated gateway declined charge", "key", req.Key, "amount", req.Amount.String())
		return nil, fmt.Errorf("charge %s: %w", req.Key, ErrDeclined)
	}
	c := &Charge{
		Key:           req.Key,
		TransactionID: newID("txn"),
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        req.Method,
		ChargedAt:     g.now(),
	}
	g.charges[req.Key] = c
	return c, nil
}

func (g *Simulated) ReleaseEscrow(ctx context.Context, key string) (*Release, error) {
	g.mu.Lock()
	g.calls++
	if r, ok := g.releases[key]; ok {
		g.mu.Unlock()
		return r, nil
	}
	_, charged := g.charges[key]
	g.mu.Unlock()
	if !charged {
		return nil, fmt.Errorf("release %s: no charge under key: %w", key, ErrDeclined)
	}

	if err := g.wait(ctx, g.cfg.ReleaseLatency); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.releases[key]; ok {
		return r, nil
	}
	if g.cfg.ReleaseSuccessRate > 0 && g.rand() >= g.cfg.ReleaseSuccessRate {
		return nil, fmt.Errorf("release %s: %w", key, ErrDeclined)
	}
	r := &Release{Key: key, ReleaseID: newID("rel"), ReleasedAt: g.now()}
	g.releases[key] = r
	return r, nil
}

func (g *Simulated) Lookup(_ context.Context, key string) (*Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.charges[key], nil
}

// ChargeCount is the number of distinct keys with a confirmed charge.
func (g *Simulated) ChargeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.charges)
}

// Calls is the number of Charge and ReleaseEscrow calls received.
func (g *Simulated) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

// SetSuccessRate changes the decline probability for subsequent calls.
func (g *Simulated) SetSuccessRate(rate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg.SuccessRate = rate
}
