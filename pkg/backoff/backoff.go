// Package backoff computes capped exponential retry delays.
package backoff

import "time"

const (
	DefaultInitial = 5 * time.Second
	DefaultMax     = 10 * time.Minute
	DefaultFactor  = 2.0
)

type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64

	current time.Duration
}

func New(initial, maxDelay time.Duration) *Backoff {
	return &Backoff{Initial: initial, Max: maxDelay, Factor: DefaultFactor}
}

// Current returns the delay to wait before the next attempt.
func (b *Backoff) Current() time.Duration {
	if b.current == 0 {
		b.current = b.initial()
	}
	return b.current
}

// Next returns the current delay and advances to the following one.
func (b *Backoff) Next() time.Duration {
	d := b.Current()
	b.current = Delay(b.initial(), b.max(), b.factor(), 1, d)
	return d
}

func (b *Backoff) Reset() {
	b.current = b.initial()
}

func (b *Backoff) initial() time.Duration {
	if b.Initial <= 0 {
		return DefaultInitial
	}
	return b.Initial
}

func (b *Backoff) max() time.Duration {
	if b.Max <= 0 {
		return DefaultMax
	}
	return b.Max
}

func (b *Backoff) factor() float64 {
	if b.Factor <= 1 {
		return DefaultFactor
	}
	return b.Factor
}

// Delay returns the delay after attempts further steps starting from from,
// capped at maxDelay. Stateless callers such as persisted retry jobs use it
// with from = initial.
func Delay(initial, maxDelay time.Duration, factor float64, attempts int, from time.Duration) time.Duration {
	d := from
	if d <= 0 {
		d = initial
	}
	for range attempts {
		d = time.Duration(float64(d) * factor)
		if d > maxDelay {
			return maxDelay
		}
	}
	return d
}
