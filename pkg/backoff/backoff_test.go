package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff_NextDoublesUntilMax(t *testing.T) {
	b := New(time.Second, 5*time.Second)

	var got []time.Duration
	for range 5 {
		got = append(got, b.Next())
	}
	assert.Equal(t, []time.Duration{
		time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second,
	}, got)

	b.Reset()
	assert.Equal(t, time.Second, b.Current())
}

func TestBackoff_ZeroValueUsesDefaults(t *testing.T) {
	var b Backoff
	assert.Equal(t, DefaultInitial, b.Next())
	assert.Equal(t, 2*DefaultInitial, b.Current())
}

func TestDelay(t *testing.T) {
	assert.Equal(t, time.Second, Delay(time.Second, time.Minute, 2, 0, 0))
	assert.Equal(t, 8*time.Second, Delay(time.Second, time.Minute, 2, 3, 0))
	assert.Equal(t, time.Minute, Delay(time.Second, time.Minute, 2, 30, 0))
}
