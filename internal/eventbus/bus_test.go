package eventbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tiation/riggerhire/internal/event"
)

func TestBus_PublishFansOut(t *testing.T) {
	b := New()
	id1, ch1 := b.Subscribe(4)
	id2, ch2 := b.Subscribe(4)
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.PublishNew(event.TaskPosted, "t1", 1, map[string]string{"poster_id": "p1"})

	for _, ch := range []<-chan *event.Event{ch1, ch2} {
		e := <-ch
		require.NotNil(t, e)
		assert.Equal(t, event.TaskPosted, e.Type)
		assert.Equal(t, "t1", e.TaskID)
		assert.Equal(t, "p1", e.Metadata["poster_id"])
		assert.NotEmpty(t, e.ID)
	}
}

func TestBus_FullSubscriberDropsInsteadOfBlocking(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)

	b.PublishNew(event.TaskStarted, "t1", 2, nil)
	b.PublishNew(event.TaskCompleted, "t1", 3, nil)

	e := <-ch
	assert.Equal(t, event.TaskStarted, e.Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %v", extra.Type)
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)
	b.Unsubscribe(id)

	_, ok := <-ch
	assert.False(t, ok)
	b.Unsubscribe(id)
}
