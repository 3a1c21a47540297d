package event

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestLogger_LogAndReadDay(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	require.NoError(t, l.Log(&Event{ID: "e1", Type: TaskPosted, TaskID: "t1", Version: 1, CreatedAt: day}))
	require.NoError(t, l.Log(&Event{ID: "e2", Type: ApplicationSubmitted, TaskID: "t2", Version: 2, CreatedAt: day.Add(time.Minute)}))
	require.NoError(t, l.Log(&Event{ID: "e3", Type: TaskAssigned, TaskID: "t1", Version: 3, CreatedAt: day.Add(2 * time.Minute)}))

	all, err := ReadDay(dir, day, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "e1", all[0].ID)
	assert.Equal(t, ApplicationSubmitted, all[1].Type)

	t1, err := ReadDay(dir, day, "t1")
	require.NoError(t, err)
	require.Len(t, t1, 2)
	assert.Equal(t, TaskAssigned, t1[1].Type)
	assert.Equal(t, int64(3), t1[1].Version)
}

func TestReadDay_MissingFileIsEmpty(t *testing.T) {
	events, err := ReadDay(t.TempDir(), day, "")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestReadDay_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)
	require.NoError(t, l.Log(&Event{ID: "e1", Type: TaskPosted, TaskID: "t1", CreatedAt: day}))

	f, err := os.OpenFile(filePath(dir, day), os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events, err := ReadDay(dir, day, "")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestLogger_RunStopsOnClose(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLogger(dir)
	require.NoError(t, err)

	ch := make(chan *Event, 2)
	ch <- &Event{ID: "e1", Type: TaskStarted, TaskID: "t1", CreatedAt: day}
	close(ch)

	done := make(chan struct{})
	go func() {
		l.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after channel close")
	}

	events, err := ReadDay(dir, day, "")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
