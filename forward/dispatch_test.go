package forward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"trackpoint/models"

	"github.com/stretchr/testify/require"
)

// recordingPublisher blocks every Publish until release is closed.
type recordingPublisher struct {
	release chan struct{}
	err     error

	mu      sync.Mutex
	batches [][]models.Event
	closed  bool
}

func newRecordingPublisher() *recordingPublisher {
	return &recordingPublisher{release: make(chan struct{})}
}

func (r *recordingPublisher) Publish(_ context.Context, events []models.Event) error {
	<-r.release
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingPublisher) published() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestDispatcherEnqueueDoesNotWaitForPublish(t *testing.T) {
	p := newRecordingPublisher()
	d := NewDispatcher(p, 2)

	enqueued := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			d.Enqueue([]models.Event{testEvent("e1", "d1")})
		}
		close(enqueued)
	}()

	select {
	case <-enqueued:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a stalled publisher")
	}
	require.Zero(t, p.published())

	close(p.release)
	require.NoError(t, d.Close())
	require.True(t, p.closed)
	// One batch in flight plus two queued; the rest were dropped.
	require.LessOrEqual(t, p.published(), 3)
	require.GreaterOrEqual(t, p.published(), 2)
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	p := newRecordingPublisher()
	p.err = errors.New("broker down")
	close(p.release)
	d := NewDispatcher(p, 16)

	for i := 0; i < 10; i++ {
		d.Enqueue([]models.Event{testEvent("e1", "d1")})
	}
	d.Enqueue(nil)
	require.NoError(t, d.Close())
	require.Equal(t, 10, p.published())
	require.True(t, p.closed)

	require.NotPanics(t, func() { d.Enqueue([]models.Event{testEvent("e2", "d1")}) })
	require.NoError(t, d.Close())
	require.Equal(t, 10, p.published())
}
