package forward

import (
	"context"
	"sync"

	"trackpoint/models"

	"github.com/rs/zerolog/log"
)

// Dispatcher publishes committed batches from a single goroutine so that the
// ingest path never waits on the downstream broker. Batches that arrive while
// the queue is full are dropped.
type Dispatcher struct {
	p     Publisher
	queue chan []models.Event
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts draining into p. size bounds the number of queued batches.
func NewDispatcher(p Publisher, size int) *Dispatcher {
	if size <= 0 {
		size = 1
	}
	d := &Dispatcher{
		p:     p,
		queue: make(chan []models.Event, size),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for events := range d.queue {
		publish(d.p, events)
	}
}

// Enqueue is a store commit hook. It never blocks.
func (d *Dispatcher) Enqueue(events []models.Event) {
	if len(events) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		log.Warn().Int("events", len(events)).Msg("Forward: dispatcher closed, dropping batch")
		return
	}
	select {
	case d.queue <- events:
	default:
		log.Warn().Int("events", len(events)).Msg("Forward: queue full, dropping batch")
	}
}

// Close publishes what is already queued, then closes the publisher.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return d.p.Close()
}

func publish(p Publisher, events []models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.Publish(ctx, events); err != nil {
		log.Warn().Err(err).Int("events", len(events)).Msg("Forward: publish failed")
	}
}
