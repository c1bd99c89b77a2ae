// Package event is the client's event dispatcher: a single ordered
// stream of typed events delivered to a caller-supplied handler on one
// dedicated goroutine, so handlers never race each other.
package event

import (
	"sync"

	channels "gopkg.in/eapache/channels.v1"
	logging "gopkg.in/op/go-logging.v1"
)

// Event is the marker interface every posted value satisfies. It carries
// no methods; the concrete event types are defined in this package's
// events.go.
type Event interface{}

// Handler receives events in post order, one at a time.
type Handler func(Event)

// Dispatcher serializes delivery of events posted from any goroutine onto
// a single handler goroutine, using an unbounded FIFO so that Post never
// blocks the poster on a slow handler.
type Dispatcher struct {
	ch        channels.Channel
	handler   Handler
	log       *logging.Logger
	doneCh    chan struct{}
	closeOnce sync.Once
}

// New starts a dispatcher that delivers events to handler. handler runs
// on the dispatcher's own goroutine until Close.
func New(log *logging.Logger, handler Handler) *Dispatcher {
	d := &Dispatcher{
		ch:      channels.NewInfiniteChannel(),
		handler: handler,
		log:     log,
		doneCh:  make(chan struct{}),
	}
	go d.worker()
	return d
}

func (d *Dispatcher) worker() {
	defer close(d.doneCh)
	for v := range d.ch.Out() {
		ev, ok := v.(Event)
		if !ok {
			continue
		}
		d.safeDeliver(ev)
	}
}

func (d *Dispatcher) safeDeliver(ev Event) {
	defer func() {
		if r := recover(); r != nil && d.log != nil {
			d.log.Errorf("event: handler panicked on %T: %v", ev, r)
		}
	}()
	d.handler(ev)
}

// Post enqueues ev for asynchronous delivery. Never blocks.
func (d *Dispatcher) Post(ev Event) {
	d.ch.In() <- ev
}

// PostImmediate delivers ev synchronously on the caller's goroutine,
// bypassing the queue. Used for events that must be observed before the
// call that raised them returns (e.g. a synchronous state transition the
// caller is about to act on).
func (d *Dispatcher) PostImmediate(ev Event) {
	d.safeDeliver(ev)
}

// Close stops accepting new events and waits for the handler goroutine to
// drain whatever was already queued. Idempotent.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(d.ch.Close)
	<-d.doneCh
}
