package request

import (
	"container/heap"
	"sync"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/wire"
)

var log = logging.MustGetLogger("duskline/reqtrack")

// deadlineItem is one entry in the tracker's timeout-ordered heap,
// which keeps expiry checks from scanning the whole request map on
// every maintenance pass.
type deadlineItem struct {
	deadline time.Time
	id       uint32
}

type deadlineHeap []deadlineItem

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *deadlineHeap) Push(x interface{}) { *h = append(*h, x.(deadlineItem)) }
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Tracker owns the live request map, keyed by request id, plus a
// deadline-ordered index used to find expired requests without scanning
// the whole map on every maintenance pass.
type Tracker struct {
	mu        sync.Mutex
	requests  map[uint32]*Request
	deadlines deadlineHeap
}

func NewTracker() *Tracker {
	return &Tracker{requests: make(map[uint32]*Request)}
}

// Add registers a new request for tracking.
func (t *Tracker) Add(r *Request) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requests[r.ID] = r
	heap.Push(&t.deadlines, deadlineItem{deadline: r.StartTime.Add(r.Timeout), id: r.ID})
}

// Get returns the live request for id, if any.
func (t *Tracker) Get(id uint32) (*Request, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.requests[id]
	return r, ok
}

// ProcessSend runs ProcessSend over every Idle request, returning the
// (id, head) pairs ready to be framed and sent this pass. Mirrors the
// convention that collections are snapshotted without holding the lock
// across subsequent send work, so new requests can be added mid-pass.
func (t *Tracker) ProcessSend() []struct {
	ID   uint32
	Head *wire.Object
} {
	t.mu.Lock()
	snapshot := make([]*Request, 0, len(t.requests))
	for _, r := range t.requests {
		snapshot = append(snapshot, r)
	}
	t.mu.Unlock()

	var out []struct {
		ID   uint32
		Head *wire.Object
	}
	for _, r := range snapshot {
		if head := r.ProcessSend(); head != nil {
			out = append(out, struct {
				ID   uint32
				Head *wire.Object
			}{ID: r.ID, Head: head})
		}
	}
	return out
}

// ProcessRecv routes an inbound Request-kind packet's head to the
// matching live request by its requestId field. Returns false if no
// request matched (the packet may instead be a server-initiated
// contact-event, which the caller handles separately).
func (t *Tracker) ProcessRecv(head *wire.Object) (*Request, bool) {
	idVal, ok := head.GetInt32("requestId")
	if !ok {
		return nil, false
	}
	id := uint32(idVal)
	t.mu.Lock()
	r, ok := t.requests[id]
	t.mu.Unlock()
	if !ok {
		return nil, false
	}
	r.ProcessRecv(head)
	return r, true
}

// Sweep runs the maintenance pass: advances timeouts for any request
// whose deadline has elapsed, posts a RequestTimeout event and invokes
// the callback for each request timed out this pass, and removes every
// terminal request from the map. Requests that turned terminal by other
// means (ProcessRecv, cancellation) are removed without a callback.
// Returns how many requests timed out this pass.
func (t *Tracker) Sweep(dispatcher *event.Dispatcher) int {
	now := time.Now()

	t.mu.Lock()
	var expiredIDs []uint32
	for t.deadlines.Len() > 0 && !t.deadlines[0].deadline.After(now) {
		item := heap.Pop(&t.deadlines).(deadlineItem)
		expiredIDs = append(expiredIDs, item.id)
	}
	var toInvoke []*Request
	for _, id := range expiredIDs {
		r, ok := t.requests[id]
		if !ok {
			continue
		}
		if r.CheckTimeout(now) {
			toInvoke = append(toInvoke, r)
		}
	}
	var terminal []uint32
	for id, r := range t.requests {
		if r.Status.Terminal() {
			terminal = append(terminal, id)
		}
	}
	for _, id := range terminal {
		delete(t.requests, id)
	}
	t.mu.Unlock()

	for _, r := range toInvoke {
		if dispatcher != nil {
			dispatcher.Post(event.RequestTimeout{RequestID: r.ID})
		}
		r.Invoke()
		log.Debugf("reqtrack: request %d timed out", r.ID)
	}
	return len(toInvoke)
}

// InvokeCompleted runs a request's callback and removes it from
// tracking. Called by the caller immediately after ProcessRecv reports a
// terminal transition; Sweep does not run callbacks for such requests.
func (t *Tracker) InvokeCompleted(r *Request) {
	if !r.Status.Terminal() {
		return
	}
	r.Invoke()
	t.mu.Lock()
	delete(t.requests, r.ID)
	t.mu.Unlock()
}

// Len returns the number of tracked requests, including terminal ones
// that Sweep or InvokeCompleted has not yet removed.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.requests)
}

// HasKind reports whether any live request is of the given kind.
func (t *Tracker) HasKind(kind Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.requests {
		if r.Kind == kind {
			return true
		}
	}
	return false
}

// HasIdle reports whether any request is waiting to be sent.
func (t *Tracker) HasIdle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range t.requests {
		if r.Status == Idle {
			return true
		}
	}
	return false
}
