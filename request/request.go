// Package request implements the correlated request/response protocol:
// a Request carries a random id under head key "requestId", is sent
// once, and transitions through a small state machine as the matching
// response (or a timeout) arrives.
package request

import (
	"time"

	"github.com/duskline-im/client/event"
	"github.com/duskline-im/client/wire"
)

// Status is a Request's lifecycle state.
type Status int

const (
	Inactive Status = iota
	Idle
	Sending
	WaitingForResponse
	Completed
	Timeout
	Error
)

func (s Status) Terminal() bool {
	return s == Completed || s == Timeout || s == Error
}

// Kind identifies the twelve request types the protocol defines. The
// numeric value is what travels under head key "requestType".
type Kind int32

const (
	Dispatch Kind = iota
	CreateAccount
	Login
	Config
	AddContact
	CreateAddCode
	FindContact
	AcceptContact
	RejectContact
	ContactStatus
	GetInbox
	GetMessage
)

var kindNames = [...]string{
	"Dispatch", "CreateAccount", "Login", "Config", "AddContact",
	"CreateAddCode", "FindContact", "AcceptContact", "RejectContact",
	"ContactStatus", "GetInbox", "GetMessage",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Unknown"
	}
	return kindNames[k]
}

// DefaultTimeout is the per-request timeout absent an override.
const DefaultTimeout = 15 * time.Second

// Callback receives the final outcome of a request.
type Callback func(ev event.RequestEvent)

// Request is the common envelope for every correlated operation.
// Kind-specific side effects are applied by the Tracker's owner when
// Status reaches Completed; Request itself only carries state and head.
type Request struct {
	ID        uint32
	Kind      Kind
	Status    Status
	Timeout   time.Duration
	StartTime time.Time
	Head      *wire.Object
	Callback  Callback

	sentAt time.Time
}

// New creates an Idle request with the given id, ready for the sender loop
// to pick up on its next pass.
func New(id uint32, kind Kind, head *wire.Object, cb Callback) *Request {
	if head == nil {
		head = wire.NewObject()
	}
	head.Set("requestId", int32(id)).Set("requestType", int32(kind))
	return &Request{
		ID:        id,
		Kind:      kind,
		Status:    Idle,
		Timeout:   DefaultTimeout,
		StartTime: time.Now(),
		Head:      head,
		Callback:  cb,
	}
}

// ProcessSend is called repeatedly by the sender loop. If Idle, it frames
// and hands back the head to be sent as a Request packet, then
// transitions to WaitingForResponse. Returns nil if there is nothing to
// send this pass.
func (r *Request) ProcessSend() *wire.Object {
	if r.Status != Idle {
		return nil
	}
	r.Status = Sending
	head := r.Head
	r.Status = WaitingForResponse
	r.sentAt = time.Now()
	return head
}

// ProcessRecv is invoked when an inbound Request packet's requestId
// matches this Request. head is the decoded response; status is the
// response's integer status field (1=success, 0=failure).
func (r *Request) ProcessRecv(head *wire.Object) {
	if r.Status != WaitingForResponse {
		return
	}
	status, _ := head.GetInt32("status")
	r.Head = head
	if status == 1 {
		r.Status = Completed
	} else {
		r.Status = Error
	}
}

// CheckTimeout transitions an Idle-or-waiting request past its deadline
// to Timeout, returning true exactly once at the moment of transition.
// A request currently Sending is never timed out mid-send.
func (r *Request) CheckTimeout(now time.Time) bool {
	if r.Status == Sending || r.Status.Terminal() {
		return false
	}
	if now.Sub(r.StartTime) < r.Timeout {
		return false
	}
	r.Status = Timeout
	return true
}

// Outcome builds the RequestEvent describing this request's terminal
// state, for the caller to deliver via its callback and/or the event
// dispatcher.
func (r *Request) Outcome() event.RequestEvent {
	ev := event.RequestEvent{RequestID: r.ID}
	switch r.Status {
	case Completed:
		ev.Status = 1
	case Timeout:
		ev.Error = event.ErrorInfo{Message: "request timed out"}
	case Error:
		if r.Head != nil {
			if msg, ok := r.Head.GetString("message"); ok {
				ev.Error = event.ErrorInfo{Message: msg}
			}
		}
	}
	return ev
}

// Invoke delivers the request's final outcome to its registered
// callback, if any.
func (r *Request) Invoke() {
	if r.Callback == nil {
		return
	}
	r.Callback(r.Outcome())
}
