package event

// ErrorInfo is the {message,file,line} sub-object attached to events
// that carry a failure.
type ErrorInfo struct {
	Message string
	File    string
	Line    int
}

// Connection lifecycle events, emitted at the transitions named in the
// client state machine: ConnectionSuccess (on Secure), ConnectionFailure
// (on failed connect), ConnectionInterrupted (heartbeat timeout),
// Reconnected (subsequent success), Disconnected (graceful, or falling
// back from Secure+).

type ConnectionSuccess struct{}

type ConnectionFailure struct {
	Error ErrorInfo
}

type ConnectionInterrupted struct{}

type Reconnected struct{}

type Disconnected struct{}

// LoginSuccess and LoginFailure report the outcome of a login request.
type LoginSuccess struct {
	AccountID uint32
}

type LoginFailure struct {
	Error ErrorInfo
}

// RequestEvent is the generic echo delivered to a request's caller
// callback: Dispatch, Config, FindContact, and any other transparent
// request kind deliver their reply this way.
type RequestEvent struct {
	RequestID uint32
	Status    int
	Error     ErrorInfo
}

// RequestTimeout is emitted exactly once when an Idle request's timeout
// elapses.
type RequestTimeout struct {
	RequestID uint32
}

// ResourceSent, ResourceRecv, and ResourceFailure report per-resource
// progress within a message transfer.
type ResourceSent struct {
	MessageID   uint32
	ResourceIdx int
}

// ReplacedResource maps an arriving resource id to the already-stored
// node it deduplicated against, when the receiver skipped persisting a
// fresh copy.
type ReplacedResource struct {
	Src uint32
	Dst uint32
}

type ResourceRecv struct {
	MessageID   uint32
	ResourceIdx int
	Replaced    *ReplacedResource
}

type ResourceFailure struct {
	MessageID   uint32
	ResourceIdx int
	Error       ErrorInfo
}

// MessageSent and MessageRecv report whole-message completion.
type MessageSent struct {
	MessageID uint32
}

type MessageRecv struct {
	MessageID uint32
	ContactID uint32
}

// MessageIncoming is emitted as soon as a message's first packet arrives,
// before any resource has fully decoded, so the caller can show progress.
type MessageIncoming struct {
	MessageID uint32
	ContactID uint32
}

// ContactStatus reports a presence delta pushed by the server for a peer.
type ContactStatus struct {
	ContactID uint32
	Online    bool
}

// ContactRequestInbound reports a server-initiated AddContact/AcceptContact/
// RejectContact notification that is not a reply to a pending Request.
type ContactRequestInbound struct {
	RequestID   uint32
	RequestType string
}

// LogEvent carries a diagnostic message for a dropped protocol or crypto
// unit that does not otherwise reach the caller (malformed packet,
// unknown correlation id, signature mismatch).
type LogEvent struct {
	Error ErrorInfo
}
