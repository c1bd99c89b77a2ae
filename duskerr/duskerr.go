// Package duskerr is the client's error taxonomy: a *duskerr.Error tags
// an error with one of five kinds. Not every error the client returns is
// a *duskerr.Error; several client and message functions return plain
// errors built with fmt.Errorf.
package duskerr

import "fmt"

// Kind classifies the layer that produced an error.
type Kind int

const (
	// Transport covers dial, TLS, read/write, and disconnect failures.
	Transport Kind = iota
	// Protocol covers malformed packets, unexpected kinds, and
	// correlation failures (unknown request id, duplicate response).
	Protocol
	// Crypto covers key generation, encryption/decryption, and
	// signature verification failures.
	Crypto
	// Storage covers node-store open, read, write, and schema failures.
	Storage
	// Policy covers application-level rejections: bad credentials,
	// unknown contact, request denied by the remote party.
	Policy
)

func (k Kind) String() string {
	switch k {
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Crypto:
		return "crypto"
	case Storage:
		return "storage"
	case Policy:
		return "policy"
	default:
		return "unknown"
	}
}

// Error is an error tagged with the Kind of the layer that produced it.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "store.AddNode"
	Err  error  // the wrapped cause, if any
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error whose cause is a plain error carrying message.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(message)}
}

// Wrap builds an *Error around an existing cause. If err is already a
// *Error, it is passed through unchanged: wrapping an error in its own
// kind twice gains nothing.
func Wrap(kind Kind, op string, err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

func Transportf(op, format string, a ...interface{}) *Error {
	return &Error{Kind: Transport, Op: op, Err: fmt.Errorf(format, a...)}
}

func Protocolf(op, format string, a ...interface{}) *Error {
	return &Error{Kind: Protocol, Op: op, Err: fmt.Errorf(format, a...)}
}

func Cryptof(op, format string, a ...interface{}) *Error {
	return &Error{Kind: Crypto, Op: op, Err: fmt.Errorf(format, a...)}
}

func Storagef(op, format string, a ...interface{}) *Error {
	return &Error{Kind: Storage, Op: op, Err: fmt.Errorf(format, a...)}
}

func Policyf(op, format string, a ...interface{}) *Error {
	return &Error{Kind: Policy, Op: op, Err: fmt.Errorf(format, a...)}
}
