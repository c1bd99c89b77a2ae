// Package message implements the end-to-end encrypted streaming pipeline:
// Message/Resource types plus the Sender and Receiver state machines
// that chunk, encrypt, sign, reassemble, and verify them.
package message

import (
	"net/http"

	"github.com/duskline-im/client/buffer"
	"github.com/duskline-im/client/crypto"
)

// MaxPacketBody is the largest ciphertext run one Message packet's body
// carries; it has the same value as wire.MaxPacketBody.
const MaxPacketBody = 65536

// Status is a Message's lifecycle state.
type Status int32

const (
	Idle Status = iota
	Incoming
	Outgoing
	Sent
	Recv
	Failure
)

// ResourceType classifies a Resource's content for display and for the
// MIME-sniffing fallback described below.
type ResourceType int32

const (
	Unknown ResourceType = iota
	Text
	File
	Image
	Audio
	Video
)

// SniffType detects a resource's type from its plaintext bytes via the
// standard library's content-sniffing table. Nothing in this package
// calls it: a Resource constructed with Type==Unknown keeps that type
// unless the caller sets one, for example from SniffType's result. It
// does not change any on-wire field.
func SniffType(data []byte) ResourceType {
	mime := http.DetectContentType(data)
	switch {
	case len(mime) >= 5 && mime[:5] == "text/":
		return Text
	case len(mime) >= 6 && mime[:6] == "image/":
		return Image
	case len(mime) >= 6 && mime[:6] == "audio/":
		return Audio
	case len(mime) >= 6 && mime[:6] == "video/":
		return Video
	default:
		return File
	}
}

// Resource is a named blob within a Message.
type Resource struct {
	ID   uint32
	Type ResourceType
	Name string
	Size int64
	Data *buffer.Buffer
	MD5  [16]byte

	// parts/partsDone track per-resource chunking progress; not
	// part of the wire format, maintained by Sender/Receiver.
	parts         int
	partsDone     int
	dedup         bool
	dedupReplaced uint32
}

// RefreshMD5 recomputes MD5 over the resource's current plaintext. The
// spec requires this be maintained on every data mutation.
func (r *Resource) RefreshMD5() {
	sum := crypto.MD5Sum(r.Data.Bytes())
	copy(r.MD5[:], sum)
}

func (r *Resource) MD5Hex() string {
	return hexEncode(r.MD5[:])
}

func hexEncode(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, len(b)*2)
	for i, c := range b {
		out[i*2] = hexDigits[c>>4]
		out[i*2+1] = hexDigits[c&0x0f]
	}
	return string(out)
}

// Message is an ordered set of Resources sent as one unit from src to
// dst, chunked on the wire.
type Message struct {
	ID        uint32
	Status    Status
	Time      int64
	HistoryID uint32
	Src       uint32
	Dst       uint32
	Resources []*Resource
	byID      map[uint32]*Resource
}

func New() *Message {
	return &Message{byID: make(map[uint32]*Resource)}
}

// AddResource appends r to the message and indexes it by id.
func (m *Message) AddResource(r *Resource) {
	m.Resources = append(m.Resources, r)
	m.byID[r.ID] = r
}

func (m *Message) Resource(id uint32) (*Resource, bool) {
	r, ok := m.byID[id]
	return r, ok
}

// TotalParts sums ceil(size/MaxPacketBody) (at least 1 for any
// non-empty resource) across every resource with size>0.
func TotalParts(resources []*Resource) int {
	total := 0
	for _, r := range resources {
		if r.Size <= 0 {
			continue
		}
		parts := int((r.Size + MaxPacketBody - 1) / MaxPacketBody)
		if parts < 1 {
			parts = 1
		}
		total += parts
	}
	return total
}
