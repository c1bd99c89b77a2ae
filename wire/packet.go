package wire

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies a packet's payload class.
type Kind uint32

const (
	KindHeartbeat Kind = 0
	KindRequest   Kind = 1
	KindMessage   Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindRequest:
		return "request"
	case KindMessage:
		return "message"
	default:
		return fmt.Sprintf("kind(%d)", uint32(k))
	}
}

const (
	// MaxPacketHead is the largest permitted head byte run.
	MaxPacketHead = 2048
	// MaxPacketBody is the largest permitted body byte run.
	MaxPacketBody = 65536
	// PacketBaseSize is the fixed-size prefix: kind, head length, body length.
	PacketBaseSize = 12
)

// Packet is the wire frame: a 12-byte base (kind, head length, body
// length), little-endian, followed by the head and body byte runs.
type Packet struct {
	Kind Kind
	Head []byte
	Body []byte
}

// Len returns the total encoded size of p.
func (p *Packet) Len() int {
	return PacketBaseSize + len(p.Head) + len(p.Body)
}

// Marshal encodes p to bytes, or fails if the head or body exceeds its
// bound.
func (p *Packet) Marshal() ([]byte, error) {
	if len(p.Head) > MaxPacketHead {
		return nil, fmt.Errorf("wire: head length %d exceeds MaxPacketHead %d", len(p.Head), MaxPacketHead)
	}
	if len(p.Body) > MaxPacketBody {
		return nil, fmt.Errorf("wire: body length %d exceeds MaxPacketBody %d", len(p.Body), MaxPacketBody)
	}
	out := make([]byte, p.Len())
	binary.LittleEndian.PutUint32(out[0:4], uint32(p.Kind))
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(p.Head)))
	binary.LittleEndian.PutUint32(out[8:12], uint32(len(p.Body)))
	copy(out[12:12+len(p.Head)], p.Head)
	copy(out[12+len(p.Head):], p.Body)
	return out, nil
}

// ParseBase decodes the 12-byte base prefix, returning the kind and the
// declared head/body lengths, validated against the frame bounds. Callers
// use the lengths to know how many further bytes to read from the stream.
func ParseBase(base []byte) (kind Kind, headLen, bodyLen uint32, err error) {
	if len(base) < PacketBaseSize {
		return 0, 0, 0, fmt.Errorf("wire: packet base too short: %d bytes", len(base))
	}
	kind = Kind(binary.LittleEndian.Uint32(base[0:4]))
	headLen = binary.LittleEndian.Uint32(base[4:8])
	bodyLen = binary.LittleEndian.Uint32(base[8:12])
	if headLen > MaxPacketHead {
		return 0, 0, 0, fmt.Errorf("wire: head length %d exceeds MaxPacketHead %d", headLen, MaxPacketHead)
	}
	if bodyLen > MaxPacketBody {
		return 0, 0, 0, fmt.Errorf("wire: body length %d exceeds MaxPacketBody %d", bodyLen, MaxPacketBody)
	}
	return kind, headLen, bodyLen, nil
}

// Unmarshal decodes a full frame (base + head + body) produced by Marshal.
func Unmarshal(data []byte) (*Packet, error) {
	kind, headLen, bodyLen, err := ParseBase(data)
	if err != nil {
		return nil, err
	}
	want := PacketBaseSize + int(headLen) + int(bodyLen)
	if len(data) != want {
		return nil, fmt.Errorf("wire: expected %d bytes, got %d", want, len(data))
	}
	p := &Packet{
		Kind: kind,
		Head: append([]byte(nil), data[PacketBaseSize:PacketBaseSize+int(headLen)]...),
		Body: append([]byte(nil), data[PacketBaseSize+int(headLen):]...),
	}
	return p, nil
}
