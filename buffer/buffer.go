// Package buffer implements the length-tagged byte container used
// throughout duskline for plaintext and ciphertext payloads.
//
// Buffer is value-semantic by convention: callers that want an independent
// copy must call Clone. A zero-value Buffer is the canonical "empty" buffer
// (size 0, no backing storage).
package buffer

// Buffer is a length-tagged byte container.
type Buffer struct {
	data []byte
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// NewZero returns a buffer of n zero bytes.
func NewZero(n int) *Buffer {
	if n <= 0 {
		return &Buffer{}
	}
	return &Buffer{data: make([]byte, n)}
}

// NewFrom copies b into a new buffer.
func NewFrom(b []byte) *Buffer {
	if len(b) == 0 {
		return &Buffer{}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return &Buffer{data: cp}
}

// Len returns the buffer's size in bytes.
func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}

// Empty reports whether the buffer is size 0.
func (b *Buffer) Empty() bool {
	return b.Len() == 0
}

// Bytes returns the buffer's backing slice. Callers must not retain it
// across a Release.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.data
}

// Read copies n bytes starting at offset into dst. It fails (returns false,
// leaving dst untouched) if [offset, offset+n) is out of bounds or
// len(dst) < n.
func (b *Buffer) Read(dst []byte, n, offset int) bool {
	if b == nil || n < 0 || offset < 0 || len(dst) < n {
		return false
	}
	if offset+n > len(b.data) {
		return false
	}
	copy(dst[:n], b.data[offset:offset+n])
	return true
}

// Write copies n bytes from src into the buffer starting at offset. It
// fails without mutating the buffer if [offset, offset+n) is out of bounds
// or len(src) < n. Write never grows the buffer; Grow does that.
func (b *Buffer) Write(src []byte, n, offset int) bool {
	if b == nil || n < 0 || offset < 0 || len(src) < n {
		return false
	}
	if offset+n > len(b.data) {
		return false
	}
	copy(b.data[offset:offset+n], src[:n])
	return true
}

// Grow extends the buffer to at least n bytes, zero-filling the new tail.
// It never shrinks the buffer.
func (b *Buffer) Grow(n int) {
	if n <= len(b.data) {
		return
	}
	grown := make([]byte, n)
	copy(grown, b.data)
	b.data = grown
}

// Equal reports byte-wise equality over min(len(b), len(other)); buffers of
// differing length are never equal.
func (b *Buffer) Equal(other *Buffer) bool {
	if b.Len() != other.Len() {
		return false
	}
	for i := range b.data {
		if b.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of b.
func (b *Buffer) Clone() *Buffer {
	return NewFrom(b.Bytes())
}

// Release zeroes the buffer's backing storage and detaches it. A released
// buffer is equivalent to New().
func (b *Buffer) Release() {
	if b == nil {
		return
	}
	for i := range b.data {
		b.data[i] = 0
	}
	b.data = nil
}
