package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Strength names a randomness requirement. No function in this package
// takes a Strength: RandomBytes and MustRandomBytes always read from
// crypto/rand.
type Strength int

const (
	Strong     Strength = iota // key material, nonces, counters
	VeryStrong                 // long-term RSA/ratchet key generation
)

// RandomBytes fills and returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random read failed: %w", err)
	}
	return b, nil
}

// MustRandomBytes is RandomBytes but panics on failure, for call sites
// where a depleted CSPRNG is unrecoverable (key/counter generation at
// startup).
func MustRandomBytes(n int) []byte {
	b, err := RandomBytes(n)
	if err != nil {
		panic(err)
	}
	return b
}

// NewID returns a random non-zero 32-bit id, the format used for request
// ids, add-codes, and contact ids throughout the protocol.
func NewID() (uint32, error) {
	for {
		b, err := RandomBytes(4)
		if err != nil {
			return 0, err
		}
		id := binary.LittleEndian.Uint32(b)
		if id != 0 {
			return id, nil
		}
	}
}

// MustNewID is NewID but panics on failure.
func MustNewID() uint32 {
	id, err := NewID()
	if err != nil {
		panic(err)
	}
	return id
}
