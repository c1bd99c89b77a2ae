// Package crypto is the thin typed facade over the protocol's
// primitives: AES-CTR, MD5/SHA-256,
// RSA-PKCS1v15, and a CSPRNG. Nothing in this package implements a
// cryptographic primitive; it wraps the standard library's.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	// AESKeySize is the required AES-256 key length in bytes.
	AESKeySize = 32
	// AESBlockSize is the AES block / CTR counter length in bytes.
	AESBlockSize = 16
)

// CTRCipher is a keyed, counter-seeded AES-CTR stream. It has no padding:
// Encrypt/Decrypt are the same operation (XOR with the keystream) and
// accept arbitrary-length input. The keystream position advances across
// calls, so chunked input encrypted in successive calls forms one
// continuous stream; SetCounter rewinds to a fresh seed.
type CTRCipher struct {
	block   cipher.Block
	counter [AESBlockSize]byte
	stream  cipher.Stream
}

// NewCTR constructs a CTRCipher from a 32-byte key and a 16-byte initial
// counter.
func NewCTR(key, counter []byte) (*CTRCipher, error) {
	if len(key) != AESKeySize {
		return nil, fmt.Errorf("crypto: AES key must be %d bytes, got %d", AESKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	c := &CTRCipher{block: block}
	if err := c.SetCounter(counter); err != nil {
		return nil, err
	}
	return c, nil
}

// SetCounter reseeds the stream to a fresh 16-byte counter. It does not
// change the key. The keystream restarts from the new counter; any
// position advanced by prior calls is discarded.
func (c *CTRCipher) SetCounter(counter []byte) error {
	if len(counter) != AESBlockSize {
		return fmt.Errorf("crypto: AES counter must be %d bytes, got %d", AESBlockSize, len(counter))
	}
	copy(c.counter[:], counter)
	c.stream = cipher.NewCTR(c.block, c.counter[:])
	return nil
}

// Counter returns a copy of the 16-byte counter the stream was last
// seeded with.
func (c *CTRCipher) Counter() []byte {
	out := make([]byte, AESBlockSize)
	copy(out, c.counter[:])
	return out
}

// EncryptInPlace XORs data with the keystream in place, advancing the
// stream. Decrypt is identical: CTR mode is its own inverse.
func (c *CTRCipher) EncryptInPlace(data []byte) {
	c.stream.XORKeyStream(data, data)
}

// DecryptInPlace is an alias of EncryptInPlace, named for call-site clarity.
func (c *CTRCipher) DecryptInPlace(data []byte) {
	c.stream.XORKeyStream(data, data)
}

// Encrypt returns a new slice containing the keystream-XORed src,
// advancing the stream.
func (c *CTRCipher) Encrypt(src []byte) []byte {
	dst := make([]byte, len(src))
	c.stream.XORKeyStream(dst, src)
	return dst
}

// Decrypt is an alias of Encrypt, named for call-site clarity.
func (c *CTRCipher) Decrypt(src []byte) []byte {
	return c.Encrypt(src)
}

// ZeroCounter returns a 16-byte all-zero counter, used by the node store's
// encryption discipline: every field is encrypted under CTR with a
// fixed zero counter so that equality on ciphertext is equivalent to
// equality on plaintext.
func ZeroCounter() []byte {
	return make([]byte, AESBlockSize)
}

// EncryptCTRZero is a one-shot helper: AES-CTR encrypt data under key with
// a zero counter. Used by the node store and by storage-key bootstrapping.
func EncryptCTRZero(key, data []byte) ([]byte, error) {
	c, err := NewCTR(key, ZeroCounter())
	if err != nil {
		return nil, err
	}
	return c.Encrypt(data), nil
}

// DecryptCTRZero is the inverse of EncryptCTRZero.
func DecryptCTRZero(key, data []byte) ([]byte, error) {
	return EncryptCTRZero(key, data)
}

// IncrementSalt implements the shared sender/receiver salt-bump rule: the
// 4 bytes at salt[12:16] are interpreted as a little-endian uint32 and
// incremented by one, with wraparound. Applied once per resource, starting
// from the salt shipped in the first packet of a message.
func IncrementSalt(salt []byte) {
	if len(salt) < 16 {
		panic("crypto: salt must be at least 16 bytes")
	}
	for i := 12; i < 16; i++ {
		salt[i]++
		if salt[i] != 0 {
			return
		}
	}
}
