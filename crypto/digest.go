package crypto

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// MD5Digest and SHA256Digest wrap the standard library's incremental
// hash.Hash so callers can feed a message in chunks as it streams off the
// wire, then take a final digest without buffering the whole message.

type MD5Digest struct {
	h hash.Hash
}

func NewMD5() *MD5Digest {
	return &MD5Digest{h: md5.New()}
}

func (d *MD5Digest) Update(p []byte) {
	d.h.Write(p)
}

func (d *MD5Digest) Sum() []byte {
	return d.h.Sum(nil)
}

func (d *MD5Digest) SumHex() string {
	return hex.EncodeToString(d.Sum())
}

type SHA256Digest struct {
	h hash.Hash
}

func NewSHA256() *SHA256Digest {
	return &SHA256Digest{h: sha256.New()}
}

func (d *SHA256Digest) Update(p []byte) {
	d.h.Write(p)
}

func (d *SHA256Digest) Sum() []byte {
	return d.h.Sum(nil)
}

func (d *SHA256Digest) SumHex() string {
	return hex.EncodeToString(d.Sum())
}

// MD5Sum and SHA256Sum are one-shot helpers over an already-buffered run.
func MD5Sum(data []byte) []byte {
	sum := md5.Sum(data)
	return sum[:]
}

func SHA256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func MD5SumHex(data []byte) string {
	return hex.EncodeToString(MD5Sum(data))
}

func SHA256SumHex(data []byte) string {
	return hex.EncodeToString(SHA256Sum(data))
}
