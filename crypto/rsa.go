package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
)

// PublicKey is the hex-encoded {e,n,size} triple the protocol exchanges in
// contact records and add-codes.
type PublicKey struct {
	E    string
	N    string
	Size int
}

// PrivateKey is the hex-encoded CRT representation the protocol stores:
// a=dP, b=dQ, c=qInv, d=private exponent, p,q=primes, size=bit length.
type PrivateKey struct {
	A, B, C, D, P, Q string
	Size             int
}

// GenerateKeyPair builds an RSA key of the given bit size (the protocol
// uses 1024 or 2048) and returns both halves in their wire representation.
func GenerateKeyPair(bits int) (*PublicKey, *PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, err
	}
	key.Precompute()

	pub := &PublicKey{
		E:    hex.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		N:    hex.EncodeToString(key.PublicKey.N.Bytes()),
		Size: bits,
	}
	priv := &PrivateKey{
		A:    hex.EncodeToString(key.Precomputed.Dp.Bytes()),
		B:    hex.EncodeToString(key.Precomputed.Dq.Bytes()),
		C:    hex.EncodeToString(key.Precomputed.Qinv.Bytes()),
		D:    hex.EncodeToString(key.D.Bytes()),
		P:    hex.EncodeToString(key.Primes[0].Bytes()),
		Q:    hex.EncodeToString(key.Primes[1].Bytes()),
		Size: bits,
	}
	return pub, priv, nil
}

func hexToBig(s string) (*big.Int, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("crypto: invalid hex field: %w", err)
	}
	return new(big.Int).SetBytes(b), nil
}

// toRSAPublicKey reconstructs a *rsa.PublicKey from the wire PublicKey.
func (pk *PublicKey) toRSAPublicKey() (*rsa.PublicKey, error) {
	n, err := hexToBig(pk.N)
	if err != nil {
		return nil, err
	}
	e, err := hexToBig(pk.E)
	if err != nil {
		return nil, err
	}
	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// toRSAPrivateKey reconstructs a *rsa.PrivateKey from the wire PrivateKey
// CRT fields, deriving the public modulus from p*q.
func (sk *PrivateKey) toRSAPrivateKey() (*rsa.PrivateKey, error) {
	p, err := hexToBig(sk.P)
	if err != nil {
		return nil, err
	}
	q, err := hexToBig(sk.Q)
	if err != nil {
		return nil, err
	}
	d, err := hexToBig(sk.D)
	if err != nil {
		return nil, err
	}
	n := new(big.Int).Mul(p, q)
	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: 65537},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("crypto: invalid RSA private key: %w", err)
	}
	key.Precompute()
	return key, nil
}

// Encrypt performs raw RSA-PKCS1v15 encryption under pub.
func (pk *PublicKey) Encrypt(plaintext []byte) ([]byte, error) {
	rpk, err := pk.toRSAPublicKey()
	if err != nil {
		return nil, err
	}
	return rsa.EncryptPKCS1v15(rand.Reader, rpk, plaintext)
}

// Decrypt performs raw RSA-PKCS1v15 decryption under sk.
func (sk *PrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	rsk, err := sk.toRSAPrivateKey()
	if err != nil {
		return nil, err
	}
	return rsa.DecryptPKCS1v15(rand.Reader, rsk, ciphertext)
}

// Sign produces an RSA-SHA256 PKCS1v15 signature over message.
func (sk *PrivateKey) Sign(message []byte) ([]byte, error) {
	rsk, err := sk.toRSAPrivateKey()
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(message)
	return rsa.SignPKCS1v15(rand.Reader, rsk, crypto.SHA256, digest[:])
}

// Verify checks an RSA-SHA256 PKCS1v15 signature over message.
func (pk *PublicKey) Verify(message, sig []byte) error {
	rpk, err := pk.toRSAPublicKey()
	if err != nil {
		return err
	}
	digest := sha256.Sum256(message)
	return rsa.VerifyPKCS1v15(rpk, crypto.SHA256, digest[:], sig)
}
