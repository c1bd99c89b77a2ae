package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCTRInvolution(t *testing.T) {
	key := MustRandomBytes(AESKeySize)
	counter := MustRandomBytes(AESBlockSize)

	for _, n := range []int{0, 1, 15, 16, 17, 1000, 65536} {
		plaintext := MustRandomBytes(n)

		enc, err := NewCTR(key, counter)
		require.NoError(t, err)
		ciphertext := enc.Encrypt(plaintext)
		require.Len(t, ciphertext, n)

		dec, err := NewCTR(key, counter)
		require.NoError(t, err)
		recovered := dec.Decrypt(ciphertext)
		require.Equal(t, plaintext, recovered)
	}
}

func TestCTRStreamAdvancesAcrossCalls(t *testing.T) {
	key := MustRandomBytes(AESKeySize)
	counter := MustRandomBytes(AESBlockSize)
	plaintext := MustRandomBytes(100000)

	oneShot, err := NewCTR(key, counter)
	require.NoError(t, err)
	want := oneShot.Encrypt(plaintext)

	chunked, err := NewCTR(key, counter)
	require.NoError(t, err)
	var got []byte
	for off := 0; off < len(plaintext); off += 65536 {
		end := off + 65536
		if end > len(plaintext) {
			end = len(plaintext)
		}
		got = append(got, chunked.Encrypt(plaintext[off:end])...)
	}
	require.Equal(t, want, got)
}

func TestCTRSetCounterRewindsStream(t *testing.T) {
	key := MustRandomBytes(AESKeySize)
	counter := MustRandomBytes(AESBlockSize)
	plaintext := []byte("rewound streams repeat themselves exactly")

	c, err := NewCTR(key, counter)
	require.NoError(t, err)
	first := c.Encrypt(plaintext)
	require.NoError(t, c.SetCounter(counter))
	require.Equal(t, first, c.Encrypt(plaintext))
}

func TestCTRRejectsBadKeyLength(t *testing.T) {
	_, err := NewCTR(make([]byte, 10), make([]byte, AESBlockSize))
	require.Error(t, err)
}

func TestCTRZeroCounterHelpersRoundTrip(t *testing.T) {
	key := MustRandomBytes(AESKeySize)
	plaintext := []byte("the node store encrypts every field this way")

	ciphertext, err := EncryptCTRZero(key, plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, ciphertext)

	recovered, err := DecryptCTRZero(key, ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

func TestEncryptCTRZeroIsDeterministic(t *testing.T) {
	key := MustRandomBytes(AESKeySize)
	plaintext := []byte("same plaintext, same key, same ciphertext")

	a, err := EncryptCTRZero(key, plaintext)
	require.NoError(t, err)
	b, err := EncryptCTRZero(key, plaintext)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestIncrementSaltWraps(t *testing.T) {
	salt := make([]byte, 16)
	for i := 12; i < 16; i++ {
		salt[i] = 0xff
	}
	IncrementSalt(salt)
	require.Equal(t, []byte{0, 0, 0, 0}, salt[12:16])
}

func TestIncrementSaltBasic(t *testing.T) {
	salt := make([]byte, 16)
	IncrementSalt(salt)
	require.Equal(t, byte(1), salt[12])
}

func TestMD5KnownAnswer(t *testing.T) {
	require.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", MD5SumHex(nil))
	require.Equal(t, "900150983cd24fb0d6963f7d28e17f72", MD5SumHex([]byte("abc")))
}

func TestSHA256KnownAnswer(t *testing.T) {
	require.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", SHA256SumHex(nil))
	require.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", SHA256SumHex([]byte("abc")))
}

func TestSHA256DigestIncrementalMatchesOneShot(t *testing.T) {
	d := NewSHA256()
	d.Update([]byte("ab"))
	d.Update([]byte("c"))
	require.Equal(t, SHA256SumHex([]byte("abc")), d.SumHex())
}

func TestMD5DigestIncrementalMatchesOneShot(t *testing.T) {
	d := NewMD5()
	d.Update([]byte("ab"))
	d.Update([]byte("c"))
	require.Equal(t, MD5SumHex([]byte("abc")), d.SumHex())
}

func TestRSAEncryptDecryptRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair(1024)
	require.NoError(t, err)

	plaintext := []byte("hello ciphertext")
	ciphertext, err := pub.Encrypt(plaintext)
	require.NoError(t, err)

	recovered, err := priv.Decrypt(ciphertext)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

func TestRSASignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKeyPair(1024)
	require.NoError(t, err)

	message := []byte("a signed message body")
	sig, err := priv.Sign(message)
	require.NoError(t, err)

	require.NoError(t, pub.Verify(message, sig))
	require.Error(t, pub.Verify([]byte("tampered"), sig))
}

func TestNewIDNeverZero(t *testing.T) {
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		require.NoError(t, err)
		require.NotZero(t, id)
	}
}
