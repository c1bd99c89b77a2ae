package duskerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesKind(t *testing.T) {
	err := Wrap(Storage, "store.Open", errors.New("disk full"))
	require.True(t, Is(err, Storage))
	require.False(t, Is(err, Transport))
	require.Contains(t, err.Error(), "store.Open")
	require.Contains(t, err.Error(), "disk full")
}

func TestWrapIsIdempotent(t *testing.T) {
	inner := Protocolf("conn.read", "bad kind %d", 9)
	outer := Wrap(Crypto, "conn.dispatch", inner)
	require.Same(t, inner, outer)
	require.True(t, Is(outer, Protocol))
}

func TestWrapNilIsNil(t *testing.T) {
	require.Nil(t, Wrap(Transport, "x", nil))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(Policy, "client.Login", cause)
	require.ErrorIs(t, err, cause)
}

func TestKindStrings(t *testing.T) {
	require.Equal(t, "transport", Transport.String())
	require.Equal(t, "policy", Policy.String())
}
