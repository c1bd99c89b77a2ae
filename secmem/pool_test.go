package secmem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMallocZeroesRegion(t *testing.T) {
	p, err := New(4096)
	require.NoError(t, err)
	defer p.Destroy()

	_, view, err := p.Malloc(64)
	require.NoError(t, err)
	for _, b := range view {
		require.Zero(t, b)
	}
}

func TestFreeThenReallocReusesSpace(t *testing.T) {
	p, err := New(128)
	require.NoError(t, err)
	defer p.Destroy()

	h1, v1, err := p.Malloc(64)
	require.NoError(t, err)
	v1[0] = 0xff
	p.Free(h1)

	h2, v2, err := p.Malloc(64)
	require.NoError(t, err)
	require.Equal(t, byte(0), v2[0])
	_ = h2
}

func TestMallocFailsWhenExhausted(t *testing.T) {
	p, err := New(128)
	require.NoError(t, err)
	defer p.Destroy()

	_, _, err = p.Malloc(64)
	require.NoError(t, err)
	_, _, err = p.Malloc(64)
	require.NoError(t, err)
	_, _, err = p.Malloc(1)
	require.Error(t, err)
}

func TestFreeCoalescesAdjacentRegions(t *testing.T) {
	p, err := New(128)
	require.NoError(t, err)
	defer p.Destroy()

	h1, _, err := p.Malloc(32)
	require.NoError(t, err)
	h2, _, err := p.Malloc(32)
	require.NoError(t, err)

	p.Free(h1)
	p.Free(h2)
	require.Equal(t, 128, p.Available())

	_, _, err = p.Malloc(128)
	require.NoError(t, err)
}

func TestFreeZeroesOnRelease(t *testing.T) {
	p, err := New(128)
	require.NoError(t, err)
	defer p.Destroy()

	h, v, err := p.Malloc(32)
	require.NoError(t, err)
	for i := range v {
		v[i] = 0x42
	}
	p.Free(h)

	raw := p.buf.Bytes()[h.offset : h.offset+h.size]
	for _, b := range raw {
		require.Zero(t, b)
	}
}
