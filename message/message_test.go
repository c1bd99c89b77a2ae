package message

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/duskline-im/client/buffer"
)

func TestTotalPartsCeilsAndSkipsEmpty(t *testing.T) {
	resources := []*Resource{
		{Size: 0},
		{Size: 1},
		{Size: MaxPacketBody},
		{Size: MaxPacketBody + 1},
	}
	// 0 -> skipped, 1 -> 1 part, exact MAX -> 1 part, MAX+1 -> 2 parts
	require.Equal(t, 4, TotalParts(resources))
}

func TestRefreshMD5(t *testing.T) {
	r := &Resource{Data: buffer.NewFrom([]byte("hello"))}
	r.RefreshMD5()
	require.NotEqual(t, [16]byte{}, r.MD5)
	require.Len(t, r.MD5Hex(), 32)
}

func TestMessageAddAndLookupResource(t *testing.T) {
	m := New()
	r := &Resource{ID: 7, Name: "a.txt"}
	m.AddResource(r)

	got, ok := m.Resource(7)
	require.True(t, ok)
	require.Same(t, r, got)

	_, ok = m.Resource(99)
	require.False(t, ok)
}

func TestSniffType(t *testing.T) {
	require.Equal(t, Text, SniffType([]byte("plain ascii text content here")))
	require.Equal(t, Image, SniffType([]byte("\x89PNG\r\n\x1a\n")))
}
