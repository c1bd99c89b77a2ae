package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketRoundTrip(t *testing.T) {
	p := &Packet{Kind: KindMessage, Head: []byte("head"), Body: []byte("body-bytes")}
	enc, err := p.Marshal()
	require.NoError(t, err)
	require.Equal(t, PacketBaseSize+len(p.Head)+len(p.Body), len(enc))

	got, err := Unmarshal(enc)
	require.NoError(t, err)
	require.Equal(t, p.Kind, got.Kind)
	require.Equal(t, p.Head, got.Head)
	require.Equal(t, p.Body, got.Body)
}

func TestPacketRejectsOversizedHead(t *testing.T) {
	p := &Packet{Kind: KindRequest, Head: make([]byte, MaxPacketHead+1)}
	_, err := p.Marshal()
	require.Error(t, err)
}

func TestPacketRejectsOversizedBody(t *testing.T) {
	p := &Packet{Kind: KindRequest, Body: make([]byte, MaxPacketBody+1)}
	_, err := p.Marshal()
	require.Error(t, err)
}

func TestHeartbeatEmptyHeadBody(t *testing.T) {
	p := &Packet{Kind: KindHeartbeat}
	enc, err := p.Marshal()
	require.NoError(t, err)
	require.Equal(t, PacketBaseSize, len(enc))
}

func TestParseBaseRejectsOversizedDeclaredLengths(t *testing.T) {
	base := make([]byte, PacketBaseSize)
	// headLen declared as MaxPacketHead+1
	base[4] = 0x01
	base[5] = 0x08
	_, _, _, err := ParseBase(base)
	require.Error(t, err)
}
