package transport

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/duskline-im/client/wire"
)

func TestWriteReadPacketRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cs := &Session{conn: client}
	ss := &Session{conn: server}

	p := &wire.Packet{Kind: wire.KindMessage, Head: []byte("head-bytes"), Body: []byte("body-bytes-here")}

	errCh := make(chan error, 1)
	go func() { errCh <- cs.WritePacket(p) }()

	got, err := ss.ReadPacket()
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	require.Equal(t, p.Kind, got.Kind)
	require.Equal(t, p.Head, got.Head)
	require.Equal(t, p.Body, got.Body)
}

func TestReadPacketRejectsOversizedDeclaredHead(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ss := &Session{conn: server}

	badBase := make([]byte, wire.PacketBaseSize)
	badBase[4] = 0xff
	badBase[5] = 0xff
	badBase[6] = 0xff
	badBase[7] = 0xff

	go client.Write(badBase)

	_, err := ss.ReadPacket()
	require.Error(t, err)
}

func TestSetDeadlinesDoNotError(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cs := &Session{conn: client}
	require.NoError(t, cs.SetReadDeadline(time.Now().Add(time.Second)))
	require.NoError(t, cs.SetWriteDeadline(time.Now().Add(time.Second)))
}
