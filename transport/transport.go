// Package transport is the TCP+TLS1.2 session and packet framing layer
// the connection engine drives: dial, handshake, and whole-frame
// read/write over the resulting net.Conn.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/duskline-im/client/wire"
)

var log = logging.MustGetLogger("duskline/transport")

// DefaultPort is the relay's default TCP port.
const DefaultPort = 5557

// ConnectTimeout is the soft deadline on the initial dial.
const ConnectTimeout = 10 * time.Second

// Session wraps one TLS-protected TCP connection and provides
// whole-frame packet I/O. Server certificate verification is left to
// tls.Config's caller-supplied policy; see tlsConfig for the default.
type Session struct {
	conn net.Conn
}

// tlsConfig pins the protocol's required TLS version: 1.2 exactly,
// no later negotiation.
// InsecureSkipVerify
// defaults to false, so the standard library's normal chain
// validation against the system root pool applies unless the caller
// supplies its own tls.Config via DialWithConfig to pin a CA or run
// anonymous-only, matching whichever mode the deployment has chosen to
// document.
func tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		MaxVersion: tls.VersionTLS12,
	}
}

// Dial connects to addr (host:port) with ConnectTimeout as a soft
// deadline, then performs a blocking TLS 1.2 handshake.
func Dial(ctx context.Context, addr string) (*Session, error) {
	return DialWithConfig(ctx, addr, tlsConfig())
}

// DialWithConfig is Dial with a caller-supplied TLS configuration, for
// deployments that need to pin a CA or run anonymous-only.
func DialWithConfig(ctx context.Context, addr string, cfg *tls.Config) (*Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s failed: %w", addr, err)
	}

	tlsConn := tls.Client(raw, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("transport: TLS handshake with %s failed: %w", addr, err)
	}

	log.Infof("transport: connected to %s", addr)
	return &Session{conn: tlsConn}, nil
}

// SetReadDeadline and SetWriteDeadline apply read/write deadlines ahead of the reader/sender
// loops' poll-style reads and writes.
func (s *Session) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *Session) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// WritePacket sends p as one whole frame or fails; partial writes are
// retried internally via io.Writer's contract (net.Conn.Write already
// blocks until the full buffer is written or an error occurs).
func (s *Session) WritePacket(p *wire.Packet) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	_, err = s.conn.Write(data)
	if err != nil {
		return fmt.Errorf("transport: write failed: %w", err)
	}
	return nil
}

// ReadPacket reads one whole frame: the 12-byte base, then exactly
// head_len+body_len further bytes, with bounded allocation enforced by
// wire.ParseBase.
func (s *Session) ReadPacket() (*wire.Packet, error) {
	base := make([]byte, wire.PacketBaseSize)
	if _, err := readFull(s.conn, base); err != nil {
		return nil, err
	}
	kind, headLen, bodyLen, err := wire.ParseBase(base)
	if err != nil {
		return nil, err
	}
	rest := make([]byte, headLen+bodyLen)
	if len(rest) > 0 {
		if _, err := readFull(s.conn, rest); err != nil {
			return nil, err
		}
	}
	return &wire.Packet{
		Kind: kind,
		Head: rest[:headLen],
		Body: rest[headLen:],
	}, nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if err != nil {
			return total, fmt.Errorf("transport: read failed: %w", err)
		}
		total += n
	}
	return total, nil
}

// Close tears down the underlying TLS session and TCP connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
