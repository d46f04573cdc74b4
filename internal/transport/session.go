// Package transport carries the relay's two wire carriers — a reliable
// stream and an unreliable datagram channel — over a single
// webtransport.Session per client: one control stream for the reliable
// carrier, session datagrams for the unreliable one. It implements
// core.Conn and feeds decoded frames into an internal/core.Server; it
// knows nothing about registries, channels, or dispatch.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/quic-go/webtransport-go"

	"github.com/yodamaster/lacewing/internal/core"
	"github.com/yodamaster/lacewing/internal/wire"
)

// sessionConn adapts one webtransport.Session's control stream and session
// datagrams to core.Conn. The control stream carries framed, length-prefixed
// stream-carrier frames (wire.EncodeStreamFrame/ReadStreamFrame); session
// datagrams carry the datagram carrier directly, datagram-delimited.
type sessionConn struct {
	sess *webtransport.Session

	writeMu sync.Mutex
	stream  *webtransport.Stream

	remoteIP string
}

var _ core.Conn = (*sessionConn)(nil)

func (c *sessionConn) SendStream(body []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.stream.Write(wire.EncodeStreamFrame(body, false))
	return err
}

func (c *sessionConn) SendDatagram(body []byte) error {
	return c.sess.SendDatagram(body)
}

func (c *sessionConn) RemoteIP() string { return c.remoteIP }

func (c *sessionConn) Disconnect() {
	_ = c.sess.CloseWithError(0, "disconnected")
}

// remoteHost strips the port from a webtransport.Session's RemoteAddr. The
// client's UDP port is learned separately, from the first authenticated
// UDPHello datagram, so only the IP is needed here.
func remoteHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// Serve runs one accepted WebTransport session end to end: it registers the
// session as a client on srv, relays the control stream and datagrams until
// either closes, and tears the client down on exit.
func Serve(ctx context.Context, sess *webtransport.Session, srv *core.Server, logger *slog.Logger) {
	// Every log line this function and its relay loops emit carries this
	// correlation id, even before a client ID has been assigned. The core's
	// own accept and disconnect lines are keyed by client_id instead.
	logger = logger.With("conn_id", uuid.NewString())

	stream, err := sess.AcceptStream(ctx)
	if err != nil {
		logger.Warn("Socket error", "error", fmt.Errorf("accept control stream: %w", err))
		return
	}

	conn := &sessionConn{sess: sess, stream: stream, remoteIP: remoteHost(sess.RemoteAddr())}
	client, err := srv.Accept(conn)
	if err != nil {
		logger.Warn("Socket error", "error", err)
		_ = sess.CloseWithError(0, "server full")
		return
	}

	go relayDatagrams(ctx, sess, srv, client, logger)

	relayStream(ctx, stream, srv, client, logger)

	srv.Disconnect(client)
}

// relayStream reads length-prefixed frames off the control stream until it
// errs or ctx is canceled, handing each one to the dispatcher. The stream
// carrier must deliver sends in the order they were submitted; bufio.Reader
// on the read side and sessionConn.writeMu serialising writes on the send
// side preserve that ordering.
func relayStream(ctx context.Context, stream *webtransport.Stream, srv *core.Server, client *core.Client, logger *slog.Logger) {
	r := bufio.NewReaderSize(stream, 16*1024)
	for {
		if ctx.Err() != nil || client.Closed() {
			return
		}
		body, blasted, err := wire.ReadStreamFrame(r)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Debug("control stream closed", "client_id", client.ID(), "error", err)
			}
			return
		}
		client.AddBytesReceived(uint64(len(body)) + 4)
		if blasted {
			// The stream carrier never legitimately carries the blasted bit;
			// a peer setting it is a protocol violation.
			client.Disconnect()
			return
		}
		srv.HandleStreamFrame(client, body)
	}
}

// relayDatagrams reads session datagrams (the unreliable carrier) until the
// session closes, stamping each with the session's remote port before
// dispatch. webtransport-go exposes no per-datagram source address, so any
// IP-match check relies on the session's RemoteAddr, which is stable for
// the session's lifetime; only the UDP port is learned separately, from
// the client's UDPHello.
func relayDatagrams(ctx context.Context, sess *webtransport.Session, srv *core.Server, client *core.Client, logger *slog.Logger) {
	_, port, _ := net.SplitHostPort(sess.RemoteAddr().String())
	var udpPort uint16
	fmt.Sscanf(port, "%d", &udpPort)

	for {
		data, err := sess.ReceiveDatagram(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("datagram relay stopped", "client_id", client.ID(), "error", err)
			}
			return
		}
		client.AddBytesReceived(uint64(len(data)))
		srv.HandleDatagram(client.Address(), udpPort, data)
	}
}
