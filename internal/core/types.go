// Package core implements the relay's per-connection state machine,
// channel/session registries, dispatcher, and liveness ticker — the parts
// that maintain cross-connection shared state. It is transport-agnostic:
// callers feed it decoded frames through HandleStreamFrame and
// HandleDatagram and get frames to deliver back out through Conn.
package core

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Conn is the per-client transport handle the core uses to deliver frames
// and learn the client's identity. Implementations live in
// internal/transport; socket acquisition and the byte carrier itself are
// kept out of this package — this is the seam between them.
type Conn interface {
	// SendStream delivers a frame body over the reliable carrier.
	SendStream(body []byte) error
	// SendDatagram delivers a frame body over the unreliable carrier.
	SendDatagram(body []byte) error
	// RemoteIP is the IP address this connection was accepted from.
	RemoteIP() string
	// Disconnect tears down the underlying transport connection.
	Disconnect()
}

// Client is one connected session. All mutable fields are guarded by the
// owning Server's mutex; Client itself holds no lock of its own.
type Client struct {
	server *Server
	conn   Conn

	id   uint16
	name string

	channels []*Channel // ordered membership, in join order

	handshook      bool
	ponged         bool
	sentUDPWelcome bool

	remoteIP   string
	udpPort    uint16
	udpLearned bool

	closed atomic.Bool

	// limiter guards against an abusive or malfunctioning peer flooding the
	// dispatcher with inbound frames. An inbound abuse guard, not flow
	// control. Never nil once the client is past Accept.
	limiter *rate.Limiter

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64

	// Tag is free for an embedding application to stash its own data on the
	// client.
	Tag any
}

// ID returns the client's server-assigned, session-local identifier.
func (c *Client) ID() uint16 { return c.id }

// Name returns the client's current display name (may be empty).
func (c *Client) Name() string {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.name
}

// SetName sets the client's name directly, with no validation and no
// broadcast to peers. Renaming in a way peers learn about goes through the
// SetName request instead.
func (c *Client) SetName(name string) {
	c.server.mu.Lock()
	c.name = name
	c.server.mu.Unlock()
}

// Address returns the IP the client's connection was accepted from.
func (c *Client) Address() string {
	return c.remoteIP
}

// Handshook reports whether the client completed Connect.
func (c *Client) Handshook() bool {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return c.handshook
}

// Channels returns a snapshot of the channels this client currently belongs to.
func (c *Client) Channels() []*Channel {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	out := make([]*Channel, len(c.channels))
	copy(out, c.channels)
	return out
}

// ChannelCount returns the number of channels this client belongs to.
func (c *Client) ChannelCount() int {
	c.server.mu.Lock()
	defer c.server.mu.Unlock()
	return len(c.channels)
}

// BytesSent is maintained by the server's send paths after each successful
// Conn send; BytesReceived by the transport's read loops. They're atomics so
// either can update them off the dispatch goroutine without taking the
// server's mutex.
func (c *Client) BytesSent() uint64     { return c.bytesSent.Load() }
func (c *Client) BytesReceived() uint64 { return c.bytesReceived.Load() }

// AddBytesSent and AddBytesReceived let the transport layer account for
// wire traffic without reaching into Client internals, and forward the same
// count to the server's metrics recorder, if any.
func (c *Client) AddBytesSent(n uint64) {
	c.bytesSent.Add(n)
	c.server.mu.Lock()
	metrics := c.server.metrics
	c.server.mu.Unlock()
	if metrics != nil {
		metrics.RecordBytesSent(n)
	}
}

func (c *Client) AddBytesReceived(n uint64) {
	c.bytesReceived.Add(n)
	c.server.mu.Lock()
	metrics := c.server.metrics
	c.server.mu.Unlock()
	if metrics != nil {
		metrics.RecordBytesReceived(n)
	}
}

// Closed reports whether this client has already been (or is being) torn
// down, so a transport read loop can stop feeding it frames.
func (c *Client) Closed() bool { return c.closed.Load() }

// Disconnect asks the server to tear this client down. Safe to call from a
// hook, from the transport's read loop, or from the liveness ticker.
func (c *Client) Disconnect() {
	c.server.requestDisconnect(c)
}

// Send emits a BinaryServerMessage to this client over the stream carrier.
func (c *Client) Send(subchannel uint8, body []byte, variant uint8) error {
	return c.server.sendServerMessage(c, false, subchannel, body, variant)
}

// Blast emits a BinaryServerMessage to this client over the datagram
// carrier.
func (c *Client) Blast(subchannel uint8, body []byte, variant uint8) error {
	return c.server.sendServerMessage(c, true, subchannel, body, variant)
}

// Channel is one named, joinable group of clients.
type Channel struct {
	server *Server

	id   uint16
	name string

	clients []*Client // join order
	master  *Client

	hidden    bool
	autoClose bool

	closed bool
}

// ID returns the channel's server-assigned, session-local identifier.
func (ch *Channel) ID() uint16 { return ch.id }

// Name returns the channel's name.
func (ch *Channel) Name() string {
	ch.server.mu.Lock()
	defer ch.server.mu.Unlock()
	return ch.name
}

// Hidden reports whether the channel is excluded from ChannelList responses.
func (ch *Channel) Hidden() bool {
	ch.server.mu.Lock()
	defer ch.server.mu.Unlock()
	return ch.hidden
}

// AutoClose reports whether the channel closes when its master leaves.
func (ch *Channel) AutoClose() bool {
	ch.server.mu.Lock()
	defer ch.server.mu.Unlock()
	return ch.autoClose
}

// Master returns the channel's creator, or nil if it has left and the
// channel survives without one.
func (ch *Channel) Master() *Client {
	ch.server.mu.Lock()
	defer ch.server.mu.Unlock()
	return ch.master
}

// Clients returns a snapshot of the channel's members in join order.
func (ch *Channel) Clients() []*Client {
	ch.server.mu.Lock()
	defer ch.server.mu.Unlock()
	out := make([]*Client, len(ch.clients))
	copy(out, ch.clients)
	return out
}

// ClientCount returns the number of current members.
func (ch *Channel) ClientCount() int {
	ch.server.mu.Lock()
	defer ch.server.mu.Unlock()
	return len(ch.clients)
}

// Close tears the channel down immediately, notifying every member.
func (ch *Channel) Close() {
	ch.server.closeChannel(ch)
}

// foldName is the case-insensitive comparison key used for both channel
// names and client names. strings.ToLower would also fold non-ASCII
// scripts (Cyrillic, Greek, Turkish dotless-i, ...) under Unicode case
// rules, which drags in locale-dependent behavior we don't want, so only
// the ASCII range A-Z is folded here.
func foldName(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
