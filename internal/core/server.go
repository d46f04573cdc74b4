package core

import (
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"github.com/yodamaster/lacewing/internal/idpool"
)

// defaultInboundRate and defaultInboundBurst bound each client to 200
// inbound frames/sec by default, comfortably above any legitimate chat or
// voice workload, just there to catch a flooding or malfunctioning peer.
const (
	defaultInboundRate  = 200
	defaultInboundBurst = 400
)

// Server is the protocol engine: the registries, dispatcher, and liveness
// ticker, with no knowledge of how bytes actually arrive — that is Conn's
// job. One mutex guards all of it; registry and channel/client mutation
// always happens under s.mu, with hooks and transport calls made after
// releasing it.
type Server struct {
	mu sync.Mutex

	hooks   Hooks
	logger  *slog.Logger
	metrics MetricsRecorder

	welcome string

	clientIDs  *idpool.Pool
	channelIDs *idpool.Pool

	clientsByID     map[uint16]*Client
	channelsByID    map[uint16]*Channel
	channelsByName  map[string]*Channel // foldName(name) -> channel
	channelsInOrder []*Channel          // creation order, for ChannelList

	inboundRate  float64
	inboundBurst int
}

// MetricsRecorder is the seam internal/metrics.Metrics satisfies. A nil
// recorder, the default, disables metrics entirely at zero cost on the
// dispatch hot path.
type MetricsRecorder interface {
	RecordAccept()
	RecordDisconnect()
	RecordFrame(messageType string)
	RecordDatagramPosted()
	RecordViolation(reason string)
	RecordPingTimeout()
	SetChannelsActive(count int)
	RecordBytesSent(n uint64)
	RecordBytesReceived(n uint64)
	RecordTransportError(context string)
}

// NewServer returns a Server with the given hooks, ready to Accept
// connections. The welcome string defaults to a server banner.
func NewServer(hooks Hooks) *Server {
	return &Server{
		hooks:          hooks,
		logger:         slog.Default(),
		welcome:        "Lacewing relay server",
		clientIDs:      idpool.New(),
		channelIDs:     idpool.New(),
		clientsByID:    make(map[uint16]*Client),
		channelsByID:   make(map[uint16]*Channel),
		channelsByName: make(map[string]*Channel),
		inboundRate:    defaultInboundRate,
		inboundBurst:   defaultInboundBurst,
	}
}

// SetInboundRateLimit overrides the per-client inbound frame rate limit.
// Takes effect for clients accepted after the call.
func (s *Server) SetInboundRateLimit(perSecond float64, burst int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboundRate = perSecond
	s.inboundBurst = burst
}

// SetLogger overrides the default slog.Logger.
func (s *Server) SetLogger(l *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logger = l
}

// SetMetrics attaches a MetricsRecorder (typically *internal/metrics.Metrics)
// to be notified of accepts, disconnects, dispatched frames, and protocol
// violations. Optional; nil disables metrics.
func (s *Server) SetMetrics(m MetricsRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// SetWelcomeMessage sets the string sent on a successful Connect.
func (s *Server) SetWelcomeMessage(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.welcome = msg
}

// Accept registers a newly established connection as a client in its
// pre-handshake state and assigns it a session-local ID.
func (s *Server) Accept(conn Conn) (*Client, error) {
	s.mu.Lock()
	id, err := s.clientIDs.Borrow()
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("core: accept: %w", err)
	}
	c := &Client{
		server:   s,
		conn:     conn,
		id:       id,
		remoteIP: conn.RemoteIP(),
		ponged:   true,
		limiter:  rate.NewLimiter(rate.Limit(s.inboundRate), s.inboundBurst),
	}
	s.clientsByID[id] = c
	metrics := s.metrics
	s.mu.Unlock()

	if metrics != nil {
		metrics.RecordAccept()
	}
	s.logger.Info("client accepted", "client_id", id, "remote_ip", c.remoteIP)
	return c, nil
}

// Clients returns a snapshot of every currently connected client.
func (s *Server) Clients() []*Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Client, 0, len(s.clientsByID))
	for _, c := range s.clientsByID {
		out = append(out, c)
	}
	return out
}

// ClientCount returns the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clientsByID)
}

// Channels returns a snapshot of every live channel, including hidden ones.
func (s *Server) Channels() []*Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Channel, 0, len(s.channelsByID))
	for _, ch := range s.channelsByID {
		out = append(out, ch)
	}
	return out
}

// ChannelCount returns the number of live channels.
func (s *Server) ChannelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channelsByID)
}

// Disconnect tears a client down: every channel membership is cleaned up,
// HandlerDisconnect fires if the client had completed Connect, and its ID
// is released. Idempotent — safe to call from the transport's read-loop, a
// hook, or the liveness ticker. Every dispatch path releases s.mu before
// calling a hook or Disconnect, so this runs synchronously with no risk of
// self-deadlock.
func (s *Server) Disconnect(c *Client) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	s.teardown(c)
}

func (s *Server) requestDisconnect(c *Client) {
	s.Disconnect(c)
}

func (s *Server) teardown(c *Client) {
	s.mu.Lock()
	channels := make([]*Channel, len(c.channels))
	copy(channels, c.channels)
	handshook := c.handshook
	s.mu.Unlock()

	for _, ch := range channels {
		s.removeClientFromChannel(ch, c)
	}

	if handshook && s.hooks.OnDisconnect != nil {
		s.hooks.OnDisconnect(c)
	}

	s.mu.Lock()
	delete(s.clientsByID, c.id)
	metrics := s.metrics
	s.mu.Unlock()
	s.clientIDs.Return(c.id)

	if metrics != nil {
		metrics.RecordDisconnect()
	}
	c.conn.Disconnect()
	s.logger.Info("client disconnected", "client_id", c.id)
}

func (s *Server) disconnectProtocolViolation(c *Client, reason string) {
	s.logger.Warn("protocol violation, disconnecting", "client_id", c.id, "reason", reason)
	s.mu.Lock()
	metrics := s.metrics
	s.mu.Unlock()
	if metrics != nil {
		metrics.RecordViolation(reason)
	}
	s.Disconnect(c)
}

// logError reports a non-fatal condition through both the structured
// logger and HandlerError. c may be nil for server-wide errors (e.g. a
// datagram for an unrecognized client ID).
func (s *Server) logError(c *Client, context string, err error) {
	if c != nil {
		s.logger.Warn(context, "client_id", c.id, "error", err)
	} else {
		s.logger.Warn(context, "error", err)
	}
	s.mu.Lock()
	metrics := s.metrics
	s.mu.Unlock()
	if metrics != nil {
		metrics.RecordTransportError(context)
	}
	if s.hooks.OnError != nil {
		s.hooks.OnError(c, context, err)
	}
}

func (s *Server) sendStream(c *Client, body []byte) {
	if err := c.conn.SendStream(body); err != nil {
		s.logError(c, "Error sending", err)
		return
	}
	c.AddBytesSent(uint64(len(body)))
}

func (s *Server) sendDatagram(c *Client, body []byte) {
	if err := c.conn.SendDatagram(body); err != nil {
		s.logError(c, "Error sending", err)
		return
	}
	c.AddBytesSent(uint64(len(body)))
}

func (s *Server) findClientChannelLocked(c *Client, id uint16) *Channel {
	for _, ch := range c.channels {
		if ch.id == id {
			return ch
		}
	}
	return nil
}

func (s *Server) nameCollisionLocked(c *Client, name string) bool {
	folded := foldName(name)
	for _, ch := range c.channels {
		for _, other := range ch.clients {
			if other != c && foldName(other.name) == folded {
				return true
			}
		}
	}
	return false
}

func removeClient(list []*Client, c *Client) []*Client {
	out := list[:0:0]
	for _, m := range list {
		if m != c {
			out = append(out, m)
		}
	}
	return out
}

func removeChannel(list []*Channel, ch *Channel) []*Channel {
	out := list[:0:0]
	for _, m := range list {
		if m != ch {
			out = append(out, m)
		}
	}
	return out
}
