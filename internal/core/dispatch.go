package core

import (
	"fmt"
	"strconv"

	"github.com/yodamaster/lacewing/internal/wire"
)

// HandleStreamFrame feeds one decoded stream-carrier frame body (header
// byte plus payload, length prefix already stripped) into the dispatcher.
// blasted is always false here: a frame that arrived over the stream
// carrier was never datagram-originated.
func (s *Server) HandleStreamFrame(c *Client, frame []byte) {
	if c.Closed() {
		return
	}
	if !c.limiter.Allow() {
		s.logError(c, "Error receiving", fmt.Errorf("inbound frame rate exceeded"))
		s.Disconnect(c)
		return
	}
	if len(frame) == 0 {
		s.disconnectProtocolViolation(c, "empty stream frame")
		return
	}
	h := wire.DecodeHeader(frame[0])
	r := wire.NewReader(frame[1:])

	s.mu.Lock()
	handshook := c.handshook
	s.mu.Unlock()

	if !handshook {
		if h.Type != wire.TypeRequest {
			s.disconnectProtocolViolation(c, "message before handshake")
			return
		}
		sub := r.Uint8()
		if r.Failed || sub != wire.ReqConnect {
			s.disconnectProtocolViolation(c, "non-Connect request before handshake")
			return
		}
		s.handleConnect(c, r)
		return
	}

	s.dispatchHandshook(c, h, r, false)
}

// HandleDatagram feeds one inbound datagram, still in its raw wire form
// (sender-id envelope plus body), into the dispatcher. senderIP/senderPort
// are the datagram's actual source address, supplied by the transport.
func (s *Server) HandleDatagram(senderIP string, senderPort uint16, raw []byte) {
	s.mu.Lock()
	metrics := s.metrics
	s.mu.Unlock()
	if metrics != nil {
		metrics.RecordDatagramPosted()
	}

	h, senderID, _, ok := wire.DecodeInboundDatagram(raw)
	if !ok {
		s.logError(nil, "UDP socket error", fmt.Errorf("datagram too short"))
		return
	}

	s.mu.Lock()
	c := s.clientsByID[senderID]
	s.mu.Unlock()
	if c == nil || c.Closed() {
		s.logError(nil, "UDP socket error", fmt.Errorf("datagram for unknown client id %d", senderID))
		return
	}
	// Law L3: a datagram whose source IP doesn't match the IP learned at
	// TCP accept has no effect at all, not even a state transition.
	if c.remoteIP != senderIP {
		s.logError(c, "UDP socket error", fmt.Errorf("datagram source IP %s does not match %s", senderIP, c.remoteIP))
		return
	}
	if !c.limiter.Allow() {
		s.logError(c, "Error receiving", fmt.Errorf("inbound frame rate exceeded"))
		s.Disconnect(c)
		return
	}

	s.mu.Lock()
	handshook := c.handshook
	s.mu.Unlock()
	if !handshook {
		s.disconnectProtocolViolation(c, "datagram before handshake")
		return
	}

	if h.Type == wire.TypePeer {
		s.handleUDPHello(c, senderPort)
		return
	}

	r := wire.NewReader(raw[wire.DatagramIDPrefixSize:])
	s.dispatchHandshook(c, h, r, true)
}

// dispatchHandshook routes one frame already known to be from a client that
// has completed the Connect handshake.
func (s *Server) dispatchHandshook(c *Client, h wire.Header, r *wire.Reader, blasted bool) {
	s.mu.Lock()
	metrics := s.metrics
	s.mu.Unlock()
	if metrics != nil {
		metrics.RecordFrame(strconv.Itoa(int(h.Type)))
	}
	switch h.Type {
	case wire.TypeRequest:
		s.dispatchRequest(c, r, blasted)
	case wire.TypeBinaryServerMessage:
		s.dispatchServerMessage(c, h, r, blasted)
	case wire.TypeBinaryChannelMessage:
		s.dispatchChannelMessage(c, h, r, blasted)
	case wire.TypeBinaryPeerMessage:
		s.dispatchPeerMessage(c, h, r, blasted)
	case wire.TypeObjectServerMessage, wire.TypeObjectChannelMessage, wire.TypeObjectPeerMessage, wire.TypeUDPWelcome:
		// Reserved opcodes (Object*Message, and type 8 as "ChannelMaster")
		// are accepted and produce no effect, leaving room for a future
		// revision to give them a payload without changing today's behavior.
	case wire.TypePing:
		s.dispatchPing(c)
	case wire.TypePeer:
		// UDPHello is only meaningful over the datagram carrier.
		s.disconnectProtocolViolation(c, "Peer-type frame received on stream carrier")
	default:
		s.disconnectProtocolViolation(c, "unrecognized message type")
	}
}

func (s *Server) dispatchRequest(c *Client, r *wire.Reader, blasted bool) {
	sub := r.Uint8()
	if r.Failed {
		s.disconnectProtocolViolation(c, "truncated request")
		return
	}
	switch sub {
	case wire.ReqConnect:
		// A client that already completed the handshake sending a second
		// Connect is a protocol violation.
		s.disconnectProtocolViolation(c, "Connect received after handshake")
	case wire.ReqSetName:
		s.handleSetName(c, r)
	case wire.ReqJoinChannel:
		s.handleJoinChannel(c, r)
	case wire.ReqLeaveChannel:
		s.handleLeaveChannel(c, r)
	case wire.ReqChannelList:
		s.handleChannelList(c, r)
	default:
		s.disconnectProtocolViolation(c, "unrecognized request sub-code")
	}
}

// --- Connect ---

func (s *Server) handleConnect(c *Client, r *wire.Reader) {
	version := r.RemainingString(false)
	if r.Failed {
		s.disconnectProtocolViolation(c, "truncated Connect")
		return
	}
	if version != wire.ProtocolVersion {
		s.sendStream(c, connectFailureFrame("Version mismatch"))
		s.Disconnect(c)
		return
	}
	if s.hooks.OnConnect != nil && !s.hooks.OnConnect(c) {
		s.sendStream(c, connectFailureFrame("Connection refused by server"))
		s.Disconnect(c)
		return
	}

	s.mu.Lock()
	c.handshook = true
	welcome := s.welcome
	s.mu.Unlock()

	s.sendStream(c, connectSuccessFrame(c.id, welcome))
}

func connectSuccessFrame(id uint16, welcome string) []byte {
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqConnect).Uint8(1).Uint16(id).String(welcome)
	return w.Body()
}

func connectFailureFrame(reason string) []byte {
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqConnect).Uint8(0).String(reason)
	return w.Body()
}

// --- SetName ---

func (s *Server) handleSetName(c *Client, r *wire.Reader) {
	name := r.RemainingString(true)
	if r.Failed {
		s.disconnectProtocolViolation(c, "empty SetName payload")
		return
	}

	s.mu.Lock()
	collision := s.nameCollisionLocked(c, name)
	s.mu.Unlock()
	if collision {
		s.sendStream(c, setNameFailureFrame(name, "Name already taken"))
		return
	}

	if s.hooks.OnSetName != nil && !s.hooks.OnSetName(c, name) {
		s.sendStream(c, setNameFailureFrame(name, "Name rejected by server"))
		return
	}

	s.mu.Lock()
	c.name = name
	memberships := make([]*Channel, len(c.channels))
	copy(memberships, c.channels)
	s.mu.Unlock()

	s.sendStream(c, setNameSuccessFrame())

	for _, ch := range memberships {
		s.broadcastPeerJoinOrRename(ch, c)
	}
}

func setNameSuccessFrame() []byte {
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqSetName).Uint8(1)
	return w.Body()
}

func setNameFailureFrame(name, reason string) []byte {
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqSetName).Uint8(0).String8(name).String(reason)
	return w.Body()
}

// --- JoinChannel ---

func (s *Server) handleJoinChannel(c *Client, r *wire.Reader) {
	flags := r.Uint8()
	name := r.RemainingString(true)
	if r.Failed {
		s.disconnectProtocolViolation(c, "malformed JoinChannel")
		return
	}

	s.mu.Lock()
	currentName := c.name
	s.mu.Unlock()
	if currentName == "" {
		s.disconnectProtocolViolation(c, "JoinChannel before a name is set")
		return
	}

	hidden := flags&0x01 != 0
	autoClose := flags&0x02 != 0

	s.mu.Lock()
	ch, exists := s.channelsByName[foldName(name)]
	s.mu.Unlock()

	if exists {
		s.joinExistingChannel(c, ch, name)
		return
	}
	s.joinNewChannel(c, name, hidden, autoClose)
}

func (s *Server) joinExistingChannel(c *Client, ch *Channel, name string) {
	s.mu.Lock()
	folded := foldName(c.name)
	collision := false
	for _, m := range ch.clients {
		if foldName(m.name) == folded {
			collision = true
			break
		}
	}
	chID := ch.id
	s.mu.Unlock()
	if collision {
		s.sendStream(c, joinChannelFailureFrame(name, "Name already taken"))
		return
	}

	if s.hooks.OnJoinChannel != nil && !s.hooks.OnJoinChannel(c, ch) {
		s.sendStream(c, joinChannelFailureFrame(name, "Join refused by server"))
		return
	}

	s.mu.Lock()
	if ch.closed {
		s.mu.Unlock()
		s.sendStream(c, joinChannelFailureFrame(name, "Channel no longer exists"))
		return
	}
	members := make([]*Client, len(ch.clients))
	copy(members, ch.clients)
	master := ch.master
	chName := ch.name
	s.mu.Unlock()

	s.sendStream(c, joinChannelSuccessFrame(false, chName, chID, members, master))
	s.broadcastPeerJoinOrRename(ch, c)

	s.mu.Lock()
	ch.clients = append(ch.clients, c)
	c.channels = append(c.channels, ch)
	s.mu.Unlock()
}

func (s *Server) joinNewChannel(c *Client, name string, hidden, autoClose bool) {
	s.mu.Lock()
	id, err := s.channelIDs.Borrow()
	if err != nil {
		s.mu.Unlock()
		s.logger.Error("channel id allocation failed", "error", err)
		return
	}
	ch := &Channel{server: s, id: id, name: name, master: c, hidden: hidden, autoClose: autoClose}
	s.mu.Unlock()

	if s.hooks.OnJoinChannel != nil && !s.hooks.OnJoinChannel(c, ch) {
		s.channelIDs.Return(id)
		s.sendStream(c, joinChannelFailureFrame(name, "Join refused by server"))
		return
	}

	s.mu.Lock()
	s.channelsByID[id] = ch
	s.channelsByName[foldName(name)] = ch
	s.channelsInOrder = append(s.channelsInOrder, ch)
	ch.clients = append(ch.clients, c)
	c.channels = append(c.channels, ch)
	active := len(s.channelsByID)
	metrics := s.metrics
	s.mu.Unlock()
	if metrics != nil {
		metrics.SetChannelsActive(active)
	}

	s.sendStream(c, joinChannelSuccessFrame(true, name, id, nil, nil))
}

func joinChannelSuccessFrame(isMaster bool, chName string, chID uint16, members []*Client, master *Client) []byte {
	flag := uint8(0)
	if isMaster {
		flag = 1
	}
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqJoinChannel).Uint8(1).Uint8(flag).String8(chName).Uint16(chID)
	for _, m := range members {
		memberIsMaster := uint8(0)
		if master == m {
			memberIsMaster = 1
		}
		w.Uint16(m.id).Uint8(memberIsMaster).String8(m.name)
	}
	return w.Body()
}

func joinChannelFailureFrame(name, reason string) []byte {
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqJoinChannel).Uint8(0).String8(name).String(reason)
	return w.Body()
}

// --- LeaveChannel ---

func (s *Server) handleLeaveChannel(c *Client, r *wire.Reader) {
	chID := r.Uint16()
	if r.Failed {
		s.disconnectProtocolViolation(c, "truncated LeaveChannel")
		return
	}

	s.mu.Lock()
	ch := s.findClientChannelLocked(c, chID)
	s.mu.Unlock()
	if ch == nil {
		s.disconnectProtocolViolation(c, "LeaveChannel for a channel not joined")
		return
	}

	if s.hooks.OnLeaveChannel != nil && !s.hooks.OnLeaveChannel(c, ch) {
		s.sendStream(c, leaveChannelFailureFrame(chID, "Leave refused by server"))
		return
	}

	s.mu.Lock()
	c.channels = removeChannel(c.channels, ch)
	s.mu.Unlock()

	s.sendStream(c, leaveChannelSuccessFrame(chID))

	s.removeClientFromChannel(ch, c)
}

func leaveChannelSuccessFrame(chID uint16) []byte {
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqLeaveChannel).Uint8(1).Uint16(chID)
	return w.Body()
}

func leaveChannelFailureFrame(chID uint16, reason string) []byte {
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqLeaveChannel).Uint8(0).Uint16(chID).String(reason)
	return w.Body()
}

// --- ChannelList ---

func (s *Server) handleChannelList(c *Client, r *wire.Reader) {
	_ = r // no payload to read; kept for signature symmetry
	s.mu.Lock()
	w := wire.NewWriter(wire.Header{Type: wire.TypeRequest})
	w.Uint8(wire.ReqChannelList).Uint8(1)
	for _, ch := range s.channelsInOrder {
		if ch.hidden {
			continue
		}
		w.Uint16(uint16(len(ch.clients))).String8(ch.name)
	}
	body := w.Body()
	s.mu.Unlock()
	s.sendStream(c, body)
}

// --- Binary message frames ---

func (s *Server) dispatchServerMessage(c *Client, h wire.Header, r *wire.Reader, blasted bool) {
	subchannel := r.Uint8()
	body := r.RemainingBytes()
	if r.Failed {
		s.disconnectProtocolViolation(c, "malformed BinaryServerMessage")
		return
	}
	if s.hooks.OnServerMessage != nil {
		s.hooks.OnServerMessage(c, blasted, subchannel, body, h.Variant)
	}
}

func (s *Server) dispatchChannelMessage(c *Client, h wire.Header, r *wire.Reader, blasted bool) {
	subchannel := r.Uint8()
	chID := r.Uint16()
	body := r.RemainingBytes()
	if r.Failed {
		s.disconnectProtocolViolation(c, "malformed BinaryChannelMessage")
		return
	}

	s.mu.Lock()
	ch := s.findClientChannelLocked(c, chID)
	s.mu.Unlock()
	if ch == nil {
		s.disconnectProtocolViolation(c, "BinaryChannelMessage for a channel not joined")
		return
	}

	if s.hooks.OnChannelMessage != nil && !s.hooks.OnChannelMessage(c, ch, blasted, subchannel, body, h.Variant) {
		return
	}

	s.mu.Lock()
	recipients := make([]*Client, 0, len(ch.clients))
	for _, m := range ch.clients {
		if m != c {
			recipients = append(recipients, m)
		}
	}
	s.mu.Unlock()

	w := wire.NewWriter(wire.Header{Type: wire.TypeBinaryChannelMessage, Variant: h.Variant})
	w.Uint8(subchannel).Uint16(chID).Uint16(c.id).Bytes(body)
	out := w.Body()
	for _, m := range recipients {
		s.deliver(m, blasted, out)
	}
}

func (s *Server) dispatchPeerMessage(c *Client, h wire.Header, r *wire.Reader, blasted bool) {
	subchannel := r.Uint8()
	chID := r.Uint16()
	peerID := r.Uint16()
	body := r.RemainingBytes()
	if r.Failed {
		s.disconnectProtocolViolation(c, "malformed BinaryPeerMessage")
		return
	}

	s.mu.Lock()
	ch := s.findClientChannelLocked(c, chID)
	var peer *Client
	if ch != nil {
		for _, m := range ch.clients {
			if m.id == peerID {
				peer = m
				break
			}
		}
	}
	s.mu.Unlock()

	if ch == nil || peer == nil || peer == c {
		s.disconnectProtocolViolation(c, "BinaryPeerMessage to an invalid peer")
		return
	}

	if s.hooks.OnPeerMessage != nil && !s.hooks.OnPeerMessage(c, ch, peer, blasted, subchannel, body, h.Variant) {
		return
	}

	w := wire.NewWriter(wire.Header{Type: wire.TypeBinaryPeerMessage, Variant: h.Variant})
	w.Uint8(subchannel).Uint16(chID).Uint16(c.id).Bytes(body)
	s.deliver(peer, blasted, w.Body())
}

// deliver sends a pre-built frame body to m over the carrier blasted
// selects: the datagram carrier when blasted, the stream carrier otherwise.
// A blasted frame for a recipient that has not learned a UDP address yet is
// dropped; it is not sent over the stream carrier instead.
func (s *Server) deliver(m *Client, blasted bool, body []byte) {
	if blasted {
		s.mu.Lock()
		learned := m.udpLearned
		s.mu.Unlock()
		if !learned {
			return
		}
		s.sendDatagram(m, body)
		return
	}
	s.sendStream(m, body)
}

func (s *Server) sendServerMessage(c *Client, blasted bool, subchannel uint8, body []byte, variant uint8) error {
	w := wire.NewWriter(wire.Header{Type: wire.TypeBinaryServerMessage, Variant: variant})
	w.Uint8(subchannel).Bytes(body)
	out := w.Body()
	if blasted {
		if err := c.conn.SendDatagram(out); err != nil {
			return err
		}
		c.AddBytesSent(uint64(len(out)))
		return nil
	}
	if err := c.conn.SendStream(out); err != nil {
		return err
	}
	c.AddBytesSent(uint64(len(out)))
	return nil
}

// --- UDPHello / Ping ---

func (s *Server) handleUDPHello(c *Client, senderPort uint16) {
	s.mu.Lock()
	c.udpPort = senderPort
	c.udpLearned = true
	needsWelcome := !c.sentUDPWelcome
	if needsWelcome {
		c.sentUDPWelcome = true
	}
	s.mu.Unlock()

	if needsWelcome {
		w := wire.NewWriter(wire.Header{Type: wire.TypeUDPWelcome})
		s.sendStream(c, w.Body())
	}
}

func (s *Server) dispatchPing(c *Client) {
	s.mu.Lock()
	c.ponged = true
	s.mu.Unlock()
}
