package core

import "github.com/yodamaster/lacewing/internal/wire"

// removeClientFromChannel drops c from the channel's member list, then
// closes the channel if it is now empty or if c was an auto_close master,
// otherwise clears a departing mastership and notifies the remaining
// members.
func (s *Server) removeClientFromChannel(ch *Channel, c *Client) {
	s.mu.Lock()
	ch.clients = removeClient(ch.clients, c)
	empty := len(ch.clients) == 0
	wasMaster := ch.master == c
	autoClose := ch.autoClose
	s.mu.Unlock()

	if empty {
		s.closeChannel(ch)
		return
	}
	if wasMaster && autoClose {
		s.closeChannel(ch)
		return
	}

	s.mu.Lock()
	if wasMaster {
		ch.master = nil
	}
	recipients := make([]*Client, len(ch.clients))
	copy(recipients, ch.clients)
	chID := ch.id
	s.mu.Unlock()

	w := wire.NewWriter(wire.Header{Type: wire.TypePeer})
	w.Uint16(chID).Uint16(c.id)
	body := w.Body()
	for _, m := range recipients {
		s.sendStream(m, body)
	}
}

// closeChannel tears a channel down: every member receives a LeaveChannel
// success for this channel and has it dropped from their own membership
// list, then the channel is removed from the registry and its ID released.
// Idempotent.
func (s *Server) closeChannel(ch *Channel) {
	s.mu.Lock()
	if ch.closed {
		s.mu.Unlock()
		return
	}
	ch.closed = true
	members := make([]*Client, len(ch.clients))
	copy(members, ch.clients)
	chID := ch.id
	s.mu.Unlock()

	frame := leaveChannelSuccessFrame(chID)
	for _, m := range members {
		s.sendStream(m, frame)
		s.mu.Lock()
		m.channels = removeChannel(m.channels, ch)
		s.mu.Unlock()
	}

	s.mu.Lock()
	delete(s.channelsByID, chID)
	delete(s.channelsByName, foldName(ch.name))
	s.channelsInOrder = removeChannel(s.channelsInOrder, ch)
	active := len(s.channelsByID)
	metrics := s.metrics
	s.mu.Unlock()
	s.channelIDs.Return(chID)
	if metrics != nil {
		metrics.SetChannelsActive(active)
	}
}

// broadcastPeerJoinOrRename sends a Peer join/rename notification to every
// member of ch other than c, describing c's current id/mastership/name.
func (s *Server) broadcastPeerJoinOrRename(ch *Channel, c *Client) {
	s.mu.Lock()
	isMaster := uint8(0)
	if ch.master == c {
		isMaster = 1
	}
	name := c.name
	chID := ch.id
	recipients := make([]*Client, 0, len(ch.clients))
	for _, m := range ch.clients {
		if m != c {
			recipients = append(recipients, m)
		}
	}
	s.mu.Unlock()

	w := wire.NewWriter(wire.Header{Type: wire.TypePeer})
	w.Uint16(chID).Uint16(c.id).Uint8(isMaster).String(name)
	body := w.Body()
	for _, m := range recipients {
		s.sendStream(m, body)
	}
}
