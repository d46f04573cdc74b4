package core

// Hooks is the embedding application's set of synchronous predicates and
// notifications. Every field is optional; a nil hook behaves as if it
// accepted (for predicates) or did nothing (for notifications). Predicate
// hooks run with the server's mutex released, so they may safely call back
// into the façade (e.g. Client.Disconnect).
type Hooks struct {
	// OnConnect is consulted after a client sends a valid Connect request.
	// Returning false refuses the connection ("Connection refused by server").
	OnConnect func(c *Client) bool

	// OnSetName is consulted after a proposed name clears the per-channel
	// collision check. Returning false rejects the SetName request.
	OnSetName func(c *Client, name string) bool

	// OnJoinChannel is consulted for both an existing channel and a nascent
	// one created to satisfy a JoinChannel request. Returning false rejects
	// the join; a nascent channel is discarded without ever being published.
	OnJoinChannel func(c *Client, ch *Channel) bool

	// OnLeaveChannel is consulted before a member is removed from a channel
	// it currently belongs to. Returning false rejects the leave.
	OnLeaveChannel func(c *Client, ch *Channel) bool

	// OnServerMessage notifies of a BinaryServerMessage addressed to the
	// server itself. There is no fan-out to suppress.
	OnServerMessage func(c *Client, blasted bool, subchannel uint8, body []byte, variant uint8)

	// OnChannelMessage notifies of (and predicates the fan-out of) a
	// BinaryChannelMessage. Returning false suppresses delivery to peers.
	OnChannelMessage func(c *Client, ch *Channel, blasted bool, subchannel uint8, body []byte, variant uint8) bool

	// OnPeerMessage notifies of (and predicates the delivery of) a
	// BinaryPeerMessage. Returning false suppresses delivery to the peer.
	OnPeerMessage func(c *Client, ch *Channel, peer *Client, blasted bool, subchannel uint8, body []byte, variant uint8) bool

	// OnDisconnect fires once per client that completed Connect, after
	// channel cleanup but before the client ID is released.
	OnDisconnect func(c *Client)

	// OnError reports a non-fatal condition: transport errors, and
	// never-fatal codec/business conditions like a UDP datagram from an
	// unrecognized IP. c is nil for server-wide errors.
	OnError func(c *Client, context string, err error)
}
