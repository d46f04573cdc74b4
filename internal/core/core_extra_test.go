package core

import (
	"testing"

	"github.com/yodamaster/lacewing/internal/wire"
)

func binaryChannelMessageFrame(variant uint8, subchannel uint8, chID uint16, body []byte) []byte {
	return wire.NewWriter(wire.Header{Type: wire.TypeBinaryChannelMessage, Variant: variant}).
		Uint8(subchannel).Uint16(chID).Bytes(body).Body()
}

func binaryPeerMessageFrame(variant uint8, subchannel uint8, chID, peerID uint16, body []byte) []byte {
	return wire.NewWriter(wire.Header{Type: wire.TypeBinaryPeerMessage, Variant: variant}).
		Uint8(subchannel).Uint16(chID).Uint16(peerID).Bytes(body).Body()
}

// TestChannelMessageFanOutNoEcho checks law L2: a BinaryChannelMessage
// reaches every other member exactly once and is never echoed to the
// sender.
func TestChannelMessageFanOutNoEcho(t *testing.T) {
	s := NewServer(Hooks{})
	a, connA := handshake(t, s, "192.0.2.1")
	b, connB := handshake(t, s, "192.0.2.2")
	c, connC := handshake(t, s, "192.0.2.3")

	for _, p := range []struct {
		cl   *Client
		name string
	}{{a, "A"}, {b, "B"}, {c, "C"}} {
		s.HandleStreamFrame(p.cl, setNameFrame(p.name))
	}
	s.HandleStreamFrame(a, joinChannelFrame(0, "r"))
	s.HandleStreamFrame(b, joinChannelFrame(0, "r"))
	s.HandleStreamFrame(c, joinChannelFrame(0, "r"))
	chID := a.Channels()[0].ID()
	connA.stream, connB.stream, connC.stream = nil, nil, nil

	s.HandleStreamFrame(a, binaryChannelMessageFrame(5, 9, chID, []byte("hi")))

	if connA.streamCount() != 0 {
		t.Fatalf("sender must not receive its own channel message, got %d frames", connA.streamCount())
	}
	for name, conn := range map[string]*mockConn{"B": connB, "C": connC} {
		if conn.streamCount() != 1 {
			t.Fatalf("%s: expected exactly one delivered frame, got %d", name, conn.streamCount())
		}
		frame := conn.lastStream()
		h := wire.DecodeHeader(frame[0])
		if h.Type != wire.TypeBinaryChannelMessage || h.Variant != 5 {
			t.Fatalf("%s: unexpected header %+v", name, h)
		}
		r := wire.NewReader(frame[1:])
		if sub := r.Uint8(); sub != 9 {
			t.Fatalf("%s: subchannel: got %d", name, sub)
		}
		if gotID := r.Uint16(); gotID != chID {
			t.Fatalf("%s: channel id: got %d", name, gotID)
		}
		if senderID := r.Uint16(); senderID != a.ID() {
			t.Fatalf("%s: sender id: got %d, want %d", name, senderID, a.ID())
		}
		if body := r.RemainingString(false); body != "hi" {
			t.Fatalf("%s: body: got %q", name, body)
		}
	}
}

func TestChannelListHidesHiddenChannels(t *testing.T) {
	s := NewServer(Hooks{})
	a, connA := handshake(t, s, "192.0.2.1")

	s.HandleStreamFrame(a, setNameFrame("A"))
	s.HandleStreamFrame(a, joinChannelFrame(0x01, "secret")) // bit0 = hidden
	s.HandleStreamFrame(a, joinChannelFrame(0x00, "public"))
	connA.stream = nil

	s.HandleStreamFrame(a, wire.NewWriter(wire.Header{Type: wire.TypeRequest}).Uint8(wire.ReqChannelList).Body())

	resp := connA.lastStream()
	r := wire.NewReader(resp[1:])
	r.Uint8() // sub
	r.Uint8() // success
	count := r.Uint16()
	name := r.String8()
	if count != 1 || name != "public" {
		t.Fatalf("expected client_count=1 name=public, got count=%d name=%q", count, name)
	}
	if len(r.RemainingBytes()) != 0 {
		t.Fatal("expected exactly one channel in the list")
	}
}

func TestPeerMessageToSelfDisconnects(t *testing.T) {
	s := NewServer(Hooks{})
	a, connA := handshake(t, s, "192.0.2.1")
	s.HandleStreamFrame(a, setNameFrame("A"))
	s.HandleStreamFrame(a, joinChannelFrame(0, "r"))
	chID := a.Channels()[0].ID()

	s.HandleStreamFrame(a, binaryPeerMessageFrame(0, 0, chID, a.ID(), []byte("x")))

	if !connA.isDisconnected() {
		t.Fatal("expected a BinaryPeerMessage targeting the sender to disconnect it")
	}
}

func TestBlastSkippedWithoutLearnedAddress(t *testing.T) {
	s := NewServer(Hooks{})
	a, connA := handshake(t, s, "192.0.2.1")
	b, connB := handshake(t, s, "192.0.2.2")
	s.HandleStreamFrame(a, setNameFrame("A"))
	s.HandleStreamFrame(b, setNameFrame("B"))
	s.HandleStreamFrame(a, joinChannelFrame(0, "r"))
	s.HandleStreamFrame(b, joinChannelFrame(0, "r"))
	connA.stream, connB.stream = nil, nil

	if err := a.Blast(1, []byte("hi"), 0); err != nil {
		t.Fatalf("Blast: %v", err)
	}
	if len(connA.datagram) != 1 {
		t.Fatalf("Client.Blast should always attempt delivery, got %d datagrams", len(connA.datagram))
	}

	// A blasted fan-out to a peer who never sent UDPHello must be skipped,
	// not attempted against a never-learned address.
	chID := a.Channels()[0].ID()
	raw := wire.NewWriter(wire.Header{Type: wire.TypeBinaryChannelMessage, Variant: 0}).
		Uint16(a.ID()).Uint8(0).Uint16(chID).Bytes([]byte("z")).Body()
	s.HandleDatagram("192.0.2.1", 40000, raw)

	if len(connB.datagram) != 0 {
		t.Fatalf("peer without a learned UDP address must not receive a datagram, got %d", len(connB.datagram))
	}
}
