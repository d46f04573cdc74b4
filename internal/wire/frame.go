// Package wire implements the framed wire protocol shared by the relay's
// stream and datagram carriers: a 1-byte header (message type + variant)
// followed by a typed payload of little-endian fixed-width integers,
// length-prefixed strings, and a raw trailing byte slice.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageType is the high nibble of a frame header byte.
type MessageType uint8

const (
	TypeRequest              MessageType = 0
	TypeBinaryServerMessage  MessageType = 1
	TypeBinaryChannelMessage MessageType = 2
	TypeBinaryPeerMessage    MessageType = 3
	TypeObjectServerMessage  MessageType = 4
	TypeObjectChannelMessage MessageType = 5
	TypeObjectPeerMessage    MessageType = 6
	// TypePeer is server->client over the stream carrier (a join/rename/leave
	// notification) and client->server over the datagram carrier (UDPHello).
	TypePeer       MessageType = 7
	TypeUDPWelcome MessageType = 8 // server->client; also reserved as ChannelMaster
	TypePing       MessageType = 9
)

// Request sub-codes, carried as the first payload byte of a type-0 frame.
const (
	ReqConnect      uint8 = 0
	ReqSetName      uint8 = 1
	ReqJoinChannel  uint8 = 2
	ReqLeaveChannel uint8 = 3
	ReqChannelList  uint8 = 4
)

// ProtocolVersion is the literal clients must send on Connect.
const ProtocolVersion = "revision 2"

// DatagramIDPrefixSize is the length of the sender-id envelope prepended to
// every inbound datagram: the header byte plus a 16-bit client ID.
const DatagramIDPrefixSize = 3

// maxFrameSize bounds a single stream frame body, guarding against a
// corrupt or hostile length prefix forcing an enormous allocation.
const maxFrameSize = 1 << 20

// Header is the 1-byte frame header: high nibble message type, low nibble
// an application-defined variant opaque to the relay.
type Header struct {
	Type    MessageType
	Variant uint8
}

// Byte packs the header into its wire representation.
func (h Header) Byte() byte {
	return byte(h.Type)<<4 | (h.Variant & 0x0f)
}

// DecodeHeader splits a header byte into message type and variant.
func DecodeHeader(b byte) Header {
	return Header{Type: MessageType(b >> 4), Variant: b & 0x0f}
}

// EncodeStreamFrame length-prefixes body for the stream carrier. The high
// bit of the 4-byte little-endian length carries the blasted flag; the
// exact encoding of that bit is an implementation detail of this codec and
// only needs to round-trip via ReadStreamFrame.
func EncodeStreamFrame(body []byte, blasted bool) []byte {
	n := uint32(len(body))
	if blasted {
		n |= 1 << 31
	}
	out := make([]byte, 4+len(body))
	binary.LittleEndian.PutUint32(out, n)
	copy(out[4:], body)
	return out
}

// ReadStreamFrame reads one length-prefixed frame from r.
func ReadStreamFrame(r io.Reader) (body []byte, blasted bool, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, false, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	blasted = n&(1<<31) != 0
	n &^= 1 << 31
	if n > maxFrameSize {
		return nil, false, fmt.Errorf("wire: frame too large (%d bytes)", n)
	}
	body = make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, false, err
	}
	return body, blasted, nil
}

// EncodeOutboundDatagram builds a frame for the datagram carrier: header
// byte followed directly by the payload. The datagram boundary itself
// delimits the frame; no length prefix is used. The recipient's address
// already identifies the channel, so no sender-id envelope is added here
// (that envelope is an inbound-only convention, see DecodeInboundDatagram).
func EncodeOutboundDatagram(h Header, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = h.Byte()
	copy(out[1:], payload)
	return out
}

// DecodeInboundDatagram strips the 3-byte (header, sender-id) envelope that
// every client-originated datagram carries, returning the header, the
// claimed sender ID, and the remaining frame body.
func DecodeInboundDatagram(data []byte) (h Header, senderID uint16, body []byte, ok bool) {
	if len(data) < DatagramIDPrefixSize {
		return Header{}, 0, nil, false
	}
	h = DecodeHeader(data[0])
	senderID = binary.LittleEndian.Uint16(data[1:3])
	return h, senderID, data[3:], true
}
