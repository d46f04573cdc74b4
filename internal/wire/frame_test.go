package wire

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	cases := []Header{
		{Type: TypeRequest, Variant: 0},
		{Type: TypePing, Variant: 15},
		{Type: TypeBinaryChannelMessage, Variant: 7},
	}
	for _, h := range cases {
		got := DecodeHeader(h.Byte())
		if got != h {
			t.Fatalf("round trip %+v: got %+v", h, got)
		}
	}
}

func TestStreamFrameRoundTrip(t *testing.T) {
	body := []byte{1, 2, 3, 4, 5}

	for _, blasted := range []bool{false, true} {
		encoded := EncodeStreamFrame(body, blasted)
		r := bytes.NewReader(encoded)

		gotBody, gotBlasted, err := ReadStreamFrame(r)
		if err != nil {
			t.Fatalf("ReadStreamFrame: %v", err)
		}
		if !bytes.Equal(gotBody, body) {
			t.Fatalf("body: got %v, want %v", gotBody, body)
		}
		if gotBlasted != blasted {
			t.Fatalf("blasted: got %v, want %v", gotBlasted, blasted)
		}
	}
}

func TestReadStreamFrameRejectsOversized(t *testing.T) {
	oversized := make([]byte, 8)
	// 4-byte LE length far beyond maxFrameSize.
	oversized[0], oversized[1], oversized[2], oversized[3] = 0xff, 0xff, 0xff, 0x0f
	r := bytes.NewReader(oversized)

	if _, _, err := ReadStreamFrame(r); err == nil {
		t.Fatal("expected error for oversized frame length")
	}
}

func TestDatagramEnvelopeRoundTrip(t *testing.T) {
	h := Header{Type: TypePeer, Variant: 0}
	payload := []byte("hello")

	w := NewWriter(h)
	w.Uint16(42)
	w.Bytes(payload)
	datagram := w.Body()

	gotHeader, senderID, body, ok := DecodeInboundDatagram(datagram)
	if !ok {
		t.Fatal("DecodeInboundDatagram failed")
	}
	if gotHeader != h {
		t.Fatalf("header: got %+v, want %+v", gotHeader, h)
	}
	if senderID != 42 {
		t.Fatalf("senderID: got %d, want 42", senderID)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("body: got %v, want %v", body, payload)
	}
}

func TestDecodeInboundDatagramTooShort(t *testing.T) {
	if _, _, _, ok := DecodeInboundDatagram([]byte{1, 2}); ok {
		t.Fatal("expected short datagram to be rejected")
	}
}

func TestEncodeOutboundDatagramHasNoSenderPrefix(t *testing.T) {
	h := Header{Type: TypeBinaryServerMessage, Variant: 3}
	out := EncodeOutboundDatagram(h, []byte{9, 9})

	if len(out) != 3 {
		t.Fatalf("expected header+2 payload bytes, got %d bytes", len(out))
	}
	if DecodeHeader(out[0]) != h {
		t.Fatalf("header mismatch")
	}
}
