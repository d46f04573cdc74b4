package wire

import "encoding/binary"

// Writer builds one frame body by appending payload primitives in order.
// Calls chain: w.Uint8(1).Uint16(id).String8(name).
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer whose body starts with h's header byte. A zero
// Writer starts with an empty body.
func NewWriter(h Header) *Writer {
	return &Writer{buf: []byte{h.Byte()}}
}

// Uint8 appends one byte.
func (w *Writer) Uint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// Uint16 appends a little-endian 16-bit value.
func (w *Writer) Uint16(v uint16) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// Uint32 appends a little-endian 32-bit value.
func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
	return w
}

// String8 appends a 1-byte length prefix followed by s, truncated to 255
// bytes if longer (the length prefix cannot represent more).
func (w *Writer) String8(s string) *Writer {
	if len(s) > 255 {
		s = s[:255]
	}
	w.Uint8(uint8(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// String appends s with no length prefix — used only as the final field of
// a frame, where the reader consumes it via RemainingString.
func (w *Writer) String(s string) *Writer {
	w.buf = append(w.buf, s...)
	return w
}

// Bytes appends a raw byte slice with no length prefix.
func (w *Writer) Bytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Body returns the built frame body.
func (w *Writer) Body() []byte {
	return w.buf
}
