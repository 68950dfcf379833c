package protocol

import (
	"encoding/binary"
)

// Encoder appends fixed-width fields to an internal buffer in one byte order.
type Encoder struct {
	buf   []byte
	order binary.ByteOrder
}

func NewEncoder(order ByteOrder) *Encoder {
	return NewEncoderWithCap(order, 32)
}

func NewEncoderWithCap(order ByteOrder, cap int) *Encoder {
	return &Encoder{
		buf:   make([]byte, 0, cap),
		order: order.binary(),
	}
}

// Bytes returns the encoded bytes. The returned slice is only valid until the
// next Put call.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

func (e *Encoder) PutUint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) PutBool(v bool) {
	if v {
		e.PutUint8(1)
	} else {
		e.PutUint8(0)
	}
}

func (e *Encoder) PutUint16(v uint16) {
	var b [2]byte
	e.order.PutUint16(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutInt16(v int16) {
	e.PutUint16(uint16(v))
}

func (e *Encoder) PutUint32(v uint32) {
	var b [4]byte
	e.order.PutUint32(b[:], v)
	e.buf = append(e.buf, b[:]...)
}

func (e *Encoder) PutBytes(b []byte) {
	e.buf = append(e.buf, b...)
}

// PutZero appends n zero bytes.
func (e *Encoder) PutZero(n int) {
	for i := 0; i < n; i++ {
		e.buf = append(e.buf, 0)
	}
}

// PutPaddedBytes appends b followed by zero padding to a 4 byte boundary.
func (e *Encoder) PutPaddedBytes(b []byte) {
	e.PutBytes(b)
	e.PutZero(PadLen(len(b)))
}

// Align zero pads the buffer to a 4 byte boundary.
func (e *Encoder) Align() {
	e.PutZero(PadLen(len(e.buf)))
}

// setUint16 overwrites two bytes at offset.
func (e *Encoder) setUint16(offset int, v uint16) {
	e.order.PutUint16(e.buf[offset:offset+2], v)
}
