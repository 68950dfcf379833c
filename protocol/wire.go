package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ByteOrder is the byte order negotiated by the first byte of the greeting.
type ByteOrder byte

const (
	MSBFirst ByteOrder = 'B'
	LSBFirst ByteOrder = 'l'
)

// ParseByteOrder maps "big" / "little" (or the wire bytes "B" / "l") to a
// ByteOrder.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(s) {
	case "big", "msb", "b":
		return MSBFirst, nil
	case "little", "lsb", "l":
		return LSBFirst, nil
	default:
		return 0, fmt.Errorf("%q: %w", s, ErrUnknownByteOrder)
	}
}

func (o ByteOrder) String() string {
	switch o {
	case MSBFirst:
		return "big-endian"
	case LSBFirst:
		return "little-endian"
	default:
		return fmt.Sprintf("ByteOrder(%#x)", byte(o))
	}
}

// Valid reports whether o is one of the two orders the protocol defines.
func (o ByteOrder) Valid() bool {
	return o == MSBFirst || o == LSBFirst
}

func (o ByteOrder) binary() binary.ByteOrder {
	if o == LSBFirst {
		return binary.LittleEndian
	}

	return binary.BigEndian
}

// PadLen returns the number of zero bytes needed to bring n up to a 4 byte
// boundary.
func PadLen(n int) int {
	return (4 - n%4) % 4
}

// Reader reads fixed-width fields from a stream in one byte order.
//
// The first failure sticks: every later call returns a zero value without
// touching the stream, and Err reports what went wrong. A field is either
// read whole or not at all.
type Reader struct {
	r     io.Reader
	order binary.ByteOrder
	buf   [4]byte
	n     int
	err   error
}

func NewReader(r io.Reader, order ByteOrder) *Reader {
	return &Reader{r: r, order: order.binary()}
}

// Err returns the first error the Reader hit, if any.
func (r *Reader) Err() error {
	return r.err
}

// Consumed returns how many bytes have been read so far.
func (r *Reader) Consumed() int {
	return r.n
}

func (r *Reader) fill(b []byte) bool {
	if r.err != nil {
		return false
	}

	n, err := io.ReadFull(r.r, b)
	r.n += n

	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			r.err = fmt.Errorf("%w: wanted %d bytes at offset %d, got %d",
				ErrIncompleteMessage, len(b), r.n-n, n)
		} else {
			r.err = &TransportError{Op: "read", Err: err}
		}

		return false
	}

	return true
}

func (r *Reader) Uint8() uint8 {
	if !r.fill(r.buf[:1]) {
		return 0
	}

	return r.buf[0]
}

func (r *Reader) Bool() bool {
	return r.Uint8() != 0
}

func (r *Reader) Uint16() uint16 {
	if !r.fill(r.buf[:2]) {
		return 0
	}

	return r.order.Uint16(r.buf[:2])
}

func (r *Reader) Int16() int16 {
	return int16(r.Uint16())
}

func (r *Reader) Uint32() uint32 {
	if !r.fill(r.buf[:4]) {
		return 0
	}

	return r.order.Uint32(r.buf[:4])
}

// Bytes reads exactly n bytes into a new slice.
func (r *Reader) Bytes(n int) []byte {
	if n == 0 || r.err != nil {
		return nil
	}

	b := make([]byte, n)
	if !r.fill(b) {
		return nil
	}

	return b
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) {
	for n > 0 && r.err == nil {
		chunk := n
		if chunk > len(r.buf) {
			chunk = len(r.buf)
		}

		r.fill(r.buf[:chunk])
		n -= chunk
	}
}

// PaddedBytes reads n bytes followed by their padding to a 4 byte boundary.
func (r *Reader) PaddedBytes(n int) []byte {
	b := r.Bytes(n)
	r.Skip(PadLen(n))

	return b
}
