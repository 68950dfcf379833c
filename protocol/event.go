package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EventSize is the size of every record the server sends after setup, other
// than replies.
const EventSize = 32

// Event is one decoded server record: *ExposeEvent, *KeyPressEvent,
// *ErrorEvent or *UnknownEvent. Use a type switch to get at the fields.
type Event interface {
	// EventCode is the dispatch code, byte 0 with the synthetic bit cleared.
	EventCode() uint8

	encode(o binary.ByteOrder, b []byte)
}

// ExposeEvent asks the client to repaint part of a window. Count is the number
// of Expose events still to come for the same window, repainting can wait until
// it reaches 0.
type ExposeEvent struct {
	Synthetic bool
	Sequence  uint16
	Window    ID
	X, Y      uint16
	Width     uint16
	Height    uint16
	Count     uint16
}

func (e *ExposeEvent) EventCode() uint8 { return CodeExpose }

func (e *ExposeEvent) String() string {
	return fmt.Sprintf("Expose{window: %#x, x: %d, y: %d, width: %d, height: %d, count: %d}",
		e.Window, e.X, e.Y, e.Width, e.Height, e.Count)
}

func (e *ExposeEvent) encode(o binary.ByteOrder, b []byte) {
	o.PutUint16(b[2:], e.Sequence)
	o.PutUint32(b[4:], uint32(e.Window))
	o.PutUint16(b[8:], e.X)
	o.PutUint16(b[10:], e.Y)
	o.PutUint16(b[12:], e.Width)
	o.PutUint16(b[14:], e.Height)
	o.PutUint16(b[16:], e.Count)
}

func decodeExpose(o binary.ByteOrder, b []byte) *ExposeEvent {
	return &ExposeEvent{
		Sequence: o.Uint16(b[2:]),
		Window:   ID(o.Uint32(b[4:])),
		X:        o.Uint16(b[8:]),
		Y:        o.Uint16(b[10:]),
		Width:    o.Uint16(b[12:]),
		Height:   o.Uint16(b[14:]),
		Count:    o.Uint16(b[16:]),
	}
}

// KeyPressEvent reports a key going down. Detail is the keycode.
type KeyPressEvent struct {
	Synthetic  bool
	Detail     uint8
	Sequence   uint16
	Time       uint32
	Root       ID
	Event      ID
	Child      ID
	RootX      int16
	RootY      int16
	EventX     int16
	EventY     int16
	State      uint16
	SameScreen bool
}

func (e *KeyPressEvent) EventCode() uint8 { return CodeKeyPress }

func (e *KeyPressEvent) String() string {
	return fmt.Sprintf("KeyPress{keycode: %d, time: %d, window: %#x, root: (%d, %d), event: (%d, %d), state: %#x}",
		e.Detail, e.Time, e.Event, e.RootX, e.RootY, e.EventX, e.EventY, e.State)
}

func (e *KeyPressEvent) encode(o binary.ByteOrder, b []byte) {
	b[1] = e.Detail
	o.PutUint16(b[2:], e.Sequence)
	o.PutUint32(b[4:], e.Time)
	o.PutUint32(b[8:], uint32(e.Root))
	o.PutUint32(b[12:], uint32(e.Event))
	o.PutUint32(b[16:], uint32(e.Child))
	o.PutUint16(b[20:], uint16(e.RootX))
	o.PutUint16(b[22:], uint16(e.RootY))
	o.PutUint16(b[24:], uint16(e.EventX))
	o.PutUint16(b[26:], uint16(e.EventY))
	o.PutUint16(b[28:], e.State)
	if e.SameScreen {
		b[30] = 1
	}
}

func decodeKeyPress(o binary.ByteOrder, b []byte) *KeyPressEvent {
	return &KeyPressEvent{
		Detail:     b[1],
		Sequence:   o.Uint16(b[2:]),
		Time:       o.Uint32(b[4:]),
		Root:       ID(o.Uint32(b[8:])),
		Event:      ID(o.Uint32(b[12:])),
		Child:      ID(o.Uint32(b[16:])),
		RootX:      int16(o.Uint16(b[20:])),
		RootY:      int16(o.Uint16(b[22:])),
		EventX:     int16(o.Uint16(b[24:])),
		EventY:     int16(o.Uint16(b[26:])),
		State:      o.Uint16(b[28:]),
		SameScreen: b[30] != 0,
	}
}

// ErrorEvent is the record the server sends when a request fails. It is also
// an error.
type ErrorEvent struct {
	Code        uint8
	Sequence    uint16
	BadValue    uint32
	MinorOpcode uint16
	MajorOpcode uint8

	// Bytes 11 to 31 as received. The core errors leave them unused,
	// extensions may not.
	Unused [errorUnusedSize]byte
}

const errorUnusedSize = EventSize - 11

func (e *ErrorEvent) EventCode() uint8 { return CodeError }

func (e *ErrorEvent) Error() string {
	return fmt.Sprintf("x11 error %s (sequence %d, opcode %d.%d, value %#x)",
		ErrorName(e.Code), e.Sequence, e.MajorOpcode, e.MinorOpcode, e.BadValue)
}

func (e *ErrorEvent) encode(o binary.ByteOrder, b []byte) {
	b[1] = e.Code
	o.PutUint16(b[2:], e.Sequence)
	o.PutUint32(b[4:], e.BadValue)
	o.PutUint16(b[8:], e.MinorOpcode)
	b[10] = e.MajorOpcode
	copy(b[11:], e.Unused[:])
}

func decodeError(o binary.ByteOrder, b []byte) *ErrorEvent {
	e := &ErrorEvent{
		Code:        b[1],
		Sequence:    o.Uint16(b[2:]),
		BadValue:    o.Uint32(b[4:]),
		MinorOpcode: o.Uint16(b[8:]),
		MajorOpcode: b[10],
	}
	copy(e.Unused[:], b[11:])

	return e
}

// ErrorName returns the name of a core error code.
func ErrorName(code uint8) string {
	switch code {
	case BadRequest:
		return "BadRequest"
	case BadValue:
		return "BadValue"
	case BadWindow:
		return "BadWindow"
	case BadMatch:
		return "BadMatch"
	case BadDrawable:
		return "BadDrawable"
	case BadAlloc:
		return "BadAlloc"
	case BadGC:
		return "BadGC"
	case BadIDChoice:
		return "BadIDChoice"
	case BadLength:
		return "BadLength"
	default:
		return fmt.Sprintf("%d", code)
	}
}

// UnknownEvent is any record whose code is not decoded by this package. Code
// is byte 0 as received, synthetic bit included, and Raw holds the other 31
// bytes untouched.
type UnknownEvent struct {
	Code uint8
	Raw  [EventSize - 1]byte
}

func (e *UnknownEvent) EventCode() uint8 { return e.Code &^ SyntheticBit }

func (e *UnknownEvent) String() string {
	return fmt.Sprintf("Unknown{code: %d, raw: %x}", e.Code, e.Raw[:])
}

func (e *UnknownEvent) encode(o binary.ByteOrder, b []byte) {
	copy(b[1:], e.Raw[:])
}

// DecodeEvent decodes one complete record. It keeps no state between calls.
func DecodeEvent(order ByteOrder, buf [EventSize]byte) Event {
	o := order.binary()
	b := buf[:]
	synthetic := b[0]&SyntheticBit != 0

	switch b[0] &^ SyntheticBit {
	case CodeExpose:
		ev := decodeExpose(o, b)
		ev.Synthetic = synthetic
		return ev

	case CodeKeyPress:
		ev := decodeKeyPress(o, b)
		ev.Synthetic = synthetic
		return ev

	case CodeError:
		// The synthetic bit has no meaning for errors, they are never sent
		// through SendEvent.
		if !synthetic {
			return decodeError(o, b)
		}
	}

	ev := &UnknownEvent{Code: b[0]}
	copy(ev.Raw[:], b[1:])

	return ev
}

// EncodeEvent builds the 32 byte record for ev, as a display server would.
func EncodeEvent(order ByteOrder, ev Event) [EventSize]byte {
	var buf [EventSize]byte

	switch e := ev.(type) {
	case *UnknownEvent:
		buf[0] = e.Code
	case *ExposeEvent:
		buf[0] = withSynthetic(ev.EventCode(), e.Synthetic)
	case *KeyPressEvent:
		buf[0] = withSynthetic(ev.EventCode(), e.Synthetic)
	default:
		buf[0] = ev.EventCode()
	}

	ev.encode(order.binary(), buf[:])

	return buf
}

func withSynthetic(code uint8, synthetic bool) uint8 {
	if synthetic {
		return code | SyntheticBit
	}

	return code
}

// ReadEvent reads one 32 byte record from r and decodes it. A stream that ends
// before the record is complete is ErrIncompleteMessage.
func ReadEvent(r io.Reader, order ByteOrder) (Event, error) {
	var buf [EventSize]byte

	rd := NewReader(r, order)
	copy(buf[:], rd.Bytes(EventSize))

	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("reading event: %w", err)
	}

	return DecodeEvent(order, buf), nil
}

var _ Event = (*ExposeEvent)(nil)
var _ Event = (*KeyPressEvent)(nil)
var _ Event = (*ErrorEvent)(nil)
var _ Event = (*UnknownEvent)(nil)
var _ error = (*ErrorEvent)(nil)

// ExtraLength returns how many bytes follow a reply record beyond its 32 byte
// head. It is 0 for anything that is not a reply.
func (e *UnknownEvent) ExtraLength(order ByteOrder) int {
	if e.Code != CodeReply {
		return 0
	}

	return int(order.binary().Uint32(e.Raw[3:])) * 4
}
