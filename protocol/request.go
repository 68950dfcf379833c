package protocol

import (
	"bytes"
	"fmt"
	"io"
	"math/bits"
)

// requestHeaderSize is opcode, data byte and length.
const requestHeaderSize = 4

// maxRequestWords is the largest length the 16 bit length field can carry.
const maxRequestWords = 0xffff

// Request is implemented by everything that can be sent to the server. Adding a
// new request means implementing this interface, the framing is shared.
type Request interface {
	// Opcode is the major opcode, the first byte on the wire.
	Opcode() uint8

	// Data is the second byte of the header. Its meaning depends on the
	// request: a depth, a mode, or unused.
	Data() uint8

	// EncodeBody writes everything after the 4 byte header. Padding to a
	// 4 byte boundary is added by EncodeRequest.
	EncodeBody(e *Encoder)
}

// validator is implemented by requests whose fields can contradict each other.
type validator interface {
	Validate() error
}

// EncodeRequest frames req. The length field is computed from the assembled
// bytes after the body has been written and padded. Requests that fail their
// own Validate are refused before anything is encoded.
func EncodeRequest(order ByteOrder, req Request) ([]byte, error) {
	if v, ok := req.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("opcode %d: %w", req.Opcode(), err)
		}
	}

	e := NewEncoderWithCap(order, 32)

	e.PutUint8(req.Opcode())
	e.PutUint8(req.Data())
	e.PutUint16(0)
	req.EncodeBody(e)
	e.Align()

	words := e.Len() / 4
	if words > maxRequestWords {
		return nil, fmt.Errorf("%w: opcode %d is %d words long", ErrRequestTooLarge, req.Opcode(), words)
	}
	e.setUint16(2, uint16(words))

	return e.Bytes(), nil
}

// ValueList maps single-bit value-mask entries (CWEventMask, GCForeground and
// so on) to their values. On the wire the mask is followed by one 4 byte value
// per set bit, lowest bit first.
type ValueList map[uint32]uint32

// Mask returns the OR of every single-bit key. Keys with more or less than one
// bit set are ignored here, Validate reports them.
func (v ValueList) Mask() uint32 {
	var mask uint32

	for bit := range v {
		if bits.OnesCount32(bit) == 1 {
			mask |= bit
		}
	}

	return mask
}

func (v ValueList) Validate() error {
	for bit := range v {
		if bits.OnesCount32(bit) != 1 {
			return fmt.Errorf("%w: value mask key %#x is not a single bit", ErrMalformedRequest, bit)
		}
	}

	return nil
}

func (v ValueList) encode(e *Encoder) {
	mask := v.Mask()
	e.PutUint32(mask)

	for i := 0; i < 32; i++ {
		bit := uint32(1) << uint(i)
		if mask&bit != 0 {
			e.PutUint32(v[bit])
		}
	}
}

func readValueList(rd *Reader) ValueList {
	mask := rd.Uint32()
	if mask == 0 {
		return nil
	}

	values := make(ValueList, bits.OnesCount32(mask))

	for i := 0; i < 32 && rd.Err() == nil; i++ {
		bit := uint32(1) << uint(i)
		if mask&bit != 0 {
			values[bit] = rd.Uint32()
		}
	}

	return values
}

// CreateWindow creates an unmapped window.
type CreateWindow struct {
	Depth       uint8
	Window      ID
	Parent      ID
	X, Y        int16
	Width       uint16
	Height      uint16
	BorderWidth uint16
	Class       uint16
	Visual      ID
	Values      ValueList
}

func (r *CreateWindow) Opcode() uint8 { return OpCreateWindow }
func (r *CreateWindow) Data() uint8   { return r.Depth }

func (r *CreateWindow) Validate() error { return r.Values.Validate() }

func (r *CreateWindow) EncodeBody(e *Encoder) {
	e.PutUint32(uint32(r.Window))
	e.PutUint32(uint32(r.Parent))
	e.PutInt16(r.X)
	e.PutInt16(r.Y)
	e.PutUint16(r.Width)
	e.PutUint16(r.Height)
	e.PutUint16(r.BorderWidth)
	e.PutUint16(r.Class)
	e.PutUint32(uint32(r.Visual))
	r.Values.encode(e)
}

type MapWindow struct {
	Window ID
}

func (r *MapWindow) Opcode() uint8 { return OpMapWindow }
func (r *MapWindow) Data() uint8   { return 0 }

func (r *MapWindow) EncodeBody(e *Encoder) {
	e.PutUint32(uint32(r.Window))
}

type DestroyWindow struct {
	Window ID
}

func (r *DestroyWindow) Opcode() uint8 { return OpDestroyWindow }
func (r *DestroyWindow) Data() uint8   { return 0 }

func (r *DestroyWindow) EncodeBody(e *Encoder) {
	e.PutUint32(uint32(r.Window))
}

// CreateGC creates a graphics context usable with drawables of the same root
// and depth as Drawable.
type CreateGC struct {
	GC       ID
	Drawable ID
	Values   ValueList
}

// NewCreateGC returns a CreateGC that only sets the foreground pixel.
func NewCreateGC(gc, drawable ID, foreground uint32) *CreateGC {
	return &CreateGC{
		GC:       gc,
		Drawable: drawable,
		Values:   ValueList{GCForeground: foreground},
	}
}

func (r *CreateGC) Validate() error { return r.Values.Validate() }

func (r *CreateGC) Opcode() uint8 { return OpCreateGC }
func (r *CreateGC) Data() uint8   { return 0 }

func (r *CreateGC) EncodeBody(e *Encoder) {
	e.PutUint32(uint32(r.GC))
	e.PutUint32(uint32(r.Drawable))
	r.Values.encode(e)
}

type FreeGC struct {
	GC ID
}

func (r *FreeGC) Opcode() uint8 { return OpFreeGC }
func (r *FreeGC) Data() uint8   { return 0 }

func (r *FreeGC) EncodeBody(e *Encoder) {
	e.PutUint32(uint32(r.GC))
}

type Rectangle struct {
	X, Y   int16
	Width  uint16
	Height uint16
}

// PolyFillRectangle fills every rectangle with the GC's foreground.
type PolyFillRectangle struct {
	Drawable   ID
	GC         ID
	Rectangles []Rectangle
}

func (r *PolyFillRectangle) Opcode() uint8 { return OpPolyFillRectangle }
func (r *PolyFillRectangle) Data() uint8   { return 0 }

func (r *PolyFillRectangle) EncodeBody(e *Encoder) {
	e.PutUint32(uint32(r.Drawable))
	e.PutUint32(uint32(r.GC))

	for _, rect := range r.Rectangles {
		e.PutInt16(rect.X)
		e.PutInt16(rect.Y)
		e.PutUint16(rect.Width)
		e.PutUint16(rect.Height)
	}
}

// ChangeProperty sets, prepends to or appends to a window property. Value is
// raw bytes, Format (8, 16 or 32) says how many bits make up one unit.
type ChangeProperty struct {
	Mode     uint8
	Window   ID
	Property Atom
	Type     Atom
	Format   uint8
	Value    []byte
}

// NewSetWMName returns the ChangeProperty that replaces a window's WM_NAME
// with name as an 8-bit STRING.
func NewSetWMName(window ID, name string) *ChangeProperty {
	return &ChangeProperty{
		Mode:     PropModeReplace,
		Window:   window,
		Property: AtomWMName,
		Type:     AtomString,
		Format:   8,
		Value:    []byte(name),
	}
}

func (r *ChangeProperty) Opcode() uint8 { return OpChangeProperty }
func (r *ChangeProperty) Data() uint8   { return r.Mode }

// Units returns the length of Value counted in Format-sized units.
func (r *ChangeProperty) Units() uint32 {
	switch r.Format {
	case 16:
		return uint32(len(r.Value) / 2)
	case 32:
		return uint32(len(r.Value) / 4)
	default:
		return uint32(len(r.Value))
	}
}

// Validate checks that Format is 8, 16 or 32 and that Value is a whole number
// of units.
func (r *ChangeProperty) Validate() error {
	switch r.Format {
	case 8, 16, 32:
	default:
		return fmt.Errorf("%w: property format %d", ErrMalformedRequest, r.Format)
	}

	if size := int(r.Format / 8); len(r.Value)%size != 0 {
		return fmt.Errorf("%w: %d bytes of property data is not a whole number of %d-bit units",
			ErrMalformedRequest, len(r.Value), r.Format)
	}

	return nil
}

func (r *ChangeProperty) EncodeBody(e *Encoder) {
	e.PutUint32(uint32(r.Window))
	e.PutUint32(uint32(r.Property))
	e.PutUint32(uint32(r.Type))
	e.PutUint8(r.Format)
	e.PutZero(3)
	e.PutUint32(r.Units())
	e.PutBytes(r.Value)
}

// RawRequest is a request as it came off the wire, or one built by hand for an
// opcode this package does not know.
type RawRequest struct {
	Op     uint8
	Detail uint8
	Body   []byte
}

func (r *RawRequest) Opcode() uint8 { return r.Op }
func (r *RawRequest) Data() uint8   { return r.Detail }

func (r *RawRequest) EncodeBody(e *Encoder) {
	e.PutBytes(r.Body)
}

// ReadRequest reads one framed request from r, as a display server would. The
// body is exactly length*4-4 bytes, padding included.
func ReadRequest(r io.Reader, order ByteOrder) (*RawRequest, error) {
	rd := NewReader(r, order)

	req := &RawRequest{
		Op:     rd.Uint8(),
		Detail: rd.Uint8(),
	}
	length := int(rd.Uint16())

	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("reading request header: %w", err)
	}

	if length == 0 {
		return nil, fmt.Errorf("%w: opcode %d has length 0", ErrInvalidRequestLength, req.Op)
	}

	req.Body = rd.Bytes(length*4 - requestHeaderSize)
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("reading opcode %d body: %w", req.Op, err)
	}

	return req, nil
}

// DecodeRequest turns a raw request into one of the concrete request types.
// Opcodes this package does not know are returned unchanged.
func DecodeRequest(raw *RawRequest, order ByteOrder) (Request, error) {
	rd := NewReader(bytes.NewReader(raw.Body), order)

	var req Request

	switch raw.Op {
	case OpCreateWindow:
		r := &CreateWindow{Depth: raw.Detail}
		r.Window = ID(rd.Uint32())
		r.Parent = ID(rd.Uint32())
		r.X = rd.Int16()
		r.Y = rd.Int16()
		r.Width = rd.Uint16()
		r.Height = rd.Uint16()
		r.BorderWidth = rd.Uint16()
		r.Class = rd.Uint16()
		r.Visual = ID(rd.Uint32())
		r.Values = readValueList(rd)
		req = r

	case OpMapWindow:
		req = &MapWindow{Window: ID(rd.Uint32())}

	case OpDestroyWindow:
		req = &DestroyWindow{Window: ID(rd.Uint32())}

	case OpCreateGC:
		r := &CreateGC{}
		r.GC = ID(rd.Uint32())
		r.Drawable = ID(rd.Uint32())
		r.Values = readValueList(rd)
		req = r

	case OpFreeGC:
		req = &FreeGC{GC: ID(rd.Uint32())}

	case OpPolyFillRectangle:
		r := &PolyFillRectangle{}
		r.Drawable = ID(rd.Uint32())
		r.GC = ID(rd.Uint32())

		for n := (len(raw.Body) - 8) / 8; n > 0 && rd.Err() == nil; n-- {
			r.Rectangles = append(r.Rectangles, Rectangle{
				X:      rd.Int16(),
				Y:      rd.Int16(),
				Width:  rd.Uint16(),
				Height: rd.Uint16(),
			})
		}
		req = r

	case OpChangeProperty:
		r := &ChangeProperty{Mode: raw.Detail}
		r.Window = ID(rd.Uint32())
		r.Property = Atom(rd.Uint32())
		r.Type = Atom(rd.Uint32())
		r.Format = rd.Uint8()
		rd.Skip(3)
		units := int(rd.Uint32())

		if rd.Err() == nil {
			switch r.Format {
			case 8, 16, 32:
			default:
				return nil, fmt.Errorf("%w: property format %d", ErrMalformedRequest, r.Format)
			}

			size := units * int(r.Format/8)
			if size > len(raw.Body)-20 {
				return nil, fmt.Errorf("%w: property data of %d bytes overruns the request",
					ErrMalformedRequest, size)
			}
			r.Value = rd.Bytes(size)
		}
		req = r

	default:
		return raw, nil
	}

	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("%w: opcode %d: %s", ErrMalformedRequest, raw.Op, err)
	}

	return req, nil
}

var _ Request = (*CreateWindow)(nil)
var _ Request = (*MapWindow)(nil)
var _ Request = (*DestroyWindow)(nil)
var _ Request = (*CreateGC)(nil)
var _ Request = (*FreeGC)(nil)
var _ Request = (*PolyFillRectangle)(nil)
var _ Request = (*ChangeProperty)(nil)
var _ Request = (*RawRequest)(nil)

var _ validator = (*CreateWindow)(nil)
var _ validator = (*CreateGC)(nil)
var _ validator = (*ChangeProperty)(nil)
