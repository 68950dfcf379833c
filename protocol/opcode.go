package protocol

import "strconv"

// ID is used for all X resource identifiers, such as windows, pixmaps, GCs,
// colormaps and visuals.
type ID uint32

// None is the reserved zero id.
const None ID = 0

// Atom names a property or a property type.
type Atom uint32

// Predefined atoms.
const (
	AtomString Atom = 31
	AtomWMName Atom = 39
)

// Opcodes of the core requests this package can encode.
const (
	OpCreateWindow      uint8 = 1
	OpDestroyWindow     uint8 = 4
	OpMapWindow         uint8 = 8
	OpChangeProperty    uint8 = 18
	OpCreateGC          uint8 = 55
	OpFreeGC            uint8 = 60
	OpPolyFillRectangle uint8 = 70
)

// Window classes
const (
	WindowClassCopyFromParent uint16 = 0
	WindowClassInputOutput    uint16 = 1
	WindowClassInputOnly      uint16 = 2
)

// CopyFromParent as a depth or visual.
const CopyFromParent = 0

// Window attribute value-mask bits, in wire order.
const (
	CWBackPixmap       uint32 = 1 << 0
	CWBackPixel        uint32 = 1 << 1
	CWBorderPixmap     uint32 = 1 << 2
	CWBorderPixel      uint32 = 1 << 3
	CWBitGravity       uint32 = 1 << 4
	CWWinGravity       uint32 = 1 << 5
	CWBackingStore     uint32 = 1 << 6
	CWBackingPlanes    uint32 = 1 << 7
	CWBackingPixel     uint32 = 1 << 8
	CWOverrideRedirect uint32 = 1 << 9
	CWSaveUnder        uint32 = 1 << 10
	CWEventMask        uint32 = 1 << 11
	CWDontPropagate    uint32 = 1 << 12
	CWColormap         uint32 = 1 << 13
	CWCursor           uint32 = 1 << 14
)

// Graphics context value-mask bits, in wire order.
const (
	GCFunction           uint32 = 1 << 0
	GCPlaneMask          uint32 = 1 << 1
	GCForeground         uint32 = 1 << 2
	GCBackground         uint32 = 1 << 3
	GCLineWidth          uint32 = 1 << 4
	GCLineStyle          uint32 = 1 << 5
	GCCapStyle           uint32 = 1 << 6
	GCJoinStyle          uint32 = 1 << 7
	GCFillStyle          uint32 = 1 << 8
	GCFillRule           uint32 = 1 << 9
	GCTile               uint32 = 1 << 10
	GCStipple            uint32 = 1 << 11
	GCTileStippleOriginX uint32 = 1 << 12
	GCTileStippleOriginY uint32 = 1 << 13
	GCFont               uint32 = 1 << 14
	GCSubwindowMode      uint32 = 1 << 15
	GCGraphicsExposures  uint32 = 1 << 16
	GCClipOriginX        uint32 = 1 << 17
	GCClipOriginY        uint32 = 1 << 18
	GCClipMask           uint32 = 1 << 19
	GCDashOffset         uint32 = 1 << 20
	GCDashList           uint32 = 1 << 21
	GCArcMode            uint32 = 1 << 22
)

// Event mask bits
const (
	EventMaskKeyPress        uint32 = 1 << 0
	EventMaskKeyRelease      uint32 = 1 << 1
	EventMaskButtonPress     uint32 = 1 << 2
	EventMaskButtonRelease   uint32 = 1 << 3
	EventMaskPointerMotion   uint32 = 1 << 6
	EventMaskExposure        uint32 = 1 << 15
	EventMaskStructureNotify uint32 = 1 << 17
	EventMaskPropertyChange  uint32 = 1 << 22
)

// Property change modes
const (
	PropModeReplace uint8 = 0
	PropModePrepend uint8 = 1
	PropModeAppend  uint8 = 2
)

// Record codes. Byte 0 of every 32 byte record the server sends after setup.
const (
	CodeError    uint8 = 0
	CodeReply    uint8 = 1
	CodeKeyPress uint8 = 2
	CodeExpose   uint8 = 12

	// SyntheticBit is set on events delivered through SendEvent.
	SyntheticBit uint8 = 0x80
)

// Core error codes, carried in ErrorEvent.Code.
const (
	BadRequest  uint8 = 1
	BadValue    uint8 = 2
	BadWindow   uint8 = 3
	BadMatch    uint8 = 8
	BadDrawable uint8 = 9
	BadAlloc    uint8 = 11
	BadGC       uint8 = 13
	BadIDChoice uint8 = 14
	BadLength   uint8 = 16
)

// OpcodeName returns the request name for op, or its number for opcodes this
// package does not encode.
func OpcodeName(op uint8) string {
	switch op {
	case OpCreateWindow:
		return "CreateWindow"
	case OpDestroyWindow:
		return "DestroyWindow"
	case OpMapWindow:
		return "MapWindow"
	case OpChangeProperty:
		return "ChangeProperty"
	case OpCreateGC:
		return "CreateGC"
	case OpFreeGC:
		return "FreeGC"
	case OpPolyFillRectangle:
		return "PolyFillRectangle"
	default:
		return strconv.Itoa(int(op))
	}
}
