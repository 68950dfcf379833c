package protocol

import (
	"fmt"
	"unicode/utf8"
)

// Wire sizes of the fixed parts of the setup records.
const (
	setupHeaderSize  = 8
	setupFixedSize   = 32
	pixmapFormatSize = 8
	screenFixedSize  = 40
)

// Setup is the capability announcement a server sends when it accepts a
// connection. It owns its pixmap formats and screens, each screen owns its
// depths and each depth owns its visuals.
type Setup struct {
	ProtocolMajor            uint16         `json:"protocol_major"`
	ProtocolMinor            uint16         `json:"protocol_minor"`
	ReleaseNumber            uint32         `json:"release_number"`
	ResourceIDBase           uint32         `json:"resource_id_base"`
	ResourceIDMask           uint32         `json:"resource_id_mask"`
	MotionBufferSize         uint32         `json:"motion_buffer_size"`
	MaximumRequestLength     uint16         `json:"maximum_request_length"`
	ImageByteOrder           uint8          `json:"image_byte_order"`
	BitmapFormatBitOrder     uint8          `json:"bitmap_format_bit_order"`
	BitmapFormatScanlineUnit uint8          `json:"bitmap_format_scanline_unit"`
	BitmapFormatScanlinePad  uint8          `json:"bitmap_format_scanline_pad"`
	MinKeycode               uint8          `json:"min_keycode"`
	MaxKeycode               uint8          `json:"max_keycode"`
	Vendor                   string         `json:"vendor"`
	PixmapFormats            []PixmapFormat `json:"pixmap_formats"`
	Screens                  []Screen       `json:"screens"`
}

type PixmapFormat struct {
	Depth        uint8 `json:"depth"`
	BitsPerPixel uint8 `json:"bits_per_pixel"`
	ScanlinePad  uint8 `json:"scanline_pad"`
}

type Screen struct {
	Root                ID      `json:"root"`
	DefaultColormap     ID      `json:"default_colormap"`
	WhitePixel          uint32  `json:"white_pixel"`
	BlackPixel          uint32  `json:"black_pixel"`
	CurrentInputMasks   uint32  `json:"current_input_masks"`
	WidthInPixels       uint16  `json:"width_in_pixels"`
	HeightInPixels      uint16  `json:"height_in_pixels"`
	WidthInMillimeters  uint16  `json:"width_in_millimeters"`
	HeightInMillimeters uint16  `json:"height_in_millimeters"`
	MinInstalledMaps    uint16  `json:"min_installed_maps"`
	MaxInstalledMaps    uint16  `json:"max_installed_maps"`
	RootVisual          ID      `json:"root_visual"`
	BackingStores       uint8   `json:"backing_stores"`
	SaveUnders          bool    `json:"save_unders"`
	RootDepth           uint8   `json:"root_depth"`
	AllowedDepths       []Depth `json:"allowed_depths"`
}

type Depth struct {
	Depth   uint8    `json:"depth"`
	Visuals []Visual `json:"visuals"`
}

// Visual classes
const (
	VisualClassStaticGray  uint8 = 0
	VisualClassGrayScale   uint8 = 1
	VisualClassStaticColor uint8 = 2
	VisualClassPseudoColor uint8 = 3
	VisualClassTrueColor   uint8 = 4
	VisualClassDirectColor uint8 = 5
)

type Visual struct {
	ID              ID     `json:"visual_id"`
	Class           uint8  `json:"class"`
	BitsPerRGBValue uint8  `json:"bits_per_rgb_value"`
	ColormapEntries uint16 `json:"colormap_entries"`
	RedMask         uint32 `json:"red_mask"`
	GreenMask       uint32 `json:"green_mask"`
	BlueMask        uint32 `json:"blue_mask"`
}

// Visual returns the visual with the given id from any of the screen's
// depths, and the depth it belongs to.
func (s *Screen) Visual(id ID) (*Visual, uint8, bool) {
	for i := range s.AllowedDepths {
		d := &s.AllowedDepths[i]
		for j := range d.Visuals {
			if d.Visuals[j].ID == id {
				return &d.Visuals[j], d.Depth, true
			}
		}
	}

	return nil, 0, false
}

// readSetupSuccess parses everything after the status byte of a Success
// answer. The additional-data length is informational only, the explicit
// counts drive the parse.
func readSetupSuccess(rd *Reader) (*Setup, error) {
	s := &Setup{}

	rd.Skip(1)
	s.ProtocolMajor = rd.Uint16()
	s.ProtocolMinor = rd.Uint16()
	rd.Skip(2) // additional data length

	s.ReleaseNumber = rd.Uint32()
	s.ResourceIDBase = rd.Uint32()
	s.ResourceIDMask = rd.Uint32()
	s.MotionBufferSize = rd.Uint32()
	vendorLen := int(rd.Uint16())
	s.MaximumRequestLength = rd.Uint16()
	screenCount := int(rd.Uint8())
	formatCount := int(rd.Uint8())
	s.ImageByteOrder = rd.Uint8()
	s.BitmapFormatBitOrder = rd.Uint8()
	s.BitmapFormatScanlineUnit = rd.Uint8()
	s.BitmapFormatScanlinePad = rd.Uint8()
	s.MinKeycode = rd.Uint8()
	s.MaxKeycode = rd.Uint8()
	rd.Skip(4)

	vendor := rd.PaddedBytes(vendorLen)
	if err := rd.Err(); err != nil {
		return nil, err
	}

	if !utf8.Valid(vendor) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedVendorString, vendor)
	}
	s.Vendor = string(vendor)

	s.PixmapFormats = make([]PixmapFormat, 0, formatCount)
	for i := 0; i < formatCount && rd.Err() == nil; i++ {
		s.PixmapFormats = append(s.PixmapFormats, readPixmapFormat(rd))
	}

	s.Screens = make([]Screen, 0, screenCount)
	for i := 0; i < screenCount && rd.Err() == nil; i++ {
		s.Screens = append(s.Screens, readScreen(rd))
	}

	if err := rd.Err(); err != nil {
		return nil, err
	}

	return s, nil
}

func readPixmapFormat(rd *Reader) PixmapFormat {
	f := PixmapFormat{
		Depth:        rd.Uint8(),
		BitsPerPixel: rd.Uint8(),
		ScanlinePad:  rd.Uint8(),
	}
	rd.Skip(5)

	return f
}

func readScreen(rd *Reader) Screen {
	s := Screen{
		Root:                ID(rd.Uint32()),
		DefaultColormap:     ID(rd.Uint32()),
		WhitePixel:          rd.Uint32(),
		BlackPixel:          rd.Uint32(),
		CurrentInputMasks:   rd.Uint32(),
		WidthInPixels:       rd.Uint16(),
		HeightInPixels:      rd.Uint16(),
		WidthInMillimeters:  rd.Uint16(),
		HeightInMillimeters: rd.Uint16(),
		MinInstalledMaps:    rd.Uint16(),
		MaxInstalledMaps:    rd.Uint16(),
		RootVisual:          ID(rd.Uint32()),
		BackingStores:       rd.Uint8(),
		SaveUnders:          rd.Bool(),
		RootDepth:           rd.Uint8(),
	}

	depthCount := int(rd.Uint8())
	for i := 0; i < depthCount && rd.Err() == nil; i++ {
		s.AllowedDepths = append(s.AllowedDepths, readDepth(rd))
	}

	return s
}

func readDepth(rd *Reader) Depth {
	d := Depth{Depth: rd.Uint8()}
	rd.Skip(1)
	visualCount := int(rd.Uint16())
	rd.Skip(4)

	for i := 0; i < visualCount && rd.Err() == nil; i++ {
		d.Visuals = append(d.Visuals, readVisual(rd))
	}

	return d
}

func readVisual(rd *Reader) Visual {
	v := Visual{
		ID:              ID(rd.Uint32()),
		Class:           rd.Uint8(),
		BitsPerRGBValue: rd.Uint8(),
		ColormapEntries: rd.Uint16(),
		RedMask:         rd.Uint32(),
		GreenMask:       rd.Uint32(),
		BlueMask:        rd.Uint32(),
	}
	rd.Skip(4)

	return v
}

// Encode serialises s as the Success answer to a greeting, as a display
// server would send it.
func (s *Setup) Encode(order ByteOrder) ([]byte, error) {
	switch {
	case len(s.Screens) > 255:
		return nil, fmt.Errorf("%d screens do not fit in the setup reply", len(s.Screens))
	case len(s.PixmapFormats) > 255:
		return nil, fmt.Errorf("%d pixmap formats do not fit in the setup reply", len(s.PixmapFormats))
	case len(s.Vendor) > 0xffff:
		return nil, fmt.Errorf("vendor string of %d bytes does not fit in the setup reply", len(s.Vendor))
	}

	e := NewEncoderWithCap(order, setupHeaderSize+setupFixedSize+len(s.Vendor)+3+
		len(s.PixmapFormats)*pixmapFormatSize+len(s.Screens)*screenFixedSize)

	e.PutUint8(uint8(SetupSuccess))
	e.PutZero(1)
	e.PutUint16(s.ProtocolMajor)
	e.PutUint16(s.ProtocolMinor)
	e.PutUint16(0) // filled in below

	e.PutUint32(s.ReleaseNumber)
	e.PutUint32(s.ResourceIDBase)
	e.PutUint32(s.ResourceIDMask)
	e.PutUint32(s.MotionBufferSize)
	e.PutUint16(uint16(len(s.Vendor)))
	e.PutUint16(s.MaximumRequestLength)
	e.PutUint8(uint8(len(s.Screens)))
	e.PutUint8(uint8(len(s.PixmapFormats)))
	e.PutUint8(s.ImageByteOrder)
	e.PutUint8(s.BitmapFormatBitOrder)
	e.PutUint8(s.BitmapFormatScanlineUnit)
	e.PutUint8(s.BitmapFormatScanlinePad)
	e.PutUint8(s.MinKeycode)
	e.PutUint8(s.MaxKeycode)
	e.PutZero(4)
	e.PutPaddedBytes([]byte(s.Vendor))

	for _, f := range s.PixmapFormats {
		e.PutUint8(f.Depth)
		e.PutUint8(f.BitsPerPixel)
		e.PutUint8(f.ScanlinePad)
		e.PutZero(5)
	}

	for i := range s.Screens {
		if err := s.Screens[i].encode(e); err != nil {
			return nil, err
		}
	}

	words := (e.Len() - setupHeaderSize) / 4
	if words > 0xffff {
		return nil, fmt.Errorf("setup reply of %d bytes is too long", e.Len())
	}
	e.setUint16(6, uint16(words))

	return e.Bytes(), nil
}

func (s *Screen) encode(e *Encoder) error {
	if len(s.AllowedDepths) > 255 {
		return fmt.Errorf("screen %#x: %d depths do not fit in the setup reply", s.Root, len(s.AllowedDepths))
	}

	e.PutUint32(uint32(s.Root))
	e.PutUint32(uint32(s.DefaultColormap))
	e.PutUint32(s.WhitePixel)
	e.PutUint32(s.BlackPixel)
	e.PutUint32(s.CurrentInputMasks)
	e.PutUint16(s.WidthInPixels)
	e.PutUint16(s.HeightInPixels)
	e.PutUint16(s.WidthInMillimeters)
	e.PutUint16(s.HeightInMillimeters)
	e.PutUint16(s.MinInstalledMaps)
	e.PutUint16(s.MaxInstalledMaps)
	e.PutUint32(uint32(s.RootVisual))
	e.PutUint8(s.BackingStores)
	e.PutBool(s.SaveUnders)
	e.PutUint8(s.RootDepth)
	e.PutUint8(uint8(len(s.AllowedDepths)))

	for _, d := range s.AllowedDepths {
		if len(d.Visuals) > 0xffff {
			return fmt.Errorf("depth %d: %d visuals do not fit in the setup reply", d.Depth, len(d.Visuals))
		}

		e.PutUint8(d.Depth)
		e.PutZero(1)
		e.PutUint16(uint16(len(d.Visuals)))
		e.PutZero(4)

		for _, v := range d.Visuals {
			e.PutUint32(uint32(v.ID))
			e.PutUint8(v.Class)
			e.PutUint8(v.BitsPerRGBValue)
			e.PutUint16(v.ColormapEntries)
			e.PutUint32(v.RedMask)
			e.PutUint32(v.GreenMask)
			e.PutUint32(v.BlueMask)
			e.PutZero(4)
		}
	}

	return nil
}
