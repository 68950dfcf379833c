package transport

import "github.com/mokomull/x11-client/protocol"

const (
	// Every client gets clientIDBits of id space, the client index sits above.
	clientIDBits = 21
	clientIDMask = 1<<clientIDBits - 1

	// Index 0 owns the root windows.
	maxClients = 1<<(32-clientIDBits) - 1
)

// DefaultSetup is a single 1920x1080 TrueColor screen.
func DefaultSetup() *protocol.Setup {
	return &protocol.Setup{
		ProtocolMajor:            protocol.ProtocolMajor,
		ProtocolMinor:            protocol.ProtocolMinor,
		ReleaseNumber:            1,
		MaximumRequestLength:     0xffff,
		BitmapFormatScanlineUnit: 32,
		BitmapFormatScanlinePad:  32,
		MinKeycode:               8,
		MaxKeycode:               255,
		Vendor:                   "x11-client emulator",
		PixmapFormats: []protocol.PixmapFormat{
			{Depth: 1, BitsPerPixel: 1, ScanlinePad: 32},
			{Depth: 24, BitsPerPixel: 32, ScanlinePad: 32},
		},
		Screens: []protocol.Screen{{
			Root:                0x1e5,
			DefaultColormap:     0x20,
			WhitePixel:          0xffffff,
			BlackPixel:          0x000000,
			WidthInPixels:       1920,
			HeightInPixels:      1080,
			WidthInMillimeters:  508,
			HeightInMillimeters: 285,
			MinInstalledMaps:    1,
			MaxInstalledMaps:    1,
			RootVisual:          0x21,
			RootDepth:           24,
			AllowedDepths: []protocol.Depth{
				{
					Depth: 24,
					Visuals: []protocol.Visual{{
						ID:              0x21,
						Class:           protocol.VisualClassTrueColor,
						BitsPerRGBValue: 8,
						ColormapEntries: 256,
						RedMask:         0xff0000,
						GreenMask:       0x00ff00,
						BlueMask:        0x0000ff,
					}},
				},
				{Depth: 1},
			},
		}},
	}
}

// clientSetup copies the announced setup with the id space of one client.
// Formats and screens are shared, nothing modifies them.
func clientSetup(template *protocol.Setup, index int) *protocol.Setup {
	setup := *template
	setup.ResourceIDBase = uint32(index) << clientIDBits
	setup.ResourceIDMask = clientIDMask

	return &setup
}
