package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/mokomull/x11-client/protocol"
)

var errLeftoverBytes = errors.New("server sent more than the setup announcement")

var (
	setupJSON  bool
	setupQuery string
)

var SetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Connect to the display and print its setup announcement",
	Long: `Connect to the display and print its setup announcement

Usage
	x11-client setup
	x11-client setup --json
	x11-client setup --query 'screens.0.root_visual'

--query takes a gjson path over the JSON form of the announcement.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conn, _, err := connect(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		out := cmd.OutOrStdout()
		setup := conn.Setup()

		switch {
		case setupQuery != "":
			res, err := QuerySetup(setup, setupQuery)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, res)

		case setupJSON:
			b, err := json.MarshalIndent(setup, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(b))

		default:
			PrintSetup(out, setup)
		}

		// Nothing was requested, so nothing else should have arrived.
		pending, err := conn.Pending()
		if err != nil {
			return err
		}
		if pending {
			return errLeftoverBytes
		}

		return nil
	},
}

func init() {
	flags := SetupCmd.Flags()

	flags.BoolVar(&setupJSON, "json", false, "Print the announcement as JSON")
	flags.StringVarP(&setupQuery, "query", "q", "", "Print only the value at this gjson path")
}

// QuerySetup returns the value at a gjson path of the announcement.
func QuerySetup(setup *protocol.Setup, path string) (string, error) {
	b, err := json.Marshal(setup)
	if err != nil {
		return "", err
	}

	res := gjson.GetBytes(b, path)
	if !res.Exists() {
		return "", fmt.Errorf("nothing at %q", path)
	}

	return res.String(), nil
}

// PrintSetup writes every field of the announcement, one per line, indented
// by nesting.
func PrintSetup(w io.Writer, s *protocol.Setup) {
	fmt.Fprintf(w, "protocol: %d.%d\n", s.ProtocolMajor, s.ProtocolMinor)
	fmt.Fprintf(w, "vendor: %s\n", s.Vendor)
	fmt.Fprintf(w, "release number: %d\n", s.ReleaseNumber)
	fmt.Fprintf(w, "resource id base: %#x\n", s.ResourceIDBase)
	fmt.Fprintf(w, "resource id mask: %#x\n", s.ResourceIDMask)
	fmt.Fprintf(w, "motion buffer size: %d\n", s.MotionBufferSize)
	fmt.Fprintf(w, "maximum request length: %d\n", s.MaximumRequestLength)
	fmt.Fprintf(w, "image byte order: %d\n", s.ImageByteOrder)
	fmt.Fprintf(w, "bitmap format: bit order %d, scanline unit %d, scanline pad %d\n",
		s.BitmapFormatBitOrder, s.BitmapFormatScanlineUnit, s.BitmapFormatScanlinePad)
	fmt.Fprintf(w, "keycodes: %d-%d\n", s.MinKeycode, s.MaxKeycode)

	fmt.Fprintf(w, "pixmap formats: %d\n", len(s.PixmapFormats))
	for _, f := range s.PixmapFormats {
		fmt.Fprintf(w, "  depth %d: %d bits per pixel, scanline pad %d\n", f.Depth, f.BitsPerPixel, f.ScanlinePad)
	}

	fmt.Fprintf(w, "screens: %d\n", len(s.Screens))
	for i := range s.Screens {
		screen := &s.Screens[i]

		fmt.Fprintf(w, "  screen %d:\n", i)
		fmt.Fprintf(w, "    root: %#x\n", uint32(screen.Root))
		fmt.Fprintf(w, "    default colormap: %#x\n", uint32(screen.DefaultColormap))
		fmt.Fprintf(w, "    white pixel: %#x, black pixel: %#x\n", screen.WhitePixel, screen.BlackPixel)
		fmt.Fprintf(w, "    current input masks: %#x\n", screen.CurrentInputMasks)
		fmt.Fprintf(w, "    size: %dx%d pixels, %dx%d millimeters\n",
			screen.WidthInPixels, screen.HeightInPixels, screen.WidthInMillimeters, screen.HeightInMillimeters)
		fmt.Fprintf(w, "    installed maps: %d-%d\n", screen.MinInstalledMaps, screen.MaxInstalledMaps)
		fmt.Fprintf(w, "    root visual: %#x, root depth: %d\n", uint32(screen.RootVisual), screen.RootDepth)
		fmt.Fprintf(w, "    backing stores: %d, save unders: %t\n", screen.BackingStores, screen.SaveUnders)

		fmt.Fprintf(w, "    depths: %d\n", len(screen.AllowedDepths))
		for _, depth := range screen.AllowedDepths {
			fmt.Fprintf(w, "      depth %d: %d visuals\n", depth.Depth, len(depth.Visuals))
			for _, v := range depth.Visuals {
				fmt.Fprintf(w, "        visual %#x: class %d, %d bits per rgb, %d colormap entries, masks %#06x %#06x %#06x\n",
					uint32(v.ID), v.Class, v.BitsPerRGBValue, v.ColormapEntries, v.RedMask, v.GreenMask, v.BlueMask)
			}
		}
	}
}
