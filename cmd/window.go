package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mokomull/x11-client/client"
	"github.com/mokomull/x11-client/protocol"
)

var (
	windowTitle      string
	windowForeground uint32
	windowMaxEvents  int
	windowQuitOnKey  bool
)

// Where the window goes and what is filled on every Expose.
var (
	windowGeometry = protocol.Rectangle{X: 100, Y: 100, Width: 1024, Height: 1024}
	fillRectangle  = protocol.Rectangle{X: 256, Y: 256, Width: 512, Height: 512}
)

var WindowCmd = &cobra.Command{
	Use:   "window",
	Short: "Open a window and fill a rectangle in it",
	Long: `Open a window and fill a rectangle in it

The rectangle is redrawn whenever the window is exposed. Every event received
is printed. Interrupt to exit, or use --max-events / --quit-on-key.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conn, log, err := connect(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		return RunWindow(ctx, conn, WindowOptions{
			Title:      windowTitle,
			Foreground: windowForeground,
			MaxEvents:  windowMaxEvents,
			QuitOnKey:  windowQuitOnKey,
			Out:        cmd.OutOrStdout(),
			Log:        log,
		})
	},
}

func init() {
	flags := WindowCmd.Flags()

	flags.StringVarP(&windowTitle, "title", "t", "x11-client", "The window name")
	flags.Uint32Var(&windowForeground, "foreground", 0x0000ff, "The pixel value to fill with")
	flags.IntVarP(&windowMaxEvents, "max-events", "n", 0, "Exit after this many events, 0 for no limit")
	flags.BoolVar(&windowQuitOnKey, "quit-on-key", false, "Exit on the first key press")
}

type WindowOptions struct {
	Title      string
	Foreground uint32
	MaxEvents  int
	QuitOnKey  bool

	Out io.Writer
	Log *zap.Logger
}

// RunWindow creates and maps a window on the default screen, then prints
// events and fills the rectangle on every last Expose until one of the exit
// conditions in opts is met or ctx is done. It returns the first error
// record the server sends.
func RunWindow(ctx context.Context, conn *client.Conn, opts WindowOptions) error {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	screen := conn.DefaultScreen()

	window, err := conn.NewID()
	if err != nil {
		return err
	}

	gc, err := conn.NewID()
	if err != nil {
		return err
	}

	requests := []protocol.Request{
		&protocol.CreateWindow{
			Depth:       screen.RootDepth,
			Window:      window,
			Parent:      screen.Root,
			X:           windowGeometry.X,
			Y:           windowGeometry.Y,
			Width:       windowGeometry.Width,
			Height:      windowGeometry.Height,
			BorderWidth: 0,
			Class:       protocol.WindowClassInputOutput,
			Visual:      screen.RootVisual,
			Values: protocol.ValueList{
				protocol.CWBackPixel: screen.WhitePixel,
				protocol.CWEventMask: protocol.EventMaskExposure | protocol.EventMaskKeyPress,
			},
		},
		protocol.NewSetWMName(window, opts.Title),
		&protocol.MapWindow{Window: window},
		protocol.NewCreateGC(gc, window, opts.Foreground),
	}

	for _, req := range requests {
		if _, err := conn.Send(req); err != nil {
			return err
		}
	}

	log.Info("Window created", zap.String("window", fmt.Sprintf("%#x", uint32(window))))

	// WaitForEvent only returns once the connection is closed.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for n := 1; ; n++ {
		ev, err := conn.WaitForEvent()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		fmt.Fprintln(opts.Out, ev)

		switch ev := ev.(type) {
		case *protocol.ErrorEvent:
			return ev

		case *protocol.ExposeEvent:
			if ev.Window == window && ev.Count == 0 {
				_, err := conn.Send(&protocol.PolyFillRectangle{
					Drawable:   window,
					GC:         gc,
					Rectangles: []protocol.Rectangle{fillRectangle},
				})
				if err != nil {
					return err
				}
			}

		case *protocol.KeyPressEvent:
			if opts.QuitOnKey {
				return nil
			}
		}

		if opts.MaxEvents > 0 && n >= opts.MaxEvents {
			return nil
		}
	}
}
