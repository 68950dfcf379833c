package transport_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/mokomull/x11-client/client"
	"github.com/mokomull/x11-client/protocol"
	"github.com/mokomull/x11-client/storage"
	"github.com/mokomull/x11-client/transport"
)

var _ = Describe("transport", func() {
	var (
		dir    string
		socket string
		store  *storage.InmemoryStore
		server *transport.Server
	)

	startServer := func(options transport.Options) {
		log, err := zap.NewDevelopment()
		Expect(err).To(Succeed())

		options.Network = "unix"
		options.Address = socket
		options.Store = store
		options.Log = log

		server = transport.NewServer(options)
		Expect(server.Start(context.Background())).To(Succeed())
	}

	dial := func(order protocol.ByteOrder) *client.Conn {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		conn, err := client.Dial(ctx, client.Options{Display: socket, ByteOrder: order})
		Expect(err).To(Succeed())

		return conn
	}

	nextEvent := func(conn *client.Conn) protocol.Event {
		ev, err := conn.WaitForEvent()
		Expect(err).To(Succeed())
		return ev
	}

	expectError := func(conn *client.Conn, code uint8, seq uint16) *protocol.ErrorEvent {
		xerr, ok := nextEvent(conn).(*protocol.ErrorEvent)
		Expect(ok).To(BeTrue())
		Expect(xerr.Code).To(Equal(code), xerr.Error())
		Expect(xerr.Sequence).To(Equal(seq))
		return xerr
	}

	// flush sends a request the emulator always rejects and waits for its
	// error, so every earlier request has been handled.
	flush := func(conn *client.Conn) {
		seq, err := conn.Send(&protocol.RawRequest{Op: 127})
		Expect(err).To(Succeed())
		expectError(conn, protocol.BadRequest, seq)
	}

	createWindow := func(conn *client.Conn, mask uint32) protocol.ID {
		window, err := conn.NewID()
		Expect(err).To(Succeed())

		_, err = conn.Send(&protocol.CreateWindow{
			Window: window,
			Parent: conn.DefaultScreen().Root,
			Width:  640,
			Height: 480,
			Class:  protocol.WindowClassInputOutput,
			Values: protocol.ValueList{
				protocol.CWBackPixel: 0xffffff,
				protocol.CWEventMask: mask,
			},
		})
		Expect(err).To(Succeed())

		return window
	}

	BeforeEach(func() {
		var err error

		dir, err = os.MkdirTemp("", "x11-emulator")
		Expect(err).To(Succeed())

		socket = filepath.Join(dir, "X0")
		store = storage.NewInmemoryStore()
	})

	AfterEach(func() {
		if server != nil {
			Expect(server.Close()).To(Succeed())
			server = nil
		}

		store.Close()
		os.RemoveAll(dir)
	})

	Describe("handshake", func() {
		It("gives every client its own id space", func() {
			startServer(transport.Options{})

			first := dial(protocol.MSBFirst)
			defer first.Close()
			second := dial(protocol.LSBFirst)
			defer second.Close()

			Expect(first.Setup().Vendor).To(Equal("x11-client emulator"))
			Expect(first.Setup().ResourceIDMask).To(Equal(uint32(0x001fffff)))
			Expect(first.Setup().ResourceIDBase).To(Equal(uint32(1 << 21)))
			Expect(second.Setup().ResourceIDBase).To(Equal(uint32(2 << 21)))
			Expect(second.DefaultScreen()).To(Equal(&transport.DefaultSetup().Screens[0]))

			Eventually(func() float64 {
				return testutil.ToFloat64(server.Metrics().ActiveConnections)
			}).Should(Equal(2.0))
		})

		It("refuses clients with the configured reason", func() {
			startServer(transport.Options{RejectReason: "go away"})

			_, err := client.Dial(context.Background(), client.Options{Display: socket})

			var rejected *protocol.HandshakeRejectedError
			Expect(errors.As(err, &rejected)).To(BeTrue())
			Expect(rejected.Reason).To(Equal("go away"))
			Expect(rejected.Major).To(Equal(uint16(11)))
		})
	})

	Describe("requests", func() {
		It("exposes a mapped window that asked for it", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			window := createWindow(conn, protocol.EventMaskExposure|protocol.EventMaskKeyPress)
			seq, err := conn.Send(&protocol.MapWindow{Window: window})
			Expect(err).To(Succeed())

			Expect(nextEvent(conn)).To(Equal(&protocol.ExposeEvent{
				Sequence: seq,
				Window:   window,
				Width:    640,
				Height:   480,
				Count:    0,
			}))

			stored, err := server.Resources().Window(context.Background(), window)
			Expect(err).To(Succeed())
			Expect(stored.Mapped).To(BeTrue())
			Expect(stored.Background).To(Equal(uint32(0xffffff)))
			Expect(stored.Depth).To(Equal(uint8(24)))
		})

		It("does not expose windows that did not ask", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			window := createWindow(conn, protocol.EventMaskKeyPress)
			_, err := conn.Send(&protocol.MapWindow{Window: window})
			Expect(err).To(Succeed())

			flush(conn)
			Consistently(conn.PollForEvent, 100*time.Millisecond).Should(BeNil())
		})

		It("reports unknown windows", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			seq, err := conn.Send(&protocol.MapWindow{Window: 0x00200099})
			Expect(err).To(Succeed())

			xerr := expectError(conn, protocol.BadWindow, seq)
			Expect(xerr.BadValue).To(Equal(uint32(0x00200099)))
			Expect(xerr.MajorOpcode).To(Equal(protocol.OpMapWindow))
		})

		It("refuses ids outside the client's space", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			seq, err := conn.Send(&protocol.CreateWindow{
				Window: 0x04000001,
				Parent: conn.DefaultScreen().Root,
				Width:  1,
				Height: 1,
			})
			Expect(err).To(Succeed())

			expectError(conn, protocol.BadIDChoice, seq)
		})

		It("checks the drawable and gc of fills", func() {
			startServer(transport.Options{})
			conn := dial(protocol.LSBFirst)
			defer conn.Close()

			window := createWindow(conn, 0)
			gc, err := conn.NewID()
			Expect(err).To(Succeed())

			fill := &protocol.PolyFillRectangle{
				Drawable:   window,
				GC:         gc,
				Rectangles: []protocol.Rectangle{{X: 10, Y: 10, Width: 100, Height: 100}},
			}

			seq, err := conn.Send(fill)
			Expect(err).To(Succeed())
			expectError(conn, protocol.BadGC, seq)

			_, err = conn.Send(protocol.NewCreateGC(gc, window, 0x0000ff))
			Expect(err).To(Succeed())
			_, err = conn.Send(fill)
			Expect(err).To(Succeed())
			flush(conn)

			Expect(testutil.ToFloat64(server.Metrics().RectanglesFilledTotal)).To(Equal(1.0))

			stored, err := server.Resources().GC(context.Background(), gc)
			Expect(err).To(Succeed())
			Expect(stored.Foreground).To(Equal(uint32(0x0000ff)))

			seq, err = conn.Send(&protocol.PolyFillRectangle{Drawable: 0x00200099, GC: gc})
			Expect(err).To(Succeed())
			expectError(conn, protocol.BadDrawable, seq)

			_, err = conn.Send(&protocol.FreeGC{GC: gc})
			Expect(err).To(Succeed())
			seq, err = conn.Send(&protocol.FreeGC{GC: gc})
			Expect(err).To(Succeed())
			expectError(conn, protocol.BadGC, seq)
		})

		It("stores window names", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			window := createWindow(conn, 0)
			_, err := conn.Send(protocol.NewSetWMName(window, "hello"))
			Expect(err).To(Succeed())
			flush(conn)

			prop, err := server.Resources().Property(context.Background(), window, protocol.AtomWMName)
			Expect(err).To(Succeed())
			Expect(prop.Text).To(Equal("hello"))
			Expect(prop.Type).To(Equal(protocol.AtomString))
		})

		It("destroys windows but not the root", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			window := createWindow(conn, 0)
			_, err := conn.Send(&protocol.DestroyWindow{Window: window})
			Expect(err).To(Succeed())
			_, err = conn.Send(&protocol.DestroyWindow{Window: conn.DefaultScreen().Root})
			Expect(err).To(Succeed())

			seq, err := conn.Send(&protocol.MapWindow{Window: window})
			Expect(err).To(Succeed())
			expectError(conn, protocol.BadWindow, seq)

			Expect(server.Resources().HasWindow(context.Background(), conn.DefaultScreen().Root)).To(BeTrue())
		})

		It("counts requests by name", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			createWindow(conn, 0)
			flush(conn)

			requests := server.Metrics().RequestsTotal
			Expect(testutil.ToFloat64(requests.WithLabelValues("CreateWindow"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(requests.WithLabelValues("127"))).To(Equal(1.0))
		})
	})

	Describe("Close()", func() {
		It("disconnects active clients", func() {
			startServer(transport.Options{})
			conn := dial(protocol.MSBFirst)
			defer conn.Close()

			Expect(server.Close()).To(Succeed())
			server = nil

			_, err := conn.WaitForEvent()
			Expect(errors.Is(err, protocol.ErrIncompleteMessage)).To(BeTrue())
		})
	})
})
