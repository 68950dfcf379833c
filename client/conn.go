package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/mokomull/x11-client/protocol"
)

// How long PollForEvent waits for bytes on connections that cannot be polled
// directly, such as in-memory pipes.
const pollWait = time.Millisecond

var ErrNoSuchScreen = errors.New("no such screen")

type Options struct {
	// Display name, see ParseDisplay. Only used by Dial.
	Display string

	// ByteOrder for every multi-byte field on the connection. Defaults to
	// protocol.MSBFirst.
	ByteOrder protocol.ByteOrder

	AuthName string
	AuthData []byte

	// Screen selects DefaultScreen. Dial takes it from the display name.
	Screen int

	Log *zap.Logger
}

// Conn is a connection to a display server that has completed the handshake.
//
// A Conn is not safe for concurrent use. One goroutine owns it, sends
// requests and reads events.
type Conn struct {
	conn   net.Conn
	rd     *bufio.Reader
	poller *fdPoller

	order  protocol.ByteOrder
	setup  *protocol.Setup
	ids    *protocol.IDAllocator
	screen int

	sequence        uint16
	maxRequestBytes int

	// Bytes of a reply body still to be dropped
	skip int

	log *zap.Logger
}

// Dial connects to the display named by opts.Display and performs the
// handshake. The context bounds both the connect and the handshake.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	display, err := ParseDisplay(opts.Display)
	if err != nil {
		return nil, err
	}

	var dialer net.Dialer
	nc, err := dialer.DialContext(ctx, display.Network, display.Address)
	if err != nil {
		return nil, &protocol.TransportError{Op: "dial", Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := nc.SetDeadline(deadline); err != nil {
			nc.Close()
			return nil, &protocol.TransportError{Op: "dial", Err: err}
		}
	}

	opts.Screen = display.Screen

	c, err := NewConn(nc, opts)
	if err != nil {
		return nil, err
	}

	if err := nc.SetDeadline(time.Time{}); err != nil {
		c.Close()
		return nil, &protocol.TransportError{Op: "dial", Err: err}
	}

	return c, nil
}

// NewConn performs the handshake over an already connected stream. The stream
// is closed if the handshake fails.
func NewConn(nc net.Conn, opts Options) (*Conn, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	order := opts.ByteOrder
	if order == 0 {
		order = protocol.MSBFirst
	}

	c := &Conn{
		conn:   nc,
		rd:     bufio.NewReader(nc),
		order:  order,
		screen: opts.Screen,
		log:    log.Named("client").With(zap.String("remote", remoteAddr(nc))),
	}

	greeting := protocol.NewGreeting(order)
	greeting.AuthName = opts.AuthName
	greeting.AuthData = opts.AuthData

	setup, err := protocol.Handshake(struct {
		io.Reader
		io.Writer
	}{c.rd, nc}, greeting)
	if err != nil {
		nc.Close()
		return nil, err
	}

	if c.screen < 0 || c.screen >= len(setup.Screens) {
		nc.Close()
		return nil, fmt.Errorf("%w: %d, server has %d", ErrNoSuchScreen, c.screen, len(setup.Screens))
	}

	c.setup = setup
	c.ids = protocol.NewIDAllocator(setup.ResourceIDBase, setup.ResourceIDMask)
	c.maxRequestBytes = int(setup.MaximumRequestLength) * 4

	if p, err := newFDPoller(nc); err == nil {
		c.poller = p
	} else {
		c.log.Debug("Falling back to deadline polling", zap.Error(err))
	}

	c.log.Info("Connected",
		zap.String("vendor", setup.Vendor),
		zap.Uint32("release", setup.ReleaseNumber),
		zap.Stringer("byteOrder", order),
		zap.Int("screens", len(setup.Screens)))

	return c, nil
}

// Setup returns the server's capability announcement.
func (c *Conn) Setup() *protocol.Setup {
	return c.setup
}

// DefaultScreen returns the screen selected when connecting.
func (c *Conn) DefaultScreen() *protocol.Screen {
	return &c.setup.Screens[c.screen]
}

func (c *Conn) ByteOrder() protocol.ByteOrder {
	return c.order
}

// NewID allocates a resource id from the connection's id space.
func (c *Conn) NewID() (protocol.ID, error) {
	return c.ids.NewID()
}

// Send encodes req and writes it. It returns the sequence number the server
// will report in events and errors caused by this request.
func (c *Conn) Send(req protocol.Request) (uint16, error) {
	b, err := protocol.EncodeRequest(c.order, req)
	if err != nil {
		return 0, err
	}

	if c.maxRequestBytes > 0 && len(b) > c.maxRequestBytes {
		return 0, fmt.Errorf("%w: %d bytes, server accepts %d",
			protocol.ErrRequestTooLarge, len(b), c.maxRequestBytes)
	}

	if _, err := c.conn.Write(b); err != nil {
		return 0, &protocol.TransportError{Op: "write", Err: err}
	}

	c.sequence++

	if ce := c.log.Check(zap.DebugLevel, "Sent request"); ce != nil {
		ce.Write(
			zap.Uint8("opcode", req.Opcode()),
			zap.Uint16("sequence", c.sequence),
			zap.Int("bytes", len(b)))
	}

	return c.sequence, nil
}

// WaitForEvent blocks until the next record arrives.
func (c *Conn) WaitForEvent() (protocol.Event, error) {
	if err := c.discardReplyBody(); err != nil {
		return nil, err
	}

	ev, err := c.nextRecord()
	if err != nil {
		return nil, err
	}

	if err := c.discardReplyBody(); err != nil {
		return nil, err
	}

	return ev, nil
}

// PollForEvent returns the next event if a complete record has already
// arrived, and nil, nil otherwise. It never waits for the server. The body
// of a reply is skipped as it arrives, over as many calls as it takes.
func (c *Conn) PollForEvent() (protocol.Event, error) {
	for c.skip > 0 || c.rd.Buffered() < protocol.EventSize {
		if c.skip > 0 && c.rd.Buffered() > 0 {
			n, _ := c.rd.Discard(min(c.skip, c.rd.Buffered()))
			c.skip -= n
			continue
		}

		more, err := c.fill()
		if err != nil {
			var terr *protocol.TransportError
			if errors.As(err, &terr) {
				return nil, err
			}

			// A failed read, let the blocking path turn it into an
			// incomplete record or a transport error.
			return c.WaitForEvent()
		}

		if !more {
			return nil, nil
		}
	}

	return c.nextRecord()
}

// nextRecord reads one 32 byte record. For a reply it leaves the length of
// the body that follows in c.skip.
func (c *Conn) nextRecord() (protocol.Event, error) {
	ev, err := protocol.ReadEvent(c.rd, c.order)
	if err != nil {
		return nil, err
	}

	if unknown, ok := ev.(*protocol.UnknownEvent); ok {
		c.skip = unknown.ExtraLength(c.order)
	}

	if ce := c.log.Check(zap.DebugLevel, "Received event"); ce != nil {
		ce.Write(zap.Uint8("code", ev.EventCode()), zap.Int("skip", c.skip))
	}

	return ev, nil
}

// discardReplyBody blocks until the rest of the last reply's body has been
// read and dropped.
func (c *Conn) discardReplyBody() error {
	if c.skip == 0 {
		return nil
	}

	n, err := c.rd.Discard(c.skip)
	c.skip -= n

	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return fmt.Errorf("%w: stream ended %d bytes before the end of a reply", protocol.ErrIncompleteMessage, c.skip)
	default:
		return &protocol.TransportError{Op: "read", Err: err}
	}
}

// Pending reports whether the server has sent bytes that have not been read
// yet. It never waits for the server.
func (c *Conn) Pending() (bool, error) {
	if c.rd.Buffered() == 0 {
		if _, err := c.fill(); err != nil {
			var terr *protocol.TransportError
			if errors.As(err, &terr) {
				return false, err
			}

			return false, &protocol.TransportError{Op: "read", Err: err}
		}
	}

	return c.rd.Buffered() > 0, nil
}

// fill buffers whatever bytes can be read without blocking and reports
// whether any arrived.
func (c *Conn) fill() (bool, error) {
	if c.poller != nil {
		ready, err := c.poller.Readable()
		if err != nil {
			return false, &protocol.TransportError{Op: "poll", Err: err}
		}

		if !ready {
			return false, nil
		}

		_, err = c.rd.Peek(c.rd.Buffered() + 1)
		return true, err
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(pollWait)); err != nil {
		return false, &protocol.TransportError{Op: "poll", Err: err}
	}

	_, err := c.rd.Peek(c.rd.Buffered() + 1)

	if derr := c.conn.SetReadDeadline(time.Time{}); derr != nil {
		return false, &protocol.TransportError{Op: "poll", Err: derr}
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return false, nil
	}

	return true, err
}

func (c *Conn) Close() error {
	if err := c.conn.Close(); err != nil {
		return &protocol.TransportError{Op: "close", Err: err}
	}

	c.log.Info("Disconnected")

	return nil
}

func remoteAddr(nc net.Conn) string {
	if addr := nc.RemoteAddr(); addr != nil {
		return addr.String()
	}

	return ""
}
