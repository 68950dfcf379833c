package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mokomull/x11-client/protocol"
	"github.com/mokomull/x11-client/storage"
)

const writeQueueSize = 127

var (
	errConnClosed = errors.New("connection closed")
	errRefused    = errors.New("connection refused")
)

// Reasons sent in Failed answers
const (
	reasonAuthorization = "authorization protocols are not supported"
	reasonTooMany       = "maximum number of clients reached"
)

// Conn is one client of the emulator.
type Conn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup
	closeOnce  sync.Once

	// startMu orders Start against Close
	startMu sync.Mutex

	conn  net.Conn
	rd    *bufio.Reader
	index int

	server *Server

	// Set by Handshake
	order protocol.ByteOrder
	base  uint32
	mask  uint32
	ready int32

	// sequence of the last request read
	sequence uint32

	writeQueue chan []byte

	log *zap.Logger
}

func newConn(parentCtx context.Context, nc net.Conn, index int, server *Server, log *zap.Logger) *Conn {
	ctx, cancel := context.WithCancel(parentCtx)

	return &Conn{
		ctx:        ctx,
		cancel:     cancel,
		conn:       nc,
		rd:         bufio.NewReader(nc),
		index:      index,
		server:     server,
		writeQueue: make(chan []byte, writeQueueSize),
		log:        log,
	}
}

// Handshake reads the client's greeting and answers it. It returns an error
// when the connection was refused or failed.
func (c *Conn) Handshake() error {
	metrics := c.server.metrics

	g, err := protocol.ReadGreeting(c.rd)
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues("error").Inc()
		return err
	}

	c.order = g.ByteOrder

	reason := c.server.rejectReason
	switch {
	case reason != "":
	case g.AuthName != "" || len(g.AuthData) > 0:
		reason = reasonAuthorization
	case c.index == 0:
		reason = reasonTooMany
	}

	if reason != "" {
		metrics.HandshakesTotal.WithLabelValues(protocol.SetupFailed.String()).Inc()

		if _, err := c.conn.Write(protocol.EncodeSetupFailed(c.order, reason)); err != nil {
			return &protocol.TransportError{Op: "write", Err: err}
		}

		return fmt.Errorf("%w: %s", errRefused, reason)
	}

	setup := clientSetup(c.server.setup, c.index)

	b, err := setup.Encode(c.order)
	if err != nil {
		metrics.HandshakesTotal.WithLabelValues("error").Inc()
		return err
	}

	if _, err := c.conn.Write(b); err != nil {
		metrics.HandshakesTotal.WithLabelValues("error").Inc()
		return &protocol.TransportError{Op: "write", Err: err}
	}

	c.base = setup.ResourceIDBase
	c.mask = setup.ResourceIDMask
	atomic.StoreInt32(&c.ready, 1)

	metrics.HandshakesTotal.WithLabelValues(protocol.SetupSuccess.String()).Inc()

	c.log.Info("Client connected",
		zap.Stringer("byteOrder", c.order),
		zap.String("resourceIDBase", fmt.Sprintf("%#x", c.base)))

	return nil
}

// Close stops the read and write loops and closes the connection. It is safe
// to call more than once.
func (c *Conn) Close() (err error) {
	c.closeOnce.Do(func() {
		c.startMu.Lock()
		c.cancel()
		c.startMu.Unlock()

		// Unblocks the read loop
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}

		c.loopWaiter.Wait()
	})

	return err
}

// Start runs the read and write loops until the client goes away or Close is
// called.
func (c *Conn) Start() {
	c.startMu.Lock()
	if !c.isRunning() {
		c.startMu.Unlock()
		return
	}
	c.loopWaiter.Add(2)
	c.startMu.Unlock()

	go func() {
		defer c.loopWaiter.Done()
		c.ReadLoop()
	}()

	go func() {
		defer c.loopWaiter.Done()
		c.WriteLoop()
	}()

	c.loopWaiter.Wait()
	c.Close()
}

func (c *Conn) ReadLoop() {
	log := c.log.Named("readLoop")

	// The write loop has nothing left to do once the client stops sending.
	defer c.cancel()

	metrics := c.server.metrics

	for {
		raw, err := protocol.ReadRequest(c.rd, c.order)
		if err != nil {
			switch {
			case !c.isRunning():
				log.Debug("Context cancelled, exiting...")
			case errors.Is(err, protocol.ErrIncompleteMessage):
				log.Info("Client disconnected")
			default:
				log.Warn("Failed to read client request", zap.Error(err))
			}

			return
		}

		seq := uint16(atomic.AddUint32(&c.sequence, 1))
		metrics.RequestsTotal.WithLabelValues(protocol.OpcodeName(raw.Op)).Inc()

		if c.server.trace {
			log.Debug("Request",
				zap.String("request", protocol.OpcodeName(raw.Op)),
				zap.Uint16("sequence", seq),
				zap.Binary("body", raw.Body))
		}

		if xerr := c.handle(raw, seq); xerr != nil {
			log.Debug("Request failed", zap.Error(xerr))
			metrics.ErrorsTotal.WithLabelValues(protocol.ErrorName(xerr.Code)).Inc()

			if err := c.sendEvent(xerr); err != nil {
				return
			}
		}
	}
}

func (c *Conn) WriteLoop() {
	log := c.log.Named("writeLoop")

	for {
		select {
		case <-c.ctx.Done():
			return

		// Error records from the read loop and events from store updates
		case data := <-c.writeQueue:
			if _, err := c.conn.Write(data); err != nil {
				log.Warn("Failed to write from write queue", zap.Error(err))
				c.cancel()
				return
			}
		}
	}
}

// Write queues data for the write loop.
func (c *Conn) Write(data []byte) (int, error) {
	select {
	case c.writeQueue <- data:
		return len(data), nil

	case <-c.ctx.Done():
		return 0, errConnClosed
	}
}

func (c *Conn) sendEvent(ev protocol.Event) error {
	buf := protocol.EncodeEvent(c.order, ev)

	if _, err := c.Write(buf[:]); err != nil {
		return err
	}

	c.server.metrics.EventsTotal.WithLabelValues(strconv.Itoa(int(ev.EventCode()))).Inc()

	return nil
}

// WriteUpdate sends an Expose when the update maps a window this client owns
// and selected exposures on.
func (c *Conn) WriteUpdate(update *storage.Update) error {
	if atomic.LoadInt32(&c.ready) == 0 || !c.isRunning() {
		return nil
	}

	key, ok := storage.MappedWindow(update)
	if !ok {
		return nil
	}

	w, err := c.server.resources.WindowFromUpdate(c.ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		// Destroyed since
		return nil
	}
	if err != nil {
		return err
	}

	if w.Client != c.index || w.EventMask&protocol.EventMaskExposure == 0 {
		return nil
	}

	return c.sendEvent(&protocol.ExposeEvent{
		Sequence: uint16(atomic.LoadUint32(&c.sequence)),
		Window:   w.ID,
		Width:    w.Width,
		Height:   w.Height,
	})
}

// isRunning returns true if Close has not been called
func (c *Conn) isRunning() bool {
	select {
	case <-c.ctx.Done():
		return false

	default:
		return true
	}
}

