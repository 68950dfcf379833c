package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	reuseport "github.com/kavu/go_reuseport"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/mokomull/x11-client/protocol"
	"github.com/mokomull/x11-client/storage"
)

// Server emulates a display server: it answers the handshake, keeps the
// resources clients create in a store and sends back errors and events.
type Server struct {
	cancel     context.CancelFunc
	stopWaiter sync.WaitGroup

	network string
	addr    string

	reuseport    bool
	numListeners int
	listeners    []*Listener

	resources    *storage.Resources
	setup        *protocol.Setup
	rejectReason string
	metrics      *Metrics

	// nextClient is the index of the last client accepted on any listener
	nextClient int32

	log   *zap.Logger
	trace bool
}

func NewServer(options Options) *Server {
	numListeners := options.NumListeners
	if numListeners < 1 {
		numListeners = runtime.NumCPU()
	}

	network := options.Network
	if network == "" {
		network = "unix"
	}

	// Only TCP with SO_REUSEPORT can share one address between listeners.
	if network != "tcp" || !options.Reuseport {
		numListeners = 1
	}

	setup := options.Setup
	if setup == nil {
		setup = DefaultSetup()
	}

	metrics := options.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	store := options.Store
	if store == nil {
		store = storage.NewInmemoryStore()
	}

	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	return &Server{
		network:      network,
		addr:         options.Address,
		reuseport:    options.Reuseport,
		numListeners: numListeners,
		listeners:    make([]*Listener, 0, numListeners),
		resources:    storage.NewResources(store),
		setup:        setup,
		rejectReason: options.RejectReason,
		metrics:      metrics,
		trace:        options.Trace,
		log:          log,
	}
}

// Start creates the root windows and starts the listeners. Clients can
// connect as soon as it returns.
func (s *Server) Start(parentCtx context.Context) error {
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel

	for _, screen := range s.setup.Screens {
		err := s.resources.CreateWindow(ctx, storage.Window{
			ID:     screen.Root,
			Depth:  screen.RootDepth,
			Width:  screen.WidthInPixels,
			Height: screen.HeightInPixels,
			Class:  protocol.WindowClassInputOutput,
			Visual: screen.RootVisual,
			Mapped: true,
		})
		if err != nil {
			cancel()
			return fmt.Errorf("creating root window %#x: %w", uint32(screen.Root), err)
		}
	}

	s.log.Info("Starting listeners",
		zap.String("network", s.network),
		zap.String("address", s.addr),
		zap.Int("count", s.numListeners))

	for i := 0; i < s.numListeners; i++ {
		if err := s.startListener(ctx, i); err != nil {
			return multierr.Append(err, s.Close())
		}
	}

	return nil
}

// Addr returns the address the first listener is bound to.
func (s *Server) Addr() net.Addr {
	if len(s.listeners) == 0 {
		return nil
	}

	return s.listeners[0].listener.Addr()
}

func (s *Server) Setup() *protocol.Setup {
	return s.setup
}

func (s *Server) Resources() *storage.Resources {
	return s.resources
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

func (s *Server) listen() (net.Listener, error) {
	if s.network == "tcp" && s.reuseport {
		return reuseport.Listen("tcp", s.addr)
	}

	return net.Listen(s.network, s.addr)
}

func (s *Server) startListener(ctx context.Context, n int) error {
	l, err := s.listen()
	if err != nil {
		return fmt.Errorf("listening on %s %s: %w", s.network, s.addr, err)
	}

	listener := newListener(ctx, l, s, s.log.Named("listener").With(zap.Int("listener", n)))
	s.listeners = append(s.listeners, listener)

	s.stopWaiter.Add(1)
	go func() {
		defer s.stopWaiter.Done()

		if err := listener.Serve(); err != nil {
			s.log.Error("Listener failed", zap.Error(err))
		}
	}()

	return nil
}

// nextClientIndex returns the next client index, or 0 once the id space is
// used up.
func (s *Server) nextClientIndex() int {
	index := atomic.AddInt32(&s.nextClient, 1)
	if index > maxClients {
		return 0
	}

	return int(index)
}

// Close closes all listeners and the connections they accepted, and waits
// for them to stop.
func (s *Server) Close() (err error) {
	s.log.Info("Stopping emulator")

	if s.cancel != nil {
		s.cancel()
	}

	for _, listener := range s.listeners {
		err = multierr.Append(err, listener.Close())
	}

	s.stopWaiter.Wait()
	s.log.Info("Listeners stopped")

	return err
}

type Listener struct {
	ctx      context.Context
	listener net.Listener
	server   *Server

	mu          sync.Mutex
	activeConns map[*Conn]struct{}
	loopWaiter  sync.WaitGroup

	log *zap.Logger
}

func newListener(ctx context.Context, l net.Listener, server *Server, log *zap.Logger) *Listener {
	return &Listener{
		ctx:         ctx,
		listener:    l,
		server:      server,
		activeConns: make(map[*Conn]struct{}),
		log:         log,
	}
}

// Close stops accepting and closes every active connection.
func (l *Listener) Close() (err error) {
	if cerr := l.listener.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		err = multierr.Append(err, cerr)
	}

	l.mu.Lock()
	conns := make([]*Conn, 0, len(l.activeConns))
	for conn := range l.activeConns {
		conns = append(conns, conn)
	}
	l.mu.Unlock()

	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}

	return err
}

// Serve accepts clients until the listener is closed.
func (l *Listener) Serve() error {
	updates := l.server.resources.Store().ListenToUpdates()

	// Listen for storage updates
	l.loopWaiter.Add(1)
	go func() {
		defer l.loopWaiter.Done()

		for {
			select {
			case <-l.ctx.Done():
				return

			case update, ok := <-updates:
				if !ok {
					return
				}

				if err := l.WriteUpdate(update); err != nil {
					l.log.Warn("Failed to deliver update", zap.String("key", update.Key), zap.Error(err))
				}
			}
		}
	}()

	defer func() {
		l.log.Info("Waiting for connections to stop")
		l.loopWaiter.Wait()
		l.log.Info("Listener stopped")
	}()

	for {
		nc, err := l.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// The listener was closed while we were waiting for new
				// connections, that's fine.
				return nil
			}

			return err
		}

		index := l.server.nextClientIndex()
		conn := newConn(l.ctx, nc, index, l.server, l.log.Named("conn").With(zap.Int("client", index)))

		l.loopWaiter.Add(1)
		go func() {
			defer l.loopWaiter.Done()
			l.serveConn(conn)
		}()
	}
}

func (l *Listener) serveConn(conn *Conn) {
	metrics := l.server.metrics

	// Tracked from the start so Close can interrupt a client that never
	// finishes its greeting.
	l.addConn(conn)
	defer l.removeConn(conn)

	if err := conn.Handshake(); err != nil {
		l.log.Info("Handshake refused", zap.Error(err))
		conn.Close()
		return
	}

	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	conn.Start()
}

// WriteUpdate hands a store update to every connection, each decides whether
// it concerns its client.
func (l *Listener) WriteUpdate(update *storage.Update) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for conn := range l.activeConns {
		if uerr := conn.WriteUpdate(update); uerr != nil {
			err = multierr.Append(err, uerr)
		}
	}

	return err
}

func (l *Listener) addConn(conn *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.activeConns[conn] = struct{}{}
}

func (l *Listener) removeConn(conn *Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.activeConns, conn)
}
