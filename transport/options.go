package transport

import (
	"go.uber.org/zap"

	"github.com/mokomull/x11-client/protocol"
	"github.com/mokomull/x11-client/storage"
)

type Options struct {
	// Network is "unix" or "tcp"
	Network string

	// Address to listen on, a socket path or host:port
	Address string

	// Reuseport controls setting SO_REUSEPORT on TCP listeners. Without it
	// only one listener is started.
	Reuseport bool

	NumListeners int

	// Setup is announced to every client, with the resource id space filled
	// in per client. Defaults to DefaultSetup().
	Setup *protocol.Setup

	// RejectReason, when set, makes the emulator refuse every connection
	// with this reason.
	RejectReason string

	// Trace logs every request body. This is only useful in local debugging
	Trace bool

	// Store defaults to an in-memory store.
	Store storage.Store

	// Metrics defaults to metrics on a private registry.
	Metrics *Metrics

	Log *zap.Logger
}
