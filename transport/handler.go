package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mokomull/x11-client/protocol"
	"github.com/mokomull/x11-client/storage"
)

const storeTimeout = 3 * time.Second

// handle applies one request to the store. A non-nil result is the error
// record to send back.
func (c *Conn) handle(raw *protocol.RawRequest, seq uint16) *protocol.ErrorEvent {
	req, err := protocol.DecodeRequest(raw, c.order)
	if err != nil {
		c.log.Debug("Malformed request", zap.Error(err))
		return xerror(protocol.BadLength, seq, 0, raw.Op)
	}

	ctx, cancel := context.WithTimeout(c.ctx, storeTimeout)
	defer cancel()

	switch r := req.(type) {
	case *protocol.CreateWindow:
		return c.createWindow(ctx, r, seq)

	case *protocol.MapWindow:
		err := c.server.resources.MapWindow(ctx, r.Window)
		return c.storeError(err, protocol.BadWindow, seq, uint32(r.Window), raw.Op)

	case *protocol.DestroyWindow:
		return c.destroyWindow(ctx, r, seq)

	case *protocol.CreateGC:
		return c.createGC(ctx, r, seq)

	case *protocol.FreeGC:
		err := c.server.resources.FreeGC(ctx, r.GC)
		return c.storeError(err, protocol.BadGC, seq, uint32(r.GC), raw.Op)

	case *protocol.PolyFillRectangle:
		return c.polyFillRectangle(ctx, r, seq)

	case *protocol.ChangeProperty:
		err := c.server.resources.ChangeProperty(ctx, r)
		if errors.Is(err, storage.ErrPropertyMismatch) {
			return xerror(protocol.BadMatch, seq, uint32(r.Property), raw.Op)
		}
		return c.storeError(err, protocol.BadWindow, seq, uint32(r.Window), raw.Op)

	default:
		return xerror(protocol.BadRequest, seq, 0, raw.Op)
	}
}

func (c *Conn) createWindow(ctx context.Context, r *protocol.CreateWindow, seq uint16) *protocol.ErrorEvent {
	resources := c.server.resources

	if !c.ownsID(r.Window) || resources.HasWindow(ctx, r.Window) {
		return xerror(protocol.BadIDChoice, seq, uint32(r.Window), protocol.OpCreateWindow)
	}

	parent, err := resources.Window(ctx, r.Parent)
	if err != nil {
		return c.storeError(err, protocol.BadWindow, seq, uint32(r.Parent), protocol.OpCreateWindow)
	}

	depth, visual := r.Depth, r.Visual
	if depth == protocol.CopyFromParent {
		depth = parent.Depth
	}
	if visual == protocol.CopyFromParent {
		visual = parent.Visual
	}

	class := r.Class
	if class == protocol.WindowClassCopyFromParent {
		class = parent.Class
	}

	err = resources.CreateWindow(ctx, storage.Window{
		ID:          r.Window,
		Client:      c.index,
		Parent:      r.Parent,
		Depth:       depth,
		X:           r.X,
		Y:           r.Y,
		Width:       r.Width,
		Height:      r.Height,
		BorderWidth: r.BorderWidth,
		Class:       class,
		Visual:      visual,
		Background:  r.Values[protocol.CWBackPixel],
		EventMask:   r.Values[protocol.CWEventMask],
	})

	return c.storeError(err, protocol.BadAlloc, seq, uint32(r.Window), protocol.OpCreateWindow)
}

func (c *Conn) destroyWindow(ctx context.Context, r *protocol.DestroyWindow, seq uint16) *protocol.ErrorEvent {
	resources := c.server.resources

	w, err := resources.Window(ctx, r.Window)
	if err != nil {
		return c.storeError(err, protocol.BadWindow, seq, uint32(r.Window), protocol.OpDestroyWindow)
	}

	// Root windows belong to the server and cannot be destroyed.
	if w.Parent == protocol.None {
		return nil
	}

	err = resources.DestroyWindow(ctx, r.Window)
	return c.storeError(err, protocol.BadWindow, seq, uint32(r.Window), protocol.OpDestroyWindow)
}

func (c *Conn) createGC(ctx context.Context, r *protocol.CreateGC, seq uint16) *protocol.ErrorEvent {
	resources := c.server.resources

	if !c.ownsID(r.GC) {
		return xerror(protocol.BadIDChoice, seq, uint32(r.GC), protocol.OpCreateGC)
	}

	if _, err := resources.GC(ctx, r.GC); err == nil {
		return xerror(protocol.BadIDChoice, seq, uint32(r.GC), protocol.OpCreateGC)
	}

	if !resources.HasWindow(ctx, r.Drawable) {
		return xerror(protocol.BadDrawable, seq, uint32(r.Drawable), protocol.OpCreateGC)
	}

	err := resources.CreateGC(ctx, storage.GC{
		ID:         r.GC,
		Client:     c.index,
		Drawable:   r.Drawable,
		Foreground: r.Values[protocol.GCForeground],
		Background: r.Values[protocol.GCBackground],
	})

	return c.storeError(err, protocol.BadAlloc, seq, uint32(r.GC), protocol.OpCreateGC)
}

func (c *Conn) polyFillRectangle(ctx context.Context, r *protocol.PolyFillRectangle, seq uint16) *protocol.ErrorEvent {
	resources := c.server.resources

	if !resources.HasWindow(ctx, r.Drawable) {
		return xerror(protocol.BadDrawable, seq, uint32(r.Drawable), protocol.OpPolyFillRectangle)
	}

	gc, err := resources.GC(ctx, r.GC)
	if err != nil {
		return c.storeError(err, protocol.BadGC, seq, uint32(r.GC), protocol.OpPolyFillRectangle)
	}

	c.server.metrics.RectanglesFilledTotal.Add(float64(len(r.Rectangles)))

	c.log.Debug("Filled rectangles",
		zap.String("drawable", fmt.Sprintf("%#x", uint32(r.Drawable))),
		zap.Uint32("foreground", gc.Foreground),
		zap.Int("count", len(r.Rectangles)))

	return nil
}

// ownsID reports whether id lies in the client's resource id space.
func (c *Conn) ownsID(id protocol.ID) bool {
	return id != protocol.None && uint32(id)&^c.mask == c.base
}

// storeError turns a store failure into an error record: missing resources
// become code, anything else is BadAlloc.
func (c *Conn) storeError(err error, code uint8, seq uint16, value uint32, op uint8) *protocol.ErrorEvent {
	if err == nil {
		return nil
	}

	if errors.Is(err, storage.ErrNotFound) {
		return xerror(code, seq, value, op)
	}

	c.log.Error("Store failed", zap.Error(err))

	return xerror(protocol.BadAlloc, seq, value, op)
}

func xerror(code uint8, seq uint16, value uint32, op uint8) *protocol.ErrorEvent {
	return &protocol.ErrorEvent{
		Code:        code,
		Sequence:    seq,
		BadValue:    value,
		MajorOpcode: op,
	}
}
