package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/mokomull/x11-client/protocol"
)

const (
	windowsKey = "windows"
	gcsKey     = "gcs"
)

var ErrPropertyMismatch = errors.New("property type or format does not match")

type Window struct {
	ID          protocol.ID `json:"id"`
	Client      int         `json:"client"`
	Parent      protocol.ID `json:"parent"`
	Depth       uint8       `json:"depth"`
	X           int16       `json:"x"`
	Y           int16       `json:"y"`
	Width       uint16      `json:"width"`
	Height      uint16      `json:"height"`
	BorderWidth uint16      `json:"border_width"`
	Class       uint16      `json:"class"`
	Visual      protocol.ID `json:"visual"`
	Background  uint32      `json:"background"`
	EventMask   uint32      `json:"event_mask"`
	Mapped      bool        `json:"mapped"`

	Properties map[string]Property `json:"properties,omitempty"`
}

type GC struct {
	ID         protocol.ID `json:"id"`
	Client     int         `json:"client"`
	Drawable   protocol.ID `json:"drawable"`
	Foreground uint32      `json:"foreground"`
	Background uint32      `json:"background"`
}

// Property is a window property. Data holds the bytes as received. 8-bit data
// that is valid UTF-8 is also kept as Text so the document stays readable.
type Property struct {
	Type   protocol.Atom `json:"type"`
	Format uint8         `json:"format"`
	Text   string        `json:"text,omitempty"`
	Data   []byte        `json:"data,omitempty"`
}

func (p Property) Bytes() []byte {
	return p.Data
}

func newProperty(typ protocol.Atom, format uint8, value []byte) Property {
	p := Property{Type: typ, Format: format, Data: value}
	if format == 8 && utf8.Valid(value) {
		p.Text = string(value)
	}

	return p
}

// Resources is the typed view of a Store the display emulator keeps its
// windows and graphics contexts in.
type Resources struct {
	store Store
}

func NewResources(store Store) *Resources {
	return &Resources{store: store}
}

func (r *Resources) Store() Store {
	return r.store
}

func WindowKey(id protocol.ID) string {
	return fmt.Sprintf("%s.%#x", windowsKey, uint32(id))
}

func GCKey(id protocol.ID) string {
	return fmt.Sprintf("%s.%#x", gcsKey, uint32(id))
}

func propertyKey(window protocol.ID, property protocol.Atom) string {
	return fmt.Sprintf("%s.properties.%#x", WindowKey(window), uint32(property))
}

// MappedWindow returns the window an update marks as mapped, if it does.
func MappedWindow(update *Update) (string, bool) {
	if update.Value == nil || string(update.Value) != "true" {
		return "", false
	}

	key := strings.TrimSuffix(update.Key, ".mapped")
	if key == update.Key || !strings.HasPrefix(key, windowsKey+".") {
		return "", false
	}

	return key, true
}

func (r *Resources) CreateWindow(ctx context.Context, w Window) error {
	return r.store.Set(ctx, WindowKey(w.ID), w)
}

func (r *Resources) Window(ctx context.Context, id protocol.ID) (*Window, error) {
	return r.windowAt(ctx, WindowKey(id))
}

func (r *Resources) windowAt(ctx context.Context, key string) (*Window, error) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	w := &Window{}
	if err := json.Unmarshal(raw, w); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}

	return w, nil
}

// WindowFromUpdate loads the window a MappedWindow key names.
func (r *Resources) WindowFromUpdate(ctx context.Context, key string) (*Window, error) {
	return r.windowAt(ctx, key)
}

func (r *Resources) HasWindow(ctx context.Context, id protocol.ID) bool {
	_, err := r.store.Get(ctx, WindowKey(id))
	return err == nil
}

func (r *Resources) MapWindow(ctx context.Context, id protocol.ID) error {
	if !r.HasWindow(ctx, id) {
		return fmt.Errorf("%w: window %#x", ErrNotFound, uint32(id))
	}

	return r.store.Set(ctx, WindowKey(id)+".mapped", true)
}

func (r *Resources) DestroyWindow(ctx context.Context, id protocol.ID) error {
	return r.store.Delete(ctx, WindowKey(id))
}

func (r *Resources) CreateGC(ctx context.Context, gc GC) error {
	return r.store.Set(ctx, GCKey(gc.ID), gc)
}

func (r *Resources) GC(ctx context.Context, id protocol.ID) (*GC, error) {
	raw, err := r.store.Get(ctx, GCKey(id))
	if err != nil {
		return nil, err
	}

	gc := &GC{}
	if err := json.Unmarshal(raw, gc); err != nil {
		return nil, fmt.Errorf("decoding gc %#x: %w", uint32(id), err)
	}

	return gc, nil
}

func (r *Resources) FreeGC(ctx context.Context, id protocol.ID) error {
	return r.store.Delete(ctx, GCKey(id))
}

// ChangeProperty replaces, prepends to or appends to a window property.
// Prepending or appending to an existing property of another type or format
// is ErrPropertyMismatch.
func (r *Resources) ChangeProperty(ctx context.Context, req *protocol.ChangeProperty) error {
	if !r.HasWindow(ctx, req.Window) {
		return fmt.Errorf("%w: window %#x", ErrNotFound, uint32(req.Window))
	}

	key := propertyKey(req.Window, req.Property)
	value := req.Value

	if req.Mode != protocol.PropModeReplace {
		if raw, err := r.store.Get(ctx, key); err == nil {
			var old Property
			if err := json.Unmarshal(raw, &old); err != nil {
				return fmt.Errorf("decoding %s: %w", key, err)
			}

			if old.Type != req.Type || old.Format != req.Format {
				return fmt.Errorf("%w: %s", ErrPropertyMismatch, key)
			}

			if req.Mode == protocol.PropModePrepend {
				value = append(append([]byte(nil), value...), old.Bytes()...)
			} else {
				value = append(old.Bytes(), value...)
			}
		}
	}

	return r.store.Set(ctx, key, newProperty(req.Type, req.Format, value))
}

func (r *Resources) Property(ctx context.Context, window protocol.ID, property protocol.Atom) (*Property, error) {
	raw, err := r.store.Get(ctx, propertyKey(window, property))
	if err != nil {
		return nil, err
	}

	p := &Property{}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decoding property %#x: %w", uint32(property), err)
	}

	return p, nil
}
