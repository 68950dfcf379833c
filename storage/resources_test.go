package storage_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mokomull/x11-client/protocol"
	"github.com/mokomull/x11-client/storage"
)

var _ = Describe("storage / Resources", func() {
	var (
		ctx       = context.Background()
		store     *storage.InmemoryStore
		resources *storage.Resources
	)

	BeforeEach(func() {
		store = storage.NewInmemoryStore()
		resources = storage.NewResources(store)
	})

	AfterEach(func() {
		store.Close()
	})

	window := storage.Window{
		ID:        0x04000001,
		Client:    2,
		Parent:    0x1e5,
		Width:     640,
		Height:    480,
		EventMask: protocol.EventMaskExposure,
	}

	Describe("windows", func() {
		It("stores and loads a window", func() {
			Expect(resources.CreateWindow(ctx, window)).To(Succeed())

			Expect(resources.Window(ctx, 0x04000001)).To(Equal(&window))
			Expect(resources.HasWindow(ctx, 0x04000002)).To(BeFalse())
		})

		It("announces mapping through the update channel", func() {
			Expect(resources.CreateWindow(ctx, window)).To(Succeed())
			updateChan := store.ListenToUpdates()

			Expect(resources.MapWindow(ctx, 0x04000001)).To(Succeed())

			var update *storage.Update
			Eventually(updateChan).Should(Receive(&update))

			key, ok := storage.MappedWindow(update)
			Expect(ok).To(BeTrue())
			Expect(key).To(Equal(storage.WindowKey(0x04000001)))

			mapped, err := resources.WindowFromUpdate(ctx, key)
			Expect(err).To(Succeed())
			Expect(mapped.Mapped).To(BeTrue())
		})

		It("does not map unknown windows", func() {
			err := resources.MapWindow(ctx, 0x04000009)
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})

		It("ignores updates that are not a mapping", func() {
			for _, update := range []*storage.Update{
				{Key: "windows.0x4000001", Value: []byte(`{}`)},
				{Key: "windows.0x4000001.mapped", Value: []byte(`false`)},
				{Key: "windows.0x4000001.mapped"},
				{Key: "gcs.0x4000002.mapped", Value: []byte(`true`)},
			} {
				_, ok := storage.MappedWindow(update)
				Expect(ok).To(BeFalse(), update.Key)
			}
		})

		It("destroys windows", func() {
			Expect(resources.CreateWindow(ctx, window)).To(Succeed())
			Expect(resources.DestroyWindow(ctx, 0x04000001)).To(Succeed())
			Expect(resources.HasWindow(ctx, 0x04000001)).To(BeFalse())
		})
	})

	Describe("graphics contexts", func() {
		It("stores, loads and frees a gc", func() {
			gc := storage.GC{ID: 0x04000002, Client: 2, Drawable: 0x04000001, Foreground: 0x0000ff}
			Expect(resources.CreateGC(ctx, gc)).To(Succeed())

			Expect(resources.GC(ctx, 0x04000002)).To(Equal(&gc))

			Expect(resources.FreeGC(ctx, 0x04000002)).To(Succeed())
			_, err := resources.GC(ctx, 0x04000002)
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("ChangeProperty()", func() {
		BeforeEach(func() {
			Expect(resources.CreateWindow(ctx, window)).To(Succeed())
		})

		It("stores 8-bit data as text", func() {
			Expect(resources.ChangeProperty(ctx, protocol.NewSetWMName(0x04000001, "hello"))).To(Succeed())

			raw, err := store.Get(ctx, "windows.0x4000001.properties.0x27.text")
			Expect(err).To(Succeed())
			Expect(string(raw)).To(Equal(`"hello"`))

			prop, err := resources.Property(ctx, 0x04000001, protocol.AtomWMName)
			Expect(err).To(Succeed())
			Expect(prop.Bytes()).To(Equal([]byte("hello")))
		})

		It("keeps Latin-1 names byte for byte", func() {
			latin1 := []byte{0x63, 0x61, 0x66, 0xe9}
			change := protocol.NewSetWMName(0x04000001, string(latin1))
			Expect(resources.ChangeProperty(ctx, change)).To(Succeed())

			prop, err := resources.Property(ctx, 0x04000001, protocol.AtomWMName)
			Expect(err).To(Succeed())
			Expect(prop.Bytes()).To(Equal(latin1))
			Expect(prop.Text).To(BeEmpty())

			change.Mode, change.Value = protocol.PropModeAppend, []byte{0xff}
			Expect(resources.ChangeProperty(ctx, change)).To(Succeed())

			prop, err = resources.Property(ctx, 0x04000001, protocol.AtomWMName)
			Expect(err).To(Succeed())
			Expect(prop.Bytes()).To(Equal([]byte{0x63, 0x61, 0x66, 0xe9, 0xff}))
		})

		It("prepends and appends", func() {
			change := protocol.NewSetWMName(0x04000001, "middle")
			Expect(resources.ChangeProperty(ctx, change)).To(Succeed())

			change.Mode, change.Value = protocol.PropModeAppend, []byte(" end")
			Expect(resources.ChangeProperty(ctx, change)).To(Succeed())

			change.Mode, change.Value = protocol.PropModePrepend, []byte("start ")
			Expect(resources.ChangeProperty(ctx, change)).To(Succeed())

			prop, err := resources.Property(ctx, 0x04000001, protocol.AtomWMName)
			Expect(err).To(Succeed())
			Expect(prop.Text).To(Equal("start middle end"))
		})

		It("keeps wider formats as bytes", func() {
			Expect(resources.ChangeProperty(ctx, &protocol.ChangeProperty{
				Window:   0x04000001,
				Property: 0x100,
				Type:     6,
				Format:   32,
				Value:    []byte{0, 0, 0, 1},
			})).To(Succeed())

			prop, err := resources.Property(ctx, 0x04000001, 0x100)
			Expect(err).To(Succeed())
			Expect(prop.Bytes()).To(Equal([]byte{0, 0, 0, 1}))
		})

		It("refuses to append a different format", func() {
			Expect(resources.ChangeProperty(ctx, protocol.NewSetWMName(0x04000001, "x"))).To(Succeed())

			err := resources.ChangeProperty(ctx, &protocol.ChangeProperty{
				Mode:     protocol.PropModeAppend,
				Window:   0x04000001,
				Property: protocol.AtomWMName,
				Type:     protocol.AtomString,
				Format:   16,
				Value:    []byte{0, 1},
			})
			Expect(errors.Is(err, storage.ErrPropertyMismatch)).To(BeTrue())
		})

		It("needs an existing window", func() {
			err := resources.ChangeProperty(ctx, protocol.NewSetWMName(0x04000009, "x"))
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})
	})
})
