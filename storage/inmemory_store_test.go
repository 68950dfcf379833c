package storage_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mokomull/x11-client/storage"
)

var _ = Describe("storage / InmemoryStore", func() {
	ctx := context.Background()

	Describe("Close()", func() {
		It("does not panic when closed twice", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(func() { store.Close() }).NotTo(Panic())
			Expect(func() { store.Close() }).NotTo(Panic())
		})

		It("closes the update channels", func() {
			store := storage.NewInmemoryStore()
			updateChan := store.ListenToUpdates()

			Expect(store.Close()).To(Succeed())
			Eventually(updateChan).Should(BeClosed())
			Eventually(store.ListenToUpdates()).Should(BeClosed())
		})
	})

	It("an empty inmemory store equals {}", func() {
		store := storage.NewInmemoryStore()
		defer store.Close()

		value, err := store.Backup()
		Expect(err).To(Succeed())
		Expect(string(value)).To(Equal(`{}`))
	})

	Describe("Set() / Get()", func() {
		It("can read a key that is written", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			err := store.Set(ctx, "foo", "bar")
			Expect(err).To(Succeed())

			Expect(store.Get(ctx, "foo")).To(Equal([]byte(`"bar"`)))

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"foo":"bar"}`))
		})

		It("keeps hex keys as object members", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Set(ctx, "windows.0x4000001.mapped", true)).To(Succeed())

			value, err := store.Backup()
			Expect(err).To(Succeed())
			Expect(string(value)).To(Equal(`{"windows":{"0x4000001":{"mapped":true}}}`))
		})

		It("reports missing keys", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			_, err := store.Get(ctx, "nope")
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})

		It("sends on the update channel when values are set", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			updateChan := store.ListenToUpdates()
			err := store.Set(ctx, "foo", "bar")
			Expect(err).To(Succeed())

			update, ok := <-updateChan
			Expect(ok).To(BeTrue())
			Expect(update).To(Equal(&storage.Update{
				Key:   "foo",
				Value: []byte(`"bar"`),
			}))
		})
	})

	Describe("Delete()", func() {
		It("removes the key and announces it", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Set(ctx, "foo", "bar")).To(Succeed())

			updateChan := store.ListenToUpdates()
			Expect(store.Delete(ctx, "foo")).To(Succeed())

			Expect(<-updateChan).To(Equal(&storage.Update{Key: "foo"}))

			_, err := store.Get(ctx, "foo")
			Expect(errors.Is(err, storage.ErrNotFound)).To(BeTrue())
		})

		It("reports missing keys", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(errors.Is(store.Delete(ctx, "foo"), storage.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("Restore() / Backup()", func() {
		It("round trips a document", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Restore([]byte(`{"foo":"bar"}`))).To(Succeed())
			Expect(store.Get(ctx, "foo")).To(Equal([]byte(`"bar"`)))
			Expect(store.Backup()).To(Equal([]byte(`{"foo":"bar"}`)))
		})

		It("refuses invalid JSON", func() {
			store := storage.NewInmemoryStore()
			defer store.Close()

			Expect(store.Restore([]byte(`{"foo":`))).NotTo(Succeed())
		})
	})
})
