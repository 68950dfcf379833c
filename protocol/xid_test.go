package protocol_test

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mokomull/x11-client/protocol"
)

var _ = Describe("IDAllocator", func() {
	spaces := []struct {
		base, mask uint32
	}{
		{0x04000000, 0x001fffff},
		{0x00000000, 0x000000ff},
		{0x80000000, 0x0f0f0000},
		{0x00200000, 0x000100f1},
		{0x00e00000, 0x0000000f},
	}

	It("keeps every bit outside the mask equal to the base", func() {
		for _, space := range spaces {
			ids := protocol.NewIDAllocator(space.base, space.mask)
			seen := map[protocol.ID]bool{}

			for i := 0; i < 5000; i++ {
				id, err := ids.NewID()
				if errors.Is(err, protocol.ErrIDSpaceExhausted) {
					break
				}
				Expect(err).To(Succeed())

				Expect(uint32(id) &^ space.mask).To(Equal(space.base), "id %#x", id)
				Expect(seen).NotTo(HaveKey(id))
				seen[id] = true
			}
		}
	})

	It("spreads the counter across the set bits of the mask", func() {
		ids := protocol.NewIDAllocator(0x00200000, 0x00000101)

		Expect(ids.NewID()).To(Equal(protocol.ID(0x00200001)))
		Expect(ids.NewID()).To(Equal(protocol.ID(0x00200100)))
		Expect(ids.NewID()).To(Equal(protocol.ID(0x00200101)))
	})

	It("never hands out the bare base", func() {
		ids := protocol.NewIDAllocator(0x04000000, 0x001fffff)
		Expect(ids.NewID()).To(Equal(protocol.ID(0x04000001)))
	})

	It("runs out once the mask is used up", func() {
		ids := protocol.NewIDAllocator(0x00e00000, 0x3)
		Expect(ids.Capacity()).To(Equal(uint64(3)))

		for i := 0; i < 3; i++ {
			_, err := ids.NewID()
			Expect(err).To(Succeed())
		}
		Expect(ids.Remaining()).To(BeZero())

		_, err := ids.NewID()
		Expect(errors.Is(err, protocol.ErrIDSpaceExhausted)).To(BeTrue())

		_, err = ids.NewID()
		Expect(errors.Is(err, protocol.ErrIDSpaceExhausted)).To(BeTrue())
	})

	It("has nothing to give with an empty mask", func() {
		_, err := protocol.NewIDAllocator(0x00e00000, 0).NewID()
		Expect(errors.Is(err, protocol.ErrIDSpaceExhausted)).To(BeTrue())
	})

	It("can use all 32 bits", func() {
		ids := protocol.NewIDAllocator(0, 0xffffffff)
		Expect(ids.Capacity()).To(Equal(uint64(0xffffffff)))
		Expect(ids.NewID()).To(Equal(protocol.ID(1)))
	})
})
