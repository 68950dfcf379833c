package protocol_test

import (
	"bytes"
	"errors"
	"io"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mokomull/x11-client/protocol"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

var _ = Describe("Binary primitives", func() {
	Describe("PadLen()", func() {
		It("pads up to the next 4 byte boundary", func() {
			Expect(protocol.PadLen(0)).To(Equal(0))
			Expect(protocol.PadLen(1)).To(Equal(3))
			Expect(protocol.PadLen(2)).To(Equal(2))
			Expect(protocol.PadLen(3)).To(Equal(1))
			Expect(protocol.PadLen(4)).To(Equal(0))
			Expect(protocol.PadLen(5)).To(Equal(3))
		})
	})

	Describe("ParseByteOrder()", func() {
		It("accepts big and little", func() {
			Expect(protocol.ParseByteOrder("big")).To(Equal(protocol.MSBFirst))
			Expect(protocol.ParseByteOrder("LITTLE")).To(Equal(protocol.LSBFirst))
		})

		It("rejects anything else", func() {
			_, err := protocol.ParseByteOrder("middle")
			Expect(errors.Is(err, protocol.ErrUnknownByteOrder)).To(BeTrue())
		})
	})

	Describe("Encoder", func() {
		It("writes big-endian fields", func() {
			e := protocol.NewEncoder(protocol.MSBFirst)
			e.PutUint8(0x01)
			e.PutUint16(0x0203)
			e.PutUint32(0x04050607)
			e.PutInt16(-2)

			Expect(e.Bytes()).To(Equal([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xff, 0xfe}))
		})

		It("writes little-endian fields", func() {
			e := protocol.NewEncoder(protocol.LSBFirst)
			e.PutUint16(0x0203)
			e.PutUint32(0x04050607)

			Expect(e.Bytes()).To(Equal([]byte{0x03, 0x02, 0x07, 0x06, 0x05, 0x04}))
		})

		It("pads byte strings with zeros", func() {
			e := protocol.NewEncoder(protocol.MSBFirst)
			e.PutPaddedBytes([]byte("abcde"))

			Expect(e.Bytes()).To(Equal([]byte{'a', 'b', 'c', 'd', 'e', 0, 0, 0}))
		})

		It("aligns to 4 bytes", func() {
			e := protocol.NewEncoder(protocol.MSBFirst)
			e.PutUint8(1)
			e.Align()
			Expect(e.Len()).To(Equal(4))

			e.Align()
			Expect(e.Len()).To(Equal(4))
		})
	})

	Describe("Reader", func() {
		It("reads fields in the negotiated order", func() {
			data := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xff, 0xfe}
			rd := protocol.NewReader(bytes.NewReader(data), protocol.MSBFirst)

			Expect(rd.Uint8()).To(Equal(uint8(0x01)))
			Expect(rd.Uint16()).To(Equal(uint16(0x0203)))
			Expect(rd.Uint32()).To(Equal(uint32(0x04050607)))
			Expect(rd.Int16()).To(Equal(int16(-2)))
			Expect(rd.Err()).To(Succeed())
			Expect(rd.Consumed()).To(Equal(9))
		})

		It("never decodes half a field", func() {
			rd := protocol.NewReader(bytes.NewReader([]byte{0x01, 0x02, 0x03}), protocol.MSBFirst)

			Expect(rd.Uint32()).To(BeZero())
			Expect(errors.Is(rd.Err(), protocol.ErrIncompleteMessage)).To(BeTrue())
		})

		It("keeps the first error", func() {
			rd := protocol.NewReader(bytes.NewReader([]byte{0x01}), protocol.MSBFirst)

			rd.Uint16()
			first := rd.Err()
			Expect(rd.Uint8()).To(BeZero())
			Expect(rd.Err()).To(Equal(first))
		})

		It("reports an empty stream as incomplete", func() {
			rd := protocol.NewReader(bytes.NewReader(nil), protocol.MSBFirst)
			rd.Uint8()

			Expect(errors.Is(rd.Err(), protocol.ErrIncompleteMessage)).To(BeTrue())
			Expect(errors.Is(rd.Err(), io.EOF)).To(BeFalse())
		})

		It("reports stream failures as transport errors", func() {
			rd := protocol.NewReader(failingReader{}, protocol.MSBFirst)
			rd.Uint8()

			var terr *protocol.TransportError
			Expect(errors.As(rd.Err(), &terr)).To(BeTrue())
			Expect(terr.Op).To(Equal("read"))
			Expect(errors.Is(rd.Err(), protocol.ErrIncompleteMessage)).To(BeFalse())
		})

		It("consumes padding after byte strings", func() {
			data := []byte{'a', 'b', 'c', 0, 0x2a}
			rd := protocol.NewReader(bytes.NewReader(data), protocol.MSBFirst)

			Expect(rd.PaddedBytes(3)).To(Equal([]byte("abc")))
			Expect(rd.Uint8()).To(Equal(uint8(0x2a)))
		})
	})
})
