package protocol_test

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/mokomull/x11-client/protocol"
)

func record(b ...byte) [protocol.EventSize]byte {
	var buf [protocol.EventSize]byte
	copy(buf[:], b)
	return buf
}

var _ = Describe("Events", func() {
	Describe("DecodeEvent()", func() {
		It("decodes Expose", func() {
			buf := record(
				12, 0, 0x00, 0x01,
				0x00, 0x00, 0x00, 0x42,
				0x00, 0x0a, 0x00, 0x14,
				0x00, 0x64, 0x00, 0x32,
				0x00, 0x00,
			)

			Expect(protocol.DecodeEvent(protocol.MSBFirst, buf)).To(Equal(&protocol.ExposeEvent{
				Sequence: 1,
				Window:   0x42,
				X:        10,
				Y:        20,
				Width:    100,
				Height:   50,
				Count:    0,
			}))
		})

		It("decodes KeyPress with negative coordinates", func() {
			buf := record(
				2, 38, 0x00, 0x07,
				0x01, 0x02, 0x03, 0x04,
				0x00, 0x00, 0x01, 0xe5,
				0x00, 0x60, 0x00, 0x01,
				0x00, 0x00, 0x00, 0x00,
				0xff, 0xf6, 0xfe, 0xd4,
				0x00, 0x05, 0xff, 0xff,
				0x00, 0x05, 0x01,
			)

			Expect(protocol.DecodeEvent(protocol.MSBFirst, buf)).To(Equal(&protocol.KeyPressEvent{
				Detail:     38,
				Sequence:   7,
				Time:       0x01020304,
				Root:       0x1e5,
				Event:      0x00600001,
				Child:      protocol.None,
				RootX:      -10,
				RootY:      -300,
				EventX:     5,
				EventY:     -1,
				State:      0x0005,
				SameScreen: true,
			}))
		})

		It("keeps unrecognized codes raw", func() {
			var buf [protocol.EventSize]byte
			buf[0] = 200
			for i := 1; i < protocol.EventSize; i++ {
				buf[i] = byte(i)
			}

			ev := protocol.DecodeEvent(protocol.MSBFirst, buf)

			unknown, ok := ev.(*protocol.UnknownEvent)
			Expect(ok).To(BeTrue())
			Expect(unknown.Code).To(Equal(uint8(200)))
			Expect(unknown.Raw[:]).To(Equal(buf[1:]))
			Expect(unknown.EventCode()).To(Equal(uint8(72)))
		})

		It("dispatches synthetic events by their code", func() {
			ev := protocol.DecodeEvent(protocol.MSBFirst, record(12|protocol.SyntheticBit, 0, 0, 9))

			expose, ok := ev.(*protocol.ExposeEvent)
			Expect(ok).To(BeTrue())
			Expect(expose.Synthetic).To(BeTrue())
			Expect(expose.Sequence).To(Equal(uint16(9)))
		})

		It("decodes little-endian records", func() {
			buf := record(12, 0, 0x01, 0x00, 0x42, 0x00, 0x00, 0x00, 0x0a, 0x00)

			expose := protocol.DecodeEvent(protocol.LSBFirst, buf).(*protocol.ExposeEvent)
			Expect(expose.Sequence).To(Equal(uint16(1)))
			Expect(expose.Window).To(Equal(protocol.ID(0x42)))
			Expect(expose.X).To(Equal(uint16(10)))
		})

		It("decodes errors", func() {
			buf := record(
				0, protocol.BadWindow, 0x00, 0x05,
				0x00, 0x60, 0x00, 0x09,
				0x00, 0x00, protocol.OpMapWindow,
			)

			ev := protocol.DecodeEvent(protocol.MSBFirst, buf)
			xerr, ok := ev.(*protocol.ErrorEvent)
			Expect(ok).To(BeTrue())
			Expect(xerr.Code).To(Equal(protocol.BadWindow))
			Expect(xerr.Sequence).To(Equal(uint16(5)))
			Expect(xerr.BadValue).To(Equal(uint32(0x00600009)))
			Expect(xerr.MajorOpcode).To(Equal(protocol.OpMapWindow))
			Expect(xerr.Error()).To(ContainSubstring("BadWindow"))

			var asErr error = xerr
			Expect(errors.As(asErr, &xerr)).To(BeTrue())
		})

		It("keeps the trailing bytes of errors", func() {
			var buf [protocol.EventSize]byte
			buf[1] = protocol.BadValue
			for i := 11; i < protocol.EventSize; i++ {
				buf[i] = byte(i)
			}

			xerr, ok := protocol.DecodeEvent(protocol.LSBFirst, buf).(*protocol.ErrorEvent)
			Expect(ok).To(BeTrue())
			Expect(xerr.Unused[0]).To(Equal(byte(11)))
			Expect(xerr.Unused[len(xerr.Unused)-1]).To(Equal(byte(31)))
			Expect(protocol.EncodeEvent(protocol.LSBFirst, xerr)).To(Equal(buf))
		})

		It("does not treat a synthetic code 0 as an error", func() {
			ev := protocol.DecodeEvent(protocol.MSBFirst, record(protocol.SyntheticBit))

			unknown, ok := ev.(*protocol.UnknownEvent)
			Expect(ok).To(BeTrue())
			Expect(unknown.Code).To(Equal(protocol.SyntheticBit))
		})
	})

	Describe("EncodeEvent()", func() {
		It("round trips every variant", func() {
			var raw [protocol.EventSize - 1]byte
			raw[0], raw[30] = 0xaa, 0x55

			events := []protocol.Event{
				&protocol.ExposeEvent{Sequence: 3, Window: 0x600001, X: 1, Y: 2, Width: 3, Height: 4, Count: 2},
				&protocol.ExposeEvent{Synthetic: true, Window: 0x600001},
				&protocol.KeyPressEvent{Detail: 9, Sequence: 65535, Time: 42, Root: 1, Event: 2, Child: 3,
					RootX: -32768, RootY: 32767, EventX: -1, EventY: 0, State: 0xffff, SameScreen: true},
				&protocol.ErrorEvent{Code: protocol.BadGC, Sequence: 4, BadValue: 7, MinorOpcode: 0, MajorOpcode: 70},
				&protocol.UnknownEvent{Code: 200, Raw: raw},
				&protocol.UnknownEvent{Code: 28, Raw: raw},
			}

			for _, order := range []protocol.ByteOrder{protocol.MSBFirst, protocol.LSBFirst} {
				for _, ev := range events {
					Expect(protocol.DecodeEvent(order, protocol.EncodeEvent(order, ev))).To(Equal(ev))
				}
			}
		})
	})

	Describe("ReadEvent()", func() {
		It("reads records in arrival order", func() {
			stream := &bytes.Buffer{}
			for seq := uint16(1); seq <= 3; seq++ {
				buf := protocol.EncodeEvent(protocol.MSBFirst, &protocol.ExposeEvent{Sequence: seq, Count: 3 - seq})
				stream.Write(buf[:])
			}

			for seq := uint16(1); seq <= 3; seq++ {
				ev, err := protocol.ReadEvent(stream, protocol.MSBFirst)
				Expect(err).To(Succeed())
				Expect(ev.(*protocol.ExposeEvent).Sequence).To(Equal(seq))
			}
		})

		It("reports a short record as incomplete", func() {
			_, err := protocol.ReadEvent(bytes.NewReader(make([]byte, 31)), protocol.MSBFirst)
			Expect(errors.Is(err, protocol.ErrIncompleteMessage)).To(BeTrue())
		})
	})
})
