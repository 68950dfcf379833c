package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// Protocol version spoken by this package.
const (
	ProtocolMajor uint16 = 11
	ProtocolMinor uint16 = 0
)

// greetingSize is the size of a greeting without authorization data.
const greetingSize = 12

// SetupStatus is the first byte of the server's answer to a Greeting.
type SetupStatus uint8

const (
	SetupFailed       SetupStatus = 0
	SetupSuccess      SetupStatus = 1
	SetupAuthenticate SetupStatus = 2
)

func (s SetupStatus) String() string {
	switch s {
	case SetupFailed:
		return "failed"
	case SetupSuccess:
		return "success"
	case SetupAuthenticate:
		return "authenticate"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Greeting is the first message a client sends on a new connection.
type Greeting struct {
	ByteOrder     ByteOrder
	ProtocolMajor uint16
	ProtocolMinor uint16

	// Authorization is not supported, these must stay empty for Encode to
	// succeed. ReadGreeting fills them in when a client sends them anyway.
	AuthName string
	AuthData []byte
}

// NewGreeting returns a protocol 11.0 greeting without authorization.
func NewGreeting(order ByteOrder) *Greeting {
	return &Greeting{
		ByteOrder:     order,
		ProtocolMajor: ProtocolMajor,
		ProtocolMinor: ProtocolMinor,
	}
}

// Encode serialises the greeting. It is 12 bytes long when no authorization
// is present.
func (g *Greeting) Encode() ([]byte, error) {
	if !g.ByteOrder.Valid() {
		return nil, fmt.Errorf("%s: %w", g.ByteOrder, ErrUnknownByteOrder)
	}

	if len(g.AuthName) != 0 || len(g.AuthData) != 0 {
		return nil, fmt.Errorf("%q: %w", g.AuthName, ErrUnsupportedAuthorization)
	}

	return g.encode(), nil
}

func (g *Greeting) encode() []byte {
	e := NewEncoderWithCap(g.ByteOrder, greetingSize+len(g.AuthName)+len(g.AuthData)+6)

	e.PutUint8(byte(g.ByteOrder))
	e.PutZero(1)
	e.PutUint16(g.ProtocolMajor)
	e.PutUint16(g.ProtocolMinor)
	e.PutUint16(uint16(len(g.AuthName)))
	e.PutUint16(uint16(len(g.AuthData)))
	e.PutZero(2)
	e.PutPaddedBytes([]byte(g.AuthName))
	e.PutPaddedBytes(g.AuthData)

	return e.Bytes()
}

// ReadGreeting reads a client greeting, as a display server would. The byte
// order is taken from the first byte.
func ReadGreeting(r io.Reader) (*Greeting, error) {
	rd := NewReader(r, MSBFirst)

	first := rd.Uint8()
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("reading greeting: %w", err)
	}

	order := ByteOrder(first)
	if !order.Valid() {
		return nil, fmt.Errorf("greeting starts with %#x: %w", first, ErrUnknownByteOrder)
	}

	rd.order = order.binary()
	rd.Skip(1)

	g := &Greeting{ByteOrder: order}
	g.ProtocolMajor = rd.Uint16()
	g.ProtocolMinor = rd.Uint16()
	nameLen := rd.Uint16()
	dataLen := rd.Uint16()
	rd.Skip(2)
	g.AuthName = string(rd.PaddedBytes(int(nameLen)))
	g.AuthData = rd.PaddedBytes(int(dataLen))

	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("reading greeting: %w", err)
	}

	return g, nil
}

// Handshake sends the greeting and reads the server's answer. Anything other
// than a successful setup is returned as an error, a *HandshakeRejectedError
// when the server refused the connection.
func Handshake(rw io.ReadWriter, g *Greeting) (*Setup, error) {
	b, err := g.Encode()
	if err != nil {
		return nil, err
	}

	if _, err := rw.Write(b); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}

	return ReadSetup(rw, g.ByteOrder)
}

// ReadSetup reads the server's answer to a greeting.
//
// The status byte is checked before anything else, a Failed or Authenticate
// answer is never parsed as a capability announcement.
func ReadSetup(r io.Reader, order ByteOrder) (*Setup, error) {
	rd := NewReader(r, order)

	status := SetupStatus(rd.Uint8())
	if err := rd.Err(); err != nil {
		return nil, fmt.Errorf("reading setup status: %w", err)
	}

	switch status {
	case SetupSuccess:
		s, err := readSetupSuccess(rd)
		if err != nil {
			return nil, fmt.Errorf("reading setup: %w", err)
		}

		return s, nil

	case SetupFailed:
		reasonLen := int(rd.Uint8())
		major := rd.Uint16()
		minor := rd.Uint16()
		length := int(rd.Uint16())
		reason := rd.Bytes(length * 4)

		if err := rd.Err(); err != nil {
			return nil, fmt.Errorf("reading setup failure: %w", err)
		}

		if reasonLen > len(reason) {
			return nil, fmt.Errorf("%w: reason is %d bytes but the reply only carries %d",
				ErrIncompleteMessage, reasonLen, len(reason))
		}

		return nil, &HandshakeRejectedError{
			Status: status,
			Reason: string(reason[:reasonLen]),
			Major:  major,
			Minor:  minor,
		}

	case SetupAuthenticate:
		rd.Skip(5)
		length := int(rd.Uint16())
		reason := rd.Bytes(length * 4)

		if err := rd.Err(); err != nil {
			return nil, fmt.Errorf("reading setup authenticate: %w", err)
		}

		return nil, &HandshakeRejectedError{
			Status: status,
			Reason: string(bytes.TrimRight(reason, "\x00")),
		}

	default:
		return nil, &HandshakeRejectedError{
			Status: status,
			Reason: "unknown setup status",
		}
	}
}

// EncodeSetupFailed builds the Failed answer to a greeting. Reasons longer
// than 255 bytes are truncated.
func EncodeSetupFailed(order ByteOrder, reason string) []byte {
	if len(reason) > 255 {
		reason = reason[:255]
	}

	e := NewEncoderWithCap(order, 8+len(reason)+3)
	e.PutUint8(uint8(SetupFailed))
	e.PutUint8(uint8(len(reason)))
	e.PutUint16(ProtocolMajor)
	e.PutUint16(ProtocolMinor)
	e.PutUint16(uint16((len(reason) + PadLen(len(reason))) / 4))
	e.PutPaddedBytes([]byte(reason))

	return e.Bytes()
}
